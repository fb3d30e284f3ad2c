package ocr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRemoteVisionRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart parse: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"texto": "JUMBO\nTOTAL $15.000",
			"confianza": 95,
			"datos": {
				"cantidad": 15000,
				"descripcion": "Compra supermercado",
				"fecha": "12/03/2024",
				"tipoDocumento": "Boleta",
				"comercio": "Jumbo",
				"items": [{"nombre": "Pan", "precio": 1200}]
			},
			"motor": "claude-vision"
		}`))
	}))
	defer srv.Close()

	rv := NewRemoteVision(srv.URL, 5*time.Second)
	res, err := rv.Recognize(context.Background(), []byte("fake image"), "recibo.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Engine != EngineRemoteVision || res.Motor != "claude-vision" {
		t.Fatalf("unexpected engine/motor: %s/%s", res.Engine, res.Motor)
	}
	if res.Fields.Amount == nil || *res.Fields.Amount != 15000 {
		t.Fatalf("expected amount 15000, got %v", res.Fields.Amount)
	}
	if len(res.Fields.LineItems) != 1 || res.Fields.LineItems[0].Name != "Pan" {
		t.Fatalf("expected one line item, got %+v", res.Fields.LineItems)
	}
}

func TestRemoteVisionNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream model down", http.StatusBadGateway)
	}))
	defer srv.Close()

	rv := NewRemoteVision(srv.URL, 5*time.Second)
	_, err := rv.Recognize(context.Background(), []byte("x"), "r.jpg")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestRemoteVisionMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	rv := NewRemoteVision(srv.URL, 5*time.Second)
	_, err := rv.Recognize(context.Background(), []byte("x"), "r.jpg")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestRemoteVisionCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rv := NewRemoteVision(srv.URL, 5*time.Second)
	_, err := rv.Recognize(ctx, []byte("x"), "r.jpg")
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote for abandoned call, got %v", err)
	}
}
