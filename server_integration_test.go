package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"reciboscan/pkg/ocr"

	"github.com/gin-gonic/gin"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// fixedBackend makes /ocr/scan deterministic for the integration flow:
// no Tesseract install is needed to exercise the HTTP surface.
type fixedBackend struct{ res *ocr.RecognitionResult }

func (f fixedBackend) Recognize(_ context.Context, _ []byte, _ string) (*ocr.RecognitionResult, error) {
	return f.res, nil
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	jwtSecret = []byte("test-secret")
	initDB()
	tmp := t.TempDir()
	_ = os.Setenv("UPLOAD_BASE", tmp)
	amount := 15000.0
	desc := "Compra supermercado"
	ocrProcessor = ocr.NewProcessor(fixedBackend{res: &ocr.RecognitionResult{
		RawText:    "JUMBO\nTOTAL $15.000",
		Confidence: 95,
		Fields: ocr.ExtractedFields{
			Amount:       &amount,
			Description:  &desc,
			DocumentType: "Supermarket Receipt",
		},
		Engine: ocr.EngineRemoteVision,
		Motor:  "claude-vision",
	}})
	r := gin.Default()
	setupRoutes(r)
	return r
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": "user1", "password": "pass12"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 2. Login
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}

	// 3. Scan a receipt (multipart)
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "recibo.jpg")
	_, _ = w.Write([]byte("fake image bytes"))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/ocr/scan", buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("scan failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var scanResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &scanResp)
	if scanResp["motor"] != "claude-vision" {
		t.Fatalf("expected motor claude-vision in %+v", scanResp)
	}

	// 4. Scan history
	resp = performRequest(r, http.MethodGet, "/scans", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list scans failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 5. Confirm an expense from the form
	gastoBody, _ := json.Marshal(map[string]any{"descripcion": "Compra supermercado", "monto": 15000.0, "tipo": "Supermarket Receipt"})
	resp = performRequest(r, http.MethodPost, "/gastos", bytes.NewBuffer(gastoBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("create gasto failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 6. List gastos
	resp = performRequest(r, http.MethodGet, "/gastos", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list gastos failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 7. Monthly summary
	resp = performRequest(r, http.MethodGet, "/gastos/resumen", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("gasto summary failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 8. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/gastos", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list gastos got %d", unauth.Code)
	}
}

func TestMigrateCommand(t *testing.T) {
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	initDB()
}
