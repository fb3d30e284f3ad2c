package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// remoteResponse is the wire shape of the vision endpoint. Field names are
// the Spanish contract the front end and server share.
type remoteResponse struct {
	Texto     string  `json:"texto"`
	Confianza float64 `json:"confianza"`
	Datos     struct {
		Cantidad      *float64   `json:"cantidad"`
		Descripcion   *string    `json:"descripcion"`
		Fecha         *string    `json:"fecha"`
		TipoDocumento string     `json:"tipoDocumento"`
		Comercio      string     `json:"comercio"`
		Items         []LineItem `json:"items"`
	} `json:"datos"`
	Motor string `json:"motor"`
}

// RemoteVision forwards the original, full-resolution image to a server-side
// vision model endpoint and receives already-structured fields. It performs
// no local preprocessing and never retries; retry/fallback policy lives in
// the orchestrator.
type RemoteVision struct {
	Endpoint string
	Client   *http.Client
}

// NewRemoteVision builds an adapter for the given endpoint URL. The timeout
// bounds the whole upload+inference round trip.
func NewRemoteVision(endpoint string, timeout time.Duration) *RemoteVision {
	return &RemoteVision{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

// Recognize uploads the image as a multipart body and maps the response to
// the normalized result shape. Every failure class (network, non-2xx,
// malformed body) comes back as ErrRemote.
func (rv *RemoteVision) Recognize(ctx context.Context, data []byte, filename string) (*RecognitionResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrRemote, err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrRemote, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: build form: %v", ErrRemote, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rv.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := rv.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: endpoint returned %s", ErrRemote, resp.Status)
	}

	var rr remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrRemote, err)
	}

	motor := rr.Motor
	if motor == "" {
		motor = string(EngineRemoteVision)
	}
	return &RecognitionResult{
		RawText:    rr.Texto,
		Confidence: rr.Confianza,
		Fields: ExtractedFields{
			Amount:       rr.Datos.Cantidad,
			Description:  rr.Datos.Descripcion,
			Date:         rr.Datos.Fecha,
			DocumentType: rr.Datos.TipoDocumento,
			Merchant:     rr.Datos.Comercio,
			LineItems:    rr.Datos.Items,
		},
		Engine: EngineRemoteVision,
		Motor:  motor,
	}, nil
}
