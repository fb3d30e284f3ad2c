package ocr

// Engine identifies which recognition backend produced a result.
type Engine string

const (
	EngineRemoteVision Engine = "remote-vision"
	EngineLocal        Engine = "local-engine"
)

// LineItem is a single product line read off a receipt. Only the remote
// vision backend produces these; the local extractor does not attempt
// line-item segmentation.
type LineItem struct {
	Name  string  `json:"nombre"`
	Price float64 `json:"precio"`
}

// ExtractedFields holds the structured values pulled out of receipt text.
// Pointer fields are nil when nothing plausible was found; the JSON names
// are the Spanish contract shared with the expense form.
type ExtractedFields struct {
	Amount       *float64   `json:"cantidad"`
	Description  *string    `json:"descripcion"`
	Date         *string    `json:"fecha"`
	DocumentType string     `json:"tipoDocumento"`
	Merchant     string     `json:"comercio,omitempty"`
	LineItems    []LineItem `json:"items,omitempty"`
}

// RecognitionResult is the normalized outcome of one receipt scan,
// regardless of backend.
type RecognitionResult struct {
	RawText    string          `json:"texto"`
	Confidence float64         `json:"confianza"`
	Fields     ExtractedFields `json:"datos"`
	Engine     Engine          `json:"-"`
	// Motor is the human-readable engine label surfaced to the client
	// (e.g. claude-vision, tesseract-local).
	Motor string `json:"motor"`
}
