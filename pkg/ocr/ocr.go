package ocr

import (
	"context"
	"log"
)

// Backend is a recognition strategy: submit an image, get back a normalized
// result. Both the remote vision adapter and the local pipeline satisfy it,
// which lets tests substitute fakes.
type Backend interface {
	Recognize(ctx context.Context, data []byte, filename string) (*RecognitionResult, error)
}

// localPipeline composes Preprocess -> LocalEngine -> Extract into a Backend.
type localPipeline struct {
	engine LocalEngine
}

func (p localPipeline) Recognize(_ context.Context, data []byte, _ string) (*RecognitionResult, error) {
	raster, err := Preprocess(data)
	if err != nil {
		return nil, err
	}
	text, conf, err := p.engine.Recognize(raster)
	if err != nil {
		return nil, err
	}
	return &RecognitionResult{
		RawText:    text,
		Confidence: conf,
		Fields:     Extract(text),
		Engine:     EngineLocal,
		Motor:      "tesseract-local",
	}, nil
}

// Processor decides which backend handles a receipt and normalizes the
// outcome. Remote availability is fixed at construction time, not read from
// an ambient global.
type Processor struct {
	remote Backend // nil when no remote endpoint is configured
	local  Backend
}

// NewProcessor builds a Processor. remote may be nil, in which case every
// receipt goes straight to the local pipeline.
func NewProcessor(remote Backend) *Processor {
	return &Processor{remote: remote, local: localPipeline{}}
}

// newProcessorWithBackends is the test seam.
func newProcessorWithBackends(remote, local Backend) *Processor {
	return &Processor{remote: remote, local: local}
}

// ProcessReceipt tries the remote backend first because it is materially
// more accurate, and degrades to the always-available local pipeline on any
// remote failure. If the local pipeline also fails, its error propagates
// untouched so callers can tell "could not read the image" apart from
// "read it but found nothing". One receipt is processed end to end per call;
// no state crosses calls.
func (p *Processor) ProcessReceipt(ctx context.Context, data []byte, filename string) (*RecognitionResult, error) {
	if p.remote != nil {
		res, err := p.remote.Recognize(ctx, data, filename)
		if err == nil {
			return res, nil
		}
		log.Printf("OCR remote failed, falling back to local: %v", err)
	}
	return p.local.Recognize(ctx, data, filename)
}
