package ocr

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// engineWhitelist restricts the recognizer's character hypothesis space to
// alphanumerics, accented Latin letters and receipt punctuation. Narrowing
// the set measurably improves numeric accuracy on receipts.
const engineWhitelist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyzáéíóúñÁÉÍÓÚÑ$.,:/-()[] "

// LocalEngine wraps the embedded Tesseract engine configured for the
// mixed-language (Spanish+English), numeric-heavy receipt domain.
type LocalEngine struct{}

// Recognize runs the engine over a preprocessed raster and returns the
// decoded text plus the engine-reported confidence (0-100, mean word
// confidence). The engine client is created for this call only and released
// on return, success or failure.
func (LocalEngine) Recognize(raster image.Image) (string, float64, error) {
	tmp, err := os.CreateTemp("", "recibo-*.png")
	if err != nil {
		return "", 0, fmt.Errorf("%w: temp file: %v", ErrEngine, err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)
	if err := imaging.Save(raster, path); err != nil {
		return "", 0, fmt.Errorf("%w: save raster: %v", ErrEngine, err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage("spa", "eng"); err != nil {
		return "", 0, fmt.Errorf("%w: set language: %v", ErrEngine, err)
	}
	_ = client.SetWhitelist(engineWhitelist)
	// Receipts have irregular multi-column layouts: let the engine infer
	// block/line structure instead of assuming a single text block.
	_ = client.SetPageSegMode(gosseract.PSM_AUTO)
	// The extractor's line heuristics need inter-word spacing preserved.
	_ = client.SetVariable("preserve_interword_spaces", "1")
	if err := client.SetImage(path); err != nil {
		return "", 0, fmt.Errorf("%w: set image: %v", ErrEngine, err)
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrEngine, err)
	}
	return text, wordConfidence(client), nil
}

// wordConfidence averages per-word confidences. Text() itself reports no
// score, so the word boxes are the engine's confidence signal.
func wordConfidence(client *gosseract.Client) float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
