package ocr

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func encodePNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := imaging.New(w, h, c)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestPreprocessDecodeError(t *testing.T) {
	_, err := Preprocess([]byte("definitely not an image"))
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("expected ErrImageDecode, got %v", err)
	}
}

func TestPreprocessDownscalesLargeImages(t *testing.T) {
	data := encodePNG(t, 4000, 1000, color.NRGBA{200, 200, 200, 255})
	out, err := Preprocess(data)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if w := out.Bounds().Dx(); w != 1920 {
		t.Fatalf("expected longer side 1920, got %d", w)
	}
	// aspect ratio preserved: 4000x1000 -> 1920x480
	if h := out.Bounds().Dy(); h != 480 {
		t.Fatalf("expected height 480, got %d", h)
	}
}

func TestPreprocessKeepsSmallImages(t *testing.T) {
	data := encodePNG(t, 640, 480, color.NRGBA{255, 255, 255, 255})
	out, err := Preprocess(data)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if out.Bounds().Dx() != 640 || out.Bounds().Dy() != 480 {
		t.Fatalf("small image must not be resized, got %v", out.Bounds())
	}
}

func TestPreprocessBinarizesToBlackAndWhite(t *testing.T) {
	// dark left half, light right half: output must contain only 0 and 255
	img := imaging.New(100, 50, color.NRGBA{230, 230, 230, 255})
	img = imaging.Paste(img, imaging.New(50, 50, color.NRGBA{30, 30, 30, 255}), image.Pt(0, 0))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Preprocess(buf.Bytes())
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	sawBlack, sawWhite := false, false
	for i := 0; i < len(out.Pix); i += 4 {
		switch out.Pix[i] {
		case 0:
			sawBlack = true
		case 255:
			sawWhite = true
		default:
			t.Fatalf("pixel value %d is neither black nor white", out.Pix[i])
		}
	}
	if !sawBlack || !sawWhite {
		t.Fatalf("expected both black and white pixels, black=%v white=%v", sawBlack, sawWhite)
	}
}

func TestStretchContrastClamps(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{250, 250, 250, 255})
	out := stretchContrast(img, 1.5)
	if out.Pix[0] != 255 {
		t.Fatalf("expected clamp to 255, got %d", out.Pix[0])
	}
	img2 := imaging.New(2, 1, color.NRGBA{10, 10, 10, 255})
	out2 := stretchContrast(img2, 1.5)
	if out2.Pix[0] != 0 {
		t.Fatalf("expected clamp to 0, got %d", out2.Pix[0])
	}
}
