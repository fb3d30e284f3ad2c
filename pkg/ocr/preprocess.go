package ocr

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// maxDimension bounds recognition latency and memory: images whose longer
// side exceeds this are downscaled proportionally before recognition.
const maxDimension = 1920

// Preprocess converts raw image bytes into a cleaned black/white raster
// optimized for character recognition: downscale, grayscale, contrast
// stretch, global binarization. The source bytes are never mutated.
func Preprocess(data []byte) (*image.NRGBA, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	b := img.Bounds()
	if b.Dx() > maxDimension || b.Dy() > maxDimension {
		// Fit only shrinks, preserving aspect ratio.
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}
	gray := imaging.Grayscale(img) // luma weights 0.299/0.587/0.114
	gray = stretchContrast(gray, 1.5)
	return binarize(gray, meanThreshold(gray)), nil
}

// stretchContrast applies a linear stretch around mid-gray (128), clamped to
// [0,255]. Sharpens faint thermal-printer ink before thresholding.
func stretchContrast(img *image.NRGBA, factor float64) *image.NRGBA {
	b := img.Bounds()
	out := imaging.Clone(img)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := out.PixOffset(x, y)
			v := float64(out.Pix[i])
			v = (v-128)*factor + 128
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			p := uint8(v)
			out.Pix[i] = p
			out.Pix[i+1] = p
			out.Pix[i+2] = p
		}
	}
	return out
}

// meanThreshold computes a global threshold as the weighted mean of the
// luminance histogram (a simplified Otsu-style estimate). Deterministic and
// cheap; trades per-image adaptivity for speed.
func meanThreshold(img *image.NRGBA) uint8 {
	var hist [256]uint64
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.Pix[img.PixOffset(x, y)]]++
		}
	}
	var sum, count uint64
	for v, n := range hist {
		sum += uint64(v) * n
		count += n
	}
	if count == 0 {
		return 128
	}
	return uint8(sum / count)
}

// binarize thresholds a grayscale raster to pure black/white.
func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			var v uint8 = 255
			if img.Pix[i] < threshold {
				v = 0
			}
			o := out.PixOffset(x, y)
			out.Pix[o] = v
			out.Pix[o+1] = v
			out.Pix[o+2] = v
			out.Pix[o+3] = 255
		}
	}
	return out
}
