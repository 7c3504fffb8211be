package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

const (
	// DerivativeMaxBytes bounds the full-size WebP and AVIF outputs.
	DerivativeMaxBytes = 1 << 20 // 1 MiB

	// ThumbMaxBytes bounds thumbnails so a gallery page of hundreds of
	// tiles stays cheap.
	ThumbMaxBytes = 30 * 1024

	webpStartQuality = 70
	webpFloorQuality = 50
	avifStartQuality = 80
	avifFloorQuality = 50
	qualityStep      = 5

	thumbMaxSide      = 640
	thumbMinSide      = 240
	thumbStartQuality = 76
	thumbFloorQuality = 40
	thumbQualityStep  = 8
	thumbShrinkFactor = 0.85

	downloadJPEGQuality = 92
)

// Encoder produces the stored derivatives. Quality walks down from the
// start value until the output fits the byte budget or hits the floor;
// at the floor the oversized result is accepted rather than failing the
// upload.
type Encoder struct {
	// AvifEnabled gates AVIF generation. AVIF is treated as best
	// effort everywhere: absence degrades delivery, never correctness.
	AvifEnabled bool
}

// EncodeWebP encodes the primary display derivative.
func (e *Encoder) EncodeWebP(img image.Image) ([]byte, error) {
	for q := webpStartQuality; ; q -= qualityStep {
		var buf bytes.Buffer
		if err := webp.Encode(&buf, img, webp.Options{Quality: q, Lossless: false}); err != nil {
			return nil, fmt.Errorf("encode webp (q%d): %w", q, err)
		}
		if buf.Len() <= DerivativeMaxBytes || q <= webpFloorQuality {
			return buf.Bytes(), nil
		}
	}
}

// EncodeAVIF encodes the modern-browser derivative. Returns nil when
// AVIF is disabled or the encoder fails; callers treat nil as "skip".
func (e *Encoder) EncodeAVIF(img image.Image) []byte {
	if !e.AvifEnabled {
		return nil
	}
	for q := avifStartQuality; ; q -= qualityStep {
		var buf bytes.Buffer
		if err := avif.Encode(&buf, img, avif.Options{Quality: q}); err != nil {
			return nil
		}
		if buf.Len() <= DerivativeMaxBytes || q <= avifFloorQuality {
			return buf.Bytes()
		}
	}
}

// Thumbnail encodes a small WebP for gallery tiles. The search walks
// two axes: quality drops first, and when it bottoms out the bounding
// box shrinks and quality resets. When both floors are reached the
// smallest attempt is returned even if it misses the budget.
func (e *Encoder) Thumbnail(img image.Image) ([]byte, error) {
	maxSide := thumbMaxSide
	quality := thumbStartQuality

	var best []byte
	for {
		trial := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)

		var buf bytes.Buffer
		if err := webp.Encode(&buf, trial, webp.Options{Quality: quality, Lossless: false}); err != nil {
			return nil, fmt.Errorf("encode thumbnail (side %d, q%d): %w", maxSide, quality, err)
		}
		if buf.Len() <= ThumbMaxBytes {
			return buf.Bytes(), nil
		}
		if best == nil || buf.Len() < len(best) {
			best = buf.Bytes()
		}

		var more bool
		quality, maxSide, more = nextThumbAttempt(quality, maxSide)
		if !more {
			return best, nil
		}
	}
}

// nextThumbAttempt advances the search. Quality drops in fixed steps
// and the last step may land below the floor; once at or past it the
// bounding box shrinks and quality resets. Reports false when both
// axes are exhausted.
func nextThumbAttempt(quality, maxSide int) (int, int, bool) {
	if quality > thumbFloorQuality {
		return quality - thumbQualityStep, maxSide, true
	}
	if maxSide <= thumbMinSide {
		return quality, maxSide, false
	}
	maxSide = int(float64(maxSide) * thumbShrinkFactor)
	if maxSide < thumbMinSide {
		maxSide = thumbMinSide
	}
	return thumbStartQuality, maxSide, true
}

// DownloadJPEG encodes the full-resolution download rendition. Single
// pass, no byte budget: downloads favor fidelity over size.
func (e *Encoder) DownloadJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: downloadJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode download jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFileAtomic writes data to a temp file in the target directory
// and renames it into place, so concurrent readers never see a partial
// derivative.
func WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
