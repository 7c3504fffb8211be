package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testDecoder() *Decoder {
	return NewDecoder([]string{"cr2", "nef"}, "definitely-not-a-real-binary")
}

func TestDecodeFlattensTransparency(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})     // opaque red
	src.Set(1, 1, color.NRGBA{R: 0, G: 0, B: 0, A: 0}) // fully transparent

	img, err := testDecoder().Decode(pngBytes(t, src), "png")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// The transparent pixel must come out as the white background.
	r, g, b, a := img.At(1, 1).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff || a != 0xffff {
		t.Errorf("transparent pixel = (%d,%d,%d,%d), want opaque white", r, g, b, a)
	}

	r, _, _, a = img.At(0, 0).RGBA()
	if r != 0xffff || a != 0xffff {
		t.Errorf("opaque pixel altered: r=%d a=%d", r, a)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := testDecoder().Decode([]byte("this is not an image"), "png")
	if !errors.Is(err, ErrUnreadableImage) {
		t.Errorf("error = %v, want ErrUnreadableImage", err)
	}
}

func TestDecodeRawWithoutConverter(t *testing.T) {
	d := testDecoder()
	if d.RawAvailable() {
		t.Fatal("fixture decoder unexpectedly found a converter")
	}
	if d.Supported("cr2") {
		t.Error("RAW extension reported supported without a converter")
	}

	_, err := d.Decode([]byte("fake raw bytes"), "cr2")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestSupportedExtensions(t *testing.T) {
	d := testDecoder()

	for _, ext := range []string{"jpg", "jpeg", "png", "gif", "webp", "avif", "heic", "jxl", "tiff", "bmp"} {
		if !d.Supported(ext) {
			t.Errorf("Supported(%q) = false", ext)
		}
	}
	for _, ext := range []string{"exe", "txt", "mp4", ""} {
		if d.Supported(ext) {
			t.Errorf("Supported(%q) = true", ext)
		}
	}
}

func TestApplyOrientation(t *testing.T) {
	// 4x2 so the 90-degree family is visible in the dimensions.
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))

	tests := []struct {
		orientation int
		wantW       int
		wantH       int
	}{
		{0, 4, 2}, {1, 4, 2}, {2, 4, 2}, {3, 4, 2}, {4, 4, 2},
		{5, 2, 4}, {6, 2, 4}, {7, 2, 4}, {8, 2, 4},
	}

	for _, tt := range tests {
		got := applyOrientation(src, tt.orientation)
		b := got.Bounds()
		if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
			t.Errorf("orientation %d: size %dx%d, want %dx%d",
				tt.orientation, b.Dx(), b.Dy(), tt.wantW, tt.wantH)
		}
	}
}
