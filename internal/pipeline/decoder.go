package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/evanoberholster/imagemeta"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/heic"
	"github.com/gen2brain/jpegxl"
	"github.com/gen2brain/webp"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var (
	// ErrUnsupportedFormat: the file extension is not one we process,
	// or it needs a RAW converter that isn't installed.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrUnreadableImage: the extension looked fine but the bytes
	// didn't decode.
	ErrUnreadableImage = errors.New("image could not be decoded")

	// ErrFileTooLarge: the upload exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds upload size limit")
)

// standardExtensions are formats decoded in-process without a RAW
// converter.
var standardExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"bmp": true, "tif": true, "tiff": true,
	"webp": true, "avif": true, "heic": true, "heif": true, "jxl": true,
}

// Decoder decodes uploaded files into normalized bitmaps: orientation
// applied, transparency flattened onto white, always opaque RGBA.
type Decoder struct {
	rawExts map[string]bool
	rawBin  string // resolved converter path, empty when unavailable
}

// NewDecoder resolves the RAW converter binary once at startup. When it
// is missing, RAW uploads are rejected up front instead of failing
// halfway through processing.
func NewDecoder(rawExtensions []string, rawDecoder string) *Decoder {
	d := &Decoder{rawExts: make(map[string]bool)}
	for _, ext := range rawExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			d.rawExts[ext] = true
		}
	}
	if rawDecoder != "" {
		if bin, err := exec.LookPath(rawDecoder); err == nil {
			d.rawBin = bin
		}
	}
	return d
}

// RawAvailable reports whether the RAW converter was found on PATH.
func (d *Decoder) RawAvailable() bool {
	return d.rawBin != ""
}

// IsRaw reports whether the extension is a configured camera RAW format.
func (d *Decoder) IsRaw(ext string) bool {
	return d.rawExts[strings.ToLower(ext)]
}

// Supported reports whether an upload with this extension can be
// processed at all, given the converter situation.
func (d *Decoder) Supported(ext string) bool {
	ext = strings.ToLower(ext)
	if standardExtensions[ext] {
		return true
	}
	return d.rawExts[ext] && d.RawAvailable()
}

// Decode turns an uploaded file into a normalized bitmap. The extension
// picks the codec; the bytes are decoded, rotated per EXIF orientation
// and flattened. RAW files go through the external converter, which
// already applies orientation.
func (d *Decoder) Decode(data []byte, ext string) (image.Image, error) {
	ext = strings.ToLower(ext)

	if d.IsRaw(ext) {
		img, err := d.decodeRaw(data)
		if err != nil {
			return nil, err
		}
		return flatten(img), nil
	}

	var (
		img image.Image
		err error
	)
	switch ext {
	case "webp":
		img, err = webp.Decode(bytes.NewReader(data))
	case "avif":
		img, err = avif.Decode(bytes.NewReader(data))
	case "heic", "heif":
		img, err = heic.Decode(bytes.NewReader(data))
	case "jxl":
		img, err = jpegxl.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, ext, err)
	}

	img = applyOrientation(img, readOrientation(data))
	return flatten(img), nil
}

// readOrientation extracts the EXIF orientation value, trying goexif
// first (JPEG/TIFF) and imagemeta for the newer containers. Missing or
// unreadable metadata means "no rotation".
func readOrientation(data []byte) int {
	if x, err := exif.Decode(bytes.NewReader(data)); err == nil && x != nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if v, err := tag.Int(0); err == nil {
				return v
			}
		}
	}

	m, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		// ErrNoExif and ErrMetadataNotSupported are the common cases
		// here and all of them mean the same thing: leave it upright.
		return 0
	}
	return int(uint16(m.Orientation))
}

// applyOrientation bakes the EXIF orientation into the pixels so every
// downstream consumer sees an upright image. Values follow the EXIF
// spec; imaging's rotations are counter-clockwise.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// flatten composites the image over a white background, converting any
// alpha or indexed source into an opaque RGBA bitmap. Derivative codecs
// then never have to deal with transparency.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
