// Package pipeline turns an uploaded file into a normalized bitmap and
// size-bounded web derivatives, and derives the content-addressed
// identity used for storage layout and sort order.
package pipeline

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/zeebo/blake3"
)

const (
	// exifTimeLayout is the datetime pattern EXIF tags carry.
	exifTimeLayout = "2006:01:02 15:04:05"

	// idTimeLayout is the timestamp prefix encoded into image ids.
	idTimeLayout = "20060102_150405"

	// hashPrefixLen: hex chars of the content hash kept in the id.
	// Collisions are accepted as a best-effort risk, not detected.
	hashPrefixLen = 12
)

// ContentHash hashes the raw uploaded bytes (not the decoded bitmap)
// and returns the truncated hex prefix used in image ids.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}

// NewImageID builds the stable id for a (capture-time, content) pair.
// Re-uploading byte-identical content at the same timestamp collides
// and overwrites; that is intended.
func NewImageID(t time.Time, hash string) string {
	return fmt.Sprintf("%s_%s", t.Format(idTimeLayout), hash)
}

// TimestampFromID recovers the timestamp encoded in a generated id.
// Ids that don't match the pattern report false instead of failing the
// request that asked.
func TimestampFromID(id string) (time.Time, bool) {
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(idTimeLayout, parts[0]+"_"+parts[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// exifDateTags in priority order: when the photo was taken, when it was
// digitized, and the file's generic timestamp.
var exifDateTags = []exif.FieldName{
	exif.DateTimeOriginal,
	exif.DateTimeDigitized,
	exif.DateTime,
}

// ExifDateTime extracts the capture time from EXIF data. The first tag
// that parses wins. Works for JPEG and TIFF-based containers, which
// covers most camera RAW formats too.
func ExifDateTime(data []byte) (time.Time, bool) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return time.Time{}, false
	}

	for _, name := range exifDateTags {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(s), time.Local)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// ResolveIdentity returns the capture time (EXIF preferred, fallback
// otherwise) and the content hash for an uploaded file.
func ResolveIdentity(data []byte, fallback time.Time) (time.Time, string) {
	captureTime, ok := ExifDateTime(data)
	if !ok {
		captureTime = fallback
	}
	return captureTime, ContentHash(data)
}
