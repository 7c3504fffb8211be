package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/image/tiff"
)

// decodeRaw shells out to the configured converter (dcraw) to develop a
// camera RAW file into a TIFF. Flags: -c writes to stdout, -T selects
// TIFF, -w uses camera white balance, -W disables auto-brightening. The
// converter also rotates per the camera orientation flag, so the result
// needs no further orientation pass.
//
// The converter wants a real file, so the upload is staged in a temp
// file for the duration of the call.
func (d *Decoder) decodeRaw(data []byte) (image.Image, error) {
	if d.rawBin == "" {
		return nil, fmt.Errorf("%w: no RAW converter installed", ErrUnsupportedFormat)
	}

	tmp := filepath.Join(os.TempDir(), "mio-raw-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return nil, fmt.Errorf("stage raw file: %w", err)
	}
	defer os.Remove(tmp)

	cmd := exec.Command(d.rawBin, "-c", "-T", "-w", "-W", tmp)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: raw conversion failed: %v (%s)",
			ErrUnreadableImage, err, bytes.TrimSpace(stderr.Bytes()))
	}

	img, err := tiff.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: converter output: %v", ErrUnreadableImage, err)
	}
	return img, nil
}
