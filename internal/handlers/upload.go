package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"miogallery/internal/appinfo"
	"miogallery/internal/meta"
	"miogallery/internal/pipeline"
	"miogallery/pkg/logger"
	"miogallery/pkg/utils"
)

// uploadResult reports per-file outcome. A batch mixes successes and
// failures freely; one bad file never sinks its siblings.
type uploadResult struct {
	OriginalFilename string `json:"original_filename"`
	ID               string `json:"id,omitempty"`
	Date             string `json:"date,omitempty"`
	Datetime         string `json:"datetime,omitempty"`
	Webp             string `json:"webp,omitempty"`
	Avif             string `json:"avif,omitempty"`
	Error            string `json:"error,omitempty"`
	Code             string `json:"code,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Expected a multipart form upload.")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		files = r.MultipartForm.File["image"]
	}
	if len(files) == 0 {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "No files found in 'images' form field.")
		return
	}

	results := make([]uploadResult, 0, len(files))
	uploaded := 0
	for _, fh := range files {
		res := s.processUpload(fh)
		if res.Error == "" {
			uploaded++
		}
		results = append(results, res)
	}

	status := http.StatusOK
	if uploaded == 0 {
		status = http.StatusBadRequest
	}
	utils.WriteJSON(w, status, map[string]interface{}{
		"total":    len(results),
		"uploaded": uploaded,
		"images":   results,
	})
}

// processUpload runs the full pipeline for one file: identity, decode,
// derivative encoding, storage and metadata registration.
func (s *Server) processUpload(fh *multipart.FileHeader) uploadResult {
	res := uploadResult{OriginalFilename: fh.Filename}
	fail := func(code, msg string) uploadResult {
		res.Code = code
		res.Error = msg
		return res
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fh.Filename), "."))
	if !s.decoder.Supported(ext) {
		if s.decoder.IsRaw(ext) && !s.decoder.RawAvailable() {
			return fail(utils.ErrRequestUnsupportedMedia, "RAW uploads need a RAW converter installed on the server.")
		}
		return fail(utils.ErrRequestUnsupportedMedia, fmt.Sprintf("Unsupported file type '.%s'.", ext))
	}

	if fh.Size > s.maxUpload {
		return fail(utils.ErrRequestBodyTooLarge,
			fmt.Sprintf("File exceeds the %s upload limit.", utils.FormatBytes(s.maxUpload)))
	}

	f, err := fh.Open()
	if err != nil {
		return fail(utils.ErrServerInternal, "Could not read uploaded file.")
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fail(utils.ErrServerInternal, "Could not read uploaded file.")
	}

	captureTime, hash := pipeline.ResolveIdentity(data, time.Now())
	id := pipeline.NewImageID(captureTime, hash)

	img, err := s.decoder.Decode(data, ext)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnsupportedFormat) {
			return fail(utils.ErrRequestUnsupportedMedia, "File format could not be processed.")
		}
		logger.LogWarn("Upload: %s did not decode: %v", fh.Filename, err)
		return fail(utils.ErrImageUnreadable, "File could not be decoded as an image.")
	}

	webpData, err := s.encoder.EncodeWebP(img)
	if err != nil {
		logger.LogError("Upload: webp encoding failed for %s: %v", fh.Filename, err)
		return fail(utils.ErrImageProcessingFailed, "Derivative encoding failed.")
	}
	avifData := s.encoder.EncodeAVIF(img)

	year := captureTime.Format("2006")
	month := captureTime.Format("01")
	dir := filepath.Join(s.photoDir, year, month)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fail(utils.ErrServerInternal, "Storage directory could not be created.")
	}

	stored := int64(0)
	if err := pipeline.WriteFileAtomic(filepath.Join(dir, id+".webp"), webpData); err != nil {
		return fail(utils.ErrServerInternal, "Failed to store derivative.")
	}
	stored += int64(len(webpData))
	res.Webp = fmt.Sprintf("/api/images/%s/%s/%s.webp", year, month, id)

	if avifData != nil {
		if err := pipeline.WriteFileAtomic(filepath.Join(dir, id+".avif"), avifData); err == nil {
			stored += int64(len(avifData))
			res.Avif = fmt.Sprintf("/api/images/%s/%s/%s.avif", year, month, id)
		}
	}

	// RAW originals are kept beside the derivatives for full-quality
	// downloads; processed formats are not duplicated.
	if s.decoder.IsRaw(ext) {
		if err := pipeline.WriteFileAtomic(filepath.Join(dir, id+"."+ext), data); err == nil {
			stored += int64(len(data))
		}
	}

	if err := s.store.Update(func(doc *meta.Document) error {
		doc.Datetime[id] = captureTime.Format(meta.DisplayTimeLayout)
		return nil
	}); err != nil {
		logger.LogError("Upload: metadata update failed for %s: %v", id, err)
	}

	appinfo.AddImage(stored)
	// An earlier thumbnail for a re-uploaded id is now stale.
	if s.cache != nil {
		s.cache.Delete("thumb:" + id)
	}

	res.ID = id
	res.Date = captureTime.Format("2006-01-02")
	res.Datetime = captureTime.Format(meta.DisplayTimeLayout)
	return res
}
