package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"miogallery/internal/access"
	"miogallery/internal/appinfo"
	"miogallery/internal/gallery"
	"miogallery/internal/meta"
	"miogallery/internal/pipeline"
	"miogallery/pkg/logger"
	"miogallery/pkg/utils"
)

const dateLayout = "2006-01-02"

var storageDirPattern = regexp.MustCompile(`^\d{4}/(0[1-9]|1[0-2])$`)

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := gallery.Filter{Album: q.Get("album")}

	if v := q.Get("start_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "start_date must be YYYY-MM-DD.")
			return
		}
		f.Start, f.HasStart = t, true
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "end_date must be YYYY-MM-DD.")
			return
		}
		f.End, f.HasEnd = t, true
	}

	images, err := s.engine.List(f, s.caller(r))
	if err != nil {
		if errors.Is(err, gallery.ErrForbidden) {
			// The caller named the scope, so the refusal can say why:
			// a locked album vs. the admin-only "all" scope.
			if f.Album != "" && f.Album != "all" && f.Album != "public" {
				utils.WriteError(w, http.StatusForbidden, utils.ErrAlbumLocked, "This album is locked.")
				return
			}
			utils.WriteError(w, http.StatusForbidden, utils.ErrRequestForbidden, "You do not have access to this album scope.")
			return
		}
		logger.LogError("Gallery: listing failed: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to list images.")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(images),
		"images": images,
		"filters": map[string]string{
			"start_date": q.Get("start_date"),
			"end_date":   q.Get("end_date"),
			"album":      f.Album,
		},
	})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	img, err := s.engine.Get(id, s.caller(r))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}
	utils.WriteJSON(w, http.StatusOK, img)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	files, err := s.repo.FindByID(id)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}

	var freed int64
	for _, p := range files.Paths {
		if fi, err := os.Stat(p); err == nil {
			freed += fi.Size()
		}
	}

	removed, err := s.repo.Delete(id)
	if err != nil {
		logger.LogError("Delete: removing %s failed: %v", id, err)
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to delete image files.")
		return
	}

	// Side artifacts are best effort; a leftover thumbnail is invisible
	// once the image is gone from the tree.
	os.Remove(filepath.Join(s.photoDir, "thumb", id+".webp"))
	os.Remove(filepath.Join(s.photoDir, "download", id+".jpg"))
	s.descs.Delete(id)

	if err := s.store.Update(func(doc *meta.Document) error {
		doc.RemoveImage(id)
		return nil
	}); err != nil {
		logger.LogError("Delete: metadata cleanup for %s failed: %v", id, err)
	}

	appinfo.RemoveImage(freed)
	if s.cache != nil {
		s.cache.Delete("thumb:" + id)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":            id,
		"deleted":       true,
		"files_removed": len(removed),
	})
}

// handleServeFile delivers a stored derivative (or RAW original) from
// the year/month tree. Access follows the image's album; a denied read
// is indistinguishable from a missing file.
func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	year := r.PathValue("year")
	month := r.PathValue("month")
	file := r.PathValue("file")

	if !storageDirPattern.MatchString(year+"/"+month) || file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		utils.WriteError(w, http.StatusNotFound, utils.ErrRequestNotFound, "No such path.")
		return
	}

	id := strings.TrimSuffix(file, filepath.Ext(file))
	doc := s.store.Load()
	if !access.CanAccessImage(doc, id, s.caller(r)) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "File not found.")
		return
	}

	path := filepath.Join(s.photoDir, year, month, file)
	if _, err := os.Stat(path); err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "File not found.")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

// handleThumb serves the gallery tile, generating and persisting it on
// first request. Generation runs under singleflight so a burst of tile
// requests for a fresh image decodes it once.
func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	if !strings.HasSuffix(file, ".webp") {
		utils.WriteError(w, http.StatusNotFound, utils.ErrRequestNotFound, "No such path.")
		return
	}
	id := strings.TrimSuffix(file, ".webp")

	files, err := s.repo.FindByID(id)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Thumbnail not found.")
		return
	}
	doc := s.store.Load()
	if !access.CanAccessImage(doc, id, s.caller(r)) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Thumbnail not found.")
		return
	}

	cacheKey := "thumb:" + id
	data, err, _ := s.requestGroup.Do(cacheKey, func() (interface{}, error) {
		if s.cache != nil {
			if cached, ok := s.cache.Get(cacheKey); ok {
				return cached, nil
			}
		}
		b, err := s.ensureThumbnail(files)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(cacheKey, b)
		}
		return b, nil
	})
	if err != nil {
		logger.LogError("Thumb: generation failed for %s: %v", id, err)
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrImageProcessingFailed, "Thumbnail generation failed.")
		return
	}

	serveWithETag(w, r, data.([]byte), "image/webp")
}

// ensureThumbnail returns the persisted thumbnail, generating it from
// the best stored source when absent.
func (s *Server) ensureThumbnail(files *gallery.ImageFiles) ([]byte, error) {
	thumbPath := filepath.Join(s.photoDir, "thumb", files.ID+".webp")
	if data, err := os.ReadFile(thumbPath); err == nil {
		return data, nil
	}

	srcPath, ext := s.pickDecodableSource(files, false)
	if srcPath == "" {
		return nil, fmt.Errorf("no decodable source for %s", files.ID)
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, err
	}
	img, err := s.decoder.Decode(data, ext)
	if err != nil {
		return nil, err
	}
	thumb, err := s.encoder.Thumbnail(img)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(thumbPath), 0750); err == nil {
		if err := pipeline.WriteFileAtomic(thumbPath, thumb); err != nil {
			logger.LogWarn("Thumb: could not persist %s: %v", thumbPath, err)
		}
	}
	return thumb, nil
}

// pickDecodableSource chooses which stored file to decode. Thumbnails
// come from the webp derivative (fast, always present once processed).
// Downloads prefer the RAW original when one exists and the converter
// is installed.
func (s *Server) pickDecodableSource(files *gallery.ImageFiles, preferOriginal bool) (string, string) {
	if preferOriginal && s.decoder.RawAvailable() {
		for _, p := range files.Paths {
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p)), ".")
			if s.decoder.IsRaw(ext) {
				return p, ext
			}
		}
	}
	for _, ext := range []string{"webp", "avif"} {
		if p := files.PathByExt(ext); p != "" {
			return p, ext
		}
	}
	return "", ""
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "avif"
	}

	files, err := s.repo.FindByID(id)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}
	doc := s.store.Load()
	if !access.CanAccessImage(doc, id, s.caller(r)) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}

	switch format {
	case "avif":
		p := files.PathByExt("avif")
		if p == "" {
			utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "No AVIF rendition available for this image.")
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".avif"))
		http.ServeFile(w, r, p)

	case "jpg", "jpeg":
		dlPath := filepath.Join(s.photoDir, "download", id+".jpg")
		if _, statErr := os.Stat(dlPath); statErr != nil {
			if _, genErr, _ := s.requestGroup.Do("download:"+id, func() (interface{}, error) {
				return nil, s.generateDownloadJPEG(files, dlPath)
			}); genErr != nil {
				logger.LogError("Download: jpeg generation failed for %s: %v", id, genErr)
				utils.WriteError(w, http.StatusInternalServerError, utils.ErrImageProcessingFailed, "Download rendition failed.")
				return
			}
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".jpg"))
		http.ServeFile(w, r, dlPath)

	default:
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "format must be 'avif' or 'jpg'.")
	}
}

func (s *Server) generateDownloadJPEG(files *gallery.ImageFiles, dlPath string) error {
	srcPath, ext := s.pickDecodableSource(files, true)
	if srcPath == "" {
		return fmt.Errorf("no decodable source for %s", files.ID)
	}
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	img, err := s.decoder.Decode(data, ext)
	if err != nil {
		return err
	}
	jpegData, err := s.encoder.DownloadJPEG(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dlPath), 0750); err != nil {
		return err
	}
	return pipeline.WriteFileAtomic(dlPath, jpegData)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.repo.FindByID(id); err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}

	// Body is optional: {"pinned": bool} sets, an empty body toggles.
	var req struct {
		Pinned *bool `json:"pinned"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var pinned bool
	if err := s.store.Update(func(doc *meta.Document) error {
		if req.Pinned != nil {
			pinned = *req.Pinned
		} else {
			pinned = !doc.Pinned[id]
		}
		if pinned {
			doc.Pinned[id] = true
		} else {
			delete(doc.Pinned, id)
		}
		return nil
	}); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to update pin state.")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "pinned": pinned})
}

func (s *Server) handleGetDescription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.repo.FindByID(id); err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}
	doc := s.store.Load()
	if !access.CanAccessImage(doc, id, s.caller(r)) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":          id,
		"description": s.descs.Get(id),
	})
}

func (s *Server) handleSetDescription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.repo.FindByID(id); err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "A 'description' field is required.")
		return
	}

	if err := s.descs.Set(id, req.Description); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to store description.")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":          id,
		"description": strings.TrimSpace(req.Description),
	})
}

func (s *Server) handleAssignAlbum(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.repo.FindByID(id); err != nil {
		utils.WriteError(w, http.StatusNotFound, utils.ErrResourceNotFound, "Image not found.")
		return
	}

	var req struct {
		Album string `json:"album"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "An 'album' field is required (empty string unassigns).")
		return
	}

	if req.Album != "" && !utils.IsValidSlug(req.Album) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrAlbumNotFound, "Album does not exist.")
		return
	}

	if err := s.store.Update(func(doc *meta.Document) error {
		if req.Album == "" {
			delete(doc.ImageAlbum, id)
			return nil
		}
		if _, ok := doc.Albums[req.Album]; !ok {
			return access.ErrAlbumNotFound
		}
		doc.ImageAlbum[id] = req.Album
		return nil
	}); err != nil {
		if errors.Is(err, access.ErrAlbumNotFound) {
			utils.WriteError(w, http.StatusNotFound, utils.ErrAlbumNotFound, "Album does not exist.")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to update album assignment.")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"id": id, "album": req.Album})
}
