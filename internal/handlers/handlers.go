// Package handlers wires the HTTP surface: upload, gallery queries,
// derivative delivery, album administration and session auth.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/sync/singleflight"

	"miogallery/internal/appinfo"
	"miogallery/internal/config"
	"miogallery/internal/gallery"
	"miogallery/internal/meta"
	"miogallery/internal/pipeline"
	"miogallery/pkg/cache"
	"miogallery/pkg/utils"
)

// Server holds every dependency the handlers need. Built once in main
// and in tests; handlers never reach for globals beyond config.
type Server struct {
	photoDir  string
	maxUpload int64

	store   *meta.Store
	descs   *meta.Descriptions
	repo    gallery.Repository
	engine  *gallery.Engine
	decoder *pipeline.Decoder
	encoder *pipeline.Encoder

	cache    *cache.MemoryCache
	sessions *sessions.CookieStore

	adminHash  string
	adminPlain string

	// requestGroup collapses concurrent derivative generation for the
	// same image into one execution.
	requestGroup singleflight.Group
}

// New builds the server from configuration. The cache may be nil when
// caching is disabled.
func New(cfg *config.Config, memCache *cache.MemoryCache) *Server {
	photoDir := cfg.Storage.PhotoDir

	store := meta.NewStore(photoDir)
	descs := meta.NewDescriptions(photoDir)
	repo := gallery.NewFSRepository(photoDir)

	cookieStore := sessions.NewCookieStore([]byte(cfg.Security.SessionSecret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   cfg.Server.Env == "production",
	}

	return &Server{
		photoDir:   photoDir,
		maxUpload:  utils.SizeToBytes(cfg.Image.MaxUploadSize, 50<<20),
		store:      store,
		descs:      descs,
		repo:       repo,
		engine:     gallery.NewEngine(repo, store, descs),
		decoder:    pipeline.NewDecoder(cfg.Image.RawExtensions, cfg.Image.RawDecoder),
		encoder:    &pipeline.Encoder{AvifEnabled: cfg.Image.AvifEnabled},
		cache:      memCache,
		sessions:   cookieStore,
		adminHash:  cfg.Security.AdminPasswordHash,
		adminPlain: cfg.Security.AdminPassword,
	}
}

// Routes registers every endpoint on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	// Auth & session
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	// Upload & gallery
	mux.HandleFunc("POST /api/upload", s.requireAdmin(s.handleUpload))
	mux.HandleFunc("GET /api/images", s.handleListImages)
	mux.HandleFunc("GET /api/images/{id}", s.handleGetImage)
	mux.HandleFunc("DELETE /api/images/{id}", s.requireAdmin(s.handleDeleteImage))

	// Derivative delivery
	mux.HandleFunc("GET /api/images/{year}/{month}/{file}", s.handleServeFile)
	mux.HandleFunc("GET /api/thumb/{file}", s.handleThumb)
	mux.HandleFunc("GET /api/images/{id}/download", s.handleDownload)

	// Per-image metadata
	mux.HandleFunc("PUT /api/images/{id}/pin", s.requireAdmin(s.handlePin))
	mux.HandleFunc("GET /api/images/{id}/description", s.handleGetDescription)
	mux.HandleFunc("PUT /api/images/{id}/description", s.requireAdmin(s.handleSetDescription))
	mux.HandleFunc("PUT /api/images/{id}/album", s.requireAdmin(s.handleAssignAlbum))

	// Albums
	mux.HandleFunc("GET /api/albums", s.handleListAlbums)
	mux.HandleFunc("POST /api/albums", s.requireAdmin(s.handleCreateAlbum))
	mux.HandleFunc("DELETE /api/albums/{id}", s.requireAdmin(s.handleDeleteAlbum))
	mux.HandleFunc("POST /api/albums/unlock", s.handleUnlockAlbums)
	mux.HandleFunc("POST /api/albums/lock", s.handleLockAlbums)

	// Health
	mux.HandleFunc("GET /api/health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	name, version := "Mio Gallery", ""
	if config.AppConfig != nil {
		name = config.AppConfig.App.Name
		version = config.AppConfig.App.Version
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"name":         name,
		"version":      version,
		"uptime":       appinfo.Uptime().Truncate(time.Second).String(),
		"images":       appinfo.TotalImagesCount.Load(),
		"storage_used": utils.FormatBytes(appinfo.TotalImagesSize.Load()),
	})
}

// serveWithETag handles HTTP caching headers (ETag, Cache-Control).
// Returns 304 Not Modified if client's cache is valid.
func serveWithETag(w http.ResponseWriter, r *http.Request, data []byte, mimeType string) {
	hash := sha256.Sum256(data)
	etag := hex.EncodeToString(hash[:])

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("ETag", `"`+etag+`"`)

	if match := r.Header.Get("If-None-Match"); match != "" {
		if strings.Contains(match, etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Write(data)
}
