package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"miogallery/internal/appinfo"
	"miogallery/internal/config"
	"miogallery/internal/gallery"
	"miogallery/internal/handlers"
	"miogallery/internal/middleware"
	"miogallery/pkg/cache"
	"miogallery/pkg/logger"
	"miogallery/pkg/utils"
)

func main() {

	utils.LoadEnv()

	startupMessageActive := os.Getenv("STARTUP_LOG_ACTIVE")

	if startupMessageActive != "false" {
		printBanner()
	}

	// Load Config & Env
	config.Load()

	cfg := config.AppConfig

	if err := os.MkdirAll(cfg.Storage.PhotoDir, 0750); err != nil {
		logger.LogFatal("Cannot create photo directory %s: %v", cfg.Storage.PhotoDir, err)
	}

	// Initial storage stats for /api/health
	seedStats(cfg.Storage.PhotoDir)

	// Cache
	var appCache *cache.MemoryCache
	if cfg.Cache.Enabled {
		ttl, _ := time.ParseDuration(cfg.Cache.TTL)
		appCache = cache.New(int64(cfg.Cache.MaxCapacity), ttl, true)
	}

	srv := handlers.New(cfg, appCache)

	mux := http.NewServeMux()
	srv.Routes(mux)

	finalHandler := middleware.RateLimitMiddleware(
		middleware.CorsMiddleware(
			middleware.LoggerMiddleware(
				middleware.RecoverMiddleware(mux))))

	port := cfg.Server.Port
	baseURL := cfg.GetBaseUrl()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      finalHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.LogServerStart(port, baseURL)
	log.Fatal(server.ListenAndServe())
}

// seedStats walks the photo tree once at startup so the health endpoint
// reports real numbers from the first request.
func seedStats(photoDir string) {
	repo := gallery.NewFSRepository(photoDir)
	images, err := repo.ListImages()
	if err != nil {
		logger.LogWarn("Startup: could not scan photo tree: %v", err)
		return
	}

	var totalSize int64
	for i := range images {
		for _, p := range images[i].Paths {
			if fi, err := os.Stat(p); err == nil {
				totalSize += fi.Size()
			}
		}
	}
	appinfo.SetInitialStats(int64(len(images)), totalSize)
	logger.LogInfo("Gallery: %d images (%s) under %s", len(images), utils.FormatBytes(totalSize), photoDir)
}
