package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"miogallery/pkg/logger"
)

var AppConfig *Config

func (c *Config) GetBaseUrl() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

func Load() {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("storage.photo_dir", "MIO_GALLERY_PHOTO_DIR")
	v.BindEnv("security.admin_password", "MIO_GALLERY_PASSWORD")
	v.BindEnv("security.admin_password_hash", "MIO_GALLERY_PASSWORD_HASH")
	v.BindEnv("security.session_secret", "MIO_GALLERY_SECRET")
	v.BindEnv("server.port", "APP_PORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.LogInfo("Config file not found. Using Environment Variables and Defaults.")
		} else {
			logger.LogWarn("Config file found but unreadable: %v", err)
		}
	}

	if err := v.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("[CRITICAL] Error: Failed to parse configuration: %v", err)
	}

	AppConfig.BaseURL = AppConfig.GetBaseUrl()

	if err := AppConfig.Validate(); err != nil {
		log.Fatalf("[FATAL] CONFIGURATION ERROR: %v", err)
	}

	logger.LogInfo("⚙️  %s v%s Initialized | Env: %s | Port: %d",
		AppConfig.App.Name,
		AppConfig.App.Version,
		AppConfig.Server.Env,
		AppConfig.Server.Port,
	)
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "Mio Gallery")
	v.SetDefault("app.version", "1.0.0")

	// Server
	v.SetDefault("server.port", 5088)
	v.SetDefault("server.env", "development")

	// Storage
	v.SetDefault("storage.photo_dir", "./photo")

	// Image pipeline
	v.SetDefault("image.max_upload_size", "50MB")
	v.SetDefault("image.raw_extensions", []string{
		"cr2", "cr3", "nef", "arw", "orf", "raf", "rw2", "srw", "dng", "pef",
	})
	v.SetDefault("image.raw_decoder", "dcraw")
	v.SetDefault("image.avif_enabled", true)

	// Caching
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_capacity", 100) // 100 MB
	v.SetDefault("cache.ttl", "30m")

	// Security & Limits
	v.SetDefault("security.session_secret", "dev-secret-change-me")
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests", 20)
	v.SetDefault("security.rate_limit.window", "1s")
	v.SetDefault("security.rate_limit.burst", 50)
}

func (c *Config) Validate() error {
	// Admin credentials: one of hash or plaintext must be set.
	if c.Security.AdminPasswordHash == "" && c.Security.AdminPassword == "" {
		return fmt.Errorf(
			"no admin credentials configured. Set 'security.admin_password_hash' " +
				"(bcrypt) in config.yaml or use MIO_GALLERY_PASSWORD_HASH / MIO_GALLERY_PASSWORD env vars",
		)
	}
	if c.Security.AdminPasswordHash == "" {
		if c.Server.Env == "production" {
			return fmt.Errorf("plaintext security.admin_password is not allowed in production; set security.admin_password_hash")
		}
		logger.LogWarn("Security Alert: admin password configured as plaintext. Use a bcrypt hash in production!")
	}

	if c.Security.SessionSecret == "" || c.Security.SessionSecret == "dev-secret-change-me" {
		if c.Server.Env == "production" {
			return fmt.Errorf("security.session_secret cannot be default or empty in production environment")
		}
		logger.LogWarn("Security Alert: Using unsafe default Session Secret. Do not use this in production!")
	}

	if c.Storage.PhotoDir == "" {
		return fmt.Errorf("storage.photo_dir cannot be empty")
	}

	// Cache: TTL parsing check
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache.ttl format '%s': %v", c.Cache.TTL, err)
	}

	// RateLimit: window parsing check
	if _, err := time.ParseDuration(c.Security.RateLimit.Window); err != nil {
		return fmt.Errorf("invalid rate_limit.window format '%s': %v", c.Security.RateLimit.Window, err)
	}

	return nil
}
