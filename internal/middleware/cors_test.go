package middleware

import (
	"testing"

	"miogallery/internal/config"
)

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		pattern string
		want    bool
	}{
		{"wildcard accepts anything", "https://evil.example", "*", true},
		{"exact match", "https://gallery.example.com", "https://gallery.example.com", true},
		{"exact mismatch", "https://other.example.com", "https://gallery.example.com", false},
		{"double star matches base domain", "https://example.com", "https://**.example.com", true},
		{"double star matches subdomain", "https://photos.example.com", "https://**.example.com", true},
		{"single star matches subdomain", "https://photos.example.com", "https://*.example.com", true},
		{"single star rejects base domain", "https://example.com", "https://*.example.com", false},
		{"suffix trick rejected", "https://notexample.com", "https://**.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchOrigin(tt.origin, tt.pattern); got != tt.want {
				t.Errorf("MatchOrigin(%q, %q) = %v, want %v", tt.origin, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	orig := config.AppConfig
	defer func() { config.AppConfig = orig }()

	config.AppConfig = &config.Config{
		Security: config.SecurityConfig{
			CorsOrigins: []string{"https://gallery.example.com", "https://*.trusted.dev"},
		},
	}

	if !IsAllowedOrigin("https://gallery.example.com") {
		t.Error("configured origin rejected")
	}
	if !IsAllowedOrigin("https://app.trusted.dev") {
		t.Error("wildcard subdomain rejected")
	}
	if IsAllowedOrigin("https://stranger.example.org") {
		t.Error("unknown origin accepted")
	}
	if IsAllowedOrigin("") {
		t.Error("empty origin accepted")
	}
}
