package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"miogallery/internal/config"
)

// CorsMiddleware handles Cross-Origin Resource Sharing with wildcard
// subdomain support.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		requestOrigin := r.Header.Get("Origin")
		origin := requestOrigin
		if origin == "" {
			origin = r.Header.Get("Referer")
		}

		if IsAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", requestOrigin)
			w.Header().Set("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	cleanOrigin := getCleanOrigin(origin)
	for _, pattern := range config.AppConfig.Security.CorsOrigins {
		if MatchOrigin(cleanOrigin, pattern) {
			return true
		}
	}
	return false
}

func getCleanOrigin(originURL string) string {
	u, err := url.Parse(originURL)
	if err != nil {
		return originURL
	}
	if u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return originURL
}

func MatchOrigin(origin, pattern string) bool {
	// Pattern "*" accepts everything
	if pattern == "*" {
		return true
	}

	// Exact match
	if origin == pattern {
		return true
	}

	// "**.example.com" (main domain + subdomains)
	if strings.Contains(pattern, "**.") {
		base := strings.Replace(pattern, "**.", "", 1)
		if origin == base {
			return true
		}
		domainPart := removeProtocol(base)
		if strings.HasSuffix(origin, "."+domainPart) {
			return true
		}
	}

	// "*.example.com" (subdomains only)
	if strings.Contains(pattern, "*.") {
		parts := strings.Split(pattern, "*")
		if len(parts) == 2 {
			prefix := parts[0]
			suffix := parts[1]
			if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				middle := origin[len(prefix) : len(origin)-len(suffix)]
				if !strings.Contains(middle, "/") {
					return true
				}
			}
		}
	}

	return false
}

func removeProtocol(urlStr string) string {
	urlStr = strings.TrimPrefix(urlStr, "https://")
	return strings.TrimPrefix(urlStr, "http://")
}
