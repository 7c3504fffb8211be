package utils

import (
	"strings"
	"unicode"
)

// Slugify derives a URL-safe identifier from a display name.
// Letters are lowercased, runs of separators collapse to a single dash,
// and anything outside [a-z0-9-_] is dropped.
func Slugify(name string) string {
	var sb strings.Builder
	lastDash := true // suppress a leading dash

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			sb.WriteRune(r)
			lastDash = false
		case r == '-' || unicode.IsSpace(r) || r == '.' || r == '/':
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.TrimRight(sb.String(), "-")
}

// IsValidSlug checks if the string contains only allowed characters.
// Allowed: a-z, 0-9, -, _
// Performance: O(n) - No Regex overhead.
func IsValidSlug(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}
