package utils

import (
	"encoding/json"
	"net/http"
)

const (
	// Request Error Codes
	ErrRequestInvalid           = "request/invalid_parameters"
	ErrRequestNotFound          = "request/not_found"
	ErrRequestRateLimitExceeded = "request/rate_limit_exceeded"
	ErrRequestForbidden         = "request/forbidden"
	ErrRequestBodyTooLarge      = "request/body_too_large"
	ErrRequestUnsupportedMedia  = "request/invalid_media"

	// Auth Error Codes
	ErrAuthRequired        = "auth/authentication_required"
	ErrAuthInvalid         = "auth/invalid_credentials"
	ErrAuthRateLimitExceed = "auth/rate_limit_exceeded"

	// Server Error Codes
	ErrServerInternal = "server/internal_error"

	// Resource Error Codes
	ErrResourceNotFound = "resource/not_found"

	// Image Pipeline Error Codes
	ErrImageUnreadable       = "image/unreadable"
	ErrImageProcessingFailed = "image/processing_failed"

	// Album Error Codes
	ErrAlbumNotFound  = "album/not_found"
	ErrAlbumLocked    = "album/locked"
	ErrAlbumBadUnlock = "album/invalid_password"
)

type APIError struct {
	Code    string `json:"code"`    // e.g., "request/invalid_parameters"
	Message string `json:"message"` // User-friendly message
	Status  int    `json:"status"`  // HTTP Status Code
}

// WriteError sends a JSON formatted error response.
func WriteError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
		Status:  status,
	})
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
