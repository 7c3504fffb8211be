package handlers

import (
	"crypto/subtle"
	"encoding/gob"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"miogallery/internal/access"
	"miogallery/pkg/logger"
	"miogallery/pkg/utils"
)

const sessionName = "mio_session"

func init() {
	// The unlocked-album list is stored in the session as []string.
	gob.Register([]string(nil))
}

// caller reconstructs the request's capability from the session cookie.
// Any cookie problem (missing, expired, tampered) degrades to anonymous.
func (s *Server) caller(r *http.Request) access.Caller {
	sess, err := s.sessions.Get(r, sessionName)
	if err != nil || sess == nil {
		return access.Anonymous()
	}

	c := access.Caller{Unlocked: make(map[string]bool)}
	if admin, ok := sess.Values["is_admin"].(bool); ok {
		c.Admin = admin
	}
	if ids, ok := sess.Values["unlocked"].([]string); ok {
		for _, id := range ids {
			c.Unlocked[id] = true
		}
	}
	return c
}

// requireAdmin guards mutating endpoints. Anonymous callers get 401,
// never a hint about what the endpoint would have done.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.caller(r).Admin {
			utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthRequired, "Admin authentication required.")
			return
		}
		next(w, r)
	}
}

// Password attempts (login and album unlock) get their own per-IP
// limiter, much stricter than the global request limiter.
var (
	attemptMu       sync.Mutex
	attemptLimiters = make(map[string]*rate.Limiter)
)

func allowAttempt(ip string) bool {
	attemptMu.Lock()
	defer attemptMu.Unlock()

	lim, ok := attemptLimiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Every(6*time.Second), 5)
		attemptLimiters[ip] = lim
	}
	return lim.Allow()
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := utils.GetRealIP(r)
	if !allowAttempt(ip) {
		utils.WriteError(w, http.StatusTooManyRequests, utils.ErrAuthRateLimitExceed, "Too many login attempts. Slow down.")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "A 'password' field is required.")
		return
	}

	if !s.checkAdminPassword(req.Password) {
		logger.LogWarn("Auth: failed admin login from %s", ip)
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthInvalid, "Invalid password.")
		return
	}

	sess, _ := s.sessions.Get(r, sessionName)
	sess.Values["is_admin"] = true
	if err := sess.Save(r, w); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to establish session.")
		return
	}

	logger.LogSuccess("Auth: admin login from %s", ip)
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"admin": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.sessions.Get(r, sessionName)
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to clear session.")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"admin": false})
}

// checkAdminPassword verifies against the bcrypt hash when configured,
// falling back to a constant-time plaintext compare in development.
func (s *Server) checkAdminPassword(password string) bool {
	if s.adminHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.adminHash), []byte(password)) == nil
	}
	if s.adminPlain != "" {
		return subtle.ConstantTimeCompare([]byte(s.adminPlain), []byte(password)) == 1
	}
	return false
}
