package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"miogallery/internal/access"
	"miogallery/internal/meta"
	"miogallery/pkg/logger"
	"miogallery/pkg/utils"
)

type albumView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Locked    bool   `json:"locked"`
	Unlocked  bool   `json:"unlocked"`
	Images    int    `json:"images"`
	CreatedAt string `json:"created_at,omitempty"`
}

// handleListAlbums lists the albums the caller is allowed to know
// about: open albums for everyone, locked ones only once unlocked (or
// for the admin).
func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	caller := s.caller(r)
	doc := s.store.Load()

	counts := make(map[string]int)
	for imageID := range doc.ImageAlbum {
		if albumID := doc.AlbumOf(imageID); albumID != "" {
			counts[albumID]++
		}
	}

	albums := []albumView{}
	for id, album := range doc.Albums {
		locked := album.PasswordHash != ""
		unlocked := !locked || caller.Admin || caller.HasUnlocked(id)
		if locked && !unlocked {
			continue
		}
		albums = append(albums, albumView{
			ID:        id,
			Name:      album.Name,
			Locked:    locked,
			Unlocked:  unlocked,
			Images:    counts[id],
			CreatedAt: album.CreatedAt,
		})
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].ID < albums[j].ID })

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total":  len(albums),
		"albums": albums,
	})
}

func (s *Server) handleCreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "A non-empty 'name' field is required.")
		return
	}

	passwordHash := ""
	if req.Password != "" {
		var err error
		passwordHash, err = access.HashPassword(req.Password)
		if err != nil {
			utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to hash album password.")
			return
		}
	}

	var id string
	if err := s.store.Update(func(doc *meta.Document) error {
		id = doc.AddAlbum(strings.TrimSpace(req.Name), passwordHash, time.Now())
		return nil
	}); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to create album.")
		return
	}

	logger.LogInfo("Albums: created '%s' (locked: %v)", id, passwordHash != "")
	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"name":   strings.TrimSpace(req.Name),
		"locked": passwordHash != "",
	})
}

func (s *Server) handleDeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !utils.IsValidSlug(id) {
		utils.WriteError(w, http.StatusNotFound, utils.ErrAlbumNotFound, "Album does not exist.")
		return
	}

	var unset int
	if err := s.store.Update(func(doc *meta.Document) error {
		if _, ok := doc.Albums[id]; !ok {
			return access.ErrAlbumNotFound
		}
		unset = doc.RemoveAlbum(id)
		return nil
	}); err != nil {
		if errors.Is(err, access.ErrAlbumNotFound) {
			utils.WriteError(w, http.StatusNotFound, utils.ErrAlbumNotFound, "Album does not exist.")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to delete album.")
		return
	}

	logger.LogInfo("Albums: deleted '%s' (%d images released)", id, unset)
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":           id,
		"deleted":      true,
		"images_unset": unset,
	})
}

// handleUnlockAlbums checks a password against every locked album and
// adds all matches to the session. Password attempts share the strict
// limiter with login.
func (s *Server) handleUnlockAlbums(w http.ResponseWriter, r *http.Request) {
	ip := utils.GetRealIP(r)
	if !allowAttempt(ip) {
		utils.WriteError(w, http.StatusTooManyRequests, utils.ErrAuthRateLimitExceed, "Too many unlock attempts. Slow down.")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "A 'password' field is required.")
		return
	}

	doc := s.store.Load()
	matched, err := access.Unlock(doc, req.Password)
	if err != nil {
		logger.LogWarn("Albums: failed unlock attempt from %s", ip)
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAlbumBadUnlock, "Password does not match any album.")
		return
	}

	sess, _ := s.sessions.Get(r, sessionName)
	merged := make(map[string]bool)
	if existing, ok := sess.Values["unlocked"].([]string); ok {
		for _, a := range existing {
			merged[a] = true
		}
	}
	for _, a := range matched {
		merged[a] = true
	}
	unlocked := make([]string, 0, len(merged))
	for a := range merged {
		unlocked = append(unlocked, a)
	}
	sort.Strings(unlocked)

	sess.Values["unlocked"] = unlocked
	if err := sess.Save(r, w); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to save session.")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"unlocked": unlocked})
}

// handleLockAlbums drops every album unlock from the session. The admin
// flag, if present, survives.
func (s *Server) handleLockAlbums(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.sessions.Get(r, sessionName)
	delete(sess.Values, "unlocked")
	if err := sess.Save(r, w); err != nil {
		utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Failed to save session.")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"unlocked": []string{}})
}
