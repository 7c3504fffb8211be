// Package access decides what a caller may see. The rules are layered:
// admins see everything through explicitly privileged paths, album
// passwords unlock private albums for the lifetime of a session, and
// everything without a (resolvable) album assignment is public.
package access

import (
	"errors"
	"sort"

	"golang.org/x/crypto/bcrypt"

	"miogallery/internal/meta"
)

var (
	// ErrInvalidPassword: an unlock attempt matched no album.
	ErrInvalidPassword = errors.New("password matched no album")

	// ErrAlbumNotFound: an operation referenced a non-existent album id.
	ErrAlbumNotFound = errors.New("album not found")
)

// Caller is the capability attached to one request: the admin flag and
// the set of albums this session has unlocked. It is built from the
// session by the HTTP layer and passed explicitly; nothing below the
// handlers reads ambient session state.
type Caller struct {
	Admin    bool
	Unlocked map[string]bool
}

// Anonymous returns a caller with no privileges.
func Anonymous() Caller {
	return Caller{}
}

func (c Caller) HasUnlocked(albumID string) bool {
	return c.Unlocked[albumID]
}

// CanAccessAlbum reports whether the caller may read the given album's
// contents. An unknown album id is treated as public ("no album"): this
// keeps images pointing at deleted albums visible instead of orphaned.
//
// Note the admin flag grants access here because this check guards
// reads the caller addressed by name. The public listing path must NOT
// consult the admin flag to widen its result set; that separation lives
// in the query engine.
func CanAccessAlbum(doc *meta.Document, albumID string, caller Caller) bool {
	if albumID == "" {
		return true
	}
	album, exists := doc.Albums[albumID]
	if !exists {
		return true // orphaned reference, normalized to public
	}
	if album.PasswordHash == "" {
		return true
	}
	if caller.Admin {
		return true
	}
	return caller.HasUnlocked(albumID)
}

// CanAccessImage applies the album rule to the image's (normalized)
// assignment.
func CanAccessImage(doc *meta.Document, imageID string, caller Caller) bool {
	return CanAccessAlbum(doc, doc.AlbumOf(imageID), caller)
}

// Unlock checks the password against every album that has one and
// returns the ids of all matches, sorted for determinism. Password
// reuse across albums is allowed and all matches unlock in one call.
// Zero matches is ErrInvalidPassword.
func Unlock(doc *meta.Document, password string) ([]string, error) {
	var matched []string
	for id, album := range doc.Albums {
		if album.PasswordHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(album.PasswordHash), []byte(password)) == nil {
			matched = append(matched, id)
		}
	}
	if len(matched) == 0 {
		return nil, ErrInvalidPassword
	}
	sort.Strings(matched)
	return matched, nil
}

// HashPassword produces the one-way hash stored in album definitions.
// Plaintext passwords are never stored or compared directly.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
