// Package meta manages the gallery's shared metadata: a single JSON
// document at {photoDir}/.meta.json holding pin flags, display
// datetimes, album definitions and image→album assignments, plus
// per-image description text files under {photoDir}/description/.
package meta

import (
	"fmt"
	"time"

	"miogallery/pkg/utils"
)

// DisplayTimeLayout is the format of datetime values stored in the
// document and echoed in API responses.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// Album is a named, optionally password-protected grouping of images.
// An album without a password hash is browsable by anyone.
type Album struct {
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Document is the whole metadata document. Every mutation is a
// read-modify-write of the full document; the store never patches
// individual fields.
type Document struct {
	// Pinned maps image id -> true. Absence means not pinned.
	Pinned map[string]bool `json:"pinned,omitempty"`

	// Datetime maps image id -> authoritative display time
	// ("2006-01-02 15:04:05").
	Datetime map[string]string `json:"datetime,omitempty"`

	// Albums maps album id (slug) -> album definition.
	Albums map[string]Album `json:"albums,omitempty"`

	// ImageAlbum maps image id -> album id. A missing entry, or one
	// pointing at a deleted album, means the image is public.
	ImageAlbum map[string]string `json:"image_album,omitempty"`
}

// ensureMaps makes all maps non-nil so callers can assign freely.
func (d *Document) ensureMaps() {
	if d.Pinned == nil {
		d.Pinned = make(map[string]bool)
	}
	if d.Datetime == nil {
		d.Datetime = make(map[string]string)
	}
	if d.Albums == nil {
		d.Albums = make(map[string]Album)
	}
	if d.ImageAlbum == nil {
		d.ImageAlbum = make(map[string]string)
	}
}

// AlbumOf resolves the album assignment for an image. References to
// albums that no longer exist are normalized to "no album" so that a
// deleted album never hides its former images.
func (d *Document) AlbumOf(imageID string) string {
	albumID, ok := d.ImageAlbum[imageID]
	if !ok || albumID == "" {
		return ""
	}
	if _, exists := d.Albums[albumID]; !exists {
		return ""
	}
	return albumID
}

// DisplayTime returns the stored display time for an image, if any.
func (d *Document) DisplayTime(imageID string) (time.Time, bool) {
	s, ok := d.Datetime[imageID]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DisplayTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// RemoveImage drops every entry keyed by the image id. Called when the
// image itself is deleted so no orphaned metadata lingers.
func (d *Document) RemoveImage(imageID string) {
	delete(d.Pinned, imageID)
	delete(d.Datetime, imageID)
	delete(d.ImageAlbum, imageID)
}

// AddAlbum creates an album keyed by a slug of its name. Slug
// collisions get a numeric suffix ("holiday", "holiday-2", ...).
func (d *Document) AddAlbum(name, passwordHash string, createdAt time.Time) string {
	d.ensureMaps()

	base := utils.Slugify(name)
	if base == "" {
		base = "album"
	}

	id := base
	for n := 2; ; n++ {
		if _, taken := d.Albums[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}

	d.Albums[id] = Album{
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt.Format(DisplayTimeLayout),
	}
	return id
}

// RemoveAlbum deletes an album definition and unsets (not deletes) any
// image assignments pointing at it, returning how many were unset.
func (d *Document) RemoveAlbum(albumID string) int {
	delete(d.Albums, albumID)

	unset := 0
	for imageID, a := range d.ImageAlbum {
		if a == albumID {
			delete(d.ImageAlbum, imageID)
			unset++
		}
	}
	return unset
}
