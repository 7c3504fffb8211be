package gallery

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"miogallery/internal/access"
	"miogallery/internal/meta"
	"miogallery/internal/pipeline"
)

var (
	// ErrNotFound covers both "does not exist" and "exists but the
	// caller may not see it". Collapsing the two keeps private images
	// unprobeable.
	ErrNotFound = errors.New("image not found")

	// ErrForbidden: the caller explicitly named a scope it cannot
	// read (a locked album, or "all" without admin). Distinguishable
	// because the caller already knew the name.
	ErrForbidden = errors.New("access denied")
)

// Filter names the listing scope. Album is "" (public plus whatever the
// session unlocked), "public", "all" (admin only), or an album id.
type Filter struct {
	Start    time.Time
	End      time.Time
	HasStart bool
	HasEnd   bool
	Album    string
}

// Engine answers gallery queries: filesystem truth joined with the
// metadata document, filtered by what the caller may see.
type Engine struct {
	repo  Repository
	store *meta.Store
	descs *meta.Descriptions
}

func NewEngine(repo Repository, store *meta.Store, descs *meta.Descriptions) *Engine {
	return &Engine{repo: repo, store: store, descs: descs}
}

// List returns the visible gallery entries, pinned images first, then
// newest display date first, ties broken by id.
func (e *Engine) List(f Filter, caller access.Caller) ([]ImageSummary, error) {
	if f.Album == "all" && !caller.Admin {
		return nil, ErrForbidden
	}

	doc := e.store.Load()

	// A caller naming a locked album it hasn't unlocked gets a plain
	// refusal; an unknown album id just matches nothing.
	if f.Album != "" && f.Album != "all" && f.Album != "public" {
		if !access.CanAccessAlbum(doc, f.Album, caller) {
			return nil, ErrForbidden
		}
	}

	images, err := e.repo.ListImages()
	if err != nil {
		return nil, err
	}

	out := []ImageSummary{}
	for i := range images {
		img := &images[i]
		albumID := doc.AlbumOf(img.ID)

		switch f.Album {
		case "public":
			if albumID != "" {
				continue
			}
		case "all":
			// admin verified above, no scope filter
		case "":
			if albumID != "" && !caller.HasUnlocked(albumID) {
				continue
			}
		default:
			if albumID != f.Album {
				continue
			}
		}

		s := e.summarize(img, doc, albumID)

		if f.HasStart || f.HasEnd {
			day, err := time.ParseInLocation("2006-01-02", s.Date, time.Local)
			if err != nil {
				continue
			}
			if f.HasStart && day.Before(f.Start) {
				continue
			}
			if f.HasEnd && day.After(f.End) {
				continue
			}
		}

		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Get returns one entry. Inaccessible and nonexistent look identical.
func (e *Engine) Get(id string, caller access.Caller) (*ImageSummary, error) {
	files, err := e.repo.FindByID(id)
	if err != nil {
		return nil, ErrNotFound
	}

	doc := e.store.Load()
	if !access.CanAccessImage(doc, id, caller) {
		return nil, ErrNotFound
	}

	s := e.summarize(files, doc, doc.AlbumOf(id))
	return &s, nil
}

// summarize builds the API entry for one stored image. Display date
// priority: metadata override, then the id's embedded timestamp, then
// the first day of the storage month.
func (e *Engine) summarize(img *ImageFiles, doc *meta.Document, albumID string) ImageSummary {
	s := ImageSummary{
		ID:     img.ID,
		Thumb:  fmt.Sprintf("/api/thumb/%s.webp", img.ID),
		Pinned: doc.Pinned[img.ID],
		Album:  albumID,
	}

	if t, ok := doc.DisplayTime(img.ID); ok {
		s.Date = t.Format("2006-01-02")
		s.Datetime = t.Format(meta.DisplayTimeLayout)
	} else if t, ok := pipeline.TimestampFromID(img.ID); ok {
		s.Date = t.Format("2006-01-02")
		s.Datetime = t.Format(meta.DisplayTimeLayout)
	} else {
		s.Date = fmt.Sprintf("%s-%s-01", img.Year, img.Month)
	}

	if img.PathByExt("webp") != "" {
		s.Webp = fmt.Sprintf("/api/images/%s/%s/%s.webp", img.Year, img.Month, img.ID)
	}
	if img.PathByExt("avif") != "" {
		s.Avif = fmt.Sprintf("/api/images/%s/%s/%s.avif", img.Year, img.Month, img.ID)
	}

	if e.descs != nil {
		s.Description = e.descs.Get(img.ID)
	}
	return s
}
