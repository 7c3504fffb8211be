// Package gallery scans the photo tree and answers listing and lookup
// queries with access control and metadata applied.
package gallery

// ImageSummary is the API shape of one gallery entry.
type ImageSummary struct {
	ID          string `json:"id"`
	Date        string `json:"date"`               // display date, "2006-01-02"
	Datetime    string `json:"datetime,omitempty"` // full display time when known
	Thumb       string `json:"thumb"`
	Webp        string `json:"webp,omitempty"`
	Avif        string `json:"avif,omitempty"`
	Pinned      bool   `json:"pinned"`
	Album       string `json:"album,omitempty"`
	Description string `json:"description,omitempty"`
}
