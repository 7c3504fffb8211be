package meta

import (
	"os"
	"path/filepath"
	"strings"
)

const descriptionDirName = "description"

// Descriptions stores free-text per image id, one file per image under
// {photoDir}/description/{id}.txt. Stored independently of the metadata
// document on purpose: large text edits should not rewrite the whole
// document.
type Descriptions struct {
	dir string
}

func NewDescriptions(photoDir string) *Descriptions {
	return &Descriptions{dir: filepath.Join(photoDir, descriptionDirName)}
}

func (d *Descriptions) path(imageID string) string {
	// image ids come from filename stems we generated; strip any path
	// elements a hostile caller may have smuggled in.
	return filepath.Join(d.dir, filepath.Base(imageID)+".txt")
}

// Get returns the description text, or "" when none exists.
func (d *Descriptions) Get(imageID string) string {
	data, err := os.ReadFile(d.path(imageID))
	if err != nil {
		return ""
	}
	return string(data)
}

// Set writes the description. An empty or whitespace-only text is
// equivalent to absence: the file is removed, never written empty.
func (d *Descriptions) Set(imageID, text string) error {
	p := d.path(imageID)

	text = strings.TrimSpace(text)
	if text == "" {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if err := os.MkdirAll(d.dir, 0750); err != nil {
		return err
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0640); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Delete removes the description file, tolerating absence.
func (d *Descriptions) Delete(imageID string) {
	_ = os.Remove(d.path(imageID))
}
