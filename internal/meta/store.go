package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"miogallery/pkg/logger"
)

const metaFileName = ".meta.json"

// Store reads and writes the metadata document. Load and Save operate
// on the whole document; Update wraps the two in a read-modify-write
// guarded by an in-process mutex.
//
// The mutex does not protect against other processes editing the file:
// a concurrent external writer can still be lost (last writer wins).
// Single-admin usage makes this an accepted gap, not something this
// layer papers over.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(photoDir string) *Store {
	return &Store{path: filepath.Join(photoDir, metaFileName)}
}

// Load reads the document from disk. A missing file yields an empty
// document. So does a malformed one: corruption is logged loudly and
// the previous state is dropped rather than failing every request.
func (s *Store) Load() *Document {
	doc := &Document{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.LogWarn("Metadata: cannot read %s: %v (starting empty)", s.path, err)
		}
		doc.ensureMaps()
		return doc
	}

	if err := json.Unmarshal(data, doc); err != nil {
		logger.LogError("Metadata: %s is corrupt: %v — DISCARDING previous metadata", s.path, err)
		doc = &Document{}
	}

	doc.ensureMaps()
	return doc
}

// Save serializes the full document to a temp file and atomically
// renames it over the real path, so readers never observe a torn file.
func (s *Store) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return fmt.Errorf("write metadata temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace metadata file: %w", err)
	}
	return nil
}

// Update performs a read-modify-write of the whole document. The
// mutation function may return an error to abort without saving.
func (s *Store) Update(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.Load()
	if err := fn(doc); err != nil {
		return err
	}
	return s.Save(doc)
}
