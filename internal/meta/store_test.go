package meta

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())

	doc := store.Load()
	if doc == nil {
		t.Fatal("Load returned nil for missing file")
	}
	if doc.Pinned == nil || doc.Albums == nil || doc.Datetime == nil || doc.ImageAlbum == nil {
		t.Error("Load returned document with nil maps")
	}
}

func TestStoreSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	doc := store.Load()
	doc.Pinned["img-1"] = true
	doc.Datetime["img-1"] = "2024-06-15 10:30:00"
	doc.Albums["holiday"] = Album{Name: "Holiday", PasswordHash: "x"}
	doc.ImageAlbum["img-1"] = "holiday"

	if err := store.Save(doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// No temp file should linger after the atomic rename.
	if _, err := os.Stat(filepath.Join(dir, ".meta.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after Save")
	}

	got := store.Load()
	if !got.Pinned["img-1"] {
		t.Error("pin flag lost in roundtrip")
	}
	if got.Albums["holiday"].Name != "Holiday" {
		t.Error("album lost in roundtrip")
	}
	if got.AlbumOf("img-1") != "holiday" {
		t.Error("assignment lost in roundtrip")
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".meta.json"), []byte("{not json"), 0640); err != nil {
		t.Fatal(err)
	}

	doc := NewStore(dir).Load()
	if doc == nil {
		t.Fatal("Load returned nil for corrupt file")
	}
	if len(doc.Albums) != 0 || len(doc.Pinned) != 0 {
		t.Error("corrupt file produced non-empty document")
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(t.TempDir())

	if err := store.Update(func(doc *Document) error {
		doc.Pinned["img-1"] = true
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if !store.Load().Pinned["img-1"] {
		t.Error("Update did not persist mutation")
	}
}

func TestStoreUpdateAbort(t *testing.T) {
	store := NewStore(t.TempDir())
	sentinel := os.ErrPermission

	if err := store.Update(func(doc *Document) error {
		doc.Pinned["img-1"] = true
		return sentinel
	}); err != sentinel {
		t.Fatalf("Update error = %v, want sentinel", err)
	}

	if store.Load().Pinned["img-1"] {
		t.Error("aborted Update still persisted")
	}
}

func TestDescriptions(t *testing.T) {
	descs := NewDescriptions(t.TempDir())

	if got := descs.Get("img-1"); got != "" {
		t.Errorf("Get on empty store = %q", got)
	}

	if err := descs.Set("img-1", "  A lighthouse at dusk.  "); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := descs.Get("img-1"); got != "A lighthouse at dusk." {
		t.Errorf("Get = %q", got)
	}

	// Whitespace-only text removes the description entirely.
	if err := descs.Set("img-1", "   "); err != nil {
		t.Fatalf("Set empty: %v", err)
	}
	if got := descs.Get("img-1"); got != "" {
		t.Errorf("Get after clearing = %q", got)
	}

	descs.Delete("img-1") // absence tolerated
}
