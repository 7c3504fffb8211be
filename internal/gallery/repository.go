package gallery

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrImageNotFound: no stored file matches the image id.
var ErrImageNotFound = errors.New("image not found")

var (
	yearDirPattern  = regexp.MustCompile(`^\d{4}$`)
	monthDirPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
)

// ImageFiles groups the stored files that share one image id: the
// derivatives and, for RAW uploads, the original.
type ImageFiles struct {
	ID    string
	Year  string
	Month string
	Paths []string // absolute paths, sorted
}

// PathByExt returns the sibling with the given extension, or "".
func (f *ImageFiles) PathByExt(ext string) string {
	suffix := "." + strings.ToLower(ext)
	for _, p := range f.Paths {
		if strings.ToLower(filepath.Ext(p)) == suffix {
			return p
		}
	}
	return ""
}

// Repository enumerates and removes stored images. The filesystem is
// the source of truth for which images exist; metadata only annotates.
type Repository interface {
	ListImages() ([]ImageFiles, error)
	FindByID(id string) (*ImageFiles, error)
	Delete(id string) ([]string, error)
}

// FSRepository reads the {root}/{YYYY}/{MM}/ layout. Dotfiles and the
// side directories (thumb, download, description) are invisible to it.
type FSRepository struct {
	root string
}

func NewFSRepository(root string) *FSRepository {
	return &FSRepository{root: root}
}

// ListImages walks every year/month directory and groups files by stem.
// A missing or empty root is an empty gallery, not an error.
func (r *FSRepository) ListImages() ([]ImageFiles, error) {
	years, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []ImageFiles
	for _, y := range years {
		if !y.IsDir() || !yearDirPattern.MatchString(y.Name()) {
			continue
		}
		months, err := os.ReadDir(filepath.Join(r.root, y.Name()))
		if err != nil {
			continue
		}
		for _, m := range months {
			if !m.IsDir() || !monthDirPattern.MatchString(m.Name()) {
				continue
			}
			out = append(out, r.scanMonth(y.Name(), m.Name())...)
		}
	}
	return out, nil
}

func (r *FSRepository) scanMonth(year, month string) []ImageFiles {
	dir := filepath.Join(r.root, year, month)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	groups := make(map[string]*ImageFiles)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if stem == "" {
			continue
		}
		g, ok := groups[stem]
		if !ok {
			g = &ImageFiles{ID: stem, Year: year, Month: month}
			groups[stem] = g
		}
		g.Paths = append(g.Paths, filepath.Join(dir, name))
	}

	out := make([]ImageFiles, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.Paths)
		out = append(out, *g)
	}
	return out
}

// FindByID locates the files for one image. Ids carrying our timestamp
// prefix resolve without a full walk; anything else falls back to the
// complete scan.
func (r *FSRepository) FindByID(id string) (*ImageFiles, error) {
	if id == "" || id != filepath.Base(id) {
		return nil, ErrImageNotFound
	}

	if len(id) >= 6 && yearDirPattern.MatchString(id[:4]) && monthDirPattern.MatchString(id[4:6]) {
		if g := r.findInMonth(id[:4], id[4:6], id); g != nil {
			return g, nil
		}
	}

	all, err := r.ListImages()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, ErrImageNotFound
}

func (r *FSRepository) findInMonth(year, month, id string) *ImageFiles {
	for _, g := range r.scanMonth(year, month) {
		if g.ID == id {
			found := g
			return &found
		}
	}
	return nil
}

// Delete removes every stored file for the image and returns the paths
// it removed.
func (r *FSRepository) Delete(id string) ([]string, error) {
	files, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, p := range files.Paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}
