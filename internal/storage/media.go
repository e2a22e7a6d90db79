package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MediaCatalog tracks the files referenced by messages and owns the
// permanent media directory they live in.
type MediaCatalog struct {
	store *Store
	dir   string
}

// NewMediaCatalog prepares the permanent media directory.
func NewMediaCatalog(store *Store, dir string) (*MediaCatalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &MediaCatalog{store: store, dir: dir}, nil
}

// Dir returns the permanent media directory.
func (c *MediaCatalog) Dir() string { return c.dir }

// Refs lists all catalogued media locations.
func (c *MediaCatalog) Refs() ([]string, error) {
	raw, ok, err := c.store.Get(KeyMedia)
	if err != nil || !ok {
		return nil, err
	}
	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		return nil, fmt.Errorf("corrupt media catalog: %w", err)
	}
	return refs, nil
}

// Add records a media location, ignoring duplicates.
func (c *MediaCatalog) Add(ref string) error {
	refs, err := c.Refs()
	if err != nil {
		return err
	}
	for _, existing := range refs {
		if existing == ref {
			return nil
		}
	}
	refs = append(refs, ref)
	data, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	return c.store.Set(KeyMedia, string(data))
}

// Import copies an external file into the permanent media directory and
// catalogues the new location, which is returned.
func (c *MediaCatalog) Import(src string) (string, error) {
	name := sanitizeName(filepath.Base(src))
	if name == "" {
		name = "media.bin"
	}
	dst := filepath.Join(c.dir, name)
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	if err := c.Add(dst); err != nil {
		return "", err
	}
	return dst, nil
}

func sanitizeName(name string) string {
	cleaned := strings.TrimSpace(filepath.Base(name))
	if cleaned == "" || cleaned == "." || cleaned == string(filepath.Separator) {
		return ""
	}
	return cleaned
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
