package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager saves downloaded media into one directory
type Manager struct {
	outputDir string
	saved     int
	mu        sync.Mutex
}

// NewManager creates the output directory if needed
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{outputDir: outputDir}, nil
}

// Path returns the full path for filename inside the output directory
func (m *Manager) Path(filename string) string {
	return filepath.Join(m.outputDir, filename)
}

// Exists reports whether filename is already present
func (m *Manager) Exists(filename string) bool {
	_, err := os.Stat(m.Path(filename))
	return err == nil
}

// SaveMedia writes r to filename atomically and returns the final path.
// Safe for concurrent use with distinct filenames.
func (m *Manager) SaveMedia(r io.Reader, filename string) (string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid media filename %q", filename)
	}

	dest := m.Path(filename)
	err := WriteAtomic(dest, 0644, func(w io.Writer) error {
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("failed to save media data: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.saved++
	m.mu.Unlock()
	return dest, nil
}

// SavedCount returns the number of files written by this manager
func (m *Manager) SavedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// MediaFilename builds "(author)[twitter]<id>_<YYYYMMDD>.<ext>" from a media
// URL. The id is the last path element without its extension, with "-" and
// "_" removed. A zero postedAt drops the date suffix.
func MediaFilename(author, mediaURL string, postedAt time.Time) string {
	base := mediaURL
	if u, err := url.Parse(mediaURL); err == nil && u.Path != "" {
		base = u.Path
	}
	base = path.Base(base)

	ext := path.Ext(base)
	id := strings.TrimSuffix(base, ext)
	id = strings.NewReplacer("-", "", "_", "").Replace(id)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}

	author = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return -1
		}
		return r
	}, author)

	name := fmt.Sprintf("(%s)[twitter]%s", author, id)
	if !postedAt.IsZero() {
		name += "_" + postedAt.UTC().Format("20060102")
	}
	return name + "." + ext
}
