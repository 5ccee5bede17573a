package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	CursorFile        = "persistent_data.json"
	ShardDir          = "known_posts"
	SQLiteFile        = "known_posts.db"
	ExternalLinksFile = "external_urls.txt"
)

// Layout resolves the paths of one user's state directory
type Layout struct {
	root string
}

// NewLayout returns the layout for userID under base
func NewLayout(base, userID string) (Layout, error) {
	if userID == "" {
		return Layout{}, fmt.Errorf("user id is required")
	}
	if filepath.Base(userID) != userID || userID == "." || userID == ".." {
		return Layout{}, fmt.Errorf("invalid user id %q", userID)
	}
	return Layout{root: filepath.Join(base, userID)}, nil
}

// Ensure creates the user directory
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.root, 0755); err != nil {
		return fmt.Errorf("failed to create user directory: %w", err)
	}
	return nil
}

func (l Layout) Root() string              { return l.root }
func (l Layout) CursorPath() string        { return filepath.Join(l.root, CursorFile) }
func (l Layout) ShardDir() string          { return filepath.Join(l.root, ShardDir) }
func (l Layout) SQLitePath() string        { return filepath.Join(l.root, SQLiteFile) }
func (l Layout) ExternalLinksPath() string { return filepath.Join(l.root, ExternalLinksFile) }

// ImagesDir is the media folder; an absolute folder is used as is
func (l Layout) ImagesDir(folder string) string {
	if filepath.IsAbs(folder) {
		return folder
	}
	return filepath.Join(l.root, folder)
}
