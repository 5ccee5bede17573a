// Package linksink records posts whose media lives outside the platform's
// own CDN, for manual follow-up. The file is append only, one URL per line.
package linksink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	likeerrors "likesync/pkg/errors"
)

// Sink appends post URLs to a per-user text file
type Sink struct {
	path string
}

// New returns a sink writing to path. The file is created on first Append.
func New(path string) *Sink {
	return &Sink{path: path}
}

// Path returns the file the sink appends to
func (s *Sink) Path() string { return s.path }

// Append writes url as one line. Every call opens, writes, syncs and closes
// the file so an aborted run never loses an entry already reported.
func (s *Sink) Append(url string) error {
	if url == "" || strings.ContainsAny(url, "\r\n") {
		return fmt.Errorf("invalid external link %q", url)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return &likeerrors.PersistWriteError{Path: s.path, Op: "mkdir", Err: err}
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &likeerrors.PersistWriteError{Path: s.path, Op: "open", Err: err}
	}

	if _, err := file.WriteString(url + "\n"); err != nil {
		file.Close()
		return &likeerrors.PersistWriteError{Path: s.path, Op: "write", Err: err}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return &likeerrors.PersistWriteError{Path: s.path, Op: "sync", Err: err}
	}
	if err := file.Close(); err != nil {
		return &likeerrors.PersistWriteError{Path: s.path, Op: "close", Err: err}
	}
	return nil
}

// Lines returns every recorded URL in append order. A missing file is empty.
func (s *Sink) Lines() ([]string, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open external links: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
