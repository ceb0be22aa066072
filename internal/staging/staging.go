// Package staging materializes downloaded media on disk before it is hashed and uploaded.
//
// A job either keeps its files under a per-job directory (persistent staging) or writes each
// item to a temporary file that is removed as soon as the item finishes.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Archive mirrors persisted staging files to durable storage.
type Archive interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Area owns the staging root directory.
type Area struct {
	root    string
	archive Archive
}

// NewArea returns an Area rooted at root. archive may be nil.
func NewArea(root string, archive Archive) *Area {
	return &Area{root: root, archive: archive}
}

// Slot is one materialized item on disk.
type Slot struct {
	Path       string
	Size       int64
	Persistent bool
	jobID      string
	name       string
}

// Release removes a transient slot. Persistent slots are kept.
func (s *Slot) Release() error {
	if s == nil || s.Persistent {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staging file: %w", err)
	}
	return nil
}

// Materialize writes r to disk. With persist set the file lands in <root>/<jobID>/<key>-<filename>
// and survives the item; otherwise it is a temporary file the caller must [Slot.Release].
func (a *Area) Materialize(jobID, key, filename string, persist bool, r io.Reader) (*Slot, error) {
	var (
		f    *os.File
		err  error
		name = sanitize(key) + "-" + sanitize(filename)
	)

	if persist {
		dir := filepath.Join(a.root, sanitize(jobID))
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
		f, err = os.Create(filepath.Join(dir, name))
	} else {
		f, err = os.CreateTemp("", "immport-*-"+sanitize(filename))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	slot := &Slot{Path: f.Name(), Persistent: persist, jobID: jobID, name: name}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(slot.Path)
		return nil, fmt.Errorf("failed to write staging file: %w", copyErr)
	}

	slot.Size = n
	return slot, nil
}

// Mirror uploads a persistent slot to the archive. It is a no-op without an archive
// or for transient slots.
func (a *Area) Mirror(ctx context.Context, slot *Slot, contentType string) error {
	if a.archive == nil || slot == nil || !slot.Persistent {
		return nil
	}

	f, err := os.Open(slot.Path)
	if err != nil {
		return fmt.Errorf("failed to open staging file: %w", err)
	}
	defer f.Close()

	key := path.Join(sanitize(slot.jobID), slot.name)
	if err := a.archive.Put(ctx, key, f, contentType); err != nil {
		return fmt.Errorf("failed to mirror %s: %w", key, err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(filepath.Base(strings.TrimSpace(s)), "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "item"
	}
	if len(s) > 96 {
		s = s[len(s)-96:]
	}
	return s
}
