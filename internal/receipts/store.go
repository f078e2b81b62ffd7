// Package receipts stores receipt images on disk. Refs handed out here
// are opaque to the rest of the system; expenses only record them.
package receipts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kharcha/internal/core"
)

// allowedExtensions is the canonical allow-list for receipt uploads.
// PDF was floated at one point but image-only is what the upload form
// ever accepted, so it stays out.
var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"bmp":  true,
}

// Store persists receipt artifacts under a single directory with
// generated names of the form <userID>_<hex>.<ext>.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// AllowedExtension reports whether filename carries a permitted extension.
func AllowedExtension(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	return allowedExtensions[ext]
}

// Save stores the uploaded bytes and returns an opaque ref. The original
// filename is only consulted for its extension.
func (s *Store) Save(userID int64, r io.Reader, filename string) (string, error) {
	if !AllowedExtension(filename) {
		return "", core.ErrExtensionNotAllowed
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate receipt name: %w", err)
	}
	ref := fmt.Sprintf("%d_%s.%s", userID, hex.EncodeToString(buf), ext)

	f, err := os.Create(filepath.Join(s.dir, ref))
	if err != nil {
		return "", fmt.Errorf("create receipt file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write receipt file: %w", err)
	}
	return ref, nil
}

// Open returns the stored bytes for serving. Unknown refs report
// core.ErrNotFound.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("open receipt: %w", err)
	}
	return f, nil
}

// Delete removes a stored artifact. A missing file is not an error so
// repeated cleanup attempts stay idempotent.
func (s *Store) Delete(ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete receipt: %w", err)
	}
	return nil
}

// List enumerates stored refs with their modification times, oldest
// first. Used by the orphan sweep.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload directory: %w", err)
	}
	var out []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if _, ok := err.(*fs.PathError); ok {
				continue // removed between ReadDir and Info
			}
			return nil, fmt.Errorf("stat receipt %s: %w", entry.Name(), err)
		}
		out = append(out, Artifact{Ref: entry.Name(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Artifact is a stored receipt file as seen by the sweep.
type Artifact struct {
	Ref     string
	ModTime time.Time
}

// path validates a ref and resolves it inside the store directory.
// Anything that is not a bare generated filename is rejected.
func (s *Store) path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		slog.Warn("Rejected suspicious receipt ref", "ref", ref)
		return "", core.ErrNotFound
	}
	return filepath.Join(s.dir, ref), nil
}
