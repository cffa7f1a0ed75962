// Package files stores uploaded attachments. The rest of the application
// only sees the Storage interface; the bundled implementation writes to a
// local directory served as static files.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Stored describes a saved object: the storage id used for later deletion
// and the URL clients fetch it from.
type Stored struct {
	PublicID    string
	URL         string
	ContentType string
}

// Storage saves and deletes uploaded files.
type Storage interface {
	Save(ctx context.Context, data []byte) (Stored, error)
	Delete(ctx context.Context, publicIDs []string) error
}

// LocalStorage writes objects to a directory on disk. Object names are
// generated UUIDs plus an extension sniffed from the content, so client
// filenames never touch the filesystem.
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage creates the storage directory if needed.
func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("files: failed to create storage dir: %w", err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes the object under a generated name and returns its reference.
func (s *LocalStorage) Save(ctx context.Context, data []byte) (Stored, error) {
	mtype := mimetype.Detect(data)
	name := uuid.NewString() + mtype.Extension()

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return Stored{}, fmt.Errorf("files: failed to write object: %w", err)
	}

	return Stored{
		PublicID:    name,
		URL:         s.baseURL + "/" + name,
		ContentType: mtype.String(),
	}, nil
}

// Delete removes the given objects. Missing objects are skipped; the first
// real filesystem error is returned after attempting the rest.
func (s *LocalStorage) Delete(ctx context.Context, publicIDs []string) error {
	var firstErr error
	for _, id := range publicIDs {
		// Object ids are generated server-side; anything with a path
		// separator is not ours.
		if id == "" || strings.ContainsAny(id, `/\`) {
			continue
		}
		err := os.Remove(filepath.Join(s.dir, id))
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("files: failed to delete %s: %w", id, err)
		}
	}
	return firstErr
}
