package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stored describes one uploaded file on disk.
type Stored struct {
	ID         string
	Filename   string
	Size       int64
	UploadDate time.Time
}

// Uploads stores uploaded files under a single directory, one file per
// upload named "<documentID>_<originalFilename>". Re-uploading the same file
// produces a new document ID; documents are immutable once stored.
type Uploads struct {
	dir string
}

func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Save writes the file content to disk under a freshly generated document ID
// and returns the ID and the on-disk path.
func (u *Uploads) Save(content []byte, filename string) (string, string, error) {
	docID := uuid.NewString()
	path := filepath.Join(u.dir, docID+"_"+filepath.Base(filename))

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", "", fmt.Errorf("write uploaded file: %w", err)
	}

	return docID, path, nil
}

// List returns all stored documents, newest first.
func (u *Uploads) List() ([]Stored, error) {
	entries, err := os.ReadDir(u.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload directory: %w", err)
	}

	documents := make([]Stored, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, filename, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		documents = append(documents, Stored{
			ID:         id,
			Filename:   filename,
			Size:       info.Size(),
			UploadDate: info.ModTime(),
		})
	}

	sort.Slice(documents, func(i, j int) bool {
		return documents[i].UploadDate.After(documents[j].UploadDate)
	})

	return documents, nil
}

// Delete removes every file whose name is prefixed by the document ID.
// It reports whether any file was removed.
func (u *Uploads) Delete(documentID string) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(u.dir, documentID+"_*"))
	if err != nil {
		return false, fmt.Errorf("glob uploads: %w", err)
	}

	deleted := false
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			return deleted, fmt.Errorf("remove %s: %w", path, err)
		}
		deleted = true
	}

	return deleted, nil
}

// Clear removes every stored file.
func (u *Uploads) Clear() error {
	entries, err := os.ReadDir(u.dir)
	if err != nil {
		return fmt.Errorf("read upload directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(u.dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// Count returns the number of stored documents.
func (u *Uploads) Count() (int, error) {
	documents, err := u.List()
	if err != nil {
		return 0, err
	}
	return len(documents), nil
}
