// Package uploads stores applicant resumes on local disk.
//
// Files are content-sniffed, not trusted by extension or declared type, and
// are written under a random name. The returned reference is what the
// application row keeps in ResumeRef.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes caps a single resume.
const DefaultMaxBytes = 5 << 20

var (
	// ErrTooLarge is returned when the upload exceeds the store's limit.
	ErrTooLarge = errors.New("resume too large")
	// ErrUnsupportedType is returned for anything but PDF or Word documents.
	ErrUnsupportedType = errors.New("resume must be a PDF or Word document")
	// ErrEmpty is returned for a zero-byte upload.
	ErrEmpty = errors.New("resume is empty")
)

var allowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DiskStore writes resumes into Dir.
type DiskStore struct {
	Dir      string
	MaxBytes int64
}

// NewDiskStore returns a store rooted at dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create resume dir: %w", err)
	}
	return &DiskStore{Dir: dir, MaxBytes: DefaultMaxBytes}, nil
}

// Save reads r in full, checks its size and type, and writes it to disk. The
// returned reference is the stored file name relative to Dir.
func (s *DiskStore) Save(ctx context.Context, r io.Reader) (string, error) {
	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read resume: %w", err)
	}
	switch {
	case n == 0:
		return "", ErrEmpty
	case n > limit:
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mt, ok := detect(buf.Bytes())
	if !ok {
		return "", ErrUnsupportedType
	}
	ref := uuid.NewString() + mt.Extension()
	if err := os.WriteFile(filepath.Join(s.Dir, ref), buf.Bytes(), 0o640); err != nil {
		return "", fmt.Errorf("write resume: %w", err)
	}
	return ref, nil
}

// Path resolves a reference returned by Save. References that would escape
// Dir are rejected.
func (s *DiskStore) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", fmt.Errorf("invalid resume reference %q", ref)
	}
	return filepath.Join(s.Dir, ref), nil
}

// detect walks the sniffed type and its parents, so a docx (detected as a
// zip subtype) is matched by its specific type and not by "application/zip".
func detect(b []byte) (*mimetype.MIME, bool) {
	mt := mimetype.Detect(b)
	for m := mt; m != nil; m = m.Parent() {
		for _, a := range allowedTypes {
			if m.Is(a) {
				return m, true
			}
		}
	}
	return mt, false
}
