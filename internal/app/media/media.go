// Package media stores uploaded evidence files.
package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrUnsupportedType is returned for uploads that are not PNG, JPEG, GIF
	// or WebP images.
	ErrUnsupportedType = errors.New("evidence must be an image")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("evidence file too large")
	// ErrNotFound is returned when a stored file is missing.
	ErrNotFound = errors.New("evidence file not found")
)

// TooLargeError reports the limit an upload exceeded. It matches ErrTooLarge.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: limit is %d bytes", ErrTooLarge, e.Limit)
}

func (e *TooLargeError) Unwrap() error { return ErrTooLarge }

// allowedTypes are the raster formats accepted as evidence.
var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// sniffLen is how much of an upload is inspected to detect its type.
const sniffLen = 3072

// Stored describes a saved file.
type Stored struct {
	Key       string
	MediaType string
	Size      int64
}

// Store persists evidence files.
type Store interface {
	Save(ctx context.Context, prefix string, r io.Reader) (Stored, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Disk stores files below a root directory.
type Disk struct {
	root     string
	maxBytes int64
}

var _ Store = (*Disk)(nil)

// NewDisk creates root if needed. maxBytes <= 0 disables the size limit.
func NewDisk(root string, maxBytes int64) (*Disk, error) {
	if root == "" {
		return nil, errors.New("media root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Disk{root: root, maxBytes: maxBytes}, nil
}

// Save sniffs the content type, rejects anything that is not an allowed
// raster image and writes the file under prefix with a generated name.
func (d *Disk) Save(_ context.Context, prefix string, r io.Reader) (Stored, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Stored{}, fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return Stored{}, ErrUnsupportedType
	}
	mt := mimetype.Detect(head)
	if !allowedTypes[mt.String()] {
		return Stored{}, ErrUnsupportedType
	}

	key := filepath.ToSlash(filepath.Join(
		cleanSegment(prefix),
		time.Now().UTC().Format("2006/01"),
		uuid.NewString()+mt.Extension(),
	))
	path := d.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Stored{}, fmt.Errorf("create media dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Stored{}, fmt.Errorf("create media file: %w", err)
	}

	var src io.Reader = br
	if d.maxBytes > 0 {
		src = io.LimitReader(br, d.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && d.maxBytes > 0 && n > d.maxBytes {
		err = &TooLargeError{Limit: d.maxBytes}
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return Stored{}, err
		}
		return Stored{}, fmt.Errorf("write media file: %w", err)
	}
	return Stored{Key: key, MediaType: mt.String(), Size: n}, nil
}

// Open returns the stored file for reading.
func (d *Disk) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes a stored file. Missing files are ignored.
func (d *Disk) Delete(_ context.Context, key string) error {
	err := os.Remove(d.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// path resolves key inside root; keys cannot escape it.
func (d *Disk) path(key string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(d.root, clean)
}

func cleanSegment(s string) string {
	s = strings.Trim(filepath.ToSlash(filepath.Clean("/"+s)), "/")
	if s == "" {
		return "evidence"
	}
	return s
}
