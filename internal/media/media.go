package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxImageSize     = 5 * 1024 * 1024 // 5MB
	AllowedImageExts = ".jpg,.jpeg,.png,.gif,.webp"
)

var (
	ErrTooLarge   = errors.New("image size exceeds limit of 5MB")
	ErrBadFormat  = errors.New("invalid image format. Allowed: jpg, jpeg, png, gif, webp")
	ErrSaveFailed = errors.New("failed to save image")
)

// Store writes message attachments to local disk and hands back the stable
// URI the message record carries. The send flow uploads here first; only a
// successful save reaches the message store.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// SaveImage persists an uploaded image and returns its serving URI.
func (s *Store) SaveImage(origName string, size int64, r io.Reader) (string, error) {
	if size > MaxImageSize {
		return "", ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(origName))
	if ext == "" || !strings.Contains(AllowedImageExts, ext) {
		return "", ErrBadFormat
	}

	dir := filepath.Join(s.Dir, "images")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	filename := fmt.Sprintf("%s-%d%s", uuid.New().String(), time.Now().Unix(), ext)
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(r, MaxImageSize+1)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	return "/uploads/images/" + filename, nil
}

// Open resolves a serving filename back to the stored file.
func (s *Store) Open(filename string) (*os.File, error) {
	// Reject path traversal
	if filepath.Base(filename) != filename {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(s.Dir, "images", filename))
}

// ContentType returns the content type for a stored image filename.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
