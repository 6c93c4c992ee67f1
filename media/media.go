// Package media stores uploaded files on the configured storage backend.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/eringen/astrosite/storage"
)

const (
	// MaxUploadSize is the largest file accepted.
	MaxUploadSize = 10 << 20 // 10MB
	jpegQuality   = 80
	// Dir is the key prefix uploads are stored under.
	Dir = "uploads"
)

// ErrEmpty is returned when the upload has no content.
var ErrEmpty = errors.New("media: no file provided")

// ErrTooLarge is returned when the upload exceeds MaxUploadSize.
var ErrTooLarge = errors.New("media: file too large (max 10MB)")

// Uploader writes uploads to a storage backend under Dir.
type Uploader struct {
	backend       storage.Backend
	maxImageWidth int
	now           func() time.Time

	mu   sync.Mutex
	last int64
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithMaxImageWidth downscales JPEG, PNG and GIF uploads wider than w pixels
// and re-encodes them as JPEG. Zero keeps files byte for byte.
func WithMaxImageWidth(w int) Option {
	return func(u *Uploader) {
		u.maxImageWidth = w
	}
}

// WithClock replaces the time source used for filename prefixes.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		u.now = now
	}
}

// NewUploader creates an Uploader for backend.
func NewUploader(backend storage.Backend, opts ...Option) *Uploader {
	u := &Uploader{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Backend names the backend uploads go to.
func (u *Uploader) Backend() string {
	return u.backend.Name()
}

// Upload stores the contents of r and returns the URL reported by the
// backend. Filesystem backends return a site-relative URL.
func (u *Uploader) Upload(ctx context.Context, r io.Reader, originalName, mimeType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxUploadSize {
		return "", ErrTooLarge
	}

	name := SanitizeName(originalName)
	if u.maxImageWidth > 0 && isResizable(mimeType) {
		resized, ok, err := downscale(data, u.maxImageWidth)
		if err != nil {
			return "", err
		}
		if ok {
			data = resized
			mimeType = "image/jpeg"
			name = strings.TrimSuffix(name, path.Ext(name)) + ".jpg"
		}
	}

	key := path.Join(Dir, u.stamp()+"-"+name)
	url, err := u.backend.Put(ctx, key, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return url, nil
}

// stamp returns a nanosecond timestamp that is strictly increasing within
// this process, so two uploads of the same name never share a key.
func (u *Uploader) stamp() string {
	n := u.now().UnixNano()
	u.mu.Lock()
	if n <= u.last {
		n = u.last + 1
	}
	u.last = n
	u.mu.Unlock()
	return strconv.FormatInt(n, 10)
}

// SanitizeName reduces a client filename to [A-Za-z0-9._-], replacing every
// other rune with an underscore.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.TrimLeft(b.String(), ".")
	if s == "" {
		return "file"
	}
	return s
}

func isResizable(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/png", "image/gif":
		return true
	}
	return false
}

// downscale resizes images wider than maxWidth. It reports false when the
// image already fits.
func downscale(data []byte, maxWidth int) ([]byte, bool, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth {
		return nil, false, nil
	}

	newH := h * maxWidth / w
	if newH < 1 {
		newH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, false, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), true, nil
}
