// Package ocr extracts text from page screenshots.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

var (
	ErrUnsupportedExtension = errors.New("ocr: unsupported image extension")
	ErrImageTooLarge        = errors.New("ocr: image too large")
	ErrCorruptImage         = errors.New("ocr: image could not be decoded")
	ErrTimeout              = errors.New("ocr: timed out")
	ErrDisabled             = errors.New("ocr: disabled")
)

// Extractor turns an image file into text.
type Extractor interface {
	ExtractText(ctx context.Context, imagePath string, timeout time.Duration) (string, error)
}

// ImageRules constrains which screenshots are handed to the extractor.
type ImageRules struct {
	Extensions []string
	MaxBytes   int64
}

// DefaultImageRules accepts PNG and JPEG up to 5 MiB.
func DefaultImageRules() ImageRules {
	return ImageRules{Extensions: []string{".png", ".jpg", ".jpeg"}, MaxBytes: 5 * 1024 * 1024}
}

// ValidateImage checks extension, size and that the header decodes.
func ValidateImage(path string, rules ImageRules) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(rules.Extensions, ext) {
		return fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ocr: stat image: %w", err)
	}
	if rules.MaxBytes > 0 && fi.Size() > rules.MaxBytes {
		return fmt.Errorf("%w: %d bytes", ErrImageTooLarge, fi.Size())
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ocr: open image: %w", err)
	}
	defer f.Close()
	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	return nil
}

// Disabled is an Extractor that never reads anything.
type Disabled struct{}

func (Disabled) ExtractText(context.Context, string, time.Duration) (string, error) {
	return "", ErrDisabled
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
