package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Tesseract shells out to the tesseract CLI.
type Tesseract struct {
	Binary       string
	Languages    string
	MaxTextChars int
}

// NewTesseract returns an extractor using binary (default "tesseract").
func NewTesseract(binary string, maxTextChars int) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	return &Tesseract{Binary: binary, Languages: "eng", MaxTextChars: maxTextChars}
}

// Available reports whether the binary can be found on PATH.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.Binary)
	return err == nil
}

// ExtractText runs OCR on imagePath. The process is killed when the
// timeout or ctx expires.
func (t *Tesseract) ExtractText(ctx context.Context, imagePath string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := []string{imagePath, "stdout"}
	if t.Languages != "" {
		args = append(args, "-l", t.Languages)
	}
	cmd := exec.CommandContext(ctx, t.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("ocr: tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	slog.Debug("ocr complete", "image", imagePath, "ms", time.Since(start).Milliseconds())
	return truncate(strings.TrimSpace(stdout.String()), t.MaxTextChars), nil
}
