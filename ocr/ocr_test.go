package ocr

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateImage(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "shot.png")

	corrupt := filepath.Join(dir, "corrupt.png")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	gif := filepath.Join(dir, "shot.gif")
	if err := os.WriteFile(gif, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		path  string
		rules ImageRules
		want  error
	}{
		{"valid png", good, DefaultImageRules(), nil},
		{"bad extension", gif, DefaultImageRules(), ErrUnsupportedExtension},
		{"corrupt", corrupt, DefaultImageRules(), ErrCorruptImage},
		{"too large", good, ImageRules{Extensions: []string{".png"}, MaxBytes: 10}, ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.path, tt.rules)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("got %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	if err := ValidateImage(filepath.Join(dir, "missing.png"), DefaultImageRules()); err == nil {
		t.Error("missing file should fail validation")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Errorf("got %q, want %q", got, "hé")
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
}

func TestDisabled(t *testing.T) {
	text, err := Disabled{}.ExtractText(context.Background(), "x.png", time.Second)
	if text != "" || !errors.Is(err, ErrDisabled) {
		t.Errorf("got (%q, %v)", text, err)
	}
}

func TestTesseractMissingBinary(t *testing.T) {
	tess := NewTesseract("linkshield-no-such-binary", 100)
	if tess.Available() {
		t.Skip("unexpected binary on PATH")
	}
	if _, err := tess.ExtractText(context.Background(), "x.png", time.Second); err == nil {
		t.Error("expected error for missing binary")
	}
}
