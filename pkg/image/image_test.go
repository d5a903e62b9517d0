package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		max   int
		wantW int
		wantH int
	}{
		{"within limit", 100, 50, 200, 100, 50},
		{"wide", 400, 100, 200, 200, 50},
		{"tall", 100, 400, 200, 50, 200},
		{"square", 400, 400, 200, 200, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			got := Downscale(img, tt.max)
			b := got.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("unexpected size: got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDataURI(t *testing.T) {
	path := writeTestPNG(t, 64, 64)
	uri, err := DataURI(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("unexpected prefix: %s", uri[:32])
	}
}

func TestDataURIDownscales(t *testing.T) {
	path := writeTestPNG(t, maxInlineSide+512, 256)
	uri, err := DataURI(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("unexpected prefix: %s", uri[:32])
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := writeTestPNG(t, 32, 32)
	img, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := filepath.Join(t.TempDir(), "out.jpg")
	if err := Save(img, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Load(out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	if _, err := Load("cover.gif"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
