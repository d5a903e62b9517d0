package sound

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDurationMissingFile(t *testing.T) {
	if _, err := Duration(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestDurationInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-audio.mp3")
	if err := os.WriteFile(path, []byte("not an mp3"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Duration(path); err == nil {
		t.Fatal("expected error, got nil")
	}
}
