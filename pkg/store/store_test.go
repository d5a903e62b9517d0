package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/igolaizola/songclip/pkg/generation"
)

func newTestSession() *generation.Session {
	return &generation.Session{
		ID:        "song_1700000000",
		Timestamp: 1700000000,
		Request: generation.SongRequest{
			Prompt: "an upbeat song about summer",
			Title:  "Summer",
			Model:  generation.ModelV4,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	session := newTestSession()
	session.Response = &generation.SongResponse{
		RequestID: "task-123",
		Status:    "completed",
		Tracks: []generation.Track{
			{ID: "clip-1", Title: "Summer", AudioURL: "https://cdn.example.com/clip-1.mp3"},
		},
	}
	if err := s.Save(session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Load(session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("unexpected id: %s", got.ID)
	}
	if got.Response == nil || got.Response.RequestID != "task-123" {
		t.Errorf("unexpected response: %+v", got.Response)
	}
	if len(got.Response.Tracks) != 1 {
		t.Errorf("unexpected track count: %d", len(got.Response.Tracks))
	}
	if got.Request.Prompt != session.Request.Prompt {
		t.Errorf("unexpected prompt: %s", got.Request.Prompt)
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	session := newTestSession()
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(s.Dir(session.ID), metadataFile)
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("expected repeated saves to produce identical documents")
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	s := New(t.TempDir())
	session := newTestSession()
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(s.Dir(session.ID))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != metadataFile {
			t.Errorf("unexpected file in session dir: %s", e.Name())
		}
	}
}

func TestLoadNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Load("song_404")
	if !errors.Is(err, generation.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoadRecoversStageState(t *testing.T) {
	s := New(t.TempDir())
	session := newTestSession()
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	// Simulate files downloaded by an older version that never recorded
	// image or video state in the document.
	dir := s.Dir(session.ID)
	cover := filepath.Join(dir, session.CoverFile())
	if err := os.WriteFile(cover, []byte("png-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	video := filepath.Join(dir, session.VideoFile())
	if err := os.WriteFile(video, []byte("mp4-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ImageResponse == nil || !got.ImageResponse.Completed() {
		t.Errorf("expected synthesized image response, got %+v", got.ImageResponse)
	}
	if got.ImagePath != cover {
		t.Errorf("unexpected image path: %s", got.ImagePath)
	}
	if got.VideoResponse == nil || !got.VideoResponse.Completed() {
		t.Errorf("expected synthesized video response, got %+v", got.VideoResponse)
	}
	if got.VideoPath != video {
		t.Errorf("unexpected video path: %s", got.VideoPath)
	}
}

func TestLoadKeepsRecordedStageState(t *testing.T) {
	s := New(t.TempDir())
	session := newTestSession()
	session.ImageResponse = &generation.ImageResponse{PredictionID: "pred-1", Status: "failed"}
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	// A cover file on disk must not override recorded state.
	cover := filepath.Join(s.Dir(session.ID), session.CoverFile())
	if err := os.WriteFile(cover, []byte("png-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ImageResponse.PredictionID != "pred-1" || !got.ImageResponse.Failed() {
		t.Errorf("expected recorded image response, got %+v", got.ImageResponse)
	}
}

func TestListNewestFirstSkipsCorrupt(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	old := newTestSession()
	if err := s.Save(old); err != nil {
		t.Fatal(err)
	}
	recent := &generation.Session{
		ID:        "song_1800000000",
		Timestamp: 1800000000,
		Request:   old.Request,
	}
	if err := s.Save(recent); err != nil {
		t.Fatal(err)
	}
	// A corrupt document must be skipped, not fail the whole listing.
	corrupt := filepath.Join(root, "song_1750000000")
	if err := os.MkdirAll(corrupt, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, metadataFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	sessions, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("unexpected session count: %d", len(sessions))
	}
	if sessions[0].ID != recent.ID || sessions[1].ID != old.ID {
		t.Errorf("unexpected order: %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestListMissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))
	sessions, err := s.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("unexpected sessions: %d", len(sessions))
	}
}
