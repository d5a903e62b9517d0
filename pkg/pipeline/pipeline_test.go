package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/store"
)

// fakeMusic completes after a configurable number of polls.
type fakeMusic struct {
	submits      int32
	polls        int32
	pollsToDone  int32
	failJob      bool
	failDownload bool
}

func (f *fakeMusic) Submit(ctx context.Context, req *generation.SongRequest) (*generation.SongResponse, error) {
	atomic.AddInt32(&f.submits, 1)
	return &generation.SongResponse{RequestID: "task-1", Status: "submitted"}, nil
}

func (f *fakeMusic) Poll(ctx context.Context, id string) (*generation.SongResponse, error) {
	n := atomic.AddInt32(&f.polls, 1)
	if n < f.pollsToDone {
		return &generation.SongResponse{RequestID: id, Status: "processing"}, nil
	}
	if f.failJob {
		return &generation.SongResponse{RequestID: id, Status: "failed"}, nil
	}
	return &generation.SongResponse{
		RequestID: id,
		Status:    "completed",
		Tracks: []generation.Track{
			{ID: "clip-1", Title: "Summer", AudioURL: "https://cdn.example.com/clip-1.mp3"},
			{ID: "clip-2", Title: "Summer", AudioURL: "https://cdn.example.com/clip-2.mp3"},
		},
	}, nil
}

func (f *fakeMusic) Download(ctx context.Context, url, path string) bool {
	if f.failDownload {
		return false
	}
	return os.WriteFile(path, []byte("mp3-bytes"), 0644) == nil
}

type fakeImage struct {
	submits int32
	fail    bool
}

func (f *fakeImage) Submit(ctx context.Context, req *generation.ImageRequest) (*generation.ImageResponse, error) {
	atomic.AddInt32(&f.submits, 1)
	if f.fail {
		return nil, &generation.ServiceError{Service: "replicate", Message: "boom"}
	}
	return &generation.ImageResponse{PredictionID: "pred-1", Status: "processing"}, nil
}

func (f *fakeImage) Poll(ctx context.Context, id string) (*generation.ImageResponse, error) {
	return &generation.ImageResponse{
		PredictionID: id,
		Status:       "succeeded",
		ImageURLs:    []string{"https://cdn.example.com/cover.png"},
	}, nil
}

func (f *fakeImage) Download(ctx context.Context, url, path string) bool {
	return os.WriteFile(path, []byte("png-bytes"), 0644) == nil
}

type fakeVideo struct{}

func (f *fakeVideo) Submit(ctx context.Context, req *generation.VideoRequest) (*generation.VideoResponse, error) {
	if req.ImagePath == "" {
		return nil, errors.New("missing image path")
	}
	return &generation.VideoResponse{PredictionID: "pred-2", Status: "processing"}, nil
}

func (f *fakeVideo) Poll(ctx context.Context, id string) (*generation.VideoResponse, error) {
	return &generation.VideoResponse{
		PredictionID: id,
		Status:       "succeeded",
		VideoURL:     "https://cdn.example.com/animation.mp4",
	}, nil
}

func (f *fakeVideo) Download(ctx context.Context, url, path string) bool {
	return os.WriteFile(path, []byte("mp4-bytes"), 0644) == nil
}

// fakeRenderer stands in for the ffmpeg based processor.
type fakeRenderer struct {
	loops   int32
	renders int32
	audio   string
}

func (f *fakeRenderer) Duration(ctx context.Context, input string) (time.Duration, error) {
	return 30 * time.Second, nil
}

func (f *fakeRenderer) Loop(ctx context.Context, animation, output string, target time.Duration) error {
	atomic.AddInt32(&f.loops, 1)
	return os.WriteFile(output, []byte("looped-bytes"), 0644)
}

func (f *fakeRenderer) Render(ctx context.Context, video, audio, lyrics string, total time.Duration, output string) error {
	atomic.AddInt32(&f.renders, 1)
	f.audio = audio
	return os.WriteFile(output, []byte("final-bytes"), 0644)
}

func newTestPipeline(t *testing.T, music generation.MusicPort, image generation.ImagePort, video generation.VideoPort) (*Pipeline, *store.Store) {
	t.Helper()
	s := store.New(t.TempDir())
	p := New(&Config{
		Music:     music,
		Image:     image,
		Video:     video,
		Store:     s,
		Processor: &fakeRenderer{},
		MusicPoll: time.Millisecond,
		ImagePoll: time.Millisecond,
		VideoPoll: time.Millisecond,
	})
	return p, s
}

func testRequest() *generation.SongRequest {
	return &generation.SongRequest{
		Prompt: "Walking down the sunny road\nSummer days and summer nights",
		Title:  "Summer Road",
		Style:  "indie pop",
		Model:  generation.ModelV4,
	}
}

func TestRunFullPipeline(t *testing.T) {
	music := &fakeMusic{pollsToDone: 3}
	p, s := newTestPipeline(t, music, &fakeImage{}, &fakeVideo{})

	session, err := p.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.LocalPath == "" || session.ImagePath == "" || session.VideoPath == "" {
		t.Errorf("expected all stage outputs, got %+v", session)
	}

	// Everything must be recoverable from disk.
	got, err := s.Load(session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Response == nil || !got.Response.Completed() {
		t.Errorf("unexpected stored music state: %+v", got.Response)
	}
	if got.VideoPath != session.VideoPath {
		t.Errorf("unexpected stored video path: %s", got.VideoPath)
	}

	// Tracks land under the conventional names.
	dir := session.Dir(s.Root())
	if _, err := os.Stat(filepath.Join(dir, "track_1_Summer.mp3")); err != nil {
		t.Errorf("expected first track file: %v", err)
	}
	// local_path is the directory holding the audio, not a file in it.
	if session.LocalPath != dir {
		t.Errorf("expected local path %s, got %s", dir, session.LocalPath)
	}
	if info, err := os.Stat(session.LocalPath); err != nil || !info.IsDir() {
		t.Errorf("expected local path to be a directory: %v", err)
	}
	// The render stage picks the first track out of that directory.
	renderer := p.processor.(*fakeRenderer)
	if want := filepath.Join(dir, "track_1_Summer.mp3"); renderer.audio != want {
		t.Errorf("expected render audio %s, got %s", want, renderer.audio)
	}
	if _, err := os.Stat(filepath.Join(dir, session.VideoFile())); err != nil {
		t.Errorf("expected final video file: %v", err)
	}
	// The looped intermediate must be cleaned up.
	if _, err := os.Stat(filepath.Join(dir, session.ID+"_looped.mp4")); !os.IsNotExist(err) {
		t.Error("expected looped intermediate to be removed")
	}
}

func TestRunKeepsSongWhenImageFails(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1}
	p, s := newTestPipeline(t, music, &fakeImage{fail: true}, &fakeVideo{})

	session, err := p.Run(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "cover stage failed") {
		t.Errorf("unexpected error: %v", err)
	}
	if session == nil || session.LocalPath == "" {
		t.Fatal("expected downloaded song to survive the image failure")
	}
	got, err := s.Load(session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LocalPath == "" {
		t.Error("expected stored session to keep the track path")
	}
}

func TestRunMusicJobFailure(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1, failJob: true}
	p, _ := newTestPipeline(t, music, &fakeImage{}, &fakeVideo{})

	_, err := p.Run(context.Background(), testRequest())
	var svcErr *generation.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestSongResumeSkipsSubmit(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1}
	p, s := newTestPipeline(t, music, &fakeImage{}, &fakeVideo{})

	session := generation.NewSession(testRequest())
	session.Response = &generation.SongResponse{RequestID: "task-1", Status: "processing"}
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	if err := p.Song(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if music.submits != 0 {
		t.Errorf("expected no submit on resume, got %d", music.submits)
	}
	if session.LocalPath == "" {
		t.Error("expected track to be downloaded")
	}
}

func TestSongDownloadFailure(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1, failDownload: true}
	p, s := newTestPipeline(t, music, &fakeImage{}, &fakeVideo{})

	session := generation.NewSession(testRequest())
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	err := p.Song(context.Background(), session)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	// The completed job state must survive for a later retry.
	got, err := s.Load(session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Response == nil || !got.Response.Completed() {
		t.Errorf("expected completed job state to be saved, got %+v", got.Response)
	}
}

func TestSongDownloadFailureReported(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1, failDownload: true}
	s := store.New(t.TempDir())
	notifier := NewNotifier(128)
	p := New(&Config{
		Music:     music,
		Image:     &fakeImage{},
		Video:     &fakeVideo{},
		Store:     s,
		Processor: &fakeRenderer{},
		Notifier:  notifier,
		MusicPoll: time.Millisecond,
	})

	session := generation.NewSession(testRequest())
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	if err := p.Song(context.Background(), session); err == nil {
		t.Fatal("expected error, got nil")
	}
	notifier.Close()

	var reported bool
	for e := range notifier.Events() {
		if e.Stage == StageMusic && strings.Contains(e.Message, "couldn't download track") {
			reported = true
		}
	}
	if !reported {
		t.Error("expected download failures to be reported as progress events")
	}
}

func TestNotifierPublishAfterClose(t *testing.T) {
	n := NewNotifier(1)
	n.publish(StageMusic, "before close")
	n.Close()
	// Publishing after close must drop the event instead of panicking, a
	// background generation can outlive the observer.
	n.publish(StageMusic, "after close")
	n.Close()

	var got []Event
	for e := range n.Events() {
		got = append(got, e)
	}
	if len(got) != 1 || got[0].Message != "before close" {
		t.Errorf("unexpected events: %+v", got)
	}
}

func TestVideoRequiresImage(t *testing.T) {
	p, s := newTestPipeline(t, &fakeMusic{pollsToDone: 1}, &fakeImage{}, &fakeVideo{})
	session := generation.NewSession(testRequest())
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	if err := p.Video(context.Background(), session); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestResume(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1}
	p, s := newTestPipeline(t, music, &fakeImage{}, &fakeVideo{})

	session := generation.NewSession(testRequest())
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	got, err := p.Resume(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VideoPath == "" {
		t.Error("expected resumed session to reach the video stage")
	}
}

func TestNotifierEvents(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1}
	s := store.New(t.TempDir())
	notifier := NewNotifier(128)
	p := New(&Config{
		Music:     music,
		Image:     &fakeImage{},
		Video:     &fakeVideo{},
		Store:     s,
		Processor: &fakeRenderer{},
		Notifier:  notifier,
		MusicPoll: time.Millisecond,
		ImagePoll: time.Millisecond,
		VideoPoll: time.Millisecond,
	})
	if _, err := p.Run(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	notifier.Close()

	stages := map[Stage]bool{}
	for e := range notifier.Events() {
		stages[e.Stage] = true
		if e.Message == "" {
			t.Error("expected event message")
		}
	}
	for _, want := range []Stage{StageSession, StageMusic, StageImage, StageVideo, StageRender} {
		if !stages[want] {
			t.Errorf("expected events from stage %s", want)
		}
	}
}

func TestRunSkipImage(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1}
	image := &fakeImage{}
	s := store.New(t.TempDir())
	p := New(&Config{
		Music:     music,
		Image:     image,
		Video:     &fakeVideo{},
		Store:     s,
		Processor: &fakeRenderer{},
		SkipImage: true,
		MusicPoll: time.Millisecond,
	})

	session, err := p.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if image.submits != 0 {
		t.Errorf("expected no image submit, got %d", image.submits)
	}
	if session.ImageResponse != nil || session.VideoPath != "" {
		t.Errorf("expected a song only session, got %+v", session)
	}
	if session.LocalPath == "" {
		t.Error("expected track to be downloaded")
	}
}

func TestRenderRetrigger(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1}
	p, _ := newTestPipeline(t, music, &fakeImage{}, &fakeVideo{})

	session, err := p.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	renderer := p.processor.(*fakeRenderer)
	if renderer.renders != 1 {
		t.Fatalf("expected 1 render, got %d", renderer.renders)
	}

	// Re-running the render stage alone reuses the downloaded animation.
	if err := p.Render(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if renderer.renders != 2 {
		t.Errorf("expected a second render, got %d", renderer.renders)
	}
}

func TestRenderRequiresAnimation(t *testing.T) {
	p, s := newTestPipeline(t, &fakeMusic{pollsToDone: 1}, &fakeImage{}, &fakeVideo{})
	session := generation.NewSession(testRequest())
	if err := s.Save(session); err != nil {
		t.Fatal(err)
	}
	if err := p.Render(context.Background(), session); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestLoopLimit(t *testing.T) {
	music := &fakeMusic{pollsToDone: 1}
	p, s := newTestPipeline(t, music, &fakeImage{}, &fakeVideo{})

	var built int32
	req := func(ctx context.Context, n int) (*generation.SongRequest, error) {
		atomic.AddInt32(&built, 1)
		r := testRequest()
		r.Title = fmt.Sprintf("%s %d", r.Title, n)
		return r, nil
	}
	err := p.Loop(context.Background(), req, &LoopConfig{Limit: 2, Concurrency: 1, Wait: 1100 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built != 2 {
		t.Errorf("expected 2 requests, got %d", built)
	}
	sessions, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}
}
