package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/igolaizola/songclip/pkg/generation"
)

func TestImageSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/bytedance/seedream-4/predictions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var in imageSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("couldn't decode request: %v", err)
		}
		if in.Input.Prompt == "" {
			t.Error("expected prompt in input")
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer srv.Close()

	c := NewImage(&Config{Token: "test-token", BaseURL: srv.URL})
	resp, err := c.Submit(context.Background(), &generation.ImageRequest{
		Prompt:      "album cover, sunset over the sea",
		AspectRatio: "1:1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.PredictionID != "pred-1" {
		t.Errorf("unexpected prediction id: %s", resp.PredictionID)
	}
	if resp.Completed() || resp.Failed() {
		t.Errorf("unexpected terminal status: %s", resp.Status)
	}
}

func TestImageSubmitWrongStatus(t *testing.T) {
	// The predictions endpoint answers 201 on success, a 200 means the
	// request did not create anything.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	}))
	defer srv.Close()

	c := NewImage(&Config{Token: "test-token", BaseURL: srv.URL})
	_, err := c.Submit(context.Background(), &generation.ImageRequest{Prompt: "cover"})
	var svcErr *generation.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestImagePollOutputs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "list output",
			body: `{"id":"pred-1","status":"succeeded","output":["https://cdn.example.com/a.png","https://cdn.example.com/b.png"]}`,
			want: []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"},
		},
		{
			name: "single output",
			body: `{"id":"pred-1","status":"succeeded","output":"https://cdn.example.com/a.png"}`,
			want: []string{"https://cdn.example.com/a.png"},
		},
		{
			name: "no output",
			body: `{"id":"pred-1","status":"processing"}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/predictions/pred-1" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewImage(&Config{Token: "test-token", BaseURL: srv.URL})
			resp, err := c.Poll(context.Background(), "pred-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(resp.ImageURLs) != len(tt.want) {
				t.Fatalf("unexpected url count: got %d, want %d", len(resp.ImageURLs), len(tt.want))
			}
			for i := range tt.want {
				if resp.ImageURLs[i] != tt.want[i] {
					t.Errorf("unexpected url: got %s, want %s", resp.ImageURLs[i], tt.want[i])
				}
			}
		})
	}
}

func TestVideoSubmitInlinesImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	path := filepath.Join(t.TempDir(), "cover.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/wan-video/wan-2.2-i2v-fast/predictions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var in videoSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("couldn't decode request: %v", err)
		}
		if !strings.HasPrefix(in.Input.Image, "data:image/png;base64,") {
			t.Errorf("expected data uri image, got %.32s", in.Input.Image)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pred-2","status":"starting"}`))
	}))
	defer srv.Close()

	c := NewVideo(&Config{Token: "test-token", BaseURL: srv.URL})
	resp, err := c.Submit(context.Background(), &generation.VideoRequest{
		ImagePath: path,
		Prompt:    "slow camera pan",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.PredictionID != "pred-2" {
		t.Errorf("unexpected prediction id: %s", resp.PredictionID)
	}
}

func TestVideoPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pred-2","status":"succeeded","output":"https://cdn.example.com/video.mp4"}`))
	}))
	defer srv.Close()

	c := NewVideo(&Config{Token: "test-token", BaseURL: srv.URL})
	resp, err := c.Poll(context.Background(), "pred-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Completed() {
		t.Errorf("expected completed response, got %s", resp.Status)
	}
	if resp.VideoURL != "https://cdn.example.com/video.mp4" {
		t.Errorf("unexpected video url: %s", resp.VideoURL)
	}
}

func TestVideoPollFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pred-2","status":"failed","error":"NSFW content detected"}`))
	}))
	defer srv.Close()

	c := NewVideo(&Config{Token: "test-token", BaseURL: srv.URL})
	resp, err := c.Poll(context.Background(), "pred-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Failed() {
		t.Errorf("expected failed response, got %s", resp.Status)
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestDownloadSoftFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewImage(&Config{Token: "test-token", BaseURL: srv.URL})
	if ok := c.Download(context.Background(), srv.URL+"/a.png", filepath.Join(t.TempDir(), "a.png")); ok {
		t.Error("expected download to fail")
	}
}

func TestDownloadCreatesParentDirs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := NewImage(&Config{Token: "test-token", BaseURL: srv.URL})
	path := filepath.Join(t.TempDir(), "session", "covers", "a.png")
	if ok := c.Download(context.Background(), srv.URL+"/a.png", path); !ok {
		t.Fatal("expected download to create parent directories")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
