package generation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ModelVersion is the closed set of music model tags accepted by the
// generation service.
type ModelVersion string

const (
	ModelV3_5 ModelVersion = "V3_5"
	ModelV4   ModelVersion = "V4"
	ModelV4_5 ModelVersion = "V4_5"
)

func ParseModel(s string) (ModelVersion, error) {
	switch ModelVersion(s) {
	case ModelV3_5, ModelV4, ModelV4_5:
		return ModelVersion(s), nil
	case "":
		return ModelV4, nil
	default:
		return "", fmt.Errorf("generation: unknown model version %q", s)
	}
}

// SongRequest holds the immutable parameters of a song generation.
type SongRequest struct {
	Prompt       string       `json:"prompt"`
	Style        string       `json:"style"`
	Title        string       `json:"title"`
	Model        ModelVersion `json:"model"`
	CustomMode   bool         `json:"custom_mode"`
	Instrumental bool         `json:"instrumental"`
	CallbackURL  string       `json:"callback_url,omitempty"`
}

func (r *SongRequest) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("generation: prompt is empty")
	}
	if r.Title == "" {
		return fmt.Errorf("generation: title is empty")
	}
	if _, err := ParseModel(string(r.Model)); err != nil {
		return err
	}
	return nil
}

// Track is a single audio clip produced by the music service. Identity is
// assigned by the service, never locally.
type Track struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	AudioURL  string    `json:"audio_url"`
	StreamURL string    `json:"stream_url"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SongResponse is the current known state of a music job.
type SongResponse struct {
	RequestID   string     `json:"request_id"`
	Status      string     `json:"status"`
	Tracks      []Track    `json:"tracks"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r *SongResponse) JobID() string   { return r.RequestID }
func (r *SongResponse) Completed() bool { return r.Status == "completed" }
func (r *SongResponse) Failed() bool    { return r.Status == "failed" }

func (r *SongResponse) HasDownloadableTracks() bool {
	for _, t := range r.Tracks {
		if t.AudioURL != "" {
			return true
		}
	}
	return false
}

// ImageRequest holds the parameters of an image generation job.
type ImageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// ImageResponse is the current known state of an image job.
type ImageResponse struct {
	PredictionID string   `json:"prediction_id"`
	Status       string   `json:"status"`
	ImageURLs    []string `json:"image_urls"`
	Error        string   `json:"error,omitempty"`
}

func (r *ImageResponse) JobID() string   { return r.PredictionID }
func (r *ImageResponse) Completed() bool { return r.Status == "succeeded" }
func (r *ImageResponse) Failed() bool {
	return r.Status == "failed" || r.Status == "canceled"
}
func (r *ImageResponse) HasImages() bool { return len(r.ImageURLs) > 0 }

// VideoRequest holds the parameters of an image-to-video animation job.
type VideoRequest struct {
	ImagePath string `json:"image_path"`
	Prompt    string `json:"prompt"`
}

// VideoResponse is the current known state of a video job.
type VideoResponse struct {
	PredictionID string `json:"prediction_id"`
	Status       string `json:"status"`
	VideoURL     string `json:"video_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

func (r *VideoResponse) JobID() string   { return r.PredictionID }
func (r *VideoResponse) Completed() bool { return r.Status == "succeeded" }
func (r *VideoResponse) Failed() bool {
	return r.Status == "failed" || r.Status == "canceled"
}
func (r *VideoResponse) HasVideo() bool { return r.VideoURL != "" }

// Response is the view shared by the three job response shapes.
type Response interface {
	JobID() string
	Completed() bool
	Failed() bool
}

// Port is the contract shared by the three generation service adapters.
// Submit and Poll fail hard on service or transport errors; Download
// soft-fails by returning false, since download failures are recovered by
// re-triggering the stage rather than aborting the run.
type Port[Req any, Resp Response] interface {
	Submit(ctx context.Context, req Req) (Resp, error)
	Poll(ctx context.Context, id string) (Resp, error)
	Download(ctx context.Context, url, path string) bool
}

type MusicPort = Port[*SongRequest, *SongResponse]
type ImagePort = Port[*ImageRequest, *ImageResponse]
type VideoPort = Port[*VideoRequest, *VideoResponse]

// Session is the durable aggregate tracking one end-to-end generation
// request and all its stage outputs. Later stages add fields, they never
// erase earlier ones.
type Session struct {
	ID            string         `json:"session_id"`
	Timestamp     int64          `json:"timestamp"`
	Request       SongRequest    `json:"request"`
	Response      *SongResponse  `json:"response"`
	LocalPath     string         `json:"local_path,omitempty"`
	ImageResponse *ImageResponse `json:"image_response,omitempty"`
	ImagePath     string         `json:"image_path,omitempty"`
	VideoResponse *VideoResponse `json:"video_response,omitempty"`
	VideoPath     string         `json:"video_path,omitempty"`
}

// NewSession creates a session keyed by the creation instant.
func NewSession(req *SongRequest) *Session {
	ts := time.Now().Unix()
	return &Session{
		ID:        fmt.Sprintf("song_%d", ts),
		Timestamp: ts,
		Request:   *req,
	}
}

// Dir returns the session directory under the given output root.
func (s *Session) Dir(root string) string {
	return filepath.Join(root, s.ID)
}

// TrackFile returns the file name for the nth downloaded track (1-based).
func (s *Session) TrackFile(n int, title string) string {
	name := fmt.Sprintf("track_%d_%s.mp3", n, title)
	return strings.ReplaceAll(name, " ", "_")
}

func (s *Session) CoverFile() string {
	return s.ID + "_cover.png"
}

func (s *Session) AnimationFile() string {
	return s.ID + "_animation_original.mp4"
}

func (s *Session) VideoFile() string {
	return s.ID + "_cover_video.mp4"
}
