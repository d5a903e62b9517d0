package sunoapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
)

// defaultCallback is sent when the caller doesn't provide one. The service
// requires a callback URL even though we drive the job by polling.
const defaultCallback = "https://httpbin.org/post"

// generateCost is the advisory per-job cost recorded in the usage ledger.
const generateCost = 0.08

type envelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type generateRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
}

type generateData struct {
	TaskID string `json:"taskId"`
}

type recordInfoData struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Response struct {
		SunoData []clip `json:"sunoData"`
	} `json:"response"`
	ErrorMessage string `json:"errorMessage"`
}

type clip struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	AudioURL       string  `json:"audioUrl"`
	StreamAudioURL string  `json:"streamAudioUrl"`
	ImageURL       string  `json:"imageUrl"`
	Duration       float64 `json:"duration"`
	CreateTime     string  `json:"createTime"`
}

// Submit launches a music generation job and returns its initial state.
func (c *Client) Submit(ctx context.Context, req *generation.SongRequest) (*generation.SongResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = defaultCallback
	}
	in := &generateRequest{
		Prompt:       req.Prompt,
		Style:        req.Style,
		Title:        req.Title,
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
		Model:        string(req.Model),
		CallBackURL:  callback,
	}
	var out envelope[generateData]
	err := c.do(ctx, "POST", "api/v1/generate", in, &out)
	if err == nil && out.Code != 200 {
		err = &generation.ServiceError{
			Service: "sunoapi",
			Message: fmt.Sprintf("generate failed with code %d: %s", out.Code, out.Msg),
		}
	}
	c.record(ctx, "generate", generateCost, "", err)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't submit generation: %w", err)
	}
	if out.Data.TaskID == "" {
		return nil, &generation.ServiceError{
			Service: "sunoapi",
			Message: "generate response is missing task id",
		}
	}
	return &generation.SongResponse{
		RequestID: out.Data.TaskID,
		Status:    "submitted",
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Poll fetches the current state of a previously submitted job.
func (c *Client) Poll(ctx context.Context, id string) (*generation.SongResponse, error) {
	var out envelope[recordInfoData]
	err := c.do(ctx, "GET", fmt.Sprintf("api/v1/generate/record-info?taskId=%s", id), nil, &out)
	if err == nil && out.Code != 200 {
		err = &generation.ServiceError{
			Service: "sunoapi",
			Message: fmt.Sprintf("record-info failed with code %d: %s", out.Code, out.Msg),
		}
	}
	c.record(ctx, "record-info", 0, "", err)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't poll task %s: %w", id, err)
	}
	resp := &generation.SongResponse{
		RequestID: id,
		Status:    toStatus(out.Data.Status),
		Tracks:    out.Data.tracks(),
	}
	if resp.Completed() {
		now := time.Now().UTC()
		resp.CompletedAt = &now
	}
	return resp, nil
}

func (d *recordInfoData) tracks() []generation.Track {
	var tracks []generation.Track
	for _, cl := range d.Response.SunoData {
		t, _ := time.Parse(time.RFC3339, cl.CreateTime)
		tracks = append(tracks, generation.Track{
			ID:        cl.ID,
			Title:     cl.Title,
			AudioURL:  cl.AudioURL,
			StreamURL: cl.StreamAudioURL,
			Status:    "complete",
			CreatedAt: t,
		})
	}
	return tracks
}

// toStatus maps service task states onto the three pipeline states. Partial
// states (lyrics ready, first track ready) still count as processing since
// we only act on the fully finished set.
func toStatus(s string) string {
	switch s {
	case "SUCCESS":
		return "completed"
	case "TEXT_SUCCESS", "FIRST_SUCCESS":
		return "processing"
	}
	if strings.Contains(s, "FAILED") || strings.Contains(s, "ERROR") {
		return "failed"
	}
	return "processing"
}

// Download fetches an audio URL to a local path. It returns false on any
// failure instead of an error, the caller retries by re-triggering the
// stage.
func (c *Client) Download(ctx context.Context, url, path string) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		c.log("sunoapi: couldn't create download request: %v", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log("sunoapi: download failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log("sunoapi: download failed with status %d", resp.StatusCode)
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.log("sunoapi: couldn't create directory for %s: %v", path, err)
		return false
	}
	f, err := os.Create(path)
	if err != nil {
		c.log("sunoapi: couldn't create file %s: %v", path, err)
		return false
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		c.log("sunoapi: couldn't write file %s: %v", path, err)
		_ = os.Remove(path)
		return false
	}
	return true
}
