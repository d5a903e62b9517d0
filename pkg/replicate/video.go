package replicate

import (
	"context"
	"fmt"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/image"
)

const defaultVideoModel = "wan-video/wan-2.2-i2v-fast"

const videoCost = 0.10

// VideoClient animates a still cover into a short clip on an image-to-video
// model.
type VideoClient struct {
	*Client
	model string
}

func NewVideo(cfg *Config) *VideoClient {
	return &VideoClient{
		Client: New(cfg),
		model:  defaultVideoModel,
	}
}

type videoInput struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type videoSubmitRequest struct {
	Input videoInput `json:"input"`
}

// Submit uploads the local cover image inline as a data URI and launches a
// video prediction.
func (c *VideoClient) Submit(ctx context.Context, req *generation.VideoRequest) (*generation.VideoResponse, error) {
	if req.ImagePath == "" {
		return nil, fmt.Errorf("replicate: video image path is empty")
	}
	uri, err := image.DataURI(req.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't encode image: %w", err)
	}
	in := &videoSubmitRequest{
		Input: videoInput{
			Image:  uri,
			Prompt: req.Prompt,
		},
	}
	var out prediction
	err = c.do(ctx, "POST", fmt.Sprintf("v1/models/%s/predictions", c.model), 201, in, &out)
	c.record(ctx, "video-predict", videoCost, err)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't submit video prediction: %w", err)
	}
	if out.ID == "" {
		return nil, &generation.ServiceError{
			Service: "replicate",
			Message: "prediction response is missing id",
		}
	}
	return toVideoResponse(&out), nil
}

// Poll fetches the current state of a previously submitted video prediction.
func (c *VideoClient) Poll(ctx context.Context, id string) (*generation.VideoResponse, error) {
	var out prediction
	err := c.do(ctx, "GET", fmt.Sprintf("v1/predictions/%s", id), 200, nil, &out)
	c.record(ctx, "video-poll", 0, err)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't poll prediction %s: %w", id, err)
	}
	return toVideoResponse(&out), nil
}

func (c *VideoClient) Download(ctx context.Context, url, path string) bool {
	return c.download(ctx, url, path)
}

func toVideoResponse(p *prediction) *generation.VideoResponse {
	resp := &generation.VideoResponse{
		PredictionID: p.ID,
		Status:       p.Status,
		Error:        p.Error,
	}
	if urls := p.outputURLs(); len(urls) > 0 {
		resp.VideoURL = urls[0]
	}
	return resp
}
