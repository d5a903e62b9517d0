package replicate

import (
	"context"
	"fmt"

	"github.com/igolaizola/songclip/pkg/generation"
)

const defaultImageModel = "bytedance/seedream-4"

const imageCost = 0.03

// ImageClient runs cover art generations on a text-to-image model.
type ImageClient struct {
	*Client
	model string
}

func NewImage(cfg *Config) *ImageClient {
	return &ImageClient{
		Client: New(cfg),
		model:  defaultImageModel,
	}
}

type imageInput struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type imageSubmitRequest struct {
	Input imageInput `json:"input"`
}

// Submit launches an image prediction and returns its initial state.
func (c *ImageClient) Submit(ctx context.Context, req *generation.ImageRequest) (*generation.ImageResponse, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("replicate: image prompt is empty")
	}
	in := &imageSubmitRequest{
		Input: imageInput{
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
		},
	}
	var out prediction
	err := c.do(ctx, "POST", fmt.Sprintf("v1/models/%s/predictions", c.model), 201, in, &out)
	c.record(ctx, "image-predict", imageCost, err)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't submit image prediction: %w", err)
	}
	if out.ID == "" {
		return nil, &generation.ServiceError{
			Service: "replicate",
			Message: "prediction response is missing id",
		}
	}
	return toImageResponse(&out), nil
}

// Poll fetches the current state of a previously submitted image prediction.
func (c *ImageClient) Poll(ctx context.Context, id string) (*generation.ImageResponse, error) {
	var out prediction
	err := c.do(ctx, "GET", fmt.Sprintf("v1/predictions/%s", id), 200, nil, &out)
	c.record(ctx, "image-poll", 0, err)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't poll prediction %s: %w", id, err)
	}
	return toImageResponse(&out), nil
}

func (c *ImageClient) Download(ctx context.Context, url, path string) bool {
	return c.download(ctx, url, path)
}

func toImageResponse(p *prediction) *generation.ImageResponse {
	return &generation.ImageResponse{
		PredictionID: p.ID,
		Status:       p.Status,
		ImageURLs:    p.outputURLs(),
		Error:        p.Error,
	}
}
