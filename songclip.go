package songclip

import (
	"context"
	"fmt"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/pipeline"
	"github.com/igolaizola/songclip/pkg/replicate"
	"github.com/igolaizola/songclip/pkg/store"
	"github.com/igolaizola/songclip/pkg/sunoapi"
	"github.com/igolaizola/songclip/pkg/video"
)

// Config holds the minimum settings to run a generation from library code.
type Config struct {
	SunoAPIKey     string
	ReplicateToken string
	Output         string
	Wait           time.Duration
	Debug          bool
}

// Generate runs the full pipeline for a prompt and returns the finished
// session: song, cover image and lyric video.
func Generate(ctx context.Context, cfg *Config, req *generation.SongRequest) (*generation.Session, error) {
	output := cfg.Output
	if output == "" {
		output = "output"
	}
	music := sunoapi.New(&sunoapi.Config{
		APIKey: cfg.SunoAPIKey,
		Wait:   cfg.Wait,
		Debug:  cfg.Debug,
	})
	image := replicate.NewImage(&replicate.Config{
		Token: cfg.ReplicateToken,
		Wait:  cfg.Wait,
		Debug: cfg.Debug,
	})
	vid := replicate.NewVideo(&replicate.Config{
		Token: cfg.ReplicateToken,
		Wait:  cfg.Wait,
		Debug: cfg.Debug,
	})
	p := pipeline.New(&pipeline.Config{
		Music:     music,
		Image:     image,
		Video:     vid,
		Store:     store.New(output),
		Processor: video.NewProcessor(&video.Config{Debug: cfg.Debug}),
		Debug:     cfg.Debug,
	})
	session, err := p.Run(ctx, req)
	if err != nil {
		return session, fmt.Errorf("songclip: %w", err)
	}
	return session, nil
}
