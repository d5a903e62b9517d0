package video

import (
	"context"
	"fmt"
	"log"

	"github.com/igolaizola/songclip/pkg/pipeline"
	"github.com/igolaizola/songclip/pkg/replicate"
	"github.com/igolaizola/songclip/pkg/store"
	"github.com/igolaizola/songclip/pkg/tracker"
	vid "github.com/igolaizola/songclip/pkg/video"
)

type Config struct {
	Debug  bool
	Output string

	DBType string
	DBConn string

	ReplicateToken string
	ReplicateBase  string

	FFmpegBin  string
	FFprobeBin string
	Workers    int

	SessionID string
	// RenderOnly re-runs only the loop and caption stage on the already
	// downloaded animation, overwriting the previous final video.
	RenderOnly bool
}

// Run re-triggers the animation and render stage of an existing session.
// The session needs a downloaded cover image, run the image stage first if
// it doesn't have one.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.SessionID == "" {
		return fmt.Errorf("video: session id is empty")
	}
	log.Println("video: process started")
	defer log.Println("video: process ended")

	var recorder tracker.Recorder = tracker.NopRecorder{}
	if cfg.DBType != "" {
		t, err := tracker.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("video: %w", err)
		}
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("video: %w", err)
		}
		recorder = t
	}

	output := cfg.Output
	if output == "" {
		output = "output"
	}
	s := store.New(output)
	session, err := s.Load(cfg.SessionID)
	if err != nil {
		return fmt.Errorf("video: %w", err)
	}

	client := replicate.NewVideo(&replicate.Config{
		Token:    cfg.ReplicateToken,
		BaseURL:  cfg.ReplicateBase,
		Debug:    cfg.Debug,
		Recorder: recorder,
	})
	processor := vid.NewProcessor(&vid.Config{
		FFmpegBin:  cfg.FFmpegBin,
		FFprobeBin: cfg.FFprobeBin,
		Workers:    cfg.Workers,
		Debug:      cfg.Debug,
	})
	p := pipeline.New(&pipeline.Config{
		Video:     client,
		Store:     s,
		Processor: processor,
		Debug:     cfg.Debug,
	})
	run := p.Video
	if cfg.RenderOnly {
		run = p.Render
	}
	if err := run(ctx, session); err != nil {
		return fmt.Errorf("video: %w", err)
	}
	log.Printf("video: final video ready at %s\n", session.VideoPath)
	return nil
}
