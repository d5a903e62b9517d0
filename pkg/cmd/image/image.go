package image

import (
	"context"
	"fmt"
	"log"

	"github.com/igolaizola/songclip/pkg/pipeline"
	"github.com/igolaizola/songclip/pkg/replicate"
	"github.com/igolaizola/songclip/pkg/store"
	"github.com/igolaizola/songclip/pkg/tracker"
)

type Config struct {
	Debug  bool
	Output string

	DBType string
	DBConn string

	ReplicateToken string
	ReplicateBase  string

	SessionID string
}

// Run re-triggers the cover image stage of an existing session.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.SessionID == "" {
		return fmt.Errorf("image: session id is empty")
	}
	log.Println("image: process started")
	defer log.Println("image: process ended")

	var recorder tracker.Recorder = tracker.NopRecorder{}
	if cfg.DBType != "" {
		t, err := tracker.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("image: %w", err)
		}
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("image: %w", err)
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
		return fmt.Errorf("image: %w", err)
	}

	client := replicate.NewImage(&replicate.Config{
		Token:    cfg.ReplicateToken,
		BaseURL:  cfg.ReplicateBase,
		Debug:    cfg.Debug,
		Recorder: recorder,
	})
	p := pipeline.New(&pipeline.Config{
		Image: client,
		Store: s,
		Debug: cfg.Debug,
	})
	if err := p.Image(ctx, session); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	log.Printf("image: cover ready at %s\n", session.ImagePath)
	return nil
}
