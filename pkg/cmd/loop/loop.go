package loop

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/igolaizola/songclip/pkg/cmd/song"
	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/lyrics"
	"github.com/igolaizola/songclip/pkg/pipeline"
)

type Config struct {
	Song song.Config

	Limit       int
	Concurrency int
	Wait        time.Duration
}

// Run generates sessions in a batch. With a theme configured every
// iteration gets freshly written lyrics, otherwise the same prompt is
// reused and only the title is numbered.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("loop: process started")
	var n int
	defer func() {
		log.Printf("loop: process ended (%d)\n", n)
	}()

	p, notifier, err := song.Build(ctx, &cfg.Song)
	if err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	go func() {
		for e := range notifier.Events() {
			log.Printf("loop: [%s] %s\n", e.Stage, e.Message)
		}
	}()
	defer notifier.Close()

	var gen *lyrics.Generator
	if cfg.Song.Describe != "" {
		if cfg.Song.OpenAIKey == "" {
			return fmt.Errorf("loop: description based lyrics need an openai key")
		}
		gen = lyrics.New(&lyrics.Config{APIKey: cfg.Song.OpenAIKey, Model: cfg.Song.OpenAIModel})
	}

	model, err := generation.ParseModel(cfg.Song.Model)
	if err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	req := func(ctx context.Context, i int) (*generation.SongRequest, error) {
		n = i
		prompt, style, title := cfg.Song.Prompt, cfg.Song.Style, cfg.Song.Title
		if gen != nil {
			written, err := gen.Write(ctx, cfg.Song.Describe, cfg.Song.Style)
			if err != nil {
				return nil, err
			}
			prompt = written.Lyrics
			if style == "" {
				style = written.Style
			}
			if title == "" {
				title = written.Title
			}
		} else if cfg.Limit != 1 {
			title = fmt.Sprintf("%s %d", title, i)
		}
		return &generation.SongRequest{
			Prompt:       prompt,
			Style:        style,
			Title:        title,
			Model:        model,
			CustomMode:   cfg.Song.CustomMode,
			Instrumental: cfg.Song.Instrumental,
		}, nil
	}

	wait := cfg.Wait
	if wait < time.Second {
		// Session ids are derived from unix seconds, launching faster than
		// one per second would collide.
		wait = 2 * time.Second
	}
	return p.Loop(ctx, req, &pipeline.LoopConfig{
		Limit:       cfg.Limit,
		Concurrency: cfg.Concurrency,
		Wait:        wait,
	})
}
