package song

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/lyrics"
	"github.com/igolaizola/songclip/pkg/pipeline"
	"github.com/igolaizola/songclip/pkg/replicate"
	"github.com/igolaizola/songclip/pkg/store"
	"github.com/igolaizola/songclip/pkg/sunoapi"
	"github.com/igolaizola/songclip/pkg/tracker"
	"github.com/igolaizola/songclip/pkg/video"
	"github.com/schollz/progressbar/v3"
)

type Config struct {
	Debug  bool
	Output string
	Proxy  string

	DBType string
	DBConn string

	SunoAPIKey     string
	SunoBase       string
	ReplicateToken string
	ReplicateBase  string
	OpenAIKey      string
	OpenAIModel    string

	FFmpegBin  string
	FFprobeBin string
	Workers    int

	Prompt       string
	Style        string
	Title        string
	Model        string
	CustomMode   bool
	Instrumental bool
	// Describe asks a language model to write title, style and lyrics from
	// a free-text description before submitting.
	Describe string

	// NoImage skips the cover stage (and with it the video), NoVideo keeps
	// the cover but skips the animation.
	NoImage bool
	NoVideo bool
}

// Run generates one full session: song, cover image and lyric video.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("song: process started")
	defer log.Println("song: process ended")

	p, notifier, err := Build(ctx, cfg)
	if err != nil {
		return err
	}

	req, err := buildRequest(ctx, cfg)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionSpinnerType(14),
		)
		for e := range notifier.Events() {
			bar.Describe(fmt.Sprintf("[%s] %s", e.Stage, e.Message))
			_ = bar.Add(1)
		}
		_ = bar.Finish()
	}()

	session, err := p.Run(ctx, req)
	notifier.Close()
	<-done
	if err != nil {
		if session != nil {
			log.Printf("song: session %s saved, resume it once the problem is fixed\n", session.ID)
		}
		return fmt.Errorf("song: %w", err)
	}
	log.Printf("song: session %s complete\n", session.ID)
	log.Printf("song: audio %s\n", session.LocalPath)
	if session.VideoPath != "" {
		log.Printf("song: video %s\n", session.VideoPath)
	}
	return nil
}

// buildRequest assembles the song request, asking the lyric writer to fill
// in whatever the description flow needs and the user didn't set.
func buildRequest(ctx context.Context, cfg *Config) (*generation.SongRequest, error) {
	model, err := generation.ParseModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	prompt, style, title := cfg.Prompt, cfg.Style, cfg.Title
	if cfg.Describe != "" {
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("song: description based lyrics need an openai key")
		}
		gen := lyrics.New(&lyrics.Config{APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel})
		written, err := gen.Write(ctx, cfg.Describe, cfg.Style)
		if err != nil {
			return nil, fmt.Errorf("song: %w", err)
		}
		prompt = written.Lyrics
		if style == "" {
			style = written.Style
		}
		if title == "" {
			title = written.Title
		}
	}
	return &generation.SongRequest{
		Prompt:       prompt,
		Style:        style,
		Title:        title,
		Model:        model,
		CustomMode:   cfg.CustomMode,
		Instrumental: cfg.Instrumental,
	}, nil
}

// Build wires the pipeline with its service clients, store and processor.
func Build(ctx context.Context, cfg *Config) (*pipeline.Pipeline, *pipeline.Notifier, error) {
	recorder, err := newRecorder(ctx, cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("song: %w", err)
	}

	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}

	music := sunoapi.New(&sunoapi.Config{
		APIKey:   cfg.SunoAPIKey,
		BaseURL:  cfg.SunoBase,
		Debug:    cfg.Debug,
		Client:   httpClient,
		Recorder: recorder,
	})
	image := replicate.NewImage(&replicate.Config{
		Token:    cfg.ReplicateToken,
		BaseURL:  cfg.ReplicateBase,
		Debug:    cfg.Debug,
		Client:   httpClient,
		Recorder: recorder,
	})
	vid := replicate.NewVideo(&replicate.Config{
		Token:    cfg.ReplicateToken,
		BaseURL:  cfg.ReplicateBase,
		Debug:    cfg.Debug,
		Client:   httpClient,
		Recorder: recorder,
	})
	processor := video.NewProcessor(&video.Config{
		FFmpegBin:  cfg.FFmpegBin,
		FFprobeBin: cfg.FFprobeBin,
		Workers:    cfg.Workers,
		Debug:      cfg.Debug,
	})
	output := cfg.Output
	if output == "" {
		output = "output"
	}
	notifier := pipeline.NewNotifier(256)
	p := pipeline.New(&pipeline.Config{
		Music:     music,
		Image:     image,
		Video:     vid,
		Store:     store.New(output),
		Processor: processor,
		Notifier:  notifier,
		Debug:     cfg.Debug,
		SkipImage: cfg.NoImage,
		SkipVideo: cfg.NoVideo,
	})
	return p, notifier, nil
}

// newRecorder starts the usage ledger when a database is configured, and
// falls back to a no-op recorder otherwise.
func newRecorder(ctx context.Context, dbType, dbConn string, debug bool) (tracker.Recorder, error) {
	if dbType == "" {
		return tracker.NopRecorder{}, nil
	}
	t, err := tracker.New(dbType, dbConn, debug)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	return t, nil
}
