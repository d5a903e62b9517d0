package video

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/igolaizola/songclip/pkg/ffmpeg"
)

// Processor turns a short animation clip into a full-length lyric video.
// Renders are heavy ffmpeg encodes, so a semaphore bounds how many run at
// once.
type Processor struct {
	ffmpeg *ffmpeg.FFmpeg
	sem    chan struct{}
	debug  bool
}

type Config struct {
	FFmpegBin  string
	FFprobeBin string
	Workers    int
	Debug      bool
}

func NewProcessor(cfg *Config) *Processor {
	workers := cfg.Workers
	if workers < 1 {
		workers = 2
	}
	return &Processor{
		ffmpeg: ffmpeg.New(cfg.FFmpegBin, cfg.FFprobeBin),
		sem:    make(chan struct{}, workers),
		debug:  cfg.Debug,
	}
}

func (p *Processor) log(format string, args ...interface{}) {
	if p.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Duration probes the duration of a media file.
func (p *Processor) Duration(ctx context.Context, input string) (time.Duration, error) {
	return p.ffmpeg.Duration(ctx, input)
}

// Loop extends a short animation to the target duration by concatenating it
// with itself enough times and trimming the result. The output is a silent
// video, the soundtrack comes in at render time.
func (p *Processor) Loop(ctx context.Context, animation, output string, target time.Duration) error {
	d, err := p.ffmpeg.Duration(ctx, animation)
	if err != nil {
		return fmt.Errorf("video: couldn't probe animation: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("video: animation has no duration")
	}
	count := int(math.Ceil(target.Seconds() / d.Seconds()))
	p.log("video: looping %s x%d to %s", animation, count, target)
	if err := p.ffmpeg.Loop(ctx, animation, output, count, target); err != nil {
		return fmt.Errorf("video: couldn't loop animation: %w", err)
	}
	return nil
}

// Render produces the final video from a looped clip, an audio track and
// the lyrics. It tries progressively simpler outputs: karaoke captions,
// plain captions, audio-only mux and finally a bare copy of the clip. Only
// the last resort failing is an error, caption problems must never lose a
// finished song.
func (p *Processor) Render(ctx context.Context, video, audio, lyrics string, total time.Duration, output string) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	cues := Cues(lyrics, total)
	if len(cues) > 0 && audio != "" {
		if err := p.burn(ctx, video, audio, output, ASS(cues), ".ass"); err != nil {
			log.Printf("video: karaoke render failed, falling back to plain captions: %v\n", err)
		} else {
			return nil
		}
		if err := p.burn(ctx, video, audio, output, SRT(cues), ".srt"); err != nil {
			log.Printf("video: caption render failed, falling back to audio only: %v\n", err)
		} else {
			return nil
		}
	}
	if audio != "" {
		if err := p.ffmpeg.Mux(ctx, video, audio, output); err != nil {
			log.Printf("video: audio mux failed, falling back to bare copy: %v\n", err)
		} else {
			return nil
		}
	}
	if err := copyFile(video, output); err != nil {
		return fmt.Errorf("video: couldn't copy video: %w", err)
	}
	return nil
}

// burn writes the subtitle document to a temporary file and renders it onto
// the video.
func (p *Processor) burn(ctx context.Context, video, audio, output, doc, ext string) error {
	f, err := os.CreateTemp("", "captions-*"+ext)
	if err != nil {
		return fmt.Errorf("video: couldn't create subtitle file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("video: couldn't write subtitle file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("video: couldn't close subtitle file: %w", err)
	}
	return p.ffmpeg.Burn(ctx, video, f.Name(), audio, output)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
