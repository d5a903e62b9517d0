package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/store"
)

// Renderer is the local video processing the pipeline needs, implemented by
// video.Processor.
type Renderer interface {
	Duration(ctx context.Context, input string) (time.Duration, error)
	Loop(ctx context.Context, animation, output string, target time.Duration) error
	Render(ctx context.Context, video, audio, lyrics string, total time.Duration, output string) error
}

const (
	musicPollInterval = 5 * time.Second
	imagePollInterval = 5 * time.Second
	videoPollInterval = 10 * time.Second

	// defaultVideoDuration is used when the track duration can't be probed.
	defaultVideoDuration = 180 * time.Second
)

// Pipeline orchestrates the three generation stages of a song session:
// music, cover image and animated video. Every state transition is saved
// before the next blocking call, so an interrupted run can be resumed from
// whatever the store holds.
type Pipeline struct {
	music     generation.MusicPort
	image     generation.ImagePort
	video     generation.VideoPort
	store     *store.Store
	processor Renderer
	notifier  *Notifier
	debug     bool

	musicPoll time.Duration
	imagePoll time.Duration
	videoPoll time.Duration

	skipImage bool
	skipVideo bool

	// saveMu serializes saves from the concurrent stage goroutines.
	saveMu sync.Mutex
}

type Config struct {
	Music     generation.MusicPort
	Image     generation.ImagePort
	Video     generation.VideoPort
	Store     *store.Store
	Processor Renderer
	Notifier  *Notifier
	Debug     bool

	// SkipImage leaves the session without a cover, which also disables the
	// video stage. SkipVideo keeps the cover but skips the animation.
	SkipImage bool
	SkipVideo bool

	// Poll intervals, zero means the service default.
	MusicPoll time.Duration
	ImagePoll time.Duration
	VideoPoll time.Duration
}

func New(cfg *Config) *Pipeline {
	musicPoll := cfg.MusicPoll
	if musicPoll == 0 {
		musicPoll = musicPollInterval
	}
	imagePoll := cfg.ImagePoll
	if imagePoll == 0 {
		imagePoll = imagePollInterval
	}
	videoPoll := cfg.VideoPoll
	if videoPoll == 0 {
		videoPoll = videoPollInterval
	}
	return &Pipeline{
		music:     cfg.Music,
		image:     cfg.Image,
		video:     cfg.Video,
		store:     cfg.Store,
		processor: cfg.Processor,
		notifier:  cfg.Notifier,
		debug:     cfg.Debug,
		musicPoll: musicPoll,
		imagePoll: imagePoll,
		videoPoll: videoPoll,
		skipImage: cfg.SkipImage,
		skipVideo: cfg.SkipVideo,
	}
}

func (p *Pipeline) log(format string, args ...interface{}) {
	if p.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (p *Pipeline) save(session *generation.Session) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	return p.store.Save(session)
}

// Run executes the full pipeline for a new request: the music and image
// stages run concurrently, the video stage follows once both are done. A
// stage failure never discards what earlier transitions already saved: the
// session is returned alongside the error so callers can resume it later.
func (p *Pipeline) Run(ctx context.Context, req *generation.SongRequest) (*generation.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	session := generation.NewSession(req)
	if err := p.store.CreateDir(session); err != nil {
		return nil, err
	}
	if err := p.save(session); err != nil {
		return nil, err
	}
	p.notifier.publish(StageSession, "session %s created", session.ID)

	// The music and image stages write disjoint session fields, so they can
	// run concurrently and join before the video stage.
	var wg sync.WaitGroup
	var musicErr, imageErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		musicErr = p.Song(ctx, session)
	}()
	if !p.skipImage {
		wg.Add(1)
		go func() {
			defer wg.Done()
			imageErr = p.Image(ctx, session)
		}()
	}
	wg.Wait()

	if musicErr != nil {
		return session, fmt.Errorf("pipeline: music stage failed: %w", musicErr)
	}
	if imageErr != nil {
		return session, fmt.Errorf("pipeline: song is ready but the cover stage failed: %w", imageErr)
	}
	if !p.skipImage && !p.skipVideo {
		if err := p.Video(ctx, session); err != nil {
			return session, fmt.Errorf("pipeline: video stage failed: %w", err)
		}
	}
	p.notifier.publish(StageSession, "session %s complete", session.ID)
	return session, nil
}

// Resume loads a session and runs whatever stages it is still missing.
func (p *Pipeline) Resume(ctx context.Context, id string) (*generation.Session, error) {
	session, err := p.store.Load(id)
	if err != nil {
		return nil, err
	}
	if err := p.Song(ctx, session); err != nil {
		return session, fmt.Errorf("pipeline: music stage failed: %w", err)
	}
	if !p.skipImage {
		if err := p.Image(ctx, session); err != nil {
			return session, fmt.Errorf("pipeline: cover stage failed: %w", err)
		}
		if !p.skipVideo {
			if err := p.Video(ctx, session); err != nil {
				return session, fmt.Errorf("pipeline: video stage failed: %w", err)
			}
		}
	}
	return session, nil
}

// wait sleeps for the poll interval or until the context ends.
func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
