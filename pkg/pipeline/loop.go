package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
)

// LoopRequest builds the request for the nth iteration of a batch run. It
// lets callers vary titles or generate fresh lyrics per session.
type LoopRequest func(ctx context.Context, n int) (*generation.SongRequest, error)

// LoopConfig controls a batch run.
type LoopConfig struct {
	// Limit is the number of sessions to generate, zero means run until the
	// context is canceled.
	Limit int
	// Concurrency bounds how many sessions run at once.
	Concurrency int
	// Wait is the pause between launching sessions.
	Wait time.Duration
}

// Loop generates sessions repeatedly from the same request. Each iteration
// gets a fresh session, requests differ only in their timestamps. The first
// hard failure stops the loop, failed sessions stay on disk for resuming.
func (p *Pipeline) Loop(ctx context.Context, req LoopRequest, cfg *LoopConfig) error {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	errC := make(chan error, 1)
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var launched int
	for {
		if cfg.Limit > 0 && launched >= cfg.Limit {
			break
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case err := <-errC:
			cancel()
			wg.Wait()
			return err
		case sem <- struct{}{}:
		}
		launched++
		n := launched
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := req(ctx, n)
			if err == nil {
				_, err = p.Run(ctx, r)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				select {
				case errC <- fmt.Errorf("pipeline: iteration %d failed: %w", n, err):
				default:
				}
				return
			}
			log.Printf("pipeline: iteration %d done\n", n)
		}()
		if cfg.Wait > 0 {
			if err := wait(ctx, cfg.Wait); err != nil {
				wg.Wait()
				return err
			}
		}
	}
	wg.Wait()
	select {
	case err := <-errC:
		return err
	default:
		return nil
	}
}
