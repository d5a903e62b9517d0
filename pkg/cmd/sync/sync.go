package sync

import (
	"context"
	"fmt"
	"log"

	"github.com/igolaizola/songclip/pkg/filestore"
	"github.com/igolaizola/songclip/pkg/store"
)

type Config struct {
	Debug  bool
	Output string

	FSType string
	FSConn string

	// SessionID limits the sync to one session, empty syncs everything.
	SessionID string
	// OnlyComplete skips sessions that haven't produced a final video yet.
	OnlyComplete bool
}

// Run uploads session artifacts to the configured file storage.
func Run(ctx context.Context, cfg *Config) error {
	var synced int
	log.Println("sync: process started")
	defer func() {
		log.Printf("sync: process ended (%d)\n", synced)
	}()

	output := cfg.Output
	if output == "" {
		output = "output"
	}
	s := store.New(output)

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	sessions, err := s.List()
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	for _, session := range sessions {
		if cfg.SessionID != "" && session.ID != cfg.SessionID {
			continue
		}
		if cfg.OnlyComplete && session.VideoPath == "" {
			continue
		}
		if err := fs.UploadSession(ctx, session, session.Dir(output)); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		synced++
		log.Printf("sync: uploaded session %s\n", session.ID)
	}
	if cfg.SessionID != "" && synced == 0 {
		return fmt.Errorf("sync: session %s not found", cfg.SessionID)
	}
	return nil
}
