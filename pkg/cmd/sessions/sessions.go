package sessions

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/store"
)

type Config struct {
	Debug  bool
	Output string

	// SessionID prints one session in detail instead of the table.
	SessionID string
}

// Run lists the sessions under the output directory with the state of each
// stage.
func Run(ctx context.Context, cfg *Config) error {
	output := cfg.Output
	if output == "" {
		output = "output"
	}
	s := store.New(output)

	if cfg.SessionID != "" {
		session, err := s.Load(cfg.SessionID)
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
		printSession(session)
		return nil
	}

	list, err := s.List()
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if len(list) == 0 {
		log.Println("sessions: no sessions found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCREATED\tTITLE\tMUSIC\tIMAGE\tVIDEO")
	for _, session := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			session.ID,
			time.Unix(session.Timestamp, 0).Format("2006-01-02 15:04"),
			session.Request.Title,
			stageState(respOrNil(session.Response), session.LocalPath),
			stageState(respOrNil(session.ImageResponse), session.ImagePath),
			stageState(respOrNil(session.VideoResponse), session.VideoPath),
		)
	}
	return w.Flush()
}

// respOrNil converts a possibly nil response pointer to the shared
// interface without producing a typed nil.
func respOrNil[T any, P interface {
	*T
	generation.Response
}](p P) generation.Response {
	if p == nil {
		return nil
	}
	return p
}

// stageState summarizes a stage: missing, pending, failed or done.
func stageState(resp generation.Response, path string) string {
	switch {
	case resp == nil:
		return "-"
	case resp.Failed():
		return "failed"
	case !resp.Completed():
		return "pending"
	case path == "":
		return "no file"
	default:
		return "done"
	}
}

func printSession(session *generation.Session) {
	fmt.Printf("session:\t%s\n", session.ID)
	fmt.Printf("created:\t%s\n", time.Unix(session.Timestamp, 0).Format(time.RFC3339))
	fmt.Printf("title:\t%s\n", session.Request.Title)
	fmt.Printf("style:\t%s\n", session.Request.Style)
	fmt.Printf("model:\t%s\n", session.Request.Model)
	if session.Response != nil {
		fmt.Printf("music:\t%s (%s)\n", session.Response.Status, session.Response.RequestID)
		for i, track := range session.Response.Tracks {
			fmt.Printf("track %d:\t%s\n", i+1, track.ID)
		}
	}
	if session.LocalPath != "" {
		fmt.Printf("audio:\t%s\n", session.LocalPath)
	}
	if session.ImageResponse != nil {
		fmt.Printf("image:\t%s (%s)\n", session.ImageResponse.Status, session.ImageResponse.PredictionID)
	}
	if session.ImagePath != "" {
		fmt.Printf("cover:\t%s\n", session.ImagePath)
	}
	if session.VideoResponse != nil {
		fmt.Printf("video:\t%s (%s)\n", session.VideoResponse.Status, session.VideoResponse.PredictionID)
	}
	if session.VideoPath != "" {
		fmt.Printf("final:\t%s\n", session.VideoPath)
	}
}
