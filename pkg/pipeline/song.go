package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/igolaizola/songclip/pkg/generation"
)

// Song runs the music stage on a session: submit, poll until terminal and
// download the finished tracks. Stages already completed in a previous run
// are skipped, so the method is safe to call on a resumed session.
func (p *Pipeline) Song(ctx context.Context, session *generation.Session) error {
	if session.Response == nil {
		p.notifier.publish(StageMusic, "submitting music generation")
		resp, err := p.music.Submit(ctx, &session.Request)
		if err != nil {
			return err
		}
		session.Response = resp
		// Save before the first poll so a crash mid-wait doesn't lose the
		// job id and duplicate the generation on resume.
		if err := p.save(session); err != nil {
			return err
		}
		p.notifier.publish(StageMusic, "music job %s submitted", resp.RequestID)
	}

	for !session.Response.Completed() && !session.Response.Failed() {
		if err := wait(ctx, p.musicPoll); err != nil {
			return err
		}
		resp, err := p.music.Poll(ctx, session.Response.JobID())
		if err != nil {
			return err
		}
		session.Response = resp
		if err := p.save(session); err != nil {
			return err
		}
		p.log("pipeline: music job %s is %s", resp.RequestID, resp.Status)
	}
	if session.Response.Failed() {
		return &generation.ServiceError{
			Service: "sunoapi",
			Message: fmt.Sprintf("music job %s failed", session.Response.RequestID),
		}
	}
	p.notifier.publish(StageMusic, "music job %s completed with %d tracks",
		session.Response.RequestID, len(session.Response.Tracks))

	if session.LocalPath != "" {
		return nil
	}
	if !session.Response.HasDownloadableTracks() {
		return fmt.Errorf("pipeline: music job %s completed without downloadable tracks", session.Response.RequestID)
	}
	dir := session.Dir(p.store.Root())
	n := 0
	downloaded := 0
	for _, track := range session.Response.Tracks {
		if track.AudioURL == "" {
			continue
		}
		n++
		path := filepath.Join(dir, session.TrackFile(n, track.Title))
		if !p.music.Download(ctx, track.AudioURL, path) {
			p.log("pipeline: couldn't download track %s", track.ID)
			p.notifier.publish(StageMusic, "couldn't download track %s", track.ID)
			continue
		}
		downloaded++
		p.notifier.publish(StageMusic, "downloaded track %d", n)
	}
	if downloaded == 0 {
		return fmt.Errorf("pipeline: couldn't download any track for job %s", session.Response.RequestID)
	}
	// local_path holds the directory the audio lives in, other tooling
	// scans it for mp3 files.
	session.LocalPath = dir
	return p.save(session)
}
