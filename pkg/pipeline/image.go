package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/igolaizola/songclip/pkg/generation"
)

// Image runs the cover art stage on a session. Like the music stage it
// resumes from whatever state the session already holds.
func (p *Pipeline) Image(ctx context.Context, session *generation.Session) error {
	if session.ImageResponse == nil {
		prompt := ImagePrompt(&session.Request)
		p.notifier.publish(StageImage, "submitting cover generation")
		resp, err := p.image.Submit(ctx, &generation.ImageRequest{
			Prompt:      prompt,
			AspectRatio: "1:1",
		})
		if err != nil {
			return err
		}
		session.ImageResponse = resp
		if err := p.save(session); err != nil {
			return err
		}
		p.notifier.publish(StageImage, "cover job %s submitted", resp.PredictionID)
	}

	for !session.ImageResponse.Completed() && !session.ImageResponse.Failed() {
		if err := wait(ctx, p.imagePoll); err != nil {
			return err
		}
		resp, err := p.image.Poll(ctx, session.ImageResponse.JobID())
		if err != nil {
			return err
		}
		session.ImageResponse = resp
		if err := p.save(session); err != nil {
			return err
		}
		p.log("pipeline: cover job %s is %s", resp.PredictionID, resp.Status)
	}
	if session.ImageResponse.Failed() {
		return &generation.ServiceError{
			Service: "replicate",
			Message: fmt.Sprintf("cover job %s failed: %s", session.ImageResponse.PredictionID, session.ImageResponse.Error),
		}
	}

	if session.ImagePath != "" {
		return nil
	}
	if !session.ImageResponse.HasImages() {
		return fmt.Errorf("pipeline: cover job %s completed without images", session.ImageResponse.PredictionID)
	}
	path := filepath.Join(session.Dir(p.store.Root()), session.CoverFile())
	if !p.image.Download(ctx, session.ImageResponse.ImageURLs[0], path) {
		return fmt.Errorf("pipeline: couldn't download cover for job %s", session.ImageResponse.PredictionID)
	}
	session.ImagePath = path
	p.notifier.publish(StageImage, "cover downloaded")
	return p.save(session)
}
