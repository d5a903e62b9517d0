package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/igolaizola/songclip/pkg/generation"
	"github.com/igolaizola/songclip/pkg/sound"
)

// Video runs the animation stage on a session: animate the cover image,
// loop the short clip to the track length and render the final video with
// captions and the soundtrack. It requires the image stage to be done.
func (p *Pipeline) Video(ctx context.Context, session *generation.Session) error {
	if session.VideoPath != "" {
		return nil
	}
	if session.ImagePath == "" {
		return fmt.Errorf("pipeline: session %s has no cover image to animate", session.ID)
	}

	if session.VideoResponse == nil {
		p.notifier.publish(StageVideo, "submitting animation generation")
		resp, err := p.video.Submit(ctx, &generation.VideoRequest{
			ImagePath: session.ImagePath,
			Prompt:    VideoPrompt(&session.Request),
		})
		if err != nil {
			return err
		}
		session.VideoResponse = resp
		if err := p.save(session); err != nil {
			return err
		}
		p.notifier.publish(StageVideo, "animation job %s submitted", resp.PredictionID)
	}

	for !session.VideoResponse.Completed() && !session.VideoResponse.Failed() {
		if err := wait(ctx, p.videoPoll); err != nil {
			return err
		}
		resp, err := p.video.Poll(ctx, session.VideoResponse.JobID())
		if err != nil {
			return err
		}
		session.VideoResponse = resp
		if err := p.save(session); err != nil {
			return err
		}
		p.log("pipeline: animation job %s is %s", resp.PredictionID, resp.Status)
	}
	if session.VideoResponse.Failed() {
		return &generation.ServiceError{
			Service: "replicate",
			Message: fmt.Sprintf("animation job %s failed: %s", session.VideoResponse.PredictionID, session.VideoResponse.Error),
		}
	}

	dir := session.Dir(p.store.Root())
	animation := filepath.Join(dir, session.AnimationFile())
	if _, err := os.Stat(animation); err != nil {
		if !session.VideoResponse.HasVideo() {
			return fmt.Errorf("pipeline: animation job %s completed without a video", session.VideoResponse.PredictionID)
		}
		if !p.video.Download(ctx, session.VideoResponse.VideoURL, animation) {
			return fmt.Errorf("pipeline: couldn't download animation for job %s", session.VideoResponse.PredictionID)
		}
		p.notifier.publish(StageVideo, "animation downloaded")
	}

	return p.Render(ctx, session)
}

// Render runs the loop and caption stage on an already downloaded
// animation. It can be re-triggered on its own, for instance after fixing a
// broken ffmpeg install, and overwrites any previous final video.
func (p *Pipeline) Render(ctx context.Context, session *generation.Session) error {
	dir := session.Dir(p.store.Root())
	animation := filepath.Join(dir, session.AnimationFile())
	if _, err := os.Stat(animation); err != nil {
		return fmt.Errorf("pipeline: session %s has no animation to render: %w", session.ID, err)
	}

	audio := p.audioFile(session)
	target := p.targetDuration(ctx, audio)
	looped := filepath.Join(dir, session.ID+"_looped.mp4")
	defer os.Remove(looped)
	p.notifier.publish(StageRender, "looping animation to %s", target)
	if err := p.processor.Loop(ctx, animation, looped, target); err != nil {
		return err
	}

	lyrics := session.Request.Prompt
	if session.Request.Instrumental {
		lyrics = ""
	}
	final := filepath.Join(dir, session.VideoFile())
	p.notifier.publish(StageRender, "rendering final video")
	if err := p.processor.Render(ctx, looped, audio, lyrics, target, final); err != nil {
		return err
	}
	session.VideoPath = final
	p.notifier.publish(StageRender, "final video ready")
	return p.save(session)
}

// audioFile returns the first track inside the session audio directory,
// empty when nothing has been downloaded yet.
func (p *Pipeline) audioFile(session *generation.Session) string {
	if session.LocalPath == "" {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(session.LocalPath, "*.mp3"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// targetDuration picks the length of the final video: the track duration
// when it can be probed, a fixed default otherwise.
func (p *Pipeline) targetDuration(ctx context.Context, audio string) time.Duration {
	if audio == "" {
		return defaultVideoDuration
	}
	if d, err := p.processor.Duration(ctx, audio); err == nil && d > 0 {
		return d
	}
	if d, err := sound.Duration(audio); err == nil && d > 0 {
		p.log("pipeline: ffprobe unavailable, decoded track duration %s", d)
		return d
	}
	p.log("pipeline: couldn't probe track duration, using default %s", defaultVideoDuration)
	return defaultVideoDuration
}
