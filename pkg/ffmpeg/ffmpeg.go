package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrDurationUnknown is returned when ffprobe can't report a duration for a
// file, typically a stream without a duration header.
var ErrDurationUnknown = errors.New("ffmpeg: duration unknown")

// Error wraps a non-zero ffmpeg exit with the tool's combined output, which
// holds the actual failure reason.
type Error struct {
	Op     string
	Err    error
	Output string
}

func (e *Error) Error() string {
	out := e.Output
	if len(out) > 200 {
		out = out[len(out)-200:]
	}
	return fmt.Sprintf("ffmpeg: couldn't %s: %v: %s", e.Op, e.Err, out)
}

func (e *Error) Unwrap() error { return e.Err }

// FFmpeg shells out to the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	bin      string
	probeBin string
}

func New(bin, probeBin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if probeBin == "" {
		probeBin = "ffprobe"
	}
	return &FFmpeg{bin: bin, probeBin: probeBin}
}

func (f *FFmpeg) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.bin, args...)
	data, err := cmd.CombinedOutput()
	if err != nil {
		return &Error{Op: op, Err: err, Output: string(data)}
	}
	return nil
}

// Duration probes the duration of a media file.
func (f *FFmpeg) Duration(ctx context.Context, input string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.probeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		input,
	)
	// Keep stderr out of the JSON payload.
	data, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		out := ""
		if errors.As(err, &exitErr) {
			out = string(exitErr.Stderr)
		}
		return 0, &Error{Op: "probe duration", Err: err, Output: out}
	}
	var out struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("ffmpeg: couldn't unmarshal probe output: %w", err)
	}
	if out.Format.Duration == "" {
		return 0, ErrDurationUnknown
	}
	secs, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrDurationUnknown, out.Format.Duration)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Loop repeats the input video count times using the concat demuxer, trims
// the result to target and re-encodes it once. The output has no audio
// track, the soundtrack is muxed in afterwards.
func (f *FFmpeg) Loop(ctx context.Context, input, output string, count int, target time.Duration) error {
	if count < 1 {
		count = 1
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		return fmt.Errorf("ffmpeg: couldn't resolve input path: %w", err)
	}
	var list strings.Builder
	for i := 0; i < count; i++ {
		fmt.Fprintf(&list, "file '%s'\n", abs)
	}
	listFile, err := os.CreateTemp("", "concat-*.txt")
	if err != nil {
		return fmt.Errorf("ffmpeg: couldn't create concat list: %w", err)
	}
	defer os.Remove(listFile.Name())
	if _, err := listFile.WriteString(list.String()); err != nil {
		_ = listFile.Close()
		return fmt.Errorf("ffmpeg: couldn't write concat list: %w", err)
	}
	if err := listFile.Close(); err != nil {
		return fmt.Errorf("ffmpeg: couldn't close concat list: %w", err)
	}
	return f.run(ctx, "loop video",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile.Name(),
		"-t", toText(target),
		"-c:v", "libx264",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-an",
		output,
	)
}

// Burn renders a subtitle file onto the video and muxes the audio track in.
// ASS files go through the ass filter so karaoke timing tags are honored,
// SRT files through the subtitles filter.
func (f *FFmpeg) Burn(ctx context.Context, video, subtitle, audio, output string) error {
	var filter string
	switch filepath.Ext(subtitle) {
	case ".ass":
		filter = fmt.Sprintf("ass=%s", filterPath(subtitle))
	case ".srt":
		filter = fmt.Sprintf("subtitles=%s", filterPath(subtitle))
	default:
		return fmt.Errorf("ffmpeg: unsupported subtitle format: %s", subtitle)
	}
	args := []string{
		"-y",
		"-i", video,
	}
	if audio != "" {
		args = append(args, "-i", audio)
	}
	args = append(args,
		"-vf", filter,
		"-c:v", "libx264",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
	)
	if audio != "" {
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-shortest")
	}
	args = append(args, output)
	return f.run(ctx, "burn subtitles", args...)
}

// Mux copies the video stream and attaches the audio track without
// re-encoding the picture.
func (f *FFmpeg) Mux(ctx context.Context, video, audio, output string) error {
	return f.run(ctx, "mux audio",
		"-y",
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		output,
	)
}

// filterPath escapes a path for use inside an ffmpeg filter argument.
func filterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `:`, `\:`)
	path = strings.ReplaceAll(path, `'`, `\'`)
	return path
}

func toText(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
