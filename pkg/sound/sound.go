package sound

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// bytesPerSample is the PCM frame size produced by the decoder, 16-bit
// stereo.
const bytesPerSample = 4

// Duration decodes an MP3 file header and returns the track length. It is
// the fallback when ffprobe is unavailable or can't report a duration.
func Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("sound: couldn't open file: %w", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("sound: couldn't read file: %w", err)
	}
	decoder, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return 0, fmt.Errorf("sound: couldn't decode mp3: %w", err)
	}
	samples := decoder.Length() / bytesPerSample
	secs := float64(samples) / float64(decoder.SampleRate())
	return time.Duration(secs * float64(time.Second)), nil
}
