package video

import (
	"regexp"
	"strings"
	"time"
)

// maxLineLength is the longest caption line rendered on screen. Longer
// lyric lines are split at word boundaries.
const maxLineLength = 60

// Cue is one caption with its display window. Cues are contiguous and span
// the whole track, there are no gaps between them.
type Cue struct {
	Index int
	Text  string
	Start time.Duration
	End   time.Duration
}

var sectionTag = regexp.MustCompile(`\[[^\]]*\]`)

// Cues converts raw lyrics into timed captions over the given total
// duration. Section tags like [Verse] and [Chorus] are stripped, blank
// lines dropped and overlong lines split. Each resulting line gets an
// equal share of the duration.
func Cues(lyrics string, total time.Duration) []Cue {
	var lines []string
	for _, raw := range strings.Split(lyrics, "\n") {
		line := sectionTag.ReplaceAllString(raw, "")
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		lines = append(lines, splitLine(line)...)
	}
	if len(lines) == 0 || total <= 0 {
		return nil
	}
	share := total / time.Duration(len(lines))
	cues := make([]Cue, len(lines))
	for i, line := range lines {
		start := time.Duration(i) * share
		end := start + share
		if i == len(lines)-1 {
			// Absorb the division remainder so the cues cover the full track.
			end = total
		}
		cues[i] = Cue{
			Index: i + 1,
			Text:  line,
			Start: start,
			End:   end,
		}
	}
	return cues
}

// splitLine breaks a line into chunks of at most maxLineLength characters
// without cutting words. A single word longer than the limit stays whole.
func splitLine(line string) []string {
	if len(line) <= maxLineLength {
		return []string{line}
	}
	var chunks []string
	var current strings.Builder
	for _, word := range strings.Fields(line) {
		if current.Len() > 0 && current.Len()+1+len(word) > maxLineLength {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
