package video

import (
	"fmt"
	"strings"
	"time"
)

// SRT renders cues as a SubRip document, the plain fallback when the
// karaoke render fails.
func SRT(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(fmt.Sprintf("%d\n%s --> %s\n%s\n",
			cue.Index, srtTime(cue.Start), srtTime(cue.End), cue.Text))
	}
	return b.String()
}

// srtTime formats a duration as HH:MM:SS,mmm with the comma decimal
// separator SubRip requires.
func srtTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
