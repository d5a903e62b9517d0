package video

import (
	"fmt"
	"strings"
	"time"
)

// assHeader declares a single centered style used by every dialogue line.
const assHeader = `[Script Info]
Title: Lyrics
ScriptType: v4.00+
PlayResX: 1280
PlayResY: 720

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,48,&H00FFFFFF,&H00FFD700,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,2,1,2,40,40,60,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// ASS renders cues as an Advanced SubStation document with per-word karaoke
// timing. Each word of a cue gets an equal slice of the cue window via \k
// tags, which ffmpeg's ass filter animates as a progressive highlight.
func ASS(cues []Cue) string {
	var b strings.Builder
	b.WriteString(assHeader)
	for _, cue := range cues {
		b.WriteString(fmt.Sprintf("Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			assTime(cue.Start), assTime(cue.End), karaokeText(cue)))
	}
	return b.String()
}

// karaokeText splits the cue text into words and prefixes each with a \k
// duration in centiseconds.
func karaokeText(cue Cue) string {
	words := strings.Fields(cue.Text)
	if len(words) == 0 {
		return ""
	}
	window := cue.End - cue.Start
	perWord := int(window.Milliseconds()) / 10 / len(words)
	if perWord < 1 {
		perWord = 1
	}
	var b strings.Builder
	for i, word := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmt.Sprintf(`{\k%d}%s`, perWord, escapeASS(word)))
	}
	return b.String()
}

func escapeASS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return s
}

// assTime formats a duration as H:MM:SS.CS, the timestamp format of ASS
// event lines.
func assTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	cs := int(d.Milliseconds()) % 1000 / 10
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
