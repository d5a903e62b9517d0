package pipeline

import (
	"fmt"
	"strings"

	"github.com/igolaizola/songclip/pkg/generation"
)

// The visual prompt builder maps song text onto a small vocabulary instead
// of sending raw lyrics to the image model: lyric lines make poor visual
// prompts and regularly trip content filters.

type vocabEntry struct {
	terms  []string
	phrase string
}

var characterVocab = []vocabEntry{
	{terms: []string{"cat", "kitten"}, phrase: "a curious cat"},
	{terms: []string{"dog", "puppy", "wolf"}, phrase: "a lone wolf"},
	{terms: []string{"robot", "android", "machine"}, phrase: "a sleek robot"},
	{terms: []string{"girl", "woman", "queen", "her"}, phrase: "a woman in flowing clothes"},
	{terms: []string{"boy", "man", "king", "him"}, phrase: "a solitary figure"},
	{terms: []string{"bird", "eagle", "raven"}, phrase: "a bird in flight"},
	{terms: []string{"heart", "love", "lover"}, phrase: "two silhouettes close together"},
}

var settingVocab = []vocabEntry{
	{terms: []string{"city", "street", "neon", "urban"}, phrase: "a neon lit city at night"},
	{terms: []string{"ocean", "sea", "wave", "beach"}, phrase: "a wide ocean horizon"},
	{terms: []string{"mountain", "peak", "hill"}, phrase: "misty mountains"},
	{terms: []string{"forest", "tree", "wood"}, phrase: "a deep forest"},
	{terms: []string{"space", "star", "moon", "galaxy"}, phrase: "a starry night sky"},
	{terms: []string{"desert", "sand", "dune"}, phrase: "endless desert dunes"},
	{terms: []string{"rain", "storm", "thunder"}, phrase: "a rain soaked landscape"},
	{terms: []string{"summer", "sun", "sunny"}, phrase: "a golden summer field"},
	{terms: []string{"winter", "snow", "ice"}, phrase: "a frozen winter landscape"},
}

var actionVocab = []vocabEntry{
	{terms: []string{"dance", "dancing", "party"}, phrase: "swaying gently"},
	{terms: []string{"run", "running", "chase"}, phrase: "moving forward"},
	{terms: []string{"fly", "flying", "soar"}, phrase: "drifting upward"},
	{terms: []string{"drive", "driving", "road"}, phrase: "gliding past"},
	{terms: []string{"dream", "sleep", "night"}, phrase: "floating dreamily"},
}

// match returns the phrase of the first vocabulary entry whose term appears
// in the text, or the fallback. First match wins so results are stable for
// a given prompt.
func match(vocab []vocabEntry, text, fallback string) string {
	for _, e := range vocab {
		for _, term := range e.terms {
			if strings.Contains(text, term) {
				return e.phrase
			}
		}
	}
	return fallback
}

// ImagePrompt builds a cover art prompt from the song request.
func ImagePrompt(req *generation.SongRequest) string {
	text := strings.ToLower(req.Prompt + " " + req.Title)
	character := match(characterVocab, text, "a dreamy silhouette")
	setting := match(settingVocab, text, "an abstract dreamscape")
	style := req.Style
	if style == "" {
		style = "digital art"
	}
	return fmt.Sprintf("album cover illustration of %s in %s, %s style, rich colors, detailed, no text", character, setting, style)
}

// VideoPrompt builds an animation prompt for the cover image.
func VideoPrompt(req *generation.SongRequest) string {
	text := strings.ToLower(req.Prompt + " " + req.Title)
	action := match(actionVocab, text, "moving subtly")
	return fmt.Sprintf("the scene comes alive, %s, slow cinematic camera pan, seamless loop", action)
}
