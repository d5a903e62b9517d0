package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Generator writes songs for a free-text description using a chat
// completion model. It is optional: without an API key the pipeline sends
// the user's prompt to the music service as-is.
type Generator struct {
	client *openai.Client
	model  string
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func New(cfg *Config) *Generator {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &Generator{
		client: openai.NewClientWithConfig(c),
		model:  model,
	}
}

// Song is the model's take on a description: a title, a style descriptor
// and complete lyrics with section tags.
type Song struct {
	Title  string `json:"title"`
	Style  string `json:"style"`
	Lyrics string `json:"lyrics"`
}

const systemPrompt = `You are a songwriter. Write a complete song for the given description.
Respond with a JSON object with exactly these keys:
- "title": a short song title
- "style": a comma separated genre/mood descriptor
- "lyrics": the full lyrics, with section tags like [Verse 1], [Chorus] and [Bridge] on their own lines
Return only the JSON object, no commentary.`

// Write returns a song for a description, optionally constrained to a style.
func (g *Generator) Write(ctx context.Context, description, style string) (*Song, error) {
	user := fmt.Sprintf("Description: %s", description)
	if style != "" {
		user += fmt.Sprintf("\nStyle: %s", style)
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("lyrics: couldn't write song: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("lyrics: empty completion")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	var song Song
	if err := json.Unmarshal([]byte(text), &song); err != nil {
		return nil, fmt.Errorf("lyrics: couldn't unmarshal completion: %w", err)
	}
	if song.Lyrics == "" {
		return nil, fmt.Errorf("lyrics: completion has no lyrics")
	}
	return &song, nil
}
