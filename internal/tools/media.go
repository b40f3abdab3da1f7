package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// MediaGenerator produces a media asset (URL or local path) for a prompt.
// Concrete implementations live behind the provider boundary.
type MediaGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MediaTool is the shared shape of the image/video/music generation tools.
// All three take a single prompt and return an asset reference.
type MediaTool struct {
	name        string
	description string
	promptHint  string
	gen         MediaGenerator
}

func NewImageTool(gen MediaGenerator) *MediaTool {
	return &MediaTool{
		name:        NameImage,
		description: "Generate an image from a text description.",
		promptHint:  "A detailed description of the image to generate",
		gen:         gen,
	}
}

func NewVideoTool(gen MediaGenerator) *MediaTool {
	return &MediaTool{
		name:        NameVideo,
		description: "Generate a short video clip from a text description.",
		promptHint:  "A detailed description of the video to generate",
		gen:         gen,
	}
}

func NewMusicTool(gen MediaGenerator) *MediaTool {
	return &MediaTool{
		name:        NameMusic,
		description: "Generate a music clip from a text description of style and mood.",
		promptHint:  "The style, mood and instrumentation of the music to generate",
		gen:         gen,
	}
}

func (m *MediaTool) Name() string {
	return m.name
}

func (m *MediaTool) Description() string {
	return m.description
}

func (m *MediaTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": m.promptHint,
			},
		},
		"required": []string{"prompt"},
	}
}

func (m *MediaTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Prompt == "" {
		return "Error: prompt is required", nil
	}

	asset, err := m.gen.Generate(ctx, args.Prompt)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", m.name, err)
	}
	return asset, nil
}
