package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Synthesizer converts text into a spoken-audio asset.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// Transcriber converts an audio asset into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type SpeechTool struct {
	synth Synthesizer
}

func NewSpeechTool(synth Synthesizer) *SpeechTool {
	return &SpeechTool{synth: synth}
}

func (s *SpeechTool) Name() string {
	return NameSpeech
}

func (s *SpeechTool) Description() string {
	return "Convert text into a spoken audio message."
}

func (s *SpeechTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The text to speak",
			},
			"voice": map[string]any{
				"type":        "string",
				"description": "Optional voice name; the provider default is used when omitted",
			},
		},
		"required": []string{"text"},
	}
}

func (s *SpeechTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Text == "" {
		return "Error: text is required", nil
	}

	asset, err := s.synth.Synthesize(ctx, args.Text, args.Voice)
	if err != nil {
		return "", fmt.Errorf("speech synthesis failed: %w", err)
	}
	return asset, nil
}

type TranscribeTool struct {
	transcriber Transcriber
}

func NewTranscribeTool(t Transcriber) *TranscribeTool {
	return &TranscribeTool{transcriber: t}
}

func (t *TranscribeTool) Name() string {
	return NameTranscribe
}

func (t *TranscribeTool) Description() string {
	return "Transcribe an audio file into text."
}

func (t *TranscribeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"audio_path": map[string]any{
				"type":        "string",
				"description": "Path or URL of the audio file to transcribe",
			},
		},
		"required": []string{"audio_path"},
	}
}

func (t *TranscribeTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		AudioPath string `json:"audio_path"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.AudioPath == "" {
		return "Error: audio_path is required", nil
	}

	text, err := t.transcriber.Transcribe(ctx, args.AudioPath)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return text, nil
}
