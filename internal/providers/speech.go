package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// SpeechClient turns text into an audio file via an OpenAI-compatible
// /v1/audio/speech endpoint and saves the bytes under MediaDir.
type SpeechClient struct {
	BaseURL  string
	APIKey   string
	Model    string
	MediaDir string
	Client   *http.Client
}

func NewSpeechClient(baseURL, apiKey, model, mediaDir string) *SpeechClient {
	return &SpeechClient{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Model:    model,
		MediaDir: mediaDir,
		Client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (s *SpeechClient) Synthesize(ctx context.Context, text, voice string) (string, error) {
	if voice == "" {
		voice = "alloy"
	}
	body, err := json.Marshal(map[string]string{
		"model": s.Model,
		"input": text,
		"voice": voice,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.BaseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", fmt.Errorf("speech synthesis failed: status %d: %s", resp.StatusCode, raw)
	}

	if err := os.MkdirAll(s.MediaDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(s.MediaDir, fmt.Sprintf("speech_%d.mp3", time.Now().UnixNano()))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}

// TranscribeClient sends an audio file to an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type TranscribeClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewTranscribeClient(baseURL, apiKey, model string) *TranscribeClient {
	return &TranscribeClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *TranscribeClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := w.WriteField("model", t.Model); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.BaseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription failed: status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("unexpected transcription response: %w", err)
	}
	return payload.Text, nil
}
