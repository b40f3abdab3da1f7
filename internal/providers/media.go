// Package providers holds the thin HTTP adapters behind the tool-facing
// generator interfaces. Everything here is glue around an
// OpenAI-compatible media endpoint; the agent core never imports it.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RestGenerator calls a generations endpoint that accepts {model, prompt}
// and returns either {"data":[{"url":...}]} or {"url":...}. One instance
// per media kind (image, video, music), differing only in model and path.
type RestGenerator struct {
	BaseURL string
	Path    string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewRestGenerator(baseURL, path, apiKey, model string) *RestGenerator {
	return &RestGenerator{
		BaseURL: baseURL,
		Path:    path,
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *RestGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"model":  g.Model,
		"prompt": prompt,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.BaseURL+g.Path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation failed: status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var payload struct {
		URL  string `json:"url"`
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("unexpected generation response: %w", err)
	}
	if payload.URL != "" {
		return payload.URL, nil
	}
	if len(payload.Data) > 0 && payload.Data[0].URL != "" {
		return payload.Data[0].URL, nil
	}
	return "", fmt.Errorf("generation response contained no asset URL")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
