package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
)

// SnapshotTool renders a page in headless Chrome and returns a screenshot
// asset plus the visible text. It covers pages the plain reader cannot
// handle (JS-rendered apps, dashboards).
type SnapshotTool struct {
	MediaDir string
}

func NewSnapshotTool(mediaDir string) *SnapshotTool {
	return &SnapshotTool{MediaDir: mediaDir}
}

func (s *SnapshotTool) Name() string {
	return NameSnapshot
}

func (s *SnapshotTool) Description() string {
	return "Render a URL in a headless browser and capture a screenshot plus the visible text. Use when read_page fails or the page needs JavaScript."
}

func (s *SnapshotTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to render and capture",
			},
			"wait_seconds": map[string]any{
				"type":        "integer",
				"description": "Extra seconds to wait after load for dynamic content (default 2, max 15)",
			},
		},
		"required": []string{"url"},
	}
}

func (s *SnapshotTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL         string `json:"url"`
		WaitSeconds int    `json:"wait_seconds"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.URL == "" {
		return "Error: url is required", nil
	}
	wait := args.WaitSeconds
	if wait <= 0 {
		wait = 2
	}
	if wait > 15 {
		wait = 15
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, 60*time.Second)
	defer cancel()

	var shot []byte
	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(args.URL),
		chromedp.Sleep(time.Duration(wait)*time.Second),
		chromedp.FullScreenshot(&shot, 80),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render page: %v", err)
	}

	if err := os.MkdirAll(s.MediaDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %v", err)
	}
	path := filepath.Join(s.MediaDir, fmt.Sprintf("snapshot_%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, shot, 0644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %v", err)
	}

	text := s.extractText(html, args.URL)
	return fmt.Sprintf("SCREENSHOT: %s\n\n-- VISIBLE TEXT --\n%s", path, text), nil
}

func (s *SnapshotTool) extractText(html, pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "(text extraction unavailable)"
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil || article.TextContent == "" {
		return "(no readable text on page)"
	}
	text := article.TextContent
	if len(text) > maxPageChars {
		text = text[:maxPageChars] + "\n... (content truncated) ..."
	}
	return text
}
