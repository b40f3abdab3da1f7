package tools

import (
	"context"
)

// Tool defines the interface for all agent capabilities.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Canonical names for the built-in tools. Call sites inside the repo use
// these constants; free-string lookup is reserved for names originating
// from the model.
const (
	NameSearch     = "web_search"
	NameReadPage   = "read_page"
	NameSnapshot   = "snapshot_page"
	NameImage      = "generate_image"
	NameVideo      = "generate_video"
	NameMusic      = "generate_music"
	NameSpeech     = "text_to_speech"
	NameTranscribe = "transcribe_audio"
	NameReminder   = "reminder"
)

// AssetKind classifies a tool's output for media accounting.
// Returns "image", "video", "audio" or "" for plain text tools.
func AssetKind(name string) string {
	switch name {
	case NameImage, NameSnapshot:
		return "image"
	case NameVideo:
		return "video"
	case NameMusic, NameSpeech:
		return "audio"
	}
	return ""
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	if _, seen := r.Tools[t.Name()]; !seen {
		r.order = append(r.order, t.Name())
	}
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the registered tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.Tools[n])
	}
	return out
}
