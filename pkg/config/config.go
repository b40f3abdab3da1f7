package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	App       AppConfig                 `json:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways"`
	Providers map[string]ProviderConfig `json:"providers"`
	Media     MediaConfig               `json:"media"`
	Agent     AgentConfig               `json:"agent"`
	Memory    MemoryConfig              `json:"memory"`
}

type AppConfig struct {
	Name      string `json:"name"`
	Workspace string `json:"workspace"`
}

type GatewayConfig struct {
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

// MediaConfig configures the media generation provider endpoint shared by
// the image/video/music/speech tools.
type MediaConfig struct {
	BaseURL         string `json:"base_url"`
	APIKey          string `json:"api_key"`
	ImageModel      string `json:"image_model"`
	VideoModel      string `json:"video_model"`
	MusicModel      string `json:"music_model"`
	VoiceModel      string `json:"voice_model"`
	TranscribeModel string `json:"transcribe_model"`
	Enabled         bool   `json:"enabled"`
}

// AgentConfig carries the planning and execution budgets.
type AgentConfig struct {
	MaxIterations  int    `json:"max_iterations"`   // default 8
	TimeoutMS      int    `json:"timeout_ms"`       // default 240000
	PlanTimeoutMS  int    `json:"plan_timeout_ms"`  // 0 = steps x timeout
	MaxPlanSteps   int    `json:"max_plan_steps"`   // default 6
	PlannerModel   string `json:"planner_model"`    // fast tier for planning calls
	ContextMemory  bool   `json:"context_memory"`   // persist execution context across turns
	IncludeHistory bool   `json:"include_history"`  // seed the loop with recent chat history
	HistoryLimit   int    `json:"history_limit"`    // default 10
	LanguageHint   string `json:"language_hint"`    // localization instruction for reasoning steps
}

type MemoryConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

func LoadConfig(path string) *Config {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 8
	}
	if c.Agent.TimeoutMS <= 0 {
		c.Agent.TimeoutMS = 240000
	}
	if c.Agent.MaxPlanSteps <= 0 {
		c.Agent.MaxPlanSteps = 6
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 10
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled {
		return tg, true
	}
	return GatewayConfig{}, false
}
