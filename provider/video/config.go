package video

import "time"

// RunwayConfig 配置 Runway ML 视频生成服务商
type RunwayConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // gen4_turbo, gen3a_turbo
	Version string        `json:"version,omitempty" yaml:"version,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// VeoConfig 配置 Google Veo 视频生成服务商
type VeoConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // veo-3.0-generate-preview
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultRunwayConfig 返回默认 Runway 配置
func DefaultRunwayConfig() RunwayConfig {
	return RunwayConfig{
		BaseURL: "https://api.dev.runwayml.com",
		Model:   "gen4_turbo",
		Version: "2024-11-06",
		Timeout: 60 * time.Second,
	}
}

// DefaultVeoConfig 返回默认 Veo 配置
func DefaultVeoConfig() VeoConfig {
	return VeoConfig{
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "veo-3.0-generate-preview",
		Timeout: 60 * time.Second,
	}
}
