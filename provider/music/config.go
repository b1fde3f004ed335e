package music

import "time"

// SunoConfig 配置 Suno 音乐生成服务商
type SunoConfig struct {
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"` // V3_5, V4, V4_5
	CallbackURL string        `json:"callback_url,omitempty" yaml:"callback_url,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// MiniMaxConfig 配置 MiniMax 音乐生成服务商
type MiniMaxConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // music-1.5
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultSunoConfig 返回默认 Suno 配置
func DefaultSunoConfig() SunoConfig {
	return SunoConfig{
		BaseURL: "https://api.sunoapi.org",
		Model:   "V4_5",
		Timeout: 60 * time.Second,
	}
}

// DefaultMiniMaxConfig 返回默认 MiniMax 配置
func DefaultMiniMaxConfig() MiniMaxConfig {
	return MiniMaxConfig{
		BaseURL: "https://api.minimax.io",
		Model:   "music-1.5",
		Timeout: 5 * time.Minute,
	}
}
