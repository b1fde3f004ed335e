// Package factory builds provider adapters from configuration. It imports
// every adapter sub-package, which the provider package itself cannot do.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/provider/music"
	"github.com/BaSui01/mediaflow/provider/speech"
	"github.com/BaSui01/mediaflow/provider/video"
)

// Names lists every adapter the factory can build.
var Names = []string{"runway", "veo", "suno", "minimax", "elevenlabs"}

// NewAdapter creates the adapter registered under name.
func NewAdapter(name string, pc config.ProviderConfig) (provider.Adapter, error) {
	switch name {
	case "runway":
		return video.NewRunway(video.RunwayConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout}), nil
	case "veo":
		return video.NewVeo(video.VeoConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout}), nil
	case "suno":
		return music.NewSuno(music.SunoConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout}), nil
	case "minimax":
		return music.NewMiniMax(music.MiniMaxConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout}), nil
	case "elevenlabs":
		return speech.NewElevenLabs(speech.ElevenLabsConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// NewRegistry registers every configured provider that has an API key.
// Providers without a key are skipped.
func NewRegistry(cfg config.ProvidersConfig, logger *zap.Logger) (*provider.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	configured := map[string]config.ProviderConfig{
		"runway":     cfg.Runway,
		"veo":        cfg.Veo,
		"suno":       cfg.Suno,
		"minimax":    cfg.MiniMax,
		"elevenlabs": cfg.ElevenLabs,
	}

	reg := provider.NewRegistry()
	for _, name := range Names {
		pc := configured[name]
		if pc.APIKey == "" {
			logger.Debug("provider not configured", zap.String("provider", name))
			continue
		}
		a, err := NewAdapter(name, pc)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
		logger.Info("provider registered", zap.String("provider", name), zap.String("kind", string(a.Kind())))
	}
	return reg, nil
}
