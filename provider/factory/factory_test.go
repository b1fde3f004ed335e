package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
)

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		kind    task.Kind
		polling bool
	}{
		{"runway", task.KindVideo, true},
		{"veo", task.KindVideo, true},
		{"suno", task.KindMusic, true},
		{"minimax", task.KindMusic, false},
		{"elevenlabs", task.KindSpeech, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAdapter(tt.name, config.ProviderConfig{APIKey: "k"})
			require.NoError(t, err)
			assert.Equal(t, tt.name, a.Name())
			assert.Equal(t, tt.kind, a.Kind())
			_, isPolling := a.(provider.PollingAdapter)
			assert.Equal(t, tt.polling, isPolling)
		})
	}

	_, err := NewAdapter("dalle", config.ProviderConfig{})
	assert.Error(t, err)
}

func TestNewRegistry_SkipsUnconfigured(t *testing.T) {
	cfg := config.DefaultProvidersConfig()
	cfg.Suno.APIKey = "suno-key"
	cfg.ElevenLabs.APIKey = "el-key"

	reg, err := NewRegistry(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"elevenlabs", "suno"}, reg.Names())
}

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry(config.ProvidersConfig{}, nil)
	require.NoError(t, err)
	assert.Empty(t, reg.Names())
}
