// Package speech 提供同步文本转语音服务商适配器。
package speech

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/mediaflow/internal/tlsutil"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/types"
)

// ElevenLabsConfig 配置 ElevenLabs 语音合成
type ElevenLabsConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	DefaultVoice string        `json:"default_voice,omitempty" yaml:"default_voice,omitempty"`
	OutputFormat string        `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultElevenLabsConfig 返回默认 ElevenLabs 配置
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		BaseURL:      "https://api.elevenlabs.io",
		Model:        "eleven_multilingual_v2",
		DefaultVoice: "21m00Tcm4TlvDq8ikWAM", // Rachel
		OutputFormat: "mp3_44100_128",
		Timeout:      2 * time.Minute,
	}
}

// ElevenLabs implements synchronous speech synthesis.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabs creates a new ElevenLabs speech provider.
func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	def := DefaultElevenLabsConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = def.DefaultVoice
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = def.OutputFormat
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: tlsutil.APIClient(cfg.Timeout),
	}
}

func (p *ElevenLabs) Name() string    { return "elevenlabs" }
func (p *ElevenLabs) Kind() task.Kind { return task.KindSpeech }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// Generate synthesizes speech and returns the encoded audio bytes.
// Endpoint: POST /v1/text-to-speech/{voice_id}?output_format=
func (p *ElevenLabs) Generate(ctx context.Context, req *provider.Request) (*provider.Artifact, error) {
	if err := provider.RequireAPIKey(p.Name(), p.cfg.APIKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "text is required").WithProvider(p.Name())
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	voice := req.Voice
	if voice == "" {
		voice = p.cfg.DefaultVoice
	}

	body := ttsRequest{Text: req.Prompt, ModelID: model}
	if req.Options["stability"] != "" || req.Options["similarity_boost"] != "" {
		body.VoiceSettings = &voiceSettings{
			Stability:       parseFloat(req.Options["stability"], 0.5),
			SimilarityBoost: parseFloat(req.Options["similarity_boost"], 0.75),
		}
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(voice), url.QueryEscape(p.cfg.OutputFormat))

	data, header, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodPost,
		URL:      endpoint,
		Headers: map[string]string{
			"xi-api-key": p.cfg.APIKey,
			"Accept":     "audio/mpeg",
		},
		Body: body,
	})
	if err != nil {
		return nil, p.refine(err)
	}
	if len(data) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "elevenlabs returned empty audio").WithProvider(p.Name())
	}

	mime := header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/json") {
		return nil, types.NewError(types.ErrUpstreamError,
			"elevenlabs returned non-audio body: "+provider.ErrorMessage(data)).WithProvider(p.Name())
	}

	return &provider.Artifact{
		Provider:      p.Name(),
		Model:         model,
		Media:         provider.MediaRef{Data: data, MimeType: mime, Ext: extFor(p.cfg.OutputFormat)},
		EstimatedCost: float64(len([]rune(req.Prompt))) * 0.00003,
		Metadata: map[string]string{
			"voice":      voice,
			"request_id": header.Get("request-id"),
		},
	}, nil
}

// refine: ElevenLabs 额度耗尽时返回 401 + detail.status=quota_exceeded
func (p *ElevenLabs) refine(err error) error {
	e, ok := types.AsError(err)
	if !ok || e.Code != types.ErrAuthentication {
		return err
	}
	if strings.Contains(e.Message, "quota") {
		return types.NewError(types.ErrInsufficientCredits, e.Message).
			WithHTTPStatus(e.HTTPStatus).WithProvider(p.Name())
	}
	return err
}

func extFor(format string) string {
	switch {
	case strings.HasPrefix(format, "pcm"):
		return "pcm"
	case strings.HasPrefix(format, "ulaw"):
		return "ulaw"
	case strings.HasPrefix(format, "opus"):
		return "opus"
	default:
		return "mp3"
	}
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
