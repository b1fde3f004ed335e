package music

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/BaSui01/mediaflow/internal/tlsutil"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/types"
)

// MiniMax implements synchronous music generation using the MiniMax API.
type MiniMax struct {
	cfg    MiniMaxConfig
	client *http.Client
}

// NewMiniMax creates a new MiniMax music provider.
func NewMiniMax(cfg MiniMaxConfig) *MiniMax {
	def := DefaultMiniMaxConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &MiniMax{
		cfg:    cfg,
		client: tlsutil.APIClient(cfg.Timeout),
	}
}

func (p *MiniMax) Name() string    { return "minimax" }
func (p *MiniMax) Kind() task.Kind { return task.KindMusic }

type miniMaxAudioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
}

type miniMaxRequest struct {
	Model        string              `json:"model"`
	Prompt       string              `json:"prompt,omitempty"`
	Lyrics       string              `json:"lyrics,omitempty"`
	OutputFormat string              `json:"output_format"`
	AudioSetting miniMaxAudioSetting `json:"audio_setting"`
}

// miniMaxCodes maps base_resp.status_code values onto error codes.
var miniMaxCodes = map[int]types.ErrorCode{
	1002: types.ErrRateLimit,
	1004: types.ErrAuthentication,
	1008: types.ErrInsufficientCredits,
	1026: types.ErrInvalidRequest,
	1027: types.ErrInvalidRequest,
	2013: types.ErrInvalidRequest,
}

func (p *MiniMax) businessError(code int, msg string) *types.Error {
	ec, ok := miniMaxCodes[code]
	if !ok {
		ec = types.ErrUpstreamError
	}
	return types.NewError(ec, fmt.Sprintf("minimax error: code=%d %s", code, msg)).
		WithRetryable(ec == types.ErrRateLimit).
		WithProvider(p.Name())
}

// Generate creates music and returns the decoded audio.
// Endpoint: POST /v1/music_generation
func (p *MiniMax) Generate(ctx context.Context, req *provider.Request) (*provider.Artifact, error) {
	if err := provider.RequireAPIKey(p.Name(), p.cfg.APIKey); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	lyrics := req.Lyrics
	if lyrics == "" && req.Instrumental {
		lyrics = "[Instrumental]"
	}

	data, _, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodPost,
		URL:      strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/music_generation",
		Headers:  map[string]string{"Authorization": "Bearer " + p.cfg.APIKey},
		Body: miniMaxRequest{
			Model:        model,
			Prompt:       req.Prompt,
			Lyrics:       lyrics,
			OutputFormat: "hex",
			AudioSetting: miniMaxAudioSetting{SampleRate: 44100, Bitrate: 256000, Format: "mp3"},
		},
	})
	if err != nil {
		return nil, err
	}

	if code, ok := provider.FirstNumber(data, "base_resp.status_code"); ok && code != 0 {
		msg, _ := provider.FirstString(data, "base_resp.status_msg")
		return nil, p.businessError(int(code), msg)
	}

	audio, ok := provider.FirstString(data, "data.audio", "data.audio_url")
	if !ok {
		return nil, types.NewError(types.ErrUpstreamError, "minimax response missing audio").WithProvider(p.Name())
	}

	media := provider.MediaRef{MimeType: "audio/mpeg", Ext: "mp3"}
	if strings.HasPrefix(audio, "http://") || strings.HasPrefix(audio, "https://") {
		media.URL = audio
	} else {
		raw, err := hex.DecodeString(audio)
		if err != nil {
			return nil, types.NewError(types.ErrUpstreamError, "minimax returned undecodable audio").
				WithCause(err).WithProvider(p.Name())
		}
		media.Data = raw
	}
	if ms, ok := provider.FirstNumber(data, "extra_info.music_duration", "extra_info.audio_length"); ok {
		media.Duration = ms / 1000
	}

	return &provider.Artifact{
		Provider:      p.Name(),
		Model:         model,
		Media:         media,
		EstimatedCost: 0.035,
		Metadata:      map[string]string{"trace_id": traceID(data)},
	}, nil
}

func traceID(data []byte) string {
	id, _ := provider.FirstString(data, "trace_id")
	return id
}
