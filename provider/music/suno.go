package music

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaSui01/mediaflow/internal/tlsutil"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
	"github.com/BaSui01/mediaflow/types"
)

// Suno 使用 Suno API 生成音乐（提交 + 轮询）。
type Suno struct {
	cfg    SunoConfig
	client *http.Client
}

// Ordered extraction paths for record-info responses.
var (
	sunoStatusPaths   = []string{"data.status", "status"}
	sunoAudioPaths    = []string{"data.response.sunoData.#.audioUrl", "data.response.data.#.audio_url", "data.data.#.audio_url"}
	sunoDurationPaths = []string{"data.response.sunoData.0.duration", "data.response.data.0.duration"}
	sunoFailurePaths  = []string{"data.errorMessage", "data.errorCode", "msg"}
)

// Suno 只报告阶段，不报告百分比；阶段按顺序映射为粗粒度进度
var sunoStageProgress = map[string]int{
	"PENDING":       0,
	"TEXT_SUCCESS":  40,
	"FIRST_SUCCESS": 75,
}

// NewSuno 创建 Suno 音乐服务商
func NewSuno(cfg SunoConfig) *Suno {
	def := DefaultSunoConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Suno{
		cfg:    cfg,
		client: tlsutil.APIClient(cfg.Timeout),
	}
}

func (p *Suno) Name() string    { return "suno" }
func (p *Suno) Kind() task.Kind { return task.KindMusic }

type sunoRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallbackURL  string `json:"callBackUrl"`
}

func (p *Suno) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
}

// checkEnvelope: Suno 在 HTTP 200 内返回业务错误码，429 表示积分不足
func (p *Suno) checkEnvelope(data []byte) error {
	code, ok := provider.FirstNumber(data, "code")
	if !ok || int(code) == http.StatusOK {
		return nil
	}
	if int(code) == http.StatusTooManyRequests {
		return types.NewError(types.ErrInsufficientCredits,
			"suno error: status=429 "+provider.ErrorMessage(data)).WithProvider(p.Name())
	}
	return provider.ClassifyHTTP(p.Name(), int(code), data)
}

// Submit 提交生成任务
// 端点: POST /api/v1/generate
func (p *Suno) Submit(ctx context.Context, req *provider.Request) (provider.Submission, error) {
	if err := provider.RequireAPIKey(p.Name(), p.cfg.APIKey); err != nil {
		return provider.Submission{}, err
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body := sunoRequest{
		Prompt:       req.Prompt,
		Style:        req.Style,
		Title:        req.Title,
		CustomMode:   req.Style != "" || req.Title != "",
		Instrumental: req.Instrumental,
		Model:        model,
		CallbackURL:  p.cfg.CallbackURL,
	}
	if req.Lyrics != "" {
		body.Prompt = req.Lyrics
		body.CustomMode = true
	}

	data, _, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodPost,
		URL:      strings.TrimRight(p.cfg.BaseURL, "/") + "/api/v1/generate",
		Headers:  p.headers(),
		Body:     body,
	})
	if err != nil {
		return provider.Submission{}, err
	}
	if err := p.checkEnvelope(data); err != nil {
		return provider.Submission{}, err
	}

	id, ok := provider.FirstString(data, "data.taskId", "data.task_id", "task_id")
	if !ok {
		return provider.Submission{}, fmt.Errorf("suno response missing task id: %s", provider.ErrorMessage(data))
	}
	return provider.Submission{ExternalID: id, Model: model}, nil
}

// Poll 查询任务状态
// 端点: GET /api/v1/generate/record-info?taskId=
func (p *Suno) Poll(ctx context.Context, externalID string) (provider.PollResult, error) {
	data, _, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodGet,
		URL: fmt.Sprintf("%s/api/v1/generate/record-info?taskId=%s",
			strings.TrimRight(p.cfg.BaseURL, "/"), url.QueryEscape(externalID)),
		Headers: p.headers(),
	})
	if err != nil {
		return provider.PollResult{}, err
	}
	if err := p.checkEnvelope(data); err != nil {
		return provider.PollResult{}, err
	}
	return parseSunoRecord(data), nil
}

func parseSunoRecord(data []byte) provider.PollResult {
	status, _ := provider.FirstString(data, sunoStatusPaths...)
	status = strings.ToUpper(status)

	switch {
	case status == "SUCCESS":
		urls := provider.FirstStrings(data, sunoAudioPaths...)
		if len(urls) == 0 {
			return provider.Failed("Suno task succeeded without audio")
		}
		duration, _ := provider.FirstNumber(data, sunoDurationPaths...)
		outputs := make([]provider.MediaRef, len(urls))
		for i, u := range urls {
			outputs[i] = provider.MediaRef{URL: u, MimeType: "audio/mpeg", Ext: "mp3", Duration: duration}
		}
		return provider.Succeeded(outputs...)
	case strings.HasSuffix(status, "_FAILED") || strings.HasSuffix(status, "_ERROR") || status == "CALLBACK_EXCEPTION":
		reason, ok := provider.FirstString(data, sunoFailurePaths...)
		if !ok {
			reason = status
		}
		return provider.Failed("Suno task failed: " + reason)
	default:
		if pct, ok := sunoStageProgress[status]; ok {
			return provider.InProgress(pct)
		}
		return provider.InProgress(provider.UnknownProgress)
	}
}

// EstimateCost Suno 按次计费
func (p *Suno) EstimateCost(req *provider.Request) float64 {
	return 0.06
}
