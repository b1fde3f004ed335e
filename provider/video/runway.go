package video

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaSui01/mediaflow/internal/tlsutil"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
)

// Runway 使用 Runway ML 任务接口生成视频。
// API 文档: https://docs.dev.runwayml.com/api/
type Runway struct {
	cfg    RunwayConfig
	client *http.Client
}

// Ordered extraction paths for task responses.
var (
	runwayStatusPaths   = []string{"status"}
	runwayProgressPaths = []string{"progress", "progressRatio"}
	runwayOutputPaths   = []string{"output", "artifacts.#.url"}
	runwayFailurePaths  = []string{"failure", "failureReason", "error", "failureCode"}
)

// NewRunway 创建 Runway 视频服务商
func NewRunway(cfg RunwayConfig) *Runway {
	def := DefaultRunwayConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Runway{
		cfg:    cfg,
		client: tlsutil.APIClient(cfg.Timeout),
	}
}

func (p *Runway) Name() string    { return "runway" }
func (p *Runway) Kind() task.Kind { return task.KindVideo }

type runwayRequest struct {
	Model       string `json:"model"`
	PromptText  string `json:"promptText,omitempty"`
	PromptImage string `json:"promptImage,omitempty"` // HTTPS URL or data URI
	Ratio       string `json:"ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

func (p *Runway) headers() map[string]string {
	return map[string]string{
		"Authorization":    "Bearer " + p.cfg.APIKey,
		"X-Runway-Version": p.cfg.Version,
	}
}

// runwayDuration: Runway 只接受 5 或 10 秒
func runwayDuration(seconds float64) int {
	if seconds > 5 {
		return 10
	}
	return 5
}

func runwayRatio(aspect string) string {
	switch aspect {
	case "", "16:9":
		return "1280:720"
	case "9:16":
		return "720:1280"
	case "1:1":
		return "960:960"
	default:
		return aspect
	}
}

// Submit 提交生成任务
// 端点: POST /v1/image_to_video（有参考图）或 POST /v1/text_to_video
func (p *Runway) Submit(ctx context.Context, req *provider.Request) (provider.Submission, error) {
	if err := provider.RequireAPIKey(p.Name(), p.cfg.APIKey); err != nil {
		return provider.Submission{}, err
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	endpoint := "/v1/text_to_video"
	body := runwayRequest{
		Model:      model,
		PromptText: req.Prompt,
		Ratio:      runwayRatio(req.AspectRatio),
		Duration:   runwayDuration(req.Duration),
	}
	if req.ImageURL != "" {
		endpoint = "/v1/image_to_video"
		body.PromptImage = req.ImageURL
	}

	data, _, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodPost,
		URL:      strings.TrimRight(p.cfg.BaseURL, "/") + endpoint,
		Headers:  p.headers(),
		Body:     body,
	})
	if err != nil {
		return provider.Submission{}, err
	}

	id, ok := provider.FirstString(data, "id", "taskId")
	if !ok {
		return provider.Submission{}, fmt.Errorf("runway response missing task id: %s", provider.ErrorMessage(data))
	}
	return provider.Submission{ExternalID: id, Model: model}, nil
}

// Poll 查询任务状态
// 端点: GET /v1/tasks/{id}
func (p *Runway) Poll(ctx context.Context, externalID string) (provider.PollResult, error) {
	data, _, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodGet,
		URL:      fmt.Sprintf("%s/v1/tasks/%s", strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(externalID)),
		Headers:  p.headers(),
	})
	if err != nil {
		return provider.PollResult{}, err
	}
	return parseRunwayTask(data), nil
}

func parseRunwayTask(data []byte) provider.PollResult {
	status, _ := provider.FirstString(data, runwayStatusPaths...)

	switch strings.ToUpper(status) {
	case "SUCCEEDED":
		urls := provider.FirstStrings(data, runwayOutputPaths...)
		if len(urls) == 0 {
			return provider.Failed("Runway task succeeded without output")
		}
		outputs := make([]provider.MediaRef, len(urls))
		for i, u := range urls {
			outputs[i] = provider.MediaRef{URL: u, MimeType: "video/mp4", Ext: "mp4"}
		}
		return provider.Succeeded(outputs...)
	case "FAILED", "CANCELLED":
		reason, ok := provider.FirstString(data, runwayFailurePaths...)
		if !ok {
			reason = strings.ToLower(status)
		}
		return provider.Failed("Runway task failed: " + reason)
	default:
		// PENDING, THROTTLED, RUNNING
		if f, ok := provider.FirstNumber(data, runwayProgressPaths...); ok {
			return provider.InProgress(provider.ProgressFromFraction(f))
		}
		return provider.InProgress(provider.UnknownProgress)
	}
}

// EstimateCost Runway 按秒计费（credits × $0.01）
func (p *Runway) EstimateCost(req *provider.Request) float64 {
	perSecond := 0.05
	if strings.HasPrefix(req.Model, "gen3") {
		perSecond = 0.10
	}
	return perSecond * float64(runwayDuration(req.Duration))
}
