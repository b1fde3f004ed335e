package video

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/mediaflow/internal/tlsutil"
	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
)

// Veo 使用 Gemini API 的长时运行操作生成视频。
type Veo struct {
	cfg    VeoConfig
	client *http.Client
}

// Ordered extraction paths for operation responses. Different API
// revisions place the generated video under different keys.
var (
	veoURIPaths = []string{
		"response.generateVideoResponse.generatedSamples.#.video.uri",
		"response.generatedVideos.#.video.uri",
		"response.videos.#.uri",
		"response.videos.#.gcsUri",
	}
	veoInlinePaths = []string{
		"response.videos.#.bytesBase64Encoded",
		"response.predictions.#.bytesBase64Encoded",
		"response.predictions.#.video",
	}
	veoProgressPaths = []string{"metadata.progressPercent", "metadata.progress"}
	veoErrorPaths    = []string{"error.message", "error.status"}
	veoFilteredPaths = []string{
		"response.generateVideoResponse.raiMediaFilteredReasons.0",
		"response.raiMediaFilteredReasons.0",
	}
)

// NewVeo 创建 Veo 视频服务商
func NewVeo(cfg VeoConfig) *Veo {
	def := DefaultVeoConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &Veo{
		cfg:    cfg,
		client: tlsutil.APIClient(cfg.Timeout),
	}
}

func (p *Veo) Name() string    { return "veo" }
func (p *Veo) Kind() task.Kind { return task.KindVideo }

type veoRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParams     `json:"parameters"`
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoImage struct {
	GcsURI string `json:"gcsUri,omitempty"`
}

type veoParams struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

func (p *Veo) headers() map[string]string {
	return map[string]string{"x-goog-api-key": p.cfg.APIKey}
}

// Submit 启动长时运行操作
// 端点: POST /v1beta/models/{model}:predictLongRunning
func (p *Veo) Submit(ctx context.Context, req *provider.Request) (provider.Submission, error) {
	if err := provider.RequireAPIKey(p.Name(), p.cfg.APIKey); err != nil {
		return provider.Submission{}, err
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	duration := int(req.Duration)
	if duration == 0 {
		duration = 8
	}

	instance := veoInstance{Prompt: req.Prompt}
	if req.ImageURL != "" {
		instance.Image = &veoImage{GcsURI: req.ImageURL}
	}

	data, _, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodPost,
		URL: fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning",
			strings.TrimRight(p.cfg.BaseURL, "/"), model),
		Headers: p.headers(),
		Body: veoRequest{
			Instances: []veoInstance{instance},
			Parameters: veoParams{
				AspectRatio:     req.AspectRatio,
				NegativePrompt:  req.Options["negative_prompt"],
				DurationSeconds: duration,
			},
		},
	})
	if err != nil {
		return provider.Submission{}, err
	}

	name, ok := provider.FirstString(data, "name")
	if !ok {
		return provider.Submission{}, fmt.Errorf("veo response missing operation name: %s", provider.ErrorMessage(data))
	}
	return provider.Submission{ExternalID: name, Model: model}, nil
}

// Poll 查询操作状态
// 端点: GET /v1beta/{operation}
func (p *Veo) Poll(ctx context.Context, externalID string) (provider.PollResult, error) {
	data, _, err := provider.Do(ctx, p.client, provider.Call{
		Provider: p.Name(),
		Method:   http.MethodGet,
		URL:      fmt.Sprintf("%s/v1beta/%s", strings.TrimRight(p.cfg.BaseURL, "/"), strings.TrimLeft(externalID, "/")),
		Headers:  p.headers(),
	})
	if err != nil {
		return provider.PollResult{}, err
	}
	return p.parseOperation(data), nil
}

func (p *Veo) parseOperation(data []byte) provider.PollResult {
	if msg, ok := provider.FirstString(data, veoErrorPaths...); ok {
		return provider.Failed("Veo generation failed: " + msg)
	}

	if !gjson.GetBytes(data, "done").Bool() {
		if f, ok := provider.FirstNumber(data, veoProgressPaths...); ok {
			return provider.InProgress(int(f))
		}
		return provider.InProgress(provider.UnknownProgress)
	}

	if uris := provider.FirstStrings(data, veoURIPaths...); len(uris) > 0 {
		outputs := make([]provider.MediaRef, len(uris))
		for i, u := range uris {
			// 下载 Gemini 文件需要同样的 API Key
			outputs[i] = provider.MediaRef{
				URL: u, MimeType: "video/mp4", Ext: "mp4",
				Headers: p.headers(),
			}
		}
		return provider.Succeeded(outputs...)
	}
	if blobs := provider.FirstStrings(data, veoInlinePaths...); len(blobs) > 0 {
		outputs := make([]provider.MediaRef, len(blobs))
		for i, b := range blobs {
			outputs[i] = provider.MediaRef{B64: b, MimeType: "video/mp4", Ext: "mp4"}
		}
		return provider.Succeeded(outputs...)
	}
	if reason, ok := provider.FirstString(data, veoFilteredPaths...); ok {
		return provider.Failed("Veo generation filtered: " + reason)
	}
	return provider.Failed("Veo operation finished without video")
}

// EstimateCost Veo 按生成秒数计费
func (p *Veo) EstimateCost(req *provider.Request) float64 {
	duration := req.Duration
	if duration == 0 {
		duration = 8
	}
	return 0.40 * duration
}
