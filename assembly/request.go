package assembly

import (
	"github.com/BaSui01/mediaflow/types"
)

// MaxVideos is the largest number of clips one assembly accepts.
const MaxVideos = 3

// MusicTrack selects the background music and its gain.
// TrimStart and TrimEnd are offsets in seconds into the source; zero means unset.
type MusicTrack struct {
	AssetID   string  `json:"asset_id"`
	Volume    float64 `json:"volume"`
	TrimStart float64 `json:"trim_start,omitempty"`
	TrimEnd   float64 `json:"trim_end,omitempty"`
}

// NarrationTrack is an optional voice-over mixed over the music.
type NarrationTrack struct {
	AssetID string  `json:"asset_id"`
	Volume  float64 `json:"volume"`
}

// Request 合成请求：1–3 个视频片段、一条背景音乐、可选旁白。
// TargetDuration 只会延长拼接结果，不会截断。
type Request struct {
	Videos         []string        `json:"videos"`
	Music          MusicTrack      `json:"music"`
	Narration      *NarrationTrack `json:"narration,omitempty"`
	TargetDuration float64         `json:"target_duration,omitempty"`
	Zoom           bool            `json:"zoom"`
	FadeOut        bool            `json:"fade_out"`
	OutputName     string          `json:"output_name,omitempty"`
}

// Validate checks the request shape before any asset is resolved.
// Volumes are deliberately passed through as given.
func (r Request) Validate() error {
	if len(r.Videos) == 0 {
		return types.NewError(types.ErrInvalidRequest, "at least one video is required")
	}
	if len(r.Videos) > MaxVideos {
		return types.Errorf(types.ErrInvalidRequest, "at most %d videos can be assembled, got %d", MaxVideos, len(r.Videos))
	}
	for i, id := range r.Videos {
		if id == "" {
			return types.Errorf(types.ErrInvalidRequest, "video %d has no asset id", i+1)
		}
	}
	if r.Music.AssetID == "" {
		return types.NewError(types.ErrInvalidRequest, "music asset id is required")
	}
	if r.Music.TrimStart < 0 || r.Music.TrimEnd < 0 {
		return types.NewError(types.ErrInvalidRequest, "music trim offsets must not be negative")
	}
	if r.Music.TrimEnd > 0 && r.Music.TrimEnd <= r.Music.TrimStart {
		return types.NewError(types.ErrInvalidRequest, "music trim end must be after trim start")
	}
	if r.Narration != nil && r.Narration.AssetID == "" {
		return types.NewError(types.ErrInvalidRequest, "narration asset id is required when narration is set")
	}
	if r.TargetDuration < 0 {
		return types.NewError(types.ErrInvalidRequest, "target duration must not be negative")
	}
	return nil
}

// Result is the outcome of one assembly. On failure only Error (and Code)
// are set.
type Result struct {
	Success    bool            `json:"success"`
	OutputPath string          `json:"output_path,omitempty"`
	Duration   float64         `json:"duration,omitempty"`
	CatalogID  string          `json:"catalog_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       types.ErrorCode `json:"code,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

func failed(err error) *Result {
	r := &Result{Success: false, Error: err.Error(), Code: types.GetErrorCode(err)}
	if e, ok := types.AsError(err); ok {
		r.Error = e.Message
		if e.Cause != nil {
			r.Error += ": " + e.Cause.Error()
		}
	}
	return r
}
