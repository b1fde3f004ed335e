package music

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/types"
)

func TestSuno_Submit(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer suno-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"suno-1"}}`))
	}))
	defer srv.Close()

	p := NewSuno(SunoConfig{APIKey: "suno-key", BaseURL: srv.URL})
	sub, err := p.Submit(context.Background(), &provider.Request{
		Prompt: "calm piano", Style: "ambient", Instrumental: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "suno-1", sub.ExternalID)
	assert.Equal(t, "V4_5", sub.Model)
	assert.Equal(t, true, body["customMode"])
	assert.Equal(t, true, body["instrumental"])
	assert.Equal(t, "ambient", body["style"])
}

func TestSuno_EnvelopeErrors(t *testing.T) {
	cases := []struct {
		payload string
		code    types.ErrorCode
	}{
		{`{"code":401,"msg":"Unauthorized"}`, types.ErrAuthentication},
		{`{"code":429,"msg":"Insufficient credits"}`, types.ErrInsufficientCredits},
		{`{"code":430,"msg":"call frequency too high"}`, types.ErrUpstreamError},
		{`{"code":400,"msg":"prompt too long"}`, types.ErrInvalidRequest},
		{`{"code":455,"msg":"maintenance"}`, types.ErrUpstreamError},
		{`{"code":500,"msg":"internal server failure"}`, types.ErrUpstreamError},
	}
	for _, tc := range cases {
		t.Run(tc.payload, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.payload))
			}))
			defer srv.Close()

			p := NewSuno(SunoConfig{APIKey: "k", BaseURL: srv.URL})
			_, err := p.Submit(context.Background(), &provider.Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tc.code, types.GetErrorCode(err))
		})
	}
}

func TestParseSunoRecord(t *testing.T) {
	r := parseSunoRecord([]byte(`{"code":200,"data":{"status":"PENDING"}}`))
	assert.Equal(t, provider.StateInProgress, r.State)
	assert.Equal(t, 0, r.Progress)

	r = parseSunoRecord([]byte(`{"code":200,"data":{"status":"TEXT_SUCCESS"}}`))
	assert.Equal(t, provider.StateInProgress, r.State)
	assert.Equal(t, 40, r.Progress)

	r = parseSunoRecord([]byte(`{"code":200,"data":{"status":"SOMETHING_NEW"}}`))
	assert.Equal(t, provider.UnknownProgress, r.Progress)

	r = parseSunoRecord([]byte(`{"code":200,"data":{"status":"SUCCESS","response":{"sunoData":[
		{"audioUrl":"https://cdn/a.mp3","duration":62.5},{"audioUrl":"https://cdn/b.mp3","duration":58}]}}}`))
	require.Equal(t, provider.StateSucceeded, r.State)
	require.Len(t, r.Outputs, 2)
	assert.Equal(t, "https://cdn/a.mp3", r.Outputs[0].URL)
	assert.InDelta(t, 62.5, r.Outputs[0].Duration, 1e-9)

	r = parseSunoRecord([]byte(`{"code":200,"data":{"status":"GENERATE_AUDIO_FAILED","errorMessage":"artist name in prompt"}}`))
	assert.Equal(t, provider.StateFailed, r.State)
	assert.Equal(t, "Suno task failed: artist name in prompt", r.Message)

	r = parseSunoRecord([]byte(`{"code":200,"data":{"status":"SENSITIVE_WORD_ERROR"}}`))
	assert.Equal(t, provider.StateFailed, r.State)
}

func TestSuno_Poll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/generate/record-info", r.URL.Path)
		assert.Equal(t, "suno-7", r.URL.Query().Get("taskId"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"status":"FIRST_SUCCESS"}}`))
	}))
	defer srv.Close()

	p := NewSuno(SunoConfig{APIKey: "k", BaseURL: srv.URL})
	r, err := p.Poll(context.Background(), "suno-7")
	require.NoError(t, err)
	assert.Equal(t, 75, r.Progress)
}

func TestMiniMax_Generate(t *testing.T) {
	audio := []byte{0x49, 0x44, 0x33, 0x04}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/music_generation", r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "[Instrumental]", body["lyrics"])
		_, _ = w.Write([]byte(`{"data":{"audio":"` + hex.EncodeToString(audio) + `","status":2},
			"extra_info":{"music_duration":30500},"trace_id":"tr-1","base_resp":{"status_code":0,"status_msg":"success"}}`))
	}))
	defer srv.Close()

	p := NewMiniMax(MiniMaxConfig{APIKey: "mm", BaseURL: srv.URL})
	art, err := p.Generate(context.Background(), &provider.Request{Prompt: "jazz", Instrumental: true})
	require.NoError(t, err)
	assert.Equal(t, "minimax", art.Provider)
	assert.Equal(t, "music-1.5", art.Model)
	assert.Equal(t, audio, art.Media.Data)
	assert.Equal(t, "mp3", art.Media.Ext)
	assert.InDelta(t, 30.5, art.Media.Duration, 1e-9)
	assert.Equal(t, "tr-1", art.Metadata["trace_id"])
}

func TestMiniMax_BusinessErrors(t *testing.T) {
	cases := map[int]types.ErrorCode{
		1002: types.ErrRateLimit,
		1004: types.ErrAuthentication,
		1008: types.ErrInsufficientCredits,
		2013: types.ErrInvalidRequest,
		9999: types.ErrUpstreamError,
	}
	for code, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"base_resp":{"status_code":` + strconv.Itoa(code) + `,"status_msg":"err"}}`))
		}))

		p := NewMiniMax(MiniMaxConfig{APIKey: "mm", BaseURL: srv.URL})
		_, err := p.Generate(context.Background(), &provider.Request{Prompt: "x"})
		require.Error(t, err)
		assert.Equal(t, want, types.GetErrorCode(err), "code %d", code)
		srv.Close()
	}
}

func TestMiniMax_MissingKey(t *testing.T) {
	p := NewMiniMax(MiniMaxConfig{})
	_, err := p.Generate(context.Background(), &provider.Request{Prompt: "x"})
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}
