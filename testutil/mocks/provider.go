// MockPollingAdapter 与 MockSyncAdapter 是生成提供商的测试模拟实现。
//
// 支持脚本化轮询结果、固定产物与错误注入场景。
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/mediaflow/provider"
	"github.com/BaSui01/mediaflow/task"
)

// --- MockPollingAdapter ---

// MockPollingAdapter 按脚本依次返回轮询结果，脚本耗尽后重复最后一项
type MockPollingAdapter struct {
	mu        sync.Mutex
	name      string
	kind      task.Kind
	polls     []provider.PollResult
	pollErr   error
	submitErr error

	submits  []*provider.Request
	pollCall int
}

// NewMockPollingAdapter 创建轮询模拟
func NewMockPollingAdapter(name string, kind task.Kind) *MockPollingAdapter {
	return &MockPollingAdapter{name: name, kind: kind}
}

// WithPolls 设置轮询脚本
func (m *MockPollingAdapter) WithPolls(results ...provider.PollResult) *MockPollingAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls = results
	return m
}

// WithSubmitError 使 Submit 返回错误
func (m *MockPollingAdapter) WithSubmitError(err error) *MockPollingAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
	return m
}

// WithPollError 使每次 Poll 返回错误
func (m *MockPollingAdapter) WithPollError(err error) *MockPollingAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErr = err
	return m
}

func (m *MockPollingAdapter) Name() string    { return m.name }
func (m *MockPollingAdapter) Kind() task.Kind { return m.kind }

func (m *MockPollingAdapter) Submit(ctx context.Context, req *provider.Request) (provider.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits = append(m.submits, req)
	if m.submitErr != nil {
		return provider.Submission{}, m.submitErr
	}
	return provider.Submission{ExternalID: fmt.Sprintf("%s-job-%d", m.name, len(m.submits)), Model: req.Model}, nil
}

func (m *MockPollingAdapter) Poll(ctx context.Context, externalID string) (provider.PollResult, error) {
	if err := ctx.Err(); err != nil {
		return provider.PollResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCall++
	if m.pollErr != nil {
		return provider.PollResult{}, m.pollErr
	}
	if len(m.polls) == 0 {
		return provider.InProgress(provider.UnknownProgress), nil
	}
	i := m.pollCall - 1
	if i >= len(m.polls) {
		i = len(m.polls) - 1
	}
	return m.polls[i], nil
}

// Submits 返回已记录的提交请求
func (m *MockPollingAdapter) Submits() []*provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*provider.Request(nil), m.submits...)
}

// PollCount 返回 Poll 调用次数
func (m *MockPollingAdapter) PollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollCall
}

// --- MockSyncAdapter ---

// MockSyncAdapter 对每次 Generate 返回固定产物
type MockSyncAdapter struct {
	mu       sync.Mutex
	name     string
	kind     task.Kind
	artifact *provider.Artifact
	err      error
	calls    []*provider.Request
}

// NewMockSyncAdapter 创建同步模拟，默认返回一段 base64 音频
func NewMockSyncAdapter(name string, kind task.Kind) *MockSyncAdapter {
	return &MockSyncAdapter{
		name: name,
		kind: kind,
		artifact: &provider.Artifact{
			Provider: name,
			Media:    provider.MediaRef{B64: "bWVkaWE=", MimeType: "audio/mpeg", Ext: "mp3"},
		},
	}
}

// WithArtifact 设置返回的产物
func (m *MockSyncAdapter) WithArtifact(a *provider.Artifact) *MockSyncAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifact = a
	return m
}

// WithError 使 Generate 返回错误
func (m *MockSyncAdapter) WithError(err error) *MockSyncAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *MockSyncAdapter) Name() string    { return m.name }
func (m *MockSyncAdapter) Kind() task.Kind { return m.kind }

func (m *MockSyncAdapter) Generate(ctx context.Context, req *provider.Request) (*provider.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a := *m.artifact
	return &a, nil
}

// Calls 返回已记录的请求
func (m *MockSyncAdapter) Calls() []*provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*provider.Request(nil), m.calls...)
}

var (
	_ provider.PollingAdapter = (*MockPollingAdapter)(nil)
	_ provider.SyncAdapter    = (*MockSyncAdapter)(nil)
)
