// Package fixtures 提供素材目录与任务的测试数据。
package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/asset"
	"github.com/BaSui01/mediaflow/task"
)

// NewCatalog 在临时目录中打开素材目录，测试结束时关闭
func NewCatalog(t *testing.T) *asset.Catalog {
	t.Helper()
	root := t.TempDir()
	c, err := asset.OpenCatalog(root, filepath.Join(root, "catalog.json"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// SeedAsset 在目录根下写入文件并登记素材。content 为空时写入占位内容。
func SeedAsset(t *testing.T, c *asset.Catalog, a *asset.Asset, content string) *asset.Asset {
	t.Helper()
	if content == "" {
		content = "media"
	}
	abs := c.AbsPath(a)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))

	added, err := c.Add(context.Background(), a)
	require.NoError(t, err)
	return added
}

// Video 返回一个视频素材模板
func Video(id string) *asset.Asset {
	return &asset.Asset{ID: id, Type: asset.TypeVideo, Path: asset.TypeVideo.Dir() + "/" + id + ".mp4", Provider: "runway"}
}

// Music 返回一个音乐素材模板
func Music(id string) *asset.Asset {
	return &asset.Asset{ID: id, Type: asset.TypeMusic, Path: asset.TypeMusic.Dir() + "/" + id + ".mp3", Provider: "suno"}
}

// Speech 返回一个语音素材模板
func Speech(id string) *asset.Asset {
	return &asset.Asset{ID: id, Type: asset.TypeSpeech, Path: asset.TypeSpeech.Dir() + "/" + id + ".mp3", Provider: "elevenlabs"}
}

// Task 返回处于 status 的任务快照
func Task(id string, kind task.Kind, status task.Status) *task.Task {
	now := time.Now().UTC()
	t := &task.Task{
		ID:        id,
		Kind:      kind,
		Provider:  "runway",
		Prompt:    "a lighthouse at dusk",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == task.StatusCompleted {
		t.Progress = 100
	}
	if status.IsTerminal() {
		t.CompletedAt = &now
	}
	return t
}
