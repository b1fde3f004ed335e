package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore 是基于单个 JSON 索引文件的任务存储，适合单节点部署。
// 每次变更都会整体重写索引（临时文件 + 重命名）。
type FileStore struct {
	indexPath string
	tasks     map[string]*Task
	mu        sync.RWMutex
	closed    bool
}

// NewFileStore 创建文件任务存储并加载已有任务
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: base dir is required", ErrInvalidInput)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task store directory: %w", err)
	}

	s := &FileStore{
		indexPath: filepath.Join(baseDir, "index.json"),
		tasks:     make(map[string]*Task),
	}
	if err := s.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load tasks from disk: %w", err)
	}
	return s, nil
}

func (s *FileStore) loadFromDisk() error {
	data, err := os.ReadFile(s.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var tasks map[string]*Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return err
	}
	if tasks != nil {
		s.tasks = tasks
	}
	return nil
}

// saveToDisk 原子写: 写入临时文件后重命名
func (s *FileStore) saveToDisk() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return err
	}

	tempPath := s.indexPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, s.indexPath)
}

// Create 持久化新任务
func (s *FileStore) Create(ctx context.Context, in Input) (*Task, error) {
	t, err := newTask(uuid.NewString(), in, time.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	s.tasks[t.ID] = t
	if err := s.saveToDisk(); err != nil {
		delete(s.tasks, t.ID)
		return nil, fmt.Errorf("persist task: %w", err)
	}
	return t.Clone(), nil
}

// Update 更新任务；写盘失败时内存状态回滚
func (s *FileStore) Update(ctx context.Context, id string, u Update) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	current, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := applyUpdate(next, u, time.Now()); err != nil {
		return nil, err
	}

	s.tasks[id] = next
	if err := s.saveToDisk(); err != nil {
		s.tasks[id] = current
		return nil, fmt.Errorf("persist task: %w", err)
	}
	return next.Clone(), nil
}

// Get 通过 ID 获取任务
func (s *FileStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// List 检索匹配过滤条件的任务
func (s *FileStore) List(ctx context.Context, f Filter) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	all := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		all = append(all, t.Clone())
	}
	return selectTasks(all, f), nil
}

// Ping 检查存储是否可用
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close 关闭存储并落盘
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.saveToDisk()
}
