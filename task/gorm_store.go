package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/mediaflow/internal/database"
)

// taskRecord 是任务在数据库中的行结构
type taskRecord struct {
	ID          string            `gorm:"primaryKey;size:36"`
	Kind        string            `gorm:"size:16;not null;index:idx_task_kind_status"`
	Provider    string            `gorm:"size:64;not null;index"`
	Model       string            `gorm:"size:128"`
	Prompt      string            `gorm:"type:text"`
	Inputs      map[string]string `gorm:"serializer:json"`
	Status      string            `gorm:"size:16;not null;index:idx_task_kind_status"`
	Progress    int               `gorm:"default:0"`
	Error       string            `gorm:"type:text"`
	OutputRef   string            `gorm:"size:128"`
	Metadata    map[string]string `gorm:"serializer:json"`
	CreatedAt   time.Time         `gorm:"index"`
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// TableName 指定表名
func (taskRecord) TableName() string {
	return "generation_tasks"
}

func recordFromTask(t *Task) *taskRecord {
	return &taskRecord{
		ID:          t.ID,
		Kind:        string(t.Kind),
		Provider:    t.Provider,
		Model:       t.Model,
		Prompt:      t.Prompt,
		Inputs:      t.Inputs,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Error:       t.Error,
		OutputRef:   t.OutputRef,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (r *taskRecord) toTask() *Task {
	return &Task{
		ID:          r.ID,
		Kind:        Kind(r.Kind),
		Provider:    r.Provider,
		Model:       r.Model,
		Prompt:      r.Prompt,
		Inputs:      r.Inputs,
		Status:      Status(r.Status),
		Progress:    r.Progress,
		Error:       r.Error,
		OutputRef:   r.OutputRef,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
}

// GormStore 是基于 GORM 的任务存储，支持 PostgreSQL、MySQL、SQLite
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建存储并自动迁移表结构
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&taskRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Create 持久化新任务
func (s *GormStore) Create(ctx context.Context, in Input) (*Task, error) {
	t, err := newTask(uuid.NewString(), in, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(recordFromTask(t)).Error; err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}
	return t, nil
}

// updateAttempts 是瞬时冲突（死锁、序列化失败）下的最大尝试次数
const updateAttempts = 3

// Update 在事务中读取、合并并写回任务
func (s *GormStore) Update(ctx context.Context, id string, u Update) (*Task, error) {
	var updated *Task
	err := database.Transaction(ctx, s.db, updateAttempts, func(tx *gorm.DB) error {
		q := tx
		// SQLite 不支持 SELECT ... FOR UPDATE，事务本身已串行化写入
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var rec taskRecord
		if err := q.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		t := rec.toTask()
		if err := applyUpdate(t, u, time.Now().UTC()); err != nil {
			return err
		}
		if err := tx.Save(recordFromTask(t)).Error; err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get 通过 ID 获取任务
func (s *GormStore) Get(ctx context.Context, id string) (*Task, error) {
	var rec taskRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return rec.toTask(), nil
}

// List 检索匹配过滤条件的任务
func (s *GormStore) List(ctx context.Context, f Filter) ([]*Task, error) {
	q := s.db.WithContext(ctx).Model(&taskRecord{})
	if f.Kind != "" {
		q = q.Where("kind = ?", string(f.Kind))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	q = q.Order("created_at DESC").Order("id ASC")
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []taskRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	out := make([]*Task, len(recs))
	for i := range recs {
		out[i] = recs[i].toTask()
	}
	return out, nil
}

// Ping 检查数据库连接
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 连接由 internal/database 管理，这里不关闭
func (s *GormStore) Close() error {
	return nil
}
