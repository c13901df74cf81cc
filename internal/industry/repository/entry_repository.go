package repository

import (
	"context"

	"github.com/bitfantasy/forge/internal/industry/entity"

	"gorm.io/gorm"
)

type EntryRepository struct {
	db *gorm.DB
}

func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create 创建计划条目
func (r *EntryRepository) Create(ctx context.Context, e *entity.PlanEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// FindByID 根据ID查找条目
func (r *EntryRepository) FindByID(ctx context.Context, id string) (*entity.PlanEntry, error) {
	var e entity.PlanEntry
	err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByPlan 获取计划的全部条目
func (r *EntryRepository) ListByPlan(ctx context.Context, planID string) ([]entity.PlanEntry, error) {
	var entries []entity.PlanEntry
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// ListTopLevel 获取计划的顶层条目
func (r *EntryRepository) ListTopLevel(ctx context.Context, planID string) ([]entity.PlanEntry, error) {
	var entries []entity.PlanEntry
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND parent_entry_id IS NULL", planID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// ListBuiltIntermediates 获取计划内已记录构建进度的中间条目
func (r *EntryRepository) ListBuiltIntermediates(ctx context.Context, planID string) ([]entity.PlanEntry, error) {
	var entries []entity.PlanEntry
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND is_intermediate = ? AND built_runs > 0", planID, true).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// Update 更新条目
func (r *EntryRepository) Update(ctx context.Context, e *entity.PlanEntry) error {
	return r.db.WithContext(ctx).Save(e).Error
}

// Delete 删除条目
func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.PlanEntry{}, "id = ?", id).Error
}
