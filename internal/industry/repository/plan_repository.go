package repository

import (
	"context"
	"time"

	"github.com/bitfantasy/forge/internal/industry/entity"

	"gorm.io/gorm"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建计划
func (r *PlanRepository) Create(ctx context.Context, plan *entity.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

// FindByID 根据ID查找计划（含角色）
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*entity.Plan, error) {
	var plan entity.Plan
	err := r.db.WithContext(ctx).
		Preload("Character").
		First(&plan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByIDFull 根据ID查找计划，预载全部子实体
func (r *PlanRepository) FindByIDFull(ctx context.Context, id string) (*entity.Plan, error) {
	var plan entity.Plan
	err := r.db.WithContext(ctx).
		Preload("Character").
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Materials", func(db *gorm.DB) *gorm.DB {
			return db.Order("quantity DESC")
		}).
		Preload("Products", func(db *gorm.DB) *gorm.DB {
			return db.Order("depth ASC, quantity DESC")
		}).
		First(&plan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// List 计划列表（可按角色/状态过滤）
func (r *PlanRepository) List(ctx context.Context, characterID, status string, offset, limit int) ([]entity.Plan, int64, error) {
	var plans []entity.Plan
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Plan{})
	if characterID != "" {
		query = query.Where("character_id = ?", characterID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Character").
		Order("updated_at DESC").
		Offset(offset).Limit(limit).
		Find(&plans).Error
	return plans, total, err
}

// Update 更新计划
func (r *PlanRepository) Update(ctx context.Context, plan *entity.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

// Touch 仅刷新计划的更新时间
func (r *PlanRepository) Touch(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Plan{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// Delete 删除计划及其全部子实体
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&entity.PlanEntry{}, "plan_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.MaterialLine{}, "plan_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.ProductLine{}, "plan_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.Plan{}, "id = ?", id).Error
	})
}
