package repository

import (
	"context"

	"github.com/bitfantasy/forge/internal/industry/entity"

	"gorm.io/gorm"
)

type LineRepository struct {
	db *gorm.DB
}

func NewLineRepository(db *gorm.DB) *LineRepository {
	return &LineRepository{db: db}
}

// ListMaterialsByPlan 获取计划的材料台账
func (r *LineRepository) ListMaterialsByPlan(ctx context.Context, planID string) ([]entity.MaterialLine, error) {
	var lines []entity.MaterialLine
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("quantity DESC").
		Find(&lines).Error
	return lines, err
}

// FindMaterial 根据计划和类型查找材料行
func (r *LineRepository) FindMaterial(ctx context.Context, planID string, typeID int64) (*entity.MaterialLine, error) {
	var line entity.MaterialLine
	err := r.db.WithContext(ctx).
		First(&line, "plan_id = ? AND type_id = ?", planID, typeID).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// UpdateMaterial 更新材料行
func (r *LineRepository) UpdateMaterial(ctx context.Context, line *entity.MaterialLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// ListProductsByPlan 获取计划的产物行
func (r *LineRepository) ListProductsByPlan(ctx context.Context, planID string) ([]entity.ProductLine, error) {
	var lines []entity.ProductLine
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("depth ASC, quantity DESC").
		Find(&lines).Error
	return lines, err
}
