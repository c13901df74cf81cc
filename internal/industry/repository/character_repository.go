package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/forge/internal/industry/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CharacterRepository struct {
	db *gorm.DB
}

func NewCharacterRepository(db *gorm.DB) *CharacterRepository {
	return &CharacterRepository{db: db}
}

// Create 创建角色
func (r *CharacterRepository) Create(ctx context.Context, c *entity.Character) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// FindByID 根据ID查找角色
func (r *CharacterRepository) FindByID(ctx context.Context, id string) (*entity.Character, error) {
	var c entity.Character
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List 角色列表
func (r *CharacterRepository) List(ctx context.Context) ([]entity.Character, error) {
	var chars []entity.Character
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&chars).Error
	return chars, err
}

// Update 更新角色
func (r *CharacterRepository) Update(ctx context.Context, c *entity.Character) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// UpsertOwnedRecipe 新建或更新角色的已掌握配方
func (r *CharacterRepository) UpsertOwnedRecipe(ctx context.Context, cr *entity.CharacterRecipe) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "character_id"}, {Name: "recipe_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"material_efficiency", "time_efficiency", "updated_at"}),
		}).Create(cr).Error
}

// FindOwnedRecipe 查找角色的已掌握配方，不存在时返回 nil
func (r *CharacterRepository) FindOwnedRecipe(ctx context.Context, characterID string, recipeID int64) (*entity.CharacterRecipe, error) {
	var cr entity.CharacterRecipe
	err := r.db.WithContext(ctx).
		First(&cr, "character_id = ? AND recipe_id = ?", characterID, recipeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// ListOwnedRecipes 角色已掌握配方列表
func (r *CharacterRepository) ListOwnedRecipes(ctx context.Context, characterID string) ([]entity.CharacterRecipe, error) {
	var list []entity.CharacterRecipe
	err := r.db.WithContext(ctx).
		Where("character_id = ?", characterID).
		Order("recipe_id ASC").
		Find(&list).Error
	return list, err
}
