package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/forge/internal/industry/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertType 新建或更新物品类型
func (r *CatalogRepository) UpsertType(ctx context.Context, t *entity.ItemType) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(t).Error
}

// FindType 根据ID查找物品类型
func (r *CatalogRepository) FindType(ctx context.Context, id int64) (*entity.ItemType, error) {
	var t entity.ItemType
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTypes 批量查找物品类型，返回 id → 类型 映射
func (r *CatalogRepository) FindTypes(ctx context.Context, ids []int64) (map[int64]*entity.ItemType, error) {
	var types []entity.ItemType
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&types).Error; err != nil {
		return nil, err
	}
	result := make(map[int64]*entity.ItemType, len(types))
	for i := range types {
		result[types[i].ID] = &types[i]
	}
	return result, nil
}

// ListTypes 物品类型列表（可按名称模糊搜索）
func (r *CatalogRepository) ListTypes(ctx context.Context, keyword string, offset, limit int) ([]entity.ItemType, int64, error) {
	var types []entity.ItemType
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ItemType{})
	if keyword != "" {
		query = query.Where("name LIKE ?", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&types).Error
	return types, total, err
}

// UpsertRecipe 新建或更新配方，整体替换其材料清单
func (r *CatalogRepository) UpsertRecipe(ctx context.Context, recipe *entity.Recipe) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		materials := recipe.Materials
		recipe.Materials = nil
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(recipe).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.RecipeMaterial{}, "recipe_id = ?", recipe.ID).Error; err != nil {
			return err
		}
		if len(materials) > 0 {
			if err := tx.Create(&materials).Error; err != nil {
				return err
			}
		}
		recipe.Materials = materials
		return nil
	})
}

// FindRecipe 根据ID查找配方（含材料清单）
func (r *CatalogRepository) FindRecipe(ctx context.Context, id int64) (*entity.Recipe, error) {
	var recipe entity.Recipe
	err := r.db.WithContext(ctx).
		Preload("Materials").
		First(&recipe, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

// FindRecipeByProduct 根据产物类型查找配方。
// 多个配方产出同一类型时取ID最小者，保证查找结果确定。
func (r *CatalogRepository) FindRecipeByProduct(ctx context.Context, productTypeID int64) (*entity.Recipe, error) {
	var recipe entity.Recipe
	err := r.db.WithContext(ctx).
		Where("product_type_id = ?", productTypeID).
		Order("id ASC").
		First(&recipe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

// ListRecipes 配方列表
func (r *CatalogRepository) ListRecipes(ctx context.Context, keyword string, offset, limit int) ([]entity.Recipe, int64, error) {
	var recipes []entity.Recipe
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Recipe{})
	if keyword != "" {
		query = query.Where("name LIKE ?", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&recipes).Error
	return recipes, total, err
}
