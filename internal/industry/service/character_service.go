package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/forge/internal/industry/entity"
	"github.com/bitfantasy/forge/internal/industry/repository"
	"gorm.io/gorm"
)

// CharacterService 角色服务：角色与已掌握配方（计划默认效率的来源）
type CharacterService struct {
	characterRepo *repository.CharacterRepository
	catalogRepo   *repository.CatalogRepository
}

func NewCharacterService(characterRepo *repository.CharacterRepository, catalogRepo *repository.CatalogRepository) *CharacterService {
	return &CharacterService{
		characterRepo: characterRepo,
		catalogRepo:   catalogRepo,
	}
}

// CreateCharacter 创建角色
func (s *CharacterService) CreateCharacter(ctx context.Context, req *CreateCharacterRequest) (*entity.Character, error) {
	if req.Name == "" {
		return nil, errors.New("角色名称不能为空")
	}
	ch := &entity.Character{
		ID:        generateID(),
		Name:      req.Name,
		Status:    "active",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.characterRepo.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("create character: %w", err)
	}
	return ch, nil
}

// GetCharacter 查询角色
func (s *CharacterService) GetCharacter(ctx context.Context, id string) (*entity.Character, error) {
	ch, err := s.characterRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("角色不存在")
		}
		return nil, fmt.Errorf("find character: %w", err)
	}
	return ch, nil
}

// ListCharacters 角色列表
func (s *CharacterService) ListCharacters(ctx context.Context) ([]entity.Character, error) {
	return s.characterRepo.List(ctx)
}

// UpdateCharacter 更新角色
func (s *CharacterService) UpdateCharacter(ctx context.Context, id string, req *UpdateCharacterRequest) (*entity.Character, error) {
	ch, err := s.GetCharacter(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errors.New("角色名称不能为空")
		}
		ch.Name = *req.Name
	}
	if req.Status != nil {
		if *req.Status != "active" && *req.Status != "inactive" {
			return nil, errors.New("无效的角色状态")
		}
		ch.Status = *req.Status
	}
	ch.UpdatedAt = time.Now()
	if err := s.characterRepo.Update(ctx, ch); err != nil {
		return nil, fmt.Errorf("update character: %w", err)
	}
	return ch, nil
}

// SetOwnedRecipe 登记/更新角色已掌握配方的默认效率。
// 该效率是新发现中间条目的效率缺省值，既有条目不受影响。
func (s *CharacterService) SetOwnedRecipe(ctx context.Context, characterID string, req *SetOwnedRecipeRequest) (*entity.CharacterRecipe, error) {
	if _, err := s.GetCharacter(ctx, characterID); err != nil {
		return nil, err
	}
	if _, err := s.catalogRepo.FindRecipe(ctx, req.RecipeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("配方不存在")
		}
		return nil, fmt.Errorf("find recipe: %w", err)
	}
	if req.MaterialEfficiency < 0 || req.MaterialEfficiency >= 100 ||
		req.TimeEfficiency < 0 || req.TimeEfficiency >= 100 {
		return nil, errors.New("效率必须在0到100之间")
	}

	owned := &entity.CharacterRecipe{
		ID:                 generateID(),
		CharacterID:        characterID,
		RecipeID:           req.RecipeID,
		MaterialEfficiency: req.MaterialEfficiency,
		TimeEfficiency:     req.TimeEfficiency,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := s.characterRepo.UpsertOwnedRecipe(ctx, owned); err != nil {
		return nil, fmt.Errorf("upsert owned recipe: %w", err)
	}
	return owned, nil
}

// ListOwnedRecipes 角色已掌握配方列表
func (s *CharacterService) ListOwnedRecipes(ctx context.Context, characterID string) ([]entity.CharacterRecipe, error) {
	return s.characterRepo.ListOwnedRecipes(ctx, characterID)
}

// ==================== 请求结构 ====================

type CreateCharacterRequest struct {
	Name string `json:"name" binding:"required"`
}

type UpdateCharacterRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

type SetOwnedRecipeRequest struct {
	RecipeID           int64   `json:"recipe_id" binding:"required"`
	MaterialEfficiency float64 `json:"material_efficiency"`
	TimeEfficiency     float64 `json:"time_efficiency"`
}
