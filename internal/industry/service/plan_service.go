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

// PlanService 生产计划服务。
// 计划与条目的全部写操作都在这里收口：条目变更以镜像变更的形式
// 交给重算引擎，与重算结果同事务提交（见 RecalcService.RecalculateWith）。
type PlanService struct {
	planRepo      *repository.PlanRepository
	entryRepo     *repository.EntryRepository
	lineRepo      *repository.LineRepository
	catalogRepo   *repository.CatalogRepository
	characterRepo *repository.CharacterRepository
	recalc        *RecalcService
}

func NewPlanService(
	planRepo *repository.PlanRepository,
	entryRepo *repository.EntryRepository,
	lineRepo *repository.LineRepository,
	catalogRepo *repository.CatalogRepository,
	characterRepo *repository.CharacterRepository,
	recalc *RecalcService,
) *PlanService {
	return &PlanService{
		planRepo:      planRepo,
		entryRepo:     entryRepo,
		lineRepo:      lineRepo,
		catalogRepo:   catalogRepo,
		characterRepo: characterRepo,
		recalc:        recalc,
	}
}

// ==================== 计划 ====================

// CreatePlan 创建计划
func (s *PlanService) CreatePlan(ctx context.Context, req *CreatePlanRequest) (*entity.Plan, error) {
	if req.Name == "" {
		return nil, errors.New("计划名称不能为空")
	}
	if _, err := s.characterRepo.FindByID(ctx, req.CharacterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("角色不存在")
		}
		return nil, fmt.Errorf("find character: %w", err)
	}

	plan := &entity.Plan{
		ID:          generateID(),
		CharacterID: req.CharacterID,
		Name:        req.Name,
		Description: req.Description,
		Status:      entity.PlanStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return plan, nil
}

// GetPlan 查询计划及全部子实体
func (s *PlanService) GetPlan(ctx context.Context, id string) (*entity.Plan, error) {
	plan, err := s.planRepo.FindByIDFull(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("计划不存在")
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	return plan, nil
}

// ListPlans 计划列表
func (s *PlanService) ListPlans(ctx context.Context, characterID, status string, page, pageSize int) ([]entity.Plan, int64, error) {
	if status != "" && !validPlanStatus(status) {
		return nil, 0, errors.New("无效的计划状态")
	}
	offset := (page - 1) * pageSize
	return s.planRepo.List(ctx, characterID, status, offset, pageSize)
}

// UpdatePlan 更新计划基础信息
func (s *PlanService) UpdatePlan(ctx context.Context, id string, req *UpdatePlanRequest) (*entity.Plan, error) {
	plan, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("计划不存在")
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, errors.New("计划名称不能为空")
		}
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.Status != nil {
		if !validPlanStatus(*req.Status) {
			return nil, errors.New("无效的计划状态")
		}
		plan.Status = *req.Status
	}
	plan.UpdatedAt = time.Now()
	if err := s.planRepo.Update(ctx, plan); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return plan, nil
}

// DeletePlan 删除计划，级联删除条目与台账
func (s *PlanService) DeletePlan(ctx context.Context, id string) error {
	if _, err := s.planRepo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("计划不存在")
		}
		return fmt.Errorf("find plan: %w", err)
	}
	return s.planRepo.Delete(ctx, id)
}

// GetSummary 计划汇总指标
func (s *PlanService) GetSummary(ctx context.Context, id string) (*PlanSummary, error) {
	plan, err := s.planRepo.FindByIDFull(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("计划不存在")
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}

	summary := &PlanSummary{
		PlanID: plan.ID,
		Name:   plan.Name,
		Status: plan.Status,
	}
	for i := range plan.Entries {
		e := &plan.Entries[i]
		if e.IsIntermediate {
			summary.IntermediateCount++
			if e.IsBuilt {
				summary.BuiltCount++
			}
		} else {
			summary.EntryCount++
		}
	}
	var needed, covered float64
	for i := range plan.Materials {
		m := &plan.Materials[i]
		summary.MaterialCount++
		if m.UnitPrice != nil {
			summary.MaterialCost += m.Quantity * *m.UnitPrice
		}
		needed += m.Quantity
		got := m.AcquiredTotal()
		if got > m.Quantity {
			got = m.Quantity
		}
		covered += got
	}
	if needed > 0 {
		summary.AcquiredRatio = round2(covered / needed * 100)
	}
	for i := range plan.Products {
		p := &plan.Products[i]
		if !p.IsIntermediate && p.UnitPrice != nil {
			summary.ProductValue += p.Quantity * *p.UnitPrice
		}
	}
	summary.MaterialCost = round2(summary.MaterialCost)
	summary.ProductValue = round2(summary.ProductValue)
	return summary, nil
}

// Recalculate 手动触发计划重算
func (s *PlanService) Recalculate(ctx context.Context, planID string, refreshPrices bool) error {
	return s.recalc.Recalculate(ctx, planID, refreshPrices)
}

// ==================== 条目 ====================

// AddEntry 添加顶层条目并触发重算。
// 效率参数缺省时回退到计划角色对该配方的已掌握效率。
func (s *PlanService) AddEntry(ctx context.Context, planID string, req *AddEntryRequest) (*entity.PlanEntry, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("计划不存在")
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	if _, err := s.catalogRepo.FindRecipe(ctx, req.RecipeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("配方不存在")
		}
		return nil, fmt.Errorf("find recipe: %w", err)
	}
	if req.Runs <= 0 {
		return nil, errors.New("轮次必须为正数")
	}
	lines := req.Lines
	if lines == 0 {
		lines = 1
	}
	if lines < 1 {
		return nil, errors.New("产线数必须为正数")
	}
	mode := req.ExpansionMode
	if mode == "" {
		mode = entity.ExpansionModeRawMaterials
	}
	if !validExpansionMode(mode) {
		return nil, errors.New("无效的展开模式")
	}

	eff := Efficiency{}
	if req.MaterialEfficiency != nil {
		eff.Material = *req.MaterialEfficiency
	}
	if req.TimeEfficiency != nil {
		eff.Time = *req.TimeEfficiency
	}
	if req.MaterialEfficiency == nil && req.TimeEfficiency == nil {
		owned, err := s.characterRepo.FindOwnedRecipe(ctx, plan.CharacterID, req.RecipeID)
		if err != nil {
			return nil, fmt.Errorf("find owned recipe: %w", err)
		}
		if owned != nil {
			eff = Efficiency{Material: owned.MaterialEfficiency, Time: owned.TimeEfficiency}
		}
	}

	now := time.Now()
	entry := &entity.PlanEntry{
		ID:                 generateID(),
		PlanID:             planID,
		RecipeID:           req.RecipeID,
		Runs:               req.Runs,
		Lines:              lines,
		MaterialEfficiency: eff.Material,
		TimeEfficiency:     eff.Time,
		Facility:           req.Facility,
		ExpansionMode:      mode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	mutate := func(st *recalcState) error {
		st.tree.insert(entry)
		st.tree.created[entry.ID] = true
		return nil
	}
	if err := s.recalc.RecalculateWith(ctx, planID, false, mutate); err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateEntry 更新条目并触发重算。
// 顶层条目可改配方/轮次/产线/效率/设施/模式；
// 中间条目的配方、轮次、产线由引擎维护，只放行效率/设施/模式。
func (s *PlanService) UpdateEntry(ctx context.Context, planID, entryID string, req *UpdateEntryRequest) (*entity.PlanEntry, error) {
	var updated *entity.PlanEntry
	mutate := func(st *recalcState) error {
		node := st.tree.get(entryID)
		if node == nil || node.PlanID != planID {
			return errors.New("条目不存在")
		}
		if node.IsIntermediate && (req.RecipeID != nil || req.Runs != nil || req.Lines != nil) {
			return errors.New("中间条目的配方与轮次由引擎维护，不可手动修改")
		}
		if req.RecipeID != nil && *req.RecipeID != node.RecipeID {
			recipe, err := s.findRecipe(ctx, *req.RecipeID)
			if err != nil {
				return err
			}
			node.RecipeID = recipe.ID
		}
		if req.Runs != nil {
			if *req.Runs <= 0 {
				return errors.New("轮次必须为正数")
			}
			node.Runs = *req.Runs
		}
		if req.Lines != nil {
			if *req.Lines < 1 {
				return errors.New("产线数必须为正数")
			}
			node.Lines = *req.Lines
		}
		if req.MaterialEfficiency != nil {
			node.MaterialEfficiency = *req.MaterialEfficiency
		}
		if req.TimeEfficiency != nil {
			node.TimeEfficiency = *req.TimeEfficiency
		}
		if req.Facility != nil {
			node.Facility = *req.Facility
		}
		if req.ExpansionMode != nil {
			if !validExpansionMode(*req.ExpansionMode) {
				return errors.New("无效的展开模式")
			}
			node.ExpansionMode = *req.ExpansionMode
		}
		st.tree.dirty[node.ID] = true
		updated = node
		return nil
	}
	if err := s.recalc.RecalculateWith(ctx, planID, false, mutate); err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveEntry 删除顶层条目并触发重算，其下中间条目由孤儿回收一并清除
func (s *PlanService) RemoveEntry(ctx context.Context, planID, entryID string) error {
	mutate := func(st *recalcState) error {
		node := st.tree.get(entryID)
		if node == nil || node.PlanID != planID {
			return errors.New("条目不存在")
		}
		if node.IsIntermediate {
			return errors.New("仅顶层条目可删除")
		}
		st.tree.remove(entryID)
		return nil
	}
	return s.recalc.RecalculateWith(ctx, planID, false, mutate)
}

// BulkUpdateEntries 批量更新条目，整批生效、单次重算
func (s *PlanService) BulkUpdateEntries(ctx context.Context, planID string, req *BulkUpdateEntriesRequest) error {
	if len(req.Entries) == 0 {
		return errors.New("更新列表不能为空")
	}
	mutate := func(st *recalcState) error {
		for i := range req.Entries {
			item := &req.Entries[i]
			node := st.tree.get(item.EntryID)
			if node == nil || node.PlanID != planID {
				return fmt.Errorf("条目不存在: %s", item.EntryID)
			}
			if node.IsIntermediate && (item.Runs != nil || item.Lines != nil) {
				return errors.New("中间条目的轮次由引擎维护，不可手动修改")
			}
			if item.Runs != nil {
				if *item.Runs <= 0 {
					return errors.New("轮次必须为正数")
				}
				node.Runs = *item.Runs
			}
			if item.Lines != nil {
				if *item.Lines < 1 {
					return errors.New("产线数必须为正数")
				}
				node.Lines = *item.Lines
			}
			if item.MaterialEfficiency != nil {
				node.MaterialEfficiency = *item.MaterialEfficiency
			}
			if item.TimeEfficiency != nil {
				node.TimeEfficiency = *item.TimeEfficiency
			}
			if item.ExpansionMode != nil {
				if !validExpansionMode(*item.ExpansionMode) {
					return errors.New("无效的展开模式")
				}
				node.ExpansionMode = *item.ExpansionMode
			}
			st.tree.dirty[node.ID] = true
		}
		return nil
	}
	return s.recalc.RecalculateWith(ctx, planID, false, mutate)
}

// MarkBuilt 记录中间条目实际完成的构建轮次
func (s *PlanService) MarkBuilt(ctx context.Context, entryID string, builtRuns int) error {
	return s.recalc.MarkBuilt(ctx, entryID, builtRuns)
}

// ListEntries 计划的全部条目
func (s *PlanService) ListEntries(ctx context.Context, planID string) ([]entity.PlanEntry, error) {
	return s.entryRepo.ListByPlan(ctx, planID)
}

// ==================== 材料台账 ====================

// ListMaterials 计划材料台账
func (s *PlanService) ListMaterials(ctx context.Context, planID string) ([]entity.MaterialLine, error) {
	return s.lineRepo.ListMaterialsByPlan(ctx, planID)
}

// ListProducts 计划产物台账
func (s *PlanService) ListProducts(ctx context.Context, planID string) ([]entity.ProductLine, error) {
	return s.lineRepo.ListProductsByPlan(ctx, planID)
}

// UpdateAcquisition 手动标记材料获取进度。
// 只改该行的手动获取字段并重推生效方式，不触发整计划重算；
// manufactured 与 mixed 由引擎推导，不可手动指定。
func (s *PlanService) UpdateAcquisition(ctx context.Context, planID string, typeID int64, req *UpdateAcquisitionRequest) (*entity.MaterialLine, error) {
	if req.Quantity < 0 {
		return nil, errors.New("获取数量不能为负")
	}
	if req.Method == entity.AcquisitionMethodManufactured || req.Method == entity.AcquisitionMethodMixed {
		return nil, errors.New("该获取方式由引擎推导，不可手动指定")
	}
	if req.Quantity > 0 && req.Method == "" {
		return nil, errors.New("获取方式不能为空")
	}

	// 与重算互斥，避免清表重导吞掉本次修改
	unlock := s.recalc.lockPlan(planID)
	defer unlock()

	line, err := s.lineRepo.FindMaterial(ctx, planID, typeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("材料行不存在")
		}
		return nil, fmt.Errorf("find material line: %w", err)
	}

	line.AcquiredQuantity = req.Quantity
	line.AcquiredMethod = req.Method
	line.AcquiredPrice = req.Price
	line.Note = req.Note
	if req.Quantity == 0 {
		line.AcquiredMethod = ""
		line.AcquiredPrice = nil
	}
	applyManufactured(line, line.ManufacturedQuantity)
	line.UpdatedAt = time.Now()

	if err := s.lineRepo.UpdateMaterial(ctx, line); err != nil {
		return nil, fmt.Errorf("update material line: %w", err)
	}
	return line, nil
}

// findRecipe 校验配方存在
func (s *PlanService) findRecipe(ctx context.Context, recipeID int64) (*entity.Recipe, error) {
	recipe, err := s.catalogRepo.FindRecipe(ctx, recipeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("配方不存在")
		}
		return nil, fmt.Errorf("find recipe: %w", err)
	}
	return recipe, nil
}

func validPlanStatus(s string) bool {
	return s == entity.PlanStatusActive || s == entity.PlanStatusCompleted || s == entity.PlanStatusArchived
}

func validExpansionMode(m string) bool {
	return m == entity.ExpansionModeRawMaterials || m == entity.ExpansionModeComponents || m == entity.ExpansionModeBuildBuy
}

// ==================== 请求/响应结构 ====================

type CreatePlanRequest struct {
	CharacterID string `json:"character_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdatePlanRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type AddEntryRequest struct {
	RecipeID           int64                   `json:"recipe_id" binding:"required"`
	Runs               int                     `json:"runs" binding:"required"`
	Lines              int                     `json:"lines"`
	MaterialEfficiency *float64                `json:"material_efficiency"`
	TimeEfficiency     *float64                `json:"time_efficiency"`
	ExpansionMode      string                  `json:"expansion_mode"`
	Facility           entity.FacilitySnapshot `json:"facility"`
}

type UpdateEntryRequest struct {
	RecipeID           *int64                   `json:"recipe_id"`
	Runs               *int                     `json:"runs"`
	Lines              *int                     `json:"lines"`
	MaterialEfficiency *float64                 `json:"material_efficiency"`
	TimeEfficiency     *float64                 `json:"time_efficiency"`
	ExpansionMode      *string                  `json:"expansion_mode"`
	Facility           *entity.FacilitySnapshot `json:"facility"`
}

type BulkEntryUpdate struct {
	EntryID            string   `json:"entry_id" binding:"required"`
	Runs               *int     `json:"runs"`
	Lines              *int     `json:"lines"`
	MaterialEfficiency *float64 `json:"material_efficiency"`
	TimeEfficiency     *float64 `json:"time_efficiency"`
	ExpansionMode      *string  `json:"expansion_mode"`
}

type BulkUpdateEntriesRequest struct {
	Entries []BulkEntryUpdate `json:"entries" binding:"required"`
}

type UpdateAcquisitionRequest struct {
	Quantity float64  `json:"quantity"`
	Method   string   `json:"method"`
	Price    *float64 `json:"price"`
	Note     string   `json:"note"`
}

// PlanSummary 计划汇总指标
type PlanSummary struct {
	PlanID            string  `json:"plan_id"`
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	EntryCount        int     `json:"entry_count"`
	IntermediateCount int     `json:"intermediate_count"`
	BuiltCount        int     `json:"built_count"`
	MaterialCount     int     `json:"material_count"`
	MaterialCost      float64 `json:"material_cost"`
	ProductValue      float64 `json:"product_value"`
	AcquiredRatio     float64 `json:"acquired_ratio"` // 百分比，按数量加权
}
