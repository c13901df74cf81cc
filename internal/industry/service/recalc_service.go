package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bitfantasy/forge/internal/industry/entity"
	"github.com/bitfantasy/forge/internal/industry/sse"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ==================== 协作方接口 ====================

// Efficiency 配方效率参数（百分比）
type Efficiency struct {
	Material float64
	Time     float64
}

// ExpandedProduct 配方展开结果中的产物
type ExpandedProduct struct {
	TypeID         int64
	QuantityPerRun float64
}

// RecipeExpansion 配方单层展开结果：runs 轮的材料总需求与产物描述
type RecipeExpansion struct {
	RecipeID  int64
	Runs      int
	Materials map[int64]float64
	Product   ExpandedProduct
}

// RecipeSource 配方目录协作方。
// ExpandRecipe 只做单层展开，绝不递归进入子配方，递归由重算引擎控制。
type RecipeSource interface {
	ExpandRecipe(ctx context.Context, recipeID int64, runs int, eff Efficiency, facility entity.FacilitySnapshot) (*RecipeExpansion, error)
	ProducingRecipeFor(ctx context.Context, typeID int64) (*entity.Recipe, error)
	DefaultEfficiencyFor(ctx context.Context, characterID string, recipeID int64) (*Efficiency, error)
	TypeNames(ctx context.Context, typeIDs []int64) (map[int64]string, error)
}

// PriceSource 行情协作方。单个类型估价失败时返回 nil 价格而非错误，
// 由调用方决定置空或保留旧价。
type PriceSource interface {
	EstimatePrice(ctx context.Context, typeID int64, quantity float64) (*float64, error)
}

// ==================== 条目树镜像 ====================

// entryKey 中间条目的结构身份。
// 每个（父条目, 配方, 所满足材料）三元组在计划内至多存在一个条目，
// 重同步按此键定位既有条目做更新而非重复创建。
type entryKey struct {
	parentID string
	recipeID int64
	typeID   int64
}

// planTree 一次重算期间计划条目的内存镜像。
// 所有结构变更先落在镜像上，事务阶段一次性刷回存储。
type planTree struct {
	nodes   []*entity.PlanEntry
	byID    map[string]int
	byKey   map[entryKey]int
	created map[string]bool
	dirty   map[string]bool
	removed map[string]bool
}

func newPlanTree(entries []entity.PlanEntry) *planTree {
	t := &planTree{
		byID:    make(map[string]int, len(entries)),
		byKey:   make(map[entryKey]int),
		created: map[string]bool{},
		dirty:   map[string]bool{},
		removed: map[string]bool{},
	}
	for i := range entries {
		t.insert(&entries[i])
	}
	return t
}

func (t *planTree) insert(e *entity.PlanEntry) {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, e)
	t.byID[e.ID] = idx
	if e.ParentEntryID != nil && e.SatisfiedTypeID != nil {
		t.byKey[entryKey{*e.ParentEntryID, e.RecipeID, *e.SatisfiedTypeID}] = idx
	}
}

func (t *planTree) get(id string) *entity.PlanEntry {
	if idx, ok := t.byID[id]; ok {
		return t.nodes[idx]
	}
	return nil
}

func (t *planTree) childFor(parentID string, recipeID, typeID int64) *entity.PlanEntry {
	if idx, ok := t.byKey[entryKey{parentID, recipeID, typeID}]; ok {
		return t.nodes[idx]
	}
	return nil
}

// remove 标记条目待删除，真正的删除发生在事务阶段
func (t *planTree) remove(id string) {
	t.removed[id] = true
}

// topLevel 存活的顶层条目，保持载入顺序（created_at ASC）
func (t *planTree) topLevel() []*entity.PlanEntry {
	var tops []*entity.PlanEntry
	for _, n := range t.nodes {
		if n.ParentEntryID == nil && !t.removed[n.ID] {
			tops = append(tops, n)
		}
	}
	return tops
}

// orphans 迭代收敛出本次要删除的条目集合：显式移除的条目打底，
// 再吸收父条目缺失（含已判死）或父条目已切换为 components 模式的中间条目。
// 删除一层会让下一层变成孤儿，循环直到不再增长。
func (t *planTree) orphans() map[string]bool {
	dead := make(map[string]bool, len(t.removed))
	for id := range t.removed {
		dead[id] = true
	}
	for {
		grew := false
		for _, n := range t.nodes {
			if !n.IsIntermediate || dead[n.ID] {
				continue
			}
			if n.ParentEntryID == nil {
				dead[n.ID] = true
				grew = true
				continue
			}
			parent := t.get(*n.ParentEntryID)
			if parent == nil || dead[parent.ID] || parent.ExpansionMode == entity.ExpansionModeComponents {
				dead[n.ID] = true
				grew = true
			}
		}
		if !grew {
			return dead
		}
	}
}

// ==================== 重算引擎 ====================

// RecalcService 计划重算引擎。
// 两阶段执行：先同步中间产物树（为每个可展开条目的中间材料维护子条目），
// 再把整棵树聚合成计划级的原材料/产物台账，并从全部已构建中间条目
// 全量重导制造获取记录。同一计划的调用串行化，所有写入在单个事务内提交。
type RecalcService struct {
	db      *gorm.DB
	recipes RecipeSource
	prices  PriceSource
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // 计划ID → 串行化锁
}

func NewRecalcService(db *gorm.DB, recipes RecipeSource, prices PriceSource, logger *zap.Logger) *RecalcService {
	return &RecalcService{
		db:      db,
		recipes: recipes,
		prices:  prices,
		logger:  logger,
		locks:   map[string]*sync.Mutex{},
	}
}

// lockPlan 获取计划级互斥锁。不同计划互不阻塞。
func (s *RecalcService) lockPlan(planID string) func() {
	s.mu.Lock()
	l, ok := s.locks[planID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[planID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// entryMutation 重算前应用到条目镜像上的待定变更。
// 返回错误视作校验失败：整次调用中止，存储不发生任何变化；
// 应用成功的变更随重算结果在同一事务内落库。
type entryMutation func(st *recalcState) error

// Recalculate 重算计划。
// refreshPrices 为真时逐项调用行情协作方刷新价格，单项失败价格置空、不中断整体；
// 为假时价格从现有行原样保留。失败整体回滚，计划停留在先前的一致状态。
func (s *RecalcService) Recalculate(ctx context.Context, planID string, refreshPrices bool) error {
	return s.RecalculateWith(ctx, planID, refreshPrices, nil)
}

// RecalculateWith 在计划锁内先对条目镜像应用 mutate（可为 nil），再执行重算。
// 条目的增删改经由此路径与重算共享一个事务。
func (s *RecalcService) RecalculateWith(ctx context.Context, planID string, refreshPrices bool, mutate entryMutation) error {
	unlock := s.lockPlan(planID)
	defer unlock()

	if err := s.recalcPlan(ctx, planID, refreshPrices, mutate); err != nil {
		return err
	}
	go sse.PublishRecalculated(planID, refreshPrices)
	return nil
}

// MarkBuilt 记录中间条目的实际构建轮次并触发整计划重算对账。
// 校验失败不改动任何状态；进度落库与重算在同一事务内提交。
func (s *RecalcService) MarkBuilt(ctx context.Context, entryID string, builtRuns int) error {
	var probe entity.PlanEntry
	if err := s.db.WithContext(ctx).First(&probe, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("条目不存在")
		}
		return fmt.Errorf("find entry: %w", err)
	}

	unlock := s.lockPlan(probe.PlanID)
	defer unlock()

	mutate := func(st *recalcState) error {
		node := st.tree.get(entryID)
		if node == nil {
			return errors.New("条目不存在")
		}
		if !node.IsIntermediate {
			return errors.New("仅中间条目可记录构建进度")
		}
		if builtRuns < 0 || builtRuns > node.Runs {
			return errors.New("构建轮次超出范围")
		}
		if node.BuiltRuns != builtRuns {
			node.BuiltRuns = builtRuns
			node.IsBuilt = node.Runs > 0 && node.BuiltRuns >= node.Runs
			st.tree.dirty[node.ID] = true
		}
		return nil
	}
	if err := s.recalcPlan(ctx, probe.PlanID, false, mutate); err != nil {
		return err
	}
	go sse.PublishEntryBuilt(probe.PlanID, entryID, builtRuns)
	return nil
}

// recalcState 单次重算的工作区
type recalcState struct {
	plan      *entity.Plan
	tree      *planTree
	producing map[int64]*entity.Recipe // 类型ID → 生产配方，nil 表示原材料
	raw       map[int64]float64
	finals    map[int64]*productAccum
	inters    map[int64]*productAccum
}

// productAccum 产物聚合槽，depth 记录该类型出现过的最小深度
type productAccum struct {
	quantity float64
	depth    int
}

func (st *recalcState) addFinal(typeID int64, qty float64) {
	if acc, ok := st.finals[typeID]; ok {
		acc.quantity += qty
		return
	}
	st.finals[typeID] = &productAccum{quantity: qty}
}

func (st *recalcState) addIntermediate(typeID int64, qty float64, depth int) {
	acc, ok := st.inters[typeID]
	if !ok {
		st.inters[typeID] = &productAccum{quantity: qty, depth: depth}
		return
	}
	acc.quantity += qty
	if depth < acc.depth {
		acc.depth = depth
	}
}

func (s *RecalcService) recalcPlan(ctx context.Context, planID string, refreshPrices bool, mutate entryMutation) error {
	var plan entity.Plan
	if err := s.db.WithContext(ctx).First(&plan, "id = ?", planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("计划不存在")
		}
		return fmt.Errorf("find plan: %w", err)
	}

	var entries []entity.PlanEntry
	if err := s.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return fmt.Errorf("load entries: %w", err)
	}

	st := &recalcState{
		plan:      &plan,
		tree:      newPlanTree(entries),
		producing: map[int64]*entity.Recipe{},
		raw:       map[int64]float64{},
		finals:    map[int64]*productAccum{},
		inters:    map[int64]*productAccum{},
	}

	// 待定变更先于一切写入校验并应用到镜像
	if mutate != nil {
		if err := mutate(st); err != nil {
			return err
		}
	}

	// 阶段一：结构同步。必须在聚合前跑完，聚合读到的轮次才是最新的。
	for _, top := range st.tree.topLevel() {
		if _, err := s.syncEntry(ctx, st, top, 0); err != nil {
			return fmt.Errorf("sync entry %s: %w", top.ID, err)
		}
	}

	// 阶段二：聚合
	if err := s.aggregate(ctx, st); err != nil {
		return err
	}

	// 孤儿先于对账确定：被回收条目的构建进度不再计入制造台账，
	// 否则本次与下次重算的结果会不一致。
	orphanIDs := st.tree.orphans()

	manufactured, err := s.manufacturedTotals(ctx, st, orphanIDs)
	if err != nil {
		return err
	}

	// 名称与价格解析放在事务外，网络IO不占事务
	names, priceMap, err := s.resolveNamesAndPrices(ctx, st, refreshPrices)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 刷回结构变更
		for _, n := range st.tree.nodes {
			if orphanIDs[n.ID] {
				continue
			}
			switch {
			case st.tree.created[n.ID]:
				if err := tx.Create(n).Error; err != nil {
					return fmt.Errorf("create entry: %w", err)
				}
			case st.tree.dirty[n.ID]:
				n.UpdatedAt = now
				if err := tx.Save(n).Error; err != nil {
					return fmt.Errorf("save entry: %w", err)
				}
			}
		}

		// 孤儿回收
		if len(orphanIDs) > 0 {
			ids := make([]string, 0, len(orphanIDs))
			for id := range orphanIDs {
				ids = append(ids, id)
			}
			if err := tx.Where("id IN ?", ids).Delete(&entity.PlanEntry{}).Error; err != nil {
				return fmt.Errorf("cleanup orphans: %w", err)
			}
		}

		// 快照现有行：价格与手动获取记录按类型保留；
		// 制造推导字段不进快照，随后整体重导。
		var oldMaterials []entity.MaterialLine
		if err := tx.Where("plan_id = ?", planID).Find(&oldMaterials).Error; err != nil {
			return fmt.Errorf("snapshot materials: %w", err)
		}
		matSnap := make(map[int64]*entity.MaterialLine, len(oldMaterials))
		for i := range oldMaterials {
			matSnap[oldMaterials[i].TypeID] = &oldMaterials[i]
		}

		var oldProducts []entity.ProductLine
		if err := tx.Where("plan_id = ?", planID).Find(&oldProducts).Error; err != nil {
			return fmt.Errorf("snapshot products: %w", err)
		}
		prodSnap := make(map[int64]*entity.ProductLine, len(oldProducts))
		for i := range oldProducts {
			prodSnap[oldProducts[i].TypeID] = &oldProducts[i]
		}

		// 清空重导
		if err := tx.Where("plan_id = ?", planID).Delete(&entity.MaterialLine{}).Error; err != nil {
			return fmt.Errorf("clear materials: %w", err)
		}
		if err := tx.Where("plan_id = ?", planID).Delete(&entity.ProductLine{}).Error; err != nil {
			return fmt.Errorf("clear products: %w", err)
		}

		// 材料台账
		var matLines []entity.MaterialLine
		for _, typeID := range sortedIDs(st.raw) {
			line := entity.MaterialLine{
				ID:        generateID(),
				PlanID:    planID,
				TypeID:    typeID,
				TypeName:  names[typeID],
				Quantity:  round2(st.raw[typeID]),
				CreatedAt: now,
				UpdatedAt: now,
			}
			old := matSnap[typeID]
			if old != nil {
				line.ID = old.ID
				line.CreatedAt = old.CreatedAt
				line.AcquiredQuantity = old.AcquiredQuantity
				line.AcquiredMethod = old.AcquiredMethod
				line.AcquiredPrice = old.AcquiredPrice
				line.Note = old.Note
			}
			if refreshPrices {
				if p := priceMap[typeID]; p != nil {
					price := *p
					frozen := now
					line.UnitPrice = &price
					line.PriceFrozenAt = &frozen
				}
			} else if old != nil {
				line.UnitPrice = old.UnitPrice
				line.PriceFrozenAt = old.PriceFrozenAt
			}
			applyManufactured(&line, round2(manufactured[typeID]))
			matLines = append(matLines, line)
		}
		if len(matLines) > 0 {
			if err := tx.Create(&matLines).Error; err != nil {
				return fmt.Errorf("insert materials: %w", err)
			}
		}

		// 产物台账：先写最终产物，中间产物跳过已是最终产物的类型
		var prodLines []entity.ProductLine
		appendProduct := func(typeID int64, acc *productAccum, isIntermediate bool) {
			line := entity.ProductLine{
				ID:             generateID(),
				PlanID:         planID,
				TypeID:         typeID,
				TypeName:       names[typeID],
				Quantity:       round2(acc.quantity),
				IsIntermediate: isIntermediate,
				Depth:          acc.depth,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			old := prodSnap[typeID]
			if old != nil {
				line.ID = old.ID
				line.CreatedAt = old.CreatedAt
			}
			if refreshPrices {
				if p := priceMap[typeID]; p != nil {
					price := *p
					frozen := now
					line.UnitPrice = &price
					line.PriceFrozenAt = &frozen
				}
			} else if old != nil {
				line.UnitPrice = old.UnitPrice
				line.PriceFrozenAt = old.PriceFrozenAt
			}
			prodLines = append(prodLines, line)
		}
		for _, typeID := range sortedIDs(st.finals) {
			appendProduct(typeID, st.finals[typeID], false)
		}
		for _, typeID := range sortedIDs(st.inters) {
			if _, isFinal := st.finals[typeID]; isFinal {
				continue
			}
			appendProduct(typeID, st.inters[typeID], true)
		}
		if len(prodLines) > 0 {
			if err := tx.Create(&prodLines).Error; err != nil {
				return fmt.Errorf("insert products: %w", err)
			}
		}

		if err := tx.Model(&entity.Plan{}).Where("id = ?", planID).
			Update("updated_at", now).Error; err != nil {
			return fmt.Errorf("touch plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("recalculate plan %s: %w", planID, err)
	}

	s.logger.Info("计划重算完成",
		zap.String("plan_id", planID),
		zap.Bool("refresh_prices", refreshPrices),
		zap.Int("materials", len(st.raw)),
		zap.Int("orphans", len(orphanIDs)))
	return nil
}

// syncEntry 递归确保条目的每个中间材料都存在对应的子条目，轮次与当前需求保持一致。
// 幂等：连续两次调用且外部无变化时不产生任何新增改动。返回触达的中间条目ID。
func (s *RecalcService) syncEntry(ctx context.Context, st *recalcState, entry *entity.PlanEntry, depth int) ([]string, error) {
	if depth >= entity.MaxTreeDepth {
		s.logger.Warn("同步深度超出上限，停止向下展开",
			zap.String("plan_id", st.plan.ID),
			zap.String("entry_id", entry.ID),
			zap.Int64("recipe_id", entry.RecipeID),
			zap.Int("depth", depth))
		return nil, nil
	}
	if !entry.Expands() {
		return nil, nil
	}

	exp, err := s.recipes.ExpandRecipe(ctx, entry.RecipeID, entry.Runs, effOf(entry), entry.Facility)
	if err != nil {
		return nil, fmt.Errorf("expand recipe %d: %w", entry.RecipeID, err)
	}

	var touched []string
	for _, typeID := range sortedIDs(exp.Materials) {
		recipe, err := s.producingRecipe(ctx, st, typeID)
		if err != nil {
			return nil, err
		}
		if recipe == nil {
			continue // 原材料
		}
		runs := runsFor(exp.Materials[typeID]*float64(entry.Lines), recipe.ProductQuantity)
		if runs <= 0 {
			continue
		}
		child, err := s.ensureChild(ctx, st, entry, recipe, typeID, runs)
		if err != nil {
			return nil, err
		}
		touched = append(touched, child.ID)

		sub, err := s.syncEntry(ctx, st, child, depth+1)
		if err != nil {
			return nil, err
		}
		touched = append(touched, sub...)
	}
	return touched, nil
}

// ensureChild 定位或创建满足 (parent, recipe, typeID) 三元组的中间条目。
// 已存在则只在轮次变化时更新；新建条目单线、默认效率取角色已掌握配方、
// 设施继承父条目、模式固定为 raw_materials。
func (s *RecalcService) ensureChild(ctx context.Context, st *recalcState, parent *entity.PlanEntry, recipe *entity.Recipe, typeID int64, runs int) (*entity.PlanEntry, error) {
	if child := st.tree.childFor(parent.ID, recipe.ID, typeID); child != nil {
		if child.Runs != runs {
			child.Runs = runs
			if child.BuiltRuns > child.Runs {
				child.BuiltRuns = child.Runs
			}
			child.IsBuilt = child.Runs > 0 && child.BuiltRuns >= child.Runs
			st.tree.dirty[child.ID] = true
		}
		return child, nil
	}

	eff := Efficiency{}
	if def, err := s.recipes.DefaultEfficiencyFor(ctx, st.plan.CharacterID, recipe.ID); err != nil {
		return nil, err
	} else if def != nil {
		eff = *def
	}

	parentID := parent.ID
	satisfied := typeID
	now := time.Now()
	child := &entity.PlanEntry{
		ID:                 generateID(),
		PlanID:             st.plan.ID,
		ParentEntryID:      &parentID,
		RecipeID:           recipe.ID,
		Runs:               runs,
		Lines:              1,
		MaterialEfficiency: eff.Material,
		TimeEfficiency:     eff.Time,
		Facility:           parent.Facility,
		IsIntermediate:     true,
		ExpansionMode:      entity.ExpansionModeRawMaterials,
		SatisfiedTypeID:    &satisfied,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	st.tree.insert(child)
	st.tree.created[child.ID] = true
	return child, nil
}

// aggregate 聚合阶段：把每个顶层条目展开成平坦的原材料与产物累计。
func (s *RecalcService) aggregate(ctx context.Context, st *recalcState) error {
	for _, entry := range st.tree.topLevel() {
		exp, err := s.recipes.ExpandRecipe(ctx, entry.RecipeID, entry.Runs, effOf(entry), entry.Facility)
		if err != nil {
			return fmt.Errorf("expand recipe %d: %w", entry.RecipeID, err)
		}

		// 顶层条目的产物即最终产物
		st.addFinal(exp.Product.TypeID, exp.Product.QuantityPerRun*float64(entry.Runs)*float64(entry.Lines))

		if !entry.Expands() {
			// components 模式：自身材料原样计入，不向下展开
			for typeID, qty := range exp.Materials {
				st.raw[typeID] += qty * float64(entry.Lines)
			}
			continue
		}

		for _, typeID := range sortedIDs(exp.Materials) {
			qty := exp.Materials[typeID] * float64(entry.Lines)
			recipe, err := s.producingRecipe(ctx, st, typeID)
			if err != nil {
				return err
			}
			if recipe == nil {
				st.raw[typeID] += qty
				continue
			}
			runs := runsFor(qty, recipe.ProductQuantity)
			if runs <= 0 {
				st.raw[typeID] += qty
				continue
			}
			// 中间材料由子生产覆盖，自身需求被递归展开结果取代
			if err := s.expandIntermediate(ctx, st, recipe, runs, entry.ID, entry.Facility, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandIntermediate 递归展开一个中间节点到平坦的原材料累计，并按当前深度记录其产物。
// 生效配置优先取已持久化的子条目（按父条目精确区分同配方多实例），
// 其次取角色默认效率，最后退回零效率/父设施。
// 结果可结合：多次调用按类型求和与单次合并轮次调用等价。
func (s *RecalcService) expandIntermediate(ctx context.Context, st *recalcState, recipe *entity.Recipe, runsNeeded int, parentEntryID string, fallbackFacility entity.FacilitySnapshot, depth int) error {
	if depth >= entity.MaxTreeDepth {
		s.logger.Warn("展开深度超出上限，结果被截断",
			zap.String("plan_id", st.plan.ID),
			zap.Int64("recipe_id", recipe.ID),
			zap.Int("depth", depth))
		return nil
	}

	eff := Efficiency{}
	facility := fallbackFacility
	mode := entity.ExpansionModeRawMaterials
	nextParentID := ""
	if cfg := st.tree.childFor(parentEntryID, recipe.ID, recipe.ProductTypeID); cfg != nil {
		eff = effOf(cfg)
		facility = cfg.Facility
		mode = cfg.ExpansionMode
		nextParentID = cfg.ID
	} else {
		def, err := s.recipes.DefaultEfficiencyFor(ctx, st.plan.CharacterID, recipe.ID)
		if err != nil {
			return err
		}
		if def != nil {
			eff = *def
		}
	}

	exp, err := s.recipes.ExpandRecipe(ctx, recipe.ID, runsNeeded, eff, facility)
	if err != nil {
		return fmt.Errorf("expand recipe %d: %w", recipe.ID, err)
	}

	// 本节点产物按当前深度计入
	st.addIntermediate(exp.Product.TypeID, exp.Product.QuantityPerRun*float64(runsNeeded), depth)

	if mode == entity.ExpansionModeComponents {
		// 到组件为止：自身材料视作原材料计入
		for typeID, qty := range exp.Materials {
			st.raw[typeID] += qty
		}
		return nil
	}

	for _, typeID := range sortedIDs(exp.Materials) {
		qty := exp.Materials[typeID]
		sub, err := s.producingRecipe(ctx, st, typeID)
		if err != nil {
			return err
		}
		if sub == nil {
			st.raw[typeID] += qty
			continue
		}
		subRuns := runsFor(qty, sub.ProductQuantity)
		if subRuns <= 0 {
			st.raw[typeID] += qty
			continue
		}
		if err := s.expandIntermediate(ctx, st, sub, subRuns, nextParentID, facility, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// manufacturedTotals 汇总全计划已构建中间条目消耗的材料。
// 全量重导而非增量修补：每次都从所有 built_runs > 0 的条目重新推导；
// 每个条目按完整 built_runs 一次性展开，效率取整不能用单轮结果线性放大。
// 本次将被回收的孤儿不计入。
func (s *RecalcService) manufacturedTotals(ctx context.Context, st *recalcState, orphanIDs map[string]bool) (map[int64]float64, error) {
	totals := map[int64]float64{}
	for _, n := range st.tree.nodes {
		if !n.IsIntermediate || n.BuiltRuns <= 0 || orphanIDs[n.ID] {
			continue
		}
		exp, err := s.recipes.ExpandRecipe(ctx, n.RecipeID, n.BuiltRuns, effOf(n), n.Facility)
		if err != nil {
			return nil, fmt.Errorf("expand built entry %s: %w", n.ID, err)
		}
		for typeID, qty := range exp.Materials {
			totals[typeID] += qty
		}
	}
	return totals, nil
}

// applyManufactured 推导材料行生效的获取方式。
// 手动与制造并存记为 mixed 并附说明；仅制造记为 manufactured；
// 仅手动沿用手动方式；两者皆无则保持空。
func applyManufactured(line *entity.MaterialLine, mfgQty float64) {
	line.ManufacturedQuantity = mfgQty
	switch {
	case line.AcquiredQuantity > 0 && mfgQty > 0:
		line.AcquisitionMethod = entity.AcquisitionMethodMixed
		line.AcquisitionNote = fmt.Sprintf("手动标记 %.2f + 制造产出 %.2f", line.AcquiredQuantity, mfgQty)
	case mfgQty > 0:
		line.AcquisitionMethod = entity.AcquisitionMethodManufactured
		line.AcquisitionNote = ""
	case line.AcquiredQuantity > 0:
		line.AcquisitionMethod = line.AcquiredMethod
		line.AcquisitionNote = ""
	default:
		line.AcquisitionMethod = ""
		line.AcquisitionNote = ""
	}
}

// resolveNamesAndPrices 事务外解析台账涉及类型的名称与（可选）最新价格
func (s *RecalcService) resolveNamesAndPrices(ctx context.Context, st *recalcState, refreshPrices bool) (map[int64]string, map[int64]*float64, error) {
	idSet := map[int64]bool{}
	for id := range st.raw {
		idSet[id] = true
	}
	for id := range st.finals {
		idSet[id] = true
	}
	for id := range st.inters {
		idSet[id] = true
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	names, err := s.recipes.TypeNames(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve type names: %w", err)
	}

	priceMap := map[int64]*float64{}
	if refreshPrices && s.prices != nil {
		for _, id := range ids {
			qty := st.raw[id]
			if qty == 0 {
				if acc, ok := st.finals[id]; ok {
					qty = acc.quantity
				} else if acc, ok := st.inters[id]; ok {
					qty = acc.quantity
				}
			}
			price, err := s.prices.EstimatePrice(ctx, id, qty)
			if err != nil {
				return nil, nil, err
			}
			priceMap[id] = price
		}
	}
	return names, priceMap, nil
}

// producingRecipe 带缓存的配方反查，nil 表示该类型为原材料
func (s *RecalcService) producingRecipe(ctx context.Context, st *recalcState, typeID int64) (*entity.Recipe, error) {
	if recipe, ok := st.producing[typeID]; ok {
		return recipe, nil
	}
	recipe, err := s.recipes.ProducingRecipeFor(ctx, typeID)
	if err != nil {
		return nil, fmt.Errorf("producing recipe for %d: %w", typeID, err)
	}
	st.producing[typeID] = recipe
	return recipe, nil
}

// ==================== 工具函数 ====================

// runsFor 满足 quantity 需求所需的完整轮次 ceil(quantity/perRun)，
// perRun 非正视为不可生产返回 0
func runsFor(quantity, perRun float64) int {
	if perRun <= 0 || quantity <= 0 {
		return 0
	}
	return int(math.Ceil(quantity/perRun - 1e-9))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func effOf(e *entity.PlanEntry) Efficiency {
	return Efficiency{Material: e.MaterialEfficiency, Time: e.TimeEfficiency}
}

func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
