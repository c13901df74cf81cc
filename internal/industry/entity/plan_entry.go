package entity

import "time"

const (
	ExpansionModeRawMaterials = "raw_materials"
	ExpansionModeComponents   = "components"
	ExpansionModeBuildBuy     = "build_buy"
)

// MaxTreeDepth 中间产物树的最大递归深度，防止配方图成环导致无限展开
const MaxTreeDepth = 10

// FacilitySnapshot 设施快照。条目创建/编辑时固化，
// 后续设施变更不会追溯影响历史条目的计算。
type FacilitySnapshot struct {
	Name          string  `json:"name"`
	FacilityType  string  `json:"facility_type,omitempty"`
	MaterialBonus float64 `json:"material_bonus"` // 材料消耗减免百分比
	TimeBonus     float64 `json:"time_bonus"`
	CostIndex     float64 `json:"cost_index,omitempty"`
}

// PlanEntry 计划条目（计划内的一次配方实例）。
// ParentEntryID 为空的是用户直接添加的顶层条目；
// 非空的是引擎为满足父条目材料需求自动生成的中间条目。
type PlanEntry struct {
	ID                 string           `json:"id" gorm:"primaryKey;size:32"`
	PlanID             string           `json:"plan_id" gorm:"size:32;not null;index:idx_plan_entries_plan"`
	ParentEntryID      *string          `json:"parent_entry_id,omitempty" gorm:"size:32;index:idx_plan_entries_parent"`
	RecipeID           int64            `json:"recipe_id" gorm:"not null"`
	Runs               int              `json:"runs" gorm:"not null;default:1"`
	Lines              int              `json:"lines" gorm:"not null;default:1"` // 并行产线数，仅顶层条目有效；中间条目恒为1
	MaterialEfficiency float64          `json:"material_efficiency" gorm:"type:numeric(5,2);not null;default:0"`
	TimeEfficiency     float64          `json:"time_efficiency" gorm:"type:numeric(5,2);not null;default:0"`
	Facility           FacilitySnapshot `json:"facility" gorm:"serializer:json"`
	IsIntermediate     bool             `json:"is_intermediate" gorm:"not null;default:false"`
	ExpansionMode      string           `json:"expansion_mode" gorm:"size:16;not null;default:raw_materials"` // raw_materials/components/build_buy
	BuiltRuns          int              `json:"built_runs" gorm:"not null;default:0"`
	IsBuilt            bool             `json:"is_built" gorm:"not null;default:false"`
	SatisfiedTypeID    *int64           `json:"satisfied_type_id,omitempty"` // 该条目产出所满足的父级材料类型，仅中间条目有效
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`

	// Relations
	Parent   *PlanEntry  `json:"parent,omitempty" gorm:"foreignKey:ParentEntryID"`
	Children []PlanEntry `json:"children,omitempty" gorm:"foreignKey:ParentEntryID"`
}

func (PlanEntry) TableName() string {
	return "plan_entries"
}

// Expands 该条目的展开模式是否需要生成/展开子生产步骤
func (e *PlanEntry) Expands() bool {
	return e.ExpansionMode == ExpansionModeRawMaterials || e.ExpansionMode == ExpansionModeBuildBuy
}
