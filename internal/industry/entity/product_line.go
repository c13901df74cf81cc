package entity

import "time"

// ProductLine 计划级产物行，(plan_id, type_id) 唯一。
// Depth 为 0 表示顶层条目的最终产物；>=1 表示中间产物在树中出现的最小深度。
// 同一类型同时是最终产物和中间产物时只保留最终产物行。
type ProductLine struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	PlanID         string     `json:"plan_id" gorm:"size:32;not null;uniqueIndex:idx_product_lines_plan_type"`
	TypeID         int64      `json:"type_id" gorm:"not null;uniqueIndex:idx_product_lines_plan_type"`
	TypeName       string     `json:"type_name,omitempty" gorm:"size:128"`
	Quantity       float64    `json:"quantity" gorm:"type:numeric(18,2);not null;default:0"`
	UnitPrice      *float64   `json:"unit_price,omitempty" gorm:"type:numeric(18,2)"`
	PriceFrozenAt  *time.Time `json:"price_frozen_at,omitempty"`
	IsIntermediate bool       `json:"is_intermediate" gorm:"not null;default:false"`
	Depth          int        `json:"depth" gorm:"not null;default:0"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (ProductLine) TableName() string {
	return "product_lines"
}
