package entity

import "time"

const (
	AcquisitionMethodPurchased    = "purchased"
	AcquisitionMethodManufactured = "manufactured"
	AcquisitionMethodGift         = "gift"
	AcquisitionMethodMixed        = "mixed"
)

// MaterialLine 计划级原材料台账行，(plan_id, type_id) 唯一。
// Quantity 每次重算整体重建；手动获取字段（AcquiredQuantity/AcquiredMethod/
// AcquiredPrice/Note）跨重算保留；制造推导字段（ManufacturedQuantity 及
// 生效的 AcquisitionMethod/AcquisitionNote）每次对账整体重算。
type MaterialLine struct {
	ID            string     `json:"id" gorm:"primaryKey;size:32"`
	PlanID        string     `json:"plan_id" gorm:"size:32;not null;uniqueIndex:idx_material_lines_plan_type"`
	TypeID        int64      `json:"type_id" gorm:"not null;uniqueIndex:idx_material_lines_plan_type"`
	TypeName      string     `json:"type_name,omitempty" gorm:"size:128"`
	Quantity      float64    `json:"quantity" gorm:"type:numeric(18,2);not null;default:0"`
	UnitPrice     *float64   `json:"unit_price,omitempty" gorm:"type:numeric(18,2)"`
	PriceFrozenAt *time.Time `json:"price_frozen_at,omitempty"`

	// 手动标记的获取记录（用户所有，重算时快照保留）
	AcquiredQuantity float64  `json:"acquired_quantity" gorm:"type:numeric(18,2);not null;default:0"`
	AcquiredMethod   string   `json:"acquired_method,omitempty" gorm:"size:16"` // purchased/gift/...
	AcquiredPrice    *float64 `json:"acquired_price,omitempty" gorm:"type:numeric(18,2)"`
	Note             string   `json:"note,omitempty"`

	// 构建进度推导的获取记录（引擎所有，整体重算、不增量修补）
	ManufacturedQuantity float64 `json:"manufactured_quantity" gorm:"type:numeric(18,2);not null;default:0"`
	AcquisitionMethod    string  `json:"acquisition_method,omitempty" gorm:"size:16"` // purchased/manufactured/gift/mixed
	AcquisitionNote      string  `json:"acquisition_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MaterialLine) TableName() string {
	return "material_lines"
}

// AcquiredTotal 已获取总量 = 手动标记 + 制造产出
func (m *MaterialLine) AcquiredTotal() float64 {
	return m.AcquiredQuantity + m.ManufacturedQuantity
}
