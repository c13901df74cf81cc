package entity

// ItemType 物品类型（目录数据，主键为外部目录编号）
type ItemType struct {
	ID        int64   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name      string  `json:"name" gorm:"size:128;not null;index"`
	GroupName string  `json:"group_name,omitempty" gorm:"size:64"`
	Volume    float64 `json:"volume,omitempty" gorm:"type:numeric(18,4);default:0"`
}

func (ItemType) TableName() string {
	return "item_types"
}

// Recipe 配方（目录数据）。ProductQuantity 为每轮产出数量。
type Recipe struct {
	ID              int64   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name            string  `json:"name" gorm:"size:128;not null"`
	ProductTypeID   int64   `json:"product_type_id" gorm:"not null;index"`
	ProductQuantity float64 `json:"product_quantity" gorm:"type:numeric(18,2);not null;default:1"`
	SecondsPerRun   int     `json:"seconds_per_run" gorm:"default:0"`

	// Relations
	Materials []RecipeMaterial `json:"materials,omitempty" gorm:"foreignKey:RecipeID"`
}

func (Recipe) TableName() string {
	return "recipes"
}

// RecipeMaterial 配方单轮基础材料需求（效率修正前）
type RecipeMaterial struct {
	ID       string  `json:"id" gorm:"primaryKey;size:32"`
	RecipeID int64   `json:"recipe_id" gorm:"not null;index"`
	TypeID   int64   `json:"type_id" gorm:"not null"`
	Quantity float64 `json:"quantity" gorm:"type:numeric(18,2);not null"`
}

func (RecipeMaterial) TableName() string {
	return "recipe_materials"
}
