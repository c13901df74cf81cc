package entity

import "time"

const (
	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
	PlanStatusArchived  = "archived"
)

// Plan 生产计划（所有子实体的属主容器）
type Plan struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	CharacterID string    `json:"character_id" gorm:"size:32;not null;index"`
	Name        string    `json:"name" gorm:"size:128;not null"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status" gorm:"size:16;not null;default:active"` // active/completed/archived
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Character *Character     `json:"character,omitempty" gorm:"foreignKey:CharacterID"`
	Entries   []PlanEntry    `json:"entries,omitempty" gorm:"foreignKey:PlanID"`
	Materials []MaterialLine `json:"materials,omitempty" gorm:"foreignKey:PlanID"`
	Products  []ProductLine  `json:"products,omitempty" gorm:"foreignKey:PlanID"`
}

func (Plan) TableName() string {
	return "plans"
}
