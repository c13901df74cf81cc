package entity

import "time"

// Character 角色（计划属主，默认效率的查询主体）
type Character struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Status    string    `json:"status" gorm:"size:16;not null;default:active"` // active/inactive
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Character) TableName() string {
	return "characters"
}

// CharacterRecipe 角色已掌握配方及其默认效率
type CharacterRecipe struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:32"`
	CharacterID        string    `json:"character_id" gorm:"size:32;not null;uniqueIndex:idx_character_recipes_owner"`
	RecipeID           int64     `json:"recipe_id" gorm:"not null;uniqueIndex:idx_character_recipes_owner"`
	MaterialEfficiency float64   `json:"material_efficiency" gorm:"type:numeric(5,2);not null;default:0"`
	TimeEfficiency     float64   `json:"time_efficiency" gorm:"type:numeric(5,2);not null;default:0"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (CharacterRecipe) TableName() string {
	return "character_recipes"
}
