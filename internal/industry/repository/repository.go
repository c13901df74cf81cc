package repository

import (
	"gorm.io/gorm"
)

// Repositories 仓库集合
type Repositories struct {
	Plan      *PlanRepository
	Entry     *EntryRepository
	Line      *LineRepository
	Catalog   *CatalogRepository
	Character *CharacterRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Plan:      NewPlanRepository(db),
		Entry:     NewEntryRepository(db),
		Line:      NewLineRepository(db),
		Catalog:   NewCatalogRepository(db),
		Character: NewCharacterRepository(db),
	}
}
