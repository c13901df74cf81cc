package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bitfantasy/forge/internal/industry/entity"
	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// CatalogService 配方目录服务。
// 实现重算引擎消费的 RecipeSource 协作方：单层配方展开、产物反查、默认效率；
// 并负责目录数据的导入导出维护。
type CatalogService struct {
	catalogRepo   *repository.CatalogRepository
	characterRepo *repository.CharacterRepository
}

func NewCatalogService(catalogRepo *repository.CatalogRepository, characterRepo *repository.CharacterRepository) *CatalogService {
	return &CatalogService{
		catalogRepo:   catalogRepo,
		characterRepo: characterRepo,
	}
}

// ==================== 配方展开协作方 ====================

// ExpandRecipe 单层展开配方：计算 runs 轮在给定效率/设施下的材料需求与产出。
// 整批轮次一次性取整，不做逐轮缩放；绝不递归展开子配方，递归由重算引擎负责。
func (s *CatalogService) ExpandRecipe(ctx context.Context, recipeID int64, runs int, eff Efficiency, facility entity.FacilitySnapshot) (*RecipeExpansion, error) {
	if runs <= 0 {
		return nil, errors.New("展开轮次必须为正数")
	}

	recipe, err := s.catalogRepo.FindRecipe(ctx, recipeID)
	if err != nil {
		return nil, fmt.Errorf("find recipe %d: %w", recipeID, err)
	}

	materials := make(map[int64]float64, len(recipe.Materials))
	for _, m := range recipe.Materials {
		qty := effectiveQuantity(m.Quantity, runs, eff.Material, facility.MaterialBonus)
		if qty > 0 {
			materials[m.TypeID] += qty
		}
	}

	return &RecipeExpansion{
		RecipeID:  recipe.ID,
		Runs:      runs,
		Materials: materials,
		Product: ExpandedProduct{
			TypeID:         recipe.ProductTypeID,
			QuantityPerRun: recipe.ProductQuantity,
		},
	}, nil
}

// effectiveQuantity 效率修正后的整批需求量。
// 取整发生在整批轮次上（ceil 一次），因此 N 轮的结果不等于单轮结果的 N 倍；
// 基础量不小于1的材料每轮至少消耗1个。
func effectiveQuantity(base float64, runs int, materialEff, facilityBonus float64) float64 {
	adjusted := base * float64(runs) * (1 - materialEff/100) * (1 - facilityBonus/100)
	qty := math.Ceil(adjusted - 1e-9)
	if base >= 1 && qty < float64(runs) {
		qty = float64(runs)
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}

// ProducingRecipeFor 查找产出指定类型的配方，不存在时返回 nil（原材料）
func (s *CatalogService) ProducingRecipeFor(ctx context.Context, typeID int64) (*entity.Recipe, error) {
	return s.catalogRepo.FindRecipeByProduct(ctx, typeID)
}

// DefaultEfficiencyFor 角色对某配方的默认效率，未掌握时返回 nil
func (s *CatalogService) DefaultEfficiencyFor(ctx context.Context, characterID string, recipeID int64) (*Efficiency, error) {
	if characterID == "" {
		return nil, nil
	}
	owned, err := s.characterRepo.FindOwnedRecipe(ctx, characterID, recipeID)
	if err != nil {
		return nil, fmt.Errorf("find owned recipe: %w", err)
	}
	if owned == nil {
		return nil, nil
	}
	return &Efficiency{Material: owned.MaterialEfficiency, Time: owned.TimeEfficiency}, nil
}

// TypeNames 批量解析类型名称，目录中不存在的ID不出现在结果里
func (s *CatalogService) TypeNames(ctx context.Context, typeIDs []int64) (map[int64]string, error) {
	if len(typeIDs) == 0 {
		return map[int64]string{}, nil
	}
	types, err := s.catalogRepo.FindTypes(ctx, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("find types: %w", err)
	}
	names := make(map[int64]string, len(types))
	for id, t := range types {
		names[id] = t.Name
	}
	return names, nil
}

// ==================== 目录查询 ====================

// GetType 查询物品类型
func (s *CatalogService) GetType(ctx context.Context, id int64) (*entity.ItemType, error) {
	return s.catalogRepo.FindType(ctx, id)
}

// ListTypes 物品类型列表
func (s *CatalogService) ListTypes(ctx context.Context, keyword string, offset, limit int) ([]entity.ItemType, int64, error) {
	return s.catalogRepo.ListTypes(ctx, keyword, offset, limit)
}

// GetRecipe 查询配方（含材料清单）
func (s *CatalogService) GetRecipe(ctx context.Context, id int64) (*entity.Recipe, error) {
	return s.catalogRepo.FindRecipe(ctx, id)
}

// ListRecipes 配方列表
func (s *CatalogService) ListRecipes(ctx context.Context, keyword string, offset, limit int) ([]entity.Recipe, int64, error) {
	return s.catalogRepo.ListRecipes(ctx, keyword, offset, limit)
}

// ==================== 目录导入导出 ====================

var catalogTypeHeaders = []string{"类型ID", "名称", "分组", "体积"}
var catalogRecipeHeaders = []string{"配方ID", "名称", "产物类型ID", "每轮产出", "单轮耗时(秒)"}
var catalogMaterialHeaders = []string{"配方ID", "材料类型ID", "每轮数量"}

const (
	sheetTypes     = "物品"
	sheetRecipes   = "配方"
	sheetMaterials = "配方材料"
)

// ImportWorkbook 从xlsx工作簿导入目录数据。
// 工作簿需自包含：配方材料页引用的配方必须出现在配方页，否则按失败行计数。
func (s *CatalogService) ImportWorkbook(ctx context.Context, f *excelize.File) (*CatalogImportResult, error) {
	result := &CatalogImportResult{}

	// 物品页
	if rows, err := f.GetRows(sheetTypes); err == nil && len(rows) > 1 {
		for _, row := range rows[1:] {
			if len(row) < 2 || row[0] == "" {
				result.Failed++
				continue
			}
			id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
			if err != nil || row[1] == "" {
				result.Failed++
				continue
			}
			t := &entity.ItemType{ID: id, Name: strings.TrimSpace(row[1])}
			if len(row) > 2 {
				t.GroupName = strings.TrimSpace(row[2])
			}
			if len(row) > 3 {
				if v, err := strconv.ParseFloat(row[3], 64); err == nil {
					t.Volume = v
				}
			}
			if err := s.catalogRepo.UpsertType(ctx, t); err != nil {
				return nil, fmt.Errorf("upsert type %d: %w", id, err)
			}
			result.Types++
		}
	}

	// 配方页：先收集，材料页挂载后整体落库
	recipes := map[int64]*entity.Recipe{}
	if rows, err := f.GetRows(sheetRecipes); err == nil && len(rows) > 1 {
		for _, row := range rows[1:] {
			if len(row) < 3 || row[0] == "" {
				result.Failed++
				continue
			}
			id, err1 := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
			productID, err2 := strconv.ParseInt(strings.TrimSpace(row[2]), 10, 64)
			if err1 != nil || err2 != nil {
				result.Failed++
				continue
			}
			recipe := &entity.Recipe{
				ID:              id,
				Name:            strings.TrimSpace(row[1]),
				ProductTypeID:   productID,
				ProductQuantity: 1,
			}
			if len(row) > 3 {
				if q, err := strconv.ParseFloat(row[3], 64); err == nil && q > 0 {
					recipe.ProductQuantity = q
				}
			}
			if len(row) > 4 {
				if sec, err := strconv.Atoi(strings.TrimSpace(row[4])); err == nil {
					recipe.SecondsPerRun = sec
				}
			}
			recipes[id] = recipe
		}
	}

	// 配方材料页
	if rows, err := f.GetRows(sheetMaterials); err == nil && len(rows) > 1 {
		for _, row := range rows[1:] {
			if len(row) < 3 {
				result.Failed++
				continue
			}
			recipeID, err1 := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
			typeID, err2 := strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64)
			qty, err3 := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
			if err1 != nil || err2 != nil || err3 != nil || qty <= 0 {
				result.Failed++
				continue
			}
			recipe, ok := recipes[recipeID]
			if !ok {
				result.Failed++
				continue
			}
			recipe.Materials = append(recipe.Materials, entity.RecipeMaterial{
				ID:       generateID(),
				RecipeID: recipeID,
				TypeID:   typeID,
				Quantity: qty,
			})
			result.Materials++
		}
	}

	for _, recipe := range recipes {
		if err := s.catalogRepo.UpsertRecipe(ctx, recipe); err != nil {
			return nil, fmt.Errorf("upsert recipe %d: %w", recipe.ID, err)
		}
		result.Recipes++
	}

	return result, nil
}

// ImportTypesCSV 从CSV导入物品类型，兼容GBK编码（类型ID,名称,分组,体积）
func (s *CatalogService) ImportTypesCSV(ctx context.Context, r io.Reader) (*CatalogImportResult, error) {
	// GBK → UTF-8
	utf8Reader := transform.NewReader(r, simplifiedchinese.GBK.NewDecoder())

	reader := csv.NewReader(utf8Reader)
	reader.FieldsPerRecord = -1

	result := &CatalogImportResult{}
	lineNo := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		lineNo++
		if lineNo == 1 {
			// 表头
			continue
		}
		if len(record) < 2 || record[0] == "" {
			result.Failed++
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil || record[1] == "" {
			result.Failed++
			continue
		}
		t := &entity.ItemType{ID: id, Name: strings.TrimSpace(record[1])}
		if len(record) > 2 {
			t.GroupName = strings.TrimSpace(record[2])
		}
		if len(record) > 3 {
			if v, err := strconv.ParseFloat(record[3], 64); err == nil {
				t.Volume = v
			}
		}
		if err := s.catalogRepo.UpsertType(ctx, t); err != nil {
			return nil, fmt.Errorf("upsert type %d: %w", id, err)
		}
		result.Types++
	}

	return result, nil
}

// GenerateTemplate 生成目录导入模板
func (s *CatalogService) GenerateTemplate() (*excelize.File, error) {
	f := excelize.NewFile()

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	writeSheet := func(sheet string, headers []string, example []interface{}) {
		for i, h := range headers {
			col, _ := excelize.ColumnNumberToName(i + 1)
			cell := col + "1"
			f.SetCellValue(sheet, cell, h)
			f.SetCellStyle(sheet, cell, cell, boldStyle)
			f.SetColWidth(sheet, col, col, 16)
		}
		for i, v := range example {
			col, _ := excelize.ColumnNumberToName(i + 1)
			f.SetCellValue(sheet, col+"2", v)
		}
	}

	f.SetSheetName("Sheet1", sheetTypes)
	writeSheet(sheetTypes, catalogTypeHeaders, []interface{}{34, "三钛合金", "矿物", 0.01})

	if _, err := f.NewSheet(sheetRecipes); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	writeSheet(sheetRecipes, catalogRecipeHeaders, []interface{}{1001, "护盾发生器 配方", 2001, 1, 600})

	if _, err := f.NewSheet(sheetMaterials); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	writeSheet(sheetMaterials, catalogMaterialHeaders, []interface{}{1001, 34, 120})

	return f, nil
}

// CatalogImportResult 目录导入结果
type CatalogImportResult struct {
	Types     int `json:"types"`
	Recipes   int `json:"recipes"`
	Materials int `json:"materials"`
	Failed    int `json:"failed"`
}
