package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bitfantasy/forge/internal/industry/entity"
	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportService 计划导出服务：生成xlsx工作簿，可选上传对象存储换取临时下载链接
type ExportService struct {
	planRepo    *repository.PlanRepository
	catalogRepo *repository.CatalogRepository
	minioClient *minio.Client
	bucket      string
}

func NewExportService(planRepo *repository.PlanRepository, catalogRepo *repository.CatalogRepository, minioClient *minio.Client, bucket string) *ExportService {
	return &ExportService{
		planRepo:    planRepo,
		catalogRepo: catalogRepo,
		minioClient: minioClient,
		bucket:      bucket,
	}
}

// BuildWorkbook 生成计划工作簿（材料清单/产物/条目三页）和建议文件名
func (s *ExportService) BuildWorkbook(ctx context.Context, planID string) (*excelize.File, string, error) {
	plan, err := s.planRepo.FindByIDFull(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", errors.New("计划不存在")
		}
		return nil, "", fmt.Errorf("find plan: %w", err)
	}

	f := excelize.NewFile()

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	writeHeaders := func(sheet string, headers []string, widths []float64) {
		for i, h := range headers {
			col, _ := excelize.ColumnNumberToName(i + 1)
			cell := col + "1"
			f.SetCellValue(sheet, cell, h)
			f.SetCellStyle(sheet, cell, cell, boldStyle)
			if i < len(widths) {
				f.SetColWidth(sheet, col, col, widths[i])
			}
		}
	}

	// 材料清单
	matSheet := "材料清单"
	f.SetSheetName("Sheet1", matSheet)
	writeHeaders(matSheet,
		[]string{"类型ID", "名称", "需求数量", "单价", "小计", "已获取", "制造产出", "获取方式", "备注"},
		[]float64{12, 24, 12, 12, 14, 10, 10, 12, 24})
	var totalCost float64
	for i := range plan.Materials {
		m := &plan.Materials[i]
		row := i + 2
		f.SetCellValue(matSheet, fmt.Sprintf("A%d", row), m.TypeID)
		f.SetCellValue(matSheet, fmt.Sprintf("B%d", row), m.TypeName)
		f.SetCellValue(matSheet, fmt.Sprintf("C%d", row), m.Quantity)
		if m.UnitPrice != nil {
			subtotal := round2(m.Quantity * *m.UnitPrice)
			totalCost += subtotal
			f.SetCellValue(matSheet, fmt.Sprintf("D%d", row), *m.UnitPrice)
			f.SetCellValue(matSheet, fmt.Sprintf("E%d", row), subtotal)
		}
		f.SetCellValue(matSheet, fmt.Sprintf("F%d", row), m.AcquiredQuantity)
		f.SetCellValue(matSheet, fmt.Sprintf("G%d", row), m.ManufacturedQuantity)
		f.SetCellValue(matSheet, fmt.Sprintf("H%d", row), m.AcquisitionMethod)
		note := m.Note
		if m.AcquisitionNote != "" {
			note = m.AcquisitionNote
		}
		f.SetCellValue(matSheet, fmt.Sprintf("I%d", row), note)
	}
	summaryRow := len(plan.Materials) + 2
	f.SetCellValue(matSheet, fmt.Sprintf("B%d", summaryRow), "合计")
	f.SetCellValue(matSheet, fmt.Sprintf("E%d", summaryRow), round2(totalCost))
	f.SetCellStyle(matSheet, fmt.Sprintf("B%d", summaryRow), fmt.Sprintf("E%d", summaryRow), boldStyle)

	// 产物
	prodSheet := "产物"
	if _, err := f.NewSheet(prodSheet); err != nil {
		return nil, "", fmt.Errorf("create sheet: %w", err)
	}
	writeHeaders(prodSheet,
		[]string{"类型ID", "名称", "数量", "单价", "小计", "类别", "深度"},
		[]float64{12, 24, 12, 12, 14, 10, 8})
	for i := range plan.Products {
		p := &plan.Products[i]
		row := i + 2
		f.SetCellValue(prodSheet, fmt.Sprintf("A%d", row), p.TypeID)
		f.SetCellValue(prodSheet, fmt.Sprintf("B%d", row), p.TypeName)
		f.SetCellValue(prodSheet, fmt.Sprintf("C%d", row), p.Quantity)
		if p.UnitPrice != nil {
			f.SetCellValue(prodSheet, fmt.Sprintf("D%d", row), *p.UnitPrice)
			f.SetCellValue(prodSheet, fmt.Sprintf("E%d", row), round2(p.Quantity**p.UnitPrice))
		}
		category := "最终产物"
		if p.IsIntermediate {
			category = "中间产物"
		}
		f.SetCellValue(prodSheet, fmt.Sprintf("F%d", row), category)
		f.SetCellValue(prodSheet, fmt.Sprintf("G%d", row), p.Depth)
	}

	// 条目
	entrySheet := "条目"
	if _, err := f.NewSheet(entrySheet); err != nil {
		return nil, "", fmt.Errorf("create sheet: %w", err)
	}
	writeHeaders(entrySheet,
		[]string{"层级", "配方ID", "配方名称", "轮次", "产线", "材料效率", "时间效率", "展开模式", "已构建轮次"},
		[]float64{8, 12, 28, 8, 8, 10, 10, 14, 12})
	depths := entryDepths(plan.Entries)
	recipeNames := map[int64]string{}
	for i := range plan.Entries {
		e := &plan.Entries[i]
		row := i + 2
		name, ok := recipeNames[e.RecipeID]
		if !ok {
			if recipe, err := s.catalogRepo.FindRecipe(ctx, e.RecipeID); err == nil {
				name = recipe.Name
			}
			recipeNames[e.RecipeID] = name
		}
		f.SetCellValue(entrySheet, fmt.Sprintf("A%d", row), depths[e.ID])
		f.SetCellValue(entrySheet, fmt.Sprintf("B%d", row), e.RecipeID)
		f.SetCellValue(entrySheet, fmt.Sprintf("C%d", row), name)
		f.SetCellValue(entrySheet, fmt.Sprintf("D%d", row), e.Runs)
		f.SetCellValue(entrySheet, fmt.Sprintf("E%d", row), e.Lines)
		f.SetCellValue(entrySheet, fmt.Sprintf("F%d", row), e.MaterialEfficiency)
		f.SetCellValue(entrySheet, fmt.Sprintf("G%d", row), e.TimeEfficiency)
		f.SetCellValue(entrySheet, fmt.Sprintf("H%d", row), e.ExpansionMode)
		f.SetCellValue(entrySheet, fmt.Sprintf("I%d", row), e.BuiltRuns)
	}

	filename := fmt.Sprintf("计划_%s_%s.xlsx", plan.Name, time.Now().Format("20060102"))
	return f, filename, nil
}

// Export 生成工作簿并上传对象存储，返回24小时有效的下载链接
func (s *ExportService) Export(ctx context.Context, planID string) (string, error) {
	if s.minioClient == nil {
		return "", errors.New("对象存储未配置")
	}

	f, filename, err := s.BuildWorkbook(ctx, planID)
	if err != nil {
		return "", err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}

	objectName := fmt.Sprintf("plans/%s/%d.xlsx", planID, time.Now().Unix())
	_, err = s.minioClient.PutObject(ctx, s.bucket, objectName, buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	})
	if err != nil {
		return "", fmt.Errorf("upload workbook: %w", err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(filename)))
	presigned, err := s.minioClient.PresignedGetObject(ctx, s.bucket, objectName, 24*time.Hour, params)
	if err != nil {
		return "", fmt.Errorf("presign url: %w", err)
	}
	return presigned.String(), nil
}

// entryDepths 按父指针计算各条目深度，顶层为0
func entryDepths(entries []entity.PlanEntry) map[string]int {
	byID := make(map[string]*entity.PlanEntry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}
	depths := make(map[string]int, len(entries))
	var depthOf func(id string, hops int) int
	depthOf = func(id string, hops int) int {
		if d, ok := depths[id]; ok {
			return d
		}
		e := byID[id]
		if e == nil || e.ParentEntryID == nil || hops > entity.MaxTreeDepth {
			depths[id] = 0
			return 0
		}
		d := depthOf(*e.ParentEntryID, hops+1) + 1
		depths[id] = d
		return d
	}
	for i := range entries {
		depthOf(entries[i].ID, 0)
	}
	return depths
}
