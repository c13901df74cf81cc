package service

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/bitfantasy/forge/internal/industry/testutil"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func setupExportTest(t *testing.T) (*PlanService, *ExportService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	catalog := NewCatalogService(repos.Catalog, repos.Character)
	recalc := NewRecalcService(db, catalog, nil, zap.NewNop())
	planSvc := NewPlanService(repos.Plan, repos.Entry, repos.Line, repos.Catalog, repos.Character, recalc)
	export := NewExportService(repos.Plan, repos.Catalog, nil, "")

	seedStandardCatalog(t, db)
	return planSvc, export
}

// findRowByTypeID scans column A of a sheet for the given type id
// and returns the 1-based row number, or 0 when absent.
func findRowByTypeID(t *testing.T, f *excelize.File, sheet string, typeID int64) int {
	t.Helper()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows(%s) failed: %v", sheet, err)
	}
	want := strconv.FormatInt(typeID, 10)
	for i, row := range rows {
		if len(row) > 0 && row[0] == want {
			return i + 1
		}
	}
	return 0
}

func cellValue(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell)
	if err != nil {
		t.Fatalf("GetCellValue(%s!%s) failed: %v", sheet, cell, err)
	}
	return v
}

func TestBuildWorkbookSheets(t *testing.T) {
	planSvc, export := setupExportTest(t)
	ctx := context.Background()
	plan := createTestPlan(t, planSvc)

	if _, err := planSvc.AddEntry(ctx, plan.ID, &AddEntryRequest{RecipeID: 10, Runs: 10}); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	if _, err := planSvc.UpdateAcquisition(ctx, plan.ID, 100, &UpdateAcquisitionRequest{
		Quantity: 50,
		Method:   "purchased",
		Note:     "市场采购",
	}); err != nil {
		t.Fatalf("UpdateAcquisition failed: %v", err)
	}

	f, filename, err := export.BuildWorkbook(ctx, plan.ID)
	if err != nil {
		t.Fatalf("BuildWorkbook failed: %v", err)
	}
	defer f.Close()

	if !strings.HasPrefix(filename, "计划_量产护盾_") || !strings.HasSuffix(filename, ".xlsx") {
		t.Errorf("Unexpected filename: %s", filename)
	}
	for _, sheet := range []string{"材料清单", "产物", "条目"} {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			t.Fatalf("Expected sheet %s", sheet)
		}
	}

	// Material sheet: one row per distinct raw material plus header and total.
	matRows, _ := f.GetRows("材料清单")
	if len(matRows) != 5 {
		t.Fatalf("Expected 5 rows in material sheet, got %d", len(matRows))
	}
	if cellValue(t, f, "材料清单", "A1") != "类型ID" {
		t.Errorf("Unexpected material header: %s", cellValue(t, f, "材料清单", "A1"))
	}

	alloyRow := findRowByTypeID(t, f, "材料清单", 100)
	if alloyRow == 0 {
		t.Fatal("Expected alloy row in material sheet")
	}
	rowStr := strconv.Itoa(alloyRow)
	if cellValue(t, f, "材料清单", "B"+rowStr) != "合金板" {
		t.Errorf("Expected alloy name, got %s", cellValue(t, f, "材料清单", "B"+rowStr))
	}
	if cellValue(t, f, "材料清单", "C"+rowStr) != "100" {
		t.Errorf("Expected alloy quantity 100, got %s", cellValue(t, f, "材料清单", "C"+rowStr))
	}
	if cellValue(t, f, "材料清单", "F"+rowStr) != "50" {
		t.Errorf("Expected acquired 50, got %s", cellValue(t, f, "材料清单", "F"+rowStr))
	}
	if cellValue(t, f, "材料清单", "H"+rowStr) != "purchased" {
		t.Errorf("Expected method purchased, got %s", cellValue(t, f, "材料清单", "H"+rowStr))
	}
	if cellValue(t, f, "材料清单", "I"+rowStr) != "市场采购" {
		t.Errorf("Expected note, got %s", cellValue(t, f, "材料清单", "I"+rowStr))
	}

	// No prices were refreshed, so the cost column stays empty and the total is 0.
	if got := cellValue(t, f, "材料清单", "D"+rowStr); got != "" {
		t.Errorf("Expected empty unit price, got %s", got)
	}
	totalRow := strconv.Itoa(len(matRows))
	if cellValue(t, f, "材料清单", "B"+totalRow) != "合计" {
		t.Errorf("Expected total label, got %s", cellValue(t, f, "材料清单", "B"+totalRow))
	}

	// Product sheet: the final ahead of the intermediate, flagged by category.
	if cellValue(t, f, "产物", "A2") != "200" {
		t.Errorf("Expected final product first, got %s", cellValue(t, f, "产物", "A2"))
	}
	if cellValue(t, f, "产物", "F2") != "最终产物" {
		t.Errorf("Expected final category, got %s", cellValue(t, f, "产物", "F2"))
	}
	if cellValue(t, f, "产物", "A3") != "101" {
		t.Errorf("Expected intermediate second, got %s", cellValue(t, f, "产物", "A3"))
	}
	if cellValue(t, f, "产物", "F3") != "中间产物" {
		t.Errorf("Expected intermediate category, got %s", cellValue(t, f, "产物", "F3"))
	}
	if cellValue(t, f, "产物", "G3") != "1" {
		t.Errorf("Expected depth 1, got %s", cellValue(t, f, "产物", "G3"))
	}

	// Entry sheet: top entry at depth 0, spawned child at depth 1 with resolved names.
	if cellValue(t, f, "条目", "A2") != "0" || cellValue(t, f, "条目", "D2") != "10" {
		t.Errorf("Unexpected top entry row: depth=%s runs=%s",
			cellValue(t, f, "条目", "A2"), cellValue(t, f, "条目", "D2"))
	}
	if cellValue(t, f, "条目", "C2") != "护盾发生器 配方" {
		t.Errorf("Expected recipe name resolved, got %s", cellValue(t, f, "条目", "C2"))
	}
	if cellValue(t, f, "条目", "A3") != "1" || cellValue(t, f, "条目", "D3") != "25" {
		t.Errorf("Unexpected child entry row: depth=%s runs=%s",
			cellValue(t, f, "条目", "A3"), cellValue(t, f, "条目", "D3"))
	}
}

func TestBuildWorkbookUnknownPlan(t *testing.T) {
	_, export := setupExportTest(t)

	_, _, err := export.BuildWorkbook(context.Background(), "no-such-plan")
	if err == nil || err.Error() != "计划不存在" {
		t.Fatalf("Expected missing plan error, got %v", err)
	}
}

func TestExportRequiresObjectStorage(t *testing.T) {
	planSvc, export := setupExportTest(t)
	plan := createTestPlan(t, planSvc)

	_, err := export.Export(context.Background(), plan.ID)
	if err == nil || err.Error() != "对象存储未配置" {
		t.Fatalf("Expected object storage error, got %v", err)
	}
}
