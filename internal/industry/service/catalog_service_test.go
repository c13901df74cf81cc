package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/bitfantasy/forge/internal/industry/entity"
	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/bitfantasy/forge/internal/industry/testutil"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"gorm.io/gorm"
)

func setupCatalogTest(t *testing.T) (*gorm.DB, *CatalogService) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	return db, NewCatalogService(repos.Catalog, repos.Character)
}

func TestEffectiveQuantity(t *testing.T) {
	cases := []struct {
		name     string
		base     float64
		runs     int
		eff      float64
		bonus    float64
		expected float64
	}{
		{"no modifiers single run", 10, 1, 0, 0, 10},
		{"no modifiers batch", 10, 10, 0, 0, 100},
		{"batch rounds once not per run", 4, 10, 10, 0, 36},
		{"single run rounds up", 4, 1, 10, 0, 4},
		{"floor of one per run", 1, 10, 50, 0, 10},
		{"fractional base not clamped", 0.5, 10, 0, 0, 5},
		{"facility bonus stacks", 10, 10, 10, 5, 86},
		{"full efficiency clamps at runs", 1, 5, 100, 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := effectiveQuantity(tc.base, tc.runs, tc.eff, tc.bonus)
			if got != tc.expected {
				t.Errorf("effectiveQuantity(%v, %d, %v, %v) = %v, expected %v",
					tc.base, tc.runs, tc.eff, tc.bonus, got, tc.expected)
			}
		})
	}
}

func TestRunsFor(t *testing.T) {
	cases := []struct {
		quantity float64
		perRun   float64
		expected int
	}{
		{50, 2, 25},
		{51, 2, 26},
		{1, 2, 1},
		{0, 2, 0},
		{10, 0, 0},
		{10, -1, 0},
	}
	for _, tc := range cases {
		if got := runsFor(tc.quantity, tc.perRun); got != tc.expected {
			t.Errorf("runsFor(%v, %v) = %d, expected %d", tc.quantity, tc.perRun, got, tc.expected)
		}
	}
}

func TestExpandRecipe(t *testing.T) {
	db, svc := setupCatalogTest(t)
	testutil.SeedType(t, db, 34, "三钛合金")
	testutil.SeedType(t, db, 35, "类晶体胶矿")
	testutil.SeedType(t, db, 601, "小型护盾")
	testutil.SeedRecipe(t, db, 50, "小型护盾 配方", 601, 2, map[int64]float64{34: 120, 35: 80})
	ctx := context.Background()

	exp, err := svc.ExpandRecipe(ctx, 50, 3, Efficiency{Material: 10}, entity.FacilitySnapshot{})
	if err != nil {
		t.Fatalf("ExpandRecipe failed: %v", err)
	}
	if exp.Product.TypeID != 601 || exp.Product.QuantityPerRun != 2 {
		t.Errorf("Expected product 601 x2/run, got %+v", exp.Product)
	}
	if got := exp.Materials[34]; got != 324 {
		t.Errorf("Expected 324 of type 34 (ceil(120*3*0.9)), got %v", got)
	}
	if got := exp.Materials[35]; got != 216 {
		t.Errorf("Expected 216 of type 35, got %v", got)
	}

	if _, err := svc.ExpandRecipe(ctx, 50, 0, Efficiency{}, entity.FacilitySnapshot{}); err == nil {
		t.Errorf("Expected error for zero runs")
	}
	if _, err := svc.ExpandRecipe(ctx, 999, 1, Efficiency{}, entity.FacilitySnapshot{}); err == nil {
		t.Errorf("Expected error for unknown recipe")
	}
}

func TestExpandRecipeSplitRunsSumToCombined(t *testing.T) {
	db, svc := setupCatalogTest(t)
	testutil.SeedType(t, db, 34, "三钛合金")
	testutil.SeedType(t, db, 35, "类晶体胶矿")
	testutil.SeedType(t, db, 601, "小型护盾")
	testutil.SeedRecipe(t, db, 50, "小型护盾 配方", 601, 2, map[int64]float64{34: 120, 35: 10})
	ctx := context.Background()

	expand := func(runs int, eff Efficiency) *RecipeExpansion {
		exp, err := svc.ExpandRecipe(ctx, 50, runs, eff, entity.FacilitySnapshot{})
		if err != nil {
			t.Fatalf("ExpandRecipe(%d runs) failed: %v", runs, err)
		}
		return exp
	}

	// Without modifiers the quantities are linear in runs, so splitting a
	// batch across invocations and summing matches one combined call.
	first := expand(10, Efficiency{})
	second := expand(15, Efficiency{})
	combined := expand(25, Efficiency{})
	for _, typeID := range []int64{34, 35} {
		sum := first.Materials[typeID] + second.Materials[typeID]
		if sum != combined.Materials[typeID] {
			t.Errorf("Type %d: split runs sum %v, combined call %v", typeID, sum, combined.Materials[typeID])
		}
	}
	if first.Product.QuantityPerRun != combined.Product.QuantityPerRun {
		t.Errorf("Expected per-run yield to be invariant, got %v and %v",
			first.Product.QuantityPerRun, combined.Product.QuantityPerRun)
	}

	// With efficiency applied the batch rounds once, so a combined call
	// never needs more than the summed splits.
	eff := Efficiency{Material: 15}
	one := expand(1, eff)
	two := expand(2, eff)
	if got := one.Materials[35]; got != 9 {
		t.Fatalf("Expected 9 of type 35 per run (ceil(10*0.85)), got %v", got)
	}
	if got := two.Materials[35]; got != 17 {
		t.Errorf("Expected 17 of type 35 for the combined batch, got %v", got)
	}
	if split, batch := one.Materials[35]*2, two.Materials[35]; batch > split {
		t.Errorf("Combined batch %v exceeds summed splits %v", batch, split)
	}
}

func TestExpandRecipeMergesDuplicateMaterialRows(t *testing.T) {
	db, svc := setupCatalogTest(t)
	testutil.SeedType(t, db, 34, "三钛合金")
	testutil.SeedType(t, db, 602, "装甲板")
	recipe := &entity.Recipe{ID: 51, Name: "装甲板 配方", ProductTypeID: 602, ProductQuantity: 1}
	if err := db.Create(recipe).Error; err != nil {
		t.Fatalf("Failed to seed recipe: %v", err)
	}
	// Two requirement rows for the same input type.
	for i, qty := range []float64{30, 20} {
		m := &entity.RecipeMaterial{
			ID:       generateID(),
			RecipeID: 51,
			TypeID:   34,
			Quantity: qty,
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("Failed to seed material row %d: %v", i, err)
		}
	}

	exp, err := svc.ExpandRecipe(context.Background(), 51, 2, Efficiency{}, entity.FacilitySnapshot{})
	if err != nil {
		t.Fatalf("ExpandRecipe failed: %v", err)
	}
	if got := exp.Materials[34]; got != 100 {
		t.Errorf("Expected merged requirement 100 (60+40), got %v", got)
	}
}

func TestProducingRecipeAndDefaultEfficiency(t *testing.T) {
	db, svc := setupCatalogTest(t)
	testutil.SeedType(t, db, 34, "三钛合金")
	testutil.SeedType(t, db, 601, "小型护盾")
	testutil.SeedRecipe(t, db, 50, "小型护盾 配方", 601, 1, map[int64]float64{34: 10})
	testutil.SeedCharacter(t, db, "char-cat-001", "目录角色")
	testutil.SeedOwnedRecipe(t, db, "char-cat-001", 50, 15, 20)
	ctx := context.Background()

	recipe, err := svc.ProducingRecipeFor(ctx, 601)
	if err != nil {
		t.Fatalf("ProducingRecipeFor failed: %v", err)
	}
	if recipe == nil || recipe.ID != 50 {
		t.Fatalf("Expected recipe 50, got %+v", recipe)
	}
	raw, err := svc.ProducingRecipeFor(ctx, 34)
	if err != nil {
		t.Fatalf("ProducingRecipeFor raw failed: %v", err)
	}
	if raw != nil {
		t.Errorf("Expected nil for raw material, got %+v", raw)
	}

	eff, err := svc.DefaultEfficiencyFor(ctx, "char-cat-001", 50)
	if err != nil {
		t.Fatalf("DefaultEfficiencyFor failed: %v", err)
	}
	if eff == nil || eff.Material != 15 || eff.Time != 20 {
		t.Errorf("Expected efficiency 15/20, got %+v", eff)
	}
	none, err := svc.DefaultEfficiencyFor(ctx, "char-cat-001", 999)
	if err != nil {
		t.Fatalf("DefaultEfficiencyFor unowned failed: %v", err)
	}
	if none != nil {
		t.Errorf("Expected nil for unowned recipe, got %+v", none)
	}
	if eff, _ := svc.DefaultEfficiencyFor(ctx, "", 50); eff != nil {
		t.Errorf("Expected nil for empty character, got %+v", eff)
	}
}

func TestImportWorkbook(t *testing.T) {
	db, svc := setupCatalogTest(t)
	_ = db
	ctx := context.Background()

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "物品")
	f.SetSheetRow("物品", "A1", &[]interface{}{"类型ID", "名称", "分组", "体积"})
	f.SetSheetRow("物品", "A2", &[]interface{}{34, "三钛合金", "矿物", 0.01})
	f.SetSheetRow("物品", "A3", &[]interface{}{601, "小型护盾", "装备", 5})
	f.SetSheetRow("物品", "A4", &[]interface{}{"", "缺ID"})

	f.NewSheet("配方")
	f.SetSheetRow("配方", "A1", &[]interface{}{"配方ID", "名称", "产物类型ID", "每轮产出", "单轮耗时(秒)"})
	f.SetSheetRow("配方", "A2", &[]interface{}{50, "小型护盾 配方", 601, 2, 600})

	f.NewSheet("配方材料")
	f.SetSheetRow("配方材料", "A1", &[]interface{}{"配方ID", "材料类型ID", "每轮数量"})
	f.SetSheetRow("配方材料", "A2", &[]interface{}{50, 34, 120})
	f.SetSheetRow("配方材料", "A3", &[]interface{}{99, 34, 10}) // unknown recipe

	result, err := svc.ImportWorkbook(ctx, f)
	if err != nil {
		t.Fatalf("ImportWorkbook failed: %v", err)
	}
	if result.Types != 2 {
		t.Errorf("Expected 2 types imported, got %d", result.Types)
	}
	if result.Recipes != 1 {
		t.Errorf("Expected 1 recipe imported, got %d", result.Recipes)
	}
	if result.Materials != 1 {
		t.Errorf("Expected 1 material imported, got %d", result.Materials)
	}
	if result.Failed != 2 {
		t.Errorf("Expected 2 failed rows, got %d", result.Failed)
	}

	recipe, err := svc.GetRecipe(ctx, 50)
	if err != nil {
		t.Fatalf("GetRecipe failed: %v", err)
	}
	if recipe.ProductTypeID != 601 || recipe.ProductQuantity != 2 || recipe.SecondsPerRun != 600 {
		t.Errorf("Unexpected recipe fields: %+v", recipe)
	}
	if len(recipe.Materials) != 1 || recipe.Materials[0].TypeID != 34 || recipe.Materials[0].Quantity != 120 {
		t.Errorf("Unexpected recipe materials: %+v", recipe.Materials)
	}

	// Re-import replaces instead of duplicating.
	if _, err := svc.ImportWorkbook(ctx, f); err != nil {
		t.Fatalf("Second ImportWorkbook failed: %v", err)
	}
	recipe, _ = svc.GetRecipe(ctx, 50)
	if len(recipe.Materials) != 1 {
		t.Errorf("Expected materials replaced on re-import, got %d rows", len(recipe.Materials))
	}
}

func TestImportTypesCSVDecodesGBK(t *testing.T) {
	_, svc := setupCatalogTest(t)
	ctx := context.Background()

	csvText := "类型ID,名称,分组,体积\n34,三钛合金,矿物,0.01\n35,类晶体胶矿,矿物,0.02\nbad,行\n"
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, simplifiedchinese.GBK.NewEncoder())
	if _, err := w.Write([]byte(csvText)); err != nil {
		t.Fatalf("Failed to encode test CSV: %v", err)
	}
	w.Close()

	result, err := svc.ImportTypesCSV(ctx, &buf)
	if err != nil {
		t.Fatalf("ImportTypesCSV failed: %v", err)
	}
	if result.Types != 2 {
		t.Errorf("Expected 2 types imported, got %d", result.Types)
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failed row, got %d", result.Failed)
	}

	typ, err := svc.GetType(ctx, 34)
	if err != nil {
		t.Fatalf("GetType failed: %v", err)
	}
	if typ.Name != "三钛合金" {
		t.Errorf("Expected decoded name 三钛合金, got %q", typ.Name)
	}
	if typ.GroupName != "矿物" || typ.Volume != 0.01 {
		t.Errorf("Unexpected type fields: %+v", typ)
	}
}

func TestGenerateTemplate(t *testing.T) {
	_, svc := setupCatalogTest(t)

	f, err := svc.GenerateTemplate()
	if err != nil {
		t.Fatalf("GenerateTemplate failed: %v", err)
	}
	sheets := f.GetSheetList()
	expected := map[string]bool{"物品": false, "配方": false, "配方材料": false}
	for _, s := range sheets {
		if _, ok := expected[s]; ok {
			expected[s] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("Expected sheet %q in template", name)
		}
	}

	head, err := f.GetCellValue("物品", "A1")
	if err != nil {
		t.Fatalf("GetCellValue failed: %v", err)
	}
	if head != "类型ID" {
		t.Errorf("Expected header 类型ID, got %q", head)
	}

	// Round-trip: the template itself must be importable.
	result, err := svc.ImportWorkbook(context.Background(), f)
	if err != nil {
		t.Fatalf("ImportWorkbook on template failed: %v", err)
	}
	if result.Types != 1 || result.Recipes != 1 || result.Materials != 1 {
		t.Errorf("Expected example rows to import, got %+v", result)
	}
}
