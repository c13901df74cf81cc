package handler

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/bitfantasy/forge/internal/industry/service"
	"github.com/bitfantasy/forge/internal/industry/testutil"
	"github.com/bitfantasy/forge/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"gorm.io/gorm"
)

func setupCatalogHandlerTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := service.NewCatalogService(repos.Catalog, repos.Character)
	h := NewCatalogHandler(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	catalog := api.Group("/catalog")
	{
		catalog.GET("/types", h.ListTypes)
		catalog.GET("/types/:typeId", h.GetType)
		catalog.GET("/recipes", h.ListRecipes)
		catalog.GET("/recipes/:recipeId", h.GetRecipe)
		catalog.GET("/template", h.DownloadTemplate)

		admin := catalog.Group("")
		admin.Use(middleware.RequireRole("forge_admin"))
		{
			admin.POST("/import", h.ImportWorkbook)
			admin.POST("/types/import", h.ImportTypesCSV)
		}
	}
	return db, router
}

func uploadFile(t *testing.T, router *gin.Engine, token, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.Copy(part, bytes.NewReader(content))
	writer.Close()

	req, _ := http.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCatalogBrowseOverHTTP(t *testing.T) {
	db, router := setupCatalogHandlerTest(t)
	token := testutil.DefaultTestToken()

	testutil.SeedType(t, db, 34, "三钛合金")
	testutil.SeedType(t, db, 35, "类晶体")
	testutil.SeedType(t, db, 601, "小型护盾")
	testutil.SeedRecipe(t, db, 50, "小型护盾 配方", 601, 2, map[int64]float64{34: 120, 35: 80})

	// Full type listing with pagination envelope.
	w := testutil.DoRequest(router, "GET", "/api/v1/catalog/types", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	items := data["items"].([]interface{})
	if len(items) != 3 {
		t.Fatalf("Expected 3 types, got %d", len(items))
	}
	pagination := data["pagination"].(map[string]interface{})
	if pagination["total"].(float64) != 3 {
		t.Fatalf("Expected total 3, got %v", pagination["total"])
	}

	// Keyword search narrows by name.
	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/types?keyword=三钛", nil, token)
	resp = testutil.ParseResponse(w)
	data = resp["data"].(map[string]interface{})
	items = data["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 match for keyword, got %d", len(items))
	}
	if items[0].(map[string]interface{})["name"] != "三钛合金" {
		t.Fatalf("Unexpected keyword match: %v", items[0])
	}

	// Single type lookup.
	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/types/34", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	if resp["data"].(map[string]interface{})["name"] != "三钛合金" {
		t.Fatalf("Unexpected type payload: %v", resp["data"])
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/types/9999", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/types/abc", nil, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad id, got %d: %s", w.Code, w.Body.String())
	}

	// Recipe lookup carries its material rows.
	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/recipes/50", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	recipe := resp["data"].(map[string]interface{})
	if recipe["product_type_id"].(float64) != 601 {
		t.Fatalf("Expected product type 601, got %v", recipe["product_type_id"])
	}
	materials := recipe["materials"].([]interface{})
	if len(materials) != 2 {
		t.Fatalf("Expected 2 material rows, got %d", len(materials))
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/recipes/9999", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestImportWorkbookOverHTTP(t *testing.T) {
	_, router := setupCatalogHandlerTest(t)
	token := testutil.DefaultTestToken()

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", "物品")
	f.SetSheetRow("物品", "A1", &[]interface{}{"类型ID", "名称", "分组", "体积"})
	f.SetSheetRow("物品", "A2", &[]interface{}{34, "三钛合金", "矿物", 0.01})
	f.SetSheetRow("物品", "A3", &[]interface{}{601, "小型护盾", "装备", 5})
	f.NewSheet("配方")
	f.SetSheetRow("配方", "A1", &[]interface{}{"配方ID", "名称", "产物类型ID", "每轮产出", "单轮耗时(秒)"})
	f.SetSheetRow("配方", "A2", &[]interface{}{50, "小型护盾 配方", 601, 2, 600})
	f.NewSheet("配方材料")
	f.SetSheetRow("配方材料", "A1", &[]interface{}{"配方ID", "材料类型ID", "每轮数量"})
	f.SetSheetRow("配方材料", "A2", &[]interface{}{50, 34, 120})
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	w := uploadFile(t, router, token, "/api/v1/catalog/import", "catalog.xlsx", buf.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["types"].(float64) != 2 {
		t.Fatalf("Expected 2 types imported, got %v", data["types"])
	}
	if data["recipes"].(float64) != 1 {
		t.Fatalf("Expected 1 recipe imported, got %v", data["recipes"])
	}
	if data["materials"].(float64) != 1 {
		t.Fatalf("Expected 1 material imported, got %v", data["materials"])
	}

	// The imported recipe is immediately queryable.
	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/recipes/50", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Garbage bytes are rejected before reaching the service.
	w = uploadFile(t, router, token, "/api/v1/catalog/import", "broken.xlsx", []byte("not an excel file"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for broken file, got %d: %s", w.Code, w.Body.String())
	}
}

func TestImportTypesCSVOverHTTP(t *testing.T) {
	_, router := setupCatalogHandlerTest(t)
	token := testutil.DefaultTestToken()

	// Catalog dumps arrive GBK-encoded.
	var gbk bytes.Buffer
	enc := transform.NewWriter(&gbk, simplifiedchinese.GBK.NewEncoder())
	io.WriteString(enc, "类型ID,名称,分组,体积\n")
	io.WriteString(enc, "34,三钛合金,矿物,0.01\n")
	io.WriteString(enc, "35,类晶体,矿物,0.01\n")
	enc.Close()

	w := uploadFile(t, router, token, "/api/v1/catalog/types/import", "types.csv", gbk.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["types"].(float64) != 2 {
		t.Fatalf("Expected 2 types imported, got %v", data["types"])
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/catalog/types/34", nil, token)
	resp = testutil.ParseResponse(w)
	got := resp["data"].(map[string]interface{})
	if got["name"] != "三钛合金" {
		t.Fatalf("Expected GBK name decoded, got %v", got["name"])
	}
	if got["group_name"] != "矿物" {
		t.Fatalf("Expected group decoded, got %v", got["group_name"])
	}
}

func TestCatalogImportRequiresAdmin(t *testing.T) {
	_, router := setupCatalogHandlerTest(t)
	viewer := testutil.GenerateTestToken("user-viewer", "Viewer", "viewer@test.com", []string{"viewer"})

	w := uploadFile(t, router, viewer, "/api/v1/catalog/import", "catalog.xlsx", []byte("ignored"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for non-admin, got %d: %s", w.Code, w.Body.String())
	}

	// Read endpoints stay open to any authenticated user.
	w2 := testutil.DoRequest(router, "GET", "/api/v1/catalog/types", nil, viewer)
	if w2.Code != http.StatusOK {
		t.Fatalf("Expected 200 for viewer listing, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestDownloadTemplateOverHTTP(t *testing.T) {
	_, router := setupCatalogHandlerTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "GET", "/api/v1/catalog/template", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("Expected xlsx content type, got %s", ct)
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("template is not a valid workbook: %v", err)
	}
	defer f.Close()
	for _, sheet := range []string{"物品", "配方", "配方材料"} {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			t.Errorf("Expected sheet %s in template", sheet)
		}
	}
}
