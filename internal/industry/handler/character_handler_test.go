package handler

import (
	"net/http"
	"testing"

	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/bitfantasy/forge/internal/industry/service"
	"github.com/bitfantasy/forge/internal/industry/testutil"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func setupCharacterHandlerTest(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := service.NewCharacterService(repos.Character, repos.Catalog)
	h := NewCharacterHandler(svc)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	characters := api.Group("/characters")
	{
		characters.POST("", h.CreateCharacter)
		characters.GET("", h.ListCharacters)
		characters.GET("/:id", h.GetCharacter)
		characters.PUT("/:id", h.UpdateCharacter)
		characters.PUT("/:id/recipes", h.SetOwnedRecipe)
		characters.GET("/:id/recipes", h.ListOwnedRecipes)
	}
	return db, router
}

func TestCharacterCRUDOverHTTP(t *testing.T) {
	_, router := setupCharacterHandlerTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/characters", map[string]interface{}{
		"name": "工业主力",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	charID := data["id"].(string)
	if data["status"] != "active" {
		t.Fatalf("Expected new character active, got %v", data["status"])
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/characters/"+charID, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "PUT", "/api/v1/characters/"+charID, map[string]interface{}{
		"name":   "工业副手",
		"status": "inactive",
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	data = resp["data"].(map[string]interface{})
	if data["name"] != "工业副手" || data["status"] != "inactive" {
		t.Fatalf("Update not applied: %v", data)
	}

	// Bad status value rejected.
	w = testutil.DoRequest(router, "PUT", "/api/v1/characters/"+charID, map[string]interface{}{
		"status": "retired",
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/characters", nil, token)
	resp = testutil.ParseResponse(w)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 character, got %d", len(items))
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/characters/no-such-id", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOwnedRecipesOverHTTP(t *testing.T) {
	db, router := setupCharacterHandlerTest(t)
	token := testutil.DefaultTestToken()

	testutil.SeedType(t, db, 601, "小型护盾")
	testutil.SeedRecipe(t, db, 50, "小型护盾 配方", 601, 2, map[int64]float64{34: 120})
	testutil.SeedCharacter(t, db, "char-owned-001", "测试角色")

	w := testutil.DoRequest(router, "PUT", "/api/v1/characters/char-owned-001/recipes", map[string]interface{}{
		"recipe_id":           50,
		"material_efficiency": 10,
		"time_efficiency":     20,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	if data["material_efficiency"].(float64) != 10 {
		t.Fatalf("Expected ME 10, got %v", data["material_efficiency"])
	}

	// Upsert: setting the same recipe again overwrites instead of duplicating.
	w = testutil.DoRequest(router, "PUT", "/api/v1/characters/char-owned-001/recipes", map[string]interface{}{
		"recipe_id":           50,
		"material_efficiency": 15,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/characters/char-owned-001/recipes", nil, token)
	resp = testutil.ParseResponse(w)
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 owned recipe, got %d", len(items))
	}
	owned := items[0].(map[string]interface{})
	if owned["material_efficiency"].(float64) != 15 {
		t.Fatalf("Expected ME overwritten to 15, got %v", owned["material_efficiency"])
	}
	if owned["time_efficiency"].(float64) != 0 {
		t.Fatalf("Expected TE reset to 0 on overwrite, got %v", owned["time_efficiency"])
	}

	// Unknown recipe rejected.
	w = testutil.DoRequest(router, "PUT", "/api/v1/characters/char-owned-001/recipes", map[string]interface{}{
		"recipe_id": 999,
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// Efficiency outside [0,100) rejected.
	w = testutil.DoRequest(router, "PUT", "/api/v1/characters/char-owned-001/recipes", map[string]interface{}{
		"recipe_id":           50,
		"material_efficiency": 100,
	}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
