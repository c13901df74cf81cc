package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bitfantasy/forge/internal/industry/entity"
	"github.com/bitfantasy/forge/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const JWTSecret = "forge-jwt-secret-key-2025"

// SetupTestDB creates an isolated in-memory database per test.
// MaxOpenConns(1) keeps all gorm connections on the same memory store.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&entity.ItemType{},
		&entity.Recipe{},
		&entity.RecipeMaterial{},
		&entity.Character{},
		&entity.CharacterRecipe{},
		&entity.Plan{},
		&entity.PlanEntry{},
		&entity.MaterialLine{},
		&entity.ProductLine{},
	); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name, email string, roles []string) string {
	if roles == nil {
		roles = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"email": email,
		"roles": roles,
		"iss":   "forge",
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
		"jti":   fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a default admin test user
func DefaultTestToken() string {
	return GenerateTestToken(
		"test-user-001",
		"Test Admin",
		"admin@test.com",
		[]string{"forge_admin"},
	)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedType creates a catalog item type
func SeedType(t *testing.T, db *gorm.DB, id int64, name string) *entity.ItemType {
	t.Helper()
	typ := &entity.ItemType{ID: id, Name: name}
	if err := db.Create(typ).Error; err != nil {
		t.Fatalf("Failed to seed item type %d: %v", id, err)
	}
	return typ
}

// SeedRecipe creates a recipe with its per-run material requirements
func SeedRecipe(t *testing.T, db *gorm.DB, id int64, name string, productTypeID int64, productQty float64, materials map[int64]float64) *entity.Recipe {
	t.Helper()
	recipe := &entity.Recipe{
		ID:              id,
		Name:            name,
		ProductTypeID:   productTypeID,
		ProductQuantity: productQty,
	}
	if err := db.Create(recipe).Error; err != nil {
		t.Fatalf("Failed to seed recipe %d: %v", id, err)
	}
	for typeID, qty := range materials {
		m := &entity.RecipeMaterial{
			ID:       fmt.Sprintf("rm_%d_%d", id, typeID),
			RecipeID: id,
			TypeID:   typeID,
			Quantity: qty,
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("Failed to seed recipe material %d/%d: %v", id, typeID, err)
		}
	}
	return recipe
}

// SeedCharacter creates a test character
func SeedCharacter(t *testing.T, db *gorm.DB, id, name string) *entity.Character {
	t.Helper()
	ch := &entity.Character{
		ID:        id,
		Name:      name,
		Status:    "active",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(ch).Error; err != nil {
		t.Fatalf("Failed to seed character: %v", err)
	}
	return ch
}

// SeedOwnedRecipe registers a recipe as owned by a character with default efficiencies
func SeedOwnedRecipe(t *testing.T, db *gorm.DB, characterID string, recipeID int64, materialEff, timeEff float64) *entity.CharacterRecipe {
	t.Helper()
	cr := &entity.CharacterRecipe{
		ID:                 fmt.Sprintf("cr_%s_%d", characterID, recipeID),
		CharacterID:        characterID,
		RecipeID:           recipeID,
		MaterialEfficiency: materialEff,
		TimeEfficiency:     timeEff,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	if err := db.Create(cr).Error; err != nil {
		t.Fatalf("Failed to seed owned recipe: %v", err)
	}
	return cr
}

// SeedPlan creates a test plan
func SeedPlan(t *testing.T, db *gorm.DB, id, characterID, name string) *entity.Plan {
	t.Helper()
	plan := &entity.Plan{
		ID:          id,
		CharacterID: characterID,
		Name:        name,
		Status:      entity.PlanStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("Failed to seed plan: %v", err)
	}
	return plan
}
