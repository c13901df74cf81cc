package handler

import (
	"github.com/bitfantasy/forge/internal/industry/service"
	"github.com/gin-gonic/gin"
)

type CharacterHandler struct {
	svc *service.CharacterService
}

func NewCharacterHandler(svc *service.CharacterService) *CharacterHandler {
	return &CharacterHandler{svc: svc}
}

// CreateCharacter POST /characters
func (h *CharacterHandler) CreateCharacter(c *gin.Context) {
	var req service.CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	ch, err := h.svc.CreateCharacter(c.Request.Context(), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Created(c, ch)
}

// ListCharacters GET /characters
func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	items, err := h.svc.ListCharacters(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}

// GetCharacter GET /characters/:id
func (h *CharacterHandler) GetCharacter(c *gin.Context) {
	ch, err := h.svc.GetCharacter(c.Request.Context(), c.Param("id"))
	if err != nil {
		NotFound(c, err.Error())
		return
	}
	Success(c, ch)
}

// UpdateCharacter PUT /characters/:id
func (h *CharacterHandler) UpdateCharacter(c *gin.Context) {
	var req service.UpdateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	ch, err := h.svc.UpdateCharacter(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, ch)
}

// SetOwnedRecipe PUT /characters/:id/recipes
func (h *CharacterHandler) SetOwnedRecipe(c *gin.Context) {
	var req service.SetOwnedRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	owned, err := h.svc.SetOwnedRecipe(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, owned)
}

// ListOwnedRecipes GET /characters/:id/recipes
func (h *CharacterHandler) ListOwnedRecipes(c *gin.Context) {
	items, err := h.svc.ListOwnedRecipes(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": items})
}
