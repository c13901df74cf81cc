package handler

import (
	"strconv"
	"time"

	"github.com/bitfantasy/forge/internal/industry/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

type CatalogHandler struct {
	svc *service.CatalogService
}

func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// ListTypes GET /catalog/types
func (h *CatalogHandler) ListTypes(c *gin.Context) {
	keyword := c.Query("keyword")
	page, pageSize := GetPagination(c)

	types, total, err := h.svc.ListTypes(c.Request.Context(), keyword, (page-1)*pageSize, pageSize)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: types,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// GetType GET /catalog/types/:typeId
func (h *CatalogHandler) GetType(c *gin.Context) {
	typeID, err := strconv.ParseInt(c.Param("typeId"), 10, 64)
	if err != nil {
		BadRequest(c, "无效的类型ID")
		return
	}
	t, err := h.svc.GetType(c.Request.Context(), typeID)
	if err != nil {
		NotFound(c, "物品类型不存在")
		return
	}
	Success(c, t)
}

// ListRecipes GET /catalog/recipes
func (h *CatalogHandler) ListRecipes(c *gin.Context) {
	keyword := c.Query("keyword")
	page, pageSize := GetPagination(c)

	recipes, total, err := h.svc.ListRecipes(c.Request.Context(), keyword, (page-1)*pageSize, pageSize)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: recipes,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// GetRecipe GET /catalog/recipes/:recipeId
func (h *CatalogHandler) GetRecipe(c *gin.Context) {
	recipeID, err := strconv.ParseInt(c.Param("recipeId"), 10, 64)
	if err != nil {
		BadRequest(c, "无效的配方ID")
		return
	}
	recipe, err := h.svc.GetRecipe(c.Request.Context(), recipeID)
	if err != nil {
		NotFound(c, "配方不存在")
		return
	}
	Success(c, recipe)
}

// ImportWorkbook POST /catalog/import
func (h *CatalogHandler) ImportWorkbook(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传Excel文件")
		return
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		BadRequest(c, "无法解析Excel文件: "+err.Error())
		return
	}
	defer f.Close()

	result, err := h.svc.ImportWorkbook(c.Request.Context(), f)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, result)
}

// ImportTypesCSV POST /catalog/types/import
func (h *CatalogHandler) ImportTypesCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传CSV文件")
		return
	}
	defer file.Close()

	result, err := h.svc.ImportTypesCSV(c.Request.Context(), file)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, result)
}

// DownloadTemplate GET /catalog/template
func (h *CatalogHandler) DownloadTemplate(c *gin.Context) {
	f, err := h.svc.GenerateTemplate()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	defer f.Close()

	filename := "目录导入模板_" + time.Now().Format("20060102") + ".xlsx"
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
