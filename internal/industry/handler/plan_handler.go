package handler

import (
	"strconv"

	"github.com/bitfantasy/forge/internal/industry/service"
	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	svc    *service.PlanService
	export *service.ExportService
}

func NewPlanHandler(svc *service.PlanService, export *service.ExportService) *PlanHandler {
	return &PlanHandler{svc: svc, export: export}
}

// CreatePlan POST /plans
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req service.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	plan, err := h.svc.CreatePlan(c.Request.Context(), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	Created(c, plan)
}

// ListPlans GET /plans
func (h *PlanHandler) ListPlans(c *gin.Context) {
	characterID := c.Query("character_id")
	status := c.Query("status")
	page, pageSize := GetPagination(c)

	plans, total, err := h.svc.ListPlans(c.Request.Context(), characterID, status, page, pageSize)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: plans,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// GetPlan GET /plans/:id
func (h *PlanHandler) GetPlan(c *gin.Context) {
	plan, err := h.svc.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		NotFound(c, err.Error())
		return
	}
	Success(c, plan)
}

// UpdatePlan PUT /plans/:id
func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	var req service.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	plan, err := h.svc.UpdatePlan(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, plan)
}

// DeletePlan DELETE /plans/:id
func (h *PlanHandler) DeletePlan(c *gin.Context) {
	if err := h.svc.DeletePlan(c.Request.Context(), c.Param("id")); err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, gin.H{"deleted": true})
}

// GetSummary GET /plans/:id/summary
func (h *PlanHandler) GetSummary(c *gin.Context) {
	summary, err := h.svc.GetSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		NotFound(c, err.Error())
		return
	}
	Success(c, summary)
}

// Recalculate POST /plans/:id/recalculate?refresh_prices=true
func (h *PlanHandler) Recalculate(c *gin.Context) {
	refresh := c.Query("refresh_prices") == "true"

	if err := h.svc.Recalculate(c.Request.Context(), c.Param("id"), refresh); err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, gin.H{"recalculated": true, "refresh_prices": refresh})
}

// AddEntry POST /plans/:id/entries
func (h *PlanHandler) AddEntry(c *gin.Context) {
	var req service.AddEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	entry, err := h.svc.AddEntry(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Created(c, entry)
}

// ListEntries GET /plans/:id/entries
func (h *PlanHandler) ListEntries(c *gin.Context) {
	entries, err := h.svc.ListEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": entries})
}

// UpdateEntry PUT /plans/:id/entries/:entryId
func (h *PlanHandler) UpdateEntry(c *gin.Context) {
	var req service.UpdateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	entry, err := h.svc.UpdateEntry(c.Request.Context(), c.Param("id"), c.Param("entryId"), &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, entry)
}

// RemoveEntry DELETE /plans/:id/entries/:entryId
func (h *PlanHandler) RemoveEntry(c *gin.Context) {
	if err := h.svc.RemoveEntry(c.Request.Context(), c.Param("id"), c.Param("entryId")); err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, gin.H{"deleted": true})
}

// BulkUpdateEntries POST /plans/:id/entries/batch
func (h *PlanHandler) BulkUpdateEntries(c *gin.Context) {
	var req service.BulkUpdateEntriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.svc.BulkUpdateEntries(c.Request.Context(), c.Param("id"), &req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, gin.H{"updated": len(req.Entries)})
}

// MarkBuilt POST /plans/:id/entries/:entryId/built
func (h *PlanHandler) MarkBuilt(c *gin.Context) {
	var req struct {
		BuiltRuns *int `json:"built_runs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请填写构建轮次")
		return
	}

	if err := h.svc.MarkBuilt(c.Request.Context(), c.Param("entryId"), *req.BuiltRuns); err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, gin.H{"built_runs": *req.BuiltRuns})
}

// ListMaterials GET /plans/:id/materials
func (h *PlanHandler) ListMaterials(c *gin.Context) {
	lines, err := h.svc.ListMaterials(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": lines})
}

// ListProducts GET /plans/:id/products
func (h *PlanHandler) ListProducts(c *gin.Context) {
	lines, err := h.svc.ListProducts(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": lines})
}

// UpdateAcquisition PUT /plans/:id/materials/:typeId/acquisition
func (h *PlanHandler) UpdateAcquisition(c *gin.Context) {
	typeID, err := strconv.ParseInt(c.Param("typeId"), 10, 64)
	if err != nil {
		BadRequest(c, "无效的类型ID")
		return
	}
	var req service.UpdateAcquisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	line, err := h.svc.UpdateAcquisition(c.Request.Context(), c.Param("id"), typeID, &req)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	Success(c, line)
}

// ExportPlan GET /plans/:id/export?upload=true
func (h *PlanHandler) ExportPlan(c *gin.Context) {
	planID := c.Param("id")

	if c.Query("upload") == "true" {
		url, err := h.export.Export(c.Request.Context(), planID)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		Success(c, gin.H{"url": url})
		return
	}

	f, filename, err := h.export.BuildWorkbook(c.Request.Context(), planID)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
