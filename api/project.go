package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	"github.com/linlinbupt123-crypto/energy_share_service/request"
	"github.com/linlinbupt123-crypto/energy_share_service/service"
)

// ProjectHandler serves the cached ledger mirror.
type ProjectHandler struct {
	purchaseService *service.PurchaseService
}

func NewProjectHandler(ps *service.PurchaseService) *ProjectHandler {
	return &ProjectHandler{purchaseService: ps}
}

func projectIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("projectID"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Errorf("invalid project id %q", c.Param("projectID")))
		return 0, false
	}
	return id, true
}

func (h *ProjectHandler) List(c *gin.Context) {
	var req request.ListProjectsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.purchaseService.ListProjects(c.Request.Context(), entity.ProjectFilter{
		Status:      req.Status,
		ProjectType: req.Type,
		Location:    req.Location,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []*entity.Project{}
	}
	c.JSON(http.StatusOK, list)
}

// Get reads one project; ?refresh=true bypasses the TTL.
func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}
	p, err := h.purchaseService.GetProject(c.Request.Context(), id, c.Query("refresh") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateMetadata edits the off-chain fields only.
func (h *ProjectHandler) UpdateMetadata(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}
	var req request.UpdateProjectMetadataReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.purchaseService.Projects.UpdateMetadata(c.Request.Context(), id, entity.ProjectMetadata{
		Description:            req.Description,
		Images:                 req.Images,
		DetailedSpecifications: req.DetailedSpecifications,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) GetPosition(c *gin.Context) {
	id, ok := projectIDParam(c)
	if !ok {
		return
	}
	pos, err := h.purchaseService.GetPosition(c.Request.Context(), c.Param("address"), id, c.Query("refresh") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}
