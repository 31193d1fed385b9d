package handler

import (
	"time"

	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	projectService *service.ProjectService
}

func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req struct {
		Name        string              `json:"name" binding:"required,max=255"`
		Description string              `json:"description" binding:"max=5000"`
		Status      model.ProjectStatus `json:"status"`
		StartDate   *time.Time          `json:"start_date"`
		EndDate     *time.Time          `json:"end_date"`
		UserIDs     []uint              `json:"user_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), middleware.GetActor(c), service.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		UserIDs:     req.UserIDs,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, project)
}

// GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	pg, page, pageSize := pageOf(c)
	projects, total, err := h.projectService.List(c.Request.Context(), middleware.GetActor(c), service.ProjectFilter{
		Keyword: c.Query("keyword"),
		Status:  model.ProjectStatus(c.Query("status")),
		Page:    pg,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, projects, total, page, pageSize)
}

// GET /projects/:id
func (h *ProjectHandler) GetDetail(c *gin.Context) {
	project, err := h.projectService.Get(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project)
}

// PUT /projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var req struct {
		Name        *string              `json:"name" binding:"omitempty,max=255"`
		Description *string              `json:"description" binding:"omitempty,max=5000"`
		Status      *model.ProjectStatus `json:"status"`
		StartDate   *time.Time           `json:"start_date"`
		EndDate     *time.Time           `json:"end_date"`
		UserIDs     *[]uint              `json:"user_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}

	project, err := h.projectService.Update(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), service.ProjectUpdate{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		UserIDs:     req.UserIDs,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project)
}

// DELETE /projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.projectService.Delete(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id"))); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /projects/:id/members
func (h *ProjectHandler) AddMembers(c *gin.Context) {
	var req struct {
		UserIDs []uint `json:"user_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}

	added, skipped, err := h.projectService.AddMembers(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), req.UserIDs)
	if err != nil {
		Fail(c, err)
		return
	}
	if added == nil {
		added = []model.UserBrief{}
	}
	if skipped == nil {
		skipped = []uint{}
	}
	Success(c, gin.H{
		"added":   added,
		"skipped": skipped,
	})
}

// DELETE /projects/:id/members/:user_id
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	err := h.projectService.RemoveMember(c.Request.Context(), middleware.GetActor(c),
		parseID(c.Param("id")), parseID(c.Param("user_id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
