package handler

import (
	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	requestService *service.RequestService
}

func NewRequestHandler(requestService *service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// POST /requests
func (h *RequestHandler) Create(c *gin.Context) {
	var req struct {
		ProjectID   uint              `json:"project_id" binding:"required"`
		Title       string            `json:"title" binding:"required,max=255"`
		Description string            `json:"description" binding:"required"`
		Type        model.RequestType `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	r, err := h.requestService.Create(c.Request.Context(), middleware.GetActor(c), service.RequestInput{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, r)
}

// GET /requests
func (h *RequestHandler) List(c *gin.Context) {
	pg, page, pageSize := pageOf(c)
	list, total, err := h.requestService.List(c.Request.Context(), middleware.GetActor(c), service.RequestFilter{
		ProjectID: parseID(c.Query("project_id")),
		Status:    model.RequestStatus(c.Query("status")),
		Type:      model.RequestType(c.Query("type")),
		Page:      pg,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, list, total, page, pageSize)
}

// GET /requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	r, err := h.requestService.Get(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, r)
}

// PUT /requests/:id
// Clients may edit their own request; status changes from clients are ignored.
func (h *RequestHandler) Update(c *gin.Context) {
	var req struct {
		Title       *string              `json:"title" binding:"omitempty,max=255"`
		Description *string              `json:"description"`
		Type        *model.RequestType   `json:"type"`
		Status      *model.RequestStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	r, err := h.requestService.Update(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), service.RequestUpdate{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Status:      req.Status,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, r)
}

// DELETE /requests/:id
func (h *RequestHandler) Delete(c *gin.Context) {
	if err := h.requestService.Delete(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id"))); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /requests/:id/messages
func (h *RequestHandler) AddMessage(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	msg, err := h.requestService.AddMessage(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), req.Message)
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, msg)
}

// GET /requests/:id/messages
func (h *RequestHandler) ListMessages(c *gin.Context) {
	msgs, err := h.requestService.ListMessages(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, msgs)
}
