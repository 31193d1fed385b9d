package handler

import (
	"time"

	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	dashboardService *service.DashboardService
}

func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// GET /dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	stats, err := h.dashboardService.Stats(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, stats)
}

// GET /admin/operation-logs
func (h *DashboardHandler) GetOperationLogs(c *gin.Context) {
	pg, page, pageSize := pageOf(c)
	f := service.OperationLogFilter{
		Action:       c.Query("action"),
		ResourceType: c.Query("resource_type"),
		Page:         pg,
	}
	if s := c.Query("user_id"); s != "" {
		v := parseID(s)
		f.UserID = &v
	}
	for key, dst := range map[string]**time.Time{"start_time": &f.StartTime, "end_time": &f.EndTime} {
		s := c.Query(key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			BadRequest(c, 40001, key+" must be RFC3339")
			return
		}
		*dst = &t
	}

	entries, total, err := h.dashboardService.OperationLogs(c.Request.Context(), middleware.GetActor(c), f)
	if err != nil {
		Fail(c, err)
		return
	}
	if entries == nil {
		entries = []model.OperationLog{}
	}
	SuccessPaged(c, entries, total, page, pageSize)
}
