package handler

import (
	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
)

// IntegrationHandler connects the booking calendar to an admin's Google account.
type IntegrationHandler struct {
	calendarService *service.CalendarService
}

func NewIntegrationHandler(calendarService *service.CalendarService) *IntegrationHandler {
	return &IntegrationHandler{calendarService: calendarService}
}

// GET /admin/integrations/google/login
// Returns the consent URL instead of redirecting: the caller authenticates
// with a bearer header a browser redirect would not carry.
func (h *IntegrationHandler) GoogleLogin(c *gin.Context) {
	url, err := h.calendarService.LoginURL(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"auth_url": url})
}

// GET /integrations/google/callback
func (h *IntegrationHandler) GoogleCallback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		BadRequest(c, 40001, "google authorization failed: "+e)
		return
	}
	if err := h.calendarService.Callback(c.Request.Context(), c.Query("state"), c.Query("code")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"connected": true})
}

// GET /admin/integrations/google/status
func (h *IntegrationHandler) GoogleStatus(c *gin.Context) {
	st, err := h.calendarService.Status(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, st)
}
