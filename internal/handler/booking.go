package handler

import (
	"time"

	"github.com/blinkportal/backend/internal/middleware"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/service"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookingService *service.BookingService
}

func NewBookingHandler(bookingService *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// POST /bookings/slots
func (h *BookingHandler) CreateSlot(c *gin.Context) {
	var req struct {
		StartTime time.Time `json:"start_time" binding:"required"`
		EndTime   time.Time `json:"end_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	slot, err := h.bookingService.CreateSlot(c.Request.Context(), middleware.GetActor(c), service.SlotInput{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, slot)
}

// GET /bookings/slots?available_only=true
func (h *BookingHandler) ListSlots(c *gin.Context) {
	slots, err := h.bookingService.ListSlots(c.Request.Context(), middleware.GetActor(c), service.SlotFilter{
		AvailableOnly: queryBool(c, "available_only", true),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	if slots == nil {
		slots = []model.AvailabilitySlot{}
	}
	Success(c, slots)
}

// DELETE /bookings/slots/:id
func (h *BookingHandler) DeleteSlot(c *gin.Context) {
	if err := h.bookingService.DeleteSlot(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id"))); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// POST /bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var req struct {
		SlotID      uint   `json:"slot_id" binding:"required"`
		Title       string `json:"title" binding:"required,max=255"`
		Description string `json:"description" binding:"max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	booking, err := h.bookingService.Reserve(c.Request.Context(), middleware.GetActor(c), service.BookingInput{
		SlotID:      req.SlotID,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, booking)
}

// GET /bookings
func (h *BookingHandler) List(c *gin.Context) {
	pg, page, pageSize := pageOf(c)
	list, total, err := h.bookingService.List(c.Request.Context(), middleware.GetActor(c), service.BookingFilter{
		Status:   model.BookingStatus(c.Query("status")),
		Upcoming: queryBool(c, "upcoming", false),
		Page:     pg,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	SuccessPaged(c, list, total, page, pageSize)
}

// GET /bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.bookingService.Get(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, booking)
}

// PUT /bookings/:id
func (h *BookingHandler) Update(c *gin.Context) {
	var req struct {
		Title       *string              `json:"title" binding:"omitempty,max=255"`
		Description *string              `json:"description"`
		Status      *model.BookingStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, 40001, "invalid parameters: "+err.Error())
		return
	}
	booking, err := h.bookingService.Update(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id")), service.BookingUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, booking)
}

// DELETE /bookings/:id cancels the booking and releases its slot.
func (h *BookingHandler) Cancel(c *gin.Context) {
	if err := h.bookingService.Cancel(c.Request.Context(), middleware.GetActor(c), parseID(c.Param("id"))); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
