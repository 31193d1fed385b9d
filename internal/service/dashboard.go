package service

import (
	"context"
	"time"

	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/policy"
	"gorm.io/gorm"
)

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardStats struct {
	Projects         int64 `json:"projects"`
	ActiveProjects   int64 `json:"active_projects"`
	UpcomingBookings int64 `json:"upcoming_bookings"`
	OpenRequests     int64 `json:"open_requests"`
	AvailableSlots   int64 `json:"available_slots"`
	Users            int64 `json:"users,omitempty"`
}

// Stats counts what the actor can see: everything for admins, their projects,
// bookings and requests for clients.
func (s *DashboardService) Stats(ctx context.Context, actor policy.Actor) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	nowUTC := time.Now().UTC()
	st := &DashboardStats{}

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&st.Projects, scoped(db.Model(&model.Project{}), db, actor, policy.Project)},
		{&st.ActiveProjects, scoped(db.Model(&model.Project{}), db, actor, policy.Project).
			Where("status = ?", model.ProjectActive)},
		{&st.UpcomingBookings, scoped(db.Model(&model.Booking{}), db, actor, policy.Booking).
			Where("start_time > ? AND status = ?", nowUTC, model.BookingConfirmed)},
		{&st.OpenRequests, scoped(db.Model(&model.Request{}), db, actor, policy.Request).
			Where("status IN ?", []model.RequestStatus{model.RequestOpen, model.RequestInProgress})},
		{&st.AvailableSlots, db.Model(&model.AvailabilitySlot{}).
			Where("start_time > ? AND is_available = ?", nowUTC, true)},
	}
	if actor.IsAdmin() {
		counts = append(counts, struct {
			dest  *int64
			query *gorm.DB
		}{&st.Users, db.Model(&model.User{})})
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return st, nil
}

type OperationLogFilter struct {
	UserID       *uint
	Action       string
	ResourceType string
	StartTime    *time.Time
	EndTime      *time.Time
	Page
}

func (s *DashboardService) OperationLogs(ctx context.Context, actor policy.Actor, f OperationLogFilter) ([]model.OperationLog, int64, error) {
	if !actor.IsAdmin() {
		return nil, 0, denied()
	}
	query := s.db.WithContext(ctx).Model(&model.OperationLog{})
	if f.UserID != nil {
		query = query.Where("user_id = ?", *f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if f.ResourceType != "" {
		query = query.Where("resource_type = ?", f.ResourceType)
	}
	if f.StartTime != nil {
		query = query.Where("created_at >= ?", f.StartTime)
	}
	if f.EndTime != nil {
		query = query.Where("created_at <= ?", f.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.OperationLog
	if err := f.Page.apply(query.Order("id DESC")).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}
