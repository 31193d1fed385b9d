package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinkportal/backend/internal/model"
)

func TestDashboardStatsByRole(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := seedUser(t, db, model.RoleAdmin)
	client := seedUser(t, db, model.RoleClient)
	seedProject(t, db, client)
	seedProject(t, db)

	bookings := NewBookingService(db, nil, nil, 0)
	_, err := bookings.Reserve(ctx, client, BookingInput{SlotID: seedSlot(t, db, tomorrowAt(9), true).ID, Title: "A"})
	require.NoError(t, err)
	seedSlot(t, db, tomorrowAt(10), true)

	svc := NewDashboardService(db)
	st, err := svc.Stats(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Projects)
	assert.Equal(t, int64(1), st.ActiveProjects)
	assert.Equal(t, int64(1), st.UpcomingBookings)
	assert.Equal(t, int64(1), st.AvailableSlots)
	assert.Zero(t, st.Users)

	st, err = svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Projects)
	assert.Equal(t, int64(2), st.Users)
}

func TestOperationLogsAdminOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	admin := seedUser(t, db, model.RoleAdmin)
	client := seedUser(t, db, model.RoleClient)

	bookings := NewBookingService(db, nil, nil, 0)
	_, err := bookings.CreateSlot(ctx, admin, SlotInput{StartTime: tomorrowAt(9), EndTime: tomorrowAt(10)})
	require.NoError(t, err)
	_, err = bookings.CreateSlot(ctx, admin, SlotInput{StartTime: tomorrowAt(11), EndTime: tomorrowAt(12)})
	require.NoError(t, err)

	svc := NewDashboardService(db)
	_, _, err = svc.OperationLogs(ctx, client, OperationLogFilter{})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	list, total, err := svc.OperationLogs(ctx, admin, OperationLogFilter{Action: model.ActionSlotCreate, UserID: &admin.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, model.ActionSlotCreate, list[0].Action)
	assert.Greater(t, list[0].ID, list[1].ID)
}
