package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbpkg "github.com/blinkportal/backend/internal/db"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/notify"
	"github.com/blinkportal/backend/internal/policy"
	"github.com/blinkportal/backend/pkg/gcalendar"
	"github.com/blinkportal/backend/pkg/sharepoint"
)

// newTestDB opens a migrated SQLite database in a temp dir. One connection
// serializes transactions the way row locks do on a server database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "portal.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, dbpkg.Migrate(db))
	return db
}

var userSeq int

func seedUser(t *testing.T, db *gorm.DB, role model.Role) policy.Actor {
	t.Helper()
	userSeq++
	u := &model.User{
		Email:          fmt.Sprintf("user%d@example.com", userSeq),
		HashedPassword: "x",
		FullName:       fmt.Sprintf("User %d", userSeq),
		Role:           role,
		IsActive:       true,
	}
	require.NoError(t, db.Create(u).Error)
	return policy.ActorOf(u)
}

func seedProject(t *testing.T, db *gorm.DB, members ...policy.Actor) *model.Project {
	t.Helper()
	p := &model.Project{Name: "Website relaunch", Status: model.ProjectActive}
	require.NoError(t, db.Create(p).Error)
	for _, m := range members {
		require.NoError(t, db.Create(&model.ProjectMember{ProjectID: p.ID, UserID: m.ID}).Error)
	}
	return p
}

func seedSlot(t *testing.T, db *gorm.DB, start time.Time, available bool) *model.AvailabilitySlot {
	t.Helper()
	s := &model.AvailabilitySlot{StartTime: start, EndTime: start.Add(time.Hour), IsAvailable: available}
	require.NoError(t, db.Create(s).Error)
	return s
}

func tomorrowAt(hour int) time.Time {
	d := time.Now().UTC().Add(24 * time.Hour)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

type fakeCalendar struct {
	mu        sync.Mutex
	createErr error
	deleteErr error
	created   []gcalendar.EventInput
	deleted   []string
	nextID    int
}

func (c *fakeCalendar) CreateEvent(_ context.Context, in gcalendar.EventInput) (*gcalendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, in)
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.nextID++
	return &gcalendar.Event{
		ID:          fmt.Sprintf("evt-%d", c.nextID),
		MeetingLink: "https://meet.google.com/test",
		Start:       in.Start,
		End:         in.End,
	}, nil
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, id)
	return c.deleteErr
}

type fakeDocs struct {
	mu        sync.Mutex
	uploadErr error
	urlErr    error
	deleteErr error
	uploads   map[string]string
	deleted   []string
	nextID    int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{uploads: map[string]string{}}
}

func (d *fakeDocs) Upload(_ context.Context, content io.Reader, filename, folder string) (*sharepoint.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploadErr != nil {
		return nil, d.uploadErr
	}
	b, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	d.nextID++
	id := fmt.Sprintf("item-%d", d.nextID)
	d.uploads[id] = folder + "/" + filename
	return &sharepoint.Item{ID: id, Name: filename, Size: int64(len(b)), WebURL: "https://sp/" + id}, nil
}

func (d *fakeDocs) DownloadURL(_ context.Context, id string) (string, error) {
	if d.urlErr != nil {
		return "", d.urlErr
	}
	return "https://download/" + id, nil
}

func (d *fakeDocs) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, id)
	return d.deleteErr
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []notify.BookingConfirmedEvent
	cancelled []notify.BookingCancelledEvent
	created   []notify.RequestCreatedEvent
	messages  []notify.RequestMessageAddedEvent
}

func (n *recordingNotifier) NotifyBookingConfirmed(_ context.Context, e notify.BookingConfirmedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, e)
	return nil
}

func (n *recordingNotifier) NotifyBookingCancelled(_ context.Context, e notify.BookingCancelledEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, e)
	return nil
}

func (n *recordingNotifier) NotifyRequestCreated(_ context.Context, e notify.RequestCreatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, e)
	return nil
}

func (n *recordingNotifier) NotifyRequestMessageAdded(_ context.Context, e notify.RequestMessageAddedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, e)
	return errors.New("broker down")
}

// requireSlotInvariant checks that every slot is held exactly when one booking references it.
func requireSlotInvariant(t *testing.T, db *gorm.DB) {
	t.Helper()
	var slots []model.AvailabilitySlot
	require.NoError(t, db.Find(&slots).Error)
	for _, s := range slots {
		var n int64
		require.NoError(t, db.Model(&model.Booking{}).Where("slot_id = ?", s.ID).Count(&n).Error)
		if s.IsAvailable {
			require.Zero(t, n, "available slot %d is referenced by %d bookings", s.ID, n)
		} else {
			require.Equal(t, int64(1), n, "held slot %d is referenced by %d bookings", s.ID, n)
		}
	}
}

func count(t *testing.T, db *gorm.DB, m interface{}, where string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(m)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
