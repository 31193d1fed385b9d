package service

import (
	"context"
	"fmt"
	"time"

	"github.com/blinkportal/backend/internal/logs"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/notify"
	"github.com/blinkportal/backend/internal/policy"
	"github.com/blinkportal/backend/pkg/gcalendar"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Calendar is the external calendar. *gcalendar.Client implements it.
type Calendar interface {
	CreateEvent(ctx context.Context, in gcalendar.EventInput) (*gcalendar.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

const defaultCalendarTimeout = 10 * time.Second

type BookingService struct {
	db              *gorm.DB
	calendar        Calendar
	notifier        notify.Notifier
	calendarTimeout time.Duration
}

// NewBookingService builds the service. A nil calendar disables calendar sync.
func NewBookingService(db *gorm.DB, calendar Calendar, notifier notify.Notifier, calendarTimeout time.Duration) *BookingService {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if calendarTimeout <= 0 {
		calendarTimeout = defaultCalendarTimeout
	}
	return &BookingService{
		db:              db,
		calendar:        calendar,
		notifier:        notifier,
		calendarTimeout: calendarTimeout,
	}
}

type SlotInput struct {
	StartTime time.Time
	EndTime   time.Time
}

type SlotFilter struct {
	AvailableOnly bool
}

type BookingInput struct {
	SlotID      uint
	Title       string
	Description string
}

// BookingUpdate is the admin edit. It never touches the slot or the calendar.
type BookingUpdate struct {
	Title       *string
	Description *string
	Status      *model.BookingStatus
}

type BookingFilter struct {
	Status   model.BookingStatus
	Upcoming bool
	Page
}

func (s *BookingService) CreateSlot(ctx context.Context, actor policy.Actor, in SlotInput) (*model.AvailabilitySlot, error) {
	if !policy.Decide(actor, policy.Slot, policy.Create, policy.Facts{}).Allowed() {
		return nil, denied()
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, invalidInput("end_time must be after start_time")
	}
	slot := &model.AvailabilitySlot{
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		IsAvailable: true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(slot).Error; err != nil {
			return fmt.Errorf("create slot: %w", err)
		}
		return writeLog(ctx, tx, actor, model.ActionSlotCreate, string(policy.Slot), slot.ID, model.JSONMap{
			"start_time": slot.StartTime,
			"end_time":   slot.EndTime,
		})
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// ListSlots returns future slots ordered by start time.
func (s *BookingService) ListSlots(ctx context.Context, actor policy.Actor, f SlotFilter) ([]model.AvailabilitySlot, error) {
	if !policy.Decide(actor, policy.Slot, policy.Read, policy.Facts{}).Allowed() {
		return nil, denied()
	}
	query := s.db.WithContext(ctx).Where("start_time > ?", time.Now().UTC())
	if f.AvailableOnly {
		query = query.Where("is_available = ?", true)
	}
	var slots []model.AvailabilitySlot
	if err := query.Order("start_time").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// DeleteSlot removes a slot no booking references.
func (s *BookingService) DeleteSlot(ctx context.Context, actor policy.Actor, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot model.AvailabilitySlot
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&slot, id).Error; err != nil {
			return lookupErr(err, "slot")
		}
		if !policy.Decide(actor, policy.Slot, policy.Delete, policy.Facts{}).Allowed() {
			return denied()
		}
		var booked int64
		if err := tx.Model(&model.Booking{}).Where("slot_id = ?", id).Count(&booked).Error; err != nil {
			return err
		}
		if booked > 0 {
			return invalidState("cannot delete slot with existing booking")
		}
		if err := tx.Delete(&slot).Error; err != nil {
			return fmt.Errorf("delete slot: %w", err)
		}
		return writeLog(ctx, tx, actor, model.ActionSlotDelete, string(policy.Slot), id, nil)
	})
}

// Reserve books an open slot for the actor. The slot row is locked and flipped
// with a conditional update, so of two concurrent reservations exactly one
// wins. The calendar event is created after commit and its failure is logged,
// not returned.
func (s *BookingService) Reserve(ctx context.Context, actor policy.Actor, in BookingInput) (*model.Booking, error) {
	if in.Title == "" {
		return nil, invalidInput("title is required")
	}

	var booking *model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slot model.AvailabilitySlot
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&slot, in.SlotID).Error; err != nil {
			return lookupErr(err, "slot")
		}
		if !policy.Decide(actor, policy.Booking, policy.Create, policy.Facts{}).Allowed() {
			return denied()
		}
		if !slot.IsAvailable {
			return invalidState("slot is not available")
		}
		var booked int64
		if err := tx.Model(&model.Booking{}).Where("slot_id = ?", slot.ID).Count(&booked).Error; err != nil {
			return err
		}
		if booked > 0 {
			return invalidState("slot already booked")
		}

		res := tx.Model(&model.AvailabilitySlot{}).
			Where("id = ? AND is_available = ?", slot.ID, true).
			Updates(map[string]interface{}{"is_available": false, "updated_at": now()})
		if res.Error != nil {
			return fmt.Errorf("hold slot: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return invalidState("slot is not available")
		}

		slotID := slot.ID
		booking = &model.Booking{
			UserID:      actor.ID,
			SlotID:      &slotID,
			Title:       in.Title,
			Description: in.Description,
			StartTime:   slot.StartTime,
			EndTime:     slot.EndTime,
			Status:      model.BookingConfirmed,
		}
		if err := tx.Create(booking).Error; err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		return writeLog(ctx, tx, actor, model.ActionBookingReserve, string(policy.Booking), booking.ID,
			model.JSONMap{"slot_id": slotID})
	})
	if err != nil {
		return nil, err
	}

	var owner model.User
	if err := s.db.WithContext(ctx).First(&owner, actor.ID).Error; err != nil {
		logs.Logger.WithField("booking_id", booking.ID).WithError(err).Warn("load booking owner")
	}
	s.syncCreate(ctx, booking, owner.Email)

	if err := s.notifier.NotifyBookingConfirmed(ctx, notify.BookingConfirmedEvent{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		UserEmail: owner.Email,
		Title:     booking.Title,
		StartTime: booking.StartTime,
		EndTime:   booking.EndTime,
	}); err != nil {
		logs.Logger.WithField("booking_id", booking.ID).WithError(err).Warn("publish booking confirmed")
	}
	return booking, nil
}

// Cancel releases the booking's slot and deletes the booking. The calendar
// event is removed after commit, best effort.
func (s *BookingService) Cancel(ctx context.Context, actor policy.Actor, id uint) error {
	var booking model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&booking, id).Error; err != nil {
			return lookupErr(err, "booking")
		}
		facts := policy.Facts{Owner: booking.UserID == actor.ID}
		if !policy.Decide(actor, policy.Booking, policy.Cancel, facts).Allowed() {
			return denied()
		}
		switch booking.Status {
		case model.BookingCancelled:
			return notFound("booking")
		case model.BookingCompleted:
			return invalidState("booking is already completed")
		}
		return cancelBooking(ctx, tx, actor, &booking)
	})
	if err != nil {
		return err
	}

	s.syncDelete(ctx, &booking)
	if err := s.notifier.NotifyBookingCancelled(ctx, notify.BookingCancelledEvent{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		CancelledBy: actor.ID,
		StartTime:   booking.StartTime,
	}); err != nil {
		logs.Logger.WithField("booking_id", booking.ID).WithError(err).Warn("publish booking cancelled")
	}
	return nil
}

func (s *BookingService) Update(ctx context.Context, actor policy.Actor, id uint, in BookingUpdate) (*model.Booking, error) {
	var booking model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, id).Error; err != nil {
			return lookupErr(err, "booking")
		}
		facts := policy.Facts{Owner: booking.UserID == actor.ID}
		if !policy.Decide(actor, policy.Booking, policy.Update, facts).Allowed() {
			return denied()
		}

		updates := map[string]interface{}{"updated_at": now()}
		detail := model.JSONMap{}
		if in.Title != nil {
			updates["title"] = *in.Title
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				return invalidInput("invalid booking status %q", *in.Status)
			}
			if booking.Status.Terminal() && *in.Status != booking.Status {
				return invalidState("booking is already %s", booking.Status)
			}
			updates["status"] = *in.Status
			detail["from"] = booking.Status
			detail["to"] = *in.Status
		}
		if err := tx.Model(&booking).Updates(updates).Error; err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := writeLog(ctx, tx, actor, model.ActionBookingUpdate, string(policy.Booking), id, detail); err != nil {
			return err
		}
		return tx.First(&booking, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (s *BookingService) Get(ctx context.Context, actor policy.Actor, id uint) (*model.Booking, error) {
	var booking model.Booking
	if err := s.db.WithContext(ctx).First(&booking, id).Error; err != nil {
		return nil, lookupErr(err, "booking")
	}
	facts := policy.Facts{Owner: booking.UserID == actor.ID}
	if !policy.Decide(actor, policy.Booking, policy.Read, facts).Allowed() {
		return nil, denied()
	}
	return &booking, nil
}

func (s *BookingService) List(ctx context.Context, actor policy.Actor, f BookingFilter) ([]model.Booking, int64, error) {
	db := s.db.WithContext(ctx)
	query := scoped(db.Model(&model.Booking{}), db, actor, policy.Booking)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Upcoming {
		query = query.Where("start_time > ?", time.Now().UTC())
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Booking
	if err := f.Page.apply(query.Order("start_time DESC, id DESC")).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// cancelBooking releases the slot and deletes b inside tx.
func cancelBooking(ctx context.Context, tx *gorm.DB, actor policy.Actor, b *model.Booking) error {
	if b.SlotID != nil {
		err := tx.Model(&model.AvailabilitySlot{}).Where("id = ?", *b.SlotID).
			Updates(map[string]interface{}{"is_available": true, "updated_at": now()}).Error
		if err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
	}
	if err := tx.Delete(b).Error; err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return writeLog(ctx, tx, actor, model.ActionBookingCancel, string(policy.Booking), b.ID,
		model.JSONMap{"slot_id": b.SlotID, "owner_id": b.UserID})
}

func (s *BookingService) syncCreate(ctx context.Context, b *model.Booking, attendee string) {
	if s.calendar == nil {
		logs.Logger.WithField("booking_id", b.ID).Debug("calendar sync disabled")
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.calendarTimeout)
	defer cancel()

	ev, err := s.calendar.CreateEvent(cctx, gcalendar.EventInput{
		Summary:     b.Title,
		Description: b.Description,
		Start:       b.StartTime,
		End:         b.EndTime,
		Attendees:   []string{attendee},
		MeetingLink: true,
	})
	if err != nil {
		logCalendarFailure(b.ID, "create", err)
		return
	}

	updates := map[string]interface{}{"google_event_id": ev.ID, "updated_at": now()}
	b.GoogleEventID = &ev.ID
	if ev.MeetingLink != "" {
		link := ev.MeetingLink
		b.MeetingLink = &link
		updates["meeting_link"] = link
	}
	if err := s.db.WithContext(cctx).Model(&model.Booking{}).Where("id = ?", b.ID).Updates(updates).Error; err != nil {
		logs.Logger.WithFields(logrus.Fields{"booking_id": b.ID, "event_id": ev.ID}).
			WithError(err).Error("store calendar event on booking")
	}
}

func (s *BookingService) syncDelete(ctx context.Context, b *model.Booking) {
	if s.calendar == nil || b.GoogleEventID == nil || *b.GoogleEventID == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.calendarTimeout)
	defer cancel()
	if err := s.calendar.DeleteEvent(cctx, *b.GoogleEventID); err != nil {
		logCalendarFailure(b.ID, "delete", err)
	}
}

// logCalendarFailure reports a swallowed calendar error. A missing credential
// is a configuration fault and is logged at error level.
func logCalendarFailure(bookingID uint, op string, err error) {
	fault := faultOf(err)
	entry := logs.Logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"op":         op,
		"fault":      fault,
	}).WithError(err)
	if fault == "configuration" {
		entry.Error("calendar is not configured, booking kept without calendar event")
		return
	}
	entry.Warn("calendar sync failed, booking kept without calendar event")
}
