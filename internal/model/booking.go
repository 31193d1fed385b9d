package model

import "time"

type BookingStatus string

const (
	// BookingPending is part of the schema but no workflow produces it yet.
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// AvailabilitySlot is a bookable interval [StartTime, EndTime).
// IsAvailable is false exactly while one Booking references the slot.
type AvailabilitySlot struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StartTime   time.Time  `gorm:"not null;index:idx_slots_start_time" json:"start_time"`
	EndTime     time.Time  `gorm:"not null" json:"end_time"`
	IsAvailable bool       `gorm:"not null;index:idx_slots_available" json:"is_available"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (AvailabilitySlot) TableName() string { return "availability_slots" }

// Booking keeps its own copy of the slot interval so it stays meaningful
// after SlotID is cleared.
type Booking struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	UserID        uint          `gorm:"not null;index:idx_bookings_user_id" json:"user_id"`
	SlotID        *uint         `gorm:"index:idx_bookings_slot_id" json:"slot_id"`
	Title         string        `gorm:"type:varchar(255);not null" json:"title"`
	Description   string        `gorm:"type:text" json:"description"`
	StartTime     time.Time     `gorm:"not null" json:"start_time"`
	EndTime       time.Time     `gorm:"not null" json:"end_time"`
	Status        BookingStatus `gorm:"type:varchar(16);not null;default:pending;index:idx_bookings_status" json:"status"`
	GoogleEventID *string       `gorm:"type:varchar(255)" json:"google_event_id"`
	MeetingLink   *string       `gorm:"type:varchar(1024)" json:"meeting_link"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     *time.Time    `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }
