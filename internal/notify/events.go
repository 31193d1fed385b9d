package notify

import "time"

// Routing keys on the portal exchange.
const (
	KeyBookingConfirmed    = "booking.confirmed"
	KeyBookingCancelled    = "booking.cancelled"
	KeyRequestCreated      = "request.created"
	KeyRequestMessageAdded = "request.message_added"
)

// BookingConfirmedEvent is sent when a client reserves a slot.
type BookingConfirmedEvent struct {
	BookingID uint      `json:"booking_id"`
	UserID    uint      `json:"user_id"`
	UserEmail string    `json:"user_email"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// BookingCancelledEvent is sent after a booking is cancelled and its slot released.
type BookingCancelledEvent struct {
	BookingID   uint      `json:"booking_id"`
	UserID      uint      `json:"user_id"`
	CancelledBy uint      `json:"cancelled_by"`
	StartTime   time.Time `json:"start_time"`
}

type RequestCreatedEvent struct {
	RequestID uint   `json:"request_id"`
	ProjectID uint   `json:"project_id"`
	UserID    uint   `json:"user_id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
}

type RequestMessageAddedEvent struct {
	RequestID uint `json:"request_id"`
	MessageID uint `json:"message_id"`
	AuthorID  uint `json:"author_id"`
	// OwnerID is the creator of the request, who is told about admin replies.
	OwnerID uint `json:"owner_id"`
}
