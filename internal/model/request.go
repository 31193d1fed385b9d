package model

import "time"

type RequestType string

const (
	RequestImprovement RequestType = "improvement"
	RequestRevision    RequestType = "revision"
	RequestBug         RequestType = "bug"
	RequestQuestion    RequestType = "question"
)

func (t RequestType) Valid() bool {
	switch t {
	case RequestImprovement, RequestRevision, RequestBug, RequestQuestion:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestOpen       RequestStatus = "open"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestCancelled  RequestStatus = "cancelled"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestOpen, RequestInProgress, RequestCompleted, RequestCancelled:
		return true
	}
	return false
}

type Request struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UserID      uint          `gorm:"not null;index:idx_requests_user_id" json:"user_id"`
	ProjectID   uint          `gorm:"not null;index:idx_requests_project_id" json:"project_id"`
	Title       string        `gorm:"type:varchar(255);not null" json:"title"`
	Description string        `gorm:"type:text;not null" json:"description"`
	Type        RequestType   `gorm:"type:varchar(16);not null;default:question" json:"type"`
	Status      RequestStatus `gorm:"type:varchar(16);not null;default:open;index:idx_requests_status" json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (Request) TableName() string { return "requests" }

// RequestMessage is immutable once written.
type RequestMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID uint      `gorm:"not null;index:idx_request_messages_request_id" json:"request_id"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (RequestMessage) TableName() string { return "request_messages" }
