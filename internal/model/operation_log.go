package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	return string(b), err
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("JSONMap: unsupported scan type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// Audited actions.
const (
	ActionBookingReserve  = "booking.reserve"
	ActionBookingCancel   = "booking.cancel"
	ActionBookingUpdate   = "booking.update"
	ActionSlotCreate      = "slot.create"
	ActionSlotDelete      = "slot.delete"
	ActionProjectDelete   = "project.delete"
	ActionUserStatus      = "user.status"
	ActionUserRole        = "user.role"
	ActionUserDelete      = "user.delete"
	ActionCalendarConnect = "calendar.connect"
)

type OperationLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index:idx_oplogs_user_id" json:"user_id"`
	Action       string    `gorm:"type:varchar(64);not null" json:"action"`
	ResourceType string    `gorm:"type:varchar(32);not null;index:idx_oplogs_resource,priority:1" json:"resource_type"`
	ResourceID   uint      `gorm:"index:idx_oplogs_resource,priority:2" json:"resource_id"`
	Detail       JSONMap   `gorm:"type:json" json:"detail"`
	IP           string    `gorm:"type:varchar(45)" json:"ip"`
	CreatedAt    time.Time `gorm:"index:idx_oplogs_created_at" json:"created_at"`
}

func (OperationLog) TableName() string { return "operation_logs" }
