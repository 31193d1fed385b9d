package model

import "time"

// CalendarCredential holds the OAuth token of the admin account that owns the
// booking calendar. Token fields are AES-GCM encrypted.
type CalendarCredential struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ConnectedBy  uint       `gorm:"not null" json:"connected_by"`
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text;not null" json:"-"`
	TokenType    string     `gorm:"type:varchar(32)" json:"-"`
	Expiry       *time.Time `json:"expiry"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (CalendarCredential) TableName() string { return "calendar_credentials" }
