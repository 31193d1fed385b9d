package model

import "time"

// Recording and File point at a document held by the external storage provider.
// StorageID is the provider's opaque item id, StorageURL its web link.

type Recording struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ProjectID       uint       `gorm:"not null;index:idx_recordings_project_id" json:"project_id"`
	Title           string     `gorm:"type:varchar(255);not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	StorageID       string     `gorm:"type:varchar(255)" json:"storage_file_id"`
	StorageURL      string     `gorm:"type:varchar(1024)" json:"storage_url"`
	DurationSeconds *int       `json:"duration_seconds"`
	FileSizeBytes   int64      `json:"file_size_bytes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (Recording) TableName() string { return "recordings" }

type File struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ProjectID     uint       `gorm:"not null;index:idx_files_project_id" json:"project_id"`
	Name          string     `gorm:"type:varchar(255);not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description"`
	StorageID     string     `gorm:"type:varchar(255)" json:"storage_file_id"`
	StorageURL    string     `gorm:"type:varchar(1024)" json:"storage_url"`
	FileSizeBytes int64      `json:"file_size_bytes"`
	MimeType      string     `gorm:"type:varchar(128)" json:"mime_type"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (File) TableName() string { return "files" }
