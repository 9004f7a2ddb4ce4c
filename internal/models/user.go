package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an authenticated user in the system.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Email       string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password    string         `gorm:"size:255;not null" json:"-"` // Hashed, never exposed in JSON
	FullName    string         `gorm:"size:255" json:"full_name,omitempty"`
	CompanyName string         `gorm:"size:255" json:"company_name,omitempty"`
}
