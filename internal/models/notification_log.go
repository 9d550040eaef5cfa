package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationLog is written by the paging subsystem. This service only reads it.
type NotificationLog struct {
	BaseModel

	IncidentID uint   `gorm:"not null;index"`
	UserID     uint   `gorm:"not null;index"`
	Channel    string `gorm:"not null"`
	Status     string `gorm:"not null"`
	Message    string
	Payload    datatypes.JSON
	SentAt     *time.Time

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}

// EscalationLog is written by the paging subsystem. This service only reads it.
type EscalationLog struct {
	BaseModel

	IncidentID uint `gorm:"not null;index"`
	Level      int  `gorm:"not null"`
	FromUserID *uint
	ToUserID   *uint
	Reason     string
}
