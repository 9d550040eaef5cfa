package models

import "time"

// AckToken is an out-of-band acknowledgment credential bound to one member
// and one incident. Only the bcrypt hash of the token is stored.
type AckToken struct {
	BaseModel

	IncidentID uint       `gorm:"not null;index:idx_ack_token_lookup"`
	UserID     uint       `gorm:"not null;index:idx_ack_token_lookup"`
	Channel    AckChannel `gorm:"not null"`
	TokenHash  string     `gorm:"not null"`
	ExpiresAt  time.Time  `gorm:"not null"`
	UsedAt     *time.Time
}
