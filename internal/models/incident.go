package models

import (
	"time"

	"gorm.io/gorm"
)

type IncidentStatus string

const (
	StatusOpen         IncidentStatus = "open"
	StatusAcknowledged IncidentStatus = "acknowledged"
	StatusResolved     IncidentStatus = "resolved"
)

// Rank orders statuses along the lifecycle; unknown statuses rank below open.
func (s IncidentStatus) Rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusAcknowledged:
		return 1
	case StatusResolved:
		return 2
	default:
		return -1
	}
}

func (s IncidentStatus) Valid() bool {
	return s.Rank() >= 0
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityUnknown:
		return true
	}
	return false
}

type Incident struct {
	gorm.Model

	TeamID           uint   `gorm:"not null;index"`
	ServiceID        *uint  `gorm:"index"`
	Title            string `gorm:"not null"`
	Description      string
	Severity         Severity       `gorm:"not null"`
	Status           IncidentStatus `gorm:"not null;index"`
	CreatedByID      uint           `gorm:"not null"`
	AssigneeID       *uint          `gorm:"index"`
	AcknowledgedByID *uint
	AcknowledgedAt   *time.Time
	ResolvedAt       *time.Time

	// Relationships
	Team            Team                     `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	Updates         []IncidentUpdate         `gorm:"foreignKey:IncidentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	Acknowledgments []IncidentAcknowledgment `gorm:"foreignKey:IncidentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	Notifications   []NotificationLog        `gorm:"foreignKey:IncidentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	Escalations     []EscalationLog          `gorm:"foreignKey:IncidentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}
