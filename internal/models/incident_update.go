package models

import "gorm.io/datatypes"

type UpdateType string

const (
	UpdateAcknowledgment   UpdateType = "ACKNOWLEDGMENT"
	UpdateResolution       UpdateType = "RESOLUTION"
	UpdateStatusChange     UpdateType = "STATUS_CHANGE"
	UpdateAssignmentChange UpdateType = "ASSIGNMENT_CHANGE"
)

// IncidentUpdate is an append-only audit record. Rows are never edited.
type IncidentUpdate struct {
	BaseModel

	IncidentID uint       `gorm:"not null;index"`
	UserID     uint       `gorm:"not null;index"`
	Message    string     `gorm:"not null"`
	Type       UpdateType `gorm:"not null"`
	Metadata   datatypes.JSON
}
