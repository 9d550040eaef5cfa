package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment records who is on-call for a schedule on one calendar day.
type Assignment struct {
	BaseModel

	ScheduleID uint           `gorm:"not null;uniqueIndex:idx_schedule_date"`
	UserID     uint           `gorm:"not null;index"`
	Date       datatypes.Date `gorm:"not null;uniqueIndex:idx_schedule_date"`

	// Relationships
	Schedule Schedule `gorm:"foreignKey:ScheduleID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	User     User     `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}

// Day returns the assignment date as a time.Time.
func (a Assignment) Day() time.Time {
	return time.Time(a.Date)
}
