package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Schedule struct {
	gorm.Model

	TeamID    uint           `gorm:"not null;index"`
	Name      string         `gorm:"not null"`
	Frequency int            `gorm:"not null"`
	Unit      string         `gorm:"not null"` // "daily", "weekly", "biweekly", "monthly"
	StartDate datatypes.Date `gorm:"type:date;not null"`
	EndDate   *datatypes.Date
	Timezone  string // informational only, rotation math is calendar-day based

	// Relationships
	Team        Team             `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Members     []ScheduleMember `gorm:"foreignKey:ScheduleID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Assignments []Assignment     `gorm:"foreignKey:ScheduleID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}

// Start returns the rotation anchor date.
func (s Schedule) Start() time.Time {
	return time.Time(s.StartDate)
}

// End returns the configured end date, if any.
func (s Schedule) End() *time.Time {
	if s.EndDate == nil {
		return nil
	}
	end := time.Time(*s.EndDate)
	return &end
}

// Roster returns the member IDs in rotation order.
func (s Schedule) Roster() []uint {
	roster := make([]uint, 0, len(s.Members))
	for _, m := range s.Members {
		roster = append(roster, m.UserID)
	}
	return roster
}

// ScheduleMember places a user at a fixed position in a schedule's roster.
type ScheduleMember struct {
	BaseModel

	ScheduleID uint `gorm:"not null;uniqueIndex:idx_schedule_position"`
	UserID     uint `gorm:"not null;index"`
	Position   int  `gorm:"not null;uniqueIndex:idx_schedule_position"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}
