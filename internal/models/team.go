package models

import "gorm.io/gorm"

type Team struct {
	gorm.Model

	Name        string `gorm:"not null"`
	Description string

	// Relationships
	TeamMemberships []TeamMembership `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Schedules       []Schedule       `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
	Services        []Service        `gorm:"foreignKey:TeamID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}

// Service is an optional component an incident can be filed against.
type Service struct {
	BaseModel

	TeamID uint   `gorm:"not null;index"`
	Name   string `gorm:"not null"`
}
