package models

import "gorm.io/gorm"

// User is a team member. Accounts are owned by the identity service; this
// service only reads them to resolve display names.
type User struct {
	gorm.Model

	Name  string `gorm:"not null"`
	Email string `gorm:"uniqueIndex;not null"`

	// Relationships
	TeamMemberships []TeamMembership `gorm:"foreignKey:UserID;constraint:OnUpdate:Cascade,OnDelete:CASCADE"`
}
