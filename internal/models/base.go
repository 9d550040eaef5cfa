package models

import "time"

// BaseModel is gorm.Model without soft deletes, for rows that are either
// immutable or replaced wholesale.
type BaseModel struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
