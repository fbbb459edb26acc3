package models

import (
	"strconv"
	"time"
)

// Course is a subject taught to a section.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Code      string    `gorm:"size:20;uniqueIndex;not null" json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Section groups students of the same grade level.
type Section struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"size:50;not null" json:"name"`
	Grade string `gorm:"size:50" json:"grade"`
}

func uintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
