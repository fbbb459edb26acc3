package models

import "time"

// Student is referenced by grade records but never owned by them.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Code      *string   `gorm:"size:32;uniqueIndex" json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayCode returns the external code, falling back to the numeric id.
func (s Student) DisplayCode() string {
	if s.Code != nil && *s.Code != "" {
		return *s.Code
	}
	return uintToString(s.ID)
}
