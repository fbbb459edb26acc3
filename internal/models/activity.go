package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable events such as closures and consolidations.
type ActivityLog struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ActorID    uint   `gorm:"not null;index" json:"actor_id"`
	ActorRole  string `gorm:"size:32;not null" json:"actor_role"`
	Action     string `gorm:"size:64;not null;index" json:"action"`
	EntityType string `gorm:"size:64;not null" json:"entity_type"`
	EntityKey  string `gorm:"size:128;index" json:"entity_key"`
	// CorrelationID ties the event to the request that produced it.
	CorrelationID string            `gorm:"size:128;index" json:"correlation_id"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}
