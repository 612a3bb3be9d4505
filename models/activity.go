package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActivityRegistration     = "registration"
	ActivityMissionCompleted = "mission_completed"
	ActivityXPEarned         = "xp_earned"
	ActivityLessonCompleted  = "lesson_completed"
	ActivityPaymentVerified  = "payment_verified"
)

// ActivityEvent is an append-only feed entry. Rows are never updated.
type ActivityEvent struct {
	ID           string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string            `gorm:"type:varchar(64);not null;index:idx_activity_user_created" json:"user_id"`
	ActivityType string            `gorm:"type:varchar(32);not null" json:"activity_type"`
	Title        string            `gorm:"not null" json:"title"`
	Description  *string           `json:"description,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"autoCreateTime;index:idx_activity_user_created" json:"created_at"`
}

func (ActivityEvent) TableName() string {
	return "user_activities"
}

func (a *ActivityEvent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
