package models

import (
	"time"

	"gorm.io/gorm"
)

type UserMissionStatus string

const (
	UserMissionPending   UserMissionStatus = "pending"
	UserMissionCompleted UserMissionStatus = "completed"
)

// Mission is a catalog entry. Rewards are fixed and read at completion time.
type Mission struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	MissionType string `gorm:"type:varchar(32);default:'daily'" json:"mission_type"`
	XPReward    int64  `gorm:"not null;default:0" json:"xp_reward"`
	CoinReward  int64  `gorm:"not null;default:0" json:"coin_reward"`
	EstMinutes  int    `gorm:"default:5" json:"est_minutes"`
	IsActive    bool   `gorm:"default:true;index" json:"is_active"`
	OrderIndex  int    `gorm:"default:0" json:"order_index"`

	Timestamps
}

func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// UserMission is the per-user completion record. At most one row exists per
// (user_id, mission_id).
type UserMission struct {
	ID              string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_mission" json:"user_id"`
	MissionID       string            `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_mission" json:"mission_id"`
	Status          UserMissionStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ProgressPercent int               `gorm:"default:0" json:"progress_percent"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`

	Mission Mission `gorm:"foreignKey:MissionID" json:"mission"`

	Timestamps
}

func (m *UserMission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
