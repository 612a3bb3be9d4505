package models

import (
	"time"

	"gorm.io/gorm"
)

type Lesson struct {
	ID           string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CourseID     string `gorm:"type:varchar(36);index" json:"course_id,omitempty"`
	Title        string `gorm:"not null" json:"title"`
	Description  string `gorm:"type:text" json:"description,omitempty"`
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Duration     int    `json:"duration"`
	XPReward     int64  `gorm:"default:0" json:"xp_reward"`
	OrderIndex   int    `gorm:"default:0" json:"order_index"`

	Timestamps
}

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// LessonProgress tracks one user's progress through one lesson.
type LessonProgress struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_lesson_progress" json:"user_id"`
	LessonID        string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_lesson_progress" json:"lesson_id"`
	ProgressPercent int        `gorm:"default:0" json:"progress_percent"`
	Completed       bool       `gorm:"default:false" json:"completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LastWatchedAt   time.Time  `json:"last_watched_at"`

	Lesson Lesson `gorm:"foreignKey:LessonID" json:"lesson"`

	Timestamps
}

func (l *LessonProgress) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
