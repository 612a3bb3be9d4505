package models

import "gorm.io/gorm"

type XPSource string

const (
	XPLessonCompletion XPSource = "lesson_completion"
	XPQuizPass         XPSource = "quiz_pass"
	XPStreakBonus      XPSource = "streak_bonus"
	XPMilestone        XPSource = "milestone"
	XPDailyLogin       XPSource = "daily_login"
	XPMission          XPSource = "mission"
)

func (s XPSource) Valid() bool {
	switch s {
	case XPLessonCompletion, XPQuizPass, XPStreakBonus, XPMilestone, XPDailyLogin, XPMission:
		return true
	}
	return false
}

type XPTransaction struct {
	ID          string   `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string   `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Amount      int64    `gorm:"not null" json:"amount"`
	Source      XPSource `gorm:"type:varchar(32);not null" json:"source"`
	Description *string  `json:"description,omitempty"`
	ReferenceID *string  `gorm:"type:varchar(64)" json:"reference_id,omitempty"`

	Timestamps
}

func (x *XPTransaction) BeforeCreate(tx *gorm.DB) error {
	ensureID(&x.ID)
	return nil
}
