package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blackpass-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LessonService struct {
	DB     *gorm.DB
	Broker *Broker
	Now    func() time.Time
}

func NewLessonService(db *gorm.DB, broker *Broker) *LessonService {
	return &LessonService{
		DB:     db,
		Broker: broker,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// LessonProgressResult reports the saved progress and any XP it earned.
type LessonProgressResult struct {
	Progress  models.LessonProgress `json:"progress"`
	XPAwarded int64                 `json:"xp_awarded"`
}

// UpdateProgress records watch progress. Progress never moves backwards, and
// the first transition to completed pays the lesson XP exactly once.
func (s *LessonService) UpdateProgress(ctx context.Context, userID, lessonID string, percent int) (*LessonProgressResult, error) {
	if percent < 0 || percent > 100 {
		return nil, validationError("progress must be between 0 and 100")
	}

	now := s.Now()
	result := &LessonProgressResult{}
	var activity *models.ActivityEvent

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lesson models.Lesson
		if err := tx.Where("id = ?", lessonID).First(&lesson).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("lesson not found")
			}
			return fmt.Errorf("failed to load lesson: %w", err)
		}

		seed := models.LessonProgress{UserID: userID, LessonID: lessonID, LastWatchedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return fmt.Errorf("failed to open lesson progress: %w", err)
		}

		if err := tx.Model(&models.LessonProgress{}).
			Where("user_id = ? AND lesson_id = ? AND progress_percent < ?", userID, lessonID, percent).
			Update("progress_percent", percent).Error; err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		if err := tx.Model(&models.LessonProgress{}).
			Where("user_id = ? AND lesson_id = ?", userID, lessonID).
			Update("last_watched_at", now).Error; err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}

		if percent == 100 {
			res := tx.Model(&models.LessonProgress{}).
				Where("user_id = ? AND lesson_id = ? AND completed = ?", userID, lessonID, false).
				Updates(map[string]any{"completed": true, "completed_at": now})
			if res.Error != nil {
				return fmt.Errorf("failed to complete lesson: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				if lesson.XPReward > 0 {
					if _, err := awardXP(tx, userID, lesson.XPReward, models.XPLessonCompletion, lesson.Title, lesson.ID, now); err != nil {
						return err
					}
					result.XPAwarded = lesson.XPReward
				}
				activity = newActivity(userID, models.ActivityLessonCompleted,
					fmt.Sprintf("Finished %s", lesson.Title), "",
					map[string]any{"lesson_id": lesson.ID, "xp": lesson.XPReward})
				if err := appendActivity(tx, activity); err != nil {
					return err
				}
			}
		}

		return tx.Preload("Lesson").
			Where("user_id = ? AND lesson_id = ?", userID, lessonID).
			First(&result.Progress).Error
	})
	if err != nil {
		return nil, err
	}

	publishActivity(s.Broker, activity)
	return result, nil
}

// ListLessons returns the lessons of a course, or every lesson when courseID is empty.
func (s *LessonService) ListLessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	q := s.DB.WithContext(ctx).Order("order_index ASC")
	if courseID != "" {
		q = q.Where("course_id = ?", courseID)
	}
	var lessons []models.Lesson
	err := q.Find(&lessons).Error
	return lessons, err
}

// Progress returns the user's progress rows with lesson details.
func (s *LessonService) Progress(ctx context.Context, userID string) ([]models.LessonProgress, error) {
	var rows []models.LessonProgress
	err := s.DB.WithContext(ctx).
		Preload("Lesson").
		Where("user_id = ?", userID).
		Order("last_watched_at DESC").
		Find(&rows).Error
	return rows, err
}
