package services

import (
	"context"
	"time"

	"blackpass-api/models"

	"gorm.io/gorm"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

// ActivityService is the read side of the feed plus a standalone append. The
// feed has no update or delete path.
type ActivityService struct {
	DB           *gorm.DB
	Broker       *Broker
	PollInterval time.Duration
}

func NewActivityService(db *gorm.DB, broker *Broker, pollInterval time.Duration) *ActivityService {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &ActivityService{DB: db, Broker: broker, PollInterval: pollInterval}
}

func newActivity(userID, activityType, title, description string, metadata map[string]any) *models.ActivityEvent {
	ev := &models.ActivityEvent{
		UserID:       userID,
		ActivityType: activityType,
		Title:        title,
		Metadata:     metadata,
	}
	if description != "" {
		ev.Description = &description
	}
	return ev
}

// appendActivity writes ev with the caller's handle so it joins the caller's
// transaction.
func appendActivity(tx *gorm.DB, ev *models.ActivityEvent) error {
	ev.ID = ""
	return tx.Create(ev).Error
}

func publishActivity(b *Broker, ev *models.ActivityEvent) {
	if b == nil || ev == nil {
		return
	}
	b.Publish(Change{Table: "user_activities", Kind: ChangeInsert, UserID: ev.UserID, RecordID: ev.ID})
}

// Append records a standalone event and notifies subscribers.
func (s *ActivityService) Append(ctx context.Context, ev *models.ActivityEvent) error {
	if ev.UserID == "" {
		return validationError("user_id is required")
	}
	if ev.ActivityType == "" || ev.Title == "" {
		return validationError("activity_type and title are required")
	}
	if err := appendActivity(s.DB.WithContext(ctx), ev); err != nil {
		return err
	}
	publishActivity(s.Broker, ev)
	return nil
}

// Recent returns up to limit events for userID, newest first. A non-nil before
// pages backwards from that instant.
func (s *ActivityService) Recent(ctx context.Context, userID string, limit int, before *time.Time) ([]models.ActivityEvent, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	if limit > MaxFeedLimit {
		limit = MaxFeedLimit
	}

	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if before != nil {
		q = q.Where("created_at < ?", *before)
	}

	var events []models.ActivityEvent
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// Since returns events created at or after cursor, oldest first.
func (s *ActivityService) Since(ctx context.Context, userID string, cursor time.Time) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, cursor).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// Latest returns the newest event for userID, or nil when the feed is empty.
func (s *ActivityService) Latest(ctx context.Context, userID string) (*models.ActivityEvent, error) {
	var events []models.ActivityEvent
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Find(&events).Error; err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}
