package services

import (
	"context"
	"fmt"
	"strings"

	"blackpass-api/models"
)

const (
	leaderboardTop    = 10
	leaderboardSpread = 5
)

// LeaderboardEntry is one ranked profile. Names are shortened to first name
// and initial.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	TotalXP       int64  `json:"xp"`
	CurrentStreak int    `json:"streak"`
	IsCaller      bool   `json:"is_you"`
}

// Leaderboard is the top of the ranking plus the caller's neighbourhood.
type Leaderboard struct {
	Rank   int                `json:"rank"`
	Top    []LeaderboardEntry `json:"top"`
	Around []LeaderboardEntry `json:"around"`
}

const leaderboardOrder = "total_xp DESC, current_streak DESC, id ASC"

// Leaderboard ranks profiles by XP, then streak, and returns the top entries
// and the ones within five places of userID.
func (s *LedgerService) Leaderboard(ctx context.Context, userID string) (*Leaderboard, error) {
	db := s.DB.WithContext(ctx)
	me, err := loadProfile(db, userID)
	if err != nil {
		return nil, err
	}

	var ahead int64
	if err := db.Model(&models.Profile{}).
		Where("total_xp > ? OR (total_xp = ? AND current_streak > ?) OR (total_xp = ? AND current_streak = ? AND id < ?)",
			me.TotalXP, me.TotalXP, me.CurrentStreak, me.TotalXP, me.CurrentStreak, me.ID).
		Count(&ahead).Error; err != nil {
		return nil, fmt.Errorf("failed to rank profile: %w", err)
	}
	rank := int(ahead) + 1

	var top []models.Profile
	if err := db.Order(leaderboardOrder).Limit(leaderboardTop).Find(&top).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	lower := max(rank-leaderboardSpread, 1)
	var around []models.Profile
	if err := db.Order(leaderboardOrder).
		Offset(lower - 1).
		Limit(rank + leaderboardSpread - lower + 1).
		Find(&around).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	return &Leaderboard{
		Rank:   rank,
		Top:    rankEntries(top, 1, userID),
		Around: rankEntries(around, lower, userID),
	}, nil
}

func rankEntries(profiles []models.Profile, first int, callerID string) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(profiles))
	for i, p := range profiles {
		entries = append(entries, LeaderboardEntry{
			Rank:          first + i,
			UserID:        p.ID,
			Name:          shortName(p.FullName),
			TotalXP:       p.TotalXP,
			CurrentStreak: p.CurrentStreak,
			IsCaller:      p.ID == callerID,
		})
	}
	return entries
}

func shortName(full string) string {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "Trader"
	case 1:
		return parts[0]
	default:
		last := []rune(parts[len(parts)-1])
		return fmt.Sprintf("%s %c.", parts[0], last[0])
	}
}
