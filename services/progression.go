package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"blackpass-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LevelConfig: XP needed for the *next* level (level 1 → 2 needs BaseXPPerLevel * 1^1.2)
const BaseXPPerLevel = 100

// xpForNextLevel returns XP required to reach level+1 from level.
func xpForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	// L_n = floor(BaseXPPerLevel * n^1.2)
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(level), 1.2))
}

// RankThresholds: rank → min level
var RankThresholds = map[int]int{
	1: 1,  // Rookie
	2: 5,  // Trader
	3: 15, // Analyst
	4: 30, // Strategist
	5: 60, // Market Master
}

var RankNames = map[int]string{
	1: "Rookie",
	2: "Trader",
	3: "Analyst",
	4: "Strategist",
	5: "Market Master",
}

func determineRank(level int) int {
	for rank := 5; rank >= 1; rank-- {
		if level >= RankThresholds[rank] {
			return rank
		}
	}
	return 1
}

// Progress is the level view derived from a total XP figure.
type Progress struct {
	TotalXP     int64  `json:"total_xp"`
	Level       int    `json:"level"`
	Rank        int    `json:"rank"`
	RankName    string `json:"rank_name"`
	XPIntoLevel int64  `json:"xp_into_level"`
	XPToNext    int64  `json:"xp_to_next_level"`
}

// ProgressFor walks the curve from level 1 until totalXP runs out.
func ProgressFor(totalXP int64) Progress {
	if totalXP < 0 {
		totalXP = 0
	}
	level := 1
	remaining := totalXP
	for remaining >= xpForNextLevel(level) {
		remaining -= xpForNextLevel(level)
		level++
	}
	rank := determineRank(level)
	return Progress{
		TotalXP:     totalXP,
		Level:       level,
		Rank:        rank,
		RankName:    RankNames[rank],
		XPIntoLevel: remaining,
		XPToNext:    xpForNextLevel(level) - remaining,
	}
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nextStreak returns the streak after activity at now. Activity on the same UTC
// day keeps it, the following day extends it, any later day restarts at 1.
func nextStreak(last *time.Time, now time.Time, current int) int {
	if last == nil || current <= 0 {
		return 1
	}
	gap := dayOf(now).Sub(dayOf(*last))
	switch {
	case gap <= 0:
		return current
	case gap == 24*time.Hour:
		return current + 1
	default:
		return 1
	}
}

// XPAward is the outcome of crediting XP to a profile.
type XPAward struct {
	Amount        int64    `json:"amount"`
	TotalXP       int64    `json:"total_xp"`
	CurrentStreak int      `json:"current_streak"`
	StreakBonus   int64    `json:"streak_bonus,omitempty"`
	LevelUp       bool     `json:"level_up"`
	Progress      Progress `json:"progress"`

	profile *models.Profile
}

// awardXP credits amount to userID inside tx: profile total, streak and the
// xp_transactions trail move together. The profile row is locked so
// concurrent awards compute the streak one after the other.
func awardXP(tx *gorm.DB, userID string, amount int64, source models.XPSource, description, referenceID string, now time.Time) (*XPAward, error) {
	var profile models.Profile
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	before := ProgressFor(profile.TotalXP)
	streak := nextStreak(profile.LastActivityDate, now, profile.CurrentStreak)
	longest := max(profile.LongestStreak, streak)

	if err := tx.Model(&models.Profile{}).Where("id = ?", userID).Updates(map[string]any{
		"total_xp":           gorm.Expr("total_xp + ?", amount),
		"current_streak":     streak,
		"longest_streak":     longest,
		"last_activity_date": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile xp: %w", err)
	}

	entry := models.XPTransaction{UserID: userID, Amount: amount, Source: source}
	if description != "" {
		entry.Description = &description
	}
	if referenceID != "" {
		entry.ReferenceID = &referenceID
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record xp transaction: %w", err)
	}

	bonus, err := applyStreakBonus(tx, userID, profile.CurrentStreak, streak)
	if err != nil {
		return nil, err
	}

	// Re-read so concurrent awards are reflected in the returned total.
	if err := tx.Where("id = ?", userID).First(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to reload profile: %w", err)
	}
	after := ProgressFor(profile.TotalXP)

	log.Printf("🎮 [XP] %s +%d (%s) → total=%d lvl=%d streak=%d",
		userID, amount, source, profile.TotalXP, after.Level, profile.CurrentStreak)

	return &XPAward{
		Amount:        amount,
		TotalXP:       profile.TotalXP,
		CurrentStreak: profile.CurrentStreak,
		StreakBonus:   bonus,
		LevelUp:       after.Level > before.Level,
		Progress:      after,
		profile:       &profile,
	}, nil
}
