package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"blackpass-api/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database with the schema and reference
// data loaded.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))
	require.NoError(t, SeedReferenceData(db, "BLC"))
	return db
}

func createProfile(t *testing.T, db *gorm.DB, id, country string) *models.Profile {
	t.Helper()
	p := &models.Profile{
		ID:          id,
		Email:       id + "@example.com",
		FullName:    "Test " + id,
		CountryCode: country,
		CountryName: country,
		AccountTier: models.TierStudent,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func createMission(t *testing.T, db *gorm.DB, title string, xp, coins int64) *models.Mission {
	t.Helper()
	m := &models.Mission{Title: title, Slug: strings.ToLower(strings.ReplaceAll(title, " ", "-")), XPReward: xp, CoinReward: coins, IsActive: true}
	require.NoError(t, db.Create(m).Error)
	return m
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// recordingSink collects milestones instead of queueing them.
type recordingSink struct {
	events []MilestoneEvent
}

func (r *recordingSink) Enqueue(ev MilestoneEvent) bool {
	r.events = append(r.events, ev)
	return true
}
