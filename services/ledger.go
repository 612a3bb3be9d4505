package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"blackpass-api/models"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MilestoneSink accepts country-activity milestones without blocking the caller.
type MilestoneSink interface {
	Enqueue(m MilestoneEvent) bool
}

// MilestoneEvent feeds the per-country aggregate.
type MilestoneEvent struct {
	CountryCode string
	CountryName string
	Region      string
	Type        string
	Description string
	XPGained    int64
	At          time.Time
}

func milestoneFor(p *models.Profile, kind, description string, xp int64, at time.Time) MilestoneEvent {
	return MilestoneEvent{
		CountryCode: p.CountryCode,
		CountryName: p.CountryName,
		Region:      p.DetectedRegion,
		Type:        kind,
		Description: description,
		XPGained:    xp,
		At:          at,
	}
}

// LedgerService maps users to the mission catalog and awards XP and coins.
type LedgerService struct {
	DB         *gorm.DB
	Broker     *Broker
	Milestones MilestoneSink
	CoinSymbol string
	Now        func() time.Time
}

func NewLedgerService(db *gorm.DB, broker *Broker, milestones MilestoneSink, coinSymbol string) *LedgerService {
	return &LedgerService{
		DB:         db,
		Broker:     broker,
		Milestones: milestones,
		CoinSymbol: coinSymbol,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *LedgerService) emit(m MilestoneEvent) {
	if s.Milestones == nil || m.CountryCode == "" {
		return
	}
	if !s.Milestones.Enqueue(m) {
		log.Printf("⚠️ [Ledger] milestone %s for %s dropped", m.Type, m.CountryCode)
	}
}

// EnsureUserMissions creates a pending row for every active mission the user
// does not have yet, in a single INSERT … ON CONFLICT DO NOTHING.
func (s *LedgerService) EnsureUserMissions(ctx context.Context, userID string) (int64, error) {
	return ensureUserMissions(s.DB.WithContext(ctx), userID)
}

func ensureUserMissions(db *gorm.DB, userID string) (int64, error) {
	var missionIDs []string
	if err := db.Model(&models.Mission{}).Where("is_active = ?", true).Pluck("id", &missionIDs).Error; err != nil {
		return 0, fmt.Errorf("failed to list active missions: %w", err)
	}
	if len(missionIDs) == 0 {
		return 0, nil
	}

	rows := make([]models.UserMission, 0, len(missionIDs))
	for _, id := range missionIDs {
		rows = append(rows, models.UserMission{
			UserID:    userID,
			MissionID: id,
			Status:    models.UserMissionPending,
		})
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to upsert user missions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Dashboard is the payload behind the mission board.
type Dashboard struct {
	Profile  ProfileSummary       `json:"profile"`
	Missions []models.UserMission `json:"missions"`
	Wallets  []models.UserWallet  `json:"wallets"`
}

type ProfileSummary struct {
	ID            string             `json:"id"`
	FullName      string             `json:"full_name"`
	AccountTier   models.AccountTier `json:"account_tier"`
	CurrentStreak int                `json:"current_streak"`
	LongestStreak int                `json:"longest_streak"`
	IsPremium     bool               `json:"is_premium"`
	Progress      Progress           `json:"progress"`
}

func loadProfile(db *gorm.DB, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := db.Where("id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

// Dashboard ensures the user's mission rows exist and returns them with the
// profile summary and wallet balances.
func (s *LedgerService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	db := s.DB.WithContext(ctx)

	profile, err := loadProfile(db, userID)
	if err != nil {
		return nil, err
	}
	if _, err := ensureUserMissions(db, userID); err != nil {
		return nil, err
	}

	var missions []models.UserMission
	if err := db.Preload("Mission").Where("user_id = ?", userID).Find(&missions).Error; err != nil {
		return nil, fmt.Errorf("failed to load user missions: %w", err)
	}
	active := missions[:0]
	for _, m := range missions {
		if m.Mission.IsActive {
			active = append(active, m)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Mission.OrderIndex < active[j].Mission.OrderIndex
	})

	var wallets []models.UserWallet
	if err := db.Preload("Token").Where("user_id = ?", userID).Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}

	return &Dashboard{
		Profile: ProfileSummary{
			ID:            profile.ID,
			FullName:      profile.FullName,
			AccountTier:   profile.AccountTier,
			CurrentStreak: profile.CurrentStreak,
			LongestStreak: profile.LongestStreak,
			IsPremium:     profile.IsPremium,
			Progress:      ProgressFor(profile.TotalXP),
		},
		Missions: active,
		Wallets:  wallets,
	}, nil
}

// CompletionResult mirrors the complete_mission contract.
type CompletionResult struct {
	Success      bool            `json:"success"`
	XPAwarded    int64           `json:"xp_awarded"`
	CoinsAwarded int64           `json:"coins_awarded"`
	TotalXP      int64           `json:"total_xp"`
	LevelUp      bool            `json:"level_up"`
	CoinBalance  decimal.Decimal `json:"coin_balance"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// CompleteMission flips the user's pending row to completed and pays the
// catalog rewards in the same transaction. The conditional UPDATE is the only
// guard: of any number of concurrent calls exactly one sees a row affected.
func (s *LedgerService) CompleteMission(ctx context.Context, userID, missionID string) (*CompletionResult, error) {
	now := s.Now()
	var (
		result   *CompletionResult
		activity *models.ActivityEvent
		profile  *models.Profile
		mission  models.Mission
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", missionID).First(&mission).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMissionNotFound
			}
			return fmt.Errorf("failed to load mission: %w", err)
		}

		res := tx.Model(&models.UserMission{}).
			Where("user_id = ? AND mission_id = ? AND status = ?", userID, missionID, models.UserMissionPending).
			Updates(map[string]any{
				"status":           models.UserMissionCompleted,
				"progress_percent": 100,
				"completed_at":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete mission: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.UserMission{}).
				Where("user_id = ? AND mission_id = ?", userID, missionID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to inspect mission row: %w", err)
			}
			if count > 0 {
				return ErrAlreadyCompleted
			}
			return notFoundError("mission not assigned to user")
		}

		result = &CompletionResult{Success: true, CompletedAt: now}

		if mission.XPReward > 0 {
			award, err := awardXP(tx, userID, mission.XPReward, models.XPMission, mission.Title, mission.ID, now)
			if err != nil {
				return err
			}
			result.XPAwarded = mission.XPReward
			result.TotalXP = award.TotalXP
			result.LevelUp = award.LevelUp
			profile = award.profile
		} else {
			p, err := loadProfile(tx, userID)
			if err != nil {
				return err
			}
			profile = p
			result.TotalXP = p.TotalXP
		}

		if mission.CoinReward > 0 {
			entry, err := credit(tx, WalletMovement{
				UserID:      userID,
				Symbol:      s.CoinSymbol,
				Amount:      decimal.NewFromInt(mission.CoinReward),
				Type:        models.WalletCreditMissionReward,
				Description: mission.Title,
				ReferenceID: mission.ID,
			})
			if err != nil {
				return err
			}
			result.CoinsAwarded = mission.CoinReward
			result.CoinBalance = entry.BalanceAfter
		}

		activity = newActivity(userID, models.ActivityMissionCompleted,
			fmt.Sprintf("Completed %s", mission.Title), "",
			map[string]any{
				"mission_id": mission.ID,
				"xp":         mission.XPReward,
				"coins":      mission.CoinReward,
			})
		return appendActivity(tx, activity)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyCompleted) {
			missionConflicts.Inc()
		}
		return nil, err
	}

	missionsCompleted.Inc()
	publishActivity(s.Broker, activity)
	if s.Broker != nil {
		s.Broker.Publish(Change{Table: "user_missions", Kind: ChangeUpdate, UserID: userID, RecordID: missionID})
		if result.CoinsAwarded > 0 {
			s.Broker.Publish(Change{Table: "user_wallets", Kind: ChangeUpdate, UserID: userID})
		}
	}
	s.emit(milestoneFor(profile, models.ActivityMissionCompleted, mission.Title, result.XPAwarded, now))

	log.Printf("✅ [Ledger] %s completed mission %s (+%d xp, +%d %s)",
		userID, mission.Slug, result.XPAwarded, result.CoinsAwarded, s.CoinSymbol)
	return result, nil
}

// AwardXP credits XP outside the mission flow (quiz passes, daily logins, ...).
func (s *LedgerService) AwardXP(ctx context.Context, userID string, amount int64, source models.XPSource, description, referenceID string) (*XPAward, error) {
	if amount <= 0 {
		return nil, validationError("xp amount must be positive")
	}
	if !source.Valid() {
		return nil, validationError(fmt.Sprintf("unknown xp source %q", source))
	}

	now := s.Now()
	var (
		award    *XPAward
		activity *models.ActivityEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		award, err = awardXP(tx, userID, amount, source, description, referenceID, now)
		if err != nil {
			return err
		}
		title := description
		if title == "" {
			title = fmt.Sprintf("Earned %d XP", amount)
		}
		activity = newActivity(userID, models.ActivityXPEarned, title, "",
			map[string]any{"xp": amount, "source": string(source)})
		return appendActivity(tx, activity)
	})
	if err != nil {
		return nil, err
	}

	publishActivity(s.Broker, activity)
	s.emit(milestoneFor(award.profile, string(source), description, amount, now))
	return award, nil
}

// MissionInput is the admin payload for the catalog.
type MissionInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MissionType string `json:"mission_type"`
	XPReward    int64  `json:"xp_reward"`
	CoinReward  int64  `json:"coin_reward"`
	EstMinutes  int    `json:"est_minutes"`
	IsActive    *bool  `json:"is_active"`
	OrderIndex  int    `json:"order_index"`
}

func (in MissionInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return validationError("title is required")
	}
	if in.XPReward < 0 || in.CoinReward < 0 {
		return validationError("rewards cannot be negative")
	}
	return nil
}

// CreateMission adds a catalog entry with a slug derived from its title.
func (s *LedgerService) CreateMission(ctx context.Context, in MissionInput) (*models.Mission, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	m := models.Mission{
		Slug:        slug.Make(in.Title),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		MissionType: in.MissionType,
		XPReward:    in.XPReward,
		CoinReward:  in.CoinReward,
		EstMinutes:  in.EstMinutes,
		IsActive:    in.IsActive == nil || *in.IsActive,
		OrderIndex:  in.OrderIndex,
	}
	if m.MissionType == "" {
		m.MissionType = "daily"
	}
	if err := s.DB.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, conflictError("a mission with this title already exists", m.Slug)
		}
		return nil, fmt.Errorf("failed to create mission: %w", err)
	}
	return &m, nil
}

// UpdateMission rewrites a catalog entry. Completed rows keep what they were paid.
func (s *LedgerService) UpdateMission(ctx context.Context, id string, in MissionInput) (*models.Mission, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var m models.Mission
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMissionNotFound
		}
		return nil, err
	}
	m.Title = strings.TrimSpace(in.Title)
	m.Slug = slug.Make(in.Title)
	m.Description = in.Description
	if in.MissionType != "" {
		m.MissionType = in.MissionType
	}
	m.XPReward = in.XPReward
	m.CoinReward = in.CoinReward
	m.EstMinutes = in.EstMinutes
	m.OrderIndex = in.OrderIndex
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
	if err := s.DB.WithContext(ctx).Save(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, conflictError("a mission with this title already exists", m.Slug)
		}
		return nil, fmt.Errorf("failed to update mission: %w", err)
	}
	return &m, nil
}

// ListMissions returns the catalog in display order.
func (s *LedgerService) ListMissions(ctx context.Context, includeInactive bool) ([]models.Mission, error) {
	q := s.DB.WithContext(ctx).Order("order_index ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var missions []models.Mission
	err := q.Find(&missions).Error
	return missions, err
}
