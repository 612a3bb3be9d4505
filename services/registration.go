package services

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"blackpass-api/models"

	"gorm.io/gorm"
)

// NewIdentity is the credential set handed to the identity provider.
type NewIdentity struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// IdentityProvider owns credentials and sessions. Profiles are keyed by the
// subject it returns.
type IdentityProvider interface {
	CreateUser(ctx context.Context, in NewIdentity) (string, error)
	DeleteUser(ctx context.Context, subject string) error
	VerifySession(ctx context.Context, token string) (string, error)
}

// RegistrationForm is the form step payload.
type RegistrationForm struct {
	Email           string             `json:"email"`
	FullName        string             `json:"full_name"`
	Phone           string             `json:"phone"`
	Password        string             `json:"password"`
	ConfirmPassword string             `json:"confirm_password"`
	Tier            models.AccountTier `json:"account_tier"`
	ReferralCode    string             `json:"referral_code"`
}

// RegistrationResult carries what the payment step needs next.
type RegistrationResult struct {
	Profile       *models.Profile        `json:"profile"`
	Pricing       *models.CountryPricing `json:"pricing"`
	Fee           string                 `json:"fee"`
	PasswordLabel string                 `json:"password_strength"`
	Next          OnboardingStep         `json:"next_step"`
}

type RegistrationService struct {
	DB         *gorm.DB
	Identity   IdentityProvider
	Pricing    *PricingService
	Broker     *Broker
	Milestones MilestoneSink
}

func NewRegistrationService(db *gorm.DB, identity IdentityProvider, pricing *PricingService, broker *Broker, milestones MilestoneSink) *RegistrationService {
	return &RegistrationService{
		DB:         db,
		Identity:   identity,
		Pricing:    pricing,
		Broker:     broker,
		Milestones: milestones,
	}
}

func (f *RegistrationForm) validate() error {
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.FullName = strings.TrimSpace(f.FullName)
	f.Phone = strings.TrimSpace(f.Phone)

	switch {
	case f.Email == "":
		return validationError("email is required")
	case f.FullName == "":
		return validationError("full name is required")
	case f.Password == "":
		return validationError("password is required")
	case f.ConfirmPassword == "":
		return validationError("password confirmation is required")
	}
	if _, err := mail.ParseAddress(f.Email); err != nil {
		return validationError("email address is invalid")
	}
	if !f.Tier.Valid() {
		return validationError("account tier must be student or investor")
	}
	return CheckPassword(f.Password, f.ConfirmPassword)
}

// Register creates the identity and then the profile carrying the detected
// country and chosen tier. The account exists unpaid until a payment is
// verified. The country milestone is best effort.
func (s *RegistrationService) Register(ctx context.Context, form RegistrationForm, detection CountryDetection) (*RegistrationResult, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}

	flow := NewOnboarding()
	if err := flow.Start(detection); err != nil {
		return nil, err
	}
	if err := flow.SelectPath(form.Tier); err != nil {
		return nil, err
	}

	pricing, err := s.Pricing.Resolve(ctx, detection.CountryCode)
	if err != nil {
		return nil, externalError("pricing unavailable", err, true)
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("email = ?", form.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, conflictError("an account with this email already exists", "")
	}

	subject, err := s.Identity.CreateUser(ctx, NewIdentity{
		Email:    form.Email,
		Password: form.Password,
		FullName: form.FullName,
		Phone:    form.Phone,
	})
	if err != nil {
		return nil, externalError("could not create account, please try again", err, true)
	}

	countryCode := strings.ToUpper(detection.CountryCode)
	if countryCode == "" {
		countryCode = models.DefaultCountryCode
	}
	profile := models.Profile{
		ID:                 subject,
		Email:              form.Email,
		FullName:           form.FullName,
		Phone:              form.Phone,
		ReferralCode:       strings.TrimSpace(form.ReferralCode),
		CountryCode:        countryCode,
		CountryName:        pricing.CountryName,
		DetectedRegion:     pricing.Region,
		CurrencyPreference: pricing.Currency,
		AccountTier:        form.Tier,
		KYCStatus:          models.KYCNotStarted,
	}
	activity := newActivity(subject, models.ActivityRegistration, "Welcome to BlackPass", "",
		map[string]any{
			"account_tier": string(form.Tier),
			"country_code": countryCode,
		})

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		return appendActivity(tx, activity)
	})
	if err != nil {
		if delErr := s.Identity.DeleteUser(ctx, subject); delErr != nil {
			log.Printf("❌ [Registration] orphaned identity %s after profile failure: %v", subject, delErr)
		}
		if isUniqueViolation(err) {
			return nil, conflictError("an account with this email already exists", "")
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	if err := flow.FormSubmitted(&profile); err != nil {
		return nil, err
	}
	publishActivity(s.Broker, activity)
	if s.Milestones != nil {
		m := milestoneFor(&profile, models.ActivityRegistration,
			fmt.Sprintf("New %s joined from %s", form.Tier, pricing.CountryName), 0, profile.CreatedAt)
		if !s.Milestones.Enqueue(m) {
			log.Printf("⚠️ [Registration] registration milestone for %s dropped", countryCode)
		}
	}

	log.Printf("🆕 [Registration] %s registered as %s from %s (%s)", subject, form.Tier, countryCode, detection.Source)
	return &RegistrationResult{
		Profile:       &profile,
		Pricing:       pricing,
		Fee:           pricing.Fee(form.Tier).StringFixed(2),
		PasswordLabel: PasswordLabel(ScorePassword(form.Password)),
		Next:          flow.Step,
	}, nil
}

// GetProfile loads a profile by identity subject.
func (s *RegistrationService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return loadProfile(s.DB.WithContext(ctx), userID)
}
