package services

import "blackpass-api/models"

// OnboardingStep is a stage of the sign-up flow.
type OnboardingStep string

const (
	StepIntro         OnboardingStep = "intro"
	StepPathSelection OnboardingStep = "path-selection"
	StepForm          OnboardingStep = "form"
	StepPayment       OnboardingStep = "payment"
	StepComplete      OnboardingStep = "complete"
)

var nextStep = map[OnboardingStep]OnboardingStep{
	StepIntro:         StepPathSelection,
	StepPathSelection: StepForm,
	StepForm:          StepPayment,
	StepPayment:       StepComplete,
}

// Onboarding walks one sign-up attempt forward. It is not persisted: a new
// attempt starts at intro, and a registered user's position is rebuilt from
// the profile with ResumeOnboarding.
type Onboarding struct {
	Step    OnboardingStep             `json:"step"`
	Tier    models.AccountTier         `json:"tier,omitempty"`
	Country *CountryDetection          `json:"country,omitempty"`
	Profile *models.Profile            `json:"profile,omitempty"`
	Payment *models.PaymentTransaction `json:"payment,omitempty"`
}

func NewOnboarding() *Onboarding {
	return &Onboarding{Step: StepIntro}
}

func (o *Onboarding) advance(from OnboardingStep) error {
	if o.Step != from {
		return ErrInvalidTransition
	}
	o.Step = nextStep[from]
	return nil
}

// Start leaves the intro once the visitor's country is known.
func (o *Onboarding) Start(country CountryDetection) error {
	if err := o.advance(StepIntro); err != nil {
		return err
	}
	o.Country = &country
	return nil
}

// SelectPath records the chosen tier and moves to the form.
func (o *Onboarding) SelectPath(tier models.AccountTier) error {
	if !tier.Valid() {
		return validationError("account tier must be student or investor")
	}
	if err := o.advance(StepPathSelection); err != nil {
		return err
	}
	o.Tier = tier
	return nil
}

// FormSubmitted moves to payment once the account exists.
func (o *Onboarding) FormSubmitted(profile *models.Profile) error {
	if err := o.advance(StepForm); err != nil {
		return err
	}
	o.Profile = profile
	return nil
}

// PaymentSubmitted finishes the flow.
func (o *Onboarding) PaymentSubmitted(tx *models.PaymentTransaction) error {
	if err := o.advance(StepPayment); err != nil {
		return err
	}
	o.Payment = tx
	return nil
}

// ResumeOnboarding replays the flow for a registered user. The account exists,
// so the flow stands at payment until a registration payment is submitted
// (awaiting review or completed) or the profile is already verified.
func ResumeOnboarding(profile *models.Profile, payment *models.PaymentTransaction) *Onboarding {
	o := NewOnboarding()
	tier := profile.AccountTier
	if !tier.Valid() {
		tier = models.TierStudent
	}
	_ = o.Start(CountryDetection{CountryCode: profile.CountryCode, Source: DetectionProfile})
	_ = o.SelectPath(tier)
	_ = o.FormSubmitted(profile)

	submitted := payment != nil && (payment.Status.Unresolved() || payment.Status == models.PaymentCompleted)
	if submitted || profile.PaymentVerified {
		_ = o.PaymentSubmitted(payment)
	}
	return o
}
