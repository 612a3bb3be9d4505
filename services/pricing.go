package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"blackpass-api/models"

	"gorm.io/gorm"
)

const (
	DetectionHeader  = "header"
	DetectionLookup  = "lookup"
	DetectionDefault = "default"
	DetectionProfile = "profile"
)

// CountryDetection is the outcome of classifying a visitor.
type CountryDetection struct {
	DetectedIP  string `json:"detected_ip"`
	CountryCode string `json:"country_code"`
	Source      string `json:"source"`
}

// HeaderGetter reads a request header by name.
type HeaderGetter func(key string) string

type PricingService struct {
	DB  *gorm.DB
	Geo Geolocator
}

func NewPricingService(db *gorm.DB, geo Geolocator) *PricingService {
	return &PricingService{DB: db, Geo: geo}
}

// ClientIP picks the caller address the way the edge proxies report it.
func ClientIP(header HeaderGetter, remoteAddr string) string {
	if fwd := header("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(header("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "unknown"
}

func knownCode(code string) bool {
	return code != "" && !strings.EqualFold(code, "XX")
}

// DetectCountry classifies the caller. Edge headers win; otherwise the
// geolocation service is asked. It never fails: any lookup problem yields
// the DEFAULT sentinel.
func (s *PricingService) DetectCountry(ctx context.Context, header HeaderGetter, remoteAddr string) CountryDetection {
	ip := ClientIP(header, remoteAddr)
	det := CountryDetection{DetectedIP: ip}

	for _, h := range []string{"CF-IPCountry", "X-Vercel-IP-Country"} {
		if code := strings.TrimSpace(header(h)); knownCode(code) {
			det.CountryCode = strings.ToUpper(code)
			det.Source = DetectionHeader
			return det
		}
	}

	if s.Geo != nil {
		code, err := s.Geo.CountryForIP(ctx, ip)
		if err != nil {
			log.Printf("[Pricing] geolocation failed for %s: %v", ip, err)
			geoFallbacks.WithLabelValues("lookup_failed").Inc()
		} else if knownCode(code) {
			det.CountryCode = strings.ToUpper(code)
			det.Source = DetectionLookup
			return det
		}
	}

	geoFallbacks.WithLabelValues("default").Inc()
	det.CountryCode = models.DefaultCountryCode
	det.Source = DetectionDefault
	return det
}

// Resolve returns the pricing row for code, or the DEFAULT row when the code
// has no exact match. Only a missing DEFAULT row or a store failure errors.
func (s *PricingService) Resolve(ctx context.Context, code string) (*models.CountryPricing, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = models.DefaultCountryCode
	}

	var pricing models.CountryPricing
	err := s.DB.WithContext(ctx).Where("country_code = ?", code).First(&pricing).Error
	if err == nil {
		return &pricing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load pricing for %s: %w", code, err)
	}

	if err := s.DB.WithContext(ctx).Where("country_code = ?", models.DefaultCountryCode).First(&pricing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("default pricing row is missing")
		}
		return nil, fmt.Errorf("failed to load default pricing: %w", err)
	}
	return &pricing, nil
}

// DetectAndResolve combines DetectCountry and Resolve for the intro step.
func (s *PricingService) DetectAndResolve(ctx context.Context, header HeaderGetter, remoteAddr string) (CountryDetection, *models.CountryPricing, error) {
	det := s.DetectCountry(ctx, header, remoteAddr)
	pricing, err := s.Resolve(ctx, det.CountryCode)
	return det, pricing, err
}

// ListPricing returns every pricing row ordered by country code.
func (s *PricingService) ListPricing(ctx context.Context) ([]models.CountryPricing, error) {
	var rows []models.CountryPricing
	if err := s.DB.WithContext(ctx).Order("country_code").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPlans returns the active premium plans in display order.
func (s *PricingService) ListPlans(ctx context.Context) ([]models.PremiumPlan, error) {
	var plans []models.PremiumPlan
	err := s.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("order_index ASC").
		Find(&plans).Error
	return plans, err
}
