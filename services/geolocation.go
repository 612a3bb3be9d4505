package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Geolocator resolves an IP address to an ISO country code.
type Geolocator interface {
	CountryForIP(ctx context.Context, ip string) (string, error)
}

// IPAPIGeolocator queries an ipapi.co compatible endpoint.
type IPAPIGeolocator struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewIPAPIGeolocator(baseURL string, timeout time.Duration) *IPAPIGeolocator {
	return &IPAPIGeolocator{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (g *IPAPIGeolocator) CountryForIP(ctx context.Context, ip string) (string, error) {
	if ip == "" || ip == "unknown" {
		return "", errors.New("no client ip to look up")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", g.BaseURL, ip), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("geolocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geolocation returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		CountryCode string `json:"country_code"`
		Error       bool   `json:"error"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode geolocation response: %w", err)
	}
	if payload.Error {
		return "", fmt.Errorf("geolocation error: %s", payload.Reason)
	}
	return payload.CountryCode, nil
}
