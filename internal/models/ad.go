package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// MediaType identifies the creative media kind.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// AdStats holds lifetime aggregate counters for an ad. All counters
// are monotonically non-decreasing; Spend is never reset by the daily
// budget reset (only the ad's SpentToday is).
type AdStats struct {
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Spend       decimal.Decimal `json:"spend"`
}

// AdEvents holds the raw recorded event timestamps for an ad, one
// append-only epoch-ms sequence per event kind. Recording order is
// preserved per kind.
type AdEvents struct {
	Impressions []int64 `json:"impressions"`
	Clicks      []int64 `json:"clicks"`
	Conversions []int64 `json:"conversions"`
}

// Ad is a single creative with its own daily budget, schedule and
// targeting. Many ads belong to one AdAccount.
type Ad struct {
	ID               string `json:"id"`
	AdAccountID      string `json:"ad_account_id"`
	AdvertiserHandle string `json:"advertiser_handle"`

	// Creative fields
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	MediaURL     string    `json:"media_url"`
	MediaType    MediaType `json:"media_type"`
	CallToAction string    `json:"call_to_action,omitempty"`
	LinkURL      string    `json:"link_url,omitempty"`

	// Scheduling window, epoch ms, inclusive on both ends. Zero means
	// unbounded on that side.
	ScheduledStart int64 `json:"scheduled_start,omitempty"`
	ScheduledEnd   int64 `json:"scheduled_end,omitempty"`

	CreatedAt int64 `json:"created_at"`

	// Budget state. SpentToday resets to zero at local midnight;
	// LastBudgetReset is tracked per ad, independently of the account.
	DailyBudget     decimal.Decimal `json:"daily_budget"`
	SpentToday      decimal.Decimal `json:"spent_today"`
	LastBudgetReset int64           `json:"last_budget_reset"`

	Stats  AdStats  `json:"stats"`
	Events AdEvents `json:"events"`

	// Targeting. Locations are OR-matched case-insensitively as
	// substrings, tags as case-insensitive exact matches. Empty sets
	// match any viewer.
	TargetLocations []string `json:"target_locations,omitempty"`
	TargetTags      []string `json:"target_tags,omitempty"`

	IsActive bool `json:"is_active"`
}

// AdOptions carries the optional fields accepted at ad creation.
type AdOptions struct {
	Description     string   `json:"description,omitempty"`
	CallToAction    string   `json:"call_to_action,omitempty"`
	LinkURL         string   `json:"link_url,omitempty"`
	ScheduledStart  int64    `json:"scheduled_start,omitempty"`
	ScheduledEnd    int64    `json:"scheduled_end,omitempty"`
	TargetLocations []string `json:"target_locations,omitempty"`
	TargetTags      []string `json:"target_tags,omitempty"`
}

// Validate checks required ad fields.
func (a *Ad) Validate() error {
	if a.AdAccountID == "" {
		return errors.New("ad_account_id is required")
	}
	if a.AdvertiserHandle == "" {
		return errors.New("advertiser_handle is required")
	}
	if a.Title == "" {
		return errors.New("title is required")
	}
	if a.MediaURL == "" {
		return errors.New("media_url is required")
	}
	if a.MediaType != MediaTypeImage && a.MediaType != MediaTypeVideo {
		return errors.New("media_type must be image or video")
	}
	if a.DailyBudget.IsNegative() {
		return errors.New("daily_budget must not be negative")
	}
	if a.ScheduledStart != 0 && a.ScheduledEnd != 0 && a.ScheduledEnd < a.ScheduledStart {
		return errors.New("scheduled_end must not precede scheduled_start")
	}
	return nil
}

// Clone returns a deep copy of the ad, including its event sequences,
// safe to hand to callers while the original keeps mutating.
func (a *Ad) Clone() *Ad {
	cp := *a
	cp.Events.Impressions = append([]int64(nil), a.Events.Impressions...)
	cp.Events.Clicks = append([]int64(nil), a.Events.Clicks...)
	cp.Events.Conversions = append([]int64(nil), a.Events.Conversions...)
	cp.TargetLocations = append([]string(nil), a.TargetLocations...)
	cp.TargetTags = append([]string(nil), a.TargetTags...)
	return &cp
}
