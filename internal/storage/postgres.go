package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pulsefeed/ad-engine/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS ad_accounts (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    timezone          TEXT NOT NULL,
    daily_budget      TEXT NOT NULL,
    currency          TEXT NOT NULL,
    last_budget_reset BIGINT NOT NULL,
    created_at        BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS ads (
    id                TEXT PRIMARY KEY,
    ad_account_id     TEXT NOT NULL,
    advertiser_handle TEXT NOT NULL,
    title             TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    media_url         TEXT NOT NULL,
    media_type        TEXT NOT NULL,
    call_to_action    TEXT NOT NULL DEFAULT '',
    link_url          TEXT NOT NULL DEFAULT '',
    scheduled_start   BIGINT NOT NULL DEFAULT 0,
    scheduled_end     BIGINT NOT NULL DEFAULT 0,
    created_at        BIGINT NOT NULL,
    daily_budget      TEXT NOT NULL,
    spent_today       TEXT NOT NULL,
    last_budget_reset BIGINT NOT NULL,
    impressions       BIGINT NOT NULL DEFAULT 0,
    clicks            BIGINT NOT NULL DEFAULT 0,
    conversions       BIGINT NOT NULL DEFAULT 0,
    spend             TEXT NOT NULL,
    target_locations  TEXT[] NOT NULL DEFAULT '{}',
    target_tags       TEXT[] NOT NULL DEFAULT '{}',
    is_active         BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS ad_events (
    seq       BIGSERIAL PRIMARY KEY,
    ad_id     TEXT NOT NULL,
    kind      TEXT NOT NULL,
    at_ms     BIGINT NOT NULL,
    viewer_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ad_events_ad_kind_idx ON ad_events (ad_id, kind, seq);
`

// PostgresStore implements Store on a pgx connection pool. Monetary
// amounts are stored as their exact decimal string representation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore bootstraps the schema and returns the store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) UpsertAccount(a *models.AdAccount) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_accounts (id, name, timezone, daily_budget, currency, last_budget_reset, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			daily_budget = EXCLUDED.daily_budget,
			currency = EXCLUDED.currency,
			last_budget_reset = EXCLUDED.last_budget_reset
	`, a.ID, a.Name, a.Timezone, a.DailyBudget.String(), a.Currency, a.LastBudgetReset, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertAd(a *models.Ad) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ads (
			id, ad_account_id, advertiser_handle, title, description,
			media_url, media_type, call_to_action, link_url,
			scheduled_start, scheduled_end, created_at,
			daily_budget, spent_today, last_budget_reset,
			impressions, clicks, conversions, spend,
			target_locations, target_tags, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			media_url = EXCLUDED.media_url,
			media_type = EXCLUDED.media_type,
			call_to_action = EXCLUDED.call_to_action,
			link_url = EXCLUDED.link_url,
			scheduled_start = EXCLUDED.scheduled_start,
			scheduled_end = EXCLUDED.scheduled_end,
			daily_budget = EXCLUDED.daily_budget,
			spent_today = EXCLUDED.spent_today,
			last_budget_reset = EXCLUDED.last_budget_reset,
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			conversions = EXCLUDED.conversions,
			spend = EXCLUDED.spend,
			target_locations = EXCLUDED.target_locations,
			target_tags = EXCLUDED.target_tags,
			is_active = EXCLUDED.is_active
	`,
		a.ID, a.AdAccountID, a.AdvertiserHandle, a.Title, a.Description,
		a.MediaURL, string(a.MediaType), a.CallToAction, a.LinkURL,
		a.ScheduledStart, a.ScheduledEnd, a.CreatedAt,
		a.DailyBudget.String(), a.SpentToday.String(), a.LastBudgetReset,
		a.Stats.Impressions, a.Stats.Clicks, a.Stats.Conversions, a.Stats.Spend.String(),
		a.TargetLocations, a.TargetTags, a.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ad: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(adID, kind string, atMs int64, viewerID string) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_events (ad_id, kind, at_ms, viewer_id) VALUES ($1, $2, $3, $4)
	`, adID, kind, atMs, viewerID)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadAccounts() ([]*models.AdAccount, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, timezone, daily_budget, currency, last_budget_reset, created_at
		FROM ad_accounts
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.AdAccount
	for rows.Next() {
		var a models.AdAccount
		var budget string
		if err := rows.Scan(&a.ID, &a.Name, &a.Timezone, &budget, &a.Currency, &a.LastBudgetReset, &a.CreatedAt); err != nil {
			return nil, err
		}
		if a.DailyBudget, err = decimal.NewFromString(budget); err != nil {
			return nil, fmt.Errorf("bad daily_budget for account %s: %w", a.ID, err)
		}
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) LoadAds() ([]*models.Ad, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `
		SELECT id, ad_account_id, advertiser_handle, title, description,
		       media_url, media_type, call_to_action, link_url,
		       scheduled_start, scheduled_end, created_at,
		       daily_budget, spent_today, last_budget_reset,
		       impressions, clicks, conversions, spend,
		       target_locations, target_tags, is_active
		FROM ads ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load ads: %w", err)
	}
	defer rows.Close()

	var ads []*models.Ad
	for rows.Next() {
		var a models.Ad
		var mediaType, dailyBudget, spentToday, spend string
		if err := rows.Scan(
			&a.ID, &a.AdAccountID, &a.AdvertiserHandle, &a.Title, &a.Description,
			&a.MediaURL, &mediaType, &a.CallToAction, &a.LinkURL,
			&a.ScheduledStart, &a.ScheduledEnd, &a.CreatedAt,
			&dailyBudget, &spentToday, &a.LastBudgetReset,
			&a.Stats.Impressions, &a.Stats.Clicks, &a.Stats.Conversions, &spend,
			&a.TargetLocations, &a.TargetTags, &a.IsActive,
		); err != nil {
			return nil, err
		}
		a.MediaType = models.MediaType(mediaType)
		if a.DailyBudget, err = decimal.NewFromString(dailyBudget); err != nil {
			return nil, fmt.Errorf("bad daily_budget for ad %s: %w", a.ID, err)
		}
		if a.SpentToday, err = decimal.NewFromString(spentToday); err != nil {
			return nil, fmt.Errorf("bad spent_today for ad %s: %w", a.ID, err)
		}
		if a.Stats.Spend, err = decimal.NewFromString(spend); err != nil {
			return nil, fmt.Errorf("bad spend for ad %s: %w", a.ID, err)
		}
		ads = append(ads, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range ads {
		if err := s.loadEvents(ctx, a); err != nil {
			return nil, err
		}
	}
	return ads, nil
}

// loadEvents rehydrates the ad's per-kind timestamp sequences in
// recording order.
func (s *PostgresStore) loadEvents(ctx context.Context, a *models.Ad) error {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, at_ms FROM ad_events WHERE ad_id = $1 ORDER BY seq
	`, a.ID)
	if err != nil {
		return fmt.Errorf("failed to load events for ad %s: %w", a.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var atMs int64
		if err := rows.Scan(&kind, &atMs); err != nil {
			return err
		}
		switch kind {
		case "impression":
			a.Events.Impressions = append(a.Events.Impressions, atMs)
		case "click":
			a.Events.Clicks = append(a.Events.Clicks, atMs)
		case "conversion":
			a.Events.Conversions = append(a.Events.Conversions, atMs)
		}
	}
	return rows.Err()
}
