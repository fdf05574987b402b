// Package storage mirrors ledger state into a durable store. The
// engine stays authoritative in memory; the store is an optional
// write-through journal used to survive restarts, not a transactional
// source of truth.
package storage

import "github.com/pulsefeed/ad-engine/internal/models"

// Store persists accounts, ads and raw events. Implementations must
// be safe for concurrent use. Errors are reported to the caller, who
// logs and continues; the serving path never fails on store errors.
type Store interface {
	UpsertAccount(acct *models.AdAccount) error
	UpsertAd(ad *models.Ad) error
	AppendEvent(adID, kind string, atMs int64, viewerID string) error

	// LoadAccounts and LoadAds rehydrate state at startup. Loaded ads
	// include their recorded event sequences in recording order.
	LoadAccounts() ([]*models.AdAccount, error)
	LoadAds() ([]*models.Ad, error)
}
