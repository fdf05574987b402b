package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// AdAccount is the billing entity that owns ads. Budget resets happen
// at local midnight in the account's timezone.
type AdAccount struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Timezone    string          `json:"timezone"` // IANA identifier, e.g. "Europe/Dublin"
	DailyBudget decimal.Decimal `json:"daily_budget"`
	Currency    string          `json:"currency"` // ISO 4217 code

	// LastBudgetReset is the epoch-ms instant of the midnight boundary
	// last applied. It is always the value of some local midnight in
	// Timezone, never an arbitrary timestamp.
	LastBudgetReset int64 `json:"last_budget_reset"`
	CreatedAt       int64 `json:"created_at"`
}

// Validate checks required account fields.
func (a *AdAccount) Validate() error {
	if a.Name == "" {
		return errors.New("name is required")
	}
	if a.Timezone == "" {
		return errors.New("timezone is required")
	}
	if a.Currency == "" {
		return errors.New("currency is required")
	}
	if a.DailyBudget.IsNegative() {
		return errors.New("daily_budget must not be negative")
	}
	return nil
}
