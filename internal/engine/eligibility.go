package engine

import (
	"github.com/pulsefeed/ad-engine/internal/models"
	"github.com/pulsefeed/ad-engine/internal/targeting"
)

// ShouldShow reports whether the ad may be served right now. Checks
// run in order and short-circuit on the first failure: active flag,
// schedule window, owning account (fails closed when missing), lazy
// budget reset, then the strict spent-today gate.
//
// The budget gate is spentToday < dailyBudget. Spend is checked
// before the event that causes it, so the last allowed event may push
// spentToday one event past dailyBudget; serving stops on the next
// evaluation. That one-event overshoot is the contract, not a defect.
func (l *Ledger) ShouldShow(adID string) (bool, error) {
	st := l.lookupAd(adID)
	if st == nil {
		return false, models.ErrAdNotFound
	}
	return l.shouldShowState(st), nil
}

func (l *Ledger) shouldShowState(st *adState) bool {
	now := l.now()

	st.mu.Lock()
	active := st.ad.IsActive
	start := st.ad.ScheduledStart
	end := st.ad.ScheduledEnd
	accountID := st.ad.AdAccountID
	adID := st.ad.ID
	st.mu.Unlock()

	if !active {
		l.rejectServe(adID, "inactive")
		return false
	}
	if start != 0 && now < start {
		l.rejectServe(adID, "not_started")
		return false
	}
	if end != 0 && now > end {
		l.rejectServe(adID, "ended")
		return false
	}

	// An ad whose account cannot be found is never shown.
	acct := l.lookupAccount(accountID)
	if acct == nil {
		l.rejectServe(adID, "account_missing")
		return false
	}

	acct.mu.Lock()
	err := l.maybeResetLocked(acct)
	acct.mu.Unlock()
	if err != nil {
		// Broken timezone data fails closed.
		l.rejectServe(adID, "timezone")
		return false
	}

	st.mu.Lock()
	exhausted := st.ad.SpentToday.GreaterThanOrEqual(st.ad.DailyBudget)
	st.mu.Unlock()
	if exhausted {
		l.rejectServe(adID, "budget_exhausted")
		return false
	}

	return true
}

func (l *Ledger) rejectServe(adID, reason string) {
	if l.metrics != nil {
		l.metrics.RecordServeRejection(reason)
	}
}

// ListEligibleAds composes the set of ads servable to a viewer: a
// lazy reset sweep over all accounts, then a filter by ShouldShow and
// by location/tag targeting, sorted newest-first by CreatedAt with
// ties kept in creation order.
func (l *Ledger) ListEligibleAds(viewer *models.ViewerContext) []*models.Ad {
	l.resetSweep()

	l.mu.RLock()
	order := append([]string(nil), l.adOrder...)
	l.mu.RUnlock()

	var res []*models.Ad
	for _, id := range order {
		st := l.lookupAd(id)
		if st == nil {
			continue
		}
		if !l.shouldShowState(st) {
			continue
		}

		st.mu.Lock()
		ad := st.ad.Clone()
		st.mu.Unlock()

		if !targeting.Matches(ad, viewer) {
			l.rejectServe(ad.ID, "targeting")
			continue
		}
		res = append(res, ad)
	}

	sortAdsByCreatedAtDesc(res)
	return res
}
