package engine

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pulsefeed/ad-engine/internal/localtime"
	"github.com/pulsefeed/ad-engine/internal/models"
)

// CreateAdAccount registers a new account. LastBudgetReset is stamped
// with the current midnight boundary in the account's timezone, so
// the boundary invariant holds from birth.
func (l *Ledger) CreateAdAccount(name, timezone string, dailyBudget decimal.Decimal, currency string) (*models.AdAccount, error) {
	now := l.now()
	boundary, err := localtime.MidnightEpoch(timezone, now)
	if err != nil {
		return nil, err
	}

	acct := models.AdAccount{
		ID:              "ad-account-" + uuid.New().String(),
		Name:            name,
		Timezone:        timezone,
		DailyBudget:     dailyBudget,
		Currency:        currency,
		LastBudgetReset: boundary,
		CreatedAt:       now,
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.accounts[acct.ID] = &accountState{acct: acct}
	l.mu.Unlock()

	l.mirrorAccount(&acct)
	l.logger.Info("ad account created",
		zap.String("account_id", acct.ID),
		zap.String("timezone", timezone),
		zap.String("daily_budget", dailyBudget.String()),
	)

	cp := acct
	return &cp, nil
}

// ListAccounts returns copies of all accounts, newest first.
func (l *Ledger) ListAccounts() []*models.AdAccount {
	l.mu.RLock()
	states := make([]*accountState, 0, len(l.accounts))
	for _, st := range l.accounts {
		states = append(states, st)
	}
	l.mu.RUnlock()

	res := make([]*models.AdAccount, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		cp := st.acct
		st.mu.Unlock()
		res = append(res, &cp)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt > res[j].CreatedAt
	})
	return res
}

// GetAdAccount returns a copy of the account or ErrAccountNotFound.
func (l *Ledger) GetAdAccount(id string) (*models.AdAccount, error) {
	st := l.lookupAccount(id)
	if st == nil {
		return nil, models.ErrAccountNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := st.acct
	return &cp, nil
}

// CreateAd registers a new ad under an existing account. The ad
// starts active with zero stats, zero events and SpentToday zero; its
// LastBudgetReset is the current midnight boundary in tz.
func (l *Ledger) CreateAd(adAccountID, advertiserHandle, title, mediaURL string, mediaType models.MediaType, dailyBudget decimal.Decimal, tz string, opts *models.AdOptions) (*models.Ad, error) {
	if l.lookupAccount(adAccountID) == nil {
		return nil, models.ErrAccountNotFound
	}

	now := l.now()
	boundary, err := localtime.MidnightEpoch(tz, now)
	if err != nil {
		return nil, err
	}

	ad := models.Ad{
		ID:               "ad-" + uuid.New().String(),
		AdAccountID:      adAccountID,
		AdvertiserHandle: advertiserHandle,
		Title:            title,
		MediaURL:         mediaURL,
		MediaType:        mediaType,
		CreatedAt:        now,
		DailyBudget:      dailyBudget,
		SpentToday:       decimal.Zero,
		LastBudgetReset:  boundary,
		Stats:            models.AdStats{Spend: decimal.Zero},
		IsActive:         true,
	}
	if opts != nil {
		ad.Description = opts.Description
		ad.CallToAction = opts.CallToAction
		ad.LinkURL = opts.LinkURL
		ad.ScheduledStart = opts.ScheduledStart
		ad.ScheduledEnd = opts.ScheduledEnd
		ad.TargetLocations = append([]string(nil), opts.TargetLocations...)
		ad.TargetTags = append([]string(nil), opts.TargetTags...)
	}
	if err := ad.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.ads[ad.ID] = &adState{ad: ad}
	l.adsByAccount[adAccountID] = append(l.adsByAccount[adAccountID], ad.ID)
	l.adOrder = append(l.adOrder, ad.ID)
	l.mu.Unlock()

	l.mirrorAd(ad.Clone())
	l.logger.Info("ad created",
		zap.String("ad_id", ad.ID),
		zap.String("account_id", adAccountID),
		zap.String("handle", advertiserHandle),
	)

	return ad.Clone(), nil
}

// GetAd returns a copy of the ad or ErrAdNotFound.
func (l *Ledger) GetAd(id string) (*models.Ad, error) {
	st := l.lookupAd(id)
	if st == nil {
		return nil, models.ErrAdNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ad.Clone(), nil
}

// RestoreAccount loads a previously persisted account into the
// ledger, keeping its identity and reset boundary. Used at startup
// when a durable store is configured. A known ID is replaced in
// place, keeping the existing entity lock; the ledger map lock is
// released first so the lock order stays account-before-ledger.
func (l *Ledger) RestoreAccount(acct *models.AdAccount) {
	cp := *acct
	l.mu.Lock()
	if st, ok := l.accounts[cp.ID]; ok {
		l.mu.Unlock()
		st.mu.Lock()
		st.acct = cp
		st.mu.Unlock()
		return
	}
	l.accounts[cp.ID] = &accountState{acct: cp}
	l.mu.Unlock()
}

// RestoreAd loads a previously persisted ad into the ledger. A known
// ID replaces the existing entry's state in place; the account and
// order indexes only ever carry one entry per ad.
func (l *Ledger) RestoreAd(ad *models.Ad) {
	cp := ad.Clone()
	l.mu.Lock()
	if st, ok := l.ads[cp.ID]; ok {
		l.mu.Unlock()
		st.mu.Lock()
		st.ad = *cp
		st.mu.Unlock()
		return
	}
	l.ads[cp.ID] = &adState{ad: *cp}
	l.adsByAccount[cp.AdAccountID] = append(l.adsByAccount[cp.AdAccountID], cp.ID)
	l.adOrder = append(l.adOrder, cp.ID)
	l.mu.Unlock()
}
