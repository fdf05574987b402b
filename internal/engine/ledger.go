// Package engine implements the ad-serving core: budget ledger,
// eligibility evaluation, event recording and click-to-conversion
// attribution. All state lives in one Ledger instance constructed at
// startup and passed by handle; there is no package-level state.
package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pulsefeed/ad-engine/internal/localtime"
	"github.com/pulsefeed/ad-engine/internal/metrics"
	"github.com/pulsefeed/ad-engine/internal/models"
	"github.com/pulsefeed/ad-engine/internal/storage"
)

// Costs holds the per-event serving costs. Conversions carry no
// direct cost in this model.
type Costs struct {
	PerImpression decimal.Decimal
	PerClick      decimal.Decimal
}

// DefaultCosts returns the reference serving costs: 0.01 per
// impression, 0.50 per click.
func DefaultCosts() Costs {
	return Costs{
		PerImpression: decimal.NewFromFloat(0.01),
		PerClick:      decimal.NewFromFloat(0.50),
	}
}

// accountState wraps an account with its own mutex. The lock
// serializes resets against concurrent budget reads for this account
// and is always acquired before any of the account's ad locks.
type accountState struct {
	mu   sync.Mutex
	acct models.AdAccount
}

// adState wraps an ad with its own mutex. The lock makes the reset
// pair (SpentToday, LastBudgetReset) and every spend/event update
// atomic per ad.
type adState struct {
	mu sync.Mutex
	ad models.Ad
}

// Ledger owns all account and ad state and applies daily budget
// resets. Reset checks happen lazily on the read/write paths that
// need current budget state; there is no background timer.
type Ledger struct {
	mu           sync.RWMutex // guards the maps and the adsByAccount index
	accounts     map[string]*accountState
	ads          map[string]*adState
	adsByAccount map[string][]string
	adOrder      []string // insertion order, breaks CreatedAt ties in feeds

	costs   Costs
	logger  *zap.Logger
	metrics *metrics.Metrics
	store   storage.Store // optional durable mirror, may be nil
	sink    EventSink     // optional analytics export, may be nil

	// now returns the current epoch ms. Overridable in tests.
	now func() int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCosts overrides the per-event serving costs.
func WithCosts(c Costs) Option {
	return func(l *Ledger) { l.costs = c }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithStore attaches a durable store mirrored best-effort on writes.
func WithStore(s storage.Store) Option {
	return func(l *Ledger) { l.store = s }
}

// WithNowFunc overrides the clock. For tests.
func WithNowFunc(now func() int64) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger constructs an empty ledger.
func NewLedger(logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		accounts:     make(map[string]*accountState),
		ads:          make(map[string]*adState),
		adsByAccount: make(map[string][]string),
		costs:        DefaultCosts(),
		logger:       logger,
		now:          func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger's current epoch ms.
func (l *Ledger) Now() int64 { return l.now() }

// lookupAccount returns the account state or nil.
func (l *Ledger) lookupAccount(id string) *accountState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[id]
}

// lookupAd returns the ad state or nil.
func (l *Ledger) lookupAd(id string) *adState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ads[id]
}

// accountAds returns the ad states owned by an account, in insertion
// order.
func (l *Ledger) accountAds(accountID string) []*adState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.adsByAccount[accountID]
	res := make([]*adState, 0, len(ids))
	for _, id := range ids {
		if st, ok := l.ads[id]; ok {
			res = append(res, st)
		}
	}
	return res
}

// IsResetDue reports whether an entity whose boundary was last
// advanced at lastReset is stale relative to the current local
// midnight in tz. The comparison is against the midnight boundary,
// not elapsed wall-clock time, so the first touch after local
// midnight triggers a reset no matter how long the process idled.
func (l *Ledger) IsResetDue(tz string, lastReset int64) (bool, error) {
	boundary, err := localtime.MidnightEpoch(tz, l.now())
	if err != nil {
		return false, err
	}
	return lastReset < boundary, nil
}

// ResetAccount advances the account's LastBudgetReset to the current
// midnight boundary and zeroes SpentToday on every ad the account
// owns, stamping each with the same boundary. Idempotent within a
// local day: a second call finds IsResetDue false and changes
// nothing. Returns the updated account.
func (l *Ledger) ResetAccount(accountID string) (*models.AdAccount, error) {
	st := l.lookupAccount(accountID)
	if st == nil {
		return nil, models.ErrAccountNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return l.resetAccountLocked(st)
}

// resetAccountLocked applies the reset with the account lock held.
// Each owned ad's (SpentToday, LastBudgetReset) pair is updated under
// that ad's lock, so no reader observes a half-applied reset for any
// single ad.
func (l *Ledger) resetAccountLocked(st *accountState) (*models.AdAccount, error) {
	boundary, err := localtime.MidnightEpoch(st.acct.Timezone, l.now())
	if err != nil {
		return nil, err
	}

	for _, ast := range l.accountAds(st.acct.ID) {
		ast.mu.Lock()
		ast.ad.SpentToday = decimal.Zero
		ast.ad.LastBudgetReset = boundary
		snap := ast.ad.Clone()
		ast.mu.Unlock()
		l.mirrorAd(snap)
	}

	st.acct.LastBudgetReset = boundary
	l.mirrorAccount(&st.acct)

	if l.metrics != nil {
		l.metrics.RecordBudgetReset(st.acct.ID)
	}
	l.logger.Debug("daily budget reset applied",
		zap.String("account_id", st.acct.ID),
		zap.Int64("boundary_ms", boundary),
	)

	acct := st.acct
	return &acct, nil
}

// maybeResetLocked applies a reset iff one is due, with the account
// lock held. Returns the account's timezone error, if any.
func (l *Ledger) maybeResetLocked(st *accountState) error {
	due, err := l.IsResetDue(st.acct.Timezone, st.acct.LastBudgetReset)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}
	_, err = l.resetAccountLocked(st)
	return err
}

// resetSweep lazily resets every account that is past its midnight
// boundary. Accounts with broken timezone data are logged and
// skipped; they fail closed later in eligibility.
func (l *Ledger) resetSweep() {
	l.mu.RLock()
	states := make([]*accountState, 0, len(l.accounts))
	for _, st := range l.accounts {
		states = append(states, st)
	}
	l.mu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		if err := l.maybeResetLocked(st); err != nil {
			l.logger.Warn("reset sweep skipped account",
				zap.String("account_id", st.acct.ID),
				zap.Error(err),
			)
		}
		st.mu.Unlock()
	}
}

// mirrorAccount writes the account through to the durable store,
// best-effort.
func (l *Ledger) mirrorAccount(a *models.AdAccount) {
	if l.store == nil {
		return
	}
	cp := *a
	if err := l.store.UpsertAccount(&cp); err != nil {
		l.logger.Error("failed to persist account", zap.Error(err), zap.String("account_id", a.ID))
	}
}

// mirrorAd writes an ad snapshot through to the durable store,
// best-effort. Callers pass a private copy taken under the ad lock,
// never a live ledger entry.
func (l *Ledger) mirrorAd(a *models.Ad) {
	if l.store == nil {
		return
	}
	if err := l.store.UpsertAd(a); err != nil {
		l.logger.Error("failed to persist ad", zap.Error(err), zap.String("ad_id", a.ID))
	}
}

// sortAdsByCreatedAtDesc orders ads newest-first, keeping input order
// for equal timestamps.
func sortAdsByCreatedAtDesc(ads []*models.Ad) {
	sort.SliceStable(ads, func(i, j int) bool {
		return ads[i].CreatedAt > ads[j].CreatedAt
	})
}
