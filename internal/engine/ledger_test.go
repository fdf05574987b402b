package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsefeed/ad-engine/internal/localtime"
	"github.com/pulsefeed/ad-engine/internal/models"
)

// testClock is an epoch-ms clock the tests move by hand.
type testClock struct {
	ms int64
}

func (c *testClock) Now() int64 { return atomic.LoadInt64(&c.ms) }
func (c *testClock) Set(ms int64) { atomic.StoreInt64(&c.ms, ms) }
func (c *testClock) Advance(d time.Duration) { atomic.AddInt64(&c.ms, d.Milliseconds()) }

func msAt(y int, mo time.Month, d, h, min int) int64 {
	return time.Date(y, mo, d, h, min, 0, 0, time.UTC).UnixMilli()
}

func newTestLedger(startMs int64, opts ...Option) (*Ledger, *testClock) {
	clk := &testClock{ms: startMs}
	opts = append(opts, WithNowFunc(clk.Now))
	return NewLedger(zap.NewNop(), opts...), clk
}

func mustCreateAccount(t *testing.T, l *Ledger, tz string) *models.AdAccount {
	t.Helper()
	acct, err := l.CreateAdAccount("Acme", tz, decimal.NewFromInt(100), "USD")
	require.NoError(t, err)
	return acct
}

func mustCreateAd(t *testing.T, l *Ledger, accountID, tz string, budget float64, opts *models.AdOptions) *models.Ad {
	t.Helper()
	ad, err := l.CreateAd(accountID, "acme", "Summer Sale", "https://cdn.example.com/a.jpg",
		models.MediaTypeImage, decimal.NewFromFloat(budget), tz, opts)
	require.NoError(t, err)
	return ad
}

func TestCreateAdAccountStampsMidnightBoundary(t *testing.T) {
	require := require.New(t)

	now := msAt(2024, time.June, 10, 12, 0)
	l, _ := newTestLedger(now)

	acct := mustCreateAccount(t, l, "Europe/Dublin")
	require.NotEmpty(acct.ID)
	require.Equal("Europe/Dublin", acct.Timezone)
	require.Equal(now, acct.CreatedAt)

	boundary, err := localtime.MidnightEpoch("Europe/Dublin", now)
	require.NoError(err)
	require.Equal(boundary, acct.LastBudgetReset)
	require.LessOrEqual(acct.LastBudgetReset, now)

	got, err := l.GetAdAccount(acct.ID)
	require.NoError(err)
	require.Equal(acct.ID, got.ID)
}

func TestCreateAdAccountInvalidTimezone(t *testing.T) {
	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	_, err := l.CreateAdAccount("Acme", "Mars/Olympus", decimal.NewFromInt(100), "USD")
	require.ErrorIs(t, err, models.ErrInvalidTimezone)
}

func TestListAccountsNewestFirst(t *testing.T) {
	require := require.New(t)

	l, clk := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	require.Empty(l.ListAccounts())

	first := mustCreateAccount(t, l, "UTC")
	clk.Advance(time.Minute)
	second := mustCreateAccount(t, l, "Europe/Dublin")

	list := l.ListAccounts()
	require.Len(list, 2)
	require.Equal(second.ID, list[0].ID)
	require.Equal(first.ID, list[1].ID)
}

func TestGetAdAccountNotFound(t *testing.T) {
	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	_, err := l.GetAdAccount("ad-account-missing")
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestCreateAdStartsCleanAndActive(t *testing.T) {
	require := require.New(t)

	now := msAt(2024, time.June, 10, 12, 0)
	l, _ := newTestLedger(now)
	acct := mustCreateAccount(t, l, "Europe/Dublin")

	ad := mustCreateAd(t, l, acct.ID, "Europe/Dublin", 50, nil)
	require.True(ad.IsActive)
	require.True(ad.SpentToday.IsZero())
	require.True(ad.Stats.Spend.IsZero())
	require.Zero(ad.Stats.Impressions)
	require.Empty(ad.Events.Impressions)
	require.Empty(ad.Events.Clicks)
	require.Empty(ad.Events.Conversions)
	require.Equal(acct.ID, ad.AdAccountID)

	boundary, err := localtime.MidnightEpoch("Europe/Dublin", now)
	require.NoError(err)
	require.Equal(boundary, ad.LastBudgetReset)
}

func TestCreateAdRequiresExistingAccount(t *testing.T) {
	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	_, err := l.CreateAd("ad-account-missing", "acme", "Sale", "https://x/a.jpg",
		models.MediaTypeImage, decimal.NewFromInt(10), "UTC", nil)
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestGetAdReturnsIndependentCopy(t *testing.T) {
	require := require.New(t)

	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "UTC")
	ad := mustCreateAd(t, l, acct.ID, "UTC", 50, nil)

	got, err := l.GetAd(ad.ID)
	require.NoError(err)
	got.Title = "mutated"
	got.Events.Impressions = append(got.Events.Impressions, 1)

	again, err := l.GetAd(ad.ID)
	require.NoError(err)
	require.Equal("Summer Sale", again.Title)
	require.Empty(again.Events.Impressions)
}

func TestGetAdNotFound(t *testing.T) {
	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	_, err := l.GetAd("ad-missing")
	require.ErrorIs(t, err, models.ErrAdNotFound)
}

func TestResetAccountZeroesEveryAdAtSameBoundary(t *testing.T) {
	require := require.New(t)

	start := msAt(2024, time.June, 10, 12, 0)
	l, clk := newTestLedger(start)
	acct := mustCreateAccount(t, l, "Europe/Dublin")
	ad1 := mustCreateAd(t, l, acct.ID, "Europe/Dublin", 50, nil)
	ad2 := mustCreateAd(t, l, acct.ID, "Europe/Dublin", 50, nil)

	for i := 0; i < 3; i++ {
		_, err := l.RecordClick(ad1.ID, "viewer-1")
		require.NoError(err)
	}
	_, err := l.RecordImpression(ad2.ID, "viewer-1")
	require.NoError(err)

	clk.Advance(24 * time.Hour)
	updated, err := l.ResetAccount(acct.ID)
	require.NoError(err)

	boundary, err := localtime.MidnightEpoch("Europe/Dublin", clk.Now())
	require.NoError(err)
	require.Equal(boundary, updated.LastBudgetReset)

	for _, id := range []string{ad1.ID, ad2.ID} {
		ad, err := l.GetAd(id)
		require.NoError(err)
		require.True(ad.SpentToday.IsZero(), "spent_today must be zeroed")
		require.Equal(boundary, ad.LastBudgetReset)
	}

	// Lifetime stats and event history survive the reset.
	ad, err := l.GetAd(ad1.ID)
	require.NoError(err)
	require.Equal(int64(3), ad.Stats.Clicks)
	require.Len(ad.Events.Clicks, 3)
	require.True(ad.Stats.Spend.Equal(decimal.NewFromFloat(1.50)))
}

func TestResetAccountIdempotentWithinDay(t *testing.T) {
	require := require.New(t)

	l, clk := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "Europe/Dublin")
	ad := mustCreateAd(t, l, acct.ID, "Europe/Dublin", 50, nil)

	first, err := l.ResetAccount(acct.ID)
	require.NoError(err)

	clk.Advance(2 * time.Hour) // still the same local day
	second, err := l.ResetAccount(acct.ID)
	require.NoError(err)
	require.Equal(first.LastBudgetReset, second.LastBudgetReset)

	got, err := l.GetAd(ad.ID)
	require.NoError(err)
	require.Equal(first.LastBudgetReset, got.LastBudgetReset)
}

func TestRestoreAdReplacesExistingEntry(t *testing.T) {
	require := require.New(t)

	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "UTC")
	ad := mustCreateAd(t, l, acct.ID, "UTC", 50, nil)

	got, err := l.GetAd(ad.ID)
	require.NoError(err)
	got.Title = "Winter Sale"
	l.RestoreAd(got)

	// Restoring a known ID updates state without duplicating the ad
	// in the indexes.
	feed := l.ListEligibleAds(&models.ViewerContext{ViewerID: "viewer-1"})
	require.Len(feed, 1)
	require.Equal("Winter Sale", feed[0].Title)

	_, err = l.ResetAccount(acct.ID)
	require.NoError(err)
	feed = l.ListEligibleAds(&models.ViewerContext{ViewerID: "viewer-1"})
	require.Len(feed, 1, "reset must not surface duplicate index entries")
}

func TestRestoreAccountReplacesExistingEntry(t *testing.T) {
	require := require.New(t)

	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "UTC")

	cp := *acct
	cp.Name = "Acme Holdings"
	l.RestoreAccount(&cp)

	got, err := l.GetAdAccount(acct.ID)
	require.NoError(err)
	require.Equal("Acme Holdings", got.Name)
	require.Len(l.ListAccounts(), 1)
}

func TestResetAccountNotFound(t *testing.T) {
	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	_, err := l.ResetAccount("ad-account-missing")
	require.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestIsResetDue(t *testing.T) {
	require := require.New(t)

	now := msAt(2024, time.June, 10, 12, 0)
	l, _ := newTestLedger(now)

	boundary, err := localtime.MidnightEpoch("Europe/Dublin", now)
	require.NoError(err)

	due, err := l.IsResetDue("Europe/Dublin", boundary)
	require.NoError(err)
	require.False(due, "a boundary-stamped entity is current")

	due, err = l.IsResetDue("Europe/Dublin", boundary-1)
	require.NoError(err)
	require.True(due, "anything before the boundary is stale")

	_, err = l.IsResetDue("Bad/Zone", boundary)
	require.ErrorIs(err, models.ErrInvalidTimezone)
}
