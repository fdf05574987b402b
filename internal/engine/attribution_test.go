package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsefeed/ad-engine/internal/models"
)

func TestAttributionSinglePair(t *testing.T) {
	require := require.New(t)

	l, clk := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "UTC")
	ad := mustCreateAd(t, l, acct.ID, "UTC", 50, nil)

	_, err := l.RecordClick(ad.ID, "viewer-1")
	require.NoError(err)
	clickAt := clk.Now()

	clk.Advance(2 * time.Hour)
	_, _, err = l.RecordConversion(ad.ID, "viewer-1", 0)
	require.NoError(err)

	res, err := l.Attribution(ad.ID)
	require.NoError(err)
	require.Equal(ad.ID, res.AdID)
	require.Len(res.Pairs, 1)
	require.Equal(clickAt, res.Pairs[0].ClickTime)
	require.Equal((2 * time.Hour).Milliseconds(), res.Pairs[0].LatencyMs)
	require.Equal(float64((2 * time.Hour).Milliseconds()), res.AverageLatencyMs)
}

func TestAttributionWindowBoundaries(t *testing.T) {
	require := require.New(t)

	l, clk := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "UTC")
	ad := mustCreateAd(t, l, acct.ID, "UTC", 50, nil)

	_, err := l.RecordClick(ad.ID, "viewer-1")
	require.NoError(err)

	// A conversion at the same instant as the click does not pair: the
	// window is open at zero.
	_, _, err = l.RecordConversion(ad.ID, "viewer-1", 0)
	require.NoError(err)
	res, err := l.Attribution(ad.ID)
	require.NoError(err)
	require.Empty(res.Pairs)
	require.Zero(res.AverageLatencyMs)

	// Exactly 24h after the click is still inside the window.
	clk.Advance(24 * time.Hour)
	_, _, err = l.RecordConversion(ad.ID, "viewer-1", 0)
	require.NoError(err)
	res, err = l.Attribution(ad.ID)
	require.NoError(err)
	require.Len(res.Pairs, 1)
	require.Equal(AttributionWindowMs, res.Pairs[0].LatencyMs)

	// One ms past 24h is outside.
	clk.Advance(time.Millisecond)
	_, _, err = l.RecordConversion(ad.ID, "viewer-1", 0)
	require.NoError(err)
	res, err = l.Attribution(ad.ID)
	require.NoError(err)
	require.Len(res.Pairs, 1, "the late conversion adds no pair")
}

func TestAttributionManyToMany(t *testing.T) {
	require := require.New(t)

	l, clk := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "UTC")
	ad := mustCreateAd(t, l, acct.ID, "UTC", 50, nil)

	// Two clicks one hour apart, then two conversions. Every
	// click/conversion combination inside the window pairs.
	_, err := l.RecordClick(ad.ID, "viewer-1")
	require.NoError(err)
	clk.Advance(time.Hour)
	_, err = l.RecordClick(ad.ID, "viewer-2")
	require.NoError(err)

	clk.Advance(time.Hour)
	_, _, err = l.RecordConversion(ad.ID, "viewer-1", 0)
	require.NoError(err)
	clk.Advance(time.Hour)
	_, _, err = l.RecordConversion(ad.ID, "viewer-2", 0)
	require.NoError(err)

	res, err := l.Attribution(ad.ID)
	require.NoError(err)
	require.Len(res.Pairs, 4)

	// Latencies: 2h and 3h from the first click, 1h and 2h from the
	// second. Mean is 2h.
	require.Equal(float64((2 * time.Hour).Milliseconds()), res.AverageLatencyMs)
}

func TestAttributionNoEvents(t *testing.T) {
	require := require.New(t)

	l, _ := newTestLedger(msAt(2024, time.June, 10, 12, 0))
	acct := mustCreateAccount(t, l, "UTC")
	ad := mustCreateAd(t, l, acct.ID, "UTC", 50, nil)

	res, err := l.Attribution(ad.ID)
	require.NoError(err)
	require.Empty(res.Pairs)
	require.Zero(res.AverageLatencyMs)

	_, err = l.Attribution("ad-missing")
	require.ErrorIs(err, models.ErrAdNotFound)
}
