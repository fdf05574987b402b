package engine

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pulsefeed/ad-engine/internal/models"
)

// EventKind labels the three recordable event types.
type EventKind string

const (
	EventImpression EventKind = "impression"
	EventClick      EventKind = "click"
	EventConversion EventKind = "conversion"
)

// EventSink receives a copy of every recorded event for export to an
// external analytics pipeline. Implementations must not block.
type EventSink interface {
	Record(adID, accountID, viewerID string, kind EventKind, atMs int64, cost decimal.Decimal)
}

// WithEventSink attaches an analytics sink notified on every event.
func WithEventSink(sink EventSink) Option {
	return func(l *Ledger) { l.sink = sink }
}

// RecordImpression appends the current instant to the ad's impression
// sequence, bumps the impression counter and charges the
// per-impression cost against both lifetime spend and spent-today.
// Returns the updated ad.
func (l *Ledger) RecordImpression(adID, viewerID string) (*models.Ad, error) {
	return l.record(adID, viewerID, EventImpression)
}

// RecordClick appends the current instant to the ad's click sequence,
// bumps the click counter and charges the per-click cost.
func (l *Ledger) RecordClick(adID, viewerID string) (*models.Ad, error) {
	return l.record(adID, viewerID, EventClick)
}

// RecordConversion appends the current instant to the ad's conversion
// sequence and bumps the conversion counter. Conversions carry no
// direct spend cost. If clickMs is nonzero, the click-to-conversion
// latency is computed for observability; it is surfaced to the caller
// and the log, never stored on the event.
func (l *Ledger) RecordConversion(adID, viewerID string, clickMs int64) (*models.Ad, int64, error) {
	ad, err := l.record(adID, viewerID, EventConversion)
	if err != nil {
		return nil, 0, err
	}
	var latency int64
	if clickMs != 0 {
		convAt := ad.Events.Conversions[len(ad.Events.Conversions)-1]
		latency = convAt - clickMs
		l.logger.Info("conversion attributed",
			zap.String("ad_id", adID),
			zap.Int64("latency_ms", latency),
			zap.Float64("latency_hours", float64(latency)/float64(60*60*1000)),
		)
		if l.metrics != nil {
			l.metrics.ObserveAttributionLatency(latency)
		}
	}
	return ad, latency, nil
}

// record is the shared path for all three event kinds. The owning
// account's lazy reset runs first (account lock before ad lock), then
// the append and the counter/spend increments happen atomically under
// the ad lock, so concurrent recordings never lose updates or
// interleave with a reset.
func (l *Ledger) record(adID, viewerID string, kind EventKind) (*models.Ad, error) {
	st := l.lookupAd(adID)
	if st == nil {
		return nil, models.ErrAdNotFound
	}

	st.mu.Lock()
	accountID := st.ad.AdAccountID
	st.mu.Unlock()

	// Lazy reset on the write path: the event must land in today's
	// budget window, not yesterday's.
	if acct := l.lookupAccount(accountID); acct != nil {
		acct.mu.Lock()
		if err := l.maybeResetLocked(acct); err != nil {
			l.logger.Warn("reset check failed while recording event",
				zap.String("ad_id", adID), zap.Error(err))
		}
		acct.mu.Unlock()
	}

	now := l.now()
	cost := decimal.Zero

	st.mu.Lock()
	switch kind {
	case EventImpression:
		st.ad.Events.Impressions = append(st.ad.Events.Impressions, now)
		st.ad.Stats.Impressions++
		cost = l.costs.PerImpression
	case EventClick:
		st.ad.Events.Clicks = append(st.ad.Events.Clicks, now)
		st.ad.Stats.Clicks++
		cost = l.costs.PerClick
	case EventConversion:
		st.ad.Events.Conversions = append(st.ad.Events.Conversions, now)
		st.ad.Stats.Conversions++
	}
	if !cost.IsZero() {
		st.ad.SpentToday = st.ad.SpentToday.Add(cost)
		st.ad.Stats.Spend = st.ad.Stats.Spend.Add(cost)
	}
	ad := st.ad.Clone()
	st.mu.Unlock()

	l.mirrorAd(ad)
	if l.store != nil {
		if err := l.store.AppendEvent(adID, string(kind), now, viewerID); err != nil {
			l.logger.Error("failed to persist event", zap.Error(err), zap.String("ad_id", adID))
		}
	}
	if l.sink != nil {
		l.sink.Record(adID, accountID, viewerID, kind, now, cost)
	}
	if l.metrics != nil {
		l.metrics.RecordEvent(string(kind), cost)
	}

	return ad, nil
}
