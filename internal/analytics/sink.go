// Package analytics exports recorded ad events to an external
// analytics pipeline. The engine core never depends on the pipeline
// being up; export is best-effort and asynchronous.
package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/pulsefeed/ad-engine/internal/engine"
)

// NoopSink discards every event. Used when no analytics backend is
// configured.
type NoopSink struct{}

// Record implements engine.EventSink.
func (NoopSink) Record(adID, accountID, viewerID string, kind engine.EventKind, atMs int64, cost decimal.Decimal) {
}
