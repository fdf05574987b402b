package analytics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pulsefeed/ad-engine/internal/engine"
)

const eventsDDL = `
CREATE TABLE IF NOT EXISTS ad_events (
    ad_id      String,
    account_id String,
    viewer_id  String,
    kind       LowCardinality(String),
    at_ms      Int64,
    cost       Float64,
    inserted_at DateTime DEFAULT now()
) ENGINE = MergeTree()
ORDER BY (ad_id, at_ms)
`

type row struct {
	adID      string
	accountID string
	viewerID  string
	kind      string
	atMs      int64
	cost      float64
}

// ClickHouseSink batches recorded events into a ClickHouse table for
// offline reporting. Events are buffered in a channel and flushed by
// size or interval from a single background goroutine; when the
// buffer is full, events are dropped rather than blocking the serving
// path.
type ClickHouseSink struct {
	conn   driver.Conn
	logger *zap.Logger

	events chan row
	done   chan struct{}

	batchSize     int
	flushInterval time.Duration
}

// NewClickHouseSink creates the events table if needed and starts the
// flush loop.
func NewClickHouseSink(conn driver.Conn, logger *zap.Logger) (*ClickHouseSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Exec(ctx, eventsDDL); err != nil {
		return nil, err
	}

	s := &ClickHouseSink{
		conn:          conn,
		logger:        logger,
		events:        make(chan row, 10000),
		done:          make(chan struct{}),
		batchSize:     500,
		flushInterval: 5 * time.Second,
	}
	go s.loop()
	return s, nil
}

// Record implements engine.EventSink. Non-blocking.
func (s *ClickHouseSink) Record(adID, accountID, viewerID string, kind engine.EventKind, atMs int64, cost decimal.Decimal) {
	r := row{
		adID:      adID,
		accountID: accountID,
		viewerID:  viewerID,
		kind:      string(kind),
		atMs:      atMs,
		cost:      cost.InexactFloat64(),
	}
	select {
	case s.events <- r:
	default:
		s.logger.Warn("analytics buffer full, dropping event", zap.String("ad_id", adID))
	}
}

// Close flushes pending events and stops the loop.
func (s *ClickHouseSink) Close() error {
	close(s.events)
	<-s.done
	return nil
}

func (s *ClickHouseSink) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	buf := make([]row, 0, s.batchSize)
	for {
		select {
		case r, ok := <-s.events:
			if !ok {
				s.flush(buf)
				return
			}
			buf = append(buf, r)
			if len(buf) >= s.batchSize {
				s.flush(buf)
				buf = buf[:0]
			}
		case <-ticker.C:
			if len(buf) > 0 {
				s.flush(buf)
				buf = buf[:0]
			}
		}
	}
}

func (s *ClickHouseSink) flush(rows []row) {
	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO ad_events (ad_id, account_id, viewer_id, kind, at_ms, cost)")
	if err != nil {
		s.logger.Error("failed to prepare analytics batch", zap.Error(err))
		return
	}
	for _, r := range rows {
		if err := batch.Append(r.adID, r.accountID, r.viewerID, r.kind, r.atMs, r.cost); err != nil {
			s.logger.Error("failed to append analytics row", zap.Error(err))
			return
		}
	}
	if err := batch.Send(); err != nil {
		s.logger.Error("failed to send analytics batch", zap.Error(err))
		return
	}
	s.logger.Debug("analytics batch flushed", zap.Int("rows", len(rows)))
}
