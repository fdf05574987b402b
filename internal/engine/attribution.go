package engine

import (
	"time"

	"github.com/pulsefeed/ad-engine/internal/models"
)

// AttributionWindowMs is the maximum click-to-conversion latency for
// the two events to count as causally linked: 24 hours.
const AttributionWindowMs = int64(24 * time.Hour / time.Millisecond)

// Attribution joins every recorded click against every recorded
// conversion that landed within (0, 24h] after it. The join is
// many-to-many: a click may attribute to several conversions and a
// conversion may be reached from several clicks. AverageLatencyMs is
// the arithmetic mean over all pairs, or 0 when there are none.
func (l *Ledger) Attribution(adID string) (*models.AttributionResult, error) {
	ad, err := l.GetAd(adID)
	if err != nil {
		return nil, err
	}

	res := &models.AttributionResult{AdID: adID}
	var total int64
	for _, clickAt := range ad.Events.Clicks {
		for _, convAt := range ad.Events.Conversions {
			latency := convAt - clickAt
			if latency > 0 && latency <= AttributionWindowMs {
				res.Pairs = append(res.Pairs, models.AttributionPair{
					ClickTime:      clickAt,
					ConversionTime: convAt,
					LatencyMs:      latency,
				})
				total += latency
			}
		}
	}
	if n := len(res.Pairs); n > 0 {
		res.AverageLatencyMs = float64(total) / float64(n)
	}
	return res, nil
}
