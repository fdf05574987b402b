package models

// ViewerContext describes the viewer a feed is being composed for.
// All fields are optional; an empty context matches only untargeted
// ads for location/tag-targeted inventory.
type ViewerContext struct {
	ViewerID string   `json:"viewer_id,omitempty"`
	Location string   `json:"location,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// AttributionPair links one click to one conversion that happened
// within the attribution window after it.
type AttributionPair struct {
	ClickTime      int64 `json:"click_time"`
	ConversionTime int64 `json:"conversion_time"`
	LatencyMs      int64 `json:"latency_ms"`
}

// AttributionResult summarizes click-to-conversion matches for an ad.
// The join is many-to-many: one click may attribute to several
// conversions and one conversion may be reached from several clicks.
type AttributionResult struct {
	AdID             string            `json:"ad_id"`
	Pairs            []AttributionPair `json:"pairs"`
	AverageLatencyMs float64           `json:"average_latency_ms"`
}
