// Package targeting decides which viewers an ad may be composed into
// a feed for. Targeting is applied after the budget/schedule serve
// gate, never as part of it.
package targeting

import (
	"strings"

	"github.com/pulsefeed/ad-engine/internal/models"
)

// Matches reports whether the viewer passes the ad's targeting. An ad
// with both location and tag targeting must pass both; an ad with
// neither matches every viewer, nil included.
func Matches(ad *models.Ad, viewer *models.ViewerContext) bool {
	var location string
	var tags []string
	if viewer != nil {
		location = viewer.Location
		tags = viewer.Tags
	}
	return MatchLocation(ad.TargetLocations, location) && MatchTags(ad.TargetTags, tags)
}

// MatchLocation OR-matches the viewer's location string against the
// ad's target locations, case-insensitively, by containment in either
// direction ("Dublin" targets a "Dublin City" viewer and vice versa).
// No target locations means any or no location is fine.
func MatchLocation(targets []string, location string) bool {
	if len(targets) == 0 {
		return true
	}
	if location == "" {
		return false
	}
	loc := strings.ToLower(location)
	for _, t := range targets {
		tl := strings.ToLower(t)
		if tl == "" {
			continue
		}
		if strings.Contains(loc, tl) || strings.Contains(tl, loc) {
			return true
		}
	}
	return false
}

// MatchTags reports whether the viewer's tag set intersects the ad's
// target tags, case-insensitive exact match. No target tags means the
// ad is eligible regardless of viewer tags.
func MatchTags(targets []string, tags []string) bool {
	if len(targets) == 0 {
		return true
	}
	if len(tags) == 0 {
		return false
	}
	viewer := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		viewer[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range targets {
		if _, ok := viewer[strings.ToLower(t)]; ok {
			return true
		}
	}
	return false
}
