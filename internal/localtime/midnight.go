// Package localtime converts instants to local-midnight boundaries in
// arbitrary IANA timezones. Budget accounting resets at midnight in
// the advertiser's timezone, so getting this right across DST
// transitions is what the package exists for.
package localtime

import (
	"fmt"
	"time"

	"github.com/pulsefeed/ad-engine/internal/models"
)

// MidnightEpoch returns the epoch-ms instant of 00:00:00.000 local
// time in tz, on the calendar date that nowMs falls on in that
// timezone. The result is the most recent local midnight at or before
// nowMs.
//
// The offset between local time and UTC is resolved through the
// platform tz database, so the value stays correct on dates with a
// daylight-saving transition. On the rare dates where 00:00 does not
// exist (spring-forward at midnight), the first valid instant of the
// day is returned.
//
// Pure function of its inputs: the reference instant is an explicit
// parameter, never read implicitly.
func MidnightEpoch(tz string, nowMs int64) (int64, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", models.ErrInvalidTimezone, tz, err)
	}

	local := time.UnixMilli(nowMs).In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	// time.Date normalizes a nonexistent 00:00 forward past the DST
	// gap, which can land it on the previous local day in zones that
	// skip midnight. Walk forward until the boundary is on the right
	// date.
	for midnight.In(loc).Day() != local.Day() {
		midnight = midnight.Add(time.Hour)
	}

	return midnight.UnixMilli(), nil
}

// SameLocalDay reports whether two instants fall on the same calendar
// date in tz.
func SameLocalDay(tz string, aMs, bMs int64) (bool, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", models.ErrInvalidTimezone, tz, err)
	}
	a := time.UnixMilli(aMs).In(loc)
	b := time.UnixMilli(bMs).In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd, nil
}
