package patient

import (
	"context"
	"time"
)

// DateRange bounds a query by date_of_registration. Nil bounds are open.
// Both bounds are inclusive calendar dates.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Open reports whether neither bound is set.
func (r DateRange) Open() bool {
	return r.Start == nil && r.End == nil
}

// Contains reports whether a registration date falls inside the range,
// comparing calendar dates only. A record without a registration date is
// outside any range that has at least one bound.
func (r DateRange) Contains(registered *time.Time) bool {
	if r.Open() {
		return true
	}
	if registered == nil {
		return false
	}
	day := civilDay(*registered)
	if r.Start != nil && day < civilDay(*r.Start) {
		return false
	}
	if r.End != nil && day > civilDay(*r.End) {
		return false
	}
	return true
}

// civilDay maps t to an ordinal for its calendar date in its own location,
// so time-of-day never affects range checks.
func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// Store is the read-only patient store the report aggregator consumes.
type Store interface {
	// ListForReport returns every patient whose registration date falls in
	// rng, joined with community, LGA, ward and facility names, ordered by
	// date_of_registration then unique_id.
	ListForReport(ctx context.Context, rng DateRange) ([]*Patient, error)
	Count(ctx context.Context) (int, error)
}
