package chain

import "time"

// MarketClock answers whether the options market is open at a given instant.
// Regular session only: weekdays 9:30–16:00 exchange time. Holidays are not
// modeled; a holiday misread only makes the cache slightly fresher than
// necessary.
type MarketClock struct {
	loc *time.Location
}

// NewMarketClock creates a clock for the given IANA timezone; empty selects
// the US exchange timezone.
func NewMarketClock(timezone string) (*MarketClock, error) {
	if timezone == "" {
		timezone = "America/New_York"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &MarketClock{loc: loc}, nil
}

// IsOpen reports whether the regular trading session is active at t.
func (m *MarketClock) IsOpen(t time.Time) bool {
	local := t.In(m.loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	const open = 9*60 + 30
	const close = 16 * 60
	return minutes >= open && minutes < close
}
