package token

import "time"

// Clock evaluates dates in a fixed location. Validity and cache lifetimes
// both derive from it so they agree on when a token stops being valid.
type Clock struct {
	now func() time.Time
	loc *time.Location
}

// NewClock returns a clock for loc. A nil now uses time.Now, a nil loc UTC.
func NewClock(loc *time.Location, now func() time.Time) Clock {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Clock{now: now, loc: loc}
}

func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Today is the current calendar date in the clock's location.
func (c Clock) Today() time.Time {
	return DateOf(c.Now().In(c.Location()))
}

// DaysFromToday returns the calendar date days after today.
func (c Clock) DaysFromToday(days int) time.Time {
	return c.Today().AddDate(0, 0, days)
}

// State computes the token state; nothing about it is persisted.
func (c Clock) State(t Token) State {
	if !t.Active {
		return StateInactive
	}
	if c.Today().After(DateOf(t.ExpiresOn)) {
		return StateActiveExpired
	}
	return StateActiveValid
}

func (c Clock) Valid(t Token) bool {
	return c.State(t) == StateActiveValid
}

// Cutoff is the instant the token stops being valid: the start of the day
// after ExpiresOn in the clock's location.
func (c Clock) Cutoff(t Token) time.Time {
	y, m, d := t.ExpiresOn.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.Location())
}

// TTL is the time remaining until Cutoff, truncated to whole seconds.
func (c Clock) TTL(t Token) time.Duration {
	return c.Cutoff(t).Sub(c.Now()).Truncate(time.Second)
}

// DaysRemaining counts whole days left before expiry, negative once expired.
func (c Clock) DaysRemaining(t Token) int {
	return int(DateOf(t.ExpiresOn).Sub(c.Today()).Hours() / 24)
}

func (c Clock) Status(t Token) Status {
	return Status{
		Token:         t,
		State:         c.State(t),
		DaysRemaining: c.DaysRemaining(t),
	}
}
