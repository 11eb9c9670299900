package reminder

import "time"

// NextFire returns the next occurrence of cfg's wall-clock time strictly after now.
// The result is computed in cfg.Location, so DST shifts move the instant, not the
// local hour.
func NextFire(now time.Time, cfg Config) time.Time {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), cfg.Hour, cfg.Minute, 0, 0, loc)
	if !target.After(local) {
		target = time.Date(local.Year(), local.Month(), local.Day()+1, cfg.Hour, cfg.Minute, 0, 0, loc)
	}
	return target
}

// DelayUntilNext is NextFire expressed as a timer delay.
func DelayUntilNext(now time.Time, cfg Config) time.Duration {
	return NextFire(now, cfg).Sub(now)
}

const dateLayout = "2006-01-02"

// CalendarDate is the ISO calendar date of t in loc, used for once-per-day checks.
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(dateLayout)
}
