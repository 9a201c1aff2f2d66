package subscription

import "time"

const (
	// GraceDays is how many calendar days past the end date access stays open.
	GraceDays = 2
	// ExpiringSoonDays is the window in which a running term is flagged as expiring.
	ExpiringSoonDays = 7
)

type DisplayStatus string

const (
	DisplayNone     DisplayStatus = "none"
	DisplayActive   DisplayStatus = "active"
	DisplayExpiring DisplayStatus = "expiring"
	// DisplayGrace covers every ended term that is not yet blocked. That
	// includes a term whose server status still reads active, in which case
	// IsGrace is false and GraceDaysLeft is 0.
	DisplayGrace     DisplayStatus = "grace"
	DisplayExpired   DisplayStatus = "expired"
	DisplaySuspended DisplayStatus = "suspended"
)

// Evaluation is the classification of one subscription snapshot at one instant.
// It is derived on every call and must never be cached.
type Evaluation struct {
	DaysRemaining  int           `json:"days_remaining"`
	IsExpired      bool          `json:"is_expired"`
	IsGrace        bool          `json:"is_grace"`
	GraceDaysLeft  int           `json:"grace_days_left"`
	IsExpiringSoon bool          `json:"is_expiring_soon"`
	AccessBlocked  bool          `json:"access_blocked"`
	DisplayStatus  DisplayStatus `json:"display_status"`
	GraceLimit     time.Time     `json:"grace_limit"`
}

func absent() Evaluation {
	return Evaluation{AccessBlocked: true, DisplayStatus: DisplayNone}
}

// Evaluate classifies rec at now. Day arithmetic runs on midnight-normalized
// dates in loc (UTC when nil). A nil record, zero end date or unknown status
// yields the blocked "none" classification.
func Evaluate(rec *Record, now time.Time, loc *time.Location) Evaluation {
	if rec == nil || rec.EndDate.IsZero() || !rec.Status.Valid() {
		return absent()
	}
	loc = location(loc)

	var ev Evaluation
	ev.DaysRemaining = DaysUntil(rec.EndDate, now, loc)
	ev.IsExpired = ev.DaysRemaining <= 0
	ev.IsGrace = ev.IsExpired && rec.Status == StatusExpired

	ev.GraceLimit = midnight(rec.EndDate, loc).AddDate(0, 0, GraceDays)
	graceLeft := DaysUntil(ev.GraceLimit, now, loc)
	if ev.IsGrace && graceLeft > 0 {
		ev.GraceDaysLeft = graceLeft
	}

	ev.IsExpiringSoon = !ev.IsExpired && ev.DaysRemaining <= ExpiringSoonDays

	// Past the grace limit blocks whatever the server status still says. The
	// deadline is the exact instant two days after the end, or the day after
	// the calendar grace limit, whichever comes first.
	pastGrace := graceLeft < 0 || now.After(rec.EndDate.Add(GraceDays*24*time.Hour))
	ev.AccessBlocked = rec.Status == StatusSuspended || pastGrace

	switch {
	case rec.Status == StatusSuspended:
		ev.DisplayStatus = DisplaySuspended
	case pastGrace:
		ev.DisplayStatus = DisplayExpired
	case ev.IsExpired:
		ev.DisplayStatus = DisplayGrace
	case ev.IsExpiringSoon:
		ev.DisplayStatus = DisplayExpiring
	default:
		ev.DisplayStatus = DisplayActive
	}
	return ev
}

// EvaluateRaw decodes the wire record and evaluates it. Decode failures are
// treated as an absent subscription.
func EvaluateRaw(raw *Raw, now time.Time, loc *time.Location) Evaluation {
	if raw == nil {
		return absent()
	}
	rec, err := DecodeIn(*raw, loc)
	if err != nil {
		return absent()
	}
	return Evaluate(rec, now, loc)
}

// DaysUntil counts calendar days from the day of now to the day of target in
// loc. Negative when target is in the past, 0 when it is today.
func DaysUntil(target, now time.Time, loc *time.Location) int {
	loc = location(loc)
	t := midnight(target, loc)
	n := midnight(now, loc)
	// Compare in UTC so DST shifts inside loc do not leak an hour into the
	// count. Unix seconds keep far-off dates out of Duration's ~292 year range.
	tu := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	nu := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int((tu.Unix() - nu.Unix()) / 86400)
}

// Renew returns the new end date after adding days to a customer's term.
// A term that is still running is extended from its end; a lapsed one
// restarts from today.
func Renew(end, now time.Time, days int, loc *time.Location) time.Time {
	loc = location(loc)
	base := midnight(now, loc)
	if !end.IsZero() && DaysUntil(end, now, loc) > 0 {
		base = midnight(end, loc)
	}
	return base.AddDate(0, 0, days)
}

// RenewRecord applies a renewal of days to rec, which may be nil for a store
// that never had a term. A lapsed or missing term restarts today. An expired
// status flips back to active; a suspension is left in place.
func RenewRecord(rec *Record, now time.Time, days int, loc *time.Location) Record {
	loc = location(loc)
	var next Record
	if rec != nil {
		next = *rec
	}
	if next.EndDate.IsZero() || DaysUntil(next.EndDate, now, loc) <= 0 {
		next.StartDate = midnight(now, loc)
	}
	next.EndDate = Renew(next.EndDate, now, days, loc)
	if next.Status != StatusSuspended {
		next.Status = StatusActive
	}
	return next
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
