package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

func recordEnding(status Status, offsetDays int) *Record {
	return &Record{
		Status:    status,
		Plan:      "pro",
		StartDate: testNow.AddDate(0, -1, 0),
		EndDate:   testNow.AddDate(0, 0, offsetDays),
	}
}

func TestEvaluateScenarios(t *testing.T) {
	tests := []struct {
		name string
		rec  *Record
		want Evaluation
	}{
		{
			name: "active well ahead",
			rec:  recordEnding(StatusActive, 10),
			want: Evaluation{DaysRemaining: 10, DisplayStatus: DisplayActive},
		},
		{
			name: "active expiring soon",
			rec:  recordEnding(StatusActive, 3),
			want: Evaluation{DaysRemaining: 3, IsExpiringSoon: true, DisplayStatus: DisplayExpiring},
		},
		{
			name: "expired inside grace",
			rec:  recordEnding(StatusExpired, -1),
			want: Evaluation{DaysRemaining: -1, IsExpired: true, IsGrace: true, GraceDaysLeft: 1, DisplayStatus: DisplayGrace},
		},
		{
			name: "expired past grace",
			rec:  recordEnding(StatusExpired, -5),
			want: Evaluation{DaysRemaining: -5, IsExpired: true, IsGrace: true, AccessBlocked: true, DisplayStatus: DisplayExpired},
		},
		{
			name: "suspended with time left",
			rec:  recordEnding(StatusSuspended, 30),
			want: Evaluation{DaysRemaining: 30, AccessBlocked: true, DisplayStatus: DisplaySuspended},
		},
		{
			name: "absent",
			rec:  nil,
			want: Evaluation{AccessBlocked: true, DisplayStatus: DisplayNone},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.rec, testNow, time.UTC)
			got.GraceLimit = time.Time{}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateGraceBoundaries(t *testing.T) {
	// Last day of grace stays open with nothing left on the counter.
	last := Evaluate(recordEnding(StatusExpired, -GraceDays), testNow, time.UTC)
	require.True(t, last.IsGrace)
	require.False(t, last.AccessBlocked)
	require.Equal(t, 0, last.GraceDaysLeft)
	require.Equal(t, DisplayGrace, last.DisplayStatus)

	after := Evaluate(recordEnding(StatusExpired, -GraceDays-1), testNow, time.UTC)
	require.True(t, after.AccessBlocked)
	require.Equal(t, DisplayExpired, after.DisplayStatus)

	today := Evaluate(recordEnding(StatusExpired, 0), testNow, time.UTC)
	require.Equal(t, 0, today.DaysRemaining)
	require.True(t, today.IsExpired)
	require.Equal(t, GraceDays, today.GraceDaysLeft)
	require.False(t, today.IsExpiringSoon)
}

func TestEvaluateBlocksOnceGraceHoursRunOut(t *testing.T) {
	rec := &Record{Status: StatusExpired, EndDate: time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)}

	// Still the last grace day on the calendar, but more than two days after the end.
	late := Evaluate(rec, time.Date(2026, 2, 7, 15, 0, 0, 0, time.UTC), time.UTC)
	require.True(t, late.AccessBlocked)
	require.Equal(t, DisplayExpired, late.DisplayStatus)
	require.Equal(t, 0, late.GraceDaysLeft)

	early := Evaluate(rec, time.Date(2026, 2, 7, 9, 0, 0, 0, time.UTC), time.UTC)
	require.False(t, early.AccessBlocked)
	require.Equal(t, DisplayGrace, early.DisplayStatus)

	exact := Evaluate(rec, rec.EndDate.Add(GraceDays*24*time.Hour), time.UTC)
	require.False(t, exact.AccessBlocked)
}

func TestDaysUntilFarFuture(t *testing.T) {
	lifetime := time.Date(2999, 12, 31, 0, 0, 0, 0, time.UTC)
	want := int(lifetime.Unix()-time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC).Unix()) / 86400
	require.Equal(t, want, DaysUntil(lifetime, testNow, time.UTC))
	require.Greater(t, DaysUntil(lifetime, testNow, time.UTC), 350000)

	ev := Evaluate(&Record{Status: StatusActive, EndDate: lifetime}, testNow, time.UTC)
	require.Equal(t, want, ev.DaysRemaining)
	require.Equal(t, DisplayActive, ev.DisplayStatus)
}

func TestEvaluateExpiringWindowEdges(t *testing.T) {
	seven := Evaluate(recordEnding(StatusActive, ExpiringSoonDays), testNow, time.UTC)
	require.True(t, seven.IsExpiringSoon)
	require.Equal(t, DisplayExpiring, seven.DisplayStatus)

	eight := Evaluate(recordEnding(StatusActive, ExpiringSoonDays+1), testNow, time.UTC)
	require.False(t, eight.IsExpiringSoon)
	require.Equal(t, DisplayActive, eight.DisplayStatus)
}

func TestEvaluateBlocksPastGraceRegardlessOfStatus(t *testing.T) {
	ev := Evaluate(recordEnding(StatusActive, -4), testNow, time.UTC)
	require.True(t, ev.AccessBlocked)
	require.False(t, ev.IsGrace)
	require.Equal(t, 0, ev.GraceDaysLeft)
	require.Equal(t, DisplayExpired, ev.DisplayStatus)

	// Server has not flipped the status yet but the term is over.
	pending := Evaluate(recordEnding(StatusActive, -1), testNow, time.UTC)
	require.False(t, pending.AccessBlocked)
	require.False(t, pending.IsGrace)
	require.Equal(t, 0, pending.GraceDaysLeft)
	require.Equal(t, DisplayGrace, pending.DisplayStatus)
}

func TestEvaluateSuspendedAlwaysBlocked(t *testing.T) {
	for _, offset := range []int{-30, -3, -1, 0, 1, 7, 365} {
		ev := Evaluate(recordEnding(StatusSuspended, offset), testNow, time.UTC)
		require.True(t, ev.AccessBlocked, "offset %d", offset)
		require.Equal(t, DisplaySuspended, ev.DisplayStatus, "offset %d", offset)
	}
}

func TestEvaluateInvalidRecordIsAbsent(t *testing.T) {
	require.Equal(t, absent(), Evaluate(&Record{Status: StatusActive}, testNow, time.UTC))
	require.Equal(t, absent(), Evaluate(&Record{Status: "pending", EndDate: testNow.AddDate(0, 0, 30)}, testNow, time.UTC))
}

func TestEvaluateIgnoresTimeOfDay(t *testing.T) {
	rec := &Record{Status: StatusActive, EndDate: time.Date(2026, 2, 10, 0, 30, 0, 0, time.UTC)}
	morning := time.Date(2026, 2, 7, 0, 1, 0, 0, time.UTC)
	night := time.Date(2026, 2, 7, 23, 59, 0, 0, time.UTC)
	require.Equal(t, 3, Evaluate(rec, morning, time.UTC).DaysRemaining)
	require.Equal(t, 3, Evaluate(rec, night, time.UTC).DaysRemaining)
}

func TestEvaluateAcrossDSTTransition(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Clocks go forward on 2026-03-08.
	now := time.Date(2026, 3, 7, 23, 0, 0, 0, loc)
	rec := &Record{Status: StatusActive, EndDate: time.Date(2026, 3, 10, 0, 0, 0, 0, loc)}
	require.Equal(t, 3, Evaluate(rec, now, loc).DaysRemaining)
}

func TestEvaluateUsesLocationForDayBoundary(t *testing.T) {
	bogota := time.FixedZone("COT", -5*60*60)
	// 02:00 UTC on the 8th is still the 7th in Bogota.
	now := time.Date(2026, 2, 8, 2, 0, 0, 0, time.UTC)
	rec := &Record{Status: StatusActive, EndDate: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
	require.Equal(t, 2, Evaluate(rec, now, time.UTC).DaysRemaining)
	require.Equal(t, 3, Evaluate(rec, now, bogota).DaysRemaining)
}

func TestEvaluateIdempotent(t *testing.T) {
	rec := recordEnding(StatusExpired, -1)
	require.Equal(t, Evaluate(rec, testNow, time.UTC), Evaluate(rec, testNow, time.UTC))
}

func TestDaysRemainingMonotonic(t *testing.T) {
	rec := recordEnding(StatusActive, 15)
	prev := Evaluate(rec, testNow, time.UTC).DaysRemaining
	for h := 1; h <= 24*40; h += 5 {
		cur := Evaluate(rec, testNow.Add(time.Duration(h)*time.Hour), time.UTC).DaysRemaining
		require.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestEvaluatePropertiesOverRange(t *testing.T) {
	for _, status := range []Status{StatusActive, StatusExpired, StatusSuspended} {
		for offset := -20; offset <= 20; offset++ {
			ev := Evaluate(recordEnding(status, offset), testNow, time.UTC)
			require.GreaterOrEqual(t, ev.GraceDaysLeft, 0)
			if status == StatusSuspended {
				require.True(t, ev.AccessBlocked)
				continue
			}
			switch {
			case offset > ExpiringSoonDays:
				require.Equal(t, DisplayActive, ev.DisplayStatus)
				require.False(t, ev.AccessBlocked)
			case offset > 0:
				require.True(t, ev.IsExpiringSoon)
				require.False(t, ev.AccessBlocked)
			case offset >= -GraceDays:
				require.False(t, ev.AccessBlocked)
				require.Equal(t, status == StatusExpired, ev.IsGrace)
			default:
				require.True(t, ev.AccessBlocked)
			}
		}
	}
}

func TestEvaluateRaw(t *testing.T) {
	raw := &Raw{Status: "expired", StartDate: "2026-01-01", EndDate: "2026-02-06T00:00:00.000Z", Plan: "basic"}
	ev := EvaluateRaw(raw, testNow, time.UTC)
	require.Equal(t, -1, ev.DaysRemaining)
	require.True(t, ev.IsGrace)
	require.Equal(t, 1, ev.GraceDaysLeft)

	require.Equal(t, absent(), EvaluateRaw(nil, testNow, time.UTC))
	require.Equal(t, absent(), EvaluateRaw(&Raw{Status: "active", EndDate: "not-a-date"}, testNow, time.UTC))
	require.Equal(t, absent(), EvaluateRaw(&Raw{Status: "active", StartDate: "garbage", EndDate: "2026-03-01"}, testNow, time.UTC))
	require.Equal(t, absent(), EvaluateRaw(&Raw{Status: "trial", EndDate: "2026-03-01"}, testNow, time.UTC))
}

func TestRenew(t *testing.T) {
	running := testNow.AddDate(0, 0, 5)
	got := Renew(running, testNow, 30, time.UTC)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), got)

	lapsed := testNow.AddDate(0, 0, -10)
	got = Renew(lapsed, testNow, 30, time.UTC)
	require.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got)

	got = Renew(time.Time{}, testNow, 1, time.UTC)
	require.Equal(t, time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC), got)
}

func TestRenewRecord(t *testing.T) {
	tests := []struct {
		name      string
		rec       *Record
		wantStart time.Time
		wantEnd   time.Time
		status    Status
	}{
		{
			name:      "running term extends from its end",
			rec:       &Record{Status: StatusActive, Plan: "pro", StartDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), EndDate: testNow.AddDate(0, 0, 5)},
			wantStart: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			status:    StatusActive,
		},
		{
			name:      "lapsed term restarts today",
			rec:       &Record{Status: StatusExpired, Plan: "pro", EndDate: testNow.AddDate(0, 0, -1)},
			wantStart: time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			status:    StatusActive,
		},
		{
			name:      "suspension survives renewal",
			rec:       &Record{Status: StatusSuspended, EndDate: testNow.AddDate(0, 0, -10)},
			wantStart: time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			status:    StatusSuspended,
		},
		{
			name:      "no prior term",
			wantStart: time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			status:    StatusActive,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := RenewRecord(tc.rec, testNow, 30, time.UTC)
			require.True(t, got.StartDate.Equal(tc.wantStart), "start %s", got.StartDate)
			require.True(t, got.EndDate.Equal(tc.wantEnd), "end %s", got.EndDate)
			require.Equal(t, tc.status, got.Status)
			require.NoError(t, got.Validate())
		})
	}

	// The input is not modified.
	orig := &Record{Status: StatusExpired, EndDate: testNow.AddDate(0, 0, -1)}
	RenewRecord(orig, testNow, 30, time.UTC)
	require.Equal(t, StatusExpired, orig.Status)
}
