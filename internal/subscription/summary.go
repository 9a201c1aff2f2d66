package subscription

import (
	"fmt"
	"time"
)

// PlanSummary carries the KPIs shown on the plan details page.
type PlanSummary struct {
	Plan        string     `json:"plan"`
	Status      Status     `json:"status,omitempty"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	TermDays    int        `json:"term_days"`
	DaysElapsed int        `json:"days_elapsed"`
	UsedPercent int        `json:"used_percent"`
	Evaluation  Evaluation `json:"evaluation"`
}

func Summarize(rec *Record, now time.Time, loc *time.Location) PlanSummary {
	out := PlanSummary{Evaluation: Evaluate(rec, now, loc)}
	if out.Evaluation.DisplayStatus == DisplayNone {
		return out
	}
	out.Plan = rec.Plan
	out.Status = rec.Status
	out.StartDate = rec.StartDate
	out.EndDate = rec.EndDate
	if rec.StartDate.IsZero() {
		return out
	}

	out.TermDays = DaysUntil(rec.EndDate, rec.StartDate, loc)
	if out.TermDays < 0 {
		out.TermDays = 0
	}
	elapsed := -DaysUntil(rec.StartDate, now, loc)
	switch {
	case elapsed < 0:
		elapsed = 0
	case elapsed > out.TermDays:
		elapsed = out.TermDays
	}
	out.DaysElapsed = elapsed
	if out.TermDays > 0 {
		out.UsedPercent = elapsed * 100 / out.TermDays
	} else if out.Evaluation.IsExpired {
		out.UsedPercent = 100
	}
	return out
}

type NoticeLevel string

const (
	NoticeNone    NoticeLevel = "none"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeDanger  NoticeLevel = "danger"
)

// Notice is the dashboard banner chosen for an evaluation.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

func Banner(ev Evaluation) Notice {
	switch ev.DisplayStatus {
	case DisplaySuspended:
		return Notice{Level: NoticeDanger, Message: "Your subscription is suspended. Contact support to reactivate it."}
	case DisplayExpired:
		return Notice{Level: NoticeDanger, Message: "Your subscription has expired and the grace period is over. Renew to restore access."}
	case DisplayGrace:
		if ev.IsGrace && ev.GraceDaysLeft == 0 {
			return Notice{Level: NoticeWarning, Message: "Your subscription has expired. Access ends today unless you renew."}
		}
		if ev.IsGrace {
			return Notice{Level: NoticeWarning, Message: fmt.Sprintf("Your subscription has expired. Access ends in %s unless you renew.", days(ev.GraceDaysLeft))}
		}
		return Notice{Level: NoticeWarning, Message: "Your subscription term has ended. Renew to keep access."}
	case DisplayExpiring:
		return Notice{Level: NoticeInfo, Message: fmt.Sprintf("Your subscription expires in %s.", days(ev.DaysRemaining))}
	case DisplayNone:
		return Notice{Level: NoticeDanger, Message: "No active subscription found for this store."}
	default:
		return Notice{Level: NoticeNone}
	}
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
