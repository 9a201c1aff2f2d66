package subscription

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRecord = errors.New("invalid subscription record")

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusSuspended:
		return true
	default:
		return false
	}
}

func ParseStatus(input string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(input)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, input)
	}
	return s, nil
}

// Record is a decoded subscription snapshot as assigned by the backend.
type Record struct {
	Status    Status
	Plan      string
	StartDate time.Time
	EndDate   time.Time
}

// Raw is the wire form of a subscription as the panel receives it.
type Raw struct {
	Status    string `json:"status"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Plan      string `json:"plan"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(field, value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrInvalidRecord, field)
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable %s %q", ErrInvalidRecord, field, value)
}

// DecodeIn parses a wire record, reading dates without an offset in loc (UTC
// when nil). The
// start date is optional for gating, but when present it must parse.
func DecodeIn(raw Raw, loc *time.Location) (*Record, error) {
	loc = location(loc)
	status, err := ParseStatus(raw.Status)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", raw.EndDate, loc)
	if err != nil {
		return nil, err
	}
	rec := &Record{Status: status, Plan: raw.Plan, EndDate: end}
	if strings.TrimSpace(raw.StartDate) != "" {
		start, err := parseDate("startDate", raw.StartDate, loc)
		if err != nil {
			return nil, err
		}
		rec.StartDate = start
	}
	return rec, nil
}

// Validate applies the write-side checks the evaluator itself does not enforce.
func (r Record) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	if r.EndDate.IsZero() {
		return fmt.Errorf("%w: missing endDate", ErrInvalidRecord)
	}
	if !r.StartDate.IsZero() && r.StartDate.After(r.EndDate) {
		return fmt.Errorf("%w: startDate after endDate", ErrInvalidRecord)
	}
	return nil
}

func (r Record) Raw() Raw {
	out := Raw{
		Status:  string(r.Status),
		EndDate: r.EndDate.UTC().Format(time.RFC3339),
		Plan:    r.Plan,
	}
	if !r.StartDate.IsZero() {
		out.StartDate = r.StartDate.UTC().Format(time.RFC3339)
	}
	return out
}
