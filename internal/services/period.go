package services

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the wire format of audit dates.
	DateLayout = "2006-01-02"
	// DisplayLayout is the fr-FR short date format.
	DisplayLayout = "02/01/2006"
)

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, NewInvalidError(fmt.Sprintf("invalid date %q", s))
	}
	return t, nil
}

// FormatDateFR renders a date as DD/MM/YYYY.
func FormatDateFR(t time.Time) string { return t.Format(DisplayLayout) }

// FormatDateStringFR reformats a YYYY-MM-DD value, returning it unchanged when
// it does not parse.
func FormatDateStringFR(s string) string {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return s
	}
	return FormatDateFR(t)
}

// Period is the covered week of an audit, already formatted for display.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (p Period) IsZero() bool { return p.Start == "" && p.End == "" }

// String is the stored text form, "du {start} au {end}".
func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("du %s au %s", p.Start, p.End)
}

// ComputePeriod returns the seven days before d: d-7 through d-1. The weekday of
// d is not checked.
func ComputePeriod(d time.Time) Period {
	return Period{
		Start: FormatDateFR(d.AddDate(0, 0, -7)),
		End:   FormatDateFR(d.AddDate(0, 0, -1)),
	}
}

// ComputePeriodFromString is ComputePeriod for a YYYY-MM-DD string. An empty or
// invalid date yields the zero period.
func ComputePeriodFromString(date string) Period {
	if strings.TrimSpace(date) == "" {
		return Period{}
	}
	d, err := ParseDate(date)
	if err != nil {
		return Period{}
	}
	return ComputePeriod(d)
}

// ParsePeriod splits a stored "du X au Y" text. A leading "du " is optional.
func ParsePeriod(text string) Period {
	if text == "" {
		return Period{}
	}
	start, end, _ := strings.Cut(text, " au ")
	start = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(start), "du "))
	return Period{Start: start, End: strings.TrimSpace(end)}
}
