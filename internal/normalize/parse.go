package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyValue = errors.New("empty value")
	ErrBadAmount  = errors.New("unparseable amount")
	ErrBadDate    = errors.New("unparseable date")
)

// ParseAmount parses a signed amount written with either comma or dot
// decimals. When both separators appear the rightmost one is the decimal
// separator. A lone comma is decimal only when one or two digits follow it.
// The result is rounded to two places.
func ParseAmount(s string) (float64, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune("€$£¥", r) {
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return 0, ErrEmptyValue
	}

	comma := strings.LastIndex(cleaned, ",")
	dot := strings.LastIndex(cleaned, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case comma >= 0:
		tail := cleaned[comma+1:]
		if strings.Count(cleaned, ",") == 1 && len(tail) >= 1 && len(tail) <= 2 && allDigits(tail) {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadAmount, s)
	}
	return d.Round(2).InexactFloat64(), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DateLayouts are tried in order before the general fallbacks. Slash dates
// read month-first unless the first number cannot be a month.
var DateLayouts = []string{
	"2006-01-02",
	"2-1-2006",
	"1/2/2006",
	"2/1/2006",
	"2006/1/2",
	"2.1.2006",
	"2006.1.2",
}

var fallbackLayouts = []string{
	"20060102",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2-1-2006 15:04:05",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
}

// ParseDate returns the calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmptyValue
	}
	for _, layouts := range [][]string{DateLayouts, fallbackLayouts} {
		for _, layout := range layouts {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrBadDate, s)
}

// CleanText collapses whitespace runs to single spaces and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// JoinDescription concatenates the non-empty parts with single spaces.
func JoinDescription(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanText(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
