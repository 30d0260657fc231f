package expiry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidYearMonth is returned when a value cannot be read as YYYY-MM.
var ErrInvalidYearMonth = errors.New("invalid year-month")

// YearMonth is a card expiration month. The card stays valid through the
// last instant of that month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// Of returns the year-month containing t in t's location.
func Of(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// New builds a YearMonth, validating the month.
func New(year int, month time.Month) (YearMonth, error) {
	if month < time.January || month > time.December {
		return YearMonth{}, fmt.Errorf("%w: month %d", ErrInvalidYearMonth, month)
	}
	if year < 1 || year > 9999 {
		return YearMonth{}, fmt.Errorf("%w: year %d", ErrInvalidYearMonth, year)
	}
	return YearMonth{Year: year, Month: month}, nil
}

// Parse reads "YYYY-MM" (the storage and API form) or the card-face "MM/YY".
func Parse(s string) (YearMonth, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 7 && s[4] == '-':
		year, err := strconv.Atoi(s[:4])
		if err != nil {
			return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
		}
		month, err := strconv.Atoi(s[5:])
		if err != nil {
			return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
		}
		return New(year, time.Month(month))
	case len(s) == 5 && s[2] == '/':
		month, err := strconv.Atoi(s[:2])
		if err != nil {
			return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
		}
		yy, err := strconv.Atoi(s[3:])
		if err != nil {
			return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
		}
		return New(2000+yy, time.Month(month))
	default:
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
}

// String formats as YYYY-MM.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// CardFace formats as MM/YY.
func (ym YearMonth) CardFace() string {
	return fmt.Sprintf("%02d/%02d", int(ym.Month), ym.Year%100)
}

// IsZero reports whether ym is unset.
func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// Before reports whether ym is an earlier month than other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// EndOfMonth returns the last nanosecond of the month in loc.
func (ym YearMonth) EndOfMonth(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	firstOfNext := time.Date(ym.Year, ym.Month+1, 1, 0, 0, 0, 0, loc)
	return firstOfNext.Add(-time.Nanosecond)
}

// IsExpired reports whether the month ended before now. A card expiring in
// the current month is still valid.
func (ym YearMonth) IsExpired(now time.Time) bool {
	return ym.Before(Of(now))
}

// AddYears shifts the month by n years.
func (ym YearMonth) AddYears(n int) YearMonth {
	return YearMonth{Year: ym.Year + n, Month: ym.Month}
}

// MarshalText implements encoding.TextMarshaler.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}
