package valueobject

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// Period identifies a billing month. Dues are generated once per unit per
// period, and FIFO allocation orders open dues by period.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// NewPeriod creates a Period after validating year and month ranges
func NewPeriod(year, month int) (Period, error) {
	if year < 2000 || year > 2200 {
		return Period{}, fmt.Errorf("invalid period year: %d", year)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("invalid period month: %d", month)
	}
	return Period{Year: year, Month: month}, nil
}

// ParsePeriod parses a "YYYY-MM" string
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return NewPeriod(t.Year(), int(t.Month()))
}

// CurrentPeriod returns the period containing the given time
func CurrentPeriod(now time.Time) Period {
	return Period{Year: now.Year(), Month: int(now.Month())}
}

// IsZero reports whether the period is unset
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Before reports whether p is strictly earlier than other
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Compare returns -1, 0 or 1 ordering p against other
func (p Period) Compare(other Period) int {
	switch {
	case p.Before(other):
		return -1
	case other.Before(p):
		return 1
	default:
		return 0
	}
}

// Next returns the following period
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// String renders the canonical "YYYY-MM" form
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Value implements driver.Valuer; stored as "YYYY-MM" text
func (p Period) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.String(), nil
}

// Scan implements sql.Scanner
func (p *Period) Scan(value interface{}) error {
	if value == nil {
		*p = Period{}
		return nil
	}
	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return errors.New("failed to scan Period: unsupported type")
	}
	if s == "" {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
