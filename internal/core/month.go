package core

import "time"

// Month is a calendar-month token in YYYY-MM form, always exactly 7
// characters. It is the key used for budget uniqueness and expense
// aggregation, stored verbatim in the database.
type Month string

// ParseMonth validates a YYYY-MM token: 4-digit year, hyphen, 2-digit
// month in 01..12.
func ParseMonth(s string) (Month, error) {
	if len(s) != 7 || s[4] != '-' {
		return "", ErrInvalidMonth
	}
	for i, r := range s {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return "", ErrInvalidMonth
		}
	}
	mm := int(s[5]-'0')*10 + int(s[6]-'0')
	if mm < 1 || mm > 12 {
		return "", ErrInvalidMonth
	}
	return Month(s), nil
}

// MonthOf returns the month token containing t.
func MonthOf(t time.Time) Month {
	return Month(t.Format("2006-01"))
}

func (m Month) String() string { return string(m) }

// Validate re-checks the token format. A zero-value Month is invalid.
func (m Month) Validate() error {
	_, err := ParseMonth(string(m))
	return err
}
