package core

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-05", true},
		{"2024-01", true},
		{"2024-12", true},
		{"2024-00", false},
		{"2024-13", false},
		{"2024-5", false},   // too short
		{"2024-055", false}, // too long
		{"202405", false},   // missing hyphen
		{"2024/05", false},
		{"abcd-05", false},
		{"", false},
	}
	for _, tc := range cases {
		m, err := ParseMonth(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q expected ok, got %v", tc.in, err)
			}
			if m.String() != tc.in {
				t.Fatalf("%q round-trip mismatch: %q", tc.in, m)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMonthOf(t *testing.T) {
	d := time.Date(2024, time.May, 10, 15, 4, 5, 0, time.UTC)
	if got := MonthOf(d); got != "2024-05" {
		t.Fatalf("expected 2024-05, got %q", got)
	}
}

func TestMonthValidate(t *testing.T) {
	if err := Month("2024-05").Validate(); err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if err := Month("").Validate(); err == nil {
		t.Fatal("expected zero-value token to be invalid")
	}
}
