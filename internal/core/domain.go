package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// User owns categories, expenses and budgets. All core operations are
	// scoped to a single user; rows of other users are invisible.
	User struct {
		ID           int64
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Category is a per-user expense bucket. Names are not unique.
	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	// Expense is a single ledger entry. CategoryID is nil when the
	// category has been removed; ReceiptRef is an opaque handle into the
	// receipt artifact store, empty when no receipt was attached.
	Expense struct {
		ID          int64
		UserID      int64
		CategoryID  *int64
		Description string
		Amount      Money
		Date        time.Time
		ReceiptRef  string
	}

	// Budget is a monthly spending ceiling for one category.
	// (UserID, CategoryID, Month) is unique.
	Budget struct {
		ID         int64
		UserID     int64
		CategoryID int64
		Month      Month
		Amount     Money
	}
)

// DefaultCategories are seeded for every new user at registration.
var DefaultCategories = []string{"Food", "Transport", "Bills", "Health", "Other"}

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidMonth     = errors.New("invalid month: want YYYY-MM")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")

	// ErrNotFound covers both a missing row and a row owned by another
	// user, so ownership checks never reveal that foreign data exists.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a uniqueness violation: a duplicate budget
	// triple or a taken username.
	ErrConflict = errors.New("already exists")

	// ErrExtensionNotAllowed rejects receipt uploads outside the
	// canonical allow-list.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
)

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 40 {
		return errors.New("name too long (max 40 characters)")
	}
	return nil
}

func (e Expense) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 120 {
		return errors.New("description too long (max 120 characters)")
	}
	// Expense amounts are strictly positive; zero-value entries are noise.
	if e.Amount.Paise <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (b Budget) Validate() error {
	if err := b.Month.Validate(); err != nil {
		return err
	}
	// A zero budget is a legitimate ceiling ("spend nothing this month").
	if b.Amount.Paise < 0 {
		return ErrInvalidAmount
	}
	return nil
}
