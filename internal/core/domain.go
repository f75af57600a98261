package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// SavingsCategory is excluded from spending totals but still reduces the
	// remaining balance.
	SavingsCategory = "Savings"

	DefaultCurrency = "UGX"

	MaxTitleLength    = 100
	MaxCategoryLength = 50
)

const (
	StatusPending EntryStatus = "pending"
	StatusCovered EntryStatus = "covered"
)

type (
	EntryStatus string

	// User is the account owning a ledger. DeclaredBalance is the budget
	// ceiling the user set explicitly; entry operations never modify it.
	User struct {
		ID              int64
		Email           string
		FullName        string
		PasswordHash    string
		BaseCurrency    string
		DeclaredBalance decimal.Decimal
		CreatedAt       time.Time

		Profile Profile
	}

	// Profile holds optional identity fields. Nil means not provided.
	Profile struct {
		Phone       *string
		HomeAddress *string
		NationalID  *string
		DOB         *time.Time
	}

	// Entry is one expense or saving recorded against a user's balance.
	Entry struct {
		ID         int64
		OwnerID    int64
		Title      string
		Category   string
		Amount     decimal.Decimal
		OccurredAt time.Time
		Covered    bool
	}

	// Budget is a per-category allocation set by the user.
	Budget struct {
		ID        int64
		OwnerID   int64
		Category  string
		Allocated decimal.Decimal
	}

	// Activity is an audit record of a ledger event.
	Activity struct {
		ID         int64
		EventID    string
		OwnerID    int64
		Kind       string
		EntryID    int64
		Title      string
		Amount     decimal.Decimal
		RecordedAt time.Time
	}

	// EntryFilter narrows ListEntries. Zero value lists everything.
	EntryFilter struct {
		Category    string
		PendingOnly bool
		Before      time.Time
	}
)

var (
	ErrInvalidAmount   = Invalid("", "amount must be greater than zero")
	ErrEmptyTitle      = Invalid("", "title cannot be empty")
	ErrTitleTooLong    = Invalid("", "title too long (max 100 characters)")
	ErrEmptyCategory   = Invalid("", "category cannot be empty")
	ErrCategoryTooLong = Invalid("", "category too long (max 50 characters)")
)

// Status reports the workflow state. It has no effect on ledger inclusion.
func (e Entry) Status() EntryStatus {
	if e.Covered {
		return StatusCovered
	}
	return StatusPending
}

func (e Entry) IsSavings() bool {
	return e.Category == SavingsCategory
}

// MarkPaid moves the entry to covered. It reports whether anything changed so
// callers can skip the write when the entry was already covered.
func (e *Entry) MarkPaid() bool {
	if e.Covered {
		return false
	}
	e.Covered = true
	return true
}

// Authorize checks that requester owns the entry.
func (e Entry) Authorize(op string, requesterID int64) error {
	if e.OwnerID != requesterID {
		return Unauthorized(op, "entry", e.ID)
	}
	return nil
}

func (e Entry) Validate() error {
	if err := ValidateTitle(e.Title); err != nil {
		return err
	}
	if err := ValidateCategory(e.Category); err != nil {
		return err
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		return Invalid("", "date cannot be zero")
	}
	return nil
}

func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

func ValidateCategory(category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	return nil
}

func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (b Budget) Validate() error {
	if err := ValidateCategory(b.Category); err != nil {
		return err
	}
	if b.Allocated.IsNegative() {
		return Invalid("", "allocation cannot be negative")
	}
	return nil
}

// Currency returns the user's base currency, falling back to UGX.
func (u User) Currency() string {
	if strings.TrimSpace(u.BaseCurrency) == "" {
		return DefaultCurrency
	}
	return u.BaseCurrency
}

// StringOr returns *p or def when p is nil.
func StringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
