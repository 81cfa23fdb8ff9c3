package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindLoan         RuleKind = "loan"
	KindSubscription RuleKind = "subscription"
	KindIncome       RuleKind = "income"
	KindBill         RuleKind = "bill"
	KindCreditCard   RuleKind = "credit_card"
	KindOther        RuleKind = "other"
)

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

const (
	EndFixedTerm EndType = "FIXED_TERM"
	EndOpenEnded EndType = "OPEN_ENDED"
)

const (
	// ScopeFutureOnly propagates rule edits to instances scheduled today or later.
	ScopeFutureOnly ApplyScope = "FUTURE_ONLY"
	// ScopeAll propagates rule edits to every instance, past and future.
	ScopeAll ApplyScope = "ALL"
)

// DefaultCurrency is used when neither the input nor the configuration names one.
const DefaultCurrency Currency = "RSD"

type (
	RuleKind   string
	Direction  string
	EndType    string
	ApplyScope string
	Currency   string

	Date struct {
		time.Time
	}

	// Rule is a user-defined template describing a periodic income or expense.
	Rule struct {
		ID          int64
		OwnerID     int64
		Name        string
		Kind        RuleKind
		Direction   Direction
		CategoryID  *int64
		Currency    Currency
		Amount      AmountSpec
		Day         DaySpec
		StartDate   Date
		Termination Termination
		Note        string
		IsActive    bool
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Instance links one generated entry to the rule occurrence that produced it.
	Instance struct {
		ID               int64
		RuleID           int64
		EntryID          int64
		ScheduledFor     Date
		OccurrenceIndex  *int // set only for fixed-term rules
		IsManualOverride bool
		CreatedAt        time.Time
	}

	// EntrySource is the backlink carried by generated entries.
	EntrySource struct {
		RuleID       int64
		ScheduledFor Date
	}

	Entry struct {
		ID         int64
		OwnerID    int64
		CategoryID *int64
		Direction  Direction
		Amount     decimal.Decimal
		Currency   Currency
		Date       Date
		Note       string
		Source     *EntrySource // nil for manually created entries
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	Category struct {
		ID      int64
		OwnerID int64
		Name    string
	}
)

func (k RuleKind) Valid() bool {
	switch k {
	case KindLoan, KindSubscription, KindIncome, KindBill, KindCreditCard, KindOther:
		return true
	}
	return false
}

func (d Direction) Valid() bool {
	return d == Income || d == Expense
}

func (s ApplyScope) Valid() bool {
	return s == ScopeFutureOnly || s == ScopeAll
}

// ParseApplyScope maps an empty string to ScopeFutureOnly.
func ParseApplyScope(s string) (ApplyScope, error) {
	if s == "" {
		return ScopeFutureOnly, nil
	}
	scope := ApplyScope(s)
	if !scope.Valid() {
		return "", ErrInvalidScope
	}
	return scope, nil
}

// StartMonth returns the calendar month of the rule's first occurrence.
func (r Rule) StartMonth() Month {
	return MonthOf(r.StartDate)
}

// IsGenerated reports whether the entry was materialized from a rule.
func (e Entry) IsGenerated() bool {
	return e.Source != nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}
