package core

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// AmountSpec is either Fixed(value) or Variable. The zero value is Variable.
type AmountSpec struct {
	fixed bool
	value decimal.Decimal
}

// FixedAmount returns a Fixed amount descriptor. Negative values are rejected.
func FixedAmount(v decimal.Decimal) (AmountSpec, error) {
	if v.IsNegative() {
		return AmountSpec{}, ErrInvalidAmount
	}
	return AmountSpec{fixed: true, value: v}, nil
}

func VariableAmount() AmountSpec {
	return AmountSpec{}
}

// Fixed returns the fixed value and true, or false for variable amounts.
func (a AmountSpec) Fixed() (decimal.Decimal, bool) {
	return a.value, a.fixed
}

func (a AmountSpec) IsVariable() bool {
	return !a.fixed
}

func (a AmountSpec) String() string {
	if !a.fixed {
		return "variable"
	}
	return a.value.StringFixed(2)
}

// DaySpec is either FixedDay(1..31) or Variable. The zero value is Variable.
type DaySpec struct {
	day int
}

func FixedDay(n int) (DaySpec, error) {
	if n < 1 || n > 31 {
		return DaySpec{}, ErrInvalidDay
	}
	return DaySpec{day: n}, nil
}

func VariableDay() DaySpec {
	return DaySpec{}
}

// Fixed returns the requested day of month and true, or false for variable dates.
func (d DaySpec) Fixed() (int, bool) {
	return d.day, d.day != 0
}

func (d DaySpec) IsVariable() bool {
	return d.day == 0
}

func (d DaySpec) String() string {
	if d.day == 0 {
		return "variable"
	}
	return strconv.Itoa(d.day)
}

// Termination is either FixedTerm(total) or OpenEnded. The zero value is OpenEnded.
type Termination struct {
	total int
}

func FixedTerm(total int) (Termination, error) {
	if total < 1 {
		return Termination{}, ErrInvalidOccurrences
	}
	return Termination{total: total}, nil
}

func OpenEnded() Termination {
	return Termination{}
}

// Total returns the number of occurrences and true for fixed-term rules.
func (t Termination) Total() (int, bool) {
	return t.total, t.total != 0
}

func (t Termination) IsFixedTerm() bool {
	return t.total != 0
}

func (t Termination) EndType() EndType {
	if t.total != 0 {
		return EndFixedTerm
	}
	return EndOpenEnded
}

func (t Termination) String() string {
	if t.total == 0 {
		return "open-ended"
	}
	return "fixed-term(" + strconv.Itoa(t.total) + ")"
}
