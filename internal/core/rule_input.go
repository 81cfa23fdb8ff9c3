package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const maxRuleNameLength = 255

// RuleInput carries the caller-supplied fields of a rule create or update.
// It mirrors what a request layer decodes: nullable values next to their
// "is variable" switches. Validate turns it into the tagged descriptors.
type RuleInput struct {
	Name             string
	Kind             RuleKind
	Direction        Direction
	CategoryID       *int64
	Currency         Currency
	Amount           *decimal.Decimal
	AmountIsVariable bool
	DayOfMonth       *int
	DateIsVariable   bool
	StartDate        Date
	EndType          EndType
	TotalOccurrences *int
	Note             string

	// IsActive is honored on update only.
	IsActive *bool
}

// RuleSpec is the validated form of the three rule axes.
type RuleSpec struct {
	Amount      AmountSpec
	Day         DaySpec
	Termination Termination
}

// Validate checks field and cross-field invariants. It never touches storage,
// so nothing is written for an input that fails here.
func (in RuleInput) Validate() (RuleSpec, error) {
	var spec RuleSpec

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return spec, ErrEmptyName
	}
	if len(name) > maxRuleNameLength {
		return spec, fmt.Errorf("%w: name must not exceed %d characters", ErrValidation, maxRuleNameLength)
	}
	if !in.Kind.Valid() {
		return spec, ErrInvalidKind
	}
	if !in.Direction.Valid() {
		return spec, ErrInvalidDirection
	}
	if in.StartDate.IsEmpty() {
		return spec, ErrMissingStartDate
	}

	switch in.EndType {
	case EndFixedTerm:
		if in.TotalOccurrences == nil || *in.TotalOccurrences < 1 {
			return spec, fmt.Errorf("%w: FIXED_TERM rules require totalOccurrences >= 1", ErrValidation)
		}
		t, err := FixedTerm(*in.TotalOccurrences)
		if err != nil {
			return spec, err
		}
		spec.Termination = t
	case EndOpenEnded:
		spec.Termination = OpenEnded()
	default:
		return spec, ErrInvalidEndType
	}

	if in.AmountIsVariable {
		spec.Amount = VariableAmount()
	} else {
		if in.Amount == nil {
			return spec, fmt.Errorf("%w: fixed amount rules require an amount", ErrValidation)
		}
		a, err := FixedAmount(*in.Amount)
		if err != nil {
			return spec, err
		}
		spec.Amount = a
	}

	if in.DateIsVariable {
		spec.Day = VariableDay()
	} else {
		if in.DayOfMonth == nil {
			return spec, fmt.Errorf("%w: fixed date rules require dayOfMonth", ErrValidation)
		}
		d, err := FixedDay(*in.DayOfMonth)
		if err != nil {
			return spec, err
		}
		spec.Day = d
	}

	return spec, nil
}

// Apply overwrites every user-editable field of r with the input and spec.
// IsActive is only changed when the input carries it.
func (in RuleInput) Apply(r *Rule, spec RuleSpec, fallbackCurrency Currency) {
	r.Name = strings.TrimSpace(in.Name)
	r.Kind = in.Kind
	r.Direction = in.Direction
	r.CategoryID = in.CategoryID
	r.Currency = in.Currency
	if r.Currency == "" {
		r.Currency = fallbackCurrency
	}
	r.Amount = spec.Amount
	r.Day = spec.Day
	r.StartDate = in.StartDate
	r.Termination = spec.Termination
	r.Note = in.Note
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
}
