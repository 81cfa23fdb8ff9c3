package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers absent rules, instances and categories as well as
	// records owned by someone else; callers cannot tell the cases apart.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks cross-field invariant violations on rule input.
	ErrValidation = errors.New("validation failed")

	// ErrScheduleInvariant is returned when a computed scheduled date falls
	// outside the month it was computed for.
	ErrScheduleInvariant = errors.New("schedule invariant violated")
)

var (
	ErrInvalidDay         = fmt.Errorf("%w: day of month must be between 1 and 31", ErrValidation)
	ErrInvalidMonth       = fmt.Errorf("%w: invalid month", ErrValidation)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be zero or positive", ErrValidation)
	ErrInvalidOccurrences = fmt.Errorf("%w: total occurrences must be at least 1", ErrValidation)
	ErrEmptyName          = fmt.Errorf("%w: name is required", ErrValidation)
	ErrInvalidKind        = fmt.Errorf("%w: invalid rule kind", ErrValidation)
	ErrInvalidDirection   = fmt.Errorf("%w: direction must be income or expense", ErrValidation)
	ErrInvalidEndType     = fmt.Errorf("%w: end type must be FIXED_TERM or OPEN_ENDED", ErrValidation)
	ErrInvalidScope       = fmt.Errorf("%w: scope must be FUTURE_ONLY or ALL", ErrValidation)
	ErrMissingStartDate   = fmt.Errorf("%w: start date is required", ErrValidation)
)
