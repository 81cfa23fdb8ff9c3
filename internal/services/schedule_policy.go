// Package services holds the recurring-rule engine: sync, propagation of rule
// edits and rule lifecycle.
//
// This file maps each date descriptor to a SchedulePolicy that decides
// whether the engine may materialize an occurrence on its own.

package services

import (
	"fmt"

	"bilancio/internal/core"
)

// VariableDateSkipReason is reported for rules the engine never generates.
const VariableDateSkipReason = "variable date rule — requires manual confirmation"

// DateMode names the arm of a rule's date descriptor.
type DateMode string

const (
	DateFixed    DateMode = "fixed"
	DateVariable DateMode = "variable"
)

// DateModeOf returns the mode of a date descriptor.
func DateModeOf(d core.DaySpec) DateMode {
	if d.IsVariable() {
		return DateVariable
	}
	return DateFixed
}

// SchedulePolicy is the strategy interface for one date mode.
type SchedulePolicy interface {
	// Occurrence returns the date the rule falls on in month m.
	Occurrence(r core.Rule, m core.Month) core.Date
	// AutoGenerate reports whether sync may create entries without the user.
	AutoGenerate() bool
	// SkipReason explains why sync left the rule alone.
	SkipReason() string
}

// FixedDayPolicy schedules on the rule's day, clamped to the month length.
type FixedDayPolicy struct{}

func (FixedDayPolicy) Occurrence(r core.Rule, m core.Month) core.Date {
	return core.ScheduledDate(r.Day, m)
}

func (FixedDayPolicy) AutoGenerate() bool { return true }
func (FixedDayPolicy) SkipReason() string { return "" }

// VariableDayPolicy needs the user to confirm every occurrence.
type VariableDayPolicy struct{}

func (VariableDayPolicy) Occurrence(r core.Rule, m core.Month) core.Date {
	return core.ScheduledDate(r.Day, m)
}

func (VariableDayPolicy) AutoGenerate() bool { return false }
func (VariableDayPolicy) SkipReason() string { return VariableDateSkipReason }

var schedulePolicies = map[DateMode]SchedulePolicy{
	DateFixed:    FixedDayPolicy{},
	DateVariable: VariableDayPolicy{},
}

// GetSchedulePolicy returns the policy for the rule's date descriptor.
func GetSchedulePolicy(r core.Rule) (SchedulePolicy, error) {
	mode := DateModeOf(r.Day)
	p, ok := schedulePolicies[mode]
	if !ok {
		return nil, fmt.Errorf("unknown date mode: %s", mode)
	}
	return p, nil
}
