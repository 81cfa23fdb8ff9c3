package storage

import (
	"database/sql"
)

// Row types mirror the tables in migrations/. Dates are stored as
// YYYY-MM-DD text and timestamps as fixed-width UTC text so that both sort
// lexicographically.

type Category struct {
	ID        int64
	OwnerID   int64
	Name      string
	CreatedAt string
}

type RecurringRule struct {
	ID               int64
	OwnerID          int64
	Name             string
	Kind             string
	Direction        string
	CategoryID       sql.NullInt64
	Currency         string
	Amount           sql.NullString
	DayOfMonth       sql.NullInt64
	StartDate        string
	TotalOccurrences sql.NullInt64
	Note             string
	IsActive         bool
	CreatedAt        string
	UpdatedAt        string
}

type Entry struct {
	ID                 int64
	OwnerID            int64
	CategoryID         sql.NullInt64
	Direction          string
	Amount             string
	Currency           string
	EntryDate          string
	Note               string
	SourceRuleID       sql.NullInt64
	SourceScheduledFor sql.NullString
	CreatedAt          string
	UpdatedAt          string
}

type RecurringInstance struct {
	ID               int64
	RuleID           int64
	EntryID          int64
	ScheduledFor     string
	ScheduledYear    int64
	ScheduledMonth   int64
	OccurrenceIndex  sql.NullInt64
	IsManualOverride bool
	CreatedAt        string
}
