package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func ruleToParams(r core.Rule) CreateRuleParams {
	p := CreateRuleParams{
		OwnerID:    r.OwnerID,
		Name:       r.Name,
		Kind:       string(r.Kind),
		Direction:  string(r.Direction),
		CategoryID: nullInt64(r.CategoryID),
		Currency:   string(r.Currency),
		StartDate:  r.StartDate.String(),
		Note:       r.Note,
		IsActive:   r.IsActive,
	}
	if v, ok := r.Amount.Fixed(); ok {
		p.Amount = sql.NullString{String: v.String(), Valid: true}
	}
	if d, ok := r.Day.Fixed(); ok {
		p.DayOfMonth = sql.NullInt64{Int64: int64(d), Valid: true}
	}
	if n, ok := r.Termination.Total(); ok {
		p.TotalOccurrences = sql.NullInt64{Int64: int64(n), Valid: true}
	}
	return p
}

func ruleFromRow(row RecurringRule) (core.Rule, error) {
	r := core.Rule{
		ID:         row.ID,
		OwnerID:    row.OwnerID,
		Name:       row.Name,
		Kind:       core.RuleKind(row.Kind),
		Direction:  core.Direction(row.Direction),
		CategoryID: int64Ptr(row.CategoryID),
		Currency:   core.Currency(row.Currency),
		Note:       row.Note,
		IsActive:   row.IsActive,
		CreatedAt:  parseTimestamp(row.CreatedAt),
		UpdatedAt:  parseTimestamp(row.UpdatedAt),
	}

	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return r, fmt.Errorf("rule %d start date: %w", row.ID, err)
	}
	r.StartDate = start

	if row.Amount.Valid {
		v, err := decimal.NewFromString(row.Amount.String)
		if err != nil {
			return r, fmt.Errorf("rule %d amount: %w", row.ID, err)
		}
		if r.Amount, err = core.FixedAmount(v); err != nil {
			return r, fmt.Errorf("rule %d amount: %w", row.ID, err)
		}
	}
	if row.DayOfMonth.Valid {
		if r.Day, err = core.FixedDay(int(row.DayOfMonth.Int64)); err != nil {
			return r, fmt.Errorf("rule %d day: %w", row.ID, err)
		}
	}
	if row.TotalOccurrences.Valid {
		if r.Termination, err = core.FixedTerm(int(row.TotalOccurrences.Int64)); err != nil {
			return r, fmt.Errorf("rule %d termination: %w", row.ID, err)
		}
	}
	return r, nil
}

func entryFromRow(row Entry) (core.Entry, error) {
	e := core.Entry{
		ID:         row.ID,
		OwnerID:    row.OwnerID,
		CategoryID: int64Ptr(row.CategoryID),
		Direction:  core.Direction(row.Direction),
		Currency:   core.Currency(row.Currency),
		Note:       row.Note,
		CreatedAt:  parseTimestamp(row.CreatedAt),
		UpdatedAt:  parseTimestamp(row.UpdatedAt),
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return e, fmt.Errorf("entry %d amount: %w", row.ID, err)
	}
	e.Amount = amount
	if e.Date, err = core.ParseDate(row.EntryDate); err != nil {
		return e, fmt.Errorf("entry %d date: %w", row.ID, err)
	}
	if row.SourceRuleID.Valid {
		src := &core.EntrySource{RuleID: row.SourceRuleID.Int64}
		if row.SourceScheduledFor.Valid {
			if src.ScheduledFor, err = core.ParseDate(row.SourceScheduledFor.String); err != nil {
				return e, fmt.Errorf("entry %d source date: %w", row.ID, err)
			}
		}
		e.Source = src
	}
	return e, nil
}

func instanceFromRow(row RecurringInstance) (core.Instance, error) {
	in := core.Instance{
		ID:               row.ID,
		RuleID:           row.RuleID,
		EntryID:          row.EntryID,
		IsManualOverride: row.IsManualOverride,
		CreatedAt:        parseTimestamp(row.CreatedAt),
	}
	d, err := core.ParseDate(row.ScheduledFor)
	if err != nil {
		return in, fmt.Errorf("instance %d date: %w", row.ID, err)
	}
	in.ScheduledFor = d
	if row.OccurrenceIndex.Valid {
		idx := int(row.OccurrenceIndex.Int64)
		in.OccurrenceIndex = &idx
	}
	return in, nil
}

func instancesFromRows(rows []RecurringInstance) ([]core.Instance, error) {
	out := make([]core.Instance, 0, len(rows))
	for _, row := range rows {
		in, err := instanceFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func occurrenceIndex(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
