package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements ledger.Store on top of a single SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	inTx    bool
	now     func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; transactions queue on the connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil && !r.inTx {
		return r.db.Close()
	}
	return nil
}

// WithTx runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	if r.inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txRepo := &SQLiteRepository{
		db:      r.db,
		queries: r.queries.WithTx(tx),
		inTx:    true,
		now:     r.now,
	}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %d: %w", what, id, err)
}

// AddCategory stores a category for owner. Category management belongs to
// another service; this exists to seed data for ownership checks.
func (r *SQLiteRepository) AddCategory(ctx context.Context, ownerID int64, name string) (core.Category, error) {
	c, err := r.queries.CreateCategory(ctx, CreateCategoryParams{
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: formatTimestamp(r.now()),
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return core.Category{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name}, nil
}

// GetCategory implements ledger.CategoryReader
func (r *SQLiteRepository) GetCategory(ctx context.Context, id, ownerID int64) (core.Category, error) {
	c, err := r.queries.GetCategory(ctx, GetCategoryParams{ID: id, OwnerID: ownerID})
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return core.Category{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name}, nil
}

// ListActiveRules implements ledger.RuleStore
func (r *SQLiteRepository) ListActiveRules(ctx context.Context, ownerID int64) ([]core.Rule, error) {
	rows, err := r.queries.ListActiveRulesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	return rulesFromRows(rows)
}

// ListRules implements ledger.RuleStore
func (r *SQLiteRepository) ListRules(ctx context.Context, ownerID int64) ([]core.Rule, error) {
	rows, err := r.queries.ListRulesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rulesFromRows(rows)
}

func rulesFromRows(rows []RecurringRule) ([]core.Rule, error) {
	out := make([]core.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := ruleFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// GetRule implements ledger.RuleStore
func (r *SQLiteRepository) GetRule(ctx context.Context, id, ownerID int64) (core.Rule, error) {
	row, err := r.queries.GetRule(ctx, GetRuleParams{ID: id, OwnerID: ownerID})
	if err != nil {
		return core.Rule{}, notFound(err, "rule", id)
	}
	return ruleFromRow(row)
}

// CreateRule implements ledger.RuleStore
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule *core.Rule) error {
	now := formatTimestamp(r.now())
	params := ruleToParams(*rule)
	params.CreatedAt = now
	params.UpdatedAt = now

	row, err := r.queries.CreateRule(ctx, params)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	rule.ID = row.ID
	rule.CreatedAt = parseTimestamp(row.CreatedAt)
	rule.UpdatedAt = parseTimestamp(row.UpdatedAt)

	slog.DebugContext(ctx, "Rule saved to SQLite", "rule_id", rule.ID, "owner_id", rule.OwnerID)
	return nil
}

// UpdateRule implements ledger.RuleStore
func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.Rule) error {
	p := ruleToParams(rule)
	n, err := r.queries.UpdateRule(ctx, UpdateRuleParams{
		Name:             p.Name,
		Kind:             p.Kind,
		Direction:        p.Direction,
		CategoryID:       p.CategoryID,
		Currency:         p.Currency,
		Amount:           p.Amount,
		DayOfMonth:       p.DayOfMonth,
		StartDate:        p.StartDate,
		TotalOccurrences: p.TotalOccurrences,
		Note:             p.Note,
		IsActive:         p.IsActive,
		UpdatedAt:        formatTimestamp(r.now()),
		ID:               rule.ID,
		OwnerID:          rule.OwnerID,
	})
	if err != nil {
		return fmt.Errorf("update rule %d: %w", rule.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("rule %d: %w", rule.ID, core.ErrNotFound)
	}
	return nil
}

// InstanceExistsForMonth implements ledger.InstanceLedger
func (r *SQLiteRepository) InstanceExistsForMonth(ctx context.Context, ruleID int64, m core.Month) (bool, error) {
	ok, err := r.queries.InstanceExistsForMonth(ctx, InstanceExistsForMonthParams{
		RuleID:         ruleID,
		ScheduledYear:  int64(m.Year),
		ScheduledMonth: int64(m.Month),
	})
	if err != nil {
		return false, fmt.Errorf("check instance for %s: %w", m, err)
	}
	return ok, nil
}

// CountInstances implements ledger.InstanceLedger
func (r *SQLiteRepository) CountInstances(ctx context.Context, ruleID int64) (int, error) {
	n, err := r.queries.CountInstancesByRule(ctx, ruleID)
	if err != nil {
		return 0, fmt.Errorf("count instances: %w", err)
	}
	return int(n), nil
}

// ListInstances implements ledger.InstanceLedger
func (r *SQLiteRepository) ListInstances(ctx context.Context, ruleID int64) ([]core.Instance, error) {
	rows, err := r.queries.ListInstancesByRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instancesFromRows(rows)
}

func (r *SQLiteRepository) ListNonOverriddenInstances(ctx context.Context, ruleID int64) ([]core.Instance, error) {
	rows, err := r.queries.ListNonOverriddenInstancesByRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("list non-overridden instances: %w", err)
	}
	return instancesFromRows(rows)
}

func (r *SQLiteRepository) ListFutureNonOverriddenInstances(ctx context.Context, ruleID int64, from core.Date) ([]core.Instance, error) {
	rows, err := r.queries.ListFutureNonOverriddenInstancesByRule(ctx, ListFutureInstancesParams{
		RuleID: ruleID,
		From:   from.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("list future non-overridden instances: %w", err)
	}
	return instancesFromRows(rows)
}

func (r *SQLiteRepository) ListFutureInstances(ctx context.Context, ruleID int64, from core.Date) ([]core.Instance, error) {
	rows, err := r.queries.ListFutureInstancesByRule(ctx, ListFutureInstancesParams{
		RuleID: ruleID,
		From:   from.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("list future instances: %w", err)
	}
	return instancesFromRows(rows)
}

func (r *SQLiteRepository) GetInstance(ctx context.Context, id int64) (core.Instance, error) {
	row, err := r.queries.GetInstance(ctx, id)
	if err != nil {
		return core.Instance{}, notFound(err, "instance", id)
	}
	return instanceFromRow(row)
}

func (r *SQLiteRepository) FindInstanceByEntryID(ctx context.Context, entryID int64) (core.Instance, error) {
	row, err := r.queries.GetInstanceByEntryID(ctx, entryID)
	if err != nil {
		return core.Instance{}, notFound(err, "instance for entry", entryID)
	}
	return instanceFromRow(row)
}

func (r *SQLiteRepository) CreateInstance(ctx context.Context, in *core.Instance) error {
	m := core.MonthOf(in.ScheduledFor)
	row, err := r.queries.CreateInstance(ctx, CreateInstanceParams{
		RuleID:           in.RuleID,
		EntryID:          in.EntryID,
		ScheduledFor:     in.ScheduledFor.String(),
		ScheduledYear:    int64(m.Year),
		ScheduledMonth:   int64(m.Month),
		OccurrenceIndex:  occurrenceIndex(in.OccurrenceIndex),
		IsManualOverride: in.IsManualOverride,
		CreatedAt:        formatTimestamp(r.now()),
	})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	in.ID = row.ID
	in.CreatedAt = parseTimestamp(row.CreatedAt)
	return nil
}

func (r *SQLiteRepository) UpdateInstance(ctx context.Context, in core.Instance) error {
	m := core.MonthOf(in.ScheduledFor)
	n, err := r.queries.UpdateInstance(ctx, UpdateInstanceParams{
		ScheduledFor:     in.ScheduledFor.String(),
		ScheduledYear:    int64(m.Year),
		ScheduledMonth:   int64(m.Month),
		OccurrenceIndex:  occurrenceIndex(in.OccurrenceIndex),
		IsManualOverride: in.IsManualOverride,
		ID:               in.ID,
	})
	if err != nil {
		return fmt.Errorf("update instance %d: %w", in.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("instance %d: %w", in.ID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteInstance(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteInstance(ctx, id)
	if err != nil {
		return fmt.Errorf("delete instance %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("instance %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// CreateEntry implements ledger.EntryLedger
func (r *SQLiteRepository) CreateEntry(ctx context.Context, e *core.Entry) error {
	now := formatTimestamp(r.now())
	params := CreateEntryParams{
		OwnerID:    e.OwnerID,
		CategoryID: nullInt64(e.CategoryID),
		Direction:  string(e.Direction),
		Amount:     e.Amount.String(),
		Currency:   string(e.Currency),
		EntryDate:  e.Date.String(),
		Note:       e.Note,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if e.Source != nil {
		params.SourceRuleID = sql.NullInt64{Int64: e.Source.RuleID, Valid: true}
		params.SourceScheduledFor = sql.NullString{String: e.Source.ScheduledFor.String(), Valid: true}
	}
	row, err := r.queries.CreateEntry(ctx, params)
	if err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	e.ID = row.ID
	e.CreatedAt = parseTimestamp(row.CreatedAt)
	e.UpdatedAt = parseTimestamp(row.UpdatedAt)
	return nil
}

// UpdateEntry implements ledger.EntryLedger. The source backlink is immutable.
func (r *SQLiteRepository) UpdateEntry(ctx context.Context, e core.Entry) error {
	params := UpdateEntryParams{
		CategoryID: nullInt64(e.CategoryID),
		Direction:  string(e.Direction),
		Amount:     e.Amount.String(),
		Currency:   string(e.Currency),
		EntryDate:  e.Date.String(),
		Note:       e.Note,
		UpdatedAt:  formatTimestamp(r.now()),
		ID:         e.ID,
	}
	if e.Source != nil {
		params.SourceRuleID = sql.NullInt64{Int64: e.Source.RuleID, Valid: true}
		params.SourceScheduledFor = sql.NullString{String: e.Source.ScheduledFor.String(), Valid: true}
	}
	n, err := r.queries.UpdateEntry(ctx, params)
	if err != nil {
		return fmt.Errorf("update entry %d: %w", e.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("entry %d: %w", e.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteEntry implements ledger.EntryLedger
func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("entry %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// GetEntry implements ledger.EntryLedger
func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row, err := r.queries.GetEntry(ctx, id)
	if err != nil {
		return core.Entry{}, notFound(err, "entry", id)
	}
	return entryFromRow(row)
}
