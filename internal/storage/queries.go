package storage

import (
	"context"
	"database/sql"
)

const ruleColumns = `id, owner_id, name, kind, direction, category_id, currency, amount,
    day_of_month, start_date, total_occurrences, note, is_active, created_at, updated_at`

const instanceColumns = `id, rule_id, entry_id, scheduled_for, scheduled_year, scheduled_month,
    occurrence_index, is_manual_override, created_at`

const entryColumns = `id, owner_id, category_id, direction, amount, currency, entry_date, note,
    source_rule_id, source_scheduled_for, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (RecurringRule, error) {
	var i RecurringRule
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Name,
		&i.Kind,
		&i.Direction,
		&i.CategoryID,
		&i.Currency,
		&i.Amount,
		&i.DayOfMonth,
		&i.StartDate,
		&i.TotalOccurrences,
		&i.Note,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanInstance(row rowScanner) (RecurringInstance, error) {
	var i RecurringInstance
	err := row.Scan(
		&i.ID,
		&i.RuleID,
		&i.EntryID,
		&i.ScheduledFor,
		&i.ScheduledYear,
		&i.ScheduledMonth,
		&i.OccurrenceIndex,
		&i.IsManualOverride,
		&i.CreatedAt,
	)
	return i, err
}

func scanEntry(row rowScanner) (Entry, error) {
	var i Entry
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.CategoryID,
		&i.Direction,
		&i.Amount,
		&i.Currency,
		&i.EntryDate,
		&i.Note,
		&i.SourceRuleID,
		&i.SourceScheduledFor,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// --- categories

const createCategory = `INSERT INTO categories (owner_id, name, created_at)
VALUES (?, ?, ?)
RETURNING id, owner_id, name, created_at`

type CreateCategoryParams struct {
	OwnerID   int64
	Name      string
	CreatedAt string
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory, arg.OwnerID, arg.Name, arg.CreatedAt)
	var i Category
	err := row.Scan(&i.ID, &i.OwnerID, &i.Name, &i.CreatedAt)
	return i, err
}

const getCategory = `SELECT id, owner_id, name, created_at FROM categories
WHERE id = ? AND owner_id = ?`

type GetCategoryParams struct {
	ID      int64
	OwnerID int64
}

func (q *Queries) GetCategory(ctx context.Context, arg GetCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategory, arg.ID, arg.OwnerID)
	var i Category
	err := row.Scan(&i.ID, &i.OwnerID, &i.Name, &i.CreatedAt)
	return i, err
}

// --- rules

const createRule = `INSERT INTO recurring_rules (
    owner_id, name, kind, direction, category_id, currency, amount,
    day_of_month, start_date, total_occurrences, note, is_active, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + ruleColumns

type CreateRuleParams struct {
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

func (q *Queries) CreateRule(ctx context.Context, arg CreateRuleParams) (RecurringRule, error) {
	row := q.db.QueryRowContext(ctx, createRule,
		arg.OwnerID,
		arg.Name,
		arg.Kind,
		arg.Direction,
		arg.CategoryID,
		arg.Currency,
		arg.Amount,
		arg.DayOfMonth,
		arg.StartDate,
		arg.TotalOccurrences,
		arg.Note,
		arg.IsActive,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanRule(row)
}

const updateRule = `UPDATE recurring_rules SET
    name = ?, kind = ?, direction = ?, category_id = ?, currency = ?, amount = ?,
    day_of_month = ?, start_date = ?, total_occurrences = ?, note = ?, is_active = ?,
    updated_at = ?
WHERE id = ? AND owner_id = ?`

type UpdateRuleParams struct {
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
	UpdatedAt        string
	ID               int64
	OwnerID          int64
}

func (q *Queries) UpdateRule(ctx context.Context, arg UpdateRuleParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateRule,
		arg.Name,
		arg.Kind,
		arg.Direction,
		arg.CategoryID,
		arg.Currency,
		arg.Amount,
		arg.DayOfMonth,
		arg.StartDate,
		arg.TotalOccurrences,
		arg.Note,
		arg.IsActive,
		arg.UpdatedAt,
		arg.ID,
		arg.OwnerID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getRule = `SELECT ` + ruleColumns + ` FROM recurring_rules
WHERE id = ? AND owner_id = ?`

type GetRuleParams struct {
	ID      int64
	OwnerID int64
}

func (q *Queries) GetRule(ctx context.Context, arg GetRuleParams) (RecurringRule, error) {
	row := q.db.QueryRowContext(ctx, getRule, arg.ID, arg.OwnerID)
	return scanRule(row)
}

const listRulesByOwner = `SELECT ` + ruleColumns + ` FROM recurring_rules
WHERE owner_id = ?
ORDER BY created_at DESC, id DESC`

func (q *Queries) ListRulesByOwner(ctx context.Context, ownerID int64) ([]RecurringRule, error) {
	return q.listRules(ctx, listRulesByOwner, ownerID)
}

const listActiveRulesByOwner = `SELECT ` + ruleColumns + ` FROM recurring_rules
WHERE owner_id = ? AND is_active = 1
ORDER BY created_at DESC, id DESC`

func (q *Queries) ListActiveRulesByOwner(ctx context.Context, ownerID int64) ([]RecurringRule, error) {
	return q.listRules(ctx, listActiveRulesByOwner, ownerID)
}

func (q *Queries) listRules(ctx context.Context, query string, args ...interface{}) ([]RecurringRule, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurringRule
	for rows.Next() {
		i, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// --- entries

const createEntry = `INSERT INTO entries (
    owner_id, category_id, direction, amount, currency, entry_date, note,
    source_rule_id, source_scheduled_for, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + entryColumns

type CreateEntryParams struct {
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

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) (Entry, error) {
	row := q.db.QueryRowContext(ctx, createEntry,
		arg.OwnerID,
		arg.CategoryID,
		arg.Direction,
		arg.Amount,
		arg.Currency,
		arg.EntryDate,
		arg.Note,
		arg.SourceRuleID,
		arg.SourceScheduledFor,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanEntry(row)
}

const updateEntry = `UPDATE entries SET
    category_id = ?, direction = ?, amount = ?, currency = ?, entry_date = ?, note = ?,
    source_rule_id = ?, source_scheduled_for = ?, updated_at = ?
WHERE id = ?`

type UpdateEntryParams struct {
	CategoryID         sql.NullInt64
	Direction          string
	Amount             string
	Currency           string
	EntryDate          string
	Note               string
	SourceRuleID       sql.NullInt64
	SourceScheduledFor sql.NullString
	UpdatedAt          string
	ID                 int64
}

func (q *Queries) UpdateEntry(ctx context.Context, arg UpdateEntryParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateEntry,
		arg.CategoryID,
		arg.Direction,
		arg.Amount,
		arg.Currency,
		arg.EntryDate,
		arg.Note,
		arg.SourceRuleID,
		arg.SourceScheduledFor,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteEntry = `DELETE FROM entries WHERE id = ?`

func (q *Queries) DeleteEntry(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEntry, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getEntry = `SELECT ` + entryColumns + ` FROM entries WHERE id = ?`

func (q *Queries) GetEntry(ctx context.Context, id int64) (Entry, error) {
	row := q.db.QueryRowContext(ctx, getEntry, id)
	return scanEntry(row)
}

// --- instances

const createInstance = `INSERT INTO recurring_instances (
    rule_id, entry_id, scheduled_for, scheduled_year, scheduled_month,
    occurrence_index, is_manual_override, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + instanceColumns

type CreateInstanceParams struct {
	RuleID           int64
	EntryID          int64
	ScheduledFor     string
	ScheduledYear    int64
	ScheduledMonth   int64
	OccurrenceIndex  sql.NullInt64
	IsManualOverride bool
	CreatedAt        string
}

func (q *Queries) CreateInstance(ctx context.Context, arg CreateInstanceParams) (RecurringInstance, error) {
	row := q.db.QueryRowContext(ctx, createInstance,
		arg.RuleID,
		arg.EntryID,
		arg.ScheduledFor,
		arg.ScheduledYear,
		arg.ScheduledMonth,
		arg.OccurrenceIndex,
		arg.IsManualOverride,
		arg.CreatedAt,
	)
	return scanInstance(row)
}

const updateInstance = `UPDATE recurring_instances SET
    scheduled_for = ?, scheduled_year = ?, scheduled_month = ?,
    occurrence_index = ?, is_manual_override = ?
WHERE id = ?`

type UpdateInstanceParams struct {
	ScheduledFor     string
	ScheduledYear    int64
	ScheduledMonth   int64
	OccurrenceIndex  sql.NullInt64
	IsManualOverride bool
	ID               int64
}

func (q *Queries) UpdateInstance(ctx context.Context, arg UpdateInstanceParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateInstance,
		arg.ScheduledFor,
		arg.ScheduledYear,
		arg.ScheduledMonth,
		arg.OccurrenceIndex,
		arg.IsManualOverride,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteInstance = `DELETE FROM recurring_instances WHERE id = ?`

func (q *Queries) DeleteInstance(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteInstance, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getInstance = `SELECT ` + instanceColumns + ` FROM recurring_instances WHERE id = ?`

func (q *Queries) GetInstance(ctx context.Context, id int64) (RecurringInstance, error) {
	row := q.db.QueryRowContext(ctx, getInstance, id)
	return scanInstance(row)
}

const getInstanceByEntryID = `SELECT ` + instanceColumns + ` FROM recurring_instances WHERE entry_id = ?`

func (q *Queries) GetInstanceByEntryID(ctx context.Context, entryID int64) (RecurringInstance, error) {
	row := q.db.QueryRowContext(ctx, getInstanceByEntryID, entryID)
	return scanInstance(row)
}

const instanceExistsForMonth = `SELECT EXISTS (
    SELECT 1 FROM recurring_instances
    WHERE rule_id = ? AND scheduled_year = ? AND scheduled_month = ?
)`

type InstanceExistsForMonthParams struct {
	RuleID         int64
	ScheduledYear  int64
	ScheduledMonth int64
}

func (q *Queries) InstanceExistsForMonth(ctx context.Context, arg InstanceExistsForMonthParams) (bool, error) {
	row := q.db.QueryRowContext(ctx, instanceExistsForMonth, arg.RuleID, arg.ScheduledYear, arg.ScheduledMonth)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const countInstancesByRule = `SELECT COUNT(*) FROM recurring_instances WHERE rule_id = ?`

func (q *Queries) CountInstancesByRule(ctx context.Context, ruleID int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countInstancesByRule, ruleID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listInstancesByRule = `SELECT ` + instanceColumns + ` FROM recurring_instances
WHERE rule_id = ?
ORDER BY scheduled_for ASC, id ASC`

func (q *Queries) ListInstancesByRule(ctx context.Context, ruleID int64) ([]RecurringInstance, error) {
	return q.listInstances(ctx, listInstancesByRule, ruleID)
}

const listNonOverriddenInstancesByRule = `SELECT ` + instanceColumns + ` FROM recurring_instances
WHERE rule_id = ? AND is_manual_override = 0
ORDER BY scheduled_for ASC, id ASC`

func (q *Queries) ListNonOverriddenInstancesByRule(ctx context.Context, ruleID int64) ([]RecurringInstance, error) {
	return q.listInstances(ctx, listNonOverriddenInstancesByRule, ruleID)
}

const listFutureNonOverriddenInstancesByRule = `SELECT ` + instanceColumns + ` FROM recurring_instances
WHERE rule_id = ? AND scheduled_for >= ? AND is_manual_override = 0
ORDER BY scheduled_for ASC, id ASC`

type ListFutureInstancesParams struct {
	RuleID int64
	From   string
}

func (q *Queries) ListFutureNonOverriddenInstancesByRule(ctx context.Context, arg ListFutureInstancesParams) ([]RecurringInstance, error) {
	return q.listInstances(ctx, listFutureNonOverriddenInstancesByRule, arg.RuleID, arg.From)
}

const listFutureInstancesByRule = `SELECT ` + instanceColumns + ` FROM recurring_instances
WHERE rule_id = ? AND scheduled_for >= ?
ORDER BY scheduled_for ASC, id ASC`

func (q *Queries) ListFutureInstancesByRule(ctx context.Context, arg ListFutureInstancesParams) ([]RecurringInstance, error) {
	return q.listInstances(ctx, listFutureInstancesByRule, arg.RuleID, arg.From)
}

func (q *Queries) listInstances(ctx context.Context, query string, args ...interface{}) ([]RecurringInstance, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurringInstance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
