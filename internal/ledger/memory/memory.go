package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

// Store is an in-process ledger. Writes inside WithTx are applied to a copy
// of the state that replaces the live one only when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ ledger.Store = (*Store)(nil)

type state struct {
	nextID    int64
	rules     map[int64]core.Rule
	instances map[int64]core.Instance
	entries   map[int64]core.Entry
	cats      map[int64]core.Category
	now       func() time.Time
}

func New() *Store {
	return &Store{st: &state{
		rules:     map[int64]core.Rule{},
		instances: map[int64]core.Instance{},
		entries:   map[int64]core.Entry{},
		cats:      map[int64]core.Category{},
		now:       time.Now,
	}}
}

// NewFromFiles seeds owner's categories from seed_categories.txt under base.
func NewFromFiles(base string, ownerID int64) *Store {
	s := New()
	names := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(names) == 0 {
		names = []string{"Housing", "Food", "Transport", "Salary"}
	}
	for _, n := range names {
		s.AddCategory(ownerID, n)
	}
	return s
}

// AddCategory registers a category for owner and returns it.
func (s *Store) AddCategory(ownerID int64, name string) core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := core.Category{ID: s.st.id(), OwnerID: ownerID, Name: name}
	s.st.cats[c.ID] = c
	return c
}

// WithTx serializes transactions against each other and against plain calls.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&txView{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) ListActiveRules(_ context.Context, ownerID int64) ([]core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRules(ownerID, true), nil
}

func (s *Store) ListRules(_ context.Context, ownerID int64) ([]core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRules(ownerID, false), nil
}

func (s *Store) GetRule(_ context.Context, id, ownerID int64) (core.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getRule(id, ownerID)
}

func (s *Store) CreateRule(_ context.Context, r *core.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createRule(r)
}

func (s *Store) UpdateRule(_ context.Context, r core.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateRule(r)
}

func (s *Store) InstanceExistsForMonth(_ context.Context, ruleID int64, m core.Month) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.instanceExistsForMonth(ruleID, m), nil
}

func (s *Store) CountInstances(_ context.Context, ruleID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.listInstances(ruleID, nil)), nil
}

func (s *Store) ListInstances(_ context.Context, ruleID int64) ([]core.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listInstances(ruleID, nil), nil
}

func (s *Store) ListNonOverriddenInstances(_ context.Context, ruleID int64) ([]core.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listInstances(ruleID, notOverridden), nil
}

func (s *Store) ListFutureNonOverriddenInstances(_ context.Context, ruleID int64, from core.Date) ([]core.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listInstances(ruleID, func(in core.Instance) bool {
		return notOverridden(in) && !in.ScheduledFor.Before(from)
	}), nil
}

func (s *Store) ListFutureInstances(_ context.Context, ruleID int64, from core.Date) ([]core.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listInstances(ruleID, func(in core.Instance) bool {
		return !in.ScheduledFor.Before(from)
	}), nil
}

func (s *Store) GetInstance(_ context.Context, id int64) (core.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getInstance(id)
}

func (s *Store) FindInstanceByEntryID(_ context.Context, entryID int64) (core.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.findInstanceByEntryID(entryID)
}

func (s *Store) CreateInstance(_ context.Context, in *core.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createInstance(in)
}

func (s *Store) UpdateInstance(_ context.Context, in core.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateInstance(in)
}

func (s *Store) DeleteInstance(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteInstance(id)
}

func (s *Store) CreateEntry(_ context.Context, e *core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createEntry(e)
}

func (s *Store) UpdateEntry(_ context.Context, e core.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateEntry(e)
}

func (s *Store) DeleteEntry(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.deleteEntry(id)
}

func (s *Store) GetEntry(_ context.Context, id int64) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getEntry(id)
}

func (s *Store) GetCategory(_ context.Context, id, ownerID int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getCategory(id, ownerID)
}

// txView is the unlocked view handed to WithTx callbacks.
type txView struct {
	st *state
}

func (t *txView) WithTx(_ context.Context, fn func(tx ledger.Store) error) error {
	return fn(t)
}

func (t *txView) ListActiveRules(_ context.Context, ownerID int64) ([]core.Rule, error) {
	return t.st.listRules(ownerID, true), nil
}

func (t *txView) ListRules(_ context.Context, ownerID int64) ([]core.Rule, error) {
	return t.st.listRules(ownerID, false), nil
}

func (t *txView) GetRule(_ context.Context, id, ownerID int64) (core.Rule, error) {
	return t.st.getRule(id, ownerID)
}

func (t *txView) CreateRule(_ context.Context, r *core.Rule) error { return t.st.createRule(r) }
func (t *txView) UpdateRule(_ context.Context, r core.Rule) error  { return t.st.updateRule(r) }

func (t *txView) InstanceExistsForMonth(_ context.Context, ruleID int64, m core.Month) (bool, error) {
	return t.st.instanceExistsForMonth(ruleID, m), nil
}

func (t *txView) CountInstances(_ context.Context, ruleID int64) (int, error) {
	return len(t.st.listInstances(ruleID, nil)), nil
}

func (t *txView) ListInstances(_ context.Context, ruleID int64) ([]core.Instance, error) {
	return t.st.listInstances(ruleID, nil), nil
}

func (t *txView) ListNonOverriddenInstances(_ context.Context, ruleID int64) ([]core.Instance, error) {
	return t.st.listInstances(ruleID, notOverridden), nil
}

func (t *txView) ListFutureNonOverriddenInstances(_ context.Context, ruleID int64, from core.Date) ([]core.Instance, error) {
	return t.st.listInstances(ruleID, func(in core.Instance) bool {
		return notOverridden(in) && !in.ScheduledFor.Before(from)
	}), nil
}

func (t *txView) ListFutureInstances(_ context.Context, ruleID int64, from core.Date) ([]core.Instance, error) {
	return t.st.listInstances(ruleID, func(in core.Instance) bool {
		return !in.ScheduledFor.Before(from)
	}), nil
}

func (t *txView) GetInstance(_ context.Context, id int64) (core.Instance, error) {
	return t.st.getInstance(id)
}

func (t *txView) FindInstanceByEntryID(_ context.Context, entryID int64) (core.Instance, error) {
	return t.st.findInstanceByEntryID(entryID)
}

func (t *txView) CreateInstance(_ context.Context, in *core.Instance) error {
	return t.st.createInstance(in)
}

func (t *txView) UpdateInstance(_ context.Context, in core.Instance) error {
	return t.st.updateInstance(in)
}

func (t *txView) DeleteInstance(_ context.Context, id int64) error { return t.st.deleteInstance(id) }

func (t *txView) CreateEntry(_ context.Context, e *core.Entry) error { return t.st.createEntry(e) }
func (t *txView) UpdateEntry(_ context.Context, e core.Entry) error  { return t.st.updateEntry(e) }
func (t *txView) DeleteEntry(_ context.Context, id int64) error      { return t.st.deleteEntry(id) }

func (t *txView) GetEntry(_ context.Context, id int64) (core.Entry, error) {
	return t.st.getEntry(id)
}

func (t *txView) GetCategory(_ context.Context, id, ownerID int64) (core.Category, error) {
	return t.st.getCategory(id, ownerID)
}

func notOverridden(in core.Instance) bool { return !in.IsManualOverride }

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) clone() *state {
	c := &state{
		nextID:    s.nextID,
		rules:     make(map[int64]core.Rule, len(s.rules)),
		instances: make(map[int64]core.Instance, len(s.instances)),
		entries:   make(map[int64]core.Entry, len(s.entries)),
		cats:      make(map[int64]core.Category, len(s.cats)),
		now:       s.now,
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.instances {
		c.instances[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.cats {
		c.cats[k] = v
	}
	return c
}

func (s *state) listRules(ownerID int64, activeOnly bool) []core.Rule {
	out := make([]core.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.OwnerID != ownerID || (activeOnly && !r.IsActive) {
			continue
		}
		out = append(out, r)
	}
	// Newest first; IDs break ties between rules created in the same instant.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *state) getRule(id, ownerID int64) (core.Rule, error) {
	r, ok := s.rules[id]
	if !ok || r.OwnerID != ownerID {
		return core.Rule{}, fmt.Errorf("rule %d: %w", id, core.ErrNotFound)
	}
	return r, nil
}

func (s *state) createRule(r *core.Rule) error {
	now := s.now().UTC()
	r.ID = s.id()
	r.CreatedAt = now
	r.UpdatedAt = now
	s.rules[r.ID] = *r
	return nil
}

func (s *state) updateRule(r core.Rule) error {
	old, ok := s.rules[r.ID]
	if !ok {
		return fmt.Errorf("rule %d: %w", r.ID, core.ErrNotFound)
	}
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = s.now().UTC()
	s.rules[r.ID] = r
	return nil
}

func (s *state) instanceExistsForMonth(ruleID int64, m core.Month) bool {
	for _, in := range s.instances {
		if in.RuleID == ruleID && m.Contains(in.ScheduledFor) {
			return true
		}
	}
	return false
}

func (s *state) listInstances(ruleID int64, keep func(core.Instance) bool) []core.Instance {
	var out []core.Instance
	for _, in := range s.instances {
		if in.RuleID != ruleID || (keep != nil && !keep(in)) {
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor.Time) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) getInstance(id int64) (core.Instance, error) {
	in, ok := s.instances[id]
	if !ok {
		return core.Instance{}, fmt.Errorf("instance %d: %w", id, core.ErrNotFound)
	}
	return in, nil
}

func (s *state) findInstanceByEntryID(entryID int64) (core.Instance, error) {
	for _, in := range s.instances {
		if in.EntryID == entryID {
			return in, nil
		}
	}
	return core.Instance{}, fmt.Errorf("instance for entry %d: %w", entryID, core.ErrNotFound)
}

// createInstance enforces the same uniqueness the SQL schema does.
func (s *state) createInstance(in *core.Instance) error {
	m := core.MonthOf(in.ScheduledFor)
	for _, other := range s.instances {
		if other.EntryID == in.EntryID {
			return fmt.Errorf("entry %d already linked to instance %d", in.EntryID, other.ID)
		}
		if other.RuleID == in.RuleID && m.Contains(other.ScheduledFor) {
			return fmt.Errorf("rule %d already has an instance in %s", in.RuleID, m)
		}
	}
	in.ID = s.id()
	in.CreatedAt = s.now().UTC()
	s.instances[in.ID] = *in
	return nil
}

func (s *state) updateInstance(in core.Instance) error {
	if _, ok := s.instances[in.ID]; !ok {
		return fmt.Errorf("instance %d: %w", in.ID, core.ErrNotFound)
	}
	m := core.MonthOf(in.ScheduledFor)
	for _, other := range s.instances {
		if other.ID != in.ID && other.RuleID == in.RuleID && m.Contains(other.ScheduledFor) {
			return fmt.Errorf("rule %d already has an instance in %s", in.RuleID, m)
		}
	}
	s.instances[in.ID] = in
	return nil
}

func (s *state) deleteInstance(id int64) error {
	if _, ok := s.instances[id]; !ok {
		return fmt.Errorf("instance %d: %w", id, core.ErrNotFound)
	}
	delete(s.instances, id)
	return nil
}

func (s *state) createEntry(e *core.Entry) error {
	now := s.now().UTC()
	e.ID = s.id()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.entries[e.ID] = detachSource(*e)
	return nil
}

func (s *state) updateEntry(e core.Entry) error {
	old, ok := s.entries[e.ID]
	if !ok {
		return fmt.Errorf("entry %d: %w", e.ID, core.ErrNotFound)
	}
	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = s.now().UTC()
	s.entries[e.ID] = detachSource(e)
	return nil
}

// detachSource copies the source backlink so stored entries share no memory
// with the caller.
func detachSource(e core.Entry) core.Entry {
	if e.Source != nil {
		src := *e.Source
		e.Source = &src
	}
	return e
}

func (s *state) deleteEntry(id int64) error {
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("entry %d: %w", id, core.ErrNotFound)
	}
	delete(s.entries, id)
	return nil
}

func (s *state) getEntry(id int64) (core.Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return core.Entry{}, fmt.Errorf("entry %d: %w", id, core.ErrNotFound)
	}
	return detachSource(e), nil
}

func (s *state) getCategory(id, ownerID int64) (core.Category, error) {
	c, ok := s.cats[id]
	if !ok || c.OwnerID != ownerID {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
