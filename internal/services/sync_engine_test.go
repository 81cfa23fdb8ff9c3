package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
)

func TestSyncCreatesMonthlyOccurrencesUpToToday(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 15))
	rule := f.create(t, monthlyInput("Rent", core.NewDate(2024, 1, 1), 1, "500"))

	res := f.sync(t)

	assert.Equal(t, 3, res.TransactionsCreated)
	assert.Equal(t, 1, res.RulesProcessed)
	assert.Equal(t, 0, res.RulesSkipped)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Details, 1)
	assert.Equal(t, RuleSyncDetail{RuleID: rule.ID, RuleName: "Rent", TransactionsCreated: 3}, res.Details[0])

	list := f.instances(t, rule.ID)
	assert.Equal(t, []core.Date{
		core.NewDate(2024, 1, 1),
		core.NewDate(2024, 2, 1),
		core.NewDate(2024, 3, 1),
	}, dates(list))

	for _, in := range list {
		assert.Nil(t, in.OccurrenceIndex)
		assert.False(t, in.IsManualOverride)
		e := f.entry(t, in.EntryID)
		assert.True(t, e.Amount.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, in.ScheduledFor, e.Date)
		assert.Equal(t, core.DefaultCurrency, e.Currency)
		require.NotNil(t, e.Source)
		assert.Equal(t, rule.ID, e.Source.RuleID)
		assert.Equal(t, in.ScheduledFor, e.Source.ScheduledFor)
	}
	assert.Equal(t, 3, f.pub.count(ledger.EntryGenerated))
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 15))
	f.create(t, monthlyInput("Rent", core.NewDate(2024, 1, 1), 1, "500"))

	first := f.sync(t)
	second := f.sync(t)

	assert.Equal(t, 3, first.TransactionsCreated)
	assert.Equal(t, 0, second.TransactionsCreated)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestSyncNeverCreatesFutureOccurrences(t *testing.T) {
	today := core.NewDate(2024, 3, 15)
	f := newFixture(t, today)
	rule := f.create(t, monthlyInput("Card", core.NewDate(2024, 1, 31), 31, "10"))

	res := f.sync(t)

	assert.Equal(t, 2, res.TransactionsCreated)
	list := f.instances(t, rule.ID)
	assert.Equal(t, []core.Date{core.NewDate(2024, 1, 31), core.NewDate(2024, 2, 29)}, dates(list))
	for _, in := range list {
		assert.False(t, in.ScheduledFor.After(today), "instance %s after %s", in.ScheduledFor, today)
	}

	// The March occurrence appears once its day is reached.
	f.clock.Set(core.NewDate(2024, 3, 31))
	assert.Equal(t, 1, f.sync(t).TransactionsCreated)
}

func TestSyncClampsToMonthLength(t *testing.T) {
	tests := []struct {
		name  string
		start core.Date
		today core.Date
		want  core.Date
	}{
		{"non-leap February", core.NewDate(2023, 2, 1), core.NewDate(2023, 2, 28), core.NewDate(2023, 2, 28)},
		{"leap February", core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 29), core.NewDate(2024, 2, 29)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.today)
			rule := f.create(t, monthlyInput("Clamp", tt.start, 31, "1"))
			f.sync(t)
			assert.Equal(t, []core.Date{tt.want}, dates(f.instances(t, rule.ID)))
		})
	}
}

func TestSyncRuleStartingLaterProducesNothing(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 15))
	f.create(t, monthlyInput("Later", core.NewDate(2024, 4, 1), 1, "1"))

	res := f.sync(t)
	assert.Equal(t, 0, res.TransactionsCreated)
	assert.Equal(t, 1, res.RulesProcessed)
	assert.Equal(t, 0, res.RulesSkipped)
}

func TestSyncWithoutRules(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 15))
	res := f.sync(t)
	assert.Equal(t, 0, res.TransactionsCreated)
	assert.Equal(t, 0, res.RulesProcessed)
	assert.Equal(t, 0, res.RulesSkipped)
	assert.Empty(t, res.Details)
}

func TestSyncVariableAmountCreatesZeroEntry(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 28))
	in := monthlyInput("Electricity", core.NewDate(2024, 3, 1), 28, "0")
	in.Amount = nil
	in.AmountIsVariable = true
	rule := f.create(t, in)

	f.sync(t)

	list := f.instances(t, rule.ID)
	require.Len(t, list, 1)
	assert.True(t, f.entry(t, list[0].EntryID).Amount.IsZero())
}

func TestSyncSkipsVariableDateRules(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 15))
	in := monthlyInput("Groceries", core.NewDate(2024, 1, 1), 0, "50")
	in.DayOfMonth = nil
	in.DateIsVariable = true
	rule := f.create(t, in)

	res := f.sync(t)

	assert.Equal(t, 0, res.TransactionsCreated)
	assert.Equal(t, 1, res.RulesProcessed)
	assert.Equal(t, 1, res.RulesSkipped)
	require.Len(t, res.Details, 1)
	assert.Equal(t, VariableDateSkipReason, res.Details[0].Message)
	assert.Empty(t, f.instances(t, rule.ID))
}

func TestSyncFixedTermCap(t *testing.T) {
	f := newFixture(t, core.NewDate(2025, 6, 1))
	in := monthlyInput("Loan", core.NewDate(2024, 1, 1), 10, "100")
	in.Kind = core.KindLoan
	in.EndType = core.EndFixedTerm
	in.TotalOccurrences = intPtr(3)
	in.Note = "car"
	rule := f.create(t, in)

	res := f.sync(t)
	assert.Equal(t, 3, res.TransactionsCreated)

	list := f.instances(t, rule.ID)
	require.Len(t, list, 3)
	for i, inst := range list {
		require.NotNil(t, inst.OccurrenceIndex)
		assert.Equal(t, i+1, *inst.OccurrenceIndex)
	}
	assert.Equal(t, "[1/3] Loan - car", f.entry(t, list[0].EntryID).Note)
	assert.Equal(t, "[3/3] Loan - car", f.entry(t, list[2].EntryID).Note)

	f.clock.Set(core.NewDate(2030, 1, 1))
	assert.Equal(t, 0, f.sync(t).TransactionsCreated)
}

func TestSyncFixedTermNoteWithoutRuleNote(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 1, 10))
	in := monthlyInput("Phone", core.NewDate(2024, 1, 1), 5, "30")
	in.EndType = core.EndFixedTerm
	in.TotalOccurrences = intPtr(12)
	rule := f.create(t, in)

	f.sync(t)
	list := f.instances(t, rule.ID)
	require.Len(t, list, 1)
	assert.Equal(t, "[1/12] Phone", f.entry(t, list[0].EntryID).Note)
}

func TestSyncKeepsMonthUniquenessAfterDayChange(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 11, 10))
	rule := f.create(t, monthlyInput("Gym", core.NewDate(2024, 11, 1), 8, "40"))
	assert.Equal(t, 1, f.sync(t).TransactionsCreated)

	in := monthlyInput("Gym", core.NewDate(2024, 11, 1), 4, "40")
	_, err := f.svc.UpdateRule(context.Background(), owner, rule.ID, in, core.ScopeFutureOnly)
	require.NoError(t, err)

	assert.Equal(t, 0, f.sync(t).TransactionsCreated)
	assert.Equal(t, []core.Date{core.NewDate(2024, 11, 8)}, dates(f.instances(t, rule.ID)))
}

func TestSyncIgnoresInactiveRules(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 15))
	rule := f.create(t, monthlyInput("Rent", core.NewDate(2024, 1, 1), 1, "500"))
	_, err := f.svc.ToggleActive(context.Background(), owner, rule.ID, ToggleInput{IsActive: false})
	require.NoError(t, err)

	res := f.sync(t)
	assert.Equal(t, 0, res.RulesProcessed)
	assert.Empty(t, f.instances(t, rule.ID))

	// Reactivation does not backfill on its own; the next sync does.
	_, err = f.svc.ToggleActive(context.Background(), owner, rule.ID, ToggleInput{IsActive: true})
	require.NoError(t, err)
	assert.Empty(t, f.instances(t, rule.ID))
	assert.Equal(t, 3, f.sync(t).TransactionsCreated)
}

func TestConcurrentSyncsDoNotDuplicate(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 6, 15))
	var ids []int64
	for _, name := range []string{"A", "B", "C"} {
		ids = append(ids, f.create(t, monthlyInput(name, core.NewDate(2024, 1, 1), 5, "1")).ID)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.SyncTransactions(context.Background(), owner)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			total += res.TransactionsCreated
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 18, total)
	for _, id := range ids {
		assert.Len(t, f.instances(t, id), 6)
	}
	assert.Equal(t, 0, f.svc.locks.held())
}

func TestSyncPublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, core.NewDate(2024, 3, 15))
	f.pub.err = errPublish
	f.create(t, monthlyInput("Rent", core.NewDate(2024, 1, 1), 1, "500"))

	res := f.sync(t)
	assert.Equal(t, 3, res.TransactionsCreated)
	assert.Equal(t, 3, f.pub.count(ledger.EntryGenerated))
}

// brokenPolicy schedules every occurrence in January of the month's year.
type brokenPolicy struct{ FixedDayPolicy }

func (brokenPolicy) Occurrence(_ core.Rule, m core.Month) core.Date {
	return core.NewDate(m.Year, 1, 1)
}

func TestSyncAssertsScheduleMonotonicity(t *testing.T) {
	orig := schedulePolicies[DateFixed]
	schedulePolicies[DateFixed] = brokenPolicy{}
	t.Cleanup(func() { schedulePolicies[DateFixed] = orig })

	f := newFixture(t, core.NewDate(2024, 3, 15))
	rule := f.create(t, monthlyInput("Rent", core.NewDate(2024, 1, 1), 1, "500"))

	_, err := f.svc.SyncTransactions(context.Background(), owner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrScheduleInvariant), "got %v", err)
	// The rule's transaction rolled back as a whole.
	assert.Empty(t, f.instances(t, rule.ID))
}

func TestCheckMonotonic(t *testing.T) {
	feb := core.Month{Year: 2024, Month: 2}
	assert.NoError(t, checkMonotonic(feb, core.NewDate(2024, 2, 29), core.Date{}))
	assert.NoError(t, checkMonotonic(feb, core.NewDate(2024, 2, 29), core.NewDate(2024, 1, 31)))
	assert.ErrorIs(t, checkMonotonic(feb, core.NewDate(2024, 3, 1), core.Date{}), core.ErrScheduleInvariant)
	assert.ErrorIs(t, checkMonotonic(feb, core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 1)), core.ErrScheduleInvariant)
}

// listHookStore runs afterList once, right after the active rules are read
// and before any rule lock is taken.
type listHookStore struct {
	*memory.Store
	afterList func()
}

func (s *listHookStore) ListActiveRules(ctx context.Context, ownerID int64) ([]core.Rule, error) {
	rules, err := s.Store.ListActiveRules(ctx, ownerID)
	if hook := s.afterList; hook != nil {
		s.afterList = nil
		hook()
	}
	return rules, err
}

func newListHookFixture(t *testing.T, today core.Date) (*fixture, *listHookStore) {
	t.Helper()
	f := newFixture(t, today)
	hooked := &listHookStore{Store: f.store}
	f.svc = NewRuleService(hooked, f.pub, RuleServiceConfig{SyncConcurrency: 4, Clock: f.clock})
	return f, hooked
}

func TestSyncSeesDeactivationAfterListing(t *testing.T) {
	f, hooked := newListHookFixture(t, core.NewDate(2024, 3, 15))
	rule := f.create(t, monthlyInput("Rent", core.NewDate(2024, 1, 1), 10, "500"))
	hooked.afterList = func() {
		_, err := f.svc.ToggleActive(context.Background(), owner, rule.ID, ToggleInput{IsActive: false})
		require.NoError(t, err)
	}

	res := f.sync(t)

	assert.Equal(t, 0, res.TransactionsCreated)
	assert.Equal(t, 1, res.RulesProcessed)
	assert.Equal(t, 0, res.RulesSkipped)
	assert.Empty(t, f.instances(t, rule.ID))
	assert.Equal(t, 0, f.pub.count(ledger.EntryGenerated))
}

func TestSyncSeesUpdateAfterListing(t *testing.T) {
	f, hooked := newListHookFixture(t, core.NewDate(2024, 3, 15))
	rule := f.create(t, monthlyInput("Rent", core.NewDate(2024, 1, 1), 10, "500"))
	hooked.afterList = func() {
		in := monthlyInput("Rent", core.NewDate(2024, 1, 1), 4, "700")
		_, err := f.svc.UpdateRule(context.Background(), owner, rule.ID, in, core.ScopeAll)
		require.NoError(t, err)
	}

	res := f.sync(t)
	assert.Equal(t, 3, res.TransactionsCreated)

	list := f.instances(t, rule.ID)
	assert.Equal(t, []core.Date{
		core.NewDate(2024, 1, 4),
		core.NewDate(2024, 2, 4),
		core.NewDate(2024, 3, 4),
	}, dates(list))
	for _, in := range list {
		assert.True(t, f.entry(t, in.EntryID).Amount.Equal(decimal.NewFromInt(700)))
	}
}
