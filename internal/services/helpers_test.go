package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
)

const owner int64 = 1

// testClock is a Clock the tests move by hand.
type testClock struct {
	mu sync.Mutex
	d  core.Date
}

func (c *testClock) Today() core.Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.d
}

func (c *testClock) Set(d core.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.d = d
}

// recordingPublisher keeps every event it receives.
type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.EntryEvent
	err    error
}

func (p *recordingPublisher) PublishEntryEvent(_ context.Context, ev ledger.EntryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) count(t ledger.EntryEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	store *memory.Store
	svc   *RuleService
	clock *testClock
	pub   *recordingPublisher
}

func newFixture(t *testing.T, today core.Date) *fixture {
	t.Helper()
	store := memory.New()
	clock := &testClock{d: today}
	pub := &recordingPublisher{}
	svc := NewRuleService(store, pub, RuleServiceConfig{
		SyncConcurrency: 4,
		Clock:           clock,
	})
	return &fixture{store: store, svc: svc, clock: clock, pub: pub}
}

func intPtr(n int) *int { return &n }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// monthlyInput is an open-ended fixed-amount fixed-day rule input.
func monthlyInput(name string, start core.Date, day int, amount string) core.RuleInput {
	return core.RuleInput{
		Name:       name,
		Kind:       core.KindSubscription,
		Direction:  core.Expense,
		Amount:     decPtr(amount),
		DayOfMonth: intPtr(day),
		StartDate:  start,
		EndType:    core.EndOpenEnded,
	}
}

func (f *fixture) create(t *testing.T, in core.RuleInput) RuleView {
	t.Helper()
	v, err := f.svc.CreateRule(context.Background(), owner, in)
	require.NoError(t, err)
	return v
}

func (f *fixture) sync(t *testing.T) *SyncResult {
	t.Helper()
	res, err := f.svc.SyncTransactions(context.Background(), owner)
	require.NoError(t, err)
	return res
}

func (f *fixture) instances(t *testing.T, ruleID int64) []core.Instance {
	t.Helper()
	list, err := f.store.ListInstances(context.Background(), ruleID)
	require.NoError(t, err)
	return list
}

func (f *fixture) entry(t *testing.T, id int64) core.Entry {
	t.Helper()
	e, err := f.store.GetEntry(context.Background(), id)
	require.NoError(t, err)
	return e
}

func dates(list []core.Instance) []core.Date {
	out := make([]core.Date, 0, len(list))
	for _, in := range list {
		out = append(out, in.ScheduledFor)
	}
	return out
}

var errPublish = errors.New("broker down")
