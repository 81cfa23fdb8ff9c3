package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/services"
)

type markerFunc func(ctx context.Context, ownerID, entryID int64) error

func (f markerFunc) MarkEntryAsManualOverride(ctx context.Context, ownerID, entryID int64) error {
	return f(ctx, ownerID, entryID)
}

func TestHandleEntryEditedMarksOverride(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := services.NewRuleService(store, nil, services.RuleServiceConfig{
		Clock: services.FixedClock(core.NewDate(2024, 3, 15)),
	})

	amount := decimal.NewFromInt(1200)
	day := 5
	rule, err := svc.CreateRule(ctx, 1, core.RuleInput{
		Name:       "Rent",
		Kind:       core.KindSubscription,
		Direction:  core.Expense,
		Amount:     &amount,
		DayOfMonth: &day,
		StartDate:  core.NewDate(2024, 1, 1),
		EndType:    core.EndOpenEnded,
	})
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if _, err := svc.SyncTransactions(ctx, 1); err != nil {
		t.Fatalf("SyncTransactions() error = %v", err)
	}
	instances, err := svc.ListInstancesForRule(ctx, 1, rule.ID)
	if err != nil || len(instances) != 3 {
		t.Fatalf("ListInstancesForRule() = %d instances, err %v", len(instances), err)
	}

	consumer := NewOverrideConsumer(svc, 1)
	msg := &amqp.EntryEditedMessage{EntryID: instances[1].EntryID}
	if err := consumer.HandleEntryEdited(ctx, msg); err != nil {
		t.Fatalf("HandleEntryEdited() error = %v", err)
	}

	instances, err = svc.ListInstancesForRule(ctx, 1, rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, in := range instances {
		if in.IsManualOverride != (i == 1) {
			t.Errorf("instance %d override = %v", i, in.IsManualOverride)
		}
	}

	// Foreign owner: the rule is not visible, the message is dropped.
	foreign := &amqp.EntryEditedMessage{OwnerID: 2, EntryID: instances[0].EntryID}
	if err := consumer.HandleEntryEdited(ctx, foreign); err != nil {
		t.Errorf("HandleEntryEdited() for foreign owner error = %v", err)
	}
}

func TestHandleEntryEditedErrors(t *testing.T) {
	boom := errors.New("disk full")
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"not found is dropped", core.ErrNotFound, false},
		{"other errors requeue", boom, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotOwner int64
			consumer := NewOverrideConsumer(markerFunc(func(_ context.Context, ownerID, _ int64) error {
				gotOwner = ownerID
				return tt.err
			}), 9)

			err := consumer.HandleEntryEdited(context.Background(), &amqp.EntryEditedMessage{EntryID: 4})
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleEntryEdited() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, boom) {
				t.Errorf("error %v should wrap %v", err, boom)
			}
			if gotOwner != 9 {
				t.Errorf("owner = %d, want default 9", gotOwner)
			}
		})
	}
}
