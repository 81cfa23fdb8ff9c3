package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func intPtr(n int) *int { return &n }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validInput() RuleInput {
	return RuleInput{
		Name:       "Netflix",
		Kind:       KindSubscription,
		Direction:  Expense,
		Amount:     decPtr("12.99"),
		DayOfMonth: intPtr(8),
		StartDate:  NewDate(2024, 1, 1),
		EndType:    EndOpenEnded,
	}
}

func TestRuleInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RuleInput)
		wantErr string
	}{
		{name: "valid open-ended", mutate: func(*RuleInput) {}},
		{
			name: "valid fixed term",
			mutate: func(in *RuleInput) {
				in.EndType = EndFixedTerm
				in.TotalOccurrences = intPtr(12)
			},
		},
		{
			name: "variable amount without value",
			mutate: func(in *RuleInput) {
				in.AmountIsVariable = true
				in.Amount = nil
			},
		},
		{
			name: "variable date without day",
			mutate: func(in *RuleInput) {
				in.DateIsVariable = true
				in.DayOfMonth = nil
			},
		},
		{
			name:    "fixed term without occurrences",
			mutate:  func(in *RuleInput) { in.EndType = EndFixedTerm },
			wantErr: "FIXED_TERM rules require totalOccurrences >= 1",
		},
		{
			name: "fixed term with zero occurrences",
			mutate: func(in *RuleInput) {
				in.EndType = EndFixedTerm
				in.TotalOccurrences = intPtr(0)
			},
			wantErr: "FIXED_TERM rules require totalOccurrences >= 1",
		},
		{
			name:    "fixed amount without value",
			mutate:  func(in *RuleInput) { in.Amount = nil },
			wantErr: "fixed amount rules require an amount",
		},
		{
			name:    "fixed date without day",
			mutate:  func(in *RuleInput) { in.DayOfMonth = nil },
			wantErr: "fixed date rules require dayOfMonth",
		},
		{
			name:    "day out of range",
			mutate:  func(in *RuleInput) { in.DayOfMonth = intPtr(32) },
			wantErr: "day of month must be between 1 and 31",
		},
		{
			name:    "negative amount",
			mutate:  func(in *RuleInput) { in.Amount = decPtr("-5") },
			wantErr: "amount must be zero or positive",
		},
		{
			name:    "blank name",
			mutate:  func(in *RuleInput) { in.Name = "   " },
			wantErr: "name is required",
		},
		{
			name:    "unknown kind",
			mutate:  func(in *RuleInput) { in.Kind = "gift" },
			wantErr: "invalid rule kind",
		},
		{
			name:    "unknown direction",
			mutate:  func(in *RuleInput) { in.Direction = "sideways" },
			wantErr: "direction must be income or expense",
		},
		{
			name:    "missing start date",
			mutate:  func(in *RuleInput) { in.StartDate = Date{} },
			wantErr: "start date is required",
		},
		{
			name:    "missing end type",
			mutate:  func(in *RuleInput) { in.EndType = "" },
			wantErr: "end type must be FIXED_TERM or OPEN_ENDED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := in.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestRuleInputApply(t *testing.T) {
	in := validInput()
	in.Name = "  Netflix  "
	spec, err := in.Validate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := Rule{ID: 7, OwnerID: 1, IsActive: true}
	in.Apply(&r, spec, DefaultCurrency)

	if r.Name != "Netflix" || r.Currency != DefaultCurrency || !r.IsActive {
		t.Fatalf("unexpected rule after apply: %+v", r)
	}
	if v, ok := r.Amount.Fixed(); !ok || v.String() != "12.99" {
		t.Fatalf("unexpected amount %s", r.Amount)
	}

	inactive := false
	in.IsActive = &inactive
	in.Currency = "EUR"
	in.Apply(&r, spec, DefaultCurrency)
	if r.IsActive || r.Currency != "EUR" {
		t.Fatalf("expected inactive EUR rule, got %+v", r)
	}
}
