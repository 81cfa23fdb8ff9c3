package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

type ruleOutput struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Kind              string  `json:"type"`
	Direction         string  `json:"direction"`
	CategoryID        *int64  `json:"category_id,omitempty"`
	CategoryName      string  `json:"category_name,omitempty"`
	Currency          string  `json:"currency"`
	Amount            *string `json:"amount"`
	AmountIsVariable  bool    `json:"amount_is_variable"`
	DayOfMonth        *int    `json:"day_of_month"`
	DateIsVariable    bool    `json:"date_is_variable"`
	StartDate         string  `json:"start_date"`
	EndType           string  `json:"end_type"`
	TotalOccurrences  *int    `json:"total_occurrences"`
	Note              string  `json:"note,omitempty"`
	IsActive          bool    `json:"is_active"`
	CreatedCount      int     `json:"created_count"`
	NextScheduledDate *string `json:"next_scheduled_date"`
	Progress          string  `json:"progress,omitempty"`
	ProgressPercent   *int    `json:"progress_percent,omitempty"`
}

func newRuleOutput(v services.RuleView) ruleOutput {
	out := ruleOutput{
		ID:               v.ID,
		Name:             v.Name,
		Kind:             string(v.Kind),
		Direction:        string(v.Direction),
		CategoryID:       v.CategoryID,
		CategoryName:     v.CategoryName,
		Currency:         string(v.Currency),
		AmountIsVariable: v.Amount.IsVariable(),
		DateIsVariable:   v.Day.IsVariable(),
		StartDate:        v.StartDate.String(),
		EndType:          string(v.Termination.EndType()),
		Note:             v.Note,
		IsActive:         v.IsActive,
		CreatedCount:     v.CreatedCount,
		Progress:         v.Progress,
		ProgressPercent:  v.ProgressPercent,
	}
	if amt, ok := v.Amount.Fixed(); ok {
		s := core.FormatAmount(amt)
		out.Amount = &s
	}
	if day, ok := v.Day.Fixed(); ok {
		out.DayOfMonth = &day
	}
	if total, ok := v.Termination.Total(); ok {
		out.TotalOccurrences = &total
	}
	if v.NextScheduledDate != nil {
		s := v.NextScheduledDate.String()
		out.NextScheduledDate = &s
	}
	return out
}

type instanceOutput struct {
	ID               int64  `json:"id"`
	RuleID           int64  `json:"rule_id"`
	RuleName         string `json:"rule_name"`
	EntryID          int64  `json:"transaction_id"`
	ScheduledFor     string `json:"scheduled_for"`
	OccurrenceIndex  *int   `json:"occurrence_index"`
	IsManualOverride bool   `json:"is_manual_override"`
}

func newInstanceOutput(v services.InstanceView) instanceOutput {
	return instanceOutput{
		ID:               v.ID,
		RuleID:           v.RuleID,
		RuleName:         v.RuleName,
		EntryID:          v.EntryID,
		ScheduledFor:     v.ScheduledFor.String(),
		OccurrenceIndex:  v.OccurrenceIndex,
		IsManualOverride: v.IsManualOverride,
	}
}

type syncDetailOutput struct {
	RuleID              int64  `json:"rule_id"`
	RuleName            string `json:"rule_name"`
	TransactionsCreated int    `json:"transactions_created"`
	Message             string `json:"message,omitempty"`
}

type syncOutput struct {
	RunID               string             `json:"run_id"`
	TransactionsCreated int                `json:"transactions_created"`
	RulesProcessed      int                `json:"rules_processed"`
	RulesSkipped        int                `json:"rules_skipped"`
	Details             []syncDetailOutput `json:"details"`
}

func newSyncOutput(r *services.SyncResult) syncOutput {
	out := syncOutput{
		RunID:               r.RunID,
		TransactionsCreated: r.TransactionsCreated,
		RulesProcessed:      r.RulesProcessed,
		RulesSkipped:        r.RulesSkipped,
		Details:             make([]syncDetailOutput, 0, len(r.Details)),
	}
	for _, d := range r.Details {
		out.Details = append(out.Details, syncDetailOutput{
			RuleID:              d.RuleID,
			RuleName:            d.RuleName,
			TransactionsCreated: d.TransactionsCreated,
			Message:             d.Message,
		})
	}
	return out
}

// printer renders command results as JSON or aligned text.
type printer struct {
	format string
	w      io.Writer
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) rules(views []services.RuleView) error {
	out := make([]ruleOutput, 0, len(views))
	for _, v := range views {
		out = append(out, newRuleOutput(v))
	}
	if p.format == "json" {
		return p.json(out)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDIRECTION\tAMOUNT\tDAY\tTERM\tACTIVE\tCREATED\tNEXT")
	for _, r := range out {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%t\t%d\t%s\n",
			r.ID, r.Name, r.Direction, amountText(r), dayText(r), termText(r),
			r.IsActive, r.CreatedCount, deref(r.NextScheduledDate, "-"))
	}
	return tw.Flush()
}

func (p *printer) rule(v services.RuleView) error {
	r := newRuleOutput(v)
	if p.format == "json" {
		return p.json(r)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", r.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", r.Name)
	fmt.Fprintf(tw, "Type:\t%s\n", r.Kind)
	fmt.Fprintf(tw, "Direction:\t%s\n", r.Direction)
	if r.CategoryName != "" {
		fmt.Fprintf(tw, "Category:\t%s\n", r.CategoryName)
	}
	fmt.Fprintf(tw, "Amount:\t%s\n", amountText(r))
	fmt.Fprintf(tw, "Day:\t%s\n", dayText(r))
	fmt.Fprintf(tw, "Start:\t%s\n", r.StartDate)
	fmt.Fprintf(tw, "Term:\t%s\n", termText(r))
	fmt.Fprintf(tw, "Active:\t%t\n", r.IsActive)
	fmt.Fprintf(tw, "Created:\t%d\n", r.CreatedCount)
	fmt.Fprintf(tw, "Next:\t%s\n", deref(r.NextScheduledDate, "-"))
	if r.Note != "" {
		fmt.Fprintf(tw, "Note:\t%s\n", r.Note)
	}
	return tw.Flush()
}

func (p *printer) instances(views []services.InstanceView) error {
	out := make([]instanceOutput, 0, len(views))
	for _, v := range views {
		out = append(out, newInstanceOutput(v))
	}
	if p.format == "json" {
		return p.json(out)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCHEDULED\tENTRY\tOCCURRENCE\tOVERRIDE")
	for _, in := range out {
		occ := "-"
		if in.OccurrenceIndex != nil {
			occ = fmt.Sprint(*in.OccurrenceIndex)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%t\n", in.ID, in.ScheduledFor, in.EntryID, occ, in.IsManualOverride)
	}
	return tw.Flush()
}

func (p *printer) sync(res *services.SyncResult) error {
	out := newSyncOutput(res)
	if p.format == "json" {
		return p.json(out)
	}

	fmt.Fprintf(p.w, "Created %d transactions from %d rules (%d skipped)\n",
		out.TransactionsCreated, out.RulesProcessed, out.RulesSkipped)
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for _, d := range out.Details {
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%s\n", d.RuleID, d.RuleName, d.TransactionsCreated, d.Message)
	}
	return tw.Flush()
}

func (p *printer) message(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.format == "json" {
		return p.json(map[string]string{"status": "ok", "message": msg})
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

func amountText(r ruleOutput) string {
	if r.Amount == nil {
		return "variable " + r.Currency
	}
	return *r.Amount + " " + r.Currency
}

func dayText(r ruleOutput) string {
	if r.DayOfMonth == nil {
		return "variable"
	}
	return fmt.Sprint(*r.DayOfMonth)
}

func termText(r ruleOutput) string {
	if r.TotalOccurrences == nil {
		return "open-ended"
	}
	return fmt.Sprintf("%d/%d", r.CreatedCount, *r.TotalOccurrences)
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
