package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/services"
)

func newTestApp(today core.Date) *App {
	return NewApp(memory.New(), nil, 1, services.RuleServiceConfig{
		Clock: services.FixedClock(today),
	})
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommandWithApp(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bilancio", cmd.Use)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
	require.NotNil(t, cmd.PersistentFlags().Lookup("owner"))
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	paths := [][]string{
		{"sync"},
		{"rules", "list"},
		{"rules", "get"},
		{"rules", "create"},
		{"rules", "update"},
		{"rules", "toggle"},
		{"rules", "delete"},
		{"rules", "instances"},
		{"entries", "override"},
	}
	for _, path := range paths {
		t.Run(path[len(path)-1], func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, newTestApp(core.NewDate(2024, 3, 15)), "--format", "xml", "rules", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestCreateSyncAndList(t *testing.T) {
	app := newTestApp(core.NewDate(2024, 3, 15))

	out, err := run(t, app, "--format", "json", "rules", "create",
		"--name", "Rent", "--type", "bill", "--amount", "45000", "--day", "31", "--start", "2024-01-01")
	require.NoError(t, err)
	var created ruleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "Rent", created.Name)
	require.NotNil(t, created.Amount)
	assert.Equal(t, "45000.00", *created.Amount)
	assert.Equal(t, "RSD", created.Currency)
	assert.True(t, created.IsActive)

	out, err = run(t, app, "--format", "json", "sync")
	require.NoError(t, err)
	var res syncOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.TransactionsCreated)
	assert.Equal(t, 1, res.RulesProcessed)

	out, err = run(t, app, "--format", "json", "rules", "instances", "1")
	require.NoError(t, err)
	var instances []instanceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &instances))
	require.Len(t, instances, 2)
	assert.Equal(t, "2024-01-31", instances[0].ScheduledFor)
	assert.Equal(t, "2024-02-29", instances[1].ScheduledFor)

	out, err = run(t, app, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Rent")
	assert.Contains(t, out, "2024-03-31")
}

func TestVariableRuleIsSkippedInSync(t *testing.T) {
	app := newTestApp(core.NewDate(2024, 3, 15))
	_, err := run(t, app, "rules", "create",
		"--name", "Groceries", "--amount", "variable", "--day", "variable", "--start", "2024-01-01")
	require.NoError(t, err)

	out, err := run(t, app, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 skipped)")
	assert.Contains(t, out, services.VariableDateSkipReason)
}

func TestUpdateKeepsUnchangedFields(t *testing.T) {
	app := newTestApp(core.NewDate(2024, 3, 15))
	_, err := run(t, app, "rules", "create",
		"--name", "Gym", "--type", "subscription", "--amount", "40", "--day", "8",
		"--start", "2024-01-01", "--occurrences", "12", "--currency", "eur")
	require.NoError(t, err)

	out, err := run(t, app, "--format", "json", "rules", "update", "1", "--day", "10", "--scope", "all")
	require.NoError(t, err)
	var updated ruleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, "Gym", updated.Name)
	assert.Equal(t, "subscription", updated.Kind)
	assert.Equal(t, "EUR", updated.Currency)
	require.NotNil(t, updated.DayOfMonth)
	assert.Equal(t, 10, *updated.DayOfMonth)
	require.NotNil(t, updated.TotalOccurrences)
	assert.Equal(t, 12, *updated.TotalOccurrences)
	assert.True(t, updated.IsActive)
}

func TestUpdateRejectsUnknownScope(t *testing.T) {
	app := newTestApp(core.NewDate(2024, 3, 15))
	_, err := run(t, app, "rules", "create", "--name", "Gym", "--amount", "40", "--day", "8", "--start", "2024-01-01")
	require.NoError(t, err)

	_, err = run(t, app, "rules", "update", "1", "--scope", "sometimes")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestToggleDeleteAndOverride(t *testing.T) {
	app := newTestApp(core.NewDate(2024, 3, 15))
	_, err := run(t, app, "rules", "create", "--name", "Salary", "--direction", "income",
		"--type", "income", "--amount", "1000", "--day", "1", "--start", "2024-01-01")
	require.NoError(t, err)
	_, err = run(t, app, "sync")
	require.NoError(t, err)

	out, err := run(t, app, "--format", "json", "rules", "instances", "1")
	require.NoError(t, err)
	var instances []instanceOutput
	require.NoError(t, json.Unmarshal([]byte(out), &instances))
	require.Len(t, instances, 3)
	entryID := strconv.FormatInt(instances[0].EntryID, 10)

	out, err = run(t, app, "entries", "override", entryID)
	require.NoError(t, err)
	assert.Contains(t, out, "entry "+entryID+" marked as manual override")

	out, err = run(t, app, "--format", "json", "rules", "instances", "1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &instances))
	assert.True(t, instances[0].IsManualOverride)
	assert.False(t, instances[1].IsManualOverride)

	out, err = run(t, app, "--format", "json", "rules", "toggle", "1", "--active=false")
	require.NoError(t, err)
	var toggled ruleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &toggled))
	assert.False(t, toggled.IsActive)
	assert.Equal(t, 3, toggled.CreatedCount)

	out, err = run(t, app, "rules", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "rule 1 deleted")

	_, err = run(t, app, "rules", "get", "1")
	require.NoError(t, err, "deleted rules stay readable")
}

func TestForeignOwnerCannotSeeRule(t *testing.T) {
	app := newTestApp(core.NewDate(2024, 3, 15))
	_, err := run(t, app, "rules", "create", "--name", "Rent", "--amount", "10", "--day", "1", "--start", "2024-01-01")
	require.NoError(t, err)

	_, err = run(t, app, "--owner", "2", "rules", "get", "1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestInvalidArguments(t *testing.T) {
	app := newTestApp(core.NewDate(2024, 3, 15))
	tests := []struct {
		name string
		args []string
	}{
		{"bad rule id", []string{"rules", "get", "abc"}},
		{"bad amount", []string{"rules", "create", "--name", "X", "--amount", "-5", "--day", "1", "--start", "2024-01-01"}},
		{"bad day", []string{"rules", "create", "--name", "X", "--amount", "5", "--day", "first", "--start", "2024-01-01"}},
		{"bad start", []string{"rules", "create", "--name", "X", "--amount", "5", "--day", "1", "--start", "01/01/2024"}},
		{"missing start", []string{"rules", "create", "--name", "X"}},
		{"bad entry id", []string{"entries", "override", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, app, tt.args...)
			assert.Error(t, err)
		})
	}
}
