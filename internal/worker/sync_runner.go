package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

// Syncer is the part of the rule service the runner drives.
type Syncer interface {
	SyncTransactions(ctx context.Context, ownerID int64) (*services.SyncResult, error)
}

// SyncRunnerConfig holds configuration for the sync runner
type SyncRunnerConfig struct {
	// Interval between sync runs (default: 1h)
	Interval time.Duration

	// OwnerID whose rules are synced
	OwnerID int64
}

// DefaultSyncRunnerConfig returns sensible defaults
func DefaultSyncRunnerConfig() SyncRunnerConfig {
	return SyncRunnerConfig{
		Interval: time.Hour,
		OwnerID:  1,
	}
}

// SyncRunner calls SyncTransactions once on start and then on every tick.
// Sync is idempotent, so overlapping with a manual run is harmless.
type SyncRunner struct {
	syncer Syncer
	config SyncRunnerConfig

	mu      sync.Mutex
	running bool
	runs    int
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncRunner(syncer Syncer, config SyncRunnerConfig) *SyncRunner {
	defaults := DefaultSyncRunnerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.OwnerID < 1 {
		config.OwnerID = defaults.OwnerID
	}
	return &SyncRunner{
		syncer: syncer,
		config: config,
	}
}

// Start begins the run loop. Returns an error if already running.
func (r *SyncRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("sync runner is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	go r.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Sync runner started",
		"interval", r.config.Interval,
		applog.FieldOwnerID, r.config.OwnerID)

	return nil
}

// Stop signals the loop and waits for the current run to finish.
func (r *SyncRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync runner stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync runner stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns whether the runner is currently running
func (r *SyncRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Runs returns how many sync runs have completed, failed ones included.
func (r *SyncRunner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func (r *SyncRunner) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sync and logs its outcome. Errors are logged so
// the next tick can retry.
func (r *SyncRunner) RunOnce(ctx context.Context) {
	start := time.Now()
	result, err := r.syncer.SyncTransactions(ctx, r.config.OwnerID)

	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "Sync run failed",
			applog.FieldOwnerID, r.config.OwnerID,
			applog.FieldError, err)
		return
	}

	slog.InfoContext(ctx, "Sync run complete",
		applog.FieldRunID, result.RunID,
		applog.FieldOwnerID, r.config.OwnerID,
		applog.FieldCreated, result.TransactionsCreated,
		"rules", result.RulesProcessed,
		applog.FieldSkipped, result.RulesSkipped,
		"duration_ms", time.Since(start).Milliseconds())
}
