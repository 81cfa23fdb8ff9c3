package cli

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/services"
)

// App is what the commands run against: the rule service and the owner the
// invocation acts for.
type App struct {
	Rules   *services.RuleService
	OwnerID int64
	broker  *amqp.Client
	cleanup backend.CleanupFunc
}

// NewApp wires a rule service over store. Used by tests and embedders.
func NewApp(store ledger.Store, publisher ledger.EventPublisher, ownerID int64, cfg services.RuleServiceConfig) *App {
	return &App{
		Rules:   services.NewRuleService(store, publisher, cfg),
		OwnerID: ownerID,
	}
}

// NewAppFromConfig builds the backend named by cfg and the service over it.
func NewAppFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	svcCfg := services.DefaultRuleServiceConfig()
	svcCfg.DefaultCurrency = core.Currency(cfg.DefaultCurrency)
	svcCfg.SyncConcurrency = cfg.SyncConcurrency

	app := NewApp(res.Store, res.Publisher, cfg.OwnerID, svcCfg)
	app.broker = res.Broker
	app.cleanup = res.Cleanup
	return app, nil
}

// Broker returns the AMQP client, or nil when no broker is configured.
func (a *App) Broker() *amqp.Client {
	return a.broker
}

// Close releases the backend resources.
func (a *App) Close() error {
	if a == nil || a.cleanup == nil {
		return nil
	}
	return a.cleanup()
}
