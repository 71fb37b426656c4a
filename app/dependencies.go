package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/config"
	"github.com/tachyonlabs/modelgate/handlers"
	"github.com/tachyonlabs/modelgate/internal/observability"
	"github.com/tachyonlabs/modelgate/repositories/postgres"
	"github.com/tachyonlabs/modelgate/services/accessor"
	"github.com/tachyonlabs/modelgate/services/audit"
	"github.com/tachyonlabs/modelgate/services/flags"
	"github.com/tachyonlabs/modelgate/services/providers"
	"github.com/tachyonlabs/modelgate/services/providers/anthropic"
	"github.com/tachyonlabs/modelgate/services/providers/local"
	"github.com/tachyonlabs/modelgate/services/providers/openai"
	"github.com/tachyonlabs/modelgate/services/session"
)

// Dependencies holds all initialized application components
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *postgres.DB
	Audit    *audit.Service
	Flags    *flags.Service
	Session  *session.Manager
	Registry *providers.Registry
	Accessor *accessor.Accessor

	ChatHandler     *handlers.ChatHandler
	ProviderHandler *handlers.ProviderHandler
	FlagsHandler    *handlers.FlagsHandler
	HealthHandler   *handlers.HealthHandler
}

// NewDependencies wires the full application graph from config
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initAudit(); err != nil {
		return nil, err
	}

	deps.Flags = flags.NewService(cfg.Flags, logger)
	deps.Session = session.NewManager(cfg.Session)

	deps.initProviders()

	deps.Accessor = accessor.New(deps.Registry, deps.Audit, logger)

	deps.ChatHandler = handlers.NewChatHandler(deps.Accessor, logger)
	deps.ProviderHandler = handlers.NewProviderHandler(deps.Accessor, deps.Registry, logger)
	deps.FlagsHandler = handlers.NewFlagsHandler(deps.Flags, logger)
	deps.HealthHandler = handlers.NewHealthHandler(deps.Registry, deps.DB, logger)

	return deps, nil
}

// initAudit connects the optional audit database and starts the async
// audit service. Without a configured database the service runs in
// log-only mode.
func (d *Dependencies) initAudit() error {
	cfg := d.Config

	if cfg.AuditDatabase != nil {
		db, err := postgres.NewDB(*cfg.AuditDatabase, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect audit database: %w", err)
		}
		d.DB = db
		d.Audit = audit.NewService(postgres.NewAuditRepository(db, d.Logger), d.Logger, audit.DefaultConfig())
	} else {
		d.Logger.Info("audit persistence disabled, events go to the log only")
		d.Audit = audit.NewService(nil, d.Logger, audit.DefaultConfig())
	}

	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	return nil
}

// initProviders registers a factory for every configured provider
func (d *Dependencies) initProviders() {
	cfg := d.Config
	factories := make(map[providers.Kind]providers.Factory)

	if cfg.Providers.OpenAI.APIKey != "" {
		providerCfg := cfg.Providers.OpenAI
		factories[providers.KindOpenAI] = func() (providers.Provider, error) {
			tokens := session.NewStaticTokenSource(providerCfg.APIKey)
			return openai.New(providerCfg, tokens, d.Flags, d.Audit, d.Logger), nil
		}
	}

	if cfg.Providers.Anthropic.APIKey != "" {
		providerCfg := cfg.Providers.Anthropic
		factories[providers.KindAnthropic] = func() (providers.Provider, error) {
			tokens := session.NewStaticTokenSource(providerCfg.APIKey)
			return anthropic.New(providerCfg, tokens, d.Flags, d.Audit, d.Logger), nil
		}
	}

	// The local stub is always registered so strict local mode has a
	// provider to resolve to even on a bare deployment.
	localCfg := cfg.Providers.Local
	factories[providers.KindLocal] = func() (providers.Provider, error) {
		return local.New(localCfg, d.Flags, d.Audit, d.Logger), nil
	}

	d.Registry = providers.NewRegistry(factories, d.Flags, d.Logger)
}

// Cleanup releases all resources in reverse initialization order
func (d *Dependencies) Cleanup() {
	if d.Audit != nil {
		if err := d.Audit.Stop(5 * time.Second); err != nil {
			d.Logger.Warn("audit service did not stop cleanly", zap.Error(err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Warn("failed to close audit database", zap.Error(err))
		}
	}

	_ = d.Logger.Sync()
}
