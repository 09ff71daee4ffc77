// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file when one exists and from URPC_*
// environment variables otherwise.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dapp-works/urpc/adapters/auth"
	"github.com/dapp-works/urpc/adapters/memory"
	"github.com/dapp-works/urpc/adapters/metrics"
	"github.com/dapp-works/urpc/adapters/sqlite"
	"github.com/dapp-works/urpc/adapters/tls"
	"github.com/dapp-works/urpc/config"
	"github.com/dapp-works/urpc/core/channel"
	httpchannel "github.com/dapp-works/urpc/core/channel/http"
	"github.com/dapp-works/urpc/core/channel/ws"
	"github.com/dapp-works/urpc/core/events"
	"github.com/dapp-works/urpc/core/example"
	"github.com/dapp-works/urpc/core/registry"
	"github.com/dapp-works/urpc/core/runtime"
	"github.com/dapp-works/urpc/core/schema"
	"github.com/dapp-works/urpc/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Options controls application initialization.
type Options struct {
	// ConfigPath is the YAML file to load. When it does not exist the
	// configuration comes from the environment.
	ConfigPath string

	// Config, when set, is used as is and ConfigPath is ignored.
	Config *config.Config

	// Tree replaces the built-in demo tree.
	Tree func(store ports.DocumentStore) schema.Tree

	// Watch enables reload on file change and SIGHUP.
	Watch bool

	// LogOutput receives log lines (default os.Stdout).
	LogOutput io.Writer
}

// App represents the running application.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *sqlite.DB
	Store    ports.DocumentStore
	Registry *registry.Registry
	Runtime  *runtime.Runtime
	Metrics  *metrics.Collector
	Tokens   *auth.TokenService
	HTTP     *httpchannel.Channel
	WS       *ws.Channel

	holder *config.Holder
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	cfg, holder, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := setupLogger(cfg.Logging, out)
	logger.Info().Str("store", cfg.Store.Driver).Str("auth", cfg.Auth.Mode).Msg("initializing urpc")

	a := &App{
		Config: cfg,
		Logger: logger,
		holder: holder,
	}

	if err := a.initStore(); err != nil {
		a.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	tree := example.Tree
	if opts.Tree != nil {
		tree = opts.Tree
	}
	reg, err := registry.New(tree(a.Store))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}
	a.Registry = reg
	logger.Info().Int("entities", reg.Len()).Msg("registry built")

	a.initMetrics()

	bus := events.NewBus(logger)
	a.Runtime = runtime.New(reg, runtime.Config{
		MaxDepth:    cfg.Schema.MaxDepth,
		Concurrency: cfg.Schema.Concurrency,
		Recorder:    a.Metrics,
		Events:      bus,
		Logger:      logger,
	})

	if err := a.initChannels(bus); err != nil {
		a.Close()
		return nil, fmt.Errorf("init channels: %w", err)
	}

	if holder != nil {
		a.initReload(opts.Watch)
	}

	return a, nil
}

func loadConfig(opts Options) (*config.Config, *config.Holder, error) {
	if opts.Config != nil {
		return opts.Config, nil, nil
	}
	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			holder, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
			if err != nil {
				return nil, nil, err
			}
			return holder.Get(), holder, nil
		}
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil, nil
}

func (a *App) initStore() error {
	ctx := context.Background()

	switch a.Config.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(a.Config.Store.DSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.Store = sqlite.NewDocumentStore(db)
		a.Logger.Info().Str("dsn", a.Config.Store.DSN).Msg("database initialized")
	default:
		a.Store = memory.NewDocumentStore()
	}

	if a.Config.Store.Seed {
		if err := example.Seed(ctx, a.Store, false); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) initMetrics() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewWithRegistry(reg)
	if a.Config.Metrics.Enabled {
		a.Logger.Info().Str("path", a.Config.Metrics.Path).Msg("prometheus metrics enabled")
	}
}

func (a *App) initChannels(bus *events.Bus) error {
	cfg := a.Config

	tlsConfig, err := tls.Build(tls.Config{
		Mode:     cfg.Server.TLS.Mode,
		CertFile: cfg.Server.TLS.CertFile,
		KeyFile:  cfg.Server.TLS.KeyFile,
		Domains:  cfg.Server.TLS.Domains,
		Email:    cfg.Server.TLS.Email,
		Staging:  cfg.Server.TLS.Staging,
	}, a.Store, a.Logger)
	if err != nil {
		return err
	}

	callerFunc := channel.ContextFunc(channel.Anonymous)
	if cfg.Auth.Mode == "jwt" {
		a.Tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		callerFunc = a.Tokens.CallerFunc(cfg.Auth.Header)
	}

	httpCfg := httpchannel.Config{
		Addr:         cfg.Server.Addr(),
		Path:         cfg.Server.Path,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		TLS:          tlsConfig,
		Context:      callerFunc,
		Middleware:   []func(next http.Handler) http.Handler{a.Metrics.InFlight},
		Logger:       a.Logger,
	}
	if cfg.Metrics.Enabled {
		httpCfg.Metrics = a.Metrics.Handler()
		httpCfg.MetricsPath = cfg.Metrics.Path
	}
	a.HTTP = httpchannel.New(a.Runtime, httpCfg)

	if cfg.WebSocket.Enabled {
		a.WS = ws.New(a.Runtime, ws.Config{
			Path:        cfg.WebSocket.Path,
			Context:     callerFunc,
			Events:      bus,
			Entities:    a.Registry,
			Connections: a.Metrics.SocketsOpen,
			Logger:      a.Logger,
		})
		a.HTTP.Mount(a.WS.Path(), a.WS.Handler())
		a.Runtime.RegisterChannel(a.WS)
	}

	// Stop runs in reverse, so the listener closes before sockets are dropped
	a.Runtime.RegisterChannel(a.HTTP)
	return nil
}

func (a *App) initReload(watch bool) {
	a.holder.OnChange(func(cfg *config.Config) {
		a.Metrics.ConfigReloaded(nil)
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	})
	a.holder.OnError(a.Metrics.ConfigReloaded)

	if !watch {
		return
	}
	if err := a.holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch disabled")
	}
	a.holder.WatchSignals()
}

// Start starts every channel without blocking.
func (a *App) Start(ctx context.Context) error {
	return a.Runtime.Start(ctx)
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		a.Shutdown()
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	sig := <-quit
	a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if a.Runtime != nil {
		if err := a.Runtime.Stop(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("runtime stop error")
		}
	}

	a.Close()
	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Close releases the config watcher and the database.
func (a *App) Close() {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.DB = nil
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
