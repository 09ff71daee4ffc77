package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	onError  []func(error)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{
		config: cfg,
		path:   absPath,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	return h, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Reload reloads the configuration from disk.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		h.mu.RLock()
		onError := h.onError
		h.mu.RUnlock()
		for _, fn := range onError {
			fn(err)
		}
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	onChange := h.onChange
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)
	for _, fn := range onChange {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnError registers a callback to be called when a reload fails.
func (h *Holder) OnError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// Path returns the absolute path of the watched file.
func (h *Holder) Path() string {
	return h.path
}

// WatchFile starts watching the config file for changes.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory (more reliable for editors that do atomic saves)
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// Only react to our config file
			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("config file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

// field is one dotted config key and how to read it.
type field struct {
	name       string
	reloadable bool
	get        func(*Config) any
}

var fields = []field{
	{"server.host", false, func(c *Config) any { return c.Server.Host }},
	{"server.port", false, func(c *Config) any { return c.Server.Port }},
	{"server.path", false, func(c *Config) any { return c.Server.Path }},
	{"server.read_timeout", false, func(c *Config) any { return c.Server.ReadTimeout }},
	{"server.write_timeout", false, func(c *Config) any { return c.Server.WriteTimeout }},
	{"server.tls", false, func(c *Config) any { return c.Server.TLS }},
	{"websocket.enabled", false, func(c *Config) any { return c.WebSocket.Enabled }},
	{"websocket.path", false, func(c *Config) any { return c.WebSocket.Path }},
	{"auth.mode", false, func(c *Config) any { return c.Auth.Mode }},
	{"auth.jwt_secret", false, func(c *Config) any { return c.Auth.JWTSecret }},
	{"auth.header", false, func(c *Config) any { return c.Auth.Header }},
	{"auth.token_ttl", false, func(c *Config) any { return c.Auth.TokenTTL }},
	{"store.driver", false, func(c *Config) any { return c.Store.Driver }},
	{"store.dsn", false, func(c *Config) any { return c.Store.DSN }},
	{"store.seed", false, func(c *Config) any { return c.Store.Seed }},
	{"schema.max_depth", false, func(c *Config) any { return c.Schema.MaxDepth }},
	{"schema.concurrency", false, func(c *Config) any { return c.Schema.Concurrency }},
	{"logging.level", true, func(c *Config) any { return c.Logging.Level }},
	{"logging.format", false, func(c *Config) any { return c.Logging.Format }},
	{"metrics.enabled", false, func(c *Config) any { return c.Metrics.Enabled }},
	{"metrics.path", false, func(c *Config) any { return c.Metrics.Path }},
}

// Changed returns the dotted keys whose values differ between old and new,
// split by whether they apply without a restart.
func Changed(old, new *Config) (applied, restart []string) {
	for _, f := range fields {
		if reflect.DeepEqual(f.get(old), f.get(new)) {
			continue
		}
		if f.reloadable {
			applied = append(applied, f.name)
		} else {
			restart = append(restart, f.name)
		}
	}
	return applied, restart
}

func (h *Holder) logChanges(old, new *Config) {
	applied, restart := Changed(old, new)
	if len(applied) > 0 {
		h.logger.Info().Strs("fields", applied).Msg("configuration changes applied")
	}
	if len(restart) > 0 {
		h.logger.Warn().Strs("fields", restart).Msg("configuration changes require a restart")
	}
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return fieldNames(true)
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return fieldNames(false)
}

func fieldNames(reloadable bool) []string {
	var names []string
	for _, f := range fields {
		if f.reloadable == reloadable {
			names = append(names, f.name)
		}
	}
	return names
}
