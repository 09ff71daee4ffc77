package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dapp-works/urpc/config"
	"github.com/rs/zerolog"
)

func TestHolder_Get(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	got := h.Get()
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", got.Server.Port)
	}
	if !filepath.IsAbs(h.Path()) {
		t.Errorf("Path() = %s, want absolute", h.Path())
	}
}

func TestHolder_NewHolderInvalid(t *testing.T) {
	path := writeConfig(t, "auth:\n  mode: magic\n")

	if _, err := config.NewHolder(path, zerolog.Nop()); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if h.Get().Logging.Level != "info" {
		t.Errorf("initial Logging.Level = %s, want info", h.Get().Logging.Level)
	}

	newContent := `
server:
  port: 9090
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if h.Get().Logging.Level != "debug" {
		t.Errorf("reloaded Logging.Level = %s, want debug", h.Get().Logging.Level)
	}
}

func TestHolder_OnChange(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var receivedCfg *config.Config

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		receivedCfg = cfg
		mu.Unlock()
	})

	if err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if receivedCfg == nil {
		t.Fatal("OnChange callback was not called")
	}
	if receivedCfg.Logging.Level != "warn" {
		t.Errorf("callback received level = %s, want warn", receivedCfg.Logging.Level)
	}
}

func TestHolder_ReloadInvalidConfig(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var reloadErr error
	changed := false
	h.OnError(func(err error) { reloadErr = err })
	h.OnChange(func(*config.Config) { changed = true })

	if err := os.WriteFile(path, []byte("store:\n  driver: mongo\n"), 0644); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if err := h.Reload(); err == nil {
		t.Error("Reload should fail for invalid config")
	}
	if reloadErr == nil {
		t.Error("OnError callback was not called")
	}
	if changed {
		t.Error("OnChange should not run for a failed reload")
	}

	// Old config should still be in place
	if h.Get().Store.Driver != "memory" {
		t.Errorf("should keep old config, got Store.Driver = %s", h.Get().Store.Driver)
	}
}

func TestHolder_WatchFile(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var mu sync.Mutex
	var callCount int

	h.OnChange(func(cfg *config.Config) {
		mu.Lock()
		callCount++
		mu.Unlock()
	})

	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(path, []byte("server:\n  port: 9090\nlogging:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	// Wait for file watcher to trigger
	deadline := time.Now().Add(2 * time.Second)
	for h.Get().Logging.Level != "error" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	if callCount == 0 {
		t.Error("file watcher did not trigger reload")
	}
	mu.Unlock()

	if h.Get().Logging.Level != "error" {
		t.Errorf("after file watch, Logging.Level = %s, want error", h.Get().Logging.Level)
	}
}

func TestHolder_StopTwice(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	h.WatchSignals()
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h.Get() == nil {
					t.Error("concurrent Get returned nil")
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}

	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := config.ReloadableFields()
	if len(reloadable) == 0 {
		t.Fatal("ReloadableFields returned empty")
	}
	if !contains(reloadable, "logging.level") {
		t.Error("logging.level not in ReloadableFields")
	}

	nonReloadable := config.NonReloadableFields()
	for _, e := range []string{"server.port", "store.driver", "auth.mode", "schema.max_depth"} {
		if !contains(nonReloadable, e) {
			t.Errorf("%s not in NonReloadableFields", e)
		}
	}
	for _, f := range reloadable {
		if contains(nonReloadable, f) {
			t.Errorf("%s listed as both reloadable and not", f)
		}
	}
}

func TestChanged(t *testing.T) {
	old := config.Default()
	next := config.Default()
	next.Logging.Level = "debug"
	next.Server.Port = 9090
	next.Server.TLS.Domains = []string{"example.com"}

	applied, restart := config.Changed(old, next)
	if len(applied) != 1 || applied[0] != "logging.level" {
		t.Errorf("applied = %v, want [logging.level]", applied)
	}
	for _, want := range []string{"server.port", "server.tls"} {
		if !contains(restart, want) {
			t.Errorf("restart = %v, missing %s", restart, want)
		}
	}
	if len(restart) != 2 {
		t.Errorf("restart = %v, want 2 fields", restart)
	}

	applied, restart = config.Changed(old, config.Default())
	if len(applied) != 0 || len(restart) != 0 {
		t.Errorf("identical configs reported changes: %v %v", applied, restart)
	}
}

// Helpers

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func validConfig() string {
	return `
server:
  port: 9090
logging:
  level: info
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
