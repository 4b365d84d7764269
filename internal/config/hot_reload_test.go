package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func tempConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("env: dev"), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestHotReloaderNew(t *testing.T) {
	path := tempConfigFile(t)

	reloader, err := NewHotReloader(path, DefaultHotReloadConfig())
	if err != nil {
		t.Fatalf("new hot reloader: %v", err)
	}
	defer reloader.Stop()

	if reloader.configPath != path {
		t.Errorf("expected config path %s, got %s", path, reloader.configPath)
	}
}

func TestHotReloaderFiresOnWrite(t *testing.T) {
	path := tempConfigFile(t)

	cfg := DefaultHotReloadConfig()
	cfg.CooldownTime = 0
	reloader, err := NewHotReloader(path, cfg)
	if err != nil {
		t.Fatalf("new hot reloader: %v", err)
	}
	defer reloader.Stop()

	var reloads int32
	reloader.SetReloadHandler(func() error {
		atomic.AddInt32(&reloads, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reloader.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(path, []byte("env: prod"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&reloads) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("reload handler not invoked after write")
}

func TestHotReloaderCooldownSuppressesBursts(t *testing.T) {
	path := tempConfigFile(t)

	cfg := DefaultHotReloadConfig()
	cfg.CooldownTime = time.Hour
	reloader, err := NewHotReloader(path, cfg)
	if err != nil {
		t.Fatalf("new hot reloader: %v", err)
	}
	defer reloader.Stop()

	var reloads int32
	reloader.SetReloadHandler(func() error {
		atomic.AddInt32(&reloads, 1)
		return nil
	})

	// 第一次触发生效并记录时间，窗口内的后续触发被吞掉
	reloader.handleConfigChange()
	reloader.handleConfigChange()
	reloader.handleConfigChange()

	if got := atomic.LoadInt32(&reloads); got != 1 {
		t.Fatalf("expected 1 reload within cooldown, got %d", got)
	}
}

func TestBotParameterValidator(t *testing.T) {
	v := &BotParameterValidator{}

	if err := v.Validate(map[string]interface{}{
		"quantity": 2.0, "buy_price": 100.0, "sell_price": 105.0, "leverage": 3,
	}); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	bad := []map[string]interface{}{
		{"quantity": -1.0},
		{"buy_price": 105.0, "sell_price": 100.0},
		{"buy_price": 100.0, "sell_price": 100.0},
		{"leverage": 0},
		{"leverage": 50},
	}
	for i, params := range bad {
		if err := v.Validate(params); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, params)
		}
	}
}

func TestEngineParameterValidator(t *testing.T) {
	v := &EngineParameterValidator{}

	if err := v.Validate(map[string]interface{}{"event_queue_size": 1024, "lock_max_age_min": 60}); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}
	if err := v.Validate(map[string]interface{}{"event_queue_size": 0}); err == nil {
		t.Fatal("expected error for zero queue size")
	}
	if err := v.Validate(map[string]interface{}{"lock_max_age_min": -1}); err == nil {
		t.Fatal("expected error for negative lock age")
	}
}

func TestValidateParametersUnknownCategory(t *testing.T) {
	path := tempConfigFile(t)
	reloader, err := NewHotReloader(path, DefaultHotReloadConfig())
	if err != nil {
		t.Fatalf("new hot reloader: %v", err)
	}
	defer reloader.Stop()

	if err := reloader.ValidateParameters("nope", nil); err == nil {
		t.Fatal("expected error for unregistered category")
	}

	reloader.RegisterValidator("bot", &BotParameterValidator{})
	if err := reloader.ValidateParameters("bot", map[string]interface{}{"quantity": 1.0}); err != nil {
		t.Fatalf("registered validator failed: %v", err)
	}
}
