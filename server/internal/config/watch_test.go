package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestWatch_Write_CallsOnChange(t *testing.T) {
	p := writeConfig(t, minimal)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, p, func(c *Config) { changed <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte(minimal+"  log:\n    level: debug\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Server.Log.SlogLevel() != slog.LevelDebug {
			t.Errorf("reloaded level: got %v, want debug", cfg.Server.Log.SlogLevel())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("onChange not called after write")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_InvalidReload_KeepsPrevious(t *testing.T) {
	p := writeConfig(t, minimal)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	go func() { _ = Watch(ctx, p, func(c *Config) { changed <- c }) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte("server:\n  http_port: 8080\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case cfg := <-changed:
		t.Fatalf("onChange called with invalid config: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatch_MissingDirectory_ReturnsError(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/dir/config.yaml", func(*Config) {})
	if err == nil {
		t.Fatal("expected error for missing directory, got nil")
	}
}
