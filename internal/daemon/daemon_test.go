package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/lancera/courier/internal/bus"
	"github.com/lancera/courier/internal/config"
	"github.com/lancera/courier/internal/httpapi"
	"github.com/lancera/courier/internal/identity"
	"github.com/lancera/courier/internal/lock"
	"github.com/lancera/courier/internal/registry"
	"github.com/lancera/courier/internal/relay"
	"github.com/lancera/courier/internal/status"
	"github.com/lancera/courier/internal/store"
	"github.com/lancera/courier/internal/ws"
	"go.uber.org/zap"
)

func testServer(t *testing.T) (*Server, *status.Machine, *lock.Lock) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DataDir = dir
	cfg.TokenSecret = "test-secret"

	logger := zap.NewNop()

	lk, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		t.Fatalf("acquiring lock: %v", err)
	}
	t.Cleanup(func() { _ = lk.Release() })

	db, err := store.Open(filepath.Join(dir, cfg.DBPath))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	b := bus.New()
	machine := status.NewMachine(b)
	reg := registry.New()
	resolver := identity.NewResolver(cfg.TokenSecret, cfg.TokenIssuer)
	router := relay.NewRouter(db, reg, b, logger, cfg.MaxBodyLen)
	wsh := ws.NewHandler(resolver, reg, router, logger,
		cfg.AllowedOrigins, time.Duration(cfg.JoinGrace), cfg.MaxBodyLen)
	api := httpapi.NewServer(db, resolver, router, reg, machine, logger)

	srv, err := NewServer(cfg, api, wsh, logger)
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	return srv, machine, lk
}

func TestServerLifecycle(t *testing.T) {
	srv, machine, _ := testServer(t)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if err := machine.Transition(status.Ready); err != nil {
		t.Fatalf("transitioning to ready: %v", err)
	}

	url := fmt.Sprintf("http://%s/healthz", srv.Addr())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("requesting health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if health.Status != string(status.Ready) {
		t.Fatalf("expected status %q, got %q", status.Ready, health.Status)
	}
	if health.Connections != 0 {
		t.Fatalf("expected 0 connections, got %d", health.Connections)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stopping server: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerAddrBound(t *testing.T) {
	srv, _, _ := testServer(t)

	addr := srv.Addr()
	if addr == "" || addr == "127.0.0.1:0" {
		t.Fatalf("expected a bound port, got %q", addr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("stopping server: %v", err)
	}
}
