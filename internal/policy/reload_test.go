package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/promptspeak/internal/model"
)

type configRecorder struct {
	stubEngine
	last atomic.Value
}

func (c *configRecorder) SetExecutionControlConfig(cfg model.ExecutionControlConfig) {
	c.last.Store(cfg)
}

func TestReloaderSkipsMissingPaths(t *testing.T) {
	r, err := NewReloader([]string{"", "/nonexistent/policy.yaml"}, func() error { return nil }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Paths()) != 0 {
		t.Fatalf("expected no watched paths, got %v", r.Paths())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestReloaderTriggersOnWrite(t *testing.T) {
	path := writePolicy(t, "mode: standard\n")

	var reloads atomic.Int32
	r, err := NewReloader([]string{path}, func() error {
		reloads.Add(1)
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	if err := os.WriteFile(path, []byte("mode: strict\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("expected reload after write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestApplyPushesConfig(t *testing.T) {
	path := writePolicy(t, "mode: strict\ndenied_tools: [rm]\n")
	engine := &configRecorder{}

	var rulesApplied bool
	cfg, err := Apply(path, engine, func(c *PolicyConfig) { rulesApplied = len(c.DeniedTools) == 1 })
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != ModeStrict {
		t.Fatalf("mode = %s", cfg.Mode)
	}
	got, ok := engine.last.Load().(model.ExecutionControlConfig)
	if !ok || !got.HoldOnLowConfidence {
		t.Fatalf("strict config not pushed: %+v", got)
	}
	if !rulesApplied {
		t.Fatal("expected rules callback")
	}
}

func TestApplyInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("mode: nope\n"), 0644); err != nil {
		t.Fatal(err)
	}
	engine := &configRecorder{}
	_, err := Apply(path, engine, nil)
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if engine.last.Load() != nil {
		t.Fatal("invalid config must not be pushed")
	}
}
