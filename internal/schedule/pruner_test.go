package schedule

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lumenlabs/lumen/internal/config"
)

type countingPruner struct {
	mu        sync.Mutex
	calls     int
	retention time.Duration
}

func (c *countingPruner) PruneExpired(ctx context.Context, retention time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.retention = retention
	return 1, nil
}

func (c *countingPruner) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestPrunerRuns(t *testing.T) {
	files := &countingPruner{}
	p := NewPruner(slog.Default(), config.FileContextConfig{RetentionHours: 48, PruneSpec: "@every 20ms"}, files)

	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if files.callCount() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if files.callCount() == 0 {
		t.Fatal("prune never ran")
	}

	files.mu.Lock()
	retention := files.retention
	files.mu.Unlock()
	if retention != 48*time.Hour {
		t.Errorf("retention = %v, want 48h", retention)
	}
}

func TestPrunerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	p := NewPruner(slog.Default(), config.FileContextConfig{PruneSpec: "not a spec"}, &countingPruner{})
	if err := p.Start(); err == nil {
		p.Stop()
		t.Fatal("expected error for invalid cron spec")
	}
}
