// Package schedule runs periodic maintenance jobs.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumenlabs/lumen/internal/config"
)

// ExpiredPruner deletes stale file context rows. *filecontext.Service
// satisfies it.
type ExpiredPruner interface {
	PruneExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Pruner periodically drops conversation file context older than the
// configured retention window.
type Pruner struct {
	logger    *slog.Logger
	files     ExpiredPruner
	spec      string
	retention time.Duration
	cron      *cron.Cron
}

func NewPruner(log *slog.Logger, cfg config.FileContextConfig, files ExpiredPruner) *Pruner {
	return &Pruner{
		logger:    log.With(slog.String("service", "prune")),
		files:     files,
		spec:      cfg.PruneSpec,
		retention: time.Duration(cfg.RetentionHours) * time.Hour,
	}
}

func (p *Pruner) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(p.spec, p.run); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	p.logger.Info("file context pruning scheduled", "spec", p.spec, "retention", p.retention.String())
	return nil
}

func (p *Pruner) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := p.files.PruneExpired(ctx, p.retention)
	if err != nil {
		p.logger.Error("file context prune failed", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("file context pruned", "removed", n)
	}
}
