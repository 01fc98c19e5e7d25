package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/devopin/agent/pkg/ingest"
	"github.com/devopin/agent/pkg/record"
	"github.com/devopin/agent/pkg/servicectl"
	"github.com/devopin/agent/pkg/sysmetrics"
)

// Agent runs monitoring cycles: ingest every configured project's logs,
// snapshot system metrics, query monitored service statuses, and hand the
// assembled payload to the backend, falling back to local persistence.
type Agent struct {
	engine   *ingest.Engine
	metrics  *sysmetrics.Collector
	services *servicectl.Manager
	backend  *BackendClient
	fallback Deliverer

	projects []record.Project
	watched  []string
	logger   *slog.Logger
}

// Options configures an Agent.
type Options struct {
	Engine   *ingest.Engine
	Metrics  *sysmetrics.Collector
	Services *servicectl.Manager
	Backend  *BackendClient // nil disables delivery and project discovery
	Fallback Deliverer
	Projects []record.Project
	Watched  []string // service names to report status for
	Logger   *slog.Logger
}

func New(opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		engine:   opts.Engine,
		metrics:  opts.Metrics,
		services: opts.Services,
		backend:  opts.Backend,
		fallback: opts.Fallback,
		projects: opts.Projects,
		watched:  opts.Watched,
		logger:   logger,
	}
}

// Run executes cycles at the given interval until the context is cancelled.
// The first cycle runs immediately.
func (a *Agent) Run(ctx context.Context, interval time.Duration) {
	a.RunCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}

// RunCycle performs one complete monitoring cycle and returns the payload it
// delivered. Every failure inside the cycle is contained: a broken project is
// skipped, a failed metric snapshot leaves the field empty, delivery failure
// falls back to local persistence.
func (a *Agent) RunCycle(ctx context.Context) Payload {
	a.logger.Info("starting monitoring cycle")

	payload := Payload{
		Timestamp: time.Now().Format(time.RFC3339),
		Logs:      make(map[string][]record.LogRecord),
	}

	for _, p := range a.currentProjects(ctx) {
		if p.LogPath == "" || p.Framework == "" {
			a.logger.Warn("incomplete project definition, skipping", "project", p.Name)
			continue
		}
		records := a.engine.Ingest(p.LogPath, p.Framework, p.Name)
		payload.Logs[p.Name] = records
		a.logger.Info("project ingested", "project", p.Name, "records", len(records))
	}

	if a.metrics != nil {
		if m, err := a.metrics.Snapshot(ctx); err == nil {
			payload.SystemMetrics = &m
		} else {
			a.logger.Error("system metrics unavailable", "err", err)
		}
	}

	if a.services != nil && len(a.watched) > 0 {
		payload.Services = a.services.StatusAll(ctx, a.watched)
	}

	a.deliver(ctx, payload)
	a.logger.Info("monitoring cycle completed")
	return payload
}

// currentProjects merges backend-discovered projects over the configured
// ones. Discovery failure degrades to config-only.
func (a *Agent) currentProjects(ctx context.Context) []record.Project {
	if a.backend == nil {
		return a.projects
	}
	discovered, err := a.backend.Projects(ctx)
	if err != nil {
		a.logger.Warn("project discovery failed, using configured projects", "err", err)
		return a.projects
	}

	seen := make(map[string]bool, len(discovered))
	merged := make([]record.Project, 0, len(discovered)+len(a.projects))
	for _, p := range discovered {
		seen[p.Name] = true
		merged = append(merged, p)
	}
	for _, p := range a.projects {
		if !seen[p.Name] {
			merged = append(merged, p)
		}
	}
	return merged
}

func (a *Agent) deliver(ctx context.Context, payload Payload) {
	if a.backend != nil {
		err := a.backend.Deliver(ctx, payload)
		if err == nil {
			a.logger.Info("payload delivered to backend")
			return
		}
		a.logger.Error("backend delivery failed", "err", err)
	}
	if a.fallback == nil {
		return
	}
	if err := a.fallback.Deliver(ctx, payload); err != nil {
		a.logger.Error("local fallback failed", "err", err)
	} else {
		a.logger.Info("payload saved locally")
	}
}
