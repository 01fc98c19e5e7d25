package servicectl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/devopin/agent/pkg/record"
)

// DefaultTimeout bounds every service-manager invocation. A hung systemctl
// call is reported as a timeout failure, never left hanging.
const DefaultTimeout = 30 * time.Second

// Result captures one service-manager invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes service-manager commands. The systemctl-backed runner is
// the production implementation; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// SystemctlRunner shells out to systemctl.
type SystemctlRunner struct{}

func (SystemctlRunner) Run(ctx context.Context, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// Outcome is the shaped result of a control-plane service action, ready to be
// copied into a command response.
type Outcome struct {
	Success bool
	Message string
	Output  string
}

// Manager runs service-manager actions and status queries.
type Manager struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger

	// props reads MainPID/memory for an active unit; swapped out in tests.
	props func(ctx context.Context, unit string) (int, uint64, error)
}

// NewManager creates a Manager using the real systemctl runner.
func NewManager(logger *slog.Logger) *Manager {
	return NewManagerWith(SystemctlRunner{}, DefaultTimeout, logger)
}

// NewManagerWith creates a Manager with an explicit runner and timeout.
func NewManagerWith(r Runner, timeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{runner: r, timeout: timeout, logger: logger, props: unitProperties}
}

// Action performs start/stop/restart/enable/disable on a service. A non-zero
// exit maps to a failure carrying the manager's stderr, or a default message
// when stderr is empty.
func (m *Manager) Action(ctx context.Context, action, service string) Outcome {
	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.runner.Run(runCtx, action, service)
	// A killed-by-deadline systemctl surfaces as a plain non-zero exit, so
	// the deadline check must precede the exit-code mapping.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Outcome{Message: fmt.Sprintf("Timeout %sing service %s", action, service)}
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Outcome{Message: "systemctl command not found"}
		}
		return Outcome{Message: fmt.Sprintf("Error running systemctl: %v", err)}
	}

	if res.ExitCode != 0 {
		msg := res.Stderr
		if msg == "" {
			msg = fmt.Sprintf("Failed to %s %s", action, service)
		}
		return Outcome{Message: msg}
	}

	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Successfully %sed %s", action, service),
		Output:  res.Stdout,
	}
}

var sinceRe = regexp.MustCompile(`since (.+?);`)

// ServiceDetail is the status payload for one service.
type ServiceDetail struct {
	Service      string `json:"service"`
	Active       string `json:"active"`
	Enabled      string `json:"enabled"`
	StatusOutput string `json:"status_output"`
	MainPID      int    `json:"main_pid,omitempty"`
	MemoryBytes  uint64 `json:"memory_bytes,omitempty"`
}

// Detail queries active/enabled state and the verbose status blob for one
// service. Query errors surface per field as empty values; only a runner
// failure is returned as an error.
func (m *Manager) Detail(ctx context.Context, service string) (ServiceDetail, error) {
	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	active, err := m.runner.Run(runCtx, "is-active", service)
	if err != nil {
		return ServiceDetail{}, fmt.Errorf("query %s: %w", service, err)
	}
	enabled, err := m.runner.Run(runCtx, "is-enabled", service)
	if err != nil {
		return ServiceDetail{}, fmt.Errorf("query %s: %w", service, err)
	}
	status, err := m.runner.Run(runCtx, "status", service, "--no-pager", "-l")
	if err != nil {
		return ServiceDetail{}, fmt.Errorf("query %s: %w", service, err)
	}

	d := ServiceDetail{
		Service:      service,
		Active:       active.Stdout,
		Enabled:      enabled.Stdout,
		StatusOutput: status.Stdout,
	}
	if d.Active == "active" {
		// Best-effort enrichment over D-Bus; a missing bus degrades to
		// the systemctl fields only.
		if pid, mem, err := m.props(ctx, unitName(service)); err == nil {
			d.MainPID = pid
			d.MemoryBytes = mem
		}
	}
	return d, nil
}

// Status returns the monitoring-cycle view of one service.
func (m *Manager) Status(ctx context.Context, service string) (record.ServiceStatus, error) {
	d, err := m.Detail(ctx, service)
	if err != nil {
		return record.ServiceStatus{}, err
	}

	st := record.ServiceStatus{
		Name:    service,
		Active:  d.Active == "active",
		Enabled: d.Enabled == "enabled",
	}
	if st.Active {
		st.Status = "active"
	} else {
		st.Status = "inactive"
	}
	for _, line := range strings.Split(d.StatusOutput, "\n") {
		if strings.Contains(line, "Active:") {
			if m := sinceRe.FindStringSubmatch(line); m != nil {
				st.Uptime = m[1]
			}
			break
		}
	}
	return st, nil
}

// StatusAll collects the statuses of multiple services, skipping the ones
// that cannot be queried.
func (m *Manager) StatusAll(ctx context.Context, services []string) []record.ServiceStatus {
	out := make([]record.ServiceStatus, 0, len(services))
	for _, svc := range services {
		st, err := m.Status(ctx, svc)
		if err != nil {
			m.logger.Error("service status", "service", svc, "err", err)
			continue
		}
		out = append(out, st)
	}
	return out
}

func unitName(service string) string {
	if strings.Contains(service, ".") {
		return service
	}
	return service + ".service"
}
