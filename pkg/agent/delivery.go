package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/devopin/agent/pkg/record"
)

// Payload is one monitoring cycle's output, handed to a deliverer.
type Payload struct {
	Timestamp     string                        `json:"timestamp"`
	Logs          map[string][]record.LogRecord `json:"logs"`
	SystemMetrics *record.SystemMetrics         `json:"system_metrics,omitempty"`
	Services      []record.ServiceStatus        `json:"services"`
}

// Deliverer receives assembled monitoring payloads.
type Deliverer interface {
	Deliver(ctx context.Context, p Payload) error
}

// BackendClient talks to the management backend: project discovery and
// payload delivery.
type BackendClient struct {
	baseURL string
	http    *http.Client
}

func NewBackendClient(baseURL string) *BackendClient {
	return &BackendClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Projects fetches the monitored project list from the backend.
func (b *BackendClient) Projects(ctx context.Context) ([]record.Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/projects", nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch projects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch projects: backend returned %d", resp.StatusCode)
	}

	var body struct {
		Data []record.Project `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	return body.Data, nil
}

// Deliver posts one payload to the backend.
func (b *BackendClient) Deliver(ctx context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/api/monitoring-data", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("send payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send payload: backend returned %d", resp.StatusCode)
	}
	return nil
}

// LocalStore persists payloads to disk when the backend is unreachable.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (l *LocalStore) Deliver(_ context.Context, p Payload) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create fallback dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	name := fmt.Sprintf("monitoring_data_%s.json", time.Now().Format("20060102_150405"))
	path := filepath.Join(l.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
