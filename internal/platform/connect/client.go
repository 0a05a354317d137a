package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"schemabridge/internal/platform/retry"
)

const stateRunning = "RUNNING"

// ErrNotRunning means a connector or one of its tasks is not RUNNING yet.
var ErrNotRunning = errors.New("connector not running")

type TaskStatus struct {
	ID    int    `json:"id"`
	State string `json:"state"`
	Trace string `json:"trace,omitempty"`
}

// Status is the body of GET /connectors/{name}/status.
type Status struct {
	Name      string `json:"name"`
	Connector struct {
		State    string `json:"state"`
		WorkerID string `json:"worker_id"`
	} `json:"connector"`
	Tasks []TaskStatus `json:"tasks"`
}

// Running reports whether the connector and every task run. A connector
// without tasks is not considered running.
func (s Status) Running() bool {
	if s.Connector.State != stateRunning || len(s.Tasks) == 0 {
		return false
	}
	for _, task := range s.Tasks {
		if task.State != stateRunning {
			return false
		}
	}
	return true
}

// Client talks to the Kafka Connect REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Logger:     logger,
	}
}

func (c *Client) Status(ctx context.Context, connector string) (Status, error) {
	endpoint := c.BaseURL + "/connectors/" + url.PathEscape(connector) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build connect request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("query connector %s: %w", connector, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Status{}, fmt.Errorf("read connector %s status: %w", connector, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return Status{}, fmt.Errorf("%w: connector %s is not registered", ErrNotRunning, connector)
	}
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("connector %s status: http %d: %s", connector, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return Status{}, fmt.Errorf("decode connector %s status: %w", connector, err)
	}
	return status, nil
}

// WaitHealthy polls every connector until all of them and their tasks run,
// or the policy gives up.
func (c *Client) WaitHealthy(ctx context.Context, connectors []string, policy retry.Policy) error {
	check := func(ctx context.Context) error {
		for _, name := range connectors {
			status, err := c.Status(ctx, name)
			if err != nil {
				return err
			}
			if !status.Running() {
				return fmt.Errorf("%w: %s is %s", ErrNotRunning, name, describe(status))
			}
		}
		return nil
	}
	notify := func(attempt int, err error, wait time.Duration) {
		c.Logger.Warn("pipeline not healthy yet",
			"event", "connect_health_retry",
			"module", "platform/connect",
			"layer", "platform",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err.Error(),
		)
	}
	if err := retry.Do(ctx, policy, check, notify); err != nil {
		return fmt.Errorf("wait for connectors: %w", err)
	}
	c.Logger.Info("pipeline healthy",
		"event", "connect_healthy",
		"module", "platform/connect",
		"layer", "platform",
		"connectors", strings.Join(connectors, ","),
	)
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func describe(status Status) string {
	states := make([]string, 0, len(status.Tasks)+1)
	states = append(states, "connector="+status.Connector.State)
	for _, task := range status.Tasks {
		states = append(states, fmt.Sprintf("task%d=%s", task.ID, task.State))
	}
	if len(status.Tasks) == 0 {
		states = append(states, "no tasks")
	}
	return strings.Join(states, " ")
}
