package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// statusTimeout bounds the read-only status query. Mutating operations
// are never subject to this; they run through the execution engine.
const statusTimeout = 5 * time.Second

// ErrStatusUnavailable wraps any failure to obtain the deployment list:
// missing rpm-ostree binary, a dead daemon, malformed JSON. Callers treat
// it as "status unavailable" and degrade to read-only display.
var ErrStatusUnavailable = errors.New("deployment status unavailable")

// Runner abstracts the subprocess call so tests can substitute canned
// output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Client queries the host's deployment list.
type Client struct {
	runner  Runner
	flatpak bool
	logger  *slog.Logger
}

// NewClient builds a status client. Inside a flatpak sandbox the query is
// wrapped with flatpak-spawn so it reaches the host rpm-ostree.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	_, flatpak := os.LookupEnv("FLATPAK_ID")
	return &Client{runner: execRunner, flatpak: flatpak, logger: logger}
}

// WithRunner replaces the subprocess runner. Test hook.
func (c *Client) WithRunner(r Runner) *Client {
	c.runner = r
	return c
}

// List fetches and parses the current deployment listing.
func (c *Client) List(ctx context.Context) ([]Deployment, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	name, args := c.statusCommand()
	out, err := c.runner(ctx, name, args...)
	if err != nil {
		c.logger.Warn("status query failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	deployments, err := ParseStatus(out)
	if err != nil {
		if errors.Is(err, ErrNoBootedDeployment) || errors.Is(err, ErrAmbiguousBootedDeployment) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	return deployments, nil
}

func (c *Client) statusCommand() (string, []string) {
	if c.flatpak {
		return "flatpak-spawn", []string{"--host", "rpm-ostree", "status", "--json"}
	}
	return "rpm-ostree", []string{"status", "--json"}
}
