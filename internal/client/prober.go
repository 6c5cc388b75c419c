// Package client is the capture-side half of the relay: endpoint discovery
// and the connection controller the capture pipeline drives.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DrFlight7/scorecast-live-streamer/config"
)

// RelayPath is the fixed upgrade-required endpoint for relay sockets.
const RelayPath = "/stream"

// ErrNoEndpoint means every candidate was probed and none answered.
var ErrNoEndpoint = errors.New("no relay endpoint reachable")

// probePaths are tried in order against each candidate. The relay path is
// last: without upgrade headers it answers 400, which still proves the host
// runs a relay (see reachable).
var probePaths = []string{"/health", "/ping", RelayPath}

// Prober finds a reachable relay among an ordered set of candidate base
// URLs. A user-supplied endpoint is tried first, then the endpoint
// discovered by a previous successful probe, then the static fallbacks.
type Prober struct {
	UserEndpoint string
	Candidates   []string

	client *http.Client
	logger *zap.Logger

	mu         sync.Mutex
	discovered string
}

func NewProber(userEndpoint string, candidates []string, timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		UserEndpoint: userEndpoint,
		Candidates:   candidates,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// NewProberFromConfig builds a Prober whose fallback candidates and
// per-request timeout come from the client section of the config file.
func NewProberFromConfig(userEndpoint string, cfg config.Client, logger *zap.Logger) *Prober {
	return NewProber(userEndpoint, cfg.Endpoints, time.Duration(cfg.ConnectTimeoutSeconds)*time.Second, logger)
}

// Resolve probes candidates in priority order and returns the first
// reachable base URL. The winner is cached and promoted to the front of
// future candidate orderings until the process restarts.
func (p *Prober) Resolve(ctx context.Context) (string, error) {
	for _, base := range p.ordered() {
		if p.reachable(ctx, base) {
			p.mu.Lock()
			p.discovered = base
			p.mu.Unlock()
			p.logger.Info("relay endpoint resolved", zap.String("base", base))
			return base, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", ErrNoEndpoint
}

// Discovered returns the cached endpoint from the last successful probe.
func (p *Prober) Discovered() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovered
}

func (p *Prober) ordered() []string {
	p.mu.Lock()
	discovered := p.discovered
	p.mu.Unlock()

	out := make([]string, 0, len(p.Candidates)+2)
	seen := make(map[string]bool)
	for _, base := range append([]string{p.UserEndpoint, discovered}, p.Candidates...) {
		base = strings.TrimRight(base, "/")
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
	}
	return out
}

// reachable tries each well-known path once. Success is permissive: any 2xx
// counts, and so does a 400 on the relay path whose body mentions the
// required upgrade, since that response only comes from a live relay.
func (p *Prober) reachable(ctx context.Context, base string) bool {
	for _, path := range probePaths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			p.logger.Warn("bad candidate URL", zap.String("base", base), zap.Error(err))
			return false
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Debug("probe failed", zap.String("url", base+path), zap.Error(err))
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
		if path == RelayPath && resp.StatusCode == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(string(body)), "upgrade") {
			return true
		}
	}
	return false
}

// SocketURL derives the WebSocket URL for sessions from a probed base URL
// by swapping the scheme and appending the relay path.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("endpoint %q: unsupported scheme %q", base, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + RelayPath
	return u.String(), nil
}
