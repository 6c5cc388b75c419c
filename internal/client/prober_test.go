package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func healthyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// deadEndpoint returns a base URL nothing listens on.
func deadEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return "http://" + addr
}

func newTestProber(user string, candidates []string) *Prober {
	return NewProber(user, candidates, 500*time.Millisecond, zap.NewNop())
}

func TestResolveSkipsUnreachableCandidates(t *testing.T) {
	srv := healthyServer(t)
	candidates := []string{deadEndpoint(t), deadEndpoint(t), srv.URL}

	p := newTestProber("", candidates)
	base, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL, base)
}

func TestResolveFailsWhenNothingAnswers(t *testing.T) {
	p := newTestProber("", []string{deadEndpoint(t), deadEndpoint(t)})
	_, err := p.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoEndpoint)
}

func TestUserEndpointTakesPriority(t *testing.T) {
	userSrv := healthyServer(t)
	fallbackSrv := healthyServer(t)

	p := newTestProber(userSrv.URL, []string{fallbackSrv.URL})
	base, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, userSrv.URL, base)
}

func TestDiscoveredEndpointIsCachedAndPromoted(t *testing.T) {
	srv := healthyServer(t)
	p := newTestProber("", []string{deadEndpoint(t), srv.URL})

	_, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL, p.Discovered())

	// The discovered endpoint now heads the candidate ordering.
	assert.Equal(t, srv.URL, p.ordered()[0])
}

func TestUpgradeRequired400CountsAsReachable(t *testing.T) {
	mux := http.NewServeMux()
	// No /health, no /ping: only the relay path answers, and it answers 400.
	mux.HandleFunc(RelayPath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"WebSocket upgrade required on this endpoint"}`, http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := newTestProber("", []string{srv.URL})
	base, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL, base)
}

func TestPlain404IsNotReachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	p := newTestProber("", []string{srv.URL})
	_, err := p.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoEndpoint)
}

func TestSocketURLDerivation(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://relay.example.com:8080", "ws://relay.example.com:8080/stream"},
		{"https://relay.example.com", "wss://relay.example.com/stream"},
		{"http://relay.example.com/base/", "ws://relay.example.com/base/stream"},
	}
	for _, tt := range tests {
		got, err := SocketURL(tt.base)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSocketURLRejectsOddSchemes(t *testing.T) {
	_, err := SocketURL("ftp://nope")
	require.Error(t, err)
}

func TestResolveHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProber("", []string{deadEndpoint(t)})
	_, err := p.Resolve(ctx)
	require.Error(t, err)
}
