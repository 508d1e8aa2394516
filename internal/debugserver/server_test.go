package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/gandalf/internal/config"
	"github.com/fyrsmithlabs/gandalf/internal/dbpool"
	"github.com/fyrsmithlabs/gandalf/internal/logging"
	"github.com/fyrsmithlabs/gandalf/internal/telemetry"
)

func newTestServer(t *testing.T, pool *dbpool.Pool, tel *telemetry.Telemetry) *Server {
	t.Helper()
	log := logging.NewTestLogger()
	s, err := NewServer(config.DebugConfig{Addr: "127.0.0.1:0"}, pool, tel, log.Logger, "test")
	require.NoError(t, err)
	return s
}

func TestNewServer_RejectsNonLoopback(t *testing.T) {
	log := logging.NewTestLogger()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"loopback ipv4", "127.0.0.1:9119", false},
		{"localhost", "localhost:9119", false},
		{"loopback ipv6", "[::1]:9119", false},
		{"all interfaces", "0.0.0.0:9119", true},
		{"public address", "10.1.2.3:9119", true},
		{"missing port", "127.0.0.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(config.DebugConfig{Addr: tt.addr}, nil, nil, log.Logger, "test")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestReadyz(t *testing.T) {
	pool := dbpool.New(dbpool.Options{}, nil)
	defer pool.Close()
	tt := telemetry.NewTestTelemetry()

	s := newTestServer(t, pool, tt.Telemetry)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadyzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	require.NotNil(t, resp.Pool)
	assert.Equal(t, 0, resp.Pool.IdleHandles)
	require.NotNil(t, resp.Telemetry)
	assert.True(t, resp.Telemetry.Healthy)
}

func TestReadyz_WithoutComponents(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadyzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Pool)
	assert.Nil(t, resp.Telemetry)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Default Go collector metrics are always present.
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPoolEndpoint(t *testing.T) {
	pool := dbpool.New(dbpool.Options{}, nil)
	defer pool.Close()

	s := newTestServer(t, pool, nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/pool", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats dbpool.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Keys)
}

func TestPoolEndpoint_NoPool(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/debug/pool", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
