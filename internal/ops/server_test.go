package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Health(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		deps   []Pinger
		status int
	}{
		{name: "no dependencies", status: http.StatusOK},
		{name: "healthy dependency", deps: []Pinger{pinger{}}, status: http.StatusOK},
		{name: "nil dependency skipped", deps: []Pinger{nil, pinger{}}, status: http.StatusOK},
		{
			name:   "unhealthy dependency",
			deps:   []Pinger{pinger{}, pinger{err: errors.New("connection refused")}},
			status: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewRouter(tt.deps...))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/readyz")
			assert.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
