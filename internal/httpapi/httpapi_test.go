package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/handler"
	"github.com/tckz/viewcounter/internal/metrics"
	"github.com/tckz/viewcounter/internal/store/memstore"
)

func newTestServer(t *testing.T, c handler.Counter) (*httptest.Server, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	if c == nil {
		vc, err := counter.New(s)
		require.NoError(t, err)
		c = vc
	}
	reg := prometheus.NewRegistry()
	h := handler.New(c, handler.WithMetrics(metrics.New(reg)))
	srv := httptest.NewServer(NewRouter(h, reg))
	t.Cleanup(srv.Close)
	return srv, s
}

func post(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestIncrement(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	status, body := post(t, srv.URL+"/views/page-42")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"key": "page-42", "views": 1.0}, body)

	status, body = post(t, srv.URL+"/views/page-42")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["views"])
}

func TestIncrement_Corrupted(t *testing.T) {
	srv, s := newTestServer(t, nil)
	s.Put("bad", map[string]interface{}{"views": "not-a-number"})

	status, body := post(t, srv.URL+"/views/bad")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "data_corruption", body["kind"])
	assert.Equal(t, false, body["retryable"])
}

func TestIncrement_StatusByKind(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("%w: key is required", counter.ErrInvalidInput), want: http.StatusBadRequest},
		{err: fmt.Errorf("%w: gave up", counter.ErrConflict), want: http.StatusConflict},
		{err: fmt.Errorf("%w: timeout", counter.ErrStoreUnavailable), want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.want), func(t *testing.T) {
			srv, _ := newTestServer(t, failingCounter{err: tt.err})
			status, _ := post(t, srv.URL+"/views/k")
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestMetricsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	post(t, srv.URL+"/views/page-42")

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `viewcounter_increments_total{outcome="ok"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/views/page-42")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type failingCounter struct {
	err error
}

func (f failingCounter) Increment(context.Context, string) (int64, error) {
	return 0, f.err
}
