// Package httpapi exposes the invocation handler over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tckz/viewcounter/internal/counter"
	"github.com/tckz/viewcounter/internal/handler"
)

type viewsResponse struct {
	Key   string `json:"key"`
	Views int64  `json:"views"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// NewRouter routes POST /views/{key} to h. gatherer may be nil to omit /metrics.
func NewRouter(h *handler.Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/views/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		n, err := h.Handle(r.Context(), handler.Event{Key: key})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewsResponse{Key: key, Views: n})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func statusOf(kind string) int {
	switch kind {
	case counter.KindInvalidInput.String():
		return http.StatusBadRequest
	case counter.KindConflict.String():
		return http.StatusConflict
	case counter.KindStoreUnavailable.String():
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var ie *handler.InvocationError
	if !errors.As(err, &ie) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: counter.KindUnknown.String()})
		return
	}
	writeJSON(w, statusOf(ie.Kind), errorResponse{Error: ie.Error(), Kind: ie.Kind, Retryable: ie.Retryable})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
