package main

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luca-patrignani/popcore/domain"
)

// stateReader is the part of the engine the HTTP endpoints read.
type stateReader interface {
	State(laoID string) (domain.Snapshot, bool)
	Joined() []string
}

func newRouter(gatherer prometheus.Gatherer, engine stateReader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/laos", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			ids := engine.Joined()
			sort.Strings(ids)
			writeJSON(w, http.StatusOK, ids)
		})
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			s, ok := engine.State(chi.URLParam(req, "id"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "lao not joined"})
				return
			}
			writeJSON(w, http.StatusOK, s)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
