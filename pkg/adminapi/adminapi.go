// Package adminapi exposes the operator-facing HTTP surface alongside the
// sync engine: liveness/readiness probes, Prometheus metrics, Swagger docs,
// and a small set of debug endpoints for inspecting a sync context's root
// and side-batches without touching the store directly. Routes are built
// on gorilla/mux so the debug routes can use path variables instead of
// manual parsing.
package adminapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"melonsync/pkg/logger"
	"melonsync/pkg/remotestore"
	"melonsync/pkg/revision"
)

// Server wires the admin HTTP surface to a concrete Store.
type Server struct {
	Store   remotestore.Store
	Version string

	srv *http.Server
}

// Handler builds the gorilla/mux router. Exported separately from Start so
// tests can drive it with httptest without binding a real listener.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	debug := r.PathPrefix("/debug/roots/{handle}").Subrouter()
	debug.HandleFunc("", s.debugRoot).Methods(http.MethodGet)
	debug.HandleFunc("/batches", s.debugBatches).Methods(http.MethodGet)

	return r
}

// Start binds addr and serves until ctx is cancelled: run ListenAndServe
// in a goroutine, surface its terminal error on the returned channel.
func (s *Server) Start(ctx context.Context, addr string) <-chan error {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	go func() {
		<-ctx.Done()
		if err := s.srv.Close(); err != nil {
			logger.Warn("admin_http_close_failed", "error", err)
		}
	}()
	return errCh
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	root := s.Store.Root("__readyz_probe__")
	if _, err := root.Get(ctx); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	ver := s.Version
	if ver == "" {
		ver = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": ver})
}

// debugRoot reports a handle's current root state: latestRevision,
// nextRevision, and the side-batch tokens linked from it.
func (s *Server) debugRoot(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]
	ctx := r.Context()

	snap, err := s.Store.Root(handle).Get(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !snap.Exists {
		writeJSON(w, http.StatusOK, map[string]any{"handle": handle, "exists": false})
		return
	}
	state := revision.FromDoc(snap.Exists, snap.Data)
	writeJSON(w, http.StatusOK, map[string]any{
		"handle":         handle,
		"exists":         true,
		"latestRevision": state.LatestRevision(),
		"nextRevision":   state.NextRevisionToWrite(),
		"batchTokens":    state.BatchTokens(),
	})
}

// debugBatches lists the raw side-batch documents linked from a handle's
// root, each with its own latestRevision/latestDate. Only linked batches are
// listed; orphaned batches, which vacuum reclaims, never appear here.
func (s *Server) debugBatches(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]
	ctx := r.Context()

	root := s.Store.Root(handle)
	snap, err := root.Get(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	state := revision.FromDoc(snap.Exists, snap.Data)

	type batchInfo struct {
		Token          string `json:"token"`
		LatestRevision int64  `json:"latestRevision,omitempty"`
		LatestDate     string `json:"latestDate,omitempty"`
	}
	var batches []batchInfo
	for rev, token := range state.BatchTokens() {
		bsnap, err := root.Collection(revision.CollectionBatches).Doc(token).Get(ctx)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		info := batchInfo{Token: token}
		if bsnap.Exists {
			if lr, ok := bsnap.Data[revision.FieldLatestRevision].(float64); ok {
				info.LatestRevision = int64(lr)
			}
			if ld, ok := bsnap.Data[revision.FieldLatestDate].(string); ok {
				info.LatestDate = ld
			}
		}
		_ = rev
		batches = append(batches, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"handle": handle, "batches": batches})
}
