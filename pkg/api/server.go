// Package api serves persisted scenario runs over HTTP and streams live run
// events over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexscenario/pkg/book"
	"github.com/uhyunpark/dexscenario/pkg/dex"
	"github.com/uhyunpark/dexscenario/pkg/runner"
)

// RunStore is the read side of storage.PebbleStore.
type RunStore interface {
	ListRuns(limit int) ([]runner.Run, error)
	GetRun(id string) (runner.Run, bool, error)
	ListEvents(runID string, after uint64) ([]runner.Event, error)
	ListSnapshots(runID string) ([]runner.Snapshot, error)
	GetSnapshot(runID, label, table, scope string) (runner.Snapshot, bool, error)
}

// Server handles REST API and WebSocket connections
type Server struct {
	store   RunStore
	router  *mux.Router
	hub     *Hub
	origins []string
	logger  *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(store RunStore, origins []string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		store:   store,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		origins: origins,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

// Hub is where live run events are published.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/events", s.handleGetEvents).Methods("GET")
	api.HandleFunc("/runs/{id}/snapshots", s.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/runs/{id}/snapshots/{label}/{table}/{scope}", s.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/runs/{id}/book/{pair}", s.handleGetBook).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler is the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if runs == nil {
		runs = []runner.Run{}
	}
	respondJSON(w, RunList{Runs: runs, Count: len(runs)})
}

// run loads the {id} run or writes a 404.
func (s *Server) run(w http.ResponseWriter, r *http.Request) (runner.Run, bool) {
	id := mux.Vars(r)["id"]
	run, ok, err := s.store.GetRun(id)
	if err != nil {
		s.internalError(w, err)
		return run, false
	}
	if !ok {
		respondError(w, http.StatusNotFound, "run not found", id)
		return run, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	events, err := s.store.ListEvents(run.ID, 0)
	if err != nil {
		s.internalError(w, err)
		return
	}
	detail := RunDetail{Run: run, Events: len(events)}
	for _, e := range events {
		detail.LastStage = e.Stage
		if e.Status == runner.StatusFailed && e.Step != "" {
			detail.Failed++
		}
	}
	respondJSON(w, detail)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid after", v)
			return
		}
		after = n
	}
	events, err := s.store.ListEvents(run.ID, after)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if events == nil {
		events = []runner.Event{}
	}
	respondJSON(w, events)
}

func (s *Server) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	snaps, err := s.store.ListSnapshots(run.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	out := make([]SnapshotInfo, len(snaps))
	for i, snap := range snaps {
		out[i] = SnapshotInfo{
			Label: snap.Label,
			Code:  snap.Code,
			Table: snap.Table,
			Scope: snap.Scope,
			Rows:  len(snap.Rows),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	snap, ok, err := s.store.GetSnapshot(run.ID, vars["label"], vars["table"], vars["scope"])
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "snapshot not found", fmt.Sprintf("%s %s/%s", vars["label"], vars["scope"], vars["table"]))
		return
	}
	respondJSON(w, snap)
}

// handleGetBook rebuilds a pair's book from the run's "order" snapshots.
// ?label= picks the snapshot label, "final" by default.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	run, ok := s.run(w, r)
	if !ok {
		return
	}
	pair, err := strconv.ParseUint(mux.Vars(r)["pair"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pair", mux.Vars(r)["pair"])
		return
	}
	label := r.URL.Query().Get("label")
	if label == "" {
		label = "final"
	}

	var sides [2][]dex.Order
	found := false
	for i, side := range []dex.Side{dex.Buy, dex.Sell} {
		scope := strconv.FormatUint(dex.OrderScope(pair, side), 10)
		snap, ok, err := s.store.GetSnapshot(run.ID, label, "order", scope)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if !ok {
			continue
		}
		found = true
		for _, row := range snap.Rows {
			var o dex.Order
			if err := json.Unmarshal(row, &o); err != nil {
				respondError(w, http.StatusUnprocessableEntity, "invalid order row", err.Error())
				return
			}
			sides[i] = append(sides[i], o)
		}
	}
	if !found {
		respondError(w, http.StatusNotFound, "no order snapshots", fmt.Sprintf("pair %d label %s", pair, label))
		return
	}

	b, err := book.Build(sides[0], sides[1])
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid order book", err.Error())
		return
	}
	resp := BookResponse{
		RunID: run.ID,
		Pair:  pair,
		Label: label,
		Bids:  b.Bids,
		Asks:  b.Asks,
	}
	if spread, ok := b.Spread(); ok {
		resp.Spread = spread.String()
	}
	respondJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Errorw("api_store_error", "error", err)
	respondError(w, http.StatusInternalServerError, "store error", err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
