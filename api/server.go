// Package api is the HTTP boundary: stage submission, task status, artifact
// retrieval, semantic search and health. Handlers accept-and-detach: a
// successful submit returns before any analysis runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/bus"
	"github.com/speechcoach/pipeline/stages"
	"github.com/speechcoach/pipeline/task"
	"github.com/speechcoach/pipeline/worker"
)

// EngineProber reports whether the primary analysis engine is reachable.
type EngineProber interface {
	Ready(ctx context.Context) bool
}

type stageEntry struct {
	stage      worker.Stage
	newRequest func() worker.Request
}

// Server routes pipeline requests. Stages are registered by name; a submit
// for an unknown stage is a 404.
type Server struct {
	coordinator *worker.Coordinator
	tasks       task.Registry
	store       artifact.Store
	bus         bus.Bus
	search      *stages.Search
	prober      EngineProber
	stages      map[string]stageEntry
}

func NewServer(coordinator *worker.Coordinator, tasks task.Registry, store artifact.Store, b bus.Bus, search *stages.Search, prober EngineProber) *Server {
	return &Server{
		coordinator: coordinator,
		tasks:       tasks,
		store:       store,
		bus:         b,
		search:      search,
		prober:      prober,
		stages:      map[string]stageEntry{},
	}
}

// Register binds a stage to its request type for POST /process/{stage}.
func (s *Server) Register(stage worker.Stage, newRequest func() worker.Request) {
	s.stages[stage.Name()] = stageEntry{stage: stage, newRequest: newRequest}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /process/{stage}", s.handleProcess)
	mux.HandleFunc("GET /status/{taskID}", s.handleStatus)
	mux.HandleFunc("GET /artifacts/{sessionID}/{stage}", s.handleArtifact)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /search/index/{sessionID}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.stages[r.PathValue("stage")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stage")
		return
	}

	req := entry.newRequest()
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ack, err := s.coordinator.Submit(r.Context(), entry.stage, req)
	if err != nil {
		var verr *worker.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		log.WithError(err).WithField("stage", entry.stage.Name()).Error("submit failed")
		writeError(w, http.StatusInternalServerError, "failed to accept task")
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.tasks.Get(r.Context(), r.PathValue("taskID"))
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		log.WithError(err).Error("task lookup failed")
		writeError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	key, ok := artifact.ParseKey(r.PathValue("stage"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stage")
		return
	}
	payload, _ := artifact.NewPayload(key)

	err := s.store.Get(r.Context(), r.PathValue("sessionID"), key, payload)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		log.WithError(err).Error("artifact lookup failed")
		writeError(w, http.StatusInternalServerError, "artifact lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	matches, err := s.search.Query(r.Context(), query, limit)
	if err != nil {
		log.WithError(err).Error("search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "matches": matches})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if err := s.search.Index(r.Context(), sessionID); err != nil {
		var missing *artifact.MissingDependencyError
		if errors.As(err, &missing) {
			writeError(w, http.StatusConflict, missing.Error())
			return
		}
		log.WithError(err).WithField("session_id", sessionID).Error("index failed")
		writeError(w, http.StatusInternalServerError, "index failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "status": "indexed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := s.store.Ping(r.Context()) == nil
	busOK := s.bus.Connected()
	engineOK := s.prober == nil || s.prober.Ready(r.Context())

	status := "ok"
	code := http.StatusOK
	if !storeOK || !busOK || !engineOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":          status,
		"store_reachable": storeOK,
		"bus_connected":   busOK,
		"engine_ready":    engineOK,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("response encode failed")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
