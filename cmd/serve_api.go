package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/parity-labs/parity-cli/internal/model"
	"github.com/parity-labs/parity-cli/internal/monitoring"
	"github.com/parity-labs/parity-cli/internal/store"
)

// apiServer exposes validation runs over HTTP. Validation itself is
// asynchronous: POST /api/validate queues a run and returns its id; callers
// poll GET /api/runs/{id} for the matrix.
type apiServer struct {
	env *engineEnv

	// inflight tracks async validation goroutines so shutdown can wait for
	// runs to reach a terminal state before closing the store.
	inflight sync.WaitGroup
}

func newAPIServer(env *engineEnv) *apiServer {
	return &apiServer{env: env}
}

func (s *apiServer) wait() {
	s.inflight.Wait()
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/validate", s.handleValidate)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type validateRequest struct {
	Pairs []model.PairKey `json:"pairs"`
}

func (s *apiServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Pairs) == 0 {
		writeError(w, http.StatusBadRequest, "pairs is required")
		return
	}
	for _, key := range req.Pairs {
		if key.ProducerID == "" || key.ParserID == "" {
			writeError(w, http.StatusBadRequest, "every pair needs producer_id and parser_id")
			return
		}
	}

	run, err := s.env.Store.CreateRun(r.Context(), req.Pairs)
	if err != nil {
		zap.L().Error("api: create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	// The run outlives the request; detach from the request context.
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.executeRun(context.WithoutCancel(r.Context()), run)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"status": run.Status,
		"pairs":  len(run.Pairs),
	})
}

func (s *apiServer) executeRun(ctx context.Context, run *model.Run) {
	log := zap.L().With(zap.String("run_id", run.ID))

	if err := s.env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		log.Error("api: mark run running failed", zap.Error(err))
		return
	}

	matrix, err := s.env.Engine.ValidateMatrix(ctx, run.Pairs)
	if err != nil {
		log.Error("api: validation failed", zap.Error(err))
		if uErr := s.env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed); uErr != nil {
			log.Error("api: mark run failed failed", zap.Error(uErr))
		}
		return
	}

	if err := s.env.Store.SaveMatrix(ctx, run.ID, matrix); err != nil {
		log.Error("api: save matrix failed", zap.Error(err))
		return
	}
	log.Info("api: run complete",
		zap.Int("pairs", matrix.Stats.Pairs),
		zap.Float64("mean_score", matrix.Stats.MeanScore),
	)
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.env.Store.ListRuns(r.Context(), store.RunFilter{
		Status:     model.RunStatus(q.Get("status")),
		ProducerID: q.Get("producer"),
		Limit:      limit,
	})
	if err != nil {
		zap.L().Error("api: list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	lookback := cfg.Monitoring.LookbackWindowHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
		lookback = n
	}

	snap, err := monitoring.NewCollector(s.env.Store).Collect(r.Context(), lookback)
	if err != nil {
		zap.L().Error("api: collect metrics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
