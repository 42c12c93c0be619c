package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lineage-cli/internal/admin"
	"github.com/sells-group/lineage-cli/internal/consensus"
	"github.com/sells-group/lineage-cli/internal/export"
	"github.com/sells-group/lineage-cli/internal/intake"
	"github.com/sells-group/lineage-cli/internal/metrics"
	"github.com/sells-group/lineage-cli/internal/model"
	"github.com/sells-group/lineage-cli/internal/store"
	"github.com/sells-group/lineage-cli/internal/traversal"
)

type tracer interface {
	Run(ctx context.Context, req traversal.Request) (*traversal.Summary, error)
}

type reviewPass interface {
	Run(ctx context.Context, jobID string) (*consensus.Report, error)
	Undo(ctx context.Context, jobID string, asc int, correctionID string) (*model.CorrectionEntry, error)
}

type overrides interface {
	RejectPosition(ctx context.Context, jobID string, asc int, reason string) (*admin.RejectResult, error)
	PromoteCandidate(ctx context.Context, jobID string, asc int, candidateID string) (*model.Ancestor, error)
}

// server exposes the tree operations over HTTP. Traces run in the
// background on base so they outlive the request that started them.
type server struct {
	base      context.Context
	store     store.Store
	tracer    tracer
	consensus reviewPass
	admin     overrides
	depth     int
}

const maxBodyBytes = 1 << 20

func (s *server) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Post("/", s.startTrace)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Post("/consensus", s.runConsensus)
			r.Get("/export", s.exportTree)
			r.Get("/ancestors", s.listAncestors)
			r.Route("/ancestors/{asc}", func(r chi.Router) {
				r.Get("/", s.getAncestor)
				r.Get("/candidates", s.listCandidates)
				r.Post("/reject", s.reject)
				r.Post("/promote", s.promote)
				r.Post("/undo", s.undo)
			})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain sentinels to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, consensus.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, admin.ErrProtected),
		errors.Is(err, admin.ErrCandidateMismatch),
		errors.Is(err, consensus.ErrNotReversible):
		return http.StatusUnprocessableEntity
	case errors.Is(err, consensus.ErrNoReviews):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("http: request failed",
			zap.String("op", op),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

func ascParam(r *http.Request) (int, error) {
	asc, err := strconv.Atoi(chi.URLParam(r, "asc"))
	if err != nil || asc < 1 {
		return 0, fmt.Errorf("invalid position %q", chi.URLParam(r, "asc"))
	}
	return asc, nil
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	f := store.JobFilter{Status: model.JobStatus(r.URL.Query().Get("status"))}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		f.Limit = n
	}
	jobs, err := s.store.ListJobs(r.Context(), f)
	if err != nil {
		s.fail(w, r, "list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// startTrace creates the job up front so the caller gets its id, then runs
// the traversal in the background.
func (s *server) startTrace(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc, err := intake.ParseJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := doc.Request()
	if req.Depth <= 0 {
		req.Depth = s.depth
	}
	if req.JobID == "" {
		job, err := s.store.CreateJob(r.Context(), req.Depth)
		if err != nil {
			s.fail(w, r, "create job", err)
			return
		}
		req.JobID = job.ID
	}

	go func() {
		sum, err := s.tracer.Run(s.base, req)
		if err != nil {
			zap.L().Error("http: trace failed", zap.String("job_id", req.JobID), zap.Error(err))
			return
		}
		zap.L().Info("http: trace complete",
			zap.String("job_id", sum.JobID),
			zap.Int("processed", sum.Processed),
		)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": req.JobID})
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *server) listAncestors(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := s.store.GetJob(r.Context(), jobID); err != nil {
		s.fail(w, r, "get job", err)
		return
	}
	ancestors, err := s.store.ListAncestors(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, "list ancestors", err)
		return
	}
	writeJSON(w, http.StatusOK, ancestors)
}

func (s *server) getAncestor(w http.ResponseWriter, r *http.Request) {
	asc, err := ascParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.store.GetAncestorByPosition(r.Context(), chi.URLParam(r, "jobID"), asc)
	if err != nil {
		s.fail(w, r, "get ancestor", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) listCandidates(w http.ResponseWriter, r *http.Request) {
	asc, err := ascParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cands, err := s.store.ListSearchCandidates(r.Context(), chi.URLParam(r, "jobID"), asc)
	if err != nil {
		s.fail(w, r, "list candidates", err)
		return
	}
	writeJSON(w, http.StatusOK, cands)
}

func (s *server) runConsensus(w http.ResponseWriter, r *http.Request) {
	report, err := s.consensus.Run(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, "consensus", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) reject(w http.ResponseWriter, r *http.Request) {
	asc, err := ascParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Reason == "" {
		body.Reason = "rejected by reviewer"
	}
	res, err := s.admin.RejectPosition(r.Context(), chi.URLParam(r, "jobID"), asc, body.Reason)
	if err != nil {
		s.fail(w, r, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) promote(w http.ResponseWriter, r *http.Request) {
	asc, err := ascParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := decodeBody(r, &body); err != nil || body.CandidateID == "" {
		writeError(w, http.StatusBadRequest, "candidate_id is required")
		return
	}
	a, err := s.admin.PromoteCandidate(r.Context(), chi.URLParam(r, "jobID"), asc, body.CandidateID)
	if err != nil {
		s.fail(w, r, "promote", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) undo(w http.ResponseWriter, r *http.Request) {
	asc, err := ascParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		CorrectionID string `json:"correction_id"`
	}
	if err := decodeBody(r, &body); err != nil || body.CorrectionID == "" {
		writeError(w, http.StatusBadRequest, "correction_id is required")
		return
	}
	entry, err := s.consensus.Undo(r.Context(), chi.URLParam(r, "jobID"), asc, body.CorrectionID)
	if err != nil {
		s.fail(w, r, "undo", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *server) exportTree(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatJSON
	}
	if format != export.FormatJSON && format != export.FormatXLSX {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}
	jobID := chi.URLParam(r, "jobID")
	tree, err := export.Load(r.Context(), s.store, jobID)
	if err != nil {
		s.fail(w, r, "export", err)
		return
	}
	if format == export.FormatXLSX {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "tree-"+jobID+".xlsx"))
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := export.Write(w, format, tree); err != nil {
		zap.L().Error("http: export write failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
