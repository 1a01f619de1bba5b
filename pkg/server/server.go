// Package server exposes the workflow engine over HTTP: workflow CRUD in the
// authoring graph format, execution start and resume (including file uploads
// for paused file steps), tool listing, health and metrics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anuj67851/genai-workflow-maker/pkg/engine"
	"github.com/anuj67851/genai-workflow-maker/pkg/extract"
	"github.com/anuj67851/genai-workflow-maker/pkg/storage"
	"github.com/anuj67851/genai-workflow-maker/pkg/tools"
	"github.com/anuj67851/genai-workflow-maker/pkg/workflow"
)

// Config tunes the HTTP surface.
type Config struct {
	// UploadDir receives files from file_storage resumes.
	UploadDir string

	// MaxUploadBytes bounds a single uploaded file.
	MaxUploadBytes int64
}

func (c *Config) SetDefaults() {
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 25 << 20
	}
}

// Server wires the engine and its stores into an HTTP handler.
type Server struct {
	engine    *engine.Engine
	store     *storage.Store
	tools     *tools.Registry
	extractor *extract.Service
	config    Config
	router    chi.Router
}

// New builds the server and its route table.
func New(eng *engine.Engine, store *storage.Store, registry *tools.Registry, extractor *extract.Service, cfg Config) *Server {
	cfg.SetDefaults()
	s := &Server{
		engine:    eng,
		store:     store,
		tools:     registry,
		extractor: extractor,
		config:    cfg,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/workflows", s.handleListWorkflows)
		r.Post("/workflows", s.handleSaveWorkflow)
		r.Get("/workflows/{id}", s.handleGetWorkflow)
		r.Delete("/workflows/{id}", s.handleDeleteWorkflow)
		r.Post("/workflows/{id}/executions", s.handleStartByID)
		r.Post("/executions", s.handleStart)
		r.Post("/executions/{id}/resume", s.handleResume)
		r.Get("/tools", s.handleListTools)
	})
	return r
}

// requestLogger logs one line per request with method, path, status and
// duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

// ===== Workflows =====

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

type saveWorkflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Owner       string          `json:"owner"`
	Triggers    []string        `json:"triggers"`
	Nodes       json.RawMessage `json:"nodes"`
	Edges       json.RawMessage `json:"edges"`
}

func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var req saveWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	graph, err := json.Marshal(map[string]json.RawMessage{
		"nodes": orEmptyArray(req.Nodes),
		"edges": orEmptyArray(req.Edges),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	wf, err := workflow.FromGraph(req.Name, req.Description, req.Owner, req.Triggers, graph)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.store.SaveWorkflow(r.Context(), wf)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func orEmptyArray(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("[]")
	}
	return raw
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The editor gets the preserved authoring graph back, not the
	// canonical step map.
	var graph workflow.Graph
	if len(wf.RawDefinition) > 0 {
		if decoded, err := workflow.DecodeGraph(wf.RawDefinition); err == nil {
			graph = *decoded
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          wf.ID,
		"name":        wf.Name,
		"description": wf.Description,
		"owner":       wf.Owner,
		"triggers":    wf.Triggers,
		"nodes":       graph.Nodes,
		"edges":       graph.Edges,
	})
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// ===== Executions =====

type startRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	resp, err := s.engine.StartExecution(r.Context(), req.Query, req.Context)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, err.Error())
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	resp, err := s.engine.StartExecutionByID(r.Context(), id, req.Query, req.Context)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type resumeRequest struct {
	Value any `json:"value"`
}

// handleResume accepts either a JSON body with the user's value, or a
// multipart form with uploaded files for paused file steps.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "id")

	var value any
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		step, err := s.engine.PendingStep(r.Context(), executionID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		value, err = s.collectUploads(r, executionID, step)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var req resumeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorStatus(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		value = req.Value
	}

	resp, err := s.engine.ResumeExecution(r.Context(), executionID, value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// collectUploads reads the multipart files and turns them into the resume
// value: extracted text blocks for file_ingestion, stored paths for
// file_storage.
func (s *Server) collectUploads(r *http.Request, executionID string, step *workflow.Step) (any, error) {
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, fmt.Errorf("no files uploaded")
	}
	if step.MaxFiles > 0 && len(files) > step.MaxFiles {
		return nil, fmt.Errorf("at most %d files allowed, got %d", step.MaxFiles, len(files))
	}
	for _, header := range files {
		if err := checkFileType(header.Filename, step.AllowedFileTypes); err != nil {
			return nil, err
		}
	}

	switch step.ActionType {
	case workflow.ActionFileIngestion:
		texts := make([]string, 0, len(files))
		for _, header := range files {
			path, err := s.saveUpload(header, filepath.Join(os.TempDir(), "workflow-ingest", executionID))
			if err != nil {
				return nil, err
			}
			text, err := s.extractor.Extract(r.Context(), path)
			_ = os.Remove(path)
			if err != nil {
				return nil, err
			}
			texts = append(texts, text)
		}
		return texts, nil

	case workflow.ActionFileStorage:
		dir := step.StoragePath
		if dir == "" {
			dir = filepath.Join(s.config.UploadDir, executionID)
		}
		paths := make([]string, 0, len(files))
		for _, header := range files {
			path, err := s.saveUpload(header, dir)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		return paths, nil

	default:
		return nil, fmt.Errorf("execution is not waiting for a file upload")
	}
}

func checkFileType(name string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), ext) {
			return nil
		}
	}
	return fmt.Errorf("file type %q is not allowed (allowed: %s)", ext, strings.Join(allowed, ", "))
}

func (s *Server) saveUpload(header *multipart.FileHeader, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	// Base only: the client-supplied name must not traverse directories.
	path := filepath.Join(dir, filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, s.config.MaxUploadBytes)); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path, nil
}

// ===== Tools, health =====

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tools.Definitions())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ===== Helpers =====

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid workflow id %q", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrWorkflowNotFound),
		errors.Is(err, storage.ErrExecutionNotFound):
		writeErrorStatus(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNoMatchingWorkflow):
		writeErrorStatus(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeErrorStatus(w, http.StatusInternalServerError, err.Error())
	}
}
