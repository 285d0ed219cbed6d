package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"latencyctl/internal/metrics"
	"latencyctl/internal/models"
	"latencyctl/internal/session"
	"latencyctl/internal/storage"
)

const (
	maxBodyBytes          = 8 << 20
	defaultCommandTimeout = 30 * time.Second
)

// Server exposes the session snapshot and the command dispatcher over HTTP.
type Server struct {
	httpServer   *http.Server
	store        *session.Store
	dispatcher   *session.Dispatcher
	pushInterval time.Duration
	logLimit     int

	commandTimeout time.Duration
	closing        chan struct{}
	closeOnce      sync.Once
}

// New creates a configured HTTP server for the controller. Backend commands
// are bounded by commandTimeout rather than by the calling request.
func New(addr string, store *session.Store, dispatcher *session.Dispatcher, pushInterval time.Duration, logLimit int, commandTimeout time.Duration) *Server {
	if pushInterval <= 0 {
		pushInterval = 250 * time.Millisecond
	}
	if logLimit <= 0 {
		logLimit = session.DefaultLogCapacity
	}
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux},
		store:        store,
		dispatcher:   dispatcher,
		pushInterval: pushInterval,
		logLimit:     logLimit,

		commandTimeout: commandTimeout,
		closing:        make(chan struct{}),
	}
	s.httpServer.RegisterOnShutdown(s.closePushes)
	s.registerRoutes(mux)
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down. Open snapshot pushes are
// closed as well, since Shutdown does not track hijacked connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) closePushes() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// commandContext runs a backend command to completion even if its caller
// goes away, bounded by the command timeout.
func (s *Server) commandContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), s.commandTimeout)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/results/{index}", s.handleResult)
	mux.HandleFunc("GET /api/ws", s.handleWS)

	mux.HandleFunc("POST /api/import/{source}", s.handleImport)
	mux.HandleFunc("POST /api/test/start", s.command(s.dispatcher.StartTest))
	mux.HandleFunc("POST /api/test/stop", s.command(s.dispatcher.StopTest))
	mux.HandleFunc("POST /api/targets/clear", s.command(s.dispatcher.ClearAllTargets))
	mux.HandleFunc("POST /api/targets/delete-selected", s.command(s.dispatcher.DeleteSelectedTargets))
	mux.HandleFunc("POST /api/targets/refresh", s.command(s.dispatcher.Refresh))
	mux.HandleFunc("POST /api/selection/{op}", s.handleSelection)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("POST /api/settings/reload", s.command(s.dispatcher.LoadSettings))

	mux.HandleFunc("GET /api/export/{format}", s.handleExport)
	mux.HandleFunc("POST /api/export/{format}/save", s.handleSaveExport)
	mux.HandleFunc("GET /api/proxy-types", s.handleProxyTypes)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, s.logLimit)
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.store.Logs(limit)})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, metrics.ComputeSummary(snap.Targets, snap.Results))
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("index must be an integer"))
		return
	}
	outcome, ok := s.store.Result(index)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("target %d has not been tested", index))
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type importRequest struct {
	Text string   `json:"text"`
	URL  string   `json:"url"`
	URLs []string `json:"urls"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.commandContext(r)
	defer cancel()
	var err error
	switch r.PathValue("source") {
	case "text":
		var req importRequest
		if !readJSON(w, r, &req) {
			return
		}
		err = s.dispatcher.ImportFromText(ctx, req.Text)
	case "subscription":
		var req importRequest
		if !readJSON(w, r, &req) {
			return
		}
		err = s.dispatcher.ImportFromSubscription(ctx, req.URL)
	case "subscriptions":
		var req importRequest
		if !readJSON(w, r, &req) {
			return
		}
		err = s.dispatcher.ImportMultipleSubscriptions(ctx, req.URLs)
	case "file":
		err = s.dispatcher.ImportFromFile(ctx)
	case "files":
		err = s.dispatcher.ImportMultipleFiles(ctx)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown import source %q", r.PathValue("source")))
		return
	}
	s.respond(w, err)
}

// command adapts a context-only dispatcher call into a handler answering
// with the resulting snapshot.
func (s *Server) command(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.commandContext(r)
		defer cancel()
		s.respond(w, fn(ctx))
	}
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("op") {
	case "toggle":
		var req struct {
			Index *int `json:"index"`
		}
		if !readJSON(w, r, &req) {
			return
		}
		if req.Index == nil {
			writeError(w, http.StatusBadRequest, errors.New("index is required"))
			return
		}
		s.store.Toggle(*req.Index)
	case "all":
		s.store.SelectAll()
	case "none":
		s.store.DeselectAll()
	case "failed":
		s.store.SelectFailed()
	case "passed":
		s.store.SelectPassed()
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown selection operation %q", r.PathValue("op")))
		return
	}
	s.respond(w, nil)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	if !readJSON(w, r, &settings) {
		return
	}
	ctx, cancel := s.commandContext(r)
	defer cancel()
	if err := s.dispatcher.UpdateSettings(ctx, settings); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Settings())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := session.ParseExportFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.commandContext(r)
	defer cancel()
	content, err := s.dispatcher.Export(ctx, format, r.URL.Query().Get("types"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"format": string(format), "content": content})
}

func (s *Server) handleSaveExport(w http.ResponseWriter, r *http.Request) {
	format, err := session.ParseExportFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Name  string `json:"name"`
		Types string `json:"types"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	ctx, cancel := s.commandContext(r)
	defer cancel()
	path, err := s.dispatcher.SaveExport(ctx, format, req.Types, req.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) handleProxyTypes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.commandContext(r)
	defer cancel()
	types, err := s.dispatcher.AvailableProxyTypes(ctx)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"types": types})
}

func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

// statusFor maps command failures onto HTTP statuses. Anything unknown came
// from the backend.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrUnknownFormat), errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNothingToExport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func parseLimit(r *http.Request, fallback int) int {
	if fallback <= 0 {
		return fallback
	}
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > fallback {
		return fallback
	}
	return value
}

func readJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
