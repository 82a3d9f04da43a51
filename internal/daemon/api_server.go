package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"lectern/internal/api"
	"lectern/internal/config"
	"lectern/internal/events"
	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/storage"
)

const (
	defaultEventLimit = 200
	sseKeepAlive      = 20 * time.Second
)

type apiServer struct {
	bind    string
	token   string
	maxBody int64
	logger  *slog.Logger
	daemon  *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}
	return &apiServer{
		bind:    bind,
		token:   cfg.Paths.APIToken,
		maxBody: cfg.Audio.MaxFileBytes,
		logger:  logging.NewComponentLogger(logger, "api-server"),
		daemon:  d,
	}, nil
}

func (s *apiServer) handler() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/status", s.handleStatus)
	protected.HandleFunc("GET /api/jobs", s.handleJobs)
	protected.HandleFunc("POST /api/jobs", s.handleCreateJob)
	protected.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	protected.HandleFunc("POST /api/jobs/{id}/retry", s.handleRetry)
	protected.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancel)
	protected.HandleFunc("POST /api/audiobooks", s.handleUpload)
	protected.HandleFunc("GET /api/audiobooks/{id}", s.handleAudiobook)
	protected.HandleFunc("GET /api/events", s.handleEvents)

	mux := http.NewServeMux()
	mux.Handle("/api/", authMiddleware(s.token, protected))
	mux.HandleFunc("GET /files/{bucket}/{key...}", s.handleFile)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	server := &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Minute,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_server_failed"),
				logging.String(logging.FieldErrorHint, "check api_bind in config"),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warn("api server shutdown failed", logging.Error(err))
		_ = server.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toDaemonStatus(s.daemon.Status(r.Context())))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := api.JobQuery{Statuses: query["status"]}
	var err error
	if q.AudiobookID, err = optionalInt64(query.Get("audiobook")); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid audiobook id")
		return
	}
	if q.Limit, err = optionalInt(query.Get("limit")); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if q.Offset, err = optionalInt(query.Get("offset")); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	resp, err := s.daemon.jobs.List(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	s.withJobID(w, r, s.daemon.jobs.Describe)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.withJobID(w, r, s.daemon.jobs.Retry)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.withJobID(w, r, s.daemon.jobs.Cancel)
}

func (s *apiServer) withJobID(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*api.Job, error)) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := fn(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *job})
}

func (s *apiServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.daemon.jobs.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: *job})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := api.IngestRequest{
		Title:    query.Get("title"),
		Author:   query.Get("author"),
		FileName: query.Get("fileName"),
	}
	body := r.Body
	if s.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	result, err := s.daemon.jobs.Ingest(r.Context(), req, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *apiServer) handleAudiobook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid audiobook id")
		return
	}
	detail, err := s.daemon.jobs.Audiobook(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, err := optionalInt64(query.Get("since"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	if query.Get("stream") == "1" || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamEvents(w, r, since)
		return
	}
	limit, err := optionalInt(query.Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	history := s.daemon.bus.Since(since)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	s.writeJSON(w, http.StatusOK, eventsResponse{Events: history, Next: s.daemon.bus.LastSeq()})
}

type eventsResponse struct {
	Events []events.Event `json:"events"`
	Next   int64          `json:"next"`
}

// streamEvents replays history after since, then follows the bus until the
// client goes away. Events dropped by a slow listener are not resent.
func (s *apiServer) streamEvents(w http.ResponseWriter, r *http.Request, since int64) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	live, stop := s.daemon.bus.Listen(64)
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	last := since
	for _, event := range s.daemon.bus.Since(since) {
		if err := writeSSE(w, event); err != nil {
			return
		}
		last = event.Seq
	}
	if err := rc.Flush(); err != nil {
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case event, ok := <-live:
			if !ok {
				return
			}
			if event.Seq <= last {
				continue
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			last = event.Seq
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSSE(w io.Writer, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Name, data)
	return err
}

func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	if err := s.daemon.signer.Verify(bucket, key, r.URL.Query()); err != nil {
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}
	reader, info, err := s.daemon.objects.Open(r.Context(), bucket, key)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Cache-Control", "private, max-age=0")
	if seeker, ok := reader.(io.ReadSeeker); ok {
		http.ServeContent(w, r, key, info.ModTime, seeker)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn("object download interrupted", logging.String("key", key), logging.Error(err))
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	details := services.Details(err)
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldEventType, "api_request_failed"),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: string(details.Kind)})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrReadOnly):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func optionalInt64(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func toDaemonStatus(st Status) api.DaemonStatus {
	return api.DaemonStatus{
		Running:      st.Running,
		PID:          st.PID,
		DatabasePath: st.DatabasePath,
		LockFilePath: st.LockFilePath,
		Workflow:     api.FromStatusSummary(st.Workflow),
		Health:       api.FromHealth(st.Health),
	}
}
