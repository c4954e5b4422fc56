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
	"time"

	"quill/internal/api"
	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/pipeline"
	"quill/internal/ranking"
	"quill/internal/store"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/process/start", srv.handleProcessStart)
	mux.HandleFunc("/api/process/", srv.handleProcessGet)
	mux.HandleFunc("/api/content", srv.handleContentList)
	mux.HandleFunc("/api/content/", srv.handleContentItem)
	mux.HandleFunc("/api/version/", srv.handleVersion)
	mux.HandleFunc("/api/search", srv.handleSearch)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:         status.Running,
		PID:             status.PID,
		DatabasePath:    status.DatabasePath,
		LockFilePath:    status.LockFilePath,
		ContentItems:    status.ContentItems,
		ActiveProcesses: status.ActiveProcesses,
		Processor:       status.Processor,
	})
}

func (s *apiServer) handleProcessStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.StartProcessRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	locator := strings.TrimSpace(req.StartLocator)
	if locator == "" {
		locator = s.daemon.cfg.Harvester.StartLocator
	}
	if locator == "" {
		s.writeError(w, http.StatusBadRequest, "start_locator required")
		return
	}

	processID, err := s.daemon.orchestrator.Start(locator)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.StartProcessResponse{
		ProcessID: processID,
		Status:    "started",
	})
}

func (s *apiServer) handleProcessGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	processID := strings.TrimPrefix(r.URL.Path, "/api/process/")
	if processID == "" || strings.Contains(processID, "/") {
		s.writeError(w, http.StatusNotFound, "process not found")
		return
	}
	record, err := s.daemon.registry.Get(r.Context(), processID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "process not found")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *apiServer) handleContentList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, err := s.daemon.store.ListSources(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.daemon.store.CountSources(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]api.ContentSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, api.FromContent(item))
	}
	s.writeJSON(w, http.StatusOK, api.ContentListResponse{Items: summaries, Total: total})
}

// handleContentItem serves:
//
//	GET  /api/content/{id}            content detail, ?versionType= selects a stage
//	GET  /api/content/{id}/versions   version history, ?stage= filters
//	POST /api/content/{id}/refine     feedback-driven revision
func (s *apiServer) handleContentItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/content/")
	contentID, action, _ := strings.Cut(rest, "/")
	if contentID == "" {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.serveContentDetail(w, r, contentID)
	case action == "versions" && r.Method == http.MethodGet:
		s.serveContentVersions(w, r, contentID)
	case action == "refine" && r.Method == http.MethodPost:
		s.serveRefine(w, r, contentID)
	case action == "" || action == "versions" || action == "refine":
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "content not found")
	}
}

func (s *apiServer) serveContentDetail(w http.ResponseWriter, r *http.Request, contentID string) {
	ctx := r.Context()
	item, err := s.daemon.store.GetContent(ctx, contentID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}

	detail := api.ContentDetail{
		ContentSummary: api.FromContent(item),
		Body:           item.Body,
	}
	if count, err := s.daemon.store.CountVersions(ctx, contentID); err == nil {
		detail.Versions = count
	}

	if stageParam := strings.TrimSpace(r.URL.Query().Get("versionType")); stageParam != "" {
		stage, ok := store.ParseStage(stageParam)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown version type %q", stageParam))
			return
		}
		version, err := s.daemon.store.GetLatestVersion(ctx, contentID, stage)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if version == nil {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("no %s version for content", stage))
			return
		}
		detail.Stage = string(stage)
		detail.Version = api.FromVersion(version)
		detail.Body = version.Body
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) serveContentVersions(w http.ResponseWriter, r *http.Request, contentID string) {
	ctx := r.Context()
	item, err := s.daemon.store.GetContent(ctx, contentID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}

	var stage store.Stage
	if stageParam := strings.TrimSpace(r.URL.Query().Get("stage")); stageParam != "" {
		parsed, ok := store.ParseStage(stageParam)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", stageParam))
			return
		}
		stage = parsed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	versions, err := s.daemon.store.ListVersions(ctx, contentID, stage, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payloads := make([]api.VersionPayload, 0, len(versions))
	for _, version := range versions {
		payloads = append(payloads, *api.FromVersion(version))
	}
	s.writeJSON(w, http.StatusOK, api.VersionListResponse{Versions: payloads})
}

func (s *apiServer) serveRefine(w http.ResponseWriter, r *http.Request, contentID string) {
	var req api.RefineRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		s.writeError(w, http.StatusBadRequest, "feedback required")
		return
	}

	version, err := s.daemon.orchestrator.Refine(r.Context(), contentID, req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownContent):
			s.writeError(w, http.StatusNotFound, "content not found")
		case errors.Is(err, pipeline.ErrNoBaseVersion):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromVersion(version))
}

func (s *apiServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	versionID := strings.TrimPrefix(r.URL.Path, "/api/version/")
	if versionID == "" || strings.Contains(versionID, "/") {
		s.writeError(w, http.StatusNotFound, "version not found")
		return
	}
	version, err := s.daemon.store.GetVersion(r.Context(), versionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if version == nil {
		s.writeError(w, http.StatusNotFound, "version not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromVersion(version))
}

// handleSearch ranks stored content against the query. Each item contributes
// its best available text (latest edited version, falling back to the raw
// source); the ranking engine scores and orders the hits.
func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	ctx := r.Context()
	items, err := s.daemon.store.ListSources(ctx, 0, 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type hit struct {
		item  *store.ContentItem
		stage store.Stage
		body  string
	}
	hits := map[string]hit{}
	candidates := make([]ranking.Candidate, 0, len(items))
	for _, item := range items {
		body := item.Body
		stage := store.Stage("")
		if version, err := s.daemon.store.GetLatestVersion(ctx, item.ID, store.StageEdited); err == nil && version != nil {
			body = version.Body
			stage = version.Stage
		}
		hits[item.ID] = hit{item: item, stage: stage, body: body}
		candidates = append(candidates, ranking.Candidate{ID: item.ID, Content: body})
	}

	results := []api.SearchResult{}
	if s.daemon.ranker != nil && len(candidates) > 0 {
		scored := s.daemon.ranker.RankCandidates(query, candidates, nil, nil)
		for _, sc := range scored {
			if len(results) >= limit {
				break
			}
			if sc.Reward <= 0 {
				continue
			}
			h := hits[sc.ID]
			results = append(results, api.SearchResult{
				ContentID: sc.ID,
				Title:     h.item.Title,
				Stage:     string(h.stage),
				Score:     sc.Value,
				Excerpt:   excerpt(h.body, 200),
			})
		}
	}
	s.writeJSON(w, http.StatusOK, api.SearchResponse{Query: query, Results: results})
}

func excerpt(body string, limit int) string {
	condensed := strings.Join(strings.Fields(body), " ")
	runes := []rune(condensed)
	if len(runes) <= limit {
		return condensed
	}
	return string(runes[:limit]) + "..."
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := decoder.Decode(target); err != nil {
		// An absent body is allowed; fields keep their zero values.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.WithComponent(s.logger, "api-server")
	}
	return logging.NewNop()
}
