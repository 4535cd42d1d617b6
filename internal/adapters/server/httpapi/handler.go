// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/strand/internal/app"
	"github.com/hylla/strand/internal/broadcast"
	"github.com/hylla/strand/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// defaultKeepAlive paces SSE keep-alive comments when no interval is configured.
const defaultKeepAlive = 30 * time.Second

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	svc       *app.Service
	changes   *broadcast.Broadcaster
	keepAlive time.Duration
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. The broadcaster may be nil, in
// which case the events endpoint reports unavailable.
func NewHandler(svc *app.Service, changes *broadcast.Broadcaster, keepAlive time.Duration) *Handler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &Handler{
		svc:       svc,
		changes:   changes,
		keepAlive: keepAlive,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	switch {
	case path == "streams":
		switch r.Method {
		case http.MethodGet:
			h.handleListStreams(w, r)
		case http.MethodPost:
			h.handleCreateStream(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case path == "commits":
		switch r.Method {
		case http.MethodGet:
			h.handleRecentCommits(w, r)
		case http.MethodPost:
			h.handleRecordCommit(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case path == "stats":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleQuickStats(w, r)
	case path == "events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleEvents(w, r)
	default:
		streamID, action, ok := resolveStreamRoute(path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
		h.serveStreamRoute(w, r, streamID, action)
	}
}

// serveStreamRoute dispatches `/streams/{id}` and its subresources.
func (h *Handler) serveStreamRoute(w http.ResponseWriter, r *http.Request, streamID, action string) {
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.handleGetStream(w, r, streamID)
		case http.MethodPatch:
			h.handleUpdateStream(w, r, streamID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
	case "complete":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCompleteStream(w, r, streamID)
	case "archive":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleArchiveStream(w, r, streamID)
	case "history":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleStreamHistory(w, r, streamID)
	case "commits":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleStreamCommits(w, r, streamID)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListStreams serves GET `/streams`.
func (h *Handler) handleListStreams(w http.ResponseWriter, r *http.Request) {
	filter := app.StreamFilter{
		Status:   domain.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		Category: domain.Category(strings.TrimSpace(r.URL.Query().Get("category"))),
	}
	streams, err := h.svc.ListStreams(r.Context(), filter)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	out := make([]streamJSON, 0, len(streams))
	for _, s := range streams {
		out = append(out, toStreamJSON(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": out})
}

// handleCreateStream serves POST `/streams`.
func (h *Handler) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	stream, err := h.svc.CreateStream(r.Context(), app.CreateStreamInput{
		StreamNumber: req.StreamNumber,
		Title:        req.Title,
		Category:     domain.Category(req.Category),
		Priority:     domain.Priority(req.Priority),
		WorktreePath: req.WorktreePath,
		Branch:       req.Branch,
		Phases:       req.Phases,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStreamJSON(stream))
}

// handleGetStream serves GET `/streams/{id}`.
func (h *Handler) handleGetStream(w http.ResponseWriter, r *http.Request, streamID string) {
	stream, ok, err := h.svc.GetStream(r.Context(), streamID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: fmt.Sprintf("stream %s not found", streamID),
		})
		return
	}
	writeJSON(w, http.StatusOK, toStreamJSON(stream))
}

// handleUpdateStream serves PATCH `/streams/{id}`.
func (h *Handler) handleUpdateStream(w http.ResponseWriter, r *http.Request, streamID string) {
	var req updateStreamRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	patch := domain.StreamPatch{
		Progress:     req.Progress,
		CurrentPhase: req.CurrentPhase,
		BlockedBy:    req.BlockedBy,
	}
	if req.Status != nil {
		status := domain.Status(*req.Status)
		patch.Status = &status
	}
	stream, err := h.svc.UpdateStream(r.Context(), streamID, patch)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreamJSON(stream))
}

// handleCompleteStream serves POST `/streams/{id}/complete`.
func (h *Handler) handleCompleteStream(w http.ResponseWriter, r *http.Request, streamID string) {
	var req completeStreamRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	stream, err := h.svc.CompleteStream(r.Context(), streamID, strings.TrimSpace(req.Summary))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreamJSON(stream))
}

// handleArchiveStream serves POST `/streams/{id}/archive`.
func (h *Handler) handleArchiveStream(w http.ResponseWriter, r *http.Request, streamID string) {
	stream, err := h.svc.ArchiveStream(r.Context(), streamID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStreamJSON(stream))
}

// handleStreamHistory serves GET `/streams/{id}/history`.
func (h *Handler) handleStreamHistory(w http.ResponseWriter, r *http.Request, streamID string) {
	events, err := h.svc.ListHistory(r.Context(), streamID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	out := make([]historyEventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, toHistoryEventJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// handleStreamCommits serves GET `/streams/{id}/commits`.
func (h *Handler) handleStreamCommits(w http.ResponseWriter, r *http.Request, streamID string) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	commits, err := h.svc.CommitsByStream(r.Context(), streamID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	total, err := h.svc.CountCommitsByStream(r.Context(), streamID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commits": toCommitJSONs(commits),
		"total":   total,
	})
}

// handleRecentCommits serves GET `/commits`.
func (h *Handler) handleRecentCommits(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	commits, err := h.svc.RecentCommits(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	total, err := h.svc.CountCommits(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commits": toCommitJSONs(commits),
		"total":   total,
	})
}

// handleRecordCommit serves POST `/commits`.
func (h *Handler) handleRecordCommit(w http.ResponseWriter, r *http.Request) {
	var req recordCommitRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	commit, err := h.svc.RecordCommit(r.Context(), domain.CommitInput{
		StreamID:     req.StreamID,
		CommitHash:   req.CommitHash,
		Message:      req.Message,
		Author:       req.Author,
		FilesChanged: req.FilesChanged,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommitJSON(commit))
}

// handleQuickStats serves GET `/stats`.
func (h *Handler) handleQuickStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.QuickStats(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsJSON{
		ActiveStreams:  stats.ActiveStreams,
		InProgress:     stats.InProgress,
		Blocked:        stats.Blocked,
		ReadyToStart:   stats.ReadyToStart,
		CompletedToday: stats.CompletedToday,
		TotalCommits:   stats.TotalCommits,
		CommitsToday:   stats.CommitsToday,
	})
}

// handleEvents serves GET `/events` as a Server-Sent Events stream. Each
// published change becomes one `change` event; idle connections receive a
// comment line on the keep-alive interval.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.changes == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "change events are not configured",
		})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "streaming_unsupported",
			Message: "response writer does not support streaming",
		})
		return
	}

	sub := h.changes.Subscribe()
	defer h.changes.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "connected", broadcast.Change{Category: "connected", Time: time.Now().UTC()}); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case change, open := <-sub.Changes():
			if !open {
				return
			}
			if err := writeSSE(w, "change", change); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one named SSE event with a JSON data payload.
func writeSSE(w io.Writer, event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

// resolveStreamRoute parses `streams/{id}` or `streams/{id}/{action}`.
func resolveStreamRoute(path string) (id, action string, ok bool) {
	const prefix = "streams/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	id = strings.TrimSpace(parts[0])
	if id == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		action = parts[1]
		if action == "" || strings.Contains(action, "/") {
			return "", "", false
		}
	}
	return id, action, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// parseLimit reads an optional positive `limit` query parameter.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation)
	}
	return limit, nil
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, domain.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(domain.ErrValidation, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", domain.ErrValidation)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(domain.ErrValidation, err))
}
