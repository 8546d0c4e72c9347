package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"folio/api/internal/auth"
	"folio/api/internal/section"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    http.Handler
	log        zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		metrics:    promhttp.Handler(),
		log:        log,
	}
}

// WithMetricsHandler replaces the /metrics handler, e.g. with one bound to a
// private registry.
func (s *HTTPServer) WithMetricsHandler(handler http.Handler) *HTTPServer {
	s.metrics = handler
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Ready(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ready {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	// Preview links: the token is the only credential.
	if strings.HasPrefix(r.URL.Path, "/preview/") {
		token := strings.TrimPrefix(r.URL.Path, "/preview/")
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		payload, err := s.service.RedeemPreview(r.Context(), token)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch parts[1] {
	case "sections":
		s.handleSections(w, r, session, parts[2], parts[3:])
	case "pages":
		s.handlePages(w, r, session, parts[2], parts[3:])
	case "orgs":
		s.handleOrgs(w, r, session, parts[2], parts[3:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSections(w http.ResponseWriter, r *http.Request, session Session, sectionID string, rest []string) {
	action := ""
	if len(rest) == 1 {
		action = rest[0]
	} else if len(rest) > 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		view, err := s.service.GetSection(r.Context(), session, sectionID)
		s.respond(w, r, http.StatusOK, view, err)

	case action == "draft" && r.Method == http.MethodPut:
		var body struct {
			Content section.Content `json:"content"`
			Version int64           `json:"version"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := s.service.SaveDraft(r.Context(), session, sectionID, body.Content, body.Version)
		s.respond(w, r, http.StatusOK, view, err)

	case action == "publish" && r.Method == http.MethodPost:
		version, ok := decodeVersion(w, r)
		if !ok {
			return
		}
		view, err := s.service.PublishSection(r.Context(), session, sectionID, version)
		s.respond(w, r, http.StatusOK, view, err)

	case action == "discard" && r.Method == http.MethodPost:
		version, ok := decodeVersion(w, r)
		if !ok {
			return
		}
		view, err := s.service.DiscardSection(r.Context(), session, sectionID, version)
		s.respond(w, r, http.StatusOK, view, err)

	case action == "" || action == "draft" || action == "publish" || action == "discard":
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePages(w http.ResponseWriter, r *http.Request, session Session, pageID string, rest []string) {
	if len(rest) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case rest[0] == "sections" && r.Method == http.MethodGet:
		view, err := s.service.ListPageSections(r.Context(), session, pageID)
		s.respond(w, r, http.StatusOK, view, err)

	case rest[0] == "publish" && r.Method == http.MethodPost:
		result, err := s.service.PublishPage(r.Context(), session, pageID)
		status := http.StatusOK
		if err == nil && !result.Success {
			status = http.StatusMultiStatus
		}
		s.respond(w, r, status, result, err)

	case rest[0] == "discard" && r.Method == http.MethodPost:
		result, err := s.service.DiscardPage(r.Context(), session, pageID)
		s.respond(w, r, http.StatusOK, result, err)

	case rest[0] == "preview-tokens" && r.Method == http.MethodPost:
		var body struct {
			SectionID string `json:"sectionId"`
			TTLHours  int    `json:"ttlHours"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		token, err := s.service.IssuePreviewToken(r.Context(), session, pageID, body.SectionID, body.TTLHours)
		s.respond(w, r, http.StatusCreated, token, err)

	case rest[0] == "sections" || rest[0] == "publish" || rest[0] == "discard" || rest[0] == "preview-tokens":
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleOrgs(w http.ResponseWriter, r *http.Request, session Session, orgID string, rest []string) {
	if len(rest) != 1 || rest[0] != "search" || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	query := r.URL.Query()
	limit, err := queryInt(query.Get("limit"), 20)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
		return
	}
	offset, err := queryInt(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
		return
	}
	payload, err := s.service.Search(r.Context(), session, orgID, query.Get("q"), query.Get("pageId"), limit, offset)
	s.respond(w, r, http.StatusOK, payload, err)
}

func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", requestID(r.Context())).Str("code", code).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		next.ServeHTTP(writer, r)

		s.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", logPath(r.URL.Path)).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

// logPath keeps preview tokens out of the access log.
func logPath(path string) string {
	if strings.HasPrefix(path, "/preview/") {
		return "/preview/:token"
	}
	return path
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

var errInvalidBody = errors.New("invalid JSON body")

// decodeBody treats an empty body as an empty object and rejects anything
// after the first JSON value.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return errInvalidBody
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return errInvalidBody
	}
	return nil
}

func decodeVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var body struct {
		Version int64 `json:"version"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return 0, false
	}
	if body.Version < 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must not be negative", nil)
		return 0, false
	}
	return body.Version, true
}

func queryInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
