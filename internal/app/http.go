package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"epicollect/api/internal/auth"
	"epicollect/api/internal/entry"
	"epicollect/api/internal/logging"
	"epicollect/api/internal/util"
)

const maxUploadBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	secret     []byte
	corsOrigin string
	log        logging.Logger
}

func NewHTTPServer(service *Service, secret []byte, corsOrigin string, log logging.Logger) *HTTPServer {
	if log == nil {
		log = logging.Discard()
	}
	return &HTTPServer{service: service, secret: secret, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, apiError{Code: codeRouteMissing, Title: "Route not found.", Source: r.URL.Path})
		return
	}

	switch {
	case r.Method == http.MethodPost && len(parts) == 3 && parts[1] == "upload":
		s.handleUpload(w, r, parts[2], false)
	case r.Method == http.MethodPost && len(parts) == 3 && parts[1] == "web-upload":
		s.handleUpload(w, r, parts[2], true)
	case r.Method == http.MethodGet && len(parts) == 4 && parts[1] == "entries" && parts[3] == "search":
		s.handleSearch(w, r, parts[2])
	case r.Method == http.MethodGet && len(parts) == 4 && parts[1] == "entries":
		s.handleEntry(w, r, parts[2], parts[3])
	default:
		writeError(w, http.StatusNotFound, apiError{Code: codeRouteMissing, Title: "Route not found.", Source: r.URL.Path})
	}
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, slug string, web bool) {
	userID, err := s.userID(r, web)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	defer r.Body.Close()
	payload, err := entry.DecodePayload(r.Body)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.service.Upload(r.Context(), slug, userID, web, payload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"code": res.Code, "title": res.Title},
	})
}

func (s *HTTPServer) handleEntry(w http.ResponseWriter, r *http.Request, slug, uuid string) {
	userID, err := s.userID(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	branch := r.URL.Query().Get("type") == string(entry.TypeBranchEntry)
	doc, err := s.service.Entry(r.Context(), slug, userID, uuid, branch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": doc})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, slug string) {
	userID, err := s.userID(r, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	resp, err := s.service.Search(r.Context(), slug, userID, r.URL.Query().Get("q"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// userID reads the optional bearer token. A token that is present but
// invalid is always refused.
func (s *HTTPServer) userID(r *http.Request, required bool) (int64, error) {
	token := bearerToken(r)
	if token == "" {
		if required {
			return 0, unauthenticated()
		}
		return 0, nil
	}
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, body)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info(ctx, "request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request by the middleware.
func RequestID(ctx context.Context) string {
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

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/vnd.api+json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, map[string]any{"errors": []apiError{e}})
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
