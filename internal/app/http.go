package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"inkwell/api/internal/ai"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/search"
	"inkwell/api/internal/security"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const CSRFHeader = "X-CSRF-Token"

type HTTPServer struct {
	service *Service
	cors    *cors.Cors
	log     logrus.FieldLogger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service: service,
		cors: cors.New(cors.Options{
			AllowedOrigins: strings.Split(corsOrigin, ","),
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut,
				http.MethodPatch, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID", CSRFHeader, security.SessionIDHeader},
			ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
			MaxAge:         600,
		}),
		log: service.log,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.cors.Handler(s.withMiddleware(s.withSecurity(http.HandlerFunc(s.handle))))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
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

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleAuthLogin(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// Public share links: no session required
	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "shared" {
		payload, err := s.service.SharedDocument(r.Context(), parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	sc, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		if err := s.service.Logout(r.Context(), sc); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		roles := sc.Roles.ToSlice()
		permissions := sc.Permissions.ToSlice()
		sort.Strings(roles)
		sort.Strings(permissions)
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"sessionId":     sc.SessionID,
			"userId":        sc.UserID,
			"roles":         roles,
			"permissions":   permissions,
			"lastActivity":  sc.LastActivity,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/csrf" {
		token, err := s.service.Security().GenerateCSRFToken(r.Context(), sc.SessionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"csrfToken": token})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		if !s.permit(w, sc, rbac.PermDocumentsRead) {
			return
		}
		query := search.Query{
			Text:   strings.TrimSpace(r.URL.Query().Get("q")),
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
		}
		var err error
		if query.Limit, err = intParam(r, "limit", 20); err != nil {
			writeMappedError(w, err)
			return
		}
		if query.Offset, err = intParam(r, "offset", 0); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), sc, query))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/ai/transform" {
		s.handleAITransform(w, r, sc)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications" {
		limit, err := intParam(r, "limit", 50)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		items, err := s.service.Notifications(r.Context(), sc, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list notifications", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
		return
	}

	if r.Method == http.MethodPost && len(parts) == 4 && parts[0] == "api" && parts[1] == "notifications" && parts[3] == "read" {
		if err := s.service.MarkNotificationRead(r.Context(), sc, parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.URL.Path == "/api/documents" {
		s.handleDocumentCollection(w, r, sc)
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocument(w, r, sc, parts[2], parts[3:])
		return
	}

	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "admin" {
		if s.routeAdmin(w, r, sc, parts[2:]) {
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// requireSession returns the authenticated security context of r.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (*security.Context, bool) {
	sc := securityContext(r.Context())
	if sc == nil || !sc.IsAuthenticated {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return nil, false
	}
	return sc, true
}

func (s *HTTPServer) permit(w http.ResponseWriter, sc *security.Context, permission string) bool {
	if sc.HasPermission(permission) {
		return true
	}
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	return false
}

// withSecurity runs the rule engine on every request and enforces the CSRF
// token on mutating requests of authenticated sessions.
func (s *HTTPServer) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := s.service.Security().ProcessRequest(r.Context(), security.RequestFromHTTP(r))
		if !decision.Allowed {
			code := "FORBIDDEN"
			if decision.StatusCode == http.StatusUnauthorized {
				code = "UNAUTHORIZED"
			}
			writeError(w, decision.StatusCode, code, decision.Reason, nil)
			return
		}

		sc := decision.Context
		if sc.IsAuthenticated && isMutating(r.Method) && !csrfExempt(r.URL.Path) {
			if !s.service.Security().ValidateCSRFToken(r.Context(), sc.SessionID, r.Header.Get(CSRFHeader)) {
				writeError(w, http.StatusForbidden, "CSRF_INVALID", "Invalid CSRF token", nil)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), securityContextKey{}, sc)))
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		security.ApplySecurityHeaders(writer.Header())
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
			"ip":          security.ClientIP(r),
		}).Info("request")
	})
}

type requestIDKey struct{}

type securityContextKey struct{}

func securityContext(ctx context.Context) *security.Context {
	sc, _ := ctx.Value(securityContextKey{}).(*security.Context)
	return sc
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func csrfExempt(path string) bool {
	return path == "/api/auth/login" || path == "/api/auth/signup"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
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

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be an integer", nil)
	}
	return parsed, nil
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"userId":      user.ID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"role":        user.Role,
	})
}

func (s *HTTPServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	creds := security.Credentials{
		Email:     body.Email,
		Password:  body.Password,
		IP:        security.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	if sc := securityContext(r.Context()); sc != nil {
		creds.RateCounted = sc.RateCounted()
	}
	result, err := s.service.Login(r.Context(), creds)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAITransform(w http.ResponseWriter, r *http.Request, sc *security.Context) {
	if !s.permit(w, sc, rbac.PermAIUse) {
		return
	}
	var body struct {
		ai.Request
		DocumentID      string `json:"documentId"`
		ApplyToDocument bool   `json:"applyToDocument"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	applyTo := ""
	if body.ApplyToDocument {
		if strings.TrimSpace(body.DocumentID) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "documentId is required to apply the result", nil)
			return
		}
		applyTo = body.DocumentID
	}

	result, err := s.service.Transform(r.Context(), sc, body.Request, applyTo)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
