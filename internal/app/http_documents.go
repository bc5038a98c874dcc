package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"inkwell/api/internal/autosave"
	"inkwell/api/internal/docstate"
	"inkwell/api/internal/export"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/security"
	"inkwell/api/internal/store"
	"inkwell/api/internal/workspace"
)

func (s *HTTPServer) handleDocumentCollection(w http.ResponseWriter, r *http.Request, sc *security.Context) {
	ws := s.service.Workspace(r.Context(), sc)
	switch r.Method {
	case http.MethodGet:
		if !s.permit(w, sc, rbac.PermDocumentsRead) {
			return
		}
		items, err := ws.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list documents", nil)
			return
		}
		if items == nil {
			items = []store.Document{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": items})
	case http.MethodPost:
		if !s.permit(w, sc, rbac.PermDocumentsWrite) {
			return
		}
		view, err := ws.Create(r.Context())
		if errors.Is(err, workspace.ErrUnsavedChanges) {
			writeMappedError(w, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "CREATE_FAILED", "Could not create document", nil)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// handleDocument serves /api/documents/{id}/... Every route opens the document
// in the session workspace when it is not already open.
func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, sc *security.Context, documentID string, rest []string) {
	ws := s.service.Workspace(r.Context(), sc)
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			if !s.permit(w, sc, rbac.PermDocumentsRead) {
				return
			}
			view, err := ws.View(ctx, documentID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodPatch:
			if !s.permit(w, sc, rbac.PermDocumentsWrite) {
				return
			}
			var patch store.DocumentPatch
			if err := decodeBody(r, &patch); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if patch.Status != nil && !validStatus(*patch.Status) {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be draft, published or archived", nil)
				return
			}
			// Counts are derived on save.
			patch.WordCount, patch.CharacterCount = nil, nil
			view, err := ws.Update(ctx, documentID, patch)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodDelete:
			if !s.permit(w, sc, rbac.PermDocumentsDelete) {
				return
			}
			if err := ws.Delete(ctx, documentID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "save":
		if !s.permit(w, sc, rbac.PermDocumentsWrite) {
			return
		}
		view, err := ws.Save(ctx, documentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, workspace.ErrUnsavedChanges) {
				writeMappedError(w, err)
				return
			}
			writeError(w, http.StatusInternalServerError, "SAVE_FAILED", autosave.FailedMessage, map[string]any{
				"event":      docstate.EventName(docstate.SaveError{}),
				"documentId": documentID,
				"message":    err.Error(),
				"saveStatus": view.SaveStatus,
			})
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodPut && len(rest) == 1 && rest[0] == "content":
		if !s.permit(w, sc, rbac.PermDocumentsWrite) {
			return
		}
		var change workspace.ContentChange
		if err := decodeBody(r, &change); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := ws.Change(ctx, documentID, change)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "format":
		if !s.permit(w, sc, rbac.PermDocumentsWrite) {
			return
		}
		var change workspace.FormatChange
		if err := decodeBody(r, &change); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		view, err := ws.Format(ctx, documentID, change)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "autosave":
		if !s.permit(w, sc, rbac.PermDocumentsRead) {
			return
		}
		status, err := ws.AutosaveStatus(ctx, documentID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "save-now":
		if !s.permit(w, sc, rbac.PermDocumentsWrite) {
			return
		}
		status, err := ws.SaveNow(ctx, documentID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "exit":
		var body struct {
			Hidden bool `json:"hidden"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		warn, err := ws.Exit(ctx, documentID, body.Hidden)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		payload := map[string]any{"warn": warn}
		if warn {
			payload["message"] = "You have unsaved changes. Are you sure you want to leave?"
		}
		writeJSON(w, http.StatusOK, payload)

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "versions":
		if !s.permit(w, sc, rbac.PermDocumentsRead) {
			return
		}
		items, err := ws.Versions(ctx, documentID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": items})

	case r.Method == http.MethodGet && len(rest) == 2 && rest[0] == "versions":
		if !s.permit(w, sc, rbac.PermDocumentsRead) {
			return
		}
		number, ok := versionNumber(w, rest[1])
		if !ok {
			return
		}
		version, err := ws.Preview(ctx, documentID, number)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, version)

	case r.Method == http.MethodPost && len(rest) == 3 && rest[0] == "versions" && rest[2] == "restore":
		if !s.permit(w, sc, rbac.PermVersionsRestore) {
			return
		}
		number, ok := versionNumber(w, rest[1])
		if !ok {
			return
		}
		result, err := ws.Restore(ctx, documentID, number)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodPost && len(rest) == 2 && rest[0] == "restore" && rest[1] == "retry":
		if !s.permit(w, sc, rbac.PermVersionsRestore) {
			return
		}
		result, err := ws.RetryRestore(ctx, documentID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "archive":
		if !s.permit(w, sc, rbac.PermDocumentsRead) {
			return
		}
		limit, err := intParam(r, "limit", 50)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		commits, err := s.service.ArchiveHistory(ctx, sc, documentID, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "export":
		s.handleExport(w, r, sc, documentID)

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "share":
		if !s.permit(w, sc, rbac.PermDocumentsShare) {
			return
		}
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		link, err := s.service.Share(ctx, sc, documentID, body.Email)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, sc *security.Context, documentID string) {
	if !s.permit(w, sc, rbac.PermDocumentsRead) {
		return
	}
	format, err := export.ParseFormat(strings.TrimSpace(r.URL.Query().Get("format")))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	version, err := intParam(r, "version", 0)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	paper, err := export.ParsePaper(strings.TrimSpace(r.URL.Query().Get("paper")))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	upload, _ := strconv.ParseBool(r.URL.Query().Get("upload"))

	outcome, err := s.service.Export(r.Context(), sc, documentID, ExportOptions{
		Format:        format,
		Paper:         paper,
		VersionNumber: version,
		Upload:        upload,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if outcome.Upload != nil {
		writeJSON(w, http.StatusOK, outcome.Upload)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+outcome.File.Filename+"\"")
	w.Header().Set("Content-Type", outcome.File.MimeType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(outcome.File.Data)
}

func versionNumber(w http.ResponseWriter, raw string) (int, bool) {
	number, err := strconv.Atoi(raw)
	if err != nil || number <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
		return 0, false
	}
	return number, true
}

func validStatus(status string) bool {
	switch status {
	case store.StatusDraft, store.StatusPublished, store.StatusArchived:
		return true
	}
	return false
}
