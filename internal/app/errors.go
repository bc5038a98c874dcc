package app

import (
	"errors"
	"fmt"
	"net/http"

	"inkwell/api/internal/ai"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/autosave"
	"inkwell/api/internal/export"
	"inkwell/api/internal/objectstore"
	"inkwell/api/internal/security"
	"inkwell/api/internal/sharetoken"
	"inkwell/api/internal/store"
	"inkwell/api/internal/versions"
	"inkwell/api/internal/workspace"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var pending *versions.RestorePendingError
	if errors.As(err, &pending) {
		return http.StatusBadGateway, "RESTORE_PENDING", "Backup saved but the restore did not complete", map[string]any{
			"backupVersion": pending.Backup.VersionNumber,
			"targetVersion": pending.Target.VersionNumber,
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, workspace.ErrNoDocument):
		return http.StatusConflict, "NO_DOCUMENT", "Document is not open", nil
	case errors.Is(err, workspace.ErrNoPendingRestore):
		return http.StatusConflict, "NO_PENDING_RESTORE", "No restore is pending", nil
	case errors.Is(err, workspace.ErrUnsavedChanges):
		return http.StatusConflict, "UNSAVED_CHANGES", "The open document has changes that could not be saved", nil
	case errors.Is(err, workspace.ErrSaveFailed):
		return http.StatusInternalServerError, "SAVE_FAILED", autosave.FailedMessage, nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, security.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil
	case errors.Is(err, security.ErrNoSession):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, security.ErrRuleNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Rule not found", nil
	case errors.Is(err, security.ErrInvalidRule):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, sharetoken.ErrExpiredToken):
		return http.StatusGone, "SHARE_EXPIRED", "Share link has expired", nil
	case errors.Is(err, sharetoken.ErrInvalidToken):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be one of html, txt, pdf, docx", nil
	case errors.Is(err, export.ErrUnsupportedPaper):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "paper must be letter or a4", nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, objectstore.ErrNotConfigured):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil
	case errors.Is(err, ai.ErrUnsupportedAction), errors.Is(err, ai.ErrEmptyContent):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI provider is not configured", nil
	case errors.Is(err, ai.ErrProvider):
		return http.StatusBadGateway, "AI_PROVIDER_ERROR", "AI provider request failed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
