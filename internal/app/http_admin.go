package app

import (
	"net/http"

	"inkwell/api/internal/rbac"
	"inkwell/api/internal/security"
)

// routeAdmin serves /api/admin/... and reports whether it handled the request.
// The admin_required rule already rejects non-admins; the permission check
// still applies when that rule is disabled.
func (s *HTTPServer) routeAdmin(w http.ResponseWriter, r *http.Request, sc *security.Context, parts []string) bool {
	if len(parts) < 2 || parts[0] != "security" {
		return false
	}
	if !s.permit(w, sc, rbac.PermSecurityAdmin) {
		return true
	}
	engine := s.service.Security()

	switch {
	case len(parts) == 2 && parts[1] == "rules" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"rules": engine.Rules()})

	case len(parts) == 3 && parts[1] == "rules" && r.Method == http.MethodPatch:
		var update security.RuleUpdate
		if err := decodeBody(r, &update); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		rule, err := engine.UpdateRule(parts[2], update)
		if err != nil {
			writeMappedError(w, err)
			return true
		}
		s.log.WithField("rule", rule.ID).WithField("user_id", sc.UserID).Info("security rule updated")
		writeJSON(w, http.StatusOK, rule)

	case len(parts) == 3 && parts[1] == "rules" && r.Method == http.MethodDelete:
		if !engine.RemoveRule(parts[2]) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Rule not found", nil)
			return true
		}
		s.log.WithField("rule", parts[2]).WithField("user_id", sc.UserID).Warn("security rule removed")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 2 && parts[1] == "cleanup" && r.Method == http.MethodPost:
		sessions, counters, err := engine.Cleanup(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "counters": counters})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
	return true
}
