package httpapi

import (
	"net/http"
	"strings"

	"scopetree.org/internal/audit"
	"scopetree.org/internal/auth"
	"scopetree.org/internal/registry"
)

type issueTokenRequest struct {
	PrincipalID int64                 `json:"principal_id"`
	TenantID    *int64                `json:"tenant_id"`
	ServiceID   string                `json:"service_id"`
	Options     registry.IssueOptions `json:"options"`
}

type issueBatchRequest struct {
	PrincipalIDs []int64               `json:"principal_ids"`
	TenantID     *int64                `json:"tenant_id"`
	ServiceID    string                `json:"service_id"`
	Options      registry.IssueOptions `json:"options"`
}

type issueAdminRequest struct {
	PrincipalID int64                 `json:"principal_id"`
	ServiceID   string                `json:"service_id"`
	Options     registry.IssueOptions `json:"options"`
}

func (a *API) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req issueTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	issued, err := a.registry.Issue(r.Context(), req.PrincipalID, req.TenantID, req.ServiceID, req.Options)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "token.issued", map[string]any{
		"token_id":     issued.Token.ID,
		"principal_id": req.PrincipalID,
		"service_id":   req.ServiceID,
		"tenant_id":    req.TenantID,
	})
	writeJSON(w, http.StatusCreated, issued)
}

func (a *API) handleIssueBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req issueBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	createdBy := ""
	if op, ok := auth.OperatorFromContext(r.Context()); ok {
		createdBy = op.ID
	}
	result, err := a.registry.IssueBatch(r.Context(), req.PrincipalIDs, req.TenantID, req.ServiceID, req.Options, createdBy)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "token.batch_issued", map[string]any{
		"batch_id":  result.BatchID,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"tenant_id": req.TenantID,
	})
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleIssueAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireRole(w, r, auth.RoleTokenAdmin) {
		return
	}
	var req issueAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	issued, err := a.registry.IssueAdmin(r.Context(), req.PrincipalID, req.ServiceID, req.Options)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "token.admin_issued", map[string]any{
		"token_id":     issued.Token.ID,
		"principal_id": req.PrincipalID,
		"service_id":   req.ServiceID,
	})
	writeJSON(w, http.StatusCreated, issued)
}

// handleResolve maps the caller's own bearer credential onto its
// restriction. The IP allowlist is enforced here since the transport knows
// the client address.
func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	credential, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	restriction, err := a.registry.Resolve(r.Context(), credential)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	if !restriction.AllowsIP(peerIP(r)) {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, restriction)
}

func (a *API) handleTokenByCredential(w http.ResponseWriter, r *http.Request) {
	credential := strings.TrimPrefix(r.URL.Path, "/v1/tokens/")
	if credential == "" || strings.Contains(credential, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.registry.Revoke(r.Context(), credential); err != nil {
		handleRegistryError(w, r, err)
		return
	}
	// Attribute the event by token ID only; the secret half never reaches
	// the audit stream.
	tokenID := credential
	if i := strings.IndexByte(credential, '.'); i >= 0 {
		tokenID = credential[:i]
	}
	_ = audit.LogEvent(r.Context(), "token.revoked", map[string]any{"token_id": tokenID})
	w.WriteHeader(http.StatusNoContent)
}
