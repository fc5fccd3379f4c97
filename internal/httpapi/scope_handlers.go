package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"scopetree.org/internal/tenancy"
)

type allowSetResponse struct {
	TenantID int64        `json:"tenant_id"`
	Kind     tenancy.Kind `json:"kind"`
	IDs      []int64      `json:"ids"`
	Count    int          `json:"count"`
}

type accessCheckRequest struct {
	Credential string       `json:"credential"`
	Kind       tenancy.Kind `json:"kind"`
	EntityID   int64        `json:"entity_id"`
}

type accessCheckResponse struct {
	Allowed bool `json:"allowed"`
}

// handleTenantScopes serves /v1/tenants/{id}/{categories|courses|users}.
func (a *API) handleTenantScopes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tenants/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	tenantID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || tenantID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var (
		kind tenancy.Kind
		set  tenancy.AllowSet
	)
	switch parts[1] {
	case "categories":
		kind = tenancy.KindCategory
		set, err = a.scopes.TenantCategoryIDs(r.Context(), tenantID)
	case "courses":
		kind = tenancy.KindCourse
		set, err = a.scopes.TenantCourseIDs(r.Context(), tenantID)
	case "users":
		kind = tenancy.KindUser
		var departmentID *int64
		if raw := r.URL.Query().Get("department"); raw != "" {
			id, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				writeError(w, r, http.StatusBadRequest, "invalid department id")
				return
			}
			departmentID = &id
		}
		set, err = a.scopes.TenantUserIDs(r.Context(), tenantID, departmentID)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	ids := set.IDs()
	writeJSON(w, http.StatusOK, allowSetResponse{
		TenantID: tenantID,
		Kind:     kind,
		IDs:      ids,
		Count:    len(ids),
	})
}

// handleAccessCheck runs the full control flow: resolve the credential,
// then test entity membership against the computed allow-set.
func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req accessCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	restriction, err := a.registry.Resolve(r.Context(), req.Credential)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credential")
		return
	}
	if !restriction.AllowsIP(peerIP(r)) {
		writeError(w, r, http.StatusUnauthorized, "invalid credential")
		return
	}
	allowed, err := a.scopes.IsAllowed(r.Context(), restriction.Scope(), req.Kind, req.EntityID)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accessCheckResponse{Allowed: allowed})
}

func (a *API) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	var tenantID *int64
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid tenant id")
			return
		}
		tenantID = &id
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > 1000 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = val
	}
	batches, err := a.registry.Batches(r.Context(), tenantID, limit)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleBatchByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	batch, err := a.registry.Batch(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}
