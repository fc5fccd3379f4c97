package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"scopetree.org/internal/obs"
	"scopetree.org/internal/registry"
	"scopetree.org/internal/tenancy"

	"scopetree.org/internal/auth"
)

// ReadyProbe reports readiness (e.g. database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the management HTTP layer over the token registry and scope
// resolver.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	registry *registry.Service
	scopes   tenancy.ScopeResolver
	auth     *auth.Manager // nil disables operator authentication
}

// New wires the routes. auth may be nil for embedded or test use.
func New(rp ReadyProbe, version string, reg *registry.Service, scopes tenancy.ScopeResolver, mgr *auth.Manager) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		registry:   reg,
		scopes:     scopes,
		auth:       mgr,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/tokens", a.handleTokens)
	a.mux.HandleFunc("/v1/tokens/batch", a.handleIssueBatch)
	a.mux.HandleFunc("/v1/tokens/admin", a.handleIssueAdmin)
	a.mux.HandleFunc("/v1/tokens/resolve", a.handleResolve)
	a.mux.HandleFunc("/v1/tokens/", a.handleTokenByCredential)

	a.mux.HandleFunc("/v1/access/check", a.handleAccessCheck)
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantScopes)

	a.mux.HandleFunc("/v1/batches", a.handleBatches)
	a.mux.HandleFunc("/v1/batches/", a.handleBatchByID)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = obs.Instrument(h)
	h = RequestID(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "scopetree-api",
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleRegistryError maps domain sentinel errors onto HTTP statuses with
// distinct messages per error kind.
func handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidInput), errors.Is(err, registry.ErrInvalidConfig),
		errors.Is(err, tenancy.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrTenantNotFound), errors.Is(err, tenancy.ErrTenantNotFound):
		writeError(w, r, http.StatusNotFound, "tenant not found")
	case errors.Is(err, registry.ErrPrincipalNotFound):
		writeError(w, r, http.StatusNotFound, "principal not found")
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, registry.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, "principal already has a token")
	case errors.Is(err, registry.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		obs.LogError("unhandled registry error", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
