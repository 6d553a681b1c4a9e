package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/falcata-iot/edge/access"
	"github.com/falcata-iot/edge/apperr"
	"github.com/falcata-iot/edge/domain"
)

// handleListUsers implements GET /users: Admin role, tenant-scoped,
// bounded at defaultUsersListLimit, per spec.md §6.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	tenantSlug := r.URL.Query().Get("tenant")
	if tenantSlug == "" {
		tenantSlug = r.Header.Get("X-Tenant-Id")
	}
	identity, ok := a.guard.RequireTenantStrict(w, r, tenantSlug, domain.Admin)
	if !ok {
		return
	}

	tenant, found, err := a.tenants.FindByID(r.Context(), identity.TenantID)
	if err != nil || !found {
		access.WriteJSONError(w, apperr.Internal, "failed to resolve tenant")
		return
	}

	users, err := a.users.List(r.Context(), tenant.ID, defaultUsersListLimit)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	UserName   string `json:"user_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	MfaEnabled bool   `json:"mfa_enabled"`
}

// handleCreateUser implements POST /users: Admin role, tenant-scoped.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		access.WriteJSONError(w, apperr.BadRequest, "invalid request body")
		return
	}

	tenantSlug := tenantSlugOf(r, "")
	identity, ok := a.guard.RequireTenantStrict(w, r, tenantSlug, domain.Admin)
	if !ok {
		return
	}
	if req.UserName == "" || req.Password == "" {
		access.WriteJSONError(w, apperr.BadRequest, "user_name and password are required")
		return
	}

	ctx := withIdentity(r, identity).Context()
	if _, taken, err := a.users.FindByTenantAndUserName(ctx, identity.TenantID, req.UserName); err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to check user_name")
		return
	} else if taken {
		access.WriteJSONError(w, apperr.Conflict, "user_name already exists")
		return
	}

	hash, err := access.HashPassword(req.Password)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to hash password")
		return
	}

	user := &domain.User{
		ID:           domain.NewID(),
		TenantID:     identity.TenantID,
		UserName:     req.UserName,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         domain.ParseRole(req.Role),
		MfaEnabled:   req.MfaEnabled,
		TotpDigits:   defaultTotpDigits,
		TotpPeriod:   defaultTotpPeriod,
	}
	if req.MfaEnabled {
		secret, err := access.GenerateTotpSecret(totpSecretBytes)
		if err != nil {
			access.WriteJSONError(w, apperr.Internal, "failed to generate totp secret")
			return
		}
		user.TotpSecretB32 = secret
	}

	id, err := a.users.Insert(ctx, user.InsertParams()...)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to create user")
		return
	}
	user.ID = id
	writeJSON(w, http.StatusCreated, user)
}

// handleDisableUser implements PATCH /users/{id}/disable, a supplemented
// feature (SPEC_FULL.md's SUPPLEMENTED FEATURES §3) exercising
// Repository.SetDisabled for the User entity.
func (a *API) handleDisableUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.guard.RequireRoleStrict(w, r, domain.Admin)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	user, found, err := a.users.FindByID(r.Context(), id)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to resolve user")
		return
	}
	if !found || (identity.TenantSlug != "" && user.TenantID != identity.TenantID) {
		access.WriteJSONError(w, apperr.NotFound, "user not found")
		return
	}

	if err := a.users.SetDisabled(r.Context(), true, user.ID); err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to disable user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
