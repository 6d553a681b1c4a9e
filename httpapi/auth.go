// Signin/login handlers, grounded on
// original_source/Auth/src/UserManager.cpp's SigninCreateUser and
// LoginVerify. LoginVerify's exact throw order — disabled, then bad
// credentials, then (if MFA) missing secret, then missing code, then bad
// code — is preserved here so the error a caller sees (always a 500, via
// writeLoginError) reflects the first failing check, not an arbitrary one.
package httpapi

import (
	"net/http"

	"github.com/falcata-iot/edge/access"
	"github.com/falcata-iot/edge/apperr"
	"github.com/falcata-iot/edge/domain"
)

type signinRequest struct {
	TenantID   string `json:"tenant_id"`
	UserName   string `json:"user_name"`
	Password   string `json:"password"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	MfaEnabled bool   `json:"mfa_enabled"`
}

const (
	defaultTotpDigits = 6
	defaultTotpPeriod = 30
	totpSecretBytes   = 20
)

// handleSignin implements POST /signin: create a user, generating a TOTP
// secret when mfa_enabled is requested, per spec.md §6.
func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := decodeJSON(r, &req); err != nil {
		access.WriteJSONError(w, apperr.BadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" || req.UserName == "" || req.Password == "" {
		access.WriteJSONError(w, apperr.BadRequest, "tenant_id, user_name and password are required")
		return
	}

	ctx := r.Context()
	tenant, ok, err := a.tenants.FindByID(ctx, req.TenantID)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to resolve tenant")
		return
	}
	if !ok {
		tenant, ok, err = a.tenants.FindBySlug(ctx, req.TenantID)
		if err != nil {
			access.WriteJSONError(w, apperr.Internal, "failed to resolve tenant")
			return
		}
	}
	if !ok {
		access.WriteJSONError(w, apperr.NotFound, "tenant not found")
		return
	}

	if _, taken, err := a.users.FindByTenantAndUserName(ctx, tenant.ID, req.UserName); err != nil {
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
		TenantID:     tenant.ID,
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

type loginRequest struct {
	TenantID string `json:"tenant_id"`
	UserName string `json:"user_name"`
	Password string `json:"password"`
	Totp     string `json:"totp"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
	MfaEnabled  bool   `json:"mfa_enabled"`
}

// writeLoginError reports a login failure with status 500, matching
// original_source/AuthLoginPlugin/src/AuthLoginPlugin.cpp's catch-all
// `catch (const std::exception&) { statusCode = 500; }` around
// UserManager::LoginVerify — unlike the guard chain's own errors, a failed
// login is never a 401/403 at the HTTP layer.
func writeLoginError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

// handleLogin implements POST /login. Unlike the flagged source bug
// (spec.md §9: the handler built the response but never wrote it), this
// writes the access token body on every success path.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		access.WriteJSONError(w, apperr.BadRequest, "invalid request body")
		return
	}
	tenantSlug := tenantSlugOf(r, req.TenantID)
	if tenantSlug == "" || req.UserName == "" || req.Password == "" {
		access.WriteJSONError(w, apperr.BadRequest, "tenant, user_name and password are required")
		return
	}

	ctx := r.Context()
	tenant, ok, err := a.tenants.FindBySlug(ctx, tenantSlug)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to resolve tenant")
		return
	}
	if !ok {
		tenant, ok, err = a.tenants.FindByID(ctx, tenantSlug)
		if err != nil {
			access.WriteJSONError(w, apperr.Internal, "failed to resolve tenant")
			return
		}
	}
	if !ok {
		writeLoginError(w, "bad credentials")
		return
	}

	user, ok, err := a.users.FindByTenantAndUserName(ctx, tenant.ID, req.UserName)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to resolve user")
		return
	}
	if !ok {
		writeLoginError(w, "bad credentials")
		return
	}

	if user.Disabled {
		writeLoginError(w, "user disabled")
		return
	}
	if !access.VerifyPassword(req.Password, user.PasswordHash) {
		writeLoginError(w, "bad credentials")
		return
	}
	if user.MfaEnabled {
		if user.TotpSecretB32 == "" {
			access.WriteJSONError(w, apperr.Internal, "mfa misconfiguration")
			return
		}
		if req.Totp == "" {
			writeLoginError(w, "mfa required")
			return
		}
		if !access.TotpVerify(user.TotpSecretB32, req.Totp, a.now().Unix(), user.TotpDigits, user.TotpPeriod, 1) {
			writeLoginError(w, "bad totp")
			return
		}
	}

	var siteIDs []string
	for siteID := range user.SiteRoles {
		siteIDs = append(siteIDs, siteID)
	}
	identity := access.Identity{Sub: user.ID, Role: user.Role, TenantID: tenant.ID, TenantSlug: tenant.Slug, SiteIDs: siteIDs}
	token, err := a.issuer.IssueToken(identity, defaultTokenTTLSeconds)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		Role:        user.Role.String(),
		MfaEnabled:  user.MfaEnabled,
	})
}
