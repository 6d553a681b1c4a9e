// Equipment-bootstrap self-registration, adapted from kurbisio's
// iot/authorization Kurbisio-Equipment-Key pattern (SPEC_FULL.md
// SUPPLEMENTED FEATURES §1): a device presenting the shared equipment key
// or a one-time bootstrap token an Admin minted for it may create its own
// device row before any operator has bound it to a Site/Zone, the same
// "device dials home first" shape original_source/Managers/src/DeviceManager.cpp's
// device provisioning assumes but never exposes over HTTP. Bootstrap
// tokens are stored in the persistent key/value registry
// (core/registry.Accessor), the same store the teacher used for arbitrary
// config blobs, here holding one-time device-provisioning grants instead.
package httpapi

import (
	"net/http"

	"github.com/falcata-iot/edge/access"
	"github.com/falcata-iot/edge/apperr"
	"github.com/falcata-iot/edge/domain"
)

// bootstrapGrant is the value a bootstrap token resolves to in the
// registry: the Site/Zone an Admin pre-authorized a not-yet-existing
// device to register into.
type bootstrapGrant struct {
	SiteID string `json:"site_id"`
	ZoneID string `json:"zone_id"`
}

type mintBootstrapTokenRequest struct {
	SiteID string `json:"site_id"`
	ZoneID string `json:"zone_id"`
}

type mintBootstrapTokenResponse struct {
	Token string `json:"token"`
}

// handleMintBootstrapToken implements POST /devices/bootstrap-tokens: an
// Admin mints a one-time token scoped to a site/zone, to be redeemed once
// at POST /devices/register by the device it is handed to out of band. The
// minting Admin must have the target site in scope — an Admin whose
// Identity.SiteIDs excludes req.SiteID cannot hand out access to a site
// they cannot themselves administer, per spec.md §4.A's guard chain.
func (a *API) handleMintBootstrapToken(w http.ResponseWriter, r *http.Request) {
	var req mintBootstrapTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		access.WriteJSONError(w, apperr.BadRequest, "invalid request body")
		return
	}
	if req.SiteID == "" || req.ZoneID == "" {
		access.WriteJSONError(w, apperr.BadRequest, "site_id and zone_id are required")
		return
	}

	tenantSlug := r.URL.Query().Get("tenant")
	if tenantSlug == "" {
		tenantSlug = r.Header.Get("X-Tenant-Id")
	}
	if _, ok := a.guard.RequireTenantSiteStrict(w, r, tenantSlug, req.SiteID, domain.Admin); !ok {
		return
	}

	token := domain.NewID()
	if err := a.bootstrapTokens.Write(token, bootstrapGrant{SiteID: req.SiteID, ZoneID: req.ZoneID}); err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to mint bootstrap token")
		return
	}
	writeJSON(w, http.StatusCreated, mintBootstrapTokenResponse{Token: token})
}

type registerDeviceRequest struct {
	Token      string `json:"token"`
	SiteID     string `json:"site_id"`
	ZoneID     string `json:"zone_id"`
	Name       string `json:"name"`
	ExternalID string `json:"external_id"`
	Protocol   string `json:"protocol"`
}

// handleRegisterDevice implements POST /devices/register. A caller is
// authorized to self-register either by carrying the transient equipment
// identity EquipmentKeyMiddleware grants for the shared X-Equipment-Key
// header, or by redeeming a one-time bootstrap token minted through
// handleMintBootstrapToken — in which case the token's site_id/zone_id
// grant is used regardless of what the request body claims, and the token
// is deleted from the registry so it cannot be replayed.
func (a *API) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		access.WriteJSONError(w, apperr.BadRequest, "invalid request body")
		return
	}

	siteID, zoneID := req.SiteID, req.ZoneID
	identity, hasIdentity := access.IdentityFromContext(r.Context())
	switch {
	case hasIdentity && access.IsEquipment(identity):
		// shared equipment key already authorized this request; site_id
		// and zone_id come straight from the request body.
	case req.Token != "":
		var grant bootstrapGrant
		ts, err := a.bootstrapTokens.Read(req.Token, &grant)
		if err != nil {
			access.WriteJSONError(w, apperr.Internal, "failed to resolve bootstrap token")
			return
		}
		if ts.IsZero() {
			access.WriteJSONError(w, apperr.NotAuthorized, "invalid or expired bootstrap token")
			return
		}
		_ = a.bootstrapTokens.Delete(req.Token)
		siteID, zoneID = grant.SiteID, grant.ZoneID
	default:
		w.Header().Set("WWW-Authenticate", "Bearer")
		access.WriteJSONError(w, apperr.NotAuthorized, "missing equipment key or bootstrap token")
		return
	}

	if siteID == "" || zoneID == "" || req.Name == "" {
		access.WriteJSONError(w, apperr.BadRequest, "site_id, zone_id and name are required")
		return
	}
	protocol := domain.Protocol(req.Protocol)
	if protocol == "" {
		protocol = domain.ProtocolMqtt
	}

	dev := &domain.DeviceBase{
		ID:         domain.NewID(),
		SiteID:     siteID,
		ZoneID:     zoneID,
		Name:       req.Name,
		Protocol:   protocol,
		Enabled:    false,
		ExternalID: req.ExternalID,
	}
	id, err := a.devices.Insert(r.Context(), dev)
	if err != nil {
		access.WriteJSONError(w, apperr.Internal, "failed to register device")
		return
	}
	dev.ID = id

	writeJSON(w, http.StatusCreated, dev)
}
