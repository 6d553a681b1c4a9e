// Package httpapi implements the HTTP surface of spec.md §6: signin,
// login, user management, and CORS preflight handling, wired through
// gorilla/mux routing and gorilla/handlers CORS middleware, matching the
// teacher's original_source/Auth/src/UserManager.cpp handler bodies.
package httpapi

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/falcata-iot/edge/access"
	"github.com/falcata-iot/edge/core/registry"
	"github.com/falcata-iot/edge/repository"
	"github.com/falcata-iot/edge/wsroom"
)

// defaultTokenTTLSeconds is how long an issued access token stays valid.
const defaultTokenTTLSeconds = 3600

// defaultUsersListLimit is the bound spec.md §6 names for GET /users.
const defaultUsersListLimit = 200

// RoomLister is the diagnostic accessor the /debug/rooms endpoint walks;
// implemented by whatever owns the process's wsroom.Room instances
// (cmd/edge-server's wiring).
type RoomLister interface {
	Rooms() map[string]*wsroom.Room
}

// API wires every HTTP handler over the repositories and auth core.
type API struct {
	tenants *repository.TenantRepository
	users   *repository.UserRepository
	devices *repository.DeviceRepository
	guard   *access.Guard
	issuer  *access.Issuer
	rooms   RoomLister // optional

	equipmentKey    string           // shared secret gating POST /devices/register; empty disables it
	bootstrapTokens registry.Accessor // one-time device-provisioning grants, keyed by token

	chatRoom     *wsroom.Room
	opsRoom      *wsroom.Room // receives topologie.update and command.* broadcasts
	gatewayRooms map[string]*wsroom.Room // server id -> room

	now func() time.Time
}

// NewAPI creates an API. rooms may be nil, in which case /debug/rooms
// reports an empty set. chatRoom, opsRoom and gatewayRooms may be
// nil/empty if the process does not mount that part of the WebSocket
// surface. equipmentKey may be empty, in which case POST /devices/register
// only accepts a bootstrap token, never the shared header.
func NewAPI(tenants *repository.TenantRepository, users *repository.UserRepository,
	devices *repository.DeviceRepository, issuer *access.Issuer, guard *access.Guard,
	equipmentKey string, bootstrapTokens registry.Accessor, rooms RoomLister,
	chatRoom, opsRoom *wsroom.Room, gatewayRooms map[string]*wsroom.Room) *API {
	return &API{
		tenants: tenants, users: users, devices: devices, guard: guard, issuer: issuer,
		equipmentKey: equipmentKey, bootstrapTokens: bootstrapTokens, rooms: rooms,
		chatRoom: chatRoom, opsRoom: opsRoom, gatewayRooms: gatewayRooms, now: time.Now,
	}
}

// Router builds the mux.Router serving every route in spec.md §6's HTTP
// surface table plus the WebSocket chat/gateway mount points of §6's
// WebSocket surface, with CORS preflight handled by gorilla/handlers.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/signin", a.handleSignin).Methods(http.MethodPost)
	r.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/users", a.handleListUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", a.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/disable", a.handleDisableUser).Methods(http.MethodPatch)
	r.Handle("/devices/register", access.EquipmentKeyMiddleware(a.equipmentKey)(http.HandlerFunc(a.handleRegisterDevice))).Methods(http.MethodPost)
	r.HandleFunc("/devices/bootstrap-tokens", a.handleMintBootstrapToken).Methods(http.MethodPost)
	r.HandleFunc("/debug/rooms", a.handleDebugRooms).Methods(http.MethodGet)
	r.HandleFunc("/ws/chat", a.handleChatWS).Methods(http.MethodGet)
	r.HandleFunc("/ws/ops", a.handleOpsWS).Methods(http.MethodGet)
	r.HandleFunc("/ws/gateway/{server}", a.handleGatewayWS).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Tenant", "X-Tenant-Id", "X-Site"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
	return cors(r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func tenantSlugOf(r *http.Request, bodyTenant string) string {
	if h := r.Header.Get("X-Tenant-Id"); h != "" {
		return h
	}
	return bodyTenant
}

// withIdentity stores identity on the request's context, the path
// handleCreateUser uses after the guard chain succeeds.
func withIdentity(r *http.Request, identity access.Identity) *http.Request {
	return r.WithContext(access.ContextWithIdentity(r.Context(), identity))
}
