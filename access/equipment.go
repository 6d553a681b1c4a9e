package access

import (
	"crypto/subtle"
	"net/http"
)

// EquipmentRole is the transient role granted to a device presenting a
// valid shared equipment key, used for the bootstrap path a device takes
// before an operator has bound it to a Site/Zone. Adapted from kurbisio's
// iot/authorization Kurbisio-Equipment-Key middleware (SPEC_FULL.md
// SUPPLEMENTED FEATURES §1).
const EquipmentRole = "equipment"

// EquipmentKeyMiddleware checks the X-Equipment-Key header against key
// and, on match, stashes an Identity{Sub:"equipment", ...} with the
// transient equipment role in the request context for downstream
// handlers (device self-registration) to recognize. Requests without a
// matching header pass through unmodified — this middleware only ever
// adds privilege, it never removes it.
func EquipmentKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key != "" {
				presented := r.Header.Get("X-Equipment-Key")
				if presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
					identity := Identity{Sub: EquipmentRole}
					r = r.WithContext(ContextWithIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsEquipment reports whether identity is the transient equipment
// identity granted by EquipmentKeyMiddleware.
func IsEquipment(identity Identity) bool {
	return identity.Sub == EquipmentRole
}
