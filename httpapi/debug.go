package httpapi

import "net/http"

type roomSummary struct {
	Sessions int      `json:"sessions"`
	Users    []string `json:"users"`
}

// handleDebugRooms implements GET /debug/rooms, a supplemented feature
// exposing wsroom.Room.SessionCount/DiagnosticTags for operational
// visibility into the chat and gateway rooms a cmd/edge-server process
// hosts.
func (a *API) handleDebugRooms(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]roomSummary)
	if a.rooms != nil {
		for name, room := range a.rooms.Rooms() {
			out[name] = roomSummary{
				Sessions: room.SessionCount(),
				Users:    room.DiagnosticTags(),
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}
