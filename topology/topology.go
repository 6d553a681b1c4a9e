// Package topology implements the Topology Updater (spec.md §4.G):
// a background task that listens on the "iot_changes" database
// notification channel, reloads the Device Manager, rebuilds a
// hierarchical snapshot of the deployment graph, and broadcasts it as a
// "topologie.update" WebSocket text frame. Grounded on
// original_source/Topology/src/TopologyUpdate.cpp.
package topology

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/core/logger"
	"github.com/falcata-iot/edge/devicemgr"
	"github.com/falcata-iot/edge/domain"
)

// Broadcaster is the subset of wsroom.Room's API the Topology Updater
// needs: pushing a pre-encoded text frame to every open session.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// topicView is a device's topic rendered into the snapshot.
type topicView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Topic     string `json:"topic"`
	Direction string `json:"direction"`
	Enabled   bool   `json:"enabled"`
}

type deviceView struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Protocol string      `json:"protocol"`
	Enabled  bool        `json:"enabled"`
	Topics   []topicView `json:"topics"`
}

type zoneView struct {
	ID      string                 `json:"id"`
	Name    string                 `json:"name"`
	Devices map[string]deviceView `json:"devices"`
}

type serverView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Enabled  bool   `json:"enabled"`
	Reachable bool  `json:"reachable"`
}

type siteView struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Servers map[string]serverView `json:"servers,omitempty"`
	Zones   map[string]zoneView   `json:"zones"`
}

// Graph is the rendered snapshot, matching spec.md §4.G/§6's wire shape.
type Graph struct {
	Type  string              `json:"type"`
	Sites map[string]siteView `json:"sites"`
	Ts    float64             `json:"ts"`
}

// Updater rebuilds and broadcasts the topology graph.
type Updater struct {
	manager *devicemgr.Manager
	ws      Broadcaster

	// now is overridable for deterministic tests (spec.md §8 property 8).
	now func() time.Time
}

// NewUpdater creates an Updater over manager, broadcasting rebuilt
// snapshots through ws (nil is permitted — Reload then only rebuilds the
// Registry without emitting a frame, useful in tests).
func NewUpdater(manager *devicemgr.Manager, ws Broadcaster) *Updater {
	return &Updater{manager: manager, ws: ws, now: time.Now}
}

// Reload performs one full reload+rebuild+broadcast cycle, per spec.md
// §4.G steps 1-3.
func (u *Updater) Reload(ctx context.Context) error {
	if err := u.manager.ReloadAll(ctx); err != nil {
		return err
	}
	u.manager.SyncAllMqttDevices()

	graph := u.buildGraph()
	if u.ws == nil {
		return nil
	}
	payload, err := json.Marshal(graph)
	if err != nil {
		return err
	}
	u.ws.Broadcast(payload)
	return nil
}

// buildGraph renders the Registry's current contents into a Graph. The
// rebuild reads a consistent snapshot from the Registry (itself guarded
// by its own mutex per field), so two reloads with nothing changed
// underneath render byte-identical graphs modulo the timestamp, per
// spec.md §8 property 8.
func (u *Updater) buildGraph() Graph {
	reg := u.manager.Registry()

	sites := make(map[string]siteView)
	for _, s := range reg.AllSites() {
		sites[s.ID] = siteView{ID: s.ID, Name: s.Name, Zones: make(map[string]zoneView)}
	}
	for _, srv := range reg.AllServers() {
		siteID := serverMetadataSiteID(srv)
		sv, ok := sites[siteID]
		if !ok {
			continue
		}
		if sv.Servers == nil {
			sv.Servers = make(map[string]serverView)
		}
		reachable := false
		if mb, ok := srv.(*domain.MqttBroker); ok {
			reachable = mb.IsReachable()
		}
		sv.Servers[srv.ServerID()] = serverView{
			ID: srv.ServerID(), Name: srv.ServerName(),
			Protocol: string(srv.ServerProtocol()), Enabled: srv.ServerEnabled(), Reachable: reachable,
		}
		sites[siteID] = sv
	}
	for _, z := range reg.AllZones() {
		sv, ok := sites[siteIDForZone(reg, z)]
		if !ok {
			continue
		}
		sv.Zones[z.ID] = zoneView{ID: z.ID, Name: z.Name, Devices: make(map[string]deviceView)}
		sites[siteIDForZone(reg, z)] = sv
	}
	for _, dev := range reg.AllDevices() {
		siteID := dev.DeviceSiteID()
		sv, ok := sites[siteID]
		if !ok {
			continue
		}
		zv, ok := sv.Zones[dev.DeviceZoneID()]
		if !ok {
			continue
		}
		topics := reg.TopicsForDevice(dev.DeviceID())
		views := make([]topicView, 0, len(topics))
		for _, t := range topics {
			views = append(views, topicView{ID: t.ID, Role: string(t.Role), Topic: t.Topic, Direction: string(t.Direction), Enabled: t.Enabled})
		}
		zv.Devices[dev.DeviceID()] = deviceView{
			ID: dev.DeviceID(), Name: dev.DeviceName(), Protocol: string(dev.DeviceProtocol()),
			Enabled: dev.DeviceEnabled(), Topics: views,
		}
		sv.Zones[dev.DeviceZoneID()] = zv
	}

	return Graph{Type: "topologie.update", Sites: sites, Ts: float64(u.now().UnixNano()) / 1e9}
}

func siteIDForZone(reg *devicemgr.Registry, z *domain.Zone) string {
	return z.SiteID
}

// serverMetadataSiteID decodes a Server's opaque metadata column looking
// for a "site_id" key, the mechanism spec.md §4.G step 2 names
// ("Servers... resolved by metadata.site_id") since the core domain model
// has no direct server→site foreign key (servers are tenant-scoped).
// Servers with no matching site id are omitted from every site's view.
func serverMetadataSiteID(srv domain.Server) string {
	raw := srv.ServerMetadata()
	if len(raw) == 0 {
		return ""
	}
	var hint struct {
		SiteID string `json:"site_id"`
	}
	if err := json.Unmarshal(raw, &hint); err != nil {
		return ""
	}
	return hint.SiteID
}

// Start runs Reload once and then loops, reloading on every "iot_changes"
// notification, until ctx is cancelled. Mirrors
// TopologyUpdate::Start/Worker.
func (u *Updater) Start(ctx context.Context, db *csql.DB) error {
	if err := u.Reload(ctx); err != nil {
		logger.Default().WithError(err).Warn("topology: initial reload failed")
	}
	return db.Listen(ctx, "iot_changes", func() {
		if err := u.Reload(ctx); err != nil {
			logger.Default().WithError(err).Warn("topology: reload failed")
		}
	})
}
