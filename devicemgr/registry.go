// Package devicemgr implements the Device Registry (spec.md §4.D) and
// Device Manager (§4.F): an in-memory index of the loaded topology, and
// the orchestrator that reloads it from the Repository Layer and drives
// the Broker Session Manager.
package devicemgr

import (
	"sort"
	"sync"

	"github.com/falcata-iot/edge/domain"
)

// Registry is an in-memory store of the loaded topology: four maps keyed
// by entity id (sites, zones, servers, devices) plus a device_id →
// ordered topic sequence map, per spec.md §4.D / §9's "shared topics
// set on a device" note. Writes are strictly single-writer (the Device
// Manager); reads are many-reader and always return snapshots, never
// owning handles.
type Registry struct {
	mu sync.RWMutex

	sites   map[string]*domain.Site
	zones   map[string]*domain.Zone
	servers map[string]domain.Server
	devices map[string]domain.IoTDevice
	topics  map[string][]*domain.MqttTopic // device_id -> topics, in load order
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.clearLocked()
	return r
}

func (r *Registry) clearLocked() {
	r.sites = make(map[string]*domain.Site)
	r.zones = make(map[string]*domain.Zone)
	r.servers = make(map[string]domain.Server)
	r.devices = make(map[string]domain.IoTDevice)
	r.topics = make(map[string][]*domain.MqttTopic)
}

// Clear drops every entry, per spec.md §4.D.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// SetSites installs the full set of loaded Site rows.
func (r *Registry) SetSites(sites []*domain.Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sites {
		r.sites[s.ID] = s
	}
}

// SetZones installs the full set of loaded Zone rows.
func (r *Registry) SetZones(zones []*domain.Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, z := range zones {
		r.zones[z.ID] = z
	}
}

// SetServers installs the full set of loaded Server rows.
func (r *Registry) SetServers(servers []domain.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range servers {
		r.servers[s.ServerID()] = s
	}
}

// SetDevices installs the full set of loaded IoTDevice rows.
func (r *Registry) SetDevices(devices []domain.IoTDevice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range devices {
		r.devices[d.DeviceID()] = d
	}
}

// SetTopicsForDevice installs the ordered topic sequence for a device id,
// replacing any previous sequence. Called by the Device Manager after
// grouping the full topic set "by device id".
func (r *Registry) SetTopicsForDevice(deviceID string, topics []*domain.MqttTopic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[deviceID] = topics
}

// GetSite returns the Site with the given id, if loaded.
func (r *Registry) GetSite(id string) (*domain.Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[id]
	return s, ok
}

// GetZone returns the Zone with the given id, if loaded.
func (r *Registry) GetZone(id string) (*domain.Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	return z, ok
}

// GetServer returns the Server with the given id, if loaded.
func (r *Registry) GetServer(id string) (domain.Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[id]
	return s, ok
}

// GetDevice returns the IoTDevice with the given id, if loaded.
func (r *Registry) GetDevice(id string) (domain.IoTDevice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// TopicsForDevice returns the ordered topic sequence for a device id.
func (r *Registry) TopicsForDevice(deviceID string) []*domain.MqttTopic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*domain.MqttTopic(nil), r.topics[deviceID]...)
}

// AllSites performs a type-narrowing scan, returning every loaded Site
// sorted by id for deterministic iteration, per spec.md §4.D's
// all_sites() enumerator.
func (r *Registry) AllSites() []*domain.Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllZones returns every loaded Zone sorted by id.
func (r *Registry) AllZones() []*domain.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllMqttDevices performs a type-narrowing scan, returning every loaded
// device that is a *domain.MqttDevice, per spec.md §4.D's
// all_mqtt_devices() enumerator.
func (r *Registry) AllMqttDevices() []*domain.MqttDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.MqttDevice
	for _, d := range r.devices {
		if md, ok := d.(*domain.MqttDevice); ok {
			out = append(out, md)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllServers returns every loaded Server sorted by id, the enumeration
// the Device Manager's buildBrokerSessions walks to find mqtt-protocol
// rows.
func (r *Registry) AllServers() []domain.Server {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Server, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID() < out[j].ServerID() })
	return out
}

// AllDevices returns every loaded device sorted by id.
func (r *Registry) AllDevices() []domain.IoTDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.IoTDevice, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID() < out[j].DeviceID() })
	return out
}
