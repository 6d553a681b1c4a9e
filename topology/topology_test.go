package topology

import (
	"testing"

	"github.com/falcata-iot/edge/devicemgr"
	"github.com/falcata-iot/edge/domain"
)

func newTestManager() *devicemgr.Manager {
	return devicemgr.NewManager(nil, nil, nil, nil, nil, nil)
}

// TestBuildGraphIsIdempotent is spec.md §8 property 8: rebuilding a
// snapshot from an unchanged Registry twice yields the same graph modulo
// the timestamp.
func TestBuildGraphIsIdempotent(t *testing.T) {
	m := newTestManager()
	reg := m.Registry()
	reg.SetSites([]*domain.Site{{ID: "site-1", Name: "Plant A"}})
	reg.SetZones([]*domain.Zone{{ID: "zone-1", SiteID: "site-1", Name: "Line 1"}})
	reg.SetServers([]domain.Server{
		&domain.MqttBroker{ServerBase: domain.ServerBase{
			ID: "srv-1", Protocol: domain.ProtocolMqtt, Enabled: true,
			Metadata: domain.RawMessage(`{"site_id":"site-1"}`),
		}},
	})
	dev := &domain.MqttDevice{DeviceBase: domain.DeviceBase{
		ID: "dev-1", Name: "Sensor 1", SiteID: "site-1", ZoneID: "zone-1",
		Protocol: domain.ProtocolMqtt, Enabled: true,
	}}
	reg.SetDevices([]domain.IoTDevice{dev})
	reg.SetTopicsForDevice("dev-1", []*domain.MqttTopic{
		{ID: "topic-1", DeviceID: "dev-1", Role: domain.RoleTelemetry, Topic: "temp", Enabled: true},
	})

	u := NewUpdater(m, nil)
	g1 := u.buildGraph()
	g2 := u.buildGraph()

	if len(g1.Sites) != 1 || len(g2.Sites) != 1 {
		t.Fatalf("expected one site in each snapshot, got %d and %d", len(g1.Sites), len(g2.Sites))
	}
	s1, s2 := g1.Sites["site-1"], g2.Sites["site-1"]
	if s1.Name != s2.Name || len(s1.Zones) != len(s2.Zones) || len(s1.Servers) != len(s2.Servers) {
		t.Fatalf("expected byte-identical site views across rebuilds, got %+v and %+v", s1, s2)
	}

	zone1, zone2 := s1.Zones["zone-1"], s2.Zones["zone-1"]
	if len(zone1.Devices) != 1 || len(zone2.Devices) != 1 {
		t.Fatalf("expected the device to appear under its zone, got %+v and %+v", zone1, zone2)
	}
	if zone1.Devices["dev-1"].Name != "Sensor 1" {
		t.Fatalf("expected the device's name to be rendered, got %+v", zone1.Devices["dev-1"])
	}
	if len(zone1.Devices["dev-1"].Topics) != 1 || zone1.Devices["dev-1"].Topics[0].ID != "topic-1" {
		t.Fatalf("expected the device's topic to be rendered, got %+v", zone1.Devices["dev-1"])
	}

	srv := s1.Servers["srv-1"]
	if srv.Reachable {
		t.Fatal("expected a broker that never connected to report unreachable")
	}
}

// TestBuildGraphOmitsUnresolvedServer exercises the graceful-skip
// path when a server's metadata does not resolve to any known site.
func TestBuildGraphOmitsUnresolvedServer(t *testing.T) {
	m := newTestManager()
	reg := m.Registry()
	reg.SetSites([]*domain.Site{{ID: "site-1"}})
	reg.SetServers([]domain.Server{
		&domain.MqttBroker{ServerBase: domain.ServerBase{ID: "srv-orphan", Protocol: domain.ProtocolMqtt}},
	})

	u := NewUpdater(m, nil)
	g := u.buildGraph()

	if len(g.Sites["site-1"].Servers) != 0 {
		t.Fatalf("expected a server with no matching site_id metadata to be omitted, got %+v", g.Sites["site-1"].Servers)
	}
}

func TestServerMetadataSiteIDMissingMetadata(t *testing.T) {
	srv := &domain.MqttBroker{ServerBase: domain.ServerBase{ID: "srv-1"}}
	if got := serverMetadataSiteID(srv); got != "" {
		t.Fatalf("expected an empty site id for a server with no metadata, got %q", got)
	}
}
