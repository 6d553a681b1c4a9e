package devicemgr

import (
	"testing"

	"github.com/falcata-iot/edge/domain"
)

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	r.SetSites([]*domain.Site{{ID: "site-1"}})
	r.SetZones([]*domain.Zone{{ID: "zone-1", SiteID: "site-1"}})
	r.SetDevices([]domain.IoTDevice{&domain.MqttDevice{DeviceBase: domain.DeviceBase{ID: "dev-1"}}})

	if len(r.AllSites()) != 1 || len(r.AllZones()) != 1 || len(r.AllDevices()) != 1 {
		t.Fatal("expected the registry to hold the installed entities before Clear")
	}

	r.Clear()

	if len(r.AllSites()) != 0 || len(r.AllZones()) != 0 || len(r.AllDevices()) != 0 {
		t.Fatal("expected Clear to drop every entry")
	}
	if _, ok := r.GetSite("site-1"); ok {
		t.Fatal("expected GetSite to miss after Clear")
	}
}

func TestRegistryGetLookups(t *testing.T) {
	r := NewRegistry()
	r.SetSites([]*domain.Site{{ID: "site-1", Name: "Plant A"}})
	r.SetServers([]domain.Server{&domain.MqttBroker{ServerBase: domain.ServerBase{ID: "srv-1", Protocol: domain.ProtocolMqtt}}})
	r.SetDevices([]domain.IoTDevice{&domain.MqttDevice{DeviceBase: domain.DeviceBase{ID: "dev-1", ServerID: "srv-1"}}})

	if _, ok := r.GetSite("missing"); ok {
		t.Fatal("expected a miss for an unknown site id")
	}
	site, ok := r.GetSite("site-1")
	if !ok || site.Name != "Plant A" {
		t.Fatalf("expected to find site-1, got %+v ok=%v", site, ok)
	}

	srv, ok := r.GetServer("srv-1")
	if !ok || srv.ServerProtocol() != domain.ProtocolMqtt {
		t.Fatalf("expected to find srv-1 as an mqtt server, got %+v ok=%v", srv, ok)
	}

	dev, ok := r.GetDevice("dev-1")
	if !ok || dev.DeviceServerID() != "srv-1" {
		t.Fatalf("expected to find dev-1 bound to srv-1, got %+v ok=%v", dev, ok)
	}
}

func TestRegistryTopicsForDeviceReturnsOrderedSnapshot(t *testing.T) {
	r := NewRegistry()
	dev := &domain.MqttDevice{DeviceBase: domain.DeviceBase{ID: "dev-1", Protocol: domain.ProtocolMqtt}}
	r.SetDevices([]domain.IoTDevice{dev})

	topics := []*domain.MqttTopic{
		{ID: "topic-1", DeviceID: "dev-1", Role: domain.RoleCommand, Topic: "reboot"},
		{ID: "topic-2", DeviceID: "dev-1", Role: domain.RoleTelemetry, Topic: "temp"},
	}
	r.SetTopicsForDevice("dev-1", topics)

	got := r.TopicsForDevice("dev-1")
	if len(got) != 2 || got[0].ID != "topic-1" || got[1].ID != "topic-2" {
		t.Fatalf("expected the installed topics back in order, got %+v", got)
	}

	// Mutating the returned slice must not affect the registry's copy.
	got[0] = &domain.MqttTopic{ID: "mutated"}
	if again := r.TopicsForDevice("dev-1"); again[0].ID != "topic-1" {
		t.Fatal("TopicsForDevice must return an independent snapshot")
	}
}

func TestRegistryAllMqttDevicesNarrowsByType(t *testing.T) {
	r := NewRegistry()
	r.SetDevices([]domain.IoTDevice{
		&domain.MqttDevice{DeviceBase: domain.DeviceBase{ID: "mqtt-1", Protocol: domain.ProtocolMqtt}},
		&domain.DeviceBase{ID: "modbus-1", Protocol: domain.ProtocolModbusTCP},
	})

	mqttDevices := r.AllMqttDevices()
	if len(mqttDevices) != 1 || mqttDevices[0].DeviceID() != "mqtt-1" {
		t.Fatalf("expected exactly the one MqttDevice, got %+v", mqttDevices)
	}
}

func TestRegistryAllSitesSortedByID(t *testing.T) {
	r := NewRegistry()
	r.SetSites([]*domain.Site{{ID: "z-site"}, {ID: "a-site"}, {ID: "m-site"}})

	sites := r.AllSites()
	if len(sites) != 3 || sites[0].ID != "a-site" || sites[1].ID != "m-site" || sites[2].ID != "z-site" {
		t.Fatalf("expected sites sorted by id, got %+v", sites)
	}
}
