// Command edge-server is the process wiring for the IoT edge server:
// config via envdecode, a Postgres-backed repository layer, the Device
// Manager/Topology Updater/Command Dispatcher trio, the chat and
// MQTT-gateway WebSocket rooms, and the HTTP surface, grounded on
// relabs-tech-kurbisio/services/fleet/fleet.go's wiring shape.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/falcata-iot/edge/access"
	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/core/logger"
	"github.com/falcata-iot/edge/core/registry"
	"github.com/falcata-iot/edge/devicemgr"
	"github.com/falcata-iot/edge/dispatcher"
	"github.com/falcata-iot/edge/domain"
	"github.com/falcata-iot/edge/httpapi"
	"github.com/falcata-iot/edge/repository"
	"github.com/falcata-iot/edge/topology"
	"github.com/falcata-iot/edge/wsroom"
)

// Service holds this process's configuration.
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres      string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	Schema        string `env:"EDGE_SCHEMA,default=iot" description:"the Postgres schema this process owns"`
	ListenAddr    string `env:"EDGE_LISTEN_ADDR,default=:3000" description:"HTTP listen address"`
	LogLevel      string `env:"EDGE_LOG_LEVEL,default=info" description:"logrus level"`
	JWTSecret     string `env:"EDGE_JWT_SECRET,required" description:"HMAC secret for issued access tokens"`
	JWTIssuer     string `env:"EDGE_JWT_ISSUER,default=edge-server" description:"JWT iss claim"`
	JWTAudience   string `env:"EDGE_JWT_AUDIENCE,default=edge-clients" description:"JWT aud claim"`
	EquipmentKey  string `env:"EDGE_EQUIPMENT_KEY" description:"shared secret gating POST /devices/register; empty disables self-registration"`
	CommandLimit  int    `env:"EDGE_COMMAND_DISPATCH_LIMIT,default=50" description:"max commands dispatched per sweep"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	level, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.InitLogger(level)

	db := csql.OpenWithSchema(service.Postgres, service.Schema)
	defer db.Close()

	tenants := repository.NewTenantRepository(db)
	users := repository.NewUserRepository(db)
	sites := repository.NewSiteRepository(db)
	zones := repository.NewZoneRepository(db)
	servers := repository.NewServerRepository(db)
	devices := repository.NewDeviceRepository(db)
	topics := repository.NewTopicRepository(db)
	commands := repository.NewCommandRepository(db)
	events := repository.NewEventRepository(db)

	issuer := access.NewIssuer(service.JWTSecret, service.JWTIssuer, service.JWTAudience)
	guard := access.NewGuard(issuer, func() bool { return true })
	bootstrapTokens := registry.New(db).Accessor("equipment_bootstrap")

	manager := devicemgr.NewManager(sites, zones, servers, devices, topics, events)

	// gatewayRooms is populated only after the sessions it is keyed by
	// exist, but both handlers below must be installed before ReloadAll
	// so the first generation of broker Sessions is built with them; each
	// handler closes over the map variable itself; by the time a real
	// PUBLISH or disconnect can occur, the loop below has populated it.
	gatewayRooms := make(map[string]*wsroom.Room)
	manager.SetPublishHandler(func(packetID uint16, topic string, payload []byte) {
		for _, room := range gatewayRooms {
			room.RelayPublish(packetID, topic, payload)
		}
	})
	manager.SetDisconnectHandler(func(serverID string) {
		if room, ok := gatewayRooms[serverID]; ok {
			room.MarkDisconnected()
		}
	})

	ctx := context.Background()
	if err := manager.ReloadAll(ctx); err != nil {
		log.Fatalf("initial reload failed: %v", err)
	}
	manager.SyncAllMqttDevices()

	chatRoom := wsroom.NewChatRoom()
	chatRoom.Start()

	opsRoom := wsroom.NewChatRoom()
	opsRoom.Start()

	for _, srv := range manager.Registry().AllServers() {
		if srv.ServerProtocol() != domain.ProtocolMqtt {
			continue
		}
		sess, ok := manager.Session(srv.ServerID())
		if !ok {
			continue
		}
		room := wsroom.NewGatewayRoom(sess)
		room.Start()
		gatewayRooms[srv.ServerID()] = room
	}

	roomLister := roomMap{"chat": chatRoom, "ops": opsRoom}
	for id, room := range gatewayRooms {
		roomLister["gateway/"+id] = room
	}

	updater := topology.NewUpdater(manager, opsRoom)
	dispatch := dispatcher.NewDispatcher(commands, events, manager, opsRoom)

	api := httpapi.NewAPI(tenants, users, devices, issuer, guard, service.EquipmentKey, bootstrapTokens, roomLister, chatRoom, opsRoom, gatewayRooms)
	router := api.Router()

	go func() {
		if err := updater.Start(ctx, db); err != nil {
			logger.Default().WithError(err).Warn("topology updater stopped")
		}
	}()
	go func() {
		if err := dispatch.Start(ctx, db, service.CommandLimit); err != nil {
			logger.Default().WithError(err).Warn("command dispatcher stopped")
		}
	}()

	logger.Default().WithField("addr", service.ListenAddr).Info("edge-server: listening")
	if err := http.ListenAndServe(service.ListenAddr, router); err != nil {
		log.Fatal(fmt.Errorf("http server: %w", err))
	}
}

// roomMap is the trivial RoomLister implementation /debug/rooms walks.
type roomMap map[string]*wsroom.Room

func (m roomMap) Rooms() map[string]*wsroom.Room { return m }
