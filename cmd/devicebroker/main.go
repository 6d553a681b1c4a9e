// Command devicebroker is an optional embedded MQTT v5 broker that device
// traffic can terminate on directly, instead of (or in addition to) the
// external brokers broker.Session dials out to. It enforces that a
// connecting client's id matches the Common Name on its TLS client
// certificate, and that the Common Name resolves to an enabled Device row,
// adapted from relabs-tech-kurbisio/iot/mqtt/broker.go's
// cert-identity/gmqtt plugin shape — with the digital-twin reporting
// (twin/reports, twin/get) dropped per SPEC_FULL.md's data model, which
// has no twin/shadow entity, together with the twin-key topic ACLs: no
// per-topic subscribe or publish policy is enforced here.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/DrmagicE/gmqtt"
	"github.com/DrmagicE/gmqtt/pkg/packets"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/falcata-iot/edge/core/csql"
	"github.com/falcata-iot/edge/core/logger"
	"github.com/falcata-iot/edge/repository"
)

// Service holds this process's configuration.
type Service struct {
	Postgres   string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	Schema     string `env:"EDGE_SCHEMA,default=iot" description:"the Postgres schema this process owns"`
	ListenAddr string `env:"DEVICEBROKER_LISTEN_ADDR,default=:8883" description:"TLS listen address for device connections"`
	CACertFile string `env:"DEVICEBROKER_CA_CERT,required" description:"CA certificate used to verify device client certs"`
	CertFile   string `env:"DEVICEBROKER_CERT,required" description:"server certificate file"`
	KeyFile    string `env:"DEVICEBROKER_KEY,required" description:"server private key file"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logrus.InfoLevel)

	db := csql.OpenWithSchema(service.Postgres, service.Schema)
	defer db.Close()
	devices := repository.NewDeviceRepository(db)

	b := newBroker(service, devices)
	b.Run()
}

type broker struct {
	p *plugin
}

type plugin struct {
	tlsln net.Listener

	mu        sync.RWMutex
	deviceIDs map[net.Conn]string

	service gmqtt.Server
	devices *repository.DeviceRepository
}

// newBroker builds an unconnected broker listening with mutual-TLS on
// service.ListenAddr.
func newBroker(service *Service, devices *repository.DeviceRepository) *broker {
	crt, err := tls.LoadX509KeyPair(service.CertFile, service.KeyFile)
	if err != nil {
		panic(err)
	}
	caCert, err := os.ReadFile(service.CACertFile)
	if err != nil {
		panic(err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		panic("devicebroker: failed to parse CA certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{crt},
		ClientCAs:    caCertPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
	}
	tlsln, err := tls.Listen("tcp", service.ListenAddr, tlsConfig)
	if err != nil {
		panic(err)
	}

	return &broker{
		p: &plugin{
			tlsln:     tlsln,
			deviceIDs: make(map[net.Conn]string),
			devices:   devices,
		},
	}
}

// Run is blocking: it serves until SIGINT/SIGTERM, then gracefully stops.
func (b *broker) Run() {
	s := gmqtt.NewServer(
		gmqtt.WithTCPListener(b.p.tlsln),
		gmqtt.WithPlugin(b.p),
	)
	s.Run()
	logger.Default().Info("devicebroker: started")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh
	s.Stop(context.Background())
	logger.Default().Info("devicebroker: stopped")
}

func (p *plugin) Load(service gmqtt.Server) error {
	p.service = service
	return nil
}

func (p *plugin) Unload() error { return nil }

func (p *plugin) Name() string { return "devicebroker" }

func (p *plugin) HookWrapper() gmqtt.HookWrapper {
	return gmqtt.HookWrapper{
		OnAcceptWrapper:  p.OnAcceptWrapper,
		OnConnectWrapper: p.OnConnectWrapper,
	}
}

func (p *plugin) deviceIDFromConnection(conn net.Conn) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deviceIDs[conn]
}

// OnAcceptWrapper records the client certificate's Common Name for the
// connection, the identity OnConnectWrapper checks the MQTT client id
// against.
func (p *plugin) OnAcceptWrapper(accept gmqtt.OnAccept) gmqtt.OnAccept {
	return func(ctx context.Context, conn net.Conn) bool {
		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			return accept(ctx, conn)
		}
		if err := tlsConn.Handshake(); err != nil {
			return false
		}
		state := tlsConn.ConnectionState()
		if len(state.VerifiedChains) == 0 || len(state.VerifiedChains[0]) == 0 {
			return false
		}
		commonName := state.VerifiedChains[0][0].Subject.CommonName
		if strings.TrimSpace(commonName) == "" {
			return false
		}

		p.mu.Lock()
		p.deviceIDs[conn] = commonName
		p.mu.Unlock()
		return accept(ctx, conn)
	}
}

// OnConnectWrapper enforces that the MQTT client id matches the
// certificate's Common Name, and that it resolves to an enabled Device
// row — the cert-identity check from the teacher, re-grounded on this
// domain's devices table instead of a bare uuid.Parse.
func (p *plugin) OnConnectWrapper(connect gmqtt.OnConnect) gmqtt.OnConnect {
	return func(ctx context.Context, client gmqtt.Client) uint8 {
		deviceID := p.deviceIDFromConnection(client.Connection())
		clientID := client.OptionsReader().ClientID()
		if clientID != deviceID {
			logger.Default().WithField("client_id", clientID).Warn("devicebroker: connect denied, client id does not match certificate")
			return packets.CodeNotAuthorized
		}

		dev, found, err := p.devices.FindByID(ctx, deviceID)
		if err != nil {
			logger.Default().WithError(err).WithField("device_id", deviceID).Warn("devicebroker: failed to resolve device")
			return packets.CodeNotAuthorized
		}
		if !found || !dev.DeviceEnabled() {
			logger.Default().WithField("device_id", deviceID).Warn("devicebroker: connect denied, device unknown or disabled")
			return packets.CodeNotAuthorized
		}

		logger.Default().WithField("device_id", deviceID).Info("devicebroker: connect")
		return connect(ctx, client)
	}
}
