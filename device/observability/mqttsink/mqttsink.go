// Package mqttsink fans engine events out to an MQTT topic as a
// JSON-encoded summary, for an external dashboard. It is an optional,
// peripheral events.Sink per §6 — an engine never blocks on it.
//
// Grounded on kabili207-meshcore-go/transport/mqtt/mqtt.go's Config and
// client-option wiring, repurposed here as an events-out publisher instead
// of the packet wire transport itself (out of scope for this engine).
package mqttsink

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dronemesh/relaynode/core/events"
	"github.com/dronemesh/relaynode/core/proto"
)

const (
	// DefaultTopic is the default MQTT topic events are published to.
	DefaultTopic = "relaynode/events"
	// DefaultQueueSize bounds the internal publish queue.
	DefaultQueueSize = 256
)

// Config holds the configuration for an MQTT events.Sink.
type Config struct {
	// Broker is the MQTT broker URL (e.g. "tcp://broker.example.com:1883").
	Broker string
	// ClientID is the MQTT client identifier. If empty, a random one is
	// generated.
	ClientID string
	// Topic events are published to. Defaults to DefaultTopic.
	Topic string
	// QueueSize bounds the internal publish queue. Defaults to
	// DefaultQueueSize. Emit drops events once the queue is full rather
	// than block the caller.
	QueueSize int
	// Logger for sink events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// summary is the JSON shape published for each event.
type summary struct {
	Kind       string         `json:"kind"`
	SessionID  uint64         `json:"session_id"`
	PacketKind string         `json:"packet_kind"`
	Hops       []proto.NodeID `json:"hops"`
}

// Sink publishes a JSON summary of every PacketSent/Shortcut event to an
// MQTT topic. Emit is non-blocking: events are dropped if the internal
// queue is full, per the Sink contract.
type Sink struct {
	cfg       Config
	log       *slog.Logger
	client    paho.Client
	queue     chan events.Event
	done      chan struct{}
	connected bool
}

var _ events.Sink = (*Sink)(nil)

// New constructs a Sink without connecting. Call Start to connect to the
// broker before use.
func New(cfg Config) *Sink {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		cfg:  cfg,
		log:  logger.WithGroup("mqttsink"),
		done: make(chan struct{}),
	}
}

// Start connects to the configured broker and begins the publish loop.
func (s *Sink) Start() error {
	if s.cfg.Broker == "" {
		return errors.New("mqttsink: broker URL is required")
	}

	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = "relaynode-events-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second)

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("mqttsink: connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqttsink: connecting to broker: %w", token.Error())
	}

	s.queue = make(chan events.Event, s.cfg.QueueSize)
	s.connected = true
	go s.run()
	return nil
}

// Emit queues e for publishing. It never blocks: if the queue is full, or
// the sink has not connected yet, the event is dropped. A drop on a full
// queue is logged at debug level; a drop before Start is silent.
func (s *Sink) Emit(e events.Event) {
	if !s.connected {
		return
	}
	select {
	case s.queue <- e:
	default:
		s.log.Debug("dropping event, publish queue full", "kind", e.Kind)
	}
}

// Close disconnects from the broker and stops the publish loop.
func (s *Sink) Close() error {
	if !s.connected {
		return nil
	}
	close(s.done)
	s.client.Disconnect(250)
	return nil
}

func (s *Sink) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			s.publish(e)
		}
	}
}

func (s *Sink) publish(e events.Event) {
	sum := summary{
		Kind:       e.Kind.String(),
		SessionID:  e.Packet.SessionID,
		PacketKind: packetKindString(e.Packet.Kind),
		Hops:       e.Packet.Header.Hops,
	}
	data, err := json.Marshal(sum)
	if err != nil {
		s.log.Error("failed to marshal event summary", "error", err)
		return
	}
	token := s.client.Publish(s.cfg.Topic, 0, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		s.log.Warn("timeout publishing event summary")
		return
	}
	if err := token.Error(); err != nil {
		s.log.Warn("failed to publish event summary", "error", err)
	}
}

func packetKindString(k proto.PayloadKind) string {
	switch k {
	case proto.PayloadFragment:
		return "Fragment"
	case proto.PayloadAck:
		return "Ack"
	case proto.PayloadNack:
		return "Nack"
	case proto.PayloadFloodRequest:
		return "FloodRequest"
	case proto.PayloadFloodResponse:
		return "FloodResponse"
	default:
		return "Unknown"
	}
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
