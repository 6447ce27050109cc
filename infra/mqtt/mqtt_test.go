package mqtt

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/charujain10/smartchair-dispatch/core/archive"
	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/core/fleet"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/queue"
	"github.com/charujain10/smartchair-dispatch/core/ride"
	"github.com/charujain10/smartchair-dispatch/core/telemetry"
	"github.com/charujain10/smartchair-dispatch/core/zonemap"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	handlers  map[string]paho.MessageHandler
	published []struct {
		topic   string
		qos     byte
		payload []byte
	}
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.published = append(m.published, struct {
		topic   string
		qos     byte
		payload []byte
	}{topic, qos, payload.([]byte)})
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	if m.handlers == nil {
		m.handlers = make(map[string]paho.MessageHandler)
	}
	m.handlers[topic] = cb
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

func withMockClient(t *testing.T) *mockClient {
	t.Helper()
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
	return mc
}

func newTelemetryHandler(t *testing.T) (*telemetry.Handler, *fleet.Registry) {
	t.Helper()
	zones := zonemap.Default()
	bus := eventbus.New[events.Event]()
	t.Cleanup(bus.Close)
	reg := fleet.NewRegistry(fleet.Config{}, zones, bus, logger.NopLogger{})
	q := queue.New(queue.Config{}, bus, nil, logger.NopLogger{})
	rm := ride.NewMachine(ride.Config{}, reg, q, zones, archive.NewMemoryStore(), bus, nil, logger.NopLogger{})
	return telemetry.NewHandler(reg, rm, logger.NopLogger{}), reg
}

func TestConsumerSubscribesAndApplies(t *testing.T) {
	mc := withMockClient(t)
	handler, reg := newTelemetryHandler(t)
	if err := reg.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Terminal 1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg := Config{Broker: "tcp://localhost:1883", QoS: map[string]byte{"telemetry": 1}}
	if _, err := NewConsumer(cfg, handler); err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if len(mc.subscribed) != 1 || mc.subscribed[0].topic != "fleet/+/telemetry" || mc.subscribed[0].qos != 1 {
		t.Fatalf("unexpected subscription %+v", mc.subscribed)
	}

	payload := fmt.Sprintf(`{"zone":"Security Check","battery":84,"timestamp":%q}`, time.Now().Format(time.RFC3339))
	mc.handlers["fleet/+/telemetry"](nil, mockMessage{topic: "fleet/WC-001/telemetry", p: []byte(payload)})

	u, err := reg.Get("WC-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Zone != "Security Check" || u.Battery != 84 {
		t.Fatalf("telemetry not applied: %+v", u)
	}
}

func TestConsumerIgnoresGarbage(t *testing.T) {
	mc := withMockClient(t)
	handler, reg := newTelemetryHandler(t)
	if err := reg.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Terminal 1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := NewConsumer(Config{Broker: "tcp://localhost:1883"}, handler); err != nil {
		t.Fatalf("consumer: %v", err)
	}
	mc.handlers["fleet/+/telemetry"](nil, mockMessage{topic: "fleet/WC-001/telemetry", p: []byte("not json")})
	u, _ := reg.Get("WC-001")
	if u.Zone != "Terminal 1" {
		t.Fatalf("garbage payload moved the unit: %+v", u)
	}
}

func TestPublisherBatchesEvents(t *testing.T) {
	mc := withMockClient(t)
	bus := eventbus.New[events.Event]()
	defer bus.Close()

	cfg := Config{Broker: "tcp://localhost:1883", BatchSize: 2, QoS: map[string]byte{"events": 0, "emergency": 1}}
	p, err := NewEventPublisher(cfg, bus)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}

	p.handle(events.RideStatusChanged{RideID: "r1", NewState: "assigned"})
	if len(mc.published) != 0 {
		t.Fatal("batch flushed early")
	}
	p.handle(events.RideStatusChanged{RideID: "r1", NewState: "en_route_pickup"})
	if len(mc.published) != 1 {
		t.Fatalf("expected one batch publish got %d", len(mc.published))
	}
	var batch []struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(mc.published[0].payload, &batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(batch) != 2 || batch[0].Kind != "ride_status_changed" {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if mc.published[0].topic != "dispatch/events" {
		t.Fatalf("unexpected topic %s", mc.published[0].topic)
	}
}

func TestPublisherPriorityBypassesBatch(t *testing.T) {
	mc := withMockClient(t)
	bus := eventbus.New[events.Event]()
	defer bus.Close()

	cfg := Config{Broker: "tcp://localhost:1883", BatchSize: 10, QoS: map[string]byte{"emergency": 1}}
	p, err := NewEventPublisher(cfg, bus)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}

	p.handle(events.RideStatusChanged{RideID: "r1", NewState: "assigned"})
	p.handle(events.EmergencyRaised{RideID: "r1", Reason: "SOS"})
	if len(mc.published) != 1 {
		t.Fatalf("priority event must publish immediately, got %d", len(mc.published))
	}
	got := mc.published[0]
	if got.topic != "dispatch/events/priority" || got.qos != 1 {
		t.Fatalf("unexpected priority publish %+v", got)
	}

	p.flush()
	if len(mc.published) != 2 {
		t.Fatal("buffered event lost")
	}
}
