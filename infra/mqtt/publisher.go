package mqtt

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

// EventPublisher drains the bus and publishes notifications to the broker.
// Ordinary events are batched per kind; priority events skip the batch and go
// out immediately at QoS 1 so an emergency never waits behind routine status
// churn.
type EventPublisher struct {
	cli pahoClient
	bus *eventbus.Bus[events.Event]
	cfg Config
	log logger.Logger

	batch []envelope
}

type envelope struct {
	Kind    string       `json:"kind"`
	Payload events.Event `json:"payload"`
}

// NewEventPublisher connects to the broker. Call Run to start draining.
func NewEventPublisher(cfg Config, bus *eventbus.Bus[events.Event]) (*EventPublisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-publisher")
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &EventPublisher{cli: cli, bus: bus, cfg: cfg, log: log}, nil
}

// Run drains the bus until the context is cancelled, then flushes what is
// left and disconnects.
func (p *EventPublisher) Run(ctx context.Context) {
	sub := p.bus.Subscribe()
	defer p.bus.Unsubscribe(sub)
	ticker := time.NewTicker(time.Duration(p.cfg.BatchMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.flush()
			p.Disconnect()
			return
		case ev, ok := <-sub:
			if !ok {
				p.flush()
				return
			}
			p.handle(ev)
		case <-ticker.C:
			p.flush()
		}
	}
}

func (p *EventPublisher) handle(ev events.Event) {
	if ev.Priority() {
		p.publish(p.cfg.EventTopic+"/priority", p.cfg.qos("emergency"), []envelope{{Kind: ev.Kind(), Payload: ev}})
		return
	}
	p.batch = append(p.batch, envelope{Kind: ev.Kind(), Payload: ev})
	if len(p.batch) >= p.cfg.BatchSize {
		p.flush()
	}
}

func (p *EventPublisher) flush() {
	if len(p.batch) == 0 {
		return
	}
	p.publish(p.cfg.EventTopic, p.cfg.qos("events"), p.batch)
	p.batch = nil
}

func (p *EventPublisher) publish(topic string, qos byte, batch []envelope) {
	payload, err := json.Marshal(batch)
	if err != nil {
		p.log.Errorf("failed to encode events: %v", err)
		return
	}
	token := p.cli.Publish(topic, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Errorf("publish to %s failed: %v", topic, err)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *EventPublisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
