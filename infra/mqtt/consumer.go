package mqtt

import (
	"encoding/json"
	"errors"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/charujain10/smartchair-dispatch/core/fleet"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/telemetry"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
)

// Consumer subscribes to the fleet telemetry topic and feeds reports into the
// core handler. Units publish to fleet/<unit-id>/telemetry.
type Consumer struct {
	cli     pahoClient
	handler *telemetry.Handler
	cfg     Config
	log     logger.Logger
}

// NewConsumer connects to the broker and subscribes. The subscription is
// re-established on every reconnect.
func NewConsumer(cfg Config, handler *telemetry.Handler) (*Consumer, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-consumer")
	c := &Consumer{handler: handler, cfg: cfg, log: log}

	opts.OnConnect = func(cli paho.Client) {
		log.Infof("MQTT connected")
		if token := cli.Subscribe(cfg.TelemetryTopic, cfg.qos("telemetry"), c.onTelemetry); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.cli = cli
	return c, nil
}

func (c *Consumer) onTelemetry(_ paho.Client, msg paho.Message) {
	var t model.Telemetry
	if err := json.Unmarshal(msg.Payload(), &t); err != nil {
		c.log.Errorf("failed to decode telemetry on %s: %v", msg.Topic(), err)
		return
	}
	if t.UnitID == "" {
		t.UnitID = unitFromTopic(msg.Topic())
	}
	if err := c.handler.Apply(t); err != nil && !errors.Is(err, fleet.ErrStaleTelemetry) {
		c.log.Warnf("telemetry from %s rejected: %v", t.UnitID, err)
	}
}

// unitFromTopic extracts the unit id from fleet/<unit-id>/telemetry.
func unitFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Disconnect gracefully closes the MQTT connection.
func (c *Consumer) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
