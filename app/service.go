// Package app assembles the dispatch engine from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/charujain10/smartchair-dispatch/api"
	"github.com/charujain10/smartchair-dispatch/config"
	corearchive "github.com/charujain10/smartchair-dispatch/core/archive"
	"github.com/charujain10/smartchair-dispatch/core/dispatch"
	"github.com/charujain10/smartchair-dispatch/core/escalation"
	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/core/fleet"
	coremetrics "github.com/charujain10/smartchair-dispatch/core/metrics"
	"github.com/charujain10/smartchair-dispatch/core/queue"
	"github.com/charujain10/smartchair-dispatch/core/ride"
	"github.com/charujain10/smartchair-dispatch/core/telemetry"
	"github.com/charujain10/smartchair-dispatch/core/zonemap"
	infraarchive "github.com/charujain10/smartchair-dispatch/infra/archive"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
	"github.com/charujain10/smartchair-dispatch/infra/metrics"
	"github.com/charujain10/smartchair-dispatch/infra/mqtt"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

// Service owns every long-running component and their shared wiring.
type Service struct {
	Fleet       *fleet.Registry
	Queue       *queue.Queue
	Rides       *ride.Machine
	Dispatcher  *dispatch.Manager
	Escalations *escalation.Store
	Telemetry   *telemetry.Handler

	server   *api.Server
	stream   *api.StreamHub
	bus      *eventbus.Bus[events.Event]
	consumer *mqtt.Consumer
	emitter  *mqtt.EventPublisher
	archive  interface{ Close() }
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	log := logger.New("service")

	zones := zonemap.Default()
	if len(cfg.Fleet.Zones) > 0 {
		zones = zonemap.New(cfg.Fleet.Zones)
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxURL != "" {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.MetricsSink
	switch len(sinks) {
	case 0:
		sink = coremetrics.NopSink{}
	case 1:
		sink = sinks[0]
	default:
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New[events.Event]()
	svc := &Service{bus: bus, log: log}

	var store corearchive.Store
	if cfg.Archive.DSN != "" {
		pg, err := infraarchive.NewPostgresStore(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("ride archive: %w", err)
		}
		store = pg
		svc.archive = pg
	} else {
		store = corearchive.NewMemoryStore()
	}

	reg := fleet.NewRegistry(cfg.Fleet, zones, bus, logger.New("fleet"))
	q := queue.New(cfg.Queue, bus, sink, logger.New("queue"))
	rides := ride.NewMachine(cfg.Ride, reg, q, zones, store, bus, sink, logger.New("rides"))
	dispatcher := dispatch.NewManager(cfg.Dispatch, reg, q, rides, sink, logger.New("dispatch"))
	escalations := escalation.NewStore(rides, bus, sink, logger.New("escalation"))
	handler := telemetry.NewHandler(reg, rides, logger.New("telemetry"))

	if cfg.MQTT.Broker != "" {
		consumer, err := mqtt.NewConsumer(cfg.MQTT, handler)
		if err != nil {
			return nil, fmt.Errorf("mqtt consumer: %w", err)
		}
		svc.consumer = consumer
		emitter, err := mqtt.NewEventPublisher(cfg.MQTT, bus)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.emitter = emitter
	}

	stream := api.NewStreamHub(bus, logger.New("stream"))
	server := api.NewServer(cfg.HTTP, reg, q, rides, dispatcher, escalations, store, stream, logger.New("http"))

	svc.Fleet = reg
	svc.Queue = q
	svc.Rides = rides
	svc.Dispatcher = dispatcher
	svc.Escalations = escalations
	svc.Telemetry = handler
	svc.server = server
	svc.stream = stream
	return svc, nil
}

// Run starts every loop and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Queue.Run(ctx)
	go s.Rides.Run(ctx)
	go s.Dispatcher.Run(ctx)
	go s.stream.Run(ctx)
	if s.emitter != nil {
		go s.emitter.Run(ctx)
	}
	err := s.server.Run(ctx)
	s.Close()
	return err
}

// Close releases connections held by the service.
func (s *Service) Close() {
	if s.consumer != nil {
		s.consumer.Disconnect()
	}
	if s.archive != nil {
		s.archive.Close()
	}
	s.bus.Close()
}
