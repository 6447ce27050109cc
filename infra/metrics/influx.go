package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/charujain10/smartchair-dispatch/core/metrics"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
)

// InfluxSink writes dispatch and ride events to an InfluxDB instance using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and returns a
// NopSink if the health check fails, so a missing dashboard never blocks
// dispatch.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordMatch writes each match attempt as a point.
func (s *InfluxSink) RecordMatch(results []coremetrics.MatchResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range results {
		p := write.NewPointWithMeasurement("dispatch_match").
			AddTag("request_id", r.RequestID).
			AddTag("unit_id", r.UnitID).
			AddTag("pickup", r.Pickup).
			AddTag("matched", strconv.FormatBool(r.Matched)).
			AddField("candidates", r.Candidates).
			AddField("latency_ms", r.Latency.Seconds()*1000).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordRideTransition writes a ride lifecycle change.
func (s *InfluxSink) RecordRideTransition(tr coremetrics.RideTransition) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("ride_transition").
		AddTag("ride_id", tr.RideID).
		AddTag("from", tr.From).
		AddTag("to", tr.To).
		AddField("count", 1).
		SetTime(tr.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFleetSize writes a snapshot of the dispatchable pool.
func (s *InfluxSink) RecordFleetSize(available, total int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_size").
		AddField("available", available).
		AddField("total", total).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRequestExpired writes an aged-out request with its wait time.
func (s *InfluxSink) RecordRequestExpired(requestID string, waited time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("request_expired").
		AddTag("request_id", requestID).
		AddField("waited_s", waited.Seconds()).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordEmergency writes a raised escalation.
func (s *InfluxSink) RecordEmergency(rideID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("emergency_raised").
		AddTag("ride_id", rideID).
		AddField("count", 1).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
