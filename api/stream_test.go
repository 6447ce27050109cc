package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charujain10/smartchair-dispatch/core/model"
)

func TestRideEventStream(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.server.stream.Run(ctx)

	if err := e.fleet.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Terminal 2"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	created := decode[requestView](t, rec)
	e.dispatch.MatchCycle()
	req, _ := e.queue.Get(created.ID)

	ts := httptest.NewServer(e.server)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/rides/" + req.RideID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// give the hub a beat to register the subscriber before publishing
	time.Sleep(50 * time.Millisecond)
	if err := e.telemetry.Apply(model.Telemetry{UnitID: "WC-001", Zone: "Terminal 1", Battery: 85, Timestamp: time.Now()}); err != nil {
		t.Fatalf("telemetry: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Kind    string `json:"kind"`
		Payload struct {
			RideID   string `json:"ride_id"`
			NewState string `json:"new_state"`
		} `json:"payload"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Kind != "ride_status_changed" || frame.Payload.RideID != req.RideID {
		t.Fatalf("unexpected frame %+v", frame)
	}
	if frame.Payload.NewState != "en_route_pickup" {
		t.Fatalf("expected en_route_pickup got %s", frame.Payload.NewState)
	}
}

func TestRideEventStreamUnknownRide(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/rides/missing/events", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}
