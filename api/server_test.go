package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charujain10/smartchair-dispatch/core/archive"
	"github.com/charujain10/smartchair-dispatch/core/dispatch"
	"github.com/charujain10/smartchair-dispatch/core/escalation"
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

type env struct {
	server    *Server
	fleet     *fleet.Registry
	queue     *queue.Queue
	rides     *ride.Machine
	dispatch  *dispatch.Manager
	telemetry *telemetry.Handler
	bus       *eventbus.Bus[events.Event]
}

func newEnv(t *testing.T) *env {
	t.Helper()
	zones := zonemap.Default()
	bus := eventbus.New[events.Event]()
	t.Cleanup(bus.Close)
	reg := fleet.NewRegistry(fleet.Config{}, zones, bus, logger.NopLogger{})
	q := queue.New(queue.Config{}, bus, nil, logger.NopLogger{})
	store := archive.NewMemoryStore()
	rm := ride.NewMachine(ride.Config{}, reg, q, zones, store, bus, nil, logger.NopLogger{})
	d := dispatch.NewManager(dispatch.Config{}, reg, q, rm, nil, logger.NopLogger{})
	esc := escalation.NewStore(rm, bus, nil, logger.NopLogger{})
	hub := NewStreamHub(bus, logger.NopLogger{})
	srv := NewServer(Config{}, reg, q, rm, d, esc, store, hub, logger.NopLogger{})
	return &env{
		server:    srv,
		fleet:     reg,
		queue:     q,
		rides:     rm,
		dispatch:  d,
		telemetry: telemetry.NewHandler(reg, rm, logger.NopLogger{}),
		bus:       bus,
	}
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSubmitAndGetRequest(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{
		RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[requestView](t, rec)
	if created.Status != "pending" {
		t.Fatalf("expected pending got %s", created.Status)
	}

	rec = e.do(t, http.MethodGet, "/api/requests/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/requests/pending", nil)
	pending := decode[[]requestView](t, rec)
	if len(pending) != 1 || pending[0].ID != created.ID {
		t.Fatalf("unexpected pending list %+v", pending)
	}
}

func TestSubmitValidation(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	// second active request for the same rider is rejected
	e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	rec = e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Terminal 1", Destination: "Gate 20"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelPendingRequest(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	created := decode[requestView](t, rec)

	rec = e.do(t, http.MethodPost, "/api/requests/"+created.ID+"/cancel", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/api/requests/"+created.ID+"/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancelling twice should 409, got %d", rec.Code)
	}
}

func TestCancelAssignedRequestCancelsRide(t *testing.T) {
	e := newEnv(t)
	if err := e.fleet.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Terminal 1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	created := decode[requestView](t, rec)
	if got := e.dispatch.MatchCycle(); got != 1 {
		t.Fatalf("expected match, got %d", got)
	}

	rec = e.do(t, http.MethodPost, "/api/requests/"+created.ID+"/cancel", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rec.Code, rec.Body.String())
	}
	u, _ := e.fleet.Get("WC-001")
	if u.Status != model.UnitAvailable {
		t.Fatalf("unit not released after ride cancel: %s", u.Status)
	}
}

func TestRideLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	if err := e.fleet.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Terminal 2"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	created := decode[requestView](t, rec)
	e.dispatch.MatchCycle()

	req, _ := e.queue.Get(created.ID)
	if req.RideID == "" {
		t.Fatal("request not assigned")
	}

	now := time.Now()
	if err := e.telemetry.Apply(model.Telemetry{UnitID: "WC-001", Zone: "Security Check", Battery: 85, Timestamp: now}); err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	rec = e.do(t, http.MethodGet, "/api/rides/"+req.RideID, nil)
	got := decode[rideView](t, rec)
	if got.Status != "in_transit" {
		t.Fatalf("expected in_transit got %s", got.Status)
	}

	rec = e.do(t, http.MethodPost, "/api/rides/"+req.RideID+"/destination", changeDestinationBody{Destination: "Gate C10"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	changed := decode[rideView](t, rec)
	if changed.Destination != "Gate C10" || len(changed.Overrides) != 1 {
		t.Fatalf("override not recorded: %+v", changed)
	}

	if err := e.telemetry.Apply(model.Telemetry{UnitID: "WC-001", Zone: "Gate C10", Battery: 84, Timestamp: now.Add(time.Minute)}); err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	rec = e.do(t, http.MethodGet, "/api/rides/"+req.RideID, nil)
	got = decode[rideView](t, rec)
	if got.Status != "arrived" {
		t.Fatalf("expected arrived got %s", got.Status)
	}

	rec = e.do(t, http.MethodGet, "/api/riders/rider-1/rides", nil)
	history := decode[[]rideView](t, rec)
	if len(history) != 1 || history[0].ID != req.RideID {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestEmergencyEndpoints(t *testing.T) {
	e := newEnv(t)
	if err := e.fleet.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Terminal 1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	created := decode[requestView](t, rec)
	e.dispatch.MatchCycle()
	req, _ := e.queue.Get(created.ID)

	rec = e.do(t, http.MethodPost, "/api/rides/"+req.RideID+"/emergency", raiseEmergencyBody{Reason: "rider pressed SOS"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	esc := decode[escalationView](t, rec)

	rec = e.do(t, http.MethodGet, "/api/escalations", nil)
	open := decode[[]escalationView](t, rec)
	if len(open) != 1 || open[0].ID != esc.ID {
		t.Fatalf("unexpected escalation list %+v", open)
	}

	rec = e.do(t, http.MethodPost, "/api/escalations/"+esc.ID+"/ack", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	r, _ := e.rides.Get(req.RideID)
	if r.Emergency {
		t.Fatal("emergency flag still set after ack")
	}

	rec = e.do(t, http.MethodPost, "/api/rides/missing/emergency", raiseEmergencyBody{Reason: "x"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestEmergencyAckVisibleOnArchivedRide(t *testing.T) {
	e := newEnv(t)
	if err := e.fleet.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Security Check"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	created := decode[requestView](t, rec)
	e.dispatch.MatchCycle()
	req, _ := e.queue.Get(created.ID)

	rec = e.do(t, http.MethodPost, "/api/rides/"+req.RideID+"/emergency", raiseEmergencyBody{Reason: "rider pressed SOS"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	esc := decode[escalationView](t, rec)

	// The ride completes while the escalation is still open; the archived
	// record carries the flag it had at completion.
	now := time.Now()
	if err := e.telemetry.Apply(model.Telemetry{UnitID: "WC-001", Zone: "Security Check", Battery: 85, Timestamp: now}); err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	if err := e.telemetry.Apply(model.Telemetry{UnitID: "WC-001", Zone: "Gate A5", Battery: 84, Timestamp: now.Add(time.Second)}); err != nil {
		t.Fatalf("telemetry: %v", err)
	}

	rec = e.do(t, http.MethodGet, "/api/rides/"+req.RideID, nil)
	got := decode[rideView](t, rec)
	if got.Status != "arrived" || !got.Emergency {
		t.Fatalf("expected arrived ride with open emergency, got %+v", got)
	}

	rec = e.do(t, http.MethodPost, "/api/escalations/"+esc.ID+"/ack", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/rides/"+req.RideID, nil)
	got = decode[rideView](t, rec)
	if got.Emergency {
		t.Fatal("acknowledged emergency still reported on archived ride")
	}
}

func TestFleetEndpoints(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/api/fleet", registerUnitBody{ID: "WC-001", Zone: "Terminal 1", Battery: 88})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/api/fleet", registerUnitBody{ID: "WC-001", Zone: "Terminal 1", Battery: 88})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register should 409, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/fleet", nil)
	units := decode[[]unitView](t, rec)
	if len(units) != 1 || units[0].Status != "available" {
		t.Fatalf("unexpected snapshot %+v", units)
	}

	rec = e.do(t, http.MethodPost, "/api/fleet/WC-001/out-of-service", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	rec = e.do(t, http.MethodGet, "/api/fleet/stats", nil)
	stats := decode[map[string]int](t, rec)
	if stats["out_of_service"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	rec = e.do(t, http.MethodPost, "/api/fleet/WC-001/return-to-service", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
}

func TestManualAssignEndpoint(t *testing.T) {
	e := newEnv(t)
	if err := e.fleet.Register(model.Unit{ID: "WC-001", Battery: 90, Zone: "Gate C10"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := e.do(t, http.MethodPost, "/api/requests", submitRequestBody{RiderID: "rider-1", Pickup: "Security Check", Destination: "Gate A5"})
	created := decode[requestView](t, rec)

	rec = e.do(t, http.MethodPost, "/api/assign", manualAssignBody{RequestID: created.ID, UnitID: "WC-001"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	r := decode[rideView](t, rec)
	if r.UnitID != "WC-001" || r.Status != "assigned" {
		t.Fatalf("unexpected ride %+v", r)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
