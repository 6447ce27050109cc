package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/charujain10/smartchair-dispatch/core/model"
)

type rideView struct {
	ID          string                    `json:"id"`
	RequestID   string                    `json:"request_id"`
	RiderID     string                    `json:"rider_id"`
	UnitID      string                    `json:"unit_id"`
	Pickup      string                    `json:"pickup"`
	Destination string                    `json:"destination"`
	Status      string                    `json:"status"`
	Progress    float64                   `json:"progress"`
	Overrides   []model.DestinationChange `json:"overrides,omitempty"`
	Emergency   bool                      `json:"emergency"`
	CreatedAt   string                    `json:"created_at"`
	CompletedAt string                    `json:"completed_at,omitempty"`
}

func viewRide(r model.Ride) rideView {
	v := rideView{
		ID:          r.ID,
		RequestID:   r.RequestID,
		RiderID:     r.RiderID,
		UnitID:      r.UnitID,
		Pickup:      r.Pickup,
		Destination: r.Destination,
		Status:      r.Status.String(),
		Progress:    r.Progress,
		Overrides:   r.Overrides,
		Emergency:   r.Emergency,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !r.CompletedAt.IsZero() {
		v.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.rides.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	v := viewRide(ride)
	// The escalation store is the authority for the emergency flag; archived
	// records keep the flag they carried at completion.
	_, v.Emergency = s.escalations.Open(ride.ID)
	writeJSON(w, http.StatusOK, v)
}

type changeDestinationBody struct {
	Destination string `json:"destination"`
}

func (s *Server) handleChangeDestination(w http.ResponseWriter, r *http.Request) {
	var body changeDestinationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Destination == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("destination is required"))
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.rides.ChangeDestination(id, body.Destination); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	ride, err := s.rides.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, viewRide(ride))
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	if err := s.rides.Cancel(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type raiseEmergencyBody struct {
	Reason string `json:"reason"`
}

type escalationView struct {
	ID           string `json:"id"`
	RideID       string `json:"ride_id"`
	Reason       string `json:"reason"`
	RaisedAt     string `json:"raised_at"`
	Acknowledged bool   `json:"acknowledged"`
}

func viewEscalation(e model.Escalation) escalationView {
	return escalationView{
		ID:           e.ID,
		RideID:       e.RideID,
		Reason:       e.Reason,
		RaisedAt:     e.RaisedAt.UTC().Format(time.RFC3339),
		Acknowledged: e.Acknowledged,
	}
}

func (s *Server) handleRaiseEmergency(w http.ResponseWriter, r *http.Request) {
	var body raiseEmergencyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	esc, err := s.escalations.Raise(mux.Vars(r)["id"], body.Reason)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, viewEscalation(esc))
}

func (s *Server) handleListEscalations(w http.ResponseWriter, _ *http.Request) {
	open := s.escalations.List()
	out := make([]escalationView, 0, len(open))
	for _, e := range open {
		out = append(out, viewEscalation(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAckEscalation(w http.ResponseWriter, r *http.Request) {
	if err := s.escalations.Acknowledge(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRiderHistory(w http.ResponseWriter, r *http.Request) {
	rides, err := s.history.ListByRider(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	out := make([]rideView, 0, len(rides))
	for _, ride := range rides {
		out = append(out, viewRide(ride))
	}
	writeJSON(w, http.StatusOK, out)
}
