package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/charujain10/smartchair-dispatch/core/model"
)

type unitView struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Battery       float64 `json:"battery"`
	Zone          string  `json:"zone"`
	LastHeartbeat string  `json:"last_heartbeat,omitempty"`
}

func viewUnit(u model.Unit) unitView {
	v := unitView{
		ID:      u.ID,
		Status:  u.Status.String(),
		Battery: u.Battery,
		Zone:    u.Zone,
	}
	if !u.LastHeartbeat.IsZero() {
		v.LastHeartbeat = u.LastHeartbeat.UTC().Format(time.RFC3339)
	}
	return v
}

func (s *Server) handleFleetSnapshot(w http.ResponseWriter, _ *http.Request) {
	units := s.fleet.Snapshot()
	out := make([]unitView, 0, len(units))
	for _, u := range units {
		out = append(out, viewUnit(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFleetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Stats())
}

type registerUnitBody struct {
	ID      string  `json:"id"`
	Zone    string  `json:"zone"`
	Battery float64 `json:"battery"`
}

func (s *Server) handleRegisterUnit(w http.ResponseWriter, r *http.Request) {
	var body registerUnitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.ID == "" || body.Zone == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("id and zone are required"))
		return
	}
	u := model.Unit{ID: body.ID, Zone: body.Zone, Battery: body.Battery}
	if err := s.fleet.Register(u); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, viewUnit(u))
}

func (s *Server) handleOutOfService(w http.ResponseWriter, r *http.Request) {
	if err := s.fleet.SetOutOfService(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReturnToService(w http.ResponseWriter, r *http.Request) {
	if err := s.fleet.ReturnToService(mux.Vars(r)["id"]); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type manualAssignBody struct {
	RequestID string `json:"request_id"`
	UnitID    string `json:"unit_id"`
}

func (s *Server) handleManualAssign(w http.ResponseWriter, r *http.Request) {
	var body manualAssignBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.RequestID == "" || body.UnitID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("request_id and unit_id are required"))
		return
	}
	ride, err := s.dispatcher.ManualAssign(body.RequestID, body.UnitID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, viewRide(ride))
}
