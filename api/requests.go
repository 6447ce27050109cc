package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/queue"
)

type submitRequestBody struct {
	RiderID     string `json:"rider_id"`
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
}

type requestView struct {
	ID          string `json:"id"`
	RiderID     string `json:"rider_id"`
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
	Status      string `json:"status"`
	RideID      string `json:"ride_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func viewRequest(r model.Request) requestView {
	return requestView{
		ID:          r.ID,
		RiderID:     r.RiderID,
		Pickup:      r.Pickup,
		Destination: r.Destination,
		Status:      r.Status.String(),
		RideID:      r.RideID,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body submitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.RiderID == "" || body.Pickup == "" || body.Destination == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("rider_id, pickup and destination are required"))
		return
	}
	req, err := s.queue.Submit(body.RiderID, body.Pickup, body.Destination)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, viewRequest(req))
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.queue.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, viewRequest(req))
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, _ *http.Request) {
	pending := s.queue.PeekPending()
	out := make([]requestView, 0, len(pending))
	for _, req := range pending {
		out = append(out, viewRequest(req))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCancelRequest cancels a pending request, or redirects the
// cancellation through the ride when the request was already assigned.
func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.queue.Cancel(id)
	if errors.Is(err, queue.ErrAssigned) {
		err = s.rides.CancelByRequest(id)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
