// Package telemetry routes unit position reports into the fleet registry and
// the ride machine. Transport adapters (MQTT, HTTP) decode into
// model.Telemetry and hand off here.
package telemetry

import (
	"errors"

	"github.com/charujain10/smartchair-dispatch/core/fleet"
	"github.com/charujain10/smartchair-dispatch/core/logger"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/ride"
)

// Handler applies telemetry in fleet-then-ride order so ride progress always
// reads the zone the registry just accepted.
type Handler struct {
	fleet *fleet.Registry
	rides *ride.Machine
	log   logger.Logger
}

func NewHandler(reg *fleet.Registry, rides *ride.Machine, log logger.Logger) *Handler {
	return &Handler{fleet: reg, rides: rides, log: log}
}

// Apply updates the unit and, when the unit carries a ride, advances it.
// Reports from unknown units and reports older than the last accepted one are
// dropped.
func (h *Handler) Apply(t model.Telemetry) error {
	if _, err := h.fleet.UpdateTelemetry(t); err != nil {
		switch {
		case errors.Is(err, fleet.ErrStaleTelemetry):
			h.log.Debugf("dropping stale telemetry from unit %s", t.UnitID)
		case errors.Is(err, fleet.ErrNotFound):
			h.log.Warnf("telemetry from unknown unit %s", t.UnitID)
		default:
			h.log.Errorf("telemetry from unit %s: %v", t.UnitID, err)
		}
		return err
	}
	h.rides.ApplyTelemetry(t)
	return nil
}
