// Package fleet holds the authoritative state of every mobility unit. All
// mutation goes through the registry; reservation is atomic per unit so a
// ride can never double-book a unit.
package fleet

import (
	"sort"
	"sync"
	"time"

	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/core/logger"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/zonemap"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

// Config defines fleet-related settings.
type Config struct {
	// BatteryFloor excludes units below this charge percentage from matching.
	BatteryFloor float64 `json:"battery_floor"`
	// Zones overrides the built-in facility adjacency when non-empty.
	Zones [][2]string `json:"zones"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.BatteryFloor <= 0 {
		c.BatteryFloor = 20
	}
}

type trackedUnit struct {
	mu sync.Mutex
	u  model.Unit
}

// Registry is the in-memory unit store. The outer lock only guards the map;
// unit state is guarded per entity so unrelated units never contend.
type Registry struct {
	mu    sync.RWMutex
	units map[string]*trackedUnit
	zones *zonemap.Map
	floor float64
	log   logger.Logger
	bus   *eventbus.Bus[events.Event]
}

// NewRegistry creates an empty registry using the given zone map for
// nearest-first ordering.
func NewRegistry(cfg Config, zones *zonemap.Map, bus *eventbus.Bus[events.Event], log logger.Logger) *Registry {
	cfg.SetDefaults()
	return &Registry{
		units: make(map[string]*trackedUnit),
		zones: zones,
		floor: cfg.BatteryFloor,
		log:   log,
		bus:   bus,
	}
}

// Register adds a unit at fleet onboarding.
func (r *Registry) Register(u model.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[u.ID]; ok {
		return ErrDuplicateUnit
	}
	r.units[u.ID] = &trackedUnit{u: u}
	r.log.Infof("registered unit %s in %s", u.ID, u.Zone)
	return nil
}

func (r *Registry) lookup(id string) (*trackedUnit, error) {
	r.mu.RLock()
	tu, ok := r.units[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return tu, nil
}

// Get returns a copy of the unit.
func (r *Registry) Get(id string) (model.Unit, error) {
	tu, err := r.lookup(id)
	if err != nil {
		return model.Unit{}, err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	return tu.u, nil
}

// UpdateTelemetry applies a battery/location report. Reports older than the
// last applied one are discarded with ErrStaleTelemetry; the telemetry feed
// is at-least-once so duplicates are routine, not errors.
func (r *Registry) UpdateTelemetry(t model.Telemetry) (model.Unit, error) {
	tu, err := r.lookup(t.UnitID)
	if err != nil {
		return model.Unit{}, err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	if !t.Timestamp.After(tu.u.LastHeartbeat) {
		return tu.u, ErrStaleTelemetry
	}
	wasDispatchable := tu.u.Battery >= r.floor
	tu.u.Battery = t.Battery
	tu.u.Zone = t.Zone
	tu.u.LastHeartbeat = t.Timestamp
	if wasDispatchable && t.Battery < r.floor {
		r.publish(events.LowBattery{UnitID: tu.u.ID, Battery: t.Battery, Zone: t.Zone, Timestamp: t.Timestamp})
	}
	return tu.u, nil
}

// Reserve atomically claims an available unit. Exactly one concurrent caller
// succeeds; everyone else gets ErrAlreadyReserved.
func (r *Registry) Reserve(id string) error {
	tu, err := r.lookup(id)
	if err != nil {
		return err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	if tu.u.Status != model.UnitAvailable {
		return ErrAlreadyReserved
	}
	tu.u.Status = model.UnitReserved
	return nil
}

// Release returns a reserved or in-service unit to the available pool.
// Out-of-service units stay out of service.
func (r *Registry) Release(id string) error {
	tu, err := r.lookup(id)
	if err != nil {
		return err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	switch tu.u.Status {
	case model.UnitReserved, model.UnitInService:
		tu.u.Status = model.UnitAvailable
	}
	return nil
}

// MarkInService flags a reserved unit as carrying a rider.
func (r *Registry) MarkInService(id string) error {
	tu, err := r.lookup(id)
	if err != nil {
		return err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	if tu.u.Status == model.UnitReserved {
		tu.u.Status = model.UnitInService
	}
	return nil
}

// SetOutOfService soft-deletes a unit. Only explicit administrative action
// removes a unit from the fleet, never dispatch logic.
func (r *Registry) SetOutOfService(id string) error {
	tu, err := r.lookup(id)
	if err != nil {
		return err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	tu.u.Status = model.UnitOutOfService
	r.log.Warnf("unit %s taken out of service", id)
	return nil
}

// ReturnToService makes an out-of-service or charging unit available again.
func (r *Registry) ReturnToService(id string) error {
	tu, err := r.lookup(id)
	if err != nil {
		return err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	switch tu.u.Status {
	case model.UnitOutOfService, model.UnitCharging:
		tu.u.Status = model.UnitAvailable
	}
	return nil
}

// SetCharging docks a unit for charging. Reserved and in-service units cannot
// be docked.
func (r *Registry) SetCharging(id string) error {
	tu, err := r.lookup(id)
	if err != nil {
		return err
	}
	tu.mu.Lock()
	defer tu.mu.Unlock()
	if tu.u.Status == model.UnitAvailable {
		tu.u.Status = model.UnitCharging
	}
	return nil
}

// ListAvailable returns dispatchable units ordered nearest-first relative to
// the given zone, ties broken by unit id ascending. Units in unknown or
// unreachable zones sort last. An empty zone yields pure id order.
func (r *Registry) ListAvailable(zone string) []model.Unit {
	units := r.snapshot(func(u model.Unit) bool { return u.Dispatchable(r.floor) })
	if zone == "" {
		sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
		return units
	}
	sort.Slice(units, func(i, j int) bool {
		di := r.zones.Distance(units[i].Zone, zone)
		dj := r.zones.Distance(units[j].Zone, zone)
		if di != dj {
			return di < dj
		}
		return units[i].ID < units[j].ID
	})
	return units
}

// Snapshot returns every unit ordered by id, for the operator boundary.
func (r *Registry) Snapshot() []model.Unit {
	units := r.snapshot(func(model.Unit) bool { return true })
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

// Stats summarises the fleet by status for the admin dashboard.
func (r *Registry) Stats() map[string]int {
	stats := make(map[string]int)
	for _, u := range r.Snapshot() {
		stats[u.Status.String()]++
	}
	return stats
}

func (r *Registry) snapshot(keep func(model.Unit) bool) []model.Unit {
	r.mu.RLock()
	tracked := make([]*trackedUnit, 0, len(r.units))
	for _, tu := range r.units {
		tracked = append(tracked, tu)
	}
	r.mu.RUnlock()
	units := make([]model.Unit, 0, len(tracked))
	for _, tu := range tracked {
		tu.mu.Lock()
		u := tu.u
		tu.mu.Unlock()
		if keep(u) {
			units = append(units, u)
		}
	}
	return units
}

func (r *Registry) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

// BatteryFloor exposes the configured dispatch battery threshold.
func (r *Registry) BatteryFloor() float64 { return r.floor }

// Heartbeat returns the last applied telemetry timestamp for a unit.
func (r *Registry) Heartbeat(id string) (time.Time, error) {
	u, err := r.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	return u.LastHeartbeat, nil
}
