package model

import "testing"

func TestUnitDispatchable(t *testing.T) {
	u := Unit{Status: UnitAvailable, Battery: 72}
	if !u.Dispatchable(20) {
		t.Fatalf("expected dispatchable")
	}
}

func TestUnitDispatchableLowBattery(t *testing.T) {
	u := Unit{Status: UnitAvailable, Battery: 15}
	if u.Dispatchable(20) {
		t.Fatalf("low battery unit must not be dispatchable")
	}
}

func TestUnitDispatchableReserved(t *testing.T) {
	u := Unit{Status: UnitReserved, Battery: 90}
	if u.Dispatchable(20) {
		t.Fatalf("reserved unit must not be dispatchable")
	}
}

func TestStatusStrings(t *testing.T) {
	cases := map[string]string{
		UnitCharging.String():      "charging",
		RequestExpired.String():    "expired",
		RideEnRoutePickup.String(): "en_route_pickup",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %s got %s", want, got)
		}
	}
}

func TestRideStatusTerminal(t *testing.T) {
	if RideInTransit.Terminal() {
		t.Fatalf("in_transit is not terminal")
	}
	if !RideArrived.Terminal() || !RideCancelled.Terminal() {
		t.Fatalf("arrived and cancelled are terminal")
	}
}
