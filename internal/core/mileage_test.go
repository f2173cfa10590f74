package core

import "testing"

func TestMileageClaim(t *testing.T) {
	cases := []struct {
		name       string
		vehicle    VehicleType
		miles      float64
		priorMiles float64
		want       int64
	}{
		{"car under threshold", VehicleCar, 100, 0, 4500},
		{"car at 45p up to 10k", VehicleCar, 10000, 0, 450000},
		{"car after threshold", VehicleCar, 100, 10000, 2500},
		{"car straddles threshold", VehicleCar, 200, 9900, 100*45 + 100*25},
		{"motorcycle flat 24p", VehicleMotorcycle, 100, 0, 2400},
		{"motorcycle ignores prior miles", VehicleMotorcycle, 100, 20000, 2400},
		{"bicycle flat 20p", VehicleBicycle, 50, 0, 1000},
		{"fractional miles round half-up", VehicleCar, 10.5, 0, 473}, // 472.5p
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trip := MileageTrip{Vehicle: tc.vehicle, Miles: tc.miles}
			got := MileageClaim(trip, tc.priorMiles)
			if got.Pence != tc.want {
				t.Fatalf("expected %d pence, got %d", tc.want, got.Pence)
			}
		})
	}
}
