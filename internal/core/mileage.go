package core

// HMRC approved mileage rates, in pence per mile.
const (
	carRateFirst     = 45
	carRateAfter     = 25
	motorcycleRate   = 24
	bicycleRate      = 20
	carThresholdMile = 10000
)

// MileageClaim computes the approved-rate claim for a trip given the miles
// already claimed for cars/vans in the same tax year. Cars and vans pay 45p
// for the first 10,000 business miles of the year and 25p after; the
// threshold is cumulative across trips, so a trip that straddles it is
// split between the two rates.
func MileageClaim(trip MileageTrip, priorCarMiles float64) Money {
	switch trip.Vehicle {
	case VehicleMotorcycle:
		return penceForMiles(trip.Miles, motorcycleRate)
	case VehicleBicycle:
		return penceForMiles(trip.Miles, bicycleRate)
	}

	remaining := carThresholdMile - priorCarMiles
	if remaining <= 0 {
		return penceForMiles(trip.Miles, carRateAfter)
	}
	if trip.Miles <= remaining {
		return penceForMiles(trip.Miles, carRateFirst)
	}
	first := penceForMiles(remaining, carRateFirst)
	after := penceForMiles(trip.Miles-remaining, carRateAfter)
	return Money{Pence: first.Pence + after.Pence}
}

func penceForMiles(miles float64, rate int64) Money {
	// Round half-up to the nearest penny.
	return Money{Pence: int64(miles*float64(rate) + 0.5)}
}
