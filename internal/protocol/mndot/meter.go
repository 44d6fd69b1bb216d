package mndot

import "strconv"

// MeterRate is the metering rate reported for a ramp meter.
type MeterRate int

const (
	// RateFlash is the non-metering rate.
	RateFlash MeterRate = 0
	// RateCentral is central mode metering.
	RateCentral MeterRate = 1
	// RateTOD is time-of-day metering.
	RateTOD MeterRate = 2
	// RateForcedFlash means metering is disabled.
	RateForcedFlash MeterRate = 7
)

func (r MeterRate) IsValid() bool { return r >= RateFlash && r <= RateForcedFlash }

func (r MeterRate) IsMetering() bool { return r > RateFlash && r < RateForcedFlash }

func (r MeterRate) IsCentralControl() bool { return r == RateForcedFlash || r == RateCentral }

func (r MeterRate) String() string {
	switch r {
	case RateFlash:
		return "flash"
	case RateCentral:
		return "central"
	case RateTOD:
		return "tod"
	case RateForcedFlash:
		return "forced_flash"
	}
	if r.IsValid() {
		return "rate " + strconv.Itoa(int(r))
	}
	return "invalid"
}
