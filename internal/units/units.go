// Package units converts radar target speeds for display. Speeds are
// decoded and stored in meters per second.
package units

import "fmt"

// Speed unit names accepted in the client config.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units leave the value in m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Label returns the suffix printed after a speed in targetUnits.
func Label(targetUnits string) string {
	switch targetUnits {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}

// FormatSpeed renders speedMPS in targetUnits with one decimal.
func FormatSpeed(speedMPS float64, targetUnits string) string {
	return fmt.Sprintf("%.1f%s", ConvertSpeed(speedMPS, targetUnits), Label(targetUnits))
}
