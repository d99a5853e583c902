package payload

import "fmt"

// normalizeDistanceMeters converts a distance reading of the given
// unit into canonical meters. The accepted alternates and their
// factors are taken directly from the HealthKit unit strings the
// mobile export dialect uses.
func normalizeDistanceMeters(value float64, unit string) (float64, error) {
	switch unit {
	case "m", "meter", "meters":
		return value, nil
	case "km", "kilometer", "kilometers":
		return value * 1000, nil
	case "mi", "mile", "miles":
		return value * 1609.34, nil
	case "ft", "foot", "feet":
		return value * 0.3048, nil
	default:
		return 0, fmt.Errorf("payload: unrecognized distance unit %q", unit)
	}
}

// normalizeEnergyKcal converts an energy reading into canonical
// kilocalories.
func normalizeEnergyKcal(value float64, unit string) (float64, error) {
	switch unit {
	case "kcal", "kilocalorie", "kilocalories", "Cal", "cal":
		return value, nil
	case "kJ", "kilojoule", "kilojoules":
		return value / 4.184, nil
	default:
		return 0, fmt.Errorf("payload: unrecognized energy unit %q", unit)
	}
}

// normalizeMassKg converts a mass reading into canonical kilograms.
func normalizeMassKg(value float64, unit string) (float64, error) {
	switch unit {
	case "kg", "kilogram", "kilograms":
		return value, nil
	case "lb", "lbs", "pound", "pounds":
		return value * 0.453592, nil
	case "st", "stone", "stones":
		return value * 6.35029, nil
	default:
		return 0, fmt.Errorf("payload: unrecognized mass unit %q", unit)
	}
}

// normalizeTemperatureCelsius converts a temperature reading into
// canonical Celsius.
func normalizeTemperatureCelsius(value float64, unit string) (float64, error) {
	switch unit {
	case "degC", "C", "celsius", "Celsius":
		return value, nil
	case "degF", "F", "fahrenheit", "Fahrenheit":
		return (value - 32) * 5 / 9, nil
	case "K", "kelvin", "Kelvin":
		return value - 273.15, nil
	default:
		return 0, fmt.Errorf("payload: unrecognized temperature unit %q", unit)
	}
}

// unitFamily identifies which normalizer a HealthKit unit string
// belongs to, so the dialect-A mapper can dispatch without the
// per-metric-type switch duplicating the same lookup.
type unitFamily int

const (
	unitFamilyUnknown unitFamily = iota
	unitFamilyDistance
	unitFamilyEnergy
	unitFamilyMass
	unitFamilyTemperature
)

var knownUnits = map[string]unitFamily{
	"m": unitFamilyDistance, "meter": unitFamilyDistance, "meters": unitFamilyDistance,
	"km": unitFamilyDistance, "kilometer": unitFamilyDistance, "kilometers": unitFamilyDistance,
	"mi": unitFamilyDistance, "mile": unitFamilyDistance, "miles": unitFamilyDistance,
	"ft": unitFamilyDistance, "foot": unitFamilyDistance, "feet": unitFamilyDistance,

	"kcal": unitFamilyEnergy, "kilocalorie": unitFamilyEnergy, "kilocalories": unitFamilyEnergy,
	"Cal": unitFamilyEnergy, "cal": unitFamilyEnergy,
	"kJ": unitFamilyEnergy, "kilojoule": unitFamilyEnergy, "kilojoules": unitFamilyEnergy,

	"kg": unitFamilyMass, "kilogram": unitFamilyMass, "kilograms": unitFamilyMass,
	"lb": unitFamilyMass, "lbs": unitFamilyMass, "pound": unitFamilyMass, "pounds": unitFamilyMass,
	"st": unitFamilyMass, "stone": unitFamilyMass, "stones": unitFamilyMass,

	"degC": unitFamilyTemperature, "C": unitFamilyTemperature, "celsius": unitFamilyTemperature, "Celsius": unitFamilyTemperature,
	"degF": unitFamilyTemperature, "F": unitFamilyTemperature, "fahrenheit": unitFamilyTemperature, "Fahrenheit": unitFamilyTemperature,
	"K": unitFamilyTemperature, "kelvin": unitFamilyTemperature, "Kelvin": unitFamilyTemperature,
}

// normalize dispatches value/unit to the correct family normalizer,
// or reports ErrUnknownUnit when the unit string isn't recognized at
// all. Ambiguous or unknown units drop the sample.
func normalize(value float64, unit string) (float64, unitFamily, error) {
	family, ok := knownUnits[unit]
	if !ok {
		return 0, unitFamilyUnknown, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}

	var (
		converted float64
		err       error
	)
	switch family {
	case unitFamilyDistance:
		converted, err = normalizeDistanceMeters(value, unit)
	case unitFamilyEnergy:
		converted, err = normalizeEnergyKcal(value, unit)
	case unitFamilyMass:
		converted, err = normalizeMassKg(value, unit)
	case unitFamilyTemperature:
		converted, err = normalizeTemperatureCelsius(value, unit)
	}
	return converted, family, err
}
