package services

import (
	"math"

	"soctel/internal/core/domain"
)

// ThermalBand maps a temperature below UpperBound (lower bound inclusive,
// coming from the previous band) to a named status.
type ThermalBand struct {
	Status     domain.ThermalStatus
	UpperBound float64
}

// DefaultThermalBands is the ordered banding table. Reconfigure the table,
// not the classification logic.
var DefaultThermalBands = []ThermalBand{
	{domain.ThermalCold, 10},
	{domain.ThermalNormal, 35},
	{domain.ThermalWarm, 42},
	{domain.ThermalHot, 48},
	{domain.ThermalOverheat, math.Inf(1)},
}

// ClassifyThermal returns the first band whose upper bound exceeds the value.
func ClassifyThermal(bands []ThermalBand, temperature float64) domain.ThermalStatus {
	for _, band := range bands {
		if temperature < band.UpperBound {
			return band.Status
		}
	}
	return bands[len(bands)-1].Status
}

// HealthInputs are the window statistics the health rules look at.
type HealthInputs struct {
	AvgTemperature float64
	MaxTemperature float64
	JankRate       float64
}

type healthRule func(in HealthInputs) (penalty int, reason string)

// healthRules is the ordered, additive penalty list. A rule returning a zero
// penalty did not fire. Else-if chains inside one rule keep a single signal
// from being penalized twice.
var healthRules = []healthRule{
	func(in HealthInputs) (int, string) {
		if in.MaxTemperature > 45 {
			return 15, "peak temperature above 45°C"
		} else if in.MaxTemperature > 40 {
			return 5, "peak temperature above 40°C"
		}
		return 0, ""
	},
	func(in HealthInputs) (int, string) {
		if in.AvgTemperature > 38 {
			return 10, "average temperature above 38°C"
		}
		return 0, ""
	},
	func(in HealthInputs) (int, string) {
		if in.JankRate > 10 {
			return 10, "jank rate above 10%"
		} else if in.JankRate > 5 {
			return 5, "jank rate above 5%"
		}
		return 0, ""
	},
}

// HealthNominal is the canonical note when no penalty rule fired.
const HealthNominal = "nominal"

// HealthScore applies the penalty rules to a perfect score of 100, clamps to
// [0,100] and collects the triggered reasons.
func HealthScore(in HealthInputs) (int, []string) {
	score := 100
	var notes []string

	for _, rule := range healthRules {
		penalty, reason := rule(in)
		if penalty > 0 {
			score -= penalty
			notes = append(notes, reason)
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if len(notes) == 0 {
		notes = []string{HealthNominal}
	}
	return score, notes
}
