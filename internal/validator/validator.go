// Package validator implements the Schema Validator (§4.3): range
// checking and best-effort sanitization of telemetry samples before they
// enter the Fan-out, so every downstream consumer can trust field ranges.
package validator

import (
	"fmt"
	"math"

	"github.com/psybedev/coachtrace/internal/coacherr"
	"github.com/psybedev/coachtrace/internal/model"
)

// Limits holds the acceptable range for each bounded telemetry field.
// Grounded on the teacher's ValidationConfig shape, narrowed to the
// fields this pipeline's TelemetrySample carries.
type Limits struct {
	MaxSpeedKmh    float64
	MinSpeedKmh    float64
	MaxRPM         float64
	MinRPM         float64
	MaxFuelL       float64
	MinFuelL       float64
	MaxTireTempC   float64
	MinTireTempC   float64
	MaxTirePressKPa float64
	MinTirePressKPa float64
	MaxGear        int
	MinGear        int
}

// DefaultLimits mirrors the teacher's DefaultValidationConfig, converted
// to this pipeline's units (km/h, kPa, degC).
func DefaultLimits() Limits {
	return Limits{
		MaxSpeedKmh:     500.0,
		MinSpeedKmh:     0.0,
		MaxRPM:          15000.0,
		MinRPM:          0.0,
		MaxFuelL:        200.0,
		MinFuelL:        0.0,
		MaxTireTempC:    150.0,
		MinTireTempC:    -10.0,
		MaxTirePressKPa: 400.0,
		MinTirePressKPa: 50.0,
		MaxGear:         10,
		MinGear:         -1,
	}
}

// Validator checks and sanitizes samples against Limits.
type Validator struct {
	limits Limits
}

func New(limits Limits) *Validator { return &Validator{limits: limits} }

// Validate reports every out-of-range or structurally invalid field as a
// data_integrity CoachError; it does not mutate sample.
func (v *Validator) Validate(sample model.TelemetrySample) []error {
	var errs []error

	if math.IsNaN(sample.SpeedKmh) || math.IsInf(sample.SpeedKmh, 0) {
		errs = append(errs, v.fieldErr("SpeedKmh", sample.SpeedKmh, "not a finite number"))
	} else if sample.SpeedKmh < v.limits.MinSpeedKmh || sample.SpeedKmh > v.limits.MaxSpeedKmh {
		errs = append(errs, v.fieldErr("SpeedKmh", sample.SpeedKmh, "outside valid range"))
	}

	if sample.RPM < v.limits.MinRPM || sample.RPM > v.limits.MaxRPM {
		errs = append(errs, v.fieldErr("RPM", sample.RPM, "outside valid range"))
	}

	if sample.Gear < v.limits.MinGear || sample.Gear > v.limits.MaxGear {
		errs = append(errs, v.fieldErr("Gear", sample.Gear, "outside valid range"))
	}

	if sample.Throttle < 0 || sample.Throttle > 1 {
		errs = append(errs, v.fieldErr("Throttle", sample.Throttle, "outside [0,1]"))
	}
	if sample.Brake < 0 || sample.Brake > 1 {
		errs = append(errs, v.fieldErr("Brake", sample.Brake, "outside [0,1]"))
	}

	if sample.LapDistPct < 0 || sample.LapDistPct > 1.0 {
		errs = append(errs, v.fieldErr("LapDistPct", sample.LapDistPct, "outside [0,1]"))
	}

	if sample.FuelLevelL < v.limits.MinFuelL || sample.FuelLevelL > v.limits.MaxFuelL {
		errs = append(errs, v.fieldErr("FuelLevelL", sample.FuelLevelL, "outside valid range"))
	}

	for corner, temp := range sample.TireTemps {
		if temp < v.limits.MinTireTempC || temp > v.limits.MaxTireTempC {
			errs = append(errs, v.fieldErr("TireTemps["+corner+"]", temp, "outside valid range"))
		}
	}
	for corner, p := range sample.TirePressures {
		if p < v.limits.MinTirePressKPa || p > v.limits.MaxTirePressKPa {
			errs = append(errs, v.fieldErr("TirePressures["+corner+"]", p, "outside valid range"))
		}
	}

	for _, lapTime := range []*float64{sample.LapCurrentTimeS, sample.LapLastTimeS, sample.LapBestTimeS} {
		if lapTime != nil && *lapTime < 0 {
			errs = append(errs, v.fieldErr("LapTimeS", *lapTime, "negative lap time"))
		}
	}

	return errs
}

// Sanitize clamps out-of-range fields to their nearest valid bound rather
// than discarding the sample, mirroring the teacher's
// SanitizeTelemetryData: a temporarily bad reading degrades gracefully
// instead of stalling the pipeline.
func (v *Validator) Sanitize(sample model.TelemetrySample) model.TelemetrySample {
	s := sample
	s.SpeedKmh = clamp(s.SpeedKmh, v.limits.MinSpeedKmh, v.limits.MaxSpeedKmh)
	s.RPM = clamp(s.RPM, v.limits.MinRPM, v.limits.MaxRPM)
	s.Gear = int(clamp(float64(s.Gear), float64(v.limits.MinGear), float64(v.limits.MaxGear)))
	s.Throttle = clamp(s.Throttle, 0, 1)
	s.Brake = clamp(s.Brake, 0, 1)
	s.LapDistPct = clamp(s.LapDistPct, 0, 1)
	s.FuelLevelL = clamp(s.FuelLevelL, v.limits.MinFuelL, v.limits.MaxFuelL)

	if len(s.TireTemps) > 0 {
		cleaned := make(map[string]float64, len(s.TireTemps))
		for corner, t := range s.TireTemps {
			cleaned[corner] = clamp(t, v.limits.MinTireTempC, v.limits.MaxTireTempC)
		}
		s.TireTemps = cleaned
	}
	if len(s.TirePressures) > 0 {
		cleaned := make(map[string]float64, len(s.TirePressures))
		for corner, p := range s.TirePressures {
			cleaned[corner] = clamp(p, v.limits.MinTirePressKPa, v.limits.MaxTirePressKPa)
		}
		s.TirePressures = cleaned
	}
	return s
}

func (v *Validator) fieldErr(field string, value interface{}, msg string) error {
	return coacherr.New(coacherr.KindDataIntegrity, "validator."+field,
		fmt.Sprintf("%s: %s (value: %v)", field, msg, value))
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
