package domain

import (
	"fmt"
)

// ClimateMode is one of the fixed climate presets
type ClimateMode string

const (
	ModeAuto  ClimateMode = "Auto"
	ModeEco   ClimateMode = "Eco"
	ModeMaxAC ClimateMode = "Max AC"
)

const (
	MinTemp = 16
	MaxTemp = 30
	MinFan  = 1
	MaxFan  = 5
)

// Modes returns the climate modes in display order
func Modes() []ClimateMode {
	return []ClimateMode{ModeAuto, ModeEco, ModeMaxAC}
}

// Valid reports whether m is a known mode
func (m ClimateMode) Valid() bool {
	switch m {
	case ModeAuto, ModeEco, ModeMaxAC:
		return true
	default:
		return false
	}
}

// ClimateSettings is the shared climate slice
type ClimateSettings struct {
	Temp int         `json:"temp"`
	Fan  int         `json:"fan"`
	Mode ClimateMode `json:"mode"`
}

// DefaultClimate returns the settings a fresh dashboard starts with
func DefaultClimate() ClimateSettings {
	return ClimateSettings{
		Temp: 22,
		Fan:  3,
		Mode: ModeAuto,
	}
}

// Clamp forces every field into its domain. Unknown modes fall back to Auto.
func (c ClimateSettings) Clamp() ClimateSettings {
	c.Temp = clamp(c.Temp, MinTemp, MaxTemp)
	c.Fan = clamp(c.Fan, MinFan, MaxFan)
	if !c.Mode.Valid() {
		c.Mode = ModeAuto
	}
	return c
}

// Validate reports the first field outside its domain
func (c ClimateSettings) Validate() error {
	if c.Temp < MinTemp || c.Temp > MaxTemp {
		return fmt.Errorf("%w: temp %d outside [%d, %d]", ErrInvalidMessage, c.Temp, MinTemp, MaxTemp)
	}
	if c.Fan < MinFan || c.Fan > MaxFan {
		return fmt.Errorf("%w: fan %d outside [%d, %d]", ErrInvalidMessage, c.Fan, MinFan, MaxFan)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidMessage, c.Mode)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
