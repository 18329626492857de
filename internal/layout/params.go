package layout

import (
	"errors"
	"math"
)

// Params holds the physical constants of the simulation.
type Params struct {
	// RestLength is the preferred length of a link.
	RestLength float64 `json:"rest_length"`

	// Charge is the many-body strength; negative values repel.
	Charge float64 `json:"charge"`

	// MinDistance2 clamps the squared distance used by the many-body force.
	MinDistance2 float64 `json:"min_distance2"`

	// CollideRadius is the circular radius of every node.
	CollideRadius float64 `json:"collide_radius"`

	// CenterX and CenterY pull nodes toward the origin on each axis.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`

	// VelocityDecay is the fraction of velocity kept after each tick.
	VelocityDecay float64 `json:"velocity_decay"`

	// AlphaMin stops the simulation once alpha cools below it.
	AlphaMin float64 `json:"alpha_min"`

	// CoolingTicks is the number of ticks alpha needs to cool from 1 to AlphaMin.
	CoolingTicks int `json:"cooling_ticks"`

	// VelocityThreshold stops the simulation once the largest velocity on
	// both axes drops below it, after MinTicks ticks.
	VelocityThreshold float64 `json:"velocity_threshold"`
	MinTicks          int     `json:"min_ticks"`

	// SpiralRadius scales the initial placement spiral.
	SpiralRadius float64 `json:"spiral_radius"`
}

// DefaultParams returns the standard layout constants.
func DefaultParams() Params {
	return Params{
		RestLength:        30,
		Charge:            -900,
		MinDistance2:      1,
		CollideRadius:     40,
		CenterX:           0.1,
		CenterY:           0.12,
		VelocityDecay:     0.03,
		AlphaMin:          0.001,
		CoolingTicks:      300,
		VelocityThreshold: 0.6,
		MinTicks:          5,
		SpiralRadius:      10,
	}
}

// AlphaDecay returns the per-tick cooling factor so that alpha reaches
// AlphaMin after CoolingTicks ticks.
func (p Params) AlphaDecay() float64 {
	return 1 - math.Pow(p.AlphaMin, 1/float64(p.CoolingTicks))
}

// Validate reports parameter combinations that can never converge or that
// produce non-finite forces.
func (p Params) Validate() error {
	var errs []error
	if !(p.AlphaMin > 0 && p.AlphaMin < 1) {
		errs = append(errs, errors.New("alpha_min must be in (0, 1)"))
	}
	if p.CoolingTicks <= 0 {
		errs = append(errs, errors.New("cooling_ticks must be positive"))
	}
	if p.MinDistance2 <= 0 {
		errs = append(errs, errors.New("min_distance2 must be positive"))
	}
	if p.VelocityDecay < 0 || p.VelocityDecay > 1 {
		errs = append(errs, errors.New("velocity_decay must be in [0, 1]"))
	}
	if p.CollideRadius < 0 || p.RestLength < 0 {
		errs = append(errs, errors.New("rest_length and collide_radius must not be negative"))
	}
	if p.SpiralRadius <= 0 {
		errs = append(errs, errors.New("spiral_radius must be positive"))
	}
	if p.MinTicks < 0 {
		errs = append(errs, errors.New("min_ticks must not be negative"))
	}
	return errors.Join(errs...)
}
