package aggregate

import (
	"fmt"
	"math"
)

// Default policy constants.
const (
	defaultScaleMax         = 100
	defaultDecayThreshold   = 5
	defaultDecayFactor      = 0.85
	defaultNearCeiling      = 0.99
	defaultSubMaxCeiling    = 0.97
	defaultCorroborationMin = 3
)

// Policy holds the normalization, decay and cap rules.
type Policy struct {
	// ScaleMax is the highest possible pair score; peak/ScaleMax gives the raw affinity.
	ScaleMax float64
	// Subjects with fewer than DecayThreshold rows are multiplied by DecayFactor.
	DecayThreshold int
	DecayFactor    float64
	// A decayed affinity at or above NearCeiling reaches 1.0 only when the peak is
	// ScaleMax and at least CorroborationMin rows contributed; otherwise it is
	// clamped to SubMaxCeiling.
	NearCeiling      float64
	SubMaxCeiling    float64
	CorroborationMin int
}

// DefaultPolicy returns the production rules.
func DefaultPolicy() Policy {
	return Policy{
		ScaleMax:         defaultScaleMax,
		DecayThreshold:   defaultDecayThreshold,
		DecayFactor:      defaultDecayFactor,
		NearCeiling:      defaultNearCeiling,
		SubMaxCeiling:    defaultSubMaxCeiling,
		CorroborationMin: defaultCorroborationMin,
	}
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	switch {
	case !(p.ScaleMax > 0) || math.IsInf(p.ScaleMax, 0):
		return fmt.Errorf("%w: scale max %v must be positive", ErrInvalidPolicy, p.ScaleMax)
	case p.DecayThreshold < 0:
		return fmt.Errorf("%w: decay threshold %d is negative", ErrInvalidPolicy, p.DecayThreshold)
	case !(p.DecayFactor > 0 && p.DecayFactor <= 1):
		return fmt.Errorf("%w: decay factor %v outside (0,1]", ErrInvalidPolicy, p.DecayFactor)
	case !(p.NearCeiling > 0 && p.NearCeiling <= 1):
		return fmt.Errorf("%w: near ceiling %v outside (0,1]", ErrInvalidPolicy, p.NearCeiling)
	case !(p.SubMaxCeiling > 0 && p.SubMaxCeiling < 1):
		return fmt.Errorf("%w: sub-max ceiling %v outside (0,1)", ErrInvalidPolicy, p.SubMaxCeiling)
	case p.SubMaxCeiling > p.NearCeiling:
		return fmt.Errorf("%w: sub-max ceiling %v above near ceiling %v", ErrInvalidPolicy, p.SubMaxCeiling, p.NearCeiling)
	case p.CorroborationMin < 1:
		return fmt.Errorf("%w: corroboration minimum %d must be >= 1", ErrInvalidPolicy, p.CorroborationMin)
	}
	return nil
}
