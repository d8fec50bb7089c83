package domain

import "math"

// Calibration defaults. Threshold is the decision boundary on the effective
// fake-probability, UncertaintyRange the full width of the band around it.
const (
	DefaultThreshold        = 0.5
	DefaultUncertaintyRange = 0.1
)

type CalibrationConfig struct {
	FlipOutputInterpretation bool    `json:"flip_output_interpretation"`
	Threshold                float64 `json:"threshold"`
	UncertaintyRange         float64 `json:"uncertainty_range"`
}

// CalibrationPatch is a partial calibration update: nil fields are left
// untouched by Apply. It doubles as the wire shape for the detect call's
// optional query parameters.
type CalibrationPatch struct {
	FlipOutputInterpretation *bool    `json:"flip_output_interpretation,omitempty"`
	Threshold                *float64 `json:"threshold,omitempty"`
	UncertaintyRange         *float64 `json:"uncertainty_range,omitempty"`
}

func DefaultCalibration() CalibrationConfig {
	return CalibrationConfig{
		FlipOutputInterpretation: false,
		Threshold:                DefaultThreshold,
		UncertaintyRange:         DefaultUncertaintyRange,
	}
}

// Apply merges the patch over c, shallow-merge semantics: only fields the
// caller supplied are replaced.
func (c CalibrationConfig) Apply(patch CalibrationPatch) CalibrationConfig {
	out := c
	if patch.FlipOutputInterpretation != nil {
		out.FlipOutputInterpretation = *patch.FlipOutputInterpretation
	}
	if patch.Threshold != nil {
		out.Threshold = *patch.Threshold
	}
	if patch.UncertaintyRange != nil {
		out.UncertaintyRange = *patch.UncertaintyRange
	}
	return out
}

// Normalized replaces non-finite fields with defaults so downstream math is
// total. Threshold and UncertaintyRange must always be finite; values outside
// [0,1] are clamped into range.
func (c CalibrationConfig) Normalized() CalibrationConfig {
	out := c
	if !isFinite(out.Threshold) {
		out.Threshold = DefaultThreshold
	}
	if !isFinite(out.UncertaintyRange) {
		out.UncertaintyRange = DefaultUncertaintyRange
	}
	out.Threshold = clamp01(out.Threshold)
	out.UncertaintyRange = clamp01(out.UncertaintyRange)
	return out
}

// Patch returns a fully-populated patch mirroring c, used to serialize the
// complete calibration onto an outgoing detect request.
func (c CalibrationConfig) Patch() CalibrationPatch {
	flip := c.FlipOutputInterpretation
	threshold := c.Threshold
	band := c.UncertaintyRange
	return CalibrationPatch{
		FlipOutputInterpretation: &flip,
		Threshold:                &threshold,
		UncertaintyRange:         &band,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
