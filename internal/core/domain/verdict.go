package domain

import "math"

// Verdict is the client-side interpretation of a raw model score under a
// calibration configuration.
type Verdict struct {
	Result     DetectionResult `json:"result"`
	PFake      float64         `json:"p_fake"`
	Confidence float64         `json:"confidence"`
	Uncertain  bool            `json:"uncertain"`
	BandLower  float64         `json:"band_lower"`
	BandUpper  float64         `json:"band_upper"`
}

// Interpret turns a raw sigmoid-like score (P(fake) under the non-flipped
// reading) into a verdict. Pure and total: any input yields a deterministic
// result, non-finite scores are coerced before use.
//
// Band membership is checked before the threshold comparison, and the
// reported confidence is max(pFake, 1-pFake) regardless of band membership.
// An uncertain verdict can therefore carry a high confidence; that pairing is
// intentional and callers must not "repair" it.
func Interpret(score float64, cfg CalibrationConfig) Verdict {
	cfg = cfg.Normalized()

	s := score
	if math.IsNaN(s) {
		s = 0.5
	}
	s = clamp01(s)

	pFake := s
	if cfg.FlipOutputInterpretation {
		pFake = 1 - s
	}

	lower := clamp01(cfg.Threshold - cfg.UncertaintyRange/2)
	upper := clamp01(cfg.Threshold + cfg.UncertaintyRange/2)

	result := ResultReal
	uncertain := false
	switch {
	case pFake >= lower && pFake <= upper:
		result = ResultUncertain
		uncertain = true
	case pFake >= cfg.Threshold:
		result = ResultFake
	}

	return Verdict{
		Result:     result,
		PFake:      pFake,
		Confidence: math.Max(pFake, 1-pFake),
		Uncertain:  uncertain,
		BandLower:  lower,
		BandUpper:  upper,
	}
}
