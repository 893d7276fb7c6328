package dataset

import (
	"fmt"

	"trading-chartsv1/internal/indicator"
	"trading-chartsv1/internal/series"
)

// Indicator is a Dataset derived from an indicator spec.
type Indicator interface {
	Dataset
	Spec() indicator.Spec
}

// New validates spec, builds the matching dataset and attaches it to src.
// The dataset is computed for the existing bars before New returns.
func New(src *series.Series, spec indicator.Spec) (Indicator, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s for %s: %w", spec, src.Key(), err)
	}

	var d Indicator
	switch spec.Kind {
	case indicator.KindSMA, indicator.KindEMA, indicator.KindSMMA:
		d = newMovingAverage(src, spec)
	case indicator.KindBB:
		d = newBollinger(src, spec)
	case indicator.KindStoch:
		d = newStochastic(src, spec)
	case indicator.KindMACD:
		d = newMACD(src, spec)
	case indicator.KindVolume:
		d = newVolume(src, spec)
	case indicator.KindRSI:
		d = newRSI(src, spec)
	default:
		return nil, fmt.Errorf("dataset for %s: %w", src.Key(), &indicator.InvalidParameterError{
			Kind: spec.Kind.String(), Param: "kind", Value: spec.Kind.String(), Reason: "unknown indicator kind",
		})
	}
	src.Attach(d)
	return d, nil
}

// Parse is New with a spec string such as "BB:20:2".
func Parse(src *series.Series, raw string) (Indicator, error) {
	spec, err := indicator.ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("dataset %q for %s: %w", raw, src.Key(), err)
	}
	return New(src, spec)
}
