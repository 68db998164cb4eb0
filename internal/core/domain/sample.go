package domain

import "sort"

// Point locates a sample in the independent-variable space,
// keyed by coordinate name (e.g. "x", "t").
type Point map[string]float64

// Sample is one observation of the field at a point: the field value plus
// every requested partial derivative, with an optional per-sample noise
// estimate. Samples are immutable once produced by the field provider and
// live for a single discovery run.
type Sample struct {
	// Coordinates is the sample's location.
	Coordinates Point

	// Value is the field value at the point.
	Value float64

	// Derivatives maps derivative names (e.g. "u_x", "u_xx", "u_t")
	// to their values at the point.
	Derivatives map[string]float64

	// Noise is an optional per-sample error estimate from the provider.
	// Zero means no estimate.
	Noise float64
}

// Derivative returns the named derivative and whether the sample carries it.
func (s Sample) Derivative(name string) (float64, bool) {
	v, ok := s.Derivatives[name]
	return v, ok
}

// DerivativeNames returns every derivative name present across the given
// samples, sorted for deterministic iteration.
func DerivativeNames(samples []Sample) []string {
	seen := make(map[string]struct{})
	for _, s := range samples {
		for name := range s.Derivatives {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
