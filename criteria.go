// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import "math"

// Criteria is a record of convergence-relevant scalars. It is used in two
// roles: Current, updated every iteration by the minimizer, and Stop, the
// configured thresholds checked against Current.
type Criteria struct {
	Iterations int
	XDelta     float64
	FDelta     float64
	GradNorm   float64
	Condition  float64
}

// stopCriteria holds the configured thresholds plus the normalize_gradient
// option, which changes how GradNorm is reported on Current.
type stopCriteria struct {
	Criteria
	NormalizeGradient bool

	firstGradNorm float64
	haveFirst     bool
}

// normalize rescales gradNorm by the first-iteration gradient norm when
// NormalizeGradient is set, recording that first value the first time it is
// called.
func (s *stopCriteria) normalize(gradNorm float64) float64 {
	if !s.NormalizeGradient {
		return gradNorm
	}
	if !s.haveFirst {
		s.firstGradNorm = gradNorm
		s.haveFirst = true
	}
	if s.firstGradNorm == 0 {
		return gradNorm
	}
	return gradNorm / s.firstGradNorm
}

func (s *stopCriteria) reset() {
	s.haveFirst = false
	s.firstGradNorm = 0
}

// checkConvergence returns the Status implied by comparing current against
// stop. IterationLimit is reported distinctly from the tolerance-based
// convergence kinds so callers can tell "ran out of budget" from "met
// tolerance", per the documented contract.
func checkConvergence(stop, current Criteria) Status {
	if stop.Iterations > 0 && current.Iterations >= stop.Iterations {
		return IterationLimit
	}
	if stop.FDelta > 0 && current.FDelta <= stop.FDelta {
		return ConvergedFDelta
	}
	if stop.GradNorm > 0 && current.GradNorm <= stop.GradNorm {
		return ConvergedGradNorm
	}
	if stop.XDelta > 0 && current.XDelta <= stop.XDelta {
		return ConvergedXDelta
	}
	return Continue
}

// gradInfNorm returns the infinity norm of g, matching the norm the original
// sparse Newton solver reports for gradNorm.
func gradInfNorm(g []float64) float64 {
	var m float64
	for _, v := range g {
		a := math.Abs(v)
		if a > m {
			m = a
		}
	}
	return m
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

func isFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
