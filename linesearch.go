// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// lineSearchTimes accumulates the per-phase timings a LineSearch
// implementation is expected to report, mirroring the phases named in the
// solver-info record (§6): nan/inf screening, broad-phase collision culling,
// continuous collision detection, and the classical backtracking search
// itself.
type lineSearchTimes struct {
	checkingForNaNInf   time.Duration
	broadPhaseCCD       time.Duration
	ccd                 time.Duration
	classicalLineSearch time.Duration
	constraintSetUpdate time.Duration
}

// add accumulates another call's phase timings into the receiver.
func (l *lineSearchTimes) add(o lineSearchTimes) {
	l.checkingForNaNInf += o.checkingForNaNInf
	l.broadPhaseCCD += o.broadPhaseCCD
	l.ccd += o.ccd
	l.classicalLineSearch += o.classicalLineSearch
	l.constraintSetUpdate += o.constraintSetUpdate
}

// lineSearchResult is returned by a LineSearch.Search call.
type lineSearchResult struct {
	rate       float64 // NaN on failure
	iterations int
	times      lineSearchTimes
}

// LineSearch finds a positive step rate r along direction dx from x such
// that f(x+r*dx) < f(x) (or, with UseGradNormTol, such that the gradient
// norm at the trial point already falls below tolerance). It reports NaN to
// signal failure to find an acceptable rate within its bounds.
type LineSearch interface {
	Search(prob Problem, x, dx []float64) lineSearchResult
}

// BacktrackingLineSearch implements the classical Armijo-style backtracking
// search: start from rate 1, halve while the trial point fails to improve on
// f(x), and give up once the rate shrinks below MinStepSize.
//
// It is the problem-agnostic baseline; ConstrainedLineSearch wraps it to add
// a feasibility gate for problems that can reject a trial point outright
// (e.g. a collision violation).
type BacktrackingLineSearch struct {
	MinStepSize    float64 // rates below this are rejected as failure; default 1e-12
	MaxStepSize    float64 // initial/maximum rate; default 1
	MaxIterations  int     // backtracking iteration bound; default 20
	UseGradNormTol bool    // accept a non-improving step if the trial gradient norm is small
	GradNormTol    float64 // threshold used when UseGradNormTol is set
}

func (b *BacktrackingLineSearch) defaults() (minStep, maxStep float64, maxIter int) {
	minStep = b.MinStepSize
	if minStep == 0 {
		minStep = 1e-12
	}
	maxStep = b.MaxStepSize
	if maxStep == 0 {
		maxStep = 1
	}
	maxIter = b.MaxIterations
	if maxIter == 0 {
		maxIter = 20
	}
	return minStep, maxStep, maxIter
}

// Search implements LineSearch.
func (b *BacktrackingLineSearch) Search(prob Problem, x, dx []float64) lineSearchResult {
	minStep, maxStep, maxIter := b.defaults()

	nanT := time.Now()
	oldEnergy := prob.Value(x)
	nanInfElapsed := time.Since(nanT)
	if math.IsNaN(oldEnergy) || math.IsInf(oldEnergy, 0) {
		return lineSearchResult{rate: math.NaN(), times: lineSearchTimesNanos(nanInfElapsed, 0)}
	}

	classicalStart := time.Now()
	trial := make([]float64, len(x))
	rate := maxStep
	var res lineSearchResult
	for res.iterations < maxIter {
		floats.AddScaledTo(trial, x, rate, dx)

		if !isFinite(trial) {
			rate /= 2
			res.iterations++
			if rate < minStep {
				break
			}
			continue
		}

		newEnergy := prob.Value(trial)
		if math.IsNaN(newEnergy) || math.IsInf(newEnergy, 0) {
			rate /= 2
			res.iterations++
			if rate < minStep {
				break
			}
			continue
		}

		if newEnergy < oldEnergy {
			res.rate = rate
			res.times = lineSearchTimesNanos(nanInfElapsed, time.Since(classicalStart))
			return res
		}

		if b.UseGradNormTol {
			grad := make([]float64, len(x))
			prob.Gradient(trial, grad)
			if gradInfNorm(grad) <= b.GradNormTol {
				res.rate = rate
				res.times = lineSearchTimesNanos(nanInfElapsed, time.Since(classicalStart))
				return res
			}
		}

		rate /= 2
		res.iterations++
		if rate < minStep {
			break
		}
	}
	res.rate = math.NaN()
	res.times = lineSearchTimesNanos(nanInfElapsed, time.Since(classicalStart))
	return res
}

// lineSearchTimesNanos builds a lineSearchTimes record from the two phases a
// backtracking search distinguishes; CCD-related fields stay zero outside
// ConstrainedLineSearch.
func lineSearchTimesNanos(nanInf, classical time.Duration) lineSearchTimes {
	return lineSearchTimes{
		checkingForNaNInf:   nanInf,
		classicalLineSearch: classical,
	}
}

// FeasibilityChecker is implemented by problems that can reject a trial
// point as infeasible independently of its energy value, e.g. because it
// would cause a collision. ConstrainedLineSearch consults it, when present,
// before accepting an otherwise-descending step.
type FeasibilityChecker interface {
	IsStepCollisionFree(x, dx []float64, rate float64) bool
}

// ConstrainedLineSearch wraps a BacktrackingLineSearch and additionally
// rejects any trial rate the problem reports as infeasible, backtracking
// further instead of accepting it. This models the CCD-aware feasibility
// checks the original solver performs for contact-bearing problems.
type ConstrainedLineSearch struct {
	Backtracking BacktrackingLineSearch
}

func (c *ConstrainedLineSearch) Search(prob Problem, x, dx []float64) lineSearchResult {
	minStep, maxStep, maxIter := c.Backtracking.defaults()
	checker, hasChecker := prob.(FeasibilityChecker)

	var times lineSearchTimes

	nanT := time.Now()
	oldEnergy := prob.Value(x)
	times.checkingForNaNInf += time.Since(nanT)
	if math.IsNaN(oldEnergy) || math.IsInf(oldEnergy, 0) {
		return lineSearchResult{rate: math.NaN(), times: times}
	}

	trial := make([]float64, len(x))
	rate := maxStep
	var res lineSearchResult
	for res.iterations < maxIter {
		if hasChecker {
			ccdT := time.Now()
			collisionFree := checker.IsStepCollisionFree(x, dx, rate)
			times.broadPhaseCCD += time.Since(ccdT)
			if !collisionFree {
				rate /= 2
				res.iterations++
				if rate < minStep {
					break
				}
				continue
			}
		}

		classicalT := time.Now()
		floats.AddScaledTo(trial, x, rate, dx)
		if !isFinite(trial) {
			times.classicalLineSearch += time.Since(classicalT)
			rate /= 2
			res.iterations++
			if rate < minStep {
				break
			}
			continue
		}

		newEnergy := prob.Value(trial)
		times.classicalLineSearch += time.Since(classicalT)
		if !math.IsNaN(newEnergy) && !math.IsInf(newEnergy, 0) && newEnergy < oldEnergy {
			res.rate = rate
			res.times = times
			return res
		}

		if c.Backtracking.UseGradNormTol && !math.IsNaN(newEnergy) && !math.IsInf(newEnergy, 0) {
			grad := make([]float64, len(x))
			prob.Gradient(trial, grad)
			if gradInfNorm(grad) <= c.Backtracking.GradNormTol {
				res.rate = rate
				res.times = times
				return res
			}
		}

		rate /= 2
		res.iterations++
		if rate < minStep {
			break
		}
	}
	res.rate = math.NaN()
	res.times = times
	return res
}
