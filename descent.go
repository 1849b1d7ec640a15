// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/shapeopt/nlmin/sparselinsolve"
)

// DescentStrategy is the ordinal index into the fallback ladder. It only
// ever increases between resets.
type DescentStrategy int

const (
	StrategyNewton DescentStrategy = iota
	StrategyQuasiNewton
	StrategyGradientDescent
)

func (s DescentStrategy) String() string {
	switch s {
	case StrategyNewton:
		return "Newton"
	case StrategyQuasiNewton:
		return "QuasiNewton"
	case StrategyGradientDescent:
		return "GradientDescent"
	default:
		return "DescentStrategy(unknown)"
	}
}

// newtonCadence is the documented cadence at which the Newton strategy
// reassembles and refactorizes the Hessian; it reuses the last factorization
// on the iterations in between.
const newtonCadence = 5

// hessianRegularization is added to the diagonal of the assembled Hessian
// before factorization.
const hessianRegularization = 1e-5

// descentLadder produces a candidate direction from (x, g[, H]), escalating
// Newton → QuasiNewton → GradientDescent on any failure and periodically
// resetting back to its configured default strategy.
type descentLadder struct {
	current DescentStrategy
	def     DescentStrategy

	solver       sparselinsolve.Solver
	solverReady  bool
	hessDirty    bool
	newtonIter   int
	factorizeCnt int

	timers *timers

	lastSolverInfo sparselinsolve.Info

	lbfgs *lbfgsHistory

	prevX, prevG []float64
	havePrev     bool

	hessBuf *mat.SymDense
}

func newDescentLadder(solver sparselinsolve.Solver, lbfgsMemory int) *descentLadder {
	return &descentLadder{
		solver: solver,
		lbfgs:  newLBFGSHistory(lbfgsMemory),
	}
}

// escalate bumps the current strategy, capped at GradientDescent.
func (d *descentLadder) escalate() {
	if d.current < StrategyGradientDescent {
		d.current++
	}
}

// resetToDefault drops the ladder back to its configured default strategy,
// used both on explicit reset and on the periodic fallback-period cadence.
func (d *descentLadder) resetToDefault() {
	d.current = d.def
	d.lbfgs.clear()
	d.havePrev = false
	d.hessDirty = true
	d.newtonIter = 0
}

// onRemesh invalidates cached factorization/history state; dimension may
// have changed.
func (d *descentLadder) onRemesh() {
	d.solverReady = false
	d.hessDirty = true
	d.lbfgs.clear()
	d.havePrev = false
	d.newtonIter = 0
	d.hessBuf = nil
}

// direction computes Δx into dir from the current point/gradient. ok is
// false when the strategy could not even attempt a step (e.g. Newton's
// linear solve failed); the caller escalates and retries.
func (d *descentLadder) direction(prob Problem, x, grad []float64, dir []float64) (ok bool) {
	switch d.current {
	case StrategyNewton:
		return d.newtonDirection(prob, x, grad, dir)
	case StrategyQuasiNewton:
		return d.quasiNewtonDirection(x, grad, dir)
	default:
		copy(dir, grad)
		floats.Scale(-1, dir)
		return true
	}
}

func (d *descentLadder) newtonDirection(prob Problem, x, grad []float64, dir []float64) bool {
	hp, ok := prob.(HessianProblem)
	if !ok {
		d.current = StrategyQuasiNewton
		return d.quasiNewtonDirection(x, grad, dir)
	}

	n := len(x)
	recompute := d.newtonIter%newtonCadence == 0

	if recompute {
		if d.hessBuf == nil || d.hessBuf.SymmetricDim() != n {
			d.hessBuf = mat.NewSymDense(n, nil)
		}
		hp.Hessian(x, d.hessBuf)
		for i := 0; i < n; i++ {
			d.hessBuf.SetSym(i, i, d.hessBuf.At(i, i)+hessianRegularization)
		}

		if d.hessDirty || !d.solverReady {
			d.solver.AnalyzePattern(d.hessBuf)
			d.hessDirty = false
		}
		if err := d.solver.Factorize(d.hessBuf); err != nil {
			d.solverReady = false
			return false
		}
		d.solverReady = true
		d.factorizeCnt++
	}
	d.newtonIter++

	if !d.solverReady {
		return false
	}

	var invT scopedTimer
	if d.timers != nil {
		invT = d.timers.start(phaseInverting)
	}
	b := mat.NewVecDense(n, grad)
	out := mat.NewVecDense(n, dir)
	err := d.solver.Solve(out, b)
	if d.timers != nil {
		invT.stop()
	}
	if err != nil {
		d.solverReady = false
		return false
	}
	d.lastSolverInfo = d.solver.GetInfo()
	floats.Scale(-1, dir)
	if !isFinite(dir) {
		return false
	}
	return true
}

func (d *descentLadder) quasiNewtonDirection(x, grad []float64, dir []float64) bool {
	if d.havePrev {
		n := len(x)
		s := make([]float64, n)
		y := make([]float64, n)
		floats.SubTo(s, x, d.prevX)
		floats.SubTo(y, grad, d.prevG)
		var sDotY float64
		for i := 0; i < n; i++ {
			sDotY += s[i] * y[i]
		}
		d.lbfgs.push(s, y, sDotY)
	}
	d.prevX = append(d.prevX[:0], x...)
	d.prevG = append(d.prevG[:0], grad...)
	d.havePrev = true

	d.lbfgs.direction(grad, dir)
	if !isFinite(dir) {
		return false
	}
	return true
}

// isDescent reports whether dir·grad < 0, i.e. dir is a genuine descent
// direction at grad. When ‖grad‖ = 0 any direction is accepted.
func isDescent(dir, grad []float64) bool {
	if gradInfNorm(grad) == 0 {
		return true
	}
	dot := floats.Dot(dir, grad)
	return dot < 0
}
