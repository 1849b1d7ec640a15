// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// quadraticProblem is the §8 scenario 1 seed: f(x) = 1/2 xᵀAx - bᵀx for a
// diagonal SPD A, with a closed-form minimizer x* = A⁻¹b.
type quadraticProblem struct {
	diag []float64
	b    []float64
}

func newQuadraticProblem(n int) *quadraticProblem {
	diag := make([]float64, n)
	b := make([]float64, n)
	for i := range diag {
		diag[i] = float64(i + 1)
		b[i] = float64(i%7) + 1
	}
	return &quadraticProblem{diag: diag, b: b}
}

func (p *quadraticProblem) Value(x []float64) float64 {
	var f float64
	for i, xi := range x {
		f += 0.5*p.diag[i]*xi*xi - p.b[i]*xi
	}
	return f
}

func (p *quadraticProblem) Gradient(x, grad []float64) {
	for i, xi := range x {
		grad[i] = p.diag[i]*xi - p.b[i]
	}
}

func (p *quadraticProblem) Hessian(x []float64, hess *mat.SymDense) {
	n := len(p.diag)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				hess.SetSym(i, i, p.diag[i])
			} else {
				hess.SetSym(i, j, 0)
			}
		}
	}
}

// rosenbrockProblem is the §8 scenario 2 seed: the classical 2D banana
// function, minimized at (1, 1).
type rosenbrockProblem struct{}

func (rosenbrockProblem) Value(x []float64) float64 {
	a := 1 - x[0]
	b := x[1] - x[0]*x[0]
	return a*a + 100*b*b
}

func (rosenbrockProblem) Gradient(x, grad []float64) {
	a := 1 - x[0]
	b := x[1] - x[0]*x[0]
	grad[0] = -2*a - 400*x[0]*b
	grad[1] = 200 * b
}

// materialProblem stands in for the §8 scenario 5 reference: a convex,
// separable quartic penalty sum_i w_i*(d²/2 + d⁴/20), d = x_i - target_i,
// over a 40-entry design vector. Its energy at the initial x (all ones) is
// about 31 and its minimum is 0 at x = target; it does not reproduce the
// reference solve's energies. With the Newton strategy the demo's 1e-9
// gradient threshold is reached in fewer than ten accepted iterations, so
// the solve ends on IterationLimit only when --max-iterations is below that.
type materialProblem struct {
	n      int
	target []float64
	weight []float64
}

func newMaterialProblem() *materialProblem {
	const n = 40
	target := make([]float64, n)
	weight := make([]float64, n)
	for i := 0; i < n; i++ {
		target[i] = 0.3 + 0.1*math.Sin(float64(i))
		weight[i] = 1 + float64(i%5)
	}
	return &materialProblem{n: n, target: target, weight: weight}
}

func (p *materialProblem) initialX() []float64 {
	x := make([]float64, p.n)
	for i := range x {
		x[i] = 1.0
	}
	return x
}

// Value is the quartic penalty: quadratic near the target density field and
// growing quartically away from it.
func (p *materialProblem) Value(x []float64) float64 {
	var f float64
	for i, xi := range x {
		d := xi - p.target[i]
		f += p.weight[i] * (0.5*d*d + 0.05*d*d*d*d)
	}
	return f
}

func (p *materialProblem) Gradient(x, grad []float64) {
	for i, xi := range x {
		d := xi - p.target[i]
		grad[i] = p.weight[i] * (d + 0.2*d*d*d)
	}
}

func (p *materialProblem) Hessian(x []float64, hess *mat.SymDense) {
	for i, xi := range x {
		d := xi - p.target[i]
		hess.SetSym(i, i, p.weight[i]*(1+0.6*d*d))
		for j := i + 1; j < len(x); j++ {
			hess.SetSym(i, j, 0)
		}
	}
}

// remeshProblem is the §8 scenario 4 seed: after a fixed number of accepted
// iterations it reports a dimension increase, appending zero-valued new
// coordinates, modeling a remesh that refines a discretization without
// perturbing the existing degrees of freedom.
type remeshProblem struct {
	quadraticProblem
	triggerAt int
	triggered bool
	grown     []float64
	lastX     []float64
}

func newRemeshProblem(n, triggerAt, grow int) *remeshProblem {
	base := newQuadraticProblem(n)
	p := &remeshProblem{quadraticProblem: *base, triggerAt: triggerAt}
	for i := 0; i < grow; i++ {
		p.grown = append(p.grown, float64(n+i+1), float64(i%7)+1)
	}
	return p
}

func (p *remeshProblem) Remesh(x []float64) bool {
	if p.triggered || len(p.quadraticProblem.diag)+len(p.grown)/2 > 10000 {
		return false
	}
	p.triggerAt--
	if p.triggerAt > 0 {
		return false
	}
	p.triggered = true
	p.lastX = append([]float64(nil), x...)
	for i := 0; i < len(p.grown); i += 2 {
		p.quadraticProblem.diag = append(p.quadraticProblem.diag, p.grown[i])
		p.quadraticProblem.b = append(p.quadraticProblem.b, p.grown[i+1])
	}
	return true
}

// NewX carries the pre-remesh coordinates forward unperturbed and appends
// zero-valued new degrees of freedom, matching the documented remesh
// contract of refining a discretization without disturbing existing state.
func (p *remeshProblem) NewX() []float64 {
	n := len(p.quadraticProblem.diag)
	x := make([]float64, n)
	copy(x, p.lastX)
	return x
}
