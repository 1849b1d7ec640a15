// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import "gonum.org/v1/gonum/mat"

// Problem is the capability set that a collaborator must implement in order
// to be driven by a Minimizer. Not every descent strategy needs every
// operation: Hessian is only consulted by the Newton strategy, and the other
// hooks are optional observers the minimizer calls at well defined points in
// the iteration.
//
// Value and Gradient must be deterministic for a fixed x: Value may be
// called several times per iteration by the line search.
type Problem interface {
	// Value returns f(x). It must not modify x.
	Value(x []float64) float64

	// Gradient writes ∇f(x) into grad, which has the same length as x.
	Gradient(x, grad []float64)
}

// HessianProblem is an optional capability advertised by problems that can
// supply a sparse Hessian. Only the Newton descent strategy requires it.
type HessianProblem interface {
	Problem

	// Hessian writes the sparse symmetric ∇²f(x) into hess. hess is resized
	// as needed by the implementation.
	Hessian(x []float64, hess *mat.SymDense)
}

// SolutionChanger lets a problem refresh cached internal state whenever the
// minimizer moves to a new iterate. The minimizer calls it before the
// initial gradient and at the top of every iteration, before
// Value/Gradient/Hessian at the current x. The line search's trial points
// and the finite-difference audit's probe points are evaluated without a
// SolutionChanged call.
type SolutionChanger interface {
	SolutionChanged(x []float64)
}

// Callbacker is polled once per iteration. Returning false stops the solve
// with whatever status has been reached so far; this is the only supported
// cancellation mechanism.
type Callbacker interface {
	Callback(current Criteria, x []float64) bool
}

// PostStepper observes the state after each accepted step.
type PostStepper interface {
	PostStep(iter int, x []float64)
}

// Remesher signals that the topology underlying x has changed. When Remesh
// returns true the minimizer reinitializes its dimension-dependent state,
// possibly at a new dimension reported by NewX.
type Remesher interface {
	// Remesh is queried after PostStep on every iteration. If it returns
	// true, NewX must return the (possibly resized) variable to continue
	// iterating from.
	Remesh(x []float64) bool
	NewX() []float64
}

// Checkpointer is an optional save-to-file hook invoked opportunistically by
// callers wrapping a Minimizer; the minimizer itself never calls it, but it
// is part of the contract collaborators may implement alongside the rest.
type Checkpointer interface {
	SaveToFile(x []float64) error
}

// capabilities returns which optional collaborator hooks prob implements.
type capabilities struct {
	hessian      HessianProblem
	solChanged   SolutionChanger
	callback     Callbacker
	postStep     PostStepper
	remesher     Remesher
	checkpointer Checkpointer
}

func probeCapabilities(prob Problem) capabilities {
	var c capabilities
	if h, ok := prob.(HessianProblem); ok {
		c.hessian = h
	}
	if s, ok := prob.(SolutionChanger); ok {
		c.solChanged = s
	}
	if cb, ok := prob.(Callbacker); ok {
		c.callback = cb
	}
	if p, ok := prob.(PostStepper); ok {
		c.postStep = p
	}
	if r, ok := prob.(Remesher); ok {
		c.remesher = r
	}
	if ck, ok := prob.(Checkpointer); ok {
		c.checkpointer = ck
	}
	return c
}
