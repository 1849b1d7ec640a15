// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparselinsolve provides a pluggable sparse SPD linear solver used
// by the Newton descent strategy. It exposes an opaque handle with
// analyze/factorize/solve/info operations so the solver backend (a dense
// Cholesky factorization or an iterative Krylov method) can be swapped
// without touching the caller, the same way the original Newton solver
// treated its internal_solver as an opaque collaborator.
package sparselinsolve

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/linsolve"
	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned by Factorize when the matrix cannot be pivoted;
// callers treat this as a signal to escalate their descent strategy.
var ErrSingular = errors.New("sparselinsolve: singular matrix")

// Config mirrors the tuning options accepted by setParameters: tolerance and
// iteration bound for iterative backends, a preconditioner selector, and a
// reorder flag (accepted for interface compatibility; dense Cholesky never
// reorders).
type Config struct {
	Tolerance          float64
	MaxIterations      int
	PreconditionerType string // "", "jacobi"
	Reorder            bool
}

// Info is the last-solve diagnostic record a Solver reports via GetInfo.
type Info struct {
	Name       string
	Iterations int
	ResidNorm  float64
}

// Solver is the pluggable sparse linear solver handle described in §4.1: it
// remembers a symbolic factorization across calls and is reused until the
// sparsity pattern changes.
type Solver interface {
	// SetParameters applies tuning options before the first AnalyzePattern.
	SetParameters(cfg Config)
	// AnalyzePattern records a's symbolic structure and invalidates any
	// prior numeric factorization.
	AnalyzePattern(a mat.Symmetric)
	// Factorize computes a numeric factorization of a against the last
	// analyzed pattern. It returns ErrSingular when pivoting fails.
	Factorize(a mat.Symmetric) error
	// Solve solves A x = b using the last factorization into dst.
	Solve(dst, b *mat.VecDense) error
	// GetInfo reports diagnostics for the last Solve.
	GetInfo() Info
}

// New constructs a Solver for the named backend ("cholesky" or "cg") with
// the given preconditioner selector. Backend and preconditioner are
// recognized loosely, the way LinearSolver::create takes free-form selector
// strings in the original design.
func New(backend, preconditioner string) (Solver, error) {
	switch backend {
	case "", "cholesky", "Eigen::SimplicialLDLT":
		return &choleskySolver{}, nil
	case "cg", "CG", "Eigen::ConjugateGradient":
		s := &cgSolver{}
		s.cfg.PreconditionerType = preconditioner
		return s, nil
	default:
		return nil, fmt.Errorf("sparselinsolve: unknown backend %q", backend)
	}
}

// choleskySolver factorizes the dense representation of the (regularized)
// sparse Hessian with a Cholesky decomposition. AnalyzePattern is a no-op
// beyond dimension bookkeeping since a dense Cholesky has no distinct
// symbolic phase, but it is still tracked so Factorize can detect a stale
// pattern the way a real sparse solver would.
type choleskySolver struct {
	cfg     Config
	dim     int
	chol    mat.Cholesky
	factored bool
	info    Info
}

func (s *choleskySolver) SetParameters(cfg Config) { s.cfg = cfg }

func (s *choleskySolver) AnalyzePattern(a mat.Symmetric) {
	s.dim = a.SymmetricDim()
	s.factored = false
}

func (s *choleskySolver) Factorize(a mat.Symmetric) error {
	if a.SymmetricDim() != s.dim {
		s.AnalyzePattern(a)
	}
	ok := s.chol.Factorize(a)
	if !ok {
		s.factored = false
		return ErrSingular
	}
	s.factored = true
	s.info = Info{Name: "cholesky"}
	return nil
}

func (s *choleskySolver) Solve(dst, b *mat.VecDense) error {
	if !s.factored {
		return errors.New("sparselinsolve: solve called before a successful factorize")
	}
	return s.chol.SolveVecTo(dst, b)
}

func (s *choleskySolver) GetInfo() Info { return s.info }

// cgSolver solves A x = b iteratively with gonum/linsolve's conjugate
// gradient method, optionally Jacobi-preconditioned. It has no real
// symbolic/numeric split: AnalyzePattern and Factorize both just remember
// the matrix (and, for the Jacobi preconditioner, its diagonal) for the
// next Solve.
type cgSolver struct {
	cfg  Config
	a    mat.Symmetric
	diag []float64
	info Info
}

func (s *cgSolver) SetParameters(cfg Config) { s.cfg = cfg }

func (s *cgSolver) AnalyzePattern(a mat.Symmetric) {
	s.a = a
}

func (s *cgSolver) Factorize(a mat.Symmetric) error {
	s.a = a
	if s.cfg.PreconditionerType == "jacobi" {
		n := a.SymmetricDim()
		s.diag = make([]float64, n)
		for i := 0; i < n; i++ {
			d := a.At(i, i)
			if d == 0 {
				return ErrSingular
			}
			s.diag[i] = d
		}
	}
	return nil
}

type symMulVec struct{ a mat.Symmetric }

func (m symMulVec) MulVecTo(dst *mat.VecDense, _ bool, x mat.Vector) {
	dst.MulVec(m.a, x)
}

func (s *cgSolver) Solve(dst, b *mat.VecDense) error {
	if s.a == nil {
		return errors.New("sparselinsolve: solve called before a successful factorize")
	}
	settings := &linsolve.Settings{
		Tolerance:     s.cfg.Tolerance,
		MaxIterations: s.cfg.MaxIterations,
	}
	if settings.Tolerance == 0 {
		settings.Tolerance = 1e-10
	}
	if s.diag != nil {
		diag := s.diag
		settings.PreconSolve = func(pdst *mat.VecDense, _ bool, rhs mat.Vector) error {
			n := rhs.Len()
			for i := 0; i < n; i++ {
				pdst.SetVec(i, rhs.AtVec(i)/diag[i])
			}
			return nil
		}
	}
	res, err := linsolve.Iterative(symMulVec{s.a}, b, &linsolve.CG{}, settings)
	if err != nil {
		return err
	}
	dst.CopyVec(res.X)
	s.info = Info{Name: "cg", Iterations: res.Stats.Iterations, ResidNorm: res.ResidualNorm}
	return nil
}

func (s *cgSolver) GetInfo() Info { return s.info }
