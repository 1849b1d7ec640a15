// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlmin implements a generic nonlinear minimization engine: an
// iterative minimizer of a smooth scalar objective f: R^n → R, with a
// damped/Newton-like descent direction, a line search, a fallback descent
// strategy ladder (Newton → Quasi-Newton → Gradient), and convergence and
// bailout semantics robust to NaN/Inf, singular Hessians, non-descent
// directions and saddle points.
package nlmin

import (
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/shapeopt/nlmin/sparselinsolve"
)

// Config collects every tunable recognized by the minimizer (§6).
type Config struct {
	// Stop thresholds.
	XDelta        float64
	FDelta        float64
	GradNorm      float64
	MaxIterations int

	// RelativeGradient normalizes reported GradNorm by the initial
	// gradient norm.
	RelativeGradient bool

	// Line-search bounds and selector.
	MinStepSize     float64
	MaxStepSize     float64
	LineSearchName  string // "backtracking" (default) or "constrained"
	UseGradNormTol  bool

	// FirstGradNormTol lets minimize exit before stepping if the initial
	// gradient is already small enough.
	FirstGradNormTol float64

	// FallbackDescentStrategyPeriod is the number of accepted iterations
	// between resets of the descent ladder to its default strategy.
	FallbackDescentStrategyPeriod int

	// DefaultStrategy is the ladder's starting (and reset) strategy.
	DefaultStrategy DescentStrategy

	// LBFGSMemory bounds the quasi-Newton correction history.
	LBFGSMemory int

	// LinearSolverBackend/Preconditioner select the sparse linear solver
	// backend used by the Newton strategy.
	LinearSolverBackend      string
	LinearSolverPreconditioner string

	// DebugFD/DebugFDEps enable a central finite-difference gradient
	// audit along g/‖g‖.
	DebugFD    bool
	DebugFDEps float64

	// CheckSaddlePoint enables the terminal curvature probe.
	CheckSaddlePoint bool

	// SolverInfoLog, when non-nil, receives the final SolverInfo record.
	SolverInfoLog func(SolverInfo)

	// EnergyTraceWriter, when non-nil, receives one energy-trace line per
	// iteration.
	EnergyTraceWriter         io.Writer
	ExportEnergyComponents bool

	// Logger receives human-readable diagnostics (mismatch warnings,
	// escalation notices). Defaults to a no-op sink.
	Logger Logger
}

// Logger is the injected sink diagnostics are written to, replacing the
// original's dependency on a process-wide logging singleton.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Errorf(string, ...any) {}

func (c *Config) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return nopLogger{}
}

func (c *Config) lineSearch() LineSearch {
	bt := BacktrackingLineSearch{
		MinStepSize:    c.MinStepSize,
		MaxStepSize:    c.MaxStepSize,
		UseGradNormTol: c.UseGradNormTol,
		GradNormTol:    c.GradNorm,
	}
	if c.LineSearchName == "constrained" {
		return &ConstrainedLineSearch{Backtracking: bt}
	}
	return &bt
}

// Minimizer runs repeated minimize calls against a fixed configuration. A
// single instance is not safe for concurrent use, and minimize is not
// re-entrant; cooperative cancellation is the only supported interruption,
// via the problem's Callback returning false.
type Minimizer struct {
	cfg Config

	ladder *descentLadder
	ls     LineSearch

	stop    stopCriteria
	current Criteria
	status  Status
	code    ErrorCode

	timers timers
	trace  *energyTrace

	lastErr error
}

// NewMinimizer constructs a Minimizer with the given configuration. The
// sparse linear solver backend for the Newton strategy is built from
// cfg.LinearSolverBackend/LinearSolverPreconditioner.
func NewMinimizer(cfg Config) (*Minimizer, error) {
	applyDefaults(&cfg)

	solver, err := sparselinsolve.New(cfg.LinearSolverBackend, cfg.LinearSolverPreconditioner)
	if err != nil {
		return nil, err
	}
	solver.SetParameters(sparselinsolve.Config{
		Tolerance:          1e-10,
		PreconditionerType: cfg.LinearSolverPreconditioner,
	})

	m := &Minimizer{
		cfg:    cfg,
		ladder: newDescentLadder(solver, cfg.LBFGSMemory),
		ls:     cfg.lineSearch(),
	}
	m.ladder.timers = &m.timers
	m.stop = stopCriteria{
		Criteria: Criteria{
			Iterations: cfg.MaxIterations,
			XDelta:     cfg.XDelta,
			FDelta:     cfg.FDelta,
			GradNorm:   cfg.GradNorm,
		},
		NormalizeGradient: cfg.RelativeGradient,
	}
	return m, nil
}

func applyDefaults(cfg *Config) {
	if cfg.MaxStepSize == 0 {
		cfg.MaxStepSize = 1
	}
	if cfg.MinStepSize == 0 {
		cfg.MinStepSize = 1e-12
	}
	if cfg.FallbackDescentStrategyPeriod == 0 {
		cfg.FallbackDescentStrategyPeriod = 20
	}
	if cfg.DebugFDEps == 0 {
		cfg.DebugFDEps = 1e-7
	}
	if cfg.LBFGSMemory == 0 {
		cfg.LBFGSMemory = 10
	}
}

// Reset re-initializes all per-solve state, preserving only the configured
// line-search name, so a Minimizer instance can be reused across solves.
func (m *Minimizer) Reset() {
	m.current = Criteria{}
	m.status = Continue
	m.code = Success
	m.timers = timers{}
	m.stop.reset()
	m.ladder.current = m.cfg.DefaultStrategy
	m.ladder.def = m.cfg.DefaultStrategy
	m.ladder.onRemesh()
	m.lastErr = nil
}

// Status reports the status and error reached by the last Minimize call.
func (m *Minimizer) Status() (Status, ErrorCode) { return m.status, m.code }

// Minimize runs one solve of prob starting from *xp, mutating it in place.
// xp is a pointer because a remesh (§4.5.n) may change the problem's
// dimension mid-solve: on return, *xp always holds the final (possibly
// resized) variable, even when a remesh grew it beyond the original
// slice's capacity and a new backing array had to be allocated. Minimize
// returns the accumulated SolverInfo for the run and a non-nil error when
// the solve ended in a fatal status (NaNEncountered, IterationLimit,
// UserDefined).
func (m *Minimizer) Minimize(prob Problem, xp *[]float64) (SolverInfo, error) {
	m.Reset()
	caps := probeCapabilities(prob)

	x := *xp
	defer func() { *xp = x }()

	total := m.timers.start(phaseTotal)
	defer total.stop()

	var lsTimes lineSearchTimes
	var lsIterTotal int
	var internalSolverLog []sparselinsolveInfo

	if m.cfg.EnergyTraceWriter != nil {
		m.trace = newEnergyTrace(m.cfg.EnergyTraceWriter)
	} else {
		m.trace = nil
	}

	notifyChanged := func(xv []float64) {
		if caps.solChanged != nil {
			caps.solChanged.SolutionChanged(xv)
		}
	}

	notifyChanged(x)

	g0 := make([]float64, len(x))
	prob.Gradient(x, g0)
	if hasNaN(g0) {
		m.status, m.code = UserDefined, NaNEncounteredError
		m.lastErr = &SolveError{Status: m.status, Code: m.code, Message: "initial gradient is NaN"}
		return m.finish(lsIterTotal, lsTimes, internalSolverLog), m.lastErr
	}
	g0Norm := gradInfNorm(g0)
	if m.cfg.FirstGradNormTol > 0 && g0Norm <= m.cfg.FirstGradNormTol {
		m.current.GradNorm = g0Norm
		m.status = ConvergedGradNorm
		return m.finish(lsIterTotal, lsTimes, internalSolverLog), nil
	}

	dim := len(x)
	grad := make([]float64, dim)
	dir := make([]float64, dim)
	sinceReset := 0
	prevF := math.Inf(1)

	for {
		notifyChanged(x)

		objT := m.timers.start(phaseObjFun)
		f := prob.Value(x)
		objT.stop()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			m.status, m.code = NaNEncountered, NaNEncounteredError
			break
		}

		gradT := m.timers.start(phaseGrad)
		prob.Gradient(x, grad)
		gradT.stop()
		if hasNaN(grad) {
			m.status, m.code = NaNEncountered, NaNEncounteredError
			break
		}

		if m.cfg.DebugFD {
			m.debugCheckGradient(prob, x, f, grad)
		}

		gradNormRaw := gradInfNorm(grad)
		if m.trace != nil {
			if ec, ok := prob.(EnergyComponents); ok && m.cfg.ExportEnergyComponents {
				vals, gnorms := ec.EnergyComponents(x)
				comps := make([][2]float64, len(vals))
				for i := range vals {
					comps[i] = [2]float64{vals[i], gnorms[i]}
				}
				m.trace.append(f, gradNormRaw, comps...)
			} else {
				m.trace.append(f, gradNormRaw)
			}
		}

		assemblyT := m.timers.start(phaseAssembly)
		ok := m.ladder.direction(prob, x, grad, dir)
		assemblyT.stop()
		if ok && m.ladder.current == StrategyNewton {
			li := m.ladder.lastSolverInfo
			internalSolverLog = append(internalSolverLog, sparselinsolveInfo{
				Name: li.Name, Iterations: li.Iterations, ResidNorm: li.ResidNorm,
			})
		}
		if !ok {
			m.ladder.escalate()
			m.cfg.logger().Debugf("descent strategy failed, escalating to %v", m.ladder.current)
			continue
		}

		if !isDescent(dir, grad) {
			m.ladder.escalate()
			m.cfg.logger().Debugf("non-descent direction, escalating to %v", m.ladder.current)
			continue
		}
		if !isFinite(dir) {
			m.ladder.escalate()
			continue
		}

		m.current.XDelta = vecNorm2(dir)
		m.current.FDelta = math.Abs(prevF - f)
		prevF = f
		m.current.GradNorm = m.stop.normalize(gradNormRaw)
		m.current.Condition = 0

		if st := checkConvergence(m.stop.Criteria, m.current); st != Continue && st != IterationLimit {
			m.status = st
			break
		}

		lsT := m.timers.start(phaseLineSearch)
		res := m.ls.Search(prob, x, dir)
		lsT.stop()
		lsIterTotal += res.iterations
		lsTimes.add(res.times)

		if math.IsNaN(res.rate) {
			if m.ladder.current < StrategyGradientDescent {
				m.ladder.escalate()
				m.cfg.logger().Debugf("line search failed, escalating to %v", m.ladder.current)
				continue
			}
			m.status, m.code = UserDefined, LineSearchFailed
			break
		}

		xOld := append([]float64(nil), x...)
		for i := range x {
			x[i] += res.rate * dir[i]
		}
		m.current.XDelta = maxAbsDiff(x, xOld)

		stepNorm := vecNorm2Scaled(res.rate, dir)
		if m.current.GradNorm > m.stop.GradNorm && stepNorm < 1e-10 {
			m.status, m.code = UserDefined, StepTooSmall
			m.cfg.logger().Errorf("stopping because step is too small")
			break
		}

		sinceReset++
		if sinceReset >= m.cfg.FallbackDescentStrategyPeriod {
			m.ladder.resetToDefault()
			sinceReset = 0
		}

		if caps.postStep != nil {
			caps.postStep.PostStep(m.current.Iterations, x)
		}
		m.current.Iterations++

		if caps.remesher != nil && caps.remesher.Remesh(x) {
			newX := caps.remesher.NewX()
			x = resizeInto(x, newX)
			dim = len(x)
			grad = make([]float64, dim)
			dir = make([]float64, dim)
			m.ladder.onRemesh()
		}

		if st := checkConvergence(m.stop.Criteria, m.current); st != Continue {
			m.status = st
			break
		}

		if caps.callback != nil && !caps.callback.Callback(m.current, x) {
			m.status = UserDefined
			m.code = Success
			break
		}
	}

	if m.status == IterationLimit {
		m.code = IterationLimitExceeded
		m.lastErr = &SolveError{Status: m.status, Code: m.code, Message: "reached iteration limit"}
	} else if !m.status.Converged() && m.status != Continue {
		m.lastErr = &SolveError{Status: m.status, Code: m.code}
	}

	if m.cfg.CheckSaddlePoint && m.status.Converged() {
		if hp, ok := prob.(HessianProblem); ok {
			h := mat.NewSymDense(len(x), nil)
			hp.Hessian(x, h)
			isSaddle, err := isSaddlePoint(h, m.current.GradNorm, m.cfg.GradNorm)
			if err == nil && isSaddle {
				m.status, m.code = UserDefined, SaddlePointError
				m.lastErr = &SolveError{Status: m.status, Code: m.code, Message: "terminal point is a saddle point"}
			}
		}
	}

	return m.finish(lsIterTotal, lsTimes, internalSolverLog), m.lastErr
}

func (m *Minimizer) finish(lsIters int, lsTimes lineSearchTimes, internalSolver []sparselinsolveInfo) SolverInfo {
	info := buildSolverInfo(&m.timers, m.current, m.status, m.code, m.cfg.RelativeGradient, lsIters, lsTimes, m.cfg.LineSearchName, internalSolver)
	if m.cfg.SolverInfoLog != nil {
		m.cfg.SolverInfoLog(info)
	}
	return info
}

// debugCheckGradient verifies the analytic gradient via a central finite
// difference along g/‖g‖ at step DebugFDEps. A mismatch beyond
// max(1e-8, 0.1*|analytic|) is logged as an error; a match is logged at
// debug level.
func (m *Minimizer) debugCheckGradient(prob Problem, x []float64, analyticF float64, grad []float64) {
	norm := vecNorm2(grad)
	if norm == 0 {
		return
	}
	h := m.cfg.DebugFDEps
	n := len(x)
	xPlus := make([]float64, n)
	xMinus := make([]float64, n)
	for i := range x {
		dir := grad[i] / norm
		xPlus[i] = x[i] + h*dir
		xMinus[i] = x[i] - h*dir
	}
	fPlus := prob.Value(xPlus)
	fMinus := prob.Value(xMinus)
	fd := (fPlus - fMinus) / (2 * h)

	analyticProj := vecDot(grad, grad) / norm
	diff := math.Abs(fd - analyticProj)
	tol := math.Max(1e-8, 0.1*math.Abs(analyticProj))
	if diff > tol {
		m.cfg.logger().Errorf("gradient check mismatch: analytic=%g fd=%g diff=%g", analyticProj, fd, diff)
	} else {
		m.cfg.logger().Debugf("gradient check ok: analytic=%g fd=%g", analyticProj, fd)
	}
}

func vecNorm2(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func vecNorm2Scaled(scale float64, v []float64) float64 {
	var s float64
	for _, x := range v {
		sv := scale * x
		s += sv * sv
	}
	return math.Sqrt(s)
}

func vecDot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func maxAbsDiff(a, b []float64) float64 {
	var m float64
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > m {
			m = d
		}
	}
	return m
}

// resizeInto copies newX into a slice usable as the working x, reusing x's
// backing array when it is already large enough.
func resizeInto(x, newX []float64) []float64 {
	if cap(x) >= len(newX) {
		x = x[:len(newX)]
	} else {
		x = make([]float64, len(newX))
	}
	copy(x, newX)
	return x
}
