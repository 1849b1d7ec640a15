// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command nlmindemo drives the nlmin minimization engine against the seed
// problems from the engine's testable-properties scenarios, reporting the
// resulting SolverInfo and optionally rendering the energy trace.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/shapeopt/nlmin"
)

// zerologAdapter satisfies nlmin.Logger by forwarding to a zerolog.Logger,
// the structured logging library this demo uses in place of the library's
// own no-op default sink.
type zerologAdapter struct {
	log zerolog.Logger
}

func (z zerologAdapter) Debugf(format string, args ...any) {
	z.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z zerologAdapter) Errorf(format string, args ...any) {
	z.log.Error().Msg(fmt.Sprintf(format, args...))
}

var (
	flagMaxIterations int
	flagGradNorm      float64
	flagPlot          string
	flagVerbose       bool
)

func main() {
	root := &cobra.Command{
		Use:   "nlmindemo",
		Short: "Drive the nlmin nonlinear minimization engine against seed problems",
	}
	root.PersistentFlags().IntVar(&flagMaxIterations, "max-iterations", 200, "iteration budget")
	root.PersistentFlags().Float64Var(&flagGradNorm, "grad-norm", 1e-7, "gradient-norm stop threshold")
	root.PersistentFlags().StringVar(&flagPlot, "plot", "", "write the energy-trace convergence curve to this PNG path")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug-level logging")

	root.AddCommand(
		newQuadraticCmd(),
		newRosenbrockCmd(),
		newMaterialCmd(),
		newRemeshCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// report prints a one-line human summary of a solve and, when flagPlot is
// set, renders the recorded trace to a PNG via gonum/plot.
func report(log zerolog.Logger, name string, info nlmin.SolverInfo, err error, trace []traceRow) {
	ev := log.Info()
	if err != nil {
		ev = log.Warn()
	}
	ev.Str("scenario", name).
		Str("status", info.Status.String()).
		Str("error_code", info.ErrorCode.String()).
		Int("iterations", info.Iterations).
		Float64("grad_norm", info.GradNorm).
		Dur("total_time", info.TotalTime).
		Msg("solve finished")

	if len(trace) > 0 {
		gradNorms := make([]float64, len(trace))
		for i, r := range trace {
			gradNorms[i] = r.gradNorm
		}
		mean, variance := stat.MeanVariance(gradNorms, nil)
		log.Info().Str("scenario", name).
			Float64("grad_norm_mean", mean).
			Float64("grad_norm_variance", variance).
			Msg("energy trace summary")
	}

	if flagPlot != "" && len(trace) > 0 {
		if err := plotTrace(flagPlot, name, trace); err != nil {
			log.Error().Err(err).Msg("failed to render convergence plot")
		}
	}
}

// traceRow is one line of the recorded energy trace, parsed back out of the
// wire format for the demo's own reporting/plotting use.
type traceRow struct {
	energy, gradNorm float64
}

type tracePoints []traceRow

func (t tracePoints) Len() int               { return len(t) }
func (t tracePoints) XY(i int) (x, y float64) { return float64(i), t[i].energy }

func plotTrace(path, title string, rows []traceRow) error {
	p := plot.New()
	p.Title.Text = title + ": energy vs iteration"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "energy"

	line, err := plotter.NewLine(tracePoints(rows))
	if err != nil {
		return err
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func newQuadraticCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "quadratic",
		Short: "Run the convex-quadratic seed scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			prob := newQuadraticProblem(n)
			x := make([]float64, n)

			rec := newTraceRecorder()
			m, err := nlmin.NewMinimizer(nlmin.Config{
				MaxIterations:     flagMaxIterations,
				GradNorm:          flagGradNorm,
				Logger:            zerologAdapter{log},
				EnergyTraceWriter: rec,
			})
			if err != nil {
				return err
			}
			info, solveErr := m.Minimize(prob, &x)
			report(log, "quadratic", info, solveErr, rec.rows())
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 100, "problem dimension")
	return cmd
}

func newRosenbrockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rosenbrock",
		Short: "Run the 2D Rosenbrock seed scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			prob := rosenbrockProblem{}
			x := []float64{-1.2, 1.0}

			rec := newTraceRecorder()
			m, err := nlmin.NewMinimizer(nlmin.Config{
				MaxIterations:     flagMaxIterations,
				GradNorm:          flagGradNorm,
				Logger:            zerologAdapter{log},
				EnergyTraceWriter: rec,
			})
			if err != nil {
				return err
			}
			info, solveErr := m.Minimize(prob, &x)
			report(log, "rosenbrock", info, solveErr, rec.rows())
			return nil
		},
	}
	return cmd
}

func newMaterialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "material",
		Short: "Run the material-optimization surrogate scenario (a convex quartic penalty)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			prob := newMaterialProblem()
			x := prob.initialX()

			rec := newTraceRecorder()
			m, err := nlmin.NewMinimizer(nlmin.Config{
				MaxIterations:     flagMaxIterations,
				GradNorm:          1e-9,
				Logger:            zerologAdapter{log},
				EnergyTraceWriter: rec,
			})
			if err != nil {
				return err
			}
			info, solveErr := m.Minimize(prob, &x)
			report(log, "material", info, solveErr, rec.rows())
			return nil
		},
	}
	return cmd
}

func newRemeshCmd() *cobra.Command {
	var n, triggerAt, grow int
	cmd := &cobra.Command{
		Use:   "remesh",
		Short: "Run the dimension-change-via-remesh seed scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			prob := newRemeshProblem(n, triggerAt, grow)
			x := make([]float64, n)

			rec := newTraceRecorder()
			m, err := nlmin.NewMinimizer(nlmin.Config{
				MaxIterations:     flagMaxIterations,
				GradNorm:          flagGradNorm,
				Logger:            zerologAdapter{log},
				EnergyTraceWriter: rec,
			})
			if err != nil {
				return err
			}
			info, solveErr := m.Minimize(prob, &x)
			report(log, "remesh", info, solveErr, rec.rows())
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "initial problem dimension")
	cmd.Flags().IntVar(&triggerAt, "trigger-at", 5, "accepted iteration at which the remesh fires")
	cmd.Flags().IntVar(&grow, "grow", 3, "number of new degrees of freedom the remesh adds")
	return cmd
}
