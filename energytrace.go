// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlmin

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// energyTrace writes one line per iteration to an underlying stream, owned
// by the minimizer for the duration of one minimize call and flushed after
// every row:
//
//	<energy>,<grad_norm>[,<comp_val_i>,<comp_grad_norm_i>]*
//
// with fixed-point decimal at 12 significant digits.
type energyTrace struct {
	w *bufio.Writer
}

func newEnergyTrace(w io.Writer) *energyTrace {
	return &energyTrace{w: bufio.NewWriter(w)}
}

// EnergyComponents is implemented by problems that can break their energy
// down into named contributions, exercised when export_energy_components is
// enabled.
type EnergyComponents interface {
	EnergyComponents(x []float64) (values, gradNorms []float64)
}

func (t *energyTrace) append(energy, gradNorm float64, components ...[2]float64) error {
	// fixed rounds v to 12 significant digits and prints it without an exponent.
	fixed := func(v float64) string {
		r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 12, 64), 64)
		return strconv.FormatFloat(r, 'f', -1, 64)
	}
	if _, err := fmt.Fprintf(t.w, "%s,%s", fixed(energy), fixed(gradNorm)); err != nil {
		return err
	}
	for _, c := range components {
		if _, err := fmt.Fprintf(t.w, ",%s,%s", fixed(c[0]), fixed(c[1])); err != nil {
			return err
		}
	}
	if _, err := t.w.WriteString("\n"); err != nil {
		return err
	}
	return t.w.Flush()
}
