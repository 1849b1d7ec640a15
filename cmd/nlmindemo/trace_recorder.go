// Copyright ©2024 The shapeopt Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// traceRecorder is an io.Writer satisfying nlmin.Config.EnergyTraceWriter
// that additionally parses each emitted line back into traceRows, so the
// demo can summarize and plot the trace without re-reading a file.
type traceRecorder struct {
	buf bytes.Buffer
}

func newTraceRecorder() *traceRecorder {
	return &traceRecorder{}
}

func (r *traceRecorder) Write(p []byte) (int, error) {
	return r.buf.Write(p)
}

func (r *traceRecorder) rows() []traceRow {
	var rows []traceRow
	sc := bufio.NewScanner(bytes.NewReader(r.buf.Bytes()))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		energy, err1 := strconv.ParseFloat(fields[0], 64)
		gradNorm, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		rows = append(rows, traceRow{energy: energy, gradNorm: gradNorm})
	}
	return rows
}
