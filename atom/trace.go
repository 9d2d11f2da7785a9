// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"fmt"
	"log"
	"strings"
)

// tracer accumulates a single human-readable line per decoded
// instruction, flushed after each instruction, each Switch case test
// and before each recursive call. When disabled no formatting takes
// place at all.
type tracer struct {
	enabled bool
	depth   uint16
	buf     strings.Builder
}

func (t *tracer) printf(format string, args ...any) {
	if !t.enabled {
		return
	}

	fmt.Fprintf(&t.buf, format, args...)
}

func (t *tracer) flush() {
	if !t.enabled || t.buf.Len() == 0 {
		return
	}

	log.Printf("atom: [%d] %s", t.depth, t.buf.String())
	t.buf.Reset()
}

func (in *Interpreter) tracef(format string, args ...any) {
	in.trace.printf(format, args...)
}

func (in *Interpreter) flushTrace() {
	in.trace.flush()
}

// traceWorkSpace annotates a workspace operand, naming the context
// field aliases.
func (in *Interpreter) traceWorkSpace(index uint8) {
	switch index {
	case wsQuotient:
		in.tracef(" ws[quotient]")
	case wsRemainder:
		in.tracef(" ws[remainder]")
	case wsDataPtr:
		in.tracef(" ws[dataptr]")
	case wsShift:
		in.tracef(" ws[shift]")
	case wsOrMask:
		in.tracef(" ws[ormask]")
	case wsAndMask:
		in.tracef(" ws[andmask]")
	case wsFBWindow:
		in.tracef(" ws[fbwindow]")
	case wsAttributes:
		in.tracef(" ws[attributes]")
	case wsRegPtr:
		in.tracef(" ws[regptr]")
	default:
		in.tracef(" ws[%02x]", index)
	}
}

// traceLane prints an operand value aligned within its 32-bit lane.
func (in *Interpreter) traceLane(mode AddressMode, value uint32) {
	switch mode {
	case ModeDWord:
		in.tracef("[%08x]", value)
	case ModeWord0:
		in.tracef("[    %04x]", value)
	case ModeWord8:
		in.tracef("[  %04x  ]", value)
	case ModeWord16:
		in.tracef("[%04x    ]", value)
	case ModeByte0:
		in.tracef("[      %02x]", value)
	case ModeByte8:
		in.tracef("[    %02x  ]", value)
	case ModeByte16:
		in.tracef("[  %02x    ]", value)
	case ModeByte24:
		in.tracef("[%02x      ]", value)
	}
}

// traceMergeLane prints the value about to be merged into the
// destination lane.
func (in *Interpreter) traceMergeLane(mode AddressMode, value uint32) {
	if !in.trace.enabled {
		return
	}

	in.tracef(" =>")
	in.traceLane(mode, value)
}
