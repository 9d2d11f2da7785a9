// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"fmt"
	"log"
	"time"
)

// Context is the interpreter state shared between calls to different
// tables. Its lifetime is a single top-level Execute call.
type Context struct {
	// DivMul holds quotient/remainder or the low/high product halves.
	DivMul [2]uint32

	FBBase    uint32
	DataBlock uint16
	RegBlock  uint16

	IOMode IOMode

	// IIOProgram is only valid when IOMode is IOIIO.
	IIOProgram uint8

	Shift  uint8
	IOAttr uint16

	CompEqual bool
	CompAbove bool
}

// Interpreter executes the bytecode of one command table, recursing
// through CallTable with a shared Context.
type Interpreter struct {
	bios *Bios
	dev  Device
	ctx  *Context
	desc CommandDescriptor

	ps []uint32
	ws []uint32

	// pc indexes the bytecode, 0 is the first opcode after the
	// 6-byte command header
	pc uint16

	depth uint16
	trace tracer

	// sticky bytecode decode error
	err error
}

// Execute runs the given command table with a fresh Context. The
// parameter space is shared with the caller and must cover the
// parameter space size the command declares.
func Execute(b *Bios, dev Device, cmd Command, params []uint32) error {
	var ctx Context
	return executeRecursive(&ctx, b, dev, cmd, params, 0)
}

func executeRecursive(ctx *Context, b *Bios, dev Device, cmd Command, params []uint32, depth uint16) error {
	if depth >= maxCallDepth {
		return fmt.Errorf("%w: call depth limit exceeded", ErrIO)
	}

	desc, err := b.Command(cmd)

	if err != nil {
		return err
	}

	if len(params)*4 < int(desc.ParameterSpaceSize) {
		return fmt.Errorf("%w: command %#02x requires %d parameter bytes, %d available",
			ErrIO, cmd, desc.ParameterSpaceSize, len(params)*4)
	}

	in := &Interpreter{
		bios:  b,
		dev:   dev,
		ctx:   ctx,
		desc:  desc,
		ps:    params,
		ws:    make([]uint32, int(desc.WorkSpaceSize)/4),
		depth: depth,
		trace: tracer{enabled: b.Debug, depth: depth},
	}

	in.tracef("--- Executing command %04x @ %04x (len=%04x, ps=%02x, ws=%02x)",
		cmd, desc.Base, desc.Size, desc.ParameterSpaceSize, desc.WorkSpaceSize)
	in.flushTrace()

	for {
		cont, err := in.next()
		in.flushTrace()

		if err != nil {
			return err
		}

		if !cont {
			return nil
		}
	}
}

// read8 consumes the next bytecode byte. Out-of-range reads latch a
// sticky error checked once per instruction.
func (in *Interpreter) read8() uint8 {
	v, err := in.bios.img.Read8(uint32(in.desc.Base) + commandHeaderSize + uint32(in.pc))

	if err != nil && in.err == nil {
		in.err = err
	}

	in.pc++
	return v
}

func (in *Interpreter) read16() uint16 {
	lo := in.read8()
	hi := in.read8()
	return uint16(lo) | uint16(hi)<<8
}

func (in *Interpreter) read32() uint32 {
	lo := in.read16()
	hi := in.read16()
	return uint32(lo) | uint32(hi)<<16
}

func (in *Interpreter) readImmediate(mode AddressMode) uint32 {
	switch mode {
	case ModeDWord:
		return in.read32()
	case ModeWord0, ModeWord8, ModeWord16:
		return uint32(in.read16())
	default:
		return uint32(in.read8())
	}
}

// next decodes and executes a single instruction, returning false on
// Eot.
func (in *Interpreter) next() (cont bool, err error) {
	startPC := in.pc
	inst := in.read8()

	if in.err != nil {
		return false, in.err
	}

	desc := instructionTable[0]

	if int(inst) < len(instructionTable) {
		desc = instructionTable[inst]
	}

	in.tracef("%04x+%04x: %-12s", in.desc.Base, startPC, opcodeNames[desc.op])

	switch desc.op {
	case OpInvalid:
		return false, fmt.Errorf("%w: invalid instruction %#02x at %04x+%04x", ErrIO, inst, in.desc.Base, startPC)
	case OpMove:
		attr := in.read8()

		var dst Operand

		// When moving dwords the destination register is not
		// read first, some hardware registers change the value
		// of the next read as a side effect.
		if AddressMode((attr>>3)&0x7) == ModeDWord {
			dst, err = in.readDstSkip(desc.loc, attr)
		} else {
			dst, err = in.readDst(desc.loc, attr)
		}

		if err != nil {
			return
		}

		var src Operand

		if src, err = in.readSrc(attr); err != nil {
			return
		}

		if err = in.writeDst(dst, src.Value()); err != nil {
			return
		}
	case OpAnd:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		err = in.writeDst(dst, dst.Value()&src.Value())

		if err != nil {
			return false, err
		}
	case OpOr:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		err = in.writeDst(dst, dst.Value()|src.Value())

		if err != nil {
			return false, err
		}
	case OpXor:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		err = in.writeDst(dst, dst.Value()^src.Value())

		if err != nil {
			return false, err
		}
	case OpAdd:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		err = in.writeDst(dst, dst.Value()+src.Value())

		if err != nil {
			return false, err
		}
	case OpSub:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		err = in.writeDst(dst, dst.Value()-src.Value())

		if err != nil {
			return false, err
		}
	case OpShiftLeft:
		attr := in.read8()
		attr &= 0x38
		attr |= defDst[attr>>3] << 6

		dst, err := in.readDst(desc.loc, attr)

		if err != nil {
			return false, err
		}

		shift := in.readImmediate(ModeByte0)
		in.tracef(" shift:%02x", shift)

		err = in.writeDst(dst, dst.Value()<<shift)

		if err != nil {
			return false, err
		}
	case OpShiftRight:
		attr := in.read8()
		attr &= 0x38
		attr |= defDst[attr>>3] << 6

		dst, err := in.readDst(desc.loc, attr)

		if err != nil {
			return false, err
		}

		shift := in.readImmediate(ModeByte0)
		in.tracef(" shift:%02x", shift)

		err = in.writeDst(dst, dst.Value()>>shift)

		if err != nil {
			return false, err
		}
	case OpShl:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		var result uint32

		if n := src.Value(); n < 32 {
			result = Operand{Raw: dst.Raw << n, Loc: dst.Loc, Mode: dst.Mode, PC: dst.PC}.Value()
		}

		err = in.writeDst(dst, result)

		if err != nil {
			return false, err
		}
	case OpShr:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		var result uint32

		if n := src.Value(); n < 32 {
			result = Operand{Raw: dst.Raw >> n, Loc: dst.Loc, Mode: dst.Mode, PC: dst.PC}.Value()
		}

		err = in.writeDst(dst, result)

		if err != nil {
			return false, err
		}
	case OpMul:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		in.ctx.DivMul[0] = dst.Value() * src.Value()
		in.tracef(" => %08x", in.ctx.DivMul[0])
	case OpDiv:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		if src.Value() != 0 {
			in.ctx.DivMul[0] = dst.Value() / src.Value()
			in.ctx.DivMul[1] = dst.Value() % src.Value()
		} else {
			in.ctx.DivMul[0] = 0
			in.ctx.DivMul[1] = 0
		}

		in.tracef(" => %08x %08x", in.ctx.DivMul[0], in.ctx.DivMul[1])
	case OpMul32:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		result := uint64(dst.Value()) * uint64(src.Value())
		in.ctx.DivMul[0] = uint32(result)
		in.ctx.DivMul[1] = uint32(result >> 32)
		in.tracef(" => %08x %08x", in.ctx.DivMul[1], in.ctx.DivMul[0])
	case OpDiv32:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		if src.Value() != 0 {
			num := uint64(dst.Value()) | uint64(in.ctx.DivMul[1])<<32
			result := num / uint64(src.Value())
			in.ctx.DivMul[0] = uint32(result)
			in.ctx.DivMul[1] = uint32(result >> 32)
		} else {
			in.ctx.DivMul[0] = 0
			in.ctx.DivMul[1] = 0
		}

		in.tracef(" => %08x %08x", in.ctx.DivMul[1], in.ctx.DivMul[0])
	case OpCompare:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		in.ctx.CompAbove = dst.Value() > src.Value()
		in.ctx.CompEqual = dst.Value() == src.Value()

		if in.ctx.CompAbove {
			in.tracef(" => above")
		} else {
			in.tracef(" => below")
		}

		if in.ctx.CompEqual {
			in.tracef(" equal")
		} else {
			in.tracef(" notequal")
		}
	case OpTest:
		dst, src, err := in.readDstSrc(desc.loc)

		if err != nil {
			return false, err
		}

		in.ctx.CompEqual = dst.Value()&src.Value() == 0

		if in.ctx.CompEqual {
			in.tracef(" => equal")
		} else {
			in.tracef(" => notequal")
		}
	case OpMask:
		attr := in.read8()

		dst, err := in.readDst(desc.loc, attr)

		if err != nil {
			return false, err
		}

		mask := in.readImmediate(AddressMode((attr >> 3) & 0x7))
		in.tracef(" mask:%08x", mask)

		src, err := in.readSrc(attr)

		if err != nil {
			return false, err
		}

		err = in.writeDst(dst, dst.Value()&mask|src.Value())

		if err != nil {
			return false, err
		}
	case OpClear:
		attr := in.read8()
		attr &= 0x38
		attr |= defDst[attr>>3] << 6

		dst, err := in.readDst(desc.loc, attr)

		if err != nil {
			return false, err
		}

		err = in.writeDst(dst, 0)

		if err != nil {
			return false, err
		}
	case OpSetPort:
		switch desc.port {
		case PortATI:
			port := in.read16()

			if port == 0 {
				in.ctx.IOMode = IOMemoryMapped
				in.tracef(" mm")
			} else {
				in.ctx.IOMode = IOIIO
				in.ctx.IIOProgram = uint8(port)

				if int(port) < len(ioNames) {
					in.tracef(" iio:%s", ioNames[port])
				} else {
					in.tracef(" iio:%02x", port)
				}
			}
		case PortPCI:
			_ = in.read8()
			in.ctx.IOMode = IOPCI
			in.tracef(" pci")
		case PortSysIO:
			_ = in.read8()
			in.ctx.IOMode = IOSysIO
			in.tracef(" sysio")
		}
	case OpSetRegBlock:
		in.ctx.RegBlock = in.read16()
		in.tracef(" block:%04x", in.ctx.RegBlock)
	case OpSetFBBase:
		attr := in.read8()

		src, err := in.readSrc(attr)

		if err != nil {
			return false, err
		}

		in.ctx.FBBase = src.Value()
	case OpSetDataBlock:
		index := in.read8()
		in.tracef(" block:%02x", index)

		switch index {
		case 0:
			in.ctx.DataBlock = 0
		case 255:
			in.ctx.DataBlock = in.desc.Base
		default:
			off, err := in.bios.Datatable(index)

			if err != nil {
				return false, err
			}

			in.ctx.DataBlock = off
		}

		in.tracef(" base:%04x", in.ctx.DataBlock)
	case OpJump:
		target := in.read16()
		take := false

		in.tracef(" %s %04x", condNames[desc.cond], target)

		switch desc.cond {
		case CondAlways:
			take = true
		case CondEqual:
			take = in.ctx.CompEqual
		case CondBelow:
			take = !(in.ctx.CompAbove || in.ctx.CompEqual)
		case CondAbove:
			take = in.ctx.CompAbove
		case CondBelowOrEqual:
			take = !in.ctx.CompAbove
		case CondAboveOrEqual:
			take = in.ctx.CompAbove || in.ctx.CompEqual
		case CondNotEqual:
			take = !in.ctx.CompEqual
		}

		if take {
			in.tracef(" => taken")
			// the encoded target indexes from the command
			// header, pc indexes from the first opcode
			in.pc = target - commandHeaderSize
		} else {
			in.tracef(" => not taken")
		}
	case OpSwitch:
		attr := in.read8()

		src, err := in.readSrc(attr)

		if err != nil {
			return false, err
		}

		in.flushTrace()

		stop := false

		for !stop {
			caseType := in.read8()

			if in.err != nil {
				return false, in.err
			}

			switch caseType {
			case caseMagic:
				cond := in.readImmediate(src.Mode)
				target := in.read16()

				in.tracef("  case:%08x target:%04x", cond, target)

				if cond == src.Value() {
					in.tracef(" => taken")
					// the encoded target indexes from
					// the command header
					in.pc = target - commandHeaderSize
					stop = true
				}

				in.flushTrace()
			case caseEnd:
				// two case ends mark the end of the switch
				if in.read8() != caseEnd {
					return false, fmt.Errorf("%w: invalid case end", ErrIO)
				}

				stop = true
			default:
				return false, fmt.Errorf("%w: invalid case %#02x", ErrIO, caseType)
			}
		}
	case OpCallTable:
		index := in.read8()

		if in.err != nil {
			return false, in.err
		}

		off := int(in.desc.ParameterSpaceSize) / 4

		if off > len(in.ps) {
			return false, fmt.Errorf("%w: parameter space overrun on call to %#02x", ErrIO, index)
		}

		in.tracef(" %02x", index)
		in.flushTrace()

		err = executeRecursive(in.ctx, in.bios, in.dev, Command(index), in.ps[off:], in.depth+1)

		if err != nil {
			return false, err
		}
	case OpDelay:
		count := in.read8()

		switch desc.unit {
		case UnitMicroSecond:
			in.tracef(" %dus", count)
			in.dev.Delay(time.Duration(count) * time.Microsecond)
		case UnitMilliSecond:
			in.tracef(" %dms", count)
			in.dev.Delay(time.Duration(count) * time.Millisecond)
		}
	case OpPostCard:
		in.tracef(" => %02x", in.read8())
	case OpBeep:
		log.Printf("atom: beep!")
	case OpDebug:
		in.tracef(" => %02x", in.read8())
	case OpProcessDS:
		in.tracef(" => %04x", in.read16())
	case OpNop:
	case OpEot:
		return false, in.err
	case OpRepeat, OpSaveReg, OpRestoreReg:
		return false, fmt.Errorf("%w: opcode %s", ErrNotImplemented, opcodeNames[desc.op])
	}

	if err != nil {
		return false, err
	}

	if in.err != nil {
		return false, in.err
	}

	return true, nil
}

// readDstSrc reads the destination and source operands of a two
// operand instruction, in that order.
func (in *Interpreter) readDstSrc(loc Location) (dst, src Operand, err error) {
	attr := in.read8()

	if dst, err = in.readDst(loc, attr); err != nil {
		return
	}

	src, err = in.readSrc(attr)
	return
}

// readDst reads the destination operand. Its address mode is derived
// from the source address mode and the dst_mod attribute bits.
func (in *Interpreter) readDst(loc Location, attr uint8) (Operand, error) {
	dstMod := (attr >> 6) & 0x3
	mode := (attr >> 3) & 0x7
	dstAttr := uint8(loc) | uint8(srcToDstAlign[mode][dstMod])<<3
	return in.readSrc(dstAttr)
}

// readDstSkip decodes the destination operand bytes without accessing
// the location, used by dword moves to avoid a side-effecting read.
func (in *Interpreter) readDstSkip(loc Location, attr uint8) (op Operand, err error) {
	attr = uint8(loc) | uint8(srcToDstAlign[(attr>>3)&0x7][(attr>>6)&0x3])<<3

	pc := in.pc
	mode := AddressMode((attr >> 3) & 0x7)

	switch loc {
	case LocRegister:
		index := uint32(in.read16()) + uint32(in.ctx.RegBlock)
		in.tracef(" reg[%04x]", index)
	case LocParameterSpace:
		in.tracef(" ps[%02x]", in.read8())
	case LocWorkSpace:
		in.traceWorkSpace(in.read8())
	case LocID:
		in.tracef(" id[%04x]", in.read16())
	case LocImmediate:
		return op, fmt.Errorf("%w: immediate destination operand", ErrIO)
	case LocFrameBuffer:
		in.tracef(" fb[%02x]", in.read8())
		return op, fmt.Errorf("%w: framebuffer access", ErrNotImplemented)
	case LocPhaseLockedLoop:
		in.tracef(" pll[%02x]", in.read8())
		return op, fmt.Errorf("%w: pll register access", ErrNotImplemented)
	case LocMemController:
		in.tracef(" mc[%02x]", in.read8())
		return op, fmt.Errorf("%w: mc register access", ErrNotImplemented)
	}

	in.tracef("[        ]")

	return Operand{Raw: 0xcdcdcdcd, Loc: loc, Mode: mode, PC: pc}, in.err
}

// readSrc reads an operand, consuming its addressing bytes and
// fetching the full 32-bit value of the location.
func (in *Interpreter) readSrc(attr uint8) (op Operand, err error) {
	pc := in.pc
	loc := Location(attr & 0x7)
	mode := AddressMode((attr >> 3) & 0x7)

	var value uint32

	switch loc {
	case LocRegister:
		index := uint32(in.read16()) + uint32(in.ctx.RegBlock)
		in.tracef(" reg[%04x]", index)

		switch in.ctx.IOMode {
		case IOMemoryMapped:
			value = in.dev.ReadRegister(index)
		case IOPCI:
			return op, fmt.Errorf("%w: reading from PCI registers", ErrNotImplemented)
		case IOSysIO:
			return op, fmt.Errorf("%w: reading from SysIO registers", ErrNotImplemented)
		default:
			if value, err = in.executeIIO(in.ctx.IIOProgram&0x7f, index, 0); err != nil {
				return
			}
		}
	case LocParameterSpace:
		index := in.read8()
		in.tracef(" ps[%02x]", index)

		if int(index) >= len(in.ps) {
			return op, fmt.Errorf("%w: parameter space read at %#02x", ErrIO, index)
		}

		value = in.ps[index]
	case LocWorkSpace:
		index := in.read8()
		in.traceWorkSpace(index)

		switch index {
		case wsQuotient:
			value = in.ctx.DivMul[0]
		case wsRemainder:
			value = in.ctx.DivMul[1]
		case wsDataPtr:
			value = uint32(in.ctx.DataBlock)
		case wsShift:
			value = uint32(in.ctx.Shift)
		case wsOrMask:
			value = 1 << in.ctx.Shift
		case wsAndMask:
			value = ^(uint32(1) << in.ctx.Shift)
		case wsFBWindow:
			value = in.ctx.FBBase
		case wsAttributes:
			value = uint32(in.ctx.IOAttr)
		case wsRegPtr:
			value = uint32(in.ctx.RegBlock)
		default:
			if int(index) >= len(in.ws) {
				return op, fmt.Errorf("%w: workspace read at %#02x", ErrIO, index)
			}

			value = in.ws[index]
		}
	case LocID:
		index := in.read16()
		in.tracef(" id[%04x]", index)

		if value, err = in.bios.img.Read32(uint32(index) + uint32(in.ctx.DataBlock)); err != nil {
			return
		}
	case LocImmediate:
		value = in.readImmediate(mode)
		in.tracef(" imm:")
	case LocFrameBuffer:
		in.tracef(" fb[%02x]", in.read8())
		return op, fmt.Errorf("%w: framebuffer access", ErrNotImplemented)
	case LocPhaseLockedLoop:
		in.tracef(" pll[%02x]", in.read8())
		return op, fmt.Errorf("%w: pll register access", ErrNotImplemented)
	case LocMemController:
		in.tracef(" mc[%02x]", in.read8())
		return op, fmt.Errorf("%w: mc register access", ErrNotImplemented)
	}

	op = Operand{Raw: value, Loc: loc, Mode: mode, PC: pc}
	in.traceLane(op.Mode, op.Value())

	return op, in.err
}

// writeDst merges value into the captured raw dword, rewinds the
// decoder to the destination operand bytes and stores the result. The
// operand bytes are read exactly twice per instruction.
func (in *Interpreter) writeDst(op Operand, value uint32) error {
	savedPC := in.pc
	defer func() {
		in.pc = savedPC
	}()

	in.pc = op.PC

	in.traceMergeLane(op.Mode, value)
	value = op.merge(value)

	in.flushTrace()

	switch op.Loc {
	case LocRegister:
		index := uint32(in.read16()) + uint32(in.ctx.RegBlock)

		switch in.ctx.IOMode {
		case IOMemoryMapped:
			if index == 0 {
				// register 0 takes a pre-shifted value on
				// the memory mapped path
				in.dev.WriteRegister(index, value<<2)
			} else {
				in.dev.WriteRegister(index, value)
			}
		case IOPCI:
			return fmt.Errorf("%w: writing to PCI registers", ErrNotImplemented)
		case IOSysIO:
			return fmt.Errorf("%w: writing to SysIO registers", ErrNotImplemented)
		case IOIIO:
			if _, err := in.executeIIO(in.ctx.IIOProgram|0x80, index, value); err != nil {
				return err
			}
		}
	case LocParameterSpace:
		index := in.read8()

		if int(index) >= len(in.ps) {
			return fmt.Errorf("%w: parameter space write at %#02x", ErrIO, index)
		}

		in.ps[index] = value
	case LocWorkSpace:
		index := in.read8()

		switch index {
		case wsQuotient:
			in.ctx.DivMul[0] = value
		case wsRemainder:
			in.ctx.DivMul[1] = value
		case wsDataPtr:
			in.ctx.DataBlock = uint16(value)
		case wsShift:
			in.ctx.Shift = uint8(value)
		case wsOrMask, wsAndMask:
			// derived from Shift, writes are dropped
		case wsFBWindow:
			in.ctx.FBBase = value
		case wsAttributes:
			in.ctx.IOAttr = uint16(value)
		case wsRegPtr:
			in.ctx.RegBlock = uint16(value)
		default:
			if int(index) >= len(in.ws) {
				return fmt.Errorf("%w: workspace write at %#02x", ErrIO, index)
			}

			in.ws[index] = value
		}
	case LocFrameBuffer:
		_ = in.read8()
		return fmt.Errorf("%w: framebuffer access", ErrNotImplemented)
	case LocPhaseLockedLoop:
		_ = in.read8()
		return fmt.Errorf("%w: pll register access", ErrNotImplemented)
	case LocMemController:
		_ = in.read8()
		return fmt.Errorf("%w: mc register access", ErrNotImplemented)
	case LocID, LocImmediate:
		return fmt.Errorf("%w: write to read-only operand", ErrIO)
	}

	return in.err
}
