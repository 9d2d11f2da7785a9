// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

// Structure and opcode definitions from the vendor atom.h and
// atomfirmware.h headers.

// Command identifies an entry in the VBIOS command table.
type Command uint8

// AsicInit is the only command invoked directly by the driver, all
// other tables are reached through CallTable.
const CommandAsicInit Command = 0x00

// OpCode enumerates the interpreter instructions.
type OpCode uint8

const (
	OpInvalid OpCode = iota
	OpMove
	OpAnd
	OpOr
	OpShiftLeft
	OpShiftRight
	OpMul
	OpDiv
	OpAdd
	OpSub
	OpSetPort
	OpSetRegBlock
	OpSetFBBase
	OpCompare
	OpSwitch
	OpJump
	OpTest
	OpDelay
	OpCallTable
	OpRepeat
	OpClear
	OpNop
	OpEot
	OpMask
	OpPostCard
	OpBeep
	OpSaveReg
	OpRestoreReg
	OpSetDataBlock
	OpXor
	OpShl
	OpShr
	OpDebug
	OpProcessDS
	OpMul32
	OpDiv32
)

// Location selects where an operand lives.
type Location uint8

const (
	LocRegister Location = iota
	LocParameterSpace
	LocWorkSpace
	LocFrameBuffer
	LocID
	LocImmediate
	LocPhaseLockedLoop
	LocMemController
)

// Condition selects the flag combination tested by Jump.
type Condition uint8

const (
	CondAlways Condition = iota
	CondEqual
	CondBelow
	CondAbove
	CondBelowOrEqual
	CondAboveOrEqual
	CondNotEqual
)

// Port selects the register access scheme set by SetPort.
type Port uint8

const (
	PortATI Port = iota
	PortPCI
	PortSysIO
)

// Unit selects the Delay time base.
type Unit uint8

const (
	UnitMilliSecond Unit = iota
	UnitMicroSecond
)

// AddressMode selects the sub-field of a 32-bit operand.
type AddressMode uint8

const (
	ModeDWord AddressMode = iota
	ModeWord0
	ModeWord8
	ModeWord16
	ModeByte0
	ModeByte8
	ModeByte16
	ModeByte24
)

// IOMode is the register access scheme currently in effect.
type IOMode uint8

const (
	IOMemoryMapped IOMode = iota
	IOPCI
	IOSysIO
	IOIIO
)

// WorkSpace indices 0x40-0x48 alias interpreter context fields instead
// of the per-command scratch buffer.
const (
	wsQuotient   = 0x40
	wsRemainder  = 0x41
	wsDataPtr    = 0x42
	wsShift      = 0x43
	wsOrMask     = 0x44
	wsAndMask    = 0x45
	wsFBWindow   = 0x46
	wsAttributes = 0x47
	wsRegPtr     = 0x48
)

// Indirect I/O opcodes (distinct from the outer instruction set).
const (
	iioNop uint8 = iota
	iioStart
	iioRead
	iioWrite
	iioClear
	iioSet
	iioMoveIndex
	iioMoveAttr
	iioMoveData
	iioEnd
)

const (
	caseMagic = 0x63
	caseEnd   = 0x5A

	maxIIOPrograms = 256

	// CallTable nesting limit, no real VBIOS comes anywhere close
	maxCallDepth = 16
)

// instruction is a decoded instruction table entry. Which of the
// secondary fields is meaningful depends on the opcode.
type instruction struct {
	op   OpCode
	loc  Location
	cond Condition
	port Port
	unit Unit
}

func ins(op OpCode) instruction                  { return instruction{op: op} }
func insLoc(op OpCode, l Location) instruction   { return instruction{op: op, loc: l} }
func insCond(op OpCode, c Condition) instruction { return instruction{op: op, cond: c} }
func insPort(op OpCode, p Port) instruction      { return instruction{op: op, port: p} }
func insUnit(op OpCode, u Unit) instruction      { return instruction{op: op, unit: u} }

// instructionTable maps the 7-bit instruction byte to its opcode and
// secondary operand. The layout must match the vendor table exactly.
var instructionTable = [127]instruction{
	ins(OpInvalid),
	insLoc(OpMove, LocRegister),
	insLoc(OpMove, LocParameterSpace),
	insLoc(OpMove, LocWorkSpace),
	insLoc(OpMove, LocFrameBuffer),
	insLoc(OpMove, LocPhaseLockedLoop),
	insLoc(OpMove, LocMemController),
	insLoc(OpAnd, LocRegister),
	insLoc(OpAnd, LocParameterSpace),
	insLoc(OpAnd, LocWorkSpace),
	insLoc(OpAnd, LocFrameBuffer),
	insLoc(OpAnd, LocPhaseLockedLoop),
	insLoc(OpAnd, LocMemController),
	insLoc(OpOr, LocRegister),
	insLoc(OpOr, LocParameterSpace),
	insLoc(OpOr, LocWorkSpace),
	insLoc(OpOr, LocFrameBuffer),
	insLoc(OpOr, LocPhaseLockedLoop),
	insLoc(OpOr, LocMemController),
	insLoc(OpShiftLeft, LocRegister),
	insLoc(OpShiftLeft, LocParameterSpace),
	insLoc(OpShiftLeft, LocWorkSpace),
	insLoc(OpShiftLeft, LocFrameBuffer),
	insLoc(OpShiftLeft, LocPhaseLockedLoop),
	insLoc(OpShiftLeft, LocMemController),
	insLoc(OpShiftRight, LocRegister),
	insLoc(OpShiftRight, LocParameterSpace),
	insLoc(OpShiftRight, LocWorkSpace),
	insLoc(OpShiftRight, LocFrameBuffer),
	insLoc(OpShiftRight, LocPhaseLockedLoop),
	insLoc(OpShiftRight, LocMemController),
	insLoc(OpMul, LocRegister),
	insLoc(OpMul, LocParameterSpace),
	insLoc(OpMul, LocWorkSpace),
	insLoc(OpMul, LocFrameBuffer),
	insLoc(OpMul, LocPhaseLockedLoop),
	insLoc(OpMul, LocMemController),
	insLoc(OpDiv, LocRegister),
	insLoc(OpDiv, LocParameterSpace),
	insLoc(OpDiv, LocWorkSpace),
	insLoc(OpDiv, LocFrameBuffer),
	insLoc(OpDiv, LocPhaseLockedLoop),
	insLoc(OpDiv, LocMemController),
	insLoc(OpAdd, LocRegister),
	insLoc(OpAdd, LocParameterSpace),
	insLoc(OpAdd, LocWorkSpace),
	insLoc(OpAdd, LocFrameBuffer),
	insLoc(OpAdd, LocPhaseLockedLoop),
	insLoc(OpAdd, LocMemController),
	insLoc(OpSub, LocRegister),
	insLoc(OpSub, LocParameterSpace),
	insLoc(OpSub, LocWorkSpace),
	insLoc(OpSub, LocFrameBuffer),
	insLoc(OpSub, LocPhaseLockedLoop),
	insLoc(OpSub, LocMemController),
	insPort(OpSetPort, PortATI),
	insPort(OpSetPort, PortPCI),
	insPort(OpSetPort, PortSysIO),
	ins(OpSetRegBlock),
	ins(OpSetFBBase),
	insLoc(OpCompare, LocRegister),
	insLoc(OpCompare, LocParameterSpace),
	insLoc(OpCompare, LocWorkSpace),
	insLoc(OpCompare, LocFrameBuffer),
	insLoc(OpCompare, LocPhaseLockedLoop),
	insLoc(OpCompare, LocMemController),
	ins(OpSwitch),
	insCond(OpJump, CondAlways),
	insCond(OpJump, CondEqual),
	insCond(OpJump, CondBelow),
	insCond(OpJump, CondAbove),
	insCond(OpJump, CondBelowOrEqual),
	insCond(OpJump, CondAboveOrEqual),
	insCond(OpJump, CondNotEqual),
	insLoc(OpTest, LocRegister),
	insLoc(OpTest, LocParameterSpace),
	insLoc(OpTest, LocWorkSpace),
	insLoc(OpTest, LocFrameBuffer),
	insLoc(OpTest, LocPhaseLockedLoop),
	insLoc(OpTest, LocMemController),
	insUnit(OpDelay, UnitMilliSecond),
	insUnit(OpDelay, UnitMicroSecond),
	ins(OpCallTable),
	ins(OpRepeat),
	insLoc(OpClear, LocRegister),
	insLoc(OpClear, LocParameterSpace),
	insLoc(OpClear, LocWorkSpace),
	insLoc(OpClear, LocFrameBuffer),
	insLoc(OpClear, LocPhaseLockedLoop),
	insLoc(OpClear, LocMemController),
	ins(OpNop),
	ins(OpEot),
	insLoc(OpMask, LocRegister),
	insLoc(OpMask, LocParameterSpace),
	insLoc(OpMask, LocWorkSpace),
	insLoc(OpMask, LocFrameBuffer),
	insLoc(OpMask, LocPhaseLockedLoop),
	insLoc(OpMask, LocMemController),
	ins(OpPostCard),
	ins(OpBeep),
	ins(OpSaveReg),
	ins(OpRestoreReg),
	ins(OpSetDataBlock),
	insLoc(OpXor, LocRegister),
	insLoc(OpXor, LocParameterSpace),
	insLoc(OpXor, LocWorkSpace),
	insLoc(OpXor, LocFrameBuffer),
	insLoc(OpXor, LocPhaseLockedLoop),
	insLoc(OpXor, LocMemController),
	insLoc(OpShl, LocRegister),
	insLoc(OpShl, LocParameterSpace),
	insLoc(OpShl, LocWorkSpace),
	insLoc(OpShl, LocFrameBuffer),
	insLoc(OpShl, LocPhaseLockedLoop),
	insLoc(OpShl, LocMemController),
	insLoc(OpShr, LocRegister),
	insLoc(OpShr, LocParameterSpace),
	insLoc(OpShr, LocWorkSpace),
	insLoc(OpShr, LocFrameBuffer),
	insLoc(OpShr, LocPhaseLockedLoop),
	insLoc(OpShr, LocMemController),
	ins(OpDebug),
	ins(OpProcessDS),
	insLoc(OpMul32, LocParameterSpace),
	insLoc(OpMul32, LocWorkSpace),
	insLoc(OpDiv32, LocParameterSpace),
	insLoc(OpDiv32, LocWorkSpace),
}

var opcodeNames = [...]string{
	"invalid",
	"move",
	"and",
	"or",
	"shiftleft",
	"shiftright",
	"mul",
	"div",
	"add",
	"sub",
	"setport",
	"setregblock",
	"setfbbase",
	"compare",
	"switch",
	"jump",
	"test",
	"delay",
	"calltable",
	"repeat",
	"clear",
	"nop",
	"eot",
	"mask",
	"postcard",
	"beep",
	"savereg",
	"restorereg",
	"setdatablock",
	"xor",
	"shl",
	"shr",
	"debug",
	"processds",
	"mul32",
	"div32",
}

var condNames = [...]string{
	"always",
	"equal",
	"below",
	"above",
	"beloworequal",
	"aboveorequal",
	"notequal",
}

var ioNames = [...]string{
	"mm",
	"pll",
	"mc",
	"pcie",
	"pcie port",
}

// srcToDstAlign derives the destination address mode from the source
// address mode (row) and the two dst_mod attribute bits (column).
var srcToDstAlign = [8][4]AddressMode{
	{ModeDWord, ModeDWord, ModeDWord, ModeDWord},
	{ModeWord0, ModeWord8, ModeWord16, ModeDWord},
	{ModeWord0, ModeWord8, ModeWord16, ModeDWord},
	{ModeWord0, ModeWord8, ModeWord16, ModeDWord},
	{ModeByte0, ModeByte8, ModeByte16, ModeByte24},
	{ModeByte0, ModeByte8, ModeByte16, ModeByte24},
	{ModeByte0, ModeByte8, ModeByte16, ModeByte24},
	{ModeByte0, ModeByte8, ModeByte16, ModeByte24},
}

// defDst supplies the dst_mod bits for instructions that do not encode
// them (shift-by-immediate and Clear).
var defDst = [8]uint8{0, 0, 1, 2, 0, 1, 2, 3}
