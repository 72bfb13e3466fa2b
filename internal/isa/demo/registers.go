// Package demo is a small, concrete target machine description used to
// exercise the two backend passes end to end: six general-purpose registers
// plus a single condition-flags register, modeled closely enough on amd64
// that its instructions lower through golang-asm's x86 assembler (encoding.go).
package demo

import (
	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/regalloc"
)

// Register units. R0 doubles as the ABI's first-argument/return register and
// as imul's implicit accumulator (encoding.go, constraints.go), the same
// role AX plays on amd64.
const (
	R0 ir.RealReg = iota
	R1
	R2
	R3
	R4
	R5
	numGPR

	Flags ir.RealReg = numGPR
)

var gprOrder = []ir.RealReg{R0, R1, R2, R3, R4, R5}
var flagsOrder = []ir.RealReg{Flags}

var realRegNames = map[ir.RealReg]string{
	R0: "r0", R1: "r1", R2: "r2", R3: "r3", R4: "r4", R5: "r5",
	Flags: "flags",
}

func realRegName(r ir.RealReg) string {
	if n, ok := realRegNames[r]; ok {
		return n
	}
	return "?"
}

// registerInfo is shared by every function: the demo ISA reserves nothing
// for a prologue, so AllocatableRegisters ignores its fn argument.
var registerInfo = &regalloc.RegisterInfo{
	Allocatable: [regalloc.NumRegClass][]ir.RealReg{
		regalloc.ClassGPR:   gprOrder,
		regalloc.ClassFlags: flagsOrder,
	},
	RealRegName: realRegName,
}

// ABI: the first 4 parameters and the sole return value travel in R0-R3/R0;
// everything past the fourth parameter is stack-homed. Grounded on the
// teacher's own amd64 ABI table (backend/abi, first integer args in
// registers, the rest on the stack).
var argRegs = []ir.RealReg{R0, R1, R2, R3}

// Signature builds the ABI-assigned Signature for a function with the given
// parameter/return types, implementing the collaborator that produces
// ir.Signature (§3) for this target.
func Signature(params, returns []ir.Type) *ir.Signature {
	sig := &ir.Signature{
		Params:  make([]ir.ArgumentLoc, len(params)),
		Returns: make([]ir.ArgumentLoc, len(returns)),
	}
	stackOff := int32(0)
	for i, t := range params {
		if i < len(argRegs) {
			sig.Params[i] = ir.ArgumentLoc{Kind: ir.ArgLocReg, Reg: argRegs[i], Type: t}
			continue
		}
		sig.Params[i] = ir.ArgumentLoc{Kind: ir.ArgLocStack, Off: stackOff, Type: t}
		stackOff += int32(t.Bits() / 8)
	}
	for i, t := range returns {
		if i == 0 {
			sig.Returns[i] = ir.ArgumentLoc{Kind: ir.ArgLocReg, Reg: R0, Type: t}
			continue
		}
		panic("BUG: unsupported ABI: demo ISA returns at most one value in a register")
	}
	return sig
}
