// Package regalloc implements the two cooperating backend passes described
// in the spec: a minimal register allocator (alloc.go) and a live-range
// splitting pass (split.go). Both operate on the SSA IR in package ir
// through the small ISA surface declared here, so that the same code works
// for any target able to describe its registers and operand constraints
// (§6).
package regalloc

import "github.com/minicc/backend/internal/ir"

// RegClass groups interchangeable RealReg units, e.g. general-purpose
// integer registers vs. the condition-code register. It intentionally
// lives in this package rather than ir: the IR has no notion of a register
// class, only of value Type -- the ISA descriptor is what says "i32/i64
// live in gpr, flags live in the flags class".
type RegClass uint8

const (
	ClassInvalid RegClass = iota
	ClassGPR
	ClassFlags
	NumRegClass
)

func (c RegClass) String() string {
	switch c {
	case ClassGPR:
		return "gpr"
	case ClassFlags:
		return "flags"
	default:
		return "invalid"
	}
}

// RegisterInfo is the ISA-static register information consumed by both
// passes (§6 allocatable_registers(function)).
type RegisterInfo struct {
	// Allocatable lists, per class, every allocatable RealReg in preferred
	// allocation order (first element is tried first -- §4.1.6 "Tie-breaks").
	Allocatable [NumRegClass][]ir.RealReg
	// RealRegName names a RealReg for debug traces.
	RealRegName func(ir.RealReg) string
}

// ClassOf returns the register class a value of type t is allocated from.
func ClassOf(t ir.Type) RegClass {
	switch {
	case t.IsFlags():
		return ClassFlags
	case t.IsInt(), t.IsFloat():
		return ClassGPR
	default:
		panic("BUG: value has no register class: " + t.String())
	}
}

// ConstraintKind is one of the five operand-constraint shapes from §3.
type ConstraintKind uint8

const (
	KindReg ConstraintKind = iota
	KindFixedReg
	KindTied
	KindFixedTied
	KindStack
)

// Constraint is one entry of an OperandConstraints.Ins/Outs array (§3).
type Constraint struct {
	Kind  ConstraintKind
	Class RegClass
	// Reg is meaningful for KindFixedReg/KindFixedTied.
	Reg ir.RealReg
	// TiedInput is meaningful for KindTied/KindFixedTied *on an output*: the
	// index of the input whose register this output must reuse.
	TiedInput int
}

// OperandConstraints is the per-encoding record the target machine
// description provides (§3): parallel Ins/Outs constraint arrays plus
// summary flags for whether any fixed-register constraints are present, so
// the allocator can skip the reservation passes entirely when they are not.
type OperandConstraints struct {
	Ins       []Constraint
	Outs      []Constraint
	FixedIns  bool
	FixedOuts bool
}

// ISA is the target machine description surface the two passes consume
// (§6): allocatable registers, and per-instruction operand constraints.
// encoding_info()/update_encoding() are folded into OperandConstraints and
// UpdateEncoding since this module does not model encoding selection as a
// separate step (every instruction has exactly one possible encoding).
type ISA interface {
	// AllocatableRegisters returns the registers available to allocate
	// within fn (e.g. fixed aside from anything the caller has already
	// reserved for a prologue).
	AllocatableRegisters(fn *ir.Function) *RegisterInfo
	// OperandConstraints returns the constraint record for inst, or false if
	// inst has no encoding (a ghost instruction, skipped by both passes).
	OperandConstraints(inst *ir.Instruction) (OperandConstraints, bool)
	// UpdateEncoding lets the ISA record that inst's operands changed shape
	// (e.g. re-deriving an addressing mode) after the allocator rewrote it.
	UpdateEncoding(inst *ir.Instruction)
}

// LocationsBinder is an optional ISA extension for targets whose
// UpdateEncoding needs to read back where a value ended up (e.g. to pick an
// addressing mode). Allocate calls BindLocations with its own Locations
// table before rewriting any instruction, so UpdateEncoding always observes
// this run's allocation decisions rather than a stale table from a previous
// call.
type LocationsBinder interface {
	BindLocations(*Locations)
}
