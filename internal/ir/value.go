package ir

import "fmt"

// Value is an SSA name, produced either as a Block parameter or as an
// instruction result. Values are dense small integers handed out by
// Function.allocateValue so that per-value state (ValueLoc, rename tables,
// use lists) can live in flat arrays indexed by Value instead of maps.
type Value uint32

// ValueInvalid is the zero-value sentinel; no real Value is ever allocated
// with this id.
const ValueInvalid Value = 0

// String implements fmt.Stringer for debugging.
func (v Value) String() string {
	if v == ValueInvalid {
		return "v_invalid"
	}
	return fmt.Sprintf("v%d", uint32(v))
}

// valueData is the dense, Value-indexed record of everything the IR itself
// knows about a value. Location (register/stack) is regalloc state, not IR
// state, and lives in regalloc.Locations instead.
//
// Exactly one of defBlock/defInstr is meaningful at a time: a value defined
// as a block parameter has defInstr == nil and defBlock set; a value defined
// as an instruction result has defInstr set, and its block is read lazily
// via defInstr.block (so a result value can be allocated before its
// defining instruction has been spliced into a block).
type valueData struct {
	typ      Type
	defBlock *Block
	defInstr *Instruction
	// defIndex is this value's index within defBlock.params (param) or
	// defInstr.results (instruction result).
	defIndex int
}

func (d *valueData) isParam() bool { return d.defInstr == nil }
