package demo

import (
	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/regalloc"
)

// addrMode records, per load/store instruction, whether its address operand
// ended up register-resident or was left in its stack slot (§4.1.6's Stack
// constraint case never emits a fill, so the allocator never tells the ISA
// what register holds the address -- there isn't one). UpdateEncoding is
// what keeps this cache in step with the allocator's rewrites.
type addrMode struct {
	slot    ir.SlotID
	inSlot  bool
	baseReg ir.RealReg
}

// ISA is the demo target's regalloc.ISA implementation plus the bookkeeping
// encoding.go needs to lower an allocated function to machine code.
type ISA struct {
	locs  *regalloc.Locations
	addrs map[*ir.Instruction]addrMode
}

// New returns a fresh demo ISA descriptor. Its Locations table is nil until
// regalloc.Allocate calls BindLocations, since Allocate owns the only
// Locations instance that matters -- the one it builds and mutates for the
// function being allocated (§6 allocatable_registers/update_encoding are
// both scoped to "the allocator's Locations for this function").
func New() *ISA {
	return &ISA{addrs: map[*ir.Instruction]addrMode{}}
}

// BindLocations attaches the Locations table UpdateEncoding reads from.
// regalloc.Allocate calls this through the optional regalloc.LocationsBinder
// interface immediately after constructing its own Locations, so that a
// load/store's addressing mode always reflects the allocation decisions
// actually being made for this run rather than some other Locations value
// the caller happened to have lying around.
func (d *ISA) BindLocations(locs *regalloc.Locations) { d.locs = locs }

func (d *ISA) AllocatableRegisters(*ir.Function) *regalloc.RegisterInfo { return registerInfo }

func (d *ISA) OperandConstraints(inst *ir.Instruction) (regalloc.OperandConstraints, bool) {
	return operandConstraints(inst)
}

// UpdateEncoding re-derives the addressing mode for load/store instructions
// after the allocator has rewritten their operands (§6 update_encoding).
// Every other opcode in this ISA has exactly one encoding shape regardless
// of which registers ended up assigned, so there is nothing further to
// recompute for them.
func (d *ISA) UpdateEncoding(inst *ir.Instruction) {
	switch inst.Opcode() {
	case ir.OpLoad, ir.OpStore:
		addr := inst.Args()[0]
		loc := d.locs.Get(addr)
		switch loc.Kind {
		case regalloc.LocStack:
			d.addrs[inst] = addrMode{slot: loc.Slot, inSlot: true}
		case regalloc.LocReg:
			d.addrs[inst] = addrMode{baseReg: loc.Reg}
		default:
			panic("BUG: invariant breach: load/store address has no location after allocation")
		}
	}
}
