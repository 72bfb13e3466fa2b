package regalloc

import (
	"fmt"

	"github.com/minicc/backend/internal/ir"
)

// LocKind discriminates ValueLoc's three states (§3).
type LocKind uint8

const (
	LocUnassigned LocKind = iota
	LocReg
	LocStack
)

// ValueLoc is the home of a value, mutated by the allocator (§3):
// Reg(unit), Stack(slot), or Unassigned.
type ValueLoc struct {
	Kind LocKind
	Reg  ir.RealReg
	Slot ir.SlotID
}

// RegLoc constructs a register-resident ValueLoc.
func RegLoc(r ir.RealReg) ValueLoc { return ValueLoc{Kind: LocReg, Reg: r} }

// StackLoc constructs a stack-resident ValueLoc.
func StackLoc(s ir.SlotID) ValueLoc { return ValueLoc{Kind: LocStack, Slot: s} }

func (l ValueLoc) String() string {
	switch l.Kind {
	case LocReg:
		return fmt.Sprintf("reg(%s)", l.Reg)
	case LocStack:
		return fmt.Sprintf("stack(%d)", l.Slot)
	default:
		return "unassigned"
	}
}

// Locations is the Value-indexed table of ValueLoc the allocator builds up
// and mutates in place, growing as new values (fill/spill/copy results) are
// allocated mid-pass.
type Locations struct {
	fn   *ir.Function
	locs []ValueLoc
}

// NewLocations creates a Locations table sized for fn's current value
// count. It is grown lazily as the pass allocates further values.
func NewLocations(fn *ir.Function) *Locations {
	return &Locations{fn: fn, locs: make([]ValueLoc, fn.NumValues())}
}

func (l *Locations) ensure(v ir.Value) {
	if int(v) >= len(l.locs) {
		grown := make([]ValueLoc, l.fn.NumValues())
		copy(grown, l.locs)
		l.locs = grown
	}
}

// Get returns v's current location (LocUnassigned if v postdates the last
// ensure()).
func (l *Locations) Get(v ir.Value) ValueLoc {
	if int(v) >= len(l.locs) {
		return ValueLoc{Kind: LocUnassigned}
	}
	return l.locs[v]
}

// Set records v's location.
func (l *Locations) Set(v ir.Value, loc ValueLoc) {
	l.ensure(v)
	l.locs[v] = loc
}
