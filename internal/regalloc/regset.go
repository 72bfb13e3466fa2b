package regalloc

import "github.com/minicc/backend/internal/ir"

// RegSet is a bitset of RealReg, one bit per register unit, grounded on the
// teacher's backend/regalloc/regset.go (same uint64-bitmap shape; the demo
// ISA never needs more than 64 units per class).
type RegSet uint64

func (rs RegSet) has(r ir.RealReg) bool { return rs&(1<<uint(r)) != 0 }
func (rs RegSet) add(r ir.RealReg) RegSet { return rs | (1 << uint(r)) }
func (rs RegSet) remove(r ir.RealReg) RegSet { return rs &^ (1 << uint(r)) }

// FreeSet is the allocator's live register free set (§5 "The register free
// set is owned by the allocator and lives for the function's processing;
// registers are taken and freed across a single instruction window only").
// It is reset to "every allocatable register free" before each instruction
// is rewritten.
type FreeSet struct {
	order [NumRegClass][]ir.RealReg
	full  [NumRegClass]RegSet
	free  [NumRegClass]RegSet
}

// NewFreeSet builds a FreeSet from the ISA's static register info.
func NewFreeSet(info *RegisterInfo) *FreeSet {
	fs := &FreeSet{}
	for c := RegClass(0); c < NumRegClass; c++ {
		fs.order[c] = info.Allocatable[c]
		var full RegSet
		for _, r := range info.Allocatable[c] {
			full = full.add(r)
		}
		fs.full[c] = full
	}
	fs.ResetAll()
	return fs
}

// ResetAll marks every allocatable register free again, the state the
// allocator starts each instruction's rewriting from.
func (fs *FreeSet) ResetAll() {
	for c := RegClass(0); c < NumRegClass; c++ {
		fs.free[c] = fs.full[c]
	}
}

// Take returns the first free register of class c in the ISA's preferred
// order (§4.1.6 "Tie-breaks: within a class, registers are taken in the
// order produced by the free-set iterator"), or false if the class is
// exhausted -- which §7 treats as an ISA-description bug, never a normal
// outcome, since the class contains every allocatable register and none is
// ever held across instructions.
func (fs *FreeSet) Take(c RegClass) (ir.RealReg, bool) {
	for _, r := range fs.order[c] {
		if fs.free[c].has(r) {
			fs.free[c] = fs.free[c].remove(r)
			return r, true
		}
	}
	return ir.RealRegInvalid, false
}

// TakeFixed reserves a specific register, panicking (register-class
// exhaustion, §7) if it is already taken.
func (fs *FreeSet) TakeFixed(c RegClass, r ir.RealReg) {
	if !fs.free[c].has(r) {
		panic("BUG: register-class exhaustion: fixed register already reserved in this instruction")
	}
	fs.free[c] = fs.free[c].remove(r)
}

// Free returns r to the free set.
func (fs *FreeSet) Free(c RegClass, r ir.RealReg) {
	fs.free[c] = fs.free[c].add(r)
}
