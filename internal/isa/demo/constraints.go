package demo

import (
	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/regalloc"
)

// operandConstraints implements ISA.OperandConstraints (§6) for every opcode
// the minimal allocator's plain-instruction and branch paths can see. Every
// other opcode (copy, fill, spill, return, trap, call) falls to the default
// case and returns (zero, false). The allocator dispatches copy, return,
// trap and call by opcode family before it consults constraints, and treats
// a false result for anything else (such as the spills it inserts for entry
// parameters) as an instruction with nothing to place.
func operandConstraints(inst *ir.Instruction) (regalloc.OperandConstraints, bool) {
	reg := func(c regalloc.RegClass) regalloc.Constraint {
		return regalloc.Constraint{Kind: regalloc.KindReg, Class: c}
	}
	fixed := func(c regalloc.RegClass, r ir.RealReg) regalloc.Constraint {
		return regalloc.Constraint{Kind: regalloc.KindFixedReg, Class: c, Reg: r}
	}
	tied := func(c regalloc.RegClass, input int) regalloc.Constraint {
		return regalloc.Constraint{Kind: regalloc.KindTied, Class: c, TiedInput: input}
	}
	fixedTied := func(c regalloc.RegClass, r ir.RealReg, input int) regalloc.Constraint {
		return regalloc.Constraint{Kind: regalloc.KindFixedTied, Class: c, Reg: r, TiedInput: input}
	}
	stack := func() regalloc.Constraint {
		return regalloc.Constraint{Kind: regalloc.KindStack}
	}

	switch inst.Opcode() {
	case ir.OpIconst:
		return regalloc.OperandConstraints{
			Outs: []regalloc.Constraint{reg(regalloc.ClassGPR)},
		}, true

	case ir.OpIadd, ir.OpIsub:
		// Two-address form: the result overwrites the first operand's
		// register (tied to input 0), as amd64's ADD/SUB do.
		return regalloc.OperandConstraints{
			Ins:  []regalloc.Constraint{tied(regalloc.ClassGPR, 0), reg(regalloc.ClassGPR)},
			Outs: []regalloc.Constraint{tied(regalloc.ClassGPR, 0)},
		}, true

	case ir.OpImul:
		// Mirrors amd64's one-operand IMUL: the multiplicand is pinned to
		// the accumulator R0, the low half of the product is written back
		// to R0 (tied to input 0), and the multiplier is any free GPR.
		return regalloc.OperandConstraints{
			Ins:       []regalloc.Constraint{fixed(regalloc.ClassGPR, R0), reg(regalloc.ClassGPR)},
			Outs:      []regalloc.Constraint{fixedTied(regalloc.ClassGPR, R0, 0)},
			FixedIns:  true,
			FixedOuts: true,
		}, true

	case ir.OpIcmp:
		return regalloc.OperandConstraints{
			Ins:       []regalloc.Constraint{reg(regalloc.ClassGPR), reg(regalloc.ClassGPR)},
			Outs:      []regalloc.Constraint{fixed(regalloc.ClassFlags, Flags)},
			FixedOuts: true,
		}, true

	case ir.OpLoad:
		// The address operand may be satisfied directly out of its stack
		// slot: amd64 addressing modes read a base register or a
		// frame-relative displacement with equal ease, so there is no need
		// to force it through a register first (encoding.go picks the
		// addressing mode that matches).
		return regalloc.OperandConstraints{
			Ins:  []regalloc.Constraint{stack()},
			Outs: []regalloc.Constraint{reg(regalloc.ClassGPR)},
		}, true

	case ir.OpStore:
		return regalloc.OperandConstraints{
			Ins: []regalloc.Constraint{stack(), reg(regalloc.ClassGPR)},
		}, true

	case ir.OpJump:
		return regalloc.OperandConstraints{}, true

	case ir.OpBrz, ir.OpBrnz:
		return regalloc.OperandConstraints{
			Ins: []regalloc.Constraint{reg(regalloc.ClassGPR)},
		}, true

	case ir.OpBrIcmp:
		return regalloc.OperandConstraints{
			Ins: []regalloc.Constraint{reg(regalloc.ClassGPR), reg(regalloc.ClassGPR)},
		}, true

	case ir.OpBrTable:
		return regalloc.OperandConstraints{
			Ins: []regalloc.Constraint{reg(regalloc.ClassGPR)},
		}, true

	default:
		return regalloc.OperandConstraints{}, false
	}
}
