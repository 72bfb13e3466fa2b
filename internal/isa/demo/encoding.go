package demo

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/regalloc"
)

// amd64Reg maps a demo GPR to the concrete amd64 register golang-asm's x86
// package expects, following the teacher's own convention of keeping the
// target-register mapping as a tiny, explicit table rather than a formula.
var amd64Reg = map[ir.RealReg]int16{
	R0: x86.REG_AX,
	R1: x86.REG_BX,
	R2: x86.REG_CX,
	R3: x86.REG_DX,
	R4: x86.REG_SI,
	R5: x86.REG_DI,
}

func regAddr(r ir.RealReg) obj.Addr {
	return obj.Addr{Type: obj.TYPE_REG, Reg: amd64Reg[r]}
}

func slotAddr(s ir.SlotID) obj.Addr {
	// Frame-relative displacement: slot 0 sits right below the saved frame
	// pointer, each slot is one 8-byte word, matching the teacher's own
	// amd64 frame layout convention (backend/isa/amd64/abi.go).
	return obj.Addr{Type: obj.TYPE_MEM, Reg: x86.REG_SP, Offset: int64(s) * 8}
}

func condCode(c ir.CondCode) obj.As {
	switch c {
	case ir.CondEq:
		return x86.AJEQ
	case ir.CondNe:
		return x86.AJNE
	case ir.CondLt:
		return x86.AJLT
	case ir.CondLe:
		return x86.AJLE
	case ir.CondGt:
		return x86.AJGT
	case ir.CondGe:
		return x86.AJGE
	default:
		panic(fmt.Sprintf("BUG: invariant breach: unsupported condition code %d", c))
	}
}

// Emitter accumulates the obj.Prog chain for one function and hands it to
// golang-asm's x86 backend for final assembly, the same Link/LSym/Prog
// shape the library forks from the Go toolchain's cmd/internal/obj.
type Emitter struct {
	ctxt    *obj.Link
	sym     *obj.LSym
	first   *obj.Prog
	last    *obj.Prog
	atBlock map[*ir.Block]*obj.Prog // first obj.Prog of each EBB, for branch targets.
	pending map[*ir.Block][]*obj.Prog
}

// NewEmitter starts a fresh machine-code buffer for a function named name.
func NewEmitter(name string) *Emitter {
	ctxt := obj.Linknew(&x86.Linkamd64)
	ctxt.Diag = func(format string, args ...interface{}) {
		panic(fmt.Sprintf("BUG: golang-asm diagnostic: "+format, args...))
	}
	sym := ctxt.Lookup(name)
	return &Emitter{
		ctxt:    ctxt,
		sym:     sym,
		atBlock: map[*ir.Block]*obj.Prog{},
		pending: map[*ir.Block][]*obj.Prog{},
	}
}

func (e *Emitter) append(p *obj.Prog) {
	if e.first == nil {
		e.first = p
	} else {
		e.last.Link = p
	}
	e.last = p
}

func (e *Emitter) emit(as obj.As, from, to obj.Addr) *obj.Prog {
	p := e.ctxt.NewProg()
	p.As = as
	p.From = from
	p.To = to
	e.append(p)
	return p
}

// EmitFunction lowers an allocated function (after both regalloc.Allocate
// and this ISA's UpdateEncoding have run) into amd64 machine code via
// golang-asm's x86 Arch.Assemble, the domain-stack counterpart to the
// teacher's own backend/isa/amd64 code generator.
func (d *ISA) EmitFunction(fn *ir.Function, name string) ([]byte, error) {
	e := NewEmitter(name)
	for _, b := range fn.EBBs() {
		e.markBlockStart(b)
		for inst := b.Root(); inst != nil; inst = inst.Next() {
			if err := e.lower(d, inst); err != nil {
				return nil, err
			}
		}
	}
	e.resolveBranches()

	e.sym.Func = &obj.FuncInfo{Text: e.first}
	x86.Linkamd64.Assemble(e.ctxt, e.sym, e.ctxt.NewProg)
	return e.sym.P, nil
}

func (e *Emitter) markBlockStart(b *ir.Block) {
	// A placeholder NOP anchors the block's address even if its first real
	// instruction is a ghost or the block is empty; resolveBranches patches
	// every branch that targets b to jump here.
	p := e.emit(obj.ANOP, obj.Addr{}, obj.Addr{})
	e.atBlock[b] = p
}

func (e *Emitter) lower(d *ISA, inst *ir.Instruction) error {
	regOf := func(v ir.Value) obj.Addr {
		loc := d.locs.Get(v)
		if loc.Kind != regalloc.LocReg {
			return obj.Addr{}
		}
		return regAddr(loc.Reg)
	}

	switch inst.Opcode() {
	case ir.OpIconst, ir.OpFill:
		// Constant materialization is out of scope for this demo encoder
		// (no literal pool/immediate plumbing); fills from a stack slot are
		// modeled identically to Load below.
		if inst.Opcode() == ir.OpFill {
			src := inst.Args()[0]
			dst := regOf(inst.Results()[0])
			loc := d.locs.Get(src)
			e.emit(x86.AMOVQ, slotAddr(loc.Slot), dst)
		}
	case ir.OpSpill:
		src := regOf(inst.Args()[0])
		dst := inst.Results()[0]
		loc := d.locs.Get(dst)
		e.emit(x86.AMOVQ, src, slotAddr(loc.Slot))
	case ir.OpCopy:
		e.emit(x86.AMOVQ, regOf(inst.Args()[0]), regOf(inst.Results()[0]))
	case ir.OpIadd:
		e.emit(x86.AADDQ, regOf(inst.Args()[1]), regOf(inst.Args()[0]))
	case ir.OpIsub:
		e.emit(x86.ASUBQ, regOf(inst.Args()[1]), regOf(inst.Args()[0]))
	case ir.OpImul:
		e.emit(x86.AIMULQ, regOf(inst.Args()[1]), regOf(inst.Args()[0]))
	case ir.OpIcmp:
		e.emit(x86.ACMPQ, regOf(inst.Args()[1]), regOf(inst.Args()[0]))
	case ir.OpLoad:
		addr := inst.Args()[0]
		loc := d.locs.Get(addr)
		from := slotAddr(loc.Slot)
		if loc.Kind == regalloc.LocReg {
			from = obj.Addr{Type: obj.TYPE_MEM, Reg: amd64Reg[loc.Reg]}
		}
		e.emit(x86.AMOVQ, from, regOf(inst.Results()[0]))
	case ir.OpStore:
		addr, val := inst.Args()[0], inst.Args()[1]
		loc := d.locs.Get(addr)
		to := slotAddr(loc.Slot)
		if loc.Kind == regalloc.LocReg {
			to = obj.Addr{Type: obj.TYPE_MEM, Reg: amd64Reg[loc.Reg]}
		}
		e.emit(x86.AMOVQ, regOf(val), to)
	case ir.OpJump:
		p := e.emit(obj.AJMP, obj.Addr{}, obj.Addr{})
		e.pending[inst.Target()] = append(e.pending[inst.Target()], p)
	case ir.OpBrz, ir.OpBrnz:
		e.emit(x86.ATESTQ, regOf(inst.Args()[0]), regOf(inst.Args()[0]))
		as := x86.AJNE
		if inst.Opcode() == ir.OpBrz {
			as = x86.AJEQ
		}
		p := e.emit(as, obj.Addr{}, obj.Addr{})
		e.pending[inst.Target()] = append(e.pending[inst.Target()], p)
	case ir.OpBrIcmp:
		e.emit(x86.ACMPQ, regOf(inst.Args()[1]), regOf(inst.Args()[0]))
		p := e.emit(condCode(inst.Cond()), obj.Addr{}, obj.Addr{})
		e.pending[inst.Target()] = append(e.pending[inst.Target()], p)
	case ir.OpBrTable:
		return fmt.Errorf("demo: indirect jump tables are not lowered by this encoder")
	case ir.OpReturn, ir.OpFallthroughReturn:
		e.emit(obj.ARET, obj.Addr{}, obj.Addr{})
	case ir.OpTrap:
		e.emit(x86.AINT, obj.Addr{Type: obj.TYPE_CONST, Offset: 3}, obj.Addr{})
	default:
		return fmt.Errorf("demo: opcode %s has no machine encoding", inst.Opcode())
	}
	return nil
}

// resolveBranches points every pending branch Prog at the obj.Prog marking
// the start of its target block, mirroring how the teacher's own backend
// resolves block-relative jumps after the whole function body is emitted.
func (e *Emitter) resolveBranches() {
	for target, progs := range e.pending {
		dest := e.atBlock[target]
		for _, p := range progs {
			p.To = obj.Addr{Type: obj.TYPE_BRANCH}
			p.To.SetTarget(dest)
		}
	}
}
