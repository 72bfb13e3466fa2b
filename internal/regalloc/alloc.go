package regalloc

import (
	"fmt"

	"github.com/minicc/backend/internal/ir"
)

// AllocError is a typed error for allocator failures. Every failure the
// minimal allocator detects is a bug in an earlier pass or in the ISA
// description, never a recoverable allocation failure, and Allocate never
// returns an error value. alloc.go does not construct AllocError: its panics
// carry plain "BUG: ..." strings, so errors.As on a recovered panic value
// does not find one.
type AllocError struct {
	Msg string
}

func (e *AllocError) Error() string { return e.Msg }

// allocator holds the minimal register allocator's mutable state while it
// rewrites one function (§4.1.1-§4.1.7). It is not reused across functions.
type allocator struct {
	isa     ISA
	fn      *ir.Function
	regInfo *RegisterInfo
	locs    *Locations
	free    *FreeSet

	newBlocks bool
}

// Allocate runs the minimal register allocator over fn (§4.1). fn must
// already be in SSA form after splitting (§4.2) has run. topo is a
// topological EBB order (entry first, each EBB preceding every EBB it
// dominates is sufficient but not required -- only "process every EBB
// exactly once, in an order where side exits are not yet an issue since the
// pass makes no liveness decisions across EBBs" is needed).
//
// If the pass inserts new critical-edge-splitting EBBs, cfg and domtree are
// stale; Allocate recomputes both in that case (§4.1.7) and returns the
// fresh copies. When insertedBlocks is false, the returned cfg/domtree are
// exactly the ones passed in.
func Allocate(isa ISA, fn *ir.Function, cfg *ir.CFG, domtree *ir.DomTree, topo []*ir.Block) (locs *Locations, newCFG *ir.CFG, newDomTree *ir.DomTree, insertedBlocks bool) {
	a := &allocator{
		isa:  isa,
		fn:   fn,
		locs: NewLocations(fn),
	}
	a.regInfo = isa.AllocatableRegisters(fn)
	a.free = NewFreeSet(a.regInfo)
	if binder, ok := isa.(LocationsBinder); ok {
		binder.BindLocations(a.locs)
	}

	a.prepareEntryParams(fn.EntryBlock())
	// Every parameter gets its stack home before any branch is rewritten,
	// so a predecessor's outgoing-argument spill can land in that slot.
	for _, b := range topo {
		if !b.EntryBlock() {
			a.prepareNonEntryParams(b)
		}
	}
	for _, b := range topo {
		a.rewriteBlock(b)
	}

	if !a.newBlocks {
		return a.locs, cfg, domtree, false
	}
	newCFG = ir.BuildCFG(fn)
	newDomTree = ir.BuildDomTree(fn, newCFG)
	return a.locs, newCFG, newDomTree, true
}

// prepareEntryParams implements §4.1.2: every entry parameter is rewritten
// so that the register-resident ABI value is spilled to its SSA name's
// stack home before the body runs, and stack-resident parameters simply
// start life in Stack(_).
func (a *allocator) prepareEntryParams(entry *ir.Block) {
	sig := a.fn.Signature()
	params := append([]ir.Value(nil), entry.Params()...)
	if len(params) != len(sig.Params) {
		panic(fmt.Sprintf("BUG: invariant breach: entry block has %d parameters but signature declares %d", len(params), len(sig.Params)))
	}

	if entry.Root() == nil {
		// An empty entry block has no instruction to insert before; build
		// one-off cursor state anchored on the block itself.
		cur := ir.NewCursor(a.fn, entry)
		a.prepareEntryParamsAt(cur, params, sig.Params)
		return
	}
	cur := ir.NewCursorAt(a.fn, entry.Root())
	a.prepareEntryParamsAt(cur, params, sig.Params)
}

func (a *allocator) prepareEntryParamsAt(cur *ir.Cursor, params []ir.Value, locs []ir.ArgumentLoc) {
	for i, p := range params {
		loc := locs[i]
		switch loc.Kind {
		case ir.ArgLocReg:
			t := a.fn.ValueType(p)
			pPrime := a.fn.ReplaceEBBParam(p, t)
			a.locs.Set(pPrime, RegLoc(loc.Reg))
			cur.SpillAsBefore(pPrime, p)
			slot := a.fn.MakeSpillSlot(t)
			a.locs.Set(p, StackLoc(slot))
		case ir.ArgLocStack:
			slot := a.fn.MakeSpillSlot(a.fn.ValueType(p))
			a.locs.Set(p, StackLoc(slot))
		default:
			panic("BUG: unsupported ABI: entry parameter has an unassigned location")
		}
	}
}

// prepareNonEntryParams implements §4.1.3: a non-entry EBB's parameters need
// no code, only a stack home, since every predecessor branch already leaves
// its outgoing argument on the stack (by construction of §4.1.5's
// per-argument rewrite, which always targets a Stack(_) destination).
func (a *allocator) prepareNonEntryParams(b *ir.Block) {
	for _, p := range b.Params() {
		slot := a.fn.MakeSpillSlot(a.fn.ValueType(p))
		a.locs.Set(p, StackLoc(slot))
	}
}

// rewriteBlock dispatches every instruction of b by opcode family (§4.1.1).
// It snapshots each instruction's original successor before rewriting, since
// rewriting may splice spills after the current instruction and move its
// next pointer.
func (a *allocator) rewriteBlock(b *ir.Block) {
	for inst := b.Root(); inst != nil; {
		next := inst.Next()
		if inst.Ghost() {
			inst = next
			continue
		}
		cur := ir.NewCursorAt(a.fn, inst)
		switch op := inst.Opcode(); {
		case op == ir.OpCopy:
			a.rewriteCopy(inst)
		case op.IsBranch() && op != ir.OpReturn && op != ir.OpFallthroughReturn && op != ir.OpTrap:
			a.rewriteBranch(cur, inst)
		case op == ir.OpReturn || op == ir.OpFallthroughReturn:
			a.rewriteReturn(cur, inst)
		case op == ir.OpTrap:
			// No operands to place.
		case op == ir.OpCall:
			panic("BUG: unsupported instruction: call reached the minimal allocator (§4.1.1 -- calls must be lowered by an earlier stage)")
		case op == ir.OpFallthrough, op == ir.OpRegmove, op == ir.OpRegfill, op == ir.OpRegspill, op == ir.OpCopySpecial:
			panic(fmt.Sprintf("BUG: unsupported instruction: %s must never reach the minimal allocator (§7)", op))
		default:
			a.rewritePlain(cur, inst)
		}
		inst = next
	}
}

// rewriteCopy implements §4.1.6's Copy case: location[dest] := location[src],
// no code emitted.
func (a *allocator) rewriteCopy(inst *ir.Instruction) {
	src := inst.Args()[0]
	dst := inst.Results()[0]
	a.locs.Set(dst, a.locs.Get(src))
}

// rewriteReturn implements §4.1.4: every return argument whose ABI location
// is a register gets a fill immediately before the return; a stack-homed
// return value is an ABI the minimal allocator does not support.
func (a *allocator) rewriteReturn(cur *ir.Cursor, inst *ir.Instruction) {
	sig := a.fn.Signature()
	args := inst.Args()
	if len(args) != len(sig.Returns) {
		panic(fmt.Sprintf("BUG: invariant breach: return has %d arguments but signature declares %d", len(args), len(sig.Returns)))
	}
	for k, arg := range args {
		loc := sig.Returns[k]
		switch loc.Kind {
		case ir.ArgLocReg:
			t := cur.FillBefore(arg)
			a.locs.Set(t, RegLoc(loc.Reg))
			inst.SetArg(k, t)
		case ir.ArgLocStack:
			panic("BUG: unsupported ABI: stack-homed return value")
		default:
			panic("BUG: unsupported ABI: return argument has an unassigned location")
		}
	}
}

// assignAndFillInputs runs §4.1.6 steps 1-3 (shared by plain instructions and
// the branch family's own compared/tested operands, §4.1.5): reserve fixed
// inputs, assign the rest from the free set in argument order, emit fills,
// and return the tied-input register table keyed by input index for the
// output-assignment step that follows (empty/unused for branches).
func (a *allocator) assignAndFillInputs(cur *ir.Cursor, inst *ir.Instruction, oc OperandConstraints) map[int]ir.RealReg {
	ins := oc.Ins
	args := inst.Args()
	if len(ins) != len(args) {
		panic(fmt.Sprintf("BUG: invariant breach: %s has %d operand constraints but %d arguments", inst.Opcode(), len(ins), len(args)))
	}

	if oc.FixedIns {
		for _, c := range ins {
			if c.Kind == KindFixedReg || c.Kind == KindFixedTied {
				a.free.TakeFixed(c.Class, c.Reg)
			}
		}
	}

	type assigned struct {
		idx   int
		arg   ir.Value
		class RegClass
		reg   ir.RealReg
		tied  bool
	}
	var recs []assigned
	for k, c := range ins {
		if c.Kind == KindStack {
			continue
		}
		var reg ir.RealReg
		tied := false
		switch c.Kind {
		case KindFixedReg:
			reg = c.Reg
		case KindFixedTied:
			reg, tied = c.Reg, true
		case KindReg:
			r, ok := a.free.Take(c.Class)
			if !ok {
				panic(fmt.Sprintf("BUG: register-class exhaustion: %s class %s", inst.Opcode(), c.Class))
			}
			reg = r
		case KindTied:
			r, ok := a.free.Take(c.Class)
			if !ok {
				panic(fmt.Sprintf("BUG: register-class exhaustion: %s class %s", inst.Opcode(), c.Class))
			}
			reg, tied = r, true
		default:
			panic(fmt.Sprintf("BUG: invariant breach: unsupported input constraint kind on %s", inst.Opcode()))
		}
		recs = append(recs, assigned{k, args[k], c.Class, reg, tied})
	}

	tiedReg := make(map[int]ir.RealReg, len(recs))
	for _, r := range recs {
		if a.fn.ValueType(r.arg).IsFlags() {
			a.locs.Set(r.arg, RegLoc(r.reg))
		} else {
			if loc := a.locs.Get(r.arg); loc.Kind != LocStack {
				panic(fmt.Sprintf("BUG: invariant breach: argument %s of %s is not Stack(_) at allocator entry", r.arg, inst.Opcode()))
			}
			t := cur.FillBefore(r.arg)
			a.locs.Set(t, RegLoc(r.reg))
			inst.SetArg(r.idx, t)
		}
		if r.tied {
			tiedReg[r.idx] = r.reg
		} else {
			a.free.Free(r.class, r.reg)
		}
	}
	return tiedReg
}

// rewritePlain implements §4.1.6 in full: steps 1-3 via assignAndFillInputs,
// then fixed-output reservation, output assignment (honoring Tied/FixedTied
// reuse of an input's register), and the spill-back sequence.
func (a *allocator) rewritePlain(cur *ir.Cursor, inst *ir.Instruction) {
	oc, ok := a.isa.OperandConstraints(inst)
	if !ok {
		return // Ghost by ISA's own reckoning (no encoding): nothing to place.
	}
	a.free.ResetAll()

	tiedReg := a.assignAndFillInputs(cur, inst, oc)

	if oc.FixedOuts {
		for _, c := range oc.Outs {
			if c.Kind == KindFixedReg {
				a.free.TakeFixed(c.Class, c.Reg)
			}
		}
	}

	results := inst.Results()
	if len(oc.Outs) != len(results) {
		panic(fmt.Sprintf("BUG: invariant breach: %s has %d operand constraints but %d results", inst.Opcode(), len(oc.Outs), len(results)))
	}
	outRegs := make([]ir.RealReg, len(results))
	for k, c := range oc.Outs {
		switch c.Kind {
		case KindFixedReg, KindFixedTied:
			outRegs[k] = c.Reg
		case KindTied:
			r, ok := tiedReg[c.TiedInput]
			if !ok {
				panic(fmt.Sprintf("BUG: invariant breach: %s output %d ties to input %d, which was not marked tied", inst.Opcode(), k, c.TiedInput))
			}
			outRegs[k] = r
		case KindReg:
			r, ok := a.free.Take(c.Class)
			if !ok {
				panic(fmt.Sprintf("BUG: register-class exhaustion: %s class %s", inst.Opcode(), c.Class))
			}
			outRegs[k] = r
		case KindStack:
			panic(fmt.Sprintf("BUG: invariant breach: %s declares a Stack output constraint; the minimal allocator never spills a result directly to memory", inst.Opcode()))
		default:
			panic(fmt.Sprintf("BUG: invariant breach: unsupported output constraint kind on %s", inst.Opcode()))
		}
	}

	after := ir.NewCursorAt(a.fn, inst)
	for k, orig := range results {
		reg := outRegs[k]
		if a.fn.ValueType(orig).IsFlags() {
			a.locs.Set(orig, RegLoc(reg))
		} else {
			t := a.fn.ValueType(orig)
			rPrime := a.fn.ReplaceResult(orig, t)
			a.locs.Set(rPrime, RegLoc(reg))
			after.SpillAsAfter(rPrime, orig)
			slot := a.fn.MakeSpillSlot(t)
			a.locs.Set(orig, StackLoc(slot))
		}
		a.free.Free(oc.Outs[k].Class, reg)
	}
	a.isa.UpdateEncoding(inst)
}

// rewriteBranch dispatches §4.1.5's three shapes: a target-less indirect
// jump table (fill its own index only), a side exit to a parameterized
// target (split the critical edge first), and everything else (finish in
// place).
func (a *allocator) rewriteBranch(cur *ir.Cursor, inst *ir.Instruction) {
	shape := ir.AnalyzeBranch(inst)
	if shape.Target == nil {
		a.finishBranch(cur, inst, shape)
		return
	}
	if shape.SideExit && len(shape.Target.Params()) > 0 {
		a.splitCriticalEdge(cur, inst, shape)
		return
	}
	a.finishBranch(cur, inst, shape)
}

// splitCriticalEdge implements §4.1.5's split case: a fresh, parameterless
// EBB E' is appended immediately before the function's last EBB (never after
// a trailing fallthrough_return), the side exit is retargeted to jump there
// with no arguments, and E' carries the original jump(target, args), whose
// outgoing arguments are then placed directly by finishBranch. That jump is
// unconditional, so it never needs a split of its own.
func (a *allocator) splitCriticalEdge(cur *ir.Cursor, inst *ir.Instruction, shape ir.BranchShape) {
	target := shape.Target
	args := append([]ir.Value(nil), inst.BrArgs()...)

	ePrime := a.fn.CreateBlock()
	a.fn.InsertEBB(ePrime, a.fn.LastEBB())
	a.newBlocks = true

	inst.RetargetNoArgs(ePrime)
	a.finishBranch(cur, inst, ir.BranchShape{Target: ePrime, SideExit: true, HasArgument: false})

	jmp := ePrime.Jump(target, args)
	jmpCur := ir.NewCursorAt(a.fn, jmp)
	a.finishBranch(jmpCur, jmp, ir.BranchShape{Target: target, SideExit: false, HasArgument: len(args) > 0})
}

// finishBranch places the branch's own compared/tested operands (via the
// plain-instruction input path) and then, if it has a single target, runs
// the per-outgoing-argument fill+spill sequence of §4.1.5 steps 2-5.
func (a *allocator) finishBranch(cur *ir.Cursor, inst *ir.Instruction, shape ir.BranchShape) {
	oc, ok := a.isa.OperandConstraints(inst)
	if !ok {
		return
	}
	a.free.ResetAll()
	a.assignAndFillInputs(cur, inst, oc)
	a.isa.UpdateEncoding(inst)

	if shape.Target == nil {
		return
	}
	target := shape.Target
	brArgs := inst.BrArgs()
	params := target.Params()
	if len(brArgs) != len(params) {
		panic(fmt.Sprintf("BUG: invariant breach: branch to %s carries %d arguments but the target declares %d parameters", target.Name(), len(brArgs), len(params)))
	}
	for k, argK := range brArgs {
		pK := params[k]
		t := cur.FillBefore(argK)
		d := cur.SpillBefore(t)
		a.locs.Set(d, a.locs.Get(pK))

		class := ClassOf(a.fn.ValueType(argK))
		r, ok := a.free.Take(class)
		if !ok {
			panic(fmt.Sprintf("BUG: register-class exhaustion: outgoing branch argument %d class %s", k, class))
		}
		a.locs.Set(t, RegLoc(r))
		a.free.Free(class, r)

		inst.SetBrArg(k, d)
	}
}
