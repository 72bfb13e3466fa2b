package regalloc

import (
	"fmt"
	"sort"

	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/liveness"
)

// SplitError mirrors AllocError: every condition split.go raises is a bug in
// an earlier stage, never a normal outcome of splitting a valid function.
type SplitError struct {
	Msg string
}

func (e *SplitError) Error() string { return e.Msg }

// SplitAcrossCalls implements the live-range splitting pass (§4.2): for
// every register-affine value live across a call, it introduces a fresh copy
// after the call and re-threads every dominated use onto that copy, so that
// the pre-call and post-call lifetimes of the same source-level value can be
// allocated independently (one might end up in a different register, or on
// the stack, without constraining the other).
//
// Re-threading a value whose new definition sits in the middle of the CFG is
// a restricted SSA reconstruction: Phase 1 inserts the copies and collects,
// per original value, every block that now holds a competing definition;
// Phase 2 computes the dominance frontier of the EBB graph with the same
// Cooper-Harvey-Kennedy dominator tree the minimal allocator uses; Phase 3
// places a new EBB parameter (this module's phi, §3) at every block in the
// iterated dominance frontier of those definitions; Phase 4 walks the
// dominator tree in preorder, renaming every downstream use to the nearest
// dominating definition and threading phi arguments through predecessor
// branches.
//
// fn's CFG and dominator tree are unaffected (splitting only ever adds EBB
// parameters to existing blocks, never a new block or edge), so the caller
// does not need to recompute them afterward. The returned bool reports
// whether anything was split at all.
func SplitAcrossCalls(fn *ir.Function, cfg *ir.CFG, domtree *ir.DomTree, live *liveness.Result) bool {
	copiesByOriginal := collectCallCrossingCopies(fn, live)
	if len(copiesByOriginal) == 0 {
		return false
	}

	df := computeDominanceFrontiers(cfg, domtree)

	originals := make([]ir.Value, 0, len(copiesByOriginal))
	for v := range copiesByOriginal {
		originals = append(originals, v)
	}
	sort.Slice(originals, func(i, j int) bool { return originals[i] < originals[j] })

	for _, v := range originals {
		renameAcrossCopies(fn, cfg, domtree, df, v, copiesByOriginal[v])
	}
	return true
}

// copySite is one freshly introduced `w = copy v` standing in for `v` from
// this point in the program onward.
type copySite struct {
	block *ir.Block
	value ir.Value
}

// RegisterConstraintPredicate adapts isa's OperandConstraints into the
// liveness.RegisterConstrained callback Analyze needs to compute each
// value's affinity, so that package liveness can report "register vs.
// stack" without itself depending on the ISA/OperandConstraints vocabulary
// (that dependency would cycle back here, since this package already
// imports liveness).
func RegisterConstraintPredicate(isa ISA) liveness.RegisterConstrained {
	return func(inst *ir.Instruction, argIndex int) bool {
		oc, ok := isa.OperandConstraints(inst)
		if !ok || argIndex >= len(oc.Ins) {
			return true
		}
		return oc.Ins[argIndex].Kind != KindStack
	}
}

// collectCallCrossingCopies is Phase 1 (§4.2.2): for every call instruction,
// every register-affine value live both before and after it is copied into a
// temp before the call and back out of the temp after it --
//
//	s = copy v        (before the call)
//	... call ...
//	w = copy s        (after the call)
//
// so that the temp can be spilled around the call while v's own pre-call
// uses stay exactly as they were. Skipping the before-copy and copying v
// itself after the call (as if splitting were a no-op inserted purely
// post-call) would leave v itself crossing the call, defeating the point.
// Two values are excluded from copying outright: flags values (no ISA this
// module targets preserves condition flags across a call, so copying one is
// never meaningful -- a flags value genuinely live across a call is a bug in
// whatever lowering produced the IR), and values whose accumulated
// liveness.Affinity is AffinityStack (§4.2.2 step 1's "affinity.is_reg()"
// guard) -- a value only ever read directly out of its stack slot was never
// going to occupy a register either side of the call, so copying it buys
// splitting nothing.
func collectCallCrossingCopies(fn *ir.Function, live *liveness.Result) map[ir.Value][]copySite {
	copies := make(map[ir.Value][]copySite)
	for _, b := range fn.EBBs() {
		for inst := b.Root(); inst != nil; {
			next := inst.Next()
			if inst.Opcode() == ir.OpCall {
				across := live.LiveAcross(inst)
				sort.Slice(across, func(i, j int) bool { return across[i] < across[j] })
				cur := ir.NewCursorAt(fn, inst)

				type pending struct {
					orig ir.Value
					temp ir.Value
				}
				var temps []pending
				for _, v := range across {
					if fn.ValueType(v).IsFlags() {
						continue
					}
					if live.Affinity(v) == liveness.AffinityStack {
						continue
					}
					s := cur.CopyBefore(v)
					temps = append(temps, pending{orig: v, temp: s})
				}
				// cur still sits at inst: InsertBefore never moves the
				// cursor, so every before-copy above landed ahead of the
				// call in the order the temps slice records.
				for _, p := range temps {
					w := cur.CopyAfter(p.temp)
					copies[p.orig] = append(copies[p.orig], copySite{block: inst.Block(), value: w})
				}
			}
			inst = next
		}
	}
	return copies
}

// computeDominanceFrontiers is Cytron et al.'s textbook algorithm, reusing
// the minimal allocator's own Cooper-Harvey-Kennedy dominator tree: for every
// block b with at least two predecessors, walk each predecessor up the
// dominator tree until reaching idom(b), marking b in every block visited
// along the way.
func computeDominanceFrontiers(cfg *ir.CFG, domtree *ir.DomTree) map[ir.BlockID]map[ir.BlockID]struct{} {
	rpo := cfg.ReversePostOrder()
	df := make(map[ir.BlockID]map[ir.BlockID]struct{}, len(rpo))
	for _, b := range rpo {
		df[b.ID()] = map[ir.BlockID]struct{}{}
	}
	for _, b := range rpo {
		preds := b.Preds()
		if len(preds) < 2 {
			continue
		}
		idomB := domtree.Idom(b)
		for _, pred := range preds {
			for runner := pred.Block; runner != idomB; runner = domtree.Idom(runner) {
				df[runner.ID()][b.ID()] = struct{}{}
			}
		}
	}
	return df
}

// iteratedDF computes the iterated dominance frontier of a block set: the
// fixed point of repeatedly unioning in the frontier of every block already
// in the set, the standard "DF+" closure used to place minimal phis.
func iteratedDF(df map[ir.BlockID]map[ir.BlockID]struct{}, seed map[ir.BlockID]struct{}) map[ir.BlockID]struct{} {
	result := map[ir.BlockID]struct{}{}
	inWorklist := map[ir.BlockID]bool{}
	var worklist []ir.BlockID
	for id := range seed {
		inWorklist[id] = true
		worklist = append(worklist, id)
	}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for dfID := range df[id] {
			if _, ok := result[dfID]; ok {
				continue
			}
			result[dfID] = struct{}{}
			if !inWorklist[dfID] {
				inWorklist[dfID] = true
				worklist = append(worklist, dfID)
			}
		}
	}
	return result
}

// renameAcrossCopies implements Phases 3-4 for a single split value: place
// phis at the iterated dominance frontier of its definition sites, then
// rename every downstream reference in one dominator-tree preorder walk.
func renameAcrossCopies(fn *ir.Function, cfg *ir.CFG, domtree *ir.DomTree, df map[ir.BlockID]map[ir.BlockID]struct{}, original ir.Value, copies []copySite) {
	origBlock, origInst := fn.ValueDef(original)
	if origInst != nil {
		origBlock = origInst.Block()
	}

	defBlocks := map[ir.BlockID]struct{}{origBlock.ID(): {}}
	copyResults := make(map[ir.Value]struct{}, len(copies))
	for _, c := range copies {
		defBlocks[c.block.ID()] = struct{}{}
		copyResults[c.value] = struct{}{}
	}

	frontier := iteratedDF(df, defBlocks)

	blocksByID := make(map[ir.BlockID]*ir.Block, len(cfg.ReversePostOrder()))
	for _, b := range cfg.ReversePostOrder() {
		blocksByID[b.ID()] = b
	}

	t := fn.ValueType(original)
	phiParam := make(map[ir.BlockID]ir.Value, len(frontier))
	for id := range frontier {
		phiParam[id] = fn.AppendEBBParam(blocksByID[id], t)
	}

	children := make(map[ir.BlockID][]*ir.Block)
	for _, b := range cfg.ReversePostOrder() {
		if b.EntryBlock() {
			continue
		}
		idom := domtree.Idom(b)
		children[idom.ID()] = append(children[idom.ID()], b)
	}

	var walk func(b *ir.Block, current ir.Value)
	walk = func(b *ir.Block, current ir.Value) {
		if p, ok := phiParam[b.ID()]; ok {
			current = p
		}
		for inst := b.Root(); inst != nil; inst = inst.Next() {
			for k, a := range inst.Args() {
				if a == original {
					inst.SetArg(k, current)
				}
			}
			for k, a := range inst.BrArgs() {
				if a == original {
					inst.SetBrArg(k, current)
				}
			}
			if target := inst.Target(); target != nil {
				if _, ok := phiParam[target.ID()]; ok {
					inst.AppendBrArg(current)
				}
			} else if targets := inst.Targets(); len(targets) > 0 {
				for _, tgt := range targets {
					if _, ok := phiParam[tgt.ID()]; ok {
						panic(fmt.Sprintf("BUG: unsupported: indirect jump table target %s requires a split-introduced join argument", tgt.Name()))
					}
				}
			}
			for _, res := range inst.Results() {
				if _, ok := copyResults[res]; ok {
					current = res
				}
			}
		}
		for _, child := range children[b.ID()] {
			walk(child, current)
		}
	}
	walk(fn.EntryBlock(), original)
}
