// Package liveness computes per-EBB live-in/live-out value sets (§4.2.1),
// the input the splitting pass needs to find register-affine values live
// across a call. Splitting's phi placement does not consult it.
//
// The block-level algorithm is the teacher's Up_and_Mark_Stack sweep from
// backend/regalloc/regalloc.go, generalized from the teacher's per-VReg
// real/virtual split to this module's single Value namespace, and adapted
// for block-argument SSA: a branch's outgoing arguments are ordinary uses at
// the branch, and an EBB's own parameters are defs at the top of the block,
// so liveIn/liveOut never need special-casing for phis.
package liveness

import (
	"fmt"

	"github.com/minicc/backend/internal/ir"
)

// Affinity records whether a value has been observed needing a register to
// satisfy some ISA operand constraint, needing only a stack location, or
// neither yet. It is the register/stack preference §4.2.2 step 1 and
// SPEC_FULL §3 call the value's "affinity", mirroring the original
// splitting pass's `lv.affinity.is_reg()` guard on which live-through values
// are worth copying around a call.
type Affinity uint8

const (
	AffinityUnknown Affinity = iota
	AffinityReg
	AffinityStack
)

func (a Affinity) String() string {
	switch a {
	case AffinityReg:
		return "reg"
	case AffinityStack:
		return "stack"
	default:
		return "unknown"
	}
}

// RegisterConstrained reports whether the argIndex'th argument of inst must
// be register-resident rather than accepting a stack location. Analyze calls
// this once per use to accumulate each value's Affinity, without this
// package needing to import the ISA/OperandConstraints vocabulary that
// answers the question -- the caller (package regalloc, which already
// depends on both) supplies it.
type RegisterConstrained func(inst *ir.Instruction, argIndex int) bool

// Result is the liveness solution for one function.
type Result struct {
	fn       *ir.Function
	liveIn   map[ir.BlockID]map[ir.Value]struct{}
	liveOut  map[ir.BlockID]map[ir.Value]struct{}
	defs     map[ir.BlockID]map[ir.Value]struct{}
	affinity map[ir.Value]Affinity
}

// Analyze computes liveIn/liveOut for every EBB of fn, plus a register/stack
// affinity for every value regConstrained can speak to. regConstrained may
// be nil when a caller has no ISA on hand and does not need affinity (every
// value then reports AffinityReg from Affinity, the conservative default).
func Analyze(fn *ir.Function, cfg *ir.CFG, regConstrained RegisterConstrained) *Result {
	blocks := fn.EBBs()

	r := &Result{
		fn:       fn,
		liveIn:   make(map[ir.BlockID]map[ir.Value]struct{}, len(blocks)),
		liveOut:  make(map[ir.BlockID]map[ir.Value]struct{}, len(blocks)),
		defs:     make(map[ir.BlockID]map[ir.Value]struct{}, len(blocks)),
		affinity: make(map[ir.Value]Affinity),
	}
	uses := make(map[ir.BlockID]map[ir.Value]struct{}, len(blocks))

	for _, b := range blocks {
		r.liveIn[b.ID()] = map[ir.Value]struct{}{}
		r.liveOut[b.ID()] = map[ir.Value]struct{}{}

		d := map[ir.Value]struct{}{}
		for _, p := range b.Params() {
			d[p] = struct{}{}
		}
		u := map[ir.Value]struct{}{}
		b.InstrIter(func(inst *ir.Instruction) {
			for idx, arg := range inst.Args() {
				u[arg] = struct{}{}
				if regConstrained == nil {
					continue
				}
				if regConstrained(inst, idx) {
					r.affinity[arg] = AffinityReg
				} else if r.affinity[arg] != AffinityReg {
					r.affinity[arg] = AffinityStack
				}
			}
			for _, a := range inst.BrArgs() {
				u[a] = struct{}{}
			}
			for _, res := range inst.Results() {
				d[res] = struct{}{}
			}
		})
		r.defs[b.ID()] = d
		uses[b.ID()] = u
	}

	visited := make(map[ir.BlockID]map[ir.Value]bool, len(blocks))
	var upAndMark func(b *ir.Block, v ir.Value)
	upAndMark = func(b *ir.Block, v ir.Value) {
		if _, ok := r.defs[b.ID()][v]; ok {
			return // Defined in this block: climbs no further.
		}
		if visited[b.ID()] == nil {
			visited[b.ID()] = map[ir.Value]bool{}
		}
		if visited[b.ID()][v] {
			return // Already marked live-in here, possibly by a sibling use.
		}
		visited[b.ID()][v] = true
		r.liveIn[b.ID()][v] = struct{}{}

		preds := b.Preds()
		if len(preds) == 0 && !b.EntryBlock() {
			panic(fmt.Sprintf("BUG: invariant breach: %s requires %s live-in but has no predecessor", b.Name(), v))
		}
		for _, pred := range preds {
			r.liveOut[pred.Block.ID()][v] = struct{}{}
			upAndMark(pred.Block, v)
		}
	}

	for _, b := range blocks {
		for v := range uses[b.ID()] {
			upAndMark(b, v)
		}
	}
	return r
}

// LiveIn returns the values live on entry to b.
func (r *Result) LiveIn(b *ir.Block) map[ir.Value]struct{} { return r.liveIn[b.ID()] }

// LiveOut returns the values live on exit from b.
func (r *Result) LiveOut(b *ir.Block) map[ir.Value]struct{} { return r.liveOut[b.ID()] }

// Affinity returns v's accumulated register/stack preference (AffinityReg
// when no use was ever observed, the safe default for a value splitting has
// no evidence is stack-only).
func (r *Result) Affinity(v ir.Value) Affinity {
	if a, ok := r.affinity[v]; ok {
		return a
	}
	return AffinityReg
}

// LiveAcross returns the values live both immediately before and immediately
// after inst: the set splitting's Phase 1 (§4.2.2) needs to decide which
// register-affine values must be copied around a call. It walks inst's
// block backward from the block's liveOut down to (but not including) inst,
// then drops inst's own results; the block's liveOut is the only input this
// query needs beyond the block-level Result.
func (r *Result) LiveAcross(inst *ir.Instruction) []ir.Value {
	b := inst.Block()
	live := make(map[ir.Value]struct{}, len(r.liveOut[b.ID()]))
	for v := range r.liveOut[b.ID()] {
		live[v] = struct{}{}
	}
	for i := b.Tail(); i != nil && i != inst; i = i.Prev() {
		for _, res := range i.Results() {
			delete(live, res)
		}
		for _, arg := range i.Args() {
			live[arg] = struct{}{}
		}
		for _, a := range i.BrArgs() {
			live[a] = struct{}{}
		}
	}
	// inst's own results are live only after it, not across it.
	for _, res := range inst.Results() {
		delete(live, res)
	}
	out := make([]ir.Value, 0, len(live))
	for v := range live {
		out = append(out, v)
	}
	return out
}
