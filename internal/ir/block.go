package ir

import (
	"fmt"
	"strings"
)

// BlockID is the unique, dense identifier of a Block.
type BlockID uint32

// Block is an extended basic block (EBB, §3): entered only at the top, but
// possibly exited at multiple conditional branches (its side exits). Its
// Params are the EBB parameters described in §3, playing the role of phi
// nodes the way the teacher's "block argument" SSA variant does (see
// DESIGN.md) -- there is no separate Phi instruction.
type Block struct {
	id     BlockID
	params []Value

	root, tail *Instruction

	preds []PredEdge
	succs []*Block

	entry, invalid bool

	// rpoIndex is this block's position in the CFG's reverse postorder,
	// filled in by BuildCFG and consumed by the dominator-tree computation's
	// intersect() (grounded on the teacher's basicBlock.reversePostOrder).
	rpoIndex int

	fn *Function
}

// PredEdge is one predecessor of a Block: the predecessor block and the
// branch instruction (in that block) that targets us. This mirrors the
// teacher's basicBlockPredecessorInfo.
type PredEdge struct {
	Block  *Block
	Branch *Instruction
}

func (b *Block) ID() BlockID { return b.id }

func (b *Block) Name() string { return fmt.Sprintf("blk%d", b.id) }

// EntryBlock reports whether this is the function's entry EBB.
func (b *Block) EntryBlock() bool { return b.entry }

// Params returns the EBB's parameters in order. The entry block's params
// carry the function signature (§3).
func (b *Block) Params() []Value { return b.params }

// Preds returns the block's CFG predecessors.
func (b *Block) Preds() []PredEdge { return b.preds }

// Succs returns the block's CFG successors.
func (b *Block) Succs() []*Block { return b.succs }

// Root returns the first instruction of the block, or nil if empty.
func (b *Block) Root() *Instruction { return b.root }

// Tail returns the last instruction of the block (its terminator, once the
// block is fully built), or nil if empty.
func (b *Block) Tail() *Instruction { return b.tail }

// InstrIter walks instructions from first to last.
func (b *Block) InstrIter(f func(*Instruction)) {
	for i := b.root; i != nil; i = i.next {
		f(i)
	}
}

// appendParam adds a fresh EBB parameter of type t and returns its Value.
// Implements the collaborator op append_ebb_param(ebb, type) from §6.
func (b *Block) appendParam(fn *Function, t Type) Value {
	v := fn.allocateValue(t, b, nil, len(b.params))
	b.params = append(b.params, v)
	return v
}

// replaceParam swaps the i-th parameter for a freshly named value of type
// t, implementing replace_ebb_param(old, type) from §6 (used by entry-block
// preparation, §4.1.2, to rename an ABI-register parameter).
func (b *Block) replaceParam(fn *Function, i int, t Type) Value {
	v := fn.allocateValue(t, b, nil, i)
	b.params[i] = v
	return v
}

// insertInstrBefore splices inst immediately before at (or at the tail if at is
// nil). Both passes drive all of their code motion through this plus
// Cursor, never by touching prev/next directly outside this file.
func (b *Block) insertInstrBefore(at, inst *Instruction) {
	inst.block = b
	if at == nil {
		// Insert at tail.
		if b.tail == nil {
			b.root, b.tail = inst, inst
			inst.prev, inst.next = nil, nil
			return
		}
		inst.prev = b.tail
		inst.next = nil
		b.tail.next = inst
		b.tail = inst
		return
	}
	inst.next = at
	inst.prev = at.prev
	if at.prev != nil {
		at.prev.next = inst
	} else {
		b.root = inst
	}
	at.prev = inst
}

func (b *Block) insertInstrAfter(at, inst *Instruction) {
	inst.block = b
	if at == nil {
		b.insertInstrBefore(nil, inst)
		return
	}
	inst.prev = at
	inst.next = at.next
	if at.next != nil {
		at.next.prev = inst
	} else {
		b.tail = inst
	}
	at.next = inst
}

// String implements fmt.Stringer for debugging.
func (b *Block) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s(", b.Name())
	for i, p := range b.params {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s", p)
	}
	buf.WriteString("):")
	b.InstrIter(func(inst *Instruction) {
		fmt.Fprintf(&buf, "\n\t%s", inst)
	})
	return buf.String()
}
