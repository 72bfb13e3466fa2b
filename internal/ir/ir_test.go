package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond builds entry -> {left, right} -> merge, all parameterless,
// every block terminated appropriately so BuildCFG has real branches to
// scan.
func buildDiamond(t *testing.T) (fn *Function, entry, left, right, merge *Block) {
	t.Helper()
	fn = NewFunction(&Signature{})
	entry = fn.CreateBlock()
	fn.AppendBlock(entry)
	left = fn.CreateBlock()
	fn.AppendBlock(left)
	right = fn.CreateBlock()
	fn.AppendBlock(right)
	merge = fn.CreateBlock()
	fn.AppendBlock(merge)

	cond := entry.Iconst(TypeI32)
	entry.Brz(cond, left, nil)
	entry.Jump(right, nil)
	left.Jump(merge, nil)
	right.Jump(merge, nil)
	merge.Return(nil)
	return
}

func TestBuildCFGEdgesAndReversePostOrder(t *testing.T) {
	fn, entry, left, right, merge := buildDiamond(t)
	cfg := BuildCFG(fn)

	require.ElementsMatch(t, []*Block{left, right}, entry.Succs())
	require.Len(t, merge.Preds(), 2)
	preds := []*Block{merge.Preds()[0].Block, merge.Preds()[1].Block}
	assert.ElementsMatch(t, []*Block{left, right}, preds)

	rpo := cfg.ReversePostOrder()
	require.Len(t, rpo, 4)
	assert.Equal(t, entry, rpo[0])
	assert.Equal(t, merge, rpo[len(rpo)-1])
}

func TestBuildDomTreeDiamond(t *testing.T) {
	fn, entry, left, right, merge := buildDiamond(t)
	cfg := BuildCFG(fn)
	dt := BuildDomTree(fn, cfg)

	assert.Nil(t, dt.Idom(entry))
	assert.Equal(t, entry, dt.Idom(left))
	assert.Equal(t, entry, dt.Idom(right))
	assert.Equal(t, entry, dt.Idom(merge), "merge's two preds share entry as their nearest common dominator")

	assert.True(t, dt.Dominates(entry, merge))
	assert.False(t, dt.Dominates(left, merge), "merge is also reachable via right, so left alone does not dominate it")
	assert.True(t, dt.Dominates(entry, entry))
}

func TestPoolAllocateAcrossPageBoundary(t *testing.T) {
	fn := NewFunction(&Signature{})
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)

	// arenaPageSize is 256; allocate enough blocks to force a second page
	// and confirm every pointer (and id) stays distinct.
	const n = 300
	blocks := make([]*Block, n)
	for i := range blocks {
		blocks[i] = fn.CreateBlock()
	}
	seen := make(map[*Block]bool, n)
	for i, b := range blocks {
		assert.False(t, seen[b], "block pointer reused")
		seen[b] = true
		assert.Equal(t, BlockID(i+1), b.ID(), "block ids are dense and assigned in allocation order")
	}
}

func TestCursorInsertBeforeAndAfter(t *testing.T) {
	fn := NewFunction(&Signature{})
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)

	a := entry.Iconst(TypeI32)
	mid, _ := fn.ValueDef(a)
	require.NotNil(t, mid)
	anchor := entry.Tail() // the iconst instruction

	cur := NewCursorAt(fn, anchor)
	before := cur.Block()
	require.Equal(t, entry, before)

	spillInst, _ := fn.makeSpill(a)
	cur.InsertBefore(spillInst)

	fillInst, fillVal := fn.makeFill(a)
	cur.InsertAfter(fillInst)
	assert.Equal(t, fillInst, cur.Instr(), "InsertAfter moves the cursor onto the inserted instruction")
	assert.NotEqual(t, ValueInvalid, fillVal)

	var order []Opcode
	entry.InstrIter(func(i *Instruction) { order = append(order, i.Opcode()) })
	require.Len(t, order, 3)
	assert.Equal(t, []Opcode{OpSpill, OpIconst, OpFill}, order)
}

func TestRedefineAsResultRetargetsUses(t *testing.T) {
	fn := NewFunction(&Signature{})
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)

	x := entry.Iconst(TypeI32)
	y := entry.BinOp(OpIadd, TypeI32, x, x)
	entry.Return([]Value{y})

	// Simulate the allocator's output-spill rename: y becomes the spill's
	// result while a fresh name takes over as the iadd's direct result.
	_, addInst := fn.ValueDef(y)
	fresh := fn.ReplaceResult(y, TypeI32)
	cur := NewCursorAt(fn, addInst)
	cur.SpillAsAfter(fresh, y)

	block, instr := fn.ValueDef(y)
	require.NotNil(t, instr)
	assert.Equal(t, OpSpill, instr.Opcode())
	assert.Equal(t, entry, block)
	assert.NotEqual(t, addInst.Results()[0], y, "iadd's own result should now be the fresh intermediate, not y")
	assert.Equal(t, fresh, addInst.Results()[0])
}
