package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/isa/demo"
	"github.com/minicc/backend/internal/regalloc"
)

func runAllocate(t *testing.T, fn *ir.Function) (*regalloc.Locations, *ir.CFG, *ir.DomTree, bool) {
	t.Helper()
	cfg := ir.BuildCFG(fn)
	domtree := ir.BuildDomTree(fn, cfg)
	topo := ir.TopoOrder(cfg)
	isa := demo.New()
	locs, newCFG, newDomTree, inserted := regalloc.Allocate(isa, fn, cfg, domtree, topo)
	require.NotNil(t, locs)
	require.NotNil(t, newCFG)
	require.NotNil(t, newDomTree)
	return locs, newCFG, newDomTree, inserted
}

func TestAllocateTrivialAdd(t *testing.T) {
	sig := demo.Signature([]ir.Type{ir.TypeI32, ir.TypeI32}, []ir.Type{ir.TypeI32})
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	a := fn.AppendEBBParam(entry, ir.TypeI32)
	b := fn.AppendEBBParam(entry, ir.TypeI32)
	sum := entry.BinOp(ir.OpIadd, ir.TypeI32, a, b)
	entry.Return([]ir.Value{sum})

	locs, _, _, inserted := runAllocate(t, fn)
	assert.False(t, inserted)

	var ops []ir.Opcode
	entry.InstrIter(func(i *ir.Instruction) { ops = append(ops, i.Opcode()) })
	require.Equal(t, []ir.Opcode{
		ir.OpSpill, ir.OpSpill, // entry-parameter preparation
		ir.OpFill, ir.OpFill, // assignAndFillInputs for iadd
		ir.OpIadd,
		ir.OpSpill, // output spill-back
		ir.OpFill,  // return value fill
		ir.OpReturn,
	}, ops)

	// sum's original name ends life Stack-resident; the allocator never
	// leaves a value's final public name sitting in a register.
	assert.Equal(t, regalloc.LocStack, locs.Get(sum).Kind)
}

func TestAllocateCriticalEdgeSplit(t *testing.T) {
	sig := demo.Signature([]ir.Type{ir.TypeI32}, []ir.Type{ir.TypeI32})
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	target := fn.CreateBlock()
	fn.AppendBlock(target)
	otherElse := fn.CreateBlock()
	fn.AppendBlock(otherElse)

	x := fn.AppendEBBParam(entry, ir.TypeI32)
	brz := entry.Brz(x, target, []ir.Value{x})
	entry.Jump(otherElse, nil)

	p := fn.AppendEBBParam(target, ir.TypeI32)
	target.Return([]ir.Value{p})

	c := otherElse.Iconst(ir.TypeI32)
	otherElse.Return([]ir.Value{c})

	_, _, _, inserted := runAllocate(t, fn)
	assert.True(t, inserted, "a side exit to a parameterized target must split the critical edge")

	ebbs := fn.EBBs()
	require.Len(t, ebbs, 4)

	var splitBlock *ir.Block
	for _, b := range ebbs {
		if b != entry && b != target && b != otherElse {
			splitBlock = b
		}
	}
	require.NotNil(t, splitBlock)

	assert.Equal(t, splitBlock, brz.Target(), "the side exit is retargeted to the fresh critical-edge-splitting block")
	assert.Empty(t, brz.BrArgs(), "the retargeted side exit carries no outgoing arguments")
	require.NotNil(t, splitBlock.Root())
	// The jump's outgoing-argument fill/spill pair is inserted ahead of it,
	// so the jump is the block's tail, not its root.
	assert.Equal(t, ir.OpJump, splitBlock.Tail().Opcode())
	assert.Equal(t, target, splitBlock.Tail().Target())
	assert.Len(t, splitBlock.Tail().BrArgs(), 1, "the synthesized jump still carries the original outgoing argument to target's parameter")
}

func TestAllocateTiedFixedImul(t *testing.T) {
	sig := demo.Signature([]ir.Type{ir.TypeI32, ir.TypeI32}, []ir.Type{ir.TypeI32})
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	x := fn.AppendEBBParam(entry, ir.TypeI32)
	y := fn.AppendEBBParam(entry, ir.TypeI32)
	m := entry.BinOp(ir.OpImul, ir.TypeI32, x, y)
	entry.Return([]ir.Value{m})

	locs, _, _, _ := runAllocate(t, fn)

	var imul *ir.Instruction
	entry.InstrIter(func(i *ir.Instruction) {
		if i.Opcode() == ir.OpImul {
			imul = i
		}
	})
	require.NotNil(t, imul)

	resultLoc := locs.Get(imul.Results()[0])
	require.Equal(t, regalloc.LocReg, resultLoc.Kind)
	assert.Equal(t, demo.R0, resultLoc.Reg, "imul's tied+fixed output must land in the accumulator, matching its fixed first input")

	firstArgLoc := locs.Get(imul.Args()[0])
	require.Equal(t, regalloc.LocReg, firstArgLoc.Kind)
	assert.Equal(t, demo.R0, firstArgLoc.Reg)

	assert.Equal(t, regalloc.LocStack, locs.Get(m).Kind)
}

func TestAllocatePanicsOnCall(t *testing.T) {
	sig := demo.Signature(nil, nil)
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	entry.Call(&ir.Signature{}, nil, nil)
	entry.Return(nil)

	assert.Panics(t, func() { runAllocate(t, fn) }, "calls must be lowered before the minimal allocator runs")
}

func TestAllocatePanicsOnStackHomedReturn(t *testing.T) {
	sig := &ir.Signature{Returns: []ir.ArgumentLoc{{Kind: ir.ArgLocStack, Type: ir.TypeI32}}}
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	c := entry.Iconst(ir.TypeI32)
	entry.Return([]ir.Value{c})

	assert.Panics(t, func() { runAllocate(t, fn) })
}
