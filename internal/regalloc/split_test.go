package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/isa/demo"
	"github.com/minicc/backend/internal/liveness"
	"github.com/minicc/backend/internal/regalloc"
)

func TestSplitAcrossCallsSingleBlockRename(t *testing.T) {
	sig := &ir.Signature{Params: []ir.ArgumentLoc{
		{Kind: ir.ArgLocReg, Type: ir.TypeI32},
		{Kind: ir.ArgLocReg, Type: ir.TypeI32},
	}}
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)

	x := fn.AppendEBBParam(entry, ir.TypeI32)
	y := fn.AppendEBBParam(entry, ir.TypeI32)
	callInst := entry.Call(&ir.Signature{}, nil, nil)
	sum := entry.BinOp(ir.OpIadd, ir.TypeI32, x, y)
	entry.Return([]ir.Value{sum})

	cfg := ir.BuildCFG(fn)
	domtree := ir.BuildDomTree(fn, cfg)
	isa := demo.New()
	live := liveness.Analyze(fn, cfg, regalloc.RegisterConstraintPredicate(isa))

	changed := regalloc.SplitAcrossCalls(fn, cfg, domtree, live)
	require.True(t, changed)

	var copies []*ir.Instruction
	entry.InstrIter(func(i *ir.Instruction) {
		if i.Opcode() == ir.OpCopy {
			copies = append(copies, i)
		}
	})
	require.Len(t, copies, 4, "each of x and y gets a before-call temp and an after-call copy")

	beforeX, beforeY := copies[0], copies[1]
	require.Same(t, beforeX.Next(), beforeY, "both temps are spliced immediately before the call, in value-id order")
	require.Same(t, beforeY.Next(), callInst)

	afterX, afterY := copies[2], copies[3]
	require.Same(t, callInst.Next(), afterX, "the after-call copies follow the call, reading back the temps")
	require.Same(t, afterX.Next(), afterY)
	assert.Equal(t, beforeX.Results()[0], afterX.Args()[0], "the after-copy reads the before-copy's temp, not x itself")
	assert.Equal(t, beforeY.Results()[0], afterY.Args()[0])

	assert.Equal(t, x, beforeX.Args()[0], "the before-copy is the only instruction that still reads the original value")
	assert.Equal(t, y, beforeY.Args()[0])

	_, addInst := fn.ValueDef(sum)
	assert.NotEqual(t, x, addInst.Args()[0], "the iadd's first argument must be renamed to the after-call copy, not the original x")
	assert.NotEqual(t, y, addInst.Args()[1], "the iadd's second argument must be renamed to the after-call copy, not the original y")
}

func TestSplitAcrossCallsSkipsStackOnlyAffineValues(t *testing.T) {
	sig := &ir.Signature{Params: []ir.ArgumentLoc{{Kind: ir.ArgLocReg, Type: ir.TypeI32}}}
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)

	addr := fn.AppendEBBParam(entry, ir.TypeI32)
	entry.Call(&ir.Signature{}, nil, nil)
	v := entry.Load(addr, ir.TypeI32)
	entry.Return([]ir.Value{v})

	cfg := ir.BuildCFG(fn)
	domtree := ir.BuildDomTree(fn, cfg)
	isa := demo.New()
	live := liveness.Analyze(fn, cfg, regalloc.RegisterConstraintPredicate(isa))
	require.Equal(t, liveness.AffinityStack, live.Affinity(addr), "addr's only use is a load's address operand, a KindStack constraint")

	changed := regalloc.SplitAcrossCalls(fn, cfg, domtree, live)
	assert.False(t, changed, "addr is only ever read directly out of its stack slot; copying it around the call buys nothing")

	var copies int
	entry.InstrIter(func(i *ir.Instruction) {
		if i.Opcode() == ir.OpCopy {
			copies++
		}
	})
	assert.Zero(t, copies)
}

func TestSplitAcrossCallsInsertsPhiAtJoin(t *testing.T) {
	sig := &ir.Signature{
		Params:  []ir.ArgumentLoc{{Kind: ir.ArgLocReg, Type: ir.TypeI32}},
		Returns: []ir.ArgumentLoc{{Kind: ir.ArgLocReg, Type: ir.TypeI32}},
	}
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	left := fn.CreateBlock()
	fn.AppendBlock(left)
	right := fn.CreateBlock()
	fn.AppendBlock(right)
	merge := fn.CreateBlock()
	fn.AppendBlock(merge)

	x := fn.AppendEBBParam(entry, ir.TypeI32)
	entry.Brz(x, right, nil)
	entry.Jump(left, nil)

	callInst := left.Call(&ir.Signature{}, nil, nil)
	leftJump := left.Jump(merge, nil)

	rightJump := right.Jump(merge, nil)

	merge.Return([]ir.Value{x})

	cfg := ir.BuildCFG(fn)
	domtree := ir.BuildDomTree(fn, cfg)
	isa := demo.New()
	live := liveness.Analyze(fn, cfg, regalloc.RegisterConstraintPredicate(isa))

	changed := regalloc.SplitAcrossCalls(fn, cfg, domtree, live)
	require.True(t, changed)

	require.Len(t, merge.Params(), 1, "x has two competing reaching definitions at merge (the left-side copy and the original), so it needs a phi there")
	phi := merge.Params()[0]

	var mergeReturn *ir.Instruction
	merge.InstrIter(func(i *ir.Instruction) {
		if i.Opcode() == ir.OpReturn {
			mergeReturn = i
		}
	})
	require.NotNil(t, mergeReturn)
	assert.Equal(t, phi, mergeReturn.Args()[0], "merge's return must be renamed to the phi, not the stale x")

	var leftCopies []*ir.Instruction
	left.InstrIter(func(i *ir.Instruction) {
		if i.Opcode() == ir.OpCopy {
			leftCopies = append(leftCopies, i)
		}
	})
	require.Len(t, leftCopies, 2, "x gets a before-call temp and an after-call copy in left")
	beforeCopy, afterCopy := leftCopies[0], leftCopies[1]
	assert.Equal(t, x, beforeCopy.Args()[0], "the before-copy is the one that still reads the original x")
	assert.Equal(t, beforeCopy.Results()[0], afterCopy.Args()[0], "the after-copy reads the temp, not x itself")
	copyResult := afterCopy.Results()[0]

	require.Len(t, leftJump.BrArgs(), 1)
	assert.Equal(t, copyResult, leftJump.BrArgs()[0], "left's jump must carry its own after-call copy of x to the phi")

	require.Len(t, rightJump.BrArgs(), 1)
	assert.Equal(t, x, rightJump.BrArgs()[0], "right never redefines x, so its jump carries the original value through to the phi")

	require.NotNil(t, callInst)
}
