package liveness_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/liveness"
)

// buildDiamondUsingXAtMerge builds entry -> {left, right} -> merge, where x
// is a param defined in entry and used only at merge's return, so it must
// be threaded live through both arms without being defined or used in
// between.
func buildDiamondUsingXAtMerge(t *testing.T) (fn *ir.Function, entry, left, right, merge *ir.Block, x ir.Value) {
	t.Helper()
	sig := &ir.Signature{Params: []ir.ArgumentLoc{{Kind: ir.ArgLocReg, Type: ir.TypeI32}}}
	fn = ir.NewFunction(sig)
	entry = fn.CreateBlock()
	fn.AppendBlock(entry)
	left = fn.CreateBlock()
	fn.AppendBlock(left)
	right = fn.CreateBlock()
	fn.AppendBlock(right)
	merge = fn.CreateBlock()
	fn.AppendBlock(merge)

	x = fn.AppendEBBParam(entry, ir.TypeI32)
	entry.Brz(x, left, nil)
	entry.Jump(right, nil)
	left.Jump(merge, nil)
	right.Jump(merge, nil)
	merge.Return([]ir.Value{x})
	return
}

func TestLivenessThreadsValueThroughDiamond(t *testing.T) {
	fn, entry, left, right, merge, x := buildDiamondUsingXAtMerge(t)
	cfg := ir.BuildCFG(fn)
	res := liveness.Analyze(fn, cfg, nil)

	assert.NotContains(t, res.LiveOut(entry), ir.Value(0), "sanity: liveOut sets are indexed by real values")
	_, hasX := res.LiveOut(entry)[x]
	assert.True(t, hasX, "x must be live-out of entry: both successors need it")
	_, leftIn := res.LiveIn(left)[x]
	assert.True(t, leftIn)
	_, rightIn := res.LiveIn(right)[x]
	assert.True(t, rightIn)
	_, mergeIn := res.LiveIn(merge)[x]
	assert.True(t, mergeIn)
	_, mergeOut := res.LiveOut(merge)[x]
	assert.False(t, mergeOut, "x is consumed by the return; nothing downstream needs it")
}

func TestLiveAcrossCall(t *testing.T) {
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
	res := liveness.Analyze(fn, cfg, nil)

	across := res.LiveAcross(callInst)
	require.ElementsMatch(t, []ir.Value{x, y}, across)
}

func TestLiveAcrossExcludesValuesDeadBeforeTheCall(t *testing.T) {
	sig := &ir.Signature{Params: []ir.ArgumentLoc{{Kind: ir.ArgLocReg, Type: ir.TypeI32}}}
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)

	x := fn.AppendEBBParam(entry, ir.TypeI32)
	doubled := entry.BinOp(ir.OpIadd, ir.TypeI32, x, x)
	callInst := entry.Call(&ir.Signature{}, nil, nil)
	entry.Return([]ir.Value{doubled})

	cfg := ir.BuildCFG(fn)
	res := liveness.Analyze(fn, cfg, nil)

	across := res.LiveAcross(callInst)
	assert.NotContains(t, across, x, "x is fully consumed before the call; it has nothing to do with splitting")
	assert.Contains(t, across, doubled)
}
