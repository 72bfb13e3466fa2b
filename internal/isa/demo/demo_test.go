package demo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicc/backend/internal/ir"
	"github.com/minicc/backend/internal/isa/demo"
	"github.com/minicc/backend/internal/regalloc"
)

func TestSignatureABIRegisterThenStack(t *testing.T) {
	sig := demo.Signature([]ir.Type{ir.TypeI32, ir.TypeI32, ir.TypeI32, ir.TypeI32, ir.TypeI32}, []ir.Type{ir.TypeI32})
	require.Len(t, sig.Params, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, ir.ArgLocReg, sig.Params[i].Kind)
	}
	assert.Equal(t, ir.ArgLocStack, sig.Params[4].Kind, "the fifth integer argument spills to the stack")
	require.Len(t, sig.Returns, 1)
	assert.Equal(t, ir.ArgLocReg, sig.Returns[0].Kind)
	assert.Equal(t, demo.R0, sig.Returns[0].Reg)
}

func TestSignaturePanicsOnMultipleReturns(t *testing.T) {
	assert.Panics(t, func() {
		demo.Signature(nil, []ir.Type{ir.TypeI32, ir.TypeI32})
	})
}

func TestImulConstraintsPinAccumulator(t *testing.T) {
	fn := ir.NewFunction(&ir.Signature{})
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	x := fn.AppendEBBParam(entry, ir.TypeI32)
	y := fn.AppendEBBParam(entry, ir.TypeI32)
	m := entry.BinOp(ir.OpImul, ir.TypeI32, x, y)
	_, inst := fn.ValueDef(m)

	isa := demo.New()
	oc, ok := isa.OperandConstraints(inst)
	require.True(t, ok)
	require.Len(t, oc.Ins, 2)
	assert.Equal(t, regalloc.KindFixedReg, oc.Ins[0].Kind)
	assert.Equal(t, demo.R0, oc.Ins[0].Reg)
	assert.Equal(t, regalloc.KindReg, oc.Ins[1].Kind)
	require.Len(t, oc.Outs, 1)
	assert.Equal(t, regalloc.KindFixedTied, oc.Outs[0].Kind)
	assert.Equal(t, demo.R0, oc.Outs[0].Reg)
	assert.Equal(t, 0, oc.Outs[0].TiedInput)
	assert.True(t, oc.FixedIns)
	assert.True(t, oc.FixedOuts)
}

func TestLoadConstraintLeavesAddressOnStack(t *testing.T) {
	fn := ir.NewFunction(&ir.Signature{})
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	addr := fn.AppendEBBParam(entry, ir.TypeI32)
	v := entry.Load(addr, ir.TypeI32)
	_, inst := fn.ValueDef(v)

	isa := demo.New()
	oc, ok := isa.OperandConstraints(inst)
	require.True(t, ok)
	require.Len(t, oc.Ins, 1)
	assert.Equal(t, regalloc.KindStack, oc.Ins[0].Kind, "load addresses are never forced into a register")
	require.Len(t, oc.Outs, 1)
	assert.Equal(t, regalloc.KindReg, oc.Outs[0].Kind)
}

func TestUpdateEncodingTracksAddressingModeAfterAllocation(t *testing.T) {
	sig := demo.Signature([]ir.Type{ir.TypeI32}, []ir.Type{ir.TypeI32})
	fn := ir.NewFunction(sig)
	entry := fn.CreateBlock()
	fn.AppendBlock(entry)
	addr := fn.AppendEBBParam(entry, ir.TypeI32)
	v := entry.Load(addr, ir.TypeI32)
	entry.Return([]ir.Value{v})

	cfg := ir.BuildCFG(fn)
	domtree := ir.BuildDomTree(fn, cfg)
	topo := ir.TopoOrder(cfg)
	isa := demo.New()

	// Allocate drives BindLocations + UpdateEncoding internally; a panic
	// here would mean the two are out of step (addr has no location yet).
	assert.NotPanics(t, func() {
		regalloc.Allocate(isa, fn, cfg, domtree, topo)
	})
}
