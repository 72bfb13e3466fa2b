package ir

// This file implements the IR-builder collaborator operations consumed by
// the two backend passes (§6) -- fill, spill, copy, the branch family, and
// the handful of plain arithmetic/control ops needed to assemble functions
// for the demo ISA and the test suite.
//
// Two layers: the unexported make* constructors build an Instruction and its
// result Value(s) without touching layout; Cursor/Block methods splice the
// result into the program. Keeping construction and placement separate is
// what lets the same Spill constructor serve both "insert before the
// branch" (§4.1.5) and "insert after the instruction" (§4.1.6) call sites.

// makeFill implements the fill(value) builder op: always a brand new
// register-resident name.
func (f *Function) makeFill(v Value) (*Instruction, Value) {
	t := f.ValueType(v)
	inst := f.newInstr(OpFill)
	inst.args = []Value{v}
	res := f.allocateValue(t, nil, inst, 0)
	inst.results = []Value{res}
	return inst, res
}

// makeSpill implements the spill(value) builder op with a fresh result name.
func (f *Function) makeSpill(v Value) (*Instruction, Value) {
	t := f.ValueType(v)
	inst := f.newInstr(OpSpill)
	inst.args = []Value{v}
	res := f.allocateValue(t, nil, inst, 0)
	inst.results = []Value{res}
	return inst, res
}

// makeSpillAs builds a spill whose result reuses the identity of an
// already-existing Value dst (§4.1.2 "p = spill p'"; §4.1.6 step 6 "result =
// spill r'"), so every other use of dst is retargeted for free.
func (f *Function) makeSpillAs(v, dst Value) *Instruction {
	inst := f.newInstr(OpSpill)
	inst.args = []Value{v}
	inst.results = []Value{dst}
	f.redefineAsResult(dst, inst, 0)
	return inst
}

// makeCopy implements the copy(value) builder op used by the splitting pass.
func (f *Function) makeCopy(v Value) (*Instruction, Value) {
	t := f.ValueType(v)
	inst := f.newInstr(OpCopy)
	inst.args = []Value{v}
	res := f.allocateValue(t, nil, inst, 0)
	inst.results = []Value{res}
	return inst, res
}

// FillBefore inserts `t = fill v` immediately before the cursor position.
func (c *Cursor) FillBefore(v Value) Value {
	inst, res := c.fn.makeFill(v)
	c.InsertBefore(inst)
	return res
}

// SpillBefore inserts `d = spill v` immediately before the cursor position.
func (c *Cursor) SpillBefore(v Value) Value {
	inst, res := c.fn.makeSpill(v)
	c.InsertBefore(inst)
	return res
}

// SpillAfter inserts `d = spill v` immediately after the cursor position and
// advances the cursor onto it.
func (c *Cursor) SpillAfter(v Value) Value {
	inst, res := c.fn.makeSpill(v)
	c.InsertAfter(inst)
	return res
}

// SpillAsAfter inserts `dst = spill v` after the cursor position, reusing
// dst's existing identity, and advances the cursor onto it.
func (c *Cursor) SpillAsAfter(v, dst Value) {
	inst := c.fn.makeSpillAs(v, dst)
	c.InsertAfter(inst)
}

// SpillAsBefore inserts `dst = spill v` before the cursor position, reusing
// dst's existing identity (§4.1.2 entry-parameter preparation).
func (c *Cursor) SpillAsBefore(v, dst Value) {
	inst := c.fn.makeSpillAs(v, dst)
	c.InsertBefore(inst)
}

// CopyBefore inserts `s = copy v` immediately before the cursor position.
func (c *Cursor) CopyBefore(v Value) Value {
	inst, res := c.fn.makeCopy(v)
	c.InsertBefore(inst)
	return res
}

// CopyAfter inserts `w = copy v` immediately after the cursor position and
// advances the cursor onto it.
func (c *Cursor) CopyAfter(v Value) Value {
	inst, res := c.fn.makeCopy(v)
	c.InsertAfter(inst)
	return res
}

// --- Branch family (§6: jump/brz/brnz/br_icmp/brif/brff(..., new_target, [])) ---

// Jump appends an unconditional `jump target(args)` to the end of b.
func (b *Block) Jump(target *Block, args []Value) *Instruction {
	inst := b.fn.newInstr(OpJump)
	inst.target = target
	inst.brArgs = append([]Value(nil), args...)
	b.insertInstrBefore(nil, inst)
	return inst
}

// Brz appends a conditional `brz cond, target(args)`.
func (b *Block) Brz(cond Value, target *Block, args []Value) *Instruction {
	inst := b.fn.newInstr(OpBrz)
	inst.args = []Value{cond}
	inst.target = target
	inst.brArgs = append([]Value(nil), args...)
	b.insertInstrBefore(nil, inst)
	return inst
}

// Brnz appends a conditional `brnz cond, target(args)`.
func (b *Block) Brnz(cond Value, target *Block, args []Value) *Instruction {
	inst := b.fn.newInstr(OpBrnz)
	inst.args = []Value{cond}
	inst.target = target
	inst.brArgs = append([]Value(nil), args...)
	b.insertInstrBefore(nil, inst)
	return inst
}

// BrIcmp appends an integer compare-and-branch `br_icmp cond, lhs, rhs,
// target(args)`.
func (b *Block) BrIcmp(cond CondCode, lhs, rhs Value, target *Block, args []Value) *Instruction {
	inst := b.fn.newInstr(OpBrIcmp)
	inst.cond = cond
	inst.args = []Value{lhs, rhs}
	inst.target = target
	inst.brArgs = append([]Value(nil), args...)
	b.insertInstrBefore(nil, inst)
	return inst
}

// BrTable appends an indirect jump table `br_table index, targets...`.
func (b *Block) BrTable(index Value, targets []*Block) *Instruction {
	inst := b.fn.newInstr(OpBrTable)
	inst.args = []Value{index}
	inst.targets = append([]*Block(nil), targets...)
	b.insertInstrBefore(nil, inst)
	return inst
}

// Return appends a `return args`.
func (b *Block) Return(args []Value) *Instruction {
	inst := b.fn.newInstr(OpReturn)
	inst.args = append([]Value(nil), args...)
	b.insertInstrBefore(nil, inst)
	return inst
}

// FallthroughReturn appends a `fallthrough_return args`.
func (b *Block) FallthroughReturn(args []Value) *Instruction {
	inst := b.fn.newInstr(OpFallthroughReturn)
	inst.args = append([]Value(nil), args...)
	b.insertInstrBefore(nil, inst)
	return inst
}

// Trap appends a `trap`.
func (b *Block) Trap() *Instruction {
	inst := b.fn.newInstr(OpTrap)
	b.insertInstrBefore(nil, inst)
	return inst
}

// RetargetNoArgs rewrites a side-exit branch to target a new, parameterless
// block, preserving its own compared/tested operands. Used by critical-edge
// splitting (§4.1.5) to turn `brnz cond, L(args)` into `brnz cond, E'`.
func (i *Instruction) RetargetNoArgs(target *Block) {
	i.target = target
	i.brArgs = nil
}

// --- Plain arithmetic/compare/memory ops, for assembling test functions and
// the demo ISA. ---

// BinOp appends a two-operand, one-result instruction of type t (iadd, isub,
// imul) to the end of b.
func (b *Block) BinOp(op Opcode, t Type, x, y Value) Value {
	inst := b.fn.newInstr(op)
	inst.args = []Value{x, y}
	inst.typ = t
	res := b.fn.allocateValue(t, nil, inst, 0)
	inst.results = []Value{res}
	b.insertInstrBefore(nil, inst)
	return res
}

// Icmp appends `v = icmp cond, lhs, rhs`; v has TypeFlags.
func (b *Block) Icmp(cond CondCode, lhs, rhs Value) Value {
	inst := b.fn.newInstr(OpIcmp)
	inst.cond = cond
	inst.args = []Value{lhs, rhs}
	res := b.fn.allocateValue(TypeFlags, nil, inst, 0)
	inst.results = []Value{res}
	b.insertInstrBefore(nil, inst)
	return res
}

// Load appends `v = load addr`.
func (b *Block) Load(addr Value, t Type) Value {
	inst := b.fn.newInstr(OpLoad)
	inst.args = []Value{addr}
	res := b.fn.allocateValue(t, nil, inst, 0)
	inst.results = []Value{res}
	b.insertInstrBefore(nil, inst)
	return res
}

// Store appends `store addr, val`.
func (b *Block) Store(addr, val Value) *Instruction {
	inst := b.fn.newInstr(OpStore)
	inst.args = []Value{addr, val}
	b.insertInstrBefore(nil, inst)
	return inst
}

// Iconst appends `v = iconst`, a zero-argument constant materialization.
func (b *Block) Iconst(t Type) Value {
	inst := b.fn.newInstr(OpIconst)
	res := b.fn.allocateValue(t, nil, inst, 0)
	inst.results = []Value{res}
	b.insertInstrBefore(nil, inst)
	return res
}

// Call appends a call instruction. Call lowering (argument/return marshaling
// through the ABI) is explicitly out of scope for the minimal allocator
// (§4.1.1, §4.1.4): this constructor exists only so that the splitting
// pass, which must run before call lowering would occur, has a call site to
// operate on.
func (b *Block) Call(sig *Signature, args []Value, resultTypes []Type) *Instruction {
	inst := b.fn.newInstr(OpCall)
	inst.args = append([]Value(nil), args...)
	inst.callSig = sig
	inst.results = make([]Value, len(resultTypes))
	for i, t := range resultTypes {
		inst.results[i] = b.fn.allocateValue(t, nil, inst, i)
	}
	b.insertInstrBefore(nil, inst)
	return inst
}
