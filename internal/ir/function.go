package ir

// SlotID is the dense identifier of a stack slot (§3). Once a value's home
// is Stack(s), s is never reused for a different value.
type SlotID uint32

// SlotData records the type a slot was allocated for; it exists purely for
// debugging/asserting, since the allocator never reads or writes through a
// slot's contents itself (that's the fill/spill instructions' job once
// lowered further).
type SlotData struct {
	Type Type
}

// Function is the top-level IR unit: an ordered layout of Blocks (EBBs), a
// dense Value namespace, and a stack-slot table. CFG and dominator-tree
// structures are computed on demand (§4.1.7, §6) and handed back to the
// caller/pass as separate values rather than being cached fields here,
// matching the external-collaborator boundary in §1: the allocator
// signals "I added blocks" and the driver recomputes them.
type Function struct {
	blockPool Pool[Block]
	instrPool Pool[Instruction]

	blocks []*Block // all blocks ever created, by BlockID; includes invalidated ones.
	layout []*Block // blocks in program layout order; this is what EBBs()/LastEBB() walk.

	values []valueData // dense, indexed by Value.

	sig *Signature

	slots []SlotData
}

// NewFunction creates an empty function. The caller builds the entry block
// and its body with the constructors in builder.go before running any pass.
func NewFunction(sig *Signature) *Function {
	f := &Function{sig: sig}
	// Value 0 is reserved as ValueInvalid.
	f.values = append(f.values, valueData{typ: TypeInvalid})
	return f
}

// Signature returns the function's ABI signature.
func (f *Function) Signature() *Signature { return f.sig }

// NumValues returns one past the highest Value id ever allocated, sized so
// a Value-indexed slice of this length never needs to be grown again unless
// more values are allocated afterward.
func (f *Function) NumValues() int { return len(f.values) }

// EntryBlock implements the collaborator op entry_block() from §6.
func (f *Function) EntryBlock() *Block { return f.layout[0] }

// LastEBB implements last_ebb() from §6: used by branch-splitting (§4.1.5)
// to avoid placing a new block after a trailing FallthroughReturn.
func (f *Function) LastEBB() *Block { return f.layout[len(f.layout)-1] }

// EBBs implements the ebbs() iterator from §6, in current layout order.
func (f *Function) EBBs() []*Block { return f.layout }

// InsertEBB implements insert_ebb(new, before) from §6: splices a freshly
// created EBB into the layout immediately before `before`.
func (f *Function) InsertEBB(blk, before *Block) {
	idx := -1
	for i, b := range f.layout {
		if b == before {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("BUG: InsertEBB: before block not found in layout")
	}
	f.layout = append(f.layout, nil)
	copy(f.layout[idx+1:], f.layout[idx:])
	f.layout[idx] = blk
}

// CreateBlock allocates a fresh, empty, unplaced Block. The caller appends
// it to the layout (e.g. via InsertEBB or AppendBlock).
func (f *Function) CreateBlock() *Block {
	b := f.blockPool.Allocate()
	*b = Block{id: BlockID(len(f.blocks)), fn: f}
	f.blocks = append(f.blocks, b)
	return b
}

// AppendBlock places a freshly created block at the end of the layout.
func (f *Function) AppendBlock(b *Block) {
	if len(f.layout) == 0 {
		b.entry = true
	}
	f.layout = append(f.layout, b)
}

// allocateValue hands out a fresh dense Value id and records its IR-level
// provenance.
func (f *Function) allocateValue(t Type, defBlock *Block, defInstr *Instruction, defIndex int) Value {
	id := Value(len(f.values))
	f.values = append(f.values, valueData{typ: t, defBlock: defBlock, defInstr: defInstr, defIndex: defIndex})
	return id
}

// ValueType implements value_type(v) from §6.
func (f *Function) ValueType(v Value) Type { return f.values[v].typ }

// ValueDef implements value_def(v) from §6: returns the defining block and,
// if the value is an instruction result rather than a block parameter, the
// defining instruction.
func (f *Function) ValueDef(v Value) (block *Block, instr *Instruction) {
	d := &f.values[v]
	if d.defInstr != nil {
		return d.defInstr.block, d.defInstr
	}
	return d.defBlock, nil
}

// redefineAsResult rewrites v's provenance to be the idx-th result of inst.
// Used when an already-existing Value (e.g. an entry parameter, or an
// instruction's original result name) is reattached as the result of a
// freshly inserted instruction, so that every other use of v automatically
// observes the new definition without being individually rewritten.
func (f *Function) redefineAsResult(v Value, inst *Instruction, idx int) {
	d := &f.values[v]
	d.defBlock = nil
	d.defInstr = inst
	d.defIndex = idx
}

// MakeSpillSlot implements make_spill_slot(type) from §6: allocates a fresh,
// immutable stack slot. Stack slots are append-only -- once created they are
// never recycled (§5).
func (f *Function) MakeSpillSlot(t Type) SlotID {
	id := SlotID(len(f.slots))
	f.slots = append(f.slots, SlotData{Type: t})
	return id
}

// newInstr allocates a fresh Instruction from the pool.
func (f *Function) newInstr(op Opcode) *Instruction {
	inst := f.instrPool.Allocate()
	inst.reset()
	inst.opcode = op
	return inst
}

// AppendEBBParam implements append_ebb_param(ebb, type) from §6.
func (f *Function) AppendEBBParam(b *Block, t Type) Value { return b.appendParam(f, t) }

// ReplaceEBBParam implements replace_ebb_param(old, type) from §6. `old`
// must be a parameter of some block; the parameter slot is replaced in
// place with a freshly named value of type t and the new Value is returned.
func (f *Function) ReplaceEBBParam(old Value, t Type) Value {
	d := &f.values[old]
	if !d.isParam() {
		panic("BUG: ReplaceEBBParam: value is not a block parameter")
	}
	return d.defBlock.replaceParam(f, d.defIndex, t)
}

// ReplaceResult implements replace_result(old, type) from §6: renames the
// i-th result of old's defining instruction in place, the way the minimal
// allocator's output-spill step (§4.1.6 step 6) renames the original result
// to a fresh register-resident name before spilling it back under the
// original name.
func (f *Function) ReplaceResult(old Value, t Type) Value {
	d := &f.values[old]
	if d.isParam() {
		panic("BUG: ReplaceResult: value is a block parameter, not an instruction result")
	}
	inst := d.defInstr
	idx := d.defIndex
	nv := f.allocateValue(t, inst.block, inst, idx)
	inst.results[idx] = nv
	return nv
}

// AppendInstArg implements append_inst_arg(inst, value) from §6.
func (f *Function) AppendInstArg(inst *Instruction, v Value) {
	inst.args = append(inst.args, v)
}
