package ir

// Cursor is a mutable position within a Block's instruction list. Both
// backend passes thread a single Cursor through their rewriting and never
// touch Instruction.prev/next directly outside of Block's own splice
// helpers (§9 "Cursor pattern": an explicit object borrowing the function,
// never hidden global state).
type Cursor struct {
	fn  *Function
	blk *Block
	cur *Instruction
}

// NewCursor returns a cursor positioned at the first instruction of blk.
func NewCursor(fn *Function, blk *Block) *Cursor {
	return &Cursor{fn: fn, blk: blk, cur: blk.root}
}

// Block returns the block the cursor is currently positioned in.
func (c *Cursor) Block() *Block { return c.blk }

// Instr returns the instruction the cursor currently points at, or nil if
// the cursor has walked off the end of the block.
func (c *Cursor) Instr() *Instruction { return c.cur }

// NewCursorAt returns a cursor positioned exactly at inst, without walking
// the block from its root. Both passes use this to resume rewriting at an
// instruction they already have a pointer to (e.g. the next original
// instruction captured before splicing fills/spills around the current one).
func NewCursorAt(fn *Function, inst *Instruction) *Cursor {
	return &Cursor{fn: fn, blk: inst.block, cur: inst}
}

// GotoBlock repositions the cursor at the start of blk.
func (c *Cursor) GotoBlock(blk *Block) {
	c.blk = blk
	c.cur = blk.root
}

// GotoInstr repositions the cursor onto an arbitrary instruction, which must
// belong to the block the cursor currently tracks (or a newly adopted one).
func (c *Cursor) GotoInstr(inst *Instruction) {
	c.blk = inst.block
	c.cur = inst
}

// Next advances the cursor to the next instruction in layout order and
// returns it (nil at the end of the block).
func (c *Cursor) Next() *Instruction {
	if c.cur == nil {
		return nil
	}
	c.cur = c.cur.next
	return c.cur
}

// InsertBefore splices inst immediately before the cursor's current
// instruction, without moving the cursor.
func (c *Cursor) InsertBefore(inst *Instruction) {
	c.blk.insertInstrBefore(c.cur, inst)
}

// InsertAfter splices inst immediately after the cursor's current
// instruction and moves the cursor onto it, so that a sequence of
// InsertAfter calls chains the inserted instructions in call order. This is
// exactly the "position the cursor immediately after the instruction ...
// set the cursor to the last emitted spill" behavior of §4.1.6 step 6.
func (c *Cursor) InsertAfter(inst *Instruction) {
	c.blk.insertInstrAfter(c.cur, inst)
	c.cur = inst
}

// InsertAtTail appends inst to the end of blk, used to build new, empty EBBs
// (e.g. the fresh critical-edge-splitting block in §4.1.5).
func InsertAtTail(blk *Block, inst *Instruction) {
	blk.insertInstrBefore(nil, inst)
}
