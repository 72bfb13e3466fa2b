package ir

// CFG is the control-flow graph over EBBs (§1: "consumed, recomputed after
// block insertion"). It is a thin, recomputable derivative of the function's
// branch instructions -- BuildCFG is the only producer, and the minimal
// allocator re-invokes it whenever it has inserted new EBBs (§4.1.7).
type CFG struct {
	fn  *Function
	rpo []*Block
}

// BuildCFG (re)computes predecessor/successor edges between EBBs by
// scanning every branch instruction in every block -- including side-exit
// branches in the middle of an EBB, not just its final terminator, since an
// EBB may have several conditional side exits before its actual end (§1,
// §3's EBB definition). It then numbers blocks in reverse postorder the way
// the teacher's passCalculateImmediateDominators does, as a prerequisite for
// dominator-tree computation.
func BuildCFG(fn *Function) *CFG {
	for _, b := range fn.blocks {
		b.preds = b.preds[:0]
		b.succs = b.succs[:0]
	}
	for _, b := range fn.layout {
		b.InstrIter(func(inst *Instruction) {
			switch inst.opcode {
			case OpJump, OpBrz, OpBrnz, OpBrIcmp:
				addCFGEdge(b, inst.target, inst)
			case OpBrTable:
				for _, t := range inst.targets {
					addCFGEdge(b, t, inst)
				}
			}
		})
	}
	cfg := &CFG{fn: fn}
	cfg.computeRPO()
	return cfg
}

func addCFGEdge(from, to *Block, branch *Instruction) {
	from.succs = append(from.succs, to)
	to.preds = append(to.preds, PredEdge{Block: from, Branch: branch})
}

// PredIter implements pred_iter(ebb) from §6.
func (c *CFG) PredIter(b *Block) []PredEdge { return b.preds }

// ReversePostOrder returns the blocks in reverse postorder from the entry.
func (c *CFG) ReversePostOrder() []*Block { return c.rpo }

// computeRPO performs an iterative postorder DFS from the entry block
// (grounded on passCalculateImmediateDominators's exploreStack algorithm)
// and reverses it, assigning each reachable block its rpoIndex.
func (c *CFG) computeRPO() {
	const unseen, seen, done = 0, 1, 2
	state := make(map[*Block]int, len(c.fn.blocks))
	entry := c.fn.EntryBlock()

	var stack []*Block
	var post []*Block
	stack = append(stack, entry)
	state[entry] = seen
	for len(stack) > 0 {
		tail := len(stack) - 1
		blk := stack[tail]
		stack = stack[:tail]
		switch state[blk] {
		case unseen:
			panic("BUG: unsupported CFG: unreachable block pushed")
		case seen:
			stack = append(stack, blk)
			for _, succ := range blk.succs {
				if state[succ] == unseen {
					state[succ] = seen
					stack = append(stack, succ)
				}
			}
			state[blk] = done
		case done:
			post = append(post, blk)
		}
	}
	rpo := make([]*Block, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	for i, b := range rpo {
		b.rpoIndex = i
	}
	c.rpo = rpo
}
