package ir

// DomTree is the immediate-dominator tree over EBBs, computed with the
// "Simple, Fast Dominance Algorithm" (Cooper, Harvey & Kennedy), the same
// algorithm and code shape as the teacher's calculateDominators/intersect in
// ssa/pass_cfg.go. Like CFG, it is an external collaborator the two passes
// consume and the allocator recomputes after inserting EBBs (§4.1.7).
type DomTree struct {
	fn   *Function
	idom []*Block // indexed by BlockID; nil for unreachable blocks.
}

// BuildDomTree computes the dominator tree from an already-built CFG.
func BuildDomTree(fn *Function, cfg *CFG) *DomTree {
	rpo := cfg.rpo
	idom := make([]*Block, len(fn.blocks))
	if len(rpo) == 0 {
		return &DomTree{fn: fn, idom: idom}
	}
	entry := rpo[0]
	idom[entry.id] = entry

	rest := rpo[1:]
	changed := true
	for changed {
		changed = false
		for _, blk := range rest {
			var u *Block
			for _, pred := range blk.preds {
				p := pred.Block
				if idom[p.id] == nil {
					continue // not yet reachable in this fixed-point iteration.
				}
				if u == nil {
					u = p
				} else {
					u = intersectDom(idom, u, p)
				}
			}
			if idom[blk.id] != u {
				idom[blk.id] = u
				changed = true
			}
		}
	}
	return &DomTree{fn: fn, idom: idom}
}

// intersectDom returns the common dominator of b1 and b2, walking up via
// rpoIndex comparisons exactly as the teacher's intersect() does.
func intersectDom(idom []*Block, b1, b2 *Block) *Block {
	f1, f2 := b1, b2
	for f1 != f2 {
		for f1.rpoIndex > f2.rpoIndex {
			f1 = idom[f1.id]
		}
		for f2.rpoIndex > f1.rpoIndex {
			f2 = idom[f2.id]
		}
	}
	return f1
}

// Idom implements idom(ebb) from §6. Returns nil for the entry block (it has
// no dominator) and for unreachable blocks.
func (d *DomTree) Idom(b *Block) *Block {
	if d.idom[b.id] == b {
		return nil // entry block dominates itself; it has no idom.
	}
	return d.idom[b.id]
}

// Dominates reports whether a dominates b (reflexive: a dominates itself).
func (d *DomTree) Dominates(a, b *Block) bool {
	if d.idom[b.id] == nil {
		return false
	}
	for cur := b; ; {
		if cur == a {
			return true
		}
		if d.idom[cur.id] == cur {
			return cur == a
		}
		cur = d.idom[cur.id]
	}
}
