package ir

// TopoOrder implements the external "topological block-ordering helper"
// from §1/§6: a linearization of the EBBs such that every block appears
// after all of its non-looping predecessors. Reverse postorder already has
// this property for reducible CFGs, so it is reused directly rather than
// computed a second way.
func TopoOrder(cfg *CFG) []*Block { return cfg.ReversePostOrder() }
