package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies the operation an Instruction performs.
type Opcode uint16

const (
	OpInvalid Opcode = iota

	// Plain arithmetic/compare, lowered toward machine code.
	OpIconst
	OpIadd
	OpIsub
	OpImul
	OpIcmp  // v = icmp cond, lhs, rhs -- result is a flags value.
	OpLoad  // v = load addr
	OpStore // store addr, val

	// Pre-existing in the source IR; the minimal allocator only aliases
	// locations for it (§4.1.6 Copy).
	OpCopy

	// Synthesized by the two passes themselves (§3 Instruction).
	OpFill  // t = fill v -- reads stack, defines a register-resident value.
	OpSpill // t = spill v -- reads a register-resident value, defines a stack-resident value.

	// Control transfer.
	OpJump             // jump target(args)
	OpBrz              // brz cond, target(args) -- side exit if cond == 0.
	OpBrnz             // brnz cond, target(args) -- side exit if cond != 0.
	OpBrIcmp           // br_icmp cond, lhs, rhs, target(args) -- integer compare-and-branch, side exit.
	OpBrTable          // indirect jump table on index; no EBB-parameter target.
	OpReturn           // return args
	OpFallthroughReturn
	OpTrap

	OpCall // call F, args -- rejected by the minimal allocator (§4.1.1).

	// Opcodes the allocator must never see; their presence is a bug in an
	// earlier lowering stage (§4.1.1, §7).
	OpFallthrough
	OpRegmove
	OpRegfill
	OpRegspill
	OpCopySpecial
)

func (op Opcode) String() string {
	switch op {
	case OpInvalid:
		return "invalid"
	case OpIconst:
		return "iconst"
	case OpIadd:
		return "iadd"
	case OpIsub:
		return "isub"
	case OpImul:
		return "imul"
	case OpIcmp:
		return "icmp"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpCopy:
		return "copy"
	case OpFill:
		return "fill"
	case OpSpill:
		return "spill"
	case OpJump:
		return "jump"
	case OpBrz:
		return "brz"
	case OpBrnz:
		return "brnz"
	case OpBrIcmp:
		return "br_icmp"
	case OpBrTable:
		return "br_table"
	case OpReturn:
		return "return"
	case OpFallthroughReturn:
		return "fallthrough_return"
	case OpTrap:
		return "trap"
	case OpCall:
		return "call"
	case OpFallthrough:
		return "fallthrough"
	case OpRegmove:
		return "regmove"
	case OpRegfill:
		return "regfill"
	case OpRegspill:
		return "regspill"
	case OpCopySpecial:
		return "copy_special"
	default:
		panic(int(op))
	}
}

// IsBranch reports whether op ends a BB with a control transfer. Only the
// jump/brz/brnz/br_icmp/br_table subset is classified by AnalyzeBranch,
// which panics on return, fallthrough_return and trap.
func (op Opcode) IsBranch() bool {
	switch op {
	case OpJump, OpBrz, OpBrnz, OpBrIcmp, OpBrTable, OpReturn, OpFallthroughReturn, OpTrap:
		return true
	default:
		return false
	}
}

// CondCode is the comparison predicate carried by icmp/br_icmp.
type CondCode uint8

const (
	CondInvalid CondCode = iota
	CondEq
	CondNe
	CondLt
	CondLe
	CondGt
	CondGe
)

// Instruction is a single IR instruction: an opcode, an argument vector, and
// a result vector (§3). Branch instructions additionally carry their target
// block and the outgoing arguments bound to the target's parameters; these
// are kept separate from Args (the branch's own compared/tested operands)
// because §4.1.5 rewrites them independently.
type Instruction struct {
	id      InstID
	opcode  Opcode
	args    []Value
	results []Value
	typ     Type // result type for single-result plain instructions.
	cond    CondCode

	target     *Block   // jump/brz/brnz/br_icmp target; nil otherwise.
	targets    []*Block // br_table targets.
	brArgs     []Value  // outgoing arguments bound to target's parameters.
	callSig    *Signature

	ghost bool // true if this instruction has no encoding and allocation must skip it.

	block      *Block
	prev, next *Instruction
}

// InstID is a dense, pool-assigned identifier for an Instruction.
type InstID uint32

// Next and Prev expose the intra-block instruction list so a pass can walk
// it manually while splicing instructions around the node it is visiting
// (the common case: fills before, spills after).
func (i *Instruction) Next() *Instruction { return i.next }
func (i *Instruction) Prev() *Instruction { return i.prev }

func (i *Instruction) ID() InstID      { return i.id }
func (i *Instruction) Opcode() Opcode  { return i.opcode }
func (i *Instruction) Block() *Block   { return i.block }
func (i *Instruction) Ghost() bool     { return i.ghost }
func (i *Instruction) Args() []Value   { return i.args }
func (i *Instruction) Results() []Value { return i.results }
func (i *Instruction) Target() *Block  { return i.target }
func (i *Instruction) Targets() []*Block { return i.targets }
func (i *Instruction) BrArgs() []Value { return i.brArgs }
func (i *Instruction) Cond() CondCode  { return i.cond }

// CallSignature returns the call signature if this is a call instruction,
// mirroring the collaborator op call_signature(inst) from §6.
func (i *Instruction) CallSignature() *Signature {
	if i.opcode != OpCall {
		return nil
	}
	return i.callSig
}

// SetArg replaces the k-th element of Args in place. This is the
// replace-in-place primitive both passes use to rewrite
// operands without disturbing the instruction's identity.
func (i *Instruction) SetArg(k int, v Value) { i.args[k] = v }

// SetBrArg replaces the k-th outgoing branch argument.
func (i *Instruction) SetBrArg(k int, v Value) { i.brArgs[k] = v }

// AppendBrArg appends a new outgoing branch argument, used when splitting
// adds a phi parameter and every predecessor's terminator must supply one
// more argument (§4.2.5).
func (i *Instruction) AppendBrArg(v Value) { i.brArgs = append(i.brArgs, v) }

// reset clears an instruction so the pool slot can be reused.
func (i *Instruction) reset() {
	id := i.id
	*i = Instruction{id: id}
}

// String implements fmt.Stringer for debugging traces.
func (i *Instruction) String() string {
	var b strings.Builder
	if len(i.results) > 0 {
		parts := make([]string, len(i.results))
		for idx, r := range i.results {
			parts[idx] = r.String()
		}
		fmt.Fprintf(&b, "%s = ", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "%s", i.opcode)
	for _, a := range i.args {
		fmt.Fprintf(&b, " %s", a)
	}
	if i.target != nil {
		fmt.Fprintf(&b, " %s(", i.target.Name())
		for idx, a := range i.brArgs {
			if idx > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s", a)
		}
		b.WriteString(")")
	}
	return b.String()
}

// BranchShape classifies a branch the way §4.1.5's table does.
type BranchShape struct {
	Target      *Block // nil for table jumps.
	SideExit    bool   // a conditional that is not the block's only successor.
	HasArgument bool   // the branch carries EBB-parameter outgoing arguments.
}

// AnalyzeBranch implements the collaborator op analyze_branch(inst) from §6.
func AnalyzeBranch(inst *Instruction) BranchShape {
	switch inst.opcode {
	case OpBrTable:
		return BranchShape{Target: nil, SideExit: false, HasArgument: true}
	case OpJump:
		return BranchShape{Target: inst.target, SideExit: false, HasArgument: len(inst.brArgs) > 0}
	case OpBrz, OpBrnz, OpBrIcmp:
		return BranchShape{Target: inst.target, SideExit: true, HasArgument: len(inst.brArgs) > 0}
	default:
		panic(fmt.Sprintf("BUG: not a branch: %s", inst.opcode))
	}
}

// Signature describes a function's ABI: parameter/return locations. Its
// ArgumentLoc values are produced by the (external) ABI layer and consumed
// read-only by the allocator's entry-block preparation (§4.1.2) and return
// rewriting (§4.1.4).
type Signature struct {
	Params  []ArgumentLoc
	Returns []ArgumentLoc
}

// ArgumentLoc is the ABI-assigned home of a parameter or return value (§3).
type ArgumentLoc struct {
	Kind ArgumentLocKind
	Reg  RealReg // valid when Kind == ArgLocReg
	Off  int32   // valid when Kind == ArgLocStack
	Type Type
}

type ArgumentLocKind uint8

const (
	ArgLocUnassigned ArgumentLocKind = iota
	ArgLocReg
	ArgLocStack
)
