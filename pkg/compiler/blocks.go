package compiler

import "github.com/golang/glog"

// Blocks records, for every structural operation, the partner it jumps to.
// It is computed once by ResolveBlocks so that code generation only looks
// partners up.
//
//	DO         -> opener (IF, ELIF or WHILE) and false-branch target
//	             (next ELIF/ELSE/ENDIF of its chain, or the WHILE's DONE)
//	ELIF, ELSE -> ENDIF of the chain
//	BREAK      -> DONE of the innermost enclosing WHILE
//	DONE       -> its WHILE
//	WHILE      -> its DONE
type Blocks struct {
	opener []int
	target []int
}

// Opener returns the IF, ELIF or WHILE that the DO at index tests for.
func (b *Blocks) Opener(index int) (int, bool) {
	return lookup(b.opener, index)
}

// Target returns the jump partner of the structural operation at index.
func (b *Blocks) Target(index int) (int, bool) {
	return lookup(b.target, index)
}

func lookup(table []int, index int) (int, bool) {
	if index < 0 || index >= len(table) || table[index] < 0 {
		return 0, false
	}
	return table[index], true
}

// openBlock is an IF chain or WHILE loop that has not been closed yet.
type openBlock struct {
	start int // IF or WHILE
	kind  OpKind
	// awaiting is the IF/ELIF/WHILE whose DO has not been seen, or -1.
	awaiting int
	// do is the DO of the current branch, or -1 once the branch is closed
	// by an ELSE.
	do      int
	sawElse bool
	exits   []int // ELIF/ELSE (for IF) or BREAK (for WHILE) needing the end
}

type resolver struct {
	ops    []Op
	blocks *Blocks
	stack  []*openBlock
	// lastStructural is the most recent structural operation, or -1.
	lastStructural int
}

// ResolveBlocks matches every structural operation with its partners and
// rejects malformed nesting.
func ResolveBlocks(prog *Program) (*Blocks, error) {
	n := len(prog.Ops)
	r := &resolver{
		ops:            prog.Ops,
		blocks:         &Blocks{opener: filled(n), target: filled(n)},
		lastStructural: -1,
	}
	for _, op := range prog.Ops {
		if !op.Kind.IsStructural() {
			continue
		}
		if err := r.visit(op); err != nil {
			return nil, err
		}
		r.lastStructural = op.Index
	}
	if len(r.stack) > 0 {
		top := r.stack[len(r.stack)-1]
		open := r.ops[top.start]
		return nil, errorAt(UnbalancedBlock, open.Token.Loc, "%s is never closed", open.Kind)
	}
	if glog.V(3) {
		glog.Infof("blocks: resolved %d operations", n)
	}
	return r.blocks, nil
}

func filled(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = -1
	}
	return s
}

func (r *resolver) top() *openBlock {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

func (r *resolver) pop() {
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *resolver) visit(op Op) error {
	loc := op.Token.Loc
	switch op.Kind {
	case OpIf, OpWhile:
		r.stack = append(r.stack, &openBlock{start: op.Index, kind: op.Kind, awaiting: op.Index, do: -1})
		return nil

	case OpDo:
		prev := r.lastStructural
		if prev < 0 {
			return errorAt(AmbiguousDo, loc, "DO without a preceding IF, ELIF or WHILE")
		}
		switch r.ops[prev].Kind {
		case OpIf, OpElif, OpWhile:
		default:
			return errorAt(AmbiguousDo, loc, "DO follows %s at %s instead of IF, ELIF or WHILE",
				r.ops[prev].Kind, r.ops[prev].Token.Loc)
		}
		top := r.top()
		if top == nil || top.awaiting != prev {
			return errorAt(AmbiguousDo, loc, "%s at %s already has a DO", r.ops[prev].Kind, r.ops[prev].Token.Loc)
		}
		r.blocks.opener[op.Index] = prev
		top.do = op.Index
		top.awaiting = -1
		return nil

	case OpElif, OpElse:
		top := r.top()
		if top == nil || top.kind != OpIf {
			return errorAt(UnbalancedBlock, loc, "%s without IF", op.Kind)
		}
		if top.sawElse {
			return errorAt(UnbalancedBlock, loc, "%s after ELSE", op.Kind)
		}
		if err := r.requireDo(top, op); err != nil {
			return err
		}
		r.blocks.target[top.do] = op.Index
		top.exits = append(top.exits, op.Index)
		top.do = -1
		if op.Kind == OpElif {
			top.awaiting = op.Index
		} else {
			top.sawElse = true
		}
		return nil

	case OpEndif:
		top := r.top()
		if top == nil || top.kind != OpIf {
			return errorAt(UnbalancedBlock, loc, "ENDIF without IF")
		}
		if err := r.requireDo(top, op); err != nil {
			return err
		}
		if top.do >= 0 {
			r.blocks.target[top.do] = op.Index
		}
		for _, exit := range top.exits {
			r.blocks.target[exit] = op.Index
		}
		r.pop()
		return nil

	case OpDone:
		top := r.top()
		if top == nil || top.kind != OpWhile {
			return errorAt(UnbalancedBlock, loc, "DONE without WHILE")
		}
		if err := r.requireDo(top, op); err != nil {
			return err
		}
		r.blocks.target[top.do] = op.Index
		r.blocks.target[op.Index] = top.start
		r.blocks.target[top.start] = op.Index
		for _, brk := range top.exits {
			r.blocks.target[brk] = op.Index
		}
		r.pop()
		return nil

	case OpBreak:
		for i := len(r.stack) - 1; i >= 0; i-- {
			if r.stack[i].kind == OpWhile {
				r.stack[i].exits = append(r.stack[i].exits, op.Index)
				return nil
			}
		}
		return errorAt(AmbiguousBreak, loc, "BREAK outside of WHILE")

	case OpEnd:
		return errorAt(UnbalancedBlock, loc, "END outside of a MACRO definition")
	}
	return errorAt(NotImplemented, loc, "block resolution for %s is not implemented", op.Kind)
}

// requireDo fails if the current branch of top never reached its DO.
func (r *resolver) requireDo(top *openBlock, closer Op) error {
	if top.awaiting < 0 {
		return nil
	}
	open := r.ops[top.awaiting]
	return errorAt(UnbalancedBlock, closer.Token.Loc, "%s at %s has no DO before %s",
		open.Kind, open.Token.Loc, closer.Kind)
}
