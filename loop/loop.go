// Package loop models the bounded hardware-loop stack. Each frame
// tracks the loop body's start and end addresses and the remaining
// iteration count; when execution reaches the body's end, the stack
// either requests a jump back to the start or pops the finished frame.
// Pushes, pops and count updates are staged and only take effect at
// commit, mirroring the storage discipline of the register files.
package loop

import "github.com/sarchlab/bnsim/trace"

// StackDepth is the maximum number of nested hardware loops.
const StackDepth = 8

// Frame is one hardware-loop stack entry.
type Frame struct {
	// StartPC is the address of the first instruction of the body.
	StartPC uint32

	// EndPC is the address of the last instruction of the body.
	EndPC uint32

	// Iterations is the remaining iteration count, including the one
	// currently executing.
	Iterations uint32
}

// Stack is the staged hardware-loop stack.
type Stack struct {
	frames []Frame

	pushStaged  bool
	pushFrame   Frame
	popStaged   bool
	countStaged bool
	countValue  uint32

	err bool
}

// NewStack creates an empty loop stack.
func NewStack() *Stack {
	return &Stack{}
}

// Depth returns the committed nesting depth.
func (s *Stack) Depth() int {
	return len(s.frames)
}

// InLoop reports whether a loop body is executing, counting a push
// staged this cycle.
func (s *Stack) InLoop() bool {
	return len(s.frames) > 0 || s.pushStaged
}

// StartLoop stages a new frame for a body of bodySize instructions
// starting at startPC. A zero iteration count or a full stack raises
// the loop fault flag instead of pushing.
func (s *Stack) StartLoop(startPC uint32, iterations, bodySize uint32) {
	if iterations == 0 || bodySize == 0 {
		s.err = true
		return
	}
	if len(s.frames) >= StackDepth {
		s.err = true
		return
	}
	s.pushStaged = true
	s.pushFrame = Frame{
		StartPC:    startPC,
		EndPC:      startPC + 4*(bodySize-1),
		Iterations: iterations,
	}
}

// CheckInsn validates the instruction at pc against the top frame
// before it executes. An instruction that affects control flow is
// illegal as the last instruction of a loop body.
func (s *Stack) CheckInsn(pc uint32, affectsControl bool) {
	if len(s.frames) == 0 {
		return
	}
	top := s.frames[len(s.frames)-1]
	if pc == top.EndPC && affectsControl {
		s.err = true
	}
}

// Step advances the loop state for the instruction at pc. If pc is the
// end of the top frame's body, the iteration count is decremented
// (after applying any warp override for this pc) and either a jump
// back to the body start is returned or the finished frame's pop is
// staged.
func (s *Stack) Step(pc uint32, warps map[uint32]uint32) (backPC uint32, jump bool) {
	if len(s.frames) == 0 {
		return 0, false
	}
	top := s.frames[len(s.frames)-1]
	if pc != top.EndPC {
		return 0, false
	}

	count := top.Iterations
	if w, ok := warps[pc]; ok {
		count = w
	}
	if count > 0 {
		count--
	}

	if count == 0 {
		s.popStaged = true
		return 0, false
	}
	s.countStaged = true
	s.countValue = count
	return top.StartPC, true
}

// Err reports whether a loop fault was raised this cycle. The flag is
// cleared at commit or abort.
func (s *Stack) Err() bool {
	return s.err
}

// Changes returns this cycle's pending commits.
func (s *Stack) Changes() []trace.Entry {
	var c []trace.Entry
	if s.countStaged {
		c = append(c, trace.LoopIter{Remaining: s.countValue})
	}
	if s.popStaged {
		c = append(c, trace.LoopPop{})
	}
	if s.pushStaged {
		f := s.pushFrame
		c = append(c, trace.LoopPush{
			StartPC:    f.StartPC,
			EndPC:      f.EndPC,
			Iterations: f.Iterations,
		})
	}
	return c
}

// Commit applies the staged count update, pop and push, in that order.
func (s *Stack) Commit() {
	if s.countStaged {
		s.frames[len(s.frames)-1].Iterations = s.countValue
		s.countStaged = false
	}
	if s.popStaged {
		s.frames = s.frames[:len(s.frames)-1]
		s.popStaged = false
	}
	if s.pushStaged {
		s.frames = append(s.frames, s.pushFrame)
		s.pushStaged = false
	}
	s.err = false
}

// Abort discards all staged operations.
func (s *Stack) Abort() {
	s.countStaged = false
	s.popStaged = false
	s.pushStaged = false
	s.err = false
}
