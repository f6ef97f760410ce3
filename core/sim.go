package core

import (
	"github.com/sarchlab/bnsim/extregs"
	"github.com/sarchlab/bnsim/trace"
)

// Executor runs one instruction per cycle while the machine is in
// Exec: fetch at the current PC, bracket with PreInsn and PostInsn,
// and stage the architectural effects. It returns true if the
// instruction stalled and must be retried next cycle with the PC held.
//
// The control model runs without one: a nil executor makes Exec an
// idle busy state that only leaves via a requested or injected halt,
// which is all the control-plane tests need.
type Executor interface {
	Execute(s *State) (stalled bool)
}

// MemWipeKind selects the target of an explicit memory-wipe command.
type MemWipeKind uint8

// The two wipeable memories.
const (
	MemWipeDmem MemWipeKind = iota
	MemWipeImem
)

// Stats accumulates per-run simulation counters.
type Stats struct {
	Cycles int
}

// Sim drives one accelerator instance cycle by cycle, dispatching on
// the FSM state. It owns the non-architectural countdown of the
// explicit memory wipe; everything architectural lives in State.
type Sim struct {
	State *State
	Exec  Executor

	memWipeKind       MemWipeKind
	memWipeCyclesLeft int

	stats Stats
}

// NewSim creates a simulator around a fresh power-on State.
func NewSim(exec Executor, opts ...StateOption) *Sim {
	return &Sim{
		State:             NewState(opts...),
		Exec:              exec,
		memWipeCyclesLeft: -1,
	}
}

// Stats returns the counters accumulated so far.
func (m *Sim) Stats() Stats {
	return m.stats
}

// StepCycle advances the machine by one full cycle and returns the
// changes that committed, in resource order. The sequence within the
// cycle is fixed: advance timers, run the state-specific step (which
// may run the stop protocol), collect the staged changes, commit.
func (m *Sim) StepCycle() []trace.Entry {
	s := m.State

	s.Step(s.FsmState() == StateExec)

	stalled := false
	switch s.FsmState() {
	case StatePreWipe:
		m.stepPreWipe()
	case StateWiping:
		m.stepWiping()
	case StateIdle:
		m.stepIdle()
	case StatePreExec:
		m.stepPreExec()
	case StateExec:
		stalled = m.stepExec()
	case StateMemSecWipe:
		m.stepMemSecWipe()
	case StateLocked:
		// Terminal; only a reset leaves Locked.
	}

	changes := s.Changes()
	s.Commit(stalled)

	m.stats.Cycles++
	return changes
}

// stepPreWipe waits for the erasure entropy. The one-time startup wipe
// is kicked off from here; an escalation that arrives before the
// entropy source was ever seen running shortens the wipe to a single
// unseeded round, since waiting could block forever.
func (m *Sim) stepPreWipe() {
	s := m.State

	if s.initSecWipe == InitWipeNotDone {
		s.ExtRegs.Write(extregs.Status, StatusBusySecWipeInt)
		s.StartInitSecWipe()
	}

	// The escalation input is observed when this state is entered, not
	// polled while waiting for the seed. An escalation before the
	// entropy source was ever seen running shortens the wipe to one
	// unseeded round, since the seed may never come.
	if s.CyclesInThisState == 0 && s.RmaReq == LcOn {
		s.lockAfterWipe = true
		if !s.ednSeenRunning {
			s.WipeRoundsToDo = 1
			s.SetFsmState(StateWiping)
			return
		}
	}

	if s.UrndSeedArrived() {
		s.SetFsmState(StateWiping)
	}
}

// stepWiping counts one round of erasure down. The erasure pattern is
// staged on the round's last-but-one cycle so it commits while the
// machine is still Wiping; the round boundary then either loops back
// through PreWipe for a fresh seed or finishes the wipe.
func (m *Sim) stepWiping() {
	s := m.State

	s.WipeCyclesLeft--

	if s.WipeCyclesLeft == 1 {
		s.Wipe()
	}

	if s.WipeCyclesLeft > 0 {
		return
	}
	s.WipeCyclesLeft = -1

	// The escalation input is observed at the round boundary, so an
	// escalation chosen while the wipe runs still upgrades it to end
	// in Locked. A pulse that ends before the boundary is not seen.
	if s.RmaReq == LcOn {
		s.lockAfterWipe = true
	}

	s.WipeRoundsDone++
	if s.WipeRoundsDone < s.WipeRoundsToDo {
		s.SetFsmState(StatePreWipe)
		s.RequestUrndSeed()
		return
	}

	if s.InitSecWipeIsRunning() {
		s.CompleteInitSecWipe()
	}

	lock := s.lockAfterWipe
	s.lockAfterWipe = false
	s.WipeRoundsDone = 0
	s.WipeRoundsToDo = NominalWipeRounds

	if lock {
		s.SetFsmState(StateLocked)
		s.publishLocked()
	} else {
		s.SetFsmState(StateIdle)
		s.ExtRegs.Write(extregs.Status, StatusIdle)
	}
}

// stepIdle handles the requests that are only honored between runs: a
// delayed lock, a stop deferred past the startup wipe, and the
// lifecycle escalation. Escalation with nothing yet worth wiping locks
// directly; otherwise it goes through a full wipe first.
func (m *Sim) stepIdle() {
	s := m.State

	if s.TakeDelayedLock() {
		s.SetFsmState(StateLocked)
		s.publishLocked()
		return
	}

	if s.StopIfPendingHalt() {
		return
	}

	if s.RmaReq == LcOn {
		if s.hasStateToWipe {
			s.lockAfterWipe = true
			s.WipeRoundsDone = 0
			s.SetFsmState(StatePreWipe)
			s.RequestUrndSeed()
			s.ExtRegs.Write(extregs.Status, StatusBusySecWipeInt)
		} else {
			s.SetFsmState(StateLocked)
			s.publishLocked()
		}
	}
}

// stepPreExec waits for the run's initial entropy seed.
func (m *Sim) stepPreExec() {
	s := m.State

	if s.StopIfPendingHalt() {
		return
	}

	if s.UrndSeedArrived() {
		s.SetFsmState(StateExec)
	}
}

// stepExec runs one instruction, then the stop check. The check comes
// after execution so a halting instruction is seen executing and then
// cancelled, never half-applied.
func (m *Sim) stepExec() (stalled bool) {
	s := m.State

	if m.Exec != nil {
		stalled = m.Exec.Execute(s)
	}

	// An escalation cancels the run; the lock decision happens in the
	// stop protocol, which sees RmaReq directly.
	if s.RmaReq == LcOn {
		s.PendingHalt = true
	}

	if s.StopIfPendingHalt() {
		return false
	}
	return stalled
}

// stepMemSecWipe counts the explicit memory wipe down and performs the
// erasure on its final cycle.
func (m *Sim) stepMemSecWipe() {
	s := m.State

	m.memWipeCyclesLeft--
	if m.memWipeCyclesLeft > 0 {
		return
	}
	m.memWipeCyclesLeft = -1

	switch m.memWipeKind {
	case MemWipeDmem:
		s.Dmem.EraseNow()
	case MemWipeImem:
		s.InvalidateImem()
	}

	s.ExtRegs.SetBits(extregs.IntrState, 1<<0)
	s.ExtRegs.Write(extregs.Status, StatusIdle)
	s.SetFsmState(StateIdle)
}

// StartRun issues the run command. It is only accepted while Idle;
// anywhere else it is dropped, reporting false.
func (m *Sim) StartRun() bool {
	s := m.State
	if s.FsmState() != StateIdle || s.PendingHalt {
		return false
	}
	s.Start()
	return true
}

// StartMemWipe issues the explicit wipe command for one memory. It is
// only accepted while Idle.
func (m *Sim) StartMemWipe(kind MemWipeKind) bool {
	s := m.State
	if s.FsmState() != StateIdle || s.PendingHalt {
		return false
	}

	m.memWipeKind = kind
	m.memWipeCyclesLeft = WipeCycles

	status := uint32(StatusBusySecWipeDmem)
	if kind == MemWipeImem {
		status = StatusBusySecWipeImem
	}
	s.ExtRegs.Write(extregs.Status, status)
	s.SetFsmState(StateMemSecWipe)
	return true
}

// RunCycles steps the machine n cycles.
func (m *Sim) RunCycles(n int) {
	for i := 0; i < n; i++ {
		m.StepCycle()
	}
}

// RunUntilQuiet steps the machine until it settles in Idle or Locked,
// up to maxCycles. It reports whether the machine settled.
func (m *Sim) RunUntilQuiet(maxCycles int) bool {
	for i := 0; i < maxCycles; i++ {
		m.StepCycle()
		switch m.State.FsmState() {
		case StateIdle:
			if !m.State.PendingHalt {
				return true
			}
		case StateLocked:
			return true
		}
	}
	return false
}
