package core

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/sarchlab/bnsim/dmem"
	"github.com/sarchlab/bnsim/edn"
	"github.com/sarchlab/bnsim/extregs"
	"github.com/sarchlab/bnsim/loop"
	"github.com/sarchlab/bnsim/regs"
	"github.com/sarchlab/bnsim/trace"
)

// DefaultImemSizeBytes is the instruction-memory size used when none
// is given.
const DefaultImemSizeBytes = 4096

// State owns all per-instance machine state: the staged resources, the
// FSM, the program counter and the error/halt bookkeeping. One State
// exists per accelerator instance; nothing here is shared.
type State struct {
	GPRs      *regs.GPRs
	WDRs      *regs.WDRs
	CSRs      *regs.CSRFile
	WSRs      *regs.WSRFile
	ExtRegs   *extregs.File
	Dmem      *dmem.Dmem
	LoopStack *loop.Stack

	pc             uint32
	pcNextOverride *uint32
	imemSize       uint32

	fsmState     FsmState
	nextFsmState FsmState

	initSecWipe InitSecWipeState

	// WipeRoundsToDo is normally 2 but shortens to 1 when a lifecycle
	// escalation arrives before the entropy source was ever observed
	// running. WipeRoundsDone must never exceed it.
	WipeRoundsToDo int
	WipeRoundsDone int

	// WipeCyclesLeft counts down one round of erasure while Wiping. It
	// is -1 outside a wipe to catch a forgotten arm.
	WipeCyclesLeft int

	lockAfterWipe bool

	errBits ErrBits

	// PendingHalt requests a stop at the end of the current cycle.
	PendingHalt bool

	urndClient      *edn.Client
	urndSeedPending bool

	// timeToImemInvalidation models the prefetch stage that still
	// holds a stale instruction when invalidation is requested: the
	// unreadable flag is raised only after two commits. -1 means no
	// invalidation pending.
	timeToImemInvalidation int

	// InvalidatedImem is set while instruction memory is unreadable.
	InvalidatedImem bool

	// InjectedErrBits holds externally injected error bits. They are
	// folded into the accumulator by Step rather than at injection
	// time, so the final instruction is seen executing and then
	// cancelled.
	InjectedErrBits ErrBits

	// LockImmediately forces the stop protocol to jump straight to
	// Locked, skipping the wipe. Used when an error is discovered too
	// late to wipe safely.
	LockImmediately bool

	// SoftwareErrsFatal locks the machine on any error, including the
	// recoverable class.
	SoftwareErrsFatal bool

	// CyclesInThisState counts committed cycles without an FSM
	// transition.
	CyclesInThisState int

	// RmaReq is the lifecycle escalation input. It is sampled only at
	// specific points (idle, wipe completion), not polled.
	RmaReq LcTx

	// hasStateToWipe is set once the machine leaves Idle for the first
	// time. An escalation before that point has nothing to erase and
	// can lock without wiping.
	hasStateToWipe bool

	// delayedLock forces a jump to Locked on the next Idle step.
	delayedLock bool

	// ednSeenRunning is set when the first entropy seed arrives. An
	// escalation before that point shortens the wipe to a single round
	// with no fresh randomness, since the entropy complex may not be
	// available at all.
	ednSeenRunning bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithImemSize sets the instruction-memory size in bytes.
func WithImemSize(sizeBytes uint32) StateOption {
	return func(s *State) { s.imemSize = sizeBytes }
}

// WithDmemSize sets the data-memory size in bytes.
func WithDmemSize(sizeBytes uint32) StateOption {
	return func(s *State) { s.Dmem = dmem.New(sizeBytes) }
}

// NewState creates the machine in its power-on condition: FSM in
// PreWipe, startup wipe not yet begun.
func NewState(opts ...StateOption) *State {
	s := &State{
		GPRs:                   regs.NewGPRs(),
		WDRs:                   regs.NewWDRs(),
		CSRs:                   regs.NewCSRFile(),
		WSRs:                   regs.NewWSRFile(),
		ExtRegs:                extregs.New(),
		Dmem:                   dmem.New(dmem.DefaultSizeBytes),
		LoopStack:              loop.NewStack(),
		imemSize:               DefaultImemSizeBytes,
		fsmState:               StatePreWipe,
		nextFsmState:           StatePreWipe,
		initSecWipe:            InitWipeNotDone,
		WipeRoundsToDo:         NominalWipeRounds,
		WipeCyclesLeft:         -1,
		urndClient:             edn.NewClient(),
		timeToImemInvalidation: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PC returns the committed program counter.
func (s *State) PC() uint32 {
	return s.pc
}

// ImemSize returns the instruction-memory size in bytes.
func (s *State) ImemSize() uint32 {
	return s.imemSize
}

// GetNextPC returns the PC the next commit will advance to: the staged
// override if a jump or branch set one, else the sequential successor.
func (s *State) GetNextPC() uint32 {
	if s.pcNextOverride != nil {
		return *s.pcNextOverride
	}
	return s.pc + 4
}

// SetNextPC overrides the next program counter, e.g. as the result of
// a jump. The address must be valid; jumps to invalid addresses are
// reported by the instruction layer before getting here.
func (s *State) SetNextPC(nextPC uint32) {
	if !s.IsPCValid(nextPC) {
		panic(fmt.Sprintf("core: SetNextPC with invalid address %#x", nextPC))
	}
	pc := nextPC
	s.pcNextOverride = &pc
}

// IsPCValid reports whether pc is word-aligned and inside instruction
// memory.
func (s *State) IsPCValid(pc uint32) bool {
	return pc%4 == 0 && pc < s.imemSize
}

// FsmState returns the current (committed) FSM state.
func (s *State) FsmState() FsmState {
	return s.fsmState
}

// SetFsmState sets the state the next commit will latch. Switching to
// Wiping is the start of a wipe round, so it arms the round countdown.
func (s *State) SetFsmState(next FsmState) {
	if next == StateWiping {
		s.WipeCyclesLeft = WipeCycles
	}
	s.nextFsmState = next
}

// ErrBitsAccum returns the error bits accumulated so far this run.
func (s *State) ErrBitsAccum() ErrBits {
	return s.errBits
}

// Executing reports whether the machine is in a busy phase (running,
// waiting for its first seed, or wiping after a run).
func (s *State) Executing() bool {
	switch s.fsmState {
	case StateIdle, StateLocked, StateMemSecWipe:
		return false
	default:
		return true
	}
}

// Wiping reports whether a wipe round is in progress.
func (s *State) Wiping() bool {
	return s.fsmState == StateWiping
}

// LockAfterWipe reports whether the current wipe will end in Locked.
func (s *State) LockAfterWipe() bool {
	return s.lockAfterWipe
}

// EdnSeenRunning reports whether an entropy seed has ever arrived.
func (s *State) EdnSeenRunning() bool {
	return s.ednSeenRunning
}

// --- Entropy integration ---------------------------------------------

// EdnUrndStep accepts one seed-channel entropy word.
func (s *State) EdnUrndStep(word uint32) {
	s.urndClient.TakeWord(word, false)
}

// EdnRndStep accepts one direct-channel entropy word.
func (s *State) EdnRndStep(word uint32, fipsErr bool) {
	s.ExtRegs.RndTakeWord(word, fipsErr)
}

// EdnFlush handles an entropy-source reset: both feeds discard any
// in-flight state. If the startup wipe is running, the machine
// re-requests its seed on its own.
func (s *State) EdnFlush() {
	s.ExtRegs.RndReset()
	s.urndClient.EdnReset()
	if s.InitSecWipeIsRunning() {
		s.RequestUrndSeed()
	}
}

// RndCompleted is called when the direct feed's crossing resolves. A
// poisoned value is dropped; the register file re-issues the request
// underneath, so a fresh value still arrives.
func (s *State) RndCompleted() {
	v, fipsErr, repErr := s.ExtRegs.RndCDCComplete()
	if v != nil {
		s.WSRs.SetRnd(v, fipsErr, repErr)
	}
}

// UrndCompleted is called when the seed feed's crossing resolves. The
// seed channel must never be poisoned; a missing value here is a
// caller contract violation, not an error path.
func (s *State) UrndCompleted() {
	v, retry, _, _ := s.urndClient.CDCComplete()
	if v == nil || retry {
		panic("core: URND completion with no value")
	}

	var words [4]uint64
	for i := range words {
		shifted := v.Clone()
		shifted.Rsh(shifted, uint(64*i))
		words[i] = shifted.Uint64()
	}

	s.ednSeenRunning = true
	s.urndSeedPending = false
	s.WSRs.URND.SetSeed(words)
}

// RequestUrndSeed issues a seed request on the entropy seed channel.
func (s *State) RequestUrndSeed() {
	s.urndClient.Request()
	s.urndSeedPending = true
}

// UrndSeedArrived reports whether the most recently requested seed has
// been delivered.
func (s *State) UrndSeedArrived() bool {
	return !s.urndSeedPending
}

// UrndCDCReady reports whether the seed channel has a value ready to
// collect with UrndCompleted.
func (s *State) UrndCDCReady() bool {
	return s.urndClient.CDCReady()
}

// --- Startup wipe ----------------------------------------------------

// StartInitSecWipe begins the one-time startup wipe, requesting the
// seed it needs.
func (s *State) StartInitSecWipe() {
	s.initSecWipe = InitWipeInProgress
	s.RequestUrndSeed()
}

// InitSecWipeIsRunning reports whether the startup wipe is in
// progress.
func (s *State) InitSecWipeIsRunning() bool {
	return s.initSecWipe == InitWipeInProgress
}

// InitSecWipeIsDone reports whether the startup wipe has finished.
func (s *State) InitSecWipeIsDone() bool {
	return s.initSecWipe == InitWipeDone
}

// CompleteInitSecWipe marks the startup wipe finished.
func (s *State) CompleteInitSecWipe() {
	s.initSecWipe = InitWipeDone
}

// --- Hardware loops --------------------------------------------------

// LoopStart stages a new hardware loop whose body starts at the next
// instruction.
func (s *State) LoopStart(iterations, bodySize uint32) {
	s.LoopStack.StartLoop(s.pc+4, iterations, bodySize)
}

// LoopStep advances the loop stack for the current instruction,
// staging a PC override if the body repeats.
func (s *State) LoopStep(loopWarps map[uint32]uint32) {
	if backPC, jump := s.LoopStack.Step(s.pc, loopWarps); jump {
		s.SetNextPC(backPC)
	}
}

// InLoop reports whether a hardware loop is executing.
func (s *State) InLoop() bool {
	return s.LoopStack.InLoop()
}

// --- Per-cycle sequencing --------------------------------------------

// Step runs the first half of a cycle: optionally fold in injected
// error bits, then advance both entropy feeds' timers.
func (s *State) Step(handleInjectedError bool) {
	if handleInjectedError {
		s.TakeInjectedErrBits()
	}
	s.ExtRegs.Step()
	s.urndClient.Step()
}

// Changes returns this cycle's pending commits, in the fixed resource
// order a lock-step checker expects. It is idempotent until the next
// Commit.
func (s *State) Changes() []trace.Entry {
	var c []trace.Entry
	c = append(c, s.GPRs.Changes()...)
	if s.pcNextOverride != nil {
		c = append(c, trace.PC{Value: s.GetNextPC()})
	}
	c = append(c, s.Dmem.Changes()...)
	c = append(c, s.LoopStack.Changes()...)
	c = append(c, s.ExtRegs.Changes()...)
	c = append(c, s.WSRs.Changes()...)
	c = append(c, s.CSRs.Flags.Changes()...)
	c = append(c, s.WDRs.Changes()...)
	return c
}

// Commit runs the second half of a cycle: advance the delayed IMEM
// invalidation, latch the next FSM state, and commit resources.
//
// External registers and the URND generator commit unconditionally;
// they must reflect status changes even in otherwise idle states. The
// architectural resources commit only when the previous state was Exec
// or Wiping — in every other state there is nothing staged, and
// skipping them mirrors the reference design's timing.
func (s *State) Commit(stalled bool) {
	if s.timeToImemInvalidation >= 0 {
		s.timeToImemInvalidation--
		if s.timeToImemInvalidation == 0 {
			s.InvalidatedImem = true
			s.timeToImemInvalidation = -1
		}
	}

	oldState := s.fsmState
	s.fsmState = s.nextFsmState

	if s.fsmState == oldState {
		s.CyclesInThisState++
	} else {
		s.CyclesInThisState = 0
	}

	s.ExtRegs.Commit()
	s.WSRs.URND.Commit()

	if oldState != StateExec && oldState != StateWiping {
		return
	}

	s.GPRs.Commit()
	s.Dmem.Commit()
	s.LoopStack.Commit()
	s.WSRs.Commit()
	s.CSRs.Flags.Commit()
	s.WDRs.Commit()

	if !stalled {
		s.pc = s.GetNextPC()
		s.pcNextOverride = nil
	}
}

// abort discards every staged change of the current cycle.
func (s *State) abort() {
	s.GPRs.Abort()
	s.pcNextOverride = nil
	s.Dmem.Abort()
	s.LoopStack.Abort()
	s.ExtRegs.Abort()
	s.WSRs.Abort()
	s.CSRs.Flags.Abort()
	s.WDRs.Abort()
}

// --- Lifecycle -------------------------------------------------------

// Start begins a run. This is a hard reset of control, not a timed
// transition: both the current and next FSM state become PreExec.
// Architectural state that must not leak across runs is reset; special
// registers that persist across runs are kept. Any in-flight direct
// entropy value is poisoned and a fresh seed request is issued.
func (s *State) Start() {
	s.ExtRegs.Write(extregs.Status, StatusBusyExecute)
	s.PendingHalt = false
	s.errBits = 0

	s.fsmState = StatePreExec
	s.nextFsmState = StatePreExec
	s.hasStateToWipe = true

	s.pc = 0
	s.pcNextOverride = nil

	s.CSRs = regs.NewCSRFile()
	s.WSRs.OnStart()
	s.LoopStack = loop.NewStack()
	s.GPRs.EmptyCallStack()
	s.ExtRegs.Write(extregs.InsnCnt, 0)

	s.ExtRegs.RndPoison()

	s.RequestUrndSeed()
}

// StopIfPendingHalt runs the stop protocol if a halt was requested,
// reporting whether it did.
func (s *State) StopIfPendingHalt() bool {
	if s.PendingHalt {
		s.Stop()
		return true
	}
	return false
}

// Stop halts the machine and decides between wipe and lock.
//
// If the current instruction faulted, all its staged changes are
// rolled back first: a faulting instruction must leave no partial side
// effect. The done flag and the error bits are published regardless.
// The lock decision is a pure function of the accumulated error bits,
// the software-errors-are-fatal policy and the lifecycle escalation
// input, evaluated exactly once here.
func (s *State) Stop() {
	insnFailed := s.errBits != 0 && s.fsmState == StateExec
	if insnFailed {
		s.abort()
	}

	// Bit 0 of INTR_STATE is the 'operation done' flag.
	s.ExtRegs.SetBits(extregs.IntrState, 1<<0)

	shouldLock := (s.errBits>>16) != 0 ||
		s.errBits&ErrRndFipsChkFail != 0 ||
		(s.errBits != 0 && s.SoftwareErrsFatal) ||
		s.RmaReq == LcOn

	// Make any error bits visible.
	s.ExtRegs.Write(extregs.ErrBits, uint32(s.errBits))

	s.PendingHalt = false

	if s.LockImmediately {
		if !shouldLock {
			panic("core: LockImmediately without a lock condition")
		}
		s.SetFsmState(StateLocked)
		s.publishLocked()
	} else {
		switch {
		case s.fsmState == StateExec:
			// Publish the final PC and pulse the wipe-start flag. The
			// pulse is committed immediately so a cross-checker sees
			// it for exactly this one cycle; the staged zero write
			// takes it back down at the end of the cycle.
			s.ExtRegs.Write(extregs.StopPC, s.pc)
			s.ExtRegs.Write(extregs.WipeStart, 1)
			s.ExtRegs.CommitReg(extregs.WipeStart)
			s.ExtRegs.Write(extregs.WipeStart, 0)

			s.ExtRegs.Write(extregs.Status, StatusBusySecWipeInt)
			s.SetFsmState(StatePreWipe)
			s.lockAfterWipe = shouldLock
			s.WipeRoundsDone = 0
			s.RequestUrndSeed()

		case s.fsmState == StatePreWipe || s.fsmState == StateWiping:
			// Only reachable via an escalation during a wipe that is
			// already running.
			if !shouldLock {
				panic("core: stop during wipe without a lock condition")
			}
			s.lockAfterWipe = true

		case s.initSecWipe == InitWipeInProgress:
			// Defer: keep the halt pending so Stop runs again once the
			// startup wipe finishes.
			if !shouldLock {
				panic("core: stop during startup wipe without a lock condition")
			}
			s.PendingHalt = true

		case s.initSecWipe == InitWipeDone:
			// The startup wipe already cleared residual state, so no
			// further wipe is needed before locking.
			if !shouldLock {
				panic("core: stop outside a run without a lock condition")
			}
			s.nextFsmState = StateLocked
			s.publishLocked()
		}
	}

	s.ExtRegs.RndForget()
}

func (s *State) publishLocked() {
	s.ExtRegs.Write(extregs.Status, StatusLocked)
	s.ExtRegs.Write(extregs.FatalAlertCause, uint32(s.errBits))
}

// HasStateToWipe reports whether the machine has left Idle since
// power-on and so holds state worth erasing.
func (s *State) HasStateToWipe() bool {
	return s.hasStateToWipe
}

// RequestDelayedLock asks for a jump to Locked on the next Idle step.
func (s *State) RequestDelayedLock() {
	s.delayedLock = true
}

// TakeDelayedLock consumes a pending delayed-lock request.
func (s *State) TakeDelayedLock() bool {
	if s.delayedLock {
		s.delayedLock = false
		return true
	}
	return false
}

// SetLockAfterWipe forces the current wipe to end in Locked.
func (s *State) SetLockAfterWipe() {
	s.lockAfterWipe = true
}

// --- Instruction bracketing ------------------------------------------

// PreInsn runs before an instruction executes, validating it against
// the current loop frame.
func (s *State) PreInsn(insnAffectsControl bool) {
	s.LoopStack.CheckInsn(s.pc, insnAffectsControl)
}

// PostInsn runs after an instruction's semantics but before commit: it
// counts the instruction, steps the loop stack (possibly staging a
// jump back to the body start, warped through loopWarps), folds
// resource faults into the error accumulator, and validates the next
// PC.
func (s *State) PostInsn(loopWarps map[uint32]uint32) {
	s.ExtRegs.IncrementInsnCnt()
	s.LoopStep(loopWarps)

	if s.GPRs.CallStackErr() {
		s.errBits |= ErrCallStack
	}
	if s.LoopStack.Err() {
		s.errBits |= ErrLoop
	}
	if s.errBits != 0 {
		s.PendingHalt = true
	}

	// Check the next PC, but only if we are not stopping anyway. A
	// halting instruction at the top of memory has a bogus successor
	// that nobody will fetch.
	if !s.IsPCValid(s.GetNextPC()) && !s.PendingHalt {
		s.errBits |= ErrBadInsnAddr
		s.PendingHalt = true
	}
}

// --- CSR access ------------------------------------------------------

// ReadWsrRnd consumes the cached entropy value. The health-check flags
// that arrived with the value are folded into the error accumulator at
// this point: a FIPS failure or a repeated word inside the packet only
// becomes an error once something reads the value. A false result
// means no value is cached and the caller should stall and retry.
func (s *State) ReadWsrRnd() (*uint256.Int, bool) {
	v, ok, fipsErr, repErr := s.WSRs.TakeRnd()
	if !ok {
		return nil, false
	}
	if fipsErr {
		s.StopAtEndOfCycle(ErrRndFipsChkFail)
	}
	if repErr {
		s.StopAtEndOfCycle(ErrRndRepChkFail)
	}
	return v, true
}

// ReadWsrKey returns sideload key half 0 or 1. Reading while no valid
// keys are present fails the instruction with a key-invalid error.
func (s *State) ReadWsrKey(half int) (*uint256.Int, bool) {
	v, ok := s.WSRs.ReadKey(half)
	if !ok {
		s.StopAtEndOfCycle(ErrKeyInvalid)
		return nil, false
	}
	return v, true
}

// ReadCSR reads the CSR with the given index. The entropy register is
// a destructive read served here rather than in the CSR file: reading
// it consumes the cached value, and a miss issues an entropy request
// and returns false so the instruction can stall and retry.
func (s *State) ReadCSR(idx uint32) (uint32, bool) {
	if idx == regs.CSRRnd {
		if v, ok := s.ReadWsrRnd(); ok {
			return uint32(v.Uint64()), true
		}
		s.ExtRegs.RndRequest()
		return 0, false
	}
	return s.CSRs.Read(idx, s.WSRs)
}

// WriteCSR stages a write to the CSR with the given index. A write to
// the prefetch trigger issues a direct-feed entropy request.
func (s *State) WriteCSR(idx uint32, value uint32) bool {
	ok := s.CSRs.Write(idx, value, s.WSRs)
	if ok && idx == regs.CSRRndPrefetch {
		s.ExtRegs.RndRequest()
	}
	return ok
}

// PeekCallStack returns the committed call stack, bottom first.
func (s *State) PeekCallStack() []uint32 {
	return s.GPRs.PeekCallStack()
}

// --- Fault injection -------------------------------------------------

// StopAtEndOfCycle requests a halt at the end of the current cycle,
// folding the given bits into the error accumulator.
func (s *State) StopAtEndOfCycle(errBits ErrBits) {
	s.errBits |= errBits
	s.PendingHalt = true
}

// TakeInjectedErrBits applies externally injected error bits, if any.
func (s *State) TakeInjectedErrBits() {
	if s.InjectedErrBits != 0 {
		s.StopAtEndOfCycle(s.InjectedErrBits)
		s.InjectedErrBits = 0
	}
}

// InvalidateImem arms the delayed instruction-memory invalidation.
func (s *State) InvalidateImem() {
	s.timeToImemInvalidation = 2
}

// ClearImemInvalidation clears any effective or pending invalidation.
func (s *State) ClearImemInvalidation() {
	s.timeToImemInvalidation = -1
	s.InvalidatedImem = false
}

// --- Flags -----------------------------------------------------------

// SetFlags stages a whole flag group.
func (s *State) SetFlags(group int, fg regs.FlagGroup) {
	s.CSRs.Flags.Write(group, fg)
}

// SetMLZFlags stages the M, L and Z flags of a group from a result,
// keeping the group's carry.
func (s *State) SetMLZFlags(group int, result *uint256.Int) {
	carry := s.CSRs.Flags.Read(group).C
	s.CSRs.Flags.Write(group, regs.MLZForResult(carry, result))
}

// --- Secure wipe -----------------------------------------------------

// Wipe stages the fixed erasure pattern into all internal wipeable
// state. Data memory is not included; it is only erased by the
// explicit wipe-memory command.
func (s *State) Wipe() {
	s.GPRs.Wipe()
	s.WDRs.Wipe()
	s.WSRs.Wipe()
	s.CSRs.Wipe()
}
