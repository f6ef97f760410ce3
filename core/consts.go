// Package core implements the accelerator's control plane: the
// start/stop FSM, the per-cycle stage/commit orchestration, the
// secure-wipe protocol and the lock escalation rules. It is the state
// that a lock-step checker compares against the reference design cycle
// by cycle.
package core

// WipeCycles is the number of cycles one round of secure wipe takes.
// The reference design takes constant time; this mirrors it.
const WipeCycles = 68

// NominalWipeRounds is the number of secure-wipe rounds in the normal
// case. A lifecycle escalation that preempts a wipe before the entropy
// source was ever observed running shortens this to one round.
const NominalWipeRounds = 2

// FsmState is the state of the internal start/stop FSM.
//
// The FSM diagram looks like:
//
//	MemSecWipe <--\
//	     |        |
//	     \------> Idle -> PreExec -> Exec
//	               ^                  |
//	               |                  v
//	               \----Wiping <-> PreWipe
//	                       |
//	       Locked <--------/
//
// PreWipe is the initial state: the machine is requesting an entropy
// seed for the next wipe round. Once the seed arrives we move to
// Wiping and perform one round of erasure, then normally bounce back
// to PreWipe for the second round. When the final round finishes we
// move to Locked if there has been an escalation or a fatal error, and
// to Idle otherwise.
//
// MemSecWipe covers only the explicit wipe-memory command issued from
// Idle; the wipe that follows execution takes the PreWipe/Wiping path.
//
// Locked is terminal within a power-on lifetime.
type FsmState uint8

// FSM states. The numeric values are the sparse codes the external
// trace format uses; keep them stable.
const (
	StatePreWipe    FsmState = 0
	StateWiping     FsmState = 1
	StateIdle       FsmState = 2
	StatePreExec    FsmState = 3
	StateExec       FsmState = 4
	StateMemSecWipe FsmState = 10
	StateLocked     FsmState = 255
)

// String returns the state's name.
func (s FsmState) String() string {
	switch s {
	case StatePreWipe:
		return "PreWipe"
	case StateWiping:
		return "Wiping"
	case StateIdle:
		return "Idle"
	case StatePreExec:
		return "PreExec"
	case StateExec:
		return "Exec"
	case StateMemSecWipe:
		return "MemSecWipe"
	case StateLocked:
		return "Locked"
	default:
		return "Unknown"
	}
}

// InitSecWipeState tracks the one-time startup wipe, separately from
// steady-state wipes. It moves NotDone -> InProgress -> Done once per
// power-on lifetime.
type InitSecWipeState uint8

// Startup-wipe phases.
const (
	InitWipeNotDone InitSecWipeState = iota
	InitWipeInProgress
	InitWipeDone
)

// Status values of the externally visible STATUS register.
const (
	StatusIdle            = 0x00
	StatusBusyExecute     = 0x01
	StatusBusySecWipeDmem = 0x02
	StatusBusySecWipeImem = 0x03
	StatusBusySecWipeInt  = 0x04
	StatusLocked          = 0xFF
)

// LcTx is the tri-state lifecycle escalation input.
type LcTx uint8

// Lifecycle signal values. Anything other than LcOff and LcOn is an
// invalid encoding, treated as not asserted.
const (
	LcOff LcTx = iota
	LcOn
	LcInvalid
)

// ErrBits is the per-run error-bit accumulator. Bits 16 and up are the
// fatal class; RndFipsChkFail is the one designated-fatal bit below
// that range.
type ErrBits uint32

// Error bits.
const (
	ErrBadDataAddr    ErrBits = 1 << 0
	ErrBadInsnAddr    ErrBits = 1 << 1
	ErrCallStack      ErrBits = 1 << 2
	ErrIllegalInsn    ErrBits = 1 << 3
	ErrLoop           ErrBits = 1 << 4
	ErrKeyInvalid     ErrBits = 1 << 5
	ErrRndRepChkFail  ErrBits = 1 << 6
	ErrRndFipsChkFail ErrBits = 1 << 10

	ErrImemIntgViolation   ErrBits = 1 << 16
	ErrDmemIntgViolation   ErrBits = 1 << 17
	ErrRegIntgViolation    ErrBits = 1 << 18
	ErrBusIntgViolation    ErrBits = 1 << 19
	ErrBadInternalState    ErrBits = 1 << 20
	ErrIllegalBusAccess    ErrBits = 1 << 21
	ErrLifecycleEscalation ErrBits = 1 << 22
	ErrFatalSoftware       ErrBits = 1 << 23
)
