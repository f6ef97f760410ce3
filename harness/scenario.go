// Package harness drives the control model under an event-driven
// simulation engine: a scenario script feeds commands and fault
// injections into the machine at chosen cycles, an entropy source
// model answers its seed requests, and a recorder writes the committed
// changes to a database for inspection.
package harness

import (
	"encoding/json"
	"fmt"
	"os"
)

// Event op names accepted in a scenario script.
const (
	OpStart             = "start"
	OpWipeDmem          = "wipe-dmem"
	OpWipeImem          = "wipe-imem"
	OpRmaOn             = "rma-on"
	OpRmaOff            = "rma-off"
	OpInjectErr         = "inject-err"
	OpEdnFlush          = "edn-flush"
	OpLockImmediately   = "lock-immediately"
	OpSoftwareErrsFatal = "software-errs-fatal"
	OpRequestHalt       = "request-halt"
	OpDelayedLock       = "delayed-lock"
)

// Event is one scripted action, applied at the start of its cycle.
type Event struct {
	// Cycle is the cycle the event fires on.
	Cycle int `json:"cycle"`

	// Op selects the action; see the Op* constants.
	Op string `json:"op"`

	// Value carries the error bits for inject-err and request-halt.
	// Other ops ignore it.
	Value uint32 `json:"value,omitempty"`
}

// Scenario is a full simulation script.
type Scenario struct {
	// Name labels the run in output and recordings.
	Name string `json:"name"`

	// MaxCycles bounds the simulation. Default: 10000.
	MaxCycles int `json:"max_cycles"`

	// EdnSeed seeds the entropy source model, making runs
	// reproducible. Default: 1.
	EdnSeed uint64 `json:"edn_seed"`

	// EdnWordsPerCycle is how many entropy words the source delivers
	// per cycle while a request is outstanding. Default: 1.
	EdnWordsPerCycle int `json:"edn_words_per_cycle"`

	// Events is the script, in any order; the driver sorts by cycle.
	Events []Event `json:"events"`
}

// DefaultScenario returns a script that lets the startup wipe finish,
// starts a run, and lets it idle.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:             "default",
		MaxCycles:        10000,
		EdnSeed:          1,
		EdnWordsPerCycle: 1,
		Events: []Event{
			{Cycle: 400, Op: OpStart},
			{Cycle: 600, Op: OpRequestHalt},
		},
	}
}

// LoadScenario reads a scenario script from a JSON file. Fields left
// out of the file keep their defaults.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	sc := DefaultScenario()
	sc.Events = nil
	if err := json.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}

	for i, ev := range sc.Events {
		if err := validateOp(ev.Op); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if ev.Cycle < 0 {
			return nil, fmt.Errorf("event %d: negative cycle %d", i, ev.Cycle)
		}
	}
	if sc.MaxCycles <= 0 {
		return nil, fmt.Errorf("max_cycles must be positive, got %d", sc.MaxCycles)
	}
	if sc.EdnWordsPerCycle <= 0 {
		sc.EdnWordsPerCycle = 1
	}

	return sc, nil
}

func validateOp(op string) error {
	switch op {
	case OpStart, OpWipeDmem, OpWipeImem, OpRmaOn, OpRmaOff,
		OpInjectErr, OpEdnFlush, OpLockImmediately,
		OpSoftwareErrsFatal, OpRequestHalt, OpDelayedLock:
		return nil
	default:
		return fmt.Errorf("unknown op %q", op)
	}
}
