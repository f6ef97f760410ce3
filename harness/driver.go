package harness

import (
	"fmt"
	"sort"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/bnsim/core"
	"github.com/sarchlab/bnsim/extregs"
)

// quietCycles is how long the machine must sit unprompted in Idle,
// with the script exhausted, before the driver stops ticking.
const quietCycles = 8

// Driver is the ticking component that advances the machine one cycle
// per tick, applying scenario events and servicing the entropy source
// along the way.
type Driver struct {
	*sim.TickingComponent

	model    *core.Sim
	scenario *Scenario
	edn      *EdnSource
	rec      *Recorder

	verbose bool

	events    []Event
	nextEvent int

	cycle int
}

// NewDriver creates a driver around the given machine model. rec may
// be nil to skip recording.
func NewDriver(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	model *core.Sim,
	scenario *Scenario,
	rec *Recorder,
	verbose bool,
) *Driver {
	events := make([]Event, len(scenario.Events))
	copy(events, scenario.Events)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Cycle < events[j].Cycle
	})

	d := &Driver{
		model:    model,
		scenario: scenario,
		edn:      NewEdnSource(scenario.EdnSeed, scenario.EdnWordsPerCycle),
		rec:      rec,
		verbose:  verbose,
		events:   events,
	}
	d.TickingComponent = sim.NewTickingComponent(name, engine, freq, d)
	return d
}

// Cycle returns the number of cycles driven so far.
func (d *Driver) Cycle() int {
	return d.cycle
}

// Tick runs one machine cycle. It returns false once the scenario is
// over: the cycle bound was hit, the machine locked, or it settled in
// Idle with the script exhausted.
func (d *Driver) Tick() bool {
	if d.cycle >= d.scenario.MaxCycles {
		return false
	}

	d.applyEvents()
	d.edn.Tick(d.model.State)

	before := d.model.State.FsmState()
	changes := d.model.StepCycle()
	after := d.model.State.FsmState()

	if d.rec != nil {
		d.rec.RecordChanges(d.cycle, changes)
		if after != before {
			d.rec.RecordTransition(d.cycle, before.String(), after.String())
		}
	}
	if d.verbose && after != before {
		fmt.Printf("cycle %6d: %s -> %s\n", d.cycle, before, after)
	}

	d.cycle++

	if after == core.StateLocked {
		return false
	}
	if after == core.StateIdle &&
		!d.model.State.PendingHalt &&
		d.nextEvent >= len(d.events) &&
		d.model.State.CyclesInThisState > quietCycles {
		return false
	}
	return true
}

// applyEvents fires every scripted event due this cycle.
func (d *Driver) applyEvents() {
	s := d.model.State
	for d.nextEvent < len(d.events) && d.events[d.nextEvent].Cycle <= d.cycle {
		ev := d.events[d.nextEvent]
		d.nextEvent++

		if d.verbose {
			fmt.Printf("cycle %6d: event %s\n", d.cycle, ev.Op)
		}

		switch ev.Op {
		case OpStart:
			if !d.model.StartRun() && d.verbose {
				fmt.Printf("cycle %6d: start rejected (state %s)\n",
					d.cycle, s.FsmState())
			}
		case OpWipeDmem:
			d.model.StartMemWipe(core.MemWipeDmem)
		case OpWipeImem:
			d.model.StartMemWipe(core.MemWipeImem)
		case OpRmaOn:
			s.RmaReq = core.LcOn
		case OpRmaOff:
			s.RmaReq = core.LcOff
		case OpInjectErr:
			s.InjectedErrBits |= core.ErrBits(ev.Value)
		case OpEdnFlush:
			s.EdnFlush()
		case OpLockImmediately:
			s.LockImmediately = true
		case OpSoftwareErrsFatal:
			s.SoftwareErrsFatal = true
		case OpRequestHalt:
			s.StopAtEndOfCycle(core.ErrBits(ev.Value))
		case OpDelayedLock:
			s.RequestDelayedLock()
		}
	}
}

// Result summarizes a finished scenario run.
type Result struct {
	Name       string
	Cycles     int
	FinalState string
	Status     uint32
	ErrBits    uint32
	InsnCount  uint32
}

// RunScenario builds an engine, runs the scenario to completion and
// returns the summary. rec may be nil.
func RunScenario(sc *Scenario, rec *Recorder, verbose bool) (Result, error) {
	engine := sim.NewSerialEngine()
	model := core.NewSim(nil)
	driver := NewDriver("Driver", engine, 1*sim.GHz, model, sc, rec, verbose)

	driver.TickLater()
	if err := engine.Run(); err != nil {
		return Result{}, fmt.Errorf("running engine: %w", err)
	}

	if rec != nil {
		rec.Flush()
	}

	s := model.State
	return Result{
		Name:       sc.Name,
		Cycles:     driver.Cycle(),
		FinalState: s.FsmState().String(),
		Status:     s.ExtRegs.Read(extregs.Status),
		ErrBits:    s.ExtRegs.Read(extregs.ErrBits),
		InsnCount:  s.ExtRegs.Read(extregs.InsnCnt),
	}, nil
}
