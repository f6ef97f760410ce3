package harness

import (
	"github.com/sarchlab/akita/v4/datarecording"

	"github.com/sarchlab/bnsim/trace"
)

// TraceRow is one committed change, as stored in the trace table.
type TraceRow struct {
	Cycle int
	Seq   int
	Entry string
}

// TransitionRow is one FSM transition, as stored in the fsm table.
type TransitionRow struct {
	Cycle int
	From  string
	To    string
}

// Recorder writes committed changes and FSM transitions to a SQLite
// database through the simulation framework's data recorder.
type Recorder struct {
	backend datarecording.DataRecorder
}

// NewRecorder creates a recorder writing to path (".sqlite3" is
// appended by the backend).
func NewRecorder(path string) *Recorder {
	r := &Recorder{backend: datarecording.NewDataRecorder(path)}
	r.backend.CreateTable("trace", TraceRow{})
	r.backend.CreateTable("fsm", TransitionRow{})
	return r
}

// RecordChanges stores one cycle's committed changes.
func (r *Recorder) RecordChanges(cycle int, changes []trace.Entry) {
	for i, c := range changes {
		r.backend.InsertData("trace", TraceRow{
			Cycle: cycle,
			Seq:   i,
			Entry: c.String(),
		})
	}
}

// RecordTransition stores one FSM transition.
func (r *Recorder) RecordTransition(cycle int, from, to string) {
	r.backend.InsertData("fsm", TransitionRow{
		Cycle: cycle,
		From:  from,
		To:    to,
	})
}

// Flush writes all buffered rows out.
func (r *Recorder) Flush() {
	r.backend.Flush()
}
