package harness

import "github.com/sarchlab/bnsim/core"

// EdnSource models the entropy-distribution endpoint the machine's two
// entropy channels hang off. It watches both clients each cycle,
// delivers words while a request is outstanding, and signals
// completion once a value has crossed clock domains. Word values come
// from a splitmix64 stream so runs are reproducible from the seed.
type EdnSource struct {
	rngState uint64

	wordsPerCycle int

	// fipsErrNext flags the next delivered direct-channel word as
	// failing the FIPS health check, for fault-injection scenarios.
	fipsErrNext bool
}

// NewEdnSource creates a source delivering wordsPerCycle words per
// cycle per channel.
func NewEdnSource(seed uint64, wordsPerCycle int) *EdnSource {
	if wordsPerCycle <= 0 {
		wordsPerCycle = 1
	}
	return &EdnSource{rngState: seed, wordsPerCycle: wordsPerCycle}
}

// FlagNextWordFipsErr makes the next direct-channel word carry a FIPS
// health-check failure.
func (e *EdnSource) FlagNextWordFipsErr() {
	e.fipsErrNext = true
}

// Tick services both channels for one cycle. Completions are signaled
// before fresh words are delivered; both take effect before the
// machine's own step.
func (e *EdnSource) Tick(s *core.State) {
	// Seed channel.
	if s.UrndCDCReady() {
		s.UrndCompleted()
	} else if !s.UrndSeedArrived() {
		for i := 0; i < e.wordsPerCycle; i++ {
			s.EdnUrndStep(e.nextWord())
		}
	}

	// Direct channel.
	if s.ExtRegs.RndCDCReady() {
		s.RndCompleted()
	} else if s.ExtRegs.RndPending() {
		for i := 0; i < e.wordsPerCycle; i++ {
			fips := e.fipsErrNext
			e.fipsErrNext = false
			s.EdnRndStep(e.nextWord(), fips)
		}
	}
}

// nextWord returns the next 32-bit word of the splitmix64 stream.
func (e *EdnSource) nextWord() uint32 {
	e.rngState += 0x9E3779B97F4A7C15
	z := e.rngState
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	z ^= z >> 31
	return uint32(z)
}
