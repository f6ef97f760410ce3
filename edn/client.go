// Package edn models the consumer side of an entropy-distribution
// channel. One request is in flight at a time: the source delivers
// eight 32-bit words, the assembled 256-bit value then crosses a clock
// domain with a fixed delay, and the consumer collects it with
// CDCComplete once the crossing resolves.
package edn

import "github.com/holiman/uint256"

// PacketWords is the number of 32-bit deliveries per 256-bit value.
const PacketWords = 8

// CDCDelayCycles is the clock-domain-crossing delay between the last
// delivered word and the value becoming collectable.
const CDCDelayCycles = 2

// Client tracks a single in-flight entropy request.
type Client struct {
	reqActive bool

	acc      uint256.Int
	nWords   int
	lastWord uint32

	fipsErr bool
	repErr  bool

	// cdcCounter is -1 when no crossing is in flight.
	cdcCounter int

	ready    bool
	value    uint256.Int
	poisoned bool
}

// NewClient creates an idle client.
func NewClient() *Client {
	return &Client{cdcCounter: -1}
}

// Request starts a new request. Requesting while one is already in
// flight has no effect.
func (c *Client) Request() {
	if c.reqActive || c.ready {
		return
	}
	c.reqActive = true
	c.acc.SetUint64(0)
	c.nWords = 0
	c.fipsErr = false
	c.repErr = false
}

// Pending reports whether a request is outstanding, including a value
// still crossing clock domains or awaiting collection.
func (c *Client) Pending() bool {
	return c.reqActive || c.ready
}

// TakeWord accepts one delivered word. Words arriving with no active
// request are swallowed. A word equal to its predecessor raises the
// repetition health-check flag; fipsErr accumulates across the packet.
func (c *Client) TakeWord(word uint32, fipsErr bool) {
	if !c.reqActive || c.cdcCounter >= 0 {
		return
	}
	if c.nWords > 0 && word == c.lastWord {
		c.repErr = true
	}
	if fipsErr {
		c.fipsErr = true
	}
	c.lastWord = word

	shifted := new(uint256.Int).SetUint64(uint64(word))
	shifted.Lsh(shifted, uint(32*c.nWords))
	c.acc.Or(&c.acc, shifted)
	c.nWords++

	if c.nWords == PacketWords {
		c.cdcCounter = CDCDelayCycles
	}
}

// Step advances the crossing timer by one cycle.
func (c *Client) Step() {
	if c.cdcCounter > 0 {
		c.cdcCounter--
		if c.cdcCounter == 0 {
			c.value.Set(&c.acc)
			c.ready = true
			c.reqActive = false
			c.cdcCounter = -1
		}
	}
}

// CDCReady reports whether a completed value is waiting for collection.
func (c *Client) CDCReady() bool {
	return c.ready
}

// Poison marks any in-flight or completed value as stale. The next
// CDCComplete will report retry instead of a value.
func (c *Client) Poison() {
	if c.reqActive || c.ready {
		c.poisoned = true
	}
}

// Forget abandons the current request entirely, including a poisoned
// one. Late word deliveries are then swallowed.
func (c *Client) Forget() {
	c.reqActive = false
	c.nWords = 0
	c.cdcCounter = -1
	c.ready = false
	c.poisoned = false
}

// EdnReset abandons in-flight state after a source reset.
func (c *Client) EdnReset() {
	c.Forget()
}

// CDCComplete collects the crossed value. It returns the value (nil if
// the request was poisoned), whether the consumer should retry, and
// the FIPS and repetition health-check flags. The client returns to
// idle either way.
func (c *Client) CDCComplete() (value *uint256.Int, retry, fipsErr, repErr bool) {
	if c.poisoned {
		c.Forget()
		return nil, true, false, false
	}
	if !c.ready {
		return nil, false, false, false
	}
	v := new(uint256.Int).Set(&c.value)
	fips, rep := c.fipsErr, c.repErr
	c.Forget()
	return v, false, fips, rep
}
