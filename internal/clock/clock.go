// Package clock implements the sequencer timebase: an internal or
// recovered-external clock generating swung ticks at 96 PPQ. The clock
// is driven by a single periodic task and never blocks. External MIDI
// ticks and continue only set flags that the task consumes; start and
// stop change the run state and call the handlers right away.
package clock

import (
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

// Clock sources.
const (
	Internal = iota
	External
)

// Settings.
const (
	PPQ            = ticks.PPQ
	TaskIntervalUS = 1000 // periodic task interval

	TempoMin     = 30.0
	TempoMax     = 300.0
	DefaultTempo = 120.0

	usPerTickMax = uint64(60000000 / (30 * PPQ))  // 30 BPM
	usPerTickMin = uint64(60000000 / (300 * PPQ)) // 300 BPM

	lockAdjust = 500 // us trimmed per tick to pull external phase in

	externalHistLen = 24     // received tick periods averaged
	externalTimeout = 200000 // us without a tick before reverting

	tapHistLen = 4       // taps averaged
	tapTimeout = 2000000 // us before the tap history ages out
)

// TickFunc receives each generated sequencer tick with its position.
type TickFunc func(tickPos uint32)

// RunStateFunc is told about run state changes that originate inside
// the clock (external start/stop, clock loss).
type RunStateFunc func(run bool)

// ResetFunc is told to reset the playback position (external start).
type ResetFunc func()

// Clock is the timebase.
type Clock struct {
	source          int
	desiredRunState bool
	runState        bool
	nextSwing       int
	currentSwing    int

	timeCount    uint64
	nextTickTime uint64

	// internal clock state
	runTickCount  uint32
	stopTickCount uint32
	intUSPerTick  uint64

	// external clock state
	extUSPerTick       uint64
	extGenTickCount    uint32
	extGenRunTickPos   uint32
	extTickf           bool
	extContinuef       bool
	extRecoverLastTick uint64
	extRecoverRunPos   uint32
	extRecoverCount    uint32
	extRecoverHistPos  int
	extRecoverHist     [externalHistLen]uint64

	// tap tempo state
	tapBeatf     bool
	tapLastTap   uint64
	tapHistCount int
	tapHist      [tapHistLen]uint64

	bus        *event.Bus
	onTick     TickFunc
	onRunState RunStateFunc
	onReset    ResetFunc
}

// New creates a stopped internal clock at the default tempo.
func New(bus *event.Bus) *Clock {
	c := &Clock{bus: bus}
	c.setSource(Internal)
	c.SetTempo(DefaultTempo)
	c.SetSwing(SwingMin)
	c.currentSwing = c.nextSwing
	return c
}

// SetHandlers wires the tick sink and the run-state/reset callbacks.
func (c *Clock) SetHandlers(onTick TickFunc, onRunState RunStateFunc, onReset ResetFunc) {
	c.onTick = onTick
	c.onRunState = onRunState
	c.onReset = onReset
}

// Tick runs the clock timer task. Call every TaskIntervalUS.
func (c *Clock) Tick() {
	c.timeCount += TaskIntervalUS

	if c.source == Internal {
		c.tickInternal()
	} else {
		c.tickExternal()
	}

	// recover external clock
	if c.extTickf {
		c.extTickf = false
		c.recoverExternalTick()
	}
	// time out external clock mode
	if c.source == External && (c.timeCount-c.extRecoverLastTick) > externalTimeout {
		c.setSource(Internal)
		c.runState = false
		c.desiredRunState = false
		if c.onRunState != nil {
			c.onRunState(false)
		}
	}

	// recover tap tempo input - not while following external clock
	if c.tapBeatf && c.source == Internal {
		c.tapBeatf = false
		c.recoverTap()
	}
	// time out tap history
	if c.tapHistCount != 0 && (c.timeCount-c.tapLastTap) > tapTimeout {
		c.tapHistCount = 0
	}
}

func (c *Clock) tickInternal() {
	if c.timeCount <= c.nextTickTime {
		return
	}
	// adopt a pending run state change at the tick boundary
	if c.runState != c.desiredRunState {
		c.runState = c.desiredRunState
		if !c.runState {
			c.stopTickCount = c.runTickCount
		}
	}
	tickCount := c.stopTickCount
	if c.runState {
		tickCount = c.runTickCount
	}
	// beat cross before dispatching sequencer ticks
	if tickCount%PPQ == 0 {
		if c.currentSwing != c.nextSwing {
			c.currentSwing = c.nextSwing
		}
		c.bus.Fire(event.ClockBeat)
	}
	for i := 0; i < swingTicks(c.currentSwing, tickCount); i++ {
		if c.onTick != nil {
			c.onTick(tickCount)
		}
	}
	tickCount++
	c.nextTickTime += c.intUSPerTick
	if c.runState {
		c.runTickCount = tickCount
	} else {
		c.stopTickCount = tickCount
	}
}

func (c *Clock) tickExternal() {
	if c.timeCount <= c.nextTickTime {
		return
	}
	pos := c.extGenTickCount
	if c.runState {
		pos = c.extGenRunTickPos
	}
	for i := 0; i < swingTicks(c.currentSwing, pos); i++ {
		if c.onTick != nil {
			c.onTick(pos)
		}
	}
	var errTicks int64
	if c.runState {
		if c.extGenRunTickPos%PPQ == 0 {
			if c.currentSwing != c.nextSwing {
				c.currentSwing = c.nextSwing
			}
			c.bus.Fire(event.ClockBeat)
		}
		c.extGenRunTickPos++
		errTicks = int64(c.extRecoverRunPos) - int64(c.extGenRunTickPos)
	} else {
		c.extGenTickCount++
		errTicks = int64(c.extRecoverCount) - int64(c.extGenTickCount)
	}

	// trim the next tick time to pull the generated phase toward the
	// received position
	switch {
	case errTicks > 0:
		c.nextTickTime += c.extUSPerTick - lockAdjust
	case errTicks < 0:
		c.nextTickTime += c.extUSPerTick + lockAdjust
	default:
		c.nextTickTime += c.extUSPerTick
	}
}

// recoverExternalTick processes one received MIDI tick.
// Valid intervals span 30 to 300 BPM of 24 PPQ MIDI clock.
func (c *Clock) recoverExternalTick() {
	c.extRecoverHist[c.extRecoverHistPos%externalHistLen] = c.timeCount - c.extRecoverLastTick
	c.extRecoverLastTick = c.timeCount
	c.extRecoverHistPos++
	c.extRecoverCount += ticks.Upsample
	if c.extRecoverHistPos > externalHistLen {
		var sum uint64
		for i := 0; i < externalHistLen; i++ {
			sum += c.extRecoverHist[i]
		}
		per := sum / externalHistLen / ticks.Upsample
		if per < usPerTickMin {
			per = usPerTickMin
		} else if per > usPerTickMax {
			per = usPerTickMax
		}
		c.extUSPerTick = per
		if c.source == Internal {
			c.setSource(External)
			c.nextTickTime = c.timeCount // issue a tick right away
			c.extGenTickCount = c.extRecoverCount
			c.extGenRunTickPos = 0
			c.extRecoverRunPos = 0
		}
	}
	if c.extContinuef {
		c.extContinuef = false
		c.runState = true
		if c.onRunState != nil {
			c.onRunState(true)
		}
	} else if c.runState {
		c.extRecoverRunPos += ticks.Upsample
	}
}

func (c *Clock) recoverTap() {
	c.tapHist[c.tapHistCount%tapHistLen] = c.timeCount - c.tapLastTap
	c.tapLastTap = c.timeCount
	c.tapHistCount++
	if c.tapHistCount <= tapHistLen {
		return
	}
	var sum uint64
	for i := 0; i < tapHistLen; i++ {
		sum += c.tapHist[i]
	}
	per := sum / tapHistLen / PPQ
	if per < usPerTickMin {
		per = usPerTickMin
	} else if per > usPerTickMax {
		per = usPerTickMax
	}
	c.intUSPerTick = per
	c.bus.Fire(event.ClockTapLock)
}

// Source returns the current clock source.
func (c *Clock) Source() int {
	return c.source
}

// Tempo returns the internal clock tempo in BPM.
func (c *Clock) Tempo() float64 {
	return 60000000.0 / PPQ / float64(c.intUSPerTick)
}

// ExternalTempo returns the recovered tempo of the external clock in
// BPM, or 0 when no estimate exists yet.
func (c *Clock) ExternalTempo() float64 {
	if c.extUSPerTick == 0 {
		return 0
	}
	return 60000000.0 / PPQ / float64(c.extUSPerTick)
}

// SetTempo sets the internal clock tempo in BPM.
func (c *Clock) SetTempo(tempo float64) {
	if tempo < TempoMin {
		tempo = TempoMin
	} else if tempo > TempoMax {
		tempo = TempoMax
	}
	c.intUSPerTick = uint64(60000000.0 / (tempo * PPQ))
}

// SetSwing sets the swing percent (50-80). The change takes effect on
// the next beat so sub-beat spacing never jumps mid-beat.
func (c *Clock) SetSwing(swing int) {
	c.nextSwing = ticks.Clamp(swing, SwingMin, SwingMax) - SwingMin
}

// TapTempo registers one tap tempo beat.
func (c *Clock) TapTempo() {
	c.tapBeatf = true
}

// ResetPos resets the clock position to the start.
func (c *Clock) ResetPos() {
	c.runTickCount = 0
	c.stopTickCount = 0
	c.extGenRunTickPos = 0
	c.extRecoverRunPos = 0
}

// TickPos returns the current tick position.
func (c *Clock) TickPos() uint32 {
	if c.runState {
		return c.runTickCount
	}
	return c.stopTickCount
}

// Running returns the run state.
func (c *Clock) Running() bool {
	return c.runState
}

// SetRunning starts or stops the clock. With an external source only
// stopping is honored locally.
func (c *Clock) SetRunning(running bool) {
	if c.source == Internal {
		c.desiredRunState = running
	} else if !running {
		c.runState = false
		c.desiredRunState = false
		c.extGenTickCount = c.extRecoverCount
	}
}

//
// external clock inputs
//

// MidiRxTick records a received MIDI timing tick.
func (c *Clock) MidiRxTick() {
	c.extTickf = true
}

// MidiRxStart handles a received MIDI start: reset and run.
func (c *Clock) MidiRxStart() {
	c.runState = true
	c.desiredRunState = true
	if c.onReset != nil {
		c.onReset()
	}
	if c.onRunState != nil {
		c.onRunState(true)
	}
}

// MidiRxContinue handles a received MIDI continue: run from the current
// position on the next incoming tick.
func (c *Clock) MidiRxContinue() {
	c.extContinuef = true
}

// MidiRxStop handles a received MIDI stop.
func (c *Clock) MidiRxStop() {
	c.runState = false
	c.desiredRunState = false
	if c.onRunState != nil {
		c.onRunState(false)
	}
	c.extGenTickCount = c.extRecoverCount
}

func (c *Clock) setSource(source int) {
	if source == Internal {
		c.source = Internal
	} else {
		c.source = External
	}
	c.bus.Fire(event.ClockSource, c.source)
}
