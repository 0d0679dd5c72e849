// Package engine implements the per-track playback state machines. The
// clock drives it at 96 PPQ; on each tick every track decides whether a
// step boundary was crossed, schedules the step's events through start
// delay and ratchet timing, runs the arpeggiator, and hands finished
// messages to the output processor. A millisecond task handles the
// metronome and clock pulse widths.
package engine

import (
	"github.com/kilpatrickaudio/carbon/internal/arp"
	"github.com/kilpatrickaudio/carbon/internal/cvproc"
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/outproc"
	"github.com/kilpatrickaudio/carbon/internal/pattern"
	"github.com/kilpatrickaudio/carbon/internal/song"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

// MetronomeTrack is the track the note metronome plays on.
const MetronomeTrack = 5

const metronomeVelocity = 100

// clockOutPulseMS is the width of analog clock pulses.
const clockOutPulseMS = 4

// maxPending bounds the scheduled event table per track: every poly
// slot ratcheted to the max plus their note offs.
const maxPending = song.TrackPoly * song.RatchetMax * 2

// pendingEvent is a scheduled message counted down in ticks.
type pendingEvent struct {
	countdown int
	msg       midi.Msg
	used      bool
}

// trackState is the playback state of one track.
type trackState struct {
	tickCount  int // private running tick counter
	stepPos    int // position within the motion window
	pending    [maxPending]pendingEvent
	arp        *arp.Arp
	arpTick    int
	lastNote   int // last scheduled note, feeds bias tracks
	lastStep   int // step the track is currently playing
	wrapped    bool // motion window wrapped on the last boundary
}

// Engine runs playback for all tracks.
type Engine struct {
	bus       *event.Bus
	songStore *song.Store
	patterns  *pattern.Bank
	outProc   *outproc.Processor
	cv        *cvproc.Processor
	sender    outproc.Sender

	runState     bool
	currentScene int
	firstTrack   int
	kbtrans      int

	tracks [song.NumTracks]trackState

	// song list state
	songMode      bool
	listEntry     int
	listBeats     int
	listKbtrans   int
	songModeEnded bool

	// live / record state
	liveMode   int
	recordMode int
	recordStep int // edit step for step record

	// ms timers
	metronomeMS  int
	clockPulseMS int
	resetPulseMS int
}

// Live modes.
const (
	LiveOff = iota
	LiveOn
	LiveKbtrans
)

// Record modes.
const (
	RecordIdle = iota
	RecordArm
	RecordStep
	RecordRT
)

// New creates an engine. The arp random streams are seeded per track so
// playback is repeatable for a given seed base.
func New(bus *event.Bus, songStore *song.Store, patterns *pattern.Bank,
	outProc *outproc.Processor, cv *cvproc.Processor, sender outproc.Sender, arpSeed int64) *Engine {
	e := &Engine{
		bus:       bus,
		songStore: songStore,
		patterns:  patterns,
		outProc:   outProc,
		cv:        cv,
		sender:    sender,
	}
	for t := range e.tracks {
		e.tracks[t].arp = arp.New(arpSeed + int64(t))
		e.tracks[t].lastNote = song.TransposeCentre
	}
	bus.Subscribe(event.ClassSong, e.handleSongEvent)
	return e
}

// handleSongEvent reacts to song edits that affect sounding notes.
func (e *Engine) handleSongEvent(eventType int, args []int) {
	switch eventType {
	case event.SongTranspose:
		if len(args) >= 2 {
			e.outProc.TransposeChanged(args[0], args[1])
		}
	case event.SongTonality:
		if len(args) >= 2 {
			e.outProc.TonalityChanged(args[0], args[1])
		}
	case event.SongMute:
		if len(args) >= 3 && args[2] != 0 && args[0] == e.currentScene {
			e.outProc.StopAllNotes(args[1])
		}
	case event.SongArpType:
		if len(args) >= 3 && args[0] == e.currentScene {
			e.tracks[args[1]].arp.SetType(args[2])
		}
	case event.SongLoaded, event.SongCleared:
		e.stopAllTracks()
		e.ResetPos()
	}
}

// RunState returns whether the engine is playing.
func (e *Engine) RunState() bool {
	return e.runState
}

// SetRunState starts or stops playback. Stopping flushes all sounding
// notes; in-flight scheduled events are dropped.
func (e *Engine) SetRunState(run bool) {
	if e.runState == run {
		return
	}
	e.runState = run
	if !run {
		e.stopAllTracks()
		e.sendClockRealtime(midi.ClockStop)
	} else {
		e.songModeEnded = false
		e.sendClockRealtime(midi.ClockStart)
	}
	e.bus.Fire(event.CtrlRunState, boolArg(run))
}

// ResetPos resets playback to the start of every track.
func (e *Engine) ResetPos() {
	for t := range e.tracks {
		e.tracks[t].tickCount = 0
		e.tracks[t].stepPos = 0
		e.tracks[t].arpTick = 0
		for i := range e.tracks[t].pending {
			e.tracks[t].pending[i].used = false
		}
	}
	e.listEntry = 0
	e.listBeats = 0
	e.applyListEntry()
}

// ResetTrack resets a single track to the start of its motion window.
func (e *Engine) ResetTrack(track int) {
	if track < 0 || track >= song.NumTracks {
		return
	}
	e.outProc.StopAllNotes(track)
	e.tracks[track].tickCount = 0
	e.tracks[track].stepPos = 0
	for i := range e.tracks[track].pending {
		e.tracks[track].pending[i].used = false
	}
}

// CurrentScene returns the playing scene.
func (e *Engine) CurrentScene() int {
	return e.currentScene
}

// SetScene switches the playing scene. Sounding notes are flushed so no
// note off is lost in the previous scene's settings.
func (e *Engine) SetScene(scene int) {
	if scene < 0 || scene >= song.NumScenes || scene == e.currentScene {
		return
	}
	e.stopAllTracks()
	e.currentScene = scene
	e.outProc.SetCurrentScene(scene)
	e.bus.Fire(event.EngineCurrentScene, scene)
}

// SetFirstTrack tells the engine which track live input routes to.
func (e *Engine) SetFirstTrack(track int) {
	if track >= 0 && track < song.NumTracks {
		e.firstTrack = track
	}
}

// Kbtrans returns the live keyboard transpose.
func (e *Engine) Kbtrans() int {
	return e.kbtrans
}

// SetKbtrans sets the live keyboard transpose.
func (e *Engine) SetKbtrans(trans int) {
	e.kbtrans = ticks.Clamp(trans, song.TransposeMin, song.TransposeMax)
	e.bus.Fire(event.EngineKbtrans, e.kbtrans)
}

// ClockTick runs one 96 PPQ tick. This is the clock's tick sink.
func (e *Engine) ClockTick(tickPos uint32) {
	e.clockOutTick(tickPos)
	if !e.runState {
		return
	}
	if tickPos%ticks.PPQ == 0 {
		e.beatCross()
		if !e.runState {
			return // song list ended playback on this beat
		}
	}
	for t := 0; t < song.NumTracks; t++ {
		e.trackTick(t)
	}
}

// TimeTick runs the millisecond timers. Call every 1000 us.
func (e *Engine) TimeTick() {
	if e.metronomeMS > 0 {
		e.metronomeMS--
		if e.metronomeMS == 0 {
			e.metronomeOff()
		}
	}
	if e.clockPulseMS > 0 {
		e.clockPulseMS--
		if e.clockPulseMS == 0 {
			e.cv.ClockPulse(false)
		}
	}
	if e.resetPulseMS > 0 {
		e.resetPulseMS--
		if e.resetPulseMS == 0 {
			e.cv.ResetPulse(false)
		}
	}
}

// trackTick advances one track by one tick.
func (e *Engine) trackTick(track int) {
	ts := &e.tracks[track]
	sc := e.currentScene

	stepLen := ticks.StepLenToTicks(e.songStore.StepLength(sc, track))
	if stepLen <= 0 {
		stepLen = ticks.StepLenToTicks(ticks.Step16th)
	}

	// run scheduled events
	e.runPending(track)

	// arp runs on its own divided clock
	if e.songStore.ArpEnable(sc, track) != 0 {
		e.arpTick(track)
	}

	// step boundary
	if ts.tickCount%stepLen == 0 {
		e.stepBoundary(track, stepLen)
	}
	ts.tickCount++
}

// stepBoundary schedules one step's worth of events.
func (e *Engine) stepBoundary(track, stepLen int) {
	ts := &e.tracks[track]
	sc := e.currentScene

	st := e.stepIndex(track)
	ts.lastStep = st
	e.bus.Fire(event.EngineActiveStep, track, st)

	// advance the window position for next time
	motionLen := e.songStore.MotionLength(sc, track)
	if motionLen < 1 {
		motionLen = 1
	}
	ts.wrapped = ts.stepPos+1 >= motionLen
	ts.stepPos = (ts.stepPos + 1) % motionLen

	if e.songStore.Mute(sc, track) != 0 {
		return
	}
	if e.recordMode == RecordRT && track == e.firstTrack {
		// the recorded track plays its live input, not its steps
		return
	}
	pat := e.songStore.PatternType(sc, track)
	if !e.patterns.StepEnable(sc, track, pat, st) {
		return
	}

	delay := e.songStore.StartDelay(sc, track, st)
	ratchet := e.songStore.RatchetMode(sc, track, st)
	if ratchet < song.RatchetMin {
		ratchet = song.RatchetMin
	}
	gateTime := e.songStore.GateTime(sc, track)

	for slot := 0; slot < song.TrackPoly; slot++ {
		ev, err := e.songStore.StepEvent(sc, track, st, slot)
		if err != nil {
			continue
		}
		switch ev.Type {
		case song.EventNote:
			e.scheduleNote(track, ev, stepLen, delay, ratchet, gateTime)
		case song.EventCC:
			msg := midi.NewControlChange(0, 0, byte(ev.Data0), byte(ev.Data1))
			e.outProc.Deliver(sc, track, msg, outproc.DeliverBoth, outproc.OutputRaw)
		}
	}
}

// scheduleNote queues the note ons and offs for one step event,
// applying start delay, ratcheting and the track gate time.
func (e *Engine) scheduleNote(track int, ev song.TrackEvent, stepLen, delay, ratchet, gateTime int) {
	sc := e.currentScene
	if delay >= stepLen {
		delay = stepLen - 1
	}
	note := e.processNote(track, ev.Data0)
	if note < 0 || note > 127 {
		return
	}
	e.tracks[track].lastNote = note

	// note length scaled by the track gate time, bounded by the step
	length := ev.Length * gateTime / 128
	if max := stepLen*gateTime/128 - 1; length > max {
		length = max
	}
	if length < 1 {
		length = 1
	}

	// arp tracks feed the arpeggiator instead of playing directly
	if e.songStore.ArpEnable(sc, track) != 0 {
		e.tracks[track].arp.AddNote(note, ev.Data1)
		e.schedule(track, pendingEvent{
			countdown: delay + length,
			msg:       arpRelease(note),
			used:      true,
		})
		return
	}

	interval := (stepLen - delay) / ratchet
	if interval < 1 {
		interval = 1
	}
	for r := 0; r < ratchet; r++ {
		onAt := delay + r*interval
		offLen := length
		if ratchet > 1 {
			if r == ratchet-1 {
				// the last repeat gates until the step end scaled by
				// the track gate time
				offLen = stepLen*gateTime/128 - onAt
			} else if offLen > interval-1 {
				offLen = interval - 1
			}
			if offLen < 1 {
				offLen = 1
			}
		}
		on := midi.NewNoteOn(0, 0, byte(note), byte(ev.Data1))
		off := midi.NewNoteOff(0, 0, byte(note), byte(ev.Data1))
		e.schedule(track, pendingEvent{countdown: onAt, msg: on, used: true})
		e.schedule(track, pendingEvent{countdown: onAt + offLen, msg: off, used: true})
	}
}

// processNote applies key transpose and bias track to a step note.
// Drum tracks are exempt from both.
func (e *Engine) processNote(track, note int) int {
	if e.songStore.TrackType(track) == song.TrackTypeDrum {
		return note
	}
	note += e.kbtrans + e.listKbtrans
	bias := e.songStore.BiasTrack(e.currentScene, track)
	if bias != song.BiasTrackNull && bias != track {
		note += e.tracks[bias].lastNote - song.TransposeCentre
	}
	return note
}

// schedule adds a pending event. A zero countdown delivers right away;
// a full table drops the event.
func (e *Engine) schedule(track int, pe pendingEvent) {
	if pe.countdown <= 0 {
		e.deliverPending(track, pe.msg)
		return
	}
	ts := &e.tracks[track]
	for i := range ts.pending {
		if !ts.pending[i].used {
			ts.pending[i] = pe
			return
		}
	}
	// table full - dropped by design to stay deterministic
}

// runPending counts down and delivers due events.
func (e *Engine) runPending(track int) {
	ts := &e.tracks[track]
	for i := range ts.pending {
		if !ts.pending[i].used {
			continue
		}
		ts.pending[i].countdown--
		if ts.pending[i].countdown > 0 {
			continue
		}
		ts.pending[i].used = false
		e.deliverPending(track, ts.pending[i].msg)
	}
}

func (e *Engine) deliverPending(track int, msg midi.Msg) {
	if msg.Status == arpReleaseStatus {
		e.tracks[track].arp.RemoveNote(int(msg.Data0))
		return
	}
	e.outProc.Deliver(e.currentScene, track, msg, outproc.DeliverBoth, outproc.OutputProcessed)
}

// stepIndex maps the track position to a song step through the motion
// window and playback direction.
func (e *Engine) stepIndex(track int) int {
	sc := e.currentScene
	ts := &e.tracks[track]
	start := e.songStore.MotionStart(sc, track)
	length := e.songStore.MotionLength(sc, track)
	if length < 1 {
		length = 1
	}
	pos := ts.stepPos % length
	if e.songStore.MotionDir(sc, track) != 0 {
		pos = length - 1 - pos
	}
	return (start + pos) % song.NumSteps
}

// stopAllTracks flushes sounding notes and pending events everywhere.
func (e *Engine) stopAllTracks() {
	for t := 0; t < song.NumTracks; t++ {
		e.outProc.StopAllNotes(t)
		e.tracks[t].arp.Clear()
		for i := range e.tracks[t].pending {
			e.tracks[t].pending[i].used = false
		}
	}
}

// arpRelease marks a scheduled arp held-note release. The status value
// never collides with a real message status.
const arpReleaseStatus = 0x01

func arpRelease(note int) midi.Msg {
	return midi.Msg{Status: arpReleaseStatus, Data0: byte(note)}
}

// arpTick advances a track's arpeggiator at its divided speed.
func (e *Engine) arpTick(track int) {
	ts := &e.tracks[track]
	sc := e.currentScene
	speed := ticks.StepLenToTicks(e.songStore.ArpSpeed(sc, track))
	if speed <= 0 {
		speed = ticks.StepLenToTicks(ticks.Step16th)
	}
	if ts.arpTick%speed == 0 && !ts.arp.Empty() {
		note, velocity, ok := ts.arp.Next()
		if ok {
			gate := e.songStore.ArpGateTime(sc, track)
			if gate < 1 {
				gate = 1
			} else if gate >= speed {
				gate = speed - 1
				if gate < 1 {
					gate = 1
				}
			}
			on := midi.NewNoteOn(0, 0, byte(note), byte(velocity))
			off := midi.NewNoteOff(0, 0, byte(note), byte(velocity))
			e.outProc.Deliver(sc, track, on, outproc.DeliverBoth, outproc.OutputProcessed)
			e.schedule(track, pendingEvent{countdown: gate, msg: off, used: true})
		}
	}
	ts.arpTick++
}

func boolArg(v bool) int {
	if v {
		return 1
	}
	return 0
}
