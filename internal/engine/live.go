package engine

import (
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/outproc"
	"github.com/kilpatrickaudio/carbon/internal/song"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

// LiveMode returns the live input mode.
func (e *Engine) LiveMode() int {
	return e.liveMode
}

// SetLiveMode sets the live input mode. Leaving live mode flushes the
// input track so held notes cannot hang.
func (e *Engine) SetLiveMode(mode int) {
	if mode < LiveOff || mode > LiveKbtrans || mode == e.liveMode {
		return
	}
	if e.liveMode == LiveOn {
		e.outProc.StopAllNotes(e.firstTrack)
		e.tracks[e.firstTrack].arp.Clear()
	}
	e.liveMode = mode
	e.bus.Fire(event.CtrlLiveMode, mode)
}

// RecordMode returns the record mode.
func (e *Engine) RecordMode() int {
	return e.recordMode
}

// RecordPressed arms recording, or cancels it when already armed or
// recording.
func (e *Engine) RecordPressed() {
	if e.recordMode == RecordIdle {
		e.setRecordMode(RecordArm)
	} else {
		e.setRecordMode(RecordIdle)
	}
}

func (e *Engine) setRecordMode(mode int) {
	if mode == e.recordMode {
		return
	}
	e.recordMode = mode
	if mode == RecordStep {
		e.recordStep = e.songStore.MotionStart(e.currentScene, e.firstTrack)
	}
	e.bus.Fire(event.CtrlRecordMode, mode)
}

// HandleInput processes one performance message from a MIDI input. The
// caller has already stripped realtime and SYSEX traffic.
func (e *Engine) HandleInput(msg midi.Msg) {
	switch msg.Kind() {
	case midi.NoteOn, midi.NoteOff:
		if msg.Kind() == midi.NoteOn && msg.Data1 == 0 {
			// running status note off
			msg = midi.NoteOnToOff(msg)
		}
		e.handleInputNote(msg)
	default:
		if e.liveActive() {
			e.outProc.Deliver(e.currentScene, e.firstTrack, msg,
				outproc.DeliverBoth, outproc.OutputRaw)
		}
	}
}

// liveActive reports whether live input currently passes to the first
// selected track: live mode on, or autolive while recording is idle.
func (e *Engine) liveActive() bool {
	if e.liveMode == LiveOn {
		return true
	}
	return e.songStore.MIDIAutolive() != 0 && e.recordMode == RecordIdle
}

func (e *Engine) handleInputNote(msg midi.Msg) {
	note := int(msg.Data0)

	// keyboard transpose capture takes the note entirely
	if e.liveMode == LiveKbtrans {
		if msg.Kind() == midi.NoteOn {
			e.SetKbtrans(note - song.TransposeCentre)
		}
		return
	}

	// arm transitions on the first recorded note
	if e.recordMode == RecordArm && msg.Kind() == midi.NoteOn {
		if e.runState {
			e.setRecordMode(RecordRT)
		} else {
			e.setRecordMode(RecordStep)
		}
	}

	switch e.recordMode {
	case RecordStep:
		if msg.Kind() == midi.NoteOn {
			e.recordStepNote(msg)
		}
		return
	case RecordRT:
		if msg.Kind() == midi.NoteOn {
			e.recordRTNote(msg)
		}
		// fall through to sound the note live as well
	}

	if !e.liveActive() {
		return
	}
	track := e.firstTrack
	if !e.keySplitPass(track, note) {
		return
	}
	msg.Data1 = byte(e.scaleVelocity(int(msg.Data1)))

	// arp tracks collect held notes instead of playing directly
	if e.songStore.ArpEnable(e.currentScene, track) != 0 {
		if msg.Kind() == midi.NoteOn {
			e.tracks[track].arp.AddNote(note, int(msg.Data1))
		} else {
			e.tracks[track].arp.RemoveNote(note)
		}
		return
	}
	e.outProc.Deliver(e.currentScene, track, msg,
		outproc.DeliverBoth, outproc.OutputProcessed)
}

// keySplitPass applies the track's key split to an incoming note.
func (e *Engine) keySplitPass(track, note int) bool {
	switch e.songStore.KeySplit(track) {
	case song.KeySplitLeft:
		return note < song.KeySplitNote
	case song.KeySplitRight:
		return note >= song.KeySplitNote
	}
	return true
}

// scaleVelocity applies the song's key velocity scaling percent.
func (e *Engine) scaleVelocity(velocity int) int {
	scalePct := e.songStore.KeyVelocityScale()
	if scalePct == 0 {
		return velocity
	}
	return ticks.Clamp(velocity*(100+scalePct)/100, 1, 127)
}

// recordStepNote captures a note at the edit step and advances.
func (e *Engine) recordStepNote(msg midi.Msg) {
	sc := e.currentScene
	track := e.firstTrack
	ev := song.TrackEvent{
		Type:   song.EventNote,
		Data0:  int(msg.Data0),
		Data1:  int(msg.Data1),
		Length: ticks.StepLenToTicks(e.songStore.StepLength(sc, track)) / 2,
	}
	// a full step drops the note but the edit position still advances
	_ = e.songStore.AddStepEvent(sc, track, e.recordStep, ev)
	start := e.songStore.MotionStart(sc, track)
	length := e.songStore.MotionLength(sc, track)
	e.recordStep = start + (e.recordStep-start+1)%length
	e.recordStep %= song.NumSteps
}

// recordRTNote captures a note at the playing step.
func (e *Engine) recordRTNote(msg midi.Msg) {
	sc := e.currentScene
	track := e.firstTrack
	st := e.tracks[track].lastStep
	ev := song.TrackEvent{
		Type:   song.EventNote,
		Data0:  int(msg.Data0),
		Data1:  int(msg.Data1),
		Length: ticks.StepLenToTicks(e.songStore.StepLength(sc, track)) / 2,
	}
	_ = e.songStore.AddStepEvent(sc, track, st, ev)
}
