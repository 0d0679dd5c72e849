package engine

import (
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/outproc"
	"github.com/kilpatrickaudio/carbon/internal/song"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

// metronomeBeat sounds the metronome on a beat crossing.
func (e *Engine) metronomeBeat() {
	mode := e.songStore.MetronomeMode()
	length := e.songStore.MetronomeSoundLen()
	switch {
	case mode == song.MetronomeOff:
	case mode == song.MetronomeInternal:
		e.cv.Beep(true)
		e.metronomeMS = length
	case mode == song.MetronomeCVReset:
		e.cv.ResetPulse(true)
		e.resetPulseMS = length
	case mode >= song.MetronomeNoteLow && mode <= song.MetronomeNoteHigh:
		on := midi.NewNoteOn(0, 0, byte(mode), metronomeVelocity)
		e.outProc.Deliver(e.currentScene, MetronomeTrack, on,
			outproc.DeliverBoth, outproc.OutputProcessed)
		e.metronomeMS = length
	}
}

// metronomeOff ends the metronome sound when its ms timer expires.
func (e *Engine) metronomeOff() {
	mode := e.songStore.MetronomeMode()
	switch {
	case mode == song.MetronomeInternal:
		e.cv.Beep(false)
	case mode >= song.MetronomeNoteLow && mode <= song.MetronomeNoteHigh:
		off := midi.NewNoteOff(0, 0, byte(mode), metronomeVelocity)
		e.outProc.Deliver(e.currentScene, MetronomeTrack, off,
			outproc.DeliverBoth, outproc.OutputProcessed)
	}
}

// clockOutTick emits MIDI timing ticks and analog clock pulses at each
// port's configured division. Runs on every tick, playing or not, so
// downstream gear stays synced the way the clock keeps counting.
func (e *Engine) clockOutTick(tickPos uint32) {
	for port := 0; port < midi.NumTrackOutputs; port++ {
		div := ticks.ClockDivToTicks(e.songStore.MIDIPortClockOut(port))
		if div <= 0 {
			continue
		}
		if int(tickPos)%div == 0 {
			if port == midi.PortCVOut {
				e.cv.ClockPulse(true)
				e.clockPulseMS = clockOutPulseMS
			} else {
				e.sender.Send(midi.NewRealtime(port, midi.TimingTick))
			}
		}
	}
}

// sendClockRealtime sends a start/stop/continue byte to every port with
// clock out enabled.
func (e *Engine) sendClockRealtime(status byte) {
	for port := 0; port < midi.NumTrackOutputs; port++ {
		if e.songStore.MIDIPortClockOut(port) == ticks.ClockOff || port == midi.PortCVOut {
			continue
		}
		e.sender.Send(midi.NewRealtime(port, status))
	}
}
