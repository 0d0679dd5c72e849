package seqctrl

import (
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

// Remote control CC numbers, active when the song enables MIDI remote
// control. These mirror a subset of the panel controls.
const (
	remoteCCRunState  = 16
	remoteCCReset     = 17
	remoteCCRecord    = 18
	remoteCCScene     = 19
	remoteCCTapTempo  = 20
	remoteCCSongMode  = 21
	remoteCCLiveMode  = 22
	remoteCCMuteBase  = 32 // CC 32-37 mute tracks 1-6
	remoteCCKbtrans   = 48
)

// HandleMIDIInput routes one inbound message: clock realtime to the
// clock when its port matches the configured source, remote CC when
// enabled, everything else to the engine's live input.
func (c *Controller) HandleMIDIInput(msg midi.Msg) {
	// system realtime
	switch msg.Status {
	case midi.TimingTick:
		if c.clockSourcePort(msg.Port) {
			c.clk.MidiRxTick()
		}
		return
	case midi.ClockStart:
		if c.clockSourcePort(msg.Port) {
			c.clk.MidiRxStart()
		}
		return
	case midi.ClockContinue:
		if c.clockSourcePort(msg.Port) {
			c.clk.MidiRxContinue()
		}
		return
	case midi.ClockStop:
		if c.clockSourcePort(msg.Port) {
			c.clk.MidiRxStop()
		}
		return
	case midi.ActiveSensing:
		return
	}

	if msg.Kind() == midi.ControlChange && c.songStore.MIDIRemoteCtrl() != 0 {
		if c.handleRemoteCC(msg) {
			return
		}
	}
	c.eng.HandleInput(msg)
}

// clockSourcePort reports whether an input port is the configured
// external clock source.
func (c *Controller) clockSourcePort(port int) bool {
	source := c.songStore.MIDIClockSource()
	if source == song.ClockSourceInternal {
		return false
	}
	return port == midi.PortInOffset+source
}

// handleRemoteCC maps remote control CCs onto controller operations.
// Returns false for CCs that are not remote controls so they pass to
// the live input path.
func (c *Controller) handleRemoteCC(msg midi.Msg) bool {
	cc := int(msg.Data0)
	val := int(msg.Data1)
	switch cc {
	case remoteCCRunState:
		c.SetRunState(val >= 64)
	case remoteCCReset:
		if val >= 64 {
			c.ResetPos()
		}
	case remoteCCRecord:
		if val >= 64 {
			c.RecordPressed()
		}
	case remoteCCScene:
		c.SetScene(val % song.NumScenes)
	case remoteCCTapTempo:
		if val >= 64 {
			c.TapTempo()
		}
	case remoteCCSongMode:
		c.SetSongMode(val >= 64)
	case remoteCCLiveMode:
		c.SetLiveMode(val % 3)
	case remoteCCKbtrans:
		c.SetKbtrans(val - 64)
	default:
		if cc >= remoteCCMuteBase && cc < remoteCCMuteBase+song.NumTracks {
			c.SetMute(cc-remoteCCMuteBase, boolArg(val >= 64))
			return true
		}
		return false
	}
	return true
}

// Panel control ids.
const (
	PanelPlayStop = iota
	PanelReset
	PanelRecord
	PanelTapTempo
	PanelSongMode
	PanelLiveMode
	PanelSceneBase  // +0..5 select scene
	_
	_
	_
	_
	_
	PanelTrackBase // +0..5 toggle track select
)

// PanelInput handles one panel control change. val is the new control
// value (button down = nonzero).
func (c *Controller) PanelInput(ctrl, val int) {
	switch {
	case ctrl == PanelPlayStop:
		if val != 0 {
			c.SetRunState(!c.RunState())
		}
	case ctrl == PanelReset:
		if val != 0 {
			c.ResetPos()
		}
	case ctrl == PanelRecord:
		if val != 0 {
			c.RecordPressed()
		}
	case ctrl == PanelTapTempo:
		if val != 0 {
			c.TapTempo()
		}
	case ctrl == PanelSongMode:
		if val != 0 {
			c.ToggleSongMode()
		}
	case ctrl == PanelLiveMode:
		if val != 0 {
			c.SetLiveMode((c.LiveMode() + 1) % 3)
		}
	case ctrl >= PanelSceneBase && ctrl < PanelSceneBase+song.NumScenes:
		if val != 0 {
			c.SetScene(ctrl - PanelSceneBase)
		}
	case ctrl >= PanelTrackBase && ctrl < PanelTrackBase+song.NumTracks:
		if val != 0 {
			t := ctrl - PanelTrackBase
			c.SetTrackSelect(t, !c.TrackSelect(t))
		}
	}
}
