// Package seqctrl is the command surface of the sequencer. Panel input
// and MIDI remote control land here, get validated against the current
// mode, and turn into typed song edits and engine or clock updates.
// Nothing else mutates the song.
package seqctrl

import (
	"log"
	"math/rand"

	"github.com/kilpatrickaudio/carbon/internal/clock"
	"github.com/kilpatrickaudio/carbon/internal/cvproc"
	"github.com/kilpatrickaudio/carbon/internal/engine"
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

// TrackOmni applies a track param setter to every selected track. Used
// by MIDI remote control.
const TrackOmni = -1

// Controller mediates all edits.
type Controller struct {
	bus       *event.Bus
	songStore *song.Store
	eng       *engine.Engine
	clk       *clock.Clock
	cv        *cvproc.Processor

	trackSelect [song.NumTracks]bool
	muteSelect  [song.NumTracks]bool
	currentSong int
	runLockout  bool

	rnd *rand.Rand
}

// New creates a controller and subscribes it to song events so loaded
// songs push their settings into the clock and CV processor.
func New(bus *event.Bus, songStore *song.Store, eng *engine.Engine,
	clk *clock.Clock, cv *cvproc.Processor, magicSeed int64) *Controller {
	c := &Controller{
		bus:       bus,
		songStore: songStore,
		eng:       eng,
		clk:       clk,
		cv:        cv,
		rnd:       rand.New(rand.NewSource(magicSeed)),
	}
	c.trackSelect[0] = true
	bus.Subscribe(event.ClassSong, c.handleSongEvent)
	bus.Subscribe(event.ClassClock, c.handleClockEvent)
	return c
}

// handleSongEvent keeps the clock and CV processor in step with song
// state, and releases the run lockout when storage traffic finishes.
func (c *Controller) handleSongEvent(eventType int, args []int) {
	switch eventType {
	case event.SongLoaded, event.SongCleared:
		c.runLockout = false
		c.syncFromSong()
	case event.SongLoadError, event.SongSaved, event.SongSaveError:
		c.runLockout = false
	case event.SongTempo:
		c.clk.SetTempo(float64(c.songStore.Tempo()))
	case event.SongSwing:
		if len(args) >= 1 {
			c.clk.SetSwing(args[0])
		}
	case event.SongCVGatePairs:
		if len(args) >= 1 {
			c.cv.SetPairs(args[0])
		}
	case event.SongCVGatePairMode:
		if len(args) >= 2 {
			c.cv.SetPairMode(args[0], args[1])
		}
	case event.SongCVOutputScaling:
		if len(args) >= 2 {
			c.cv.SetOutputScaling(args[0], args[1])
		}
	case event.SongCVCal:
		if len(args) >= 2 {
			c.cv.SetCVCal(args[0], args[1])
		}
	case event.SongCVOffset:
		if len(args) >= 2 {
			c.cv.SetCVOffset(args[0], args[1])
		}
	case event.SongCVBendRange:
		if len(args) >= 1 {
			c.cv.SetBendRange(args[0])
		}
	}
}

// handleClockEvent copies a tap tempo lock back into the song.
func (c *Controller) handleClockEvent(eventType int, args []int) {
	if eventType == event.ClockTapLock {
		c.songStore.SetTempo(float32(c.clk.Tempo()))
	}
}

// syncFromSong pushes everything the clock and CV processor cache out
// of the song document.
func (c *Controller) syncFromSong() {
	c.clk.SetTempo(float64(c.songStore.Tempo()))
	c.clk.SetSwing(c.songStore.Swing())
	c.cv.SetPairs(c.songStore.CVGatePairs())
	for pair := 0; pair < cvproc.NumPairs; pair++ {
		c.cv.SetPairMode(pair, c.songStore.CVGatePairMode(pair))
	}
	for out := 0; out < cvproc.NumOutputs; out++ {
		c.cv.SetOutputScaling(out, c.songStore.CVOutputScaling(out))
		c.cv.SetCVCal(out, c.songStore.CVCal(out))
		c.cv.SetCVOffset(out, c.songStore.CVOffset(out))
	}
	c.cv.SetBendRange(c.songStore.CVBendRange())
}

//
// running edit
//

// CurrentSong returns the loaded song number.
func (c *Controller) CurrentSong() int {
	return c.currentSong
}

// LoadSong stops playback and starts loading a song.
func (c *Controller) LoadSong(num int) error {
	c.SetRunState(false)
	if err := c.songStore.Load(num); err != nil {
		return err
	}
	c.currentSong = num
	c.runLockout = true
	return nil
}

// SaveSong stops playback and starts saving the current song.
func (c *Controller) SaveSong(num int) error {
	c.SetRunState(false)
	if err := c.songStore.Save(num); err != nil {
		return err
	}
	c.currentSong = num
	c.runLockout = true
	return nil
}

// ClearSong resets the song to defaults.
func (c *Controller) ClearSong() {
	c.SetRunState(false)
	c.songStore.Clear()
}

// RunLockout reports whether playback is locked out by storage I/O.
func (c *Controller) RunLockout() bool {
	return c.runLockout
}

// RunState returns the engine run state.
func (c *Controller) RunState() bool {
	return c.eng.RunState()
}

// SetRunState starts or stops playback. Lockout during load and save
// wins over everything.
func (c *Controller) SetRunState(run bool) {
	if run && c.runLockout {
		log.Printf("seqctrl: run locked out")
		return
	}
	c.clk.SetRunning(run)
	c.eng.SetRunState(run)
}

// ResetPos resets playback to the start without changing run state.
func (c *Controller) ResetPos() {
	c.clk.ResetPos()
	c.eng.ResetPos()
}

// ClockRunStateChanged is the clock's run state callback for externally
// driven start/stop.
func (c *Controller) ClockRunStateChanged(run bool) {
	c.eng.SetRunState(run)
}

// Scene returns the playing scene.
func (c *Controller) Scene() int {
	return c.eng.CurrentScene()
}

// SetScene switches the playing scene.
func (c *Controller) SetScene(scene int) {
	c.eng.SetScene(scene)
}

// CopyScene copies the current scene into another.
func (c *Controller) CopyScene(dest int) {
	c.songStore.CopyScene(dest, c.eng.CurrentScene())
}

// TapTempo routes a tap to the clock.
func (c *Controller) TapTempo() {
	c.clk.TapTempo()
}

//
// track selection
//

// TrackSelect returns whether a track is selected.
func (c *Controller) TrackSelect(track int) bool {
	if track < 0 || track >= song.NumTracks {
		return false
	}
	return c.trackSelect[track]
}

// SetTrackSelect selects or deselects a track. At least one track stays
// selected.
func (c *Controller) SetTrackSelect(track int, sel bool) {
	if track < 0 || track >= song.NumTracks {
		log.Printf("seqctrl: track select invalid: %d", track)
		return
	}
	c.trackSelect[track] = sel
	if c.NumTracksSelected() == 0 {
		c.trackSelect[track] = true
		return
	}
	c.bus.Fire(event.CtrlTrackSelect, track, boolArg(sel))
	c.eng.SetFirstTrack(c.FirstTrack())
	c.bus.Fire(event.CtrlFirstTrack, c.FirstTrack())
}

// NumTracksSelected returns how many tracks are selected.
func (c *Controller) NumTracksSelected() int {
	n := 0
	for _, s := range c.trackSelect {
		if s {
			n++
		}
	}
	return n
}

// FirstTrack returns the lowest selected track.
func (c *Controller) FirstTrack() int {
	for t, s := range c.trackSelect {
		if s {
			return t
		}
	}
	return 0
}

// MuteSelect returns whether a track is in the mute selection.
func (c *Controller) MuteSelect(track int) bool {
	if track < 0 || track >= song.NumTracks {
		return false
	}
	return c.muteSelect[track]
}

// SetMuteSelect adds or removes a track from the mute selection.
func (c *Controller) SetMuteSelect(track int, sel bool) {
	if track < 0 || track >= song.NumTracks {
		log.Printf("seqctrl: mute select invalid: %d", track)
		return
	}
	c.muteSelect[track] = sel
}

// ToggleSelectedMutes flips the mute state of every track in the mute
// selection.
func (c *Controller) ToggleSelectedMutes() {
	sc := c.Scene()
	for t, sel := range c.muteSelect {
		if sel {
			c.songStore.SetMute(sc, t, 1-c.songStore.Mute(sc, t))
		}
	}
}

// forSelected applies fn to a specific track, or to every selected
// track for TrackOmni.
func (c *Controller) forSelected(track int, fn func(t int)) {
	if track != TrackOmni {
		if track < 0 || track >= song.NumTracks {
			log.Printf("seqctrl: track invalid: %d", track)
			return
		}
		fn(track)
		return
	}
	for t, sel := range c.trackSelect {
		if sel {
			fn(t)
		}
	}
}

//
// modes
//

// SongMode returns song list playback state.
func (c *Controller) SongMode() bool { return c.eng.SongMode() }

// SetSongMode switches song list playback.
func (c *Controller) SetSongMode(enable bool) { c.eng.SetSongMode(enable) }

// ToggleSongMode flips song list playback.
func (c *Controller) ToggleSongMode() { c.eng.SetSongMode(!c.eng.SongMode()) }

// LiveMode returns the live input mode.
func (c *Controller) LiveMode() int { return c.eng.LiveMode() }

// SetLiveMode sets the live input mode.
func (c *Controller) SetLiveMode(mode int) { c.eng.SetLiveMode(mode) }

// RecordPressed toggles record arming.
func (c *Controller) RecordPressed() { c.eng.RecordPressed() }

// RecordMode returns the record mode.
func (c *Controller) RecordMode() int { return c.eng.RecordMode() }

// SetKbtrans sets the keyboard transpose regardless of live mode, for
// MIDI remote use.
func (c *Controller) SetKbtrans(trans int) { c.eng.SetKbtrans(trans) }

//
// track param edits (wildcard aware)
//

// SetStepLength sets the step length on a track or all selected tracks.
func (c *Controller) SetStepLength(track, length int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetStepLength(c.Scene(), t, length)
	})
}

// SetTonality sets the tonality.
func (c *Controller) SetTonality(track, tonality int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetTonality(c.Scene(), t, tonality)
	})
}

// SetTranspose sets the track transpose.
func (c *Controller) SetTranspose(track, transpose int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetTranspose(c.Scene(), t, transpose)
	})
}

// SetMotionStart sets the motion window start.
func (c *Controller) SetMotionStart(track, start int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetMotionStart(c.Scene(), t, start)
	})
}

// SetMotionLength sets the motion window length.
func (c *Controller) SetMotionLength(track, length int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetMotionLength(c.Scene(), t, length)
	})
}

// SetGateTime sets the track gate time.
func (c *Controller) SetGateTime(track, time int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetGateTime(c.Scene(), t, time)
	})
}

// SetPatternType sets the pattern for a track.
func (c *Controller) SetPatternType(track, pat int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetPatternType(c.Scene(), t, pat)
	})
}

// SetMotionDir sets the playback direction.
func (c *Controller) SetMotionDir(track, reverse int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetMotionDir(c.Scene(), t, reverse)
	})
}

// SetMute sets the mute state.
func (c *Controller) SetMute(track, mute int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetMute(c.Scene(), t, mute)
	})
}

// SetArpType sets the arp type.
func (c *Controller) SetArpType(track, typ int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetArpType(c.Scene(), t, typ)
	})
}

// SetArpSpeed sets the arp speed.
func (c *Controller) SetArpSpeed(track, speed int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetArpSpeed(c.Scene(), t, speed)
	})
}

// SetArpGateTime sets the arp gate time.
func (c *Controller) SetArpGateTime(track, time int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetArpGateTime(c.Scene(), t, time)
	})
}

// SetArpEnable switches the arp on a track.
func (c *Controller) SetArpEnable(track, enable int) {
	c.forSelected(track, func(t int) {
		c.songStore.SetArpEnable(c.Scene(), t, enable)
	})
}

//
// magic operations
//

// MagicRandomize randomizes note pitches on the selected tracks within
// the song's magic range, hitting each event with the song's magic
// chance.
func (c *Controller) MagicRandomize() {
	rng := c.songStore.MagicRange()
	chance := c.songStore.MagicChance()
	sc := c.Scene()
	c.forSelected(TrackOmni, func(t int) {
		for st := 0; st < song.NumSteps; st++ {
			for slot := 0; slot < song.TrackPoly; slot++ {
				ev, err := c.songStore.StepEvent(sc, t, st, slot)
				if err != nil || ev.Type != song.EventNote {
					continue
				}
				if c.rnd.Intn(100) >= chance {
					continue
				}
				note := ev.Data0 + c.rnd.Intn(rng*2+1) - rng
				if note < 0 || note > 127 {
					continue
				}
				ev.Data0 = note
				_ = c.songStore.SetStepEvent(sc, t, st, slot, ev)
			}
		}
	})
}

// MagicClear clears every step of the selected tracks.
func (c *Controller) MagicClear() {
	sc := c.Scene()
	c.forSelected(TrackOmni, func(t int) {
		for st := 0; st < song.NumSteps; st++ {
			c.songStore.ClearStep(sc, t, st)
		}
	})
}

func boolArg(v bool) int {
	if v {
		return 1
	}
	return 0
}
