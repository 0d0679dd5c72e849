package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilpatrickaudio/carbon/internal/config"
	"github.com/kilpatrickaudio/carbon/internal/cvproc"
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/outproc"
	"github.com/kilpatrickaudio/carbon/internal/pattern"
	"github.com/kilpatrickaudio/carbon/internal/song"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

// capture records transmitted messages with the tick they went out on.
type capture struct {
	tick int
	msgs []timedMsg
}

type timedMsg struct {
	tick int
	msg  midi.Msg
}

func (c *capture) Send(msg midi.Msg) {
	c.msgs = append(c.msgs, timedMsg{tick: c.tick, msg: msg})
}

func (c *capture) ofKind(kind byte) []timedMsg {
	var out []timedMsg
	for _, m := range c.msgs {
		if m.msg.Kind() == kind {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	bus   *event.Bus
	songs *song.Store
	eng   *Engine
	out   *outproc.Processor
	cap   *capture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := flash.NewMemDevice(flash.ConfigOffset + flash.ConfigSize)
	bus := event.NewBus()
	cfg := config.NewStore(dev, bus, 4)
	songs := song.NewStore(dev, bus)
	bank := pattern.NewBank(cfg, songs, bus)
	bus.Fire(event.ConfigCleared) // bank picks up ROM patterns
	cap := &capture{}
	out := outproc.New(songs, cap)
	cv := cvproc.New(cvproc.NullDAC{})
	eng := New(bus, songs, bank, out, cv, cap, 1)
	return &fixture{bus: bus, songs: songs, eng: eng, out: out, cap: cap}
}

// muteOthers keeps only one track audible.
func (f *fixture) muteOthers(keep int) {
	for tr := 0; tr < song.NumTracks; tr++ {
		if tr != keep {
			f.songs.SetMute(0, tr, 1)
		}
	}
}

// run drives the engine n ticks.
func (f *fixture) run(n int) {
	for i := 0; i < n; i++ {
		f.eng.ClockTick(uint32(f.cap.tick))
		f.cap.tick++
	}
}

func TestEightStepScalePlayback(t *testing.T) {
	f := newFixture(t)
	// default cleared song: C major seed, 1/16th steps, pattern 31
	f.muteOthers(0)
	f.songs.SetMotionLength(0, 0, 8)
	f.eng.SetRunState(true)
	f.run(8 * 24)

	ons := f.cap.ofKind(midi.NoteOn)
	offs := f.cap.ofKind(midi.NoteOff)
	require.Len(t, ons, 8)
	require.Len(t, offs, 8)
	want := []byte{60, 62, 64, 65, 67, 69, 71, 72}
	for i, on := range ons {
		assert.Equal(t, want[i], on.msg.Data0, "note %d", i)
		assert.Equal(t, midi.PortDIN1Out, on.msg.Port)
		assert.Equal(t, 0, on.msg.Channel())
		assert.Equal(t, i*24, on.tick, "note %d start", i)
		// default event length 20 ticks at 100% gate
		assert.Equal(t, i*24+20, offs[i].tick, "note %d end", i)
	}
}

func TestMotionWindowWraps(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetMotionStart(0, 0, 4)
	f.songs.SetMotionLength(0, 0, 2)
	f.eng.SetRunState(true)
	f.run(4 * 24)

	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 4)
	// steps 4,5,4,5 hold seed notes 67,69
	assert.Equal(t, byte(67), ons[0].msg.Data0)
	assert.Equal(t, byte(69), ons[1].msg.Data0)
	assert.Equal(t, byte(67), ons[2].msg.Data0)
	assert.Equal(t, byte(69), ons[3].msg.Data0)
}

func TestReversePlayback(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetMotionLength(0, 0, 4)
	f.songs.SetMotionDir(0, 0, 1)
	f.eng.SetRunState(true)
	f.run(4 * 24)

	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 4)
	// steps 3,2,1,0 hold seed notes 65,64,62,60
	assert.Equal(t, byte(65), ons[0].msg.Data0)
	assert.Equal(t, byte(64), ons[1].msg.Data0)
	assert.Equal(t, byte(62), ons[2].msg.Data0)
	assert.Equal(t, byte(60), ons[3].msg.Data0)
}

func TestRatchetAndStartDelay(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetMotionLength(0, 0, 1)
	f.songs.ClearStep(0, 0, 0)
	require.NoError(t, f.songs.AddStepEvent(0, 0, 0,
		song.TrackEvent{Type: song.EventNote, Data0: 60, Data1: 100, Length: 20}))
	f.songs.SetStartDelay(0, 0, 0, 12)
	f.songs.SetRatchetMode(0, 0, 0, 4)
	f.eng.SetRunState(true)
	f.run(25)

	ons := f.cap.ofKind(midi.NoteOn)
	offs := f.cap.ofKind(midi.NoteOff)
	require.Len(t, ons, 4)
	require.Len(t, offs, 4)
	// first on at tick 12, then spaced (24-12)/4 = 3 ticks
	for i, on := range ons {
		assert.Equal(t, 12+i*3, on.tick, "ratchet %d", i)
	}
	// the last repeat gates until the step end at 100% gate time
	assert.Equal(t, 24, offs[3].tick)
	// no event lands before the start delay
	assert.Empty(t, func() []timedMsg {
		var early []timedMsg
		for _, m := range f.cap.msgs {
			if m.tick < 12 {
				early = append(early, m)
			}
		}
		return early
	}())
}

func TestPatternMaskGatesSteps(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetMotionLength(0, 0, 8)
	// pattern 22 = 0x99 rows: columns 0,3,4,7 enabled
	f.songs.SetPatternType(0, 0, 22)
	f.eng.SetRunState(true)
	f.run(8 * 24)

	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 4)
	assert.Equal(t, []byte{60, 65, 67, 72},
		[]byte{ons[0].msg.Data0, ons[1].msg.Data0, ons[2].msg.Data0, ons[3].msg.Data0})
}

func TestMuteSilencesTrack(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetMute(0, 0, 1)
	f.eng.SetRunState(true)
	f.run(8 * 24)
	assert.Empty(t, f.cap.ofKind(midi.NoteOn))
}

func TestGateTimeScalesNoteLength(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetMotionLength(0, 0, 1)
	f.songs.SetGateTime(0, 0, 0x40) // 50%
	f.eng.SetRunState(true)
	f.run(24)
	offs := f.cap.ofKind(midi.NoteOff)
	require.Len(t, offs, 1)
	assert.Equal(t, 10, offs[0].tick) // 20 ticks * 50%
}

func TestStopFlushesNotes(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.eng.SetRunState(true)
	f.run(5) // note on sounding, off still pending
	require.Len(t, f.cap.ofKind(midi.NoteOn), 1)

	f.eng.SetRunState(false)
	offs := f.cap.ofKind(midi.NoteOff)
	require.Len(t, offs, 1)

	// nothing plays while stopped
	before := len(f.cap.msgs)
	f.run(96)
	assert.Equal(t, before, len(f.cap.msgs))
}

func TestBiasTrackShiftsNotes(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	// track 0 biased by track 1; track 1 unmuted so its notes feed the bias
	f.songs.SetMute(0, 1, 0)
	f.songs.SetBiasTrack(0, 0, 1)
	// track 1 plays constant 67 (g) -> bias +7
	for st := 0; st < song.NumSteps; st++ {
		f.songs.ClearStep(0, 1, st)
		require.NoError(t, f.songs.AddStepEvent(0, 1, st,
			song.TrackEvent{Type: song.EventNote, Data0: 67, Data1: 100, Length: 10}))
	}
	f.eng.SetRunState(true)
	f.run(24 * 2)

	var track0Notes []byte
	for _, m := range f.cap.ofKind(midi.NoteOn) {
		if m.msg.Channel() == 0 {
			track0Notes = append(track0Notes, m.msg.Data0)
		}
	}
	require.NotEmpty(t, track0Notes)
	// second step of track 0 is seed note 62 shifted up 7 by the bias
	assert.Equal(t, byte(62+7), track0Notes[1])
}

func TestKbtransShiftsVoiceTracksOnly(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetMotionLength(0, 0, 1)
	f.eng.SetKbtrans(12)
	f.eng.SetRunState(true)
	f.run(24)
	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 1)
	assert.Equal(t, byte(72), ons[0].msg.Data0)

	// drum tracks ignore the transpose
	f.cap.msgs = nil
	f.songs.SetTrackType(0, song.TrackTypeDrum)
	f.run(24)
	ons = f.cap.ofKind(midi.NoteOn)
	require.NotEmpty(t, ons)
	assert.Equal(t, byte(60), ons[0].msg.Data0)
}

func TestSongListSceneChangeOnBeatSync(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.songs.SetListScene(0, 0)
	f.songs.SetListLength(0, 4)
	f.songs.SetListScene(1, 1)
	f.songs.SetListLength(1, 2)
	// entry 2 stays null and terminates the song

	var scenes []int
	f.bus.Subscribe(event.ClassEngine, func(eventType int, args []int) {
		if eventType == event.EngineCurrentScene {
			scenes = append(scenes, args[0])
		}
	})

	f.eng.SetSongMode(true)
	f.eng.SetRunState(true)
	f.run(4*96 + 1)
	assert.Contains(t, scenes, 1)
	assert.True(t, f.eng.RunState())

	f.run(2 * 96)
	assert.False(t, f.eng.RunState())
}

func TestRecordModeTransitions(t *testing.T) {
	f := newFixture(t)
	var modes []int
	f.bus.Subscribe(event.ClassCtrl, func(eventType int, args []int) {
		if eventType == event.CtrlRecordMode {
			modes = append(modes, args[0])
		}
	})
	require.Equal(t, RecordIdle, f.eng.RecordMode())

	f.eng.RecordPressed()
	assert.Equal(t, RecordArm, f.eng.RecordMode())

	// a note while stopped enters step record
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 64, 100))
	assert.Equal(t, RecordStep, f.eng.RecordMode())

	f.eng.RecordPressed()
	assert.Equal(t, RecordIdle, f.eng.RecordMode())
	assert.Equal(t, []int{RecordArm, RecordStep, RecordIdle}, modes)
}

func TestStepRecordCapturesAndAdvances(t *testing.T) {
	f := newFixture(t)
	for st := 0; st < song.NumSteps; st++ {
		f.songs.ClearStep(0, 0, st)
	}
	f.eng.RecordPressed()
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 64, 100))
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 66, 100))

	ev, err := f.songs.StepEvent(0, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 64, ev.Data0)
	ev, err = f.songs.StepEvent(0, 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 66, ev.Data0)
}

func TestRealtimeRecordArmsWhileRunning(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	f.eng.SetRunState(true)
	f.eng.RecordPressed()
	f.run(3)
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 90, 100))
	assert.Equal(t, RecordRT, f.eng.RecordMode())
	// the note landed on the playing step of track 0
	found := false
	for slot := 0; slot < song.TrackPoly; slot++ {
		if ev, err := f.songs.StepEvent(0, 0, 0, slot); err == nil && ev.Data0 == 90 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLiveKbtransCapturesNote(t *testing.T) {
	f := newFixture(t)
	f.eng.SetLiveMode(LiveKbtrans)
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 67, 100))
	assert.Equal(t, 7, f.eng.Kbtrans())
	// nothing is echoed to the outputs
	assert.Empty(t, f.cap.msgs)
}

func TestAutoliveRoutesInputToFirstTrack(t *testing.T) {
	f := newFixture(t)
	// autolive defaults on; input notes pass straight through
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 72, 100))
	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 1)
	assert.Equal(t, byte(72), ons[0].msg.Data0)
	assert.Equal(t, midi.PortDIN1Out, ons[0].msg.Port)
}

func TestKeySplitFiltersLiveInput(t *testing.T) {
	f := newFixture(t)
	f.songs.SetKeySplit(0, song.KeySplitRight)
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 40, 100))
	assert.Empty(t, f.cap.ofKind(midi.NoteOn))
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 72, 100))
	assert.Len(t, f.cap.ofKind(midi.NoteOn), 1)
}

func TestKeyVelocityScaleAppliesToLiveInput(t *testing.T) {
	f := newFixture(t)
	f.songs.SetKeyVelocityScale(-50)
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 72, 100))
	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 1)
	assert.Equal(t, byte(50), ons[0].msg.Data1)
}

func TestArpPlaysHeldNotes(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(0)
	for st := 0; st < song.NumSteps; st++ {
		f.songs.ClearStep(0, 0, st)
	}
	f.songs.SetArpEnable(0, 0, 1)
	f.songs.SetArpSpeed(0, 0, ticks.Step16th)
	f.songs.SetArpGateTime(0, 0, 12)

	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 60, 100))
	f.eng.HandleInput(midi.NewNoteOn(midi.PortDIN1In, 0, 64, 100))
	f.eng.SetRunState(true)
	f.run(24 * 4)

	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 4)
	assert.Equal(t, byte(60), ons[0].msg.Data0)
	assert.Equal(t, byte(64), ons[1].msg.Data0)
	assert.Equal(t, byte(60), ons[2].msg.Data0)
	// every on has a matching off
	assert.Len(t, f.cap.ofKind(midi.NoteOff), 4)
}

func TestMetronomeNoteMode(t *testing.T) {
	f := newFixture(t)
	f.muteOthers(MetronomeTrack)
	for st := 0; st < song.NumSteps; st++ {
		f.songs.ClearStep(0, MetronomeTrack, st)
	}
	f.songs.SetMetronomeMode(60) // note C4 on track 6
	f.eng.SetRunState(true)
	f.run(1)
	ons := f.cap.ofKind(midi.NoteOn)
	require.Len(t, ons, 1)
	assert.Equal(t, byte(60), ons[0].msg.Data0)
	assert.Equal(t, MetronomeTrack, ons[0].msg.Channel())

	// the ms timer ends the sound
	for i := 0; i < song.MetronomeSoundLenDefault+1; i++ {
		f.eng.TimeTick()
	}
	assert.Len(t, f.cap.ofKind(midi.NoteOff), 1)
}

func TestClockOutDivision(t *testing.T) {
	f := newFixture(t)
	f.songs.SetMIDIPortClockOut(midi.PortDIN1Out, ticks.ClockPPQ24)
	f.run(96)
	count := 0
	for _, m := range f.cap.msgs {
		if m.msg.Status == midi.TimingTick {
			count++
		}
	}
	assert.Equal(t, 24, count)
}
