package song

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/scale"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

func newTestStore(t *testing.T) (*Store, *flash.MemDevice, *event.Bus) {
	t.Helper()
	dev := flash.NewMemDevice(flash.SongOffset + FileSize*NumSongs + flash.ConfigSize)
	bus := event.NewBus()
	return NewStore(dev, bus), dev, bus
}

func settle(s *Store, dev *flash.MemDevice) {
	for i := 0; i < 10000 && s.Busy(); i++ {
		dev.Tick()
		s.Tick()
	}
}

func TestClearDefaults(t *testing.T) {
	s, _, _ := newTestStore(t)
	assert.InDelta(t, 120.0, float64(s.Tempo()), 0.001)
	assert.Equal(t, 50, s.Swing())
	assert.Equal(t, MetronomeInternal, s.MetronomeMode())
	assert.Equal(t, ticks.Step16th, s.StepLength(0, 0))
	assert.Equal(t, scale.Chromatic, s.Tonality(0, 0))
	assert.Equal(t, NumSteps, s.MotionLength(0, 0))
	assert.Equal(t, 0x80, s.GateTime(0, 0))
	assert.Equal(t, 31, s.PatternType(0, 0))
	assert.Equal(t, midi.PortDIN1Out, s.MIDIPortMap(0, 0))
	assert.Equal(t, PortDisable, s.MIDIPortMap(0, 1))
	assert.Equal(t, 2, s.MIDIChannelMap(2, 0))
	assert.Equal(t, ListSceneNull, s.ListScene(0))
}

func TestClearSeedsScaleNotes(t *testing.T) {
	s, _, _ := newTestStore(t)
	want := []int{60, 62, 64, 65, 67, 69, 71, 72}
	for st := 0; st < 8; st++ {
		ev, err := s.StepEvent(0, 0, st, 0)
		require.NoError(t, err)
		assert.Equal(t, EventNote, ev.Type)
		assert.Equal(t, want[st], ev.Data0)
		assert.Equal(t, 20, ev.Length)
	}
}

func TestTempoBounds(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.SetTempo(30.0)
	assert.InDelta(t, 30.0, float64(s.Tempo()), 0.001)
	s.SetTempo(300.0)
	assert.InDelta(t, 300.0, float64(s.Tempo()), 0.001)
	s.SetTempo(29.9)
	assert.InDelta(t, 300.0, float64(s.Tempo()), 0.001) // rejected
	s.SetTempo(300.1)
	assert.InDelta(t, 300.0, float64(s.Tempo()), 0.001) // rejected
}

func TestSettersFireEvents(t *testing.T) {
	s, _, bus := newTestStore(t)
	var fired []int
	bus.Subscribe(event.ClassSong, func(eventType int, args []int) {
		fired = append(fired, eventType)
	})
	s.SetSwing(67)
	s.SetTranspose(0, 2, 5)
	assert.Contains(t, fired, event.SongSwing)
	assert.Contains(t, fired, event.SongTranspose)
}

func TestOutOfRangeSetterIsNoOp(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.SetSwing(49)
	assert.Equal(t, 50, s.Swing())
	s.SetSwing(81)
	assert.Equal(t, 50, s.Swing())
	s.SetTranspose(0, 0, 25)
	assert.Equal(t, 0, s.Transpose(0, 0))
	s.SetMotionLength(0, 0, 0)
	assert.Equal(t, NumSteps, s.MotionLength(0, 0))
	s.SetMotionLength(0, 0, 65)
	assert.Equal(t, NumSteps, s.MotionLength(0, 0))
}

func TestStepPolyphonyCapacity(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.ClearStep(0, 0, 0)
	for i := 0; i < TrackPoly; i++ {
		err := s.AddStepEvent(0, 0, 0, TrackEvent{Type: EventNote, Data0: 60 + i, Data1: 100, Length: 10})
		require.NoError(t, err)
	}
	assert.Equal(t, TrackPoly, s.NumStepEvents(0, 0, 0))

	// a 7th distinct note fails
	err := s.AddStepEvent(0, 0, 0, TrackEvent{Type: EventNote, Data0: 70, Data1: 100, Length: 10})
	assert.Error(t, err)

	// re-adding an existing (type, data0) pair reuses its slot
	err = s.AddStepEvent(0, 0, 0, TrackEvent{Type: EventNote, Data0: 62, Data1: 50, Length: 99})
	require.NoError(t, err)
	assert.Equal(t, TrackPoly, s.NumStepEvents(0, 0, 0))
	ev, err := s.StepEvent(0, 0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 50, ev.Data1)
	assert.Equal(t, 99, ev.Length)
}

func TestBlankSlotReturnsError(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.ClearStep(0, 0, 5)
	_, err := s.StepEvent(0, 0, 5, 0)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, dev, _ := newTestStore(t)
	s.SetTempo(133.5)
	s.SetSwing(62)
	s.SetTranspose(1, 2, -7)
	s.SetListScene(0, 3)
	s.SetListLength(0, 200)
	s.ClearStep(0, 4, 10)
	require.NoError(t, s.AddStepEvent(0, 4, 10, TrackEvent{Type: EventCC, Data0: 74, Data1: 101, Length: 0}))
	s.SetStartDelay(0, 4, 10, 12)
	s.SetRatchetMode(0, 4, 10, 4)
	s.SetGateTime(0, 3, 255)
	s.SetMetronomeSoundLen(160)

	require.NoError(t, s.Save(7))
	settle(s, dev)

	s.Clear()
	require.NoError(t, s.Load(7))
	settle(s, dev)

	assert.InDelta(t, 133.5, float64(s.Tempo()), 0.001)
	assert.Equal(t, 62, s.Swing())
	assert.Equal(t, -7, s.Transpose(1, 2))
	assert.Equal(t, 3, s.ListScene(0))
	assert.Equal(t, 200, s.ListLength(0))
	ev, err := s.StepEvent(0, 4, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, EventCC, ev.Type)
	assert.Equal(t, 74, ev.Data0)
	assert.Equal(t, 101, ev.Data1)
	assert.Equal(t, 12, s.StartDelay(0, 4, 10))
	assert.Equal(t, 4, s.RatchetMode(0, 4, 10))
	assert.Equal(t, 255, s.GateTime(0, 3))
	assert.Equal(t, 160, s.MetronomeSoundLen())
	assert.Equal(t, CurrentVersion, s.Version())
}

func TestSaveLoadImageIdentical(t *testing.T) {
	s, dev, _ := newTestStore(t)
	s.SetTempo(98)
	s.SetTonality(0, 0, scale.Blues)
	require.NoError(t, s.Save(0))
	settle(s, dev)
	img1 := append([]byte(nil), dev.Image()[:FileSize]...)

	require.NoError(t, s.Load(0))
	settle(s, dev)
	require.NoError(t, s.Save(0))
	settle(s, dev)
	img2 := dev.Image()[:FileSize]
	assert.Equal(t, img1, img2)
}

func TestLoadBadMagicClears(t *testing.T) {
	s, dev, bus := newTestStore(t)
	require.NoError(t, s.Save(2))
	settle(s, dev)

	// corrupt the magic number at the end of the block
	binary.BigEndian.PutUint32(dev.Image()[flash.SongOffset+FileSize*2+FileSize-4:], 0xdeadbeef)

	s.SetTempo(250)
	var events []int
	bus.Subscribe(event.ClassSong, func(eventType int, args []int) {
		events = append(events, eventType)
	})
	require.NoError(t, s.Load(2))
	settle(s, dev)

	assert.Contains(t, events, event.SongLoadError)
	assert.Contains(t, events, event.SongCleared)
	assert.InDelta(t, 120.0, float64(s.Tempo()), 0.001) // back to defaults
}

func TestLoadFlashErrorClears(t *testing.T) {
	s, dev, bus := newTestStore(t)
	dev.FailNextLoad = true
	var events []int
	bus.Subscribe(event.ClassSong, func(eventType int, args []int) {
		events = append(events, eventType)
	})
	require.NoError(t, s.Load(0))
	settle(s, dev)
	assert.Contains(t, events, event.SongLoadError)
}

func TestCopyScene(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.SetTranspose(0, 0, 12)
	s.SetTonality(0, 0, scale.Major)
	s.SetMute(0, 3, 1)
	s.CopyScene(4, 0)
	assert.Equal(t, 12, s.Transpose(4, 0))
	assert.Equal(t, scale.Major, s.Tonality(4, 0))
	assert.Equal(t, 1, s.Mute(4, 3))
}

func TestSongListInsertRemove(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.SetListScene(0, 1)
	s.SetListScene(1, 2)
	s.AddListEntry(0)
	assert.Equal(t, ListSceneNull, s.ListScene(0))
	assert.Equal(t, 1, s.ListScene(1))
	assert.Equal(t, 2, s.ListScene(2))
	s.RemoveListEntry(0)
	assert.Equal(t, 1, s.ListScene(0))
	assert.Equal(t, 2, s.ListScene(1))
}

func TestInvalidSongNumbers(t *testing.T) {
	s, _, _ := newTestStore(t)
	assert.Error(t, s.Load(-1))
	assert.Error(t, s.Load(NumSongs))
	assert.Error(t, s.Save(NumSongs))
}
