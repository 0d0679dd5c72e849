package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/scale"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

func newSong(t *testing.T) *song.Store {
	t.Helper()
	dev := flash.NewMemDevice(flash.ConfigOffset + flash.ConfigSize)
	return song.NewStore(dev, event.NewBus())
}

func TestProjectRoundTrip(t *testing.T) {
	s := newSong(t)
	s.SetTempo(144)
	s.SetSwing(66)
	s.SetTonality(0, 2, scale.Dorian)
	s.SetListScene(0, 4)
	s.SetListLength(0, 32)
	s.ClearStep(0, 1, 3)
	require.NoError(t, s.AddStepEvent(0, 1, 3,
		song.TrackEvent{Type: song.EventNote, Data0: 61, Data1: 88, Length: 30}))
	s.SetRatchetMode(0, 1, 3, 3)
	s.SetStartDelay(0, 1, 3, 6)

	path := filepath.Join(t.TempDir(), "project.json.gz")
	require.NoError(t, SaveProject(path, s))

	s2 := newSong(t)
	require.NoError(t, LoadProject(path, s2))

	assert.InDelta(t, 144.0, float64(s2.Tempo()), 0.001)
	assert.Equal(t, 66, s2.Swing())
	assert.Equal(t, scale.Dorian, s2.Tonality(0, 2))
	assert.Equal(t, 4, s2.ListScene(0))
	assert.Equal(t, 32, s2.ListLength(0))
	ev, err := s2.StepEvent(0, 1, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 61, ev.Data0)
	assert.Equal(t, 88, ev.Data1)
	assert.Equal(t, 30, ev.Length)
	assert.Equal(t, 3, s2.RatchetMode(0, 1, 3))
	assert.Equal(t, 6, s2.StartDelay(0, 1, 3))
}

func TestBuildProjectSnapshotsDefaults(t *testing.T) {
	s := newSong(t)
	pd := BuildProject(s)
	assert.InDelta(t, 120.0, float64(pd.Tempo), 0.001)
	assert.Equal(t, 50, pd.Swing)
	assert.Equal(t, 31, pd.Scenes[0][0].PatternType)
	// seeded steps carry one event each
	assert.Len(t, pd.Steps[0][0].Events, 1)
	assert.Equal(t, 60, pd.Steps[0][0].Events[0].Data0)
}

func TestLoadProjectMissingFile(t *testing.T) {
	s := newSong(t)
	err := LoadProject(filepath.Join(t.TempDir(), "nope.json.gz"), s)
	assert.Error(t, err)
}
