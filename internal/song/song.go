// Package song holds the in-RAM song document and its persistence. All
// mutation goes through typed setters that validate bounds, write
// through and fire the matching change event. Out-of-range arguments
// are logged and ignored so the realtime path never has to unwind.
package song

import (
	"log"

	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/scale"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

// Fixed capacities.
const (
	NumScenes       = 6
	NumTracks       = 6
	NumSteps        = 64
	TrackPoly       = 6
	NumTrackOutputs = 2 // MIDI output maps per track
	ListEntries     = 64
)

// Version of the song format written by this build.
const (
	VersionMajor = 1
	VersionMinor = 23
)

// CurrentVersion packs the format version as major<<16 | minor.
const CurrentVersion = VersionMajor<<16 | VersionMinor

// magicNum marks a valid song image ("SONG" in big endian).
const magicNum = 0x534f4e47

// Tempo and swing limits.
const (
	TempoMin = 30.0
	TempoMax = 300.0
	SwingMin = 50
	SwingMax = 80
)

// Transpose limits; TransposeCentre is the reference note for key
// transpose and bias tracks.
const (
	TransposeMin    = -24
	TransposeMax    = 24
	TransposeCentre = 60
)

// Gate time is a percentage of the step where 0x80 = 100%.
const (
	GateTimeMin = 1
	GateTimeMax = 255 // up to 200%
)

// Ratchet and start delay limits.
const (
	RatchetMin    = 1
	RatchetMax    = 8
	StartDelayMin = 0
	StartDelayMax = ticks.PPQ
)

// Sentinels kept in the numeric form the persisted format uses.
const (
	PortDisable   = -1
	ProgNull      = -1
	BiasTrackNull = -1
	ListSceneNull = -1
	ClockSourceInternal = -1
)

// Key split modes.
const (
	KeySplitOff = iota
	KeySplitLeft
	KeySplitRight
	KeySplitNote = 60
)

// Track types.
const (
	TrackTypeVoice = iota // transpose affects this track
	TrackTypeDrum         // transpose does not affect this track
)

// Metronome modes: off, internal beeper, CV reset pulse, or a note
// number 24..84 played on the metronome track.
const (
	MetronomeOff      = 0
	MetronomeInternal = 1
	MetronomeCVReset  = 2
	MetronomeNoteLow  = 24
	MetronomeNoteHigh = 84

	MetronomeSoundLenMin     = 5
	MetronomeSoundLenMax     = 160
	MetronomeSoundLenDefault = 100
)

// Scene sync modes for song-list scene changes.
const (
	SceneSyncBeat = iota
	SceneSyncTrack1
)

// Key velocity scale limits (percent).
const (
	KeyVelScaleMin = -100
	KeyVelScaleMax = 100
)

// Song list limits.
const (
	ListMinLength     = 1
	ListMaxLength     = 256
	ListDefaultLength = 16
)

// Magic (randomizer) limits.
const (
	MagicRangeMin  = 1
	MagicRangeMax  = 24
	MagicChanceMin = 10
	MagicChanceMax = 100
)

// Step event types, mapped to real status bytes where possible.
const (
	EventNull = 0
	EventNote = midi.NoteOn
	EventCC   = midi.ControlChange
)

// TrackEvent is one slot on a step.
type TrackEvent struct {
	Type   int
	Data0  int // note number or CC number
	Data1  int // velocity or CC value
	Length int // note length in ticks
}

// step holds the per-step data.
type step struct {
	events     [TrackPoly]TrackEvent
	startDelay int
	ratchet    int
}

// listEntry is one song list row.
type listEntry struct {
	scene       int // ListSceneNull terminates the song
	lengthBeats int
	kbtrans     int
}

// trackParams are the per-track (not per-scene) settings.
type trackParams struct {
	midiProgram [NumTrackOutputs]int
	midiPortMap [NumTrackOutputs]int
	midiChannel [NumTrackOutputs]int
	keySplit    int
	trackType   int
}

// sceneParams are the per-scene per-track settings.
type sceneParams struct {
	stepLen      int
	tonality     int
	transpose    int
	biasTrack    int
	motionStart  int
	motionLength int
	gateTime     int
	patternType  int
	motionDir    int
	mute         int
	arpType      int
	arpSpeed     int
	arpGateTime  int
	arpEnable    int
}

// document is the full persisted song state.
type document struct {
	version int

	// global params
	tempo            float32
	swing            int
	metronomeMode    int
	metronomeLen     int
	keyVelocityScale int
	cvBendRange      int
	cvGatePairs      int
	cvGatePairMode   [4]int
	cvOutputScaling  [4]int
	cvCal            [4]int
	cvOffset         [4]int
	clockOut         [midi.NumTrackOutputs]int
	midiClockSource  int
	midiRemoteCtrl   int
	midiAutolive     int
	sceneSync        int
	magicRange       int
	magicChance      int

	list   [ListEntries]listEntry
	tracks [NumTracks]trackParams
	scenes [NumScenes][NumTracks]sceneParams
	steps  [numEventScenes][NumTracks][NumSteps]step

	magic int
}

// I/O states for the load/save task.
const (
	ioIdle = iota
	ioLoad
	ioSave
)

// Store owns the song document and drives load/save against the flash
// device.
type Store struct {
	doc document

	dev      flash.Device
	bus      *event.Bus
	ioState  int
	ioSong   int // song number being loaded or saved
}

// NewStore creates a store and clears the document to defaults.
func NewStore(dev flash.Device, bus *event.Bus) *Store {
	s := &Store{dev: dev, bus: bus}
	s.Clear()
	return s
}

// Busy reports whether a load or save is in flight.
func (s *Store) Busy() bool {
	return s.ioState != ioIdle
}

// seed notes written into a cleared song, C4 up a major scale to C5.
var resetScale = [8]int{60, 62, 64, 65, 67, 69, 71, 72}

// Clear resets the song in RAM back to defaults and fires SongCleared.
func (s *Store) Clear() {
	s.doc = document{}

	// global params
	s.SetTempo(120.0)
	s.SetSwing(50)
	s.SetMetronomeMode(MetronomeInternal)
	s.SetMetronomeSoundLen(MetronomeSoundLenDefault)
	s.SetKeyVelocityScale(0)
	s.SetCVBendRange(2)
	s.SetCVGatePairs(CVPairABCD)
	for pair := 0; pair < 4; pair++ {
		s.SetCVGatePairMode(pair, CVModeNote)
	}
	for out := 0; out < 4; out++ {
		s.SetCVOutputScaling(out, CVScaling1VOct)
		s.SetCVCal(out, 0)
		s.SetCVOffset(out, 0)
	}
	for port := 0; port < midi.NumTrackOutputs; port++ {
		s.SetMIDIPortClockOut(port, ticks.ClockOff)
	}
	s.SetMIDIClockSource(ClockSourceInternal)
	s.SetMIDIRemoteCtrl(0)
	s.SetMIDIAutolive(1)
	s.SetSceneSync(SceneSyncBeat)
	s.SetMagicRange(12)
	s.SetMagicChance(100)

	// song list
	for i := 0; i < ListEntries; i++ {
		s.doc.list[i] = listEntry{
			scene:       ListSceneNull,
			lengthBeats: ListDefaultLength,
			kbtrans:     0,
		}
	}

	// track params
	for track := 0; track < NumTracks; track++ {
		for mapnum := 0; mapnum < NumTrackOutputs; mapnum++ {
			s.SetMIDIProgram(track, mapnum, ProgNull)
			s.SetMIDIPortMap(track, mapnum, midi.PortDIN1Out)
			s.SetMIDIChannelMap(track, mapnum, track)
		}
		s.SetMIDIPortMap(track, 1, PortDisable)
		s.SetKeySplit(track, KeySplitOff)
		s.SetTrackType(track, TrackTypeVoice)
	}

	// track params per scene
	for scene := 0; scene < NumScenes; scene++ {
		for track := 0; track < NumTracks; track++ {
			s.SetStepLength(scene, track, ticks.Step16th)
			s.SetTonality(scene, track, scale.Chromatic)
			s.SetTranspose(scene, track, 0)
			s.SetBiasTrack(scene, track, BiasTrackNull)
			s.SetMotionStart(scene, track, 0)
			s.SetMotionLength(scene, track, NumSteps)
			s.SetGateTime(scene, track, 0x80) // 100%
			s.SetPatternType(scene, track, 31) // as recorded
			s.SetMotionDir(scene, track, 0)
			s.SetMute(scene, track, 0)
			s.SetArpType(scene, track, ArpTypeUp1)
			s.SetArpSpeed(scene, track, ticks.Step16th)
			s.SetArpGateTime(scene, track, ticks.StepLenToTicks(ticks.Step16th)/2)
			s.SetArpEnable(scene, track, 0)
		}
	}

	// seed the steps with notes
	for es := 0; es < numEventScenes; es++ {
		for track := 0; track < NumTracks; track++ {
			for st := 0; st < NumSteps; st++ {
				s.clearStepRaw(es, track, st)
				s.doc.steps[es][track][st].events[0] = TrackEvent{
					Type:   EventNote,
					Data0:  resetScale[st%8],
					Data1:  0x60,
					Length: 20,
				}
				s.doc.steps[es][track][st].ratchet = RatchetMin
				s.doc.steps[es][track][st].startDelay = 0
			}
		}
	}

	s.doc.version = CurrentVersion
	s.doc.magic = magicNum

	s.bus.Fire(event.SongCleared, s.ioSong)
}

// CopyScene deep-copies all per-scene track params (and, in the
// per-scene notes layout, the step data) from src to dst.
func (s *Store) CopyScene(dst, src int) {
	if dst < 0 || dst >= NumScenes || src < 0 || src >= NumScenes || dst == src {
		log.Printf("song: copy scene invalid: %d <- %d", dst, src)
		return
	}
	s.doc.scenes[dst] = s.doc.scenes[src]
	if numEventScenes > 1 {
		s.doc.steps[eventScene(dst)] = s.doc.steps[eventScene(src)]
	}
}

// eventScene maps a scene to its event table index, collapsing to 0
// when events are shared across scenes.
func eventScene(scene int) int {
	if numEventScenes == 1 {
		return 0
	}
	return scene
}

func (s *Store) clearStepRaw(es, track, st int) {
	s.doc.steps[es][track][st] = step{ratchet: RatchetMin}
}

func validSceneTrack(scene, track int) bool {
	return scene >= 0 && scene < NumScenes && track >= 0 && track < NumTracks
}

func validStep(st int) bool {
	return st >= 0 && st < NumSteps
}
