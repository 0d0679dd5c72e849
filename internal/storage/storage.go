// Package storage exports and imports the song document as a gzipped
// JSON project file. The flash image stays the canonical persisted
// form; the project file is the human-portable one.
package storage

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StepData is one step of a track in the project file.
type StepData struct {
	Events     []song.TrackEvent `json:"events,omitempty"`
	StartDelay int               `json:"startDelay,omitempty"`
	Ratchet    int               `json:"ratchet,omitempty"`
}

// TrackData carries the per-track settings.
type TrackData struct {
	MIDIProgram [song.NumTrackOutputs]int `json:"midiProgram"`
	MIDIPortMap [song.NumTrackOutputs]int `json:"midiPortMap"`
	MIDIChannel [song.NumTrackOutputs]int `json:"midiChannel"`
	KeySplit    int                       `json:"keySplit"`
	TrackType   int                       `json:"trackType"`
}

// SceneTrackData carries the per-scene per-track settings.
type SceneTrackData struct {
	StepLen      int `json:"stepLen"`
	Tonality     int `json:"tonality"`
	Transpose    int `json:"transpose"`
	BiasTrack    int `json:"biasTrack"`
	MotionStart  int `json:"motionStart"`
	MotionLength int `json:"motionLength"`
	GateTime     int `json:"gateTime"`
	PatternType  int `json:"patternType"`
	MotionDir    int `json:"motionDir"`
	Mute         int `json:"mute"`
	ArpType      int `json:"arpType"`
	ArpSpeed     int `json:"arpSpeed"`
	ArpGateTime  int `json:"arpGateTime"`
	ArpEnable    int `json:"arpEnable"`
}

// ListEntryData is one song list row.
type ListEntryData struct {
	Scene       int `json:"scene"`
	LengthBeats int `json:"lengthBeats"`
	Kbtrans     int `json:"kbtrans"`
}

// ProjectData is the complete project file payload.
type ProjectData struct {
	Tempo            float32 `json:"tempo"`
	Swing            int     `json:"swing"`
	MetronomeMode    int     `json:"metronomeMode"`
	MetronomeLen     int     `json:"metronomeLen"`
	KeyVelocityScale int     `json:"keyVelocityScale"`
	CVBendRange      int     `json:"cvBendRange"`
	CVGatePairs      int     `json:"cvGatePairs"`
	CVGatePairMode   [4]int  `json:"cvGatePairMode"`
	CVOutputScaling  [4]int  `json:"cvOutputScaling"`
	CVCal            [4]int  `json:"cvCal"`
	CVOffset         [4]int  `json:"cvOffset"`
	ClockOut         [midi.NumTrackOutputs]int `json:"clockOut"`
	MIDIClockSource  int     `json:"midiClockSource"`
	MIDIRemoteCtrl   int     `json:"midiRemoteCtrl"`
	MIDIAutolive     int     `json:"midiAutolive"`
	SceneSync        int     `json:"sceneSync"`
	MagicRange       int     `json:"magicRange"`
	MagicChance      int     `json:"magicChance"`

	List   []ListEntryData                               `json:"list"`
	Tracks [song.NumTracks]TrackData                     `json:"tracks"`
	Scenes [song.NumScenes][song.NumTracks]SceneTrackData `json:"scenes"`
	Steps  [song.NumTracks][song.NumSteps]StepData       `json:"steps"`
}

// BuildProject snapshots the song document through its typed getters.
func BuildProject(s *song.Store) ProjectData {
	var pd ProjectData
	pd.Tempo = s.Tempo()
	pd.Swing = s.Swing()
	pd.MetronomeMode = s.MetronomeMode()
	pd.MetronomeLen = s.MetronomeSoundLen()
	pd.KeyVelocityScale = s.KeyVelocityScale()
	pd.CVBendRange = s.CVBendRange()
	pd.CVGatePairs = s.CVGatePairs()
	for i := 0; i < 4; i++ {
		pd.CVGatePairMode[i] = s.CVGatePairMode(i)
		pd.CVOutputScaling[i] = s.CVOutputScaling(i)
		pd.CVCal[i] = s.CVCal(i)
		pd.CVOffset[i] = s.CVOffset(i)
	}
	for p := 0; p < midi.NumTrackOutputs; p++ {
		pd.ClockOut[p] = s.MIDIPortClockOut(p)
	}
	pd.MIDIClockSource = s.MIDIClockSource()
	pd.MIDIRemoteCtrl = s.MIDIRemoteCtrl()
	pd.MIDIAutolive = s.MIDIAutolive()
	pd.SceneSync = s.SceneSync()
	pd.MagicRange = s.MagicRange()
	pd.MagicChance = s.MagicChance()

	for i := 0; i < song.ListEntries; i++ {
		if s.ListScene(i) == song.ListSceneNull && i > 0 {
			break
		}
		pd.List = append(pd.List, ListEntryData{
			Scene:       s.ListScene(i),
			LengthBeats: s.ListLength(i),
			Kbtrans:     s.ListKbtrans(i),
		})
	}

	for t := 0; t < song.NumTracks; t++ {
		for m := 0; m < song.NumTrackOutputs; m++ {
			pd.Tracks[t].MIDIProgram[m] = s.MIDIProgram(t, m)
			pd.Tracks[t].MIDIPortMap[m] = s.MIDIPortMap(t, m)
			pd.Tracks[t].MIDIChannel[m] = s.MIDIChannelMap(t, m)
		}
		pd.Tracks[t].KeySplit = s.KeySplit(t)
		pd.Tracks[t].TrackType = s.TrackType(t)
	}

	for sc := 0; sc < song.NumScenes; sc++ {
		for t := 0; t < song.NumTracks; t++ {
			pd.Scenes[sc][t] = SceneTrackData{
				StepLen:      s.StepLength(sc, t),
				Tonality:     s.Tonality(sc, t),
				Transpose:    s.Transpose(sc, t),
				BiasTrack:    s.BiasTrack(sc, t),
				MotionStart:  s.MotionStart(sc, t),
				MotionLength: s.MotionLength(sc, t),
				GateTime:     s.GateTime(sc, t),
				PatternType:  s.PatternType(sc, t),
				MotionDir:    s.MotionDir(sc, t),
				Mute:         s.Mute(sc, t),
				ArpType:      s.ArpType(sc, t),
				ArpSpeed:     s.ArpSpeed(sc, t),
				ArpGateTime:  s.ArpGateTime(sc, t),
				ArpEnable:    s.ArpEnable(sc, t),
			}
		}
	}

	for t := 0; t < song.NumTracks; t++ {
		for st := 0; st < song.NumSteps; st++ {
			sd := StepData{
				StartDelay: s.StartDelay(0, t, st),
				Ratchet:    s.RatchetMode(0, t, st),
			}
			for slot := 0; slot < song.TrackPoly; slot++ {
				ev, err := s.StepEvent(0, t, st, slot)
				if err == nil {
					sd.Events = append(sd.Events, ev)
				}
			}
			pd.Steps[t][st] = sd
		}
	}
	return pd
}

// ApplyProject writes a project into the song document through its
// typed setters, so every value is validated and every change fires.
func ApplyProject(s *song.Store, pd ProjectData) {
	s.Clear()
	s.SetTempo(pd.Tempo)
	s.SetSwing(pd.Swing)
	s.SetMetronomeMode(pd.MetronomeMode)
	s.SetMetronomeSoundLen(pd.MetronomeLen)
	s.SetKeyVelocityScale(pd.KeyVelocityScale)
	s.SetCVBendRange(pd.CVBendRange)
	s.SetCVGatePairs(pd.CVGatePairs)
	for i := 0; i < 4; i++ {
		s.SetCVGatePairMode(i, pd.CVGatePairMode[i])
		s.SetCVOutputScaling(i, pd.CVOutputScaling[i])
		s.SetCVCal(i, pd.CVCal[i])
		s.SetCVOffset(i, pd.CVOffset[i])
	}
	for p := 0; p < midi.NumTrackOutputs; p++ {
		s.SetMIDIPortClockOut(p, pd.ClockOut[p])
	}
	s.SetMIDIClockSource(pd.MIDIClockSource)
	s.SetMIDIRemoteCtrl(pd.MIDIRemoteCtrl)
	s.SetMIDIAutolive(pd.MIDIAutolive)
	s.SetSceneSync(pd.SceneSync)
	s.SetMagicRange(pd.MagicRange)
	s.SetMagicChance(pd.MagicChance)

	for i, entry := range pd.List {
		if i >= song.ListEntries {
			break
		}
		s.SetListScene(i, entry.Scene)
		s.SetListLength(i, entry.LengthBeats)
		s.SetListKbtrans(i, entry.Kbtrans)
	}

	for t := 0; t < song.NumTracks; t++ {
		for m := 0; m < song.NumTrackOutputs; m++ {
			s.SetMIDIProgram(t, m, pd.Tracks[t].MIDIProgram[m])
			s.SetMIDIPortMap(t, m, pd.Tracks[t].MIDIPortMap[m])
			s.SetMIDIChannelMap(t, m, pd.Tracks[t].MIDIChannel[m])
		}
		s.SetKeySplit(t, pd.Tracks[t].KeySplit)
		s.SetTrackType(t, pd.Tracks[t].TrackType)
	}

	for sc := 0; sc < song.NumScenes; sc++ {
		for t := 0; t < song.NumTracks; t++ {
			p := pd.Scenes[sc][t]
			s.SetStepLength(sc, t, p.StepLen)
			s.SetTonality(sc, t, p.Tonality)
			s.SetTranspose(sc, t, p.Transpose)
			s.SetBiasTrack(sc, t, p.BiasTrack)
			s.SetMotionStart(sc, t, p.MotionStart)
			s.SetMotionLength(sc, t, p.MotionLength)
			s.SetGateTime(sc, t, p.GateTime)
			s.SetPatternType(sc, t, p.PatternType)
			s.SetMotionDir(sc, t, p.MotionDir)
			s.SetMute(sc, t, p.Mute)
			s.SetArpType(sc, t, p.ArpType)
			s.SetArpSpeed(sc, t, p.ArpSpeed)
			s.SetArpGateTime(sc, t, p.ArpGateTime)
			s.SetArpEnable(sc, t, p.ArpEnable)
		}
	}

	for t := 0; t < song.NumTracks; t++ {
		for st := 0; st < song.NumSteps; st++ {
			s.ClearStep(0, t, st)
			sd := pd.Steps[t][st]
			for _, ev := range sd.Events {
				if err := s.AddStepEvent(0, t, st, ev); err != nil {
					log.Printf("storage: import: %v", err)
				}
			}
			if sd.Ratchet >= song.RatchetMin {
				s.SetRatchetMode(0, t, st, sd.Ratchet)
			}
			s.SetStartDelay(0, t, st, sd.StartDelay)
		}
	}
}

// SaveProject writes the project file.
func SaveProject(path string, s *song.Store) error {
	data, err := json.Marshal(BuildProject(s))
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(data); err != nil {
		return err
	}
	return gz.Close()
}

// LoadProject reads a project file into the song document.
func LoadProject(path string, s *song.Store) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return err
	}
	var pd ProjectData
	if err := json.Unmarshal(data, &pd); err != nil {
		return fmt.Errorf("unmarshal project: %w", err)
	}
	ApplyProject(s, pd)
	return nil
}
