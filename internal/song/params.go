package song

import (
	"log"

	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/scale"
	"github.com/kilpatrickaudio/carbon/internal/ticks"
)

// CV/gate pairings.
const (
	CVPairABCD = iota
	CVPairAABC
	CVPairAABB
	CVPairAAAA
)

// CV/gate pair modes. Values above CVModeNote are CC numbers 0..120
// offset by CVModeCCBase.
const (
	CVModeVelo = iota
	CVModeNote
	CVModeCCBase // mode - CVModeCCBase = CC number
	CVModeMax    = CVModeCCBase + 120
)

// CV output scalings.
const (
	CVScaling1VOct = iota
	CVScaling1p2VOct
	CVScalingHzV
	CVScalingMax = CVScalingHzV
)

// CV calibration and offset limits.
const (
	CVCalMin    = -100
	CVCalMax    = 100
	CVOffsetMin = -450
	CVOffsetMax = 450
	CVBendMin   = 1
	CVBendMax   = 12
)

//
// global params (per song)
//

// Version returns the format version of the loaded song
// (major<<16 | minor).
func (s *Store) Version() int {
	return s.doc.version
}

// Tempo returns the song tempo in BPM.
func (s *Store) Tempo() float32 {
	return s.doc.tempo
}

// SetTempo sets the song tempo in BPM.
func (s *Store) SetTempo(tempo float32) {
	if tempo < TempoMin || tempo > TempoMax {
		log.Printf("song: tempo invalid: %f", tempo)
		return
	}
	s.doc.tempo = tempo
	s.bus.Fire(event.SongTempo)
}

// Swing returns the swing percent (50-80).
func (s *Store) Swing() int {
	return s.doc.swing
}

// SetSwing sets the swing percent.
func (s *Store) SetSwing(swing int) {
	if swing < SwingMin || swing > SwingMax {
		log.Printf("song: swing invalid: %d", swing)
		return
	}
	s.doc.swing = swing
	s.bus.Fire(event.SongSwing, swing)
}

// MetronomeMode returns the metronome mode.
func (s *Store) MetronomeMode() int {
	return s.doc.metronomeMode
}

// SetMetronomeMode sets the metronome mode.
func (s *Store) SetMetronomeMode(mode int) {
	ok := mode == MetronomeOff || mode == MetronomeInternal ||
		mode == MetronomeCVReset ||
		(mode >= MetronomeNoteLow && mode <= MetronomeNoteHigh)
	if !ok {
		log.Printf("song: metronome mode invalid: %d", mode)
		return
	}
	s.doc.metronomeMode = mode
	s.bus.Fire(event.SongMetronomeMode, mode)
}

// MetronomeSoundLen returns the metronome sound length in ms.
func (s *Store) MetronomeSoundLen() int {
	return s.doc.metronomeLen
}

// SetMetronomeSoundLen sets the metronome sound length in ms.
func (s *Store) SetMetronomeSoundLen(len_ int) {
	if len_ < MetronomeSoundLenMin || len_ > MetronomeSoundLenMax {
		log.Printf("song: metronome len invalid: %d", len_)
		return
	}
	s.doc.metronomeLen = len_
	s.bus.Fire(event.SongMetronomeSoundLen, len_)
}

// KeyVelocityScale returns the live input velocity scaling percent.
func (s *Store) KeyVelocityScale() int {
	return s.doc.keyVelocityScale
}

// SetKeyVelocityScale sets the live input velocity scaling percent.
func (s *Store) SetKeyVelocityScale(scalePct int) {
	if scalePct < KeyVelScaleMin || scalePct > KeyVelScaleMax {
		log.Printf("song: key velocity scale invalid: %d", scalePct)
		return
	}
	s.doc.keyVelocityScale = scalePct
	s.bus.Fire(event.SongKeyVelocityScale, scalePct)
}

// CVBendRange returns the CV bend range in semitones.
func (s *Store) CVBendRange() int {
	return s.doc.cvBendRange
}

// SetCVBendRange sets the CV bend range in semitones.
func (s *Store) SetCVBendRange(semis int) {
	if semis < CVBendMin || semis > CVBendMax {
		log.Printf("song: cv bend range invalid: %d", semis)
		return
	}
	s.doc.cvBendRange = semis
	s.bus.Fire(event.SongCVBendRange, semis)
}

// CVGatePairs returns the CV/gate channel pairing.
func (s *Store) CVGatePairs() int {
	return s.doc.cvGatePairs
}

// SetCVGatePairs sets the CV/gate channel pairing.
func (s *Store) SetCVGatePairs(pairs int) {
	if pairs < CVPairABCD || pairs > CVPairAAAA {
		log.Printf("song: cvgate pairs invalid: %d", pairs)
		return
	}
	s.doc.cvGatePairs = pairs
	s.bus.Fire(event.SongCVGatePairs, pairs)
}

// CVGatePairMode returns the mode for a CV/gate pair (0-3 = A-D).
func (s *Store) CVGatePairMode(pair int) int {
	if pair < 0 || pair >= 4 {
		return -1
	}
	return s.doc.cvGatePairMode[pair]
}

// SetCVGatePairMode sets the mode for a CV/gate pair.
func (s *Store) SetCVGatePairMode(pair, mode int) {
	if pair < 0 || pair >= 4 || mode < CVModeVelo || mode > CVModeMax {
		log.Printf("song: cvgate pair mode invalid: %d %d", pair, mode)
		return
	}
	s.doc.cvGatePairMode[pair] = mode
	s.bus.Fire(event.SongCVGatePairMode, pair, mode)
}

// CVOutputScaling returns the scaling mode for a CV output.
func (s *Store) CVOutputScaling(out int) int {
	if out < 0 || out >= 4 {
		return -1
	}
	return s.doc.cvOutputScaling[out]
}

// SetCVOutputScaling sets the scaling mode for a CV output.
func (s *Store) SetCVOutputScaling(out, mode int) {
	if out < 0 || out >= 4 || mode < CVScaling1VOct || mode > CVScalingMax {
		log.Printf("song: cv output scaling invalid: %d %d", out, mode)
		return
	}
	s.doc.cvOutputScaling[out] = mode
	s.bus.Fire(event.SongCVOutputScaling, out, mode)
}

// CVCal returns the calibration value for a CV output.
func (s *Store) CVCal(out int) int {
	if out < 0 || out >= 4 {
		return -1
	}
	return s.doc.cvCal[out]
}

// SetCVCal sets the calibration value for a CV output.
func (s *Store) SetCVCal(out, val int) {
	if out < 0 || out >= 4 || val < CVCalMin || val > CVCalMax {
		log.Printf("song: cvcal invalid: %d %d", out, val)
		return
	}
	s.doc.cvCal[out] = val
	s.bus.Fire(event.SongCVCal, out, val)
}

// CVOffset returns the offset value for a CV output.
func (s *Store) CVOffset(out int) int {
	if out < 0 || out >= 4 {
		return -1
	}
	return s.doc.cvOffset[out]
}

// SetCVOffset sets the offset value for a CV output.
func (s *Store) SetCVOffset(out, val int) {
	if out < 0 || out >= 4 || val < CVOffsetMin || val > CVOffsetMax {
		log.Printf("song: cvoffset invalid: %d %d", out, val)
		return
	}
	s.doc.cvOffset[out] = val
	s.bus.Fire(event.SongCVOffset, out, val)
}

// MIDIPortClockOut returns the clock out division for an output port,
// or -1 on error.
func (s *Store) MIDIPortClockOut(port int) int {
	if port < 0 || port >= midi.NumTrackOutputs {
		return -1
	}
	return s.doc.clockOut[port]
}

// SetMIDIPortClockOut sets the clock out division for an output port.
func (s *Store) SetMIDIPortClockOut(port, div int) {
	if port < 0 || port >= midi.NumTrackOutputs || div < 0 || div >= ticks.NumClockDivs {
		log.Printf("song: clock out invalid: %d %d", port, div)
		return
	}
	s.doc.clockOut[port] = div
	s.bus.Fire(event.SongMIDIPortClockOut, port, div)
}

// MIDIClockSource returns the clock source (ClockSourceInternal or an
// input number 0-2).
func (s *Store) MIDIClockSource() int {
	return s.doc.midiClockSource
}

// SetMIDIClockSource sets the clock source.
func (s *Store) SetMIDIClockSource(source int) {
	if source < ClockSourceInternal || source >= midi.NumInputs {
		log.Printf("song: clock source invalid: %d", source)
		return
	}
	s.doc.midiClockSource = source
	s.bus.Fire(event.SongMIDIClockSource, source)
}

// MIDIRemoteCtrl returns whether MIDI remote control is enabled.
func (s *Store) MIDIRemoteCtrl() int {
	return s.doc.midiRemoteCtrl
}

// SetMIDIRemoteCtrl sets whether MIDI remote control is enabled.
func (s *Store) SetMIDIRemoteCtrl(enable int) {
	s.doc.midiRemoteCtrl = boolVal(enable)
	s.bus.Fire(event.SongMIDIRemoteCtrl, s.doc.midiRemoteCtrl)
}

// MIDIAutolive returns whether live input passes through while stopped.
func (s *Store) MIDIAutolive() int {
	return s.doc.midiAutolive
}

// SetMIDIAutolive sets the autolive enable.
func (s *Store) SetMIDIAutolive(enable int) {
	s.doc.midiAutolive = boolVal(enable)
	s.bus.Fire(event.SongMIDIAutolive, s.doc.midiAutolive)
}

// SceneSync returns the song-list scene change sync mode.
func (s *Store) SceneSync() int {
	return s.doc.sceneSync
}

// SetSceneSync sets the song-list scene change sync mode.
func (s *Store) SetSceneSync(mode int) {
	if mode != SceneSyncBeat && mode != SceneSyncTrack1 {
		log.Printf("song: scene sync invalid: %d", mode)
		return
	}
	s.doc.sceneSync = mode
	s.bus.Fire(event.SongSceneSync, mode)
}

// MagicRange returns the randomizer range in semitones.
func (s *Store) MagicRange() int {
	return s.doc.magicRange
}

// SetMagicRange sets the randomizer range in semitones.
func (s *Store) SetMagicRange(rng int) {
	if rng < MagicRangeMin || rng > MagicRangeMax {
		log.Printf("song: magic range invalid: %d", rng)
		return
	}
	s.doc.magicRange = rng
	s.bus.Fire(event.SongMagicRange, rng)
}

// MagicChance returns the randomizer chance percent.
func (s *Store) MagicChance() int {
	return s.doc.magicChance
}

// SetMagicChance sets the randomizer chance percent.
func (s *Store) SetMagicChance(chance int) {
	if chance < MagicChanceMin || chance > MagicChanceMax {
		log.Printf("song: magic chance invalid: %d", chance)
		return
	}
	s.doc.magicChance = chance
	s.bus.Fire(event.SongMagicChance, chance)
}

//
// song list params
//

// AddListEntry inserts a blank entry before the selected entry, moving
// everything after it down by one.
func (s *Store) AddListEntry(entry int) {
	if entry < 0 || entry >= ListEntries {
		log.Printf("song: list add invalid: %d", entry)
		return
	}
	copy(s.doc.list[entry+1:], s.doc.list[entry:ListEntries-1])
	s.doc.list[entry] = listEntry{
		scene:       ListSceneNull,
		lengthBeats: ListDefaultLength,
		kbtrans:     0,
	}
	s.bus.Fire(event.SongListScene, entry, ListSceneNull)
}

// RemoveListEntry removes an entry, moving everything after it up.
func (s *Store) RemoveListEntry(entry int) {
	if entry < 0 || entry >= ListEntries {
		log.Printf("song: list remove invalid: %d", entry)
		return
	}
	copy(s.doc.list[entry:], s.doc.list[entry+1:])
	s.doc.list[ListEntries-1] = listEntry{
		scene:       ListSceneNull,
		lengthBeats: ListDefaultLength,
		kbtrans:     0,
	}
	s.bus.Fire(event.SongListScene, entry, s.doc.list[entry].scene)
}

// ListScene returns the scene for a song list entry, or ListSceneNull
// on error.
func (s *Store) ListScene(entry int) int {
	if entry < 0 || entry >= ListEntries {
		return ListSceneNull
	}
	return s.doc.list[entry].scene
}

// SetListScene sets the scene for a song list entry. A scene of
// NumScenes means repeat the previous entry.
func (s *Store) SetListScene(entry, scene int) {
	if entry < 0 || entry >= ListEntries || scene < ListSceneNull || scene > NumScenes {
		log.Printf("song: list scene invalid: %d %d", entry, scene)
		return
	}
	s.doc.list[entry].scene = scene
	s.bus.Fire(event.SongListScene, entry, scene)
}

// ListLength returns the length in beats of a song list entry.
func (s *Store) ListLength(entry int) int {
	if entry < 0 || entry >= ListEntries {
		return -1
	}
	return s.doc.list[entry].lengthBeats
}

// SetListLength sets the length in beats of a song list entry.
func (s *Store) SetListLength(entry, length int) {
	if entry < 0 || entry >= ListEntries || length < ListMinLength || length > ListMaxLength {
		log.Printf("song: list length invalid: %d %d", entry, length)
		return
	}
	s.doc.list[entry].lengthBeats = length
	s.bus.Fire(event.SongListLength, entry, length)
}

// ListKbtrans returns the keyboard transpose of a song list entry.
func (s *Store) ListKbtrans(entry int) int {
	if entry < 0 || entry >= ListEntries {
		return 0
	}
	return s.doc.list[entry].kbtrans
}

// SetListKbtrans sets the keyboard transpose of a song list entry.
func (s *Store) SetListKbtrans(entry, kbtrans int) {
	if entry < 0 || entry >= ListEntries || kbtrans < TransposeMin || kbtrans > TransposeMax {
		log.Printf("song: list kbtrans invalid: %d %d", entry, kbtrans)
		return
	}
	s.doc.list[entry].kbtrans = kbtrans
	s.bus.Fire(event.SongListKbtrans, entry, kbtrans)
}

//
// track params (per track)
//

// MIDIProgram returns the program for a track output map.
func (s *Store) MIDIProgram(track, mapnum int) int {
	if !validTrackMap(track, mapnum) {
		return ProgNull
	}
	return s.doc.tracks[track].midiProgram[mapnum]
}

// SetMIDIProgram sets the program for a track output map.
func (s *Store) SetMIDIProgram(track, mapnum, program int) {
	if !validTrackMap(track, mapnum) || program < ProgNull || program > 127 {
		log.Printf("song: program invalid: %d %d %d", track, mapnum, program)
		return
	}
	s.doc.tracks[track].midiProgram[mapnum] = program
	s.bus.Fire(event.SongMIDIProgram, track, mapnum, program)
}

// MIDIPortMap returns the port mapping for a track output. Returns -2
// on error, PortDisable when unmapped.
func (s *Store) MIDIPortMap(track, mapnum int) int {
	if !validTrackMap(track, mapnum) {
		return -2
	}
	return s.doc.tracks[track].midiPortMap[mapnum]
}

// SetMIDIPortMap sets the port mapping for a track output.
func (s *Store) SetMIDIPortMap(track, mapnum, port int) {
	if !validTrackMap(track, mapnum) || port < PortDisable || port >= midi.NumTrackOutputs {
		log.Printf("song: port map invalid: %d %d %d", track, mapnum, port)
		return
	}
	s.doc.tracks[track].midiPortMap[mapnum] = port
	s.bus.Fire(event.SongMIDIPortMap, track, mapnum, port)
}

// MIDIChannelMap returns the channel mapping for a track output, or -1
// on error.
func (s *Store) MIDIChannelMap(track, mapnum int) int {
	if !validTrackMap(track, mapnum) {
		return -1
	}
	return s.doc.tracks[track].midiChannel[mapnum]
}

// SetMIDIChannelMap sets the channel mapping for a track output.
func (s *Store) SetMIDIChannelMap(track, mapnum, channel int) {
	if !validTrackMap(track, mapnum) || channel < 0 || channel >= midi.NumChannels {
		log.Printf("song: channel map invalid: %d %d %d", track, mapnum, channel)
		return
	}
	s.doc.tracks[track].midiChannel[mapnum] = channel
	s.bus.Fire(event.SongMIDIChannelMap, track, mapnum, channel)
}

// KeySplit returns the key split mode of a track.
func (s *Store) KeySplit(track int) int {
	if track < 0 || track >= NumTracks {
		return -1
	}
	return s.doc.tracks[track].keySplit
}

// SetKeySplit sets the key split mode of a track.
func (s *Store) SetKeySplit(track, mode int) {
	if track < 0 || track >= NumTracks || mode < KeySplitOff || mode > KeySplitRight {
		log.Printf("song: key split invalid: %d %d", track, mode)
		return
	}
	s.doc.tracks[track].keySplit = mode
	s.bus.Fire(event.SongKeySplit, track, mode)
}

// TrackType returns the type of a track, or -1 on error.
func (s *Store) TrackType(track int) int {
	if track < 0 || track >= NumTracks {
		return -1
	}
	return s.doc.tracks[track].trackType
}

// SetTrackType sets the type of a track.
func (s *Store) SetTrackType(track, mode int) {
	if track < 0 || track >= NumTracks || (mode != TrackTypeVoice && mode != TrackTypeDrum) {
		log.Printf("song: track type invalid: %d %d", track, mode)
		return
	}
	s.doc.tracks[track].trackType = mode
	s.bus.Fire(event.SongTrackType, track, mode)
}

//
// track params (per scene)
//

// StepLength returns the step length id, or -1 on error.
func (s *Store) StepLength(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].stepLen
}

// SetStepLength sets the step length id.
func (s *Store) SetStepLength(scene, track, length int) {
	if !validSceneTrack(scene, track) || length < 0 || length >= ticks.NumStepLens {
		log.Printf("song: step length invalid: %d %d %d", scene, track, length)
		return
	}
	s.doc.scenes[scene][track].stepLen = length
	s.bus.Fire(event.SongStepLen, scene, track, length)
}

// Tonality returns the tonality, or -1 on error.
func (s *Store) Tonality(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].tonality
}

// SetTonality sets the tonality.
func (s *Store) SetTonality(scene, track, tonality int) {
	if !validSceneTrack(scene, track) || tonality < 0 || tonality >= scale.NumScales {
		log.Printf("song: tonality invalid: %d %d %d", scene, track, tonality)
		return
	}
	s.doc.scenes[scene][track].tonality = tonality
	s.bus.Fire(event.SongTonality, scene, track, tonality)
}

// Transpose returns the track transpose, or 0 on error.
func (s *Store) Transpose(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return 0
	}
	return s.doc.scenes[scene][track].transpose
}

// SetTranspose sets the track transpose.
func (s *Store) SetTranspose(scene, track, transpose int) {
	if !validSceneTrack(scene, track) || transpose < TransposeMin || transpose > TransposeMax {
		log.Printf("song: transpose invalid: %d %d %d", scene, track, transpose)
		return
	}
	s.doc.scenes[scene][track].transpose = transpose
	s.bus.Fire(event.SongTranspose, scene, track, transpose)
}

// BiasTrack returns the bias track, or BiasTrackNull on error.
func (s *Store) BiasTrack(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return BiasTrackNull
	}
	return s.doc.scenes[scene][track].biasTrack
}

// SetBiasTrack sets the bias track.
func (s *Store) SetBiasTrack(scene, track, biasTrack int) {
	if !validSceneTrack(scene, track) || biasTrack < BiasTrackNull || biasTrack >= NumTracks {
		log.Printf("song: bias track invalid: %d %d %d", scene, track, biasTrack)
		return
	}
	s.doc.scenes[scene][track].biasTrack = biasTrack
	s.bus.Fire(event.SongBiasTrack, scene, track, biasTrack)
}

// MotionStart returns the motion window start, or -1 on error.
func (s *Store) MotionStart(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].motionStart
}

// SetMotionStart sets the motion window start.
func (s *Store) SetMotionStart(scene, track, start int) {
	if !validSceneTrack(scene, track) || start < 0 || start >= NumSteps {
		log.Printf("song: motion start invalid: %d %d %d", scene, track, start)
		return
	}
	s.doc.scenes[scene][track].motionStart = start
	s.bus.Fire(event.SongMotionStart, scene, track, start)
}

// MotionLength returns the motion window length, or -1 on error.
func (s *Store) MotionLength(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].motionLength
}

// SetMotionLength sets the motion window length.
func (s *Store) SetMotionLength(scene, track, length int) {
	if !validSceneTrack(scene, track) || length < 1 || length > NumSteps {
		log.Printf("song: motion length invalid: %d %d %d", scene, track, length)
		return
	}
	s.doc.scenes[scene][track].motionLength = length
	s.bus.Fire(event.SongMotionLength, scene, track, length)
}

// GateTime returns the track gate time override, or -1 on error.
func (s *Store) GateTime(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].gateTime
}

// SetGateTime sets the track gate time override (0x80 = 100%).
func (s *Store) SetGateTime(scene, track, time int) {
	if !validSceneTrack(scene, track) || time < GateTimeMin || time > GateTimeMax {
		log.Printf("song: gate time invalid: %d %d %d", scene, track, time)
		return
	}
	s.doc.scenes[scene][track].gateTime = time
	s.bus.Fire(event.SongGateTime, scene, track, time)
}

// PatternType returns the pattern index for a track, or -1 on error.
func (s *Store) PatternType(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].patternType
}

// SetPatternType sets the pattern index for a track.
func (s *Store) SetPatternType(scene, track, pat int) {
	if !validSceneTrack(scene, track) || pat < 0 || pat > 31 {
		log.Printf("song: pattern type invalid: %d %d %d", scene, track, pat)
		return
	}
	s.doc.scenes[scene][track].patternType = pat
	s.bus.Fire(event.SongPatternType, scene, track, pat)
}

// MotionDir returns 1 for reverse playback, or -1 on error.
func (s *Store) MotionDir(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].motionDir
}

// SetMotionDir sets the playback direction, 1 = reverse.
func (s *Store) SetMotionDir(scene, track, reverse int) {
	if !validSceneTrack(scene, track) {
		log.Printf("song: motion dir invalid: %d %d", scene, track)
		return
	}
	s.doc.scenes[scene][track].motionDir = boolVal(reverse)
	s.bus.Fire(event.SongMotionDir, scene, track, s.doc.scenes[scene][track].motionDir)
}

// Mute returns the mute state of a track, or -1 on error.
func (s *Store) Mute(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].mute
}

// SetMute sets the mute state of a track.
func (s *Store) SetMute(scene, track, mute int) {
	if !validSceneTrack(scene, track) {
		log.Printf("song: mute invalid: %d %d", scene, track)
		return
	}
	s.doc.scenes[scene][track].mute = boolVal(mute)
	s.bus.Fire(event.SongMute, scene, track, s.doc.scenes[scene][track].mute)
}

// ArpType returns the arp type on a track, or -1 on error.
func (s *Store) ArpType(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].arpType
}

// SetArpType sets the arp type on a track.
func (s *Store) SetArpType(scene, track, typ int) {
	if !validSceneTrack(scene, track) || typ < 0 || typ >= NumArpTypes {
		log.Printf("song: arp type invalid: %d %d %d", scene, track, typ)
		return
	}
	s.doc.scenes[scene][track].arpType = typ
	s.bus.Fire(event.SongArpType, scene, track, typ)
}

// ArpSpeed returns the arp speed (a step length id), or -1 on error.
func (s *Store) ArpSpeed(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].arpSpeed
}

// SetArpSpeed sets the arp speed.
func (s *Store) SetArpSpeed(scene, track, speed int) {
	if !validSceneTrack(scene, track) || speed < 0 || speed >= ticks.NumStepLens {
		log.Printf("song: arp speed invalid: %d %d %d", scene, track, speed)
		return
	}
	s.doc.scenes[scene][track].arpSpeed = speed
	s.bus.Fire(event.SongArpSpeed, scene, track, speed)
}

// ArpGateTime returns the arp gate time in ticks, or -1 on error.
func (s *Store) ArpGateTime(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].arpGateTime
}

// SetArpGateTime sets the arp gate time in ticks.
func (s *Store) SetArpGateTime(scene, track, time int) {
	if !validSceneTrack(scene, track) || time < ArpGateTimeMin || time > ArpGateTimeMax {
		log.Printf("song: arp gate time invalid: %d %d %d", scene, track, time)
		return
	}
	s.doc.scenes[scene][track].arpGateTime = time
	s.bus.Fire(event.SongArpGateTime, scene, track, time)
}

// ArpEnable returns whether the arp is enabled on a track.
func (s *Store) ArpEnable(scene, track int) int {
	if !validSceneTrack(scene, track) {
		return -1
	}
	return s.doc.scenes[scene][track].arpEnable
}

// SetArpEnable sets whether the arp is enabled on a track.
func (s *Store) SetArpEnable(scene, track, enable int) {
	if !validSceneTrack(scene, track) {
		log.Printf("song: arp enable invalid: %d %d", scene, track)
		return
	}
	s.doc.scenes[scene][track].arpEnable = boolVal(enable)
	s.bus.Fire(event.SongArpEnable, scene, track, s.doc.scenes[scene][track].arpEnable)
}

// Arp type ids and gate time range, shared with the arp package.
const (
	ArpTypeUp1 = iota
	ArpTypeDown1
	ArpTypeUpDown1
	ArpTypeRandom1
	ArpTypeUp2
	ArpTypeDown2
	ArpTypeUpDown2
	ArpTypeRandom2
	ArpTypeUp3
	ArpTypeDown3
	ArpTypeUpDown3
	ArpTypeRandom3
	ArpTypeAsPlayed
	ArpTypeReverse
	NumArpTypes

	ArpGateTimeMin = 1
	ArpGateTimeMax = 384
)

func validTrackMap(track, mapnum int) bool {
	return track >= 0 && track < NumTracks && mapnum >= 0 && mapnum < NumTrackOutputs
}

func boolVal(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}
