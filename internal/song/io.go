package song

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
)

// versionSceneSync is the first format version carrying the scene sync,
// magic and CV offset fields.
const versionSceneSync = 1<<16 | 13

// Load starts loading a song from flash into RAM. Change events are not
// generated per field; consumers use SongLoaded to refresh their state.
func (s *Store) Load(songNum int) error {
	if songNum < 0 || songNum >= NumSongs {
		return fmt.Errorf("song: load num invalid: %d", songNum)
	}
	if err := s.dev.Load(flash.SongOffset+FileSize*songNum, FileSize); err != nil {
		log.Printf("song: load start: %v", err)
		return err
	}
	s.ioSong = songNum
	s.ioState = ioLoad
	return nil
}

// Save starts saving the current song from RAM to flash.
func (s *Store) Save(songNum int) error {
	if songNum < 0 || songNum >= NumSongs {
		return fmt.Errorf("song: save num invalid: %d", songNum)
	}
	buf := make([]byte, FileSize)
	s.encode(buf)
	if err := s.dev.Save(flash.SongOffset+FileSize*songNum, FileSize, buf); err != nil {
		log.Printf("song: save start: %v", err)
		return err
	}
	s.ioSong = songNum
	s.ioState = ioSave
	return nil
}

// Tick runs the load/save task.
func (s *Store) Tick() {
	if s.ioState == ioIdle {
		return
	}
	switch s.dev.State() {
	case flash.StateLoad, flash.StateSave:
		// transfer in progress
	case flash.StateLoadError:
		s.ioState = ioIdle
		s.bus.Fire(event.SongLoadError, s.ioSong)
		s.Clear()
	case flash.StateLoadDone:
		s.ioState = ioIdle
		if err := s.decode(s.dev.Buffer()); err != nil {
			log.Printf("song: load: %v", err)
			s.Clear()
			s.bus.Fire(event.SongLoadError, s.ioSong)
		} else {
			s.bus.Fire(event.SongLoaded, s.ioSong)
		}
	case flash.StateSaveError:
		s.ioState = ioIdle
		s.bus.Fire(event.SongSaveError, s.ioSong)
	case flash.StateSaveDone:
		s.ioState = ioIdle
		s.bus.Fire(event.SongSaved, s.ioSong)
	default:
		s.ioState = ioIdle
		log.Printf("song: io task found idle flash")
	}
}

// cursor walks a byte buffer big-endian field by field.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) putU32(v uint32) {
	binary.BigEndian.PutUint32(c.buf[c.pos:], v)
	c.pos += 4
}

func (c *cursor) putI32(v int) { c.putU32(uint32(int32(v))) }

func (c *cursor) putI16(v int) {
	binary.BigEndian.PutUint16(c.buf[c.pos:], uint16(int16(v)))
	c.pos += 2
}

func (c *cursor) putI8(v int) {
	c.buf[c.pos] = byte(int8(v))
	c.pos++
}

func (c *cursor) u32() uint32 {
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) i32() int { return int(int32(c.u32())) }

func (c *cursor) i16() int {
	v := int16(binary.BigEndian.Uint16(c.buf[c.pos:]))
	c.pos += 2
	return int(v)
}

func (c *cursor) i8() int {
	v := int8(c.buf[c.pos])
	c.pos++
	return int(v)
}

// encode writes the document into a song block. The version is the
// first field and the magic number fills the last 4 bytes of the block.
func (s *Store) encode(buf []byte) {
	c := &cursor{buf: buf}
	d := &s.doc

	c.putU32(uint32(CurrentVersion))
	c.putU32(math.Float32bits(d.tempo))
	c.putI8(d.swing)
	c.putI8(d.metronomeMode)
	c.putI8(d.metronomeLen)
	c.putI8(d.keyVelocityScale)
	c.putI8(d.cvBendRange)
	c.putI8(d.cvGatePairs)
	for i := 0; i < 4; i++ {
		c.putI8(d.cvGatePairMode[i])
	}
	for i := 0; i < 4; i++ {
		c.putI8(d.cvOutputScaling[i])
	}
	for i := 0; i < 4; i++ {
		c.putI16(d.cvCal[i])
	}
	for i := 0; i < 4; i++ {
		c.putI16(d.cvOffset[i])
	}
	for i := range d.clockOut {
		c.putI8(d.clockOut[i])
	}
	c.putI8(d.midiClockSource)
	c.putI8(d.midiRemoteCtrl)
	c.putI8(d.midiAutolive)
	c.putI8(d.sceneSync)
	c.putI8(d.magicRange)
	c.putI8(d.magicChance)

	for i := 0; i < ListEntries; i++ {
		c.putI8(d.list[i].scene)
		c.putI16(d.list[i].lengthBeats)
		c.putI8(d.list[i].kbtrans)
	}

	for t := 0; t < NumTracks; t++ {
		for m := 0; m < NumTrackOutputs; m++ {
			c.putI8(d.tracks[t].midiProgram[m])
			c.putI8(d.tracks[t].midiPortMap[m])
			c.putI8(d.tracks[t].midiChannel[m])
		}
		c.putI8(d.tracks[t].keySplit)
		c.putI8(d.tracks[t].trackType)
	}

	for sc := 0; sc < NumScenes; sc++ {
		for t := 0; t < NumTracks; t++ {
			p := &d.scenes[sc][t]
			c.putI8(p.stepLen)
			c.putI8(p.tonality)
			c.putI8(p.transpose)
			c.putI8(p.biasTrack)
			c.putI8(p.motionStart)
			c.putI8(p.motionLength)
			c.putI8(p.gateTime)
			c.putI8(p.patternType)
			c.putI8(p.motionDir)
			c.putI8(p.mute)
			c.putI8(p.arpType)
			c.putI8(p.arpSpeed)
			c.putI16(p.arpGateTime)
			c.putI8(p.arpEnable)
		}
	}

	for es := 0; es < numEventScenes; es++ {
		for t := 0; t < NumTracks; t++ {
			for st := 0; st < NumSteps; st++ {
				sp := &d.steps[es][t][st]
				for slot := 0; slot < TrackPoly; slot++ {
					ev := &sp.events[slot]
					c.putI8(ev.Type)
					c.putI8(ev.Data0)
					c.putI8(ev.Data1)
					c.putI8(0) // pad
					c.putI16(ev.Length)
				}
				c.putI8(sp.startDelay)
				c.putI8(sp.ratchet)
			}
		}
	}

	binary.BigEndian.PutUint32(buf[len(buf)-4:], magicNum)
}

// decode parses a song block into the document. The magic number is
// validated first so a bad image never replaces the RAM copy.
func (s *Store) decode(buf []byte) error {
	if len(buf) < FileSize {
		return fmt.Errorf("short song block: %d", len(buf))
	}
	if binary.BigEndian.Uint32(buf[FileSize-4:]) != magicNum {
		return fmt.Errorf("bad magic number")
	}
	c := &cursor{buf: buf}
	d := &s.doc

	d.version = int(c.u32())
	d.tempo = math.Float32frombits(c.u32())
	d.swing = c.i8()
	d.metronomeMode = c.i8()
	d.metronomeLen = c.i8() & 0xff
	d.keyVelocityScale = c.i8()
	d.cvBendRange = c.i8()
	d.cvGatePairs = c.i8()
	for i := 0; i < 4; i++ {
		d.cvGatePairMode[i] = c.i8()
	}
	for i := 0; i < 4; i++ {
		d.cvOutputScaling[i] = c.i8()
	}
	for i := 0; i < 4; i++ {
		d.cvCal[i] = c.i16()
	}
	for i := 0; i < 4; i++ {
		d.cvOffset[i] = c.i16()
	}
	for i := range d.clockOut {
		d.clockOut[i] = c.i8()
	}
	d.midiClockSource = c.i8()
	d.midiRemoteCtrl = c.i8()
	d.midiAutolive = c.i8()
	d.sceneSync = c.i8()
	d.magicRange = c.i8()
	d.magicChance = c.i8()

	for i := 0; i < ListEntries; i++ {
		d.list[i].scene = c.i8()
		d.list[i].lengthBeats = c.i16()
		d.list[i].kbtrans = c.i8()
	}

	for t := 0; t < NumTracks; t++ {
		for m := 0; m < NumTrackOutputs; m++ {
			d.tracks[t].midiProgram[m] = c.i8()
			d.tracks[t].midiPortMap[m] = c.i8()
			d.tracks[t].midiChannel[m] = c.i8()
		}
		d.tracks[t].keySplit = c.i8()
		d.tracks[t].trackType = c.i8()
	}

	for sc := 0; sc < NumScenes; sc++ {
		for t := 0; t < NumTracks; t++ {
			p := &d.scenes[sc][t]
			p.stepLen = c.i8()
			p.tonality = c.i8()
			p.transpose = c.i8()
			p.biasTrack = c.i8()
			p.motionStart = c.i8()
			p.motionLength = c.i8()
			p.gateTime = c.i8() & 0xff
			p.patternType = c.i8()
			p.motionDir = c.i8()
			p.mute = c.i8()
			p.arpType = c.i8()
			p.arpSpeed = c.i8()
			p.arpGateTime = c.i16()
			p.arpEnable = c.i8()
		}
	}

	for es := 0; es < numEventScenes; es++ {
		for t := 0; t < NumTracks; t++ {
			for st := 0; st < NumSteps; st++ {
				sp := &d.steps[es][t][st]
				for slot := 0; slot < TrackPoly; slot++ {
					ev := &sp.events[slot]
					ev.Type = c.i8() & 0xff
					ev.Data0 = c.i8() & 0x7f
					ev.Data1 = c.i8() & 0x7f
					c.i8() // pad
					ev.Length = c.i16()
				}
				sp.startDelay = c.i8()
				sp.ratchet = c.i8()
			}
		}
	}

	// fields that postdate the stored version keep their defaults
	if d.version < versionSceneSync {
		d.sceneSync = SceneSyncBeat
		d.magicRange = 12
		d.magicChance = 100
		for i := 0; i < 4; i++ {
			d.cvOffset[i] = 0
		}
	}
	d.magic = magicNum
	return nil
}
