// Package outproc is the track output processor. Every outbound track
// event flows through here: port and channel are rewritten from the
// track's output maps, notes are quantized to the track tonality and
// transposed, and active notes are tracked so every note on is
// eventually matched by a note off even when the scale or transpose
// changes while the note sounds.
package outproc

import (
	"log"

	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/scale"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

// MaxNotes is the number of concurrently tracked notes per track.
const MaxNotes = 16

// Deliver selects which of the two track output maps receive a message.
const (
	DeliverA = iota
	DeliverB
	DeliverBoth
)

// Output processing selector.
const (
	OutputRaw = iota
	OutputProcessed
)

// Sender transmits finished messages to the transports.
type Sender interface {
	Send(msg midi.Msg)
}

// Processor tracks active notes and applies note processing per track.
type Processor struct {
	notes     [song.NumTracks][MaxNotes]midi.Msg // stored note on msgs, zero Status = free
	transpose [song.NumTracks]int
	tonality  [song.NumTracks]int

	currentScene int
	songStore    *song.Store
	sender       Sender
}

// New creates a processor with chromatic tonality and no transpose.
func New(songStore *song.Store, sender Sender) *Processor {
	p := &Processor{songStore: songStore, sender: sender}
	for t := 0; t < song.NumTracks; t++ {
		p.tonality[t] = scale.Chromatic
	}
	return p
}

// SetCurrentScene tells the processor which scene is playing so
// change notifications for other scenes are ignored.
func (p *Processor) SetCurrentScene(scene int) {
	p.currentScene = scene
}

// process applies the track's current tonality and transpose to a note
// number.
func (p *Processor) process(track int, note byte) int {
	return scale.Quantize(int(note), p.tonality[track]) + p.transpose[track]
}

// TransposeChanged retunes sounding notes after a transpose change: a
// note off at the old pitch then a note on at the new pitch for every
// active note. A note whose new pitch leaves 0-127 is just released.
func (p *Processor) TransposeChanged(scene, track int) {
	if track < 0 || track >= song.NumTracks {
		log.Printf("outproc: transpose track invalid: %d", track)
		return
	}
	if scene != p.currentScene {
		return
	}
	newTranspose := p.songStore.Transpose(scene, track)
	if p.NumNotes(track) == 0 {
		p.transpose[track] = newTranspose
		return
	}
	if newTranspose == p.transpose[track] {
		return
	}
	for i := 0; i < MaxNotes; i++ {
		on := p.notes[track][i]
		if on.Status == 0 {
			continue
		}
		// release at the pitch the note is currently sounding at
		off := midi.NoteOnToOff(on)
		off.Data0 = byte(p.process(track, on.Data0))
		p.Deliver(scene, track, off, DeliverBoth, OutputRaw)

		renote := scale.Quantize(int(on.Data0), p.tonality[track]) + newTranspose
		if renote < 0 || renote > 127 {
			p.notes[track][i] = midi.Msg{} // free the slot
			continue
		}
		on.Data0 = byte(renote)
		p.Deliver(scene, track, on, DeliverBoth, OutputRaw)
	}
	p.transpose[track] = newTranspose
}

// TonalityChanged releases sounding notes at their old pitch after a
// tonality change and restates them quantized to the new scale.
func (p *Processor) TonalityChanged(scene, track int) {
	if track < 0 || track >= song.NumTracks {
		log.Printf("outproc: tonality track invalid: %d", track)
		return
	}
	if scene != p.currentScene {
		return
	}
	newTonality := p.songStore.Tonality(scene, track)
	if p.NumNotes(track) == 0 {
		p.tonality[track] = newTonality
		return
	}
	if newTonality == p.tonality[track] {
		return
	}
	for i := 0; i < MaxNotes; i++ {
		on := p.notes[track][i]
		if on.Status == 0 {
			continue
		}
		off := midi.NoteOnToOff(on)
		off.Data0 = byte(p.process(track, on.Data0))
		p.Deliver(scene, track, off, DeliverBoth, OutputRaw)

		renote := scale.Quantize(int(on.Data0), newTonality) + p.transpose[track]
		if renote < 0 || renote > 127 {
			p.notes[track][i] = midi.Msg{}
			continue
		}
		on.Data0 = byte(renote)
		p.Deliver(scene, track, on, DeliverBoth, OutputRaw)
	}
	p.tonality[track] = newTonality
}

// Deliver generates a message for each mapped output port of the track.
// With OutputProcessed, notes are tracked and run through scale and
// transpose processing; raw delivery sends the message as is.
func (p *Processor) Deliver(scene, track int, msg midi.Msg, deliver, process int) {
	for out := 0; out < song.NumTrackOutputs; out++ {
		if deliver == DeliverA && out == 1 {
			continue
		}
		if deliver == DeliverB && out == 0 {
			continue
		}
		port := p.songStore.MIDIPortMap(track, out)
		if port < 0 {
			continue // unmapped
		}
		channel := p.songStore.MIDIChannelMap(track, out)

		switch msg.Kind() {
		case midi.NoteOff:
			send := midi.NewNoteOff(port, channel, msg.Data0, msg.Data1)
			if process == OutputProcessed {
				p.dequeueNote(track, send)
				send.Data0 = byte(p.process(track, send.Data0) & 0x7f)
			}
			p.sender.Send(send)
		case midi.NoteOn:
			send := midi.NewNoteOn(port, channel, msg.Data0, msg.Data1)
			if process == OutputProcessed {
				if !p.enqueueNote(track, send) {
					return // no free slots - drop the note
				}
				send.Data0 = byte(p.process(track, send.Data0) & 0x7f)
			}
			p.sender.Send(send)
		case midi.PolyKeyPressure:
			send := midi.NewKeyPressure(port, channel, msg.Data0, msg.Data1)
			if process == OutputProcessed {
				send.Data0 = byte(p.process(track, send.Data0) & 0x7f)
			}
			p.sender.Send(send)
		case midi.ControlChange:
			p.sender.Send(midi.NewControlChange(port, channel, msg.Data0, msg.Data1))
		case midi.ProgramChange:
			p.sender.Send(midi.NewProgramChange(port, channel, msg.Data0))
		case midi.ChannelPressure:
			p.sender.Send(midi.NewChannelPressure(port, channel, msg.Data0))
		case midi.PitchBend:
			p.sender.Send(midi.NewPitchBend(port, channel, msg.BendValue()))
		}
	}
}

// StopAllNotes releases every active note on a track.
func (p *Processor) StopAllNotes(track int) {
	if track < 0 || track >= song.NumTracks {
		log.Printf("outproc: stop all track invalid: %d", track)
		return
	}
	for i := 0; i < MaxNotes; i++ {
		on := p.notes[track][i]
		if on.Status == 0 {
			continue
		}
		off := midi.NoteOnToOff(on)
		off.Data0 = byte(p.process(track, on.Data0))
		p.Deliver(p.currentScene, track, off, DeliverBoth, OutputRaw)
		p.notes[track][i] = midi.Msg{}
	}
}

// NumNotes returns the number of currently tracked notes on a track.
func (p *Processor) NumNotes(track int) int {
	count := 0
	for i := 0; i < MaxNotes; i++ {
		if p.notes[track][i].Status != 0 {
			count++
		}
	}
	return count
}

// enqueueNote stores a sounding note so it can be retuned or released
// later. Returns false when the table is full.
func (p *Processor) enqueueNote(track int, on midi.Msg) bool {
	for i := 0; i < MaxNotes; i++ {
		if p.notes[track][i].Status == 0 {
			p.notes[track][i] = on
			return true
		}
	}
	return false
}

// dequeueNote frees the slot holding the note on matching a note off.
func (p *Processor) dequeueNote(track int, off midi.Msg) {
	for i := 0; i < MaxNotes; i++ {
		if p.notes[track][i].Status != 0 && midi.SameNote(p.notes[track][i], off) {
			p.notes[track][i] = midi.Msg{}
			return
		}
	}
}
