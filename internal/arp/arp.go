// Package arp turns a held-note set into an ordered repeating stream of
// notes. The sequence is rebuilt whenever the held set or the type
// changes; Next yields one note per arp step.
package arp

import (
	"math/rand"
	"sort"

	"github.com/kilpatrickaudio/carbon/internal/song"
)

const maxHeldNotes = 16

type heldNote struct {
	note     int
	velocity int
}

// Arp generates the note stream for one track.
type Arp struct {
	typ  int
	held []heldNote // in played order
	seq  []heldNote
	pos  int
	rnd  *rand.Rand
}

// New creates an arp. The random type uses its own seeded source so
// playback stays deterministic for a given seed.
func New(seed int64) *Arp {
	return &Arp{
		typ: song.ArpTypeUp1,
		rnd: rand.New(rand.NewSource(seed)),
	}
}

// SetType changes the arp type and rebuilds the sequence.
func (a *Arp) SetType(typ int) {
	if typ < 0 || typ >= song.NumArpTypes {
		return
	}
	a.typ = typ
	a.rebuild()
}

// AddNote adds a held note. Re-adding a note updates its velocity.
func (a *Arp) AddNote(note, velocity int) {
	if note < 0 || note > 127 {
		return
	}
	for i := range a.held {
		if a.held[i].note == note {
			a.held[i].velocity = velocity
			pos := a.pos
			a.rebuild()
			a.pos = pos
			return
		}
	}
	if len(a.held) >= maxHeldNotes {
		return
	}
	a.held = append(a.held, heldNote{note: note, velocity: velocity})
	a.rebuild()
}

// RemoveNote removes a held note.
func (a *Arp) RemoveNote(note int) {
	for i := range a.held {
		if a.held[i].note == note {
			a.held = append(a.held[:i], a.held[i+1:]...)
			a.rebuild()
			return
		}
	}
}

// Clear removes all held notes.
func (a *Arp) Clear() {
	a.held = a.held[:0]
	a.seq = a.seq[:0]
	a.pos = 0
}

// Empty reports whether no notes are held.
func (a *Arp) Empty() bool {
	return len(a.held) == 0
}

// Next returns the next note and velocity of the stream. ok is false
// when no notes are held.
func (a *Arp) Next() (note, velocity int, ok bool) {
	if len(a.seq) == 0 {
		return 0, 0, false
	}
	var n heldNote
	if isRandom(a.typ) {
		n = a.seq[a.rnd.Intn(len(a.seq))]
	} else {
		if a.pos >= len(a.seq) {
			a.pos = 0
		}
		n = a.seq[a.pos]
		a.pos++
	}
	return n.note, n.velocity, true
}

// Reset restarts the stream from the beginning.
func (a *Arp) Reset() {
	a.pos = 0
}

func isRandom(typ int) bool {
	return typ == song.ArpTypeRandom1 || typ == song.ArpTypeRandom2 || typ == song.ArpTypeRandom3
}

func octaves(typ int) int {
	switch typ {
	case song.ArpTypeUp2, song.ArpTypeDown2, song.ArpTypeUpDown2, song.ArpTypeRandom2:
		return 2
	case song.ArpTypeUp3, song.ArpTypeDown3, song.ArpTypeUpDown3, song.ArpTypeRandom3:
		return 3
	}
	return 1
}

// rebuild recomputes the ordered sequence from the held set.
func (a *Arp) rebuild() {
	a.seq = a.seq[:0]
	a.pos = 0
	if len(a.held) == 0 {
		return
	}

	// as-played types keep the order the notes arrived in
	if a.typ == song.ArpTypeAsPlayed {
		a.seq = append(a.seq, a.held...)
		return
	}
	if a.typ == song.ArpTypeReverse {
		for i := len(a.held) - 1; i >= 0; i-- {
			a.seq = append(a.seq, a.held[i])
		}
		return
	}

	base := make([]heldNote, len(a.held))
	copy(base, a.held)
	sort.Slice(base, func(i, j int) bool { return base[i].note < base[j].note })

	var up []heldNote
	for oct := 0; oct < octaves(a.typ); oct++ {
		for _, n := range base {
			note := n.note + oct*12
			if note > 127 {
				continue
			}
			up = append(up, heldNote{note: note, velocity: n.velocity})
		}
	}
	if len(up) == 0 {
		return
	}

	switch a.typ {
	case song.ArpTypeUp1, song.ArpTypeUp2, song.ArpTypeUp3,
		song.ArpTypeRandom1, song.ArpTypeRandom2, song.ArpTypeRandom3:
		a.seq = up
	case song.ArpTypeDown1, song.ArpTypeDown2, song.ArpTypeDown3:
		for i := len(up) - 1; i >= 0; i-- {
			a.seq = append(a.seq, up[i])
		}
	case song.ArpTypeUpDown1, song.ArpTypeUpDown2, song.ArpTypeUpDown3:
		a.seq = append(a.seq, up...)
		// come back down skipping the repeated end points
		for i := len(up) - 2; i >= 1; i-- {
			a.seq = append(a.seq, up[i])
		}
	}
}
