// Package scale holds the tonality tables and note quantizer.
package scale

import (
	"fmt"
	"strings"
)

// Tonality ids.
const (
	Chromatic = iota
	Major
	NatMinor
	HarMinor
	Dorian
	Whole
	Pent
	Dim
	Phrygian
	Lydian
	Mixolydian
	Locrian
	PentMinor
	Blues
	HalfDim
	SevenChord
	NumScales
)

// Degree tables: semitone offsets within one octave, ascending.
var degrees = [NumScales][]int{
	Chromatic:  nil, // identity
	Major:      {0, 2, 4, 5, 7, 9, 11},
	NatMinor:   {0, 2, 3, 5, 7, 8, 10},
	HarMinor:   {0, 2, 3, 5, 7, 8, 11},
	Dorian:     {0, 2, 3, 5, 7, 9, 10},
	Whole:      {0, 2, 4, 6, 8, 10},
	Pent:       {0, 2, 4, 7, 9},
	Dim:        {0, 2, 3, 5, 6, 8, 9, 11},
	Phrygian:   {0, 1, 3, 5, 7, 8, 10},
	Lydian:     {0, 2, 4, 6, 7, 9, 11},
	Mixolydian: {0, 2, 4, 5, 7, 9, 10},
	Locrian:    {0, 1, 3, 5, 6, 8, 10},
	PentMinor:  {0, 3, 5, 7, 10},
	Blues:      {0, 3, 5, 6, 7, 10},
	HalfDim:    {0, 2, 3, 5, 6, 8, 10},
	SevenChord: {0, 4, 7, 11},
}

var names = [NumScales]string{
	"Chromatic", "Major", "Nat Minor", "Har Minor", "Dorian", "Whole",
	"Pentatonic", "Diminished", "Phrygian", "Lydian", "Mixolydian",
	"Locrian", "Min Pent", "Blues", "Half Dim", "Seven Chord",
}

// Name returns the display name of a tonality.
func Name(scale int) string {
	if scale < 0 || scale >= NumScales {
		return ""
	}
	return names[scale]
}

// Quantize snaps a note down to the nearest degree of the scale at or
// below it, preserving the octave.
func Quantize(note, scale int) int {
	if scale <= Chromatic || scale >= NumScales {
		return note
	}
	shift := (note / 12) * 12
	nt := note - shift
	table := degrees[scale]
	for i := len(table) - 1; i >= 0; i-- {
		if table[i] <= nt {
			nt = table[i]
			break
		}
	}
	return nt + shift
}

// NoteName converts a MIDI note number (0-127) to a 3 character name
// like "c-4" or "f#2". MIDI note 60 = C4.
func NoteName(midiNote int) string {
	if midiNote < 0 || midiNote > 127 {
		return "---"
	}
	noteNames := []string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}
	octave := (midiNote / 12) - 1
	name := noteNames[midiNote%12]
	if strings.Contains(name, "#") {
		if octave < 0 {
			return fmt.Sprintf("%s%d", name, -octave)
		}
		return fmt.Sprintf("%s%d", name, octave)
	}
	if octave < 0 {
		return fmt.Sprintf("%s-%d", name, -octave)
	}
	return fmt.Sprintf("%s-%d", name, octave)
}
