package arp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kilpatrickaudio/carbon/internal/song"
)

func collect(a *Arp, n int) []int {
	var out []int
	for i := 0; i < n; i++ {
		note, _, ok := a.Next()
		if !ok {
			break
		}
		out = append(out, note)
	}
	return out
}

func TestEmptyArpYieldsNothing(t *testing.T) {
	a := New(1)
	_, _, ok := a.Next()
	assert.False(t, ok)
	assert.True(t, a.Empty())
}

func TestUpOrder(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeUp1)
	a.AddNote(64, 100)
	a.AddNote(60, 100)
	a.AddNote(67, 100)
	assert.Equal(t, []int{60, 64, 67, 60, 64, 67}, collect(a, 6))
}

func TestDownOrder(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeDown1)
	a.AddNote(60, 100)
	a.AddNote(64, 100)
	a.AddNote(67, 100)
	assert.Equal(t, []int{67, 64, 60}, collect(a, 3))
}

func TestUpDownSkipsEndpoints(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeUpDown1)
	a.AddNote(60, 100)
	a.AddNote(64, 100)
	a.AddNote(67, 100)
	// up then back down without repeating the top or bottom
	assert.Equal(t, []int{60, 64, 67, 64, 60, 64, 67, 64}, collect(a, 8))
}

func TestTwoOctaves(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeUp2)
	a.AddNote(60, 100)
	a.AddNote(64, 100)
	assert.Equal(t, []int{60, 64, 72, 76}, collect(a, 4))
}

func TestOctaveExpansionClampsAt127(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeUp3)
	a.AddNote(120, 100)
	assert.Equal(t, []int{120, 120}, collect(a, 2)) // 132 and 144 dropped
}

func TestAsPlayedKeepsArrivalOrder(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeAsPlayed)
	a.AddNote(67, 100)
	a.AddNote(60, 100)
	a.AddNote(64, 100)
	assert.Equal(t, []int{67, 60, 64}, collect(a, 3))
}

func TestRemoveNoteRebuilds(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeUp1)
	a.AddNote(60, 100)
	a.AddNote(64, 100)
	a.AddNote(67, 100)
	a.RemoveNote(64)
	assert.Equal(t, []int{60, 67, 60}, collect(a, 3))
}

func TestRandomStaysInHeldSet(t *testing.T) {
	a := New(42)
	a.SetType(song.ArpTypeRandom1)
	a.AddNote(60, 100)
	a.AddNote(64, 100)
	held := map[int]bool{60: true, 64: true}
	for i := 0; i < 50; i++ {
		note, _, ok := a.Next()
		assert.True(t, ok)
		assert.True(t, held[note], "note %d not held", note)
	}
}

func TestVelocityTravelsWithNote(t *testing.T) {
	a := New(1)
	a.SetType(song.ArpTypeUp1)
	a.AddNote(60, 99)
	note, velocity, ok := a.Next()
	assert.True(t, ok)
	assert.Equal(t, 60, note)
	assert.Equal(t, 99, velocity)
}
