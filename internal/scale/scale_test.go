package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantizeChromaticIsIdentity(t *testing.T) {
	for n := 0; n <= 127; n++ {
		assert.Equal(t, n, Quantize(n, Chromatic))
	}
}

func TestQuantizeMajor(t *testing.T) {
	// C major: non-degrees snap down to the degree below
	cases := map[int]int{
		60: 60, // c
		61: 60, // c# -> c
		62: 62, // d
		63: 62, // d# -> d
		64: 64, // e
		65: 65, // f
		66: 65, // f# -> f
		67: 67, // g
		70: 69, // a# -> a
		71: 71, // b
	}
	for in, want := range cases {
		assert.Equal(t, want, Quantize(in, Major), "note %d", in)
	}
}

func TestQuantizePreservesOctave(t *testing.T) {
	assert.Equal(t, 48, Quantize(49, Major))
	assert.Equal(t, 108, Quantize(109, Major))
	assert.Equal(t, 0, Quantize(1, Major))
}

func TestQuantizeWholeTone(t *testing.T) {
	// whole tone: 0 2 4 6 8 10
	assert.Equal(t, 60, Quantize(60, Whole))
	assert.Equal(t, 64, Quantize(65, Whole)) // f -> e
	assert.Equal(t, 66, Quantize(67, Whole)) // g -> f#
}

func TestQuantizeOutOfRangeScale(t *testing.T) {
	assert.Equal(t, 61, Quantize(61, -1))
	assert.Equal(t, 61, Quantize(61, NumScales))
}

func TestName(t *testing.T) {
	assert.Equal(t, "Chromatic", Name(Chromatic))
	assert.Equal(t, "Seven Chord", Name(SevenChord))
	assert.Equal(t, "", Name(NumScales))
}

func TestNoteName(t *testing.T) {
	assert.Equal(t, "c-4", NoteName(60))
	assert.Equal(t, "a-0", NoteName(21))
	assert.Equal(t, "f#2", NoteName(42))
	assert.Equal(t, "c-1", NoteName(0))
	assert.Equal(t, "---", NoteName(-1))
	assert.Equal(t, "---", NoteName(128))
}
