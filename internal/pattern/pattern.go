// Package pattern holds the bank of 32 step-enable masks. Patterns 0-30
// are editable 8x8 bitmasks backed by the config store; pattern 31 is
// the read-only "as recorded" sentinel whose enables track which steps
// hold events.
package pattern

import (
	"log"

	"github.com/kilpatrickaudio/carbon/internal/config"
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

const (
	NumPatterns = 32
	AsRecorded  = 31
	numRows     = 8

	validToken       = 0x50415454 // "PATT" in big endian
	validTokenOffset = 64        // cells past the bank start
)

// ROM patterns used when the config data is blank.
var romPatterns = [NumPatterns][numRows]uint8{
	{0x28, 0x24, 0x14, 0x0e, 0x0e, 0x54, 0x24, 0x08}, // Kilpatrick
	{0x3c, 0x3c, 0xc3, 0xdb, 0xdb, 0xc3, 0x3c, 0x3c}, // Centre Squares
	{0x18, 0x18, 0x18, 0xe7, 0xe7, 0x18, 0x18, 0x18}, // Fan
	{0x6c, 0x6c, 0x6c, 0xe7, 0xe7, 0x36, 0x36, 0x36}, // Widget
	{0x3c, 0x3c, 0x3c, 0xe7, 0xe7, 0x3c, 0x3c, 0x3c}, // Second Aid
	{0xff, 0x99, 0x99, 0xff, 0xff, 0x99, 0x99, 0xff}, // Four Square
	{0xff, 0xff, 0x99, 0xff, 0xff, 0xbd, 0xc3, 0xff}, // Smiley
	{0x11, 0x33, 0x66, 0xcc, 0xcc, 0x66, 0x33, 0x11}, // Shift Right
	{0x1f, 0x3e, 0x7c, 0xf8, 0xf8, 0x7c, 0x3e, 0x1f}, // Arrow
	{0xff, 0xfe, 0xfc, 0xf8, 0xf0, 0xe0, 0xc0, 0x80}, // Slope 2
	{0x81, 0xc3, 0xe7, 0xff, 0xff, 0xe7, 0xc3, 0x81}, // Black Tie Event
	{0xff, 0x81, 0xbd, 0xa5, 0xa5, 0xbd, 0x81, 0xff}, // Target Practice
	{0x55, 0xaa, 0xaa, 0x55, 0x66, 0x99, 0x66, 0x99}, // Layout
	{0x99, 0x3c, 0x66, 0xdb, 0xdb, 0x66, 0x3c, 0x99}, // Bomb
	{0xff, 0x22, 0xff, 0x44, 0xff, 0x22, 0xff, 0x44}, // Stackup
	{0x99, 0xff, 0x99, 0xbd, 0x42, 0x5a, 0x42, 0xbd}, // Plan View
	{0xa5, 0x5a, 0xa5, 0x5a, 0x5a, 0xa5, 0x5a, 0xa5}, // Sakura
	{0xff, 0x00, 0xff, 0xff, 0x00, 0xff, 0xff, 0xff}, // One Two Three
	{0xff, 0xff, 0x00, 0xff, 0x00, 0x00, 0xff, 0x00}, // Pancake
	{0xff, 0x80, 0xfe, 0x02, 0xbe, 0xa0, 0xbd, 0x85}, // Maze
	{0xc7, 0xe3, 0x71, 0x38, 0x1c, 0x8e, 0xc7, 0xe3}, // Caution
	{0xc3, 0xe7, 0x7e, 0x3c, 0x3c, 0x7e, 0xe7, 0xc3}, // EX
	{0x99, 0x99, 0x99, 0x99, 0x99, 0x99, 0x99, 0x99}, // Vertical Lines
	{0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33}, // Vertical Lines 2
	{0xdd, 0xdd, 0xdd, 0xdd, 0xdd, 0xdd, 0xdd, 0xdd}, // Vertical Lines 3
	{0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55}, // Vertical Lines 4
	{0xd5, 0xd5, 0xd5, 0xd5, 0xab, 0xab, 0xab, 0xab}, // Alternating
	{0x0f, 0x0f, 0x0f, 0x0f, 0xf0, 0xf0, 0xf0, 0xf0}, // Feeling Square
	{0x55, 0xaa, 0x55, 0xaa, 0x55, 0xaa, 0x55, 0xaa}, // Checkers 2
	{0x18, 0x3c, 0x7e, 0xdb, 0xff, 0x24, 0x5a, 0xa5}, // Invaders
	{0x00, 0x66, 0xff, 0xff, 0x7e, 0x3c, 0x18, 0x00}, // LOVE
	{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, // Everything
}

// Bank holds the RAM copy of the patterns.
type Bank struct {
	pat  [NumPatterns][numRows]uint8
	cfg  *config.Store
	song *song.Store
}

// NewBank creates a bank and subscribes it to config store events so
// the patterns restore when the config loads or clears.
func NewBank(cfg *config.Store, songStore *song.Store, bus *event.Bus) *Bank {
	b := &Bank{cfg: cfg, song: songStore}
	for p := range b.pat {
		for r := range b.pat[p] {
			b.pat[p][r] = 0x55
		}
	}
	bus.Subscribe(event.ClassConfig, func(eventType int, args []int) {
		switch eventType {
		case event.ConfigLoaded:
			b.loadPatterns()
		case event.ConfigCleared:
			b.loadROMDefaults()
		}
	})
	return b
}

// loadPatterns restores the bank from the config store, falling back to
// the ROM defaults when the valid token is missing.
func (b *Bank) loadPatterns() {
	token := b.cfg.Get(config.CellPatternBank + validTokenOffset)
	if token != validToken {
		log.Printf("pattern: token not found - using ROM patterns")
		b.loadROMDefaults()
		return
	}
	log.Printf("pattern: loading from config")
	addr := config.CellPatternBank
	for p := 0; p < NumPatterns; p++ {
		v := b.cfg.Get(addr)
		b.pat[p][0] = uint8(v >> 24)
		b.pat[p][1] = uint8(v >> 16)
		b.pat[p][2] = uint8(v >> 8)
		b.pat[p][3] = uint8(v)
		addr++
		v = b.cfg.Get(addr)
		b.pat[p][4] = uint8(v >> 24)
		b.pat[p][5] = uint8(v >> 16)
		b.pat[p][6] = uint8(v >> 8)
		b.pat[p][7] = uint8(v)
		addr++
	}
}

// RestorePattern reloads one pattern from ROM and stores it back.
func (b *Bank) RestorePattern(p int) {
	if p < 0 || p >= NumPatterns {
		return
	}
	b.pat[p] = romPatterns[p]
	b.storePattern(p)
}

// StepEnable reports whether a step is enabled on a pattern. For the
// as-recorded sentinel, a step is enabled iff it holds any event.
func (b *Bank) StepEnable(scene, track, p, st int) bool {
	if scene < 0 || scene >= song.NumScenes || track < 0 || track >= song.NumTracks {
		return false
	}
	if p < 0 || p >= NumPatterns || st < 0 || st >= song.NumSteps {
		return false
	}
	if p == AsRecorded {
		return b.song.NumStepEvents(scene, track, st) > 0
	}
	row := (st >> 3) & 0x07
	col := st & 0x07
	return (b.pat[p][row]>>col)&0x01 != 0
}

// SetStepEnable adjusts a step enable bit. The as-recorded pattern is
// read-only.
func (b *Bank) SetStepEnable(p, st int, enable bool) {
	if p < 0 || p >= AsRecorded || st < 0 || st >= song.NumSteps {
		return
	}
	row := (st >> 3) & 0x07
	col := st & 0x07
	b.pat[p][row] &^= 0x01 << col
	if enable {
		b.pat[p][row] |= 0x01 << col
	}
	b.storePattern(p)
}

func (b *Bank) loadROMDefaults() {
	for p := 0; p < NumPatterns; p++ {
		b.RestorePattern(p)
	}
	// the token at the end marks the stored patterns valid
	b.cfg.Set(config.CellPatternBank+validTokenOffset, validToken)
}

// storePattern writes one pattern's two cells back to the config store.
func (b *Bank) storePattern(p int) {
	addr := config.CellPatternBank + (p << 1)
	v := int32(b.pat[p][0])<<24 | int32(b.pat[p][1])<<16 | int32(b.pat[p][2])<<8 | int32(b.pat[p][3])
	b.cfg.Set(addr, v)
	v = int32(b.pat[p][4])<<24 | int32(b.pat[p][5])<<16 | int32(b.pat[p][6])<<8 | int32(b.pat[p][7])
	b.cfg.Set(addr+1, v)
}
