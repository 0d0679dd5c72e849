// Package config implements the global preference store: 128 32-bit
// cells mirrored in RAM and written back to a flash sector with a simple
// wear-leveling scheme. Each save appends a new 512 byte revision of the
// image to the sector without erasing; when the sector is full it is
// erased and the revision pointer wraps. Loading scans revisions from
// the end of the sector backwards for the magic token.
package config

import (
	"log"

	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
)

// Well-known cell addresses.
const (
	CellLastSong        = 0
	CellIfaceCVProgram  = 1
	CellIfaceCVBend     = 2
	CellAnalogClockDiv  = 3
	CellMenuTimeout     = 4
	CellGUIDispType     = 5
	CellPatternBank     = 62 // patterns consume 65 cells including their token
	CellToken           = NumItems - 1
)

const (
	NumItems = 128 // must be a power of 2
	ItemSize = 4   // bytes per cell

	magicToken = 0x434f4e46 // "CONF" in big endian

	// DefaultWritebackInterval gates how often a dirty store is written
	// back: once every this many task ticks.
	DefaultWritebackInterval = 0x10000

	imageSize = NumItems * ItemSize
)

// I/O states.
const (
	ioNotLoaded = iota
	ioLoaded
	ioLoading
	ioSaving
	ioErasing
)

// Store holds the RAM copy and drives flash I/O from its Tick task.
type Store struct {
	ram    [NumItems]int32
	offset int // sector offset of the revision currently loaded
	dirty  bool
	state  int

	interval int
	timerDiv int

	dev flash.Device
	bus *event.Bus
}

// NewStore creates a store over the given device. A writebackInterval of
// 0 selects the default.
func NewStore(dev flash.Device, bus *event.Bus, writebackInterval int) *Store {
	if writebackInterval <= 0 {
		writebackInterval = DefaultWritebackInterval
	}
	s := &Store{
		dev:      dev,
		bus:      bus,
		interval: writebackInterval,
		state:    ioNotLoaded,
	}
	s.clear()
	return s
}

// Loaded reports whether the store has finished its initial load.
func (s *Store) Loaded() bool {
	return s.state == ioLoaded || s.state == ioSaving || s.state == ioErasing
}

// Dirty reports whether there are changes waiting to be written back.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Tick runs the storage task.
func (s *Store) Tick() {
	switch s.state {
	case ioNotLoaded:
		if err := s.loadStart(); err != nil {
			log.Printf("config: start load: %v", err)
		} else {
			s.state = ioLoading
		}
	case ioLoaded:
		if s.dirty && (s.timerDiv&(s.interval-1)) == 0 {
			if err := s.writebackStart(); err != nil {
				log.Printf("config: writeback start: %v", err)
			} else {
				s.state = ioSaving
			}
		}
	case ioLoading:
		switch s.dev.State() {
		case flash.StateLoadError:
			s.clear()
			s.dirty = false
			s.state = ioLoaded
			s.bus.Fire(event.ConfigCleared)
		case flash.StateLoadDone:
			if !s.loadDone() {
				s.clear()
				s.dirty = false
				s.state = ioLoaded
				s.bus.Fire(event.ConfigCleared)
			} else {
				s.state = ioLoaded
				s.bus.Fire(event.ConfigLoaded)
			}
		}
	case ioSaving:
		switch s.dev.State() {
		case flash.StateSaveError:
			s.state = ioLoaded // dirty stays set so the save retries
		case flash.StateSaveDone:
			s.state = ioLoaded
			s.dirty = false
		}
	case ioErasing:
		switch s.dev.State() {
		case flash.StateSaveError, flash.StateSaveDone:
			log.Printf("config: store wiped")
			s.state = ioLoaded
			s.dirty = false
		}
	}
	s.timerDiv++
}

// Get returns the value of a cell, or 0 when the address is out of range.
func (s *Store) Get(addr int) int32 {
	if addr < 0 || addr >= NumItems {
		return 0
	}
	return s.ram[addr]
}

// Set stores a value into a cell and marks the store dirty. Writing the
// value a cell already holds does not trigger a writeback.
func (s *Store) Set(addr int, val int32) {
	if addr < 0 || addr >= NumItems {
		return
	}
	if s.ram[addr] == val {
		return
	}
	s.ram[addr] = val
	s.dirty = true
}

// Wipe erases the backing sector so a fresh store is generated on the
// next boot.
func (s *Store) Wipe() error {
	blank := make([]byte, imageSize)
	for i := range blank {
		blank[i] = 0xff
	}
	if err := s.dev.Save(flash.ConfigOffset, imageSize, blank); err != nil {
		log.Printf("config: wipe: %v", err)
		return err
	}
	s.state = ioErasing
	return nil
}

func (s *Store) loadStart() error {
	// bring the entire sector into RAM
	return s.dev.Load(flash.ConfigOffset, flash.ConfigSize)
}

// loadDone scans the sector backwards for the most recent revision.
// Returns false when the store is blank.
func (s *Store) loadDone() bool {
	buf := s.dev.Buffer()
	for i := flash.ConfigSize - imageSize; i >= 0; i -= imageSize {
		tokenPos := i + CellToken*ItemSize
		val := int32(buf[tokenPos])<<24 | int32(buf[tokenPos+1])<<16 |
			int32(buf[tokenPos+2])<<8 | int32(buf[tokenPos+3])
		if val != magicToken {
			continue
		}
		s.offset = i
		log.Printf("config: token found at %d", s.offset)
		for cell := 0; cell < NumItems; cell++ {
			p := i + cell*ItemSize
			s.ram[cell] = int32(buf[p])<<24 | int32(buf[p+1])<<16 |
				int32(buf[p+2])<<8 | int32(buf[p+3])
		}
		return true
	}
	log.Printf("config: token not found")
	return false
}

func (s *Store) writebackStart() error {
	s.ram[CellToken] = magicToken
	img := make([]byte, imageSize)
	for cell := 0; cell < NumItems; cell++ {
		img[cell*ItemSize] = byte(s.ram[cell] >> 24)
		img[cell*ItemSize+1] = byte(s.ram[cell] >> 16)
		img[cell*ItemSize+2] = byte(s.ram[cell] >> 8)
		img[cell*ItemSize+3] = byte(s.ram[cell])
	}
	// advance to the next revision slot, recycling the sector when full
	s.offset += imageSize
	if s.offset >= flash.ConfigSize {
		s.offset = 0
		return s.dev.Save(flash.ConfigOffset, imageSize, img)
	}
	return s.dev.SaveNoErase(flash.ConfigOffset+s.offset, imageSize, img)
}

func (s *Store) clear() {
	for i := 0; i < NumItems-1; i++ {
		s.ram[i] = -1
	}
}
