// Package flash models the external storage device that holds songs and
// the config store. Transfers are asynchronous: Load and Save only start
// an operation, and the device moves one chunk per Tick so the realtime
// loop is never blocked on storage. Owners poll State to find out when a
// transfer has finished.
package flash

import (
	"fmt"
	"log"
	"os"
)

// Storage layout byte offsets.
const (
	SongOffset   = 0x000000
	ConfigOffset = 0x160000
	ConfigSize   = 0x1000

	SectorSize = 0x1000 // erase granularity
	chunkSize  = 512    // bytes moved per Tick
)

// Device states.
const (
	StateIdle = iota
	StateLoad
	StateLoadDone
	StateLoadError
	StateSave
	StateSaveDone
	StateSaveError
)

// Device is the storage the song and config stores drive. A completed or
// failed transfer keeps its done/error state until the next operation is
// started.
type Device interface {
	// State returns the current transfer state.
	State() int
	// Load starts reading length bytes at offset into the device buffer.
	Load(offset, length int) error
	// Save starts erasing the covered sectors and writing data at offset.
	Save(offset, length int, data []byte) error
	// SaveNoErase starts writing data at offset without erasing first.
	SaveNoErase(offset, length int, data []byte) error
	// Buffer returns the transfer buffer holding the last loaded data.
	Buffer() []byte
	// Tick advances the in-flight transfer by one chunk.
	Tick()
}

// MemDevice is an in-memory Device. It backs tests directly and is the
// transfer engine inside FileDevice.
type MemDevice struct {
	image []byte
	buf   []byte

	state   int
	offset  int
	length  int
	pos     int
	pending []byte // data being written, nil for loads
	erase   bool

	// fault injection for tests
	FailNextLoad bool
	FailNextSave bool
}

// NewMemDevice creates a device with a blank (0xff) image of the given size.
func NewMemDevice(size int) *MemDevice {
	d := &MemDevice{image: make([]byte, size)}
	for i := range d.image {
		d.image[i] = 0xff
	}
	return d
}

// State returns the current transfer state.
func (d *MemDevice) State() int {
	return d.state
}

// Buffer returns the transfer buffer from the last completed load.
func (d *MemDevice) Buffer() []byte {
	return d.buf
}

// Image exposes the raw backing image.
func (d *MemDevice) Image() []byte {
	return d.image
}

func (d *MemDevice) busy() bool {
	return d.state == StateLoad || d.state == StateSave
}

// Load starts an asynchronous read.
func (d *MemDevice) Load(offset, length int) error {
	if d.busy() {
		return fmt.Errorf("flash busy")
	}
	if offset < 0 || length < 0 || offset+length > len(d.image) {
		return fmt.Errorf("flash load out of range: %d+%d", offset, length)
	}
	d.state = StateLoad
	d.offset = offset
	d.length = length
	d.pos = 0
	d.pending = nil
	d.buf = make([]byte, length)
	return nil
}

// Save starts an asynchronous erase-and-write.
func (d *MemDevice) Save(offset, length int, data []byte) error {
	return d.startSave(offset, length, data, true)
}

// SaveNoErase starts an asynchronous write that leaves the rest of the
// sector untouched.
func (d *MemDevice) SaveNoErase(offset, length int, data []byte) error {
	return d.startSave(offset, length, data, false)
}

func (d *MemDevice) startSave(offset, length int, data []byte, erase bool) error {
	if d.busy() {
		return fmt.Errorf("flash busy")
	}
	if offset < 0 || length < 0 || offset+length > len(d.image) || length > len(data) {
		return fmt.Errorf("flash save out of range: %d+%d", offset, length)
	}
	d.state = StateSave
	d.offset = offset
	d.length = length
	d.pos = 0
	d.erase = erase
	d.pending = make([]byte, length)
	copy(d.pending, data[:length])
	return nil
}

// Tick advances the in-flight transfer by one chunk.
func (d *MemDevice) Tick() {
	switch d.state {
	case StateLoad:
		if d.FailNextLoad {
			d.FailNextLoad = false
			d.state = StateLoadError
			return
		}
		n := min(chunkSize, d.length-d.pos)
		copy(d.buf[d.pos:d.pos+n], d.image[d.offset+d.pos:d.offset+d.pos+n])
		d.pos += n
		if d.pos >= d.length {
			d.state = StateLoadDone
		}
	case StateSave:
		if d.FailNextSave {
			d.FailNextSave = false
			d.state = StateSaveError
			return
		}
		if d.erase {
			// erase all covered sectors before the first write chunk
			first := d.offset &^ (SectorSize - 1)
			last := (d.offset + d.length - 1) &^ (SectorSize - 1)
			for s := first; s <= last; s += SectorSize {
				for i := s; i < s+SectorSize && i < len(d.image); i++ {
					d.image[i] = 0xff
				}
			}
			d.erase = false
			return
		}
		n := min(chunkSize, d.length-d.pos)
		copy(d.image[d.offset+d.pos:d.offset+d.pos+n], d.pending[d.pos:d.pos+n])
		d.pos += n
		if d.pos >= d.length {
			d.state = StateSaveDone
		}
	}
}

// FileDevice persists the image to a file on disk. The whole image is
// kept in memory and flushed after each completed save.
type FileDevice struct {
	MemDevice
	path string
}

// NewFileDevice opens or creates a backing image file of the given size.
func NewFileDevice(path string, size int) (*FileDevice, error) {
	d := &FileDevice{path: path}
	d.image = make([]byte, size)
	for i := range d.image {
		d.image[i] = 0xff
	}
	data, err := os.ReadFile(path)
	if err == nil {
		copy(d.image, data)
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return d, nil
}

// Tick advances the transfer and flushes the image when a save completes.
func (d *FileDevice) Tick() {
	prev := d.state
	d.MemDevice.Tick()
	if prev == StateSave && d.state == StateSaveDone {
		if err := os.WriteFile(d.path, d.image, 0o644); err != nil {
			log.Printf("flash: flush %s: %v", d.path, err)
			d.state = StateSaveError
		}
	}
}
