package sysex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilpatrickaudio/carbon/internal/config"
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/midi"
)

type captureSysex struct {
	sent [][]byte
}

func (c *captureSysex) SendSysex(port int, data []byte) {
	c.sent = append(c.sent, append([]byte(nil), data...))
}

func newTestParser(t *testing.T) (*Parser, *flash.MemDevice, *captureSysex, *bool) {
	t.Helper()
	dev := flash.NewMemDevice(flash.ConfigOffset + flash.ConfigSize)
	bus := event.NewBus()
	cfg := config.NewStore(dev, bus, 4)
	sender := &captureSysex{}
	restarted := false
	p := New(cfg, dev, sender, func() { restarted = true })
	return p, dev, sender, &restarted
}

func feed(p *Parser, body []byte) {
	p.FeedByte(midi.SysexStart)
	for _, b := range append([]byte{0x00, 0x01, 0x72, DevType}, body...) {
		p.FeedByte(b)
	}
	p.FeedByte(midi.SysexEnd)
}

func settle(p *Parser, dev *flash.MemDevice) {
	for i := 0; i < 1000; i++ {
		dev.Tick()
		p.Tick()
	}
}

func TestDevTypeQuery(t *testing.T) {
	p, _, sender, _ := newTestParser(t)
	feed(p, []byte{CmdDevTypeQuery})
	require.Len(t, sender.sent, 1)
	want := []byte{midi.SysexStart, 0x00, 0x01, 0x72, DevType, CmdDevTypeResp, DevType, midi.SysexEnd}
	assert.Equal(t, want, sender.sent[0])
}

func TestWrongManufacturerIgnored(t *testing.T) {
	p, _, sender, _ := newTestParser(t)
	p.FeedByte(midi.SysexStart)
	for _, b := range []byte{0x00, 0x20, 0x33, DevType, CmdDevTypeQuery} {
		p.FeedByte(b)
	}
	p.FeedByte(midi.SysexEnd)
	assert.Empty(t, sender.sent)
}

func TestWriteCommitReadRoundTrip(t *testing.T) {
	p, dev, sender, _ := newTestParser(t)

	// write 4 bytes into the buffer at offset 0
	payload := []byte{CmdWriteFlashBuf, 0, 0, 0, 0, 0, 0, 4}
	for _, b := range []byte{0xde, 0xad, 0xbe, 0xef} {
		payload = append(payload, (b>>4)&0x0f, b&0x0f)
	}
	feed(p, payload)

	// commit to flash address 0x2000
	commit := []byte{CmdCommitFlash, 0, 0, 0, 2, 0, 0, 0, 0, 0, 4}
	feed(p, commit)
	settle(p, dev)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, dev.Image()[0x2000:0x2004])

	// read back over sysex
	feed(p, []byte{CmdReadFlash, 0, 0, 0, 2, 0, 0, 4})
	settle(p, dev)
	require.Len(t, sender.sent, 1)
	resp := sender.sent[0]
	// F0 header(4) 0x71 addr(6) len data(8) F7
	assert.Equal(t, byte(CmdReadbackFlash), resp[5])
	assert.Equal(t, byte(4), resp[12])
	data := resp[13 : 13+8]
	assert.Equal(t, []byte{0x0d, 0x0e, 0x0a, 0x0d, 0x0b, 0x0e, 0x0e, 0x0f}, data)
}

func TestReadLengthBounds(t *testing.T) {
	p, _, sender, _ := newTestParser(t)
	feed(p, []byte{CmdReadFlash, 0, 0, 0, 0, 0, 0, 65})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, byte(CmdErrorResponse), sender.sent[0][5])
	assert.Equal(t, byte(CmdReadFlash), sender.sent[0][6])
	assert.Equal(t, byte(ErrBadLength), sender.sent[0][7])
}

func TestRestartRequiresKillSignature(t *testing.T) {
	p, _, _, restarted := newTestParser(t)
	feed(p, []byte{CmdRestart, DevType, 'K', 'I', 'L', 'K'})
	assert.False(t, *restarted)
	feed(p, []byte{CmdRestart, DevType, 'K', 'I', 'L', 'L'})
	assert.True(t, *restarted)
}

func TestWipeConfig(t *testing.T) {
	p, dev, _, _ := newTestParser(t)
	feed(p, []byte{CmdWipeConfig})
	// the store entered its erase cycle
	assert.Equal(t, flash.StateSave, dev.State())
}

func TestUnknownCommandErrors(t *testing.T) {
	p, _, sender, _ := newTestParser(t)
	feed(p, []byte{0x55})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, byte(CmdErrorResponse), sender.sent[0][5])
	assert.Equal(t, byte(ErrBadCmd), sender.sent[0][7])
}

func TestNibbleHelpers(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x06, 0x00, 0x00, 0x00, 0x00}, packNibbles(0x160000, 6))
	assert.Equal(t, 0x160000, unpackNibbles([]byte{0x01, 0x06, 0x00, 0x00, 0x00, 0x00}))
	assert.Equal(t, 0xabc, unpackNibbles(packNibbles(0xabc, 4)))
}
