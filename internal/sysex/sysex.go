// Package sysex implements the SYSEX remote protocol: config wipe,
// external flash read/write/commit, device type query and restart.
// Addresses and lengths arrive packed one nibble per byte, high nibble
// first; payload bytes travel as high/low nibble pairs.
package sysex

import (
	"log"

	"github.com/kilpatrickaudio/carbon/internal/config"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/midi"
)

// DevType identifies this device in the SYSEX header.
const DevType = 0x49

// Commands.
const (
	CmdErrorResponse = 0x01
	CmdWipeConfig    = 0x6f
	CmdReadFlash     = 0x70
	CmdReadbackFlash = 0x71
	CmdWriteFlashBuf = 0x72
	CmdCommitFlash   = 0x73
	CmdDevTypeQuery  = 0x7c
	CmdDevTypeResp   = 0x7d
	CmdRestart       = 0x7e
)

// Error codes for CmdErrorResponse.
const (
	ErrBadLength = 0x01
	ErrBusy      = 0x02
	ErrBadCmd    = 0x03
)

const (
	maxReadLen  = 64
	maxRxLen    = 256
	writeBufLen = 0x10000
)

var header = []byte{0x00, 0x01, 0x72, DevType}

// Sender transmits a finished SYSEX message, framing bytes included.
type Sender interface {
	SendSysex(port int, data []byte)
}

// Parser consumes inbound SYSEX bytes and executes commands.
type Parser struct {
	rxBuf  []byte
	inMsg  bool

	writeBuf [writeBufLen]byte

	// pending flash read state
	readPending bool
	readAddr    int
	readLen     int

	cfg     *config.Store
	dev     flash.Device
	sender  Sender
	restart func()
}

// New creates a parser. The restart callback runs on a KILL command.
func New(cfg *config.Store, dev flash.Device, sender Sender, restart func()) *Parser {
	return &Parser{
		cfg:     cfg,
		dev:     dev,
		sender:  sender,
		restart: restart,
	}
}

// FeedByte consumes one inbound byte from the SYSEX port.
func (p *Parser) FeedByte(b byte) {
	if b == midi.SysexStart {
		p.inMsg = true
		p.rxBuf = p.rxBuf[:0]
		return
	}
	if !p.inMsg {
		return
	}
	if b == midi.SysexEnd {
		p.inMsg = false
		p.handleMessage(p.rxBuf)
		return
	}
	if len(p.rxBuf) < maxRxLen {
		p.rxBuf = append(p.rxBuf, b)
	}
}

// Tick finishes an in-flight flash read by sending the readback
// response once the transfer completes.
func (p *Parser) Tick() {
	if !p.readPending {
		return
	}
	switch p.dev.State() {
	case flash.StateLoadDone:
		p.readPending = false
		buf := p.dev.Buffer()
		resp := []byte{CmdReadbackFlash}
		resp = append(resp, packNibbles(p.readAddr, 6)...)
		resp = append(resp, byte(p.readLen))
		for i := 0; i < p.readLen && i < len(buf); i++ {
			resp = append(resp, (buf[i]>>4)&0x0f, buf[i]&0x0f)
		}
		p.send(resp)
	case flash.StateLoadError:
		p.readPending = false
		p.sendError(CmdReadFlash, ErrBusy)
	}
}

// handleMessage parses one complete message body (framing stripped).
func (p *Parser) handleMessage(body []byte) {
	if len(body) < len(header)+1 {
		return
	}
	for i, h := range header {
		if body[i] != h {
			return // not for us
		}
	}
	cmd := body[len(header)]
	payload := body[len(header)+1:]

	switch cmd {
	case CmdWipeConfig:
		if err := p.cfg.Wipe(); err != nil {
			p.sendError(cmd, ErrBusy)
		}
	case CmdReadFlash:
		p.cmdReadFlash(payload)
	case CmdWriteFlashBuf:
		p.cmdWriteFlashBuf(payload)
	case CmdCommitFlash:
		p.cmdCommitFlash(payload)
	case CmdDevTypeQuery:
		p.send([]byte{CmdDevTypeResp, DevType})
	case CmdRestart:
		p.cmdRestart(payload)
	default:
		log.Printf("sysex: unknown cmd: 0x%02x", cmd)
		p.sendError(cmd, ErrBadCmd)
	}
}

func (p *Parser) cmdReadFlash(payload []byte) {
	if len(payload) != 7 {
		p.sendError(CmdReadFlash, ErrBadLength)
		return
	}
	addr := unpackNibbles(payload[:6])
	length := int(payload[6])
	if length < 1 || length > maxReadLen {
		p.sendError(CmdReadFlash, ErrBadLength)
		return
	}
	if p.readPending || p.dev.State() == flash.StateLoad || p.dev.State() == flash.StateSave {
		p.sendError(CmdReadFlash, ErrBusy)
		return
	}
	if err := p.dev.Load(addr, length); err != nil {
		p.sendError(CmdReadFlash, ErrBusy)
		return
	}
	p.readPending = true
	p.readAddr = addr
	p.readLen = length
}

func (p *Parser) cmdWriteFlashBuf(payload []byte) {
	if len(payload) < 7 {
		p.sendError(CmdWriteFlashBuf, ErrBadLength)
		return
	}
	offset := unpackNibbles(payload[:6])
	length := int(payload[6])
	data := payload[7:]
	if length < 1 || length > maxReadLen || len(data) != length*2 {
		p.sendError(CmdWriteFlashBuf, ErrBadLength)
		return
	}
	if offset+length > writeBufLen {
		p.sendError(CmdWriteFlashBuf, ErrBadLength)
		return
	}
	for i := 0; i < length; i++ {
		p.writeBuf[offset+i] = (data[i*2]&0x0f)<<4 | (data[i*2+1] & 0x0f)
	}
}

func (p *Parser) cmdCommitFlash(payload []byte) {
	if len(payload) != 10 {
		p.sendError(CmdCommitFlash, ErrBadLength)
		return
	}
	addr := unpackNibbles(payload[:6])
	length := unpackNibbles(payload[6:10])
	if length < 1 || length > writeBufLen {
		p.sendError(CmdCommitFlash, ErrBadLength)
		return
	}
	if err := p.dev.Save(addr, length, p.writeBuf[:length]); err != nil {
		p.sendError(CmdCommitFlash, ErrBusy)
	}
}

func (p *Parser) cmdRestart(payload []byte) {
	if len(payload) != 5 || payload[0] != DevType ||
		payload[1] != 'K' || payload[2] != 'I' || payload[3] != 'L' || payload[4] != 'L' {
		p.sendError(CmdRestart, ErrBadLength)
		return
	}
	log.Printf("sysex: restart requested")
	if p.restart != nil {
		p.restart()
	}
}

// send frames and transmits a message body.
func (p *Parser) send(body []byte) {
	msg := make([]byte, 0, len(header)+len(body)+2)
	msg = append(msg, midi.SysexStart)
	msg = append(msg, header...)
	msg = append(msg, body...)
	msg = append(msg, midi.SysexEnd)
	p.sender.SendSysex(midi.PortSysexOut, msg)
}

func (p *Parser) sendError(cmd, code byte) {
	p.send([]byte{CmdErrorResponse, cmd, code})
}

// packNibbles encodes a value as n nibbles, high first.
func packNibbles(val, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = byte(val>>(4*(n-1-i))) & 0x0f
	}
	return out
}

// unpackNibbles decodes high-first nibbles into a value.
func unpackNibbles(data []byte) int {
	val := 0
	for _, b := range data {
		val = val<<4 | int(b&0x0f)
	}
	return val
}
