// Package midiconnector binds the sequencer's abstract port ids to real
// system MIDI devices through gomidi. Outbound messages carry a port id
// that resolves to an opened device; inbound devices feed the realtime
// loop through lock-free queues.
package midiconnector

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/kilpatrickaudio/carbon/internal/midi"
)

var mutex sync.Mutex

var devicesOpen map[string]drivers.Out

func init() {
	devicesOpen = make(map[string]drivers.Out)
}

// Devices returns the system MIDI output device names.
func Devices() []string {
	var names []string
	for _, out := range gomidi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}

// InputDevices returns the system MIDI input device names.
func InputDevices() []string {
	var names []string
	for _, in := range gomidi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// filterName resolves a user-supplied name against the device list:
// exact match first, then prefix, then substring.
func filterName(name string, names []string) (string, error) {
	words := strings.Fields(name)
	if len(words) > 3 {
		words = words[:3]
	}
	truncated := strings.Join(words, " ")

	for _, n := range names {
		if strings.EqualFold(n, truncated) {
			return n, nil
		}
	}
	for _, n := range names {
		if strings.HasPrefix(strings.ToLower(n), strings.ToLower(truncated)) {
			return n, nil
		}
	}
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), strings.ToLower(truncated)) {
			return n, nil
		}
	}
	return "", fmt.Errorf("could not find device with name %s", truncated)
}

// Router owns the port-to-device bindings and transmits messages. It
// implements the output processor's Sender and the SYSEX Sender.
type Router struct {
	outs  [midi.NumPorts]drivers.Out
	stops []func()
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// BindOutput attaches an abstract output port to a named device.
func (r *Router) BindOutput(port int, name string) error {
	if port < 0 || port >= midi.NumPorts {
		return fmt.Errorf("port invalid: %d", port)
	}
	resolved, err := filterName(name, Devices())
	if err != nil {
		return err
	}
	mutex.Lock()
	defer mutex.Unlock()
	if out, ok := devicesOpen[resolved]; ok {
		r.outs[port] = out
		return nil
	}
	out, err := gomidi.FindOutPort(resolved)
	if err != nil {
		return err
	}
	if err := out.Open(); err != nil {
		return err
	}
	devicesOpen[resolved] = out
	r.outs[port] = out
	log.Printf("midiconnector: bound port %d to %s", port, resolved)
	return nil
}

// Send transmits one message on its bound port. Unbound ports drop the
// message silently so the engine never blocks on missing hardware.
func (r *Router) Send(msg midi.Msg) {
	if msg.Port < 0 || msg.Port >= midi.NumPorts {
		return
	}
	out := r.outs[msg.Port]
	if out == nil {
		return
	}
	var data []byte
	switch {
	case msg.Status >= 0xf8:
		data = []byte{msg.Status}
	case msg.Kind() == midi.ProgramChange || msg.Kind() == midi.ChannelPressure:
		data = []byte{msg.Status, msg.Data0}
	default:
		data = []byte{msg.Status, msg.Data0, msg.Data1}
	}
	if err := out.Send(data); err != nil {
		log.Printf("midiconnector: send: %v", err)
	}
}

// SendSysex transmits a framed SYSEX message on a port.
func (r *Router) SendSysex(port int, data []byte) {
	if port < 0 || port >= midi.NumPorts {
		return
	}
	out := r.outs[port]
	if out == nil {
		return
	}
	if err := out.Send(data); err != nil {
		log.Printf("midiconnector: sysex send: %v", err)
	}
}

// BindInput opens a named input device and forwards its traffic into
// the queue tagged with the given abstract port. SYSEX bytes go to the
// optional sysex sink instead.
func (r *Router) BindInput(port int, name string, queue *midi.Queue, sysexSink func(b byte)) error {
	resolved, err := filterName(name, InputDevices())
	if err != nil {
		return err
	}
	in, err := gomidi.FindInPort(resolved)
	if err != nil {
		return err
	}
	if err := in.Open(); err != nil {
		return err
	}
	stop, err := gomidi.ListenTo(in, func(m gomidi.Message, timestampms int32) {
		raw := m.Bytes()
		if len(raw) == 0 {
			return
		}
		if raw[0] == midi.SysexStart && sysexSink != nil {
			for _, b := range raw {
				sysexSink(b)
			}
			return
		}
		msg := midi.Msg{Port: port, Status: raw[0]}
		if len(raw) > 1 {
			msg.Data0 = raw[1]
		}
		if len(raw) > 2 {
			msg.Data1 = raw[2]
		}
		if !queue.Push(msg) {
			log.Printf("midiconnector: input queue full - dropped")
		}
	}, gomidi.UseSysEx(), gomidi.UseTimeCode(), gomidi.UseActiveSense())
	if err != nil {
		return err
	}
	r.stops = append(r.stops, stop)
	log.Printf("midiconnector: listening on %s as port %d", resolved, port)
	return nil
}

// Close stops listeners and closes every opened device.
func (r *Router) Close() {
	for _, stop := range r.stops {
		stop()
	}
	mutex.Lock()
	defer mutex.Unlock()
	for name, out := range devicesOpen {
		_ = out.Close()
		delete(devicesOpen, name)
	}
	gomidi.CloseDriver()
}
