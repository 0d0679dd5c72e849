package cvproc

import (
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hypebeast/go-osc/osc"
)

// NumOutputs is the number of CV and gate channels.
const NumOutputs = 4

// DACWriter receives finished 12-bit CV values and gate states. The
// real device is an SPI DAC; tests plug in a recorder.
type DACWriter interface {
	WriteCV(channel, value int)
	WriteGate(channel int, on bool)
	WriteClock(on bool)
	WriteReset(on bool)
}

// NullDAC discards all writes.
type NullDAC struct{}

func (NullDAC) WriteCV(int, int)   {}
func (NullDAC) WriteGate(int, bool) {}
func (NullDAC) WriteClock(bool)    {}
func (NullDAC) WriteReset(bool)    {}

// analogOut tracks desired versus written line states so each hardware
// write happens only on change. The first Tick always writes every
// line once so the outputs start from a known state.
type analogOut struct {
	cvDesired   [NumOutputs]int
	cvCurrent   [NumOutputs]int
	gateDesired [NumOutputs]bool
	gateCurrent [NumOutputs]bool
	clockDesired, clockCurrent bool
	resetDesired, resetCurrent bool
	beepEnable  bool
	beepPhase   bool
	forceUpdate bool

	dac DACWriter
}

func newAnalogOut(dac DACWriter) *analogOut {
	a := &analogOut{dac: dac, forceUpdate: true}
	for i := 0; i < NumOutputs; i++ {
		a.cvDesired[i] = 0x800 // middle C
	}
	return a
}

func (a *analogOut) setCV(channel, value int) {
	if channel < 0 || channel >= NumOutputs {
		return
	}
	a.cvDesired[channel] = value & 0xfff
}

func (a *analogOut) setGate(channel int, on bool) {
	if channel < 0 || channel >= NumOutputs {
		return
	}
	a.gateDesired[channel] = on
}

// tick pushes changed lines to the DAC. While the metronome beeper is
// enabled, beepPhase toggles each call; DACWriter has no beeper line, so
// the phase is not written to any output.
func (a *analogOut) tick() {
	for i := 0; i < NumOutputs; i++ {
		if a.forceUpdate || a.cvDesired[i] != a.cvCurrent[i] {
			a.cvCurrent[i] = a.cvDesired[i]
			a.dac.WriteCV(i, a.cvCurrent[i])
		}
		if a.forceUpdate || a.gateDesired[i] != a.gateCurrent[i] {
			a.gateCurrent[i] = a.gateDesired[i]
			a.dac.WriteGate(i, a.gateCurrent[i])
		}
	}
	if a.beepEnable {
		a.beepPhase = !a.beepPhase
	} else {
		a.beepPhase = false
	}
	if a.forceUpdate || a.clockDesired != a.clockCurrent {
		a.clockCurrent = a.clockDesired
		a.dac.WriteClock(a.clockCurrent)
	}
	if a.forceUpdate || a.resetDesired != a.resetCurrent {
		a.resetCurrent = a.resetDesired
		a.dac.WriteReset(a.resetCurrent)
	}
	a.forceUpdate = false
}

// OSCSink streams CV and gate line changes to a modular host as OSC
// messages.
type OSCSink struct {
	client *osc.Client
	prefix string
}

// NewOSCSink creates a sink sending to host:port under the address
// prefix (e.g. "/carbon").
func NewOSCSink(host string, port int, prefix string) *OSCSink {
	return &OSCSink{client: osc.NewClient(host, port), prefix: prefix}
}

func (s *OSCSink) send(addr string, args ...interface{}) {
	msg := osc.NewMessage(s.prefix + addr)
	for _, a := range args {
		msg.Append(a)
	}
	if err := s.client.Send(msg); err != nil {
		log.Printf("cvproc: osc send: %v", err)
	}
}

func (s *OSCSink) WriteCV(channel, value int) {
	s.send("/cv", int32(channel), int32(value))
}

func (s *OSCSink) WriteGate(channel int, on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	s.send("/gate", int32(channel), v)
}

func (s *OSCSink) WriteClock(on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	s.send("/clock", v)
}

func (s *OSCSink) WriteReset(on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	s.send("/reset", v)
}

// Trace records the CV and gate lines once per analog tick and renders
// the capture as a multi-channel WAV file for offline inspection.
type Trace struct {
	next    DACWriter
	cv      [NumOutputs]int
	gate    [NumOutputs]bool
	samples []int
	rate    int
}

// NewTrace wraps a DACWriter and captures everything written through
// it. The rate is the analog tick rate in Hz (4 kHz on the hardware).
func NewTrace(next DACWriter, rate int) *Trace {
	if next == nil {
		next = NullDAC{}
	}
	return &Trace{next: next, rate: rate}
}

func (t *Trace) WriteCV(channel, value int) {
	if channel >= 0 && channel < NumOutputs {
		t.cv[channel] = value
	}
	t.next.WriteCV(channel, value)
}

func (t *Trace) WriteGate(channel int, on bool) {
	if channel >= 0 && channel < NumOutputs {
		t.gate[channel] = on
	}
	t.next.WriteGate(channel, on)
}

func (t *Trace) WriteClock(on bool) { t.next.WriteClock(on) }
func (t *Trace) WriteReset(on bool) { t.next.WriteReset(on) }

// Sample captures the current line states as one frame of 8 channels:
// 4 CV values then 4 gates.
func (t *Trace) Sample() {
	for i := 0; i < NumOutputs; i++ {
		// centre the 12 bit value as a signed 16 bit sample
		t.samples = append(t.samples, (t.cv[i]-0x800)<<4)
	}
	for i := 0; i < NumOutputs; i++ {
		v := 0
		if t.gate[i] {
			v = 0x7fff
		}
		t.samples = append(t.samples, v)
	}
}

// WriteFile renders the capture to a WAV file.
func (t *Trace) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, t.rate, 16, NumOutputs*2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: NumOutputs * 2, SampleRate: t.rate},
		Data:           t.samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
