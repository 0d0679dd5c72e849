// Package cvproc converts track MIDI routed to the CV port into CV and
// gate line states. Outputs are grouped into pairs that run mono or
// polyphonic voice allocation depending on the pairing arrangement, and
// each output carries a 128-entry note-to-DAC table built around middle
// C so calibration and scaling stay per-output.
package cvproc

import (
	"log"

	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

const (
	NumPairs = 4

	polyVoiceCount = 4 // max polyphonic voices (AAAA mode)
	monoDepth      = 8 // held note history - must be a power of 2
	monoDepthMask  = monoDepth - 1

	noteMin = song.CVBendMax       // leave bend headroom at the ends
	noteMax = 127 - song.CVBendMax

	defaultNote = 60

	// nominal semitone sizes x16 for better table resolution
	semiSize1VOct   = 575
	semiSize1p2VOct = 690
)

// Processor is the CV/gate output processor.
type Processor struct {
	pairs      int
	pairMode   [NumPairs]int
	cvcal      [NumOutputs]int
	cvoffset   [NumOutputs]int
	scaling    [NumOutputs]int
	bendRange  int

	damper    [NumOutputs]bool
	outOffset [NumPairs]int

	monoPrio [NumPairs][monoDepth]int
	monoPos  [NumPairs]int

	polyNumVoices [NumPairs]int
	polyAlloc     [NumPairs][polyVoiceCount]int

	outNote [NumOutputs]int
	outBend [NumOutputs]int

	scale [NumOutputs][128]int

	out *analogOut
}

// New creates a processor in ABCD note mode writing to the DAC.
func New(dac DACWriter) *Processor {
	p := &Processor{out: newAnalogOut(dac)}
	for i := 0; i < NumOutputs; i++ {
		p.outNote[i] = defaultNote
		p.scaling[i] = song.CVScaling1VOct
		p.buildScale(i)
	}
	for i := 0; i < NumPairs; i++ {
		p.pairMode[i] = song.CVModeNote
	}
	p.SetPairs(song.CVPairABCD)
	p.bendRange = 2
	return p
}

// Tick pushes changed analog lines out. Run at the analog task rate.
func (p *Processor) Tick() {
	p.out.tick()
}

// HandleMessage processes one message routed to the CV port. The
// channel selects the pair.
func (p *Processor) HandleMessage(msg midi.Msg) {
	pair := msg.Channel()
	mono := false
	switch p.pairs {
	case song.CVPairABCD:
		if pair > 3 {
			return
		}
		mono = true
	case song.CVPairAABC:
		if pair > 2 {
			return
		}
		mono = pair != 0
	case song.CVPairAABB:
		if pair > 1 {
			return
		}
	case song.CVPairAAAA:
		if pair != 0 {
			return
		}
	}
	if p.pairMode[pair] == song.CVModeNote || p.pairMode[pair] == song.CVModeVelo {
		if mono {
			p.monoHandler(pair, msg)
		} else {
			p.polyHandler(pair, msg)
		}
	} else {
		p.ccHandler(pair, msg)
	}
}

// SetPairs sets the output pairing arrangement and resets all state.
func (p *Processor) SetPairs(pairs int) {
	if pairs < song.CVPairABCD || pairs > song.CVPairAAAA {
		log.Printf("cvproc: pairs invalid: %d", pairs)
		return
	}
	// CC routing uses the voice counts even for mono pairs
	for i := 0; i < NumPairs; i++ {
		p.polyNumVoices[i] = 1
	}
	p.pairs = pairs
	switch pairs {
	case song.CVPairABCD:
		p.outOffset = [NumPairs]int{0, 1, 2, 3}
	case song.CVPairAABC:
		p.polyNumVoices[0] = 2
		p.outOffset = [NumPairs]int{0, 2, 3, 0}
	case song.CVPairAABB:
		p.polyNumVoices[0] = 2
		p.polyNumVoices[1] = 2
		p.outOffset = [NumPairs]int{0, 2, 0, 0}
	case song.CVPairAAAA:
		p.polyNumVoices[0] = 4
		p.outOffset = [NumPairs]int{0, 0, 0, 0}
	}
	p.resetState()
}

// SetPairMode sets the mode of a pair and resets it.
func (p *Processor) SetPairMode(pair, mode int) {
	if pair < 0 || pair >= NumPairs {
		log.Printf("cvproc: pair invalid: %d", pair)
		return
	}
	if mode < song.CVModeVelo || mode > song.CVModeMax {
		log.Printf("cvproc: mode invalid: %d", mode)
		return
	}
	p.pairMode[pair] = mode
	p.resetPair(pair)
}

// SetBendRange sets the pitch bend range in semitones.
func (p *Processor) SetBendRange(rng int) {
	if rng < song.CVBendMin || rng > song.CVBendMax {
		log.Printf("cvproc: bend range invalid: %d", rng)
		return
	}
	p.bendRange = rng
}

// SetOutputScaling sets the scaling mode of an output and rebuilds its
// note table.
func (p *Processor) SetOutputScaling(out, mode int) {
	if out < 0 || out >= NumOutputs || mode < 0 || mode > song.CVScalingMax {
		log.Printf("cvproc: scaling invalid: %d %d", out, mode)
		return
	}
	p.scaling[out] = mode
	p.buildScale(out)
}

// SetCVCal sets the calibration (span) of an output and rebuilds its
// note table.
func (p *Processor) SetCVCal(out, cal int) {
	if out < 0 || out >= NumOutputs || cal < song.CVCalMin || cal > song.CVCalMax {
		log.Printf("cvproc: cvcal invalid: %d %d", out, cal)
		return
	}
	p.cvcal[out] = cal
	p.buildScale(out)
}

// SetCVOffset sets the DC offset of an output.
func (p *Processor) SetCVOffset(out, offset int) {
	if out < 0 || out >= NumOutputs || offset < song.CVOffsetMin || offset > song.CVOffsetMax {
		log.Printf("cvproc: cvoffset invalid: %d %d", out, offset)
		return
	}
	p.cvoffset[out] = offset
}

// ClockPulse drives the analog clock line.
func (p *Processor) ClockPulse(on bool) {
	p.out.clockDesired = on
}

// ResetPulse drives the reset/metronome line.
func (p *Processor) ResetPulse(on bool) {
	p.out.resetDesired = on
}

// Beep enables or disables the internal metronome beeper.
func (p *Processor) Beep(enable bool) {
	p.out.beepEnable = enable
}

func (p *Processor) monoHandler(pair int, msg midi.Msg) {
	mode := p.pairMode[pair]
	switch msg.Kind() {
	case midi.NoteOff:
		note := int(msg.Data0)
		if note < noteMin || note > noteMax {
			return
		}
		for i := 0; i < monoDepth; i++ {
			if p.monoPrio[pair][i] == note {
				p.monoPrio[pair][i] = -1
			}
		}
		// the sounding note is still held
		if p.monoPrio[pair][p.monoPos[pair]] != -1 {
			return
		}
		// fall back to the most recent held note
		i := (p.monoPos[pair] - 1) & monoDepthMask
		for i != p.monoPos[pair] {
			if p.monoPrio[pair][i] != -1 {
				if mode == song.CVModeNote {
					p.setNote(p.outOffset[pair], p.monoPrio[pair][i], true)
				}
				// velo holds its value when falling back
				p.monoPos[pair] = i
				return
			}
			i = (i - 1) & monoDepthMask
		}
		if !p.damper[pair] {
			if mode == song.CVModeNote {
				p.setNote(p.outOffset[pair], note, false)
			} else if mode == song.CVModeVelo {
				p.setVelo(p.outOffset[pair], int(msg.Data1), false)
			}
		}
	case midi.NoteOn:
		note := int(msg.Data0)
		if note < noteMin || note > noteMax {
			return
		}
		held := false
		for i := 0; i < monoDepth; i++ {
			if p.monoPrio[pair][i] == note {
				p.monoPrio[pair][i] = -1
			}
			if p.monoPrio[pair][i] != -1 {
				held = true
			}
		}
		p.monoPos[pair] = (p.monoPos[pair] + 1) & monoDepthMask
		p.monoPrio[pair][p.monoPos[pair]] = note
		if mode == song.CVModeNote {
			p.setNote(p.outOffset[pair], note, true)
		} else if mode == song.CVModeVelo && !held {
			p.setVelo(p.outOffset[pair], int(msg.Data1), true)
		}
	case midi.ControlChange:
		if msg.Data0 != midi.CCDamperPedal {
			return
		}
		if msg.Data1 == 0x7f {
			p.damper[pair] = true
		} else if msg.Data1 == 0 {
			p.damper[pair] = false
			for i := 0; i < monoDepth; i++ {
				if p.monoPrio[pair][i] != -1 {
					return
				}
			}
			if mode == song.CVModeNote {
				p.setNote(p.outOffset[pair], p.outNote[p.outOffset[pair]], false)
			} else if mode == song.CVModeVelo {
				p.setVelo(p.outOffset[pair], 0, false)
			}
		}
	case midi.PitchBend:
		p.setBend(p.outOffset[pair], msg.BendValue())
	}
}

func (p *Processor) polyHandler(pair int, msg midi.Msg) {
	mode := p.pairMode[pair]
	voices := p.polyNumVoices[pair]
	if voices == 0 {
		return
	}
	switch msg.Kind() {
	case midi.NoteOff:
		for i := 0; i < voices; i++ {
			if p.polyAlloc[pair][i] == int(msg.Data0) {
				p.polyAlloc[pair][i] = -1
				if !p.damper[pair] {
					if mode == song.CVModeNote {
						p.setNote(p.outOffset[pair]+i, int(msg.Data0), false)
					} else if mode == song.CVModeVelo {
						p.setVelo(p.outOffset[pair]+i, int(msg.Data1), false)
					}
				}
			}
		}
	case midi.NoteOn:
		slot := -1
		for i := 0; i < voices; i++ {
			if p.polyAlloc[pair][i] == -1 {
				slot = i
				break
			}
		}
		if slot == -1 {
			return
		}
		p.polyAlloc[pair][slot] = int(msg.Data0)
		if mode == song.CVModeNote {
			p.setNote(p.outOffset[pair]+slot, int(msg.Data0), true)
		} else if mode == song.CVModeVelo {
			p.setVelo(p.outOffset[pair]+slot, int(msg.Data1), true)
		}
	case midi.ControlChange:
		if msg.Data0 != midi.CCDamperPedal {
			return
		}
		if msg.Data1 == 0x7f {
			p.damper[pair] = true
		} else if msg.Data1 == 0 {
			p.damper[pair] = false
			for i := 0; i < voices; i++ {
				if p.polyAlloc[pair][i] != -1 {
					return
				}
			}
			// release every free voice in the group
			for i := 0; i < voices; i++ {
				if mode == song.CVModeNote {
					p.setNote(p.outOffset[pair]+i, p.outNote[p.outOffset[pair]+i], false)
				} else if mode == song.CVModeVelo {
					p.setVelo(p.outOffset[pair]+i, 0, false)
				}
			}
		}
	case midi.PitchBend:
		bend := msg.BendValue()
		for i := 0; i < voices; i++ {
			p.setBend(p.outOffset[pair]+i, bend)
		}
	}
}

// ccHandler maps a run of CC numbers starting at the pair mode's CC
// base onto the pair's outputs.
func (p *Processor) ccHandler(pair int, msg midi.Msg) {
	voices := p.polyNumVoices[pair]
	if voices == 0 || msg.Kind() != midi.ControlChange {
		return
	}
	ccBase := p.pairMode[pair] - song.CVModeCCBase
	cc := int(msg.Data0)
	if cc < ccBase || cc >= ccBase+voices {
		return
	}
	out := (cc - ccBase) + p.outOffset[pair]
	p.writeCV(out, int(msg.Data1)<<5)
	// gate follows the CC level threshold
	p.out.setGate(out, msg.Data1&0x40 != 0)
}

func (p *Processor) resetState() {
	for i := 0; i < NumOutputs; i++ {
		p.setNote(i, defaultNote, false)
		p.setBend(i, 0)
	}
	for i := 0; i < NumPairs; i++ {
		for j := 0; j < monoDepth; j++ {
			p.monoPrio[i][j] = -1
		}
		p.monoPos[i] = 0
		for j := 0; j < polyVoiceCount; j++ {
			p.polyAlloc[i][j] = -1
		}
		p.damper[i] = false
	}
}

func (p *Processor) resetPair(pair int) {
	if pair < 0 || pair >= NumPairs {
		return
	}
	p.damper[pair] = false
	for i := 0; i < monoDepth; i++ {
		p.monoPrio[pair][i] = -1
	}
	p.monoPos[pair] = 0
	for i := 0; i < p.polyNumVoices[pair]; i++ {
		p.polyAlloc[pair][i] = -1
		p.setNote(p.outOffset[pair]+i, defaultNote, false)
		p.setBend(p.outOffset[pair]+i, 0)
	}
}

func (p *Processor) setNote(out, note int, gate bool) {
	if out < 0 || out >= NumOutputs || note < 0 || note > 127 {
		return
	}
	p.writeCV(out, p.scale[out][note]+p.outBend[out])
	p.out.setGate(out, gate)
	p.outNote[out] = note
}

func (p *Processor) setVelo(out, velo int, gate bool) {
	if out < 0 || out >= NumOutputs || velo < 0 || velo > 127 {
		return
	}
	if gate {
		p.writeCV(out, velo<<5) // convert to 12 bit
	}
	p.out.setGate(out, gate)
}

func (p *Processor) setBend(out, bend int) {
	if out < 0 || out >= NumOutputs || bend < -8192 || bend > 8191 {
		return
	}
	note := p.outNote[out]
	lo := note - p.bendRange
	hi := note + p.bendRange
	if lo < 0 || hi > 127 {
		return
	}
	if bend >= 0 {
		p.outBend[out] = ((p.scale[out][hi] - p.scale[out][note]) * bend) >> 13
	} else {
		p.outBend[out] = -(((p.scale[out][note] - p.scale[out][lo]) * -bend) >> 13)
	}
	p.writeCV(out, p.scale[out][note]+p.outBend[out])
}

func (p *Processor) writeCV(out, val int) {
	val += p.cvoffset[out]
	if val < 0 {
		val = 0
	} else if val > 0xfff {
		val = 0xfff
	}
	p.out.setCV(out, val)
}

// buildScale fills an output's note-to-DAC table. Middle C sits at the
// DAC midpoint and the semitone size is the nominal size for the
// scaling mode plus the calibration.
func (p *Processor) buildScale(out int) {
	stepSize := p.cvcal[out]
	switch p.scaling[out] {
	case song.CVScaling1p2VOct:
		stepSize += semiSize1p2VOct
	default:
		stepSize += semiSize1VOct
	}
	// middle C up - values are x16 for resolution
	val := 0x800 << 4
	for i := 60; i < 128; i++ {
		t := val >> 4
		if t > 0xfff {
			t = 0xfff
		}
		p.scale[out][i] = t
		val += stepSize
	}
	// B below middle C down
	val = (0x800 << 4) - stepSize
	for i := 59; i >= 0; i-- {
		t := val >> 4
		if t < 0 {
			t = 0
		}
		p.scale[out][i] = t
		val -= stepSize
	}
}
