package outproc

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/scale"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

// balanceSender tallies note ons minus note offs per (port, channel,
// note) as they are transmitted.
type balanceSender struct {
	balance map[[3]int]int
	dipped  bool
}

func newBalanceSender() *balanceSender {
	return &balanceSender{balance: make(map[[3]int]int)}
}

func (b *balanceSender) Send(msg midi.Msg) {
	key := [3]int{msg.Port, msg.Channel(), int(msg.Data0)}
	switch msg.Kind() {
	case midi.NoteOn:
		b.balance[key]++
	case midi.NoteOff:
		b.balance[key]--
		if b.balance[key] < 0 {
			b.dipped = true
		}
	}
}

func (b *balanceSender) settled() bool {
	for _, v := range b.balance {
		if v != 0 {
			return false
		}
	}
	return true
}

// TestNoteOnOffBalanceProperty drives random play/release sequences
// interleaved with transpose and tonality changes, then closes every
// note. The transmitted stream must balance to zero for every
// (port, channel, note) with no note off ever preceding its note on.
func TestNoteOnOffBalanceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("note ons and offs balance", prop.ForAll(
		func(seed int64, ops int) bool {
			dev := flash.NewMemDevice(flash.ConfigOffset + flash.ConfigSize)
			bus := event.NewBus()
			songStore := song.NewStore(dev, bus)
			sender := newBalanceSender()
			p := New(songStore, sender)

			rnd := rand.New(rand.NewSource(seed))
			held := map[byte]bool{}

			for i := 0; i < ops; i++ {
				switch rnd.Intn(4) {
				case 0: // press
					if len(held) >= 10 {
						continue
					}
					note := byte(30 + rnd.Intn(60))
					if held[note] {
						continue
					}
					held[note] = true
					p.Deliver(0, 0, midi.NewNoteOn(0, 0, note, 100),
						DeliverBoth, OutputProcessed)
				case 1: // release
					for note := range held {
						delete(held, note)
						p.Deliver(0, 0, midi.NewNoteOff(0, 0, note, 100),
							DeliverBoth, OutputProcessed)
						break
					}
				case 2: // retune transpose
					songStore.SetTranspose(0, 0, rnd.Intn(49)-24)
					p.TransposeChanged(0, 0)
				case 3: // retune tonality
					songStore.SetTonality(0, 0, rnd.Intn(scale.NumScales))
					p.TonalityChanged(0, 0)
				}
			}
			// close out everything still sounding
			for note := range held {
				p.Deliver(0, 0, midi.NewNoteOff(0, 0, note, 100),
					DeliverBoth, OutputProcessed)
			}
			p.StopAllNotes(0)

			return sender.settled() && !sender.dipped && p.NumNotes(0) == 0
		},
		gen.Int64Range(0, 1<<40),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
