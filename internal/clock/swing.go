package clock

import "github.com/kilpatrickaudio/carbon/internal/ticks"

// Swing settings are 0-30 representing 50-80 percent. The table entry
// at [setting][pos] is how many sequencer ticks to dispatch at PPQ
// position pos. Every row sums to exactly PPQ so beats stay aligned no
// matter the swing.
const (
	SwingMin = 50
	SwingMax = 80

	numSwingSettings = SwingMax - SwingMin + 1
	halfBeat         = ticks.PPQ / 2 // a pair of 16ths
	sixteenth        = ticks.PPQ / 4
)

var swingTable [numSwingSettings][ticks.PPQ]int

func init() {
	for s := 0; s < numSwingSettings; s++ {
		// delay of the off-16th start within its half beat: at swing
		// pct the off 16th starts at halfBeat*pct/100
		delay := halfBeat*(SwingMin+s)/100 - sixteenth
		for group := 0; group < 2; group++ {
			base := group * halfBeat
			// on 16th runs at nominal rate
			for i := 0; i < sixteenth; i++ {
				swingTable[s][base+i] = 1
			}
			// withhold ticks while the off 16th is delayed
			for i := 0; i < delay; i++ {
				swingTable[s][base+sixteenth+i] = 0
			}
			// dispatch the off 16th's full tick count over the
			// remaining positions so the half beat always carries
			// exactly 2*sixteenth ticks
			remain := sixteenth - delay
			per := sixteenth / remain
			extra := sixteenth % remain
			for i := 0; i < remain; i++ {
				n := per
				if i >= remain-extra {
					n++
				}
				swingTable[s][base+sixteenth+delay+i] = n
			}
		}
	}
}

// swingTicks returns the number of ticks to dispatch for a swing
// setting at a PPQ position.
func swingTicks(setting int, pos uint32) int {
	if setting < 0 || setting >= numSwingSettings {
		setting = 0
	}
	return swingTable[setting][pos%ticks.PPQ]
}
