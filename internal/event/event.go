// Package event implements the synchronous state-change dispatch system.
// Components register a handler for an event class and receive every
// event fired within that class, in registration order, on the firing
// goroutine. Handlers must not block.
package event

// Event classes. The class is encoded in the upper bits of each event
// type so a type maps back to its class without a lookup table.
const (
	ClassSong   = 0x010000
	ClassCtrl   = 0x020000
	ClassEngine = 0x030000
	ClassConfig = 0x040000
	ClassPower  = 0x050000
	ClassClock  = 0x060000

	classMask = 0xff0000
)

// Event types.
const (
	// song events
	SongCleared = ClassSong + iota // arg0 = song num
	SongLoaded                     // arg0 = song num
	SongLoadError                  // arg0 = song num
	SongSaved                      // arg0 = song num
	SongSaveError                  // arg0 = song num
	SongTempo                      // no args - float tempo must be fetched
	SongSwing                      // arg0 = swing
	SongMetronomeMode              // arg0 = mode
	SongMetronomeSoundLen          // arg0 = len
	SongKeyVelocityScale           // arg0 = scale
	SongCVBendRange                // arg0 = bend range
	SongCVGatePairs                // arg0 = pairing
	SongCVGatePairMode             // arg0 = pair, arg1 = mode
	SongCVOutputScaling            // arg0 = output, arg1 = mode
	SongCVCal                      // arg0 = channel, arg1 = cal
	SongCVOffset                   // arg0 = channel, arg1 = offset
	SongMIDIPortClockOut           // arg0 = port, arg1 = ppq
	SongMIDIClockSource            // arg0 = source
	SongMIDIRemoteCtrl             // arg0 = enable
	SongMIDIAutolive               // arg0 = enable
	SongSceneSync                  // arg0 = mode
	SongMagicRange                 // arg0 = range
	SongMagicChance                // arg0 = chance
	SongListScene                  // arg0 = entry, arg1 = scene
	SongListLength                 // arg0 = entry, arg1 = length
	SongListKbtrans                // arg0 = entry, arg1 = kbtrans
	SongMIDIProgram                // arg0 = track, arg1 = mapnum, arg2 = program
	SongMIDIPortMap                // arg0 = track, arg1 = mapnum, arg2 = port
	SongMIDIChannelMap             // arg0 = track, arg1 = mapnum, arg2 = channel
	SongKeySplit                   // arg0 = track, arg1 = mode
	SongTrackType                  // arg0 = track, arg1 = mode
	SongStepLen                    // arg0 = scene, arg1 = track, arg2 = length
	SongTonality                   // arg0 = scene, arg1 = track, arg2 = tonality
	SongTranspose                  // arg0 = scene, arg1 = track, arg2 = transpose
	SongBiasTrack                  // arg0 = scene, arg1 = track, arg2 = bias track
	SongMotionStart                // arg0 = scene, arg1 = track, arg2 = start
	SongMotionLength               // arg0 = scene, arg1 = track, arg2 = length
	SongGateTime                   // arg0 = scene, arg1 = track, arg2 = time
	SongPatternType                // arg0 = scene, arg1 = track, arg2 = pattern
	SongMotionDir                  // arg0 = scene, arg1 = track, arg2 = reverse
	SongMute                       // arg0 = scene, arg1 = track, arg2 = mute
	SongArpType                    // arg0 = scene, arg1 = track, arg2 = type
	SongArpSpeed                   // arg0 = scene, arg1 = track, arg2 = speed
	SongArpGateTime                // arg0 = scene, arg1 = track, arg2 = time
	SongArpEnable                  // arg0 = scene, arg1 = track, arg2 = enable
	SongClearStep                  // arg0 = scene, arg1 = track, arg2 = step
	SongClearStepEvent             // arg0 = scene, arg1 = track, arg2 = step
	SongAddStepEvent               // arg0 = scene, arg1 = track, arg2 = step
	SongSetStepEvent               // arg0 = scene, arg1 = track, arg2 = step
	SongStartDelay                 // arg0 = scene, arg1 = track, arg2 = step
	SongRatchetMode                // arg0 = scene, arg1 = track, arg2 = step
)

const (
	// control events
	CtrlRunState = ClassCtrl + iota // arg0 = state
	CtrlTrackSelect                 // arg0 = track, arg1 = select
	CtrlFirstTrack                  // arg0 = track
	CtrlSongMode                    // arg0 = song mode
	CtrlLiveMode                    // arg0 = live mode
	CtrlRecordMode                  // arg0 = record mode
	CtrlClockBeat                   // no args
	CtrlExtTempo                    // no args
	CtrlExtSync                     // arg0 = synced
)

const (
	// engine events
	EngineCurrentScene = ClassEngine + iota // arg0 = scene
	EngineActiveStep                        // arg0 = track, arg1 = step
	EngineSongModeStatus                    // no args
	EngineKbtrans                           // arg0 = transpose
)

const (
	// config events
	ConfigLoaded = ClassConfig + iota // no args
	ConfigCleared                     // no args
)

const (
	// power events
	PowerState = ClassPower + iota // arg0 = state
)

const (
	// clock events
	ClockBeat = ClassClock + iota // no args
	ClockSource                   // arg0 = source
	ClockTapLock                  // no args
)

// Handler receives an event type and its arguments.
type Handler func(eventType int, args []int)

type subscriber struct {
	class   int
	handler Handler
}

// Bus dispatches events to subscribers synchronously.
type Bus struct {
	subs []subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events in a class.
func (b *Bus) Subscribe(class int, handler Handler) {
	b.subs = append(b.subs, subscriber{class: class, handler: handler})
}

// Fire delivers an event to every handler registered for its class
// before returning.
func (b *Bus) Fire(eventType int, args ...int) {
	class := eventType & classMask
	for _, s := range b.subs {
		if s.class == class {
			s.handler(eventType, args)
		}
	}
}
