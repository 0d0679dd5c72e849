package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kilpatrickaudio/carbon/internal/clock"
	"github.com/kilpatrickaudio/carbon/internal/config"
	"github.com/kilpatrickaudio/carbon/internal/cvproc"
	"github.com/kilpatrickaudio/carbon/internal/engine"
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/flash"
	"github.com/kilpatrickaudio/carbon/internal/midi"
	"github.com/kilpatrickaudio/carbon/internal/midiconnector"
	"github.com/kilpatrickaudio/carbon/internal/monitor"
	"github.com/kilpatrickaudio/carbon/internal/outproc"
	"github.com/kilpatrickaudio/carbon/internal/pattern"
	"github.com/kilpatrickaudio/carbon/internal/seqctrl"
	"github.com/kilpatrickaudio/carbon/internal/song"
	"github.com/kilpatrickaudio/carbon/internal/storage"
	"github.com/kilpatrickaudio/carbon/internal/sysex"
)

// flashImageSize covers the song region plus the config sector.
const flashImageSize = flash.ConfigOffset + flash.ConfigSize

var (
	flagFlashImage string
	flagDebugLog   string
	flagMIDIOut    string
	flagMIDIIn     string
	flagOSCHost    string
	flagOSCPort    int
	flagCVTrace    string
	flagSong       int
	flagStart      bool
)

func main() {
	root := &cobra.Command{
		Use:   "carbon",
		Short: "six-track hardware step sequencer core",
	}
	root.PersistentFlags().StringVar(&flagFlashImage, "flash-image", "carbon-flash.bin", "backing flash image file")
	root.PersistentFlags().StringVar(&flagDebugLog, "debug", "", "if set, write debug logs to this file; empty disables logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the sequencer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSequencer(false)
		},
	}
	runCmd.Flags().StringVar(&flagMIDIOut, "midi-out", "", "MIDI device bound to the DIN1 output")
	runCmd.Flags().StringVar(&flagMIDIIn, "midi-in", "", "MIDI device bound to the DIN1 input")
	runCmd.Flags().StringVar(&flagOSCHost, "osc-host", "", "if set, stream CV/gate as OSC to this host")
	runCmd.Flags().IntVar(&flagOSCPort, "osc-port", 57120, "OSC port for the CV/gate stream")
	runCmd.Flags().StringVar(&flagCVTrace, "cv-trace", "", "if set, capture CV/gate lines to this WAV file on exit")
	runCmd.Flags().IntVar(&flagSong, "song", 0, "song number to load at startup")
	runCmd.Flags().BoolVar(&flagStart, "start", false, "start playback immediately")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "run the sequencer with the event monitor UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSequencer(true)
		},
	}
	monitorCmd.Flags().AddFlagSet(runCmd.Flags())

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "list system MIDI devices",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("outputs:")
			for _, n := range midiconnector.Devices() {
				fmt.Printf("  %s\n", n)
			}
			fmt.Println("inputs:")
			for _, n := range midiconnector.InputDevices() {
				fmt.Printf("  %s\n", n)
			}
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <song-num> <project-file>",
		Short: "export a song from the flash image to a project file",
		Args:  cobra.ExactArgs(2),
		RunE:  exportSong,
	}
	importCmd := &cobra.Command{
		Use:   "import <project-file> <song-num>",
		Short: "import a project file into the flash image",
		Args:  cobra.ExactArgs(2),
		RunE:  importSong,
	}

	root.AddCommand(runCmd, monitorCmd, portsCmd, exportCmd, importCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging routes the log package per the --debug flag.
func setupLogging() (*os.File, error) {
	if flagDebugLog == "" {
		log.SetOutput(io.Discard)
		return nil, nil
	}
	f, err := os.OpenFile(flagDebugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("debug logging enabled")
	return f, nil
}

// cvRouter sends CV-port traffic to the CV processor and everything
// else to the MIDI router.
type cvRouter struct {
	router *midiconnector.Router
	cv     *cvproc.Processor
}

func (r *cvRouter) Send(msg midi.Msg) {
	if msg.Port == midi.PortCVOut {
		r.cv.HandleMessage(msg)
		return
	}
	r.router.Send(msg)
}

// system wires every component together in dependency order.
type system struct {
	bus     *event.Bus
	dev     *flash.FileDevice
	cfg     *config.Store
	songs   *song.Store
	bank    *pattern.Bank
	cv      *cvproc.Processor
	trace   *cvproc.Trace
	router  *midiconnector.Router
	out     *outproc.Processor
	eng     *engine.Engine
	clk     *clock.Clock
	ctrl    *seqctrl.Controller
	sx      *sysex.Parser
	inQueue *midi.Queue
}

func buildSystem() (*system, error) {
	s := &system{bus: event.NewBus()}
	var err error
	s.dev, err = flash.NewFileDevice(flagFlashImage, flashImageSize)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}
	s.cfg = config.NewStore(s.dev, s.bus, 0)
	s.songs = song.NewStore(s.dev, s.bus)
	s.bank = pattern.NewBank(s.cfg, s.songs, s.bus)

	var dac cvproc.DACWriter = cvproc.NullDAC{}
	if flagOSCHost != "" {
		dac = cvproc.NewOSCSink(flagOSCHost, flagOSCPort, "/carbon")
	}
	if flagCVTrace != "" {
		s.trace = cvproc.NewTrace(dac, 1000)
		dac = s.trace
	}
	s.cv = cvproc.New(dac)

	s.router = midiconnector.NewRouter()
	sender := &cvRouter{router: s.router, cv: s.cv}
	s.out = outproc.New(s.songs, sender)
	s.eng = engine.New(s.bus, s.songs, s.bank, s.out, s.cv, sender, time.Now().UnixNano())
	s.clk = clock.New(s.bus)
	s.ctrl = seqctrl.New(s.bus, s.songs, s.eng, s.clk, s.cv, time.Now().UnixNano())
	s.clk.SetHandlers(s.eng.ClockTick, s.ctrl.ClockRunStateChanged, s.ctrl.ResetPos)
	s.sx = sysex.New(s.cfg, s.dev, s.router, func() {
		log.Printf("restart requested over sysex")
		os.Exit(0)
	})
	s.inQueue = midi.NewQueue(256)

	if flagMIDIOut != "" {
		if err := s.router.BindOutput(midi.PortDIN1Out, flagMIDIOut); err != nil {
			log.Printf("bind midi out: %v", err)
		}
	}
	if flagMIDIIn != "" {
		if err := s.router.BindInput(midi.PortDIN1In, flagMIDIIn, s.inQueue, s.sx.FeedByte); err != nil {
			log.Printf("bind midi in: %v", err)
		}
	}
	return s, nil
}

// tick runs one 1000 us period in the documented fixed order:
// realtime sequencer, MIDI I/O, flash I/O, config writeback, CV.
func (s *system) tick() {
	s.clk.Tick()
	s.eng.TimeTick()
	for {
		msg, ok := s.inQueue.Pop()
		if !ok {
			break
		}
		s.ctrl.HandleMIDIInput(msg)
	}
	s.sx.Tick()
	s.dev.Tick()
	s.songs.Tick()
	s.cfg.Tick()
	s.cv.Tick()
	if s.trace != nil {
		s.trace.Sample()
	}
}

func runSequencer(withMonitor bool) error {
	logFile, err := setupLogging()
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	s, err := buildSystem()
	if err != nil {
		return err
	}
	defer s.router.Close()

	var events chan monitor.Event
	var status chan monitor.Status
	if withMonitor {
		events = make(chan monitor.Event, 256)
		status = make(chan monitor.Status, 16)
		for _, class := range []int{event.ClassSong, event.ClassCtrl, event.ClassEngine,
			event.ClassConfig, event.ClassClock} {
			s.bus.Subscribe(class, func(eventType int, args []int) {
				snapshot := monitor.Event{Type: eventType, Args: append([]int(nil), args...)}
				select {
				case events <- snapshot:
				default: // the monitor never back-pressures the core
				}
			})
		}
	}

	if err := s.ctrl.LoadSong(flagSong); err != nil {
		log.Printf("load song %d: %v", flagSong, err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		started := false
		statusDiv := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.tick()
				if !started && flagStart && !s.ctrl.RunLockout() {
					s.ctrl.SetRunState(true)
					started = true
				}
				if status != nil {
					statusDiv++
					if statusDiv >= 100 {
						statusDiv = 0
						select {
						case status <- monitor.Status{
							Tempo:   s.clk.Tempo(),
							Running: s.ctrl.RunState(),
							Scene:   s.ctrl.Scene(),
							Source:  s.clk.Source(),
							Song:    s.ctrl.CurrentSong(),
							Kbtrans: s.eng.Kbtrans(),
						}:
						default:
						}
					}
				}
			}
		}
	}()

	if withMonitor {
		p := tea.NewProgram(monitor.New(events, status), tea.WithAltScreen())
		_, err = p.Run()
		close(done)
	} else {
		fmt.Println("carbon running - ctrl-c to quit")
		<-stop
		close(done)
	}

	if s.trace != nil {
		if terr := s.trace.WriteFile(flagCVTrace); terr != nil {
			log.Printf("cv trace: %v", terr)
		} else {
			fmt.Printf("wrote CV trace to %s\n", flagCVTrace)
		}
	}
	return err
}

// exportSong pulls a song out of the flash image into a project file.
func exportSong(cmd *cobra.Command, args []string) error {
	logFile, err := setupLogging()
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	var num int
	if _, err := fmt.Sscanf(args[0], "%d", &num); err != nil {
		return fmt.Errorf("bad song number: %s", args[0])
	}
	s, err := buildSystem()
	if err != nil {
		return err
	}
	if err := s.songs.Load(num); err != nil {
		return err
	}
	for s.songs.Busy() {
		s.dev.Tick()
		s.songs.Tick()
	}
	if err := storage.SaveProject(args[1], s.songs); err != nil {
		return err
	}
	fmt.Printf("exported song %d to %s\n", num, args[1])
	return nil
}

// importSong loads a project file and saves it as a song in the image.
func importSong(cmd *cobra.Command, args []string) error {
	logFile, err := setupLogging()
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	var num int
	if _, err := fmt.Sscanf(args[1], "%d", &num); err != nil {
		return fmt.Errorf("bad song number: %s", args[1])
	}
	s, err := buildSystem()
	if err != nil {
		return err
	}
	if err := storage.LoadProject(args[0], s.songs); err != nil {
		return err
	}
	if err := s.songs.Save(num); err != nil {
		return err
	}
	for s.songs.Busy() {
		s.dev.Tick()
		s.songs.Tick()
	}
	fmt.Printf("imported %s into song %d\n", args[0], num)
	return nil
}
