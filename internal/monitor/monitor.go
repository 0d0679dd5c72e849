// Package monitor renders a read-only view of the event bus in the
// terminal: transport state, scene, active steps and a scrolling log of
// state changes. It never mutates anything; the realtime loop feeds it
// snapshots over a channel.
package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"github.com/kilpatrickaudio/carbon/internal/event"
)

// Event is one bus event snapshot delivered to the monitor.
type Event struct {
	Type int
	Args []int
}

// Status is the periodic transport snapshot.
type Status struct {
	Tempo    float64
	Running  bool
	Scene    int
	Source   int
	Song     int
	Kbtrans  int
}

const maxLogLines = 500

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// beatRampColor blends from the accent color down to grey as the beat
// flash decays.
func beatRampColor(level float64) lipgloss.Color {
	hot, _ := colorful.Hex("#00d7af")
	cold, _ := colorful.Hex("#444444")
	c := cold.BlendLuv(hot, level)
	return lipgloss.Color(c.Hex())
}

// Model is the bubbletea model for the monitor.
type Model struct {
	events   <-chan Event
	status   <-chan Status
	vp       viewport.Model
	lines    []string
	st       Status
	beatGlow float64
	steps    [6]int
	ready    bool
}

// New creates a monitor fed by the given channels.
func New(events <-chan Event, status <-chan Status) Model {
	// force truecolor detection through termenv so the ramp renders
	lipgloss.SetColorProfile(termenv.ColorProfile())
	return Model{events: events, status: status}
}

type eventMsg Event
type statusMsg Status
type tickMsg struct{}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitEvent(), m.waitStatus())
}

func (m Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return tea.Quit()
		}
		return eventMsg(ev)
	}
}

func (m Model) waitStatus() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-m.status
		if !ok {
			return tea.Quit()
		}
		return statusMsg(st)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.vp = viewport.New(msg.Width, msg.Height-4)
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		m.ready = true
		return m, nil
	case statusMsg:
		m.st = Status(msg)
		return m, m.waitStatus()
	case eventMsg:
		m.beatGlow *= 0.9
		if msg.Type == event.ClockBeat {
			m.beatGlow = 1.0
		}
		if msg.Type == event.EngineActiveStep && len(msg.Args) >= 2 {
			if msg.Args[0] >= 0 && msg.Args[0] < 6 {
				m.steps[msg.Args[0]] = msg.Args[1]
			}
		} else {
			m.lines = append(m.lines, describe(Event(msg)))
			if len(m.lines) > maxLogLines {
				m.lines = m.lines[len(m.lines)-maxLogLines:]
			}
			if m.ready {
				m.vp.SetContent(strings.Join(m.lines, "\n"))
				m.vp.GotoBottom()
			}
		}
		return m, m.waitEvent()
	}
	return m, nil
}

func (m Model) View() string {
	run := stoppedStyle.Render("STOP")
	if m.st.Running {
		run = valueStyle.Render("RUN")
	}
	source := "INT"
	if m.st.Source != 0 {
		source = "EXT"
	}
	beat := lipgloss.NewStyle().Foreground(beatRampColor(m.beatGlow)).Render("●")
	header := fmt.Sprintf("%s  %s %s  %s %.1f  %s %d  %s %s  %s %d  %s",
		titleStyle.Render("carbon monitor"),
		labelStyle.Render("run"), run,
		labelStyle.Render("bpm"), m.st.Tempo,
		labelStyle.Render("scene"), m.st.Scene+1,
		labelStyle.Render("clk"), source,
		labelStyle.Render("song"), m.st.Song+1,
		beat,
	)
	var steps []string
	for t, s := range m.steps {
		steps = append(steps, fmt.Sprintf("T%d:%02d", t+1, s+1))
	}
	stepLine := labelStyle.Render(strings.Join(steps, "  "))
	if !m.ready {
		return header + "\n" + stepLine + "\n"
	}
	return header + "\n" + stepLine + "\n" + m.vp.View() + "\n" +
		labelStyle.Render("q quits · arrows scroll")
}

// describe renders one event as a log line.
func describe(ev Event) string {
	name, ok := eventNames[ev.Type]
	if !ok {
		name = fmt.Sprintf("event 0x%06x", ev.Type)
	}
	if len(ev.Args) == 0 {
		return name
	}
	parts := make([]string, len(ev.Args))
	for i, a := range ev.Args {
		parts[i] = fmt.Sprintf("%d", a)
	}
	return name + " " + strings.Join(parts, " ")
}

var eventNames = map[int]string{
	event.SongCleared:        "song cleared",
	event.SongLoaded:         "song loaded",
	event.SongLoadError:      "song load error",
	event.SongSaved:          "song saved",
	event.SongSaveError:      "song save error",
	event.SongTempo:          "tempo",
	event.SongSwing:          "swing",
	event.SongMute:           "mute",
	event.SongTranspose:      "transpose",
	event.SongTonality:       "tonality",
	event.SongPatternType:    "pattern",
	event.CtrlRunState:       "run state",
	event.CtrlTrackSelect:    "track select",
	event.CtrlFirstTrack:     "first track",
	event.CtrlSongMode:       "song mode",
	event.CtrlLiveMode:       "live mode",
	event.CtrlRecordMode:     "record mode",
	event.EngineCurrentScene: "scene",
	event.EngineSongModeStatus: "song list done",
	event.EngineKbtrans:      "kbtrans",
	event.ConfigLoaded:       "config loaded",
	event.ConfigCleared:      "config cleared",
	event.ClockSource:        "clock source",
	event.ClockTapLock:       "tap lock",
}
