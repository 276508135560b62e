// SPDX-License-Identifier: MIT
/*
Package tui is the terminal front end: a deck showing every track's
looping playhead with transport, tempo and key controls, and an output
device picker.

The deck only calls the engine's control plane. Engine notifications reach
it as tea messages through Listener, so listener code runs on the Bubble
Tea goroutine and never on the render or loader goroutines.
*/
package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"mixdeck/internal/audio"
	"mixdeck/internal/notify"
)

// Keys cycled by the key binding, major then relative minor.
var musicalKeys = []string{
	"C", "Am", "G", "Em", "D", "Bm", "A", "F#m", "E", "C#m", "B", "G#m",
	"F#", "D#m", "C#", "A#m", "F", "Dm", "Bb", "Gm", "Eb", "Cm", "Ab", "Fm",
}

const refreshInterval = 50 * time.Millisecond

// Deck is the control plane the UI drives.
type Deck interface {
	Tracks() []audio.TrackInfo
	IsPlaying() bool
	Play()
	Stop()
	RemoveTrack(id int)
	BPM() int
	SetBPM(bpm int) error
	Key() string
	SetKey(key string) error
}

type keyMap struct {
	Toggle  key.Binding
	Up      key.Binding
	Down    key.Binding
	Remove  key.Binding
	Faster  key.Binding
	Slower  key.Binding
	NextKey key.Binding
	PrevKey key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Faster, k.Slower, k.NextKey, k.Remove, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Up, k.Down, k.Remove},
		{k.Faster, k.Slower, k.NextKey, k.PrevKey, k.Quit},
	}
}

var defaultKeys = keyMap{
	Toggle:  key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "play/stop")),
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "select")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "select")),
	Remove:  key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "remove")),
	Faster:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "bpm up")),
	Slower:  key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "bpm down")),
	NextKey: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next key")),
	PrevKey: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev key")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// EventMsg carries an engine notification into the program.
type EventMsg struct {
	Event notify.Event
}

type tickMsg time.Time

// DeckModel is the Bubble Tea model of the deck screen.
type DeckModel struct {
	deck Deck
	keys keyMap
	help help.Model
	bar  progress.Model

	tracks   []audio.TrackInfo
	selected int
	playing  bool
	bpm      int
	key      string

	lastEvent string
	err       error
	width     int
}

func NewDeckModel(deck Deck) DeckModel {
	m := DeckModel{
		deck: deck,
		keys: defaultKeys,
		help: help.New(),
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
	}
	m.sync()
	return m
}

// Listener forwards engine notifications to p. The caller must keep the
// returned listener referenced for as long as it is registered.
func Listener(p *tea.Program) *notify.Listener {
	return notify.NewListener(func(e notify.Event) {
		p.Send(EventMsg{Event: e})
	})
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m DeckModel) Init() tea.Cmd {
	return tick()
}

// sync pulls the engine state the view renders.
func (m *DeckModel) sync() {
	m.tracks = m.deck.Tracks()
	m.playing = m.deck.IsPlaying()
	m.bpm = m.deck.BPM()
	m.key = m.deck.Key()
	if m.selected >= len(m.tracks) {
		m.selected = max(len(m.tracks)-1, 0)
	}
}

func (m DeckModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = max(10, min(40, msg.Width-50))

	case tickMsg:
		m.sync()
		return m, tick()

	case EventMsg:
		m.lastEvent = describe(msg.Event)
		m.sync()

	case tea.KeyMsg:
		m.err = nil
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			if m.deck.IsPlaying() {
				m.deck.Stop()
			} else {
				m.deck.Play()
			}
		case key.Matches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, m.keys.Down):
			if m.selected < len(m.tracks)-1 {
				m.selected++
			}
		case key.Matches(msg, m.keys.Remove):
			if len(m.tracks) > 0 {
				m.deck.RemoveTrack(m.tracks[m.selected].ID)
			}
		case key.Matches(msg, m.keys.Faster):
			m.err = m.deck.SetBPM(m.deck.BPM() + 1)
		case key.Matches(msg, m.keys.Slower):
			m.err = m.deck.SetBPM(m.deck.BPM() - 1)
		case key.Matches(msg, m.keys.NextKey):
			m.err = m.deck.SetKey(cycleKey(m.deck.Key(), 1))
		case key.Matches(msg, m.keys.PrevKey):
			m.err = m.deck.SetKey(cycleKey(m.deck.Key(), -1))
		}
		m.sync()
	}
	return m, nil
}

// cycleKey steps through musicalKeys; unknown keys restart at C.
func cycleKey(current string, step int) string {
	for i, k := range musicalKeys {
		if k == current {
			n := len(musicalKeys)
			return musicalKeys[((i+step)%n+n)%n]
		}
	}
	return musicalKeys[0]
}

func describe(e notify.Event) string {
	switch e := e.(type) {
	case notify.FileLoaded:
		return fmt.Sprintf("loaded %s on track %d", filepath.Base(e.Path), e.TrackID)
	case notify.LoadFailed:
		return fmt.Sprintf("track %d: %s", e.TrackID, e.Reason)
	case notify.TrackRemoved:
		return fmt.Sprintf("removed track %d", e.TrackID)
	case notify.BPMChanged:
		return fmt.Sprintf("tempo %d bpm", e.BPM)
	case notify.KeyChanged:
		return fmt.Sprintf("key %s", e.Key)
	case notify.PlaybackStarted:
		return "playing"
	case notify.PlaybackStopped:
		return "stopped"
	default:
		return e.Kind()
	}
}

func (m DeckModel) View() string {
	var sb strings.Builder

	state := "■ STOPPED"
	if m.playing {
		state = "▶ PLAYING"
	}
	sb.WriteString(titleStyle.Render("mixdeck"))
	sb.WriteString("  ")
	sb.WriteString(highlightStyle.Render(state))
	sb.WriteString(infoStyle.Render(fmt.Sprintf("  %d BPM  key %s", m.bpm, m.key)))
	sb.WriteString("\n\n")

	if len(m.tracks) == 0 {
		sb.WriteString(dimStyle.Render("  no tracks loaded"))
		sb.WriteString("\n")
	}
	for i, t := range m.tracks {
		prefix := "  "
		if i == m.selected {
			prefix = "▶ "
		}
		name := fmt.Sprintf("%s[%d] %-24.24s", prefix, t.ID, filepath.Base(t.Path))
		if i == m.selected {
			name = highlightStyle.Render(name)
		}
		sb.WriteString(name)
		sb.WriteString(" ")
		sb.WriteString(m.bar.ViewAs(t.Position))
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  %5.1fs %s %dHz %dch",
			t.Duration.Seconds(), t.Format, t.SampleRate, t.Channels)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if m.err != nil {
		sb.WriteString(errorStyle.Render(m.err.Error()))
		sb.WriteString("\n")
	} else if m.lastEvent != "" {
		sb.WriteString(dimStyle.Render(m.lastEvent))
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// Run shows the deck until the user quits. Engine notifications are
// delivered to the deck while it runs.
func Run(deck Deck, subscribe func(*notify.Listener), unsubscribe func(*notify.Listener)) error {
	p := tea.NewProgram(NewDeckModel(deck), tea.WithAltScreen())

	l := Listener(p)
	subscribe(l)
	defer unsubscribe(l)

	_, err := p.Run()
	return err
}
