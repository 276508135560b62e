// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"mixdeck/internal/output"
)

// DeviceListModel lets the user pick an output device and sample rate.
type DeviceListModel struct {
	devices       []output.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	configuring   bool
	chosen        bool

	selectedSampleRate   float64
	availableSampleRates []float64
	sampleRateIndex      int

	fetch func() ([]output.Device, error)
}

// NewDeviceListModel creates a picker that reads devices with fetch.
func NewDeviceListModel(fetch func() ([]output.Device, error)) DeviceListModel {
	return DeviceListModel{
		fetch:                fetch,
		availableSampleRates: []float64{44100, 48000, 88200, 96000},
	}
}

// Selection returns the chosen device ID and sample rate, and whether the
// user confirmed a choice before quitting.
func (m DeviceListModel) Selection() (deviceID int, sampleRate float64, ok bool) {
	if !m.chosen || len(m.devices) == 0 {
		return 0, 0, false
	}
	return m.devices[m.selectedIndex].ID, m.selectedSampleRate, true
}

type devicesMsg struct {
	devices []output.Device
}

type errMsg struct {
	err error
}

func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		outputs := devices[:0:0]
		for _, d := range devices {
			if d.MaxOutputChannels > 0 {
				outputs = append(outputs, d)
			}
		}
		return devicesMsg{outputs}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))) {
			return m, tea.Quit
		}

		if !m.configuring {
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				if len(m.devices) > 0 {
					m.configuring = true
					m.selectedSampleRate = m.devices[m.selectedIndex].DefaultSampleRate
					m.sampleRateIndex = 0
					for i, rate := range m.availableSampleRates {
						if rate == m.selectedSampleRate {
							m.sampleRateIndex = i
							break
						}
					}
					m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
				}
			}
		} else {
			switch {
			case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
				m.configuring = false
			case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
				if m.sampleRateIndex < len(m.availableSampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
				m.chosen = true
				return m, tea.Quit
			}
			m.selectedSampleRate = m.availableSampleRates[m.sampleRateIndex]
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.configuring {
		m.viewport.SetContent(m.renderDeviceConfig())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

func (m DeviceListModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}
	if !m.ready {
		return "Initializing..."
	}

	hint := "↑/↓ select • enter configure • q quit"
	if m.configuring {
		hint = "↑/↓ sample rate • enter confirm • esc back • q quit"
	}
	return titleStyle.Render("Output Devices") + "\n\n" + m.viewport.View() + "\n" + dimStyle.Render(hint)
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return infoStyle.Render("No output devices found.")
	}

	var sb strings.Builder
	for i, device := range m.devices {
		prefix := "  "
		if i == m.selectedIndex {
			prefix = "▶ "
		}

		deviceInfo := fmt.Sprintf("%s[%d] %s", prefix, device.ID, device.Name)
		if device.HostAPI != "" {
			deviceInfo += fmt.Sprintf(" (%s)", device.HostAPI)
		}
		deviceInfo += fmt.Sprintf("\n    Output channels: %d, default sample rate: %.0f Hz\n",
			device.MaxOutputChannels, device.DefaultSampleRate)

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	sb.WriteString(fmt.Sprintf("Configure Device: %s\n\n", device.Name))
	sb.WriteString("Sample Rate:\n")

	for i, rate := range m.availableSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz\n", marker, rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// PickDevice runs the picker full screen and returns the user's choice.
func PickDevice(fetch func() ([]output.Device, error)) (deviceID int, sampleRate float64, ok bool, err error) {
	p := tea.NewProgram(NewDeviceListModel(fetch), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return 0, 0, false, err
	}
	deviceID, sampleRate, ok = final.(DeviceListModel).Selection()
	return deviceID, sampleRate, ok, nil
}
