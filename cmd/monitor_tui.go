// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/kestrel/pkg/motion"
	"github.com/Thermoquad/kestrel/pkg/quad"
	"github.com/Thermoquad/kestrel/pkg/remote"
	"github.com/Thermoquad/kestrel/pkg/telemetry"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries = 100
	staleAfter    = time.Second // telemetry older than this is flagged
	thrustBarSize = 20
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// eventSender is the part of the remote client the model needs
type eventSender interface {
	Send(motion.Event) error
}

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorKeyMap struct {
	Takeoff  key.Binding
	Land     key.Binding
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Center   key.Binding
	Kill     key.Binding
	Shutdown key.Binding
	Quit     key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Takeoff, k.Land, k.Up, k.Left, k.Center, k.Kill, k.Shutdown, k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Takeoff, k.Land, k.Kill, k.Shutdown},
		{k.Up, k.Down, k.Left, k.Right, k.Center},
		{k.Quit},
	}
}

var monitorKeys = monitorKeyMap{
	Takeoff:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "takeoff")),
	Land:     key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "land")),
	Up:       key.NewBinding(key.WithKeys("up"), key.WithHelp("↑↓", "pitch")),
	Down:     key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "pitch -")),
	Left:     key.NewBinding(key.WithKeys("left"), key.WithHelp("←→", "roll")),
	Right:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "roll +")),
	Center:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "center")),
	Kill:     key.NewBinding(key.WithKeys("k"), key.WithHelp("k", "KILL")),
	Shutdown: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shutdown")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// monitorModel is the Bubble Tea model for the ground station
type monitorModel struct {
	sender   eventSender
	connInfo string
	step     float64

	// Telemetry
	snap         *telemetry.Snapshot
	lastSnapshot time.Time
	snapshots    int

	// Tele-operation command
	roll  float64
	pitch float64

	eventLog []logEntry

	keys    monitorKeyMap
	help    help.Model
	spinner spinner.Model

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type snapshotMsg telemetry.Snapshot

type replyMsg remote.Reply

type sendResultMsg struct {
	event motion.Event
	err   error
}

type connectionLostMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(sender eventSender, connInfo string, step float64) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return monitorModel{
		sender:   sender,
		connInfo: connInfo,
		step:     step,
		eventLog: make([]logEntry, 0),
		keys:     monitorKeys,
		help:     help.New(),
		spinner:  s,
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), m.spinner.Tick)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case monitorTickMsg:
		return m, monitorTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		snap := telemetry.Snapshot(msg)
		if m.snap != nil && m.snap.State != snap.State {
			m.addLogEntry(fmt.Sprintf("State %s -> %s", m.snap.State, snap.State), false)
		}
		if snap.Fault != "" && (m.snap == nil || m.snap.Fault == "") {
			m.addLogEntry("Vehicle fault: "+snap.Fault, true)
		}
		m.snap = &snap
		m.lastSnapshot = time.Now()
		m.snapshots++

	case replyMsg:
		if !msg.OK {
			m.addLogEntry(fmt.Sprintf("Vehicle rejected %s: %s", msg.Event, msg.Error), true)
		}

	case sendResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", msg.event, msg.err), true)
		} else {
			m.addLogEntry("Sent "+msg.event.String(), false)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Takeoff):
		return m, m.send(motion.Event{Kind: motion.EventTakeoff})
	case key.Matches(msg, m.keys.Land):
		m.roll, m.pitch = 0, 0
		return m, m.send(motion.Event{Kind: motion.EventLand})
	case key.Matches(msg, m.keys.Kill):
		return m, m.send(motion.Event{Kind: motion.EventKill})
	case key.Matches(msg, m.keys.Shutdown):
		return m, m.send(motion.Event{Kind: motion.EventShutdown})
	case key.Matches(msg, m.keys.Up):
		m.pitch += m.step
	case key.Matches(msg, m.keys.Down):
		m.pitch -= m.step
	case key.Matches(msg, m.keys.Left):
		m.roll -= m.step
	case key.Matches(msg, m.keys.Right):
		m.roll += m.step
	case key.Matches(msg, m.keys.Center):
		m.roll, m.pitch = 0, 0
	default:
		return m, nil
	}
	return m, m.send(motion.Event{Kind: motion.EventMove, Roll: m.roll, Pitch: m.pitch})
}

// send transmits ev off the UI goroutine
func (m monitorModel) send(ev motion.Event) tea.Cmd {
	if m.connectionLost {
		return func() tea.Msg {
			return sendResultMsg{event: ev, err: fmt.Errorf("not connected")}
		}
	}
	sender := m.sender
	return func() tea.Msg {
		return sendResultMsg{event: ev, err: sender.Send(ev)}
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Disconnecting...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("KESTREL GROUND STATION"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = errorStyle.Render("DISCONNECTED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | snapshots: %d", connStatus, m.snapshots)))
	s.WriteString("\n\n")

	if m.snap == nil {
		s.WriteString(fmt.Sprintf("%s %s\n\n", m.spinner.View(), warningStyle.Render("Waiting for telemetry...")))
	} else {
		s.WriteString(m.renderFlight(labelStyle, valueStyle, errorStyle, warningStyle, boxStyle))
		s.WriteString("\n")
		s.WriteString(m.renderMotors(labelStyle, valueStyle, boxStyle))
		s.WriteString("\n")
	}

	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderFlight(labelStyle, valueStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	snap := m.snap
	var c strings.Builder

	field := func(label, value string) {
		c.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render(label), valueStyle.Render(value)))
	}

	state := snap.State
	if !snap.Safe {
		c.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("State:"), errorStyle.Render(state+" (UNSAFE)")))
	} else {
		field("State:", state)
	}
	altitude := "--"
	if snap.AltitudeValid {
		altitude = fmt.Sprintf("%.1f cm", snap.Altitude)
	}
	field("Altitude:", altitude)
	field("Target:", fmt.Sprintf("%.1f cm", snap.TargetAltitude))
	field("Base:", fmt.Sprintf("%.1f%%", snap.Base))
	c.WriteString("\n")

	field("Attitude:", fmt.Sprintf("R %+6.1f  P %+6.1f  Y %+6.1f", snap.Roll, snap.Pitch, snap.Yaw))
	field("Setpoint:", fmt.Sprintf("R %+6.1f  P %+6.1f", snap.SetRoll, snap.SetPitch))
	field("Command:", fmt.Sprintf("R %+5.1f  P %+5.1f", m.roll, m.pitch))
	c.WriteString("\n")

	field("Daemon:", fmt.Sprintf("%d exchanges, %d errors", snap.Exchanges, snap.DaemonErrors))
	if age := time.Since(m.lastSnapshot); age > staleAfter {
		c.WriteString(warningStyle.Render(fmt.Sprintf("telemetry stale (%s)", age.Round(100*time.Millisecond))))
	}
	if snap.Fault != "" {
		c.WriteString("\n")
		c.WriteString(errorStyle.Render("Fault: " + snap.Fault))
	}

	return boxStyle.Width(m.width - 4).Render(c.String())
}

func (m monitorModel) renderMotors(labelStyle, valueStyle, boxStyle lipgloss.Style) string {
	var c strings.Builder
	c.WriteString(labelStyle.Render("MOTORS"))
	for i, thrust := range m.snap.Thrusts {
		c.WriteString(fmt.Sprintf("\n%s %s %s",
			labelStyle.Render(fmt.Sprintf("%-2s", quad.PositionName(i))),
			valueStyle.Render(thrustBar(thrust)),
			fmt.Sprintf("%5.1f%%", thrust)))
	}
	return boxStyle.Width(m.width - 4).Render(c.String())
}

// thrustBar draws a 0-100 thrust as a fixed-width bar
func thrustBar(thrust float64) string {
	filled := int(thrust / 100 * thrustBarSize)
	filled = max(0, min(thrustBarSize, filled))
	return strings.Repeat("█", filled) + strings.Repeat("░", thrustBarSize-filled)
}

func (m monitorModel) renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := min(6, len(m.eventLog))
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}
