// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tracekit/vanprobe/pkg/vanbus"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for informational entries
}

// TUI model
type watchModel struct {
	sourceInfo    string
	cfg           vanbus.Config
	showAll       bool
	stats         *vanbus.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	logView       viewport.Model
	locked        bool
	lastFrame     *vanbus.Frame
	width         int
	height        int
	quitting      bool
	sourceClosed  bool
}

// Messages
type tickMsg time.Time
type busEventMsg struct {
	ev watchEvent
}
type sourceClosedMsg struct{}

func initialWatchModel(sourceInfo string, cfg vanbus.Config, showAll bool) watchModel {
	vp := viewport.New(76, 12)
	return watchModel{
		sourceInfo:    sourceInfo,
		cfg:           cfg,
		showAll:       showAll,
		stats:         vanbus.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 200,
		logView:       vp,
		width:         80,
		height:        24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
		default:
			var cmd tea.Cmd
			m.logView, cmd = m.logView.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logView.Width = m.width - 6
		m.logView.Height = m.logHeight()
		m.refreshLogView()

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case sourceClosedMsg:
		m.sourceClosed = true
		m.addLogEntry("Sample source closed", false)

	case busEventMsg:
		ev := msg.ev
		switch {
		case ev.busErr != nil:
			if m.locked {
				m.stats.RecordError(*ev.busErr)
				m.addLogEntry(fmt.Sprintf("BUS GLITCH: %v", ev.busErr), true)
			}

		case ev.frame != nil:
			f := ev.frame
			if !m.locked && f.Validity() == vanbus.FrameWellFormed {
				m.locked = true
				m.addLogEntry("Bus lock acquired", false)
			}
			m.stats.Update(f, ev.anomalies)
			if f.Validity() == vanbus.FrameWellFormed {
				m.lastFrame = f
			}

			switch {
			case f.Validity() != vanbus.FrameWellFormed:
				m.addLogEntry(fmt.Sprintf("ID=0x%03X %s: %v", f.Ident(), f.Validity(), f.Err()), true)
			case !f.CRCValid():
				m.addLogEntry(fmt.Sprintf("ID=0x%03X checksum mismatch (0x%04X)", f.Ident(), f.CRC()), true)
			case len(ev.anomalies) > 0:
				for _, a := range ev.anomalies {
					m.addLogEntry(a.Message, true)
				}
			case m.showAll:
				m.addLogEntry(fmt.Sprintf("ID=0x%03X %s len=%d (valid)",
					f.Ident(), vanbus.FormatControlFlags(f), len(f.Data())), false)
			}
		}
	}

	return m, nil
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
	m.refreshLogView()
}

func (m *watchModel) logHeight() int {
	h := m.height - 16
	if h < 5 {
		h = 5
	}
	return h
}

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	tuiHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	tuiLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	tuiValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	tuiErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	tuiWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	tuiBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m *watchModel) refreshLogView() {
	var b strings.Builder
	for _, entry := range m.eventLog {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n",
				tuiHeaderStyle.Render(timestamp),
				tuiErrorStyle.Render("✗ "+entry.message)))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n",
				tuiHeaderStyle.Render(timestamp),
				tuiWarnStyle.Render("ℹ "+entry.message)))
		}
	}
	m.logView.SetContent(b.String())
	m.logView.GotoBottom()
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(tuiTitleStyle.Render("VANPROBE - BUS WATCH"))
	s.WriteString("\n")
	s.WriteString(tuiHeaderStyle.Render(fmt.Sprintf("Source: %s @ %d Hz | Mode: %s | 'r' reset stats, 'q' quit",
		m.sourceInfo, m.cfg.SampleRate, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}())))
	s.WriteString("\n\n")

	// Lock status
	switch {
	case m.sourceClosed:
		s.WriteString(tuiWarnStyle.Render("■ Source closed"))
	case !m.locked:
		s.WriteString(tuiWarnStyle.Render("⏳ Waiting for bus lock..."))
	default:
		s.WriteString(tuiValueStyle.Render("✓ Bus locked"))
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	framingErrors := m.stats.StuffingErrors + m.stats.TimingErrors + m.stats.FramingErrors
	totalErrors := m.stats.CRCErrors + framingErrors + m.stats.TruncatedFrames + m.stats.AnomalousFrames
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		tuiLabelStyle.Render("Total:"), tuiValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		tuiLabelStyle.Render("Valid:"), tuiValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		tuiLabelStyle.Render("Errors:"), tuiErrorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
	))

	if m.stats.CRCErrors > 0 || framingErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
			tuiLabelStyle.Render("CRC Errors:"), tuiErrorStyle.Render(fmt.Sprintf("%d", m.stats.CRCErrors)),
			tuiLabelStyle.Render("Framing:"), tuiErrorStyle.Render(fmt.Sprintf("%d", framingErrors)),
		))
		if m.stats.StuffingErrors > 0 {
			statsContent.WriteString(fmt.Sprintf(" (%s: %d)", tuiHeaderStyle.Render("stuffing"), m.stats.StuffingErrors))
		}
		statsContent.WriteString("\n")
	}

	if m.stats.AnomalousFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s",
			tuiLabelStyle.Render("Anomalous:"), tuiWarnStyle.Render(fmt.Sprintf("%d", m.stats.AnomalousFrames)),
		))
		if m.stats.AckMissing > 0 || m.stats.HighRecovery > 0 {
			statsContent.WriteString(fmt.Sprintf(" (%s: %d, %s: %d)",
				tuiHeaderStyle.Render("ack missing"), m.stats.AckMissing,
				tuiHeaderStyle.Render("high recovery"), m.stats.HighRecovery,
			))
		}
		statsContent.WriteString("\n")
	}

	if m.stats.RecoveredBits > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			tuiLabelStyle.Render("Recovered Bits:"), tuiWarnStyle.Render(fmt.Sprintf("%d", m.stats.RecoveredBits)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		tuiLabelStyle.Render("Frame Rate:"), tuiValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		tuiLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return tuiErrorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return tuiValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(tuiBoxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest frame section (only shown once something decoded)
	if m.lastFrame != nil {
		s.WriteString(tuiLabelStyle.Render("Latest Frame:"))
		s.WriteString("\n")

		f := m.lastFrame
		frameContent := strings.Builder{}
		frameContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			tuiLabelStyle.Render("Ident:"), tuiValueStyle.Render(fmt.Sprintf("0x%03X", f.Ident())),
			tuiLabelStyle.Render("Flags:"), tuiValueStyle.Render(vanbus.FormatControlFlags(f)),
			tuiLabelStyle.Render("CRC:"), func() string {
				if f.CRCValid() {
					return tuiValueStyle.Render("ok")
				}
				return tuiErrorStyle.Render(fmt.Sprintf("bad (0x%04X)", f.CRC()))
			}(),
		))
		if len(f.Data()) > 0 {
			frameContent.WriteString(fmt.Sprintf("%s %s\n",
				tuiLabelStyle.Render("Data:"),
				tuiValueStyle.Render(fmt.Sprintf("% X", f.Data())),
			))
		}
		frameContent.WriteString(fmt.Sprintf("%s %s   %s %s",
			tuiLabelStyle.Render("Ack:"), tuiValueStyle.Render(fmt.Sprintf("%v", f.Ack())),
			tuiLabelStyle.Render("Stuff Bits:"), tuiValueStyle.Render(fmt.Sprintf("%d", f.StuffBits())),
		))

		s.WriteString(tuiBoxStyle.Render(frameContent.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(tuiLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	if len(m.eventLog) == 0 {
		s.WriteString(tuiBoxStyle.Width(m.width - 4).Render(tuiHeaderStyle.Render("  (no events yet)")))
	} else {
		s.WriteString(tuiBoxStyle.Width(m.width - 4).Render(m.logView.View()))
	}

	return s.String()
}
