package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/log"
	"github.com/relabs-tech/metal_detector/internal/scanner"
)

// readingMsg and findMsg carry broker messages into the bubbletea loop.
type readingMsg detector.Reading
type findMsg scanner.Find

var (
	colorGreen = lipgloss.Color("#00CC33")
	colorAmber = lipgloss.Color("#FFAA00")
	colorRed   = lipgloss.Color("#FF3300")
	colorDim   = lipgloss.Color("#555555")

	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	styleLabel  = lipgloss.NewStyle().Foreground(colorDim)
	styleBanner = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#000000")).Background(colorRed).Padding(0, 2)
	styleBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorGreen).Padding(0, 1)
	styleHelp   = lipgloss.NewStyle().Foreground(colorDim)
)

const meterWidth = 40

type consoleModel struct {
	reading  detector.Reading
	have     bool
	finds    int
	lastFind *scanner.Find
}

func (m consoleModel) Init() tea.Cmd { return nil }

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case readingMsg:
		m.reading = detector.Reading(msg)
		m.have = true
	case findMsg:
		f := scanner.Find(msg)
		m.finds++
		m.lastFind = &f
	}
	return m, nil
}

func (m consoleModel) View() string {
	var b strings.Builder
	b.WriteString(styleTitle.Render("METAL DETECTOR"))
	b.WriteString("\n\n")

	if !m.have {
		b.WriteString("waiting for detection stream...\n")
		b.WriteString(styleHelp.Render("q quit"))
		return styleBox.Render(b.String())
	}

	r := m.reading
	fmt.Fprintf(&b, "%s %-9s %s %3.0f\n",
		styleLabel.Render("mode"), r.Mode, styleLabel.Render("sensitivity"), r.Sensitivity)
	fmt.Fprintf(&b, "%s %6.1f µT  %s %6.1f µT  %s %5.1f µT\n",
		styleLabel.Render("field"), r.Field,
		styleLabel.Render("baseline"), r.Baseline,
		styleLabel.Render("threshold"), r.Threshold)
	fmt.Fprintf(&b, "%s %s %3.0f\n\n", styleLabel.Render("level"), meter(r.Level), r.Level)

	switch {
	case !r.Calibrated:
		b.WriteString(lipgloss.NewStyle().Foreground(colorAmber).Render("calibrating, hold still"))
	case r.Detected:
		b.WriteString(styleBanner.Render("METAL DETECTED"))
	default:
		b.WriteString(lipgloss.NewStyle().Foreground(colorGreen).Render("scanning"))
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s %d", styleLabel.Render("finds"), m.finds)
	if m.lastFind != nil {
		fmt.Fprintf(&b, "  last %s level %.0f", m.lastFind.Time.Local().Format("15:04:05"), m.lastFind.Level)
		if fix := m.lastFind.Fix; fix != nil {
			fmt.Fprintf(&b, " at %.5f,%.5f", fix.Latitude, fix.Longitude)
		}
	}
	b.WriteString("\n")
	b.WriteString(styleHelp.Render("q quit"))
	return styleBox.Render(b.String())
}

// meter renders a level 0-100 as a colored bar.
func meter(level float64) string {
	n := int(level / 100 * meterWidth)
	if n < 0 {
		n = 0
	}
	if n > meterWidth {
		n = meterWidth
	}
	color := colorGreen
	switch {
	case level >= 70:
		color = colorRed
	case level >= 35:
		color = colorAmber
	}
	filled := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", n))
	empty := lipgloss.NewStyle().Foreground(colorDim).Render(strings.Repeat("░", meterWidth-n))
	return filled + empty
}

// RunConsole shows the detection stream in the terminal.
func RunConsole(cfg *config.Config) error {
	logger := log.With("component", "console")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := tea.NewProgram(consoleModel{}, tea.WithAltScreen())

	if err := subscribeJSON(client, cfg.TopicDetection, logger, func(r detector.Reading) {
		p.Send(readingMsg(r))
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicFinds, logger, func(f scanner.Find) {
		p.Send(findMsg(f))
	}); err != nil {
		return err
	}

	_, err = p.Run()
	return err
}
