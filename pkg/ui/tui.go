// Package ui provides the Bubble Tea dashboard for savings runs.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/savings-bench/business/comparison/domain"
	"github.com/fd1az/savings-bench/pkg/ui/components"
)

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome Phase = "welcome" // Initial welcome screen
	PhaseRunning Phase = "running" // Sweep in progress
	PhaseDone    Phase = "done"    // Summary shown, waiting for quit
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	// Components
	records *components.RecordsComponent
	venues  *components.VenuesComponent
	stats   *components.StatsComponent
	status  *components.StatusComponent
	keys    KeyMap

	// Phase state
	phase        Phase
	welcomeStart time.Time
	runStart     time.Time

	// State
	ready        bool
	quitting     bool
	fullHelp     bool
	width        int
	height       int
	runID        string
	primary      string
	lastUpdate   time.Time
	errors       []ErrorEntry // Persistent error panel (last 3)
	logs         []string     // Recent log messages
	activityFeed []string     // Recent finished cells
	summary      *SummaryMsg
}

// New creates a new TUI model.
func New() Model {
	return Model{
		records:      components.NewRecordsComponent(200, 12),
		venues:       components.NewVenuesComponent(),
		stats:        components.NewStatsComponent(40),
		status:       components.NewStatusComponent(),
		keys:         DefaultKeyMap(),
		phase:        PhaseWelcome,
		welcomeStart: time.Now(),
		logs:         make([]string, 0, 5),
		errors:       make([]ErrorEntry, 0, 3),
		activityFeed: make([]string, 0, 6),
	}
}

// Phase returns the current phase.
func (m Model) Phase() Phase {
	return m.phase
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Always allow quit
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips to the run
		if m.phase == PhaseWelcome {
			m.startRun()
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Clear):
			m.records.Clear()
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = make([]ErrorEntry, 0, 3)
		case key.Matches(msg, m.keys.Up):
			m.records.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.records.ScrollDown()
		case key.Matches(msg, m.keys.Help):
			m.fullHelp = !m.fullHelp
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.startRun()
		}
		if m.phase == PhaseRunning {
			s := m.stats.Stats()
			s.Elapsed = time.Since(m.runStart)
			m.stats.Update(s)
		}
		return m, tickCmd()

	case RunStartMsg:
		if m.phase == PhaseWelcome {
			m.phase = PhaseRunning
		}
		m.runID = msg.RunID
		m.primary = msg.Primary
		m.runStart = time.Now()
		m.venues.SetPrimary(msg.Primary)
		s := m.stats.Stats()
		s.CellsTotal = msg.Cells
		m.stats.Update(s)
		m.logs = addLog(m.logs, "info",
			fmt.Sprintf("run %s: %d cells against %s", msg.RunID, msg.Cells, strings.Join(msg.Venues, ", ")))

	case RecordMsg:
		rec := msg.Record
		m.records.Add(components.RecordRow{
			Time:          rec.Time.Format("15:04:05"),
			Cell:          fmt.Sprintf("%s %s %s", rec.Side, rec.TradeSize, rec.Base),
			Venue:         rec.Venue,
			PrimaryPrice:  rec.PrimaryPrice,
			VenuePrice:    rec.VenuePrice,
			PctSavings:    rec.PctSavings,
			PrimaryBetter: rec.Verdict() != domain.VerdictComparisonBetter,
		})
		m.status.Update(components.VenueStatus{
			Name: rec.Venue, OK: true, LastCell: rec.Base, At: rec.Time,
		})
		s := m.stats.Stats()
		s.Records++
		m.stats.Update(s)
		m.lastUpdate = time.Now()

	case CellMsg:
		s := m.stats.Stats()
		s.CellsDone++
		s.Failures += len(msg.Failures)
		if msg.State == "primary-absent" {
			s.Skipped++
		}
		m.stats.Update(s)
		for venue, code := range msg.Failures {
			m.status.Update(components.VenueStatus{
				Name: venue, LastCode: code, LastCell: msg.Cell, At: time.Now(),
			})
		}
		m.activityFeed = addActivity(m.activityFeed,
			fmt.Sprintf("%s: %d records, %d failed (%s)", msg.Cell, msg.Records, len(msg.Failures),
				msg.Duration.Round(time.Millisecond)))
		m.lastUpdate = time.Now()

	case VenuesMsg:
		m.venues.Update(msg.Rows)

	case SummaryMsg:
		m.phase = PhaseDone
		m.summary = &msg
		s := m.stats.Stats()
		s.Elapsed = msg.Duration
		m.stats.Update(s)
		if msg.Err != nil {
			m.addError(msg.Err)
		}

	case ErrorMsg:
		m.addError(msg.Error)

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)
	}

	return m, nil
}

func (m *Model) startRun() {
	m.phase = PhaseRunning
	m.runStart = time.Now()
	// Trigger callback directly (don't use Send() from within Update)
	if OnStartModules != nil {
		go OnStartModules()
	}
}

func (m *Model) addError(err error) {
	m.logs = addLog(m.logs, "error", err.Error())
	m.errors = append(m.errors, ErrorEntry{Message: err.Error(), Timestamp: time.Now()})
	if len(m.errors) > 3 {
		m.errors = m.errors[len(m.errors)-3:]
	}
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logs = append(logs, fmt.Sprintf("[%s] %s: %s", timestamp, level, message))
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// addActivity adds an activity message and returns the updated slice (keeps last 6).
func addActivity(feed []string, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	feed = append(feed, fmt.Sprintf("[%s] %s", timestamp, message))
	if len(feed) > 6 {
		feed = feed[len(feed)-6:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}
	if m.phase == PhaseWelcome {
		return m.renderWelcomeScreen()
	}

	var b strings.Builder

	b.WriteString(BannerStyle.Render(" Savings Bench "))
	if m.runID != "" {
		b.WriteString(DimStyle.Render("  run " + m.runID))
	}
	b.WriteString("\n\n")

	b.WriteString(m.stats.View())
	b.WriteString("\n\n")

	// Left: venue totals and status. Right: activity and records.
	leftCol := m.venues.View() + "\n" + m.status.View()
	rightCol := m.renderActivityFeed() + "\n\n" + m.records.View()

	width := max(m.width, 60)
	if width > 140 {
		left := PanelStyle.Width(width*2/5 - 2).Render(leftCol)
		right := PanelStyle.Width(width*3/5 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		b.WriteString(PanelStyle.Width(width - 4).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(PanelStyle.Width(width - 4).Render(rightCol))
	}
	b.WriteString("\n\n")

	if m.summary != nil {
		b.WriteString(m.renderSummary())
		b.WriteString("\n\n")
	}

	// Persistent error panel (show last 3 errors)
	if len(m.errors) > 0 {
		b.WriteString(RunFailedStyle.Render("ERRORS"))
		b.WriteString(DimStyle.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(ErrorTextStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(DimStyle.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.fullHelp {
		for _, group := range m.keys.FullHelp() {
			b.WriteString(KeysStyle.Render(helpLine(group)))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(KeysStyle.Render(helpLine(m.keys.ShortHelp())))
	}

	return b.String()
}

// renderActivityFeed renders the recently finished cells.
func (m Model) renderActivityFeed() string {
	var sb strings.Builder
	sb.WriteString(HeadingStyle.Render("CELLS"))
	sb.WriteString("\n\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(DimStyle.Render("  Waiting for the first cell..."))
		return sb.String()
	}
	for _, activity := range m.activityFeed {
		sb.WriteString(DimStyle.Render("  " + activity))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderSummary() string {
	s := m.summary
	style := RunOKStyle
	verdict := "RUN COMPLETE"
	if s.Err != nil {
		style = RunFailedStyle
		verdict = "RUN ABORTED"
	}
	return style.Render(verdict) + DimStyle.Render(fmt.Sprintf(
		"  %d cells, %d skipped, %d records, %d failed quotes in %s  (q: quit)",
		s.Cells, s.Skipped, s.Records, s.Failures, s.Duration.Round(time.Millisecond)))
}

// renderWelcomeScreen renders the animated welcome screen.
func (m Model) renderWelcomeScreen() string {
	greenStyle := lipgloss.NewStyle().Foreground(ColorSavings)

	// Animated dots based on time
	elapsed := time.Since(m.welcomeStart)
	dots := strings.Repeat(".", int(elapsed.Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
   ███████╗ █████╗ ██╗   ██╗██╗███╗   ██╗ ██████╗ ███████╗
   ██╔════╝██╔══██╗██║   ██║██║████╗  ██║██╔════╝ ██╔════╝
   ███████╗███████║██║   ██║██║██╔██╗ ██║██║  ███╗███████╗
   ╚════██║██╔══██║╚██╗ ██╔╝██║██║╚██╗██║██║   ██║╚════██║
   ███████║██║  ██║ ╚████╔╝ ██║██║ ╚████║╚██████╔╝███████║
   ╚══════╝╚═╝  ╚═╝  ╚═══╝  ╚═╝╚═╝  ╚═══╝ ╚═════╝ ╚══════╝
`
	sb.WriteString(HeadingStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(DimStyle.Render("              D E X   A G G R E G A T O R   B E N C H"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("                     Loading venues%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(DimStyle.Render("              Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and the run
// should start. main sets it.
var OnStartModules func()

// Run starts the Bubble Tea program.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
