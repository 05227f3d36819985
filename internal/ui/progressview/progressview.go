// Package progressview is the live terminal view of a running question: a
// spinner per running stage, sub-questions once the plan expands, and a short
// tail of debug log lines.
package progressview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/keys"
	"github.com/zjrosen/sift/internal/progress"
	"github.com/zjrosen/sift/internal/pubsub"
	"github.com/zjrosen/sift/internal/research"
	"github.com/zjrosen/sift/internal/ui/styles"
)

const (
	defaultWidth    = 80
	defaultLogLines = 3
)

// Config wires the view to a run.
type Config struct {
	Question string
	Updates  *pubsub.ContinuousListener[research.Update]
	// Logs is optional; nil hides the log tail.
	Logs *pubsub.ContinuousListener[string]
	// Cancel stops the run. The view keeps running until RunFinished so the
	// cancelled run is shown and recorded.
	Cancel   context.CancelFunc
	LogLines int
}

// Model implements tea.Model.
type Model struct {
	question   string
	state      progress.State
	spinner    spinner.Model
	keys       keys.KeyMap
	updates    *pubsub.ContinuousListener[research.Update]
	logs       *pubsub.ContinuousListener[string]
	cancel     context.CancelFunc
	logTail    []string
	logLines   int
	width      int
	started    time.Time
	cancelling bool
	run        *history.Run
}

// New creates the view in its initial all-pending state.
func New(cfg Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SpinnerStyle

	logLines := cfg.LogLines
	if logLines <= 0 {
		logLines = defaultLogLines
	}
	return Model{
		question: cfg.Question,
		state:    progress.NewState(),
		spinner:  s,
		keys:     keys.DefaultKeyMap(),
		updates:  cfg.Updates,
		logs:     cfg.Logs,
		cancel:   cfg.Cancel,
		logLines: logLines,
		width:    defaultWidth,
		started:  time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.updates != nil {
		cmds = append(cmds, m.updates.Listen())
	}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) {
			if m.cancelling || m.cancel == nil {
				return m, tea.Quit
			}
			m.cancelling = true
			m.cancel()
		}
		return m, nil

	case pubsub.Event[research.Update]:
		// Cache hits finish without a snapshot.
		if msg.Payload.State.Stages != nil {
			m.state = msg.Payload.State
		}
		if msg.Type == pubsub.RunFinished {
			m.run = msg.Payload.Run
			return m, tea.Quit
		}
		return m, m.updates.Listen()

	case pubsub.Event[string]:
		if line := strings.TrimSpace(msg.Payload); line != "" {
			m.logTail = append(m.logTail, line)
			if len(m.logTail) > m.logLines {
				m.logTail = m.logTail[len(m.logTail)-m.logLines:]
			}
		}
		return m, m.logs.Listen()

	case spinner.TickMsg:
		if m.run != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render(truncate("Researching: "+m.question, m.width)))
	b.WriteString("\n\n")

	spin := m.spinner.View()
	if m.run != nil {
		spin = ""
	}
	b.WriteString(renderStages(m.state, spin, m.width))
	b.WriteString("\n")

	if m.run == nil {
		for _, line := range m.logTail {
			b.WriteString("\n" + styles.MutedStyle.Render(truncate(line, m.width)))
		}
		b.WriteString("\n" + styles.MutedStyle.Render(m.footer()) + "\n")
	}
	return b.String()
}

func (m Model) footer() string {
	elapsed := time.Since(m.started).Truncate(time.Second)
	if m.cancelling {
		return fmt.Sprintf("%s · cancelling…", elapsed)
	}
	help := m.keys.Cancel.Help()
	return fmt.Sprintf("%s · %s to %s", elapsed, help.Key, help.Desc)
}

// State returns the last snapshot the view received.
func (m Model) State() progress.State {
	return m.state
}

// Run returns the finished run, or nil if the view quit before RunFinished.
func (m Model) Run() *history.Run {
	return m.run
}

// Cancelling reports whether the user asked to stop the run.
func (m Model) Cancelling() bool {
	return m.cancelling
}
