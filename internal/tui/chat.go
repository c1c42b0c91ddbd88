// Package tui implements the interactive terminal chat over the uploaded
// documents.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lphhien112-gif/NOTEBOOKLM/internal/output"
	"github.com/lphhien112-gif/NOTEBOOKLM/internal/rag"
)

// Asker answers one question. *rag.Pipeline satisfies it.
type Asker interface {
	Ask(ctx context.Context, query, documentID string) (*rag.Answer, error)
}

// Config configures the chat.
type Config struct {
	Asker Asker

	// DocumentID scopes every question; empty uses the active document.
	DocumentID string
	NoColor    bool
}

const helpText = "Enter to ask · /doc <id> to scope · /doc to reset · /clear · Esc to quit"

type role int

const (
	roleUser role = iota
	roleAssistant
	roleError
	roleInfo
)

type turn struct {
	role    role
	text    string
	sources []rag.Source
}

type answerMsg struct {
	answer *rag.Answer
	err    error
}

// Model is the bubbletea model of the chat.
type Model struct {
	ctx        context.Context
	asker      Asker
	documentID string
	styles     Styles

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	turns   []turn
	pending bool
	ready   bool
	width   int
}

// New creates the chat model.
func New(ctx context.Context, cfg Config) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := DefaultStyles()
	if cfg.NoColor || output.DetectNoColor() {
		styles = NoColorStyles()
	}
	sp.Style = styles.Assistant

	return Model{
		ctx:        ctx,
		asker:      cfg.Asker,
		documentID: cfg.DocumentID,
		styles:     styles,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		width:      80,
	}
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles keys, window resizes and answers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, th := m.styles.Transcript.GetFrameSize()
		_, ih := m.styles.Input.GetFrameSize()
		// title, status and the input line
		reserved := 3 + th + ih
		m.viewport.Width = max(20, msg.Width-4)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-8)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.turns = append(m.turns, turn{role: roleError, text: describeError(msg.err)})
		} else {
			m.turns = append(m.turns, turn{role: roleAssistant, text: msg.answer.Answer, sources: msg.answer.Sources})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.pending {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(line, "/") {
		return m.command(line)
	}

	m.turns = append(m.turns, turn{role: roleUser, text: line})
	m.pending = true
	m.refresh()
	return m, tea.Batch(m.ask(line), m.spinner.Tick)
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.turns = nil
	case "/doc":
		if len(fields) > 1 {
			m.documentID = fields[1]
		} else {
			m.documentID = ""
		}
		m.turns = append(m.turns, turn{role: roleInfo, text: "Scope: " + m.scope()})
	default:
		m.turns = append(m.turns, turn{role: roleError, text: "Unknown command " + fields[0]})
	}
	m.refresh()
	return m, nil
}

// ask runs the question off the update loop.
func (m Model) ask(query string) tea.Cmd {
	asker, ctx, documentID := m.asker, m.ctx, m.documentID
	return func() tea.Msg {
		ans, err := asker.Ask(ctx, query, documentID)
		return answerMsg{answer: ans, err: err}
	}
}

func (m Model) scope() string {
	if m.documentID == "" {
		return "active document"
	}
	return "document " + m.documentID
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return m.styles.Status.Render("No messages yet.")
	}

	wrap := lipgloss.NewStyle().Width(max(20, m.viewport.Width))
	var sb strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch t.role {
		case roleUser:
			sb.WriteString(m.styles.User.Render("You") + "\n" + wrap.Render(t.text))
		case roleAssistant:
			sb.WriteString(m.styles.Assistant.Render("Assistant") + "\n" + wrap.Render(t.text))
			for n, src := range t.sources {
				sb.WriteString("\n" + m.styles.Source.Render(fmt.Sprintf("  [%d] %s", n+1, sourceLabel(src))))
			}
		case roleError:
			sb.WriteString(m.styles.Error.Render("Error: " + t.text))
		case roleInfo:
			sb.WriteString(m.styles.Status.Render(t.text))
		}
	}
	return sb.String()
}

func sourceLabel(src rag.Source) string {
	name := src.Source
	if name == "" {
		name = src.DocumentID
	}
	if src.Page != nil {
		name = fmt.Sprintf("%s, page %d", name, *src.Page+1)
	}
	return fmt.Sprintf("%s: %s", name, output.Truncate(src.Content, 60))
}

func describeError(err error) string {
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return err.Error()
}

// View renders the title, transcript, status line and input.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := m.styles.Title.Render("NotebookLM chat") + "  " + m.styles.Scope.Render("("+m.scope()+")")
	status := m.styles.Status.Render(helpText)
	if m.pending {
		status = m.spinner.View() + " " + m.styles.Status.Render("Thinking...")
	}
	return title + "\n" +
		m.styles.Transcript.Render(m.viewport.View()) + "\n" +
		m.styles.Input.Render(m.input.View()) + "\n" +
		status
}

// Run starts the chat in the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(New(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
