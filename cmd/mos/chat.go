package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"mos/internal/environment"
	"mos/internal/llm"
)

// chatMessage is one entry in the conversation history.
type chatMessage struct {
	Role    string // "user", "assistant", "system"
	Content string
	Time    time.Time
}

// Messages emitted by async commands.
type (
	responseMsg string
	errorMsg    error
)

// chatModel is the bubbletea model for the interactive chat.
type chatModel struct {
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	styles   chatStyles
	renderer *glamour.TermRenderer

	rt  *runtime
	env *environment.Environment

	history   []chatMessage
	isLoading bool
	err       error
	width     int
	height    int
	ready     bool
}

// runInteractiveChat wires the runtime into the environment and runs
// the bubbletea program.
func runInteractiveChat() error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := llm.New(rt.cfg)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	adapter := environment.NewAdapter(rt.agent)
	env := environment.New(adapter, client)
	for _, name := range rt.agent.MemeNames() {
		env.AddMeme(name, 0.5)
	}
	if err := adapter.StartGenerator(); err != nil {
		return err
	}
	defer adapter.Shutdown()

	m := initialChatModel(rt, env)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}
	return nil
}

func initialChatModel(rt *runtime, env *environment.Environment) chatModel {
	styles := defaultChatStyles()

	ta := textarea.New()
	ta.Placeholder = "Say something... (Enter to send, /help for commands, Ctrl+C to exit)"
	ta.Focus()
	ta.Prompt = "| "
	ta.CharLimit = 4096
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	greeting := chatMessage{
		Role:    "assistant",
		Content: fmt.Sprintf("MOS %s booted. Agent %q is awake with %d memes.", mosVersion, rt.agent.Name(), len(rt.agent.MemeNames())),
		Time:    time.Now(),
	}

	return chatModel{
		textarea: ta,
		viewport: vp,
		spinner:  sp,
		styles:   styles,
		rt:       rt,
		env:      env,
		history:  []chatMessage{greeting},
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" || m.isLoading {
				return m, nil
			}
			m.textarea.Reset()
			if strings.HasPrefix(input, "/") {
				return m.handleSlashCommand(input)
			}
			m.history = append(m.history, chatMessage{Role: "user", Content: input, Time: time.Now()})
			m.isLoading = true
			m.err = nil
			m.refreshViewport()
			return m, tea.Batch(m.spinner.Tick, m.processInput(input))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chatHeight := msg.Height - 8
		if chatHeight < 4 {
			chatHeight = 4
		}
		m.viewport = viewport.New(msg.Width-2, chatHeight)
		m.textarea.SetWidth(msg.Width - 6)
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		)
		m.ready = true
		m.refreshViewport()

	case spinner.TickMsg:
		if m.isLoading {
			var spCmd tea.Cmd
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}
		return m, nil

	case responseMsg:
		m.isLoading = false
		m.history = append(m.history, chatMessage{Role: "assistant", Content: string(msg), Time: time.Now()})
		m.refreshViewport()
		return m, nil

	case errorMsg:
		m.isLoading = false
		m.err = msg
		m.refreshViewport()
		return m, nil
	}

	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

// processInput runs one turn through the resonance environment.
func (m chatModel) processInput(input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		reply, err := m.env.Handle(ctx, input)
		if err != nil {
			return errorMsg(err)
		}
		return responseMsg(reply)
	}
}

func (m chatModel) handleSlashCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd := fields[0]

	switch cmd {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.pushSystem(helpText())

	case "/stats":
		m.pushSystem(m.statsText())

	case "/memes":
		m.pushSystem(m.memesText())

	case "/reflect":
		res := m.rt.agent.MixedReflection()
		m.pushSystem(fmt.Sprintf("reflection: %q\nstatus=%s drain=%d energy=%d actions=%d",
			res.Thought, res.Status, res.EnergyDrain, res.Energy, len(res.Actions)))

	case "/evolve":
		evolved := m.rt.agent.EvolveStrategies()
		if len(evolved) == 0 {
			m.pushSystem("no strategies qualified for evolution")
		} else {
			var names []string
			for _, s := range evolved {
				names = append(names, fmt.Sprintf("%s (level %d)", s.Name, s.Level))
			}
			m.pushSystem("evolved: " + strings.Join(names, ", "))
		}

	default:
		m.pushSystem(fmt.Sprintf("unknown command %s (try /help)", cmd))
	}

	m.refreshViewport()
	return m, nil
}

func (m *chatModel) pushSystem(content string) {
	m.history = append(m.history, chatMessage{Role: "system", Content: content, Time: time.Now()})
}

func helpText() string {
	return strings.TrimSpace(`
/help     show this help
/stats    agent and environment state
/memes    list the agent's memes
/reflect  run one reflection cycle
/evolve   evolve qualifying strategies
/quit     exit`)
}

func (m chatModel) statsText() string {
	var sb strings.Builder
	st := m.rt.agent.State()
	env := m.env.State()
	fmt.Fprintf(&sb, "agent: emotion=%s goal=%q energy=%d\n", st.Emotion, st.Goal, st.Energy)
	fmt.Fprintf(&sb, "environment: focus=%.2f energy=%.2f meta=%s\n", env.Focus, env.Energy, env.MetaState)
	fmt.Fprintf(&sb, "thought buffer: %d pending\n", m.env.Adapter().BufferLen())

	stats := m.rt.agent.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		fmt.Fprintf(&sb, "  %-20s uses=%d success=%d fail=%d\n", name, s.Uses, s.Success, s.Fail)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m chatModel) memesText() string {
	names := m.rt.agent.MemeNames()
	if len(names) == 0 {
		return "no memes yet (teach me something, or run `mos seed`)"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d memes:\n", len(names))
	for _, name := range names {
		sb.WriteString("  " + name + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *chatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m chatModel) renderHistory() string {
	var sb strings.Builder
	for _, msg := range m.history {
		switch msg.Role {
		case "user":
			sb.WriteString(m.styles.You.Render("You") + "\n")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		case "system":
			sb.WriteString(m.styles.System.Render(msg.Content))
			sb.WriteString("\n")
		default:
			sb.WriteString(m.styles.Assistant.Render("MOS") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.Content))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery.
func (m chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()
	if m.renderer == nil {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func (m chatModel) View() string {
	if !m.ready {
		return "booting..."
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render(" MOS ") + m.styles.Muted.Render(" meme operating system"))
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")

	if m.isLoading {
		sb.WriteString(m.spinner.View() + m.styles.Muted.Render(" resonating..."))
		sb.WriteString("\n")
	} else if m.err != nil {
		sb.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString(m.styles.InputBox.Render(m.textarea.View()))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Footer.Render("Enter send · /help commands · Ctrl+C quit"))
	return sb.String()
}
