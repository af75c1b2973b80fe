package main

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nexus/internal/orchestrator"
	"nexus/internal/turn"
)

const (
	timelineMaxLines = 14
	timelineMaxChars = 1200
	logWindowSize    = 6
	qrModules        = 11
)

// conversation is the controller surface the UI drives.
type conversation interface {
	Submit(text string) error
	Reset() error
	Snapshot() turn.Snapshot
	Updates() <-chan turn.Snapshot
}

type model struct {
	cfg  appConfig
	conv conversation

	snap        turn.Snapshot
	statusLine  string
	logs        []string
	quitConfirm bool
	submitting  bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	brain    viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

type snapshotMsg struct {
	snap turn.Snapshot
}

type submitDoneMsg struct {
	text string
	err  error
}

type resetDoneMsg struct {
	err error
}

type uiTheme struct {
	root         lipgloss.Style
	header       lipgloss.Style
	stepActive   lipgloss.Style
	stepDone     lipgloss.Style
	stepPending  lipgloss.Style
	panel        lipgloss.Style
	panelTitle   lipgloss.Style
	footer       lipgloss.Style
	status       lipgloss.Style
	errorStatus  lipgloss.Style
	inputPanel   lipgloss.Style
	helpText     lipgloss.Style
	narration    lipgloss.Style
	agentActive  lipgloss.Style
	agentIdle    lipgloss.Style
	qrFrame      lipgloss.Style
	qrCaption    lipgloss.Style
	modalFrame   lipgloss.Style
	modalPick    lipgloss.Style
	chatSpeakers map[turn.Role]lipgloss.Style
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	amber := lipgloss.Color("#ffd166")
	bg := lipgloss.Color("#120924")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		stepActive: lipgloss.NewStyle().
			Background(pink).
			Foreground(lipgloss.Color("#22062f")).
			Bold(true).
			Padding(0, 1),
		stepDone: lipgloss.NewStyle().
			Background(lipgloss.Color("#0b4d3a")).
			Foreground(mint).
			Padding(0, 1),
		stepPending: lipgloss.NewStyle().
			Background(lipgloss.Color("#2a184a")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText:    lipgloss.NewStyle().Foreground(muted),
		narration:   lipgloss.NewStyle().Foreground(amber),
		agentActive: lipgloss.NewStyle().Foreground(mint).Bold(true),
		agentIdle:   lipgloss.NewStyle().Foreground(muted),
		qrFrame: lipgloss.NewStyle().
			Background(lipgloss.Color("#ffffff")).
			Foreground(lipgloss.Color("#000000")).
			Padding(0, 1),
		qrCaption: lipgloss.NewStyle().Foreground(amber).Bold(true),
		modalFrame: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(blue).
			Padding(1, 2),
		modalPick: lipgloss.NewStyle().Foreground(pink).Bold(true),
		chatSpeakers: map[turn.Role]lipgloss.Style{
			turn.RoleUser:      lipgloss.NewStyle().Foreground(mint).Bold(true),
			turn.RoleAssistant: lipgloss.NewStyle().Foreground(pink).Bold(true),
		},
	}
}

func newModel(cfg appConfig, conv conversation) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 500
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	brain := viewport.New(0, 0)
	brain.MouseWheelEnabled = true
	brain.MouseWheelDelta = 4

	m := model{
		cfg:        cfg,
		conv:       conv,
		statusLine: "ready",
		logs:       []string{},
		input:      input,
		timeline:   timeline,
		brain:      brain,
		spinner:    sp,
		theme:      newTheme(),
	}
	m.applySnapshot(conv.Snapshot())
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		waitSnapshot(m.conv.Updates()),
	)
}

func waitSnapshot(ch <-chan turn.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{snap: snap}
	}
}

func (m model) submitCmd(text string) tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		return submitDoneMsg{text: text, err: conv.Submit(text)}
	}
}

func (m model) resetCmd() tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		return resetDoneMsg{err: conv.Reset()}
	}
}

func (m *model) applySnapshot(snap turn.Snapshot) {
	// Seq is monotonic across resets; older snapshots can still be in flight.
	if snap.Seq < m.snap.Seq {
		return
	}
	m.snap = snap
	m.input.Placeholder = m.placeholder()
}

func (m *model) placeholder() string {
	if m.snap.InProgress {
		return "Concierge is working..."
	}
	if suggestion := m.snap.Suggested(); suggestion != "" {
		return fmt.Sprintf("Try: %s (Tab to fill)", suggestion)
	}
	if m.snap.Step == orchestrator.StepPaymentMethodChosen {
		return "Waiting for payment confirmation..."
	}
	return fmt.Sprintf("Type %q to start over", turn.ResetSentinel)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case snapshotMsg:
		prevStep := m.snap.Step
		prevInProgress := m.snap.InProgress
		m.applySnapshot(msg.snap)
		if prevStep != m.snap.Step {
			m.appendLog(fmt.Sprintf("step %s -> %s", prevStep, m.snap.Step))
		}
		if prevInProgress && !m.snap.InProgress {
			m.statusLine = "ready · " + turn.Instructions(m.snap.Step)
		}
		m.renderPanes()
		cmds = append(cmds, waitSnapshot(m.conv.Updates()))
	case submitDoneMsg:
		m.submitting = false
		switch {
		case msg.err == nil:
			m.statusLine = "concierge is thinking..."
			m.appendLog("sent: " + compactSingleLine(msg.text, 80))
			m.applySnapshot(m.conv.Snapshot())
			m.renderPanes()
		case errors.Is(msg.err, turn.ErrResetRequested):
			cmds = append(cmds, m.resetCmd())
		case errors.Is(msg.err, turn.ErrTurnInProgress):
			m.statusLine = "please wait, a turn is still running"
		case errors.Is(msg.err, turn.ErrBlankInput):
		default:
			m.logError(msg.err)
		}
	case resetDoneMsg:
		if msg.err != nil {
			m.logError(msg.err)
			break
		}
		m.logs = m.logs[:0]
		m.appendLog("demo reset")
		m.statusLine = "demo reset · " + turn.Instructions(orchestrator.StepStart)
		m.applySnapshot(m.conv.Snapshot())
		m.renderPanes()
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.InProgress {
			m.renderPanes()
		}
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.quitConfirm {
			break
		}
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.quitConfirm {
			switch msg.String() {
			case "y", "Y", "enter":
				return m, tea.Quit
			case "n", "N", "esc":
				m.quitConfirm = false
				m.statusLine = "quit canceled"
				m.renderPanes()
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case "esc":
			m.beginQuitConfirm()
			return m, tea.Batch(cmds...)
		case "tab":
			if suggestion := m.snap.Suggested(); suggestion != "" {
				m.input.SetValue(suggestion)
				m.input.CursorEnd()
			}
			return m, tea.Batch(cmds...)
		case "ctrl+r":
			cmds = append(cmds, m.resetCmd())
			return m, tea.Batch(cmds...)
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return m, tea.Batch(cmds...)
			}
			if turn.IsResetSentinel(raw) {
				m.input.SetValue("")
				cmds = append(cmds, m.resetCmd())
				return m, tea.Batch(cmds...)
			}
			if m.snap.InProgress || m.submitting {
				m.statusLine = "please wait, a turn is still running"
				return m, tea.Batch(cmds...)
			}
			m.input.SetValue("")
			m.submitting = true
			cmds = append(cmds, m.submitCmd(raw))
			return m, tea.Batch(cmds...)
		case "pgup", "ctrl+b":
			m.timeline.LineUp(8)
			return m, tea.Batch(cmds...)
		case "pgdown", "ctrl+f":
			m.timeline.LineDown(8)
			return m, tea.Batch(cmds...)
		case "up":
			if strings.TrimSpace(m.input.Value()) == "" {
				m.timeline.LineUp(4)
				return m, tea.Batch(cmds...)
			}
		case "down":
			if strings.TrimSpace(m.input.Value()) == "" {
				m.timeline.LineDown(4)
				return m, tea.Batch(cmds...)
			}
		case "home":
			m.timeline.GotoTop()
			return m, tea.Batch(cmds...)
		case "end":
			m.timeline.GotoBottom()
			return m, tea.Batch(cmds...)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	out := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderContent(),
		m.renderInput(),
		m.renderFooter(),
	)
	if m.quitConfirm {
		out = m.renderQuitModal()
	}
	return m.theme.root.Render(out)
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "quit the demo?"
}

var stepLabels = []struct {
	step  orchestrator.Step
	label string
}{
	{orchestrator.StepRequested, "1 Request"},
	{orchestrator.StepOfferAccepted, "2 Offer"},
	{orchestrator.StepPaymentMethodChosen, "3 Payment"},
	{orchestrator.StepCompleted, "4 Confirmed"},
}

func (m *model) renderHeader() string {
	segments := make([]string, 0, len(stepLabels)+2)
	segments = append(segments, m.theme.panelTitle.Render("Nexus Retail Concierge")+" ")
	for _, s := range stepLabels {
		style := m.theme.stepPending
		switch {
		case s.step == m.snap.Step:
			style = m.theme.stepActive
		case s.step < m.snap.Step:
			style = m.theme.stepDone
		}
		segments = append(segments, style.Render(s.label))
	}
	session := m.snap.Session
	if len(session) > 8 {
		session = session[:8]
	}
	segments = append(segments, m.theme.helpText.Render(" session "+nullCoalesce(session, "n/a")))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func paneWidths(contentWidth int) (left int, right int) {
	left = int(float64(contentWidth) * 0.6)
	right = contentWidth - left - 1
	if right < 30 {
		right = 30
		left = contentWidth - right - 1
	}
	return left, right
}

func (m *model) renderContent() string {
	contentHeight := maxInt(8, m.height-10)
	contentWidth := maxInt(60, m.width-4)
	leftWidth, rightWidth := paneWidths(contentWidth)

	left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render("Conversation") + "\n" + m.timeline.View(),
	)
	right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render("Orchestrator") + "\n" + m.brain.View(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *model) renderInput() string {
	contentWidth := maxInt(60, m.width-4)
	inputView := m.input.View()
	if m.snap.InProgress {
		inputView = m.spinner.View() + " concierge working... " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(60, m.width-4)
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	hints := m.theme.helpText.Render("Keys: Enter send · Tab fill suggestion · Ctrl+R reset · PgUp/PgDn or Up/Down (input empty) scroll · Esc quit prompt · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderQuitModal() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.5), 36, 64)
	if modalWidth > canvasWidth-2 {
		modalWidth = canvasWidth - 2
	}

	body := strings.Join([]string{
		m.theme.errorStatus.Render("LEAVE THE STORE?"),
		m.theme.helpText.Render("The conversation is not saved."),
		"",
		m.theme.modalPick.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return"),
	}, "\n")
	panel := m.theme.modalFrame.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#120924")),
	)
}

func (m *model) renderPanes() {
	prevYOffset := m.timeline.YOffset
	prevAtBottom := m.timeline.AtBottom()

	contentHeight := maxInt(8, m.height-10)
	contentWidth := maxInt(60, m.width-4)
	leftWidth, rightWidth := paneWidths(contentWidth)

	m.timeline.Width = maxInt(20, leftWidth-4)
	m.timeline.Height = maxInt(5, contentHeight-3)
	m.brain.Width = maxInt(20, rightWidth-4)
	m.brain.Height = maxInt(5, contentHeight-3)

	m.timeline.SetContent(m.renderTimeline())
	if prevAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevYOffset)
	}
	m.brain.SetContent(m.renderBrain())
}

func (m *model) resize() {
	contentWidth := maxInt(60, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
}

func speakerLabel(role turn.Role) string {
	if role == turn.RoleUser {
		return "you"
	}
	return "concierge"
}

func (m *model) renderTimeline() string {
	if len(m.snap.Messages) == 0 {
		return "No messages yet."
	}
	width := maxInt(24, m.timeline.Width-2)
	var b strings.Builder
	for _, msg := range m.snap.Messages {
		style, ok := m.theme.chatSpeakers[msg.Role]
		if !ok {
			style = m.theme.helpText
		}
		b.WriteString(style.Render(fmt.Sprintf("%s [%s]", msg.CreatedAt.Format("15:04:05"), speakerLabel(msg.Role))))
		b.WriteString("\n")
		preview := compactTimelineMessage(plainText(msg.Text), timelineMaxLines, timelineMaxChars)
		b.WriteString(wrapText(preview, width))
		if msg.Render == orchestrator.RenderQRCode {
			b.WriteString("\n\n")
			b.WriteString(m.renderQRCode(orchestrator.OrderID))
		}
		b.WriteString("\n\n")
	}
	if m.snap.InProgress {
		b.WriteString(m.theme.helpText.Render(m.spinner.View() + " concierge is typing..."))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderQRCode draws a deterministic placeholder pattern for the payment
// request. It is not a scannable code.
func (m *model) renderQRCode(seed string) string {
	sum := sha256.Sum256([]byte("upi://pay?am=45.00&tn=" + seed))
	rows := make([]string, 0, qrModules)
	for y := 0; y < qrModules; y++ {
		var row strings.Builder
		for x := 0; x < qrModules; x++ {
			if qrFinder(x, y) || sum[(y*qrModules+x)%len(sum)]>>(uint(x+y)%8)&1 == 1 {
				row.WriteString("██")
			} else {
				row.WriteString("  ")
			}
		}
		rows = append(rows, row.String())
	}
	code := m.theme.qrFrame.Render(strings.Join(rows, "\n"))
	caption := m.theme.qrCaption.Render("UPI · $45.00 · scan to pay")
	return lipgloss.JoinVertical(lipgloss.Left, code, caption)
}

func qrFinder(x, y int) bool {
	inCorner := func(cx, cy int) bool {
		dx, dy := x-cx, y-cy
		if dx < 0 || dy < 0 || dx > 2 || dy > 2 {
			return false
		}
		return dx != 1 || dy != 1
	}
	last := qrModules - 3
	return inCorner(0, 0) || inCorner(last, 0) || inCorner(0, last)
}

func agentLabel(agent orchestrator.AgentID) string {
	switch agent {
	case orchestrator.AgentInventory:
		return "Inventory"
	case orchestrator.AgentRecommendation:
		return "Recommendation"
	case orchestrator.AgentPayment:
		return "Payment"
	case orchestrator.AgentFulfillment:
		return "Fulfillment"
	case orchestrator.AgentLoyalty:
		return "Loyalty"
	default:
		return string(agent)
	}
}

func (m *model) renderBrain() string {
	width := maxInt(20, m.brain.Width-2)
	var b strings.Builder

	b.WriteString(m.theme.panelTitle.Render("Next"))
	b.WriteString("\n")
	b.WriteString(wrapText(turn.Instructions(m.snap.Step), width))
	if suggestion := m.snap.Suggested(); suggestion != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.helpText.Render(fmt.Sprintf("Suggested: %q", suggestion)))
	}
	b.WriteString("\n")
	b.WriteString(m.theme.helpText.Render("Payment listener: " + ternary(m.snap.PaymentArmed, "armed", "idle")))
	b.WriteString("\n\n")

	b.WriteString(m.theme.panelTitle.Render("Thought process"))
	b.WriteString("\n")
	narration := "Waiting for user input..."
	var plan []orchestrator.AgentID
	if m.snap.LastResponse != nil {
		narration = nullCoalesce(m.snap.LastResponse.Narration, narration)
		plan = m.snap.LastResponse.Plan
	}
	b.WriteString(m.theme.narration.Render(wrapText(narration, width)))
	b.WriteString("\n\n")

	b.WriteString(m.theme.panelTitle.Render("Agents"))
	for _, agent := range orchestrator.KnownAgents {
		b.WriteString("\n")
		active := containsAgent(m.snap.ActiveAgents, agent)
		switch {
		case active:
			b.WriteString(m.theme.agentActive.Render(m.spinner.View() + " " + agentLabel(agent) + " working"))
		case containsAgent(plan, agent):
			b.WriteString(m.theme.agentActive.Render("● " + agentLabel(agent) + " planned"))
		default:
			b.WriteString(m.theme.agentIdle.Render("○ " + agentLabel(agent)))
		}
	}

	if len(m.logs) > 0 {
		b.WriteString("\n\n")
		b.WriteString(m.theme.panelTitle.Render("Activity"))
		start := maxInt(0, len(m.logs)-logWindowSize)
		for _, line := range m.logs[start:] {
			b.WriteString("\n")
			b.WriteString(m.theme.helpText.Render(truncate(line, width)))
		}
	}
	return b.String()
}

func containsAgent(list []orchestrator.AgentID, agent orchestrator.AgentID) bool {
	for _, item := range list {
		if item == agent {
			return true
		}
	}
	return false
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 220)))
	if len(m.logs) > 50 {
		m.logs = m.logs[len(m.logs)-50:]
	}
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.appendLog("error: " + err.Error())
	m.statusLine = "error: " + compactSingleLine(err.Error(), 160)
}

// plainText drops the markdown emphasis markers the concierge uses.
func plainText(text string) string {
	return strings.ReplaceAll(text, "**", "")
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if lipgloss.Width(current)+1+lipgloss.Width(word) <= width {
				current += " " + word
				continue
			}
			wrapped = append(wrapped, current)
			current = word
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}

func compactTimelineMessage(text string, maxLines int, maxChars int) string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return ""
	}

	rawLines := strings.Split(normalized, "\n")
	lines := make([]string, 0, len(rawLines))
	lastBlank := false
	for _, line := range rawLines {
		trimmed := strings.TrimRight(line, " \t")
		isBlank := strings.TrimSpace(trimmed) == ""
		if isBlank && lastBlank {
			continue
		}
		lines = append(lines, trimmed)
		lastBlank = isBlank
	}

	if maxLines > 0 && len(lines) > maxLines {
		hidden := len(lines) - maxLines
		lines = append(lines[:maxLines], fmt.Sprintf("[... %d lines hidden]", hidden))
	}

	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	if maxChars > 0 && len(joined) > maxChars {
		return strings.TrimSpace(truncate(joined, maxChars-18) + "\n[... truncated]")
	}
	return joined
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func compactSingleLine(text string, limit int) string {
	compact := strings.Join(strings.Fields(text), " ")
	return truncate(compact, limit)
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func ternary[T any](condition bool, whenTrue T, whenFalse T) T {
	if condition {
		return whenTrue
	}
	return whenFalse
}
