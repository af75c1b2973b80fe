package main

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"nexus/internal/config"
	"nexus/internal/orchestrator"
	"nexus/internal/turn"
)

type fakeConversation struct {
	snap      turn.Snapshot
	submitted []string
	resets    int
	submitErr error
	updates   chan turn.Snapshot
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{
		snap: turn.Snapshot{
			Session: "11111111-2222",
			Seq:     1,
			Step:    orchestrator.StepStart,
			Messages: []turn.Message{
				{ID: "m0", Role: turn.RoleAssistant, Text: turn.WelcomeText, CreatedAt: time.Now()},
			},
		},
		updates: make(chan turn.Snapshot, 1),
	}
}

func (f *fakeConversation) Submit(text string) error {
	f.submitted = append(f.submitted, text)
	return f.submitErr
}

func (f *fakeConversation) Reset() error {
	f.resets++
	return nil
}

func (f *fakeConversation) Snapshot() turn.Snapshot       { return f.snap }
func (f *fakeConversation) Updates() <-chan turn.Snapshot { return f.updates }

func sizedModel(conv conversation) model {
	m := newModel(appConfig{}, conv)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return next.(model)
}

func typeText(m model, text string) model {
	for _, r := range text {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(model)
	}
	return m
}

func runCmd(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			inner := c()
			switch inner.(type) {
			case submitDoneMsg, resetDoneMsg:
				next, _ := m.Update(inner)
				m = next.(model)
			}
		}
		return m
	}
	next, _ := m.Update(msg)
	return next.(model)
}

func TestEnterSubmitsInput(t *testing.T) {
	conv := newFakeConversation()
	m := typeText(sizedModel(conv), "I want to buy a Red Shirt")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if !m.submitting {
		t.Fatalf("expected model to mark submission in flight")
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input to be cleared, got %q", m.input.Value())
	}
	m = runCmd(t, m, cmd)
	if len(conv.submitted) != 1 || conv.submitted[0] != "I want to buy a Red Shirt" {
		t.Fatalf("unexpected submissions: %#v", conv.submitted)
	}
	if m.submitting {
		t.Fatalf("expected submission flag to clear after reply")
	}
}

func TestSentinelTriggersReset(t *testing.T) {
	conv := newFakeConversation()
	m := typeText(sizedModel(conv), turn.ResetSentinel)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = runCmd(t, next.(model), cmd)
	if len(conv.submitted) != 0 {
		t.Fatalf("expected sentinel to bypass Submit, got %#v", conv.submitted)
	}
	if conv.resets != 1 {
		t.Fatalf("expected one reset, got %d", conv.resets)
	}
	if !strings.Contains(m.statusLine, "demo reset") {
		t.Fatalf("expected reset status, got %q", m.statusLine)
	}
}

func TestEnterIgnoredWhileInProgress(t *testing.T) {
	conv := newFakeConversation()
	conv.snap.InProgress = true
	m := typeText(sizedModel(conv), "hello")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if m.submitting {
		t.Fatalf("did not expect a submission while a turn is running")
	}
	if m.input.Value() != "hello" {
		t.Fatalf("expected input to be kept, got %q", m.input.Value())
	}
}

func TestTabFillsSuggestion(t *testing.T) {
	m := sizedModel(newFakeConversation())
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(model)
	if m.input.Value() != "I want to buy a Red Shirt" {
		t.Fatalf("expected suggestion to be filled, got %q", m.input.Value())
	}
}

func TestStaleSnapshotIgnored(t *testing.T) {
	conv := newFakeConversation()
	m := sizedModel(conv)

	newer := conv.snap
	newer.Seq = 5
	newer.Step = orchestrator.StepRequested
	next, _ := m.Update(snapshotMsg{snap: newer})
	m = next.(model)

	older := conv.snap
	older.Seq = 3
	next, _ = m.Update(snapshotMsg{snap: older})
	m = next.(model)
	if m.snap.Seq != 5 || m.snap.Step != orchestrator.StepRequested {
		t.Fatalf("expected newest snapshot to stick, got seq=%d step=%s", m.snap.Seq, m.snap.Step)
	}
}

func TestTimelineRendersQRCodePlaceholder(t *testing.T) {
	conv := newFakeConversation()
	conv.snap.Step = orchestrator.StepPaymentMethodChosen
	conv.snap.Messages = append(conv.snap.Messages, turn.Message{
		ID:        "m1",
		Role:      turn.RoleAssistant,
		Text:      "Please scan the QR code below to complete the payment of $45.00.",
		Render:    orchestrator.RenderQRCode,
		CreatedAt: time.Now(),
	})
	m := sizedModel(conv)
	out := m.renderTimeline()
	if !strings.Contains(out, "scan to pay") {
		t.Fatalf("expected qr caption in timeline, got %q", out)
	}
	if !strings.Contains(out, "██") {
		t.Fatalf("expected qr modules in timeline")
	}
}

func TestBrainShowsNarrationAndActiveAgents(t *testing.T) {
	conv := newFakeConversation()
	conv.snap.Step = orchestrator.StepRequested
	conv.snap.InProgress = true
	conv.snap.ActiveAgents = []orchestrator.AgentID{orchestrator.AgentInventory}
	conv.snap.LastResponse = &orchestrator.Response{
		Narration: "Strategy: Check Inventory",
		Plan:      []orchestrator.AgentID{orchestrator.AgentInventory, orchestrator.AgentLoyalty},
	}
	m := sizedModel(conv)
	out := m.renderBrain()
	if !strings.Contains(out, "Check Inventory") {
		t.Fatalf("expected narration in brain pane, got %q", out)
	}
	if !strings.Contains(out, "Inventory working") {
		t.Fatalf("expected active agent marker, got %q", out)
	}
	if !strings.Contains(out, "Loyalty planned") {
		t.Fatalf("expected planned agent marker, got %q", out)
	}
}

func TestEscAsksBeforeQuit(t *testing.T) {
	m := sizedModel(newFakeConversation())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(model)
	if !m.quitConfirm {
		t.Fatalf("expected quit confirmation")
	}
	if cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatalf("did not expect immediate quit")
		}
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if next.(model).quitConfirm {
		t.Fatalf("expected quit prompt to close")
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	app, err := parseFlags([]string{"-resolver", "GEMINI", "-agents", "http", "-headless", "-log-file", "out.log"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if app.resolverMode != "gemini" || app.agentsMode != "http" || !app.headless {
		t.Fatalf("unexpected parsed flags: %#v", app)
	}

	cfg := &config.Config{
		Resolver: config.ResolverConfig{Mode: config.ResolverScript, Retry: config.RetryNone},
		Agents:   config.AgentsConfig{Mode: config.AgentsCanned},
	}
	app.resolverMode = ""
	if err := applyFlags(app, cfg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Agents.Mode != config.AgentsHTTP || cfg.Log.File != "out.log" {
		t.Fatalf("expected flags to override config, got %#v", cfg)
	}
}

func TestBuildResolverDefaultsToScript(t *testing.T) {
	resolver, cleanup, err := buildResolver(testContext(t), config.ResolverConfig{Mode: config.ResolverScript}, zerolog.Nop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer cleanup()
	if _, ok := resolver.(orchestrator.Script); !ok {
		t.Fatalf("expected script resolver, got %T", resolver)
	}
}

func TestQRFinderCorners(t *testing.T) {
	if !qrFinder(0, 0) || !qrFinder(qrModules-1, 0) || !qrFinder(0, qrModules-1) {
		t.Fatalf("expected finder modules in three corners")
	}
	if qrFinder(1, 1) {
		t.Fatalf("expected finder centre to be hollow")
	}
}

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context for Go < 1.24).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
