// Package turn sequences user turns, orchestrator calls and agent rounds for
// the concierge conversation.
package turn

import (
	"errors"
	"slices"
	"strings"
	"time"

	"nexus/internal/orchestrator"
)

// ResetSentinel is the input that asks the host to restart the demo.
const ResetSentinel = "Reset Demo"

// WelcomeText opens every transcript.
const WelcomeText = "Welcome to Nexus Retail. I am your agentic concierge."

var (
	ErrBlankInput     = errors.New("input is blank")
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrResetRequested = errors.New("reset requested")
	ErrClosed         = errors.New("controller is closed")
)

// IsResetSentinel reports whether text is the reset request.
func IsResetSentinel(text string) bool {
	return strings.TrimSpace(text) == ResetSentinel
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata records the orchestrator output behind an assistant message.
type Metadata struct {
	Narration string                 `json:"narration"`
	Plan      []orchestrator.AgentID `json:"plan,omitempty"`
}

// Message is one transcript entry. It is never mutated after creation.
type Message struct {
	ID        string                  `json:"id"`
	Role      Role                    `json:"role"`
	Text      string                  `json:"text"`
	CreatedAt time.Time               `json:"created_at"`
	Render    orchestrator.RenderHint `json:"render,omitempty"`
	Meta      *Metadata               `json:"meta,omitempty"`
}

// Snapshot is a copy of the controller state handed to observers.
type Snapshot struct {
	Session      string
	Seq          uint64
	Step         orchestrator.Step
	Messages     []Message
	ActiveAgents []orchestrator.AgentID
	InProgress   bool
	PaymentArmed bool
	LastResponse *orchestrator.Response
}

// Suggested returns the guided input for the current step, or "" when the
// viewer should not be prompted.
func (s Snapshot) Suggested() string {
	if s.InProgress || s.Step >= orchestrator.StepPaymentMethodChosen {
		return ""
	}
	return SuggestedInput(s.Step)
}

// LastMessage returns the newest transcript entry.
func (s Snapshot) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Messages = slices.Clone(s.Messages)
	out.ActiveAgents = slices.Clone(s.ActiveAgents)
	if s.LastResponse != nil {
		resp := *s.LastResponse
		resp.Plan = slices.Clone(resp.Plan)
		out.LastResponse = &resp
	}
	return out
}

// SuggestedInput is the scripted line for each step.
func SuggestedInput(step orchestrator.Step) string {
	switch step {
	case orchestrator.StepStart:
		return "I want to buy a Red Shirt"
	case orchestrator.StepRequested:
		return "Yes, buy the Yellow Shirt"
	case orchestrator.StepOfferAccepted:
		return "Use UPI"
	default:
		return ResetSentinel
	}
}

// Instructions explains what the viewer should do next.
func Instructions(step orchestrator.Step) string {
	switch step {
	case orchestrator.StepStart:
		return "Ask for a 'Red Shirt' to start the scenario."
	case orchestrator.StepRequested:
		return "Say 'Yes' to accept the substitute offer."
	case orchestrator.StepOfferAccepted:
		return "Choose 'Use UPI' to see the QR code."
	case orchestrator.StepPaymentMethodChosen:
		return "Displaying QR code... payment completes automatically."
	case orchestrator.StepCompleted:
		return "Demo finished. Transaction verified."
	default:
		return ""
	}
}

// EventKind labels journal events.
type EventKind string

const (
	EventMessage          EventKind = "message"
	EventRoundStarted     EventKind = "round_started"
	EventRoundFinished    EventKind = "round_finished"
	EventTurnFinished     EventKind = "turn_finished"
	EventPaymentConfirmed EventKind = "payment_confirmed"
	EventReset            EventKind = "reset"
)

// Event is a lifecycle record handed to a Recorder.
type Event struct {
	Kind    EventKind              `json:"kind"`
	Session string                 `json:"session"`
	Step    orchestrator.Step      `json:"step"`
	Message *Message               `json:"message,omitempty"`
	Agents  []orchestrator.AgentID `json:"agents,omitempty"`
	Log     string                 `json:"log,omitempty"`
	At      time.Time              `json:"at"`
}

// Recorder receives lifecycle events. Record is called from the controller
// loop and must not block.
type Recorder interface {
	Record(ev Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(Event) {}
