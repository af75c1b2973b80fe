package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Apology replaces any live response that could not be produced or parsed.
var Apology = Response{
	Narration: "Error parsing AI response.",
	UserText:  "I apologize, I'm having trouble processing that request. Please try again.",
	Render:    RenderText,
}

const systemInstruction = `ROLE:
You are the "Master Orchestrator" for a high-end Retail AI. Your goal is to maximize sales conversion and Average Order Value.

AVAILABLE WORKER AGENTS (TOOLS):
1. 'inventory_agent': Checks real-time stock. Trigger when the user wants to check or buy an item.
2. 'recommendation_agent': Finds alternatives when items are missing.
3. 'payment_agent': Processes transactions. Trigger only when the user confirms purchase.
4. 'fulfillment_agent': Schedules delivery or in-store pickup. Trigger after payment.
5. 'loyalty_agent': Checks points and offers.

RULES:
1. If buying, ALWAYS check inventory first.
2. If an agent log says "OUT_OF_STOCK", trigger 'recommendation_agent' to find a substitute.
3. If the user confirms a purchase, put both 'payment_agent' and 'fulfillment_agent' in the plan.
4. Messages starting with SYSTEM_AGENT_LOG carry the outputs of the agents you requested in the previous turn.

Respond with a JSON object with keys thought_process, plan and response_to_user.`

// GenerateInput is a single model call.
type GenerateInput struct {
	System  string
	History []Exchange
	Prompt  string
}

// Generator is the raw text boundary of a language model.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput) (string, error)
}

// RetryStrategy wraps one generate-and-decode attempt.
type RetryStrategy interface {
	Do(ctx context.Context, attempt func(ctx context.Context) error) error
}

// NoRetry runs the attempt once.
type NoRetry struct{}

func (NoRetry) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	return attempt(ctx)
}

// BackoffRetry retries failed attempts with exponential backoff.
type BackoffRetry struct {
	MaxRetries uint64
	Base       time.Duration
}

func (b BackoffRetry) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	base := b.Base
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(b.MaxRetries, retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := attempt(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Live resolves turns with a language model constrained by responseSchema.
type Live struct {
	generator Generator
	validator *SchemaValidator
	retry     RetryStrategy
	timeout   time.Duration
	logger    zerolog.Logger
}

type LiveOption func(*Live)

func WithRetry(strategy RetryStrategy) LiveOption {
	return func(l *Live) {
		if strategy != nil {
			l.retry = strategy
		}
	}
}

func WithTimeout(timeout time.Duration) LiveOption {
	return func(l *Live) {
		l.timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) LiveOption {
	return func(l *Live) {
		l.logger = logger
	}
}

func NewLive(generator Generator, opts ...LiveOption) (*Live, error) {
	if generator == nil {
		return nil, fmt.Errorf("live resolver: generator is nil")
	}
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	l := &Live{
		generator: generator,
		validator: validator,
		retry:     NoRetry{},
		timeout:   60 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("component", "live_resolver").Logger()
	return l, nil
}

func (l *Live) Resolve(ctx context.Context, req Request) Response {
	in := buildGenerateInput(req)
	var out Response
	attempts := 0
	err := l.retry.Do(ctx, func(ctx context.Context) error {
		attempts++
		callCtx := ctx
		if l.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		raw, err := l.generator.Generate(callCtx, in)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		resp, err := l.validator.Decode(raw)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		l.logger.Warn().Err(err).Stringer("step", req.Step).Int("attempts", attempts).Msg("live resolve failed, answering with apology")
		return Apology
	}
	l.logger.Debug().Stringer("step", req.Step).Int("plan", len(out.Plan)).Msg("live resolve ok")
	return out
}

// buildGenerateInput turns the transcript into model history. Agent logs go
// in as a SYSTEM_AGENT_LOG prompt; otherwise the latest user line is the prompt.
func buildGenerateInput(req Request) GenerateInput {
	in := GenerateInput{System: systemInstruction}
	history := req.History
	switch {
	case req.Log != "":
		in.Prompt = "SYSTEM_AGENT_LOG:\n" + req.Log
	case len(history) > 0 && history[len(history)-1].Role == "user":
		in.Prompt = history[len(history)-1].Text
		history = history[:len(history)-1]
	default:
		in.Prompt = fmt.Sprintf("SYSTEM_SIGNAL: conversation step %s reached without user input.", req.Step)
	}
	in.History = make([]Exchange, 0, len(history))
	for _, ex := range history {
		if strings.TrimSpace(ex.Text) == "" {
			continue
		}
		in.History = append(in.History, ex)
	}
	return in
}
