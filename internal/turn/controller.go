package turn

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nexus/internal/agents"
	"nexus/internal/orchestrator"
)

// Options tunes the demo pacing. Zero durations disable the matching wait.
type Options struct {
	ThinkDelay        time.Duration
	PaymentThinkDelay time.Duration
	SettleDelay       time.Duration
	PaymentTimeout    time.Duration
	MaxRounds         int
	Logger            zerolog.Logger
	Recorder          Recorder
}

// DefaultOptions matches the pacing of the scripted demo.
func DefaultOptions() Options {
	return Options{
		ThinkDelay:        800 * time.Millisecond,
		PaymentThinkDelay: 500 * time.Millisecond,
		SettleDelay:       1500 * time.Millisecond,
		PaymentTimeout:    10 * time.Second,
		MaxRounds:         3,
		Logger:            zerolog.Nop(),
	}
}

// Controller owns the conversation. All state lives on the loop goroutine;
// callers and background work talk to it through the inbox.
type Controller struct {
	resolver orchestrator.Resolver
	invoker  agents.Invoker
	opts     Options
	logger   zerolog.Logger
	recorder Recorder

	inbox     chan any
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	baseCtx    context.Context
	baseCancel context.CancelFunc

	// loop-owned
	state          Snapshot
	epoch          uint64
	epochCtx       context.Context
	epochCancel    context.CancelFunc
	timer          *time.Timer
	rounds         int
	paymentPending bool

	mu       sync.RWMutex
	snapshot Snapshot
	updates  chan Snapshot
}

type submitReq struct {
	text  string
	reply chan error
}

type resetReq struct {
	reply chan struct{}
}

type resolvedEv struct {
	epoch uint64
	step  orchestrator.Step
	log   string
	resp  orchestrator.Response
}

type roundDoneEv struct {
	epoch uint64
	step  orchestrator.Step
	log   string
}

type paymentDueEv struct {
	epoch uint64
}

// New builds a controller and starts its loop. Close must be called to stop
// it and cancel the payment timer.
func New(resolver orchestrator.Resolver, invoker agents.Invoker, opts Options) *Controller {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 1
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	c := &Controller{
		resolver:   resolver,
		invoker:    invoker,
		opts:       opts,
		logger:     opts.Logger.With().Str("component", "turn").Logger(),
		recorder:   recorder,
		inbox:      make(chan any, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		updates:    make(chan Snapshot, 1),
	}
	c.restart()
	go c.loop()
	return c
}

// Submit hands user text to the controller. Blank input, the reset sentinel
// and input during a running turn are rejected without touching state.
func (c *Controller) Submit(text string) error {
	reply := make(chan error, 1)
	if !c.post(submitReq{text: text, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// Reset restarts the demo: the payment timer is cancelled, in-flight work is
// dropped and the transcript goes back to the welcome message.
func (c *Controller) Reset() error {
	reply := make(chan struct{})
	if !c.post(resetReq{reply: reply}) {
		return ErrClosed
	}
	select {
	case <-reply:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone()
}

// Updates delivers the newest snapshot after each mutation. Slow readers only
// see the latest one.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// Close stops the loop, cancels the payment timer and background work. It is
// safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.done
	})
}

func (c *Controller) post(ev any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.inbox <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	defer c.baseCancel()
	defer c.stopTimer()
	for {
		select {
		case <-c.quit:
			c.logger.Debug().Msg("controller stopped")
			return
		case ev := <-c.inbox:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev any) {
	switch ev := ev.(type) {
	case submitReq:
		ev.reply <- c.onSubmit(ev.text)
	case resetReq:
		c.onReset()
		close(ev.reply)
	case resolvedEv:
		if ev.epoch == c.epoch {
			c.onResolved(ev)
		}
	case roundDoneEv:
		if ev.epoch == c.epoch {
			c.onRoundDone(ev)
		}
	case paymentDueEv:
		if ev.epoch == c.epoch {
			c.onPaymentDue()
		}
	}
}

func (c *Controller) onSubmit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankInput
	}
	if IsResetSentinel(text) {
		return ErrResetRequested
	}
	if c.state.InProgress {
		c.logger.Debug().Stringer("step", c.state.Step).Msg("input rejected, turn in progress")
		return ErrTurnInProgress
	}
	next := orchestrator.NextOnInput(c.state.Step)
	c.setStep(next)
	c.appendMessage(Message{Role: RoleUser, Text: text})
	c.state.InProgress = true
	c.rounds = 0
	c.logger.Info().Stringer("step", next).Msg("turn started")
	c.publish()
	c.think(next, "")
	return nil
}

func (c *Controller) onReset() {
	c.logger.Info().Stringer("step", c.state.Step).Msg("demo reset")
	c.restart()
	c.recorder.Record(Event{Kind: EventReset, Session: c.state.Session, Step: c.state.Step, At: time.Now()})
}

func (c *Controller) onResolved(ev resolvedEv) {
	resp := ev.resp
	c.state.LastResponse = &resp
	c.appendMessage(Message{
		Role:   RoleAssistant,
		Text:   resp.UserText,
		Render: resp.Render,
		Meta:   &Metadata{Narration: resp.Narration, Plan: slices.Clone(resp.Plan)},
	})

	if resp.Finished() {
		c.finishTurn()
		return
	}
	if c.rounds >= c.opts.MaxRounds {
		c.logger.Warn().Stringer("step", ev.step).Int("rounds", c.rounds).Msg("agent round limit reached, ending turn")
		c.finishTurn()
		return
	}
	c.rounds++
	c.state.ActiveAgents = slices.Clone(resp.Plan)
	c.recorder.Record(Event{Kind: EventRoundStarted, Session: c.state.Session, Step: ev.step, Agents: resp.Plan, At: time.Now()})
	c.logger.Info().Stringer("step", ev.step).Int("round", c.rounds).Interface("plan", resp.Plan).Msg("agent round started")
	c.publish()
	c.runRound(ev.step, resp.Plan)
}

func (c *Controller) onRoundDone(ev roundDoneEv) {
	c.state.ActiveAgents = nil
	c.recorder.Record(Event{Kind: EventRoundFinished, Session: c.state.Session, Step: ev.step, Log: ev.log, At: time.Now()})
	c.publish()
	c.think(ev.step, ev.log)
}

func (c *Controller) onPaymentDue() {
	c.timer = nil
	c.state.PaymentArmed = false
	if c.state.InProgress {
		c.paymentPending = true
		c.logger.Debug().Msg("payment confirmation deferred until turn ends")
		return
	}
	c.confirmPayment()
}

func (c *Controller) confirmPayment() {
	c.paymentPending = false
	c.setStep(orchestrator.StepCompleted)
	c.state.InProgress = true
	c.rounds = 0
	c.recorder.Record(Event{Kind: EventPaymentConfirmed, Session: c.state.Session, Step: c.state.Step, At: time.Now()})
	c.logger.Info().Msg("payment confirmed by timer")
	c.publish()
	c.think(orchestrator.StepCompleted, "")
}

func (c *Controller) finishTurn() {
	c.state.InProgress = false
	c.state.ActiveAgents = nil
	c.recorder.Record(Event{Kind: EventTurnFinished, Session: c.state.Session, Step: c.state.Step, At: time.Now()})
	c.logger.Info().Stringer("step", c.state.Step).Msg("turn finished")
	c.publish()
	if c.paymentPending {
		c.confirmPayment()
	}
}

// think waits the thinking delay, resolves, and posts the response back.
func (c *Controller) think(step orchestrator.Step, log string) {
	epoch, ctx := c.epoch, c.epochCtx
	delay := c.opts.ThinkDelay
	if step == orchestrator.StepCompleted {
		delay = c.opts.PaymentThinkDelay
	}
	req := orchestrator.Request{Step: step, Log: log, History: c.history()}
	go func() {
		if !sleep(ctx, delay) {
			return
		}
		resp := c.resolver.Resolve(ctx, req)
		if ctx.Err() != nil {
			return
		}
		c.post(resolvedEv{epoch: epoch, step: step, log: log, resp: resp})
	}()
}

// runRound fans the plan out, waits for every agent, settles and posts back.
func (c *Controller) runRound(step orchestrator.Step, plan []orchestrator.AgentID) {
	epoch, ctx := c.epoch, c.epochCtx
	plan = slices.Clone(plan)
	contextText := c.lastUserText()
	go func() {
		results := agents.Fanout(ctx, c.invoker, plan, contextText)
		if !sleep(ctx, c.opts.SettleDelay) {
			return
		}
		c.post(roundDoneEv{epoch: epoch, step: step, log: agents.JoinLog(results)})
	}()
}

func (c *Controller) setStep(next orchestrator.Step) {
	prev := c.state.Step
	c.state.Step = next
	if next == orchestrator.StepPaymentMethodChosen && prev != next {
		c.armPaymentTimer()
	}
}

func (c *Controller) armPaymentTimer() {
	c.stopTimer()
	epoch := c.epoch
	c.timer = time.AfterFunc(c.opts.PaymentTimeout, func() {
		c.post(paymentDueEv{epoch: epoch})
	})
	c.state.PaymentArmed = true
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state.PaymentArmed = false
}

// restart begins a fresh session: new epoch, cancelled background work and a
// transcript holding only the welcome message.
func (c *Controller) restart() {
	c.stopTimer()
	if c.epochCancel != nil {
		c.epochCancel()
	}
	c.epoch++
	c.epochCtx, c.epochCancel = context.WithCancel(c.baseCtx)
	c.rounds = 0
	c.paymentPending = false
	c.state = Snapshot{Session: uuid.NewString(), Seq: c.state.Seq, Step: orchestrator.StepStart}
	c.appendMessage(Message{Role: RoleAssistant, Text: WelcomeText, Render: orchestrator.RenderText})
	c.publish()
}

func (c *Controller) appendMessage(msg Message) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now()
	c.state.Messages = append(c.state.Messages, msg)
	c.recorder.Record(Event{Kind: EventMessage, Session: c.state.Session, Step: c.state.Step, Message: &msg, At: msg.CreatedAt})
}

func (c *Controller) history() []orchestrator.Exchange {
	out := make([]orchestrator.Exchange, 0, len(c.state.Messages))
	for _, msg := range c.state.Messages {
		out = append(out, orchestrator.Exchange{Role: string(msg.Role), Text: msg.Text})
	}
	return out
}

func (c *Controller) lastUserText() string {
	for i := len(c.state.Messages) - 1; i >= 0; i-- {
		if c.state.Messages[i].Role == RoleUser {
			return c.state.Messages[i].Text
		}
	}
	return ""
}

func (c *Controller) publish() {
	c.state.Seq++
	snap := c.state.clone()
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap.clone():
	default:
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
