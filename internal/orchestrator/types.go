// Package orchestrator decides what the concierge says and which worker
// agents run for a given conversation step.
package orchestrator

import (
	"context"
	"fmt"
)

// Step is the position in the scripted purchase flow.
type Step int

const (
	StepStart Step = iota
	StepRequested
	StepOfferAccepted
	StepPaymentMethodChosen
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepRequested:
		return "requested"
	case StepOfferAccepted:
		return "offer_accepted"
	case StepPaymentMethodChosen:
		return "payment_method_chosen"
	case StepCompleted:
		return "completed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// NextOnInput returns the step a user turn moves to. Only the first three
// steps advance on input; payment completion is timer driven.
func NextOnInput(current Step) Step {
	switch current {
	case StepStart:
		return StepRequested
	case StepRequested:
		return StepOfferAccepted
	case StepOfferAccepted:
		return StepPaymentMethodChosen
	default:
		return current
	}
}

// AgentID names one of the worker agents. The set is closed.
type AgentID string

const (
	AgentInventory      AgentID = "inventory_agent"
	AgentRecommendation AgentID = "recommendation_agent"
	AgentPayment        AgentID = "payment_agent"
	AgentFulfillment    AgentID = "fulfillment_agent"
	AgentLoyalty        AgentID = "loyalty_agent"
)

// KnownAgents lists every agent in display order.
var KnownAgents = []AgentID{
	AgentInventory,
	AgentRecommendation,
	AgentPayment,
	AgentFulfillment,
	AgentLoyalty,
}

func (a AgentID) Valid() bool {
	for _, known := range KnownAgents {
		if a == known {
			return true
		}
	}
	return false
}

// RenderHint tells the presentation layer how to draw an assistant message.
type RenderHint string

const (
	RenderText   RenderHint = "text"
	RenderQRCode RenderHint = "qr_code"
)

// Response is what the orchestrator produces for one resolve call.
type Response struct {
	Narration string
	Plan      []AgentID
	UserText  string
	Render    RenderHint
}

// Finished reports whether the response closes the turn.
func (r Response) Finished() bool {
	return len(r.Plan) == 0
}

// Exchange is one prior transcript line handed to resolvers that want context.
type Exchange struct {
	Role string
	Text string
}

// Request is the resolver input. Step and Log form the lookup key; History is
// advisory and ignored by the scripted resolver.
type Request struct {
	Step    Step
	Log     string
	History []Exchange
}

// Resolver maps a request to a response. Implementations never return an
// error to the caller: failures are absorbed into a fallback response.
type Resolver interface {
	Resolve(ctx context.Context, req Request) Response
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, req Request) Response

func (f ResolverFunc) Resolve(ctx context.Context, req Request) Response {
	return f(ctx, req)
}
