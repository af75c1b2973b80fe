// Package agents runs the worker agents named in an orchestrator plan.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"

	"nexus/internal/orchestrator"
)

// DefaultLatency models the network round trip of a worker agent.
const DefaultLatency = 1200 * time.Millisecond

// Invoker runs one agent and returns its single diagnostic line.
type Invoker interface {
	Invoke(ctx context.Context, agent orchestrator.AgentID, contextText string) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, agent orchestrator.AgentID, contextText string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, agent orchestrator.AgentID, contextText string) (string, error) {
	return f(ctx, agent, contextText)
}

var cannedLines = map[orchestrator.AgentID]string{
	orchestrator.AgentInventory:      "INVENTORY_CHECK: Target 'Red Shirt' is OUT_OF_STOCK.",
	orchestrator.AgentRecommendation: "RECOMMENDATION: Alternative found: 'Yellow Shirt' (High Similarity). Status: IN_STOCK.",
	orchestrator.AgentLoyalty:        "LOYALTY_CHECK: User 'usr_8821' is VIP_GOLD. ACTION: Authorize 15% Discount on substitute item.",
	orchestrator.AgentPayment:        "PAYMENT_GATEWAY: Transaction Authorized. Amount: $45.00. Method: Visa **** 4242.",
	orchestrator.AgentFulfillment:    "LOGISTICS_HUB: Order #" + orchestrator.OrderID + " queued. Service: Express Next-Day.",
}

// UnknownAgentLine is the diagnostic returned for an id outside the closed set.
func UnknownAgentLine(agent orchestrator.AgentID) string {
	return fmt.Sprintf("AGENT_ERROR: Unknown agent %s", agent)
}

// Canned answers every agent with a fixed line after Latency.
type Canned struct {
	Latency time.Duration
}

func NewCanned(latency time.Duration) Canned {
	return Canned{Latency: latency}
}

func (c Canned) Invoke(ctx context.Context, agent orchestrator.AgentID, _ string) (string, error) {
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	line, ok := cannedLines[agent]
	if !ok {
		return UnknownAgentLine(agent), nil
	}
	return line, nil
}

// Fanout invokes every agent in plan concurrently and waits for all of them.
// Results keep plan order regardless of completion order. Invoker errors are
// folded into AGENT_ERROR lines so one agent cannot fail the round.
func Fanout(ctx context.Context, invoker Invoker, plan []orchestrator.AgentID, contextText string) []string {
	if len(plan) == 0 {
		return nil
	}
	mapper := iter.Mapper[orchestrator.AgentID, string]{MaxGoroutines: len(plan)}
	return mapper.Map(plan, func(agent *orchestrator.AgentID) string {
		line, err := invoker.Invoke(ctx, *agent, contextText)
		if err != nil {
			return fmt.Sprintf("AGENT_ERROR: %s failed: %v", *agent, err)
		}
		return strings.TrimSpace(line)
	})
}

// JoinLog concatenates agent results into the log handed back to the resolver.
func JoinLog(results []string) string {
	return strings.Join(results, "\n")
}
