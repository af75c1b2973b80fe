package agents

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/orchestrator"
)

func TestCannedLines(t *testing.T) {
	c := NewCanned(0)
	line, err := c.Invoke(context.Background(), orchestrator.AgentInventory, "")
	require.NoError(t, err)
	assert.Contains(t, line, "OUT_OF_STOCK")

	line, err = c.Invoke(context.Background(), orchestrator.AgentFulfillment, "")
	require.NoError(t, err)
	assert.Contains(t, line, orchestrator.OrderID)
}

func TestCannedUnknownAgentIsDiagnostic(t *testing.T) {
	line, err := NewCanned(0).Invoke(context.Background(), orchestrator.AgentID("shipping_agent"), "")
	require.NoError(t, err)
	assert.Equal(t, "AGENT_ERROR: Unknown agent shipping_agent", line)
}

func TestCannedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCanned(time.Hour).Invoke(ctx, orchestrator.AgentPayment, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFanoutKeepsPlanOrder(t *testing.T) {
	latency := map[orchestrator.AgentID]time.Duration{
		orchestrator.AgentInventory:      60 * time.Millisecond,
		orchestrator.AgentRecommendation: 10 * time.Millisecond,
		orchestrator.AgentLoyalty:        30 * time.Millisecond,
	}
	inv := InvokerFunc(func(ctx context.Context, agent orchestrator.AgentID, _ string) (string, error) {
		time.Sleep(latency[agent])
		return string(agent), nil
	})
	plan := []orchestrator.AgentID{orchestrator.AgentInventory, orchestrator.AgentRecommendation, orchestrator.AgentLoyalty}
	got := Fanout(context.Background(), inv, plan, "")
	assert.Equal(t, []string{"inventory_agent", "recommendation_agent", "loyalty_agent"}, got)
	assert.Equal(t, "inventory_agent\nrecommendation_agent\nloyalty_agent", JoinLog(got))
}

func TestFanoutRunsConcurrently(t *testing.T) {
	const latency = 120 * time.Millisecond
	var inFlight, peak atomic.Int32
	inv := InvokerFunc(func(ctx context.Context, agent orchestrator.AgentID, _ string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(latency)
		inFlight.Add(-1)
		return "ok", nil
	})
	plan := []orchestrator.AgentID{orchestrator.AgentInventory, orchestrator.AgentRecommendation, orchestrator.AgentLoyalty}

	started := time.Now()
	Fanout(context.Background(), inv, plan, "")
	elapsed := time.Since(started)

	assert.Equal(t, int32(3), peak.Load())
	assert.Less(t, elapsed, 3*latency, "fan-in should track the slowest agent, not the sum")
}

func TestFanoutFoldsErrors(t *testing.T) {
	inv := InvokerFunc(func(ctx context.Context, agent orchestrator.AgentID, _ string) (string, error) {
		if agent == orchestrator.AgentPayment {
			return "", errors.New("gateway down")
		}
		return "fine", nil
	})
	got := Fanout(context.Background(), inv, []orchestrator.AgentID{orchestrator.AgentPayment, orchestrator.AgentFulfillment}, "")
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "AGENT_ERROR: payment_agent failed")
	assert.Equal(t, "fine", got[1])
}

func TestFanoutEmptyPlan(t *testing.T) {
	assert.Nil(t, Fanout(context.Background(), NewCanned(0), nil, ""))
}

func TestHTTPInvoker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/loyalty_agent", r.URL.Path)
		var body agentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "loyalty_agent", body.Agent)
		_ = json.NewEncoder(w).Encode(agentReply{Result: "LOYALTY_CHECK: VIP_GOLD"})
	}))
	defer srv.Close()

	inv := NewHTTP(srv.URL+"/", time.Second)
	line, err := inv.Invoke(context.Background(), orchestrator.AgentLoyalty, "ctx")
	require.NoError(t, err)
	assert.Equal(t, "LOYALTY_CHECK: VIP_GOLD", line)

	line, err = inv.Invoke(context.Background(), orchestrator.AgentID("nope"), "")
	require.NoError(t, err)
	assert.Equal(t, UnknownAgentLine("nope"), line)
}

func TestHTTPInvokerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, time.Second).Invoke(context.Background(), orchestrator.AgentPayment, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent http 502")
}
