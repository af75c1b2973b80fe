package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nexus/internal/orchestrator"
)

// HTTP forwards agent calls to a backend exposing POST {base}/agents/{id}.
type HTTP struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type agentRequest struct {
	Agent   string `json:"agent"`
	Context string `json:"context"`
}

type agentReply struct {
	Result string `json:"result"`
}

func (h *HTTP) Invoke(ctx context.Context, agent orchestrator.AgentID, contextText string) (string, error) {
	if !agent.Valid() {
		return UnknownAgentLine(agent), nil
	}
	buf, err := json.Marshal(agentRequest{Agent: string(agent), Context: contextText})
	if err != nil {
		return "", err
	}
	endpoint := h.baseURL + "/agents/" + string(agent)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request failed on %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("agent http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var parsed agentReply
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("agent %s returned non-json payload", agent)
	}
	result := strings.TrimSpace(parsed.Result)
	if result == "" {
		return "", errors.New("agent returned empty result")
	}
	return result, nil
}
