package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/agents"
	"nexus/internal/orchestrator"
	"nexus/internal/turn"
)

func newTestController(t *testing.T, think time.Duration) *turn.Controller {
	t.Helper()
	opts := turn.DefaultOptions()
	opts.ThinkDelay = think
	opts.PaymentThinkDelay = time.Millisecond
	opts.SettleDelay = time.Millisecond
	opts.PaymentTimeout = time.Minute
	c := turn.New(orchestrator.Script{}, agents.NewCanned(0), opts)
	t.Cleanup(c.Close)
	return c
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, stateView) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var view stateView
	if rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	}
	return rec, view
}

func TestHealthz(t *testing.T) {
	router := NewRouter(newTestController(t, time.Millisecond), zerolog.Nop())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStateStartsAtWelcome(t *testing.T) {
	router := NewRouter(newTestController(t, time.Millisecond), zerolog.Nop())
	rec, view := do(t, router, http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "start", view.Step)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, turn.WelcomeText, view.Messages[0].Text)
	assert.Equal(t, "I want to buy a Red Shirt", view.Suggested)
	assert.NotNil(t, view.ActiveAgents)
}

func TestPostMessageAndConflict(t *testing.T) {
	conv := newTestController(t, 100*time.Millisecond)
	router := NewRouter(conv, zerolog.Nop())

	rec, view := do(t, router, http.MethodPost, "/v1/messages", `{"text":"I want to buy a Red Shirt"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, view.InProgress)
	assert.Equal(t, "requested", view.Step)

	rec, _ = do(t, router, http.MethodPost, "/v1/messages", `{"text":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Eventually(t, func() bool {
		_, v := do(t, router, http.MethodGet, "/v1/state", "")
		return !v.InProgress && len(v.Messages) == 4
	}, 3*time.Second, 5*time.Millisecond)
}

func TestPostMessageValidation(t *testing.T) {
	router := NewRouter(newTestController(t, time.Millisecond), zerolog.Nop())

	rec, _ := do(t, router, http.MethodPost, "/v1/messages", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/v1/messages", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSentinelAndResetEndpoint(t *testing.T) {
	conv := newTestController(t, time.Millisecond)
	router := NewRouter(conv, zerolog.Nop())

	require.NoError(t, conv.Submit("I want to buy a Red Shirt"))
	require.Eventually(t, func() bool {
		s := conv.Snapshot()
		return !s.InProgress && len(s.Messages) == 4
	}, 3*time.Second, 5*time.Millisecond)

	rec, view := do(t, router, http.MethodPost, "/v1/messages", `{"text":"Reset Demo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "start", view.Step)
	assert.Len(t, view.Messages, 1)

	require.NoError(t, conv.Submit("I want to buy a Red Shirt"))
	rec, view = do(t, router, http.MethodPost, "/v1/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, view.Messages, 1)
	assert.False(t, view.InProgress)
}
