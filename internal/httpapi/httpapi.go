// Package httpapi exposes the conversation over a small JSON API so the demo
// can be driven without the terminal UI.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nexus/internal/orchestrator"
	"nexus/internal/turn"
)

// Conversation is the controller surface the API drives.
type Conversation interface {
	Submit(text string) error
	Reset() error
	Snapshot() turn.Snapshot
}

type messageRequest struct {
	Text string `json:"text" binding:"required"`
}

type stateView struct {
	Session      string                  `json:"session"`
	Seq          uint64                  `json:"seq"`
	Step         string                  `json:"step"`
	StepIndex    int                     `json:"step_index"`
	InProgress   bool                    `json:"in_progress"`
	PaymentArmed bool                    `json:"payment_armed"`
	ActiveAgents []orchestrator.AgentID  `json:"active_agents"`
	Suggested    string                  `json:"suggested,omitempty"`
	Instructions string                  `json:"instructions"`
	Narration    string                  `json:"narration,omitempty"`
	Messages     []turn.Message          `json:"messages"`
	Render       orchestrator.RenderHint `json:"render,omitempty"`
}

func viewOf(s turn.Snapshot) stateView {
	v := stateView{
		Session:      s.Session,
		Seq:          s.Seq,
		Step:         s.Step.String(),
		StepIndex:    int(s.Step),
		InProgress:   s.InProgress,
		PaymentArmed: s.PaymentArmed,
		ActiveAgents: s.ActiveAgents,
		Suggested:    s.Suggested(),
		Instructions: turn.Instructions(s.Step),
		Messages:     s.Messages,
	}
	if v.ActiveAgents == nil {
		v.ActiveAgents = []orchestrator.AgentID{}
	}
	if s.LastResponse != nil {
		v.Narration = s.LastResponse.Narration
		v.Render = s.LastResponse.Render
	}
	return v
}

// NewRouter wires the routes onto a fresh gin engine.
func NewRouter(conv Conversation, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	{
		v1.GET("/state", func(c *gin.Context) {
			c.JSON(http.StatusOK, viewOf(conv.Snapshot()))
		})
		v1.POST("/messages", postMessage(conv))
		v1.POST("/reset", func(c *gin.Context) {
			if err := conv.Reset(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, viewOf(conv.Snapshot()))
		})
	}
	return router
}

func postMessage(conv Conversation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required", "detail": err.Error()})
			return
		}
		err := conv.Submit(req.Text)
		switch {
		case err == nil:
			c.JSON(http.StatusAccepted, viewOf(conv.Snapshot()))
		case errors.Is(err, turn.ErrResetRequested):
			if err := conv.Reset(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, viewOf(conv.Snapshot()))
		case errors.Is(err, turn.ErrBlankInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, turn.ErrTurnInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	}
}

// Serve runs the API on addr until ctx is cancelled, then shuts down.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("http api stopped")
	return nil
}
