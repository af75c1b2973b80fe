// Package journal writes conversation events to external sinks. It is
// write-only: nothing is read back into the demo.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nexus/internal/turn"
)

// Sink stores or forwards one event.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev turn.Event) error
	Close() error
}

// Writer is an asynchronous turn.Recorder. Record never blocks the caller;
// events are dropped with a warning when the buffer is full.
type Writer struct {
	sinks   []Sink
	logger  zerolog.Logger
	timeout time.Duration

	events chan turn.Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWriter starts the worker. With no sinks, Record is a no-op.
func NewWriter(logger zerolog.Logger, buffer int, sinks ...Sink) *Writer {
	if buffer <= 0 {
		buffer = 1
	}
	w := &Writer{
		sinks:   sinks,
		logger:  logger.With().Str("component", "journal").Logger(),
		timeout: 5 * time.Second,
		events:  make(chan turn.Event, buffer),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Writer) Record(ev turn.Event) {
	if len(w.sinks) == 0 {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.events <- ev:
	default:
		w.logger.Warn().Str("kind", string(ev.Kind)).Msg("journal buffer full, event dropped")
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for ev := range w.events {
		for _, sink := range w.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			if err := sink.Write(ctx, ev); err != nil {
				w.logger.Error().Err(err).Str("sink", sink.Name()).Str("kind", string(ev.Kind)).Msg("journal write failed")
			}
			cancel()
		}
	}
}

// Close flushes buffered events and closes every sink.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	w.wg.Wait()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
