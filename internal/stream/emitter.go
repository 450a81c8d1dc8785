// Package stream implements the text/event-stream chat protocol: the
// server-side emitter, the client-side frame parser and retry backoff.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"commerce-agent/internal/models"
	"commerce-agent/internal/util"
)

// DoneData is the payload of the terminal done frame
const DoneData = "end"

// Emitter writes stream frames and flushes after each one.
// It is safe for use by one request at a time.
type Emitter struct {
	w     io.Writer
	flush func()
	delay time.Duration

	mu     sync.Mutex
	closed bool
}

// NewEmitter creates an emitter. delay is the pause after every word of Words.
func NewEmitter(w io.Writer, delay time.Duration) *Emitter {
	e := &Emitter{w: w, delay: delay, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		e.flush = f.Flush
	}
	return e
}

func (e *Emitter) write(eventType, frame string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("stream already terminated")
	}
	if _, err := io.WriteString(e.w, frame); err != nil {
		return err
	}
	e.flush()
	util.StreamEventsTotal.WithLabelValues(eventType).Inc()
	if eventType == models.StreamEventDone || eventType == models.StreamEventError {
		e.closed = true
	}
	return nil
}

// tokenData keeps a fragment inside a single frame
func tokenData(s string) string {
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return s
}

// Token writes one token frame. The space before the blank line keeps a
// fragment that ends in a newline from running into the frame terminator.
func (e *Emitter) Token(text string) error {
	return e.write(models.StreamEventToken, "data: "+tokenData(text)+" \n\n")
}

// Words streams text split on single spaces, one token per word, pausing
// between words. ctx is checked before every emission.
func (e *Emitter) Words(ctx context.Context, text string) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for _, w := range strings.Split(text, " ") {
		if w == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Token(w); err != nil {
			return err
		}
		if e.delay <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(e.delay)
		} else {
			timer.Reset(e.delay)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (e *Emitter) event(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	return e.write(name, fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

// Catalog writes a catalog card event
func (e *Emitter) Catalog(items []models.CatalogItem) error {
	if items == nil {
		items = []models.CatalogItem{}
	}
	return e.event(models.StreamEventCatalog, models.CatalogEventData{Items: items})
}

// Order writes a placed-order event
func (e *Emitter) Order(record models.OrderRecord) error {
	return e.event(models.StreamEventOrder, record)
}

// Error writes the terminal error frame
func (e *Emitter) Error(message string) error {
	return e.event(models.StreamEventError, models.ErrorEventData{Message: message})
}

// Done writes the terminal done frame
func (e *Emitter) Done() error {
	return e.write(models.StreamEventDone, "event: done\ndata: "+DoneData+"\n\n")
}

// Terminated reports whether a done or error frame has been written
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
