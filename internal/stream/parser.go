package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"
)

var frameSep = []byte("\n\n")

// Parser splits a byte stream into events on blank-line frame boundaries.
// Frames it does not understand are skipped.
type Parser struct {
	buf []byte
}

// Feed appends b and returns every event completed by it
func (p *Parser) Feed(b []byte) []models.StreamEvent {
	p.buf = append(p.buf, b...)

	var events []models.StreamEvent
	for {
		idx := bytes.Index(p.buf, frameSep)
		if idx < 0 {
			break
		}
		frame := string(p.buf[:idx])
		p.buf = p.buf[idx+len(frameSep):]

		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Pending returns the number of buffered bytes not yet forming a frame
func (p *Parser) Pending() int {
	return len(p.buf)
}

func parseFrame(frame string) (models.StreamEvent, bool) {
	frame = strings.TrimLeft(frame, "\n")
	if strings.HasPrefix(frame, "event: ") {
		name, rest, _ := strings.Cut(frame[len("event: "):], "\n")
		if !strings.HasPrefix(rest, "data: ") {
			return models.StreamEvent{}, false
		}
		data := strings.TrimSpace(rest[len("data: "):])
		return parseNamed(name, data)
	}
	if strings.HasPrefix(frame, "data: ") {
		data := strings.TrimSuffix(frame[len("data: "):], " ")
		return models.StreamEvent{Type: models.StreamEventToken, Token: data + " "}, true
	}
	return models.StreamEvent{}, false
}

func parseNamed(name, data string) (models.StreamEvent, bool) {
	switch name {
	case models.StreamEventCatalog:
		var payload models.CatalogEventData
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return models.StreamEvent{}, false
		}
		return models.StreamEvent{Type: name, Items: payload.Items}, true
	case models.StreamEventOrder:
		var record models.OrderRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return models.StreamEvent{}, false
		}
		return models.StreamEvent{Type: name, Order: &record}, true
	case models.StreamEventError:
		var payload models.ErrorEventData
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			payload.Message = data
		}
		return models.StreamEvent{Type: name, Error: payload.Message}, true
	case models.StreamEventDone:
		return models.StreamEvent{Type: name}, true
	}
	return models.StreamEvent{}, false
}

// Decode reads r until a terminal event or EOF, passing each event to fn.
// Read failures are wrapped in errs.ErrTransport; errors from fn are returned unchanged.
func Decode(r io.Reader, fn func(models.StreamEvent) error) error {
	var p Parser
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range p.Feed(buf[:n]) {
				if herr := fn(ev); herr != nil {
					return herr
				}
				if ev.Type == models.StreamEventDone || ev.Type == models.StreamEventError {
					return nil
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read stream: %w", errs.ErrTransport, err)
		}
	}
}
