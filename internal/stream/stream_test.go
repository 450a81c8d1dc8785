package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func decodeAll(t *testing.T, b []byte) []models.StreamEvent {
	t.Helper()
	var events []models.StreamEvent
	require.NoError(t, Decode(bytes.NewReader(b), func(ev models.StreamEvent) error {
		events = append(events, ev)
		return nil
	}))
	return events
}

func TestEmitterWireFormat(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)
	ctx := context.Background()

	require.NoError(t, e.Words(ctx, "Hi  there"))
	require.NoError(t, e.Catalog([]models.CatalogItem{{ID: "A1001", Title: "AirPods", Price: 249}}))
	require.NoError(t, e.Done())

	assert.Equal(t,
		"data: Hi \n\n"+
			"data: there \n\n"+
			"event: catalog\ndata: {\"items\":[{\"id\":\"A1001\",\"title\":\"AirPods\",\"price\":249}]}\n\n"+
			"event: done\ndata: end\n\n",
		buf.String())
}

func TestEmitterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)
	ctx := context.Background()
	record := models.OrderRecord{
		OrderID:   "ORD-ABC123",
		Item:      models.CatalogItem{ID: "K5001", Title: "Keyboard", Price: 89},
		Quantity:  2,
		Total:     178,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, e.Words(ctx, "Order placed.\nNext"))
	require.NoError(t, e.Order(record))
	require.NoError(t, e.Done())

	events := decodeAll(t, buf.Bytes())
	require.Len(t, events, 4)
	assert.Equal(t, models.StreamEvent{Type: models.StreamEventToken, Token: "Order "}, events[0])
	assert.Equal(t, models.StreamEvent{Type: models.StreamEventToken, Token: "placed.\nNext "}, events[1])
	assert.Equal(t, models.StreamEventOrder, events[2].Type)
	assert.Equal(t, record, *events[2].Order)
	assert.Equal(t, models.StreamEventDone, events[3].Type)
}

func TestEmitterRejectsWritesAfterTerminal(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)

	require.NoError(t, e.Error("stream error"))
	assert.True(t, e.Terminated())
	assert.Error(t, e.Token("late"))
	assert.Error(t, e.Done())
	assert.Equal(t, "event: error\ndata: {\"message\":\"stream error\"}\n\n", buf.String())
}

func TestTokenKeepsFrameBoundary(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)

	require.NoError(t, e.Token("para one\n\n\npara two"))
	assert.Equal(t, "data: para one\npara two \n\n", buf.String())
}

func TestTokenEndingInNewlineKeepsNextFrames(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, 0)

	for _, frag := range []string{"Sure!\n", "Here", " is"} {
		require.NoError(t, e.Token(frag))
	}
	require.NoError(t, e.Done())

	var p Parser
	events := p.Feed(buf.Bytes())
	require.Len(t, events, 4)
	assert.Equal(t, "Sure!\n ", events[0].Token)
	assert.Equal(t, "Here ", events[1].Token)
	assert.Equal(t, " is ", events[2].Token)
	assert.Equal(t, models.StreamEventDone, events[3].Type)
	assert.Zero(t, p.Pending())
}

func TestParserToleratesStrayNewlines(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("data: Sure!\n\n\ndata: Here\n\n\nevent: done\ndata: end\n\n"))

	require.Len(t, events, 3)
	assert.Equal(t, "Sure! ", events[0].Token)
	assert.Equal(t, "Here ", events[1].Token)
	assert.Equal(t, models.StreamEventDone, events[2].Type)
}

type signalWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	wrote chan struct{}
	once  sync.Once
}

func (w *signalWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(func() { close(w.wrote) })
	return w.buf.Write(p)
}

func (w *signalWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestWordsStopsOnCancel(t *testing.T) {
	w := &signalWriter{wrote: make(chan struct{})}
	e := NewEmitter(w, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- e.Words(ctx, "one two three") }()

	<-w.wrote
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Words did not return after cancel")
	}
	assert.Equal(t, "data: one \n\n", w.String())
}

func TestWordsCanceledBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, e.Words(ctx, "never sent"), context.Canceled)
	assert.Empty(t, buf.String())
}

func TestParserFeedAcrossChunks(t *testing.T) {
	raw := "data: Searching\n\nevent: catalog\ndata: {\"items\":[{\"id\":\"S2002\",\"title\":\"Sony\",\"price\":399.99}]} \n\nevent: done\ndata: end\n\n"

	var p Parser
	var events []models.StreamEvent
	for i := 0; i < len(raw); i++ {
		events = append(events, p.Feed([]byte{raw[i]})...)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "Searching ", events[0].Token)
	assert.Equal(t, models.StreamEventCatalog, events[1].Type)
	require.Len(t, events[1].Items, 1)
	assert.Equal(t, "S2002", events[1].Items[0].ID)
	assert.Equal(t, models.StreamEventDone, events[2].Type)
	assert.Zero(t, p.Pending())
}

func TestParserSkipsUnknownFrames(t *testing.T) {
	var p Parser
	events := p.Feed([]byte(": comment\n\nevent: ping\ndata: {}\n\nevent: catalog\ndata: not-json\n\nevent: order\n\ndata: ok\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "ok ", events[0].Token)
}

func TestParserErrorFrame(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("event: error\ndata: {\"message\":\"stream error\"}\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, models.StreamEvent{Type: models.StreamEventError, Error: "stream error"}, events[0])
}

func TestDecodeStopsAtTerminal(t *testing.T) {
	events := decodeAll(t, []byte("data: a\n\nevent: done\ndata: end\n\ndata: ignored\n\n"))
	require.Len(t, events, 2)
	assert.Equal(t, models.StreamEventDone, events[1].Type)
}

func TestDecodeErrors(t *testing.T) {
	boom := errors.New("boom")
	err := Decode(iotest.ErrReader(boom), func(models.StreamEvent) error { return nil })
	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.ErrorIs(t, err, boom)

	stop := errors.New("stop")
	err = Decode(strings.NewReader("data: a\n\n"), func(models.StreamEvent) error { return stop })
	assert.Equal(t, stop, err)
}

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()
	b.Rand = func(int64) int64 { return 0 }

	assert.Equal(t, 600*time.Millisecond, b.Delay(1))
	assert.Equal(t, 1200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 2400*time.Millisecond, b.Delay(3))
	assert.Equal(t, 4800*time.Millisecond, b.Delay(4))
	assert.Equal(t, 5*time.Second, b.Delay(5))
	assert.Equal(t, 5*time.Second, b.Delay(64))
}

func TestBackoffJitterBounds(t *testing.T) {
	b := DefaultBackoff()
	for i := 0; i < 200; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 600*time.Millisecond)
		assert.Less(t, d, 800*time.Millisecond)
	}
}
