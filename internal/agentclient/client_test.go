package agentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"
	"commerce-agent/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = stream.Backoff{Base: time.Millisecond, Max: 4 * time.Millisecond}

func writeFrames(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, f := range frames {
		fmt.Fprint(w, f)
		w.(http.Flusher).Flush()
	}
}

func collect(events *[]models.StreamEvent) func(models.StreamEvent) error {
	return func(ev models.StreamEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestChatStreamsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "search airpods", body.Prompt)
		assert.Equal(t, "tab-1", body.ClientID)
		writeFrames(w,
			"data: Searching\n\n",
			"event: catalog\ndata: {\"items\":[{\"id\":\"A1001\",\"title\":\"AirPods\",\"price\":249}]}\n\n",
			"event: done\ndata: end\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, WithClientID("tab-1"))
	var events []models.StreamEvent
	require.NoError(t, c.Chat(context.Background(), "search airpods", collect(&events), nil))

	require.Len(t, events, 3)
	assert.Equal(t, "Searching ", events[0].Token)
	assert.Equal(t, "A1001", events[1].Items[0].ID)
	assert.Equal(t, models.StreamEventDone, events[2].Type)
}

func TestChatRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeFrames(w, "data: ok\n\n", "event: done\ndata: end\n\n")
	}))
	defer srv.Close()

	var retries []RetryInfo
	c := New(srv.URL, WithBackoff(fastBackoff))
	var events []models.StreamEvent
	err := c.Chat(context.Background(), "hi", collect(&events), func(info RetryInfo) {
		retries = append(retries, info)
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	require.Len(t, retries, 1)
	assert.Equal(t, 1, retries[0].Attempt)
	assert.Equal(t, 2*time.Millisecond, retries[0].Delay)
	assert.ErrorIs(t, retries[0].Err, errs.ErrTransport)
	assert.Len(t, events, 2)
}

func TestChatGivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var retried int
	c := New(srv.URL, WithBackoff(fastBackoff), WithRetries(2))
	err := c.Chat(context.Background(), "hi", func(models.StreamEvent) error { return nil }, func(RetryInfo) { retried++ })

	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 2, retried)
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Missing prompt"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithBackoff(fastBackoff))
	err := c.Chat(context.Background(), "", func(models.StreamEvent) error { return nil }, func(RetryInfo) {
		t.Fatal("unexpected retry")
	})

	assert.ErrorIs(t, err, errs.ErrMalformedInput)
	assert.Contains(t, err.Error(), "Missing prompt")
	assert.Equal(t, int32(1), hits.Load())
}

func TestChatCallerCancelNeverRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeFrames(w, "data: first\n\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(srv.URL, WithBackoff(fastBackoff), WithRetries(5))
	var retried int
	err := c.Chat(ctx, "hi", func(ev models.StreamEvent) error {
		cancel()
		return nil
	}, func(RetryInfo) { retried++ })

	assert.ErrorIs(t, err, errs.ErrCanceled)
	assert.False(t, errs.Retryable(err))
	assert.Zero(t, retried)
	assert.Equal(t, int32(1), hits.Load())
}

func TestChatConnectTimeoutIsRetryable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		writeFrames(w, "event: done\ndata: end\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, WithBackoff(fastBackoff), WithConnectTimeout(50*time.Millisecond))
	var retries []RetryInfo
	err := c.Chat(context.Background(), "hi", func(models.StreamEvent) error { return nil }, func(info RetryInfo) {
		retries = append(retries, info)
	})

	require.NoError(t, err)
	require.Len(t, retries, 1)
	assert.ErrorIs(t, retries[0].Err, errs.ErrTransport)
}

func TestChatErrorEventIsUpstreamFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeFrames(w, "data: partial\n\n", "event: error\ndata: {\"message\":\"stream error\"}\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL, WithBackoff(fastBackoff))
	var events []models.StreamEvent
	err := c.Chat(context.Background(), "hi", collect(&events), nil)

	assert.ErrorIs(t, err, errs.ErrUpstream)
	assert.Contains(t, err.Error(), "stream error")
	assert.Equal(t, int32(1), hits.Load())
	assert.Len(t, events, 2)
}

func TestChatHandlerErrorStopsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, "data: a\n\n", "data: b\n\n", "event: done\ndata: end\n\n")
	}))
	defer srv.Close()

	stop := fmt.Errorf("stop")
	c := New(srv.URL)
	err := c.Chat(context.Background(), "hi", func(models.StreamEvent) error { return stop }, nil)
	assert.Equal(t, stop, err)
}

func TestSearchUsesClientCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/catalog/search", r.URL.Path)
		fmt.Fprint(w, `{"items":[{"id":"A1001","title":"AirPods","price":249}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	items, err := c.Search(ctx, " AirPods ")
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = c.Search(ctx, "airpods")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = c.Search(ctx, "sony")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, WithConnectTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.ListOrders(context.Background())
	assert.ErrorIs(t, err, errs.ErrTransport)
	assert.NotErrorIs(t, err, errs.ErrCanceled)
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Status(ctx)
	assert.ErrorIs(t, err, errs.ErrCanceled)
}

func TestOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			var in struct {
				ItemID   string `json:"itemId"`
				Quantity int    `json:"quantity"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			if in.ItemID != "K5001" {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":"Item not found"}`)
				return
			}
			fmt.Fprintf(w, `{"orderId":"ORD-000001","item":{"id":"K5001","title":"Keyboard","price":89},"quantity":%d,"total":178,"createdAt":"2024-05-01T10:00:00Z"}`, in.Quantity)
		default:
			fmt.Fprint(w, `{"orders":[{"orderId":"ORD-000001","quantity":2,"total":178}]}`)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	rec, err := c.CreateOrder(ctx, "K5001", 2)
	require.NoError(t, err)
	assert.Equal(t, "ORD-000001", rec.OrderID)
	assert.Equal(t, 2, rec.Quantity)

	_, err = c.CreateOrder(ctx, "NOPE", 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	orders, err := c.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 178.0, orders[0].Total)
}
