package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func drain(c *Client) []Message {
	var out []Message
	for {
		select {
		case frame, ok := <-c.Send():
			if !ok {
				return out
			}
			var m Message
			_ = json.Unmarshal(frame, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	t.Parallel()
	h := NewHub(8, zaptest.NewLogger(t))
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }

	products := h.Register("p1")
	orders := h.Register("p1")
	otherProject := h.Register("p2")
	h.Subscribe(products, "products")
	h.Subscribe(orders, "orders")
	h.Subscribe(otherProject, "products")

	h.Broadcast("p1", "products", "INSERT", map[string]any{"id": 1, "price": 9.99})

	got := drain(products)
	require.Len(t, got, 1)
	require.Equal(t, Message{
		Type: TypeChange, Event: "INSERT", Table: "products",
		Data: map[string]any{"id": float64(1), "price": 9.99}, TS: 1700000000000,
	}, got[0])
	require.Empty(t, drain(orders))
	require.Empty(t, drain(otherProject))
}

func TestHub_SubscribeIdempotentAndUnsubscribe(t *testing.T) {
	t.Parallel()
	h := NewHub(8, zaptest.NewLogger(t))
	c := h.Register("p1")
	h.Subscribe(c, "products")
	h.Subscribe(c, "products")
	require.Equal(t, Stats{Connections: 1, Tables: map[string]int{"products": 1}}, h.Stats("p1"))

	h.Broadcast("p1", "products", "INSERT", nil)
	require.Len(t, drain(c), 1, "resubscribing must not duplicate delivery")

	h.Unsubscribe(c, "products")
	h.Broadcast("p1", "products", "INSERT", nil)
	require.Empty(t, drain(c))
	require.Equal(t, Stats{Connections: 1, Tables: map[string]int{}}, h.Stats("p1"))
}

func TestHub_SlowConsumerDoesNotBlock(t *testing.T) {
	t.Parallel()
	h := NewHub(2, zaptest.NewLogger(t))
	c := h.Register("p1")
	h.Subscribe(c, "t")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Broadcast("p1", "t", "INSERT", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Broadcast blocked on a full queue")
	}
	require.Len(t, drain(c), 2)
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	t.Parallel()
	h := NewHub(4, zaptest.NewLogger(t))
	a := h.Register("p1")
	b := h.Register("p1")

	h.Unregister(a)
	h.Unregister(a)
	_, ok := <-a.Send()
	require.False(t, ok, "queue must be closed")
	require.Equal(t, 1, h.Stats("p1").Connections)

	h.Shutdown()
	_, ok = <-b.Send()
	require.False(t, ok)
	require.Zero(t, h.Stats("p1").Connections)
	require.Nil(t, h.Register("p1"))

	// broadcasting after shutdown is a no-op
	h.Broadcast("p1", "t", "INSERT", nil)
}

func TestHub_ConcurrentUse(t *testing.T) {
	t.Parallel()
	h := NewHub(16, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := h.Register("p1")
			h.Subscribe(c, "t")
			h.Broadcast("p1", "t", "INSERT", nil)
			_ = h.Stats("p1")
			h.Unsubscribe(c, "t")
			h.Unregister(c)
		}()
	}
	wg.Wait()
	require.Zero(t, h.Stats("p1").Connections)
}
