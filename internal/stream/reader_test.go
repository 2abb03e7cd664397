package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink 记录收到的价格
type fakeSink struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newFakeSink() *fakeSink {
	return &fakeSink{prices: make(map[string]float64)}
}

func (s *fakeSink) SetRealtimePrice(token string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[token] = price
}

func (s *fakeSink) Get(token string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[token]
	return p, ok
}

func TestReader_EnqueueDropsOldestWhenFull(t *testing.T) {
	r := NewReader("ws://unused", nil, 2, newFakeSink())

	r.enqueue(Tick{TokenAddress: "a", Price: 1})
	r.enqueue(Tick{TokenAddress: "b", Price: 2})
	r.enqueue(Tick{TokenAddress: "c", Price: 3})

	// 最旧的 a 被淘汰
	first := <-r.queue
	second := <-r.queue
	assert.Equal(t, "b", first.TokenAddress)
	assert.Equal(t, "c", second.TokenAddress)
}

func TestReader_WorkerDeliversToSink(t *testing.T) {
	sink := newFakeSink()
	r := NewReader("ws://unused", nil, 16, sink)

	r.wg.Add(1)
	go r.worker()
	defer r.Stop()

	r.enqueue(Tick{TokenAddress: "0xtoken", Price: 3.14})

	require.Eventually(t, func() bool {
		p, ok := sink.Get("0xtoken")
		return ok && p == 3.14
	}, time.Second, 5*time.Millisecond)
}

func TestReader_StopIdempotent(t *testing.T) {
	r := NewReader("ws://unused", nil, 2, newFakeSink())

	r.Stop()
	assert.NotPanics(t, func() { r.Stop() })
}

func TestClient_HandleMessage(t *testing.T) {
	c := NewClient("ws://unused")

	var got []Tick
	c.SetTickHandler(func(tk Tick) {
		got = append(got, tk)
	})

	c.handleMessage([]byte(`{"type":"tick","address":"0xabc","price":1.23}`))
	c.handleMessage([]byte(`{"type":"pong"}`))
	c.handleMessage([]byte(`{"type":"tick","address":"","price":1.0}`))
	c.handleMessage([]byte(`{"type":"tick","address":"0xdef","price":-2}`))

	require.Len(t, got, 1)
	assert.Equal(t, "0xabc", got[0].TokenAddress)
	assert.Equal(t, 1.23, got[0].Price)
}
