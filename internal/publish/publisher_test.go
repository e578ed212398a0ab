package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/paxdriver/KriSYS/internal/model"
)

type memWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (w *memWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestMessageKeyedByIndex(t *testing.T) {
	msg, err := Message(model.Block{Index: 12, Hash: "abc"})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if string(msg.Key) != "12" || string(msg.Headers[0].Value) != "abc" {
		t.Fatalf("message = %+v", msg)
	}
	var b model.Block
	if err := json.Unmarshal(msg.Value, &b); err != nil || b.Index != 12 {
		t.Fatalf("value = %s", msg.Value)
	}
}

func TestPublisherDrainsOnShutdown(t *testing.T) {
	w := &memWriter{}
	p := NewBlockPublisher(w, nil)
	for i := 0; i < 3; i++ {
		p.BlockCommitted(model.Block{Index: int64(i)})
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for w.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.count() != 3 || !w.closed {
		t.Fatalf("published %d, closed %v", w.count(), w.closed)
	}
}

func TestPublisherQueueFull(t *testing.T) {
	p := NewBlockPublisher(&memWriter{}, nil)
	for i := 0; i < queueSize+2; i++ {
		p.BlockCommitted(model.Block{Index: int64(i)})
	}
	if p.Dropped() != 2 {
		t.Fatalf("dropped = %d", p.Dropped())
	}
}

func TestPublisherSurvivesWriteErrors(t *testing.T) {
	w := &memWriter{fail: true}
	p := NewBlockPublisher(w, nil)
	p.BlockCommitted(model.Block{Index: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !w.closed {
		t.Fatalf("writer not closed")
	}
}

func TestNewWriterDefaults(t *testing.T) {
	w := NewWriter([]string{"localhost:9092"}, "")
	if w.Topic != DefaultTopic {
		t.Fatalf("topic = %q", w.Topic)
	}
}
