// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

// Package publish streams committed blocks to Kafka so downstream systems
// (dashboards, other response agencies) can follow the ledger.
package publish

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	clog "github.com/charmbracelet/log"
	"github.com/segmentio/kafka-go"

	"github.com/paxdriver/KriSYS/internal/logging"
	"github.com/paxdriver/KriSYS/internal/model"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "krisys.blocks"

const queueSize = 256

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a Kafka writer for topic on brokers.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// BlockPublisher queues committed blocks and writes them from its own
// goroutine, so a slow broker never holds up mining.
type BlockPublisher struct {
	w       MessageWriter
	queue   chan model.Block
	timeout time.Duration
	log     *clog.Logger

	mu      sync.Mutex
	dropped int
}

// NewBlockPublisher returns a publisher writing through w.
func NewBlockPublisher(w MessageWriter, logger *clog.Logger) *BlockPublisher {
	return &BlockPublisher{
		w:       w,
		queue:   make(chan model.Block, queueSize),
		timeout: 10 * time.Second,
		log:     logging.Component(logger, "publish"),
	}
}

// BlockCommitted implements admission.Notifier. When the queue is full the
// block is dropped and counted.
func (p *BlockPublisher) BlockCommitted(b model.Block) {
	select {
	case p.queue <- b:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.log.Warn("publish queue full, block not published", "block", b.String())
	}
}

// Dropped returns how many blocks were not queued.
func (p *BlockPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Message builds the Kafka message for b, keyed by block index.
func Message(b model.Block) (kafka.Message, error) {
	value, err := json.Marshal(b)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(b.Index, 10)),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "hash", Value: []byte(b.Hash)},
		},
	}, nil
}

// Run writes queued blocks until ctx is done, then drains what is left and
// closes the writer.
func (p *BlockPublisher) Run(ctx context.Context) error {
	defer func() {
		if err := p.w.Close(); err != nil {
			p.log.Warn("closing kafka writer", "err", err)
		}
	}()
	for {
		select {
		case b := <-p.queue:
			p.write(ctx, b)
		case <-ctx.Done():
			for {
				select {
				case b := <-p.queue:
					p.write(context.WithoutCancel(ctx), b)
				default:
					return nil
				}
			}
		}
	}
}

func (p *BlockPublisher) write(ctx context.Context, b model.Block) {
	msg, err := Message(b)
	if err != nil {
		p.log.Error("encode block", "block", b.String(), "err", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(wctx, msg); err != nil {
		p.log.Error("publish block", "block", b.String(), "err", err)
		return
	}
	p.log.Debug("published block", "block", b.String())
}
