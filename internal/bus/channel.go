// Package bus provides event bus implementations for Kestrel.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ChannelBus implements EventBus using Go channels.
// Used as the Community tier event bus. Each plain subscription drains
// its own channel from a single goroutine, so delivery order per
// subscription matches publish order. Queue-group members share one
// channel per group, so each message reaches exactly one member.
type ChannelBus struct {
	mu            sync.RWMutex
	bufferSize    int
	subscriptions map[string][]*channelSubscription
	queueGroups   map[string]map[string]*queueGroup
	closed        bool
}

type channelSubscription struct {
	id      string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// queueGroup is the shared delivery channel for one (topic, group)
// pair. The group ctx outlives individual members; it is cancelled
// when the last member unsubscribes so publishers never block on an
// abandoned group.
type queueGroup struct {
	topic   string
	name    string
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
	members int
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*channelSubscription),
		queueGroups:   make(map[string]map[string]*queueGroup),
	}
}

// Publish sends a message to a topic: once to every plain subscriber
// and once to every queue group. Blocks while a buffer is full rather
// than dropping, so per-key ordering survives backpressure.
func (b *ChannelBus) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Key:       key,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}

	subs := b.subscriptions[topic]
	var groups []*queueGroup
	for _, g := range b.queueGroups[topic] {
		groups = append(groups, g)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.msgCh <- msg:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, g := range groups {
		select {
		case g.msgCh <- msg:
		case <-g.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Subscribe registers a handler for a topic. Every plain subscriber
// receives every message.
func (b *ChannelBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)

	sub := &channelSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
	}

	// Start message handler goroutine
	go b.handleMessages(sub)

	b.subscriptions[topic] = append(b.subscriptions[topic], sub)

	return sub, nil
}

// QueueSubscribe registers a handler as a member of a consumer group.
// All members of a group drain one shared channel, so each message is
// handled by exactly one of them.
func (b *ChannelBus) QueueSubscribe(ctx context.Context, topic string, group string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if group == "" {
		return nil, fmt.Errorf("queue group name is required")
	}

	groups, ok := b.queueGroups[topic]
	if !ok {
		groups = make(map[string]*queueGroup)
		b.queueGroups[topic] = groups
	}

	g, ok := groups[group]
	if !ok {
		gctx, gcancel := context.WithCancel(context.Background())
		g = &queueGroup{
			topic:  topic,
			name:   group,
			msgCh:  make(chan *domain.Message, b.bufferSize),
			ctx:    gctx,
			cancel: gcancel,
		}
		groups[group] = g
	}
	g.members++

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		msgCh:   g.msgCh,
		ctx:     subCtx,
		cancel: func() {
			cancel()
			b.leaveGroup(g)
		},
	}

	go b.handleMessages(sub)

	return sub, nil
}

// leaveGroup drops one member; the last one out cancels the group so
// publishers stop feeding its channel.
func (b *ChannelBus) leaveGroup(g *queueGroup) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g.members--
	if g.members > 0 {
		return
	}

	g.cancel()
	if groups, ok := b.queueGroups[g.topic]; ok {
		delete(groups, g.name)
		if len(groups) == 0 {
			delete(b.queueGroups, g.topic)
		}
	}
}

// handleMessages processes messages for a subscription.
func (b *ChannelBus) handleMessages(sub *channelSubscription) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case msg, ok := <-sub.msgCh:
			if !ok {
				return
			}
			if msg != nil {
				_ = sub.handler(sub.ctx, msg)
			}
		}
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close closes the event bus.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	// Cancel all subscriptions
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.cancel()
			close(sub.msgCh)
		}
	}

	// Cancel all queue groups
	for _, groups := range b.queueGroups {
		for _, g := range groups {
			g.cancel()
			close(g.msgCh)
		}
	}

	b.subscriptions = make(map[string][]*channelSubscription)
	b.queueGroups = make(map[string]map[string]*queueGroup)
	return nil
}

// Unsubscribe stops receiving messages.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
