// Package bus is the in-process message layer between tasks. Queues are
// bounded and allocated at subscribe time; nothing grows after startup.
//
// Every subscription carries an explicit overflow policy, fixed for its
// lifetime:
//
//   - DropOldest: a full queue evicts its oldest message. Loss is an
//     accepted, observable latest-wins semantic (readings, status).
//   - Block: the publisher waits for space up to a bounded timeout and gets
//     an error back on expiry. There are no unbounded waits anywhere.
//
// Messages published to a topic are delivered in publish order to each
// subscription (FIFO per queue). Retained messages replay the latest value
// to late subscribers.
package bus

import (
	"sync"
	"time"

	"fridgecode-go/errcode"
)

// Topic is a fixed path of string tokens, e.g. {"thermo","reading"}.
type Topic []string

// T builds a topic.
func T(parts ...string) Topic { return Topic(parts) }

// Equal reports exact token equality.
func (t Topic) Equal(o Topic) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

// Message is one payload in flight. Retained messages are stored on their
// topic node and replayed to future subscribers.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// Policy selects what happens when a subscription queue is full.
type Policy uint8

const (
	DropOldest Policy = iota
	Block
)

// Subscription is one bounded queue bound to a topic.
type Subscription struct {
	topic   Topic
	ch      chan *Message
	policy  Policy
	timeout time.Duration // Block policy only
	conn    *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

// Bus routes messages between connections.
type Bus struct {
	mu   sync.Mutex
	root *node
	qLen int
}

// New creates a bus with the given default subscription queue length.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()

	n := b.root
	for _, tok := range topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)
	retained := n.retained
	b.mu.Unlock()

	// Replay the retained message, best-effort.
	if retained != nil {
		select {
		case sub.ch <- retained:
		default:
		}
	}
}

// publish stores retained state and snapshots the receiver list under the
// lock, then delivers outside it so a Block-policy wait never stalls the
// whole bus.
func (b *Bus) publish(msg *Message) []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			if !msg.Retained {
				return nil
			}
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			if !msg.Retained {
				return nil
			}
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}

	if msg.Retained {
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
	if len(n.subs) == 0 {
		return nil
	}
	out := make([]*Subscription, len(n.subs))
	copy(out, n.subs)
	return out
}

func deliver(sub *Subscription, msg *Message) error {
	switch sub.policy {
	case Block:
		select {
		case sub.ch <- msg:
			return nil
		default:
		}
		timer := time.NewTimer(sub.timeout)
		defer timer.Stop()
		select {
		case sub.ch <- msg:
			return nil
		case <-timer.C:
			return errcode.Timeout
		}
	default: // DropOldest
		for {
			select {
			case sub.ch <- msg:
				return nil
			default:
			}
			// Evict the oldest entry and retry.
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}

func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, tok := range topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[tok]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connection is one task's handle on the bus; it owns its subscriptions.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	id   string
}

// NewConnection creates a connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// NewMessage is a convenience constructor.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every subscriber of its topic. The error is the
// first Block-policy timeout encountered; DropOldest subscriptions never
// fail a publish.
func (c *Connection) Publish(msg *Message) error {
	var firstErr error
	for _, sub := range c.bus.publish(msg) {
		if err := deliver(sub, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers a DropOldest subscription with the bus default queue
// length.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	return c.subscribe(topic, c.bus.qLen, DropOldest, 0)
}

// SubscribeN registers a DropOldest subscription with an explicit capacity.
func (c *Connection) SubscribeN(topic Topic, capacity int) *Subscription {
	return c.subscribe(topic, capacity, DropOldest, 0)
}

// SubscribeBlocking registers a Block-policy subscription: publishers wait
// up to timeout for queue space and see errcode.Timeout on expiry.
func (c *Connection) SubscribeBlocking(topic Topic, capacity int, timeout time.Duration) *Subscription {
	if timeout <= 0 {
		timeout = 5 * time.Millisecond
	}
	return c.subscribe(topic, capacity, Block, timeout)
}

func (c *Connection) subscribe(topic Topic, capacity int, policy Policy, timeout time.Duration) *Subscription {
	if capacity <= 0 {
		capacity = c.bus.qLen
	}
	sub := &Subscription{
		topic:   topic,
		ch:      make(chan *Message, capacity),
		policy:  policy,
		timeout: timeout,
		conn:    c,
	}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}
