package server

import (
	"context"
	"sync"
	"time"
)

const (
	// RealtimeEventPoke tells a connected client to pull. Pokes carry no
	// payload; the pull protocol is the only source of state.
	RealtimeEventPoke      = "poke"
	realtimeEventHeartbeat = "heartbeat"
)

// RealtimeMessage is one event on a subscriber stream.
type RealtimeMessage struct {
	Channel   string
	EventType string
	Timestamp time.Time
}

// RealtimeDispatcher fans pokes out to SSE subscribers keyed by channel
// (tenant/<id>, user/<id>). Delivery is best effort: a subscriber whose
// buffer is full misses the poke and catches up on its next pull.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers one stream across every named channel. Delivery stops
// when the cleanup func runs or the context ends.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, channels []string) (<-chan RealtimeMessage, func()) {
	if len(channels) == 0 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	for _, channel := range channels {
		d.registerSubscriber(channel, subscriber)
	}
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			for _, channel := range channels {
				d.unregisterSubscriber(channel, subscriber.id)
			}
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber of its channel without
// blocking on slow consumers.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.Channel == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.Channel]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// Poke publishes a payload-less poke to each channel. Satisfies the sync
// engine's notifier dependency.
func (d *RealtimeDispatcher) Poke(channels []string) {
	now := d.clock().UTC()
	for _, channel := range channels {
		d.Publish(RealtimeMessage{
			Channel:   channel,
			EventType: RealtimeEventPoke,
			Timestamp: now,
		})
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(channel string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[channel]; !ok {
		d.subscribers[channel] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[channel][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(channel string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[channel]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, channel)
		}
	}
	d.mu.Unlock()
}
