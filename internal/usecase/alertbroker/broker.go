// Package alertbroker fans alert events out to subscribers. Delivery is at
// least once: event IDs are idempotent, a bounded retention buffer is
// replayed to late joiners, and a slow subscriber loses events rather than
// blocking the broker.
package alertbroker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ishan121028/RadiologyAI/internal/domain/alert"
	"github.com/ishan121028/RadiologyAI/internal/domain/triage"
	"github.com/ishan121028/RadiologyAI/internal/metrics"
)

const (
	// DefaultQueueSize bounds each subscriber channel.
	DefaultQueueSize = 64
	// DefaultRetention bounds the replay buffer.
	DefaultRetention = 100
)

// Subscription is one registered alert consumer.
type Subscription struct {
	ID     string
	Events <-chan alert.Event
}

// retained couples a buffered event with its delivery state.
type retained struct {
	event alert.Event
	state alert.State
}

// Broker filters classified records against the severity threshold and
// fans matching alerts out to all subscribers.
type Broker struct {
	threshold triage.Severity
	queueSize int
	logger    *zap.Logger

	mu          sync.Mutex
	subscribers map[string]chan alert.Event
	ring        []retained
	ringCap     int
	emitted     map[triage.Severity]int
}

// Config holds broker settings.
type Config struct {
	Threshold triage.Severity
	QueueSize int
	Retention int
}

// New creates a broker.
func New(cfg Config, logger *zap.Logger) *Broker {
	threshold := cfg.Threshold
	if !threshold.Valid() {
		threshold = triage.SeverityOrange
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Broker{
		threshold:   threshold,
		queueSize:   queueSize,
		logger:      logger,
		subscribers: make(map[string]chan alert.Event),
		ringCap:     retention,
		emitted:     make(map[triage.Severity]int),
	}
}

// Threshold returns the configured minimum severity.
func (b *Broker) Threshold() triage.Severity {
	return b.threshold
}

// Publish offers the event to every subscriber when its severity meets the
// threshold. Returns true when the event was published (delivered or
// queued), false when filtered out.
func (b *Broker) Publish(ev alert.Event) bool {
	if !ev.Severity.AtLeast(b.threshold) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state := alert.StateQueued
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
			state = alert.StateDelivered
		default:
			metrics.AlertsDroppedTotal.Inc()
			b.logger.Warn("Subscriber queue full, alert dropped",
				zap.String("subscriber", id),
				zap.String("alert", ev.ID))
		}
	}

	b.retain(ev, state)
	b.emitted[ev.Severity]++
	metrics.AlertsEmittedTotal.WithLabelValues(string(ev.Severity)).Inc()
	return true
}

// retain appends to the ring, evicting the oldest entry when full.
func (b *Broker) retain(ev alert.Event, state alert.State) {
	if len(b.ring) == b.ringCap {
		copy(b.ring, b.ring[1:])
		b.ring = b.ring[:len(b.ring)-1]
	}
	b.ring = append(b.ring, retained{event: ev, state: state})
}

// Subscribe registers a consumer and replays events that were queued while
// no subscriber was connected. Replayed events keep their original IDs, so
// consumers that saw them before simply deduplicate.
func (b *Broker) Subscribe() Subscription {
	ch := make(chan alert.Event, b.queueSize)

	b.mu.Lock()
	id := uuid.NewString()
	b.subscribers[id] = ch
	for i := range b.ring {
		if b.ring[i].state != alert.StateQueued {
			continue
		}
		select {
		case ch <- b.ring[i].event:
			b.ring[i].state = alert.StateDelivered
		default:
		}
	}
	n := len(b.subscribers)
	b.mu.Unlock()

	metrics.AlertSubscribers.Set(float64(n))
	return Subscription{ID: id, Events: ch}
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	n := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		close(ch)
	}
	metrics.AlertSubscribers.Set(float64(n))
}

// Filter narrows a List call.
type Filter struct {
	Severity triage.Severity // zero value: all severities
	Since    time.Time       // zero value: no lower bound
}

// List returns retained events matching the filter, oldest first.
func (b *Broker) List(f Filter) []alert.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]alert.Event, 0, len(b.ring))
	for _, r := range b.ring {
		if f.Severity != "" && r.event.Severity != f.Severity {
			continue
		}
		if !f.Since.IsZero() && r.event.EmittedAt.Before(f.Since) {
			continue
		}
		out = append(out, r.event)
	}
	return out
}

// Counts returns the number of published events per severity since start.
func (b *Broker) Counts() map[triage.Severity]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[triage.Severity]int, len(b.emitted))
	for sev, n := range b.emitted {
		out[sev] = n
	}
	return out
}
