package notify

import (
	"sync/atomic"
	"time"

	"streamcheck/work/logger"
	"streamcheck/work/metrics"
	"streamcheck/work/utils"
)

// EventType enumerates the notifications this service emits. The set is closed:
// subscribers switch on the type instead of matching event name strings.
type EventType string

const (
	FallbackSuccess   EventType = "fallbackSuccess"
	FallbackFailure   EventType = "fallbackFailure"
	StreamAlert       EventType = "streamAlert"
	MonitoringStarted EventType = "monitoringStarted"
	MonitoringStopped EventType = "monitoringStopped"
)

// Event is a single notification delivered to subscribers.
type Event struct {
	Type        EventType
	StreamURL   string
	ChannelID   string
	SessionID   string
	Attempt     int
	SuccessRate float64
	Message     string
	At          time.Time
}

// Subscriber receives events from a Notifier. Implementations must not block;
// dispatch happens on a single delivery goroutine.
type Subscriber interface {
	Notify(Event)
}

// Notifier fans events out to a statically known set of subscribers through a
// bounded queue. Publish never blocks the caller: when the queue is full the
// event is counted as dropped and discarded, since validation work must not
// stall on a slow alerting sink.
type Notifier struct {
	subscribers []Subscriber
	queue       chan Event
	running     atomic.Bool
	stopChan    chan struct{}
	done        chan struct{}
}

// NewNotifier creates a Notifier with the given subscribers and queue depth.
func NewNotifier(queueSize int, subscribers ...Subscriber) *Notifier {
	if queueSize < 1 {
		queueSize = 256
	}
	return &Notifier{
		subscribers: subscribers,
		queue:       make(chan Event, queueSize),
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the delivery goroutine. Idempotent.
func (n *Notifier) Start() {
	if !n.running.CompareAndSwap(false, true) {
		return
	}
	go n.dispatch()
}

// Stop terminates delivery after draining queued events. Idempotent.
func (n *Notifier) Stop() {
	if !n.running.CompareAndSwap(true, false) {
		return
	}
	close(n.stopChan)
	<-n.done
}

// Publish enqueues an event for delivery, stamping it if the caller did not.
func (n *Notifier) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if !n.running.Load() {
		return
	}
	select {
	case n.queue <- ev:
	default:
		metrics.DroppedEvents.Inc()
	}
}

func (n *Notifier) dispatch() {
	defer close(n.done)
	for {
		select {
		case ev := <-n.queue:
			n.deliver(ev)
		case <-n.stopChan:
			// drain whatever is already queued before exiting
			for {
				select {
				case ev := <-n.queue:
					n.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(ev Event) {
	for _, sub := range n.subscribers {
		sub.Notify(ev)
	}
}

// LogSubscriber writes events to the application log.
type LogSubscriber struct {
	ObfuscateUrls bool
}

func (s *LogSubscriber) Notify(ev Event) {
	u := utils.LogURL(s.ObfuscateUrls, ev.StreamURL)
	switch ev.Type {
	case StreamAlert:
		logger.Warn("[NOTIFY] %s url=%s session=%s: %s", ev.Type, u, ev.SessionID, ev.Message)
	case FallbackFailure:
		logger.Warn("[NOTIFY] %s url=%s channel=%s rate=%.2f: %s", ev.Type, u, ev.ChannelID, ev.SuccessRate, ev.Message)
	default:
		logger.Info("[NOTIFY] %s url=%s channel=%s session=%s rate=%.2f", ev.Type, u, ev.ChannelID, ev.SessionID, ev.SuccessRate)
	}
}

// MetricsSubscriber mirrors events into prometheus counters.
type MetricsSubscriber struct{}

func (s *MetricsSubscriber) Notify(ev Event) {
	switch ev.Type {
	case FallbackSuccess:
		metrics.FallbacksTotal.WithLabelValues("success").Inc()
	case FallbackFailure:
		metrics.FallbacksTotal.WithLabelValues("failure").Inc()
	case StreamAlert:
		metrics.MonitorAlerts.Inc()
	}
}
