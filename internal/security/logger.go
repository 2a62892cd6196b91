// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultQueueSize bounds the async event queue. Overflow drops the
// event and increments a counter rather than blocking the login path.
const defaultQueueSize = 1000

// persistTimeout bounds each background write so a stalled database
// cannot wedge the drain worker.
const persistTimeout = 5 * time.Second

var (
	eventsDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilchat_security_events_dropped_total",
		Help: "Total number of security events dropped due to a full queue",
	})

	eventWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veilchat_security_event_write_failures_total",
		Help: "Total number of failed security event writes",
	})

	eventsLoggedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veilchat_security_events_total",
		Help: "Total number of security events by type",
	}, []string{"event_type"})
)

// EventLogger is a best-effort, fire-and-forget security event sink.
// Log never blocks and never returns an error: events go onto a bounded
// queue drained by a background worker, and a full queue drops the event.
// A leveled slog diagnostic is emitted synchronously for visibility.
type EventLogger struct {
	repo   EventRepository
	logger *slog.Logger

	queue    chan Event
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewEventLogger creates and starts an EventLogger. queueSize <= 0 uses
// the default. Close must be called to drain and stop the worker.
func NewEventLogger(repo EventRepository, logger *slog.Logger, queueSize int) *EventLogger {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	l := &EventLogger{
		repo:   repo,
		logger: logger.With("component", "security_events"),
		queue:  make(chan Event, queueSize),
		stop:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.drain()

	return l
}

// Log records a security event. The event is queued for persistence and
// mirrored to slog at a level proportional to its risk. Persistence
// failure or queue overflow never surfaces to the caller.
func (l *EventLogger) Log(userID *ulid.ULID, eventType, ipAddress, userAgent string, details map[string]any) {
	event := NewEvent(userID, eventType, ipAddress, userAgent, details)

	l.emit(event)
	eventsLoggedCounter.WithLabelValues(event.EventType).Inc()

	select {
	case l.queue <- event:
	default:
		eventsDroppedCounter.Inc()
		l.logger.Warn("security event queue full, dropping event",
			"event_type", event.EventType,
			"risk_level", event.RiskLevel,
		)
	}
}

// emit writes the leveled operational diagnostic for an event.
func (l *EventLogger) emit(event Event) {
	attrs := []any{
		"event_type", event.EventType,
		"risk_level", event.RiskLevel,
	}
	if event.UserID != nil {
		attrs = append(attrs, "user_id", event.UserID.String())
	}
	if event.IPAddress != "" {
		attrs = append(attrs, "ip_address", event.IPAddress)
	}

	switch {
	case event.RiskLevel <= 3:
		l.logger.Info("security event", attrs...)
	case event.RiskLevel <= 6:
		l.logger.Warn("security event", attrs...)
	default:
		l.logger.Error("security event", attrs...)
	}
}

// drain persists queued events until Close is called, then flushes
// whatever is left in the queue.
func (l *EventLogger) drain() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.queue:
			l.persist(event)
		case <-l.stop:
			for {
				select {
				case event := <-l.queue:
					l.persist(event)
				default:
					return
				}
			}
		}
	}
}

// persist writes one event, swallowing failures.
func (l *EventLogger) persist(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := l.repo.Append(ctx, event); err != nil {
		eventWriteFailures.Inc()
		l.logger.Error("failed to persist security event",
			"event_type", event.EventType,
			"error", err,
		)
	}
}

// Close stops the drain worker after flushing queued events.
func (l *EventLogger) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	l.wg.Wait()
}
