package events

import (
	"log/slog"
	"sync"

	"deskauth/pkg/logging"
)

// Notifier receives session events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

// Notify calls f(e).
func (f NotifierFunc) Notify(e Event) {
	f(e)
}

// Discard drops every event.
var Discard Notifier = NotifierFunc(func(Event) {})

// DefaultChannelBuffer is the buffer size used when NewChannelNotifier is given 0.
const DefaultChannelBuffer = 64

// ChannelNotifier delivers events on a buffered channel. When the buffer is
// full the event is dropped and logged.
type ChannelNotifier struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewChannelNotifier creates a channel notifier with the given buffer size.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	return &ChannelNotifier{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the channel.
func (n *ChannelNotifier) Events() <-chan Event {
	return n.ch
}

// Notify implements Notifier.
func (n *ChannelNotifier) Notify(e Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.ch <- e:
	default:
		logging.Warn("Events", "Dropping %s event, subscriber is not keeping up", e.Type)
	}
}

// Close closes the channel. Later events are ignored.
func (n *ChannelNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}

// LogNotifier writes every event to the structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(e Event) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"type", string(e.Type), "state", e.Status.State.String()}
	if e.FlowID != "" {
		attrs = append(attrs, "flow_id", e.FlowID)
	}

	if e.Severity == SeverityWarning {
		logger.Warn(e.Message, attrs...)
		return
	}
	logger.Info(e.Message, attrs...)
}

// Multi fans an event out to several notifiers in order.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(e Event) {
		for _, n := range notifiers {
			if n != nil {
				n.Notify(e)
			}
		}
	})
}
