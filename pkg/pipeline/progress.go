package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// Stage identifies which part of the pipeline emitted an event.
type Stage string

const (
	StageSession Stage = "session"
	StageMusic   Stage = "music"
	StageImage   Stage = "image"
	StageVideo   Stage = "video"
	StageRender  Stage = "render"
)

// Event is one progress update from a pipeline run.
type Event struct {
	Stage   Stage
	Message string
	Time    time.Time
}

// Notifier delivers progress events to an observer channel. Publishing
// never blocks: when the observer falls behind, events are dropped rather
// than stalling a generation.
type Notifier struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

func NewNotifier(buffer int) *Notifier {
	if buffer < 1 {
		buffer = 64
	}
	return &Notifier{ch: make(chan Event, buffer)}
}

// Events returns the channel the observer reads from.
func (n *Notifier) Events() <-chan Event {
	return n.ch
}

// Close signals that no more events will be published. Publishes racing
// with Close are dropped instead of panicking, so a background generation
// can outlive the observer.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}

// publish emits an event, dropping it if the buffer is full or the
// notifier is closed. A nil notifier discards everything.
func (n *Notifier) publish(stage Stage, format string, args ...interface{}) {
	if n == nil {
		return
	}
	e := Event{
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
		Time:    time.Now(),
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- e:
	default:
	}
}
