package progress

import (
	"context"
	"sync"
	"time"
)

// Event is one frame of the analysis progress protocol. Percent runs 0-100,
// with -1 reserved for the terminal error sentinel. Answer rides only on the
// 100% terminal event.
type Event struct {
	Percent int    `json:"p"`
	Message string `json:"m"`
	Answer  string `json:"answer,omitempty"`
	Error   bool   `json:"error,omitempty"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Error || e.Percent == 100
}

// Stream carries ordered progress events from the pipeline goroutine to the
// response writer. Percent values are clamped monotonic non-decreasing, and
// exactly one terminal event (Done or Fail) closes the channel; anything
// published after that is discarded.
type Stream struct {
	ch chan Event

	mu     sync.Mutex
	last   int
	closed bool
}

// NewStream creates a stream. The buffer absorbs heartbeats while the writer
// is flushing; intermediate events are advisory and dropped rather than
// blocking the pipeline when the buffer is full.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Events is the consumer side. It is closed after the terminal event.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Publish emits an advisory progress event. A percent lower than one already
// emitted is raised to the current high-water mark.
func (s *Stream) Publish(percent int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if percent < s.last {
		percent = s.last
	}
	if percent > 99 {
		percent = 99 // 100 is reserved for the terminal event
	}
	s.last = percent

	select {
	case s.ch <- Event{Percent: percent, Message: message}:
	default:
		// Advisory event, slow consumer: drop rather than stall the pipeline.
	}
}

// Done emits the single 100% terminal event carrying the answer and closes
// the stream.
func (s *Stream) Done(message, answer string) {
	s.terminal(Event{Percent: 100, Message: message, Answer: answer})
}

// Fail emits the single -1 terminal error event and closes the stream.
func (s *Stream) Fail(message string) {
	s.terminal(Event{Percent: -1, Message: message, Error: true})
}

func (s *Stream) terminal(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ch <- ev
	close(s.ch)
}

// HeartbeatEvery re-publishes the current percent at the given interval
// until the returned stop function is called or ctx ends. It keeps SSE
// connections alive through a long generation call without breaking
// monotonicity.
func (s *Stream) HeartbeatEvery(ctx context.Context, interval time.Duration, message string) (stop func()) {
	hbCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				last, closed := s.last, s.closed
				s.mu.Unlock()
				if closed {
					return
				}
				s.Publish(last, message)
			}
		}
	}()
	return cancel
}
