// Package sse provides Server-Sent Events streams and a topic broker that
// fans published events out to the streams subscribed to a topic.
//
//	events, cancel := sse.Default.Subscribe("order:" + id)
//	defer cancel()
//	stream := sse.New(w, r)
//	stream.Pipe(events, 15*time.Second)
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Stream represents an active SSE connection to one client.
type Stream struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
}

// New creates an SSE stream and sets the required headers.
// Returns nil if the ResponseWriter does not support flushing.
func New(w http.ResponseWriter, r *http.Request) *Stream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, r: r, flusher: flusher}
}

// Send writes a named event with a JSON-encoded data payload.
func (s *Stream) Send(event string, data any) error {
	if s.IsClosed() {
		return http.ErrHandlerTimeout
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Comment writes an SSE comment, used as a keepalive heartbeat.
func (s *Stream) Comment(msg string) error {
	if s.IsClosed() {
		return http.ErrHandlerTimeout
	}
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", msg); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// IsClosed reports whether the client has disconnected.
func (s *Stream) IsClosed() bool {
	if s == nil {
		return true
	}
	return s.r.Context().Err() != nil
}

// Pipe forwards events until the client disconnects or events is closed,
// sending a heartbeat comment every keepalive.
func (s *Stream) Pipe(events <-chan Event, keepalive time.Duration) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-s.r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.Send(ev.Name, ev.Data); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.Comment("keepalive"); err != nil {
				return
			}
		}
	}
}

// Event is a published message.
type Event struct {
	Name string
	Data any
}

// Broker fans events out by topic. Slow subscribers drop events rather
// than block publishers.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// Default is the process-wide broker.
var Default = NewBroker()

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

// Subscribe returns a channel of events for topic and a cancel func that
// must be called to release it.
func (b *Broker) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers an event to every current subscriber of topic and
// returns how many received it.
func (b *Broker) Publish(topic, name string, data any) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for ch := range b.subs[topic] {
		select {
		case ch <- Event{Name: name, Data: data}:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers reports the number of subscribers on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
