// Package audit keeps an append-only trail of order lifecycle changes.
// The MongoDB recorder batches writes off the request path; Memory backs
// tests and deployments without MONGO_URI.
package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Entry is one lifecycle change.
type Entry struct {
	Time      time.Time      `bson:"time" json:"time"`
	Action    string         `bson:"action" json:"action"`
	OrderID   string         `bson:"order_id" json:"order_id"`
	ActorID   string         `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	From      string         `bson:"from,omitempty" json:"from,omitempty"`
	To        string         `bson:"to,omitempty" json:"to,omitempty"`
	RequestID string         `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Data      map[string]any `bson:"data,omitempty" json:"data,omitempty"`
}

// Recorder stores and reads audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Trail(ctx context.Context, orderID string) ([]Entry, error)
	Close(ctx context.Context) error
}

// Memory is an in-process Recorder.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Trail(_ context.Context, orderID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *Memory) Close(context.Context) error { return nil }

// Len reports how many entries were recorded.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
