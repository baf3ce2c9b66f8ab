// Package events provides EventSink implementations: an in-memory sink for
// tests, a log-backed sink for environments without a broker, and (in the
// kafka subpackage) a Kafka-backed sink.
package events

import (
	"context"
	"sync"

	"buildcore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.EventSink = (*MemorySink)(nil)
	_ domain.EventSink = (*LogSink)(nil)
)

// Published is a record captured by the in-memory sink.
type Published struct {
	Topic   string
	Payload any
}

// MemorySink records published events in memory. Used by tests and ephemeral
// deployments.
type MemorySink struct {
	mu       sync.Mutex
	records  []Published
	failWith error
}

// NewMemorySink constructs an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes every subsequent Publish return err. Pass nil to recover.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Publish records the event.
func (s *MemorySink) Publish(_ context.Context, topic string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.records = append(s.records, Published{Topic: topic, Payload: payload})
	return nil
}

// Records returns a copy of everything published so far.
func (s *MemorySink) Records() []Published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Published(nil), s.records...)
}
