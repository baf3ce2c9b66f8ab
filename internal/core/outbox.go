package core

import (
	"context"
)

// dispatchEvents publishes pending outbox entries through the configured
// sink. Publication is best effort: a failing sink leaves the entry queued
// for the next attempt and never fails the operation that produced it.
func (s *Service) dispatchEvents(ctx context.Context) {
	if s.sink == nil {
		return
	}
	pending := s.store.PendingOutbox()
	if len(pending) == 0 {
		return
	}
	published := make([]string, 0, len(pending))
	for _, entry := range pending {
		if err := s.sink.Publish(ctx, entry.Topic, entry.Payload); err != nil {
			s.logger.Warn("event publish failed", "topic", entry.Topic, "event_id", entry.ID, "error", err)
			continue
		}
		published = append(published, entry.ID)
	}
	if len(published) > 0 {
		s.store.MarkOutboxPublished(published, s.clock.Now())
	}
}
