package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Event topics consumed by downstream notification and reporting services.
const (
	TopicProjectMilestones   = "project.milestones"
	TopicUnitMilestones      = "unit.milestones"
	TopicPhaseTransitions    = "project.phase-transitions"
	TopicWorkItemTransitions = "unit.workitem-transitions"
)

// MilestoneEvent records the first crossing of a progress threshold by a
// rollup subject. Emitted at most once per threshold per subject; the
// subject's HighestEmittedMilestone watermark is the durable guard.
type MilestoneEvent struct {
	ID             string     `json:"id"`
	SubjectType    EntityType `json:"subject_type"`
	SubjectID      string     `json:"subject_id"`
	Threshold      int        `json:"threshold"`
	ActualProgress float64    `json:"actual_progress"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// ItemTransition names the single-fire item transitions that emit events.
type ItemTransition string

// Item transitions that produce events, keyed by (item id, transition type).
// The item's own status is the idempotence guard: the state machine forbids
// entering a terminal status twice.
const (
	ItemTransitionCompleted ItemTransition = "completed"
	ItemTransitionCancelled ItemTransition = "cancelled"
)

// ItemEvent records a phase or work item entering a terminal status.
type ItemEvent struct {
	ID         string         `json:"id"`
	ItemType   EntityType     `json:"item_type"`
	ItemID     string         `json:"item_id"`
	SubjectID  string         `json:"subject_id"`
	Transition ItemTransition `json:"transition"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// OutboxEntry is an event queued for publication within the same transaction
// as the state change that produced it (transactional outbox). PublishedAt is
// nil until the dispatcher has handed the entry to the sink.
type OutboxEntry struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload"`
	QueuedAt    time.Time       `json:"queued_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// EventSink publishes events to downstream consumers. Implementations are
// at-least-once and must not block beyond the caller's context; a publish
// failure is reported to the caller for logging but never affects the state
// commit that queued the event.
type EventSink interface {
	Publish(ctx context.Context, topic string, payload any) error
}
