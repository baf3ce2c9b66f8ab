// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by buildcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a construction project record.
	EntityProject EntityType = "project"
	// EntityUnit identifies a sellable unit record.
	EntityUnit EntityType = "unit"
	// EntityPhase identifies a project phase record.
	EntityPhase EntityType = "phase"
	// EntityWorkItem identifies a unit work item record.
	EntityWorkItem EntityType = "work_item"
	// EntityContractor identifies a contractor record.
	EntityContractor EntityType = "contractor"
)

// ItemStatus enumerates the workflow states of a weighted item (phase or work item).
type ItemStatus string

// Canonical weighted item statuses. Progress regression never moves status
// backward automatically; status changes are explicit operations.
const (
	ItemStatusNotStarted ItemStatus = "not_started"
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusCancelled  ItemStatus = "cancelled"
)

// SubjectStatus enumerates the workflow states of a rollup subject (project or unit).
type SubjectStatus string

// Canonical subject statuses. ON_HOLD and CANCELLED are externally triggered
// side transitions available from any non-terminal state.
const (
	SubjectStatusPlanning   SubjectStatus = "planning"
	SubjectStatusInProgress SubjectStatus = "in_progress"
	SubjectStatusOnHold     SubjectStatus = "on_hold"
	SubjectStatusCompleted  SubjectStatus = "completed"
	SubjectStatusCancelled  SubjectStatus = "cancelled"
)

// Milestone thresholds whose first crossing triggers a one-time event.
// MilestoneNone is the watermark value before any threshold has been emitted.
const (
	MilestoneNone = 0
	MilestoneFull = 100
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemCore holds the weighted-item fields shared by Phase and WorkItem.
// Weight and Progress are percentages in [0,100].
type ItemCore struct {
	Base
	Name         string     `json:"name"`
	Weight       float64    `json:"weight"`
	Progress     float64    `json:"progress"`
	Status       ItemStatus `json:"status"`
	OrderIndex   int        `json:"order_index"`
	PlannedStart *time.Time `json:"planned_start,omitempty"`
	PlannedEnd   *time.Time `json:"planned_end,omitempty"`
	ActualStart  *time.Time `json:"actual_start,omitempty"`
	ActualEnd    *time.Time `json:"actual_end,omitempty"`
}

// SubjectCore holds the rollup fields shared by Project and Unit.
// OverallProgress, EstimatedEnd, and HighestEmittedMilestone are derived and
// never set directly by a client. HighestEmittedMilestone is the persisted
// watermark guaranteeing at-most-once milestone emission across restarts.
type SubjectCore struct {
	Name                    string        `json:"name"`
	OverallProgress         float64       `json:"overall_progress"`
	Status                  SubjectStatus `json:"status"`
	StartDate               *time.Time    `json:"start_date,omitempty"`
	PlannedEnd              *time.Time    `json:"planned_end,omitempty"`
	EstimatedEnd            *time.Time    `json:"estimated_end,omitempty"`
	ActualEnd               *time.Time    `json:"actual_end,omitempty"`
	HighestEmittedMilestone int           `json:"highest_emitted_milestone"`
	Version                 int64         `json:"version"`
}

// Phase is a weighted slice of a project's scope.
type Phase struct {
	ItemCore
	ProjectID string `json:"project_id"`
}

// WorkItem is a weighted slice of a unit's fit-out scope.
type WorkItem struct {
	ItemCore
	UnitID string `json:"unit_id"`
}

// Project is a construction project whose overall completion is derived from
// its weighted phases. The project exclusively owns its phases; phases never
// outlive or are shared across projects.
type Project struct {
	Base
	SubjectCore
	Phases []Phase `json:"phases"`
}

// Unit is a sellable unit within a project whose completion is derived from
// its weighted work items.
type Unit struct {
	Base
	SubjectCore
	ProjectID string     `json:"project_id"`
	Code      string     `json:"code"`
	WorkItems []WorkItem `json:"work_items"`
}

// Contractor is a trade contractor assigned to projects.
type Contractor struct {
	Base
	Name       string   `json:"name"`
	Trade      string   `json:"trade"`
	LicenseNo  string   `json:"license_no"`
	ProjectIDs []string `json:"project_ids"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations contained in the result.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
