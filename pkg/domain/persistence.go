package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Phases and work items are owned by
// their subject and travel with it; they have no standalone mutators.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	CreateUnit(Unit) (Unit, error)
	UpdateUnit(id string, mutator func(*Unit) error) (Unit, error)
	CreateContractor(Contractor) (Contractor, error)
	UpdateContractor(id string, mutator func(*Contractor) error) (Contractor, error)
	DeleteContractor(id string) error
	FindProject(id string) (Project, bool)
	FindUnit(id string) (Unit, bool)
	AppendOutbox(OutboxEntry)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListProjects() []Project
	ListUnits() []Unit
	ListContractors() []Contractor
	FindProject(id string) (Project, bool)
	FindUnit(id string) (Unit, bool)
	FindContractor(id string) (Contractor, bool)
}

// RuleView provides read-only access to domain entities for rule evaluation.
// It is satisfied by TransactionView.
type RuleView interface {
	ListProjects() []Project
	ListUnits() []Unit
	FindProject(id string) (Project, bool)
	FindUnit(id string) (Unit, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers. The state
// commit in RunInTransaction must happen before any event publication; the
// outbox methods support post-commit dispatch.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetProject(id string) (Project, bool)
	ListProjects() []Project
	GetUnit(id string) (Unit, bool)
	ListUnits() []Unit
	GetContractor(id string) (Contractor, bool)
	ListContractors() []Contractor
	PendingOutbox() []OutboxEntry
	MarkOutboxPublished(ids []string, at time.Time)
}
