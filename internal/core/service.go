package core

import (
	"context"
	"time"

	"buildcore/internal/infra/persistence/memory"
	"buildcore/pkg/domain"
)

// Clock supplies transaction timestamps. Overridable for tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the function's time.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the minimal structured logging surface used by the service.
// The method set is slog-compatible.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes per-operation timing and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// AuditStatus marks the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// AuditEntry captures one service operation for the audit trail.
type AuditEntry struct {
	Operation string
	Entity    EntityType
	Action    Action
	EntityID  string
	Status    AuditStatus
	Duration  time.Duration
	Timestamp time.Time
	Error     string
}

// AuditRecorder receives audit entries. Implementations must not block.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// operationInfo maps a service operation name to its audited entity and action.
type operationInfo struct {
	entity EntityType
	action Action
}

var operations = map[string]operationInfo{
	"create_project":            {EntityProject, ActionCreate},
	"create_unit":               {EntityUnit, ActionCreate},
	"create_contractor":         {EntityContractor, ActionCreate},
	"update_contractor":         {EntityContractor, ActionUpdate},
	"delete_contractor":         {EntityContractor, ActionDelete},
	"update_phase_progress":     {EntityPhase, ActionUpdate},
	"update_work_item_progress": {EntityWorkItem, ActionUpdate},
	"add_phase":                 {EntityPhase, ActionCreate},
	"add_work_item":             {EntityWorkItem, ActionCreate},
	"cancel_phase":              {EntityPhase, ActionUpdate},
	"cancel_work_item":          {EntityWorkItem, ActionUpdate},
	"complete_project":          {EntityProject, ActionUpdate},
	"complete_unit":             {EntityUnit, ActionUpdate},
	"hold_project":              {EntityProject, ActionUpdate},
	"resume_project":            {EntityProject, ActionUpdate},
	"cancel_project":            {EntityProject, ActionUpdate},
	"hold_unit":                 {EntityUnit, ActionUpdate},
	"resume_unit":               {EntityUnit, ActionUpdate},
	"cancel_unit":               {EntityUnit, ActionUpdate},
}

// Service exposes the transactional operations of the construction domain:
// CRUD on subjects and contractors plus the rollup operations that mutate
// weighted items and derive aggregate progress, milestones, and projections.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	audit   AuditRecorder
	sink    domain.EventSink
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(s *Service) {
		if audit != nil {
			s.audit = audit
		}
	}
}

// WithEventSink sets the sink that receives outbox events after commit.
func WithEventSink(sink domain.EventSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		audit:   noopAuditRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. nil selects the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run executes fn inside a store transaction with timing, logging, metrics,
// and audit. entityID is read after fn completes so closures may fill it in.
func (s *Service) run(ctx context.Context, operation string, entityID *string, fn func(tx Transaction) error) (Result, error) {
	start := s.clock.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.clock.Now().Sub(start)
	success := err == nil
	s.metrics.Observe(ctx, operation, success, duration)

	var id string
	if entityID != nil {
		id = *entityID
	}
	if err != nil {
		s.logger.Error(operation+" failed", "entity_id", id, "error", err)
		s.recordAuditFailure(ctx, operation, id, duration, err)
		return res, err
	}
	for _, warning := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", operation, "rule", warning.Rule, "message", warning.Message, "entity_id", warning.EntityID)
	}
	s.logger.Debug(operation+" committed", "entity_id", id, "duration_ms", duration.Milliseconds())
	s.recordAuditSuccess(ctx, operation, id, duration)
	s.dispatchEvents(ctx)
	return res, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	info, ok := operations[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    info.entity,
		Action:    info.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) recordAuditFailure(ctx context.Context, operation, entityID string, duration time.Duration, err error) {
	info, ok := operations[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    info.entity,
		Action:    info.action,
		EntityID:  entityID,
		Status:    AuditStatusFailure,
		Duration:  duration,
		Timestamp: s.clock.Now(),
		Error:     err.Error(),
	})
}

// CreateProject persists a new project with its initial phases. Overall
// progress is derived immediately so pre-seeded phase progress is reflected.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	if err := validateSubjectCreate(&project.SubjectCore); err != nil {
		return Project{}, Result{}, err
	}
	for i := range project.Phases {
		if err := validateItemCreate(&project.Phases[i].ItemCore, i); err != nil {
			return Project{}, Result{}, err
		}
	}
	initializeSubject(&project.SubjectCore, phaseCores(&project), s.clock.Now())
	var created Project
	var id string
	res, err := s.run(ctx, "create_project", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(project)
		if err == nil {
			id = created.ID
		}
		return err
	})
	return created, res, err
}

// CreateUnit persists a new sellable unit with its initial work items.
func (s *Service) CreateUnit(ctx context.Context, unit Unit) (Unit, Result, error) {
	if err := validateSubjectCreate(&unit.SubjectCore); err != nil {
		return Unit{}, Result{}, err
	}
	for i := range unit.WorkItems {
		if err := validateItemCreate(&unit.WorkItems[i].ItemCore, i); err != nil {
			return Unit{}, Result{}, err
		}
	}
	initializeSubject(&unit.SubjectCore, workItemCores(&unit), s.clock.Now())
	var created Unit
	var id string
	res, err := s.run(ctx, "create_unit", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateUnit(unit)
		if err == nil {
			id = created.ID
		}
		return err
	})
	return created, res, err
}

// CreateContractor persists a new contractor.
func (s *Service) CreateContractor(ctx context.Context, contractor Contractor) (Contractor, Result, error) {
	if contractor.Name == "" {
		return Contractor{}, Result{}, domain.NewValidationError("name", "required")
	}
	var created Contractor
	var id string
	res, err := s.run(ctx, "create_contractor", &id, func(tx Transaction) error {
		var err error
		created, err = tx.CreateContractor(contractor)
		if err == nil {
			id = created.ID
		}
		return err
	})
	return created, res, err
}

// UpdateContractor mutates an existing contractor.
func (s *Service) UpdateContractor(ctx context.Context, id string, mutator func(*Contractor) error) (Contractor, Result, error) {
	var updated Contractor
	res, err := s.run(ctx, "update_contractor", &id, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateContractor(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteContractor removes a contractor.
func (s *Service) DeleteContractor(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_contractor", &id, func(tx Transaction) error {
		return tx.DeleteContractor(id)
	})
}

// GetProject returns a project by id.
func (s *Service) GetProject(id string) (Project, bool) {
	return s.store.GetProject(id)
}

// ListProjects returns all projects.
func (s *Service) ListProjects() []Project {
	return s.store.ListProjects()
}

// GetUnit returns a unit by id.
func (s *Service) GetUnit(id string) (Unit, bool) {
	return s.store.GetUnit(id)
}

// ListUnits returns all units.
func (s *Service) ListUnits() []Unit {
	return s.store.ListUnits()
}

// ListContractors returns all contractors.
func (s *Service) ListContractors() []Contractor {
	return s.store.ListContractors()
}

func validateSubjectCreate(subject *domain.SubjectCore) error {
	if subject.Name == "" {
		return domain.NewValidationError("name", "required")
	}
	if subject.Status == "" {
		subject.Status = SubjectStatusPlanning
	}
	if !domain.ValidSubjectStatus(subject.Status) {
		return domain.NewValidationError("status", "unknown status %q", subject.Status)
	}
	return nil
}

func validateItemCreate(item *domain.ItemCore, index int) error {
	if item.Name == "" {
		return domain.NewValidationError("items", "item %d: name required", index)
	}
	if item.Weight < 0 || item.Weight > 100 {
		return domain.NewValidationError("weight", "item %d: must be between 0 and 100, got %v", index, item.Weight)
	}
	if item.Progress < 0 || item.Progress > 100 {
		return domain.NewValidationError("progress", "item %d: must be between 0 and 100, got %v", index, item.Progress)
	}
	if item.Status == "" {
		item.Status = ItemStatusNotStarted
	}
	if !domain.ValidItemStatus(item.Status) {
		return domain.NewValidationError("status", "item %d: unknown status %q", index, item.Status)
	}
	return nil
}
