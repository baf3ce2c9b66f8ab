// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. Mutations run under a
// single-writer transactional lock over a copy-on-write state clone, so
// read-modify-write races on derived subject fields cannot occur in-process.
package memory

import (
	"buildcore/pkg/domain"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Project aliases domain.Project for in-memory persistence operations.
	Project = domain.Project
	// Unit aliases domain.Unit.
	Unit = domain.Unit
	// Contractor aliases domain.Contractor.
	Contractor = domain.Contractor
	// OutboxEntry aliases domain.OutboxEntry queued inside transactions.
	OutboxEntry = domain.OutboxEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	projects    map[string]Project
	units       map[string]Unit
	contractors map[string]Contractor
	outbox      []OutboxEntry
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Projects    map[string]Project    `json:"projects"`
	Units       map[string]Unit       `json:"units"`
	Contractors map[string]Contractor `json:"contractors"`
	Outbox      []OutboxEntry         `json:"outbox"`
}

func newMemoryState() memoryState {
	return memoryState{
		projects:    make(map[string]Project),
		units:       make(map[string]Unit),
		contractors: make(map[string]Contractor),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.projects {
		cloned.projects[k] = cloneProject(v)
	}
	for k, v := range s.units {
		cloned.units[k] = cloneUnit(v)
	}
	for k, v := range s.contractors {
		cloned.contractors[k] = cloneContractor(v)
	}
	cloned.outbox = append([]OutboxEntry(nil), s.outbox...)
	return cloned
}

func cloneProject(p Project) Project {
	cp := p
	cp.Phases = append([]domain.Phase(nil), p.Phases...)
	return cp
}

func cloneUnit(u Unit) Unit {
	cp := u
	cp.WorkItems = append([]domain.WorkItem(nil), u.WorkItems...)
	return cp
}

func cloneContractor(c Contractor) Contractor {
	cp := c
	cp.ProjectIDs = append([]string(nil), c.ProjectIDs...)
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the transaction clock, primarily for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

var _ domain.Transaction = (*transaction)(nil)

type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}

// RunInTransaction executes fn within a transactional copy of the store state.
// The clone is committed only after fn succeeds and the rules engine reports
// no blocking violations.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to the caller for reads within fn.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: &tx.state}
}

// CreateProject stores a new project within the transaction.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	for i := range p.Phases {
		stampPhase(&p.Phases[i], p.ID, tx.now)
	}
	tx.state.projects[p.ID] = cloneProject(p)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: cloneProject(p)})
	return cloneProject(p), nil
}

// UpdateProject mutates a project using the provided mutator function and
// bumps the optimistic version counter.
func (tx *transaction) UpdateProject(id string, mutator func(*Project) error) (Project, error) {
	current, ok := tx.state.projects[id]
	if !ok {
		return Project{}, domain.NotFoundError{Entity: domain.EntityProject, ID: id}
	}
	before := cloneProject(current)
	current = cloneProject(current)
	if err := mutator(&current); err != nil {
		return Project{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	for i := range current.Phases {
		if current.Phases[i].ID == "" {
			stampPhase(&current.Phases[i], id, tx.now)
		}
	}
	tx.state.projects[id] = cloneProject(current)
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionUpdate, Before: before, After: cloneProject(current)})
	return cloneProject(current), nil
}

// CreateUnit stores a new unit within the transaction.
func (tx *transaction) CreateUnit(u Unit) (Unit, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := tx.state.units[u.ID]; exists {
		return Unit{}, fmt.Errorf("unit %q already exists", u.ID)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	for i := range u.WorkItems {
		stampWorkItem(&u.WorkItems[i], u.ID, tx.now)
	}
	tx.state.units[u.ID] = cloneUnit(u)
	tx.recordChange(Change{Entity: domain.EntityUnit, Action: domain.ActionCreate, After: cloneUnit(u)})
	return cloneUnit(u), nil
}

// UpdateUnit mutates a unit using the provided mutator function and bumps the
// optimistic version counter.
func (tx *transaction) UpdateUnit(id string, mutator func(*Unit) error) (Unit, error) {
	current, ok := tx.state.units[id]
	if !ok {
		return Unit{}, domain.NotFoundError{Entity: domain.EntityUnit, ID: id}
	}
	before := cloneUnit(current)
	current = cloneUnit(current)
	if err := mutator(&current); err != nil {
		return Unit{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	for i := range current.WorkItems {
		if current.WorkItems[i].ID == "" {
			stampWorkItem(&current.WorkItems[i], id, tx.now)
		}
	}
	tx.state.units[id] = cloneUnit(current)
	tx.recordChange(Change{Entity: domain.EntityUnit, Action: domain.ActionUpdate, Before: before, After: cloneUnit(current)})
	return cloneUnit(current), nil
}

// CreateContractor stores a new contractor.
func (tx *transaction) CreateContractor(c Contractor) (Contractor, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	if _, exists := tx.state.contractors[c.ID]; exists {
		return Contractor{}, fmt.Errorf("contractor %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.contractors[c.ID] = cloneContractor(c)
	tx.recordChange(Change{Entity: domain.EntityContractor, Action: domain.ActionCreate, After: cloneContractor(c)})
	return cloneContractor(c), nil
}

// UpdateContractor mutates an existing contractor.
func (tx *transaction) UpdateContractor(id string, mutator func(*Contractor) error) (Contractor, error) {
	current, ok := tx.state.contractors[id]
	if !ok {
		return Contractor{}, domain.NotFoundError{Entity: domain.EntityContractor, ID: id}
	}
	before := cloneContractor(current)
	current = cloneContractor(current)
	if err := mutator(&current); err != nil {
		return Contractor{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.contractors[id] = cloneContractor(current)
	tx.recordChange(Change{Entity: domain.EntityContractor, Action: domain.ActionUpdate, Before: before, After: cloneContractor(current)})
	return cloneContractor(current), nil
}

// DeleteContractor removes a contractor from state.
func (tx *transaction) DeleteContractor(id string) error {
	current, ok := tx.state.contractors[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityContractor, ID: id}
	}
	delete(tx.state.contractors, id)
	tx.recordChange(Change{Entity: domain.EntityContractor, Action: domain.ActionDelete, Before: cloneContractor(current)})
	return nil
}

// FindProject retrieves a project by ID from the transactional state.
func (tx *transaction) FindProject(id string) (Project, bool) {
	p, ok := tx.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindUnit retrieves a unit by ID from the transactional state.
func (tx *transaction) FindUnit(id string) (Unit, bool) {
	u, ok := tx.state.units[id]
	if !ok {
		return Unit{}, false
	}
	return cloneUnit(u), true
}

// AppendOutbox queues an event for post-commit publication. The entry commits
// atomically with the state change that produced it.
func (tx *transaction) AppendOutbox(entry OutboxEntry) {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = tx.now
	}
	tx.state.outbox = append(tx.state.outbox, entry)
}

func stampPhase(p *domain.Phase, projectID string, now time.Time) {
	if p.ID == "" {
		p.ID = newID()
	}
	p.ProjectID = projectID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = domain.ItemStatusNotStarted
	}
}

func stampWorkItem(w *domain.WorkItem, unitID string, now time.Time) {
	if w.ID == "" {
		w.ID = newID()
	}
	w.UnitID = unitID
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	if w.Status == "" {
		w.Status = domain.ItemStatusNotStarted
	}
}

// ListProjects returns all projects within the view snapshot.
func (v view) ListProjects() []Project {
	out := make([]Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListUnits returns all units within the view snapshot.
func (v view) ListUnits() []Unit {
	out := make([]Unit, 0, len(v.state.units))
	for _, u := range v.state.units {
		out = append(out, cloneUnit(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListContractors returns all contractors within the view snapshot.
func (v view) ListContractors() []Contractor {
	out := make([]Contractor, 0, len(v.state.contractors))
	for _, c := range v.state.contractors {
		out = append(out, cloneContractor(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindProject retrieves a project by ID from the snapshot.
func (v view) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// FindUnit retrieves a unit by ID from the snapshot.
func (v view) FindUnit(id string) (Unit, bool) {
	u, ok := v.state.units[id]
	if !ok {
		return Unit{}, false
	}
	return cloneUnit(u), true
}

// FindContractor retrieves a contractor by ID from the snapshot.
func (v view) FindContractor(id string) (Contractor, bool) {
	c, ok := v.state.contractors[id]
	if !ok {
		return Contractor{}, false
	}
	return cloneContractor(c), true
}

// GetProject returns a project by id.
func (s *Store) GetProject(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ListProjects returns all projects sorted by id.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.state.projects))
	for _, p := range s.state.projects {
		out = append(out, cloneProject(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetUnit returns a unit by id.
func (s *Store) GetUnit(id string) (Unit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.units[id]
	if !ok {
		return Unit{}, false
	}
	return cloneUnit(u), true
}

// ListUnits returns all units sorted by id.
func (s *Store) ListUnits() []Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Unit, 0, len(s.state.units))
	for _, u := range s.state.units {
		out = append(out, cloneUnit(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetContractor returns a contractor by id.
func (s *Store) GetContractor(id string) (Contractor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.contractors[id]
	if !ok {
		return Contractor{}, false
	}
	return cloneContractor(c), true
}

// ListContractors returns all contractors sorted by id.
func (s *Store) ListContractors() []Contractor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Contractor, 0, len(s.state.contractors))
	for _, c := range s.state.contractors {
		out = append(out, cloneContractor(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingOutbox returns the queued entries that have not been published yet,
// oldest first.
func (s *Store) PendingOutbox() []OutboxEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OutboxEntry
	for _, e := range s.state.outbox {
		if e.PublishedAt == nil {
			out = append(out, e)
		}
	}
	return out
}

// MarkOutboxPublished stamps the given entries as handed to the sink.
func (s *Store) MarkOutboxPublished(ids []string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	for i := range s.state.outbox {
		if _, ok := idSet[s.state.outbox[i].ID]; ok && s.state.outbox[i].PublishedAt == nil {
			ts := at
			s.state.outbox[i].PublishedAt = &ts
		}
	}
}

// ExportState produces a serializable snapshot of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Projects:    make(map[string]Project, len(s.state.projects)),
		Units:       make(map[string]Unit, len(s.state.units)),
		Contractors: make(map[string]Contractor, len(s.state.contractors)),
	}
	for k, v := range s.state.projects {
		snap.Projects[k] = cloneProject(v)
	}
	for k, v := range s.state.units {
		snap.Units[k] = cloneUnit(v)
	}
	for k, v := range s.state.contractors {
		snap.Contractors[k] = cloneContractor(v)
	}
	snap.Outbox = append([]OutboxEntry(nil), s.state.outbox...)
	return snap
}

// ImportState replaces the store state with the supplied snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snap.Projects {
		state.projects[k] = cloneProject(v)
	}
	for k, v := range snap.Units {
		state.units[k] = cloneUnit(v)
	}
	for k, v := range snap.Contractors {
		state.contractors[k] = cloneContractor(v)
	}
	state.outbox = append([]OutboxEntry(nil), snap.Outbox...)
	s.state = state
}
