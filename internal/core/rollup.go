package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"buildcore/pkg/domain"
	"buildcore/pkg/rollup"
)

// SubjectSnapshot is the DTO returned by rollup operations: the derived
// aggregate state after the mutation plus the milestone and item events
// queued by it, for logging and telemetry correlation at the boundary.
type SubjectSnapshot struct {
	SubjectID       string                  `json:"subject_id"`
	SubjectType     EntityType              `json:"subject_type"`
	OverallProgress float64                 `json:"overall_progress"`
	Status          SubjectStatus           `json:"status"`
	EstimatedEnd    *time.Time              `json:"estimated_end,omitempty"`
	Delayed         bool                    `json:"delayed"`
	DaysRemaining   int                     `json:"days_remaining"`
	Milestones      []domain.MilestoneEvent `json:"milestones,omitempty"`
	ItemEvents      []domain.ItemEvent      `json:"item_events,omitempty"`
}

// itemMutation describes a pending change to one weighted item.
type itemMutation struct {
	progress *float64
	status   *ItemStatus
	cancel   bool
}

// rollupOutcome carries the derived results of one engine pass.
type rollupOutcome struct {
	overall     float64
	crossed     []int
	transitions []itemTransition
	projection  rollup.Projection
}

type itemTransition struct {
	itemID     string
	transition domain.ItemTransition
}

func itemViews(items []*domain.ItemCore) []rollup.Item {
	out := make([]rollup.Item, 0, len(items))
	for _, it := range items {
		out = append(out, rollup.Item{Weight: it.Weight, Progress: it.Progress, Cancelled: it.Status == ItemStatusCancelled})
	}
	return out
}

// applyItemMutation is the generic rollup engine pass shared by the project
// and unit hierarchies. It mutates one item, recomputes the aggregate, runs
// milestone detection against the persisted watermark, applies the automatic
// subject transitions, and reprojects the completion date. It never touches
// storage; the caller commits the subject it belongs to.
func applyItemMutation(subject *domain.SubjectCore, items []*domain.ItemCore, itemID string, mut itemMutation, itemEntity EntityType, now time.Time) (rollupOutcome, error) {
	if domain.TerminalSubject(subject.Status) {
		return rollupOutcome{}, domain.NewValidationError("status", "subject is %s", subject.Status)
	}
	var target *domain.ItemCore
	for _, it := range items {
		if it.ID == itemID {
			target = it
			break
		}
	}
	if target == nil {
		return rollupOutcome{}, domain.NotFoundError{Entity: itemEntity, ID: itemID}
	}

	oldStatus := target.Status

	if mut.cancel {
		if !domain.CanTransitionItem(target.Status, ItemStatusCancelled) {
			return rollupOutcome{}, domain.NewValidationError("status", "cannot cancel %s %s from status %s", itemEntity, itemID, target.Status)
		}
		target.Status = ItemStatusCancelled
	}

	if mut.progress != nil {
		p := *mut.progress
		if p < 0 || p > 100 {
			return rollupOutcome{}, domain.NewValidationError("progress", "must be between 0 and 100, got %v", p)
		}
		if target.Status == ItemStatusCancelled {
			return rollupOutcome{}, domain.NewValidationError("status", "%s %s is cancelled", itemEntity, itemID)
		}
		target.Progress = p
		// Forward-only automatic transitions; regression keeps the status.
		if target.Status == ItemStatusNotStarted && p > 0 {
			target.Status = ItemStatusInProgress
			if target.ActualStart == nil {
				ts := now
				target.ActualStart = &ts
			}
		}
		if target.Status == ItemStatusInProgress && p == 100 {
			target.Status = ItemStatusCompleted
		}
	}

	if mut.status != nil {
		to := *mut.status
		if !domain.ValidItemStatus(to) {
			return rollupOutcome{}, domain.NewValidationError("status", "unknown status %q", to)
		}
		// Validate against the status after automatic transitions, so an
		// explicit complete riding on a progress=100 update is legal.
		if !domain.CanTransitionItem(target.Status, to) {
			return rollupOutcome{}, domain.NewValidationError("status", "invalid transition %s -> %s", target.Status, to)
		}
		target.Status = to
	}

	if target.Status == ItemStatusCompleted && oldStatus != ItemStatusCompleted {
		if target.ActualEnd == nil {
			ts := now
			target.ActualEnd = &ts
		}
	}

	outcome := finishRollup(subject, items, now)
	if target.Status != oldStatus && domain.TerminalItem(target.Status) {
		outcome.transitions = append(outcome.transitions, itemTransition{
			itemID:     target.ID,
			transition: domain.ItemTransition(target.Status),
		})
	}
	return outcome, nil
}

// finishRollup recomputes the aggregate, detects milestone crossings, applies
// automatic subject transitions, and reprojects the completion date.
func finishRollup(subject *domain.SubjectCore, items []*domain.ItemCore, now time.Time) rollupOutcome {
	oldOverall := subject.OverallProgress
	newOverall := rollup.Compute(itemViews(items))
	subject.OverallProgress = newOverall

	crossed, watermark := rollup.Detect(oldOverall, newOverall, subject.HighestEmittedMilestone)
	subject.HighestEmittedMilestone = watermark

	projection := settleSubject(subject, items, newOverall, now)

	return rollupOutcome{overall: newOverall, crossed: crossed, projection: projection}
}

// settleSubject applies the automatic subject transitions and reprojects the
// completion date for the current aggregate.
func settleSubject(subject *domain.SubjectCore, items []*domain.ItemCore, overall float64, now time.Time) rollup.Projection {
	// First item entering work moves a planning subject into progress.
	if subject.Status == SubjectStatusPlanning {
		for _, it := range items {
			if it.Status == ItemStatusInProgress || it.Status == ItemStatusCompleted {
				subject.Status = SubjectStatusInProgress
				if subject.StartDate == nil {
					ts := now
					subject.StartDate = &ts
				}
				break
			}
		}
	}

	// Full completion: aggregate at 100 with every item settled.
	if !domain.TerminalSubject(subject.Status) && overall == 100 && allItemsSettled(items) {
		subject.Status = SubjectStatusCompleted
		if subject.ActualEnd == nil {
			ts := now
			subject.ActualEnd = &ts
		}
	}

	projection := rollup.Project(subject.StartDate, now, overall, subject.PlannedEnd, domain.TerminalSubject(subject.Status))
	if !projection.EstimatedEnd.IsZero() {
		est := projection.EstimatedEnd
		subject.EstimatedEnd = &est
	}
	return projection
}

// initializeSubject derives the aggregate and settles status for a freshly
// created subject. Pre-seeded item progress emits no milestone events, so the
// watermark stays at zero.
func initializeSubject(subject *domain.SubjectCore, items []*domain.ItemCore, now time.Time) {
	subject.OverallProgress = rollup.Compute(itemViews(items))
	settleSubject(subject, items, subject.OverallProgress, now)
}

func allItemsSettled(items []*domain.ItemCore) bool {
	for _, it := range items {
		if !domain.TerminalItem(it.Status) {
			return false
		}
	}
	return len(items) > 0
}

// queueRollupEvents turns an outcome into persisted outbox entries and
// returns the event descriptors for the snapshot.
func queueRollupEvents(tx Transaction, subjectType EntityType, subjectID string, outcome rollupOutcome, now time.Time) ([]domain.MilestoneEvent, []domain.ItemEvent) {
	milestoneTopic := domain.TopicProjectMilestones
	itemTopic := domain.TopicPhaseTransitions
	itemEntity := EntityPhase
	if subjectType == EntityUnit {
		milestoneTopic = domain.TopicUnitMilestones
		itemTopic = domain.TopicWorkItemTransitions
		itemEntity = EntityWorkItem
	}

	var milestones []domain.MilestoneEvent
	for _, threshold := range outcome.crossed {
		event := domain.MilestoneEvent{
			ID:             uuid.NewString(),
			SubjectType:    subjectType,
			SubjectID:      subjectID,
			Threshold:      threshold,
			ActualProgress: outcome.overall,
			OccurredAt:     now,
		}
		milestones = append(milestones, event)
		appendOutboxEvent(tx, milestoneTopic, event.ID, event, now)
	}

	var itemEvents []domain.ItemEvent
	for _, tr := range outcome.transitions {
		event := domain.ItemEvent{
			ID:         uuid.NewString(),
			ItemType:   itemEntity,
			ItemID:     tr.itemID,
			SubjectID:  subjectID,
			Transition: tr.transition,
			OccurredAt: now,
		}
		itemEvents = append(itemEvents, event)
		appendOutboxEvent(tx, itemTopic, event.ID, event, now)
	}
	return milestones, itemEvents
}

func appendOutboxEvent(tx Transaction, topic, id string, payload any, now time.Time) {
	data, err := json.Marshal(payload)
	if err != nil {
		// Event types marshal by construction; a failure here is a programming error.
		panic(err)
	}
	tx.AppendOutbox(domain.OutboxEntry{ID: id, Topic: topic, Payload: data, QueuedAt: now})
}

// UpdatePhaseProgress applies a progress (and optional status) change to one
// phase and returns the derived project snapshot with any queued events.
func (s *Service) UpdatePhaseProgress(ctx context.Context, projectID, phaseID string, progress float64, status *ItemStatus) (SubjectSnapshot, error) {
	now := s.clock.Now()
	var snap SubjectSnapshot
	_, err := s.run(ctx, "update_phase_progress", &projectID, func(tx Transaction) error {
		var outcome rollupOutcome
		updated, err := tx.UpdateProject(projectID, func(p *Project) error {
			var err error
			outcome, err = applyItemMutation(&p.SubjectCore, phaseCores(p), phaseID, itemMutation{progress: &progress, status: status}, EntityPhase, now)
			return err
		})
		if err != nil {
			return err
		}
		milestones, itemEvents := queueRollupEvents(tx, EntityProject, updated.ID, outcome, now)
		snap = projectSnapshot(updated, outcome, milestones, itemEvents)
		return nil
	})
	return snap, err
}

// UpdateWorkItemProgress applies a progress (and optional status) change to
// one work item and returns the derived unit snapshot with any queued events.
func (s *Service) UpdateWorkItemProgress(ctx context.Context, unitID, itemID string, progress float64, status *ItemStatus) (SubjectSnapshot, error) {
	now := s.clock.Now()
	var snap SubjectSnapshot
	_, err := s.run(ctx, "update_work_item_progress", &unitID, func(tx Transaction) error {
		var outcome rollupOutcome
		updated, err := tx.UpdateUnit(unitID, func(u *Unit) error {
			var err error
			outcome, err = applyItemMutation(&u.SubjectCore, workItemCores(u), itemID, itemMutation{progress: &progress, status: status}, EntityWorkItem, now)
			return err
		})
		if err != nil {
			return err
		}
		milestones, itemEvents := queueRollupEvents(tx, EntityUnit, updated.ID, outcome, now)
		snap = unitSnapshot(updated, outcome, milestones, itemEvents)
		return nil
	})
	return snap, err
}

// AddPhase appends a phase to a project and returns the new phase id. The
// phase starts at zero progress regardless of the definition; the weight-sum
// invariant is not enforced here, the weight_total rule reports drift as a
// warning.
func (s *Service) AddPhase(ctx context.Context, projectID string, phase Phase) (string, error) {
	now := s.clock.Now()
	phase.Progress = 0
	phase.Status = ItemStatusNotStarted
	if err := validateItemCreate(&phase.ItemCore, 0); err != nil {
		return "", err
	}
	var phaseID string
	_, err := s.run(ctx, "add_phase", &projectID, func(tx Transaction) error {
		updated, err := tx.UpdateProject(projectID, func(p *Project) error {
			if domain.TerminalSubject(p.Status) {
				return domain.NewValidationError("status", "project %s is %s", projectID, p.Status)
			}
			phase.OrderIndex = len(p.Phases)
			p.Phases = append(p.Phases, phase)
			finishRollup(&p.SubjectCore, phaseCores(p), now)
			return nil
		})
		if err != nil {
			return err
		}
		phaseID = updated.Phases[len(updated.Phases)-1].ID
		return nil
	})
	return phaseID, err
}

// AddWorkItem appends a work item to a unit and returns the new item id. The
// item starts at zero progress regardless of the definition.
func (s *Service) AddWorkItem(ctx context.Context, unitID string, item WorkItem) (string, error) {
	now := s.clock.Now()
	item.Progress = 0
	item.Status = ItemStatusNotStarted
	if err := validateItemCreate(&item.ItemCore, 0); err != nil {
		return "", err
	}
	var itemID string
	_, err := s.run(ctx, "add_work_item", &unitID, func(tx Transaction) error {
		updated, err := tx.UpdateUnit(unitID, func(u *Unit) error {
			if domain.TerminalSubject(u.Status) {
				return domain.NewValidationError("status", "unit %s is %s", unitID, u.Status)
			}
			item.OrderIndex = len(u.WorkItems)
			u.WorkItems = append(u.WorkItems, item)
			finishRollup(&u.SubjectCore, workItemCores(u), now)
			return nil
		})
		if err != nil {
			return err
		}
		itemID = updated.WorkItems[len(updated.WorkItems)-1].ID
		return nil
	})
	return itemID, err
}

// CancelPhase retires a phase. Its weight leaves the aggregation base and is
// not redistributed.
func (s *Service) CancelPhase(ctx context.Context, projectID, phaseID string) (SubjectSnapshot, error) {
	now := s.clock.Now()
	var snap SubjectSnapshot
	_, err := s.run(ctx, "cancel_phase", &projectID, func(tx Transaction) error {
		var outcome rollupOutcome
		updated, err := tx.UpdateProject(projectID, func(p *Project) error {
			var err error
			outcome, err = applyItemMutation(&p.SubjectCore, phaseCores(p), phaseID, itemMutation{cancel: true}, EntityPhase, now)
			return err
		})
		if err != nil {
			return err
		}
		milestones, itemEvents := queueRollupEvents(tx, EntityProject, updated.ID, outcome, now)
		snap = projectSnapshot(updated, outcome, milestones, itemEvents)
		return nil
	})
	return snap, err
}

// CancelWorkItem retires a work item.
func (s *Service) CancelWorkItem(ctx context.Context, unitID, itemID string) (SubjectSnapshot, error) {
	now := s.clock.Now()
	var snap SubjectSnapshot
	_, err := s.run(ctx, "cancel_work_item", &unitID, func(tx Transaction) error {
		var outcome rollupOutcome
		updated, err := tx.UpdateUnit(unitID, func(u *Unit) error {
			var err error
			outcome, err = applyItemMutation(&u.SubjectCore, workItemCores(u), itemID, itemMutation{cancel: true}, EntityWorkItem, now)
			return err
		})
		if err != nil {
			return err
		}
		milestones, itemEvents := queueRollupEvents(tx, EntityUnit, updated.ID, outcome, now)
		snap = unitSnapshot(updated, outcome, milestones, itemEvents)
		return nil
	})
	return snap, err
}

// CompleteProjectManually forces a project to COMPLETED regardless of child
// completeness. An administrative close-out path distinct from the automatic
// transition.
func (s *Service) CompleteProjectManually(ctx context.Context, projectID string) (SubjectSnapshot, error) {
	now := s.clock.Now()
	var snap SubjectSnapshot
	_, err := s.run(ctx, "complete_project", &projectID, func(tx Transaction) error {
		updated, err := tx.UpdateProject(projectID, func(p *Project) error {
			return completeSubjectManually(&p.SubjectCore, EntityProject, projectID, now)
		})
		if err != nil {
			return err
		}
		snap = projectSnapshot(updated, rollupOutcome{overall: updated.OverallProgress}, nil, nil)
		return nil
	})
	return snap, err
}

// CompleteUnitManually forces a unit to COMPLETED regardless of child
// completeness.
func (s *Service) CompleteUnitManually(ctx context.Context, unitID string) (SubjectSnapshot, error) {
	now := s.clock.Now()
	var snap SubjectSnapshot
	_, err := s.run(ctx, "complete_unit", &unitID, func(tx Transaction) error {
		updated, err := tx.UpdateUnit(unitID, func(u *Unit) error {
			return completeSubjectManually(&u.SubjectCore, EntityUnit, unitID, now)
		})
		if err != nil {
			return err
		}
		snap = unitSnapshot(updated, rollupOutcome{overall: updated.OverallProgress}, nil, nil)
		return nil
	})
	return snap, err
}

func completeSubjectManually(subject *domain.SubjectCore, entity EntityType, id string, now time.Time) error {
	if domain.TerminalSubject(subject.Status) {
		return domain.NewValidationError("status", "%s %s is already %s", entity, id, subject.Status)
	}
	subject.Status = SubjectStatusCompleted
	if subject.ActualEnd == nil {
		ts := now
		subject.ActualEnd = &ts
	}
	return nil
}

// SetProjectStatus applies an externally triggered side transition (hold,
// resume, cancel) to a project.
func (s *Service) SetProjectStatus(ctx context.Context, projectID string, status SubjectStatus) (Project, error) {
	op, err := subjectStatusOperation("project", status)
	if err != nil {
		return Project{}, err
	}
	var updated Project
	_, err = s.run(ctx, op, &projectID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProject(projectID, func(p *Project) error {
			return transitionSubject(&p.SubjectCore, status)
		})
		return err
	})
	return updated, err
}

// SetUnitStatus applies an externally triggered side transition to a unit.
func (s *Service) SetUnitStatus(ctx context.Context, unitID string, status SubjectStatus) (Unit, error) {
	op, err := subjectStatusOperation("unit", status)
	if err != nil {
		return Unit{}, err
	}
	var updated Unit
	_, err = s.run(ctx, op, &unitID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateUnit(unitID, func(u *Unit) error {
			return transitionSubject(&u.SubjectCore, status)
		})
		return err
	})
	return updated, err
}

func subjectStatusOperation(kind string, status SubjectStatus) (string, error) {
	switch status {
	case SubjectStatusOnHold:
		return "hold_" + kind, nil
	case SubjectStatusInProgress:
		return "resume_" + kind, nil
	case SubjectStatusCancelled:
		return "cancel_" + kind, nil
	default:
		return "", domain.NewValidationError("status", "%q is not an external side transition", status)
	}
}

func transitionSubject(subject *domain.SubjectCore, to SubjectStatus) error {
	if !domain.CanTransitionSubject(subject.Status, to) {
		return domain.NewValidationError("status", "invalid transition %s -> %s", subject.Status, to)
	}
	subject.Status = to
	return nil
}

func phaseCores(p *Project) []*domain.ItemCore {
	out := make([]*domain.ItemCore, 0, len(p.Phases))
	for i := range p.Phases {
		out = append(out, &p.Phases[i].ItemCore)
	}
	return out
}

func workItemCores(u *Unit) []*domain.ItemCore {
	out := make([]*domain.ItemCore, 0, len(u.WorkItems))
	for i := range u.WorkItems {
		out = append(out, &u.WorkItems[i].ItemCore)
	}
	return out
}

func projectSnapshot(p Project, outcome rollupOutcome, milestones []domain.MilestoneEvent, itemEvents []domain.ItemEvent) SubjectSnapshot {
	return SubjectSnapshot{
		SubjectID:       p.ID,
		SubjectType:     EntityProject,
		OverallProgress: p.OverallProgress,
		Status:          p.Status,
		EstimatedEnd:    p.EstimatedEnd,
		Delayed:         outcome.projection.Delayed,
		DaysRemaining:   outcome.projection.DaysRemaining,
		Milestones:      milestones,
		ItemEvents:      itemEvents,
	}
}

func unitSnapshot(u Unit, outcome rollupOutcome, milestones []domain.MilestoneEvent, itemEvents []domain.ItemEvent) SubjectSnapshot {
	return SubjectSnapshot{
		SubjectID:       u.ID,
		SubjectType:     EntityUnit,
		OverallProgress: u.OverallProgress,
		Status:          u.Status,
		EstimatedEnd:    u.EstimatedEnd,
		Delayed:         outcome.projection.Delayed,
		DaysRemaining:   outcome.projection.DaysRemaining,
		Milestones:      milestones,
		ItemEvents:      itemEvents,
	}
}
