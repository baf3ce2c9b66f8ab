package core

import (
	"context"
	"fmt"

	"buildcore/pkg/domain"
)

// NewLifecycleTransitionRule blocks illegal subject and item transitions at
// the commit boundary. The service validates transitions up front; the rule is
// the backstop for mutators that bypass those paths.
func NewLifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type subjectPair struct {
	id     string
	label  string
	before domain.SubjectStatus
	after  domain.SubjectStatus
	items  []itemPair
}

type itemPair struct {
	id     string
	label  string
	entity EntityType
	before domain.ItemStatus
	after  domain.ItemStatus
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action != domain.ActionUpdate {
			continue
		}
		pair, ok := extractSubjectPair(change)
		if !ok {
			continue
		}
		if pair.after != pair.before && !domain.CanTransitionSubject(pair.before, pair.after) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from %s to %s", pair.label, pair.id, pair.before, pair.after),
				Entity:   change.Entity,
				EntityID: pair.id,
			})
		}
		for _, item := range pair.items {
			if item.after != item.before && !domain.CanTransitionItem(item.before, item.after) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("cannot move %s %s from %s to %s", item.label, item.id, item.before, item.after),
					Entity:   item.entity,
					EntityID: item.id,
				})
			}
		}
	}
	return res, nil
}

func extractSubjectPair(change domain.Change) (subjectPair, bool) {
	switch change.Entity {
	case EntityProject:
		before, ok := change.Before.(Project)
		if !ok {
			return subjectPair{}, false
		}
		after, ok := change.After.(Project)
		if !ok {
			return subjectPair{}, false
		}
		pair := subjectPair{id: after.ID, label: "project", before: before.Status, after: after.Status}
		byID := make(map[string]domain.ItemStatus, len(before.Phases))
		for _, p := range before.Phases {
			byID[p.ID] = p.Status
		}
		for _, p := range after.Phases {
			prev, existed := byID[p.ID]
			if !existed {
				continue
			}
			pair.items = append(pair.items, itemPair{id: p.ID, label: "phase", entity: EntityPhase, before: prev, after: p.Status})
		}
		return pair, true
	case EntityUnit:
		before, ok := change.Before.(Unit)
		if !ok {
			return subjectPair{}, false
		}
		after, ok := change.After.(Unit)
		if !ok {
			return subjectPair{}, false
		}
		pair := subjectPair{id: after.ID, label: "unit", before: before.Status, after: after.Status}
		byID := make(map[string]domain.ItemStatus, len(before.WorkItems))
		for _, w := range before.WorkItems {
			byID[w.ID] = w.Status
		}
		for _, w := range after.WorkItems {
			prev, existed := byID[w.ID]
			if !existed {
				continue
			}
			pair.items = append(pair.items, itemPair{id: w.ID, label: "work item", entity: EntityWorkItem, before: prev, after: w.Status})
		}
		return pair, true
	default:
		return subjectPair{}, false
	}
}
