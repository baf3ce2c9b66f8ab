package core

import (
	"context"
	"fmt"
	"math"

	"buildcore/pkg/domain"
)

// weightTolerance is the permitted drift of a subject's active weight sum
// from 100 before the rule reports it.
const weightTolerance = 0.01

// NewWeightTotalRule warns when the weights of a subject's non-cancelled
// items do not sum to 100. Drift is reported, never blocked: weights are
// allowed to be inconsistent mid-replanning.
func NewWeightTotalRule() domain.Rule {
	return weightTotalRule{}
}

type weightTotalRule struct{}

func (weightTotalRule) Name() string { return "weight_total" }

func (weightTotalRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		switch change.Entity {
		case EntityProject:
			after, ok := change.After.(Project)
			if !ok {
				continue
			}
			checkWeights(&res, "project", change.Entity, after.ID, phaseWeights(after.Phases))
		case EntityUnit:
			after, ok := change.After.(Unit)
			if !ok {
				continue
			}
			checkWeights(&res, "unit", change.Entity, after.ID, workItemWeights(after.WorkItems))
		}
	}
	return res, nil
}

func checkWeights(res *domain.Result, label string, entity EntityType, id string, weights []float64) {
	if len(weights) == 0 {
		return
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-100) <= weightTolerance {
		return
	}
	res.Violations = append(res.Violations, domain.Violation{
		Rule:     "weight_total",
		Severity: domain.SeverityWarn,
		Message:  fmt.Sprintf("%s %s active weights sum to %.2f, expected 100", label, id, sum),
		Entity:   entity,
		EntityID: id,
	})
}

func phaseWeights(phases []Phase) []float64 {
	var out []float64
	for _, p := range phases {
		if p.Status == ItemStatusCancelled {
			continue
		}
		out = append(out, p.Weight)
	}
	return out
}

func workItemWeights(items []WorkItem) []float64 {
	var out []float64
	for _, w := range items {
		if w.Status == ItemStatusCancelled {
			continue
		}
		out = append(out, w.Weight)
	}
	return out
}
