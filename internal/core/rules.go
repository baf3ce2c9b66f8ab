package core

import "buildcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewLifecycleTransitionRule())
	engine.Register(NewWeightTotalRule())
	return engine
}
