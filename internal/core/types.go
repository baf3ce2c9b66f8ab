package core

import "buildcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	ItemStatus         = domain.ItemStatus
	SubjectStatus      = domain.SubjectStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Project            = domain.Project
	Unit               = domain.Unit
	Phase              = domain.Phase
	WorkItem           = domain.WorkItem
	Contractor         = domain.Contractor
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	PersistentStore    = domain.PersistentStore
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
)

const (
	EntityProject    = domain.EntityProject
	EntityUnit       = domain.EntityUnit
	EntityPhase      = domain.EntityPhase
	EntityWorkItem   = domain.EntityWorkItem
	EntityContractor = domain.EntityContractor
)

const (
	ItemStatusNotStarted = domain.ItemStatusNotStarted
	ItemStatusInProgress = domain.ItemStatusInProgress
	ItemStatusCompleted  = domain.ItemStatusCompleted
	ItemStatusCancelled  = domain.ItemStatusCancelled
)

const (
	SubjectStatusPlanning   = domain.SubjectStatusPlanning
	SubjectStatusInProgress = domain.SubjectStatusInProgress
	SubjectStatusOnHold     = domain.SubjectStatusOnHold
	SubjectStatusCompleted  = domain.SubjectStatusCompleted
	SubjectStatusCancelled  = domain.SubjectStatusCancelled
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
