// internal/services/approval_service.go
package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/expenseflow/expenseflow-backend/internal/database"
	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

// ApprovalWorkflowService is the state machine over Expense.status. It owns
// rule selection at submission, next-approver computation and terminal-state
// determination. Status transitions and ledger appends for approver actions
// run in a single transaction; notification dispatch is fire-and-forget.
type ApprovalWorkflowService struct {
	db       *gorm.DB
	notifier Notifier

	// legacyParallelSingleVote reproduces the historical parallel-mode
	// behavior where the first "approved" vote resolves the whole expense,
	// ignoring minimum_approval_percentage. Off by default; kept for
	// compatibility testing against deployments of the old behavior.
	legacyParallelSingleVote bool
}

func NewApprovalWorkflowService(db *gorm.DB, notifier Notifier, legacyParallelSingleVote bool) *ApprovalWorkflowService {
	return &ApprovalWorkflowService{
		db:                       db,
		notifier:                 notifier,
		legacyParallelSingleVote: legacyParallelSingleVote,
	}
}

// InitiateApproval starts the approval workflow for a freshly submitted
// expense. With an explicit rule id the rule is looked up in the expense's
// company scope; without one the company's oldest rule is used as a
// fallback. No usable rule leaves the expense submitted and unrouted.
func (s *ApprovalWorkflowService) InitiateApproval(expense *models.Expense, ruleID *uuid.UUID) error {
	rule, err := s.resolveRule(expense, ruleID)
	if err != nil {
		return err
	}

	expense.ApprovalRuleID = &rule.ID

	if rule.IsSequential {
		return s.routeSequential(expense, rule)
	}
	return s.routeParallel(expense, rule)
}

func (s *ApprovalWorkflowService) resolveRule(expense *models.Expense, ruleID *uuid.UUID) (*models.ApprovalRule, error) {
	var rule models.ApprovalRule

	if ruleID != nil {
		err := s.db.Preload("RuleApprovers.Approver").
			Where("id = ? AND company_id = ?", *ruleID, expense.CompanyID).
			First(&rule).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: approval rule", ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		return &rule, nil
	}

	// Fallback: oldest rule of the company. Non-deterministic in intent
	// when several rules exist, so callers should pass an explicit rule id.
	var candidates int64
	s.db.Model(&models.ApprovalRule{}).Where("company_id = ?", expense.CompanyID).Count(&candidates)

	err := s.db.Preload("RuleApprovers.Approver").
		Where("company_id = ?", expense.CompanyID).
		Order("created_at").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if candidates > 1 {
		logrus.WithFields(logrus.Fields{
			"expense_id": expense.ID,
			"rule_id":    rule.ID,
			"candidates": candidates,
		}).Warn("No rule id supplied; falling back to oldest company rule (deprecated, pass approval_rule_id)")
	}

	return &rule, nil
}

func (s *ApprovalWorkflowService) routeSequential(expense *models.Expense, rule *models.ApprovalRule) error {
	approvers := sortedApprovers(rule.RuleApprovers)
	if len(approvers) == 0 {
		// A rule with no approvers cannot route; the expense stays
		// submitted until the rule gains approvers and it is resubmitted.
		logrus.WithFields(logrus.Fields{"expense_id": expense.ID, "rule_id": rule.ID}).
			Warn("Sequential rule has no approvers; expense left unrouted")
		return s.db.Save(expense).Error
	}

	first := approvers[0]
	expense.CurrentApproverID = &first.ApproverID
	expense.Status = models.ExpenseStatusPendingApproval

	if err := s.db.Save(expense).Error; err != nil {
		return fmt.Errorf("failed to route expense: %w", err)
	}

	s.dispatchApprovalRequested(expense, first.Approver)
	return nil
}

func (s *ApprovalWorkflowService) routeParallel(expense *models.Expense, rule *models.ApprovalRule) error {
	// All approvers act concurrently; the single-valued current_approver
	// field cannot represent that, so it stays null and authorization
	// checks rule-approver membership instead.
	expense.CurrentApproverID = nil
	expense.Status = models.ExpenseStatusPendingApproval

	if err := s.db.Save(expense).Error; err != nil {
		return fmt.Errorf("failed to route expense: %w", err)
	}

	for _, ra := range rule.RuleApprovers {
		s.dispatchApprovalRequested(expense, ra.Approver)
	}
	return nil
}

// ProcessAction records an approver's decision and advances or terminates
// the workflow. The ledger count, ledger insert and status transition run as
// one transaction with a status-guarded update; a duplicate sequence_step
// from a concurrent actor is retried once against the fresh state.
func (s *ApprovalWorkflowService) ProcessAction(expenseID uuid.UUID, actor *models.User, action models.ApprovalAction, comments string) (*models.Expense, error) {
	// A rejection must tell the employee why.
	if action == models.ApprovalActionRejected && strings.TrimSpace(comments) == "" {
		return nil, fmt.Errorf("%w: a comment is required when rejecting an expense", ErrValidation)
	}

	var expense *models.Expense
	var err error

	for attempt := 0; attempt < 2; attempt++ {
		expense, err = s.processActionOnce(expenseID, actor, action, comments)
		if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			logrus.WithFields(logrus.Fields{"expense_id": expenseID, "actor_id": actor.ID}).
				Warn("Concurrent approval produced a sequence_step conflict; retrying")
			continue
		}
		break
	}

	return expense, err
}

func (s *ApprovalWorkflowService) processActionOnce(expenseID uuid.UUID, actor *models.User, action models.ApprovalAction, comments string) (*models.Expense, error) {
	var expense models.Expense
	var notify func()

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Preload("Employee").Preload("ApprovalRule.RuleApprovers.Approver").
			First(&expense, "id = ?", expenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: expense", ErrNotFound)
			}
			return fmt.Errorf("database error: %w", err)
		}

		if expense.Status != models.ExpenseStatusPendingApproval {
			return fmt.Errorf("%w: expense is %s, not pending approval", ErrInvalidState, expense.Status)
		}
		rule := expense.ApprovalRule
		if rule == nil {
			return fmt.Errorf("%w: expense has no approval rule", ErrInvalidState)
		}

		if err := s.authorizeActor(tx, &expense, rule, actor); err != nil {
			return err
		}

		// sequence_step = count of existing ledger entries + 1, computed
		// inside the transaction; the unique (expense_id, sequence_step)
		// index catches any interleaved writer.
		var existing int64
		if err := tx.Model(&models.ApprovalHistory{}).
			Where("expense_id = ?", expense.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to count approval history: %w", err)
		}

		entry := models.ApprovalHistory{
			ExpenseID:    expense.ID,
			ApproverID:   actor.ID,
			Action:       action,
			Comments:     comments,
			SequenceStep: int(existing) + 1,
			ApprovedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var err error
		notify, err = s.evaluateTransition(tx, &expense, rule, actor, action)
		if err != nil {
			return err
		}

		// Guarded update: only a still-pending expense may transition, so
		// a concurrent terminal decision cannot be overwritten.
		res := tx.Model(&models.Expense{}).
			Where("id = ? AND status = ?", expense.ID, models.ExpenseStatusPendingApproval).
			Updates(map[string]interface{}{
				"status":              expense.Status,
				"current_approver_id": expense.CurrentApproverID,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update expense: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: expense was resolved concurrently", ErrInvalidState)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if notify != nil {
		notify()
	}
	return &expense, nil
}

// authorizeActor enforces the routing mode's authorized actor set:
// sequential compares against current_approver, parallel checks membership
// in the rule's approver set and rejects double votes.
func (s *ApprovalWorkflowService) authorizeActor(tx *gorm.DB, expense *models.Expense, rule *models.ApprovalRule, actor *models.User) error {
	if rule.IsSequential {
		if expense.CurrentApproverID == nil || *expense.CurrentApproverID != actor.ID {
			return fmt.Errorf("%w: you are not the current approver for this expense", ErrNotAuthorizedApprover)
		}
		return nil
	}

	member := false
	for _, ra := range rule.RuleApprovers {
		if ra.ApproverID == actor.ID {
			member = true
			break
		}
	}
	if !member {
		return fmt.Errorf("%w: you are not an approver on this expense's rule", ErrNotAuthorizedApprover)
	}

	var acted int64
	if err := tx.Model(&models.ApprovalHistory{}).
		Where("expense_id = ? AND approver_id = ?", expense.ID, actor.ID).
		Count(&acted).Error; err != nil {
		return fmt.Errorf("failed to check prior actions: %w", err)
	}
	if acted > 0 {
		return fmt.Errorf("%w: you have already acted on this expense", ErrInvalidState)
	}

	return nil
}

// evaluateTransition mutates expense.Status/CurrentApproverID in memory and
// returns the notification to dispatch after commit.
func (s *ApprovalWorkflowService) evaluateTransition(tx *gorm.DB, expense *models.Expense, rule *models.ApprovalRule, actor *models.User, action models.ApprovalAction) (func(), error) {
	// A rejection by any single approver kills the chain in both modes.
	if action == models.ApprovalActionRejected {
		expense.Status = models.ExpenseStatusRejected
		expense.CurrentApproverID = nil
		return s.resolvedNotification(expense, "rejected"), nil
	}

	if rule.IsSequential {
		return s.advanceSequential(expense, rule, actor)
	}
	return s.tallyParallel(tx, expense, rule)
}

func (s *ApprovalWorkflowService) advanceSequential(expense *models.Expense, rule *models.ApprovalRule, actor *models.User) (func(), error) {
	approvers := sortedApprovers(rule.RuleApprovers)

	var current *models.RuleApprover
	for i := range approvers {
		if approvers[i].ApproverID == actor.ID {
			current = &approvers[i]
			break
		}
	}
	if current == nil {
		return nil, fmt.Errorf("%w: approver is not part of the rule", ErrNotAuthorizedApprover)
	}

	for i := range approvers {
		if approvers[i].SequenceOrder > current.SequenceOrder {
			next := approvers[i]
			expense.CurrentApproverID = &next.ApproverID
			return s.requestedNotification(expense, next.Approver), nil
		}
	}

	// Acting approver was last in the sequence.
	expense.Status = models.ExpenseStatusApproved
	expense.CurrentApproverID = nil
	return s.resolvedNotification(expense, "approved"), nil
}

func (s *ApprovalWorkflowService) tallyParallel(tx *gorm.DB, expense *models.Expense, rule *models.ApprovalRule) (func(), error) {
	if s.legacyParallelSingleVote {
		expense.Status = models.ExpenseStatusApproved
		expense.CurrentApproverID = nil
		return s.resolvedNotification(expense, "approved"), nil
	}

	var approvedBy []uuid.UUID
	if err := tx.Model(&models.ApprovalHistory{}).
		Where("expense_id = ? AND action = ?", expense.ID, models.ApprovalActionApproved).
		Distinct().Pluck("approver_id", &approvedBy).Error; err != nil {
		return nil, fmt.Errorf("failed to tally approvals: %w", err)
	}

	voted := make(map[uuid.UUID]bool, len(approvedBy))
	for _, id := range approvedBy {
		voted[id] = true
	}

	total := len(rule.RuleApprovers)
	percentage := 100
	if rule.MinimumApprovalPercentage != nil {
		percentage = *rule.MinimumApprovalPercentage
	}
	threshold := (percentage*total + 99) / 100 // ceil(P/100 * N)

	if len(approvedBy) < threshold {
		return nil, nil // remain pending_approval
	}

	// Required approvers must individually consent regardless of the
	// percentage threshold.
	for _, ra := range rule.RuleApprovers {
		if ra.IsRequired && !voted[ra.ApproverID] {
			return nil, nil
		}
	}

	expense.Status = models.ExpenseStatusApproved
	expense.CurrentApproverID = nil
	return s.resolvedNotification(expense, "approved"), nil
}

// Notification dispatch. Best-effort: failures are logged, never returned,
// and never roll back the transition that triggered them.

func (s *ApprovalWorkflowService) dispatchApprovalRequested(expense *models.Expense, approver models.User) {
	if s.notifier == nil {
		return
	}
	snapshot := snapshotExpense(expense)
	go func() {
		if err := s.notifier.NotifyApprovalRequested(snapshot, approver.Name, approver.Email); err != nil {
			logrus.WithError(err).WithField("expense_id", snapshot.ID).Warn("Approval-requested notification failed")
		}
	}()
}

func (s *ApprovalWorkflowService) requestedNotification(expense *models.Expense, approver models.User) func() {
	return func() { s.dispatchApprovalRequested(expense, approver) }
}

func (s *ApprovalWorkflowService) resolvedNotification(expense *models.Expense, outcome string) func() {
	if s.notifier == nil {
		return nil
	}
	snapshot := snapshotExpense(expense)
	return func() {
		go func() {
			if err := s.notifier.NotifyExpenseResolved(snapshot, outcome); err != nil {
				logrus.WithError(err).WithField("expense_id", snapshot.ID).Warn("Resolution notification failed")
			}
		}()
	}
}

func snapshotExpense(expense *models.Expense) ExpenseSnapshot {
	return ExpenseSnapshot{
		ID:            expense.ID,
		Description:   expense.Description,
		Amount:        expense.Amount,
		Currency:      expense.Currency,
		Category:      string(expense.Category),
		EmployeeName:  expense.Employee.Name,
		EmployeeEmail: expense.Employee.Email,
	}
}

// sortedApprovers orders a rule's approvers by sequence_order with
// created_at breaking ties, so routing is deterministic even for
// badly-configured rules with duplicate orders.
func sortedApprovers(approvers []models.RuleApprover) []models.RuleApprover {
	sorted := make([]models.RuleApprover, len(approvers))
	copy(sorted, approvers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SequenceOrder != sorted[j].SequenceOrder {
			return sorted[i].SequenceOrder < sorted[j].SequenceOrder
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// ApprovalRuleService owns rule CRUD for company admins.
type ApprovalRuleService struct {
	db *gorm.DB
}

type RuleApproverInput struct {
	ApproverID    uuid.UUID `json:"approver_id" validate:"required"`
	SequenceOrder int       `json:"sequence_order" validate:"required,min=1"`
	IsRequired    bool      `json:"is_required"`
}

type CreateRuleRequest struct {
	RuleName                  string              `json:"rule_name" validate:"required,max=255"`
	Description               string              `json:"description,omitempty"`
	ManagerID                 uuid.UUID           `json:"manager_id" validate:"required"`
	IsManagerFirstApprover    *bool               `json:"is_manager_first_approver,omitempty"`
	IsSequential              *bool               `json:"is_sequential,omitempty"`
	MinimumApprovalPercentage *int                `json:"minimum_approval_percentage,omitempty" validate:"omitempty,min=0,max=100"`
	Approvers                 []RuleApproverInput `json:"approvers" validate:"required,min=1,dive"`
}

type UpdateRuleRequest struct {
	RuleName                  *string `json:"rule_name,omitempty" validate:"omitempty,max=255"`
	Description               *string `json:"description,omitempty"`
	IsManagerFirstApprover    *bool   `json:"is_manager_first_approver,omitempty"`
	IsSequential              *bool   `json:"is_sequential,omitempty"`
	MinimumApprovalPercentage *int    `json:"minimum_approval_percentage,omitempty" validate:"omitempty,min=0,max=100"`
}

func NewApprovalRuleService(db *gorm.DB) *ApprovalRuleService {
	return &ApprovalRuleService{db: db}
}

func (s *ApprovalRuleService) CreateRule(req *CreateRuleRequest, companyID uuid.UUID) (*models.ApprovalRule, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var manager models.User
	if err := s.db.Where("id = ? AND company_id = ?", req.ManagerID, companyID).First(&manager).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: manager", ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	rule := models.ApprovalRule{
		CompanyID:                 companyID,
		ManagerID:                 req.ManagerID,
		RuleName:                  req.RuleName,
		Description:               req.Description,
		IsManagerFirstApprover:    true,
		IsSequential:              true,
		MinimumApprovalPercentage: req.MinimumApprovalPercentage,
	}
	if req.IsManagerFirstApprover != nil {
		rule.IsManagerFirstApprover = *req.IsManagerFirstApprover
	}
	if req.IsSequential != nil {
		rule.IsSequential = *req.IsSequential
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(&rule).Error; err != nil {
			return fmt.Errorf("failed to create approval rule: %w", err)
		}

		for _, a := range req.Approvers {
			var approver models.User
			if err := tx.Where("id = ? AND company_id = ?", a.ApproverID, companyID).First(&approver).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: approver %s", ErrNotFound, a.ApproverID)
				}
				return fmt.Errorf("database error: %w", err)
			}

			ra := models.RuleApprover{
				ApprovalRuleID: rule.ID,
				ApproverID:     a.ApproverID,
				SequenceOrder:  a.SequenceOrder,
				IsRequired:     a.IsRequired,
			}
			if err := tx.Create(&ra).Error; err != nil {
				return fmt.Errorf("failed to create rule approver: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.db.Preload("RuleApprovers.Approver").Preload("Manager").First(&rule, "id = ?", rule.ID)
	return &rule, nil
}

func (s *ApprovalRuleService) GetRules(companyID uuid.UUID, params utils.PaginationParams) ([]models.ApprovalRule, int64, error) {
	query := s.db.Model(&models.ApprovalRule{}).Where("company_id = ?", companyID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count approval rules: %w", err)
	}

	var rules []models.ApprovalRule
	if err := utils.ApplyPagination(query, params).
		Preload("RuleApprovers.Approver").
		Order("created_at").
		Find(&rules).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch approval rules: %w", err)
	}
	return rules, total, nil
}

func (s *ApprovalRuleService) GetRuleByID(ruleID, companyID uuid.UUID) (*models.ApprovalRule, error) {
	var rule models.ApprovalRule
	if err := s.db.Preload("RuleApprovers.Approver").Preload("Manager").
		Where("id = ? AND company_id = ?", ruleID, companyID).
		First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: approval rule", ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &rule, nil
}

func (s *ApprovalRuleService) UpdateRule(ruleID uuid.UUID, req *UpdateRuleRequest, companyID uuid.UUID) (*models.ApprovalRule, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rule, err := s.GetRuleByID(ruleID, companyID)
	if err != nil {
		return nil, err
	}

	if req.RuleName != nil {
		rule.RuleName = *req.RuleName
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.IsManagerFirstApprover != nil {
		rule.IsManagerFirstApprover = *req.IsManagerFirstApprover
	}
	if req.IsSequential != nil {
		rule.IsSequential = *req.IsSequential
	}
	if req.MinimumApprovalPercentage != nil {
		rule.MinimumApprovalPercentage = req.MinimumApprovalPercentage
	}

	if err := s.db.Save(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to update approval rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a rule and its approver list. Deletion is blocked while
// any non-terminal expense references the rule, so in-flight routing can
// never lose its rule out from under it.
func (s *ApprovalRuleService) DeleteRule(ruleID, companyID uuid.UUID) error {
	rule, err := s.GetRuleByID(ruleID, companyID)
	if err != nil {
		return err
	}

	var active int64
	if err := s.db.Model(&models.Expense{}).
		Where("approval_rule_id = ? AND status IN (?, ?)",
			rule.ID, models.ExpenseStatusSubmitted, models.ExpenseStatusPendingApproval).
		Count(&active).Error; err != nil {
		return fmt.Errorf("failed to check active expenses: %w", err)
	}
	if active > 0 {
		return fmt.Errorf("%w: rule is referenced by %d active expense(s)", ErrValidation, active)
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Where("approval_rule_id = ?", rule.ID).Delete(&models.RuleApprover{}).Error; err != nil {
			return fmt.Errorf("failed to delete rule approvers: %w", err)
		}
		if err := tx.Delete(rule).Error; err != nil {
			return fmt.Errorf("failed to delete approval rule: %w", err)
		}
		return nil
	})
}
