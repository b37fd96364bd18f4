// internal/services/expense_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/expenseflow/expenseflow-backend/internal/database"
	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

// ExpenseService owns the expense lifecycle: creation with base-currency
// conversion, draft editing, submission into the approval workflow, and the
// approval queue / history read paths. Approver decisions are delegated to
// the workflow engine.
type ExpenseService struct {
	db        *gorm.DB
	converter CurrencyConverter
	workflow  *ApprovalWorkflowService
}

type ExpenseLineInput struct {
	ItemDescription string  `json:"item_description" validate:"required,max=500"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
}

type CreateExpenseRequest struct {
	Amount       float64            `json:"amount" validate:"required,gt=0"`
	Currency     string             `json:"currency" validate:"required,len=3"`
	Category     string             `json:"category" validate:"required"`
	Description  string             `json:"description" validate:"required"`
	ExpenseDate  time.Time          `json:"expense_date" validate:"required"`
	PaidBy       string             `json:"paid_by,omitempty" validate:"omitempty,max=100"`
	Remarks      string             `json:"remarks,omitempty"`
	ExpenseLines []ExpenseLineInput `json:"expense_lines,omitempty" validate:"omitempty,dive"`
}

type UpdateExpenseRequest struct {
	Amount      *float64   `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Currency    *string    `json:"currency,omitempty" validate:"omitempty,len=3"`
	Category    *string    `json:"category,omitempty"`
	Description *string    `json:"description,omitempty"`
	ExpenseDate *time.Time `json:"expense_date,omitempty"`
	PaidBy      *string    `json:"paid_by,omitempty" validate:"omitempty,max=100"`
	Remarks     *string    `json:"remarks,omitempty"`
}

type SubmitExpenseRequest struct {
	ApprovalRuleID *uuid.UUID `json:"approval_rule_id,omitempty"`
}

type ActionRequest struct {
	Comments string `json:"comments,omitempty"`
}

func NewExpenseService(db *gorm.DB, converter CurrencyConverter, workflow *ApprovalWorkflowService) *ExpenseService {
	return &ExpenseService{db: db, converter: converter, workflow: workflow}
}

// CreateExpense persists a draft. The amount is converted into the company's
// base currency at creation time and the converted value is frozen on the
// record; a conversion failure aborts the creation entirely.
func (s *ExpenseService) CreateExpense(req *CreateExpenseRequest, employee *models.User) (*models.Expense, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	category := models.ExpenseCategory(req.Category)
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, req.Category)
	}

	var company models.Company
	if err := s.db.First(&company, "id = ?", employee.CompanyID).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	baseAmount := req.Amount
	if req.Currency != company.BaseCurrency {
		converted, err := s.converter.Convert(req.Amount, req.Currency, company.BaseCurrency)
		if err != nil {
			return nil, err
		}
		baseAmount = converted
	}

	expense := models.Expense{
		EmployeeID:           employee.ID,
		CompanyID:            employee.CompanyID,
		Amount:               req.Amount,
		Currency:             req.Currency,
		AmountInBaseCurrency: baseAmount,
		Category:             category,
		Description:          req.Description,
		ExpenseDate:          req.ExpenseDate,
		PaidBy:               req.PaidBy,
		Remarks:              req.Remarks,
		Status:               models.ExpenseStatusDraft,
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(&expense).Error; err != nil {
			return fmt.Errorf("failed to create expense: %w", err)
		}
		for _, line := range req.ExpenseLines {
			el := models.ExpenseLine{
				ExpenseID:       expense.ID,
				ItemDescription: line.ItemDescription,
				Amount:          line.Amount,
			}
			if err := tx.Create(&el).Error; err != nil {
				return fmt.Errorf("failed to create expense line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.db.Preload("ExpenseLines").First(&expense, "id = ?", expense.ID)
	return &expense, nil
}

// UpdateExpense edits a draft. Only the owning employee may edit, and only
// while the expense is still a draft. Changing amount or currency redoes the
// base-currency conversion.
func (s *ExpenseService) UpdateExpense(expenseID uuid.UUID, req *UpdateExpenseRequest, actor *models.User) (*models.Expense, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var expense models.Expense
	if err := s.db.First(&expense, "id = ?", expenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: expense", ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if expense.EmployeeID != actor.ID {
		return nil, fmt.Errorf("%w: only the owner may edit an expense", ErrAccessDenied)
	}
	if expense.Status != models.ExpenseStatusDraft {
		return nil, fmt.Errorf("%w: only draft expenses can be edited", ErrInvalidState)
	}

	if req.Amount != nil {
		expense.Amount = *req.Amount
	}
	if req.Currency != nil {
		expense.Currency = *req.Currency
	}
	if req.Category != nil {
		category := models.ExpenseCategory(*req.Category)
		if !category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, *req.Category)
		}
		expense.Category = category
	}
	if req.Description != nil {
		expense.Description = *req.Description
	}
	if req.ExpenseDate != nil {
		expense.ExpenseDate = *req.ExpenseDate
	}
	if req.PaidBy != nil {
		expense.PaidBy = *req.PaidBy
	}
	if req.Remarks != nil {
		expense.Remarks = *req.Remarks
	}

	if req.Amount != nil || req.Currency != nil {
		var company models.Company
		if err := s.db.First(&company, "id = ?", expense.CompanyID).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		expense.AmountInBaseCurrency = expense.Amount
		if expense.Currency != company.BaseCurrency {
			converted, err := s.converter.Convert(expense.Amount, expense.Currency, company.BaseCurrency)
			if err != nil {
				return nil, err
			}
			expense.AmountInBaseCurrency = converted
		}
	}

	if err := s.db.Save(&expense).Error; err != nil {
		return nil, fmt.Errorf("failed to update expense: %w", err)
	}
	return &expense, nil
}

// SubmitExpense moves a draft to submitted and hands it to the workflow
// engine for routing. When no rule can be resolved the expense stays in
// submitted so the caller can see it was accepted but not yet routed.
func (s *ExpenseService) SubmitExpense(expenseID uuid.UUID, req *SubmitExpenseRequest, actor *models.User) (*models.Expense, error) {
	var expense models.Expense
	if err := s.db.Preload("Employee").First(&expense, "id = ?", expenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: expense", ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if expense.EmployeeID != actor.ID {
		return nil, fmt.Errorf("%w: only the owner may submit an expense", ErrAccessDenied)
	}
	if expense.Status != models.ExpenseStatusDraft {
		return nil, fmt.Errorf("%w: only draft expenses can be submitted", ErrInvalidState)
	}

	now := time.Now().UTC()
	expense.Status = models.ExpenseStatusSubmitted
	expense.SubmittedAt = &now
	if err := s.db.Save(&expense).Error; err != nil {
		return nil, fmt.Errorf("failed to submit expense: %w", err)
	}

	var ruleID *uuid.UUID
	if req != nil {
		ruleID = req.ApprovalRuleID
	}
	if err := s.workflow.InitiateApproval(&expense, ruleID); err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			// Accepted but unrouted; surfaced to the caller alongside the
			// submitted expense.
			return &expense, err
		}
		return nil, err
	}

	return &expense, nil
}

// ApproveExpense and RejectExpense are thin fronts over the workflow engine.

func (s *ExpenseService) ApproveExpense(expenseID uuid.UUID, actor *models.User, comments string) (*models.Expense, error) {
	return s.workflow.ProcessAction(expenseID, actor, models.ApprovalActionApproved, comments)
}

func (s *ExpenseService) RejectExpense(expenseID uuid.UUID, actor *models.User, comments string) (*models.Expense, error) {
	return s.workflow.ProcessAction(expenseID, actor, models.ApprovalActionRejected, comments)
}

// GetUserExpenses lists the caller's own expenses, newest first, optionally
// filtered by status.
func (s *ExpenseService) GetUserExpenses(actor *models.User, params utils.PaginationParams) ([]models.Expense, int64, error) {
	query := s.db.Model(&models.Expense{}).Where("employee_id = ?", actor.ID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	var expenses []models.Expense
	query = utils.ApplyPagination(query, params).
		Preload("ExpenseLines").Preload("CurrentApprover")
	query = utils.ApplySort(query, params, []string{"created_at", "expense_date", "amount"})
	if err := query.Find(&expenses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch expenses: %w", err)
	}
	return expenses, total, nil
}

// GetPendingApprovals returns every pending expense the caller can act on
// right now: sequential expenses where they are the current approver, plus
// parallel expenses whose rule lists them and where they have not voted yet.
func (s *ExpenseService) GetPendingApprovals(actor *models.User) ([]models.Expense, error) {
	var sequential []models.Expense
	if err := s.db.Preload("Employee").Preload("ExpenseLines").
		Where("company_id = ? AND status = ? AND current_approver_id = ?",
			actor.CompanyID, models.ExpenseStatusPendingApproval, actor.ID).
		Order("submitted_at").
		Find(&sequential).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch pending approvals: %w", err)
	}

	// Parallel expenses carry no current_approver; membership comes from the
	// rule's approver list, minus expenses the caller already voted on.
	var parallel []models.Expense
	err := s.db.Preload("Employee").Preload("ExpenseLines").
		Joins("JOIN approval_rules ON approval_rules.id = expenses.approval_rule_id").
		Joins("JOIN rule_approvers ON rule_approvers.approval_rule_id = approval_rules.id").
		Where("expenses.company_id = ? AND expenses.status = ? AND expenses.current_approver_id IS NULL",
			actor.CompanyID, models.ExpenseStatusPendingApproval).
		Where("approval_rules.is_sequential = ?", false).
		Where("rule_approvers.approver_id = ? AND rule_approvers.deleted_at IS NULL", actor.ID).
		Where("NOT EXISTS (SELECT 1 FROM approval_histories WHERE approval_histories.expense_id = expenses.id AND approval_histories.approver_id = ?)", actor.ID).
		Order("expenses.submitted_at").
		Find(&parallel).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending approvals: %w", err)
	}

	return append(sequential, parallel...), nil
}

// GetExpenseByID reads one expense with its relations, enforcing the access
// guard: owner, an approver on its rule, or a company admin.
func (s *ExpenseService) GetExpenseByID(expenseID uuid.UUID, actor *models.User) (*models.Expense, error) {
	var expense models.Expense
	err := s.db.Preload("Employee").Preload("CurrentApprover").
		Preload("ApprovalRule.RuleApprovers.Approver").
		Preload("ApprovalHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_step")
		}).
		Preload("ApprovalHistory.Approver").
		Preload("ExpenseLines").
		Where("id = ? AND company_id = ?", expenseID, actor.CompanyID).
		First(&expense).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: expense", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !s.canViewExpense(&expense, actor) {
		return nil, fmt.Errorf("%w: you may not view this expense", ErrAccessDenied)
	}
	return &expense, nil
}

func (s *ExpenseService) canViewExpense(expense *models.Expense, actor *models.User) bool {
	if actor.Role == models.UserRoleAdmin {
		return true
	}
	if expense.EmployeeID == actor.ID {
		return true
	}
	if expense.CurrentApproverID != nil && *expense.CurrentApproverID == actor.ID {
		return true
	}
	if expense.ApprovalRule != nil {
		for _, ra := range expense.ApprovalRule.RuleApprovers {
			if ra.ApproverID == actor.ID {
				return true
			}
		}
	}
	return false
}

// GetApprovalHistory returns the expense's ledger in step order, subject to
// the same access guard as the expense itself.
func (s *ExpenseService) GetApprovalHistory(expenseID uuid.UUID, actor *models.User) ([]models.ApprovalHistory, error) {
	if _, err := s.GetExpenseByID(expenseID, actor); err != nil {
		return nil, err
	}

	var history []models.ApprovalHistory
	if err := s.db.Preload("Approver").
		Where("expense_id = ?", expenseID).
		Order("sequence_step").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch approval history: %w", err)
	}
	return history, nil
}

// AttachReceipt stores the uploaded receipt's URL and storage key on the
// expense. Uploads are allowed while the expense is not terminal. The key of
// a replaced receipt is returned so the caller can clean up the old object.
func (s *ExpenseService) AttachReceipt(expenseID uuid.UUID, receiptURL, receiptKey string, actor *models.User) (*models.Expense, string, error) {
	var expense models.Expense
	if err := s.db.First(&expense, "id = ?", expenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("%w: expense", ErrNotFound)
		}
		return nil, "", fmt.Errorf("database error: %w", err)
	}

	if expense.EmployeeID != actor.ID {
		return nil, "", fmt.Errorf("%w: only the owner may attach a receipt", ErrAccessDenied)
	}
	if expense.Status.IsTerminal() {
		return nil, "", fmt.Errorf("%w: expense is already %s", ErrInvalidState, expense.Status)
	}

	replacedKey := expense.ReceiptKey
	expense.ReceiptURL = receiptURL
	expense.ReceiptKey = receiptKey
	if err := s.db.Save(&expense).Error; err != nil {
		return nil, "", fmt.Errorf("failed to attach receipt: %w", err)
	}
	return &expense, replacedKey, nil
}
