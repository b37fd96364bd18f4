// internal/services/approval_service_test.go
package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/expenseflow/expenseflow-backend/internal/database"
	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every session on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.RunMigrations(db))
	return db
}

var emailSeq int

func seedCompany(t *testing.T, db *gorm.DB, baseCurrency string) *models.Company {
	t.Helper()
	company := &models.Company{Name: "Acme Corp", BaseCurrency: baseCurrency, Country: "United States"}
	require.NoError(t, db.Create(company).Error)
	return company
}

func seedUser(t *testing.T, db *gorm.DB, company *models.Company, name string, role models.UserRole) *models.User {
	t.Helper()
	emailSeq++
	user := &models.User{
		Name:      name,
		Email:     fmt.Sprintf("%s.%d@acme.test", name, emailSeq),
		Role:      role,
		IsActive:  true,
		CompanyID: company.ID,
	}
	require.NoError(t, user.SetPassword("Sup3rSecret!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

type ruleApproverSpec struct {
	user     *models.User
	order    int
	required bool
}

func seedRule(t *testing.T, db *gorm.DB, company *models.Company, manager *models.User, sequential bool, minPct *int, approvers ...ruleApproverSpec) *models.ApprovalRule {
	t.Helper()
	rule := &models.ApprovalRule{
		CompanyID:                 company.ID,
		ManagerID:                 manager.ID,
		RuleName:                  "Default rule",
		IsSequential:              sequential,
		MinimumApprovalPercentage: minPct,
	}
	require.NoError(t, db.Create(rule).Error)
	for _, a := range approvers {
		ra := &models.RuleApprover{
			ApprovalRuleID: rule.ID,
			ApproverID:     a.user.ID,
			SequenceOrder:  a.order,
			IsRequired:     a.required,
		}
		require.NoError(t, db.Create(ra).Error)
	}
	require.NoError(t, db.Preload("RuleApprovers.Approver").First(rule, "id = ?", rule.ID).Error)
	return rule
}

// fixedRateConverter converts using a static table keyed by "FROM->TO".
type fixedRateConverter struct {
	rates map[string]float64
	err   error
}

func (f *fixedRateConverter) Convert(amount float64, from, to string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	rate, ok := f.rates[from+"->"+to]
	if !ok {
		return 0, fmt.Errorf("%w: no rate for %s to %s", ErrConversionFailed, from, to)
	}
	return amount * rate, nil
}

func newTestConverter() *fixedRateConverter {
	return &fixedRateConverter{rates: map[string]float64{"EUR->USD": 1.1, "GBP->USD": 1.25}}
}

func newTestServices(t *testing.T, db *gorm.DB) (*ExpenseService, *ApprovalWorkflowService) {
	t.Helper()
	workflow := NewApprovalWorkflowService(db, nil, false)
	return NewExpenseService(db, newTestConverter(), workflow), workflow
}

func seedPendingExpense(t *testing.T, db *gorm.DB, svc *ExpenseService, employee *models.User, ruleID *uuid.UUID) *models.Expense {
	t.Helper()
	expense, err := svc.CreateExpense(&CreateExpenseRequest{
		Amount:      120,
		Currency:    "USD",
		Category:    string(models.CategoryTravel),
		Description: "Client visit train tickets",
		ExpenseDate: time.Now(),
	}, employee)
	require.NoError(t, err)

	expense, err = svc.SubmitExpense(expense.ID, &SubmitExpenseRequest{ApprovalRuleID: ruleID}, employee)
	require.NoError(t, err)
	return expense
}

func reloadExpense(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Expense {
	t.Helper()
	var expense models.Expense
	require.NoError(t, db.First(&expense, "id = ?", id).Error)
	return &expense
}

func ledgerFor(t *testing.T, db *gorm.DB, expenseID uuid.UUID) []models.ApprovalHistory {
	t.Helper()
	var history []models.ApprovalHistory
	require.NoError(t, db.Where("expense_id = ?", expenseID).Order("sequence_step").Find(&history).Error)
	return history
}

func TestSequentialFlowApprovesInOrder(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	a3 := seedUser(t, db, company, "approver3", models.UserRoleManager)
	rule := seedRule(t, db, company, admin, true, nil,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false}, ruleApproverSpec{a3, 3, false})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	assert.Equal(t, models.ExpenseStatusPendingApproval, expense.Status)
	require.NotNil(t, expense.CurrentApproverID)
	assert.Equal(t, a1.ID, *expense.CurrentApproverID)

	// Out-of-turn approver is rejected.
	_, err := workflow.ProcessAction(expense.ID, a2, models.ApprovalActionApproved, "")
	assert.ErrorIs(t, err, ErrNotAuthorizedApprover)

	updated, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "looks fine")
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentApproverID)
	assert.Equal(t, a2.ID, *updated.CurrentApproverID)
	assert.Equal(t, models.ExpenseStatusPendingApproval, updated.Status)

	_, err = workflow.ProcessAction(expense.ID, a2, models.ApprovalActionApproved, "")
	require.NoError(t, err)

	updated, err = workflow.ProcessAction(expense.ID, a3, models.ApprovalActionApproved, "final ok")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusApproved, updated.Status)
	assert.Nil(t, updated.CurrentApproverID)

	history := ledgerFor(t, db, expense.ID)
	require.Len(t, history, 3)
	for i, entry := range history {
		assert.Equal(t, i+1, entry.SequenceStep)
		assert.Equal(t, models.ApprovalActionApproved, entry.Action)
	}
	assert.Equal(t, a1.ID, history[0].ApproverID)
	assert.Equal(t, a2.ID, history[1].ApproverID)
	assert.Equal(t, a3.ID, history[2].ApproverID)

	// Terminal expense accepts no further actions.
	_, err = workflow.ProcessAction(expense.ID, a3, models.ApprovalActionApproved, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSequentialRejectionShortCircuits(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	a3 := seedUser(t, db, company, "approver3", models.UserRoleManager)
	rule := seedRule(t, db, company, admin, true, nil,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false}, ruleApproverSpec{a3, 3, false})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	_, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	require.NoError(t, err)

	updated, err := workflow.ProcessAction(expense.ID, a2, models.ApprovalActionRejected, "missing receipt")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusRejected, updated.Status)
	assert.Nil(t, updated.CurrentApproverID)

	// The chain never reaches the third approver.
	_, err = workflow.ProcessAction(expense.ID, a3, models.ApprovalActionApproved, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	history := ledgerFor(t, db, expense.ID)
	require.Len(t, history, 2)
	assert.Equal(t, models.ApprovalActionRejected, history[1].Action)
	assert.Equal(t, "missing receipt", history[1].Comments)
}

func TestParallelPercentageThreshold(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	a3 := seedUser(t, db, company, "approver3", models.UserRoleManager)
	pct := 50 // ceil(0.5 * 3) = 2 votes
	rule := seedRule(t, db, company, admin, false, &pct,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false}, ruleApproverSpec{a3, 3, false})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)
	assert.Nil(t, expense.CurrentApproverID)

	updated, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusPendingApproval, updated.Status)

	updated, err = workflow.ProcessAction(expense.ID, a3, models.ApprovalActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusApproved, updated.Status)

	history := ledgerFor(t, db, expense.ID)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].SequenceStep)
	assert.Equal(t, 2, history[1].SequenceStep)
}

func TestParallelRequiredApproverMustConsent(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	cfo := seedUser(t, db, company, "cfo", models.UserRoleManager)
	pct := 33 // one vote meets the percentage, but the CFO is required
	rule := seedRule(t, db, company, admin, false, &pct,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false}, ruleApproverSpec{cfo, 3, true})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	updated, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusPendingApproval, updated.Status)

	updated, err = workflow.ProcessAction(expense.ID, cfo, models.ApprovalActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusApproved, updated.Status)
}

func TestParallelLegacySingleVoteMode(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	pct := 100
	rule := seedRule(t, db, company, admin, false, &pct,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false})

	workflow := NewApprovalWorkflowService(db, nil, true)
	svc := NewExpenseService(db, newTestConverter(), workflow)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	// Legacy mode: the first vote resolves regardless of the threshold.
	updated, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusApproved, updated.Status)
}

func TestParallelDoubleVoteRejected(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	pct := 100
	rule := seedRule(t, db, company, admin, false, &pct,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	_, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	require.NoError(t, err)

	_, err = workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	// Outsiders are not in the rule's approver set.
	outsider := seedUser(t, db, company, "outsider", models.UserRoleEmployee)
	_, err = workflow.ProcessAction(expense.ID, outsider, models.ApprovalActionApproved, "")
	assert.ErrorIs(t, err, ErrNotAuthorizedApprover)
}

func TestParallelRejectionWins(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	pct := 50
	rule := seedRule(t, db, company, admin, false, &pct,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	_, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	require.NoError(t, err)

	updated, err := workflow.ProcessAction(expense.ID, a2, models.ApprovalActionRejected, "policy violation")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusRejected, updated.Status)
}

func TestSubmitWithoutRuleLeavesExpenseSubmitted(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)

	svc, _ := newTestServices(t, db)
	expense, err := svc.CreateExpense(&CreateExpenseRequest{
		Amount:      42,
		Currency:    "USD",
		Category:    string(models.CategoryFood),
		Description: "Team lunch",
		ExpenseDate: time.Now(),
	}, employee)
	require.NoError(t, err)

	submitted, err := svc.SubmitExpense(expense.ID, &SubmitExpenseRequest{}, employee)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	require.NotNil(t, submitted)
	assert.Equal(t, models.ExpenseStatusSubmitted, submitted.Status)
	assert.NotNil(t, submitted.SubmittedAt)

	persisted := reloadExpense(t, db, expense.ID)
	assert.Equal(t, models.ExpenseStatusSubmitted, persisted.Status)
}

func TestExplicitRuleIsScopedToCompany(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	other := seedCompany(t, db, "EUR")
	admin := seedUser(t, db, other, "admin", models.UserRoleAdmin)
	otherApprover := seedUser(t, db, other, "approver", models.UserRoleManager)
	foreignRule := seedRule(t, db, other, admin, true, nil, ruleApproverSpec{otherApprover, 1, false})

	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	svc, _ := newTestServices(t, db)
	expense, err := svc.CreateExpense(&CreateExpenseRequest{
		Amount:      10,
		Currency:    "USD",
		Category:    string(models.CategoryOther),
		Description: "Stationery",
		ExpenseDate: time.Now(),
	}, employee)
	require.NoError(t, err)

	_, err = svc.SubmitExpense(expense.ID, &SubmitExpenseRequest{ApprovalRuleID: &foreignRule.ID}, employee)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuleCreationValidation(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)

	svc := NewApprovalRuleService(db)

	// Empty approver list is rejected.
	_, err := svc.CreateRule(&CreateRuleRequest{
		RuleName:  "Empty rule",
		ManagerID: admin.ID,
		Approvers: []RuleApproverInput{},
	}, company.ID)
	assert.ErrorIs(t, err, ErrValidation)

	// Percentage out of range is rejected.
	pct := 150
	_, err = svc.CreateRule(&CreateRuleRequest{
		RuleName:                  "Bad percentage",
		ManagerID:                 admin.ID,
		MinimumApprovalPercentage: &pct,
		Approvers:                 []RuleApproverInput{{ApproverID: a1.ID, SequenceOrder: 1}},
	}, company.ID)
	assert.ErrorIs(t, err, ErrValidation)

	rule, err := svc.CreateRule(&CreateRuleRequest{
		RuleName:  "Manager approval",
		ManagerID: admin.ID,
		Approvers: []RuleApproverInput{{ApproverID: a1.ID, SequenceOrder: 1, IsRequired: true}},
	}, company.ID)
	require.NoError(t, err)
	require.Len(t, rule.RuleApprovers, 1)
	assert.True(t, rule.RuleApprovers[0].IsRequired)
	assert.True(t, rule.IsSequential)
}

func TestRuleDeletionBlockedWhileReferenced(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	rule := seedRule(t, db, company, admin, true, nil, ruleApproverSpec{a1, 1, false})

	svc, workflow := newTestServices(t, db)
	ruleSvc := NewApprovalRuleService(db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	err := ruleSvc.DeleteRule(rule.ID, company.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = workflow.ProcessAction(expense.ID, a1, models.ApprovalActionApproved, "")
	require.NoError(t, err)

	// Once the expense is terminal the rule can go.
	require.NoError(t, ruleSvc.DeleteRule(rule.ID, company.ID))

	_, err = ruleSvc.GetRuleByID(rule.ID, company.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectRequiresComment(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	rule := seedRule(t, db, company, admin, true, nil, ruleApproverSpec{a1, 1, false})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	_, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionRejected, "")
	assert.ErrorIs(t, err, ErrValidation)

	// Whitespace is not a comment either.
	_, err = workflow.ProcessAction(expense.ID, a1, models.ApprovalActionRejected, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	// The expense is untouched by the refused rejections.
	assert.Equal(t, models.ExpenseStatusPendingApproval, reloadExpense(t, db, expense.ID).Status)
	assert.Empty(t, ledgerFor(t, db, expense.ID))

	updated, err := workflow.ProcessAction(expense.ID, a1, models.ApprovalActionRejected, "no receipt attached")
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusRejected, updated.Status)
}

func TestConcurrentApprovalsKeepLedgerStepsDistinct(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	pct := 100
	rule := seedRule(t, db, company, admin, false, &pct,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 2, false})

	svc, workflow := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	// Both approvers vote at the same time. Whatever the interleaving, the
	// unique (expense_id, sequence_step) index plus the retry must yield two
	// ledger entries with distinct steps.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, approver := range []*models.User{a1, a2} {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			_, err := workflow.ProcessAction(expense.ID, u, models.ApprovalActionApproved, "")
			errs <- err
		}(approver)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history := ledgerFor(t, db, expense.ID)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].SequenceStep)
	assert.Equal(t, 2, history[1].SequenceStep)
	assert.NotEqual(t, history[0].ApproverID, history[1].ApproverID)

	assert.Equal(t, models.ExpenseStatusApproved, reloadExpense(t, db, expense.ID).Status)
}

func TestGetRulesPaginated(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	for i := 0; i < 3; i++ {
		seedRule(t, db, company, admin, true, nil, ruleApproverSpec{a1, 1, false})
	}

	svc := NewApprovalRuleService(db)

	rules, total, err := svc.GetRules(company.ID, utils.PaginationParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, rules, 2)

	rules, total, err = svc.GetRules(company.ID, utils.PaginationParams{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, rules, 1)
}

func TestSequentialTieBreakByCreation(t *testing.T) {
	db := setupTestDB(t)
	company := seedCompany(t, db, "USD")
	admin := seedUser(t, db, company, "admin", models.UserRoleAdmin)
	employee := seedUser(t, db, company, "employee", models.UserRoleEmployee)
	a1 := seedUser(t, db, company, "approver1", models.UserRoleManager)
	a2 := seedUser(t, db, company, "approver2", models.UserRoleManager)
	// Both approvers share sequence_order 1; the earlier row routes first.
	rule := seedRule(t, db, company, admin, true, nil,
		ruleApproverSpec{a1, 1, false}, ruleApproverSpec{a2, 1, false})

	svc, _ := newTestServices(t, db)
	expense := seedPendingExpense(t, db, svc, employee, &rule.ID)

	require.NotNil(t, expense.CurrentApproverID)
	assert.Equal(t, a1.ID, *expense.CurrentApproverID)
}
