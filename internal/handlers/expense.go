// internal/handlers/expense.go
package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/services"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

type ExpenseHandler struct {
	expenseService *services.ExpenseService
	storageService *services.StorageService
}

func NewExpenseHandler(expenseService *services.ExpenseService, storageService *services.StorageService) *ExpenseHandler {
	return &ExpenseHandler{
		expenseService: expenseService,
		storageService: storageService,
	}
}

// POST /expenses
func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	expense, err := h.expenseService.CreateExpense(&req, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, expense)
}

// GET /expenses/my-expenses
func (h *ExpenseHandler) GetMyExpenses(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	expenses, total, err := h.expenseService.GetUserExpenses(actor, params)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(expenses, total, params))
}

// GET /expenses/pending-approvals
func (h *ExpenseHandler) GetPendingApprovals(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenses, err := h.expenseService.GetPendingApprovals(actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, expenses)
}

// GET /expenses/:id
func (h *ExpenseHandler) GetExpense(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid expense ID", nil)
		return
	}

	expense, err := h.expenseService.GetExpenseByID(expenseID, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, expense)
}

// PATCH /expenses/:id
func (h *ExpenseHandler) UpdateExpense(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid expense ID", nil)
		return
	}

	var req services.UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	expense, err := h.expenseService.UpdateExpense(expenseID, &req, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, expense)
}

// POST /expenses/:id/submit
func (h *ExpenseHandler) SubmitExpense(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid expense ID", nil)
		return
	}

	var req services.SubmitExpenseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid input", err.Error())
			return
		}
	}

	expense, err := h.expenseService.SubmitExpense(expenseID, &req, actor)
	if err != nil {
		// No rule configured: the expense is accepted but stays unrouted.
		if errors.Is(err, services.ErrRuleNotFound) && expense != nil {
			utils.SuccessResponse(c, gin.H{
				"message": "Expense submitted but not routed: no approval rule is configured",
				"expense": expense,
			})
			return
		}
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "Expense submitted for approval",
		"expense": expense,
	})
}

// POST /expenses/:id/approve
func (h *ExpenseHandler) ApproveExpense(c *gin.Context) {
	h.handleAction(c, h.expenseService.ApproveExpense, "Expense approval recorded")
}

// POST /expenses/:id/reject
func (h *ExpenseHandler) RejectExpense(c *gin.Context) {
	h.handleAction(c, h.expenseService.RejectExpense, "Expense rejection recorded")
}

func (h *ExpenseHandler) handleAction(c *gin.Context, action func(uuid.UUID, *models.User, string) (*models.Expense, error), message string) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid expense ID", nil)
		return
	}

	var req services.ActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid input", err.Error())
			return
		}
	}

	expense, err := action(expenseID, actor, req.Comments)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": message,
		"expense": expense,
	})
}

// GET /expenses/:id/approval-history
func (h *ExpenseHandler) GetApprovalHistory(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid expense ID", nil)
		return
	}

	history, err := h.expenseService.GetApprovalHistory(expenseID, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, history)
}

// POST /expenses/:id/upload-receipt
func (h *ExpenseHandler) UploadReceipt(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid expense ID", nil)
		return
	}

	file, header, err := c.Request.FormFile("receipt")
	if err != nil {
		utils.BadRequestResponse(c, "Receipt file is required", nil)
		return
	}
	defer file.Close()

	result, err := h.storageService.UploadFile(file, header, services.ReceiptUploadOptions())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	expense, replacedKey, err := h.expenseService.AttachReceipt(expenseID, result.URL, result.Key, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// Best-effort cleanup of the object this upload replaced.
	if replacedKey != "" {
		go func() {
			if err := h.storageService.DeleteFile(replacedKey); err != nil {
				logrus.WithError(err).WithField("key", replacedKey).Warn("Failed to delete replaced receipt")
			}
		}()
	}

	utils.SuccessResponse(c, gin.H{
		"message": "Receipt uploaded",
		"receipt": result,
		"expense": expense,
	})
}

// GET /expenses/:id/receipt
func (h *ExpenseHandler) GetReceipt(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	expenseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid expense ID", nil)
		return
	}

	expense, err := h.expenseService.GetExpenseByID(expenseID, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if expense.ReceiptURL == "" {
		utils.NotFoundResponse(c, "Receipt")
		return
	}

	url, err := h.storageService.DownloadURL(expense.ReceiptKey, expense.ReceiptURL, 15*time.Minute)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"url": url})
}
