// internal/handlers/approval_rule.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/expenseflow/expenseflow-backend/internal/services"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

type ApprovalRuleHandler struct {
	ruleService *services.ApprovalRuleService
}

func NewApprovalRuleHandler(ruleService *services.ApprovalRuleService) *ApprovalRuleHandler {
	return &ApprovalRuleHandler{
		ruleService: ruleService,
	}
}

// POST /approval-rules (admin)
func (h *ApprovalRuleHandler) CreateRule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	rule, err := h.ruleService.CreateRule(&req, actor.CompanyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, rule)
}

// GET /approval-rules (admin)
func (h *ApprovalRuleHandler) GetRules(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	rules, total, err := h.ruleService.GetRules(actor.CompanyID, params)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(rules, total, params))
}

// GET /approval-rules/:id (admin)
func (h *ApprovalRuleHandler) GetRule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	rule, err := h.ruleService.GetRuleByID(ruleID, actor.CompanyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, rule)
}

// PUT /approval-rules/:id (admin)
func (h *ApprovalRuleHandler) UpdateRule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	var req services.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	rule, err := h.ruleService.UpdateRule(ruleID, &req, actor.CompanyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, rule)
}

// DELETE /approval-rules/:id (admin)
func (h *ApprovalRuleHandler) DeleteRule(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	if err := h.ruleService.DeleteRule(ruleID, actor.CompanyID); err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "Approval rule deleted"})
}
