// internal/handlers/company.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/expenseflow/expenseflow-backend/internal/services"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

type CompanyHandler struct {
	companyService *services.CompanyService
}

func NewCompanyHandler(companyService *services.CompanyService) *CompanyHandler {
	return &CompanyHandler{
		companyService: companyService,
	}
}

// GET /company
func (h *CompanyHandler) GetCompany(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	company, err := h.companyService.GetCompany(actor.CompanyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, company)
}

// PATCH /company (admin)
func (h *CompanyHandler) UpdateCompany(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.UpdateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid input", err.Error())
		return
	}

	company, err := h.companyService.UpdateCompany(actor.CompanyID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, company)
}
