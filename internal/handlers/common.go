// internal/handlers/common.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/services"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

// actorFromContext rebuilds the acting user from the JWT claims set by the
// auth middleware. Services only rely on ID, CompanyID and Role, so no
// database round trip is needed per request.
func actorFromContext(c *gin.Context) (*models.User, bool) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return nil, false
	}
	companyID, ok := utils.GetCompanyIDFromContext(c)
	if !ok {
		return nil, false
	}
	role, ok := utils.GetRoleFromContext(c)
	if !ok {
		return nil, false
	}

	actor := &models.User{
		Role:      models.UserRole(role),
		CompanyID: companyID,
	}
	actor.ID = userID
	return actor, true
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.BadRequestResponse(c, err.Error(), nil)
	case errors.Is(err, services.ErrConversionFailed):
		utils.BadRequestResponse(c, err.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		utils.ErrorResponse(c, 404, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, services.ErrAccessDenied):
		utils.ForbiddenResponse(c, err.Error())
	case errors.Is(err, services.ErrNotAuthorizedApprover):
		utils.ForbiddenResponse(c, err.Error())
	case errors.Is(err, services.ErrInvalidState):
		utils.ConflictResponse(c, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled service error")
		utils.InternalErrorResponse(c, "")
	}
}
