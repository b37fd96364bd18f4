// internal/services/company_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

type CompanyService struct {
	db *gorm.DB
}

type UpdateCompanyRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=255"`
	BaseCurrency *string `json:"base_currency,omitempty" validate:"omitempty,len=3"`
	Country      *string `json:"country,omitempty" validate:"omitempty,max=100"`
}

func NewCompanyService(db *gorm.DB) *CompanyService {
	return &CompanyService{db: db}
}

func (s *CompanyService) GetCompany(companyID uuid.UUID) (*models.Company, error) {
	var company models.Company
	if err := s.db.First(&company, "id = ?", companyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: company", ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &company, nil
}

// UpdateCompany edits company settings. Changing the base currency does not
// rewrite amount_in_base_currency on existing expenses; conversions are
// frozen at expense creation time.
func (s *CompanyService) UpdateCompany(companyID uuid.UUID, req *UpdateCompanyRequest) (*models.Company, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	company, err := s.GetCompany(companyID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		company.Name = *req.Name
	}
	if req.BaseCurrency != nil {
		company.BaseCurrency = *req.BaseCurrency
	}
	if req.Country != nil {
		company.Country = *req.Country
	}

	if err := s.db.Save(company).Error; err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}
	return company, nil
}
