// internal/services/user_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

// UserService owns admin-side user provisioning inside a company. New users
// get a generated password delivered by email.
type UserService struct {
	db           *gorm.DB
	notification *NotificationService
}

type CreateUserRequest struct {
	Name      string     `json:"name" validate:"required,max=255"`
	Email     string     `json:"email" validate:"required,email"`
	Role      string     `json:"role" validate:"required,oneof=admin manager employee"`
	ManagerID *uuid.UUID `json:"manager_id,omitempty"`
}

type UpdateUserRequest struct {
	Name      *string    `json:"name,omitempty" validate:"omitempty,max=255"`
	Role      *string    `json:"role,omitempty" validate:"omitempty,oneof=admin manager employee"`
	ManagerID *uuid.UUID `json:"manager_id,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"`
}

func NewUserService(db *gorm.DB, notification *NotificationService) *UserService {
	return &UserService{db: db, notification: notification}
}

// CreateUser provisions a user in the admin's company with a random
// password, which is emailed to the new user.
func (s *UserService) CreateUser(req *CreateUserRequest, companyID uuid.UUID) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var existing models.User
	if err := s.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("%w: user with this email already exists", ErrValidation)
	}

	if req.ManagerID != nil {
		var manager models.User
		if err := s.db.Where("id = ? AND company_id = ?", *req.ManagerID, companyID).First(&manager).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: manager", ErrNotFound)
			}
			return nil, fmt.Errorf("database error: %w", err)
		}
	}

	password, err := utils.GenerateRandomPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}

	user := models.User{
		Name:      req.Name,
		Email:     req.Email,
		Role:      models.UserRole(req.Role),
		IsActive:  true,
		CompanyID: companyID,
		ManagerID: req.ManagerID,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	go func() {
		if err := s.notification.SendNewUserCredentials(user.Email, user.Name, password); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Warn("Credentials email failed")
		}
	}()

	return &user, nil
}

// GetUsers lists the company's users, optionally filtered by role.
func (s *UserService) GetUsers(companyID uuid.UUID, role string, params utils.PaginationParams) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{}).Where("company_id = ?", companyID)
	if role != "" {
		if !models.UserRole(role).Valid() {
			return nil, 0, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
		}
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	if err := utils.ApplyPagination(query, params).
		Preload("Manager").
		Order("created_at").
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}
	return users, total, nil
}

func (s *UserService) GetUserByID(userID, companyID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.Preload("Manager").
		Where("id = ? AND company_id = ?", userID, companyID).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *UserService) UpdateUser(userID uuid.UUID, req *UpdateUserRequest, companyID uuid.UUID) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	user, err := s.GetUserByID(userID, companyID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Role != nil {
		user.Role = models.UserRole(*req.Role)
	}
	if req.ManagerID != nil {
		if *req.ManagerID == user.ID {
			return nil, fmt.Errorf("%w: a user cannot be their own manager", ErrValidation)
		}
		var manager models.User
		if err := s.db.Where("id = ? AND company_id = ?", *req.ManagerID, companyID).First(&manager).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: manager", ErrNotFound)
			}
			return nil, fmt.Errorf("database error: %w", err)
		}
		user.ManagerID = req.ManagerID
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.db.Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteUser soft-deletes a user. Blocked while the user is the current
// approver on any pending expense, so in-flight routing never dangles.
func (s *UserService) DeleteUser(userID, companyID uuid.UUID, actor *models.User) error {
	if userID == actor.ID {
		return fmt.Errorf("%w: you cannot delete your own account", ErrValidation)
	}

	user, err := s.GetUserByID(userID, companyID)
	if err != nil {
		return err
	}

	var pending int64
	if err := s.db.Model(&models.Expense{}).
		Where("current_approver_id = ? AND status = ?", user.ID, models.ExpenseStatusPendingApproval).
		Count(&pending).Error; err != nil {
		return fmt.Errorf("failed to check pending approvals: %w", err)
	}
	if pending > 0 {
		return fmt.Errorf("%w: user is the current approver on %d pending expense(s)", ErrValidation, pending)
	}

	if err := s.db.Delete(user).Error; err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// SendNewPassword regenerates a user's password and emails it, the admin
// path for a lockout.
func (s *UserService) SendNewPassword(userID, companyID uuid.UUID) error {
	user, err := s.GetUserByID(userID, companyID)
	if err != nil {
		return err
	}

	password, err := utils.GenerateRandomPassword()
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}
	if err := user.SetPassword(password); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	go func() {
		if err := s.notification.SendNewPassword(user.Email, user.Name, password); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Warn("New password email failed")
		}
	}()

	return nil
}
