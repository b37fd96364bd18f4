// internal/services/auth_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/expenseflow/expenseflow-backend/internal/config"
	"github.com/expenseflow/expenseflow-backend/internal/database"
	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

// AuthService handles signup (which provisions the company), login and the
// password reset flow.
type AuthService struct {
	db           *gorm.DB
	cfg          *config.Config
	currency     *CurrencyService
	notification *NotificationService
}

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strong_password"`
	Country  string `json:"country" validate:"required,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	User         *models.User    `json:"user"`
	Company      *models.Company `json:"company,omitempty"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"` // in seconds
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,strong_password"`
}

func NewAuthService(db *gorm.DB, cfg *config.Config, currency *CurrencyService, notification *NotificationService) *AuthService {
	return &AuthService{
		db:           db,
		cfg:          cfg,
		currency:     currency,
		notification: notification,
	}
}

// Signup creates a company for the signing-up admin. The company's base
// currency comes from the admin's country; unknown countries (or a countries
// API outage) fall back to USD rather than failing signup.
func (s *AuthService) Signup(req *SignupRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var existing models.User
	if err := s.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("%w: user with this email already exists", ErrValidation)
	}

	baseCurrency := "USD"
	if country, err := s.currency.GetCountryCurrency(req.Country); err != nil {
		logrus.WithError(err).Warn("Country lookup failed during signup; defaulting base currency to USD")
	} else if country != nil {
		baseCurrency = country.Currency
	}

	company := models.Company{
		Name:         fmt.Sprintf("%s's Company", req.Name),
		BaseCurrency: baseCurrency,
		Country:      req.Country,
	}
	user := models.User{
		Name:     req.Name,
		Email:    req.Email,
		Role:     models.UserRoleAdmin,
		IsActive: true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(&company).Error; err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		user.CompanyID = company.ID
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.buildAuthResponse(&user, &company)
}

func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var user models.User
	if err := s.db.Preload("Company").Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("invalid email or password")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !user.IsActive {
		return nil, errors.New("account is deactivated")
	}
	if err := user.CheckPassword(req.Password); err != nil {
		return nil, errors.New("invalid email or password")
	}

	return s.buildAuthResponse(&user, &user.Company)
}

// ForgotPassword issues a reset token and emails it. It never reveals
// whether the address is registered.
func (s *AuthService) ForgotPassword(req *ForgotPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return nil
	}

	resetToken, err := utils.GenerateVerificationCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	tokenHash := utils.HashString(resetToken)
	expiresAt := time.Now().Add(1 * time.Hour)
	user.ResetTokenHash = &tokenHash
	user.ResetTokenExpiresAt = &expiresAt
	if err := s.db.Save(&user).Error; err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	go func() {
		if err := s.notification.SendPasswordResetEmail(user.Email, user.Name, resetToken); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Warn("Password reset email failed")
		}
	}()

	return nil
}

func (s *AuthService) ResetPassword(req *ResetPasswordRequest) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	tokenHash := utils.HashString(req.Token)
	var user models.User
	if err := s.db.Where("reset_token_hash = ?", tokenHash).First(&user).Error; err != nil {
		return errors.New("invalid or expired reset token")
	}
	if user.ResetTokenExpiresAt == nil || time.Now().After(*user.ResetTokenExpiresAt) {
		return errors.New("reset token has expired")
	}

	if err := user.SetPassword(req.NewPassword); err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.ResetTokenHash = nil
	user.ResetTokenExpiresAt = nil

	if err := s.db.Save(&user).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func (s *AuthService) buildAuthResponse(user *models.User, company *models.Company) (*AuthResponse, error) {
	accessToken, err := utils.GenerateJWT(
		user.ID,
		user.CompanyID,
		string(user.Role),
		s.cfg.JWT.AccessTokenTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := utils.GenerateRefreshToken(user.ID, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &AuthResponse{
		User:         user,
		Company:      company,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.cfg.JWT.AccessTokenTTL * 3600,
	}, nil
}

// RefreshToken exchanges a valid refresh token for a fresh token pair.
func (s *AuthService) RefreshToken(refreshToken string) (*AuthResponse, error) {
	userID, err := utils.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	var user models.User
	if err := s.db.Preload("Company").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !user.IsActive {
		return nil, errors.New("account is deactivated")
	}

	return s.buildAuthResponse(&user, &user.Company)
}
