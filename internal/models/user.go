// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	Name         string     `json:"name" gorm:"size:255;not null"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'employee'"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	CompanyID    uuid.UUID  `json:"company_id" gorm:"type:uuid;not null;index"`
	ManagerID    *uuid.UUID `json:"manager_id" gorm:"type:uuid;index"`

	// Password reset flow; token is stored hashed.
	ResetTokenHash      *string    `json:"-" gorm:"size:64;index"`
	ResetTokenExpiresAt *time.Time `json:"-"`

	// Relationships
	Company  Company   `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	Manager  *User     `json:"manager,omitempty" gorm:"foreignKey:ManagerID"`
	Expenses []Expense `json:"expenses,omitempty" gorm:"foreignKey:EmployeeID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
