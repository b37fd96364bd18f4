// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// IDs are generated application-side so the same schema works on postgres
// and the sqlite test databases.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Enums
type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleManager  UserRole = "manager"
	UserRoleEmployee UserRole = "employee"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleManager, UserRoleEmployee:
		return true
	}
	return false
}

type ExpenseStatus string

const (
	ExpenseStatusDraft           ExpenseStatus = "draft"
	ExpenseStatusSubmitted       ExpenseStatus = "submitted"
	ExpenseStatusPendingApproval ExpenseStatus = "pending_approval"
	ExpenseStatusApproved        ExpenseStatus = "approved"
	ExpenseStatusRejected        ExpenseStatus = "rejected"
)

// IsTerminal reports whether no further transition is defined out of s.
func (s ExpenseStatus) IsTerminal() bool {
	return s == ExpenseStatusApproved || s == ExpenseStatusRejected
}

type ExpenseCategory string

const (
	CategoryFood           ExpenseCategory = "Food"
	CategoryTravel         ExpenseCategory = "Travel"
	CategoryAccommodation  ExpenseCategory = "Accommodation"
	CategoryOfficeSupplies ExpenseCategory = "Office Supplies"
	CategoryOther          ExpenseCategory = "Other"
)

func (c ExpenseCategory) Valid() bool {
	switch c {
	case CategoryFood, CategoryTravel, CategoryAccommodation, CategoryOfficeSupplies, CategoryOther:
		return true
	}
	return false
}

type ApprovalAction string

const (
	ApprovalActionApproved ApprovalAction = "approved"
	ApprovalActionRejected ApprovalAction = "rejected"
)
