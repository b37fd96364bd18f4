// internal/models/expense.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Expense struct {
	BaseModel
	EmployeeID        uuid.UUID  `json:"employee_id" gorm:"type:uuid;not null;index"`
	CompanyID         uuid.UUID  `json:"company_id" gorm:"type:uuid;not null;index"`
	CurrentApproverID *uuid.UUID `json:"current_approver_id" gorm:"type:uuid;index"`
	ApprovalRuleID    *uuid.UUID `json:"approval_rule_id" gorm:"type:uuid;index"`

	Amount               float64         `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency             string          `json:"currency" gorm:"size:10;not null"`
	AmountInBaseCurrency float64         `json:"amount_in_base_currency" gorm:"type:decimal(10,2);not null"`
	Category             ExpenseCategory `json:"category" gorm:"type:varchar(30);not null"`
	Description          string          `json:"description" gorm:"type:text;not null"`
	ExpenseDate          time.Time       `json:"expense_date" gorm:"not null"`
	ReceiptURL           string          `json:"receipt_url,omitempty" gorm:"size:500"`
	ReceiptKey           string          `json:"-" gorm:"size:500"`
	PaidBy               string          `json:"paid_by,omitempty" gorm:"size:100"`
	Remarks              string          `json:"remarks,omitempty" gorm:"type:text"`

	Status      ExpenseStatus `json:"status" gorm:"type:varchar(20);default:'draft';index"`
	SubmittedAt *time.Time    `json:"submitted_at"`

	// Relationships
	Employee        User              `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
	Company         Company           `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	CurrentApprover *User             `json:"current_approver,omitempty" gorm:"foreignKey:CurrentApproverID"`
	ApprovalRule    *ApprovalRule     `json:"approval_rule,omitempty" gorm:"foreignKey:ApprovalRuleID"`
	ApprovalHistory []ApprovalHistory `json:"approval_history,omitempty" gorm:"foreignKey:ExpenseID;constraint:OnDelete:CASCADE"`
	ExpenseLines    []ExpenseLine     `json:"expense_lines,omitempty" gorm:"foreignKey:ExpenseID;constraint:OnDelete:CASCADE"`
}

type ExpenseLine struct {
	BaseModel
	ExpenseID       uuid.UUID `json:"expense_id" gorm:"type:uuid;not null;index"`
	ItemDescription string    `json:"item_description" gorm:"size:500;not null"`
	Amount          float64   `json:"amount" gorm:"type:decimal(10,2);not null"`

	// Relationships
	Expense Expense `json:"-" gorm:"foreignKey:ExpenseID"`
}
