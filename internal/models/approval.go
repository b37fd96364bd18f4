// internal/models/approval.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalRule struct {
	BaseModel
	CompanyID uuid.UUID `json:"company_id" gorm:"type:uuid;not null;index"`
	ManagerID uuid.UUID `json:"manager_id" gorm:"type:uuid;not null"`

	RuleName               string `json:"rule_name" gorm:"size:255;not null"`
	Description            string `json:"description,omitempty" gorm:"type:text"`
	IsManagerFirstApprover bool   `json:"is_manager_first_approver" gorm:"default:true"`
	IsSequential           bool   `json:"is_sequential" gorm:"default:true"`
	// 0-100; meaningful for parallel rules only, nil means unanimous.
	MinimumApprovalPercentage *int `json:"minimum_approval_percentage"`

	// Relationships
	Company       Company        `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	Manager       User           `json:"manager,omitempty" gorm:"foreignKey:ManagerID"`
	RuleApprovers []RuleApprover `json:"rule_approvers,omitempty" gorm:"foreignKey:ApprovalRuleID;constraint:OnDelete:CASCADE"`
	Expenses      []Expense      `json:"expenses,omitempty" gorm:"foreignKey:ApprovalRuleID"`
}

type RuleApprover struct {
	BaseModel
	ApprovalRuleID uuid.UUID `json:"approval_rule_id" gorm:"type:uuid;not null;index"`
	ApproverID     uuid.UUID `json:"approver_id" gorm:"type:uuid;not null;index"`

	SequenceOrder int  `json:"sequence_order" gorm:"not null"` // 1, 2, 3...
	IsRequired    bool `json:"is_required" gorm:"default:false"`

	// Relationships
	ApprovalRule ApprovalRule `json:"-" gorm:"foreignKey:ApprovalRuleID"`
	Approver     User         `json:"approver,omitempty" gorm:"foreignKey:ApproverID"`
}

type ApprovalHistory struct {
	BaseModel
	ExpenseID  uuid.UUID `json:"expense_id" gorm:"type:uuid;not null;uniqueIndex:idx_expense_sequence_step"`
	ApproverID uuid.UUID `json:"approver_id" gorm:"type:uuid;not null;index"`

	Action   ApprovalAction `json:"action" gorm:"type:varchar(20);not null"`
	Comments string         `json:"comments,omitempty" gorm:"type:text"`
	// 1-based step in the approval flow; the composite unique index with
	// expense_id is the backstop against concurrent duplicate steps.
	SequenceStep int       `json:"sequence_step" gorm:"not null;uniqueIndex:idx_expense_sequence_step"`
	ApprovedAt   time.Time `json:"approved_at"`

	// Relationships
	Expense  Expense `json:"-" gorm:"foreignKey:ExpenseID"`
	Approver User    `json:"approver,omitempty" gorm:"foreignKey:ApproverID"`
}
