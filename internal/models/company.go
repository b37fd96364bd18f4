// internal/models/company.go
package models

type Company struct {
	BaseModel
	Name         string `json:"name" gorm:"size:255;not null"`
	BaseCurrency string `json:"base_currency" gorm:"size:10;not null"` // ISO code: USD, INR, EUR
	Country      string `json:"country" gorm:"size:255;not null"`

	// Relationships
	Users         []User         `json:"users,omitempty" gorm:"foreignKey:CompanyID"`
	Expenses      []Expense      `json:"expenses,omitempty" gorm:"foreignKey:CompanyID"`
	ApprovalRules []ApprovalRule `json:"approval_rules,omitempty" gorm:"foreignKey:CompanyID"`
}
