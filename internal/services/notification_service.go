// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/expenseflow/expenseflow-backend/internal/config"
)

// ExpenseSnapshot is the plain data handed to notification dispatch. The
// workflow engine never passes live gorm models to the notifier, so
// presentation formatting stays decoupled from the state machine.
type ExpenseSnapshot struct {
	ID            uuid.UUID
	Description   string
	Amount        float64
	Currency      string
	Category      string
	EmployeeName  string
	EmployeeEmail string
}

// Notifier is the notification capability consumed by the workflow engine.
// Dispatch is best-effort: failures are logged by the caller and never roll
// back a state transition.
type Notifier interface {
	NotifyApprovalRequested(expense ExpenseSnapshot, approverName, approverEmail string) error
	NotifyExpenseResolved(expense ExpenseSnapshot, outcome string) error
}

type NotificationService struct {
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(cfg *config.Config) *NotificationService {
	return &NotificationService{config: cfg}
}

func (s *NotificationService) NotifyApprovalRequested(expense ExpenseSnapshot, approverName, approverEmail string) error {
	data := map[string]interface{}{
		"ApproverName": approverName,
		"Description":  expense.Description,
		"Amount":       expense.Amount,
		"Currency":     expense.Currency,
		"Category":     expense.Category,
		"EmployeeName": expense.EmployeeName,
		"ExpenseURL":   fmt.Sprintf("%s/expenses/%s", s.config.Frontend.BaseURL, expense.ID),
	}

	subject := "Expense Approval Required - " + truncate(expense.Description, 50)
	body, err := s.renderTemplate(s.getEmailTemplate("approval_requested").Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(approverEmail, subject, body)
}

func (s *NotificationService) NotifyExpenseResolved(expense ExpenseSnapshot, outcome string) error {
	data := map[string]interface{}{
		"EmployeeName": expense.EmployeeName,
		"Outcome":      outcome,
		"Description":  expense.Description,
		"Amount":       expense.Amount,
		"Currency":     expense.Currency,
		"Category":     expense.Category,
	}

	subject := fmt.Sprintf("Expense %s - %s", outcome, truncate(expense.Description, 50))
	body, err := s.renderTemplate(s.getEmailTemplate("expense_resolved").Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(expense.EmployeeEmail, subject, body)
}

// User provisioning notifications

func (s *NotificationService) SendNewUserCredentials(email, name, password string) error {
	data := map[string]interface{}{
		"Name":     name,
		"Email":    email,
		"Password": password,
	}

	subject := "Welcome to Expense Management - Your Account Details"
	body, err := s.renderTemplate(s.getEmailTemplate("new_user_credentials").Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(email, subject, body)
}

func (s *NotificationService) SendNewPassword(email, name, password string) error {
	data := map[string]interface{}{
		"Name":     name,
		"Password": password,
	}

	subject := "Expense Management - New Password"
	body, err := s.renderTemplate(s.getEmailTemplate("new_password").Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(email, subject, body)
}

func (s *NotificationService) SendPasswordResetEmail(email, name, resetToken string) error {
	data := map[string]interface{}{
		"Name":     name,
		"ResetURL": fmt.Sprintf("%s/reset-password?token=%s", s.config.Frontend.BaseURL, resetToken),
	}

	subject := "Expense Management - Password Reset"
	body, err := s.renderTemplate(s.getEmailTemplate("password_reset").Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(email, subject, body)
}

// Helper methods

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email skipped (SMTP not configured)")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"approval_requested": {
			Subject: "Expense Approval Required",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Expense Approval Request</h2>
	<p>Hello {{.ApproverName}},</p>
	<p>You have a new expense to approve:</p>
	<ul>
		<li><strong>Description:</strong> {{.Description}}</li>
		<li><strong>Amount:</strong> {{.Amount}} {{.Currency}}</li>
		<li><strong>Category:</strong> {{.Category}}</li>
		<li><strong>Employee:</strong> {{.EmployeeName}}</li>
	</ul>
	<p><a href="{{.ExpenseURL}}">Review and approve or reject this expense</a></p>
	<p>Best regards,<br>Expense Management Team</p>
</body>
</html>`,
		},
		"expense_resolved": {
			Subject: "Expense Status Update",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Expense Status Update</h2>
	<p>Hello {{.EmployeeName}},</p>
	<p>Your expense has been <strong>{{.Outcome}}</strong>:</p>
	<ul>
		<li><strong>Description:</strong> {{.Description}}</li>
		<li><strong>Amount:</strong> {{.Amount}} {{.Currency}}</li>
		<li><strong>Category:</strong> {{.Category}}</li>
	</ul>
	<p>Please log in to the system for more details.</p>
	<p>Best regards,<br>Expense Management Team</p>
</body>
</html>`,
		},
		"new_user_credentials": {
			Subject: "Your Account Details",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Welcome to Expense Management System, {{.Name}}!</h2>
	<p>Your account has been created successfully.</p>
	<p><strong>Email:</strong> {{.Email}}</p>
	<p><strong>Temporary Password:</strong> {{.Password}}</p>
	<p>Please log in and change your password immediately.</p>
	<p>Best regards,<br>Expense Management Team</p>
</body>
</html>`,
		},
		"new_password": {
			Subject: "New Password",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Name}},</h2>
	<p>A new password has been generated for your account.</p>
	<p><strong>New Password:</strong> {{.Password}}</p>
	<p>Please log in and change your password immediately.</p>
	<p>Best regards,<br>Expense Management Team</p>
</body>
</html>`,
		},
		"password_reset": {
			Subject: "Password Reset",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Name}},</h2>
	<p>You have requested to reset your password.</p>
	<p><a href="{{.ResetURL}}">Reset Password</a></p>
	<p>This link will expire in 1 hour. If you didn't request this, please ignore this email.</p>
	<p>Best regards,<br>Expense Management Team</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
