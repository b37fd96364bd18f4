// internal/router/router_test.go
package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/expenseflow/expenseflow-backend/internal/config"
	"github.com/expenseflow/expenseflow-backend/internal/database"
	"github.com/expenseflow/expenseflow-backend/internal/models"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.RunMigrations(db))

	cfg := &config.Config{Environment: "test"}
	cfg.JWT.SecretKey = "router-test-secret"
	cfg.JWT.AccessTokenTTL = 1
	cfg.JWT.RefreshTokenTTL = 1
	// Dead endpoints so external lookups fail fast; signup then falls back
	// to USD as the base currency.
	cfg.Currency.RatesBaseURL = "http://127.0.0.1:1"
	cfg.Currency.CountriesAPIURL = "http://127.0.0.1:1"

	return Initialize(db, cfg), db
}

type apiEnvelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   map[string]interface{} `json:"error"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, clientIP string, body interface{}) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = clientIP + ":51234"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var envelope apiEnvelope
	json.Unmarshal(w.Body.Bytes(), &envelope)
	return w, envelope
}

func tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := utils.GenerateJWT(user.ID, user.CompanyID, string(user.Role), 1)
	require.NoError(t, err)
	return token
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setupRouter(t)
	w, _ := doJSON(t, r, http.MethodGet, "/health", "", "203.0.113.9", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExpenseApprovalFlow(t *testing.T) {
	r, db := setupRouter(t)
	const ip = "203.0.113.10"

	// Signup provisions the company and its admin.
	w, env := doJSON(t, r, http.MethodPost, "/v1/auth/signup", "", ip, gin.H{
		"name":     "Dana",
		"email":    "dana@flowtest.io",
		"password": "Str0ngPass!",
		"country":  "Unreachable Land",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	adminToken, _ := env.Data["token"].(string)
	require.NotEmpty(t, adminToken)
	companyData := env.Data["company"].(map[string]interface{})
	assert.Equal(t, "USD", companyData["base_currency"])

	// Admin provisions an employee and an approver.
	w, env = doJSON(t, r, http.MethodPost, "/v1/users", adminToken, ip, gin.H{
		"name": "Eli", "email": "eli@flowtest.io", "role": "employee",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	employeeID := env.Data["user"].(map[string]interface{})["id"].(string)

	w, env = doJSON(t, r, http.MethodPost, "/v1/users", adminToken, ip, gin.H{
		"name": "Mara", "email": "mara@flowtest.io", "role": "manager",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	approverID := env.Data["user"].(map[string]interface{})["id"].(string)

	var employee, approver models.User
	require.NoError(t, db.First(&employee, "id = ?", uuid.MustParse(employeeID)).Error)
	require.NoError(t, db.First(&approver, "id = ?", uuid.MustParse(approverID)).Error)
	employeeToken := tokenFor(t, &employee)
	approverToken := tokenFor(t, &approver)

	// Admin configures a one-step sequential rule.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/approval-rules", adminToken, ip, gin.H{
		"rule_name":  "Manager sign-off",
		"manager_id": approverID,
		"approvers":  []gin.H{{"approver_id": approverID, "sequence_order": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ruleEnv struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ruleEnv))

	// Employee files and submits an expense in the base currency.
	w, _ = doJSON(t, r, http.MethodPost, "/v1/expenses", employeeToken, ip, gin.H{
		"amount":       80,
		"currency":     "USD",
		"category":     "Food",
		"description":  "Conference lunch",
		"expense_date": "2026-08-20T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var expenseEnv struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &expenseEnv))
	expenseID := expenseEnv.Data.ID

	w, env = doJSON(t, r, http.MethodPost, "/v1/expenses/"+expenseID+"/submit", employeeToken, ip, gin.H{
		"approval_rule_id": ruleEnv.Data.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	submitted := env.Data["expense"].(map[string]interface{})
	assert.Equal(t, "pending_approval", submitted["status"])

	// Approver sees it queued and approves it.
	w, _ = doJSON(t, r, http.MethodGet, "/v1/expenses/pending-approvals", approverToken, ip, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listEnv struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listEnv))
	require.Len(t, listEnv.Data, 1)

	w, env = doJSON(t, r, http.MethodPost, "/v1/expenses/"+expenseID+"/approve", approverToken, ip, gin.H{
		"comments": "within policy",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := env.Data["expense"].(map[string]interface{})
	assert.Equal(t, "approved", resolved["status"])

	// The ledger shows the single step.
	w, _ = doJSON(t, r, http.MethodGet, "/v1/expenses/"+expenseID+"/approval-history", employeeToken, ip, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var historyEnv struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &historyEnv))
	require.Len(t, historyEnv.Data, 1)
	assert.Equal(t, "within policy", historyEnv.Data[0]["comments"])
	assert.Equal(t, float64(1), historyEnv.Data[0]["sequence_step"])
}

func TestAdminGuards(t *testing.T) {
	r, db := setupRouter(t)
	const ip = "203.0.113.11"

	company := &models.Company{Name: "Guard Co", BaseCurrency: "USD", Country: "United States"}
	require.NoError(t, db.Create(company).Error)
	employee := &models.User{
		Name: "Worker", Email: "worker@guard.test",
		Role: models.UserRoleEmployee, IsActive: true, CompanyID: company.ID,
	}
	require.NoError(t, employee.SetPassword("Str0ngPass!"))
	require.NoError(t, db.Create(employee).Error)

	utils.SetJWTSecret("router-test-secret")
	employeeToken := tokenFor(t, employee)

	// Employees cannot reach admin-only user management.
	w, _ := doJSON(t, r, http.MethodGet, "/v1/users", employeeToken, ip, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// And no token means no access at all.
	w, _ = doJSON(t, r, http.MethodGet, "/v1/expenses/my-expenses", "", ip, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
