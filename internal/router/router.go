// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/expenseflow/expenseflow-backend/internal/config"
	"github.com/expenseflow/expenseflow-backend/internal/handlers"
	"github.com/expenseflow/expenseflow-backend/internal/middleware"
	"github.com/expenseflow/expenseflow-backend/internal/services"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	notificationService := services.NewNotificationService(cfg)
	currencyService := services.NewCurrencyService(cfg)
	storageService, _ := services.NewStorageService(cfg)

	workflowService := services.NewApprovalWorkflowService(db, notificationService, cfg.Approval.LegacyParallelSingleVote)
	authService := services.NewAuthService(db, cfg, currencyService, notificationService)
	userService := services.NewUserService(db, notificationService)
	companyService := services.NewCompanyService(db)
	expenseService := services.NewExpenseService(db, currencyService, workflowService)
	ruleService := services.NewApprovalRuleService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	companyHandler := handlers.NewCompanyHandler(companyService)
	expenseHandler := handlers.NewExpenseHandler(expenseService, storageService)
	ruleHandler := handlers.NewApprovalRuleHandler(ruleService)
	currencyHandler := handlers.NewCurrencyHandler(currencyService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.GeneralRateLimit(cfg))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit(cfg))
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
		}

		users := v1.Group("/users")
		users.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			users.POST("", userHandler.CreateUser)
			users.GET("", userHandler.GetUsers)
			users.GET("/:id", userHandler.GetUser)
			users.PUT("/:id", userHandler.UpdateUser)
			users.DELETE("/:id", userHandler.DeleteUser)
			users.POST("/:id/send-password", userHandler.SendPassword)
		}

		company := v1.Group("/company")
		company.Use(middleware.AuthRequired())
		{
			company.GET("", companyHandler.GetCompany)
			company.PATCH("", middleware.AdminRequired(), companyHandler.UpdateCompany)
		}

		expenses := v1.Group("/expenses")
		expenses.Use(middleware.AuthRequired())
		{
			expenses.POST("", expenseHandler.CreateExpense)
			expenses.GET("/my-expenses", expenseHandler.GetMyExpenses)
			expenses.GET("/pending-approvals", expenseHandler.GetPendingApprovals)
			expenses.GET("/:id", expenseHandler.GetExpense)
			expenses.PATCH("/:id", expenseHandler.UpdateExpense)
			expenses.POST("/:id/submit", expenseHandler.SubmitExpense)
			expenses.POST("/:id/approve", expenseHandler.ApproveExpense)
			expenses.POST("/:id/reject", expenseHandler.RejectExpense)
			expenses.GET("/:id/approval-history", expenseHandler.GetApprovalHistory)
			expenses.GET("/:id/receipt", expenseHandler.GetReceipt)
			expenses.POST("/:id/upload-receipt", middleware.UploadRateLimit(cfg), expenseHandler.UploadReceipt)
		}

		rules := v1.Group("/approval-rules")
		rules.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			rules.POST("", ruleHandler.CreateRule)
			rules.GET("", ruleHandler.GetRules)
			rules.GET("/:id", ruleHandler.GetRule)
			rules.PUT("/:id", ruleHandler.UpdateRule)
			rules.DELETE("/:id", ruleHandler.DeleteRule)
		}

		currency := v1.Group("/currency")
		currency.Use(middleware.AuthRequired())
		{
			currency.GET("/countries", currencyHandler.GetCountries)
			currency.GET("/rates/:base", currencyHandler.GetRates)
			currency.GET("/convert", currencyHandler.Convert)
		}
	}

	return r
}
