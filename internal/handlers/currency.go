// internal/handlers/currency.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/expenseflow/expenseflow-backend/internal/services"
	"github.com/expenseflow/expenseflow-backend/internal/utils"
)

type CurrencyHandler struct {
	currencyService *services.CurrencyService
}

func NewCurrencyHandler(currencyService *services.CurrencyService) *CurrencyHandler {
	return &CurrencyHandler{
		currencyService: currencyService,
	}
}

// GET /currency/countries
func (h *CurrencyHandler) GetCountries(c *gin.Context) {
	countries, err := h.currencyService.GetCountries()
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to fetch countries")
		return
	}

	utils.SuccessResponse(c, countries)
}

// GET /currency/rates/:base
func (h *CurrencyHandler) GetRates(c *gin.Context) {
	rates, err := h.currencyService.GetRates(c.Param("base"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, rates)
}

// GET /currency/convert?amount=&from=&to=
func (h *CurrencyHandler) Convert(c *gin.Context) {
	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil || amount <= 0 {
		utils.BadRequestResponse(c, "amount must be a positive number", nil)
		return
	}
	from := c.Query("from")
	to := c.Query("to")
	if len(from) != 3 || len(to) != 3 {
		utils.BadRequestResponse(c, "from and to must be 3-letter currency codes", nil)
		return
	}

	converted, err := h.currencyService.Convert(amount, from, to)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"amount":           amount,
		"from":             from,
		"to":               to,
		"converted_amount": converted,
	})
}
