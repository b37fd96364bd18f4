// internal/services/currency_service.go
package services

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/expenseflow/expenseflow-backend/internal/config"
)

// CurrencyConverter is the conversion capability the expense service
// consumes. The production implementation calls an exchange-rate API; tests
// substitute a fixed-rate fake.
type CurrencyConverter interface {
	Convert(amount float64, fromCurrency, toCurrency string) (float64, error)
}

type CurrencyService struct {
	ratesBaseURL    string
	countriesAPIURL string
	httpClient      *http.Client
}

type CountryCurrency struct {
	Name           string `json:"name"`
	Code           string `json:"code"`
	Currency       string `json:"currency"`
	CurrencyName   string `json:"currency_name"`
	CurrencySymbol string `json:"currency_symbol"`
}

type ExchangeRates struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	Timestamp int64              `json:"timestamp,omitempty"`
}

func NewCurrencyService(cfg *config.Config) *CurrencyService {
	return &CurrencyService{
		ratesBaseURL:    cfg.Currency.RatesBaseURL,
		countriesAPIURL: cfg.Currency.CountriesAPIURL,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
	}
}

// GetRates fetches all exchange rates for the given base currency.
func (s *CurrencyService) GetRates(baseCurrency string) (*ExchangeRates, error) {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.ratesBaseURL, "/"), baseCurrency)

	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: rates service unreachable: %v", ErrConversionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: invalid currency code %q", ErrConversionFailed, baseCurrency)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: rates service returned %d", ErrConversionFailed, resp.StatusCode)
	}

	var rates ExchangeRates
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return nil, fmt.Errorf("%w: malformed rates response: %v", ErrConversionFailed, err)
	}
	if len(rates.Rates) == 0 {
		return nil, fmt.Errorf("%w: invalid currency code %q", ErrConversionFailed, baseCurrency)
	}
	if rates.Base == "" {
		rates.Base = baseCurrency
	}

	return &rates, nil
}

// Convert converts amount from one currency to another using the rate in
// effect right now. Failures wrap ErrConversionFailed so callers abort
// instead of silently defaulting.
func (s *CurrencyService) Convert(amount float64, fromCurrency, toCurrency string) (float64, error) {
	rates, err := s.GetRates(fromCurrency)
	if err != nil {
		return 0, err
	}

	rate, ok := rates.Rates[toCurrency]
	if !ok {
		return 0, fmt.Errorf("%w: currency %q not supported", ErrConversionFailed, toCurrency)
	}

	return math.Round(amount*rate*100) / 100, nil
}

// GetCountries returns all countries with their primary currency, used by
// company signup to pick a base currency from the admin's country.
func (s *CurrencyService) GetCountries() ([]CountryCurrency, error) {
	resp, err := s.httpClient.Get(s.countriesAPIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch countries data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("countries service returned %d", resp.StatusCode)
	}

	var raw []struct {
		Name struct {
			Common string `json:"common"`
		} `json:"name"`
		CCA2       string `json:"cca2"`
		Currencies map[string]struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"currencies"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("malformed countries response: %w", err)
	}

	countries := make([]CountryCurrency, 0, len(raw))
	for _, c := range raw {
		for code, info := range c.Currencies {
			countries = append(countries, CountryCurrency{
				Name:           c.Name.Common,
				Code:           c.CCA2,
				Currency:       code,
				CurrencyName:   info.Name,
				CurrencySymbol: info.Symbol,
			})
			break // first listed currency only
		}
	}

	return countries, nil
}

// GetCountryCurrency looks up the currency for a country by name,
// case-insensitively. Returns nil when the country is unknown.
func (s *CurrencyService) GetCountryCurrency(countryName string) (*CountryCurrency, error) {
	countries, err := s.GetCountries()
	if err != nil {
		return nil, err
	}

	for i := range countries {
		if strings.EqualFold(countries[i].Name, countryName) {
			return &countries[i], nil
		}
	}
	return nil, nil
}
