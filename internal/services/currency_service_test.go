// internal/services/currency_service_test.go
package services

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expenseflow/expenseflow-backend/internal/config"
)

func newCurrencyTestService(ratesURL, countriesURL string) *CurrencyService {
	cfg := &config.Config{}
	cfg.Currency.RatesBaseURL = ratesURL
	cfg.Currency.CountriesAPIURL = countriesURL
	return NewCurrencyService(cfg)
}

func TestConvertRoundsToTwoDecimals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/EUR", r.URL.Path)
		w.Write([]byte(`{"base":"EUR","rates":{"USD":1.0847,"GBP":0.85}}`))
	}))
	defer server.Close()

	svc := newCurrencyTestService(server.URL, "")

	converted, err := svc.Convert(33.33, "EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, 36.15, converted) // 33.33 * 1.0847 = 36.153...

	_, err = svc.Convert(10, "EUR", "JPY")
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestGetRatesInvalidCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := newCurrencyTestService(server.URL, "")
	_, err := svc.GetRates("XXX")
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestGetRatesServiceUnreachable(t *testing.T) {
	svc := newCurrencyTestService("http://127.0.0.1:1", "")
	_, err := svc.GetRates("USD")
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestGetCountryCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"name":{"common":"United States"},"cca2":"US","currencies":{"USD":{"name":"United States dollar","symbol":"$"}}},
			{"name":{"common":"India"},"cca2":"IN","currencies":{"INR":{"name":"Indian rupee","symbol":"₹"}}}
		]`))
	}))
	defer server.Close()

	svc := newCurrencyTestService("", server.URL)

	countries, err := svc.GetCountries()
	require.NoError(t, err)
	assert.Len(t, countries, 2)

	country, err := svc.GetCountryCurrency("india")
	require.NoError(t, err)
	require.NotNil(t, country)
	assert.Equal(t, "INR", country.Currency)

	unknown, err := svc.GetCountryCurrency("Atlantis")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}
