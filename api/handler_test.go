package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
)

func newTestHandler() *Handler {
	return NewHandler(&models.Config{Port: 8080, Host: "127.0.0.1"}, nil, nil)
}

func TestHealth_DegradedWithoutCollaborators(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, Version, resp.Version)
	assert.False(t, resp.Database.Available)
	assert.False(t, resp.Registry.Available)
}

func TestProcessCFDI_ParsesRawBody(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	xml := `<Comprobante Version="4.0" Moneda="MXN" Total="1160.00">
		<Emisor Rfc="AAA010101AAA" Nombre="PROVEEDOR SA"/>
		<Receptor Rfc="BBB020202BB2" Nombre="CLIENTE SA"/>
	</Comprobante>`
	req := httptest.NewRequest(http.MethodPost, "/api/process-cfdi", strings.NewReader(xml))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, false, resp["saved_to_db"])

	tx, ok := resp["transaction"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "structured", tx["origen"])
	assert.Equal(t, "1160", tx["total"])
	assert.Equal(t, "1000", tx["subtotal"])
}

func TestProcessCFDI_ValidateWithoutStampExplained(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	xml := `<Comprobante Version="4.0" Moneda="MXN" Total="1160.00">
		<Emisor Rfc="AAA010101AAA" Nombre="PROVEEDOR SA"/>
		<Receptor Rfc="BBB020202BB2" Nombre="CLIENTE SA"/>
	</Comprobante>`
	req := httptest.NewRequest(http.MethodPost, "/api/process-cfdi?validate=true", strings.NewReader(xml))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "validation")
	assert.Equal(t, "document has no fiscal stamp (TimbreFiscalDigital)", resp["validation_skipped"])
}

func TestProcessCFDI_MalformedXMLIs400(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/process-cfdi", strings.NewReader("esto no es xml <<<"))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessCFDI_WrongRootIs422(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/process-cfdi", strings.NewReader(`<Factura Total="100.00"/>`))
	req.Header.Set("Content-Type", "text/xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProcessTicket_PlainTextBody(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	body := "TAQUERIA EL GUERO\nFECHA: 01/02/2024\nTOTAL 120.00"
	req := httptest.NewRequest(http.MethodPost, "/api/process-ticket", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(100), resp["confidence"])

	tx, ok := resp["transaction"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "recognized-text", tx["origen"])
	assert.Equal(t, "120", tx["total"])
	assert.Equal(t, "TAQUERIA EL GUERO", tx["contraparte"])
}

func TestProcessTicket_ImageWithoutRecognizerIs503(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/process-ticket", strings.NewReader("fake-image-bytes"))
	req.Header.Set("Content-Type", "image/jpeg")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestValidateCFDI_UnconfiguredIs503(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	req := httptest.NewRequest(http.MethodPost, "/api/validate-cfdi", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetTransactions_NoDatabaseIs503(t *testing.T) {
	h := newTestHandler()
	router := h.SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
