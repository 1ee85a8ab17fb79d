package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/facturaIA/cfdi-normalizer-service/internal/canonical"
	"github.com/facturaIA/cfdi-normalizer-service/internal/cfdi"
	"github.com/facturaIA/cfdi-normalizer-service/internal/db"
	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
	"github.com/facturaIA/cfdi-normalizer-service/internal/recognize"
	"github.com/facturaIA/cfdi-normalizer-service/internal/sat"
	"github.com/facturaIA/cfdi-normalizer-service/internal/storage"
	"github.com/facturaIA/cfdi-normalizer-service/internal/ticket"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Handler handles HTTP requests for document normalization
type Handler struct {
	config     *models.Config
	parser     *cfdi.Parser
	extractor  *ticket.Extractor
	validator  *sat.Client
	recognizer recognize.Recognizer
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, validator *sat.Client, recognizer recognize.Recognizer) *Handler {
	return &Handler{
		config:     config,
		parser:     cfdi.NewParser(),
		extractor:  ticket.NewExtractor(),
		validator:  validator,
		recognizer: recognizer,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Normalization pipelines
	router.HandleFunc("/api/process-cfdi", h.ProcessCFDI).Methods("POST")
	router.HandleFunc("/api/process-ticket", h.ProcessTicket).Methods("POST")

	// Registry validation
	router.HandleFunc("/api/validate-cfdi", h.ValidateCFDI).Methods("POST")
	router.HandleFunc("/api/validate-cfdi/flush-cache", h.FlushValidationCache).Methods("POST")

	// Transaction CRUD
	router.HandleFunc("/api/transactions", h.GetTransactions).Methods("GET")
	router.HandleFunc("/api/transaction/{id}", h.GetTransaction).Methods("GET")
	router.HandleFunc("/api/transaction/{id}", h.UpdateTransaction).Methods("PUT")
	router.HandleFunc("/api/transaction/{id}", h.DeleteTransaction).Methods("DELETE")

	// Statistics
	router.HandleFunc("/api/stats", h.GetStats).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status     string        `json:"status"`
	Version    string        `json:"version"`
	Timestamp  string        `json:"timestamp"`
	Uptime     string        `json:"uptime"`
	Memory     MemoryStats   `json:"memory"`
	Database   ServiceStatus `json:"database"`
	Storage    ServiceStatus `json:"storage"`
	Registry   ServiceStatus `json:"registry"`
	Recognizer ServiceStatus `json:"recognizer"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Memory statistics
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		Database:   h.checkDatabase(),
		Storage:    h.checkStorage(),
		Registry:   h.checkRegistry(),
		Recognizer: h.checkRecognizer(),
	}

	// Parsing works without any collaborator; the service is degraded, not
	// down, when persistence or validation are unreachable.
	if !response.Database.Available || !response.Registry.Available {
		response.Status = "degraded"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{Available: false, Error: "database pool not initialized"}
	}
	return ServiceStatus{Available: true, Version: "PostgreSQL via PgBouncer"}
}

func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{Available: false, Error: "storage client not initialized"}
	}
	return ServiceStatus{Available: true, Version: "MinIO S3"}
}

func (h *Handler) checkRegistry() ServiceStatus {
	if h.validator == nil || h.config.Registry.BaseURL == "" {
		return ServiceStatus{Available: false, Error: "registry validation not configured"}
	}
	return ServiceStatus{Available: true}
}

func (h *Handler) checkRecognizer() ServiceStatus {
	if h.recognizer == nil {
		return ServiceStatus{Available: false, Error: "recognizer not configured"}
	}
	return ServiceStatus{Available: true}
}

// ProcessCFDI parses a structured CFDI XML document and returns the
// canonical transaction, optionally cross-checked against the registry
// with ?validate=true.
func (h *Handler) ProcessCFDI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	raw, contentType, err := h.readDocument(w, r, "text/xml")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	invoice, err := h.parser.Parse(raw)
	if err != nil {
		// Fatal structural errors abort the whole document; surface the
		// parser's message verbatim as a single blocking error.
		h.sendError(w, statusForParseError(err), err.Error())
		return
	}

	tx := canonical.FromInvoice(invoice)

	validateRequested := r.URL.Query().Get("validate") == "true"

	var outcome *models.ValidationOutcome
	if validateRequested && invoice.Stamp != nil && h.validator != nil {
		result, verr := h.validator.Validate(ctx, sat.ValidationRequest{
			IssuerRFC:    invoice.Issuer.TaxID,
			RecipientRFC: invoice.Recipient.TaxID,
			Total:        invoice.RawTotal,
			UUID:         invoice.Stamp.UUID,
		})
		if verr != nil {
			h.sendError(w, http.StatusBadRequest, verr.Error())
			return
		}
		outcome = &result
	}

	documentURL := h.storeDocument(ctx, "cfdi", raw, contentType)
	saved := h.saveTransaction(ctx, &tx, outcome, documentURL, "")

	response := map[string]interface{}{
		"success":     true,
		"transaction": tx,
		"invoice":     invoice,
		"saved_to_db": saved != nil,
	}
	if outcome != nil {
		response["validation"] = outcome
	} else if validateRequested {
		// Tell the caller why the validation field is absent even though it
		// was asked for.
		switch {
		case invoice.Stamp == nil:
			response["validation_skipped"] = "document has no fiscal stamp (TimbreFiscalDigital)"
		case h.validator == nil:
			response["validation_skipped"] = "registry validation not configured"
		}
	}
	if saved != nil {
		response["id"] = saved.ID
		response["created_at"] = saved.CreatedAt
	}
	if documentURL != "" {
		response["documento_url"] = documentURL
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ProcessTicket runs the recognized-text pipeline: the uploaded image goes
// to the external recognizer, and its output text is consolidated,
// extracted and scored. Extraction never fails the document; warnings ride
// along with partial data.
func (h *Handler) ProcessTicket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	// Pre-recognized text can be posted directly; images go through the
	// recognition collaborator.
	var rawText string
	var confidence float64
	var imageData []byte
	var contentType string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadSize))
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		rawText = string(body)
		confidence = 100
	} else {
		var err error
		imageData, contentType, err = h.readDocument(w, r, "image/jpeg")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		if h.recognizer == nil {
			h.sendError(w, http.StatusServiceUnavailable, "recognition service not configured")
			return
		}
		result, err := h.recognizer.Recognize(ctx, imageData, contentType)
		if err != nil {
			h.sendError(w, http.StatusBadGateway, err.Error())
			return
		}
		rawText = result.Text
		confidence = result.Confidence
	}

	data, trace := h.extractor.Extract(rawText)
	tx := canonical.FromTicket(data)

	var documentURL string
	if len(imageData) > 0 {
		documentURL = h.storeDocument(ctx, "ticket", imageData, contentType)
	}
	warningsJSON := ""
	if len(trace.Warnings) > 0 {
		if b, err := json.Marshal(trace.Warnings); err == nil {
			warningsJSON = string(b)
		}
	}
	saved := h.saveTransaction(ctx, &tx, nil, documentURL, rawText)
	if saved != nil && warningsJSON != "" {
		_ = db.UpdateTransaction(ctx, saved.ID.String(), map[string]interface{}{
			"warnings_json": warningsJSON,
		})
	}

	response := map[string]interface{}{
		"success":     true,
		"transaction": tx,
		"extracted":   data,
		"warnings":    trace.Warnings,
		"trace":       trace.Outcomes,
		"confidence":  confidence,
		"saved_to_db": saved != nil,
	}
	if saved != nil {
		response["id"] = saved.ID
		response["created_at"] = saved.CreatedAt
	}
	if documentURL != "" {
		response["documento_url"] = documentURL
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ValidateCFDI checks a 4-tuple against the SAT registry.
func (h *Handler) ValidateCFDI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.validator == nil {
		h.sendError(w, http.StatusServiceUnavailable, "registry validation not configured")
		return
	}

	var req struct {
		RFCEmisor   string          `json:"rfcEmisor"`
		RFCReceptor string          `json:"rfcReceptor"`
		Total       decimal.Decimal `json:"total"`
		UUID        string          `json:"uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.validator.Validate(r.Context(), sat.ValidationRequest{
		IssuerRFC:    req.RFCEmisor,
		RecipientRFC: req.RFCReceptor,
		Total:        req.Total,
		UUID:         req.UUID,
	})
	if err != nil {
		var missing *sat.MissingFieldError
		if errors.As(err, &missing) {
			h.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":    true,
		"validation": outcome,
	})
}

// FlushValidationCache drops every cached registry outcome.
func (h *Handler) FlushValidationCache(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.validator != nil {
		h.validator.FlushCache()
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "validation cache flushed",
	})
}

// GetTransactions returns recent canonical transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	records, err := db.GetTransactions(ctx, 100)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get transactions: %v", err))
		return
	}

	// Generate presigned URLs for source documents
	for i := range records {
		if records[i].DocumentURL != "" && storage.Client != nil {
			if presignedURL, err := storage.GetPresignedURL(ctx, records[i].DocumentURL); err == nil {
				records[i].DocumentURL = presignedURL
			}
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      true,
		"transactions": records,
		"count":        len(records),
	})
}

// GetTransaction returns a single record
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	rec, err := db.GetTransactionByID(ctx, vars["id"])
	if err != nil {
		h.sendError(w, http.StatusNotFound, fmt.Sprintf("transaction not found: %v", err))
		return
	}

	if rec.DocumentURL != "" && storage.Client != nil {
		if presignedURL, err := storage.GetPresignedURL(ctx, rec.DocumentURL); err == nil {
			rec.DocumentURL = presignedURL
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": rec,
	})
}

// UpdateTransaction updates the user-editable fields of a record
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Only allow certain fields to be updated
	allowed := map[string]bool{
		"concepto":        true,
		"contraparte":     true,
		"contraparte_rfc": true,
		"fecha":           true,
		"subtotal":        true,
		"iva":             true,
		"total":           true,
		"moneda":          true,
	}
	filtered := make(map[string]interface{})
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}

	if len(filtered) == 0 {
		h.sendError(w, http.StatusBadRequest, "no valid fields to update")
		return
	}

	vars := mux.Vars(r)
	if err := db.UpdateTransaction(ctx, vars["id"], filtered); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to update transaction")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "transaction updated",
	})
}

// DeleteTransaction removes a record and its stored source document
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	vars := mux.Vars(r)
	if storage.Client != nil {
		rec, err := db.GetTransactionByID(ctx, vars["id"])
		if err == nil && rec.DocumentURL != "" {
			// Delete document (ignore errors)
			_ = storage.DeleteDocument(ctx, rec.DocumentURL)
		}
	}

	if err := db.DeleteTransaction(ctx, vars["id"]); err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "transaction deleted",
	})
}

// GetStats returns monthly statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()

	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	stats, err := db.GetMonthlyStats(ctx)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// readDocument accepts either a multipart upload ("file" or "document"
// field) or a raw request body, capped at MaxUploadSize.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request, defaultContentType string) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			return nil, "", fmt.Errorf("file too large or invalid form data")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			file, header, err = r.FormFile("document")
			if err != nil {
				return nil, "", fmt.Errorf("no file provided (use 'file' or 'document' field)")
			}
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read file")
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = defaultContentType
		}
		return data, contentType, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body")
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty request body")
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return data, contentType, nil
}

// storeDocument uploads the source bytes when storage is configured.
// Storage is optional; failures are logged by returning an empty URL.
func (h *Handler) storeDocument(ctx context.Context, source string, data []byte, contentType string) string {
	if storage.Client == nil {
		return ""
	}
	filename := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8],
		storage.GetFileExtension(contentType),
	)
	url, err := storage.UploadSourceDocument(ctx, source, filename, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		fmt.Printf("Warning: failed to upload document to MinIO: %v\n", err)
		return ""
	}
	return url
}

// saveTransaction persists the canonical record when the database is
// configured. Persistence is optional; the caller reports saved_to_db.
func (h *Handler) saveTransaction(ctx context.Context, tx *models.CanonicalTransaction, outcome *models.ValidationOutcome, documentURL, rawText string) *db.TransactionRecord {
	if db.Pool == nil {
		return nil
	}

	rec := &db.TransactionRecord{
		Concept:         tx.Concept,
		CounterpartName: tx.CounterpartName,
		CounterpartRFC:  tx.CounterpartRFC,
		Subtotal:        decimalToFloat64(tx.Subtotal),
		Tax:             decimalToFloat64(tx.Tax),
		Total:           decimalToFloat64(tx.Total),
		TaxRate:         decimalToFloat64(tx.TaxRate),
		Currency:        tx.Currency,
		Source:          string(tx.Source),
		FiscalStampID:   tx.FiscalStampID,
		DocumentURL:     documentURL,
		RawText:         rawText,
	}
	if !tx.Date.IsZero() {
		t := tx.Date
		rec.Date = &t
	}
	if outcome != nil {
		rec.ValidationStatus = string(outcome.Status)
		rec.ValidationMsg = outcome.Message
	}

	if err := db.SaveTransaction(ctx, rec); err != nil {
		fmt.Printf("Warning: failed to save transaction to DB: %v\n", err)
		return nil
	}
	return rec
}

func statusForParseError(err error) int {
	var malformed *cfdi.MalformedInputError
	if errors.As(err, &malformed) {
		return http.StatusBadRequest
	}
	return http.StatusUnprocessableEntity
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// decimalToFloat64 converts decimal.Decimal to float64
func decimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
