package sat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
)

// MaxRequestTimeout bounds every registry call; a hung SAT endpoint must
// degrade to an Unverified outcome, not block the caller.
const MaxRequestTimeout = 10 * time.Second

// MissingFieldError means the caller supplied incomplete data for the
// validation 4-tuple.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("campo requerido para validación: %s", e.Field)
}

// ValidationRequest is the 4-tuple the registry keys an invoice on.
type ValidationRequest struct {
	IssuerRFC    string          `json:"rfcEmisor"`
	RecipientRFC string          `json:"rfcReceptor"`
	Total        decimal.Decimal `json:"total"`
	UUID         string          `json:"uuid"`
}

// registryResponse mirrors the validation endpoint's JSON answer.
type registryResponse struct {
	Success       bool   `json:"success"`
	UUID          string `json:"uuid"`
	Estado        string `json:"estado"`
	CodigoEstatus string `json:"codigoEstatus"`
	EsCancelable  string `json:"esCancelable"`
	EsValida      bool   `json:"esValida"`
	EsCancelada   bool   `json:"esCancelada"`
	NoEncontrada  bool   `json:"noEncontrada"`
	Mensaje       string `json:"mensaje"`
}

// Client validates stamped invoices against the SAT registry, caching
// determinate answers. Network trouble fails open (the document may still
// be saved, with a visible warning); a determinate negative answer fails
// closed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	now        func() time.Time
}

// NewClient creates a registry client. The timeout is clamped to
// MaxRequestTimeout; a nil cache gets the default TTL.
func NewClient(baseURL string, timeout time.Duration, cache *Cache) *Client {
	if timeout <= 0 || timeout > MaxRequestTimeout {
		timeout = MaxRequestTimeout
	}
	if cache == nil {
		cache = NewCache(0)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		now:        time.Now,
	}
}

// Validate checks the 4-tuple against the registry. All four fields are
// required. Outcomes are returned as data so callers can branch on status;
// the only errors raised are MissingFieldError and context cancellation
// surfaced through the transport path.
func (c *Client) Validate(ctx context.Context, req ValidationRequest) (models.ValidationOutcome, error) {
	if err := c.checkRequest(req); err != nil {
		return models.ValidationOutcome{}, err
	}

	key := CacheKey(req.IssuerRFC, req.RecipientRFC, req.Total.StringFixed(2), req.UUID)
	if cached, ok := c.cache.Get(key); ok {
		cached.FromCache = true
		return cached, nil
	}

	outcome := c.call(ctx, req)
	if outcome.IsDeterminate() {
		c.cache.Put(key, outcome)
	}
	return outcome, nil
}

func (c *Client) checkRequest(req ValidationRequest) error {
	switch {
	case strings.TrimSpace(req.IssuerRFC) == "":
		return &MissingFieldError{Field: "rfcEmisor"}
	case strings.TrimSpace(req.RecipientRFC) == "":
		return &MissingFieldError{Field: "rfcReceptor"}
	case !req.Total.IsPositive():
		return &MissingFieldError{Field: "total"}
	case strings.TrimSpace(req.UUID) == "":
		return &MissingFieldError{Field: "uuid"}
	}
	return nil
}

func (c *Client) call(ctx context.Context, req ValidationRequest) models.ValidationOutcome {
	body, _ := json.Marshal(map[string]string{
		"rfcEmisor":   strings.ToUpper(req.IssuerRFC),
		"rfcReceptor": strings.ToUpper(req.RecipientRFC),
		"total":       req.Total.StringFixed(2),
		"uuid":        strings.ToUpper(req.UUID),
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/verificacfdi", bytes.NewReader(body))
	if err != nil {
		return c.unverified(req.UUID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and transport failures are indeterminate: fail open.
		return c.unverified(req.UUID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A determinate server error is not a connectivity problem; the
		// registry answered and refused. Fail closed, but stay retryable
		// (Error outcomes are never cached).
		return models.ValidationOutcome{
			UUID:       strings.ToUpper(req.UUID),
			Status:     models.StatusError,
			Message:    fmt.Sprintf("el registro respondió HTTP %d", resp.StatusCode),
			Timestamp:  c.now(),
			PermitSave: false,
		}
	}

	var reg registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return models.ValidationOutcome{
			UUID:       strings.ToUpper(req.UUID),
			Status:     models.StatusError,
			Message:    fmt.Sprintf("respuesta del registro ilegible: %v", err),
			Timestamp:  c.now(),
			PermitSave: false,
		}
	}

	return c.classify(req.UUID, reg)
}

// unverified is the fail-open outcome for indeterminate network conditions:
// saving is permitted, with a visible advisory.
func (c *Client) unverified(uuid string, err error) models.ValidationOutcome {
	return models.ValidationOutcome{
		UUID:       strings.ToUpper(uuid),
		Status:     models.StatusUnverified,
		Message:    fmt.Sprintf("no se pudo contactar al registro SAT, se permite guardar sin verificar: %v", err),
		Timestamp:  c.now(),
		PermitSave: true,
	}
}

// classify maps the registry answer onto exactly one status. The boolean
// flags take precedence over the estado string, which some registry
// versions localize inconsistently.
func (c *Client) classify(uuid string, reg registryResponse) models.ValidationOutcome {
	outcome := models.ValidationOutcome{
		UUID:          strings.ToUpper(uuid),
		RawStatusCode: reg.CodigoEstatus,
		Cancellable:   strings.EqualFold(reg.EsCancelable, "Cancelable sin aceptación") || strings.EqualFold(reg.EsCancelable, "Cancelable con aceptación"),
		Timestamp:     c.now(),
	}

	estado := strings.ToLower(reg.Estado)
	switch {
	case reg.EsCancelada || estado == "cancelado":
		outcome.Status = models.StatusCancelled
		outcome.PermitSave = false
		outcome.Message = "el comprobante " + outcome.UUID + " está cancelado ante el SAT"
	case reg.NoEncontrada || strings.Contains(estado, "no encontrado"):
		outcome.Status = models.StatusNotFound
		outcome.PermitSave = false
		outcome.Message = "el comprobante " + outcome.UUID + " no existe en el registro del SAT"
	case reg.EsValida || estado == "vigente":
		outcome.Status = models.StatusValid
		outcome.PermitSave = true
		outcome.Message = "comprobante vigente"
	default:
		outcome.Status = models.StatusError
		outcome.PermitSave = false
		outcome.Message = reg.Mensaje
		if outcome.Message == "" {
			outcome.Message = "estado del registro no reconocido: " + reg.Estado
		}
	}
	return outcome
}

// FlushCache drops every cached outcome.
func (c *Client) FlushCache() {
	c.cache.Clear()
}
