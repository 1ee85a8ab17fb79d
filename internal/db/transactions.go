package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionRecord is the persisted form of a canonical transaction plus
// the validation outcome attached to it, if any.
type TransactionRecord struct {
	ID               uuid.UUID  `json:"id"`
	Concept          string     `json:"concepto"`
	CounterpartName  string     `json:"contraparte"`
	CounterpartRFC   string     `json:"contraparte_rfc"`
	Date             *time.Time `json:"fecha"`
	Subtotal         float64    `json:"subtotal"`
	Tax              float64    `json:"iva"`
	Total            float64    `json:"total"`
	TaxRate          float64    `json:"tasa_iva"`
	Currency         string     `json:"moneda"`
	Source           string     `json:"origen"`
	FiscalStampID    string     `json:"uuid_fiscal"`
	ValidationStatus string     `json:"estado_validacion"`
	ValidationMsg    string     `json:"mensaje_validacion"`
	DocumentURL      string     `json:"documento_url"`
	RawText          string     `json:"texto_ocr"`
	WarningsJSON     string     `json:"warnings_json"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// SaveTransaction inserts a record and fills in its generated id/timestamp.
func SaveTransaction(ctx context.Context, rec *TransactionRecord) error {
	query := `
		INSERT INTO transacciones (
			concepto, contraparte, contraparte_rfc, fecha,
			subtotal, iva, total, tasa_iva, moneda, origen,
			uuid_fiscal, estado_validacion, mensaje_validacion,
			documento_url, texto_ocr, warnings_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`

	err := Pool.QueryRow(ctx, query,
		rec.Concept, rec.CounterpartName, rec.CounterpartRFC, rec.Date,
		rec.Subtotal, rec.Tax, rec.Total, rec.TaxRate, rec.Currency, rec.Source,
		rec.FiscalStampID, rec.ValidationStatus, rec.ValidationMsg,
		rec.DocumentURL, rec.RawText, rec.WarningsJSON,
	).Scan(&rec.ID, &rec.CreatedAt)

	return err
}

// GetTransactions returns the most recent records.
func GetTransactions(ctx context.Context, limit int) ([]TransactionRecord, error) {
	query := `
		SELECT id, COALESCE(concepto, ''), COALESCE(contraparte, ''), COALESCE(contraparte_rfc, ''),
		       fecha, COALESCE(subtotal, 0), COALESCE(iva, 0), COALESCE(total, 0), COALESCE(tasa_iva, 0),
		       COALESCE(moneda, 'MXN'), COALESCE(origen, ''), COALESCE(uuid_fiscal, ''),
		       COALESCE(estado_validacion, ''), COALESCE(documento_url, ''), created_at
		FROM transacciones
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		err := rows.Scan(
			&rec.ID, &rec.Concept, &rec.CounterpartName, &rec.CounterpartRFC,
			&rec.Date, &rec.Subtotal, &rec.Tax, &rec.Total, &rec.TaxRate,
			&rec.Currency, &rec.Source, &rec.FiscalStampID,
			&rec.ValidationStatus, &rec.DocumentURL, &rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// GetTransactionByID retrieves a single record by id.
func GetTransactionByID(ctx context.Context, id string) (*TransactionRecord, error) {
	query := `
		SELECT id, COALESCE(concepto, ''), COALESCE(contraparte, ''), COALESCE(contraparte_rfc, ''),
		       fecha, COALESCE(subtotal, 0), COALESCE(iva, 0), COALESCE(total, 0), COALESCE(tasa_iva, 0),
		       COALESCE(moneda, 'MXN'), COALESCE(origen, ''), COALESCE(uuid_fiscal, ''),
		       COALESCE(estado_validacion, ''), COALESCE(mensaje_validacion, ''),
		       COALESCE(documento_url, ''), COALESCE(texto_ocr, ''), COALESCE(warnings_json, ''),
		       created_at, updated_at
		FROM transacciones
		WHERE id = $1
	`

	var rec TransactionRecord
	err := Pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Concept, &rec.CounterpartName, &rec.CounterpartRFC,
		&rec.Date, &rec.Subtotal, &rec.Tax, &rec.Total, &rec.TaxRate,
		&rec.Currency, &rec.Source, &rec.FiscalStampID,
		&rec.ValidationStatus, &rec.ValidationMsg,
		&rec.DocumentURL, &rec.RawText, &rec.WarningsJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateTransaction updates the editable fields of a record.
func UpdateTransaction(ctx context.Context, id string, updates map[string]interface{}) error {
	// Build dynamic UPDATE query
	sets := []string{}
	args := []interface{}{}
	i := 1

	for field, value := range updates {
		sets = append(sets, fmt.Sprintf("%s = $%d", field, i))
		args = append(args, value)
		i++
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE transacciones SET %s WHERE id = $%d`,
		strings.Join(sets, ", "), i)
	args = append(args, id)

	tag, err := Pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaccion %s no encontrada", id)
	}
	return nil
}

// DeleteTransaction removes a record.
func DeleteTransaction(ctx context.Context, id string) error {
	tag, err := Pool.Exec(ctx, `DELETE FROM transacciones WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaccion %s no encontrada", id)
	}
	return nil
}

// MonthlyStats aggregates totals for one calendar month.
type MonthlyStats struct {
	Month      string  `json:"mes"`
	Count      int     `json:"cantidad"`
	TotalSum   float64 `json:"total"`
	TaxSum     float64 `json:"iva"`
	Structured int     `json:"estructuradas"`
	Recognized int     `json:"tickets"`
}

// GetMonthlyStats returns per-month aggregates for the last 12 months.
func GetMonthlyStats(ctx context.Context) ([]MonthlyStats, error) {
	query := `
		SELECT to_char(date_trunc('month', COALESCE(fecha, created_at)), 'YYYY-MM') AS mes,
		       COUNT(*),
		       COALESCE(SUM(total), 0),
		       COALESCE(SUM(iva), 0),
		       COUNT(*) FILTER (WHERE origen = 'structured'),
		       COUNT(*) FILTER (WHERE origen = 'recognized-text')
		FROM transacciones
		WHERE COALESCE(fecha, created_at) > NOW() - INTERVAL '12 months'
		GROUP BY 1
		ORDER BY 1 DESC
	`

	rows, err := Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []MonthlyStats
	for rows.Next() {
		var s MonthlyStats
		if err := rows.Scan(&s.Month, &s.Count, &s.TotalSum, &s.TaxSum, &s.Structured, &s.Recognized); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}
