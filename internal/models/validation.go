package models

import "time"

// ValidationStatus is the classified answer of the SAT registry for a UUID.
type ValidationStatus string

const (
	StatusValid      ValidationStatus = "valid"
	StatusCancelled  ValidationStatus = "cancelled"
	StatusNotFound   ValidationStatus = "not_found"
	StatusError      ValidationStatus = "error"
	StatusUnverified ValidationStatus = "unverified" // connectivity failures only
)

// ValidationOutcome is the result of checking a stamped invoice against the
// registry. Outcomes are returned as data, never raised, so callers can
// branch on Status. At most one of Valid/Cancelled/NotFound applies.
type ValidationOutcome struct {
	UUID          string           `json:"uuid"`
	Status        ValidationStatus `json:"estado"`
	RawStatusCode string           `json:"codigoEstatus,omitempty"`
	Cancellable   bool             `json:"esCancelable"`
	Message       string           `json:"mensaje"`
	Timestamp     time.Time        `json:"timestamp"`
	FromCache     bool             `json:"fromCache"`
	PermitSave    bool             `json:"permitirGuardar"`
}

// IsDeterminate reports whether the registry gave a definitive answer that is
// safe to cache. Error and Unverified outcomes must stay retryable.
func (o ValidationOutcome) IsDeterminate() bool {
	switch o.Status {
	case StatusValid, StatusCancelled, StatusNotFound:
		return true
	}
	return false
}
