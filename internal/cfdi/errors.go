package cfdi

import "fmt"

// MalformedInputError means the input is not well-formed XML at all.
type MalformedInputError struct {
	Err error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("documento XML mal formado: %v", e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// StructureError means the comprobante root node is absent or unrecognized.
type StructureError struct {
	Got string
}

func (e *StructureError) Error() string {
	if e.Got == "" {
		return "nodo Comprobante no encontrado"
	}
	return fmt.Sprintf("nodo Comprobante no encontrado (raiz: %s)", e.Got)
}

// PartyMissingError means the Emisor or Receptor sub-node is absent.
type PartyMissingError struct {
	Party string // "Emisor" or "Receptor"
}

func (e *PartyMissingError) Error() string {
	return fmt.Sprintf("nodo %s requerido no encontrado", e.Party)
}
