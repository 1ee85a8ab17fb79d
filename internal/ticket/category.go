package ticket

import "strings"

// Expense taxonomy inferred from the establishment name. Codes come from the
// internal expense-type catalog used by the persistence layer.
const (
	CategoryFood      = "601" // alimentos y bebidas
	CategoryFuel      = "602" // combustibles
	CategoryLodging   = "603" // hospedaje
	CategoryTransport = "604" // transporte
	CategoryOffice    = "605" // papelería y oficina
	CategoryOther     = "699" // otros gastos
)

var categoryKeywords = []struct {
	code     string
	concept  string
	keywords []string
}{
	{CategoryFood, "Consumo de alimentos", []string{
		"RESTAURANT", "TACOS", "TAQUERIA", "CAFE", "CAFETERIA", "COCINA",
		"PIZZA", "SUSHI", "COMIDA", "MARISCOS", "POLLO", "BURGER", "TORTAS",
		"ANTOJITOS", "BAR ", "CANTINA", "PANADERIA",
	}},
	{CategoryFuel, "Combustible", []string{
		"GASOLINERA", "PEMEX", "COMBUSTIBLE", "ESTACION DE SERVICIO", "GASOLINA", "DIESEL",
	}},
	{CategoryLodging, "Hospedaje", []string{
		"HOTEL", "MOTEL", "SUITES", "POSADA", "HOSTAL",
	}},
	{CategoryTransport, "Transporte", []string{
		"TAXI", "AUTOBUS", "PEAJE", "CASETA", "ESTACIONAMIENTO", "PENSION", "AUTOTRANSPORTE",
	}},
	{CategoryOffice, "Papelería y oficina", []string{
		"PAPELERIA", "OFFICE", "OFIX", "DEPOT", "LIBRERIA",
	}},
}

// suggestCategory keyword-classifies the establishment name into the fixed
// taxonomy and returns (concept, category code).
func suggestCategory(establishment string) (string, string) {
	upper := strings.ToUpper(establishment)
	for _, c := range categoryKeywords {
		for _, k := range c.keywords {
			if strings.Contains(upper, k) {
				return c.concept, c.code
			}
		}
	}
	return "Gasto general", CategoryOther
}
