package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Variable value kinds.
const (
	VarNumber  = "numero"
	VarText    = "texto"
	VarDate    = "fecha"
	VarBoolean = "booleano"
)

// IsVarKind reports whether tipo is a known variable value kind.
func IsVarKind(tipo string) bool {
	switch tipo {
	case VarNumber, VarText, VarDate, VarBoolean:
		return true
	}
	return false
}

// Indicator is a tracked metric owned by one secretaria. Periodicidades holds
// the allowed periodicity kinds from the indicador_periodicidades join table.
type Indicator struct {
	IDIndicador      int64     `json:"id_indicador" db:"id_indicador"`
	IDSecretaria     int64     `json:"id_secretaria" db:"id_secretaria"`
	Nombre           string    `json:"nombre" db:"nombre"`
	Descripcion      *string   `json:"descripcion,omitempty" db:"descripcion"`
	UnidadBase       *string   `json:"unidad_base,omitempty" db:"unidad_base"`
	EsActivo         bool      `json:"es_activo" db:"es_activo"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	NombreSecretaria string    `json:"nombre_secretaria,omitempty" db:"nombre_secretaria"`
	Periodicidades   []string  `json:"periodicidades"`
}

// Variable is a named, typed column collected under an indicator. Nombre is
// the literal spreadsheet column header. Only texto variables flagged
// EsDimension group chart series; only numero variables are summable.
type Variable struct {
	IDVariable    int64   `json:"id_variable" db:"id_variable"`
	IDIndicador   int64   `json:"id_indicador" db:"id_indicador"`
	Nombre        string  `json:"nombre" db:"nombre"`
	Tipo          string  `json:"tipo" db:"tipo"`
	Unidad        *string `json:"unidad,omitempty" db:"unidad"`
	EsDimension   bool    `json:"es_dimension" db:"es_dimension"`
	EsObligatoria bool    `json:"es_obligatoria" db:"es_obligatoria"`
	Orden         int     `json:"orden" db:"orden"`
}

// Municipality is reference data; records join it by internal id, spreadsheet
// rows by the stable external code.
type Municipality struct {
	IDMunicipio     int64  `json:"id_municipio" db:"id_municipio"`
	IDZona          int64  `json:"id_zona" db:"id_zona"`
	CodigoMunicipio string `json:"codigo_municipio" db:"codigo_municipio"`
	Nombre          string `json:"nombre" db:"nombre"`
}

// Record is one (indicator, municipality, period) observation container.
// The joined display fields and the Valores map are populated on reads.
type Record struct {
	IDRegistro  int64   `json:"id_registro" db:"id_registro"`
	IDIndicador int64   `json:"id_indicador" db:"id_indicador"`
	IDMunicipio int64   `json:"id_municipio" db:"id_municipio"`
	IDPeriodo   int64   `json:"id_periodo" db:"id_periodo"`
	Descripcion *string `json:"descripcion,omitempty" db:"descripcion"`

	NombreMunicipio string           `json:"nombre_municipio,omitempty" db:"nombre_municipio"`
	CodigoMunicipio string           `json:"codigo_municipio,omitempty" db:"codigo_municipio"`
	Tipo            string           `json:"tipo,omitempty" db:"tipo"`
	Anio            int              `json:"anio,omitempty" db:"anio"`
	Numero          *int             `json:"numero,omitempty" db:"numero"`
	Valores         map[int64]string `json:"valores,omitempty"`
}

// Value is one (record, variable) scalar measurement, stored as raw text.
type Value struct {
	IDValor    int64  `json:"id_valor" db:"id_valor"`
	IDRegistro int64  `json:"id_registro" db:"id_registro"`
	IDVariable int64  `json:"id_variable" db:"id_variable"`
	Valor      string `json:"valor" db:"valor"`
}

// ChartConfig holds the single visualization configuration of an indicator.
type ChartConfig struct {
	IDGrafico   int64  `json:"id_grafico" db:"id_grafico"`
	IDIndicador int64  `json:"id_indicador" db:"id_indicador"`
	Tipo        string `json:"tipo" db:"tipo"`
	VariableX   *int64 `json:"variable_x,omitempty" db:"variable_x"`
	VariableY   *int64 `json:"variable_y,omitempty" db:"variable_y"`
}

// CellKind classifies a spreadsheet cell after trimming.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
	CellDate
	CellBool
)

// CellValue is the tagged value of one spreadsheet cell, resolved against an
// indicator's variable list at ingestion time.
type CellValue struct {
	Kind CellKind
	Raw  string
}

var cellDateLayouts = []string{"2006-01-02", "02/01/2006", "01-02-06"}

// CellFromString classifies a raw cell. excelize hands back formatted strings,
// so numbers and dates arrive as text.
func CellFromString(s string) CellValue {
	s = strings.TrimSpace(s)
	if s == "" {
		return CellValue{Kind: CellEmpty}
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return CellValue{Kind: CellNumber, Raw: s}
	}
	for _, layout := range cellDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return CellValue{Kind: CellDate, Raw: s}
		}
	}
	switch strings.ToLower(s) {
	case "true", "false", "si", "no":
		return CellValue{Kind: CellBool, Raw: s}
	}
	return CellValue{Kind: CellText, Raw: s}
}

// CellFromAny classifies a decoded JSON value from a manual entry body.
func CellFromAny(v interface{}) CellValue {
	switch t := v.(type) {
	case nil:
		return CellValue{Kind: CellEmpty}
	case string:
		return CellFromString(t)
	case bool:
		return CellValue{Kind: CellBool, Raw: strconv.FormatBool(t)}
	case float64:
		return CellValue{Kind: CellNumber, Raw: strconv.FormatFloat(t, 'f', -1, 64)}
	default:
		return CellFromString(fmt.Sprintf("%v", v))
	}
}

// IsPresent reports whether the cell carries any content. Required-variable
// checks use presence, so an explicit zero satisfies a required variable.
func (c CellValue) IsPresent() bool {
	return c.Kind != CellEmpty
}

// ShouldStore reports whether the cell produces a value row. Values are
// sparse: empty cells and numeric zeros are not recorded.
func (c CellValue) ShouldStore() bool {
	if c.Kind == CellEmpty {
		return false
	}
	if c.Kind == CellNumber {
		if f, err := strconv.ParseFloat(c.Raw, 64); err == nil && f == 0 {
			return false
		}
	}
	return true
}

// ValidationError reports malformed or missing user input.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
