package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Periodicity kinds. The spreadsheet notation and the stored `tipo` column use
// these literals.
const (
	PeriodAnnual     = "anual"
	PeriodSemiannual = "semestral"
	PeriodQuarterly  = "trimestral"
	PeriodMonthly    = "mensual"
)

// PeriodKinds lists the valid periodicity kinds in canonical order. Bulk
// ingestion tries notations in this order when an indicator allows more than
// one kind.
var PeriodKinds = []string{PeriodAnnual, PeriodSemiannual, PeriodQuarterly, PeriodMonthly}

// IsPeriodKind reports whether tipo is a known periodicity kind.
func IsPeriodKind(tipo string) bool {
	for _, k := range PeriodKinds {
		if k == tipo {
			return true
		}
	}
	return false
}

// Period represents a canonical time bucket. Numero is nil for annual periods;
// a nil Numero and any concrete number are distinct buckets.
type Period struct {
	IDPeriodo   int64     `json:"id_periodo" db:"id_periodo"`
	Tipo        string    `json:"tipo" db:"tipo"`
	Anio        int       `json:"anio" db:"anio"`
	Numero      *int      `json:"numero" db:"numero"`
	FechaInicio time.Time `json:"fecha_inicio" db:"fecha_inicio"`
	FechaFin    time.Time `json:"fecha_fin" db:"fecha_fin"`
}

// Label returns the period in the same notation ParsePeriodNotation accepts,
// e.g. "2024", "2024-S1", "2024-T3", "2024-05".
func (p *Period) Label() string {
	return PeriodNotation(p.Tipo, p.Anio, p.Numero)
}

var (
	annualPattern     = regexp.MustCompile(`^(\d{4})$`)
	semiannualPattern = regexp.MustCompile(`^(\d{4})-[Ss]([1-2])$`)
	quarterlyPattern  = regexp.MustCompile(`^(\d{4})-[Tt]([1-4])$`)
	monthlyPattern    = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
)

// notationFormats describes the expected cell format per kind, used in parse
// error messages shown to spreadsheet operators.
var notationFormats = map[string]string{
	PeriodAnnual:     "AAAA (ej. 2024)",
	PeriodSemiannual: "AAAA-S1 o AAAA-S2",
	PeriodQuarterly:  "AAAA-T1 a AAAA-T4",
	PeriodMonthly:    "AAAA-MM (ej. 2024-05)",
}

// ParseError reports a period cell that does not match the notation for its
// periodicity kind.
type ParseError struct {
	Tipo     string
	Input    string
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("formato de periodo '%s' inválido para periodicidad %s (se espera %s)",
		e.Input, e.Tipo, e.Expected)
}

// ParsePeriodNotation validates a free-text period cell against the notation
// for the given periodicity kind and extracts (year, sub-period number).
// The sub-period is nil for annual periods. The parse is all-or-nothing.
func ParsePeriodNotation(tipo, raw string) (int, *int, error) {
	fail := func() (int, *int, error) {
		expected := notationFormats[tipo]
		if expected == "" {
			expected = "una periodicidad conocida"
		}
		return 0, nil, &ParseError{Tipo: tipo, Input: raw, Expected: expected}
	}

	switch tipo {
	case PeriodAnnual:
		m := annualPattern.FindStringSubmatch(raw)
		if m == nil {
			return fail()
		}
		anio, _ := strconv.Atoi(m[1])
		return anio, nil, nil

	case PeriodSemiannual:
		m := semiannualPattern.FindStringSubmatch(raw)
		if m == nil {
			return fail()
		}
		anio, _ := strconv.Atoi(m[1])
		numero, _ := strconv.Atoi(m[2])
		return anio, &numero, nil

	case PeriodQuarterly:
		m := quarterlyPattern.FindStringSubmatch(raw)
		if m == nil {
			return fail()
		}
		anio, _ := strconv.Atoi(m[1])
		numero, _ := strconv.Atoi(m[2])
		return anio, &numero, nil

	case PeriodMonthly:
		m := monthlyPattern.FindStringSubmatch(raw)
		if m == nil {
			return fail()
		}
		anio, _ := strconv.Atoi(m[1])
		numero, _ := strconv.Atoi(m[2])
		if numero < 1 || numero > 12 {
			return fail()
		}
		return anio, &numero, nil
	}

	return fail()
}

// PeriodNotation is the inverse of ParsePeriodNotation for valid input.
func PeriodNotation(tipo string, anio int, numero *int) string {
	switch tipo {
	case PeriodSemiannual:
		if numero != nil {
			return fmt.Sprintf("%d-S%d", anio, *numero)
		}
	case PeriodQuarterly:
		if numero != nil {
			return fmt.Sprintf("%d-T%d", anio, *numero)
		}
	case PeriodMonthly:
		if numero != nil {
			return fmt.Sprintf("%d-%02d", anio, *numero)
		}
	}
	return strconv.Itoa(anio)
}

// InvalidPeriodSpecError reports a (tipo, anio, numero) combination whose
// calendar dates cannot be derived.
type InvalidPeriodSpecError struct {
	Tipo   string
	Anio   int
	Numero *int
}

func (e *InvalidPeriodSpecError) Error() string {
	if e.Numero == nil {
		return fmt.Sprintf("no se pudo calcular fechas para %s %d", e.Tipo, e.Anio)
	}
	return fmt.Sprintf("no se pudo calcular fechas para %s %d numero %d", e.Tipo, e.Anio, *e.Numero)
}

// PeriodDates derives the inclusive [start, end] calendar range for a period.
// Sub-period ranges tile the year exactly: S1+S2, T1..T4 and the twelve months
// cover it with no overlap. Month ends are leap-year aware.
func PeriodDates(tipo string, anio int, numero *int) (time.Time, time.Time, error) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	fail := func() (time.Time, time.Time, error) {
		return time.Time{}, time.Time{}, &InvalidPeriodSpecError{Tipo: tipo, Anio: anio, Numero: numero}
	}

	switch tipo {
	case PeriodAnnual:
		if numero != nil {
			return fail()
		}
		return day(anio, time.January, 1), day(anio, time.December, 31), nil

	case PeriodSemiannual:
		if numero == nil {
			return fail()
		}
		switch *numero {
		case 1:
			return day(anio, time.January, 1), day(anio, time.June, 30), nil
		case 2:
			return day(anio, time.July, 1), day(anio, time.December, 31), nil
		}
		return fail()

	case PeriodQuarterly:
		if numero == nil || *numero < 1 || *numero > 4 {
			return fail()
		}
		startMonth := time.Month((*numero-1)*3 + 1)
		start := day(anio, startMonth, 1)
		// day 0 of the following month normalizes to the quarter's last day
		end := day(anio, startMonth+3, 0)
		return start, end, nil

	case PeriodMonthly:
		if numero == nil || *numero < 1 || *numero > 12 {
			return fail()
		}
		start := day(anio, time.Month(*numero), 1)
		end := day(anio, time.Month(*numero)+1, 0)
		return start, end, nil
	}

	return fail()
}
