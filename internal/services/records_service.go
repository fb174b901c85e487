package services

import (
	"context"
	"strings"

	"indicator-platform/internal/models"
	"indicator-platform/internal/repository"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

// ManualValue is one variable value of a manual entry. Valor keeps the raw
// JSON value; numbers, booleans and strings are all accepted.
type ManualValue struct {
	IDVariable int64       `json:"id_variable"`
	Valor      interface{} `json:"valor"`
}

// ManualEntry is the JSON body of a manual record submission. Tipo may be
// omitted when the indicator allows exactly one periodicity kind.
type ManualEntry struct {
	IDMunicipio int64         `json:"id_municipio"`
	Tipo        string        `json:"tipo"`
	Anio        int           `json:"anio"`
	Numero      *int          `json:"numero"`
	Descripcion *string       `json:"descripcion"`
	Valores     []ManualValue `json:"valores"`
}

// RecordsService validates and persists manual entries and serves record
// listings.
type RecordsService struct {
	repo    repository.IndicatorRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewRecordsService creates a new records service.
func NewRecordsService(repo repository.IndicatorRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *RecordsService {
	return &RecordsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// SubmitManual validates a manually-entered record against the indicator's
// periodicity rules, resolves its period, and persists the record with its
// values as one logical operation. A duplicate (indicator, municipality,
// period) surfaces as a repository.ConflictError.
func (s *RecordsService) SubmitManual(ctx context.Context, indicatorID int64, entry *ManualEntry) (int64, error) {
	if entry.IDMunicipio == 0 || entry.Anio == 0 {
		return 0, &models.ValidationError{
			Field:   "id_municipio",
			Message: "Municipio y Año son obligatorios",
		}
	}

	indicator, err := s.repo.GetIndicator(ctx, indicatorID)
	if err != nil {
		return 0, err
	}

	tipo, err := resolveEntryKind(indicator.Periodicidades, entry.Tipo)
	if err != nil {
		return 0, err
	}

	numero := entry.Numero
	if tipo == models.PeriodAnnual {
		// annual periods have no sub-period; a stray numero is dropped
		numero = nil
	} else if numero == nil {
		return 0, &models.ValidationError{
			Field:   "numero",
			Message: "Para periodicidad " + tipo + " se requiere especificar el periodo (número)",
		}
	}

	variables, err := s.repo.ListVariables(ctx, indicatorID)
	if err != nil {
		return 0, err
	}
	if missing := missingRequiredManual(variables, entry.Valores); missing != "" {
		return 0, &models.ValidationError{
			Field:   missing,
			Message: "La variable obligatoria '" + missing + "' no tiene valor",
		}
	}

	periodID, err := s.repo.ResolvePeriod(ctx, tipo, entry.Anio, numero)
	if err != nil {
		return 0, err
	}

	record := &models.Record{
		IDIndicador: indicatorID,
		IDMunicipio: entry.IDMunicipio,
		IDPeriodo:   periodID,
		Descripcion: entry.Descripcion,
	}

	// Values are sparse here too: empty submissions produce no rows.
	var values []*models.Value
	for _, mv := range entry.Valores {
		cell := models.CellFromAny(mv.Valor)
		if !cell.ShouldStore() {
			continue
		}
		values = append(values, &models.Value{
			IDVariable: mv.IDVariable,
			Valor:      cell.Raw,
		})
	}

	recordID, err := s.repo.CreateRecordWithValues(ctx, record, values)
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "[MANUAL_ENTRY] Record created", logging.Fields{
		"id_indicador": indicatorID,
		"id_registro":  recordID,
		"tipo":         tipo,
		"anio":         entry.Anio,
		"values":       len(values),
	})

	return recordID, nil
}

// resolveEntryKind picks the periodicity kind of a manual entry. An explicit
// tipo must be in the indicator's allowed set; an omitted tipo defaults to
// the sole allowed kind and is ambiguous when the indicator allows several.
func resolveEntryKind(allowed []string, tipo string) (string, error) {
	if len(allowed) == 0 {
		return "", &models.ValidationError{
			Field:   "periodicidad",
			Message: "indicador sin periodicidad definida",
		}
	}

	tipo = strings.TrimSpace(tipo)
	if tipo == "" {
		if len(allowed) == 1 {
			return allowed[0], nil
		}
		return "", &models.ValidationError{
			Field:   "tipo",
			Message: "el indicador admite varias periodicidades; especifique el tipo",
		}
	}

	if !contains(allowed, tipo) {
		return "", &models.ValidationError{
			Field:   "tipo",
			Value:   tipo,
			Message: "periodicidad '" + tipo + "' no permitida para este indicador",
		}
	}
	return tipo, nil
}

func missingRequiredManual(variables []*models.Variable, values []ManualValue) string {
	provided := make(map[int64]bool, len(values))
	for _, mv := range values {
		if models.CellFromAny(mv.Valor).IsPresent() {
			provided[mv.IDVariable] = true
		}
	}
	for _, v := range variables {
		if v.EsObligatoria && !provided[v.IDVariable] {
			return v.Nombre
		}
	}
	return ""
}

// ListRecords retrieves an indicator's records with joined display fields and
// values keyed by variable id, optionally narrowed to one period.
func (s *RecordsService) ListRecords(ctx context.Context, indicatorID int64, periodID *int64) ([]*models.Record, error) {
	if _, err := s.repo.GetIndicator(ctx, indicatorID); err != nil {
		return nil, err
	}
	return s.repo.GetRecords(ctx, indicatorID, periodID)
}

// DeleteRecord removes a record and, by cascade, its values.
func (s *RecordsService) DeleteRecord(ctx context.Context, recordID int64) (bool, error) {
	return s.repo.DeleteRecord(ctx, recordID)
}

// ListPeriods returns every known period for UI dropdowns.
func (s *RecordsService) ListPeriods(ctx context.Context) ([]*models.Period, error) {
	return s.repo.ListPeriods(ctx)
}

// ListIndicatorPeriods returns the periods holding records for an indicator.
func (s *RecordsService) ListIndicatorPeriods(ctx context.Context, indicatorID int64) ([]*models.Period, error) {
	return s.repo.ListIndicatorPeriods(ctx, indicatorID)
}
