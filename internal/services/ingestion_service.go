package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"indicator-platform/internal/models"
	"indicator-platform/internal/repository"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

// Spreadsheet layout: fixed columns first, then one column per variable name.
const (
	colMunicipio   = "Codigo Municipio"
	colPeriodo     = "Periodo"
	colDescripcion = "Descripcion"

	defaultDescription = "Carga Masiva"
)

// ErrEmptyUpload reports a spreadsheet with no data rows.
var ErrEmptyUpload = errors.New("el archivo está vacío")

// AllRowsFailedError aborts a bulk upload in which every row was rejected;
// nothing is written.
type AllRowsFailedError struct {
	Errors []string
}

func (e *AllRowsFailedError) Error() string {
	return fmt.Sprintf("todos los registros fallaron (%d errores)", len(e.Errors))
}

// IngestionResult reports the outcome of one bulk upload.
type IngestionResult struct {
	Created int
	Errors  []string
	Partial bool
}

// IngestionService runs the spreadsheet bulk-upload pipeline.
type IngestionService struct {
	repo    repository.IndicatorRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(repo repository.IndicatorRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// stagedRecord couples a candidate record with its source row for value
// extraction after the batch insert assigns ids.
type stagedRecord struct {
	record *models.Record
	cells  map[string]string
}

// IngestFile validates and loads a spreadsheet upload for one indicator.
// Rows fail independently: a bad municipality code, period notation or
// missing required variable rejects that row and the pipeline continues.
// Surviving rows are written in two transactional batches (records, then
// values). When every row fails nothing is written and an AllRowsFailedError
// carries the per-row log.
func (s *IngestionService) IngestFile(ctx context.Context, indicatorID int64, file io.Reader) (*IngestionResult, error) {
	startTime := time.Now()
	defer func() {
		s.metrics.IngestionDuration.Observe(time.Since(startTime).Seconds())
	}()

	rows, err := decodeSheet(file)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyUpload
	}

	s.logger.Info(ctx, "[INGEST_START] Starting bulk upload", logging.Fields{
		"id_indicador": indicatorID,
		"rows":         len(rows),
	})

	indicator, err := s.repo.GetIndicator(ctx, indicatorID)
	if err != nil {
		return nil, err
	}
	if len(indicator.Periodicidades) == 0 {
		return nil, &models.ValidationError{
			Field:   "periodicidad",
			Message: "indicador sin periodicidad definida",
		}
	}

	variables, err := s.repo.ListVariables(ctx, indicatorID)
	if err != nil {
		return nil, err
	}

	// One lookup for the whole file instead of one query per row.
	muniByCode, err := s.repo.MunicipalityCodeMap(ctx)
	if err != nil {
		return nil, err
	}

	var staged []*stagedRecord
	var rowErrors []string

	for i, cells := range rows {
		rowNum := i + 2 // 1-based plus the header row

		muniID, ok := muniByCode[strings.TrimSpace(cells[colMunicipio])]
		if !ok {
			rowErrors = append(rowErrors,
				fmt.Sprintf("Fila %d: Código de municipio '%s' no válido.", rowNum, cells[colMunicipio]))
			s.metrics.RecordIngestionError("municipio_invalido")
			continue
		}

		tipo, anio, numero, err := parseAllowedNotation(indicator.Periodicidades, strings.TrimSpace(cells[colPeriodo]))
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Fila %d: %s", rowNum, err.Error()))
			s.metrics.RecordIngestionError("periodo_invalido")
			continue
		}

		if missing := missingRequired(variables, cells); missing != "" {
			rowErrors = append(rowErrors,
				fmt.Sprintf("Fila %d: La variable obligatoria '%s' no tiene valor.", rowNum, missing))
			s.metrics.RecordIngestionError("variable_obligatoria")
			continue
		}

		// Sequential on purpose: an earlier row may create the period a
		// later row reuses.
		periodID, err := s.repo.ResolvePeriod(ctx, tipo, anio, numero)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve period for row %d: %w", rowNum, err)
		}

		descripcion := defaultDescription
		if d := strings.TrimSpace(cells[colDescripcion]); d != "" {
			descripcion = d
		}

		staged = append(staged, &stagedRecord{
			record: &models.Record{
				IDIndicador: indicatorID,
				IDMunicipio: muniID,
				IDPeriodo:   periodID,
				Descripcion: &descripcion,
			},
			cells: cells,
		})
	}

	if len(staged) == 0 && len(rowErrors) > 0 {
		s.logger.Warn(ctx, "[INGEST_ALL_FAILED] Every row was rejected", logging.Fields{
			"id_indicador": indicatorID,
			"errors":       len(rowErrors),
		})
		return &IngestionResult{Errors: rowErrors}, &AllRowsFailedError{Errors: rowErrors}
	}

	records := make([]*models.Record, len(staged))
	for i, st := range staged {
		records[i] = st.record
	}
	if _, err := s.repo.CreateRecordsBatch(ctx, records); err != nil {
		return nil, err
	}

	var values []*models.Value
	for _, st := range staged {
		for _, variable := range variables {
			cell := models.CellFromString(st.cells[variable.Nombre])
			if !cell.ShouldStore() {
				continue
			}
			values = append(values, &models.Value{
				IDRegistro: st.record.IDRegistro,
				IDVariable: variable.IDVariable,
				Valor:      cell.Raw,
			})
		}
	}
	if _, err := s.repo.CreateValuesBatch(ctx, values); err != nil {
		return nil, err
	}

	s.metrics.IngestionRowsTotal.Add(float64(len(staged)))

	result := &IngestionResult{
		Created: len(staged),
		Errors:  rowErrors,
		Partial: len(rowErrors) > 0,
	}

	s.logger.Info(ctx, "[INGEST_COMPLETE] Bulk upload completed", logging.Fields{
		"id_indicador": indicatorID,
		"created":      result.Created,
		"failed_rows":  len(rowErrors),
		"values":       len(values),
		"duration_ms":  time.Since(startTime).Milliseconds(),
	})

	return result, nil
}

// decodeSheet reads the first worksheet into header-keyed rows. Rows whose
// cells are all blank are dropped.
func decodeSheet(file io.Reader) ([]map[string]string, error) {
	wb, err := excelize.OpenReader(file)
	if err != nil {
		return nil, &models.ValidationError{Field: "archivo", Message: "el archivo no es una hoja de cálculo válida"}
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyUpload
	}

	raw, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet: %w", err)
	}
	if len(raw) < 2 {
		return nil, nil
	}

	headers := raw[0]
	var rows []map[string]string
	for _, line := range raw[1:] {
		cells := make(map[string]string, len(headers))
		empty := true
		for j, header := range headers {
			var cell string
			if j < len(line) {
				cell = line[j]
			}
			cells[strings.TrimSpace(header)] = cell
			if strings.TrimSpace(cell) != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, cells)
		}
	}
	return rows, nil
}

// parseAllowedNotation tries the period cell against each allowed kind in
// canonical order; the first match wins. The notations of distinct kinds do
// not overlap, so the order only decides the error message.
func parseAllowedNotation(allowed []string, raw string) (string, int, *int, error) {
	var firstErr error
	for _, tipo := range models.PeriodKinds {
		if !contains(allowed, tipo) {
			continue
		}
		anio, numero, err := models.ParsePeriodNotation(tipo, raw)
		if err == nil {
			return tipo, anio, numero, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &models.ValidationError{Field: "periodicidad", Message: "indicador sin periodicidad definida"}
	}
	return "", 0, nil, firstErr
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// missingRequired returns the name of the first required variable whose cell
// is absent or blank. An explicit zero counts as present.
func missingRequired(variables []*models.Variable, cells map[string]string) string {
	for _, v := range variables {
		if !v.EsObligatoria {
			continue
		}
		if !models.CellFromString(cells[v.Nombre]).IsPresent() {
			return v.Nombre
		}
	}
	return ""
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// BuildTemplate writes an empty upload workbook for the indicator: the fixed
// columns followed by one column per variable in display order. The returned
// filename derives from the indicator name with whitespace collapsed to '_'.
func (s *IngestionService) BuildTemplate(ctx context.Context, indicatorID int64) ([]byte, string, error) {
	indicator, err := s.repo.GetIndicator(ctx, indicatorID)
	if err != nil {
		return nil, "", err
	}
	variables, err := s.repo.ListVariables(ctx, indicatorID)
	if err != nil {
		return nil, "", err
	}

	headers := []string{colMunicipio, colPeriodo, colDescripcion}
	for _, v := range variables {
		headers = append(headers, v.Nombre)
	}

	wb := excelize.NewFile()
	defer wb.Close()

	const sheet = "Plantilla"
	wb.SetSheetName(wb.GetSheetName(0), sheet)
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, "", fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := wb.SetCellValue(sheet, cell, header); err != nil {
			return nil, "", fmt.Errorf("failed to write header: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to serialize template: %w", err)
	}

	filename := fmt.Sprintf("Plantilla_%s.xlsx", whitespacePattern.ReplaceAllString(indicator.Nombre, "_"))
	return buf.Bytes(), filename, nil
}
