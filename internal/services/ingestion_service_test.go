package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"indicator-platform/internal/models"
	"indicator-platform/internal/repository"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

// one collector per test binary; promauto registers on the default registry
var testMetrics = metrics.NewCollector("services_test")

func testLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("test", "0.0.0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func intPtr(v int) *int {
	return &v
}

func strPtr(s string) *string {
	return &s
}

// buildWorkbook writes an xlsx with the given header row and data rows.
func buildWorkbook(t *testing.T, headers []string, rows [][]string) io.Reader {
	t.Helper()

	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)

	writeRow := func(rowNum int, cells []string) {
		for i, cell := range cells {
			name, err := excelize.CoordinatesToCellName(i+1, rowNum)
			if err != nil {
				t.Fatalf("failed to build cell name: %v", err)
			}
			if err := wb.SetCellValue(sheet, name, cell); err != nil {
				t.Fatalf("failed to write cell: %v", err)
			}
		}
	}

	writeRow(1, headers)
	for i, row := range rows {
		writeRow(i+2, row)
	}

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		t.Fatalf("failed to serialize workbook: %v", err)
	}
	return &buf
}

// seedIndicator creates an annual indicator with three variables: a required
// numeric "Casos", an optional numeric "Inversion" and a text dimension
// "Zona". Returns (repo, indicatorID, variable ids by name).
func seedIndicator(t *testing.T, periodicidades ...string) (*repository.MemoryRepository, int64, map[string]int64) {
	t.Helper()

	if len(periodicidades) == 0 {
		periodicidades = []string{models.PeriodAnnual}
	}

	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	indicatorID, err := repo.CreateIndicator(ctx, &models.Indicator{
		Nombre:         "Cobertura en Salud",
		IDSecretaria:   1,
		EsActivo:       true,
		UnidadBase:     strPtr("personas"),
		Periodicidades: periodicidades,
	})
	if err != nil {
		t.Fatalf("failed to seed indicator: %v", err)
	}

	varIDs := make(map[string]int64)
	seedVar := func(nombre, tipo string, obligatoria, dimension bool, orden int) {
		id, err := repo.CreateVariable(ctx, &models.Variable{
			IDIndicador:   indicatorID,
			Nombre:        nombre,
			Tipo:          tipo,
			EsObligatoria: obligatoria,
			EsDimension:   dimension,
			Orden:         orden,
		})
		if err != nil {
			t.Fatalf("failed to seed variable %s: %v", nombre, err)
		}
		varIDs[nombre] = id
	}
	seedVar("Casos", models.VarNumber, true, false, 1)
	seedVar("Inversion", models.VarNumber, false, false, 2)
	seedVar("Zona", models.VarText, false, true, 3)

	return repo, indicatorID, varIDs
}

func TestIngestFile_PartialLoad(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	repo.AddMunicipality("05001", "Medellín")
	repo.AddMunicipality("05002", "Bello")

	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo", "Descripcion", "Casos", "Inversion", "Zona"}
	rows := [][]string{
		{"05001", "2023", "", "120", "500", "Urbana"},
		{"05002", "2023", "Carga especial", "80", "", "Rural"},
		{"05001", "2024", "", "150", "0", "Urbana"},
		{"99999", "2024", "", "10", "", "Urbana"}, // sheet row 5: unknown code
	}

	result, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, rows))
	if err != nil {
		t.Fatalf("IngestFile unexpected error: %v", err)
	}

	if result.Created != 3 {
		t.Errorf("Created = %d, want 3", result.Created)
	}
	if !result.Partial {
		t.Error("Partial = false, want true")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1: %v", len(result.Errors), result.Errors)
	}
	if !strings.Contains(result.Errors[0], "Fila 5") {
		t.Errorf("error %q should reference sheet row 5", result.Errors[0])
	}
	if !strings.Contains(result.Errors[0], "99999") {
		t.Errorf("error %q should carry the bad code", result.Errors[0])
	}

	// sparse values: empty Inversion (row 2) and zero Inversion (row 3)
	// produce no value rows
	records, values := repo.CountRecords()
	if records != 3 {
		t.Errorf("stored records = %d, want 3", records)
	}
	if values != 7 {
		t.Errorf("stored values = %d, want 7", values)
	}
}

func TestIngestFile_AllRowsFailed(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	repo.AddMunicipality("05001", "Medellín")

	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo", "Casos"}
	rows := [][]string{
		{"88888", "2023", "120"},     // unknown municipality
		{"05001", "2023-T1", "80"},   // quarterly notation on an annual indicator
		{"05001", "2024", ""},        // required Casos missing
	}

	_, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, rows))

	var allFailed *AllRowsFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("error = %v, want *AllRowsFailedError", err)
	}
	if len(allFailed.Errors) != 3 {
		t.Fatalf("len(Errors) = %d, want 3: %v", len(allFailed.Errors), allFailed.Errors)
	}
	if !strings.Contains(allFailed.Errors[1], "Fila 3") {
		t.Errorf("second error %q should reference sheet row 3", allFailed.Errors[1])
	}
	if !strings.Contains(allFailed.Errors[2], "Casos") {
		t.Errorf("third error %q should name the missing required variable", allFailed.Errors[2])
	}

	// nothing is written on a total failure
	records, values := repo.CountRecords()
	if records != 0 || values != 0 {
		t.Errorf("store = (%d records, %d values), want (0, 0)", records, values)
	}
}

func TestIngestFile_RequiredZeroCounts(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	repo.AddMunicipality("05001", "Medellín")

	svc := NewIngestionService(repo, testLogger(), testMetrics)

	// Casos is required; an explicit zero satisfies the requirement but
	// still produces no value row.
	headers := []string{"Codigo Municipio", "Periodo", "Casos"}
	rows := [][]string{{"05001", "2023", "0"}}

	result, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, rows))
	if err != nil {
		t.Fatalf("IngestFile unexpected error: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("Created = %d, want 1", result.Created)
	}

	records, values := repo.CountRecords()
	if records != 1 {
		t.Errorf("stored records = %d, want 1", records)
	}
	if values != 0 {
		t.Errorf("stored values = %d, want 0", values)
	}
}

func TestIngestFile_PeriodReuse(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t, models.PeriodQuarterly)
	repo.AddMunicipality("05001", "Medellín")
	repo.AddMunicipality("05002", "Bello")

	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo", "Casos"}
	rows := [][]string{
		{"05001", "2024-T1", "10"},
		{"05002", "2024-T1", "20"},
		{"05001", "2024-T2", "30"},
	}

	result, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, rows))
	if err != nil {
		t.Fatalf("IngestFile unexpected error: %v", err)
	}
	if result.Created != 3 {
		t.Fatalf("Created = %d, want 3", result.Created)
	}

	// two rows shared 2024-T1: only two distinct periods exist
	periods, err := repo.ListPeriods(context.Background())
	if err != nil {
		t.Fatalf("ListPeriods error: %v", err)
	}
	if len(periods) != 2 {
		t.Errorf("periods = %d, want 2", len(periods))
	}
}

func TestIngestFile_DuplicateWithinFile(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	repo.AddMunicipality("05001", "Medellín")

	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo", "Casos"}
	rows := [][]string{
		{"05001", "2023", "10"},
		{"05001", "2023", "20"}, // same municipality and period
	}

	_, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, rows))

	var conflict *repository.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *repository.ConflictError", err)
	}

	// the batch rolls back as a whole
	records, _ := repo.CountRecords()
	if records != 0 {
		t.Errorf("stored records = %d, want 0", records)
	}
}

func TestIngestFile_EmptyUpload(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo", "Casos"}

	_, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, nil))
	if !errors.Is(err, ErrEmptyUpload) {
		t.Fatalf("error = %v, want ErrEmptyUpload", err)
	}
}

func TestIngestFile_InvalidFile(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	svc := NewIngestionService(repo, testLogger(), testMetrics)

	_, err := svc.IngestFile(context.Background(), indicatorID, strings.NewReader("not a workbook"))

	var validation *models.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("error = %v, want *models.ValidationError", err)
	}
}

func TestIngestFile_UnknownIndicator(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo"}
	rows := [][]string{{"05001", "2023"}}

	_, err := svc.IngestFile(context.Background(), 42, buildWorkbook(t, headers, rows))

	var notFound *repository.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *repository.NotFoundError", err)
	}
}

func TestIngestFile_DefaultDescription(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	repo.AddMunicipality("05001", "Medellín")

	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo", "Descripcion", "Casos"}
	rows := [][]string{
		{"05001", "2023", "", "10"},
		{"05001", "2024", "Ajuste manual", "20"},
	}

	if _, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, rows)); err != nil {
		t.Fatalf("IngestFile unexpected error: %v", err)
	}

	records, err := repo.GetRecords(context.Background(), indicatorID, nil)
	if err != nil {
		t.Fatalf("GetRecords error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	byYear := make(map[int]string)
	for _, rec := range records {
		if rec.Descripcion != nil {
			byYear[rec.Anio] = *rec.Descripcion
		}
	}
	if byYear[2023] != "Carga Masiva" {
		t.Errorf("2023 descripcion = %q, want default %q", byYear[2023], "Carga Masiva")
	}
	if byYear[2024] != "Ajuste manual" {
		t.Errorf("2024 descripcion = %q, want %q", byYear[2024], "Ajuste manual")
	}
}

func TestIngestFile_MultiKindNotation(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t, models.PeriodAnnual, models.PeriodMonthly)
	repo.AddMunicipality("05001", "Medellín")

	svc := NewIngestionService(repo, testLogger(), testMetrics)

	headers := []string{"Codigo Municipio", "Periodo", "Casos"}
	rows := [][]string{
		{"05001", "2024", "10"},    // annual notation
		{"05001", "2024-03", "5"},  // monthly notation
	}

	result, err := svc.IngestFile(context.Background(), indicatorID, buildWorkbook(t, headers, rows))
	if err != nil {
		t.Fatalf("IngestFile unexpected error: %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("Created = %d, want 2", result.Created)
	}

	periods, _ := repo.ListPeriods(context.Background())
	kinds := make(map[string]bool)
	for _, p := range periods {
		kinds[p.Tipo] = true
	}
	if !kinds[models.PeriodAnnual] || !kinds[models.PeriodMonthly] {
		t.Errorf("period kinds = %v, want both anual and mensual", kinds)
	}
}

func TestBuildTemplate(t *testing.T) {
	repo, indicatorID, _ := seedIndicator(t)
	svc := NewIngestionService(repo, testLogger(), testMetrics)

	data, filename, err := svc.BuildTemplate(context.Background(), indicatorID)
	if err != nil {
		t.Fatalf("BuildTemplate unexpected error: %v", err)
	}
	if filename != "Plantilla_Cobertura_en_Salud.xlsx" {
		t.Errorf("filename = %q, want %q", filename, "Plantilla_Cobertura_en_Salud.xlsx")
	}

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("template is not a readable workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(wb.GetSheetName(0))
	if err != nil {
		t.Fatalf("failed to read template rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("template rows = %d, want header only", len(rows))
	}

	want := []string{"Codigo Municipio", "Periodo", "Descripcion", "Casos", "Inversion", "Zona"}
	if len(rows[0]) != len(want) {
		t.Fatalf("header = %v, want %v", rows[0], want)
	}
	for i, h := range want {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}
}

func TestBuildTemplate_UnknownIndicator(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewIngestionService(repo, testLogger(), testMetrics)

	_, _, err := svc.BuildTemplate(context.Background(), 7)

	var notFound *repository.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *repository.NotFoundError", err)
	}
}
