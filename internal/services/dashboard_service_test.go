package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"indicator-platform/internal/models"
	"indicator-platform/internal/repository"
)

// seedDashboard loads two municipalities with records in 2023 and 2024.
// Returns the repo, the indicator id, the variable ids, and the municipality
// ids keyed by code.
func seedDashboard(t *testing.T) (*repository.MemoryRepository, int64, map[string]int64, map[string]int64) {
	t.Helper()

	repo, indicatorID, varIDs := seedIndicator(t)
	munis := map[string]int64{
		"05001": repo.AddMunicipality("05001", "Medellín"),
		"05002": repo.AddMunicipality("05002", "Bello"),
	}

	records := NewRecordsService(repo, testLogger(), testMetrics)
	ctx := context.Background()

	submit := func(muni string, anio int, casos, inversion float64, zona string) {
		valores := []ManualValue{
			{IDVariable: varIDs["Casos"], Valor: casos},
			{IDVariable: varIDs["Zona"], Valor: zona},
		}
		if inversion != 0 {
			valores = append(valores, ManualValue{IDVariable: varIDs["Inversion"], Valor: inversion})
		}
		if _, err := records.SubmitManual(ctx, indicatorID, &ManualEntry{
			IDMunicipio: munis[muni],
			Anio:        anio,
			Valores:     valores,
		}); err != nil {
			t.Fatalf("seed submit %s/%d failed: %v", muni, anio, err)
		}
	}

	submit("05001", 2023, 100, 500, "Urbana")
	submit("05001", 2024, 150, 0, "Urbana")
	submit("05002", 2023, 40, 200, "Rural")
	submit("05002", 2024, 60, 0, "Rural")

	return repo, indicatorID, varIDs, munis
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestGetDashboard_MapTotals(t *testing.T) {
	repo, indicatorID, _, _ := seedDashboard(t)
	svc := NewDashboardService(repo, testLogger(), testMetrics)

	data, err := svc.GetDashboard(context.Background(), indicatorID, repository.DashboardFilter{})
	if err != nil {
		t.Fatalf("GetDashboard unexpected error: %v", err)
	}

	// all numeric values sum per municipality: Casos plus Inversion
	if got := data.MapData["05001"]; !almostEqual(got, 100+150+500) {
		t.Errorf("mapData[05001] = %v, want 750", got)
	}
	if got := data.MapData["05002"]; !almostEqual(got, 40+60+200) {
		t.Errorf("mapData[05002] = %v, want 300", got)
	}
}

func TestGetDashboard_VariableFilter(t *testing.T) {
	repo, indicatorID, varIDs, _ := seedDashboard(t)
	svc := NewDashboardService(repo, testLogger(), testMetrics)

	casosID := varIDs["Casos"]
	data, err := svc.GetDashboard(context.Background(), indicatorID, repository.DashboardFilter{
		VariableID: &casosID,
	})
	if err != nil {
		t.Fatalf("GetDashboard unexpected error: %v", err)
	}

	if got := data.MapData["05001"]; !almostEqual(got, 250) {
		t.Errorf("mapData[05001] = %v, want 250", got)
	}
	if got := data.MapData["05002"]; !almostEqual(got, 100) {
		t.Errorf("mapData[05002] = %v, want 100", got)
	}
}

// Sums filtered to each period must add up to the unfiltered sums.
func TestGetDashboard_PeriodAdditivity(t *testing.T) {
	repo, indicatorID, _, _ := seedDashboard(t)
	svc := NewDashboardService(repo, testLogger(), testMetrics)
	ctx := context.Background()

	unfiltered, err := svc.GetDashboard(ctx, indicatorID, repository.DashboardFilter{})
	if err != nil {
		t.Fatalf("GetDashboard unexpected error: %v", err)
	}

	periods, err := repo.ListIndicatorPeriods(ctx, indicatorID)
	if err != nil {
		t.Fatalf("ListIndicatorPeriods error: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("periods = %d, want 2", len(periods))
	}

	summed := make(map[string]float64)
	for _, p := range periods {
		periodID := p.IDPeriodo
		part, err := svc.GetDashboard(ctx, indicatorID, repository.DashboardFilter{PeriodID: &periodID})
		if err != nil {
			t.Fatalf("GetDashboard period %d error: %v", periodID, err)
		}
		for code, total := range part.MapData {
			summed[code] += total
		}
	}

	for code, total := range unfiltered.MapData {
		if !almostEqual(summed[code], total) {
			t.Errorf("per-period sums for %s = %v, want unfiltered %v", code, summed[code], total)
		}
	}
}

func TestGetDashboard_Charts(t *testing.T) {
	repo, indicatorID, varIDs, _ := seedDashboard(t)
	svc := NewDashboardService(repo, testLogger(), testMetrics)

	data, err := svc.GetDashboard(context.Background(), indicatorID, repository.DashboardFilter{})
	if err != nil {
		t.Fatalf("GetDashboard unexpected error: %v", err)
	}

	// only Zona is a text dimension
	if len(data.Charts) != 1 {
		t.Fatalf("charts = %d, want 1", len(data.Charts))
	}
	chart := data.Charts[0]
	if chart.DimensionID != varIDs["Zona"] {
		t.Errorf("DimensionID = %d, want %d", chart.DimensionID, varIDs["Zona"])
	}
	if chart.DimensionName != "Zona" {
		t.Errorf("DimensionName = %q, want Zona", chart.DimensionName)
	}

	// one bucket per (municipality, dimension value, year)
	if len(chart.Data) != 4 {
		t.Fatalf("chart points = %d, want 4: %v", len(chart.Data), chart.Data)
	}

	byName := make(map[string]ChartPoint)
	for _, p := range chart.Data {
		byName[p.Name] = p
	}
	point, ok := byName["Medellín - Urbana (2023)"]
	if !ok {
		t.Fatalf("missing chart point Medellín - Urbana (2023): have %v", byName)
	}
	if !almostEqual(point.Value, 600) {
		t.Errorf("point value = %v, want 600", point.Value)
	}
	if point.Unit != "personas" {
		t.Errorf("point unit = %q, want base unit personas", point.Unit)
	}
}

func TestGetDashboard_DeleteDropsTotals(t *testing.T) {
	repo, indicatorID, _, _ := seedDashboard(t)
	dashboard := NewDashboardService(repo, testLogger(), testMetrics)
	records := NewRecordsService(repo, testLogger(), testMetrics)
	ctx := context.Background()

	all, err := records.ListRecords(ctx, indicatorID, nil)
	if err != nil {
		t.Fatalf("ListRecords error: %v", err)
	}

	var target *models.Record
	for _, rec := range all {
		if rec.CodigoMunicipio == "05002" {
			target = rec
			break
		}
	}
	if target == nil {
		t.Fatal("no record for municipality 05002")
	}

	before, err := dashboard.GetDashboard(ctx, indicatorID, repository.DashboardFilter{})
	if err != nil {
		t.Fatalf("GetDashboard error: %v", err)
	}

	if _, err := records.DeleteRecord(ctx, target.IDRegistro); err != nil {
		t.Fatalf("DeleteRecord error: %v", err)
	}

	after, err := dashboard.GetDashboard(ctx, indicatorID, repository.DashboardFilter{})
	if err != nil {
		t.Fatalf("GetDashboard after delete error: %v", err)
	}

	if !(after.MapData["05002"] < before.MapData["05002"]) {
		t.Errorf("mapData[05002] = %v after delete, want less than %v",
			after.MapData["05002"], before.MapData["05002"])
	}
	if !almostEqual(after.MapData["05001"], before.MapData["05001"]) {
		t.Errorf("mapData[05001] changed: %v -> %v", before.MapData["05001"], after.MapData["05001"])
	}
}

func TestGetDashboard_UnknownIndicator(t *testing.T) {
	repo := repository.NewMemoryRepository()
	svc := NewDashboardService(repo, testLogger(), testMetrics)

	_, err := svc.GetDashboard(context.Background(), 123, repository.DashboardFilter{})

	var notFound *repository.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *repository.NotFoundError", err)
	}
}
