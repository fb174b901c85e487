package services

import (
	"context"
	"fmt"
	"time"

	"indicator-platform/internal/models"
	"indicator-platform/internal/repository"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

// ChartPoint is one aggregated bucket of a dimension chart.
type ChartPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Chart is one series grouped by a dimension variable.
type Chart struct {
	DimensionID   int64        `json:"dimensionId"`
	DimensionName string       `json:"dimensionName"`
	Data          []ChartPoint `json:"data"`
}

// DashboardData feeds the choropleth map and the dimension charts. MapData is
// keyed by external municipality code; municipalities without values are
// absent.
type DashboardData struct {
	MapData map[string]float64 `json:"mapData"`
	Charts  []Chart            `json:"charts"`
}

// DashboardService computes map and chart aggregates for one indicator.
type DashboardService struct {
	repo    repository.IndicatorRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(repo repository.IndicatorRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DashboardService {
	return &DashboardService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetDashboard aggregates the indicator's numeric values: per-municipality
// sums for the map, and one chart per dimension variable grouped by
// (municipality, dimension value, year). Filtering by variable narrows the
// sums to that single numeric variable.
func (s *DashboardService) GetDashboard(ctx context.Context, indicatorID int64, filter repository.DashboardFilter) (*DashboardData, error) {
	startTime := time.Now()

	indicator, err := s.repo.GetIndicator(ctx, indicatorID)
	if err != nil {
		return nil, err
	}
	variables, err := s.repo.ListVariables(ctx, indicatorID)
	if err != nil {
		return nil, err
	}

	mapData, err := s.repo.MunicipalityTotals(ctx, indicatorID, filter)
	if err != nil {
		return nil, err
	}

	unit := chartUnit(indicator, variables, filter.VariableID)

	charts := []Chart{}
	for _, v := range variables {
		// only text variables flagged as dimensions group chart series
		if !v.EsDimension || v.Tipo != models.VarText {
			continue
		}
		groups, err := s.repo.DimensionTotals(ctx, indicatorID, v.IDVariable, filter)
		if err != nil {
			return nil, err
		}
		chart := Chart{
			DimensionID:   v.IDVariable,
			DimensionName: v.Nombre,
			Data:          make([]ChartPoint, 0, len(groups)),
		}
		for _, g := range groups {
			chart.Data = append(chart.Data, ChartPoint{
				Name:  fmt.Sprintf("%s - %s (%d)", g.Municipio, g.Dimension, g.Anio),
				Value: g.Total,
				Unit:  unit,
			})
		}
		charts = append(charts, chart)
	}

	s.logger.Debug(ctx, "[DASHBOARD] Aggregation completed", logging.Fields{
		"id_indicador": indicatorID,
		"map_buckets":  len(mapData),
		"charts":       len(charts),
		"duration_ms":  time.Since(startTime).Milliseconds(),
	})

	return &DashboardData{MapData: mapData, Charts: charts}, nil
}

// chartUnit picks the unit shown on chart tooltips: the filtered variable's
// unit when a variable filter is set, the indicator's base unit otherwise.
func chartUnit(indicator *models.Indicator, variables []*models.Variable, variableID *int64) string {
	if variableID != nil {
		for _, v := range variables {
			if v.IDVariable == *variableID && v.Unidad != nil {
				return *v.Unidad
			}
		}
	}
	if indicator.UnidadBase != nil {
		return *indicator.UnidadBase
	}
	return ""
}
