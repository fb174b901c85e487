package services

import (
	"context"

	"indicator-platform/internal/models"
	"indicator-platform/internal/repository"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

// IndicatorService handles indicator, variable and chart-config management.
type IndicatorService struct {
	repo    repository.IndicatorRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIndicatorService creates a new indicator service.
func NewIndicatorService(repo repository.IndicatorRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IndicatorService {
	return &IndicatorService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// ListIndicators retrieves indicators with filtering and pagination.
func (s *IndicatorService) ListIndicators(ctx context.Context, filter repository.IndicatorFilter) ([]*models.Indicator, int, error) {
	return s.repo.ListIndicators(ctx, filter)
}

// CreateIndicator validates and inserts an indicator with its allowed
// periodicity kinds.
func (s *IndicatorService) CreateIndicator(ctx context.Context, ind *models.Indicator) (int64, error) {
	if ind.Nombre == "" {
		return 0, &models.ValidationError{Field: "nombre", Message: "El nombre del indicador es obligatorio"}
	}
	if ind.IDSecretaria == 0 {
		return 0, &models.ValidationError{Field: "id_secretaria", Message: "La secretaría es obligatoria"}
	}
	if len(ind.Periodicidades) == 0 {
		return 0, &models.ValidationError{Field: "periodicidades", Message: "La periodicidad es obligatoria"}
	}
	for _, tipo := range ind.Periodicidades {
		if !models.IsPeriodKind(tipo) {
			return 0, &models.ValidationError{Field: "periodicidades", Value: tipo, Message: "periodicidad '" + tipo + "' desconocida"}
		}
	}
	return s.repo.CreateIndicator(ctx, ind)
}

// UpdateIndicator applies a partial update.
func (s *IndicatorService) UpdateIndicator(ctx context.Context, id int64, upd repository.IndicatorUpdate) error {
	for _, tipo := range upd.Periodicidades {
		if !models.IsPeriodKind(tipo) {
			return &models.ValidationError{Field: "periodicidades", Value: tipo, Message: "periodicidad '" + tipo + "' desconocida"}
		}
	}
	return s.repo.UpdateIndicator(ctx, id, upd)
}

// GetIndicator retrieves one indicator.
func (s *IndicatorService) GetIndicator(ctx context.Context, id int64) (*models.Indicator, error) {
	return s.repo.GetIndicator(ctx, id)
}

// DeleteIndicator hard-deletes an indicator and everything it owns.
func (s *IndicatorService) DeleteIndicator(ctx context.Context, id int64) error {
	return s.repo.DeleteIndicator(ctx, id)
}

// ListVariables retrieves an indicator's variables in display order.
func (s *IndicatorService) ListVariables(ctx context.Context, indicatorID int64) ([]*models.Variable, error) {
	if _, err := s.repo.GetIndicator(ctx, indicatorID); err != nil {
		return nil, err
	}
	return s.repo.ListVariables(ctx, indicatorID)
}

// CreateVariable validates and inserts a variable.
func (s *IndicatorService) CreateVariable(ctx context.Context, v *models.Variable) (int64, error) {
	if v.Nombre == "" {
		return 0, &models.ValidationError{Field: "nombre", Message: "El nombre de la variable es obligatorio"}
	}
	if !models.IsVarKind(v.Tipo) {
		return 0, &models.ValidationError{Field: "tipo", Value: v.Tipo, Message: "El tipo de variable es obligatorio"}
	}
	// only text variables can act as chart dimensions
	if v.EsDimension && v.Tipo != models.VarText {
		return 0, &models.ValidationError{Field: "es_dimension", Message: "solo variables de texto pueden ser dimensión"}
	}
	if _, err := s.repo.GetIndicator(ctx, v.IDIndicador); err != nil {
		return 0, err
	}
	return s.repo.CreateVariable(ctx, v)
}

// UpdateVariable applies a partial update.
func (s *IndicatorService) UpdateVariable(ctx context.Context, id int64, upd repository.VariableUpdate) error {
	if upd.Tipo != nil && !models.IsVarKind(*upd.Tipo) {
		return &models.ValidationError{Field: "tipo", Value: *upd.Tipo, Message: "tipo de variable desconocido"}
	}
	return s.repo.UpdateVariable(ctx, id, upd)
}

// DeleteVariable removes a variable and its values.
func (s *IndicatorService) DeleteVariable(ctx context.Context, id int64) error {
	return s.repo.DeleteVariable(ctx, id)
}

// GetChartConfig retrieves the visualization config; a missing config is a
// repository.NotFoundError the handler renders as an empty object.
func (s *IndicatorService) GetChartConfig(ctx context.Context, indicatorID int64) (*models.ChartConfig, error) {
	return s.repo.GetChartConfig(ctx, indicatorID)
}

// SaveChartConfig upserts the one-per-indicator visualization config.
func (s *IndicatorService) SaveChartConfig(ctx context.Context, cfg *models.ChartConfig) error {
	if _, err := s.repo.GetIndicator(ctx, cfg.IDIndicador); err != nil {
		return err
	}
	return s.repo.UpsertChartConfig(ctx, cfg)
}
