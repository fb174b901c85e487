package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"indicator-platform/internal/models"
	"indicator-platform/pkg/database"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

// IndicatorRepository provides data access for indicators, periods, records
// and values.
type IndicatorRepository interface {
	// Indicator operations
	ListIndicators(ctx context.Context, filter IndicatorFilter) ([]*models.Indicator, int, error)
	CreateIndicator(ctx context.Context, ind *models.Indicator) (int64, error)
	UpdateIndicator(ctx context.Context, id int64, upd IndicatorUpdate) error
	GetIndicator(ctx context.Context, id int64) (*models.Indicator, error)
	DeleteIndicator(ctx context.Context, id int64) error

	// Variable operations
	ListVariables(ctx context.Context, indicatorID int64) ([]*models.Variable, error)
	CreateVariable(ctx context.Context, v *models.Variable) (int64, error)
	UpdateVariable(ctx context.Context, id int64, upd VariableUpdate) error
	DeleteVariable(ctx context.Context, id int64) error

	// Chart configuration
	GetChartConfig(ctx context.Context, indicatorID int64) (*models.ChartConfig, error)
	UpsertChartConfig(ctx context.Context, cfg *models.ChartConfig) error

	// Municipality lookup (reference data, mutated elsewhere)
	MunicipalityCodeMap(ctx context.Context) (map[string]int64, error)

	// Period operations
	ResolvePeriod(ctx context.Context, tipo string, anio int, numero *int) (int64, error)
	ListPeriods(ctx context.Context) ([]*models.Period, error)
	ListIndicatorPeriods(ctx context.Context, indicatorID int64) ([]*models.Period, error)

	// Record/value batch writes (each call is one transaction)
	CreateRecordsBatch(ctx context.Context, records []*models.Record) ([]*models.Record, error)
	CreateValuesBatch(ctx context.Context, values []*models.Value) (int, error)
	CreateRecordWithValues(ctx context.Context, rec *models.Record, values []*models.Value) (int64, error)
	GetRecords(ctx context.Context, indicatorID int64, periodID *int64) ([]*models.Record, error)
	DeleteRecord(ctx context.Context, recordID int64) (bool, error)

	// Dashboard aggregation
	MunicipalityTotals(ctx context.Context, indicatorID int64, filter DashboardFilter) (map[string]float64, error)
	DimensionTotals(ctx context.Context, indicatorID, dimensionID int64, filter DashboardFilter) ([]*DimensionGroup, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// IndicatorFilter defines filters for listing indicators.
type IndicatorFilter struct {
	Query        *string
	Active       *bool
	SecretariaID *int64
	Limit        int
	Offset       int
}

// IndicatorUpdate carries partial indicator updates; nil fields are left
// untouched. A non-nil Periodicidades replaces the allowed-kind set.
type IndicatorUpdate struct {
	Nombre         *string
	Descripcion    *string
	UnidadBase     *string
	EsActivo       *bool
	IDSecretaria   *int64
	Periodicidades []string
}

// VariableUpdate carries partial variable updates; nil fields are left
// untouched.
type VariableUpdate struct {
	Nombre        *string
	Tipo          *string
	Unidad        *string
	EsDimension   *bool
	EsObligatoria *bool
	Orden         *int
}

// DashboardFilter narrows dashboard aggregation.
type DashboardFilter struct {
	PeriodID       *int64
	MunicipalityID *int64
	VariableID     *int64
}

/// DimensionGroup is one aggregated chart bucket: all numeric values of the
// records sharing (municipality, dimension text value, period year).
type DimensionGroup struct {
	Municipio string  `db:"municipio"`
	Dimension string  `db:"dimension"`
	Anio      int     `db:"anio"`
	Total     float64 `db:"total"`
}

// indicatorRepository implements IndicatorRepository over PostgreSQL.
type indicatorRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIndicatorRepository creates a new PostgreSQL-backed repository.
func NewIndicatorRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) IndicatorRepository {
	return &indicatorRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// HealthCheck performs a repository health check.
func (r *indicatorRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError represents a uniqueness violation, e.g. a duplicate
// (indicator, municipality, period) record.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Detail)
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
