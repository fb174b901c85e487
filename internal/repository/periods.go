package repository

import (
	"context"
	"database/sql"
	"fmt"

	"indicator-platform/internal/models"
	"indicator-platform/pkg/logging"
)

// ResolvePeriod returns the id of the canonical period row for
// (tipo, anio, numero), creating it with derived dates when absent. A nil
// numero only matches rows whose numero is NULL. Concurrent resolution of the
// same tuple is safe: a lost insert race falls back to re-selecting the row
// the winner created.
func (r *indicatorRepository) ResolvePeriod(ctx context.Context, tipo string, anio int, numero *int) (int64, error) {
	id, err := r.findPeriod(ctx, tipo, anio, numero)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up period: %w", err)
	}

	inicio, fin, err := models.PeriodDates(tipo, anio, numero)
	if err != nil {
		return 0, err
	}

	// NULLS NOT DISTINCT unique index backs the ON CONFLICT arbiter, so two
	// concurrent resolvers of the same tuple cannot both insert.
	var inserted sql.NullInt64
	err = r.db.DB().QueryRowContext(ctx, `
		INSERT INTO periodos (tipo, anio, numero, fecha_inicio, fecha_fin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tipo, anio, numero) DO NOTHING
		RETURNING id_periodo
	`, tipo, anio, numero, inicio, fin).Scan(&inserted)

	if err == nil && inserted.Valid {
		r.metrics.PeriodsCreatedTotal.Inc()
		r.logger.Debug(ctx, "[REPO_PERIOD_CREATE] Period created", logging.Fields{
			"tipo": tipo,
			"anio": anio,
		})
		return inserted.Int64, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to create period: %w", err)
	}

	// Lost the race: someone else inserted the row between lookup and insert.
	id, err = r.findPeriod(ctx, tipo, anio, numero)
	if err != nil {
		return 0, fmt.Errorf("failed to re-select period after conflict: %w", err)
	}
	return id, nil
}

func (r *indicatorRepository) findPeriod(ctx context.Context, tipo string, anio int, numero *int) (int64, error) {
	query := `SELECT id_periodo FROM periodos WHERE tipo = $1 AND anio = $2`
	args := []interface{}{tipo, anio}

	if numero != nil {
		query += " AND numero = $3"
		args = append(args, *numero)
	} else {
		query += " AND numero IS NULL"
	}

	var id int64
	err := r.db.GetContext(ctx, "find_period", &id, query, args...)
	return id, err
}

// ListPeriods retrieves all periods, newest first.
func (r *indicatorRepository) ListPeriods(ctx context.Context) ([]*models.Period, error) {
	query := `
		SELECT id_periodo, tipo, anio, numero, fecha_inicio, fecha_fin
		FROM periodos
		ORDER BY anio DESC, numero DESC NULLS LAST
	`

	var periods []*models.Period
	err := r.db.SelectContext(ctx, "list_periods", &periods, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}

	return periods, nil
}

// ListIndicatorPeriods retrieves the periods that actually hold records for
// an indicator, for UI filter dropdowns.
func (r *indicatorRepository) ListIndicatorPeriods(ctx context.Context, indicatorID int64) ([]*models.Period, error) {
	query := `
		SELECT DISTINCT p.id_periodo, p.tipo, p.anio, p.numero, p.fecha_inicio, p.fecha_fin
		FROM periodos p
		JOIN indicador_registros r ON r.id_periodo = p.id_periodo
		WHERE r.id_indicador = $1
		ORDER BY p.anio DESC, p.numero DESC NULLS LAST
	`

	var periods []*models.Period
	err := r.db.SelectContext(ctx, "list_indicator_periods", &periods, query, indicatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list indicator periods: %w", err)
	}

	return periods, nil
}
