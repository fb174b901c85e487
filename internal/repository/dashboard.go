package repository

import (
	"context"
	"fmt"
	"time"

	"indicator-platform/pkg/logging"
)

// numericValue guards the CAST: stored values are raw text and only cells that
// look like numbers participate in sums.
const numericValue = `v.valor ~ '^-?[0-9]+([.][0-9]+)?$'`

// MunicipalityTotals sums every numeric value under the indicator per
// municipality, keyed by external municipality code. Municipalities without
// matching values are absent; the map consumer renders absence as "no data".
func (r *indicatorRepository) MunicipalityTotals(ctx context.Context, indicatorID int64, filter DashboardFilter) (map[string]float64, error) {
	timer := time.Now()
	defer func() {
		r.metrics.DashboardQueryDuration.Observe(time.Since(timer).Seconds())
	}()

	query := `
		SELECT m.codigo_municipio, SUM(CAST(v.valor AS NUMERIC)) AS total
		FROM indicador_valores v
		JOIN indicador_variables iv ON iv.id_variable = v.id_variable AND iv.tipo = 'numero'
		JOIN indicador_registros r ON r.id_registro = v.id_registro
		JOIN municipios m ON m.id_municipio = r.id_municipio
		WHERE r.id_indicador = $1 AND ` + numericValue
	args := []interface{}{indicatorID}
	argNum := 2

	query, args, argNum = applyDashboardFilter(query, args, argNum, filter)

	query += " GROUP BY m.codigo_municipio"

	rows, err := r.db.QueryContext(ctx, "dashboard_map_totals", query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate municipality totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var code string
		var total float64
		if err := rows.Scan(&code, &total); err != nil {
			return nil, fmt.Errorf("failed to scan total row: %w", err)
		}
		totals[code] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading total rows: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_DASHBOARD_MAP] Municipality totals computed", logging.Fields{
		"id_indicador": indicatorID,
		"buckets":      len(totals),
	})

	return totals, nil
}

// DimensionTotals groups the indicator's records by (municipality, dimension
// text value, period year) and sums every numeric value in each group,
// ordered by year descending then municipality name ascending.
func (r *indicatorRepository) DimensionTotals(ctx context.Context, indicatorID, dimensionID int64, filter DashboardFilter) ([]*DimensionGroup, error) {
	timer := time.Now()
	defer func() {
		r.metrics.DashboardQueryDuration.Observe(time.Since(timer).Seconds())
	}()

	query := `
		SELECT m.nombre AS municipio, dv.valor AS dimension, p.anio,
		       SUM(CAST(v.valor AS NUMERIC)) AS total
		FROM indicador_registros r
		JOIN indicador_valores dv ON dv.id_registro = r.id_registro AND dv.id_variable = $2
		JOIN indicador_valores v ON v.id_registro = r.id_registro
		JOIN indicador_variables iv ON iv.id_variable = v.id_variable AND iv.tipo = 'numero'
		JOIN municipios m ON m.id_municipio = r.id_municipio
		JOIN periodos p ON p.id_periodo = r.id_periodo
		WHERE r.id_indicador = $1 AND ` + numericValue
	args := []interface{}{indicatorID, dimensionID}
	argNum := 3

	query, args, _ = applyDashboardFilter(query, args, argNum, filter)

	query += `
		GROUP BY m.nombre, dv.valor, p.anio
		ORDER BY p.anio DESC, m.nombre ASC`

	var groups []*DimensionGroup
	err := r.db.SelectContext(ctx, "dashboard_dimension_totals", &groups, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dimension totals: %w", err)
	}

	return groups, nil
}

// applyDashboardFilter appends the optional period/municipality/variable
// predicates shared by both aggregation queries.
func applyDashboardFilter(query string, args []interface{}, argNum int, filter DashboardFilter) (string, []interface{}, int) {
	if filter.PeriodID != nil {
		query += fmt.Sprintf(" AND r.id_periodo = $%d", argNum)
		args = append(args, *filter.PeriodID)
		argNum++
	}
	if filter.MunicipalityID != nil {
		query += fmt.Sprintf(" AND r.id_municipio = $%d", argNum)
		args = append(args, *filter.MunicipalityID)
		argNum++
	}
	if filter.VariableID != nil {
		query += fmt.Sprintf(" AND v.id_variable = $%d", argNum)
		args = append(args, *filter.VariableID)
		argNum++
	}
	return query, args, argNum
}
