package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"indicator-platform/internal/models"
	"indicator-platform/pkg/logging"
)

// ListIndicators retrieves indicators joined with their secretaria name, with
// filtering and pagination.
func (r *indicatorRepository) ListIndicators(ctx context.Context, filter IndicatorFilter) ([]*models.Indicator, int, error) {
	query := `
		SELECT i.id_indicador, i.id_secretaria, i.nombre, i.descripcion, i.unidad_base,
		       i.es_activo, i.created_at, s.nombre AS nombre_secretaria
		FROM indicadores i
		JOIN secretarias s ON i.id_secretaria = s.id_secretaria
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.Query != nil {
		query += fmt.Sprintf(" AND (i.nombre ILIKE $%d OR s.nombre ILIKE $%d)", argNum, argNum)
		args = append(args, "%"+*filter.Query+"%")
		argNum++
	}

	if filter.Active != nil {
		query += fmt.Sprintf(" AND i.es_activo = $%d", argNum)
		args = append(args, *filter.Active)
		argNum++
	}

	if filter.SecretariaID != nil {
		query += fmt.Sprintf(" AND i.id_secretaria = $%d", argNum)
		args = append(args, *filter.SecretariaID)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_indicators", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count indicators: %w", err)
	}

	query += " ORDER BY i.created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var indicators []*models.Indicator
	err = r.db.SelectContext(ctx, "list_indicators", &indicators, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list indicators: %w", err)
	}

	return indicators, totalCount, nil
}

// CreateIndicator inserts an indicator and its allowed periodicities.
func (r *indicatorRepository) CreateIndicator(ctx context.Context, ind *models.Indicator) (int64, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO indicadores (id_secretaria, nombre, descripcion, unidad_base, es_activo)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id_indicador
	`, ind.IDSecretaria, ind.Nombre, ind.Descripcion, ind.UnidadBase, ind.EsActivo).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create indicator: %w", err)
	}

	for _, tipo := range ind.Periodicidades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO indicador_periodicidades (id_indicador, tipo) VALUES ($1, $2)
		`, id, tipo); err != nil {
			return 0, fmt.Errorf("failed to set periodicity %s: %w", tipo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// UpdateIndicator applies a partial update; a non-nil Periodicidades in upd
// replaces the allowed-kind set.
func (r *indicatorRepository) UpdateIndicator(ctx context.Context, id int64, upd IndicatorUpdate) error {
	sets := []string{}
	args := []interface{}{}
	argNum := 1

	appendSet := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argNum))
		args = append(args, v)
		argNum++
	}

	if upd.Nombre != nil {
		appendSet("nombre", *upd.Nombre)
	}
	if upd.Descripcion != nil {
		appendSet("descripcion", *upd.Descripcion)
	}
	if upd.UnidadBase != nil {
		appendSet("unidad_base", *upd.UnidadBase)
	}
	if upd.EsActivo != nil {
		appendSet("es_activo", *upd.EsActivo)
	}
	if upd.IDSecretaria != nil {
		appendSet("id_secretaria", *upd.IDSecretaria)
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(sets) > 0 {
		query := "UPDATE indicadores SET "
		for i, s := range sets {
			if i > 0 {
				query += ", "
			}
			query += s
		}
		query += fmt.Sprintf(" WHERE id_indicador = $%d", argNum)
		args = append(args, id)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update indicator: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &NotFoundError{Resource: "indicador", ID: strconv.FormatInt(id, 10)}
		}
	}

	if upd.Periodicidades != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM indicador_periodicidades WHERE id_indicador = $1`, id); err != nil {
			return fmt.Errorf("failed to clear periodicities: %w", err)
		}
		for _, tipo := range upd.Periodicidades {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO indicador_periodicidades (id_indicador, tipo) VALUES ($1, $2)
			`, id, tipo); err != nil {
				return fmt.Errorf("failed to set periodicity %s: %w", tipo, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetIndicator retrieves an indicator with its secretaria name and allowed
// periodicity kinds.
func (r *indicatorRepository) GetIndicator(ctx context.Context, id int64) (*models.Indicator, error) {
	query := `
		SELECT i.id_indicador, i.id_secretaria, i.nombre, i.descripcion, i.unidad_base,
		       i.es_activo, i.created_at, COALESCE(s.nombre, '') AS nombre_secretaria
		FROM indicadores i
		LEFT JOIN secretarias s ON i.id_secretaria = s.id_secretaria
		WHERE i.id_indicador = $1
	`

	var ind models.Indicator
	err := r.db.GetContext(ctx, "get_indicator", &ind, query, id)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "indicador", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get indicator: %w", err)
	}

	ind.Periodicidades = []string{}
	err = r.db.SelectContext(ctx, "get_indicator_periodicities", &ind.Periodicidades, `
		SELECT tipo FROM indicador_periodicidades WHERE id_indicador = $1 ORDER BY tipo
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get indicator periodicities: %w", err)
	}

	return &ind, nil
}

// DeleteIndicator hard-deletes an indicator; variables, records and values
// cascade at the storage layer. Soft-deactivation via es_activo is the normal
// operator path.
func (r *indicatorRepository) DeleteIndicator(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "delete_indicator", `DELETE FROM indicadores WHERE id_indicador = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete indicator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "indicador", ID: strconv.FormatInt(id, 10)}
	}
	return nil
}

// ListVariables retrieves an indicator's variables in display order.
func (r *indicatorRepository) ListVariables(ctx context.Context, indicatorID int64) ([]*models.Variable, error) {
	query := `
		SELECT id_variable, id_indicador, nombre, tipo, unidad, es_dimension, es_obligatoria, orden
		FROM indicador_variables
		WHERE id_indicador = $1
		ORDER BY orden, id_variable
	`

	var variables []*models.Variable
	err := r.db.SelectContext(ctx, "list_variables", &variables, query, indicatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}

	return variables, nil
}

// CreateVariable inserts a variable under its indicator.
func (r *indicatorRepository) CreateVariable(ctx context.Context, v *models.Variable) (int64, error) {
	query := `
		INSERT INTO indicador_variables (id_indicador, nombre, tipo, unidad, es_dimension, es_obligatoria, orden)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id_variable
	`

	var id int64
	err := r.db.DB().QueryRowContext(ctx, query,
		v.IDIndicador, v.Nombre, v.Tipo, v.Unidad, v.EsDimension, v.EsObligatoria, v.Orden,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create variable: %w", err)
	}

	return id, nil
}

// UpdateVariable applies a partial variable update.
func (r *indicatorRepository) UpdateVariable(ctx context.Context, id int64, upd VariableUpdate) error {
	sets := []string{}
	args := []interface{}{}
	argNum := 1

	appendSet := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argNum))
		args = append(args, v)
		argNum++
	}

	if upd.Nombre != nil {
		appendSet("nombre", *upd.Nombre)
	}
	if upd.Tipo != nil {
		appendSet("tipo", *upd.Tipo)
	}
	if upd.Unidad != nil {
		appendSet("unidad", *upd.Unidad)
	}
	if upd.EsDimension != nil {
		appendSet("es_dimension", *upd.EsDimension)
	}
	if upd.EsObligatoria != nil {
		appendSet("es_obligatoria", *upd.EsObligatoria)
	}
	if upd.Orden != nil {
		appendSet("orden", *upd.Orden)
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE indicador_variables SET "
	for i, s := range sets {
		if i > 0 {
			query += ", "
		}
		query += s
	}
	query += fmt.Sprintf(" WHERE id_variable = $%d", argNum)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, "update_variable", query, args...)
	if err != nil {
		return fmt.Errorf("failed to update variable: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "variable", ID: strconv.FormatInt(id, 10)}
	}

	return nil
}

// DeleteVariable removes a variable; its values cascade.
func (r *indicatorRepository) DeleteVariable(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "delete_variable", `DELETE FROM indicador_variables WHERE id_variable = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variable: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "variable", ID: strconv.FormatInt(id, 10)}
	}
	return nil
}

// GetChartConfig retrieves the visualization config of an indicator.
func (r *indicatorRepository) GetChartConfig(ctx context.Context, indicatorID int64) (*models.ChartConfig, error) {
	query := `
		SELECT id_grafico, id_indicador, tipo, variable_x, variable_y
		FROM indicador_graficos
		WHERE id_indicador = $1
	`

	var cfg models.ChartConfig
	err := r.db.GetContext(ctx, "get_chart_config", &cfg, query, indicatorID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "configuracion", ID: strconv.FormatInt(indicatorID, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chart config: %w", err)
	}

	return &cfg, nil
}

// UpsertChartConfig inserts or updates the one-per-indicator visualization
// config in a single statement, so the existence check cannot race the write.
func (r *indicatorRepository) UpsertChartConfig(ctx context.Context, cfg *models.ChartConfig) error {
	query := `
		INSERT INTO indicador_graficos (id_indicador, tipo, variable_x, variable_y)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id_indicador) DO UPDATE SET
			tipo = EXCLUDED.tipo,
			variable_x = EXCLUDED.variable_x,
			variable_y = EXCLUDED.variable_y
		RETURNING id_grafico
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		cfg.IDIndicador, cfg.Tipo, cfg.VariableX, cfg.VariableY,
	).Scan(&cfg.IDGrafico)
	if err != nil {
		return fmt.Errorf("failed to upsert chart config: %w", err)
	}

	return nil
}

// MunicipalityCodeMap loads the {external code -> municipality id} lookup
// table once per ingestion run, avoiding one query per spreadsheet row.
func (r *indicatorRepository) MunicipalityCodeMap(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, "municipality_code_map", `
		SELECT id_municipio, codigo_municipio FROM municipios
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load municipality codes: %w", err)
	}
	defer rows.Close()

	codeMap := make(map[string]int64)
	for rows.Next() {
		var id int64
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, fmt.Errorf("failed to scan municipality row: %w", err)
		}
		codeMap[code] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading municipality rows: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_MUNI_MAP] Municipality lookup loaded", logging.Fields{
		"count": len(codeMap),
	})

	return codeMap, nil
}
