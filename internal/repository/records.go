package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"indicator-platform/internal/models"
	"indicator-platform/pkg/logging"
)

// CreateRecordsBatch inserts records inside a single transaction and returns
// them with their assigned ids. Any single-row failure rolls back the whole
// batch; callers decide row-level versus batch-level error semantics.
func (r *indicatorRepository) CreateRecordsBatch(ctx context.Context, records []*models.Record) ([]*models.Record, error) {
	if len(records) == 0 {
		return records, nil
	}

	timer := time.Now()
	defer func() {
		r.metrics.IngestionBatchSize.Observe(float64(len(records)))
		r.logger.Debug(ctx, "[REPO_RECORDS_BATCH] Record batch insert completed", logging.Fields{
			"count":       len(records),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO indicador_registros (id_indicador, id_municipio, id_periodo, descripcion)
		VALUES ($1, $2, $3, $4)
		RETURNING id_registro
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		err := stmt.QueryRowContext(ctx, rec.IDIndicador, rec.IDMunicipio, rec.IDPeriodo, rec.Descripcion).
			Scan(&rec.IDRegistro)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, &ConflictError{
					Resource: "registro",
					Detail:   fmt.Sprintf("indicador %d, municipio %d, periodo %d", rec.IDIndicador, rec.IDMunicipio, rec.IDPeriodo),
				}
			}
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return records, nil
}

// CreateValuesBatch inserts values inside a single transaction and returns the
// inserted count. All rows commit together or none do.
func (r *indicatorRepository) CreateValuesBatch(ctx context.Context, values []*models.Value) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO indicador_valores (id_registro, id_variable, valor)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v.IDRegistro, v.IDVariable, v.Valor); err != nil {
			return 0, fmt.Errorf("failed to insert value: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.ValuesWrittenTotal.Add(float64(len(values)))

	return len(values), nil
}

// CreateRecordWithValues inserts one record and its values in the same
// transaction, as one logical operation. A duplicate
// (indicator, municipality, period) surfaces as a ConflictError.
func (r *indicatorRepository) CreateRecordWithValues(ctx context.Context, rec *models.Record, values []*models.Value) (int64, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO indicador_registros (id_indicador, id_municipio, id_periodo, descripcion)
		VALUES ($1, $2, $3, $4)
		RETURNING id_registro
	`, rec.IDIndicador, rec.IDMunicipio, rec.IDPeriodo, rec.Descripcion).Scan(&rec.IDRegistro)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &ConflictError{
				Resource: "registro",
				Detail:   fmt.Sprintf("indicador %d, municipio %d, periodo %d", rec.IDIndicador, rec.IDMunicipio, rec.IDPeriodo),
			}
		}
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}

	for _, v := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO indicador_valores (id_registro, id_variable, valor)
			VALUES ($1, $2, $3)
		`, rec.IDRegistro, v.IDVariable, v.Valor); err != nil {
			return 0, fmt.Errorf("failed to insert value: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return rec.IDRegistro, nil
}

// GetRecords retrieves an indicator's records joined with municipality and
// period display fields, each carrying its values keyed by variable id.
func (r *indicatorRepository) GetRecords(ctx context.Context, indicatorID int64, periodID *int64) ([]*models.Record, error) {
	query := `
		SELECT r.id_registro, r.id_indicador, r.id_municipio, r.id_periodo, r.descripcion,
		       m.nombre AS nombre_municipio, m.codigo_municipio,
		       p.tipo, p.anio, p.numero
		FROM indicador_registros r
		JOIN municipios m ON r.id_municipio = m.id_municipio
		JOIN periodos p ON r.id_periodo = p.id_periodo
		WHERE r.id_indicador = $1
	`
	args := []interface{}{indicatorID}

	if periodID != nil {
		query += " AND r.id_periodo = $2"
		args = append(args, *periodID)
	}

	query += " ORDER BY p.anio DESC, p.numero DESC NULLS LAST, m.nombre ASC"

	var records []*models.Record
	err := r.db.SelectContext(ctx, "get_records", &records, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	ids := make([]int64, 0, len(records))
	byID := make(map[int64]*models.Record, len(records))
	for _, rec := range records {
		rec.Valores = make(map[int64]string)
		ids = append(ids, rec.IDRegistro)
		byID[rec.IDRegistro] = rec
	}

	// One query for all value rows instead of one per record.
	valueQuery := `
		SELECT id_registro, id_variable, valor
		FROM indicador_valores
		WHERE id_registro = ANY($1)
	`
	rows, err := r.db.QueryContext(ctx, "get_record_values", valueQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get record values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idRegistro, idVariable int64
		var valor string
		if err := rows.Scan(&idRegistro, &idVariable, &valor); err != nil {
			return nil, fmt.Errorf("failed to scan value row: %w", err)
		}
		if rec, ok := byID[idRegistro]; ok {
			rec.Valores[idVariable] = valor
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading value rows: %w", err)
	}

	return records, nil
}

// DeleteRecord removes a record; its values cascade at the storage layer.
// Returns false when no record matched.
func (r *indicatorRepository) DeleteRecord(ctx context.Context, recordID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "delete_record", `
		DELETE FROM indicador_registros WHERE id_registro = $1
	`, recordID)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if n > 0 {
		r.logger.Info(ctx, "[REPO_RECORD_DELETE] Record deleted", logging.Fields{
			"id_registro": strconv.FormatInt(recordID, 10),
		})
	}

	return n > 0, nil
}
