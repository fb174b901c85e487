package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"indicator-platform/internal/models"
)

// MemoryRepository is an in-memory IndicatorRepository with the same
// uniqueness and cascade semantics as the PostgreSQL implementation. It backs
// service and handler tests.
type MemoryRepository struct {
	mu sync.Mutex

	nextID         int64
	indicators     map[int64]*models.Indicator
	variables      map[int64]*models.Variable
	periods        map[int64]*models.Period
	records        map[int64]*models.Record
	values         []*models.Value
	chartConfigs   map[int64]*models.ChartConfig
	municipalities map[int64]*models.Municipality
}

var _ IndicatorRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:         0,
		indicators:     make(map[int64]*models.Indicator),
		variables:      make(map[int64]*models.Variable),
		periods:        make(map[int64]*models.Period),
		records:        make(map[int64]*models.Record),
		chartConfigs:   make(map[int64]*models.ChartConfig),
		municipalities: make(map[int64]*models.Municipality),
	}
}

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

// AddMunicipality seeds reference data.
func (m *MemoryRepository) AddMunicipality(codigo, nombre string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.municipalities[id] = &models.Municipality{
		IDMunicipio:     id,
		CodigoMunicipio: codigo,
		Nombre:          nombre,
	}
	return id
}

func (m *MemoryRepository) ListIndicators(ctx context.Context, filter IndicatorFilter) ([]*models.Indicator, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.Indicator
	for _, ind := range m.indicators {
		if filter.Query != nil && !strings.Contains(strings.ToLower(ind.Nombre), strings.ToLower(*filter.Query)) {
			continue
		}
		if filter.Active != nil && ind.EsActivo != *filter.Active {
			continue
		}
		if filter.SecretariaID != nil && ind.IDSecretaria != *filter.SecretariaID {
			continue
		}
		matched = append(matched, ind)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].IDIndicador > matched[j].IDIndicador })

	total := len(matched)
	if filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else {
		matched = nil
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (m *MemoryRepository) CreateIndicator(ctx context.Context, ind *models.Indicator) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *ind
	clone.IDIndicador = m.id()
	m.indicators[clone.IDIndicador] = &clone
	return clone.IDIndicador, nil
}

func (m *MemoryRepository) UpdateIndicator(ctx context.Context, id int64, upd IndicatorUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ind, ok := m.indicators[id]
	if !ok {
		return &NotFoundError{Resource: "indicador", ID: strconv.FormatInt(id, 10)}
	}
	if upd.Nombre != nil {
		ind.Nombre = *upd.Nombre
	}
	if upd.Descripcion != nil {
		ind.Descripcion = upd.Descripcion
	}
	if upd.UnidadBase != nil {
		ind.UnidadBase = upd.UnidadBase
	}
	if upd.EsActivo != nil {
		ind.EsActivo = *upd.EsActivo
	}
	if upd.IDSecretaria != nil {
		ind.IDSecretaria = *upd.IDSecretaria
	}
	if upd.Periodicidades != nil {
		ind.Periodicidades = upd.Periodicidades
	}
	return nil
}

func (m *MemoryRepository) GetIndicator(ctx context.Context, id int64) (*models.Indicator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ind, ok := m.indicators[id]
	if !ok {
		return nil, &NotFoundError{Resource: "indicador", ID: strconv.FormatInt(id, 10)}
	}
	clone := *ind
	return &clone, nil
}

func (m *MemoryRepository) DeleteIndicator(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indicators[id]; !ok {
		return &NotFoundError{Resource: "indicador", ID: strconv.FormatInt(id, 10)}
	}
	delete(m.indicators, id)
	for vid, v := range m.variables {
		if v.IDIndicador == id {
			delete(m.variables, vid)
		}
	}
	for rid, r := range m.records {
		if r.IDIndicador == id {
			m.deleteRecordLocked(rid)
		}
	}
	delete(m.chartConfigs, id)
	return nil
}

func (m *MemoryRepository) ListVariables(ctx context.Context, indicatorID int64) ([]*models.Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var vars []*models.Variable
	for _, v := range m.variables {
		if v.IDIndicador == indicatorID {
			clone := *v
			vars = append(vars, &clone)
		}
	}
	sort.Slice(vars, func(i, j int) bool {
		if vars[i].Orden != vars[j].Orden {
			return vars[i].Orden < vars[j].Orden
		}
		return vars[i].IDVariable < vars[j].IDVariable
	})
	return vars, nil
}

func (m *MemoryRepository) CreateVariable(ctx context.Context, v *models.Variable) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *v
	clone.IDVariable = m.id()
	m.variables[clone.IDVariable] = &clone
	return clone.IDVariable, nil
}

func (m *MemoryRepository) UpdateVariable(ctx context.Context, id int64, upd VariableUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variables[id]
	if !ok {
		return &NotFoundError{Resource: "variable", ID: strconv.FormatInt(id, 10)}
	}
	if upd.Nombre != nil {
		v.Nombre = *upd.Nombre
	}
	if upd.Tipo != nil {
		v.Tipo = *upd.Tipo
	}
	if upd.Unidad != nil {
		v.Unidad = upd.Unidad
	}
	if upd.EsDimension != nil {
		v.EsDimension = *upd.EsDimension
	}
	if upd.EsObligatoria != nil {
		v.EsObligatoria = *upd.EsObligatoria
	}
	if upd.Orden != nil {
		v.Orden = *upd.Orden
	}
	return nil
}

func (m *MemoryRepository) DeleteVariable(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.variables[id]; !ok {
		return &NotFoundError{Resource: "variable", ID: strconv.FormatInt(id, 10)}
	}
	delete(m.variables, id)
	kept := m.values[:0]
	for _, val := range m.values {
		if val.IDVariable != id {
			kept = append(kept, val)
		}
	}
	m.values = kept
	return nil
}

func (m *MemoryRepository) GetChartConfig(ctx context.Context, indicatorID int64) (*models.ChartConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.chartConfigs[indicatorID]
	if !ok {
		return nil, &NotFoundError{Resource: "configuracion", ID: strconv.FormatInt(indicatorID, 10)}
	}
	clone := *cfg
	return &clone, nil
}

func (m *MemoryRepository) UpsertChartConfig(ctx context.Context, cfg *models.ChartConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.chartConfigs[cfg.IDIndicador]; ok {
		cfg.IDGrafico = existing.IDGrafico
	} else {
		cfg.IDGrafico = m.id()
	}
	clone := *cfg
	m.chartConfigs[cfg.IDIndicador] = &clone
	return nil
}

func (m *MemoryRepository) MunicipalityCodeMap(ctx context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codeMap := make(map[string]int64, len(m.municipalities))
	for _, muni := range m.municipalities {
		codeMap[muni.CodigoMunicipio] = muni.IDMunicipio
	}
	return codeMap, nil
}

func (m *MemoryRepository) ResolvePeriod(ctx context.Context, tipo string, anio int, numero *int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.Tipo == tipo && p.Anio == anio && sameNumero(p.Numero, numero) {
			return p.IDPeriodo, nil
		}
	}
	inicio, fin, err := models.PeriodDates(tipo, anio, numero)
	if err != nil {
		return 0, err
	}
	p := &models.Period{
		IDPeriodo:   m.id(),
		Tipo:        tipo,
		Anio:        anio,
		FechaInicio: inicio,
		FechaFin:    fin,
	}
	if numero != nil {
		n := *numero
		p.Numero = &n
	}
	m.periods[p.IDPeriodo] = p
	return p.IDPeriodo, nil
}

func sameNumero(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *MemoryRepository) ListPeriods(ctx context.Context) ([]*models.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Period
	for _, p := range m.periods {
		clone := *p
		out = append(out, &clone)
	}
	sortPeriods(out)
	return out, nil
}

func (m *MemoryRepository) ListIndicatorPeriods(ctx context.Context, indicatorID int64) ([]*models.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	var out []*models.Period
	for _, r := range m.records {
		if r.IDIndicador != indicatorID || seen[r.IDPeriodo] {
			continue
		}
		seen[r.IDPeriodo] = true
		if p, ok := m.periods[r.IDPeriodo]; ok {
			clone := *p
			out = append(out, &clone)
		}
	}
	sortPeriods(out)
	return out, nil
}

func sortPeriods(periods []*models.Period) {
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Anio != periods[j].Anio {
			return periods[i].Anio > periods[j].Anio
		}
		ni, nj := 0, 0
		if periods[i].Numero != nil {
			ni = *periods[i].Numero
		}
		if periods[j].Numero != nil {
			nj = *periods[j].Numero
		}
		return ni > nj
	})
}

func (m *MemoryRepository) CreateRecordsBatch(ctx context.Context, records []*models.Record) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// all-or-nothing: check uniqueness across existing and staged rows first
	staged := make(map[string]bool)
	for _, rec := range records {
		key := recordKey(rec)
		if staged[key] || m.hasRecordLocked(rec) {
			return nil, &ConflictError{Resource: "registro", Detail: key}
		}
		staged[key] = true
	}
	for _, rec := range records {
		rec.IDRegistro = m.id()
		clone := *rec
		m.records[rec.IDRegistro] = &clone
	}
	return records, nil
}

func recordKey(rec *models.Record) string {
	return fmt.Sprintf("indicador %d, municipio %d, periodo %d", rec.IDIndicador, rec.IDMunicipio, rec.IDPeriodo)
}

func (m *MemoryRepository) hasRecordLocked(rec *models.Record) bool {
	for _, existing := range m.records {
		if existing.IDIndicador == rec.IDIndicador &&
			existing.IDMunicipio == rec.IDMunicipio &&
			existing.IDPeriodo == rec.IDPeriodo {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) CreateValuesBatch(ctx context.Context, values []*models.Value) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		if _, ok := m.records[v.IDRegistro]; !ok {
			return 0, fmt.Errorf("failed to insert value: record %d missing", v.IDRegistro)
		}
	}
	for _, v := range values {
		clone := *v
		clone.IDValor = m.id()
		m.values = append(m.values, &clone)
	}
	return len(values), nil
}

func (m *MemoryRepository) CreateRecordWithValues(ctx context.Context, rec *models.Record, values []*models.Value) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasRecordLocked(rec) {
		return 0, &ConflictError{Resource: "registro", Detail: recordKey(rec)}
	}
	rec.IDRegistro = m.id()
	clone := *rec
	m.records[rec.IDRegistro] = &clone
	for _, v := range values {
		vc := *v
		vc.IDValor = m.id()
		vc.IDRegistro = rec.IDRegistro
		m.values = append(m.values, &vc)
	}
	return rec.IDRegistro, nil
}

func (m *MemoryRepository) GetRecords(ctx context.Context, indicatorID int64, periodID *int64) ([]*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Record
	for _, rec := range m.records {
		if rec.IDIndicador != indicatorID {
			continue
		}
		if periodID != nil && rec.IDPeriodo != *periodID {
			continue
		}
		clone := *rec
		if muni, ok := m.municipalities[rec.IDMunicipio]; ok {
			clone.NombreMunicipio = muni.Nombre
			clone.CodigoMunicipio = muni.CodigoMunicipio
		}
		if p, ok := m.periods[rec.IDPeriodo]; ok {
			clone.Tipo = p.Tipo
			clone.Anio = p.Anio
			clone.Numero = p.Numero
		}
		clone.Valores = make(map[int64]string)
		for _, v := range m.values {
			if v.IDRegistro == rec.IDRegistro {
				clone.Valores[v.IDVariable] = v.Valor
			}
		}
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Anio != out[j].Anio {
			return out[i].Anio > out[j].Anio
		}
		return out[i].NombreMunicipio < out[j].NombreMunicipio
	})
	return out, nil
}

func (m *MemoryRepository) DeleteRecord(ctx context.Context, recordID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[recordID]; !ok {
		return false, nil
	}
	m.deleteRecordLocked(recordID)
	return true, nil
}

func (m *MemoryRepository) deleteRecordLocked(recordID int64) {
	delete(m.records, recordID)
	kept := m.values[:0]
	for _, v := range m.values {
		if v.IDRegistro != recordID {
			kept = append(kept, v)
		}
	}
	m.values = kept
}

// CountRecords reports stored record and value rows, for direct store
// inspection in tests.
func (m *MemoryRepository) CountRecords() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), len(m.values)
}

func (m *MemoryRepository) MunicipalityTotals(ctx context.Context, indicatorID int64, filter DashboardFilter) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[string]float64)
	for _, v := range m.values {
		rec, ok := m.records[v.IDRegistro]
		if !ok || rec.IDIndicador != indicatorID {
			continue
		}
		if !m.valueMatchesLocked(rec, v, filter) {
			continue
		}
		f, err := strconv.ParseFloat(v.Valor, 64)
		if err != nil {
			continue
		}
		muni, ok := m.municipalities[rec.IDMunicipio]
		if !ok {
			continue
		}
		totals[muni.CodigoMunicipio] += f
	}
	return totals, nil
}

func (m *MemoryRepository) DimensionTotals(ctx context.Context, indicatorID, dimensionID int64, filter DashboardFilter) ([]*DimensionGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dimByRecord := make(map[int64]string)
	for _, v := range m.values {
		if v.IDVariable == dimensionID {
			dimByRecord[v.IDRegistro] = v.Valor
		}
	}

	grouped := make(map[string]*DimensionGroup)
	for _, v := range m.values {
		rec, ok := m.records[v.IDRegistro]
		if !ok || rec.IDIndicador != indicatorID {
			continue
		}
		dim, ok := dimByRecord[v.IDRegistro]
		if !ok {
			continue
		}
		if !m.valueMatchesLocked(rec, v, filter) {
			continue
		}
		f, err := strconv.ParseFloat(v.Valor, 64)
		if err != nil {
			continue
		}
		muni := m.municipalities[rec.IDMunicipio]
		period := m.periods[rec.IDPeriodo]
		if muni == nil || period == nil {
			continue
		}
		key := fmt.Sprintf("%s|%s|%d", muni.Nombre, dim, period.Anio)
		g, ok := grouped[key]
		if !ok {
			g = &DimensionGroup{Municipio: muni.Nombre, Dimension: dim, Anio: period.Anio}
			grouped[key] = g
		}
		g.Total += f
	}

	var out []*DimensionGroup
	for _, g := range grouped {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Anio != out[j].Anio {
			return out[i].Anio > out[j].Anio
		}
		if out[i].Municipio != out[j].Municipio {
			return out[i].Municipio < out[j].Municipio
		}
		return out[i].Dimension < out[j].Dimension
	})
	return out, nil
}

// valueMatchesLocked applies the dashboard filter and numeric-variable rule to
// one value row.
func (m *MemoryRepository) valueMatchesLocked(rec *models.Record, v *models.Value, filter DashboardFilter) bool {
	variable, ok := m.variables[v.IDVariable]
	if !ok || variable.Tipo != models.VarNumber {
		return false
	}
	if filter.PeriodID != nil && rec.IDPeriodo != *filter.PeriodID {
		return false
	}
	if filter.MunicipalityID != nil && rec.IDMunicipio != *filter.MunicipalityID {
		return false
	}
	if filter.VariableID != nil && v.IDVariable != *filter.VariableID {
		return false
	}
	return true
}

func (m *MemoryRepository) HealthCheck(ctx context.Context) error {
	return nil
}
