package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"indicator-platform/internal/models"
	"indicator-platform/internal/repository"
	"indicator-platform/internal/services"
	"indicator-platform/pkg/logging"
	"indicator-platform/pkg/metrics"
)

// IndicatorHandler serves the indicator API.
type IndicatorHandler struct {
	indicators *services.IndicatorService
	ingestion  *services.IngestionService
	records    *services.RecordsService
	dashboard  *services.DashboardService
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewIndicatorHandler creates a new indicator handler.
func NewIndicatorHandler(
	indicators *services.IndicatorService,
	ingestion *services.IngestionService,
	records *services.RecordsService,
	dashboard *services.DashboardService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *IndicatorHandler {
	return &IndicatorHandler{
		indicators: indicators,
		ingestion:  ingestion,
		records:    records,
		dashboard:  dashboard,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// RegisterRoutes registers all indicator API routes.
func (h *IndicatorHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/indicadores").Subrouter()

	// static paths before the {id} wildcards
	api.HandleFunc("/periodos/all", h.ListAllPeriods).Methods("GET")
	api.HandleFunc("/variables/{id:[0-9]+}", h.UpdateVariable).Methods("PUT")
	api.HandleFunc("/variables/{id:[0-9]+}", h.DeleteVariable).Methods("DELETE")

	api.HandleFunc("", h.ListIndicators).Methods("GET")
	api.HandleFunc("", h.CreateIndicator).Methods("POST")
	api.HandleFunc("/{id:[0-9]+}", h.GetIndicator).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}", h.UpdateIndicator).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}", h.DeleteIndicator).Methods("DELETE")

	api.HandleFunc("/{id:[0-9]+}/variables", h.ListVariables).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/variables", h.CreateVariable).Methods("POST")

	api.HandleFunc("/{id:[0-9]+}/configuracion", h.GetChartConfig).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/configuracion", h.SaveChartConfig).Methods("PUT")

	api.HandleFunc("/{id:[0-9]+}/plantilla", h.DownloadTemplate).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/carga", h.UploadData).Methods("POST")
	api.HandleFunc("/{id:[0-9]+}/registros", h.ListRecords).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/registros/{idRegistro:[0-9]+}", h.DeleteRecord).Methods("DELETE")
	api.HandleFunc("/{id:[0-9]+}/periodos", h.ListIndicatorPeriods).Methods("GET")
	api.HandleFunc("/{id:[0-9]+}/dashboard", h.GetDashboard).Methods("GET")

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// queryInt64 reads an optional numeric query parameter.
func queryInt64(r *http.Request, name string) *int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// --- Indicators ---

// ListIndicators handles GET /api/indicadores.
func (h *IndicatorHandler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/indicadores").Observe(time.Since(startTime).Seconds())
	}()

	page := 1
	limit := 20
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	filter := repository.IndicatorFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if q := r.URL.Query().Get("q"); q != "" {
		filter.Query = &q
	}
	if a := r.URL.Query().Get("active"); a != "" {
		active := a == "true" || a == "1"
		filter.Active = &active
	}
	filter.SecretariaID = queryInt64(r, "id_secretaria")

	indicators, total, err := h.indicators.ListIndicators(ctx, filter)
	if err != nil {
		h.handleError(w, r, err, "failed to list indicators")
		return
	}

	h.metrics.RecordAPIRequest("/api/indicadores", "GET", "200")
	h.sendJSON(w, PaginatedResponse{
		Data:       indicators,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, http.StatusOK)
}

// CreateIndicator handles POST /api/indicadores.
func (h *IndicatorHandler) CreateIndicator(w http.ResponseWriter, r *http.Request) {
	var ind models.Indicator
	if err := json.NewDecoder(r.Body).Decode(&ind); err != nil {
		h.sendError(w, r, "cuerpo JSON inválido", http.StatusBadRequest)
		return
	}

	id, err := h.indicators.CreateIndicator(r.Context(), &ind)
	if err != nil {
		h.handleError(w, r, err, "failed to create indicator")
		return
	}

	h.sendJSON(w, map[string]interface{}{"message": "Indicador creado", "id": id}, http.StatusCreated)
}

// GetIndicator handles GET /api/indicadores/{id}.
func (h *IndicatorHandler) GetIndicator(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	ind, err := h.indicators.GetIndicator(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "failed to get indicator")
		return
	}
	h.sendJSON(w, ind, http.StatusOK)
}

// UpdateIndicator handles PUT /api/indicadores/{id}.
func (h *IndicatorHandler) UpdateIndicator(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")

	var upd repository.IndicatorUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.sendError(w, r, "cuerpo JSON inválido", http.StatusBadRequest)
		return
	}

	if err := h.indicators.UpdateIndicator(r.Context(), id, upd); err != nil {
		h.handleError(w, r, err, "failed to update indicator")
		return
	}
	h.sendJSON(w, map[string]string{"message": "Indicador actualizado"}, http.StatusOK)
}

// DeleteIndicator handles DELETE /api/indicadores/{id}.
func (h *IndicatorHandler) DeleteIndicator(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	if err := h.indicators.DeleteIndicator(r.Context(), id); err != nil {
		h.handleError(w, r, err, "failed to delete indicator")
		return
	}
	h.sendJSON(w, map[string]string{"message": "Indicador eliminado"}, http.StatusOK)
}

// --- Variables ---

// ListVariables handles GET /api/indicadores/{id}/variables.
func (h *IndicatorHandler) ListVariables(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	variables, err := h.indicators.ListVariables(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "failed to list variables")
		return
	}
	h.sendJSON(w, variables, http.StatusOK)
}

// CreateVariable handles POST /api/indicadores/{id}/variables.
func (h *IndicatorHandler) CreateVariable(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")

	var v models.Variable
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		h.sendError(w, r, "cuerpo JSON inválido", http.StatusBadRequest)
		return
	}
	v.IDIndicador = id

	variableID, err := h.indicators.CreateVariable(r.Context(), &v)
	if err != nil {
		h.handleError(w, r, err, "failed to create variable")
		return
	}
	h.sendJSON(w, map[string]interface{}{"message": "Variable creada", "id": variableID}, http.StatusCreated)
}

// UpdateVariable handles PUT /api/indicadores/variables/{id}.
func (h *IndicatorHandler) UpdateVariable(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")

	var upd repository.VariableUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.sendError(w, r, "cuerpo JSON inválido", http.StatusBadRequest)
		return
	}

	if err := h.indicators.UpdateVariable(r.Context(), id, upd); err != nil {
		h.handleError(w, r, err, "failed to update variable")
		return
	}
	h.sendJSON(w, map[string]string{"message": "Variable actualizada"}, http.StatusOK)
}

// DeleteVariable handles DELETE /api/indicadores/variables/{id}.
func (h *IndicatorHandler) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	if err := h.indicators.DeleteVariable(r.Context(), id); err != nil {
		h.handleError(w, r, err, "failed to delete variable")
		return
	}
	h.sendJSON(w, map[string]string{"message": "Variable eliminada"}, http.StatusOK)
}

// --- Chart configuration ---

// GetChartConfig handles GET /api/indicadores/{id}/configuracion. A missing
// config renders as an empty object, matching what the form consumer expects.
func (h *IndicatorHandler) GetChartConfig(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	cfg, err := h.indicators.GetChartConfig(r.Context(), id)
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			h.sendJSON(w, map[string]string{}, http.StatusOK)
			return
		}
		h.handleError(w, r, err, "failed to get chart config")
		return
	}
	h.sendJSON(w, cfg, http.StatusOK)
}

// SaveChartConfig handles PUT /api/indicadores/{id}/configuracion.
func (h *IndicatorHandler) SaveChartConfig(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")

	var cfg models.ChartConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.sendError(w, r, "cuerpo JSON inválido", http.StatusBadRequest)
		return
	}
	cfg.IDIndicador = id

	if err := h.indicators.SaveChartConfig(r.Context(), &cfg); err != nil {
		h.handleError(w, r, err, "failed to save chart config")
		return
	}
	h.sendJSON(w, map[string]string{"message": "Configuración guardada"}, http.StatusOK)
}

// --- Data loading ---

// DownloadTemplate handles GET /api/indicadores/{id}/plantilla.
func (h *IndicatorHandler) DownloadTemplate(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")

	data, filename, err := h.ingestion.BuildTemplate(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "failed to build template")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// UploadData handles POST /api/indicadores/{id}/carga. A multipart request
// with an `archivo` field is a bulk upload; a JSON body is a manual entry.
func (h *IndicatorHandler) UploadData(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.uploadFile(w, r, id)
		return
	}
	h.uploadManual(w, r, id)
}

func (h *IndicatorHandler) uploadFile(w http.ResponseWriter, r *http.Request, indicatorID int64) {
	ctx := r.Context()

	file, _, err := r.FormFile("archivo")
	if err != nil {
		h.sendError(w, r, "falta el campo de archivo 'archivo'", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := h.ingestion.IngestFile(ctx, indicatorID, file)
	if err != nil {
		var allFailed *services.AllRowsFailedError
		if errors.As(err, &allFailed) {
			// no partial writes: report the whole log and stop
			h.sendJSON(w, map[string]interface{}{
				"message": "Todos los registros fallaron.",
				"log":     strings.Join(allFailed.Errors, "\n"),
			}, http.StatusBadRequest)
			return
		}
		if errors.Is(err, services.ErrEmptyUpload) {
			h.sendError(w, r, "El archivo está vacío", http.StatusBadRequest)
			return
		}
		h.handleError(w, r, err, "bulk upload failed")
		return
	}

	if result.Partial {
		h.sendJSON(w, map[string]interface{}{
			"message": fmt.Sprintf("Se cargaron %d registros. Fallaron %d.", result.Created, len(result.Errors)),
			"log":     strings.Join(result.Errors, "\n"),
			"partial": true,
		}, http.StatusOK)
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"message": fmt.Sprintf("Carga exitosa. %d registros creados.", result.Created),
	}, http.StatusOK)
}

func (h *IndicatorHandler) uploadManual(w http.ResponseWriter, r *http.Request, indicatorID int64) {
	var entry services.ManualEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		h.sendError(w, r, "cuerpo JSON inválido", http.StatusBadRequest)
		return
	}

	recordID, err := h.records.SubmitManual(r.Context(), indicatorID, &entry)
	if err != nil {
		var conflict *repository.ConflictError
		if errors.As(err, &conflict) {
			h.sendError(w, r, "Ya existe un registro para este municipio y periodo.", http.StatusBadRequest)
			return
		}
		h.handleError(w, r, err, "manual entry failed")
		return
	}

	h.sendJSON(w, map[string]interface{}{
		"message": "Registro creado exitosamente",
		"id":      recordID,
	}, http.StatusCreated)
}

// --- Records ---

// ListRecords handles GET /api/indicadores/{id}/registros.
func (h *IndicatorHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")

	records, err := h.records.ListRecords(r.Context(), id, queryInt64(r, "id_periodo"))
	if err != nil {
		h.handleError(w, r, err, "failed to list records")
		return
	}
	if records == nil {
		records = []*models.Record{}
	}
	h.sendJSON(w, records, http.StatusOK)
}

// DeleteRecord handles DELETE /api/indicadores/{id}/registros/{idRegistro}.
func (h *IndicatorHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	recordID, _ := pathID(r, "idRegistro")

	deleted, err := h.records.DeleteRecord(r.Context(), recordID)
	if err != nil {
		h.handleError(w, r, err, "failed to delete record")
		return
	}
	if !deleted {
		h.sendError(w, r, "Registro no encontrado", http.StatusNotFound)
		return
	}
	h.sendJSON(w, map[string]string{"message": "Registro eliminado correctamente"}, http.StatusOK)
}

// --- Periods ---

// periodView decorates a period with its display label.
type periodView struct {
	*models.Period
	Nombre string `json:"nombre"`
}

func periodViews(periods []*models.Period) []periodView {
	views := make([]periodView, 0, len(periods))
	for _, p := range periods {
		views = append(views, periodView{Period: p, Nombre: p.Label()})
	}
	return views
}

// ListAllPeriods handles GET /api/indicadores/periodos/all.
func (h *IndicatorHandler) ListAllPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.records.ListPeriods(r.Context())
	if err != nil {
		h.handleError(w, r, err, "failed to list periods")
		return
	}
	h.sendJSON(w, periodViews(periods), http.StatusOK)
}

// ListIndicatorPeriods handles GET /api/indicadores/{id}/periodos.
func (h *IndicatorHandler) ListIndicatorPeriods(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r, "id")
	periods, err := h.records.ListIndicatorPeriods(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err, "failed to list indicator periods")
		return
	}
	h.sendJSON(w, periodViews(periods), http.StatusOK)
}

// --- Dashboard ---

// GetDashboard handles GET /api/indicadores/{id}/dashboard.
func (h *IndicatorHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/indicadores/dashboard").Observe(time.Since(startTime).Seconds())
	}()

	id, _ := pathID(r, "id")
	filter := repository.DashboardFilter{
		PeriodID:       queryInt64(r, "id_periodo"),
		MunicipalityID: queryInt64(r, "id_municipio"),
		VariableID:     queryInt64(r, "id_variable"),
	}

	data, err := h.dashboard.GetDashboard(ctx, id, filter)
	if err != nil {
		h.handleError(w, r, err, "failed to build dashboard")
		return
	}

	h.metrics.RecordAPIRequest("/api/indicadores/dashboard", "GET", "200")
	h.sendJSON(w, data, http.StatusOK)
}

// HealthCheck handles GET /health.
func (h *IndicatorHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleError maps domain error types to HTTP status codes.
func (h *IndicatorHandler) handleError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	var validation *models.ValidationError
	var parse *models.ParseError
	var invalidSpec *models.InvalidPeriodSpecError
	var notFound *repository.NotFoundError
	var conflict *repository.ConflictError

	switch {
	case errors.As(err, &validation), errors.As(err, &parse), errors.As(err, &invalidSpec):
		h.sendError(w, r, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFound):
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflict):
		h.sendError(w, r, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(r.Context(), "[API_ERROR] "+logMsg, logging.Fields{
			"path":   r.URL.Path,
			"method": r.Method,
		}, err)
		h.metrics.RecordAPIError("internal_error", r.URL.Path)
		h.sendError(w, r, "error interno del servidor", http.StatusInternalServerError)
	}
}

// sendJSON sends a JSON response.
func (h *IndicatorHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response.
func (h *IndicatorHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	h.sendJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}
