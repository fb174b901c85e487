package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the Indicator Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Indicator Platform API",
			"description": "Municipal indicator data management platform with PostgreSQL, REST API, spreadsheet ingestion and dashboard aggregation",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Indicator Platform Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/indicadores": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List indicators",
					"description": "Retrieve indicators with filtering and pagination",
					"parameters": []map[string]interface{}{
						{
							"name":        "q",
							"in":          "query",
							"description": "Filter by name substring",
							"required":    false,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "active",
							"in":          "query",
							"description": "Filter by active flag",
							"required":    false,
							"schema":      map[string]string{"type": "boolean"},
						},
						{
							"name":        "id_secretaria",
							"in":          "query",
							"description": "Filter by owning secretariat",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
						{
							"name":        "page",
							"in":          "query",
							"description": "Page number (default: 1)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 1},
						},
						{
							"name":        "limit",
							"in":          "query",
							"description": "Records per page (default: 20)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 20},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"data": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "object",
													"properties": map[string]interface{}{
														"id_indicador":   map[string]string{"type": "integer"},
														"nombre":         map[string]string{"type": "string"},
														"descripcion":    map[string]interface{}{"type": "string", "nullable": true},
														"unidad_base":    map[string]interface{}{"type": "string", "nullable": true},
														"es_activo":      map[string]string{"type": "boolean"},
														"id_secretaria":  map[string]string{"type": "integer"},
														"periodicidades": map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
													},
												},
											},
											"total":       map[string]string{"type": "integer"},
											"page":        map[string]string{"type": "integer"},
											"limit":       map[string]string{"type": "integer"},
											"total_pages": map[string]string{"type": "integer"},
										},
									},
								},
							},
						},
					},
				},
				"post": map[string]interface{}{
					"summary":     "Create indicator",
					"description": "Create an indicator with its allowed periodicities",
					"responses": map[string]interface{}{
						"201": map[string]interface{}{"description": "Indicator created"},
						"400": map[string]interface{}{"description": "Validation error"},
					},
				},
			},
			"/api/indicadores/{id}/carga": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Load indicator data",
					"description": "Bulk upload via multipart xlsx file (field 'archivo') or single manual entry via JSON body",
					"parameters": []map[string]interface{}{
						{
							"name":     "id",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "integer"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Bulk load summary, possibly partial"},
						"201": map[string]interface{}{"description": "Manual record created"},
						"400": map[string]interface{}{"description": "All rows failed, empty file, duplicate record or invalid entry"},
					},
				},
			},
			"/api/indicadores/{id}/plantilla": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Download upload template",
					"description": "Generate an xlsx template with one column per variable",
					"parameters": []map[string]interface{}{
						{
							"name":     "id",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "integer"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "xlsx attachment",
							"content": map[string]interface{}{
								"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": map[string]interface{}{
									"schema": map[string]string{"type": "string", "format": "binary"},
								},
							},
						},
					},
				},
			},
			"/api/indicadores/{id}/dashboard": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Dashboard aggregation",
					"description": "Per-municipality totals for the map plus per-dimension chart series",
					"parameters": []map[string]interface{}{
						{
							"name":     "id",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "integer"},
						},
						{
							"name":        "id_periodo",
							"in":          "query",
							"description": "Restrict to one period",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
						{
							"name":        "id_municipio",
							"in":          "query",
							"description": "Restrict to one municipality",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
						{
							"name":        "id_variable",
							"in":          "query",
							"description": "Restrict numeric sums to one variable",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Successful response",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"mapData": map[string]interface{}{
												"type":                 "object",
												"additionalProperties": map[string]string{"type": "number"},
											},
											"charts": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "object",
													"properties": map[string]interface{}{
														"dimensionId":   map[string]string{"type": "integer"},
														"dimensionName": map[string]string{"type": "string"},
														"data": map[string]interface{}{
															"type": "array",
															"items": map[string]interface{}{
																"type": "object",
																"properties": map[string]interface{}{
																	"name":  map[string]string{"type": "string"},
																	"value": map[string]string{"type": "number"},
																	"unit":  map[string]string{"type": "string"},
																},
															},
														},
													},
												},
											},
										},
									},
								},
							},
						},
					},
				},
			},
			"/api/indicadores/{id}/registros": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List loaded records",
					"description": "Records with their values, optionally filtered by period",
					"parameters": []map[string]interface{}{
						{
							"name":     "id",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "integer"},
						},
						{
							"name":        "id_periodo",
							"in":          "query",
							"description": "Filter by period",
							"required":    false,
							"schema":      map[string]string{"type": "integer"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
						"404": map[string]interface{}{"description": "Indicator not found"},
					},
				},
			},
			"/api/indicadores/periodos/all": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List all periods",
					"description": "Every known period with its display label",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Successful response"},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the API is running",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "API is healthy",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"status": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
