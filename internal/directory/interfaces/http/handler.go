package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fuelmap-cloud/internal/directory/application"
	directory "fuelmap-cloud/internal/directory/domain"
	"fuelmap-cloud/internal/directory/interfaces"
	"fuelmap-cloud/internal/observability/metrics"
)

// Handler provides the station directory HTTP endpoints.
type Handler struct {
	stations *application.StationService
	dedupe   *application.DedupeService
	nearest  *application.NearestService
}

// NewHandler constructs a handler.
func NewHandler(stations *application.StationService, dedupe *application.DedupeService, nearest *application.NearestService) (*Handler, error) {
	if stations == nil {
		return nil, errors.New("directory handler: nil station service")
	}
	if dedupe == nil {
		return nil, errors.New("directory handler: nil dedupe service")
	}
	if nearest == nil {
		return nil, errors.New("directory handler: nil nearest service")
	}
	return &Handler{stations: stations, dedupe: dedupe, nearest: nearest}, nil
}

// ServeHTTP handles /api/v1/stations and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/stations":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case r.URL.Path == "/api/v1/stations/check-duplicate":
		h.post(w, r, h.handleCheckDuplicate)
	case r.URL.Path == "/api/v1/stations/duplicate-index":
		h.post(w, r, h.handleDuplicateIndex)
	case r.URL.Path == "/api/v1/stations/resolve-duplicates":
		h.post(w, r, h.handleResolveDuplicates)
	case r.URL.Path == "/api/v1/stations/nearest":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleNearest(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/stations/"):
		h.handleItem(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	next(w, r)
}

type checkDuplicateRequest struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req checkDuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.dedupe.CheckCandidate(r.Context(), req.Name, req.Latitude, req.Longitude)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDuplicateIndex flags duplicates over the posted records, or
// over the whole stored dataset when the body is empty.
func (h *Handler) handleDuplicateIndex(w http.ResponseWriter, r *http.Request) {
	records, err := h.recordsFromBody(w, r)
	if err != nil {
		return
	}
	flags, err := h.dedupe.Index(records)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scanned": len(records),
		"flags":   flags,
	})
}

func (h *Handler) handleResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	records, err := h.recordsFromBody(w, r)
	if err != nil {
		return
	}
	result, err := h.dedupe.Resolve(r.Context(), records)
	if err != nil {
		respondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "pdf" {
		report, err := interfaces.BuildResolutionReportPDF(result, len(records))
		if err != nil {
			http.Error(w, "render report failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="resolution-report.pdf"`)
		_, _ = w.Write(report)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// recordsFromBody decodes a posted station array, falling back to the
// stored dataset when the request carries no body. It writes the error
// response itself; a non-nil error just tells the caller to stop.
func (h *Handler) recordsFromBody(w http.ResponseWriter, r *http.Request) ([]directory.Station, error) {
	if r.Body == nil || r.ContentLength == 0 {
		records, err := h.stations.List(r.Context())
		if err != nil {
			respondError(w, err)
			return nil, err
		}
		return records, nil
	}
	var records []directory.Station
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return nil, err
	}
	return records, nil
}

func (h *Handler) handleNearest(w http.ResponseWriter, r *http.Request) {
	lat, err := parseFloatQuery(r, "lat")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lon, err := parseFloatQuery(r, "lon")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		limit, err = strconv.Atoi(value)
		if err != nil || limit < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}
	maxDistance := 0.0
	if value := r.URL.Query().Get("max_distance_m"); value != "" {
		maxDistance, err = strconv.ParseFloat(value, 64)
		if err != nil || maxDistance < 0 {
			http.Error(w, "max_distance_m must be a non-negative number", http.StatusBadRequest)
			return
		}
	}

	result, err := h.nearest.FindNearest(r.Context(), lat, lon, limit, maxDistance)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	stations, err := h.stations.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}

// handleCreate runs the duplicate gate before persisting. A candidate
// that collides with a stored record is rejected with 409 and the
// conflicting record in the body.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var station directory.Station
	if err := json.NewDecoder(r.Body).Decode(&station); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	check, err := h.dedupe.CheckCandidate(r.Context(), station.Name, station.Latitude, station.Longitude)
	if err != nil {
		respondError(w, err)
		return
	}
	if check.IsDuplicate {
		writeJSON(w, http.StatusConflict, check)
		return
	}

	if err := h.stations.Create(r.Context(), &station); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, station)
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/stations/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		station, err := h.stations.Get(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, station)
	case http.MethodPut:
		var station directory.Station
		if err := json.NewDecoder(r.Body).Decode(&station); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		station.ID = id

		// Updates pass the same duplicate gate as inserts; the record
		// itself is excluded so an unchanged update stays clear.
		check, err := h.dedupe.CheckUpdate(r.Context(), id, station.Name, station.Latitude, station.Longitude)
		if err != nil {
			respondError(w, err)
			return
		}
		if check.IsDuplicate {
			writeJSON(w, http.StatusConflict, check)
			return
		}

		if err := h.stations.Update(r.Context(), &station); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, station)
	case http.MethodDelete:
		if err := h.stations.Delete(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ExportHandler streams the station directory as an XLSX workbook.
type ExportHandler struct {
	stations *application.StationService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(stations *application.StationService) (*ExportHandler, error) {
	if stations == nil {
		return nil, errors.New("export handler: nil station service")
	}
	return &ExportHandler{stations: stations}, nil
}

// ServeHTTP handles GET /api/v1/exports/stations.xlsx.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stations, err := h.stations.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	data, err := interfaces.BuildStationsXLSX(stations)
	if err != nil {
		http.Error(w, "render workbook failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="stations.xlsx"`)
	_, _ = w.Write(data)
}

// ImportHandler ingests an XLSX workbook of stations. Each valid row is
// upserted; bad rows are reported back without failing the batch.
type ImportHandler struct {
	stations *application.StationService
}

// NewImportHandler constructs an import handler.
func NewImportHandler(stations *application.StationService) (*ImportHandler, error) {
	if stations == nil {
		return nil, errors.New("import handler: nil station service")
	}
	return &ImportHandler{stations: stations}, nil
}

type importResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
}

// ServeHTTP handles POST /api/v1/imports/stations.xlsx.
func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	stations, rowErrors, err := interfaces.ParseStationsXLSX(r.Body)
	if err != nil {
		respondError(w, err)
		return
	}

	result := importResult{Errors: rowErrors}
	for i := range stations {
		if err := h.stations.Create(r.Context(), &stations[i]); err != nil {
			metrics.IncImportRow(metrics.ResultError)
			result.Errors = append(result.Errors,
				fmt.Sprintf("station %q: %v", stations[i].Name, err))
			continue
		}
		metrics.IncImportRow(metrics.ResultSuccess)
		result.Imported++
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps domain errors to HTTP statuses. An uncertain remote
// read surfaces as 502 so clients can tell a bad request from a bad
// backend.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidRecord):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, directory.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, directory.ErrDuplicateStation):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, directory.ErrQueryFailed):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseFloatQuery(r *http.Request, key string) (float64, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, errors.New(key + " is required")
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.New(key + " must be a number")
	}
	return parsed, nil
}
