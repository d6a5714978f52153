package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/benvon/wte-api/internal/charts"
	"github.com/benvon/wte-api/internal/export"
	"github.com/benvon/wte-api/internal/models"
	"github.com/benvon/wte-api/internal/services/statistics"
	"github.com/benvon/wte-api/internal/stats"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StatsService computes tag and food statistics
type StatsService interface {
	Report(ctx context.Context, userID uuid.UUID, kind statistics.Kind, start, end time.Time) (*statistics.Report, error)
	PeriodReport(ctx context.Context, userID uuid.UUID, kind statistics.Kind, period stats.Period, start, end time.Time) (*statistics.Report, error)
	DailyStats(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.DailyFoods, error)
	Overview(ctx context.Context, userID uuid.UUID, start, end time.Time) (*statistics.Overview, error)
	Snapshots(ctx context.Context, userID uuid.UUID, rangeDays ...int) ([]*models.TagStatisticsSnapshot, error)
}

// RefreshRequester schedules a background recomputation of stored statistics
type RefreshRequester interface {
	RequestRefresh(ctx context.Context, userID uuid.UUID, rangeDays ...int) error
}

// StatsHandler handles statistics requests
type StatsHandler struct {
	stats     StatsService
	refresher RefreshRequester
	rangeDays []int
	now       func() time.Time
	logger    *zap.Logger
}

// NewStatsHandler creates a new stats handler. refresher may be nil, in which
// case refresh requests are answered with 503. rangeDays are the trailing
// windows kept as snapshots.
func NewStatsHandler(statsService StatsService, refresher RefreshRequester, rangeDays []int, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		stats:     statsService,
		refresher: refresher,
		rangeDays: rangeDays,
		now:       time.Now,
		logger:    logger,
	}
}

// RegisterRoutes registers statistics routes.
// The router should already have the /api/v1/stats prefix.
func (h *StatsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tags", h.kindReport(statistics.KindTags)).Methods("GET")
	r.HandleFunc("/foods", h.kindReport(statistics.KindFoods)).Methods("GET")
	r.HandleFunc("/periods", h.GetPeriodReport).Methods("GET")
	r.HandleFunc("/daily", h.GetDailyStats).Methods("GET")
	r.HandleFunc("/overview", h.GetOverview).Methods("GET")
	r.HandleFunc("/snapshots", h.GetSnapshots).Methods("GET")
	r.HandleFunc("/export.xlsx", h.ExportWorkbook).Methods("GET")
	r.HandleFunc("/chart.html", h.GetChart).Methods("GET")
	r.HandleFunc("/refresh", h.RequestRefresh).Methods("POST")
}

func (h *StatsHandler) kindReport(kind statistics.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respondReport(w, r, kind)
	}
}

func (h *StatsHandler) respondReport(w http.ResponseWriter, r *http.Request, kind statistics.Kind) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	report, err := h.stats.Report(r.Context(), user.ID, kind, start, end)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "compute "+string(kind)+" statistics")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// GetPeriodReport returns the weekly or monthly bucketed report
func (h *StatsHandler) GetPeriodReport(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	period, err := stats.ParsePeriod(q.Get("period"))
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	kind, err := statistics.ParseKind(q.Get("kind"))
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	report, err := h.stats.PeriodReport(r.Context(), user.ID, kind, period, start, end)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "compute period statistics")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// GetDailyStats returns the foods eaten per day of the range
func (h *StatsHandler) GetDailyStats(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	days, err := h.stats.DailyStats(r.Context(), user.ID, start, end)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "compute daily statistics")
		return
	}
	if days == nil {
		days = []models.DailyFoods{}
	}

	respondJSON(w, http.StatusOK, days)
}

// GetOverview returns the tag, food and daily views of one range
func (h *StatsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	overview, err := h.stats.Overview(r.Context(), user.ID, start, end)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "compute statistics overview")
		return
	}

	respondJSON(w, http.StatusOK, overview)
}

// GetSnapshots returns the stored trailing-window tag statistics
func (h *StatsHandler) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	rangeDays := h.rangeDays
	if v := r.URL.Query().Get("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 1 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "invalid days")
			return
		}
		rangeDays = []int{days}
	}

	snapshots, err := h.stats.Snapshots(r.Context(), user.ID, rangeDays...)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "load statistics snapshots")
		return
	}

	respondJSON(w, http.StatusOK, snapshots)
}

// ExportWorkbook downloads the tag, food and daily statistics as an xlsx workbook
func (h *StatsHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	overview, err := h.stats.Overview(r.Context(), user.ID, start, end)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "export statistics")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteOverview(&buf, overview); err != nil {
		respondServiceError(w, r, h.logger, err, "export statistics")
		return
	}

	filename := fmt.Sprintf("wte-stats-%s-%s.xlsx", start.Format(dateLayout), end.Format(dateLayout))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("export_write_failed", zap.Error(err))
	}
}

// GetChart renders the tag or food report as an HTML chart page
func (h *StatsHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	kind, err := statistics.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	report, err := h.stats.Report(r.Context(), user.ID, kind, start, end)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "compute "+string(kind)+" statistics")
		return
	}

	var buf bytes.Buffer
	if err := charts.RenderReport(&buf, report, charts.Title(kind)); err != nil {
		if errors.Is(err, charts.ErrNoData) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "No data in the selected range")
			return
		}
		respondServiceError(w, r, h.logger, err, "render chart")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", charts.ContentSecurityPolicy)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("chart_write_failed", zap.Error(err))
	}
}

// RequestRefresh schedules a recomputation of the stored snapshots
func (h *StatsHandler) RequestRefresh(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.refresher == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Statistics refresh is not available")
		return
	}

	if err := h.refresher.RequestRefresh(r.Context(), user.ID, h.rangeDays...); err != nil {
		respondServiceError(w, r, h.logger, err, "schedule statistics refresh")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{"range_days": h.rangeDays})
}

func (h *StatsHandler) rangeParams(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	start, end, err := parseRange(r, h.now())
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
