package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/store"
)

// ProviderHandler serves the provider settings surface: profile, services,
// the weekly working-hours template, time blocks and recurring series. The
// provider is identified by the X-Provider-Id header.
type ProviderHandler struct {
	schedule store.ScheduleStore
	engine   *engine.Engine
	logger   *slog.Logger
}

func NewProviderHandler(schedule store.ScheduleStore, eng *engine.Engine, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{schedule: schedule, engine: eng, logger: logger}
}

func providerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Provider-Id"))
	if id == "" {
		http.Error(w, "X-Provider-Id header required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

type providerProfile struct {
	ProviderID      string `json:"provider_id"`
	Name            string `json:"name"`
	Timezone        string `json:"timezone"`
	SlotStepMinutes int    `json:"slot_step_minutes"`
}

func (h *ProviderHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, ok := providerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := h.schedule.GetProvider(r.Context(), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, providerProfile{
			ProviderID:      p.ID,
			Name:            p.Name,
			Timezone:        p.Timezone,
			SlotStepMinutes: p.SlotStepMinutes,
		})
	case http.MethodPut:
		var req providerProfile
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Timezone != "" {
			if _, err := time.LoadLocation(req.Timezone); err != nil {
				http.Error(w, "invalid timezone", http.StatusBadRequest)
				return
			}
		}
		p, err := h.schedule.UpsertProvider(r.Context(), model.Provider{
			ID:              id,
			Name:            strings.TrimSpace(req.Name),
			Timezone:        strings.TrimSpace(req.Timezone),
			SlotStepMinutes: req.SlotStepMinutes,
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, providerProfile{
			ProviderID:      p.ID,
			Name:            p.Name,
			Timezone:        p.Timezone,
			SlotStepMinutes: p.SlotStepMinutes,
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type hoursInterval struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type setHoursRequest struct {
	Weekday   int             `json:"weekday"`
	Intervals []hoursInterval `json:"intervals"`
}

// WorkingHours handles GET and PUT on the weekly template. PUT replaces one
// weekday's intervals wholesale; an empty list closes the day.
func (h *ProviderHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	id, ok := providerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		hours, err := h.schedule.ListWorkingHours(r.Context(), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		byDay := make(map[string][]hoursInterval, 7)
		for _, iv := range hours {
			key := strconv.Itoa(iv.Weekday)
			byDay[key] = append(byDay[key], hoursInterval{StartMinute: iv.StartMinute, EndMinute: iv.EndMinute})
		}
		writeJSON(w, http.StatusOK, map[string]any{"working_hours": byDay})
	case http.MethodPut:
		var req setHoursRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			http.Error(w, "weekday must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
			return
		}
		intervals := make([]model.HoursInterval, 0, len(req.Intervals))
		for _, iv := range req.Intervals {
			if iv.StartMinute < 0 || iv.EndMinute > 24*60 || iv.EndMinute <= iv.StartMinute {
				http.Error(w, "intervals must satisfy 0 <= start_minute < end_minute <= 1440", http.StatusBadRequest)
				return
			}
			intervals = append(intervals, model.HoursInterval{
				Weekday:     req.Weekday,
				StartMinute: iv.StartMinute,
				EndMinute:   iv.EndMinute,
			})
		}
		if overlapping(intervals) {
			http.Error(w, "intervals must not overlap", http.StatusBadRequest)
			return
		}
		if err := h.schedule.ReplaceWorkingHours(r.Context(), id, req.Weekday, intervals); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func overlapping(intervals []model.HoursInterval) bool {
	for i := range intervals {
		for j := i + 1; j < len(intervals); j++ {
			if intervals[i].StartMinute < intervals[j].EndMinute &&
				intervals[j].StartMinute < intervals[i].EndMinute {
				return true
			}
		}
	}
	return false
}

type timeBlockItem struct {
	BlockID     string `json:"block_id"`
	Date        string `json:"date"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	BlockType   string `json:"block_type"`
	Reason      string `json:"reason,omitempty"`
	Recurring   bool   `json:"recurring"`
	EndDate     string `json:"end_date,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
}

func toTimeBlockItem(b model.TimeBlock) timeBlockItem {
	item := timeBlockItem{
		BlockID:     b.ID,
		Date:        b.Date.Format(dateLayout),
		StartMinute: b.StartMinute,
		EndMinute:   b.EndMinute,
		BlockType:   string(b.Type),
		Reason:      b.Reason,
		Recurring:   b.Recurring,
		ParentID:    b.ParentID,
	}
	if b.EndDate != nil {
		item.EndDate = b.EndDate.UTC().Format(dateLayout)
	}
	return item
}

type createTimeBlockRequest struct {
	Date        string `json:"date"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	BlockType   string `json:"block_type"`
	Reason      string `json:"reason"`
	Recurring   bool   `json:"recurring"`
	EndDate     string `json:"end_date"`
}

// TimeBlocks handles GET, POST and DELETE for time-off blocks. A recurring
// POST materializes weekly instances through end_date (December 31 of the
// start year when omitted).
func (h *ProviderHandler) TimeBlocks(w http.ResponseWriter, r *http.Request) {
	id, ok := providerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.listTimeBlocks(w, r, id)
	case http.MethodPost:
		h.createTimeBlock(w, r, id)
	case http.MethodDelete:
		blockID := strings.TrimSpace(r.URL.Query().Get("id"))
		if blockID == "" {
			http.Error(w, "id required", http.StatusBadRequest)
			return
		}
		if err := h.schedule.DeleteTimeBlock(r.Context(), id, blockID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProviderHandler) listTimeBlocks(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		http.Error(w, "invalid from, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		http.Error(w, "invalid to, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	blocks, err := h.schedule.ListTimeBlocks(r.Context(), id, from, to, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]timeBlockItem, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, toTimeBlockItem(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_blocks": items})
}

func (h *ProviderHandler) createTimeBlock(w http.ResponseWriter, r *http.Request, id string) {
	var req createTimeBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.StartMinute < 0 || req.EndMinute > 24*60 || req.EndMinute <= req.StartMinute {
		http.Error(w, "block must satisfy 0 <= start_minute < end_minute <= 1440", http.StatusBadRequest)
		return
	}
	blockType := model.BlockType(strings.TrimSpace(req.BlockType))
	switch blockType {
	case model.BlockBlocked, model.BlockBreak, model.BlockVacation:
	case "":
		blockType = model.BlockBlocked
	default:
		http.Error(w, "block_type must be blocked, break or vacation", http.StatusBadRequest)
		return
	}
	block := model.TimeBlock{
		ProviderID:  id,
		Date:        date,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Type:        blockType,
		Reason:      strings.TrimSpace(req.Reason),
		Recurring:   req.Recurring,
	}
	if req.EndDate != "" {
		end, err := parseDate(req.EndDate)
		if err != nil {
			http.Error(w, "invalid end_date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		if end.Before(date) {
			http.Error(w, "end_date must not precede date", http.StatusBadRequest)
			return
		}
		block.EndDate = &end
	}

	created, err := h.schedule.CreateTimeBlock(r.Context(), block)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]timeBlockItem, 0, len(created))
	for _, b := range created {
		items = append(items, toTimeBlockItem(b))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"time_blocks": items})
}

type serviceItem struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price,omitempty"`
	Description     string `json:"description,omitempty"`
}

// Services handles GET and POST for the provider's bookable services.
func (h *ProviderHandler) Services(w http.ResponseWriter, r *http.Request) {
	id, ok := providerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		services, err := h.schedule.ListServices(r.Context(), id, limit)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]serviceItem, 0, len(services))
		for _, s := range services {
			items = append(items, serviceItem{
				ServiceID:       s.ID,
				Name:            s.Name,
				DurationMinutes: s.DurationMinutes,
				Price:           s.Price,
				Description:     s.Description,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": items})
	case http.MethodPost:
		var req serviceItem
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.DurationMinutes <= 0 {
			http.Error(w, "name and a positive duration_minutes required", http.StatusBadRequest)
			return
		}
		created, err := h.schedule.CreateService(r.Context(), model.Service{
			ProviderID:      id,
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			Price:           strings.TrimSpace(req.Price),
			Description:     strings.TrimSpace(req.Description),
		})
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, serviceItem{
			ServiceID:       created.ID,
			Name:            created.Name,
			DurationMinutes: created.DurationMinutes,
			Price:           created.Price,
			Description:     created.Description,
		})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type recurringItem struct {
	SeriesID            string   `json:"series_id"`
	StaffID             string   `json:"staff_id,omitempty"`
	ServiceID           string   `json:"service_id"`
	CustomerID          string   `json:"customer_id"`
	Frequency           string   `json:"frequency"`
	StartTime           string   `json:"start_time"`
	DurationMinutes     int      `json:"duration_minutes"`
	EndDate             string   `json:"end_date,omitempty"`
	MaxBookings         int      `json:"max_bookings"`
	CurrentBookingCount int      `json:"current_booking_count"`
	SkipDates           []string `json:"skip_dates,omitempty"`
	Status              string   `json:"status"`
	AutoConfirm         bool     `json:"auto_confirm"`
	LastOccurrence      string   `json:"last_occurrence,omitempty"`
}

func toRecurringItem(rb model.RecurringBooking) recurringItem {
	item := recurringItem{
		SeriesID:            rb.ID,
		StaffID:             rb.StaffID,
		ServiceID:           rb.ServiceID,
		CustomerID:          rb.CustomerID,
		Frequency:           string(rb.Frequency),
		StartTime:           rb.StartTime.UTC().Format(time.RFC3339),
		DurationMinutes:     rb.DurationMinutes,
		MaxBookings:         rb.MaxBookings,
		CurrentBookingCount: rb.CurrentBookingCount,
		Status:              string(rb.Status),
		AutoConfirm:         rb.AutoConfirm,
	}
	if rb.EndDate != nil {
		item.EndDate = rb.EndDate.UTC().Format(dateLayout)
	}
	if rb.LastOccurrence != nil {
		item.LastOccurrence = rb.LastOccurrence.UTC().Format(dateLayout)
	}
	for _, d := range rb.SkipDates {
		item.SkipDates = append(item.SkipDates, d.UTC().Format(dateLayout))
	}
	return item
}

type createRecurringRequest struct {
	StaffID     string   `json:"staff_id"`
	ServiceID   string   `json:"service_id"`
	CustomerID  string   `json:"customer_id"`
	Frequency   string   `json:"frequency"`
	StartTime   string   `json:"start_time"`
	EndDate     string   `json:"end_date"`
	MaxBookings int      `json:"max_bookings"`
	SkipDates   []string `json:"skip_dates"`
	AutoConfirm bool     `json:"auto_confirm"`
}

// Recurring handles GET and POST for recurring series.
func (h *ProviderHandler) Recurring(w http.ResponseWriter, r *http.Request) {
	id, ok := providerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		series, err := h.engine.ListRecurring(r.Context(), id, limit)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]recurringItem, 0, len(series))
		for _, rb := range series {
			items = append(items, toRecurringItem(rb))
		}
		writeJSON(w, http.StatusOK, map[string]any{"recurring_bookings": items})
	case http.MethodPost:
		h.createRecurring(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ProviderHandler) createRecurring(w http.ResponseWriter, r *http.Request, id string) {
	var req createRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := parseRFC3339(strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	rb := model.RecurringBooking{
		ProviderID:  id,
		StaffID:     strings.TrimSpace(req.StaffID),
		ServiceID:   strings.TrimSpace(req.ServiceID),
		CustomerID:  strings.TrimSpace(req.CustomerID),
		Frequency:   model.Frequency(strings.TrimSpace(req.Frequency)),
		StartTime:   start,
		MaxBookings: req.MaxBookings,
		AutoConfirm: req.AutoConfirm,
	}
	if req.EndDate != "" {
		end, err := parseDate(req.EndDate)
		if err != nil {
			http.Error(w, "invalid end_date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		rb.EndDate = &end
	}
	for _, s := range req.SkipDates {
		d, err := parseDate(s)
		if err != nil {
			http.Error(w, "invalid skip_dates entry, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		rb.SkipDates = append(rb.SkipDates, d)
	}

	created, err := h.engine.CreateRecurring(r.Context(), rb)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringItem(created))
}

type seriesStatusRequest struct {
	SeriesID string `json:"series_id"`
	Status   string `json:"status"`
}

// RecurringStatus handles POST /api/v1/provider/recurring-bookings/status:
// pause, resume or cancel a series.
func (h *ProviderHandler) RecurringStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := providerID(w, r)
	if !ok {
		return
	}
	var req seriesStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SeriesID = strings.TrimSpace(req.SeriesID)
	if req.SeriesID == "" {
		http.Error(w, "series_id required", http.StatusBadRequest)
		return
	}
	if owned, err := h.ownsSeries(r, id, req.SeriesID); err != nil || !owned {
		writeOwnershipError(w, h.logger, err)
		return
	}
	updated, err := h.engine.SetSeriesStatus(r.Context(), req.SeriesID, model.SeriesStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecurringItem(updated))
}

type materializeRequest struct {
	SeriesID string `json:"series_id"`
}

// Materialize handles POST /api/v1/provider/recurring-bookings/materialize:
// an explicit advance of one series without waiting for the worker.
func (h *ProviderHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := providerID(w, r)
	if !ok {
		return
	}
	var req materializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SeriesID = strings.TrimSpace(req.SeriesID)
	if req.SeriesID == "" {
		http.Error(w, "series_id required", http.StatusBadRequest)
		return
	}
	if owned, err := h.ownsSeries(r, id, req.SeriesID); err != nil || !owned {
		writeOwnershipError(w, h.logger, err)
		return
	}
	booking, err := h.engine.MaterializeNext(r.Context(), req.SeriesID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := map[string]any{"materialized": booking != nil}
	if booking != nil {
		resp["booking"] = toBookingItem(*booking)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProviderHandler) ownsSeries(r *http.Request, providerID, seriesID string) (bool, error) {
	rb, err := h.engine.GetRecurring(r.Context(), seriesID)
	if err != nil {
		return false, err
	}
	return rb.ProviderID == providerID, nil
}

func writeOwnershipError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if err != nil {
		writeError(w, logger, err)
		return
	}
	// Owned by someone else: indistinguishable from absent.
	http.Error(w, "not found", http.StatusNotFound)
}
