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
)

// BookingHandler serves the public booking surface: slot discovery, slot
// checks, booking creation, and the booking lifecycle endpoints.
type BookingHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewBookingHandler(eng *engine.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: eng, logger: logger}
}

type bookingItem struct {
	BookingID          string `json:"booking_id"`
	ProviderID         string `json:"provider_id"`
	StaffID            string `json:"staff_id,omitempty"`
	ServiceID          string `json:"service_id"`
	CustomerID         string `json:"customer_id"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	DurationMinutes    int    `json:"duration_minutes"`
	Status             string `json:"status"`
	RecurringBookingID string `json:"recurring_booking_id,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:          b.ID,
		ProviderID:         b.ProviderID,
		StaffID:            b.StaffID,
		ServiceID:          b.ServiceID,
		CustomerID:         b.CustomerID,
		StartTime:          b.StartTime.UTC().Format(time.RFC3339),
		EndTime:            b.EndTime.UTC().Format(time.RFC3339),
		DurationMinutes:    b.DurationMinutes,
		Status:             string(b.Status),
		RecurringBookingID: b.RecurringBookingID,
		CancellationReason: b.CancellationReason,
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

type slotItem struct {
	StartTime string `json:"start_time"`
}

// Slots handles GET /api/v1/public/slots?provider_id=&service_id=&date=YYYY-MM-DD[&staff_id=].
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	if providerID == "" || serviceID == "" {
		http.Error(w, "provider_id and service_id required", http.StatusBadRequest)
		return
	}
	date, err := parseDate(q.Get("date"))
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.engine.ListFreeSlots(r.Context(), providerID, staffID, serviceID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: s.UTC().Format(time.RFC3339)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

// Availability handles GET /api/v1/public/availability. With start_time and
// end_time it is a point check for one candidate interval, returning the
// verdict rather than booking it. With service_id and date it answers for the
// whole day, listing the open slots.
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	staffID := strings.TrimSpace(q.Get("staff_id"))
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}

	if q.Get("start_time") == "" {
		serviceID := strings.TrimSpace(q.Get("service_id"))
		if serviceID == "" {
			http.Error(w, "start_time+end_time or service_id+date required", http.StatusBadRequest)
			return
		}
		date, err := parseDate(q.Get("date"))
		if err != nil {
			http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		slots, err := h.engine.ListFreeSlots(r.Context(), providerID, staffID, serviceID, date)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		items := make([]slotItem, 0, len(slots))
		for _, s := range slots {
			items = append(items, slotItem{StartTime: s.UTC().Format(time.RFC3339)})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"available":  len(items) > 0,
			"time_slots": items,
		})
		return
	}

	start, err := parseRFC3339(q.Get("start_time"))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := parseRFC3339(q.Get("end_time"))
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}

	verdict, err := h.engine.CheckSlot(r.Context(), providerID, staffID, start, end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type createBookingRequest struct {
	ProviderID string `json:"provider_id"`
	StaffID    string `json:"staff_id"`
	ServiceID  string `json:"service_id"`
	CustomerID string `json:"customer_id"`
	StartTime  string `json:"start_time"`
	Confirm    bool   `json:"confirm"`
}

// Book handles POST /api/v1/public/book.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	start, err := parseRFC3339(strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	created, err := h.engine.CreateBooking(r.Context(), engine.CreateBookingRequest{
		ProviderID: strings.TrimSpace(req.ProviderID),
		StaffID:    strings.TrimSpace(req.StaffID),
		ServiceID:  strings.TrimSpace(req.ServiceID),
		CustomerID: strings.TrimSpace(req.CustomerID),
		Start:      start,
		Confirm:    req.Confirm,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingItem(created))
}

// List handles GET /api/v1/bookings?provider_id=&limit=.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	if providerID == "" {
		http.Error(w, "provider_id required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	bookings, err := h.engine.ListBookings(r.Context(), providerID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

type rescheduleRequest struct {
	BookingID string `json:"booking_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Reschedule handles POST /api/v1/bookings/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}
	start, err := parseRFC3339(strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	var end time.Time
	if s := strings.TrimSpace(req.EndTime); s != "" {
		end, err = parseRFC3339(s)
		if err != nil {
			http.Error(w, "invalid end_time", http.StatusBadRequest)
			return
		}
	}

	updated, err := h.engine.Reschedule(r.Context(), req.BookingID, start, end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(updated))
}

type cancelRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

// Cancel handles POST /api/v1/bookings/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	cancelled, err := h.engine.Cancel(r.Context(), req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(cancelled))
}
