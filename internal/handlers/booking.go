package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agendaclin/agendaclin/internal/booking"
	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/internal/outbox"
	"github.com/agendaclin/agendaclin/internal/storage"
)

// AppointmentLister is the read side of the appointment listing endpoint,
// separate from the engine so tests can fake it.
type AppointmentLister interface {
	List(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error)
}

// EventSink receives domain events after a successful state change.
type EventSink interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

type AppointmentHandler struct {
	engine *booking.Engine
	lister AppointmentLister
	events EventSink
	logger *slog.Logger
}

func NewAppointmentHandler(engine *booking.Engine, lister AppointmentLister, events EventSink, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{engine: engine, lister: lister, events: events, logger: logger}
}

type appointmentResponse struct {
	ID              string     `json:"id"`
	PatientID       string     `json:"patient_id"`
	PractitionerID  string     `json:"practitioner_id"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		PractitionerID:  a.PractitionerID,
		StartTime:       a.StartTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Notes:           a.Notes,
		CancelReason:    a.CancelReason,
		ConfirmedAt:     a.ConfirmedAt,
		CancelledAt:     a.CancelledAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// emit records the domain event; the state change is already committed, so a
// failed event write is logged and swallowed rather than failing the request.
// The write is detached from request cancellation: a client disconnecting
// right after the commit must not drop the event.
func (h *AppointmentHandler) emit(ctx context.Context, eventType string, a *model.Appointment) {
	ctx = context.WithoutCancel(ctx)
	evt, err := outbox.AppointmentEvent(eventType, a)
	if err == nil {
		err = h.events.Insert(ctx, evt)
	}
	if err != nil {
		h.logger.Error("outbox event write failed",
			"event_type", eventType, "appointment_id", a.ID, "err", err)
	}
}

type createAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	PractitionerID  string `json:"practitioner_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

// Appointments dispatches /api/v1/appointments: POST creates, GET lists.
func (h *AppointmentHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	if req.PatientID == "" || req.PractitionerID == "" {
		http.Error(w, "patient_id and practitioner_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Create(r.Context(), booking.CreateRequest{
		PatientID:       req.PatientID,
		PractitionerID:  req.PractitionerID,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		writeBookingError(w, err)
		return
	}

	h.emit(r.Context(), outbox.EventAppointmentBooked, appt)
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("id")); id != "" {
		appt, err := h.engine.Get(r.Context(), id)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
		return
	}
	filter := storage.AppointmentFilter{
		PractitionerID: strings.TrimSpace(q.Get("practitioner_id")),
		PatientID:      strings.TrimSpace(q.Get("patient_id")),
	}
	if s := q.Get("status"); s != "" {
		status := model.Status(s)
		if !status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	appts, err := h.lister.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("appointment listing failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	NewStartTime  string `json:"new_start_time"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	newStart, err := time.Parse(time.RFC3339, req.NewStartTime)
	if err != nil {
		http.Error(w, "invalid new_start_time", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Reschedule(r.Context(), req.AppointmentID, newStart, strings.TrimSpace(req.Reason))
	if err != nil {
		writeBookingError(w, err)
		return
	}

	h.emit(r.Context(), outbox.EventAppointmentRescheduled, appt)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.AppointmentID == "" || req.Reason == "" {
		http.Error(w, "appointment_id and reason required", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Cancel(r.Context(), req.AppointmentID, req.Reason)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	h.emit(r.Context(), outbox.EventAppointmentCancelled, appt)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type confirmRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.Confirm(r.Context(), req.AppointmentID)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	h.emit(r.Context(), outbox.EventAppointmentConfirmed, appt)
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// Slots serves the public availability listing.
func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	query := booking.SlotQuery{
		PractitionerID: strings.TrimSpace(q.Get("practitioner_id")),
		SpecialtyID:    strings.TrimSpace(q.Get("specialty_id")),
	}
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		query.From = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		query.To = t
	}

	slots, err := h.engine.ListAvailableSlots(r.Context(), query)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	if slots == nil {
		slots = []booking.Slot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}
