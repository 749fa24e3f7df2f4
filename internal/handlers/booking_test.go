package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agendaclin/agendaclin/internal/booking"
	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/internal/outbox"
	"github.com/agendaclin/agendaclin/internal/storage"
)

// 2026-03-01 is a Sunday; the fixture practitioner attends Mondays 09:00-12:00.
var handlerNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type memStore struct {
	appts map[string]*model.Appointment
}

func (s *memStore) Insert(_ context.Context, a *model.Appointment) error {
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) Update(_ context.Context, a *model.Appointment) error {
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	delete(s.appts, id)
	return nil
}

func (s *memStore) ListBlocking(_ context.Context, practitionerID string, before time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if a.PractitionerID == practitionerID && a.Status.Blocking() && a.StartTime.Before(before) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memStore) ListBlockingInRange(_ context.Context, practitionerID string, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if a.PractitionerID == practitionerID && a.Status.Blocking() &&
			a.StartTime.Before(to) && a.EndTime().After(from) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *memStore) List(_ context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if f.PractitionerID != "" && a.PractitionerID != f.PractitionerID {
			continue
		}
		if f.PatientID != "" && a.PatientID != f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type memDirectory struct{}

func (memDirectory) GetByID(_ context.Context, id string) (*model.Practitioner, error) {
	if id != "dr-ana" {
		return nil, pgx.ErrNoRows
	}
	return &model.Practitioner{ID: "dr-ana", Name: "Ana Souza", Active: true}, nil
}

func (memDirectory) ListActive(_ context.Context, practitionerID, specialtyID string) ([]model.Practitioner, error) {
	if practitionerID != "" && practitionerID != "dr-ana" {
		return nil, nil
	}
	return []model.Practitioner{{ID: "dr-ana", Name: "Ana Souza", Active: true}}, nil
}

type memCalendar struct{}

func (memCalendar) WindowFor(_ context.Context, practitionerID string, weekday time.Weekday) (*model.AvailabilityWindow, error) {
	if weekday != time.Monday {
		return nil, nil
	}
	return &model.AvailabilityWindow{
		ID: "w1", PractitionerID: practitionerID, Weekday: time.Monday,
		Start: 9 * time.Hour, End: 12 * time.Hour, Active: true,
	}, nil
}

func (memCalendar) WindowsFor(_ context.Context, practitionerID string) ([]model.AvailabilityWindow, error) {
	return []model.AvailabilityWindow{{
		ID: "w1", PractitionerID: practitionerID, Weekday: time.Monday,
		Start: 9 * time.Hour, End: 12 * time.Hour, Active: true,
	}}, nil
}

type memEvents struct {
	inserted []outbox.Event
}

func (e *memEvents) Insert(_ context.Context, evt outbox.Event) error {
	e.inserted = append(e.inserted, evt)
	return nil
}

func newTestHandler(t *testing.T) (*AppointmentHandler, *memStore, *memEvents) {
	t.Helper()
	store := &memStore{appts: make(map[string]*model.Appointment)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := booking.NewEngine(store, memDirectory{}, memCalendar{}, booking.DefaultPolicy(), logger, time.UTC,
		booking.WithClock(func() time.Time { return handlerNow }))
	events := &memEvents{}
	return NewAppointmentHandler(engine, store, events, logger), store, events
}

func postJSON(t *testing.T, h http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	h, store, events := newTestHandler(t)

	rec := postJSON(t, h.Appointments, "/api/v1/appointments", map[string]any{
		"patient_id":      "pat-1",
		"practitioner_id": "dr-ana",
		"start_time":      "2026-03-02T09:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "scheduled" {
		t.Errorf("status = %q, want scheduled", resp.Status)
	}
	if _, ok := store.appts[resp.ID]; !ok {
		t.Error("created appointment not in store")
	}
	if len(events.inserted) != 1 || events.inserted[0].EventType != outbox.EventAppointmentBooked {
		t.Errorf("events = %+v, want one booked event", events.inserted)
	}
}

// strictEvents refuses writes on a cancelled context, the way a real pool
// query would fail.
type strictEvents struct {
	inserted []outbox.Event
}

func (e *strictEvents) Insert(ctx context.Context, evt outbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.inserted = append(e.inserted, evt)
	return nil
}

func TestCreateEmitsEventAfterClientDisconnect(t *testing.T) {
	store := &memStore{appts: make(map[string]*model.Appointment)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := booking.NewEngine(store, memDirectory{}, memCalendar{}, booking.DefaultPolicy(), logger, time.UTC,
		booking.WithClock(func() time.Time { return handlerNow }))
	events := &strictEvents{}
	h := NewAppointmentHandler(engine, store, events, logger)

	buf, _ := json.Marshal(map[string]any{
		"patient_id":      "pat-1",
		"practitioner_id": "dr-ana",
		"start_time":      "2026-03-02T09:00:00Z",
	})
	// The client goes away while the request is in flight; the booking still
	// commits and its event must still reach the outbox.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", bytes.NewReader(buf)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Appointments(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if len(events.inserted) != 1 || events.inserted[0].EventType != outbox.EventAppointmentBooked {
		t.Fatalf("events = %+v, want one booked event despite cancelled request context", events.inserted)
	}
}

func TestCreateAppointmentEndpointErrors(t *testing.T) {
	h, _, _ := newTestHandler(t)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing patient", map[string]any{
			"practitioner_id": "dr-ana", "start_time": "2026-03-02T09:00:00Z",
		}, http.StatusBadRequest},
		{"bad start_time", map[string]any{
			"patient_id": "pat-1", "practitioner_id": "dr-ana", "start_time": "tomorrow",
		}, http.StatusBadRequest},
		{"unknown practitioner", map[string]any{
			"patient_id": "pat-1", "practitioner_id": "dr-zed", "start_time": "2026-03-02T09:00:00Z",
		}, http.StatusConflict},
		{"outside window", map[string]any{
			"patient_id": "pat-1", "practitioner_id": "dr-ana", "start_time": "2026-03-02T08:00:00Z",
		}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h.Appointments, "/api/v1/appointments", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body)
			}
		})
	}
}

func TestDoubleBookingReturnsConflict(t *testing.T) {
	h, _, _ := newTestHandler(t)

	body := map[string]any{
		"patient_id":      "pat-1",
		"practitioner_id": "dr-ana",
		"start_time":      "2026-03-02T09:00:00Z",
	}
	if rec := postJSON(t, h.Appointments, "/api/v1/appointments", body); rec.Code != http.StatusCreated {
		t.Fatalf("first booking: %d", rec.Code)
	}
	body["patient_id"] = "pat-2"
	if rec := postJSON(t, h.Appointments, "/api/v1/appointments", body); rec.Code != http.StatusConflict {
		t.Fatalf("second booking: status = %d, want 409", rec.Code)
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	h, store, events := newTestHandler(t)
	store.appts["a1"] = &model.Appointment{
		ID: "a1", PatientID: "pat-1", PractitionerID: "dr-ana",
		StartTime:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30, Status: model.StatusScheduled,
	}

	rec := postJSON(t, h.Reschedule, "/api/v1/appointments/reschedule", map[string]any{
		"appointment_id": "a1",
		"new_start_time": "2026-03-02T10:00:00Z",
		"reason":         "patient asked",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if store.appts["a1"].Status != model.StatusRescheduled {
		t.Errorf("status = %s", store.appts["a1"].Status)
	}
	if len(events.inserted) != 1 || events.inserted[0].EventType != outbox.EventAppointmentRescheduled {
		t.Errorf("events = %+v", events.inserted)
	}

	rec = postJSON(t, h.Reschedule, "/api/v1/appointments/reschedule", map[string]any{
		"appointment_id": "missing",
		"new_start_time": "2026-03-02T10:00:00Z",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing appointment: status = %d, want 404", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	h, store, _ := newTestHandler(t)
	store.appts["a1"] = &model.Appointment{
		ID: "a1", PatientID: "pat-1", PractitionerID: "dr-ana",
		StartTime:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30, Status: model.StatusScheduled,
	}

	rec := postJSON(t, h.Cancel, "/api/v1/appointments/cancel", map[string]any{
		"appointment_id": "a1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing reason: status = %d, want 400", rec.Code)
	}

	rec = postJSON(t, h.Cancel, "/api/v1/appointments/cancel", map[string]any{
		"appointment_id": "a1",
		"reason":         "patient travelling",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if store.appts["a1"].Status != model.StatusCancelled {
		t.Errorf("status = %s", store.appts["a1"].Status)
	}
}

func TestConfirmEndpoint(t *testing.T) {
	h, store, _ := newTestHandler(t)
	store.appts["a1"] = &model.Appointment{
		ID: "a1", PatientID: "pat-1", PractitionerID: "dr-ana",
		StartTime:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30, Status: model.StatusCancelled,
	}

	rec := postJSON(t, h.Confirm, "/api/v1/appointments/confirm", map[string]any{
		"appointment_id": "a1",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("confirming cancelled: status = %d, want 409", rec.Code)
	}
}

func TestListAppointmentsEndpoint(t *testing.T) {
	h, store, _ := newTestHandler(t)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("a%d", i)
		store.appts[id] = &model.Appointment{
			ID: id, PatientID: "pat-1", PractitionerID: "dr-ana",
			StartTime:       time.Date(2026, 3, 2, 9+i, 0, 0, 0, time.UTC),
			DurationMinutes: 30, Status: model.StatusScheduled,
		}
	}
	store.appts["a1"].Status = model.StatusCancelled

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=scheduled", nil)
	rec := httptest.NewRecorder()
	h.Appointments(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Appointments []appointmentResponse `json:"appointments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Appointments) != 2 {
		t.Errorf("got %d appointments, want 2 scheduled", len(resp.Appointments))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=bogus", nil)
	rec = httptest.NewRecorder()
	h.Appointments(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter: %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments?id=a0", nil)
	rec = httptest.NewRecorder()
	h.Appointments(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("get by id: %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments?id=nope", nil)
	rec = httptest.NewRecorder()
	h.Appointments(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get unknown id: %d, want 404", rec.Code)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	h, store, _ := newTestHandler(t)
	store.appts["busy"] = &model.Appointment{
		ID: "busy", PatientID: "pat-0", PractitionerID: "dr-ana",
		StartTime:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30, Status: model.StatusConfirmed,
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/public/slots?from=2026-03-01T08:00:00Z&to=2026-03-07T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp struct {
		Slots []booking.Slot `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Monday 09:00-12:00 at 30min steps is six starts; 09:00 is taken.
	if len(resp.Slots) != 5 {
		t.Fatalf("got %d slots, want 5", len(resp.Slots))
	}
	for _, s := range resp.Slots {
		if s.Start.Equal(store.appts["busy"].StartTime) {
			t.Errorf("booked slot %v offered", s.Start)
		}
	}
}
