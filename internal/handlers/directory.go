package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/internal/storage"
)

// PractitionerDirectory is the admin surface over practitioners, their
// specialties and their recurring availability windows.
type PractitionerDirectory interface {
	Create(ctx context.Context, p *model.Practitioner) error
	GetByID(ctx context.Context, id string) (*model.Practitioner, error)
	List(ctx context.Context, specialtyID string, includeInactive bool) ([]model.Practitioner, error)
	ListSpecialties(ctx context.Context) ([]model.Specialty, error)
	CreateWindow(ctx context.Context, w *model.AvailabilityWindow) error
	WindowsFor(ctx context.Context, practitionerID string) ([]model.AvailabilityWindow, error)
}

type DirectoryHandler struct {
	directory PractitionerDirectory
	logger    *slog.Logger
}

func NewDirectoryHandler(directory PractitionerDirectory, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, logger: logger}
}

type practitionerResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	SpecialtyID   string `json:"specialty_id,omitempty"`
	SpecialtyName string `json:"specialty_name,omitempty"`
	Active        bool   `json:"active"`
}

func toPractitionerResponse(p *model.Practitioner) practitionerResponse {
	return practitionerResponse{
		ID:            p.ID,
		Name:          p.Name,
		LicenseNumber: p.LicenseNumber,
		Phone:         p.Phone,
		Email:         p.Email,
		SpecialtyID:   p.SpecialtyID,
		SpecialtyName: p.SpecialtyName,
		Active:        p.Active,
	}
}

type createPractitionerRequest struct {
	Name          string `json:"name"`
	LicenseNumber string `json:"license_number"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	SpecialtyID   string `json:"specialty_id"`
}

// Practitioners dispatches /api/v1/practitioners: POST creates, GET lists or
// fetches one by ?id=.
func (h *DirectoryHandler) Practitioners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createPractitioner(w, r)
	case http.MethodGet:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			h.getPractitioner(w, r, id)
			return
		}
		h.listPractitioners(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DirectoryHandler) createPractitioner(w http.ResponseWriter, r *http.Request) {
	var req createPractitionerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	if req.Name == "" || req.LicenseNumber == "" {
		http.Error(w, "name and license_number required", http.StatusBadRequest)
		return
	}

	p := &model.Practitioner{
		Name:          req.Name,
		LicenseNumber: req.LicenseNumber,
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
		SpecialtyID:   strings.TrimSpace(req.SpecialtyID),
		Active:        true,
	}
	if err := h.directory.Create(r.Context(), p); err != nil {
		if storage.IsUniqueViolation(err) {
			http.Error(w, "license_number already registered", http.StatusConflict)
			return
		}
		h.logger.Error("practitioner create failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toPractitionerResponse(p))
}

func (h *DirectoryHandler) getPractitioner(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.directory.GetByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "practitioner not found", http.StatusNotFound)
			return
		}
		h.logger.Error("practitioner fetch failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPractitionerResponse(p))
}

func (h *DirectoryHandler) listPractitioners(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeInactive := q.Get("include_inactive") == "true"
	practitioners, err := h.directory.List(r.Context(), strings.TrimSpace(q.Get("specialty_id")), includeInactive)
	if err != nil {
		h.logger.Error("practitioner listing failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]practitionerResponse, 0, len(practitioners))
	for i := range practitioners {
		out = append(out, toPractitionerResponse(&practitioners[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"practitioners": out})
}

func (h *DirectoryHandler) Specialties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	specialties, err := h.directory.ListSpecialties(r.Context())
	if err != nil {
		h.logger.Error("specialty listing failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"specialties": specialties})
}

type createWindowRequest struct {
	PractitionerID string `json:"practitioner_id"`
	Weekday        int    `json:"weekday"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

type windowResponse struct {
	ID             string `json:"id"`
	PractitionerID string `json:"practitioner_id"`
	Weekday        int    `json:"weekday"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Active         bool   `json:"active"`
}

func toWindowResponse(win *model.AvailabilityWindow) windowResponse {
	return windowResponse{
		ID:             win.ID,
		PractitionerID: win.PractitionerID,
		Weekday:        int(win.Weekday),
		StartTime:      formatClock(win.Start),
		EndTime:        formatClock(win.End),
		Active:         win.Active,
	}
}

// Windows dispatches /api/v1/practitioners/windows: POST creates a recurring
// window, GET lists a practitioner's windows.
func (h *DirectoryHandler) Windows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createWindow(w, r)
	case http.MethodGet:
		h.listWindows(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DirectoryHandler) createWindow(w http.ResponseWriter, r *http.Request) {
	var req createWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	if req.PractitionerID == "" {
		http.Error(w, "practitioner_id required", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be 0 (Sunday) through 6 (Saturday)", http.StatusBadRequest)
		return
	}
	start, err := parseClock(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time, want HH:MM", http.StatusBadRequest)
		return
	}
	end, err := parseClock(req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time, want HH:MM", http.StatusBadRequest)
		return
	}
	if end <= start {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	win := &model.AvailabilityWindow{
		PractitionerID: req.PractitionerID,
		Weekday:        time.Weekday(req.Weekday),
		Start:          start,
		End:            end,
		Active:         true,
	}
	if err := h.directory.CreateWindow(r.Context(), win); err != nil {
		h.logger.Error("window create failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowResponse(win))
}

func (h *DirectoryHandler) listWindows(w http.ResponseWriter, r *http.Request) {
	practitionerID := strings.TrimSpace(r.URL.Query().Get("practitioner_id"))
	if practitionerID == "" {
		http.Error(w, "practitioner_id required", http.StatusBadRequest)
		return
	}
	windows, err := h.directory.WindowsFor(r.Context(), practitionerID)
	if err != nil {
		h.logger.Error("window listing failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]windowResponse, 0, len(windows))
	for i := range windows {
		out = append(out, toWindowResponse(&windows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": out})
}

// parseClock reads an HH:MM wall-clock string as an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
