package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agendaclin/agendaclin/internal/model"
	"github.com/agendaclin/agendaclin/internal/storage"
)

type PatientRegistry interface {
	Create(ctx context.Context, p *model.Patient) error
	GetByID(ctx context.Context, id string) (*model.Patient, error)
	GetByPhone(ctx context.Context, phone string) (*model.Patient, error)
	List(ctx context.Context, offset, limit int) ([]model.Patient, error)
}

type PatientHandler struct {
	registry PatientRegistry
	logger   *slog.Logger
}

func NewPatientHandler(registry PatientRegistry, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{registry: registry, logger: logger}
}

type createPatientRequest struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	BirthDate string `json:"birth_date"`
}

type patientResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

func toPatientResponse(p *model.Patient) patientResponse {
	resp := patientResponse{
		ID:    p.ID,
		Name:  p.Name,
		Phone: p.Phone,
		Email: p.Email,
	}
	if p.BirthDate != nil {
		resp.BirthDate = p.BirthDate.Format("2006-01-02")
	}
	return resp
}

// Patients dispatches /api/v1/patients: POST registers, GET fetches by ?id=
// or ?phone= (the chat flow identifies returning patients by phone), or lists.
func (h *PatientHandler) Patients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		q := r.URL.Query()
		if id := strings.TrimSpace(q.Get("id")); id != "" {
			h.getBy(w, r, func(ctx context.Context) (*model.Patient, error) {
				return h.registry.GetByID(ctx, id)
			})
			return
		}
		if phone := strings.TrimSpace(q.Get("phone")); phone != "" {
			h.getBy(w, r, func(ctx context.Context) (*model.Patient, error) {
				return h.registry.GetByPhone(ctx, phone)
			})
			return
		}
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *PatientHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		http.Error(w, "name and phone required", http.StatusBadRequest)
		return
	}

	p := &model.Patient{
		Name:  req.Name,
		Phone: req.Phone,
		Email: strings.TrimSpace(req.Email),
	}
	if req.BirthDate != "" {
		bd, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			http.Error(w, "invalid birth_date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		p.BirthDate = &bd
	}

	if err := h.registry.Create(r.Context(), p); err != nil {
		if storage.IsUniqueViolation(err) {
			http.Error(w, "phone already registered", http.StatusConflict)
			return
		}
		h.logger.Error("patient create failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(p))
}

func (h *PatientHandler) getBy(w http.ResponseWriter, r *http.Request, fetch func(context.Context) (*model.Patient, error)) {
	p, err := fetch(r.Context())
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("patient fetch failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(p))
}

func (h *PatientHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	patients, err := h.registry.List(r.Context(), offset, limit)
	if err != nil {
		h.logger.Error("patient listing failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := make([]patientResponse, 0, len(patients))
	for i := range patients {
		out = append(out, toPatientResponse(&patients[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": out})
}
