package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/papergen/internal/i18n"
	"github.com/pavelanni/papergen/internal/model"
	"github.com/pavelanni/papergen/internal/paper"
	"github.com/pavelanni/papergen/internal/store"
)

var errBadBody = errors.New("invalid request body")

// Bank is the read side of the question bank used by the API.
type Bank interface {
	ListUnits(courseID int64) ([]model.Unit, error)
	ResolveUnits(units []model.Unit) ([]model.Unit, error)
	ListQuestions(f model.QuestionFilter) ([]model.Question, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc       *paper.Service
	bank      Bank
	adminHash []byte
}

// New creates a new Handler. adminHash is the bcrypt hash of the admin password
// that guards generation and every write.
func New(svc *paper.Service, bank Bank, adminHash []byte) *Handler {
	return &Handler{svc: svc, bank: bank, adminHash: adminHash}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/levels", h.handleLevels)
	r.Get("/api/courses/{courseID}/units", h.handleListUnits)
	r.Get("/api/questions", h.handleListQuestions)
	r.Post("/api/papers/validate", h.handleValidate)
	r.Get("/api/papers", h.handleListPapers)
	r.Get("/api/papers/{paperID}", h.handleGetPaper)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/api/papers/generate", h.handleGenerate)
		r.Post("/api/papers", h.handleSavePaper)
		r.Delete("/api/papers/{paperID}", h.handleDeletePaper)
		r.Delete("/api/papers", h.handleClearPapers)
	})
}

type errorResponse struct {
	Error      string            `json:"error"`
	Violations []paper.Violation `json:"violations,omitempty"`
}

type generateResponse struct {
	Paper   *model.GeneratedPaper `json:"paper"`
	Saved   bool                  `json:"saved"`
	Warning string                `json:"warning,omitempty"`
	Error   string                `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID)})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError")
}

func (h *Handler) handleLevels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]model.Level{
		"bloom_levels": model.BloomLevels(),
		"difficulties": model.Difficulties(),
	})
}

func (h *Handler) handleListUnits(w http.ResponseWriter, r *http.Request) {
	courseID, err := strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course ID", http.StatusBadRequest)
		return
	}
	units, err := h.bank.ListUnits(courseID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if units == nil {
		units = []model.Unit{}
	}
	writeJSON(w, http.StatusOK, units)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	var f model.QuestionFilter
	q := r.URL.Query()
	if v := q.Get("course_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid course_id", http.StatusBadRequest)
			return
		}
		f.CourseID = id
	}
	for _, v := range q["unit_id"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid unit_id", http.StatusBadRequest)
			return
		}
		f.UnitIDs = append(f.UnitIDs, id)
	}

	questions, err := h.bank.ListQuestions(f)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

// decodeConfig reads a GenerationConfig and fills in units given by id only.
func (h *Handler) decodeConfig(r *http.Request) (model.GenerationConfig, error) {
	var cfg model.GenerationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", errBadBody, err)
	}

	units, err := h.bank.ResolveUnits(cfg.Units)
	if err != nil {
		return cfg, err
	}
	cfg.Units = units
	return cfg, nil
}

// readConfig decodes the request config and writes the error response on failure.
func (h *Handler) readConfig(w http.ResponseWriter, r *http.Request) (model.GenerationConfig, bool) {
	cfg, err := h.decodeConfig(r)
	if errors.Is(err, errBadBody) {
		writeError(w, r, http.StatusBadRequest, "InvalidRequestBody")
		return cfg, false
	}
	if err != nil {
		internalError(w, r, err)
		return cfg, false
	}
	return cfg, true
}

func (h *Handler) localizeViolations(ctx context.Context, vs []paper.Violation) []paper.Violation {
	out := make([]paper.Violation, len(vs))
	for i, v := range vs {
		if msg := appI18n.Td(ctx, v.Code, v.Params); msg != v.Code {
			v.Message = msg
		}
		out[i] = v
	}
	return out
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfig(w, r)
	if !ok {
		return
	}
	res := h.svc.ValidateConfig(cfg)
	res.Violations = h.localizeViolations(r.Context(), res.Violations)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.readConfig(w, r)
	if !ok {
		return
	}
	save := r.URL.Query().Get("save") == "true"

	var (
		p   *model.GeneratedPaper
		err error
	)
	if save {
		p, err = h.svc.GenerateAndSave(r.Context(), cfg)
	} else {
		p, err = h.svc.GenerateFromBank(r.Context(), cfg)
	}

	var verr *paper.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      appI18n.T(r.Context(), "InvalidConfiguration"),
			Violations: h.localizeViolations(r.Context(), verr.Violations),
		})
		return
	case err != nil && p == nil:
		if r.Context().Err() != nil {
			slog.Info("generation abandoned by client", "error", err)
			return
		}
		internalError(w, r, err)
		return
	}

	resp := generateResponse{Paper: p, Saved: save && err == nil}
	if err != nil {
		slog.Error("save generated paper", "id", p.ID, "error", err)
		resp.Error = appI18n.T(r.Context(), "SaveFailed")
	}
	resp.Warning = h.warning(r.Context(), p)

	status := http.StatusOK
	if resp.Saved {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (h *Handler) warning(ctx context.Context, p *model.GeneratedPaper) string {
	var short *paper.ShortfallError
	if err := paper.CheckResult(p); !errors.As(err, &short) {
		return ""
	}
	if len(p.Questions) == 0 {
		return appI18n.T(ctx, "EmptyPaper")
	}
	return appI18n.Td(ctx, "ShortPaper", map[string]any{
		"Achieved":  p.TotalMarks,
		"Requested": p.Config.TotalMarks,
	})
}

func (h *Handler) handleSavePaper(w http.ResponseWriter, r *http.Request) {
	var p model.GeneratedPaper
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequestBody")
		return
	}
	if p.Status != "" && p.Status != model.PaperDraft && p.Status != model.PaperFinal {
		writeError(w, r, http.StatusBadRequest, "InvalidStatus")
		return
	}

	saved, err := h.svc.SavePaper(p)
	if errors.Is(err, store.ErrPaperExists) {
		writeError(w, r, http.StatusConflict, "PaperExists")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleListPapers(w http.ResponseWriter, r *http.Request) {
	papers, err := h.svc.ListPapers()
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, papers)
}

func (h *Handler) handleGetPaper(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPaperByID(chi.URLParam(r, "paperID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "PaperNotFound")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePaper(chi.URLParam(r, "paperID")); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearPapers(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearPapers(); err != nil {
		internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
