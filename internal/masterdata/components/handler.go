package components

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/foundry-mes/foundry-mes/internal/masterdata/shared"
	"github.com/foundry-mes/foundry-mes/internal/platform/httpx"
	internalshared "github.com/foundry-mes/foundry-mes/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type componentRequest struct {
	Code          string `json:"code" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=255"`
	Unit          string `json:"unit" validate:"required,max=32"`
	MinStockLevel int64  `json:"min_stock_level" validate:"gte=0"`
	StandardCost  string `json:"standard_cost"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list components", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": internalshared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	component, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, component)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	component, ok := h.decode(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), component)
	if err != nil {
		h.logger.Error("create component", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	component, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), id, component); err != nil {
		h.logger.Error("update component", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid component id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete component", slog.Any("error", err), slog.Int64("id", id))
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Component, bool) {
	var req componentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return Component{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return Component{}, false
	}
	cost := decimal.Zero
	if req.StandardCost != "" {
		parsed, err := decimal.NewFromString(req.StandardCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid standard_cost")
			return Component{}, false
		}
		cost = parsed
	}
	return Component{
		Code:          req.Code,
		Name:          req.Name,
		Unit:          req.Unit,
		MinStockLevel: req.MinStockLevel,
		StandardCost:  cost,
	}, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.ProblemKind(w, http.StatusNotFound, "not-found", "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		httpx.ProblemKind(w, http.StatusConflict, "duplicate-code", "Duplicate Code", err.Error())
	case errors.Is(err, ErrComponentInUse):
		httpx.ProblemKind(w, http.StatusConflict, "component-in-use", "Component In Use", err.Error())
	case errors.Is(err, ErrCodeImmutable):
		httpx.ProblemKind(w, http.StatusConflict, "code-immutable", "Code Immutable", err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrRequiredField), errors.Is(err, shared.ErrInvalidID):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func listFilters(r *http.Request) shared.ListFilters {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filters := shared.ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  r.URL.Query().Get("search"),
		SortBy:  r.URL.Query().Get("sort"),
		SortDir: r.URL.Query().Get("dir"),
	}
	filters.Normalize()
	return filters
}
