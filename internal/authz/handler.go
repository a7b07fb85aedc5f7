package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/longstone-am/longstone/internal/platform/httpx"
	"github.com/longstone-am/longstone/internal/shared"
)

// Handler exposes the permission engine's administrative JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	mw        Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		mw:        mw,
	}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/effective", h.myEffectivePermissions)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require(PermManageUsers))
		r.Get("/permissions", h.listCatalog)
		r.Get("/users/{userID}/effective", h.effectivePermissions)
		r.Get("/users/{userID}/overrides", h.listOverrides)
		r.Post("/users/{userID}/overrides", h.createOverride)
	})
}

type catalogEntry struct {
	Permission  Permission `json:"permission"`
	Description string     `json:"description"`
}

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := AllPermissions()
	entries := make([]catalogEntry, 0, len(catalog))
	for _, permission := range catalog {
		entries = append(entries, catalogEntry{Permission: permission, Description: permission.Description()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": entries})
}

func (h *Handler) myEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.mw.currentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated user")
		return
	}
	h.renderEffective(w, r, userID)
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User ID", "user id must be a UUID")
		return
	}
	h.renderEffective(w, r, userID)
}

func (h *Handler) renderEffective(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	profile, err := h.service.GetEffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": profile,
	})
}

type overrideView struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Permission   Permission `json:"permission"`
	Scope        *Scope     `json:"scope,omitempty"`
	IsGranted    bool       `json:"is_granted"`
	OverriddenBy uuid.UUID  `json:"overridden_by"`
	OverriddenAt time.Time  `json:"overridden_at"`
	Reason       string     `json:"reason"`
}

func viewOverride(o UserOverride) overrideView {
	return overrideView{
		ID:           o.ID,
		UserID:       o.UserID,
		Permission:   o.Permission,
		Scope:        o.Scope,
		IsGranted:    o.IsGranted,
		OverriddenBy: o.OverriddenBy,
		OverriddenAt: o.OverriddenAt,
		Reason:       o.Reason,
	}
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User ID", "user id must be a UUID")
		return
	}
	overrides, err := h.service.ListOverrides(r.Context(), userID)
	if err != nil {
		h.logger.Error("list overrides", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]overrideView, 0, len(overrides))
	for _, o := range overrides {
		views = append(views, viewOverride(o))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": views})
}

type createOverrideRequest struct {
	Permission string `json:"permission" validate:"required"`
	Scope      string `json:"scope" validate:"omitempty,oneof=own all"`
	IsGranted  *bool  `json:"is_granted" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

func (h *Handler) createOverride(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User ID", "user id must be a UUID")
		return
	}
	actorID, ok := h.mw.currentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no authenticated user")
		return
	}

	var req createOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "request body must be JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	permission, err := ParsePermission(req.Permission)
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	var scope Scope
	if *req.IsGranted {
		scope, err = ParseScope(req.Scope)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
			return
		}
	}

	override, err := h.service.CreateOverride(r.Context(), CreateOverrideInput{
		UserID:       userID,
		Permission:   permission,
		Scope:        scope,
		IsGranted:    *req.IsGranted,
		OverriddenBy: actorID,
		Reason:       req.Reason,
	})
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", verr.Error())
		case errors.Is(err, shared.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "user does not exist")
		default:
			h.logger.Error("create override", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}

	httpx.JSON(w, http.StatusCreated, viewOverride(override))
}
