package assessment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/apt-chat/backend/internal/logging"
	assessmentService "github.com/zhouzirui/apt-chat/backend/internal/service/assessment"
	"github.com/zhouzirui/apt-chat/backend/pkg/utils"
)

// Handler 评估步骤查询
type Handler struct {
	svc *assessmentService.Service
}

func New(svc *assessmentService.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册在 /api 子路由下
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/get_assessment_step", h.handleGetStep)
}

func (h *Handler) handleGetStep(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid JSON payload.")
		return
	}

	step, err := h.svc.Step(payload["stepKey"])
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(step)
	case errors.Is(err, assessmentService.ErrDisabled):
		utils.RespondError(w, http.StatusForbidden, "Assessment feature is disabled")
	case errors.Is(err, assessmentService.ErrMissingKey):
		utils.RespondError(w, http.StatusBadRequest, "Missing stepKey parameter")
	case errors.Is(err, assessmentService.ErrInvalidKey):
		utils.RespondError(w, http.StatusBadRequest, "Invalid stepKey format")
	case errors.Is(err, assessmentService.ErrStepNotFound):
		utils.RespondError(w, http.StatusNotFound, "Step not found")
	default:
		logging.FromContext(r.Context()).WithError(err).Error("[assessment] lookup failed")
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
