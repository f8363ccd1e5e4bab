package quote

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/obs"
	"github.com/dropskey/backend-dropskey/internal/pricing"
	"github.com/dropskey/backend-dropskey/internal/promo"
)

// Handler exposes the quote endpoint.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type quoteRequest struct {
	Items     []InputItem `json:"items" validate:"required,min=1,dive"`
	PromoCode *string     `json:"promoCode"`
}

type promoFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type quoteResponse struct {
	Breakdown  pricing.Breakdown `json:"breakdown"`
	PromoError *promoFailure     `json:"promoError,omitempty"`
}

// Create handles POST /api/v1/quotes. A failing promotion degrades to a
// quote without discount instead of failing the request.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", common.ValidationDetails(err))
			return
		}
	}
	var userID *string
	if id, ok := common.UserID(r.Context()); ok && id != "" {
		userID = &id
	}
	breakdown, promoErr, err := h.Svc.Quote(r.Context(), userID, req.Items, req.PromoCode)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := quoteResponse{Breakdown: breakdown}
	switch {
	case promoErr != nil:
		_, code := promo.StatusFor(promoErr)
		resp.PromoError = &promoFailure{Code: code, Message: promoErr.Error()}
		obs.ObserveQuote("rejected")
	case breakdown.PromoCode != nil:
		obs.ObserveQuote("applied")
	default:
		obs.ObserveQuote("none")
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrEmptyCart) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "items are required", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
