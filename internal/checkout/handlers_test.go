package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/promo"
)

func TestCreateRequiresAuth(t *testing.T) {
	h := &Handler{Svc: &Service{}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateRejectsBadPayload(t *testing.T) {
	h := &Handler{Svc: &Service{}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{`))
	req = req.WithContext(common.WithUserID(req.Context(), "8c2f0e0a-57c5-4a7e-8f5e-27d4ec5ec0f1"))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWriteErrorPromoKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{promo.ErrNotFound, http.StatusNotFound, "PROMO_NOT_FOUND"},
		{promo.ErrExpired, http.StatusUnprocessableEntity, "PROMO_EXPIRED"},
		{promo.ErrUsageLimitReached, http.StatusUnprocessableEntity, "PROMO_USAGE_LIMIT_REACHED"},
		{promo.ErrPerUserLimitReached, http.StatusUnprocessableEntity, "PROMO_PER_USER_LIMIT_REACHED"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rec.Code)
		}
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Error.Code != tc.code {
			t.Fatalf("%v: expected code %s, got %s", tc.err, tc.code, body.Error.Code)
		}
	}
}

func TestWriteErrorAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &common.AppError{Code: "PRODUCT_NOT_FOUND", Message: "product missing", HTTPStatus: http.StatusUnprocessableEntity})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}
