package notify

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/events"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// AdminHandler exposes management endpoints for webhook configuration.
type AdminHandler struct {
	Store Store
}

type endpointRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Active *bool    `json:"active"`
	Topics []string `json:"topics"`
}

type endpointView struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Topics []string `json:"topics"`
	Active bool     `json:"active"`
}

// CreateEndpoint registers a new webhook endpoint. The secret never
// appears in responses.
func (h *AdminHandler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store unavailable", nil)
		return
	}
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Secret) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "url and secret are required", nil)
		return
	}
	if err := validateURL(req.URL); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	endpoint, err := h.Store.CreateEndpoint(r.Context(), req.URL, req.Secret, normaliseTopics(req.Topics), active)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create endpoint", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": viewFromEndpoint(endpoint)})
}

// ListEndpoints returns configured webhook endpoints.
func (h *AdminHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "webhook store unavailable", nil)
		return
	}
	endpoints, err := h.Store.ListEndpoints(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list endpoints", nil)
		return
	}
	views := make([]endpointView, 0, len(endpoints))
	for _, ep := range endpoints {
		views = append(views, viewFromEndpoint(ep))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func viewFromEndpoint(ep repo.WebhookEndpoint) endpointView {
	topics := ep.Topics
	if topics == nil {
		topics = []string{}
	}
	return endpointView{
		ID:     repo.UUIDString(ep.ID),
		URL:    ep.URL,
		Topics: topics,
		Active: ep.Active,
	}
}

// normaliseTopics deduplicates and filters to known topics. An empty
// result subscribes the endpoint to everything.
func normaliseTopics(raw []string) []string {
	if len(raw) == 0 {
		return []string{}
	}
	known := map[string]bool{}
	for _, t := range events.DefaultTopics() {
		known[t] = true
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || !known[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
