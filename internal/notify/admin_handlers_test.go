package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropskey/backend-dropskey/internal/events"
)

func TestCreateEndpointFiltersTopics(t *testing.T) {
	store := &stubStore{}
	h := &AdminHandler{Store: store}

	body := `{"url":"https://hooks.example.com/dropskey","secret":"s3cret","topics":["order.created","made.up","order.created"]}`
	req := httptest.NewRequest(http.MethodPost, "/admin/webhooks", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.CreateEndpoint(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Data struct {
			ID     string   `json:"id"`
			URL    string   `json:"url"`
			Topics []string `json:"topics"`
			Active bool     `json:"active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.ID)
	require.True(t, resp.Data.Active)
	require.Equal(t, []string{events.TopicOrderCreated}, resp.Data.Topics)
	require.NotContains(t, rr.Body.String(), "s3cret")
}

func TestCreateEndpointRequiresSecret(t *testing.T) {
	h := &AdminHandler{Store: &stubStore{}}
	req := httptest.NewRequest(http.MethodPost, "/admin/webhooks", strings.NewReader(`{"url":"https://hooks.example.com"}`))
	rr := httptest.NewRecorder()
	h.CreateEndpoint(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateEndpointRejectsPlainHTTP(t *testing.T) {
	h := &AdminHandler{Store: &stubStore{}}
	req := httptest.NewRequest(http.MethodPost, "/admin/webhooks", strings.NewReader(`{"url":"http://hooks.example.com","secret":"s"}`))
	rr := httptest.NewRecorder()
	h.CreateEndpoint(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListEndpoints(t *testing.T) {
	store := &stubStore{}
	_, err := store.CreateEndpoint(t.Context(), "https://a.example.com", "s1", nil, true)
	require.NoError(t, err)
	_, err = store.CreateEndpoint(t.Context(), "https://b.example.com", "s2", []string{events.TopicPromoRedeemed}, false)
	require.NoError(t, err)

	h := &AdminHandler{Store: store}
	rr := httptest.NewRecorder()
	h.ListEndpoints(rr, httptest.NewRequest(http.MethodGet, "/admin/webhooks", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []struct {
			URL    string `json:"url"`
			Active bool   `json:"active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.False(t, resp.Data[1].Active)
}
