package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/tvtracker/internal/model"
	"github.com/user/tvtracker/internal/repository"
	"github.com/user/tvtracker/internal/router"
	"github.com/user/tvtracker/internal/service"
	"github.com/user/tvtracker/internal/utils"
)

type stubDiscovery struct {
	status  service.DiscoveryStatus
	skipped bool
	err     error
}

func (s *stubDiscovery) Status() service.DiscoveryStatus {
	return s.status
}

func (s *stubDiscovery) SkipPage(ctx context.Context) (bool, error) {
	if s.err == nil && s.skipped {
		s.status.PagesExplored++
	}
	return s.skipped, s.err
}

type stubPolicy struct{}

func (stubPolicy) Status() service.PolicyStatus {
	return service.PolicyStatus{ConsecutiveErrors: 2}
}

type stubCredits struct {
	credits []model.Credit
	err     error
}

func (s *stubCredits) ShowCredits(ctx context.Context, showID uint) ([]model.Credit, error) {
	return s.credits, s.err
}

func (s *stubCredits) ActorCredits(ctx context.Context, actorID uint) ([]model.Credit, error) {
	return s.credits, s.err
}

type stubStats struct{}

func (stubStats) Stats(ctx context.Context) (*repository.Stats, error) {
	return &repository.Stats{Shows: 40, Genres: 16}, nil
}

func newTestRouter(d *stubDiscovery, c *stubCredits) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	router.RegisterRoutes(r, NewHandler(d, stubPolicy{}, c, stubStats{}, nil))
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path string) (int, utils.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)

	var resp utils.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestDiscoveryStatus(t *testing.T) {
	d := &stubDiscovery{status: service.DiscoveryStatus{
		Progress: service.Progress{PagesExplored: 3, TotalPages: 500},
		Phase:    service.PhaseIdle,
	}}
	r := newTestRouter(d, &stubCredits{})

	code, resp := doRequest(t, r, http.MethodGet, "/api/discovery/status")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	discovery := data["discovery"].(map[string]interface{})
	assert.Equal(t, float64(3), discovery["pages_explored"])
	assert.Equal(t, float64(500), discovery["total_pages"])
	assert.Equal(t, "idle", discovery["phase"])
	assert.Equal(t, float64(2), data["policy"].(map[string]interface{})["consecutive_errors"])
	assert.Equal(t, float64(40), data["stats"].(map[string]interface{})["shows"])
}

func TestSkipPage(t *testing.T) {
	d := &stubDiscovery{skipped: true, status: service.DiscoveryStatus{Progress: service.Progress{PagesExplored: 1, TotalPages: 5}}}
	r := newTestRouter(d, &stubCredits{})

	code, resp := doRequest(t, r, http.MethodPost, "/api/discovery/skip")
	assert.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["skipped"])
	assert.Equal(t, 2, d.status.PagesExplored)

	d.err = service.ErrStoreUnavailable
	code, _ = doRequest(t, r, http.MethodPost, "/api/discovery/skip")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCreditsErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"rate limited", &service.APIError{StatusCode: 429, Err: service.ErrRateLimited}, http.StatusServiceUnavailable},
		{"upstream down", &service.APIError{StatusCode: 500, Err: service.ErrUpstreamUnavailable}, http.StatusBadGateway},
		{"malformed", &service.APIError{Err: service.ErrUpstreamMalformed}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&stubDiscovery{}, &stubCredits{err: tt.err})

			code, resp := doRequest(t, r, http.MethodGet, "/api/shows/1/credits")
			assert.Equal(t, tt.want, code)
			assert.False(t, resp.Success)

			code, _ = doRequest(t, r, http.MethodGet, "/api/actors/1/credits")
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestCreditsOK(t *testing.T) {
	credits := []model.Credit{{TmdbID: "c1", Character: "Jon"}}
	r := newTestRouter(&stubDiscovery{}, &stubCredits{credits: credits})

	code, resp := doRequest(t, r, http.MethodGet, "/api/actors/7/credits")
	assert.Equal(t, http.StatusOK, code)
	items := resp.Data.([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "Jon", items[0].(map[string]interface{})["character"])

	code, _ = doRequest(t, r, http.MethodGet, "/api/shows/abc/credits")
	assert.Equal(t, http.StatusBadRequest, code)
}
