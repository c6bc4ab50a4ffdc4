package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/core"
	"studiobook/internal/types"
)

// newTestRouter mounts the given route registrars under /v1, mirroring how the
// server mounts them in production.
func newTestRouter(registrars ...func(chi.Router)) *chi.Mux {
	router := chi.NewRouter()
	router.Route("/v1", func(r chi.Router) {
		for _, register := range registrars {
			register(r)
		}
	})
	return router
}

type mockZoneStore struct {
	createFn  func(ctx context.Context, zone *types.Zone) error
	getByIDFn func(ctx context.Context, id string) (*types.Zone, error)
	listFn    func(ctx context.Context, activeOnly bool) ([]*types.Zone, error)
	updateFn  func(ctx context.Context, zone *types.Zone) error

	created *types.Zone
	updated *types.Zone
}

func (m *mockZoneStore) Create(ctx context.Context, zone *types.Zone) error {
	m.created = zone
	if m.createFn != nil {
		return m.createFn(ctx, zone)
	}
	return nil
}

func (m *mockZoneStore) GetByID(ctx context.Context, id string) (*types.Zone, error) {
	return m.getByIDFn(ctx, id)
}

func (m *mockZoneStore) List(ctx context.Context, activeOnly bool) ([]*types.Zone, error) {
	return m.listFn(ctx, activeOnly)
}

func (m *mockZoneStore) Update(ctx context.Context, zone *types.Zone) error {
	m.updated = zone
	if m.updateFn != nil {
		return m.updateFn(ctx, zone)
	}
	return nil
}

func newTestZoneHandler(store *mockZoneStore) *ZoneHandler {
	return NewZoneHandler(store, core.NewValidator(nil), nil)
}

func TestZoneCreate(t *testing.T) {
	store := &mockZoneStore{
		getByIDFn: func(ctx context.Context, id string) (*types.Zone, error) {
			return &types.Zone{ID: id, Name: "Main Room", MaxCapacity: 20, Active: true}, nil
		},
	}
	h := newTestZoneHandler(store)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/zones",
		strings.NewReader(`{"name":"Main Room","max_capacity":20}`))
	h.Create(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, store.created)
	assert.True(t, strings.HasPrefix(store.created.ID, "zone_"))
	assert.Equal(t, 20, store.created.MaxCapacity)
	assert.True(t, store.created.Active, "new zones start active")
}

func TestZoneCreate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"max_capacity":20}`},
		{"zero capacity", `{"name":"Main Room","max_capacity":0}`},
		{"negative capacity", `{"name":"Main Room","max_capacity":-5}`},
		{"unknown field", `{"name":"Main Room","max_capacity":20,"bogus":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockZoneStore{}
			h := newTestZoneHandler(store)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/v1/zones", strings.NewReader(tt.body))
			h.Create(w, r)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, store.created)
		})
	}
}

func TestZoneGet_NotFound(t *testing.T) {
	store := &mockZoneStore{
		getByIDFn: func(ctx context.Context, id string) (*types.Zone, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundZone, "zone not found", nil)
		},
	}
	h := newTestZoneHandler(store)

	w := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/zones/zone_missing", nil), "id", "zone_missing")
	h.Get(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestZoneList_ActiveFilter(t *testing.T) {
	var seenActiveOnly bool
	store := &mockZoneStore{
		listFn: func(ctx context.Context, activeOnly bool) ([]*types.Zone, error) {
			seenActiveOnly = activeOnly
			return []*types.Zone{{ID: "zone_1", Name: "Main Room", MaxCapacity: 20, Active: true}}, nil
		},
	}
	h := newTestZoneHandler(store)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/zones?active=true", nil)
	h.List(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, seenActiveOnly)
}

func TestZoneUpdate_PartialMerge(t *testing.T) {
	store := &mockZoneStore{
		getByIDFn: func(ctx context.Context, id string) (*types.Zone, error) {
			return &types.Zone{ID: id, Name: "Main Room", MaxCapacity: 20, Active: true}, nil
		},
	}
	h := newTestZoneHandler(store)

	w := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodPatch, "/v1/zones/zone_1",
		strings.NewReader(`{"max_capacity":25}`)), "id", "zone_1")
	h.Update(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, store.updated)
	assert.Equal(t, 25, store.updated.MaxCapacity)
	assert.Equal(t, "Main Room", store.updated.Name, "unset fields keep current values")
}

func TestZoneRoutes(t *testing.T) {
	store := &mockZoneStore{
		getByIDFn: func(ctx context.Context, id string) (*types.Zone, error) {
			return &types.Zone{ID: id, Name: "Main Room", MaxCapacity: 20, Active: true}, nil
		},
	}
	h := newTestZoneHandler(store)
	router := newTestRouter(h.RegisterRoutes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/zones/zone_1", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data types.Zone `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "zone_1", resp.Data.ID)
}
