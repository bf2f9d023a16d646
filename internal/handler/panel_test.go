package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/libraryops/patron-blocks/internal/i18n"
	"github.com/libraryops/patron-blocks/internal/middleware"
	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/internal/panel"
)

var panelNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

const testSecret = "test-secret"

type panelStore struct {
	mu           sync.Mutex
	manual       []models.ManualBlock
	automated    []models.AutomatedBlock
	manualErr    error
	automatedErr error
	deleted      []string
}

func (s *panelStore) ListManualBlocks(context.Context, string) ([]models.ManualBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manualErr != nil {
		return nil, s.manualErr
	}
	var out []models.ManualBlock
	for _, b := range s.manual {
		if !containsID(s.deleted, b.ID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *panelStore) ListAutomatedBlocks(context.Context, string, int) ([]models.AutomatedBlock, error) {
	return s.automated, s.automatedErr
}

func (s *panelStore) SetActiveRecord(context.Context, string, string) error { return nil }

func (s *panelStore) DeleteManualBlock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func block(id string, expires *time.Time) models.ManualBlock {
	return models.ManualBlock{
		ID:             id,
		UserID:         "patron-1",
		Type:           "Manual",
		Desc:           "desc " + id,
		Borrowing:      true,
		ExpirationDate: expires,
		Metadata:       models.Metadata{CreatedDate: panelNow.Add(-48 * time.Hour)},
	}
}

type panelFixture struct {
	router   *gin.Engine
	registry *panel.Registry
	store    *panelStore
}

func newPanelFixture(t *testing.T, store *panelStore) *panelFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := i18n.NewCatalog(language.English)
	registry := panel.NewRegistry(time.Hour)
	h := NewPanelHandler(registry, store, panel.DefaultConfig(), nil, catalog, "en")
	h.now = func() time.Time { return panelNow }

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.Locale(catalog), middleware.CapabilityAuth(middleware.NewTokenVerifier(testSecret)))
	h.Register(api)

	return &panelFixture{router: r, registry: registry, store: store}
}

func token(t *testing.T, subject string, perms ...string) string {
	t.Helper()
	tok, err := middleware.NewTokenVerifier(testSecret).Sign(&middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Permissions: perms,
	})
	require.NoError(t, err)
	return tok
}

func (f *panelFixture) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodePanel(t *testing.T, w *httptest.ResponseRecorder) PanelResponse {
	t.Helper()
	var resp PanelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (f *panelFixture) open(t *testing.T, tok string, expanded bool) PanelResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/panels", tok, CreatePanelRequest{
		PatronID:    "patron-1",
		AccordionID: "accordion-blocks",
		Expanded:    expanded,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodePanel(t, w)
}

func TestPanelHandler_CreatePanel_OpensAccordionForActiveBlocks(t *testing.T) {
	tomorrow := panelNow.Add(24 * time.Hour)
	f := newPanelFixture(t, &panelStore{
		manual: []models.ManualBlock{block("b1", &tomorrow)},
	})

	resp := f.open(t, token(t, "staff-1", panel.DefaultConfig().Permission), false)

	assert.True(t, resp.Toggled)
	assert.True(t, resp.View.Expanded)
	assert.True(t, resp.View.HasPatronBlocks)
	assert.Equal(t, "accordion-blocks", resp.View.AccordionID)
	require.Len(t, resp.View.Rows, 1)
	assert.Equal(t, "b1", resp.View.Rows[0].ID)
	assert.False(t, resp.View.Create.Disabled)
	assert.Equal(t, 1, f.registry.Len())
}

func TestPanelHandler_CreatePanel_RemovesExpiredBlocks(t *testing.T) {
	yesterday := panelNow.Add(-24 * time.Hour)
	store := &panelStore{manual: []models.ManualBlock{block("old", &yesterday)}}
	f := newPanelFixture(t, store)

	resp := f.open(t, token(t, "staff-1"), true)

	assert.True(t, resp.Toggled, "no active block closes an expanded accordion")
	assert.False(t, resp.View.Expanded)
	assert.Empty(t, resp.View.Rows)
	assert.Equal(t, "idle", resp.View.ExpiryState)
	assert.True(t, resp.View.Create.Disabled)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{"old"}, store.deleted)
}

func TestPanelHandler_CreatePanel_FetchFailures(t *testing.T) {
	t.Run("manual fetch failure", func(t *testing.T) {
		f := newPanelFixture(t, &panelStore{manualErr: errors.New("db down")})

		w := f.do(t, http.MethodPost, "/api/v1/panels", token(t, "staff-1"), CreatePanelRequest{PatronID: "patron-1"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, 0, f.registry.Len())
	})

	t.Run("automated fetch failure", func(t *testing.T) {
		f := newPanelFixture(t, &panelStore{
			manual:       []models.ManualBlock{block("b1", nil)},
			automatedErr: errors.New("policy engine down"),
		})

		resp := f.open(t, token(t, "staff-1"), false)
		assert.NotEmpty(t, resp.Warnings)
		assert.Len(t, resp.View.Rows, 1)
		assert.True(t, resp.View.Expanded)
	})

	t.Run("missing patron id", func(t *testing.T) {
		f := newPanelFixture(t, &panelStore{})

		w := f.do(t, http.MethodPost, "/api/v1/panels", token(t, "staff-1"), map[string]any{"expanded": true})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPanelHandler_Unauthenticated(t *testing.T) {
	f := newPanelFixture(t, &panelStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/panels", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPanelHandler_GetPanel(t *testing.T) {
	f := newPanelFixture(t, &panelStore{
		manual:    []models.ManualBlock{block("m1", nil)},
		automated: []models.AutomatedBlock{{PatronBlockConditionID: "a1", BlockRenewal: true, Message: "Max fines"}},
	})
	owner := token(t, "staff-1")
	id := f.open(t, owner, true).View.PanelID

	t.Run("owner", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/panels/"+id, owner, nil)
		require.Equal(t, http.StatusOK, w.Code)

		rows := decodePanel(t, w).View.Rows
		require.Len(t, rows, 2)
		assert.Equal(t, "a1", rows[0].ID, "automated blocks come first")
		assert.Equal(t, "Automated", rows[0].Type)
	})

	t.Run("other user", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/panels/"+id, token(t, "staff-2"), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown panel", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/panels/nope", owner, nil)
		require.Equal(t, http.StatusNotFound, w.Code)

		var resp models.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Patron blocks panel not found", resp.Message)
	})
}

func TestPanelHandler_RefreshPanel(t *testing.T) {
	store := &panelStore{}
	f := newPanelFixture(t, store)
	tok := token(t, "staff-1")
	id := f.open(t, tok, false).View.PanelID

	store.mu.Lock()
	store.manual = []models.ManualBlock{block("late", nil)}
	store.mu.Unlock()

	w := f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/refresh", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodePanel(t, w)
	require.Len(t, resp.View.Rows, 1)
	assert.False(t, resp.View.Expanded, "refresh leaves the accordion alone")
}

func TestPanelHandler_SortPanel(t *testing.T) {
	f := newPanelFixture(t, &panelStore{manual: []models.ManualBlock{block("b1", nil)}})
	tok := token(t, "staff-1")
	id := f.open(t, tok, true).View.PanelID

	w := f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/sort", tok, SortRequest{Key: "Display description"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "description", string(decodePanel(t, w).View.Sort.Key))

	w = f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/sort", tok, SortRequest{Key: "barcode"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodePanel(t, w)
	assert.Equal(t, "description", string(resp.View.Sort.Key), "unknown key leaves the sort unchanged")
	assert.Equal(t, []string{"Unknown sort column"}, resp.Warnings)
}

func TestPanelHandler_ClickRow(t *testing.T) {
	f := newPanelFixture(t, &panelStore{manual: []models.ManualBlock{block("b1", nil)}})
	tok := token(t, "staff-1", panel.DefaultConfig().Permission)
	id := f.open(t, tok, true).View.PanelID

	tests := []struct {
		name       string
		rowID      string
		body       any
		wantStatus int
	}{
		{name: "row click", rowID: "b1", body: panel.ClickEvent{TagName: "TD"}, wantStatus: http.StatusOK},
		{name: "empty body", rowID: "b1", wantStatus: http.StatusOK},
		{name: "button inside row", rowID: "b1", body: panel.ClickEvent{TargetType: "button"}, wantStatus: http.StatusNoContent},
		{name: "image inside row", rowID: "b1", body: panel.ClickEvent{TagName: "img"}, wantStatus: http.StatusNoContent},
		{name: "unknown row", rowID: "zz", body: panel.ClickEvent{}, wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/rows/"+tt.rowID+"/click", tok, tt.body)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				var nav NavigateResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nav))
				assert.Equal(t, "/users/patron-1/patronblocks/edit/b1", nav.NavigateTo)
			}
		})
	}

	t.Run("without capability", func(t *testing.T) {
		other := newPanelFixture(t, &panelStore{manual: []models.ManualBlock{block("b1", nil)}})
		plain := token(t, "staff-1")
		pid := other.open(t, plain, true).View.PanelID

		w := other.do(t, http.MethodPost, "/api/v1/panels/"+pid+"/rows/b1/click", plain, panel.ClickEvent{})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("capability revoked after opening", func(t *testing.T) {
		narrowed := token(t, "staff-1")

		w := f.do(t, http.MethodPost, "/api/v1/panels/"+id+"/rows/b1/click", narrowed, panel.ClickEvent{})
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(t, http.MethodGet, "/api/v1/panels/"+id, narrowed, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodePanel(t, w).View.Create.Disabled)
	})
}

func TestPanelHandler_ClosePanel(t *testing.T) {
	f := newPanelFixture(t, &panelStore{})
	tok := token(t, "staff-1")
	id := f.open(t, tok, false).View.PanelID

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/api/v1/panels/"+id, token(t, "staff-2"), nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/panels/"+id, tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/panels/"+id, tok, nil).Code)
	assert.Equal(t, 0, f.registry.Len())
}
