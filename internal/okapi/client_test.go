package okapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/okapi", Tenant: "diku", Token: "tok"})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://okapi:9130"})
	require.NoError(t, err)
	assert.Equal(t, DefaultResources(), c.resources)
	assert.Equal(t, 1000, c.manualLimit)
}

func TestClient_ListManualBlocks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/okapi/manualblocks", r.URL.Path)
		assert.Equal(t, "userId==patron-1", r.URL.Query().Get("query"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "diku", r.Header.Get("X-Okapi-Tenant"))
		assert.Equal(t, "tok", r.Header.Get("X-Okapi-Token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"manualblocks": [{
				"id": "b1", "userId": "patron-1", "type": "Manual", "desc": "Lost item",
				"borrowing": true, "expirationDate": "2024-05-09T00:00:00.000+00:00",
				"metadata": {"createdDate": "2024-05-01T10:00:00.000Z"}
			}],
			"totalRecords": 1
		}`)
	})

	got, err := c.ListManualBlocks(context.Background(), "patron-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
	assert.True(t, got[0].Borrowing)
	require.NotNil(t, got[0].ExpirationDate)
	assert.Equal(t, 9, got[0].ExpirationDate.Day())
}

func TestClient_ListAutomatedBlocks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/okapi/automated-patron-blocks/patron-1", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(models.AutomatedBlockCollection{
			AutomatedPatronBlocks: []models.AutomatedBlock{
				{PatronBlockConditionID: "c1", BlockRenewal: true, Message: "Too many items"},
			},
		})
	})

	got, err := c.ListAutomatedBlocks(context.Background(), "patron-1", 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].PatronBlockConditionID)
	assert.True(t, got[0].BlockRenewal)
}

func TestClient_SetActiveRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/okapi/patrons/patron-1/active-record", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body models.ActiveRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "b1", body.BlockID)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SetActiveRecord(context.Background(), "patron-1", "b1"))
}

func TestClient_DeleteManualBlock(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  error
		wantGone bool
	}{
		{name: "deleted", status: http.StatusNoContent},
		{name: "already gone", status: http.StatusNotFound, wantErr: ErrNotFound, wantGone: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ErrUnexpectedStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/okapi/manualblocks/b1", r.URL.Path)
				w.WriteHeader(tt.status)
				if tt.status >= 500 {
					_, _ = io.WriteString(w, "database unavailable")
				}
			})

			err := c.DeleteManualBlock(context.Background(), "b1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.wantGone, errors.Is(err, blocks.ErrGone))
		})
	}
}

func TestClient_DecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	})

	_, err := c.ListManualBlocks(context.Background(), "patron-1")
	assert.ErrorContains(t, err, "decode response")
}
