package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
)

func TestFetch(t *testing.T) {
	played := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/recently-played/alice", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"songs": []map[string]any{
				{"id": "1", "filename": "b.mp3", "title": "B", "playedAt": played, "userId": "alice"},
				{"id": "2", "filename": "a.mp3", "title": "A", "playedAt": played.Add(-time.Minute), "userId": "alice"},
			},
		})
	}))
	defer srv.Close()

	got, err := New(srv.URL).Fetch(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b.mp3", got[0].Filename)
	assert.True(t, got[0].PlayedAt.Equal(played))
}

func TestFetchEmptyListIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"songs":[]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL).Fetch(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchUnsuccessful(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"success false", `{"success":false,"error":"db down"}`},
		{"missing songs", `{"success":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Fetch(context.Background(), "alice")
			assert.ErrorIs(t, err, encerr.ErrUnsuccessful)
		})
	}
}

func TestUpsert(t *testing.T) {
	var got SaveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/recently-played", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"message":"Recently played saved"}`))
	}))
	defer srv.Close()

	rec := core.HistoryRecord{ID: "x", Filename: "a.mp3", Title: "A", UserID: "alice"}
	require.NoError(t, New(srv.URL).Upsert(context.Background(), "alice", rec))

	assert.Equal(t, "alice", got.UserID)
	require.NotNil(t, got.Song)
	assert.Equal(t, "a.mp3", got.Song.Filename)
}

func TestDeleteEscapesPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/recently-played/alice/my%20song.mp3", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).Delete(context.Background(), "alice", "my song.mp3"))
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"boom"}`))
	}))
	defer srv.Close()

	err := New(srv.URL).Upsert(context.Background(), "alice", core.HistoryRecord{Filename: "a.mp3"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Equal(t, "history service error 500: boom", apiErr.Error())
	assert.ErrorIs(t, err, encerr.ErrRemoteUnavailable)

	clientErr := &APIError{Status: 400, Message: "Missing required fields"}
	assert.NotErrorIs(t, clientErr, encerr.ErrRemoteUnavailable)
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(base, WithTimeout(time.Second)).Fetch(context.Background(), "alice")
	assert.ErrorIs(t, err, encerr.ErrRemoteUnavailable)
}
