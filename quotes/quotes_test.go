package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetchFromAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quote":"Stay hungry, stay foolish.","author":"Steve Jobs"}`))
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, zap.NewNop())
	q := f.Fetch(context.Background())
	require.Equal(t, "Stay hungry, stay foolish.", q.Content)
	assert.Equal(t, "Steve Jobs", q.Author)
}

func TestFetchNormalizesUnicodePunctuation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"quote\":\"“Don’t panic…” — ever\",\"author\":\"x\"}"))
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, zap.NewNop())
	q := f.Fetch(context.Background())
	assert.Equal(t, `"Don't panic..." - ever`, q.Content)
}

func TestFetchFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewAPIFetcher(srv.URL, zap.NewNop())
	q := f.Fetch(context.Background())
	assert.Equal(t, DefaultPassage, q.Content)
	assert.Equal(t, "Default", q.Author)
}

func TestFetchFallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	f := NewAPIFetcher(srv.URL, zap.NewNop())
	q := f.Fetch(context.Background())
	assert.Equal(t, DefaultPassage, q.Content)
}
