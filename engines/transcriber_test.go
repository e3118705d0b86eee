package engines

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF fake audio"), 0o644))
	return path
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transcribe", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "session.wav", header.Filename)
		assert.Equal(t, "en", r.FormValue("language"))

		json.NewEncoder(w).Encode(map[string]any{
			"text":       "hello world",
			"language":   "en",
			"duration":   2.5,
			"confidence": 0.93,
			"words": []map[string]any{
				{"word": "hello", "start": 0.1, "end": 0.5, "confidence": 0.95},
			},
		})
	}))
	defer srv.Close()

	transcript, err := NewTranscriber(srv.URL, 0).Transcribe(context.Background(), writeTempAudio(t), "en")
	require.NoError(t, err)
	assert.Equal(t, "hello world", transcript.Text)
	assert.Equal(t, "en", transcript.Language)
	assert.Equal(t, 0.93, transcript.Confidence)
	require.Len(t, transcript.Words, 1)
	assert.Equal(t, "hello", transcript.Words[0].Word)
}

func TestTranscribeEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewTranscriber(srv.URL, 0).Transcribe(context.Background(), writeTempAudio(t), "")
	require.Error(t, err)

	var cerr *ComputationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "asr", cerr.Engine)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.True(t, NewTranscriber(srv.URL, 0).Ready(context.Background()))

	srv.Close()
	assert.False(t, NewTranscriber(srv.URL, 0).Ready(context.Background()))
}
