package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maepena22/receipt/internal/common"
)

func TestDetectText_RequestShapeAndSuccess(t *testing.T) {
	image := []byte("fake-png-bytes")
	var captured annotateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/images:annotate", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"responses": []map[string]any{{
				"textAnnotations": []map[string]any{
					{"description": "TOKYO TAXI\nTOTAL 2300"},
					{"description": "TOKYO"},
				},
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Language: "ja"}, nil)
	text, err := c.DetectText(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, "TOKYO TAXI\nTOTAL 2300", text)

	require.Len(t, captured.Requests, 1)
	entry := captured.Requests[0]
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), entry.Image.Content)
	require.Len(t, entry.Features, 1)
	assert.Equal(t, "TEXT_DETECTION", entry.Features[0].Type)
	assert.Equal(t, 1, entry.Features[0].MaxResults)
	assert.Equal(t, []string{"ja"}, entry.ImageContext.LanguageHints)
}

func TestDetectText_NoTextDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"responses": []map[string]any{{"textAnnotations": []map[string]any{}}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.DetectText(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, common.ErrNoTextDetected)
}

func TestDetectText_StatusErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.DetectText(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, common.ErrUpstream)
}

func TestDetectText_RemoteErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"responses": []map[string]any{{
				"error": map[string]any{"code": 3, "message": "bad image"},
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := c.DetectText(context.Background(), []byte("img"))
	assert.ErrorIs(t, err, common.ErrUpstream)
}

func TestDetectText_EmptyImage(t *testing.T) {
	c := NewClient(Config{APIKey: "k", BaseURL: "http://unused.invalid"}, nil)
	_, err := c.DetectText(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}
