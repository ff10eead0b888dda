package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/table-extractor/internal/domain"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantModel string
		wantURL   string
		wantError bool
	}{
		{
			name:      "defaults",
			cfg:       Config{APIKey: "sk-test"},
			wantModel: DefaultModel,
			wantURL:   DefaultBaseURL + "/chat/completions",
		},
		{
			name:      "custom model and base url",
			cfg:       Config{APIKey: "sk-test", Model: "gpt-4o", BaseURL: "https://openrouter.ai/api/v1/"},
			wantModel: "gpt-4o",
			wantURL:   "https://openrouter.ai/api/v1/chat/completions",
		},
		{
			name:      "empty api key",
			cfg:       Config{APIKey: "  "},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, client.Model())
			assert.Equal(t, tt.wantURL, client.endpoint)
			assert.Equal(t, DefaultPrompt, client.prompt)
		})
	}
}

func TestBuildRequest(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k", MaxTokens: 512})
	require.NoError(t, err)

	req := client.buildRequest(domain.Image{Data: pngHeader})

	assert.Equal(t, DefaultModel, req.Model)
	assert.True(t, req.Stream)
	assert.Equal(t, 512, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].Content, 2)
	assert.Equal(t, DefaultPrompt, req.Messages[0].Content[0].Text)
	assert.True(t, strings.HasPrefix(req.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestDataURI(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,YWJj", DataURI(domain.Image{Data: []byte("abc"), MIMEType: "image/jpeg"}))
	assert.True(t, strings.HasPrefix(DataURI(domain.Image{Data: pngHeader}), "data:image/png;base64,"))
}

func sseServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chunk(content string) string {
	b, _ := json.Marshal(Response{Choices: []Choice{{Delta: Delta{Content: content}}}})
	return fmt.Sprintf("data: %s\n\n", b)
}

func TestExtract_Streams(t *testing.T) {
	body := ": keep-alive\n\n" +
		chunk("  ```csv\nName,") +
		chunk("Age\nAlice,30\n") +
		"data: not-json\n\n" +
		chunk("```\n\n") +
		"data: [DONE]\n\n"
	srv := sseServer(t, http.StatusOK, body)

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := client.Extract(context.Background(), domain.Image{Data: pngHeader})
	require.NoError(t, err)
	assert.Equal(t, "```csv\nName,Age\nAlice,30\n```", got)
}

func TestExtract_NonOKStatus(t *testing.T) {
	srv := sseServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`)

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), domain.Image{Data: pngHeader})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}

func TestExtract_StreamError(t *testing.T) {
	srv := sseServer(t, http.StatusOK, chunk("a,b\n")+`data: {"error":{"message":"rate limited"}}`+"\n\n")

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), domain.Image{Data: pngHeader})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestExtract_JSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{Choices: []Choice{{Message: Delta{Content: "\nx,y\n1,2\n"}}}})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := client.Extract(context.Background(), domain.Image{Data: pngHeader})
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2", got)
}

func TestExtract_EmptyImage(t *testing.T) {
	client, err := NewClient(Config{APIKey: "sk-test"})
	require.NoError(t, err)

	_, err = client.Extract(context.Background(), domain.Image{})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestExtract_Cancelled(t *testing.T) {
	srv := sseServer(t, http.StatusOK, chunk("a"))
	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Extract(ctx, domain.Image{Data: pngHeader})
	assert.ErrorIs(t, err, context.Canceled)
}
