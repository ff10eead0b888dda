package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/table-extractor/internal/domain"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config configures a Client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Prompt    string
	MaxTokens int
	Timeout   time.Duration

	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to an OpenAI compatible chat completions endpoint
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	prompt     string
	maxTokens  int
	httpClient *http.Client
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string     `json:"id"`
	Choices []Choice   `json:"choices"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the error object some providers put in the stream.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new LLM client
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.ConfigError("API key is required (set OPENAI_API_KEY)", nil)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:      model,
		prompt:     prompt,
		maxTokens:  cfg.MaxTokens,
		httpClient: httpClient,
	}, nil
}

// Model returns the model name sent with each request.
func (c *Client) Model() string {
	return c.model
}

// Extract sends the image and returns the complete, trimmed answer.
func (c *Client) Extract(ctx context.Context, image domain.Image) (string, error) {
	resultCh := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.Stream(ctx, image, resultCh)
		close(resultCh)
	}()

	var answer strings.Builder
	for chunk := range resultCh {
		answer.WriteString(chunk)
	}
	if err := <-errCh; err != nil {
		return "", err
	}

	return strings.TrimSpace(answer.String()), nil
}

// Stream sends the image and forwards answer chunks to resultCh as they
// arrive. It does not close resultCh.
func (c *Client) Stream(ctx context.Context, image domain.Image, resultCh chan<- string) error {
	if len(image.Data) == 0 {
		return domain.ValidationError("image is empty", nil)
	}

	body, err := json.Marshal(c.buildRequest(image))
	if err != nil {
		return domain.APIError("Failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.APIError("Failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))), nil)
	}

	// Some gateways ignore stream:true and answer with a single object.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return c.parseJSON(ctx, resp.Body, resultCh)
	}
	return c.parseStream(ctx, resp.Body, resultCh)
}

// buildRequest constructs the API request with the image
func (c *Client) buildRequest(image domain.Image) *Request {
	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{
				Type: "text",
				Text: c.prompt,
			},
			{
				Type: "image_url",
				ImageURL: &ImageURL{
					URL: DataURI(image),
				},
			},
		},
	}

	return &Request{
		Model:     c.model,
		Messages:  []Message{msg},
		Stream:    true,
		MaxTokens: c.maxTokens,
	}
}

// DataURI encodes the image as a base64 data URI. The MIME type is sniffed
// when the image does not carry one.
func DataURI(image domain.Image) string {
	mime := image.MIMEType
	if mime == "" {
		mime = http.DetectContentType(image.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
}

// parseStream parses the Server-Sent Events stream
func (c *Client) parseStream(ctx context.Context, body io.Reader, resultCh chan<- string) error {
	parser := NewStreamParser(body)
	if err := parser.ParseAll(ctx, resultCh); err != nil {
		return domain.APIError("Failed to parse stream", err)
	}
	return nil
}

func (c *Client) parseJSON(ctx context.Context, body io.Reader, resultCh chan<- string) error {
	var resp Response
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return domain.APIError("Failed to decode response", err)
	}
	if resp.Error != nil {
		return domain.APIError("Model returned an error", fmt.Errorf("%s", resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return nil
	}

	select {
	case resultCh <- resp.Choices[0].Message.Content:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
