// Package openai covers the two OpenAI endpoints the bot needs: Whisper
// transcription for voice notes and DALL-E generation for proposal imagery.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teknestudio/propbot/internal/llm"
)

const (
	defaultBaseURL = "https://api.openai.com"

	transcribeModel = "whisper-1"

	imageModel   = "dall-e-3"
	imageSize    = "1792x1024" // closest available to the deck's banner ratio
	imageQuality = "standard"
)

type Client struct {
	httpClient       *http.Client
	apiKey           string
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	log              *slog.Logger
}

// NewClient builds a client with explicit timeout and retry behavior.
func NewClient(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration, log *slog.Logger) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 120 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		apiKey:           apiKey,
		baseURL:          defaultBaseURL,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
		log:              log,
	}
}

// NewClientWithBaseURL allows injecting a custom base URL (used in tests).
func NewClientWithBaseURL(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration, baseURL string, log *slog.Logger) *Client {
	c := NewClient(apiKey, httpTimeout, retryMax, baseDelay, maxDelay, log)
	if baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

// Transcribe uploads an audio file to Whisper and returns the plain-text
// transcript. The audio is buffered up front so retries can rebuild the
// multipart body.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("OPENAI_API_KEY is missing")
	}
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("audio payload is empty")
	}
	if filename == "" {
		filename = "audio.ogg"
	}

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		_ = mw.WriteField("model", transcribeModel)
		_ = mw.WriteField("response_format", "text")
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		return c.apiRequest(ctx, "/v1/audio/transcriptions", mw.FormDataContentType(), &buf)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateImage asks DALL-E for one wide image and downloads it, returning
// the raw PNG bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is missing")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("image prompt cannot be empty")
	}
	payload, err := json.Marshal(imageRequest{
		Model:   imageModel,
		Prompt:  prompt,
		N:       1,
		Size:    imageSize,
		Quality: imageQuality,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return c.apiRequest(ctx, "/v1/images/generations", "application/json", bytes.NewReader(payload))
	})
	if err != nil {
		return nil, err
	}
	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("image response carried no URL")
	}
	url := resp.Data[0].URL
	c.log.Debug("downloading generated image", "url", url)

	// The download URL is pre-signed, so no auth header goes with it.
	img, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, errors.New("downloaded image is empty")
	}
	return img, nil
}

func (c *Client) apiRequest(ctx context.Context, path, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// do runs build+send with exponential backoff on transient failures. The
// request is rebuilt each attempt because bodies cannot be replayed.
func (c *Client) do(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	backoff := c.retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := c.once(ctx, build)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !llm.IsTransient(err) || attempt == c.retryMaxAttempts {
			return nil, err
		}

		sleep := withJitter(backoff)
		if c.retryMaxDelay > 0 && sleep > c.retryMaxDelay {
			sleep = c.retryMaxDelay
		}
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			sleep = rl.RetryAfter
		}
		c.log.Debug("openai retrying", "attempt", attempt, "sleep", sleep, "error", err)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &UnreachableError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return b, nil
}

// apiError decodes the provider's error envelope into a typed error.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("x-request-id"),
	}
	var raw struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err == nil {
		apiErr.Type = raw.Error.Type
		apiErr.Message = raw.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{APIError: apiErr, RetryAfter: retryAfterDuration(resp)}
	case resp.StatusCode >= 500:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func retryAfterDuration(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if s, err := strconv.Atoi(v); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
