// Package telegram is a minimal Bot API client: long polling, text and
// document sending, attachment download and the command menu. No webhook
// support, the bot runs on getUpdates.
package telegram

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
	"time"

	"github.com/teknestudio/propbot/internal/llm"
)

const defaultBaseURL = "https://api.telegram.org"

type Client struct {
	httpClient       *http.Client
	pollClient       *http.Client
	token            string
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	log              *slog.Logger
}

// NewClient builds a client. httpTimeout covers regular calls; long polling
// uses its own generous timeout so getUpdates can hold the connection open.
func NewClient(token string, httpTimeout time.Duration, log *slog.Logger) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		pollClient:       &http.Client{Timeout: 75 * time.Second},
		token:            token,
		baseURL:          defaultBaseURL,
		retryMaxAttempts: 3,
		retryBaseDelay:   500 * time.Millisecond,
		log:              log,
	}
}

// NewClientWithBaseURL allows injecting a custom base URL (used in tests).
func NewClientWithBaseURL(token string, httpTimeout time.Duration, baseURL string, log *slog.Logger) *Client {
	c := NewClient(token, httpTimeout, log)
	if baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// GetUpdates long-polls for new message updates past offset. It does not
// retry; the serve loop owns backoff between polls.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	payload, err := json.Marshal(map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	result, err := c.once(ctx, c.pollClient, "getUpdates", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// SendMessage sends plain text. Text longer than MaxMessageLength is the
// caller's problem; the shell splits before calling.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.sendText(ctx, chatID, text, "")
}

// SendMarkdown sends text with Markdown parsing, for the structured command
// replies (/help, /cost).
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.sendText(ctx, chatID, text, "Markdown")
}

func (c *Client) sendText(ctx context.Context, chatID int64, text, parseMode string) (*Message, error) {
	body := map[string]any{"chat_id": chatID, "text": text}
	if parseMode != "" {
		body["parse_mode"] = parseMode
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

// DeleteMessage removes a message the bot sent.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// SendChatAction shows "typing..." (or another action) in the chat header.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	}, nil)
}

// SendDocument uploads a file into the chat with an optional caption.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, content []byte, caption string) error {
	_, err := c.doRetry(ctx, func(ctx context.Context) ([]byte, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.WriteField("chat_id", fmt.Sprint(chatID)); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		if caption != "" {
			if err := mw.WriteField("caption", caption); err != nil {
				return nil, fmt.Errorf("build form: %w", err)
			}
		}
		part, err := mw.CreateFormFile("document", filename)
		if err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		if _, err := part.Write(content); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		if err := mw.Close(); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
		return c.once(ctx, c.httpClient, "sendDocument", mw.FormDataContentType(), &buf)
	})
	return err
}

// GetFile resolves a file_id into a downloadable server path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadFile fetches the bytes of a file previously resolved via GetFile.
func (c *Client) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, filePath)
	return c.doRetry(ctx, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &UnreachableError{Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Code: resp.StatusCode, Description: "file download failed"}
		}
		return io.ReadAll(resp.Body)
	})
}

// SetMyCommands publishes the command menu shown in the Telegram client.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

// call runs a JSON method with retries and decodes the result envelope.
func (c *Client) call(ctx context.Context, method string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	result, err := c.doRetry(ctx, func(ctx context.Context) ([]byte, error) {
		return c.once(ctx, c.httpClient, method, "application/json", bytes.NewReader(payload))
	})
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// doRetry re-runs attempt on transient failures, honoring Telegram's
// retry_after flood-control parameter when present.
func (c *Client) doRetry(ctx context.Context, attempt func(context.Context) ([]byte, error)) ([]byte, error) {
	backoff := c.retryBaseDelay
	var lastErr error
	for i := 1; i <= c.retryMaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := attempt(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !llm.IsTransient(err) || i == c.retryMaxAttempts {
			return nil, err
		}

		sleep := withJitter(backoff)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			sleep = apiErr.RetryAfter
		}
		c.log.Debug("telegram retrying", "attempt", i, "sleep", sleep, "error", err)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

// once performs a single method call and unwraps the ok/result envelope.
func (c *Client) once(ctx context.Context, hc *http.Client, method, contentType string, body io.Reader) ([]byte, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &UnreachableError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		apiErr := &APIError{Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return nil, apiErr
	}
	return envelope.Result, nil
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
