package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/teknestudio/propbot/internal/llm"
	"github.com/teknestudio/propbot/internal/logging"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func okBody() map[string]any {
	return map[string]any{
		"id":          "msg_test",
		"stop_reason": "end_turn",
		"content":     []map[string]any{{"type": "text", "text": "ok"}},
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func sequenceServer(t *testing.T, statuses []int, headers []http.Header, body map[string]any, calls *int32) *ipv4Server {
	t.Helper()
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(calls, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		w.WriteHeader(st)
		if st >= 200 && st < 300 {
			_ = json.NewEncoder(w).Encode(body)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "api_error", "message": "boom"},
		})
	}))
}

func newTestClient(baseURL string) *Client {
	return NewClientWithBaseURL("test-key", 2*time.Second, 3, 10*time.Millisecond, 100*time.Millisecond, baseURL, logging.Nop())
}

func TestMessagesParsesTextToolsAndUsage(t *testing.T) {
	var captured []byte
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q, want test-key", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("anthropic-version = %q, want %q", got, apiVersion)
		}
		captured, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"stop_reason": "tool_use",
			"content": []map[string]any{
				{"type": "text", "text": "Vou salvar a proposta."},
				{"type": "tool_use", "id": "toolu_01", "name": "save_proposal_yaml", "input": map[string]any{"client_name": "SESC"}},
			},
			"usage": map[string]any{
				"input_tokens":                120,
				"output_tokens":               30,
				"cache_creation_input_tokens": 800,
				"cache_read_input_tokens":     2400,
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Messages(ctx, MessagesRequest{
		Model:  ModelSonnet,
		System: "Você é um agente de propostas.",
		Messages: []llm.ChatMessage{
			{Role: "user", Content: "crie uma proposta"},
			{Role: "assistant", Content: "ok", ToolCalls: []llm.ToolCall{{ID: "toolu_00", Name: "list_existing_proposals", Input: json.RawMessage(`{"limit":5}`)}}},
			{Role: "user", ToolResults: []llm.ToolResult{{ToolCallID: "toolu_00", Content: "nenhuma proposta", IsError: false}}},
		},
		Tools:     []llm.Tool{{Name: "save_proposal_yaml", Description: "Salva a proposta.", InputSchema: json.RawMessage(`{"type":"object"}`)}},
		MaxTokens: 2048,
	})
	if err != nil {
		t.Fatalf("Messages returned error: %v", err)
	}

	if resp.Content != "Vou salvar a proposta." {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "save_proposal_yaml" || resp.ToolCalls[0].ID != "toolu_01" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Usage.CacheCreationTokens != 800 || resp.Usage.CacheReadTokens != 2400 {
		t.Errorf("cache usage not parsed: %+v", resp.Usage)
	}

	var wire struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Type         string `json:"type"`
			Text         string `json:"text"`
			CacheControl *struct {
				Type string `json:"type"`
			} `json:"cache_control"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type      string          `json:"type"`
				Text      string          `json:"text"`
				ID        string          `json:"id"`
				Name      string          `json:"name"`
				Input     json.RawMessage `json:"input"`
				ToolUseID string          `json:"tool_use_id"`
				Content   string          `json:"content"`
			} `json:"content"`
		} `json:"messages"`
		Tools []struct {
			Name        string          `json:"name"`
			InputSchema json.RawMessage `json:"input_schema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(captured, &wire); err != nil {
		t.Fatalf("decode captured request: %v", err)
	}
	if wire.Model != ModelSonnet || wire.MaxTokens != 2048 {
		t.Errorf("model/max_tokens = %q/%d", wire.Model, wire.MaxTokens)
	}
	if len(wire.System) != 1 || wire.System[0].CacheControl == nil || wire.System[0].CacheControl.Type != "ephemeral" {
		t.Errorf("system prompt not sent as cacheable block: %+v", wire.System)
	}
	if len(wire.Tools) != 1 || wire.Tools[0].Name != "save_proposal_yaml" || len(wire.Tools[0].InputSchema) == 0 {
		t.Errorf("tools not mapped: %+v", wire.Tools)
	}
	if len(wire.Messages) != 3 {
		t.Fatalf("messages len = %d", len(wire.Messages))
	}
	asst := wire.Messages[1]
	if asst.Role != "assistant" || len(asst.Content) != 2 || asst.Content[1].Type != "tool_use" || asst.Content[1].Name != "list_existing_proposals" {
		t.Errorf("assistant tool_use not mapped: %+v", asst)
	}
	result := wire.Messages[2]
	if result.Role != "user" || len(result.Content) != 1 || result.Content[0].Type != "tool_result" || result.Content[0].ToolUseID != "toolu_00" || result.Content[0].Content != "nenhuma proposta" {
		t.Errorf("tool_result not mapped: %+v", result)
	}
}

func TestMessagesRetriesOn429(t *testing.T) {
	var calls int32
	srv := sequenceServer(t, []int{429, 200}, []http.Header{{"Retry-After": {"0"}}, {}}, okBody(), &calls)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Messages(ctx, MessagesRequest{Model: ModelHaiku, Messages: []llm.ChatMessage{{Role: "user", Content: "oi"}}})
	if err != nil {
		t.Fatalf("Messages returned error: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestMessagesHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := sequenceServer(t, []int{429, 200}, []http.Header{{"Retry-After": {"1"}}, {}}, okBody(), &calls)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start := time.Now()
	if _, err := c.Messages(ctx, MessagesRequest{Model: ModelHaiku, Messages: []llm.ChatMessage{{Role: "user", Content: "oi"}}}); err != nil {
		t.Fatalf("Messages returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond { // allow scheduling variance
		t.Fatalf("expected ~1s delay from Retry-After, got %v", elapsed)
	}
}

func TestMessagesRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := sequenceServer(t, []int{500, 200}, nil, okBody(), &calls)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.Messages(ctx, MessagesRequest{Model: ModelHaiku, Messages: []llm.ChatMessage{{Role: "user", Content: "oi"}}}); err != nil {
		t.Fatalf("Messages returned error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestMessagesAuthErrorNotRetried(t *testing.T) {
	var calls int32
	srv := sequenceServer(t, []int{401}, nil, nil, &calls)
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Messages(ctx, MessagesRequest{Model: ModelHaiku, Messages: []llm.ChatMessage{{Role: "user", Content: "oi"}}})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if llm.IsTransient(err) {
		t.Error("auth errors must not be transient")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestMessagesBadRequestNotRetried(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("request-id", "req_test_123")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "max_tokens required"},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Messages(ctx, MessagesRequest{Model: ModelHaiku, Messages: []llm.ChatMessage{{Role: "user", Content: "oi"}}})
	var badReq *BadRequestError
	if !errors.As(err, &badReq) {
		t.Fatalf("expected BadRequestError, got %T: %v", err, err)
	}
	if badReq.RequestID != "req_test_123" {
		t.Errorf("RequestID = %q", badReq.RequestID)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestMessagesRequiresAPIKey(t *testing.T) {
	c := NewClientWithBaseURL("", time.Second, 1, 0, 0, "http://127.0.0.1:1", logging.Nop())
	_, err := c.Messages(context.Background(), MessagesRequest{Model: ModelHaiku, Messages: []llm.ChatMessage{{Role: "user", Content: "oi"}}})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestRetryAfterDuration(t *testing.T) {
	mk := func(v string) *http.Response {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		return &http.Response{Header: h}
	}
	if got := retryAfterDuration(mk("3")); got != 3*time.Second {
		t.Errorf("seconds form = %v, want 3s", got)
	}
	if got := retryAfterDuration(mk("")); got != 0 {
		t.Errorf("missing header = %v, want 0", got)
	}
	if got := retryAfterDuration(mk("not-a-number")); got != 0 {
		t.Errorf("garbage header = %v, want 0", got)
	}
	future := time.Now().Add(2 * time.Second).UTC().Format(http.TimeFormat)
	if got := retryAfterDuration(mk(future)); got <= 0 || got > 2*time.Second {
		t.Errorf("http date form = %v, want (0, 2s]", got)
	}
}
