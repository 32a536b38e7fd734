package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "cronkeep/pkg/logx"
)

func TestFatalMarker(t *testing.T) {
	t.Parallel()
	if Fatal(nil) != nil {
		t.Fatalf("Fatal(nil) must be nil")
	}
	base := errors.New("gone")
	err := fmt.Errorf("wrapped: %w", Fatal(base))
	if !IsFatal(err) {
		t.Fatalf("expected IsFatal through wrapping")
	}
	if !errors.Is(err, base) {
		t.Fatalf("Fatal must unwrap to the cause")
	}
	if IsFatal(base) {
		t.Fatalf("plain error reported fatal")
	}
}

func TestGuardRecoversPanic(t *testing.T) {
	t.Parallel()
	d := Guard(Func(func(ctx context.Context, req Request) (Result, error) {
		panic("boom")
	}))
	_, err := d.Execute(context.Background(), Request{TaskID: "x"})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PanicError", err)
	}
	if pe.Value != "boom" || pe.Stack == "" {
		t.Fatalf("unexpected panic error: %+v", pe)
	}
}

func TestWithSessionDefaults(t *testing.T) {
	t.Parallel()
	var got []string
	rec := Func(func(ctx context.Context, req Request) (Result, error) {
		got = append(got, req.SessionID)
		return Result{}, nil
	})
	ctx := context.Background()
	_, _ = WithSession(rec, "").Execute(ctx, Request{})
	_, _ = WithSession(rec, "main").Execute(ctx, Request{})
	_, _ = WithSession(rec, "main").Execute(ctx, Request{SessionID: "s1"})
	want := []string{DefaultSession, "main", "s1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("session[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLimitedHonorsContext(t *testing.T) {
	t.Parallel()
	calls := 0
	d := Limited(Func(func(ctx context.Context, req Request) (Result, error) {
		calls++
		return Result{}, nil
	}), 0.001, 1)

	if _, err := d.Execute(context.Background(), Request{}); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Execute(ctx, Request{}); err == nil {
		t.Fatalf("expected limiter wait to fail")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWebhookStatuses(t *testing.T) {
	t.Parallel()
	var seen Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&seen)
		switch seen.TaskID {
		case "ok":
			_, _ = io.WriteString(w, "done")
		case "gone":
			w.WriteHeader(http.StatusGone)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, map[string]string{"X-Token": "secret"}, time.Second)
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	ctx := context.Background()

	res, err := wh.Execute(ctx, Request{TaskID: "ok", Prompt: "p", SessionID: "s"})
	if err != nil || res.Output != "done" {
		t.Fatalf("ok: res=%+v err=%v", res, err)
	}
	if seen.Prompt != "p" || seen.SessionID != "s" {
		t.Fatalf("request body not forwarded: %+v", seen)
	}

	_, err = wh.Execute(ctx, Request{TaskID: "gone"})
	if !IsFatal(err) {
		t.Fatalf("410 should be fatal, got %v", err)
	}

	_, err = wh.Execute(ctx, Request{TaskID: "other"})
	if err == nil || IsFatal(err) {
		t.Fatalf("500 should be a plain failure, got %v", err)
	}
}

func TestNewWebhookRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := NewWebhook("  ", nil, 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenAIDispatcher(t *testing.T) {
	t.Parallel()
	var body struct {
		Model    string `json:"model"`
		User     string `json:"user"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model == "missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"all good"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "m", SystemPrompt: "be brief"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	res, err := o.Execute(context.Background(), Request{Prompt: "check disk", SessionID: "sess"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "all good" {
		t.Fatalf("output = %q", res.Output)
	}
	if body.User != "sess" || len(body.Messages) != 2 || body.Messages[1].Content != "check disk" {
		t.Fatalf("unexpected request: %+v", body)
	}

	bad, _ := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "k", Model: "missing"})
	if _, err := bad.Execute(context.Background(), Request{Prompt: "x"}); !IsFatal(err) {
		t.Fatalf("unknown model should be fatal, got %v", err)
	}
}

func TestNewSelectsKind(t *testing.T) {
	t.Parallel()
	d, err := New(Config{}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New default: %v", err)
	}
	res, err := d.Execute(context.Background(), Request{Prompt: "hello"})
	if err != nil || res.Output != "logged" {
		t.Fatalf("log dispatcher: %+v %v", res, err)
	}
	if _, err := New(Config{Kind: "carrier-pigeon"}, nil, logx.Nop()); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := New(Config{Kind: "webhook"}, nil, logx.Nop()); err == nil {
		t.Fatalf("expected missing url error")
	}
	if _, err := New(Config{Kind: "openai"}, nil, logx.Nop()); err == nil {
		t.Fatalf("expected missing model error")
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		maxN int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc…"},
		{"héllo", 2, "h…"},
		{"日本語", 4, "日…"},
		{"日本語", 0, "日本語"},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.maxN)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.maxN, got, tc.want)
		}
	}
}
