package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type apiStub struct {
	mu    sync.Mutex
	paths []string
	body  map[string]any
}

func (a *apiStub) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	a.mu.Lock()
	a.paths = append(a.paths, r.URL.Path)
	a.body = body
	a.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{ChatID: 1}); err == nil {
		t.Fatalf("empty token should fail")
	}
	if _, err := New(Config{Token: "x"}); err == nil {
		t.Fatalf("empty chat should fail")
	}
}

func TestSendText(t *testing.T) {
	t.Parallel()
	stub := &apiStub{}
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", ChatID: 42, ThreadID: 7, APIURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SendText(context.Background(), "  hello  "); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := s.SendText(context.Background(), "   "); err != nil {
		t.Fatalf("blank SendText: %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.paths) != 1 || !strings.HasSuffix(stub.paths[0], "/sendMessage") {
		t.Fatalf("paths = %v", stub.paths)
	}
	if stub.body["text"] != "hello" {
		t.Fatalf("text = %v", stub.body["text"])
	}
}

func TestSendTextCanceled(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Token: "123:abc", ChatID: 42, APIURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendText(ctx, "x"); err == nil {
		t.Fatalf("canceled ctx should fail")
	}
}
