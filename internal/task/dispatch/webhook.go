package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxOutput bounds the response text kept as Result.Output.
const maxOutput = 2000

// Webhook POSTs each Request as JSON to URL.
//
// 2xx is success and the body becomes the output. 410 Gone is fatal (the
// endpoint asks for the task to stop). Anything else is a failure.
type Webhook struct {
	URL     string
	Headers map[string]string
	Client  *http.Client
}

func NewWebhook(url string, headers map[string]string, timeout time.Duration) (*Webhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("dispatcher.webhook.url is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{URL: url, Headers: headers, Client: &http.Client{Timeout: timeout}}, nil
}

func (w *Webhook) Execute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, Fatal(err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		hreq.Header.Set(k, v)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	out := truncate(string(raw), maxOutput)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Output: out}, nil
	case resp.StatusCode == http.StatusGone:
		return Result{Output: out}, Fatal(fmt.Errorf("webhook: %s", resp.Status))
	default:
		return Result{Output: out}, fmt.Errorf("webhook: %s", resp.Status)
	}
}
