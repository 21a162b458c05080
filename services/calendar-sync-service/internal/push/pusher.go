package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Pusher delivers one sync action to the external calendar.
type Pusher interface {
	Push(ctx context.Context, action string, payload map[string]any) error
	TargetID() string
}

// HTTPPusher posts sync actions to the external calendar's webhook
// endpoint. Non-2xx responses are errors so the job worker retries them.
type HTTPPusher struct {
	url   string
	token string
	http  *http.Client
}

func NewHTTPPusher(url string, token string) *HTTPPusher {
	return &HTTPPusher{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (p *HTTPPusher) TargetID() string {
	return "calendar-webhook"
}

func (p *HTTPPusher) Push(ctx context.Context, action string, payload map[string]any) error {
	if p.url == "" {
		return errors.New("calendar webhook url not configured")
	}
	body := map[string]any{
		"action":  action,
		"payload": payload,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopPusher struct{}

func NewNoopPusher() *NoopPusher {
	return &NoopPusher{}
}

func (p *NoopPusher) TargetID() string {
	return "calendar-noop"
}

func (p *NoopPusher) Push(_ context.Context, _ string, _ map[string]any) error {
	return nil
}
