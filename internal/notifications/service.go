package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "Tapedeck-Go/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyRefreshCompleted(ctx context.Context, added int, duration time.Duration) error
	NotifyRefreshFailed(ctx context.Context, err error) error
	NotifyCatalogBuilt(ctx context.Context, dates int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when a topic is
// configured, otherwise a noop implementation.
func NewService(topic string, timeoutSeconds int) Service {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRefreshCompleted(ctx context.Context, added int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Tapedeck - Refresh Complete",
		message: fmt.Sprintf("Catalog refreshed: %d new tapes in %s", added, duration),
		tags:    []string{"tapedeck", "refresh", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRefreshFailed(ctx context.Context, err error) error {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Tapedeck - Refresh Failed",
		message:  fmt.Sprintf("Catalog refresh failed: %s", reason),
		tags:     []string{"tapedeck", "refresh", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCatalogBuilt(ctx context.Context, dates int) error {
	data := payload{
		title:   "Tapedeck - Catalog Ready",
		message: fmt.Sprintf("Catalog built with %d dates", dates),
		tags:    []string{"tapedeck", "catalog", "ready"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Tapedeck - Error",
		message:  builder.String(),
		tags:     []string{"tapedeck", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Tapedeck - Test",
		message:  "Notification system test",
		tags:     []string{"tapedeck", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRefreshCompleted(context.Context, int, time.Duration) error { return nil }
func (noopService) NotifyRefreshFailed(context.Context, error) error                 { return nil }
func (noopService) NotifyCatalogBuilt(context.Context, int) error                    { return nil }
func (noopService) NotifyError(context.Context, error, string) error                 { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
