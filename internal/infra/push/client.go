package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	appchat "shopme/internal/app/chat"
)

// Client dispatches notifications to an FCM-style HTTP endpoint. The
// caller bounds each attempt with a context deadline; a timeout is
// reported as a dispatch error like any other.
type Client struct {
	HTTPClient *http.Client
	Endpoint   string
	ServerKey  string
	Logger     *slog.Logger
}

type dispatchRequest struct {
	To           string            `json:"to"`
	Notification notificationBody  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type notificationBody struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

// Send posts the notification for one device token.
func (c *Client) Send(ctx context.Context, token string, n appchat.Notification) (appchat.Receipt, error) {
	var zero appchat.Receipt
	if c == nil || c.HTTPClient == nil {
		return zero, errors.New("push: http client not configured")
	}
	if c.Endpoint == "" {
		return zero, errors.New("push: endpoint not configured")
	}
	if token == "" {
		return zero, errors.New("push: token is required")
	}

	payload := dispatchRequest{
		To: token,
		Notification: notificationBody{
			Title: n.Title,
			Body:  n.Body,
			Image: n.Image,
		},
		Data: n.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return zero, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return zero, err
	}
	request.Header.Set("Content-Type", "application/json")
	if c.ServerKey != "" {
		request.Header.Set("Authorization", "key="+c.ServerKey)
	}

	resp, err := c.HTTPClient.Do(request)
	if err != nil {
		c.logError("push request failed", err)
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("push endpoint returned status %d: %s", resp.StatusCode, string(snippet))
		c.logError("push endpoint returned error", err)
		return zero, err
	}
	return appchat.Receipt{StatusCode: resp.StatusCode}, nil
}

func (c *Client) logError(msg string, err error) {
	if c.Logger != nil {
		c.Logger.Error(msg, "error", err)
	}
}

// Noop fails fast when no push endpoint is configured.
type Noop struct{}

func (Noop) Send(_ context.Context, _ string, _ appchat.Notification) (appchat.Receipt, error) {
	return appchat.Receipt{}, errors.New("push dispatcher is not configured")
}

var (
	_ appchat.Dispatcher = (*Client)(nil)
	_ appchat.Dispatcher = Noop{}
)
