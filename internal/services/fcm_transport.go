package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxGatewayBody = 1 << 20

// FCMEndpoint returns the HTTP v1 messages:send URL of a Firebase project.
func FCMEndpoint(projectID string) string {
	return fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", projectID)
}

// FCMTransport posts messages to Firebase Cloud Messaging. The client is
// expected to carry OAuth credentials.
type FCMTransport struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewFCMTransport(client *http.Client, endpoint string, timeout time.Duration, logger *slog.Logger) *FCMTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Copied so the caller's client keeps its own timeout.
	c := &http.Client{}
	if client != nil {
		*c = *client
	}
	c.Timeout = timeout
	return &FCMTransport{
		endpoint: endpoint,
		client:   c,
		logger:   logger,
	}
}

func (t *FCMTransport) Name() string {
	return "fcm"
}

func (t *FCMTransport) Post(ctx context.Context, body []byte) (*GatewayResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return nil, fmt.Errorf("fcm: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.logger.Debug("fcm rejected message", slog.Int("status", resp.StatusCode))
	}

	return &GatewayResponse{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}, nil
}
