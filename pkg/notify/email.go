package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brightdent/dentflow/internal/config"
)

// EmailSender posts messages to the clinic's transactional email gateway.
type EmailSender struct {
	gatewayURL string
	from       string
	httpClient *http.Client
}

func NewEmailSender(cfg config.NotifyConfig) *EmailSender {
	return &EmailSender{
		gatewayURL: cfg.EmailGatewayURL,
		from:       cfg.EmailFrom,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type emailMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (e *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(emailMessage{
		From:    e.from,
		To:      to,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("marshaling email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("email gateway returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
