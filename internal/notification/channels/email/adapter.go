// Package email sends notifications through an HTTP mail API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"formroom/internal/notification"
	dErrors "formroom/pkg/domain-errors"
)

// Config holds the mail API endpoint and credentials.
type Config struct {
	APIURL   string
	APIToken string
	From     string
}

// Validate reports a config the adapter cannot operate with.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("email adapter requires an API URL")
	}
	return nil
}

// Adapter delivers notifications as transactional emails. It implements
// notification.Sender.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
}

// NewAdapter creates an email adapter for the given mail API.
func NewAdapter(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// Send posts one email addressed to every recipient with a known address.
// Recipient identities map to addresses through their user id, which the
// platform provisions as the mailbox local part.
func (a *Adapter) Send(ctx context.Context, delivery notification.Delivery) error {
	to := make([]string, 0, len(delivery.Recipients))
	for _, r := range delivery.Recipients {
		if r.UserID != "" {
			to = append(to, r.UserID)
		}
	}
	if len(to) == 0 {
		return dErrors.New(dErrors.CodeDeliveryFailed, "no addressable recipients")
	}

	body, err := json.Marshal(sendRequest{
		From:    a.cfg.From,
		To:      to,
		Subject: delivery.Title,
		Text:    delivery.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIToken)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v",
			dErrors.New(dErrors.CodeDeliveryFailed, "mail API unreachable"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s",
			dErrors.New(dErrors.CodeDeliveryFailed, "mail API rejected send"),
			resp.StatusCode, detail)
	}
	return nil
}
