package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSConfig holds gateway settings for [SMSSender]. The gateway is expected
// to accept form-encoded POST requests carrying an API key, a recipient and a
// message body, and answer with a JSON envelope containing a numeric code.
//
// SMSConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SMSConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SMSSender delivers codes through an HTTP SMS gateway.
type SMSSender struct {
	config SMSConfig
	client *http.Client
}

type smsGatewayResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewSMSSender describes the newsmssender operation and its observable behavior.
//
// NewSMSSender may return an error when input validation, dependency calls, or security checks fail.
func NewSMSSender(cfg SMSConfig) (*SMSSender, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("delivery: sms gateway base url is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("delivery: sms gateway api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &SMSSender{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *SMSSender) Send(ctx context.Context, target, code string) error {
	form := url.Values{}
	form.Set("apiKey", s.config.APIKey)
	form.Set("recipient", target)
	form.Set("text", fmt.Sprintf("Your verification code is %s", code))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("delivery: build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery: sms gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delivery: sms gateway returned status %d", resp.StatusCode)
	}

	var envelope smsGatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("delivery: decode sms gateway response: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("delivery: sms gateway rejected message: code=%d message=%q", envelope.Code, envelope.Message)
	}

	return nil
}
