package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendMailer delivers through the Resend HTTP API. Attachments go inline
// as base64 per the API contract.
type ResendMailer struct {
	APIKey     string
	From       string
	Endpoint   string
	HTTPClient *http.Client
}

func NewResendMailer(apiKey string, from string) *ResendMailer {
	return &ResendMailer{
		APIKey:     apiKey,
		From:       from,
		Endpoint:   resendEndpoint,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(m.APIKey) == "" {
		return fmt.Errorf("resend mailer not configured")
	}

	payload := map[string]any{
		"from":    m.From,
		"to":      []string{msg.To},
		"subject": msg.Subject,
	}
	if msg.HTML != "" {
		payload["html"] = msg.HTML
	}
	if msg.Text != "" {
		payload["text"] = msg.Text
	}
	if len(msg.Attachments) > 0 {
		attachments := make([]map[string]any, 0, len(msg.Attachments))
		for _, attachment := range msg.Attachments {
			attachments = append(attachments, map[string]any{
				"filename": attachment.Filename,
				"content":  base64.StdEncoding.EncodeToString(attachment.Content),
			})
		}
		payload["attachments"] = attachments
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := m.Endpoint
	if endpoint == "" {
		endpoint = resendEndpoint
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+m.APIKey)
	request.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		return fmt.Errorf("resend email failed with status %d", response.StatusCode)
	}
	return nil
}
