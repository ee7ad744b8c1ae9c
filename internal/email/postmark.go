package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithAPIURL overrides the Postmark endpoint, used by tests.
func WithAPIURL(url string) Option {
	return func(cl *Client) {
		cl.apiURL = url
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		apiURL:      defaultAPIURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendVerificationCode sends a 6-digit code for registration or password reset.
func (c *Client) SendVerificationCode(toEmail, code, purpose string) error {
	var subject, action string
	switch purpose {
	case "register":
		subject = "Welcome to Parlor"
		action = "complete your registration"
	case "reset":
		subject = "Reset your Parlor password"
		action = "reset your password"
	default:
		subject = "Your Parlor verification code"
		action = "continue"
	}

	textBody := fmt.Sprintf("Enter the code below to %s:\n\n%s\n\nThis code expires in 15 minutes.", action, code)
	htmlBody := fmt.Sprintf(
		`<p>Enter the code below to %s:</p><p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p><p>This code expires in 15 minutes.</p>`,
		action, code,
	)

	return c.send(toEmail, subject, htmlBody, textBody)
}

// SendModerationNotice tells a user that one of their posts or comments
// was hidden or restored by a moderator.
func (c *Client) SendModerationNotice(toEmail, contentKind, action string) error {
	subject := fmt.Sprintf("Your %s on Parlor was %s", contentKind, action)
	textBody := fmt.Sprintf(
		"A moderator has %s your %s.\n\nIf you think this was a mistake, reply to this email.\n\n%s",
		action, contentKind, c.baseURL,
	)
	htmlBody := fmt.Sprintf(
		`<p>A moderator has %s your %s.</p><p>If you think this was a mistake, reply to this email.</p><p><a href="%s">%s</a></p>`,
		action, contentKind, c.baseURL, c.baseURL,
	)
	return c.send(toEmail, subject, htmlBody, textBody)
}

func (c *Client) send(toEmail, subject, htmlBody, textBody string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequest("POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
